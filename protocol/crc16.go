package protocol

// crcInit is the CCITT seed used for every frame.
const crcInit = 0xFFFF

// CRC16 returns the frame checksum of data (CRC-16/MCRF4XX, the variant used
// by Klipper firmware).
func CRC16(data []byte) uint16 {
	return UpdateCRC16(crcInit, data)
}

// UpdateCRC16 folds data into a running checksum, so a frame can be summed in
// pieces starting from CRC16(nil).
func UpdateCRC16(crc uint16, data []byte) uint16 {
	for _, b := range data {
		b ^= uint8(crc)
		b ^= b << 4
		w := uint16(b)
		crc = (w<<8 | crc>>8) ^ w>>4 ^ w<<3
	}
	return crc
}
