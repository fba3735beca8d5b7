// Package protocol implements the Klipper serial wire protocol used to drive
// remote GPIO controllers: VLQ argument encoding, CRC16-checked frames with
// sequence numbers and ACKs, and the command catalog a controller publishes as
// its dictionary.
//
// A frame is [len][seq] payload [crc_hi][crc_lo][0x7E]. The payload is a series
// of messages, each a VLQ command ID followed by VLQ encoded arguments.
package protocol

const (
	MessageHeaderSize  = 2
	MessageTrailerSize = 3
	MessageLengthMin   = MessageHeaderSize + MessageTrailerSize
	MessageLengthMax   = 64
	MessagePayloadMax  = MessageLengthMax - MessageLengthMin

	MessagePositionLen = 0
	MessagePositionSeq = 1
	MessageTrailerCRC  = 3
	MessageTrailerSync = 1

	MessageValueSync = 0x7E
	MessageDest      = 0x10
	MessageSeqMask   = 0x0F
)

// Well-known command IDs fixed before the dictionary is known.
const (
	IdentifyResponseID = 0
	IdentifyID         = 1
)

// NextSequence returns the sequence byte following seq.
func NextSequence(seq uint8) uint8 {
	return ((seq + 1) & MessageSeqMask) | MessageDest
}
