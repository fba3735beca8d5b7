package protocol

import "fmt"

// Message is one validated frame.
type Message struct {
	Sequence uint8
	Payload  []byte
}

// IsAck reports whether the frame carries no messages, which is how ACK and NAK
// frames are sent.
func (m *Message) IsAck() bool {
	return len(m.Payload) == 0
}

// framer splits a byte stream into frames and tracks synchronization. After a
// bad frame it discards input up to the next sync byte.
type framer struct {
	desync bool
}

// next returns the first complete frame in data, or nil when more input is
// needed. consumed is the number of bytes of data that were used up, and
// resynced reports that a sync byte ended a desynchronized stretch.
func (f *framer) next(data []byte) (msg *Message, consumed int, resynced bool) {
	start := len(data)
	defer func() { consumed = start - len(data) }()

	for len(data) > 0 {
		if f.desync {
			i := indexSync(data)
			if i < 0 {
				data = nil
				return nil, 0, resynced
			}
			data = data[i+1:]
			f.desync = false
			resynced = true
			continue
		}
		if data[0] == MessageValueSync {
			data = data[1:]
			continue
		}
		if len(data) < MessageLengthMin {
			return nil, 0, resynced
		}
		n := int(data[MessagePositionLen])
		if n < MessageLengthMin || n > MessageLengthMax {
			f.desync = true
			continue
		}
		seq := data[MessagePositionSeq]
		if seq&^MessageSeqMask != MessageDest {
			f.desync = true
			continue
		}
		if len(data) < n {
			return nil, 0, resynced
		}
		if data[n-MessageTrailerSync] != MessageValueSync {
			f.desync = true
			continue
		}
		crc := uint16(data[n-MessageTrailerCRC])<<8 | uint16(data[n-MessageTrailerCRC+1])
		if crc != CRC16(data[:n-MessageTrailerSize]) {
			f.desync = true
			continue
		}
		payload := make([]byte, n-MessageLengthMin)
		copy(payload, data[MessageHeaderSize:n-MessageTrailerSize])
		data = data[n:]
		return &Message{Sequence: seq, Payload: payload}, 0, resynced
	}
	return nil, 0, resynced
}

func indexSync(data []byte) int {
	for i, b := range data {
		if b == MessageValueSync {
			return i
		}
	}
	return -1
}

// EncodeFrame wraps payload into a frame with the given sequence byte.
func EncodeFrame(seq uint8, payload []byte) ([]byte, error) {
	n := len(payload) + MessageLengthMin
	if n > MessageLengthMax {
		return nil, fmt.Errorf("message too long: %d bytes (max %d)", n, MessageLengthMax)
	}
	frame := make([]byte, 0, n)
	frame = append(frame, uint8(n), seq)
	frame = append(frame, payload...)
	crc := CRC16(frame)
	return append(frame, uint8(crc>>8), uint8(crc), MessageValueSync), nil
}
