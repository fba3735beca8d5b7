package protocol

import (
	"fmt"
	"sync/atomic"
)

// CommandHandler decodes and executes one command. It must consume exactly the
// command's arguments from data.
type CommandHandler func(cmdID uint16, data *[]byte) error

// Transport is the controller side of the protocol: it validates incoming frames,
// dispatches their commands in order and answers every frame with an ACK carrying
// the next expected sequence. Responses written by handlers precede the ACK.
type Transport struct {
	nextSequence atomic.Uint32
	framer       framer

	output        OutputBuffer
	handler       CommandHandler
	resetCallback func()
	flushCallback func()
}

// NewTransport returns a Transport writing frames to output.
func NewTransport(output OutputBuffer, handler CommandHandler) *Transport {
	t := &Transport{output: output, handler: handler}
	t.nextSequence.Store(MessageDest)
	return t
}

// Receive consumes every complete frame available in input.
func (t *Transport) Receive(input InputBuffer) {
	for {
		msg, consumed, resynced := t.framer.next(input.Data())
		input.Pop(consumed)
		if resynced {
			t.encodeAckNak()
		}
		if msg == nil {
			return
		}

		expected := uint8(t.nextSequence.Load())
		if msg.Sequence == MessageDest && expected != MessageDest {
			// host restarted its sequence numbering
			t.nextSequence.Store(MessageDest)
			expected = MessageDest
			if t.resetCallback != nil {
				t.resetCallback()
			}
		}
		if msg.Sequence == expected {
			t.nextSequence.Store(uint32(NextSequence(expected)))
			if err := t.dispatch(msg.Payload); err != nil {
				t.framer.desync = true
			}
		}
		t.encodeAckNak()
	}
}

func (t *Transport) dispatch(payload []byte) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("command handler panic: %v", r)
		}
	}()
	for len(payload) > 0 {
		cmdID, err := DecodeVLQUint(&payload)
		if err != nil {
			return err
		}
		if t.handler == nil {
			continue
		}
		if err := t.handler(uint16(cmdID), &payload); err != nil {
			return err
		}
	}
	return nil
}

func (t *Transport) encodeAckNak() {
	frame, _ := EncodeFrame(uint8(t.nextSequence.Load()), nil)
	t.output.Output(frame)
	if t.flushCallback != nil {
		t.flushCallback()
	}
}

// EncodeFrame writes one frame whose payload is produced by frameData.
func (t *Transport) EncodeFrame(frameData func(output OutputBuffer)) {
	cursor := t.output.CurPosition()
	t.output.Output([]byte{0, uint8(t.nextSequence.Load())})
	frameData(t.output)

	n := len(t.output.DataSince(cursor)) + MessageTrailerSize
	t.output.Update(cursor, uint8(n))
	crc := CRC16(t.output.DataSince(cursor))
	t.output.Output([]byte{uint8(crc >> 8), uint8(crc), MessageValueSync})
}

// SendCommand writes a response or unsolicited message.
func (t *Transport) SendCommand(cmdID uint16, args func(output OutputBuffer)) {
	t.EncodeFrame(func(output OutputBuffer) {
		EncodeVLQUint(output, uint32(cmdID))
		if args != nil {
			args(output)
		}
	})
}

// Reset forgets the sequence state.
func (t *Transport) Reset() {
	t.framer = framer{}
	t.nextSequence.Store(MessageDest)
	if t.resetCallback != nil {
		t.resetCallback()
	}
}

func (t *Transport) SetResetCallback(callback func()) { t.resetCallback = callback }

// SetFlushCallback installs a hook run after each ACK is written.
func (t *Transport) SetFlushCallback(callback func()) { t.flushCallback = callback }
