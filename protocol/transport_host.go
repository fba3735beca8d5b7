package protocol

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"sync"
	"time"

	"flexhal/logger"
	"flexhal/status"
)

// DefaultTimeout bounds a command's wait for its ACK.
const DefaultTimeout = 2 * time.Second

// ResponseHandler observes every response frame received from the controller.
type ResponseHandler func(cmdID uint16, data *[]byte) error

// HostTransport is the host side of the protocol. A background reader splits
// incoming bytes into ACKs and responses; commands are sent one at a time and
// each waits for the ACK that advances the sequence.
type HostTransport struct {
	port io.ReadWriteCloser
	log  *logger.Logger

	sendMu     sync.Mutex
	currentSeq uint8

	input  SliceInputBuffer
	framer framer

	ackChan      chan *Message
	responseChan chan *Message

	handlerMu       sync.RWMutex
	responseHandler ResponseHandler

	stopOnce sync.Once
	stopChan chan struct{}
	doneChan chan struct{}
}

// NewHostTransport starts reading from port.
func NewHostTransport(port io.ReadWriteCloser, log *logger.Logger) *HostTransport {
	t := &HostTransport{
		port:         port,
		log:          log,
		currentSeq:   MessageDest,
		ackChan:      make(chan *Message, 4),
		responseChan: make(chan *Message, 16),
		stopChan:     make(chan struct{}),
		doneChan:     make(chan struct{}),
	}
	go t.readLoop()
	return t
}

// SendCommand sends a command and waits up to DefaultTimeout for its ACK.
func (t *HostTransport) SendCommand(cmdID uint16, args func(output OutputBuffer)) error {
	return t.SendCommandWithTimeout(cmdID, args, DefaultTimeout)
}

// SendCommandWithTimeout sends a command and waits up to timeout for its ACK.
func (t *HostTransport) SendCommandWithTimeout(cmdID uint16, args func(output OutputBuffer), timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return t.SendCommandContext(ctx, cmdID, args)
}

// SendCommandContext sends a command and waits for its ACK until ctx is done.
func (t *HostTransport) SendCommandContext(ctx context.Context, cmdID uint16, args func(output OutputBuffer)) error {
	payload := NewScratchOutput()
	EncodeVLQUint(payload, uint32(cmdID))
	if args != nil {
		args(payload)
	}

	t.sendMu.Lock()
	defer t.sendMu.Unlock()

	frame, err := EncodeFrame(t.currentSeq, payload.Result())
	if err != nil {
		return status.Wrap(status.Param, err, fmt.Sprintf("command %d", cmdID))
	}
	t.drainAcks()
	t.log.Verbosef("protocol", "send seq=%#02x % x", t.currentSeq, frame)
	if err := t.write(frame); err != nil {
		return status.Wrap(status.IO, err, "write frame")
	}
	return t.waitForAck(ctx)
}

func (t *HostTransport) write(frame []byte) error {
	n, err := t.port.Write(frame)
	if err != nil {
		return err
	}
	if n != len(frame) {
		return fmt.Errorf("incomplete write: %d/%d bytes", n, len(frame))
	}
	return nil
}

func (t *HostTransport) drainAcks() {
	for {
		select {
		case <-t.ackChan:
		default:
			return
		}
	}
}

// waitForAck expects the controller to acknowledge with the sequence following
// the one just sent. Must be called with sendMu held.
func (t *HostTransport) waitForAck(ctx context.Context) error {
	want := NextSequence(t.currentSeq)
	select {
	case ack := <-t.ackChan:
		if ack.Sequence != want {
			// adopt the controller's expectation so the next command lines up
			got := ack.Sequence
			t.currentSeq = got
			return status.Errorf(status.IO, "nak: expected sequence %#02x, controller wants %#02x", want, got)
		}
		t.currentSeq = want
		return nil
	case <-ctx.Done():
		return status.Wrap(status.Timeout, ctx.Err(), "wait for ack")
	case <-t.stopChan:
		return status.Errorf(status.IO, "transport stopped")
	}
}

// ReceiveResponse returns the next response frame within timeout.
func (t *HostTransport) ReceiveResponse(timeout time.Duration) (*Message, error) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return t.ReceiveContext(ctx)
}

// ReceiveContext returns the next response frame or fails when ctx is done.
func (t *HostTransport) ReceiveContext(ctx context.Context) (*Message, error) {
	select {
	case resp := <-t.responseChan:
		return resp, nil
	case <-ctx.Done():
		return nil, status.Wrap(status.Timeout, ctx.Err(), "wait for response")
	case <-t.stopChan:
		return nil, status.Errorf(status.IO, "transport stopped")
	}
}

// DrainResponses discards queued responses.
func (t *HostTransport) DrainResponses() {
	for {
		select {
		case <-t.responseChan:
		default:
			return
		}
	}
}

// SetResponseHandler installs a callback run for every response frame.
func (t *HostTransport) SetResponseHandler(handler ResponseHandler) {
	t.handlerMu.Lock()
	t.responseHandler = handler
	t.handlerMu.Unlock()
}

func (t *HostTransport) readLoop() {
	defer close(t.doneChan)
	buf := make([]byte, 256)
	for {
		n, err := t.port.Read(buf)
		if n > 0 {
			t.input.Append(buf[:n])
			t.processMessages()
		}
		if err == nil {
			continue
		}
		if t.stopped() || isClosed(err) {
			return
		}
		// serial reads report io.EOF when the read timeout expires without data
		if !errors.Is(err, io.EOF) {
			t.log.Debugf("protocol", "read: %v", err)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func isClosed(err error) bool {
	return errors.Is(err, io.ErrClosedPipe) || errors.Is(err, os.ErrClosed) || errors.Is(err, net.ErrClosed)
}

func (t *HostTransport) stopped() bool {
	select {
	case <-t.stopChan:
		return true
	default:
		return false
	}
}

func (t *HostTransport) processMessages() {
	for {
		msg, consumed, _ := t.framer.next(t.input.Data())
		t.input.Pop(consumed)
		if msg == nil {
			return
		}
		t.log.Verbosef("protocol", "recv seq=%#02x % x", msg.Sequence, msg.Payload)
		t.dispatchMessage(msg)
	}
}

func (t *HostTransport) dispatchMessage(msg *Message) {
	if msg.IsAck() {
		select {
		case t.ackChan <- msg:
		default:
		}
		return
	}

	t.handlerMu.RLock()
	handler := t.responseHandler
	t.handlerMu.RUnlock()
	if handler != nil {
		payload := msg.Payload
		if cmdID, err := DecodeVLQUint(&payload); err == nil {
			if err := handler(uint16(cmdID), &payload); err != nil {
				t.log.Debugf("protocol", "response %d: handler: %v", cmdID, err)
			}
		}
	}

	select {
	case t.responseChan <- msg:
	default:
		// full: drop the oldest response
		select {
		case <-t.responseChan:
		default:
		}
		select {
		case t.responseChan <- msg:
		default:
		}
	}
}

// Close stops the reader and closes the port.
func (t *HostTransport) Close() error {
	var err error
	t.stopOnce.Do(func() {
		close(t.stopChan)
		err = t.port.Close()
		<-t.doneChan
	})
	return err
}

// Reset restarts sequence numbering and drops buffered input.
func (t *HostTransport) Reset() {
	t.sendMu.Lock()
	t.currentSeq = MessageDest
	t.sendMu.Unlock()
	t.drainAcks()
	t.DrainResponses()
}

// CurrentSequence returns the sequence byte the next command will carry.
func (t *HostTransport) CurrentSequence() uint8 {
	t.sendMu.Lock()
	defer t.sendMu.Unlock()
	return t.currentSeq
}
