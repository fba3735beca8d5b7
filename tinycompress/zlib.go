// Package tinycompress writes zlib streams made of stored (uncompressed) DEFLATE
// blocks. Remote controllers publish their command dictionary in this form, and
// any zlib reader can inflate it.
package tinycompress

import (
	"encoding/binary"
	"hash/adler32"
	"io"
)

// MaxBlock is the largest payload a single stored block can carry.
const MaxBlock = 0xFFFF

var zlibHeader = []byte{0x78, 0x9C}

// Writer buffers everything written to it and emits the zlib stream on Close.
type Writer struct {
	out io.Writer
	buf []byte
}

// NewWriter returns a Writer emitting to w.
func NewWriter(w io.Writer) *Writer {
	return &Writer{out: w}
}

// Write implements io.Writer.
func (w *Writer) Write(p []byte) (int, error) {
	w.buf = append(w.buf, p...)
	return len(p), nil
}

// Close writes the header, the stored blocks and the Adler-32 trailer.
func (w *Writer) Close() error {
	if _, err := w.out.Write(zlibHeader); err != nil {
		return err
	}
	data := w.buf
	for {
		n := min(len(data), MaxBlock)
		final := n == len(data)
		if err := w.writeBlock(data[:n], final); err != nil {
			return err
		}
		data = data[n:]
		if final {
			break
		}
	}
	var trailer [4]byte
	binary.BigEndian.PutUint32(trailer[:], adler32.Checksum(w.buf))
	_, err := w.out.Write(trailer[:])
	return err
}

func (w *Writer) writeBlock(p []byte, final bool) error {
	var hdr [5]byte
	if final {
		hdr[0] = 0x01
	}
	binary.LittleEndian.PutUint16(hdr[1:], uint16(len(p)))
	binary.LittleEndian.PutUint16(hdr[3:], ^uint16(len(p)))
	if _, err := w.out.Write(hdr[:]); err != nil {
		return err
	}
	_, err := w.out.Write(p)
	return err
}

// Compress returns data wrapped in a zlib stream.
func Compress(data []byte) []byte {
	var out sliceWriter
	w := NewWriter(&out)
	w.buf = data
	_ = w.Close()
	return out
}

type sliceWriter []byte

func (s *sliceWriter) Write(p []byte) (int, error) {
	*s = append(*s, p...)
	return len(p), nil
}
