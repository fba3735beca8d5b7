package protocol

import (
	"bytes"
	"testing"
)

func TestVLQWireFormat(t *testing.T) {
	tests := []struct {
		v    int32
		wire []byte
	}{
		{0, []byte{0x00}},
		{1, []byte{0x01}},
		{95, []byte{0x5f}},
		{96, []byte{0x80, 0x60}},
		{-1, []byte{0x7f}},
		{-32, []byte{0x60}},
		{-33, []byte{0xff, 0x5f}},
		{1000, []byte{0x87, 0x68}},
		{-1000, []byte{0xf8, 0x18}},
		{12000000, []byte{0x85, 0xdc, 0xb6, 0x00}},
		{-2147483648, []byte{0xf8, 0x80, 0x80, 0x80, 0x00}},
		{2147483647, []byte{0x87, 0xff, 0xff, 0xff, 0x7f}},
	}
	for _, tt := range tests {
		output := NewScratchOutput()
		EncodeVLQInt(output, tt.v)
		if got := output.Result(); !bytes.Equal(got, tt.wire) {
			t.Errorf("EncodeVLQInt(%d) = % x, want % x", tt.v, got, tt.wire)
		}

		data := tt.wire
		v, err := DecodeVLQInt(&data)
		if err != nil || v != tt.v {
			t.Errorf("DecodeVLQInt(% x) = %d, %v, want %d", tt.wire, v, err, tt.v)
		}
		if len(data) != 0 {
			t.Errorf("DecodeVLQInt(% x) left %d bytes", tt.wire, len(data))
		}
	}
}

func TestVLQUintWraps(t *testing.T) {
	for _, v := range []uint32{0, 127, 128, 65535, 0xFFFFFFFF} {
		output := NewScratchOutput()
		EncodeVLQUint(output, v)
		data := output.Result()
		got, err := DecodeVLQUint(&data)
		if err != nil || got != v {
			t.Errorf("uint %d decoded as %d, %v", v, got, err)
		}
	}
}

func TestVLQSequence(t *testing.T) {
	output := NewScratchOutput()
	EncodeVLQUint(output, 7)
	EncodeVLQBytes(output, []byte{0xFF, 0x00, 0x7E})
	EncodeVLQString(output, "identify")
	EncodeVLQInt(output, -5)

	data := output.Result()
	if n, _ := DecodeVLQUint(&data); n != 7 {
		t.Errorf("first value = %d, want 7", n)
	}
	if b, err := DecodeVLQBytes(&data); err != nil || !bytes.Equal(b, []byte{0xFF, 0x00, 0x7E}) {
		t.Errorf("bytes = % x, %v", b, err)
	}
	if s, err := DecodeVLQString(&data); err != nil || s != "identify" {
		t.Errorf("string = %q, %v", s, err)
	}
	if v, _ := DecodeVLQInt(&data); v != -5 {
		t.Errorf("last value = %d, want -5", v)
	}
	if len(data) != 0 {
		t.Errorf("%d bytes left over", len(data))
	}
}

func TestVLQErrors(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want error
	}{
		{"empty", nil, ErrBufferTooSmall},
		{"truncated", []byte{0x80}, ErrBufferTooSmall},
		{"too long", []byte{0x81, 0x81, 0x81, 0x81, 0x81, 0x01}, ErrInvalidVLQ},
	}
	for _, tt := range tests {
		data := tt.data
		if _, err := DecodeVLQInt(&data); err != tt.want {
			t.Errorf("%s: got %v, want %v", tt.name, err, tt.want)
		}
	}

	data := []byte{0x05, 'a', 'b'}
	if _, err := DecodeVLQBytes(&data); err != ErrBufferTooSmall {
		t.Errorf("short byte string: got %v, want %v", err, ErrBufferTooSmall)
	}
}
