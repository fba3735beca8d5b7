package protocol

// InputBuffer is a consumable view of received bytes.
type InputBuffer interface {
	Data() []byte
	Available() int
	Pop(n int)
}

// OutputBuffer accumulates encoded bytes and allows patching earlier positions,
// which frame encoding needs for the length byte.
type OutputBuffer interface {
	Output(data []byte)
	CurPosition() int
	Update(pos int, val byte)
	DataSince(pos int) []byte
}

// SliceInputBuffer implements InputBuffer over a byte slice.
type SliceInputBuffer struct {
	data []byte
}

func NewSliceInputBuffer(data []byte) *SliceInputBuffer {
	return &SliceInputBuffer{data: data}
}

func (s *SliceInputBuffer) Data() []byte   { return s.data }
func (s *SliceInputBuffer) Available() int { return len(s.data) }

// Append adds received bytes after the unconsumed ones.
func (s *SliceInputBuffer) Append(p []byte) {
	s.data = append(s.data, p...)
}

func (s *SliceInputBuffer) Pop(n int) {
	n = min(n, len(s.data))
	s.data = s.data[n:]
	if len(s.data) == 0 {
		s.data = nil
	}
}

// ScratchOutput implements OutputBuffer on a fixed array. Writes past the end
// are truncated.
type ScratchOutput struct {
	buf [512]byte
	pos int
}

func NewScratchOutput() *ScratchOutput {
	return &ScratchOutput{}
}

func (s *ScratchOutput) Output(data []byte) {
	s.pos += copy(s.buf[s.pos:], data)
}

func (s *ScratchOutput) CurPosition() int { return s.pos }

func (s *ScratchOutput) Update(pos int, val byte) {
	if pos < s.pos {
		s.buf[pos] = val
	}
}

func (s *ScratchOutput) DataSince(pos int) []byte {
	if pos > s.pos {
		return nil
	}
	return s.buf[pos:s.pos]
}

// Result returns everything written since the last Reset.
func (s *ScratchOutput) Result() []byte { return s.buf[:s.pos] }

func (s *ScratchOutput) Reset() { s.pos = 0 }

// Overflowed reports whether the buffer is full and writes may have been dropped.
func (s *ScratchOutput) Overflowed() bool { return s.pos == len(s.buf) }
