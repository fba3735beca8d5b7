package status

import (
	"errors"
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsErrorIsOKPartition(t *testing.T) {
	for v := math.MinInt16; v <= math.MaxInt16; v++ {
		c := int16(v)
		if IsError(c) == IsOK(c) {
			t.Fatalf("code %d: IsError=%v IsOK=%v", c, IsError(c), IsOK(c))
		}
		if IsError(c) != (c < 0) {
			t.Fatalf("code %d: IsError=%v", c, IsError(c))
		}
	}
}

func TestCodeValues(t *testing.T) {
	cases := map[Code]int16{
		OK: 0, Pending: 1, Done: 2,
		Error: -1, Timeout: -2, Busy: -3, Param: -4, NotFound: -5,
		NoMemory: -6, IO: -7, Perm: -8, Unsupported: -9,
	}
	for code, want := range cases {
		assert.Equal(t, want, ToError(code), code.String())
	}
	assert.True(t, IsError(ToError(Timeout)))
	assert.True(t, Pending.IsOK())
	assert.True(t, Unsupported.IsError())
}

func TestCodeString(t *testing.T) {
	assert.Equal(t, "not found", NotFound.String())
	assert.Equal(t, "error(-42)", Code(-42).String())
	assert.Equal(t, "status(7)", Code(7).String())
}

func TestErrorMatching(t *testing.T) {
	cause := errors.New("bus nak")
	err := fmt.Errorf("configure pin 3: %w", Wrap(IO, cause, "i2c write"))

	require.Error(t, err)
	assert.ErrorIs(t, err, IO)
	assert.ErrorIs(t, err, cause)
	assert.NotErrorIs(t, err, Param)
	assert.Equal(t, IO, CodeOf(err))
	assert.Contains(t, err.Error(), "i2c write: i/o error: bus nak")
}

func TestCodeOf(t *testing.T) {
	assert.Equal(t, OK, CodeOf(nil))
	assert.Equal(t, Error, CodeOf(errors.New("plain")))
	assert.Equal(t, NotFound, CodeOf(NotFound))
	assert.Equal(t, Unsupported, CodeOf(fmt.Errorf("wrapped: %w", Unsupported)))
	assert.Equal(t, Param, CodeOf(Errorf(Param, "pin %d", 4)))

	assert.False(t, HasCode(errors.New("plain")))
	assert.True(t, HasCode(fmt.Errorf("x: %w", Busy)))
}

func TestWrapNil(t *testing.T) {
	assert.NoError(t, Wrap(IO, nil, "noop"))
}

func TestCodeErrorFields(t *testing.T) {
	err := fmt.Errorf("port 1: %w", Errorf(NotFound, "pin %d", 9))

	var ce *CodeError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, NotFound, ce.Code)
	assert.Equal(t, "pin 9", ce.Op)
	assert.NoError(t, ce.Unwrap())
	assert.Equal(t, "port 1: pin 9: not found", err.Error())
	assert.Equal(t, Error, CodeOf(errors.New("foreign")), "the generic failure code stays named Error")
}
