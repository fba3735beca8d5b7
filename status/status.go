// Package status defines the signed 16-bit result codes shared by every flexhal layer.
//
// Non-negative codes report success (OK) or informational progress (Pending, Done).
// Negative codes are failures. A Code is itself an error, so callers can match failures
// with errors.Is(err, status.NotFound) no matter how deeply they were wrapped.
package status

import (
	"errors"
	"fmt"
)

// Code is a 16-bit signed result code.
type Code int16

const (
	OK      Code = 0
	Pending Code = 1
	Done    Code = 2

	Error       Code = -1
	Timeout     Code = -2
	Busy        Code = -3
	Param       Code = -4
	NotFound    Code = -5
	NoMemory    Code = -6
	IO          Code = -7
	Perm        Code = -8
	Unsupported Code = -9
)

var codeNames = map[Code]string{
	OK:          "ok",
	Pending:     "pending",
	Done:        "done",
	Error:       "error",
	Timeout:     "timeout",
	Busy:        "busy",
	Param:       "invalid parameter",
	NotFound:    "not found",
	NoMemory:    "out of memory",
	IO:          "i/o error",
	Perm:        "permission denied",
	Unsupported: "unsupported",
}

// IsError reports whether the raw code c denotes a failure.
func IsError(c int16) bool {
	return c < 0
}

// IsOK reports whether the raw code c denotes success or informational progress.
func IsOK(c int16) bool {
	return c >= 0
}

// ToError converts a Code to its raw integer value.
func ToError(c Code) int16 {
	return int16(c)
}

// IsError reports whether c is a failure code.
func (c Code) IsError() bool { return IsError(int16(c)) }

// IsOK reports whether c is a success or informational code.
func (c Code) IsOK() bool { return IsOK(int16(c)) }

func (c Code) String() string {
	if name, ok := codeNames[c]; ok {
		return name
	}
	if c < 0 {
		return fmt.Sprintf("error(%d)", int16(c))
	}
	return fmt.Sprintf("status(%d)", int16(c))
}

// Error implements the error interface so a Code can be returned and matched directly.
func (c Code) Error() string {
	return c.String()
}

// CodeError is a failure carrying a Code, the operation that failed and an optional cause.
type CodeError struct {
	Code Code
	Op   string
	Err  error
}

func (e *CodeError) Error() string {
	msg := e.Code.String()
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *CodeError) Unwrap() error {
	return e.Err
}

// Is matches a bare Code target against the error's code.
func (e *CodeError) Is(target error) bool {
	c, ok := target.(Code)
	return ok && c == e.Code
}

// Errorf builds a *CodeError with a formatted operation description.
func Errorf(code Code, format string, args ...any) error {
	return &CodeError{Code: code, Op: fmt.Sprintf(format, args...)}
}

// Wrap attaches code and op to err. A nil err yields nil.
func Wrap(code Code, err error, op string) error {
	if err == nil {
		return nil
	}
	return &CodeError{Code: code, Op: op, Err: err}
}

// CodeOf extracts the Code carried by err. Nil maps to OK and errors without a
// code map to Error.
func CodeOf(err error) Code {
	if err == nil {
		return OK
	}
	var se *CodeError
	if errors.As(err, &se) {
		return se.Code
	}
	var c Code
	if errors.As(err, &c) {
		return c
	}
	return Error
}

// HasCode reports whether err carries an explicit Code anywhere in its chain.
func HasCode(err error) bool {
	var se *CodeError
	if errors.As(err, &se) {
		return true
	}
	var c Code
	return errors.As(err, &c)
}
