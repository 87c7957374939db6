package fuse

import (
	"errors"
	"fmt"
)

// Decode failures. All of them mean the byte stream from the device is
// desynchronized, so the owning session must treat them as fatal; the
// protocol offers no way to resynchronize mid-stream.
var (
	// ErrShortReadHeader is returned when a buffer is smaller than the fixed
	// request header.
	ErrShortReadHeader = errors.New("fuse: buffer shorter than request header")

	// ErrInsufficientData is returned when an opcode-specific argument runs
	// past the end of the message.
	ErrInsufficientData = errors.New("fuse: incomplete message")
)

// UnknownOpcodeError is returned when a request carries an opcode outside
// the known set for the session's layout.
type UnknownOpcodeError struct {
	Opcode uint32
}

func (e *UnknownOpcodeError) Error() string {
	return fmt.Sprintf("fuse: unknown opcode %d", e.Opcode)
}

// ShortReadError is returned when the header declares more bytes than the
// buffer holds. The opposite case, a declared length smaller than the
// buffer, is legal: receive buffers are over-allocated.
type ShortReadError struct {
	Declared uint32
	Actual   int
}

func (e *ShortReadError) Error() string {
	return fmt.Sprintf("fuse: header declares %d bytes but buffer holds %d", e.Declared, e.Actual)
}
