package protocol

import (
	"errors"
	"fmt"
)

// Decode failure kinds. Use errors.Is on the error returned by Decode.
var (
	ErrMalformed      = errors.New("malformed message")
	ErrUnknownOpcode  = errors.New("unknown opcode")
	ErrSchemaMismatch = errors.New("payload does not match opcode")
)

// DecodeError describes why a frame could not be decoded.
type DecodeError struct {
	Kind  error  // ErrMalformed, ErrUnknownOpcode or ErrSchemaMismatch
	Op    string // raw opcode as received, empty if absent
	Field string // offending payload field, if known
	Err   error  // underlying cause, may be nil
}

func (e *DecodeError) Error() string {
	msg := "protocol: " + e.Kind.Error()
	if e.Op != "" {
		msg += fmt.Sprintf(" (op %s)", e.Op)
	}
	if e.Field != "" {
		msg += fmt.Sprintf(": field %q", e.Field)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *DecodeError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}
