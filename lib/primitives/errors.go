package primitives

import (
	"fmt"
)

// --------------------------------------------------------------------------
// Custom Error Type
// --------------------------------------------------------------------------

// Error is the error type returned by all primitives. It wraps a return code
// (of type RetCode) and a human readable message.
//
// Two errors are considered equal by errors.Is if their codes match, so the
// sentinel values below can be used to classify errors, even if they were
// reconstructed on the client side of an RPC connection.
type Error struct {
	Code RetCode // The return code
	Msg  string  // The error message
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Msg)
}

// Is reports whether target is an *Error with the same code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

// NewError creates a new Error with the given code and message.
func NewError(code RetCode, msg string) *Error {
	return &Error{
		Code: code,
		Msg:  msg,
	}
}

// newErrorf is NewError with formatting
func newErrorf(code RetCode, format string, args ...interface{}) *Error {
	return NewError(code, fmt.Sprintf(format, args...))
}

// --------------------------------------------------------------------------
// Sentinel Errors (use with errors.Is)
// --------------------------------------------------------------------------

var (
	ErrInvalidArgument = NewError(RetCInvalidArgument, "invalid argument")
	ErrOutOfRange      = NewError(RetCOutOfRange, "out of range")
	ErrNotOwner        = NewError(RetCNotOwner, "not owner")
	ErrClosed          = NewError(RetCClosed, "connection closed")
	ErrNotBound        = NewError(RetCNotBound, "not bound")
)

// --------------------------------------------------------------------------
// Return Codes
// --------------------------------------------------------------------------

type RetCode uint8

const (
	RetCSuccess         RetCode = iota // 0: Operation executed successfully.
	RetCInternalError                  // 1: Operation failed due to an internal error.
	RetCInvalidArgument                // 2: A parameter is invalid (e.g. a capacity < 1).
	RetCOutOfRange                     // 3: A count exceeds what the caller holds or the primitive allows.
	RetCNotOwner                       // 4: Unlock of a lock the caller does not hold.
	RetCClosed                         // 5: The connection of the caller is gone.
	RetCNotBound                       // 6: The caller never bound (or already erased) the name.
)

// String returns the string representation of a RetCode.
func (c RetCode) String() string {
	switch c {
	case RetCSuccess:
		return "Success"
	case RetCInternalError:
		return "InternalError"
	case RetCInvalidArgument:
		return "InvalidArgument"
	case RetCOutOfRange:
		return "OutOfRange"
	case RetCNotOwner:
		return "NotOwner"
	case RetCClosed:
		return "Closed"
	case RetCNotBound:
		return "NotBound"
	default:
		return "Unknown"
	}
}
