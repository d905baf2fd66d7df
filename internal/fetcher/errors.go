package fetcher

import (
	"errors"
	"fmt"
)

// Failure kinds. Callers match them with errors.Is.
var (
	ErrConfiguration   = errors.New("missing or invalid api configuration")
	ErrInvalidRequest  = errors.New("invalid api request")
	ErrTransport       = errors.New("network request failed")
	ErrInvalidResponse = errors.New("invalid server response")
	ErrDecode          = errors.New("failed to parse server response")
)

// Error describes a failed fetch. It matches both its Kind and its cause.
type Error struct {
	Kind   error
	Op     string
	Status int
	Err    error
}

func (e *Error) Error() string {
	msg := e.Kind.Error()
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Status != 0 {
		msg = fmt.Sprintf("%s (status %d)", msg, e.Status)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func newError(kind error, op string, cause error) *Error {
	return &Error{Kind: kind, Op: op, Err: cause}
}
