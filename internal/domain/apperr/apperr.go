package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies a failure for callers deciding status codes and retry policy
type Kind string

const (
	// KindValidation marks malformed input rejected before any I/O
	KindValidation Kind = "validation"
	// KindResolution marks a referenced treasury or token that does not exist
	KindResolution Kind = "resolution"
	// KindTransport marks a failed RPC or store call
	KindTransport Kind = "transport"
	// KindDecode marks a log whose payload does not fit its classified event
	KindDecode Kind = "decode"
)

// Error carries a Kind alongside the wrapped cause
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return e.Message + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Validation returns a KindValidation error
func Validation(format string, args ...interface{}) error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

// ErrNotFound is wrapped by resolution errors for ids that do not exist
var ErrNotFound = errors.New("not found")

// Resolution returns a KindResolution error
func Resolution(format string, args ...interface{}) error {
	return &Error{Kind: KindResolution, Message: fmt.Sprintf(format, args...)}
}

// NotFound returns a KindResolution error wrapping ErrNotFound
func NotFound(format string, args ...interface{}) error {
	return &Error{Kind: KindResolution, Message: fmt.Sprintf(format, args...), Err: ErrNotFound}
}

// Transport wraps err as a KindTransport error
func Transport(err error, format string, args ...interface{}) error {
	return &Error{Kind: KindTransport, Message: fmt.Sprintf(format, args...), Err: err}
}

// Decode returns a KindDecode error
func Decode(format string, args ...interface{}) error {
	return &Error{Kind: KindDecode, Message: fmt.Sprintf(format, args...)}
}

// KindOf returns the Kind of the first *Error in err's chain, or "" if none
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// Is reports whether err carries the given kind
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// Cause returns the innermost wrapped error message for user-facing details
func Cause(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Err != nil {
		return e.Err.Error()
	}
	return err.Error()
}
