package remote

import (
	"errors"
	"fmt"
)

// ErrorKind classifies remote catalog failures for the caller. NotFound is
// expected (unmapped entity, triggers the create path). Transient failures
// are safe to retry at the reconciliation-step level. Fatal failures
// (malformed payload, missing required data) must not be retried.
type ErrorKind int

const (
	KindNotFound ErrorKind = iota
	KindTransient
	KindFatal
)

func (k ErrorKind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindTransient:
		return "transient"
	case KindFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Error is the error type returned by CatalogClient implementations.
type Error struct {
	Kind    ErrorKind
	Op      string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NotFoundError builds a NotFound remote error
func NotFoundError(op, message string) *Error {
	return &Error{Kind: KindNotFound, Op: op, Message: message}
}

// TransientError builds a retryable remote error
func TransientError(op, message string, err error) *Error {
	return &Error{Kind: KindTransient, Op: op, Message: message, Err: err}
}

// FatalError builds a non-retryable remote error
func FatalError(op, message string, err error) *Error {
	return &Error{Kind: KindFatal, Op: op, Message: message, Err: err}
}

func kindOf(err error) (ErrorKind, bool) {
	var re *Error
	if errors.As(err, &re) {
		return re.Kind, true
	}
	return 0, false
}

// IsNotFound reports whether err is a remote NotFound
func IsNotFound(err error) bool {
	k, ok := kindOf(err)
	return ok && k == KindNotFound
}

// IsTransient reports whether err is safe to retry
func IsTransient(err error) bool {
	k, ok := kindOf(err)
	return ok && k == KindTransient
}

// IsFatal reports whether err must not be retried
func IsFatal(err error) bool {
	k, ok := kindOf(err)
	return ok && k == KindFatal
}
