// Package apperr defines the error kinds shared by every service in taskdesk.
//
// Services never signal "not found" or "bad credentials" through nil results.
// Each failure is an *Error carrying a Kind, and the HTTP layer maps the kind
// to a status code.
package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies an error for the caller
type Kind int

const (
	// KindInternal is an unexpected failure (store down, driver error)
	KindInternal Kind = iota
	// KindUnauthorized covers bad credentials, invalid or expired tokens
	// and a wrong current password
	KindUnauthorized
	// KindForbidden means the caller is authenticated but its role does not
	// allow the action
	KindForbidden
	// KindNotFound is an unknown id or file
	KindNotFound
	// KindConflict is a duplicate username
	KindConflict
	// KindValidation is a missing field, an invalid role or status value,
	// or an empty upload
	KindValidation
)

func (k Kind) String() string {
	switch k {
	case KindUnauthorized:
		return "unauthorized"
	case KindForbidden:
		return "forbidden"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindValidation:
		return "validation"
	default:
		return "internal"
	}
}

// Error is a classified application error
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil && e.Message != "" {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches another *Error by kind and message, so sentinel values declared
// with New work with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind && e.Message == t.Message
}

// New creates an error of the given kind
func New(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap classifies err with kind and a message
func Wrap(kind Kind, err error, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}

// Unauthorized creates an unauthorized error
func Unauthorized(format string, args ...interface{}) *Error {
	return New(KindUnauthorized, format, args...)
}

// Forbidden creates a forbidden error
func Forbidden(format string, args ...interface{}) *Error {
	return New(KindForbidden, format, args...)
}

// NotFound creates a not found error
func NotFound(format string, args ...interface{}) *Error {
	return New(KindNotFound, format, args...)
}

// Conflict creates a conflict error
func Conflict(format string, args ...interface{}) *Error {
	return New(KindConflict, format, args...)
}

// Validation creates a validation error
func Validation(format string, args ...interface{}) *Error {
	return New(KindValidation, format, args...)
}

// Internal wraps an unexpected error
func Internal(err error, format string, args ...interface{}) *Error {
	return Wrap(KindInternal, err, format, args...)
}

// KindOf returns the kind of the first *Error in err's chain.
// Unclassified errors are internal.
func KindOf(err error) Kind {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindInternal
}

// Is reports whether err carries the given kind
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// Message returns the client-safe message for err. Internal errors never
// expose their cause.
func Message(err error) string {
	var appErr *Error
	if !errors.As(err, &appErr) || appErr.Kind == KindInternal {
		return "internal server error"
	}
	if appErr.Message != "" {
		return appErr.Message
	}
	return appErr.Error()
}
