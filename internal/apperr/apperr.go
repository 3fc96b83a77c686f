// Package apperr defines the typed failures returned by the document services.
package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies a failure for callers
type Kind string

const (
	KindNotFound          Kind = "not_found"
	KindForbidden         Kind = "forbidden"
	KindUnauthorized      Kind = "unauthorized"
	KindInvalidInput      Kind = "invalid_input"
	KindExtractionFailure Kind = "extraction_failure"
	KindConflict          Kind = "conflict"
	KindStorageFailure    Kind = "storage_failure"
)

// Error is a failure with a kind and a caller-safe message
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches on kind so errors.Is(err, &Error{Kind: KindConflict}) works.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && (t.Message == "" || t.Message == e.Message)
}

func newf(kind Kind, err error, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}

func NotFound(format string, args ...interface{}) *Error {
	return newf(KindNotFound, nil, format, args...)
}

func Forbidden(format string, args ...interface{}) *Error {
	return newf(KindForbidden, nil, format, args...)
}

func Unauthorized(format string, args ...interface{}) *Error {
	return newf(KindUnauthorized, nil, format, args...)
}

func InvalidInput(format string, args ...interface{}) *Error {
	return newf(KindInvalidInput, nil, format, args...)
}

func Conflict(format string, args ...interface{}) *Error {
	return newf(KindConflict, nil, format, args...)
}

// Extraction wraps an engine failure; the cause stays on the document, not in Message.
func Extraction(err error) *Error {
	return newf(KindExtractionFailure, err, "document could not be processed")
}

// Storage wraps a blob or database I/O failure.
func Storage(err error, format string, args ...interface{}) *Error {
	return newf(KindStorageFailure, err, format, args...)
}

// KindOf returns the kind of the first *Error in err's chain, or "" if there is none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}
