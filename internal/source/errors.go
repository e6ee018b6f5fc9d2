package source

import (
	"errors"
	"fmt"
)

// ErrorCode categorizes adapter failures.
type ErrorCode string

const (
	// ErrCodeSourceUnavailable indicates the underlying system cannot be reached.
	ErrCodeSourceUnavailable ErrorCode = "SOURCE_UNAVAILABLE"

	// ErrCodeSchemaMismatch indicates a requested column does not exist or a
	// value does not fit the declared column type.
	ErrCodeSchemaMismatch ErrorCode = "SCHEMA_MISMATCH"
)

// Error is returned by adapters and the registry.
type Error struct {
	// Code identifies the error category.
	Code ErrorCode

	// Source names the adapter or registered source.
	Source string

	// Message is a human-readable description.
	Message string

	// Err is the underlying cause, if any.
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	if e.Source != "" {
		msg = fmt.Sprintf("%s: %s (source=%s)", e.Code, e.Message, e.Source)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// NewUnavailable wraps err as a SOURCE_UNAVAILABLE error.
func NewUnavailable(source string, err error) *Error {
	return &Error{
		Code:    ErrCodeSourceUnavailable,
		Source:  source,
		Message: "source unavailable",
		Err:     err,
	}
}

// NewSchemaMismatch creates a SCHEMA_MISMATCH error.
func NewSchemaMismatch(source, format string, args ...any) *Error {
	return &Error{
		Code:    ErrCodeSchemaMismatch,
		Source:  source,
		Message: fmt.Sprintf(format, args...),
	}
}

// IsSourceUnavailable returns true if the error is a SOURCE_UNAVAILABLE error.
// Uses errors.As to handle wrapped errors.
func IsSourceUnavailable(err error) bool {
	var se *Error
	if errors.As(err, &se) {
		return se.Code == ErrCodeSourceUnavailable
	}
	return false
}

// IsSchemaMismatch returns true if the error is a SCHEMA_MISMATCH error.
// Uses errors.As to handle wrapped errors.
func IsSchemaMismatch(err error) bool {
	var se *Error
	if errors.As(err, &se) {
		return se.Code == ErrCodeSchemaMismatch
	}
	return false
}
