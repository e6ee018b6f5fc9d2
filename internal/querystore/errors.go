package querystore

import (
	"errors"
	"fmt"
)

// DecodeError reports a persisted definition that is not structurally
// valid: bad JSON, unknown fields or type tags, missing parameters, or an
// unsupported format version.
type DecodeError struct {
	// Code identifies the error category.
	Code ErrorCode

	// Path locates the offending element, e.g. "graphs[0].nodes[2].on".
	Path string

	// Message is a human-readable description.
	Message string

	// Err is the underlying cause, if any.
	Err error
}

// ErrorCode categorizes decode errors.
type ErrorCode string

// ErrCodeMalformedDefinition indicates structurally invalid input.
const ErrCodeMalformedDefinition ErrorCode = "MALFORMED_DEFINITION"

func (e *DecodeError) Error() string {
	msg := e.Message
	if e.Err != nil {
		if msg == "" {
			msg = e.Err.Error()
		} else {
			msg = fmt.Sprintf("%s: %v", msg, e.Err)
		}
	}
	if e.Path != "" {
		return fmt.Sprintf("%s: %s: %s", e.Code, e.Path, msg)
	}
	return fmt.Sprintf("%s: %s", e.Code, msg)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// IsMalformedDefinition returns true if err is a MALFORMED_DEFINITION
// decode error. Uses errors.As to handle wrapped errors.
func IsMalformedDefinition(err error) bool {
	var de *DecodeError
	if errors.As(err, &de) {
		return de.Code == ErrCodeMalformedDefinition
	}
	return false
}

func malformed(path, format string, args ...any) *DecodeError {
	return &DecodeError{Code: ErrCodeMalformedDefinition, Path: path, Message: fmt.Sprintf(format, args...)}
}

func malformedErr(path string, err error) *DecodeError {
	return &DecodeError{Code: ErrCodeMalformedDefinition, Path: path, Err: err}
}
