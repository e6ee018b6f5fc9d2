package graph

import (
	"errors"
	"fmt"
)

// BuildError reports a construction-time failure from the Builder or from
// rebuilding a stored definition.
type BuildError struct {
	// Code identifies the error category.
	Code ErrorCode

	// Alias is the node alias being added or referenced, when known.
	Alias string

	// Message is a human-readable description.
	Message string

	// Err is the underlying cause, if any.
	Err error
}

// ErrorCode categorizes build errors.
type ErrorCode string

const (
	// ErrCodeUnknownAlias indicates a reference to an alias, source or
	// column that does not exist in scope.
	ErrCodeUnknownAlias ErrorCode = "UNKNOWN_ALIAS"

	// ErrCodeDuplicateAlias indicates a second node with an existing alias.
	ErrCodeDuplicateAlias ErrorCode = "DUPLICATE_ALIAS"

	// ErrCodeInvalidGraph indicates a structural or schema violation: a
	// cycle, wrong arity, incompatible union inputs, bad transformation
	// rules and similar.
	ErrCodeInvalidGraph ErrorCode = "INVALID_GRAPH"
)

// Error implements the error interface.
func (e *BuildError) Error() string {
	msg := e.Message
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	if e.Alias != "" {
		return fmt.Sprintf("%s: %s (alias=%s)", e.Code, msg, e.Alias)
	}
	return fmt.Sprintf("%s: %s", e.Code, msg)
}

func (e *BuildError) Unwrap() error {
	return e.Err
}

func unknownAlias(alias, format string, args ...any) *BuildError {
	return &BuildError{Code: ErrCodeUnknownAlias, Alias: alias, Message: fmt.Sprintf(format, args...)}
}

func duplicateAlias(alias string) *BuildError {
	return &BuildError{Code: ErrCodeDuplicateAlias, Alias: alias, Message: "alias already defined"}
}

func invalidGraph(alias, format string, args ...any) *BuildError {
	return &BuildError{Code: ErrCodeInvalidGraph, Alias: alias, Message: fmt.Sprintf(format, args...)}
}

// InvalidGraph returns an INVALID_GRAPH error. Decoders use it for
// violations they detect before rebuilding, such as cycles.
func InvalidGraph(alias, format string, args ...any) *BuildError {
	return invalidGraph(alias, format, args...)
}

// IsUnknownAlias returns true if err is an UNKNOWN_ALIAS build error.
// Uses errors.As to handle wrapped errors.
func IsUnknownAlias(err error) bool {
	return hasCode(err, ErrCodeUnknownAlias)
}

// IsDuplicateAlias returns true if err is a DUPLICATE_ALIAS build error.
func IsDuplicateAlias(err error) bool {
	return hasCode(err, ErrCodeDuplicateAlias)
}

// IsInvalidGraph returns true if err is an INVALID_GRAPH build error.
func IsInvalidGraph(err error) bool {
	return hasCode(err, ErrCodeInvalidGraph)
}

func hasCode(err error, code ErrorCode) bool {
	var be *BuildError
	if errors.As(err, &be) {
		return be.Code == code
	}
	return false
}
