package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/roach88/fedq/internal/source"
)

// RuntimeError represents a failure during graph execution.
//
// Runtime errors include:
//   - Source failures: the adapter could not be reached or rejected the
//     request (wraps a *source.Error)
//   - Join type mismatch: join operands cannot be compared
//   - Union type mismatch: a value does not convert to the first input's type
//   - Cancellation: the request context ended (wraps ctx.Err())
//
// Every RuntimeError raised while evaluating a node names that node's alias.
type RuntimeError struct {
	// Code identifies the error category.
	Code ErrorCode

	// Alias is the node being evaluated when the error occurred.
	Alias string

	// Message is a human-readable description.
	Message string

	// Err is the underlying cause, if any.
	Err error
}

// ErrorCode categorizes runtime errors.
type ErrorCode string

const (
	// ErrCodeSourceUnavailable indicates the adapter's system could not be
	// reached.
	ErrCodeSourceUnavailable ErrorCode = ErrorCode(source.ErrCodeSourceUnavailable)

	// ErrCodeSchemaMismatch indicates requested columns do not exist or
	// fetched values do not fit the declared schema.
	ErrCodeSchemaMismatch ErrorCode = ErrorCode(source.ErrCodeSchemaMismatch)

	// ErrCodeIncompatibleJoinTypes indicates join operands of types that
	// cannot be compared.
	ErrCodeIncompatibleJoinTypes ErrorCode = "INCOMPATIBLE_JOIN_TYPES"

	// ErrCodeUnionTypeMismatch indicates a union value that does not convert
	// to the first input's declared type.
	ErrCodeUnionTypeMismatch ErrorCode = "UNION_TYPE_MISMATCH"

	// ErrCodeFilterTypeMismatch indicates a select filter comparing values
	// that cannot be compared.
	ErrCodeFilterTypeMismatch ErrorCode = "FILTER_TYPE_MISMATCH"

	// ErrCodeUnknownAlias indicates the requested definition, graph or
	// node does not exist.
	ErrCodeUnknownAlias ErrorCode = "UNKNOWN_ALIAS"

	// ErrCodeCancelled indicates the request context ended before
	// execution finished.
	ErrCodeCancelled ErrorCode = "CANCELLED"
)

// Error implements the error interface.
func (e *RuntimeError) Error() string {
	msg := e.Message
	if e.Err != nil {
		if msg == "" {
			msg = e.Err.Error()
		} else {
			msg = fmt.Sprintf("%s: %v", msg, e.Err)
		}
	}
	if e.Alias != "" {
		return fmt.Sprintf("%s: %s (alias=%s)", e.Code, msg, e.Alias)
	}
	return fmt.Sprintf("%s: %s", e.Code, msg)
}

func (e *RuntimeError) Unwrap() error {
	return e.Err
}

// IsIncompatibleJoinTypes returns true if err is an INCOMPATIBLE_JOIN_TYPES
// runtime error. Uses errors.As to handle wrapped errors.
func IsIncompatibleJoinTypes(err error) bool {
	return hasCode(err, ErrCodeIncompatibleJoinTypes)
}

// IsUnionTypeMismatch returns true if err is a UNION_TYPE_MISMATCH runtime
// error.
func IsUnionTypeMismatch(err error) bool {
	return hasCode(err, ErrCodeUnionTypeMismatch)
}

// IsCancelled returns true if execution stopped because its context ended.
func IsCancelled(err error) bool {
	return hasCode(err, ErrCodeCancelled)
}

// IsUnknownAlias returns true if the requested definition or node does
// not exist.
func IsUnknownAlias(err error) bool {
	return hasCode(err, ErrCodeUnknownAlias)
}

func hasCode(err error, code ErrorCode) bool {
	var re *RuntimeError
	if errors.As(err, &re) {
		return re.Code == code
	}
	return false
}

func errorf(code ErrorCode, alias, format string, args ...any) *RuntimeError {
	return &RuntimeError{Code: code, Alias: alias, Message: fmt.Sprintf(format, args...)}
}

// fetchError attributes an adapter failure to the source node alias.
// Adapter errors outside the source taxonomy count as unavailability.
func fetchError(alias, sourceName string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return cancelled(alias, err)
	}
	var srcErr *source.Error
	if !errors.As(err, &srcErr) {
		srcErr = source.NewUnavailable(sourceName, err)
		err = srcErr
	}
	return &RuntimeError{Code: ErrorCode(srcErr.Code), Alias: alias, Err: err}
}

func cancelled(alias string, err error) *RuntimeError {
	return &RuntimeError{Code: ErrCodeCancelled, Alias: alias, Message: "execution cancelled", Err: err}
}
