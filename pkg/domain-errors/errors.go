// Package dErrors provides coded domain errors for the migration gateway.
//
// Services return these instead of raw store or collaborator errors so that
// every public operation can be translated into the uniform result envelope.
// Stores return sentinel errors (pkg/platform/sentinel); services wrap them
// here with a code and a caller-safe message.
package dErrors

import (
	"errors"
	"fmt"
)

// Code classifies a domain error for envelope translation and branching.
type Code string

const (
	// CodeBadRequest covers malformed or incomplete caller input.
	CodeBadRequest Code = "bad_request"
	// CodeNotFound covers unknown record, saga, or collaborator ids.
	CodeNotFound Code = "not_found"
	// CodeConflict covers duplicate creation and lost-update conflicts.
	CodeConflict Code = "conflict"
	// CodeInvariantViolation covers illegal state machine transitions.
	CodeInvariantViolation Code = "invariant_violation"
	// CodeValidation covers failed business-rule checks. A validation
	// failure carries a per-rule breakdown and is not an internal fault.
	CodeValidation Code = "validation_failed"
	// CodeUnavailable signals that no resolver tier produced the needed
	// collaborator. Nothing was committed; callers may fail fast.
	CodeUnavailable Code = "collaborator_unavailable"
	// CodeExternal signals that a resolved collaborator call failed. The
	// failure is surfaced as-is; compensation is never triggered here.
	CodeExternal Code = "external_operation_failed"
	// CodeCompensation signals that a rollback handler itself failed. Such
	// errors are re-queued through the WAL retry policy, never dropped.
	CodeCompensation Code = "compensation_failed"
	// CodeTimeout covers context deadline or cancellation at a call boundary.
	CodeTimeout Code = "timeout"
	// CodeInternal covers everything the caller cannot act on.
	CodeInternal Code = "internal_error"
)

// Error is a coded domain error. It satisfies errors.Is/As chains so wrapped
// sentinel errors stay inspectable.
type Error struct {
	Code    Code
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// New creates a domain error with no underlying cause.
func New(code Code, message string) error {
	return &Error{Code: code, Message: message}
}

// Newf creates a domain error with a formatted message.
func Newf(code Code, format string, args ...any) error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a code and caller-safe message to an underlying error.
// A nil err returns nil so call sites can wrap unconditionally.
func Wrap(err error, code Code, message string) error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Message: message, cause: err}
}

// HasCode reports whether any error in the chain carries the given code.
func HasCode(err error, code Code) bool {
	var de *Error
	for errors.As(err, &de) {
		if de.Code == code {
			return true
		}
		err = de.cause
		de = nil
	}
	return false
}

// Is is shorthand for HasCode, matching the errors.Is call shape.
func Is(err error, code Code) bool { return HasCode(err, code) }

// CodeOf returns the outermost code in the chain, or CodeInternal when the
// error carries none.
func CodeOf(err error) Code {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeInternal
}

// MessageOf returns the outermost caller-safe message, or "" for uncoded errors.
func MessageOf(err error) string {
	var de *Error
	if errors.As(err, &de) {
		return de.Message
	}
	return ""
}
