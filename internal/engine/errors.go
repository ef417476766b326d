package engine

import (
	"errors"
	"fmt"

	"github.com/roach88/orchard/internal/store"
)

// Error is the structured failure returned by every engine command.
//
// Error codes:
//   - NOT_FOUND: referenced consultation or prescription does not exist
//   - INVALID_TRANSITION: the state change is outside the lifecycle, including
//     a second prescription for one consultation
//   - STORE_FAILURE: persistence failed; Message carries the native store message
//   - VALIDATION_FAILURE: the payload failed structural checks
type Error struct {
	// Code identifies the error category.
	Code ErrorCode

	// Op names the command that failed, e.g. "issue".
	Op string

	// Message is a human-readable description.
	Message string

	// EntityID identifies the consultation or prescription involved.
	EntityID string

	// Err is the underlying cause, if any.
	Err error
}

// ErrorCode categorizes engine errors.
type ErrorCode string

const (
	// ErrCodeNotFound indicates the referenced record does not exist.
	ErrCodeNotFound ErrorCode = "NOT_FOUND"

	// ErrCodeInvalidTransition indicates a disallowed state change.
	ErrCodeInvalidTransition ErrorCode = "INVALID_TRANSITION"

	// ErrCodeStoreFailure indicates the record store failed.
	ErrCodeStoreFailure ErrorCode = "STORE_FAILURE"

	// ErrCodeValidationFailure indicates the caller's payload is malformed.
	ErrCodeValidationFailure ErrorCode = "VALIDATION_FAILURE"
)

// Error implements the error interface.
func (e *Error) Error() string {
	if e.EntityID != "" {
		return fmt.Sprintf("%s: %s: %s (id=%s)", e.Op, e.Code, e.Message, e.EntityID)
	}
	return fmt.Sprintf("%s: %s: %s", e.Op, e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// CodeOf returns the engine error code of err, or "" when err is not an
// engine error.
func CodeOf(err error) ErrorCode {
	var ee *Error
	if errors.As(err, &ee) {
		return ee.Code
	}
	return ""
}

// IsNotFound returns true if the error is a not-found error.
// Uses errors.As to handle wrapped errors.
func IsNotFound(err error) bool {
	return CodeOf(err) == ErrCodeNotFound
}

// IsInvalidTransition returns true if the error is a lifecycle violation.
func IsInvalidTransition(err error) bool {
	return CodeOf(err) == ErrCodeInvalidTransition
}

// IsStoreFailure returns true if the error is a persistence failure.
func IsStoreFailure(err error) bool {
	return CodeOf(err) == ErrCodeStoreFailure
}

// IsValidationFailure returns true if the error is a payload failure.
func IsValidationFailure(err error) bool {
	return CodeOf(err) == ErrCodeValidationFailure
}

func validationError(op, id string, err error) *Error {
	return &Error{Code: ErrCodeValidationFailure, Op: op, Message: err.Error(), EntityID: id, Err: err}
}

func transitionError(op, id, message string) *Error {
	return &Error{Code: ErrCodeInvalidTransition, Op: op, Message: message, EntityID: id}
}

// classify maps a store error onto the engine taxonomy. Engine errors pass
// through unchanged.
//
//   - store.ErrNotFound        → NOT_FOUND
//   - store.ErrStatusConflict  → INVALID_TRANSITION
//   - store.ErrUniqueViolation → INVALID_TRANSITION (a racing writer won)
//   - anything else            → STORE_FAILURE
func classify(op, id string, err error) error {
	if err == nil {
		return nil
	}
	var ee *Error
	if errors.As(err, &ee) {
		return err
	}

	switch {
	case store.IsNotFound(err):
		return &Error{Code: ErrCodeNotFound, Op: op, Message: err.Error(), EntityID: id, Err: err}
	case store.IsStatusConflict(err):
		return &Error{Code: ErrCodeInvalidTransition, Op: op, Message: err.Error(), EntityID: id, Err: err}
	case store.IsUniqueViolation(err):
		return &Error{Code: ErrCodeInvalidTransition, Op: op, Message: "record already exists: " + err.Error(), EntityID: id, Err: err}
	default:
		return &Error{Code: ErrCodeStoreFailure, Op: op, Message: err.Error(), EntityID: id, Err: err}
	}
}
