package store

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/mattn/go-sqlite3"
)

var (
	// ErrNotFound indicates the referenced record does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrStatusConflict indicates a compare-and-set status update found the
	// record in a state outside the allowed set.
	ErrStatusConflict = errors.New("status precondition failed")
	// ErrUniqueViolation indicates a uniqueness constraint rejected a write.
	ErrUniqueViolation = errors.New("unique constraint violated")
	// ErrNotConfigured indicates the store was used before Open.
	ErrNotConfigured = errors.New("storage is not configured")
)

// pgUniqueViolation is the SQLSTATE for unique_violation.
const pgUniqueViolation = "23505"

// Error is the store-level failure returned by every Store method.
//
// Message always carries the native driver message. Kind, when set, is one
// of the sentinel errors above so callers can use errors.Is.
type Error struct {
	// Op names the store operation, e.g. "insert prescription".
	Op string

	// Code is the backend error code when available
	// (SQLite extended code or Postgres SQLSTATE).
	Code string

	// Message is the human-readable failure description.
	Message string

	// Kind classifies the failure. Nil for unclassified driver errors.
	Kind error

	// Err is the underlying driver error, if any.
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("store: %s: %s (code=%s)", e.Op, e.Message, e.Code)
	}
	return fmt.Sprintf("store: %s: %s", e.Op, e.Message)
}

// Unwrap exposes both the classification and the driver error.
func (e *Error) Unwrap() []error {
	var errs []error
	if e.Kind != nil {
		errs = append(errs, e.Kind)
	}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

// wrapErr converts a driver error into *Error, classifying not-found and
// unique violations. Errors that are already *Error pass through unchanged.
func wrapErr(op string, err error) error {
	if err == nil {
		return nil
	}
	var existing *Error
	if errors.As(err, &existing) {
		return err
	}

	e := &Error{Op: op, Message: err.Error(), Err: err}

	if errors.Is(err, sql.ErrNoRows) {
		e.Kind = ErrNotFound
		return e
	}
	if errors.Is(err, ErrNotConfigured) {
		e.Kind = ErrNotConfigured
		e.Err = nil
		return e
	}

	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		e.Code = fmt.Sprintf("SQLITE_%d", int(sqliteErr.ExtendedCode))
		if sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey {
			e.Kind = ErrUniqueViolation
		}
		return e
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		e.Code = pgErr.Code
		if pgErr.Code == pgUniqueViolation {
			e.Kind = ErrUniqueViolation
		}
		return e
	}

	return e
}

// notFound builds a classified not-found error for entity/id.
func notFound(op, entity, id string) error {
	return &Error{
		Op:      op,
		Message: fmt.Sprintf("%s %q not found", entity, id),
		Kind:    ErrNotFound,
	}
}

// statusConflict builds a classified compare-and-set failure.
func statusConflict(op, entity, id, current string) error {
	return &Error{
		Op:      op,
		Message: fmt.Sprintf("%s %q is %s", entity, id, current),
		Kind:    ErrStatusConflict,
	}
}

// IsNotFound reports whether err is a store not-found failure.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

// IsUniqueViolation reports whether err is a store uniqueness failure.
func IsUniqueViolation(err error) bool { return errors.Is(err, ErrUniqueViolation) }

// IsStatusConflict reports whether err is a failed compare-and-set.
func IsStatusConflict(err error) bool { return errors.Is(err, ErrStatusConflict) }
