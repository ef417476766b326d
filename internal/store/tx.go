package store

import (
	"context"
	"database/sql"
	"fmt"
)

// txKey carries the active *sql.Tx on a context.
type txKey struct{}

// queryable is the subset of *sql.DB and *sql.Tx the store uses.
type queryable interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// conn returns the transaction bound to ctx, or the pool when there is none.
func (s *Store) conn(ctx context.Context) queryable {
	if tx, ok := ctx.Value(txKey{}).(*sql.Tx); ok {
		return tx
	}
	return s.db
}

// InTx reports whether ctx carries an active store transaction.
func InTx(ctx context.Context) bool {
	_, ok := ctx.Value(txKey{}).(*sql.Tx)
	return ok
}

// RunInTx runs fn inside a single database transaction. Store methods called
// with the context passed to fn join that transaction. The transaction is
// committed when fn returns nil and rolled back on every other exit path,
// including panics.
//
// Nested calls join the outer transaction.
func (s *Store) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := s.ready(ctx); err != nil {
		return wrapErr("begin transaction", err)
	}
	if InTx(ctx) {
		return fn(ctx)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return wrapErr("begin transaction", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	if err := fn(context.WithValue(ctx, txKey{}, tx)); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return wrapErr("commit transaction", fmt.Errorf("commit: %w", err))
	}
	committed = true
	return nil
}
