// Package postgres implements store.Repository against PostgreSQL: the
// production event-sourcing substrate, backed by the single append-only
// object_events table (see migrations/) with row-level security enforced
// in application code exactly like store/memory's Visible check (Postgres
// RLS policies additionally enforce it at the database level as
// defense-in-depth — see migrations/000003_object_events_rls.up.sql).
//
// Adapted in place from pkg/storage/postgres/base_store.go: the
// transaction-context pattern (txKey/TxFromContext/ContextWithTx/BeginTx/
// CommitTx/RollbackTx/WithTx) and Querier indirection carry over verbatim,
// narrowed from "any service's table" to the one object_events table this
// package owns.
package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/r3e-network/objectstore/pkg/storage"
)

// Store is the PostgreSQL-backed store.Repository.
type Store struct {
	db *sql.DB
}

// New returns a Store backed by db. db must point at a database migrated
// with migrations/000001_object_events.up.sql and
// migrations/000002_subscription_checkpoints.up.sql.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// DB returns the underlying connection pool.
func (s *Store) DB() *sql.DB { return s.db }

type txKey struct{}

// TxFromContext extracts the active transaction, if any.
func TxFromContext(ctx context.Context) *sql.Tx {
	if tx, ok := ctx.Value(txKey{}).(*sql.Tx); ok {
		return tx
	}
	return nil
}

// ContextWithTx attaches tx to ctx.
func ContextWithTx(ctx context.Context, tx *sql.Tx) context.Context {
	return context.WithValue(ctx, txKey{}, tx)
}

// querier returns the transaction active on ctx, or the pool.
func (s *Store) querier(ctx context.Context) storage.Querier {
	if tx := TxFromContext(ctx); tx != nil {
		return tx
	}
	return s.db
}

// beginTx starts a new transaction and attaches it to the returned context.
func (s *Store) beginTx(ctx context.Context) (context.Context, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return ctx, fmt.Errorf("begin transaction: %w", err)
	}
	return ContextWithTx(ctx, tx), nil
}

func commitTx(ctx context.Context) error {
	tx := TxFromContext(ctx)
	if tx == nil {
		return fmt.Errorf("no transaction in context")
	}
	return tx.Commit()
}

func rollbackTx(ctx context.Context) error {
	tx := TxFromContext(ctx)
	if tx == nil {
		return nil
	}
	return tx.Rollback()
}

// withTx runs fn inside a new transaction: commits on success, rolls back
// and propagates fn's error otherwise. Every mutating Repository method
// uses this to make its read-modify-append sequence atomic, since the OCC
// check and the append must observe the same snapshot.
func (s *Store) withTx(ctx context.Context, fn func(ctx context.Context) error) error {
	txCtx, err := s.beginTx(ctx)
	if err != nil {
		return err
	}
	if err := fn(txCtx); err != nil {
		_ = rollbackTx(txCtx)
		return err
	}
	return commitTx(txCtx)
}
