// Package store provides the data access layer. Queries run through a
// *sql.DB that wraps the pgxpool via the pgx stdlib adapter, so the same
// code is exercised by go-sqlmock in unit tests. Org-scoped statements run
// inside transactions that set app.org_id for the row-level security
// policies; cross-tenant work (workers, superadmin, invitation acceptance)
// sets app.bypass_rls instead.
package store

import (
	"context"
	"database/sql"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
)

// Store is the central data access object.
type Store struct {
	pool *pgxpool.Pool
	db   *sql.DB
}

// New creates a Store backed by pool.
func New(pool *pgxpool.Pool) *Store {
	return &Store{
		pool: pool,
		db:   stdlib.OpenDBFromPool(pool),
	}
}

// NewFromDB creates a Store over an existing *sql.DB. Pool returns nil.
func NewFromDB(db *sql.DB) *Store {
	return &Store{db: db}
}

// Pool returns the underlying pgxpool, or nil for a Store built by NewFromDB.
func (s *Store) Pool() *pgxpool.Pool { return s.pool }

// DB returns the stdlib-wrapped *sql.DB.
func (s *Store) DB() *sql.DB { return s.db }

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	if s.pool != nil {
		return s.pool.Ping(ctx)
	}
	return s.db.PingContext(ctx)
}

// psql builds Postgres ($n) placeholders for squirrel queries.
var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// withTx runs fn inside a database/sql transaction. The transaction is
// committed if fn returns nil, rolled back otherwise.
func (s *Store) withTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// withOrgTx runs fn in a transaction scoped to orgID. set_config with
// is_local=true behaves like SET LOCAL and resets on commit or rollback, so
// pooled connections never leak the setting.
func (s *Store) withOrgTx(ctx context.Context, orgID uuid.UUID, fn func(*sql.Tx) error) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `SELECT set_config('app.org_id', $1, true)`, orgID.String()); err != nil {
			return fmt.Errorf("set org_id: %w", err)
		}
		return fn(tx)
	})
}

// withBypassTx runs fn in a transaction with RLS bypass enabled.
// Never call from a path that acts on behalf of a tenant user without first
// authorizing the call.
func (s *Store) withBypassTx(ctx context.Context, fn func(*sql.Tx) error) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `SELECT set_config('app.bypass_rls', 'on', true)`); err != nil {
			return fmt.Errorf("set bypass_rls: %w", err)
		}
		return fn(tx)
	})
}

// OrgTx exposes withOrgTx for integration tests and one-off maintenance.
func (s *Store) OrgTx(ctx context.Context, orgID uuid.UUID, fn func(*sql.Tx) error) error {
	return s.withOrgTx(ctx, orgID, fn)
}

// WorkerTx exposes withBypassTx for background workers.
func (s *Store) WorkerTx(ctx context.Context, fn func(*sql.Tx) error) error {
	return s.withBypassTx(ctx, fn)
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}
