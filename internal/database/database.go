// Package database wraps a pgx connection pool behind a small Service
// interface so repositories and tests can swap the backing pool.
package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Service is the database access contract used by all repositories.
type Service interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)

	// WithTx runs fn inside a transaction, committing on nil error.
	WithTx(ctx context.Context, fn func(tx pgx.Tx) error) error

	Health(ctx context.Context) error
	Close()
}

type service struct {
	pool    *pgxpool.Pool
	timeout time.Duration
}

// New connects a pgx pool to the given URL. Every statement is bounded
// by timeout: server-side via statement_timeout for row-returning
// queries (whose contexts must outlive the call while rows stream) and
// client-side for the rest.
func New(ctx context.Context, databaseURL string, timeout time.Duration) (Service, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}

	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	cfg.ConnConfig.RuntimeParams["statement_timeout"] = fmt.Sprintf("%d", timeout.Milliseconds())

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	return &service{pool: pool, timeout: timeout}, nil
}

func (s *service) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.timeout)
}

// Query and QueryRow rely on the pool's statement_timeout: their
// contexts must stay live while the caller scans rows, so cancelling a
// derived context here would abort the query mid-read.
func (s *service) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return s.pool.Query(ctx, sql, args...)
}

func (s *service) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	return s.pool.QueryRow(ctx, sql, args...)
}

func (s *service) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()
	return s.pool.Exec(ctx, sql, args...)
}

func (s *service) WithTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	if err := fn(tx); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}

	return tx.Commit(ctx)
}

func (s *service) Health(ctx context.Context) error {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	if err := s.pool.Ping(ctx); err != nil {
		return fmt.Errorf("database health check failed: %w", err)
	}
	return nil
}

func (s *service) Close() {
	s.pool.Close()
}

// IsUniqueViolation reports whether err is a postgres unique constraint
// violation (error code 23505).
func IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// IsNoRows reports whether err means the query matched nothing.
func IsNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}
