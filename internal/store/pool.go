// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package store provides the PostgreSQL connection pool and schema migrations.
package store

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"
)

// ErrPoolExhausted is returned when no connection could be acquired within
// the configured acquire timeout.
var ErrPoolExhausted = errors.New("database connection pool exhausted")

// Querier is the query surface repositories depend on. *Pool and
// pgxmock.PgxPoolIface both satisfy it.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PoolConfig configures Connect.
type PoolConfig struct {
	URL            string
	MaxConns       int32
	MinConns       int32
	AcquireTimeout time.Duration
	ConnectTimeout time.Duration
	// ConnectAttempts is the number of pings tried before giving up at startup.
	ConnectAttempts uint64
	// RetryBase is the first backoff between connect attempts.
	RetryBase time.Duration
}

// Pool is a bounded pgx pool whose callers wait at most AcquireTimeout for a
// free connection. It is safe for concurrent use.
type Pool struct {
	pool           *pgxpool.Pool
	acquireTimeout time.Duration
}

// Connect opens the pool and pings the database, retrying with exponential
// backoff until ConnectAttempts is used up.
func Connect(ctx context.Context, cfg PoolConfig) (*Pool, error) {
	if cfg.AcquireTimeout <= 0 {
		return nil, oops.Code("DB_CONFIG_INVALID").With("acquire_timeout", cfg.AcquireTimeout).Errorf("acquire timeout must be positive")
	}

	pcfg, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, oops.Code("DB_CONFIG_INVALID").With("operation", "parse database url").Wrap(err)
	}
	if cfg.MaxConns > 0 {
		pcfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		pcfg.MinConns = cfg.MinConns
	}
	if cfg.ConnectTimeout > 0 {
		pcfg.ConnConfig.ConnectTimeout = cfg.ConnectTimeout
	}

	pool, err := pgxpool.NewWithConfig(ctx, pcfg)
	if err != nil {
		return nil, oops.Code("DB_CONNECT_FAILED").With("operation", "create pool").Wrap(err)
	}

	attempts := cfg.ConnectAttempts
	if attempts == 0 {
		attempts = 1
	}
	base := cfg.RetryBase
	if base <= 0 {
		base = 250 * time.Millisecond
	}
	backoff := retry.WithMaxRetries(attempts-1, retry.WithCappedDuration(5*time.Second, retry.NewExponential(base)))

	attempt := 0
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		if pingErr := pool.Ping(ctx); pingErr != nil {
			slog.WarnContext(ctx, "database ping failed", "attempt", attempt, "error", pingErr)
			return retry.RetryableError(pingErr)
		}
		return nil
	})
	if err != nil {
		pool.Close()
		return nil, oops.Code("DB_CONNECT_FAILED").
			With("operation", "ping database").
			With("attempts", attempt).
			Wrap(err)
	}

	return &Pool{pool: pool, acquireTimeout: cfg.AcquireTimeout}, nil
}

// Close closes all connections.
func (p *Pool) Close() {
	p.pool.Close()
}

// Ping checks that a connection can be acquired and used.
func (p *Pool) Ping(ctx context.Context) error {
	conn, err := p.acquire(ctx)
	if err != nil {
		return err
	}
	defer conn.Release()
	if err := conn.Ping(ctx); err != nil {
		return oops.Code("DB_PING_FAILED").Wrap(err)
	}
	return nil
}

// Stat returns pool statistics.
func (p *Pool) Stat() *pgxpool.Stat {
	return p.pool.Stat()
}

func (p *Pool) acquire(ctx context.Context) (*pgxpool.Conn, error) {
	actx, cancel := context.WithTimeout(ctx, p.acquireTimeout)
	defer cancel()

	conn, err := p.pool.Acquire(actx)
	if err != nil {
		return nil, classifyAcquireError(ctx, err, p.acquireTimeout)
	}
	return conn, nil
}

// classifyAcquireError turns an acquire deadline into ErrPoolExhausted unless
// the caller's own context ended first.
func classifyAcquireError(parent context.Context, err error, timeout time.Duration) error {
	if errors.Is(err, context.DeadlineExceeded) && parent.Err() == nil {
		return oops.Code("DB_POOL_EXHAUSTED").
			With("acquire_timeout", timeout.String()).
			Wrap(errors.Join(ErrPoolExhausted, err))
	}
	return oops.Code("DB_ACQUIRE_FAILED").Wrap(err)
}

// Exec runs sql on a pooled connection.
func (p *Pool) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	conn, err := p.acquire(ctx)
	if err != nil {
		return pgconn.CommandTag{}, err
	}
	defer conn.Release()
	//nolint:wrapcheck // repositories wrap with operation context
	return conn.Exec(ctx, sql, args...)
}

// Query runs sql and returns rows that release their connection on Close.
func (p *Pool) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	conn, err := p.acquire(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := conn.Query(ctx, sql, args...)
	if err != nil {
		conn.Release()
		//nolint:wrapcheck // repositories wrap with operation context
		return nil, err
	}
	return &connRows{Rows: rows, conn: conn}, nil
}

// QueryRow runs sql and returns a row that releases its connection on Scan.
func (p *Pool) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	conn, err := p.acquire(ctx)
	if err != nil {
		return errRow{err: err}
	}
	return &connRow{row: conn.QueryRow(ctx, sql, args...), conn: conn}
}

type connRows struct {
	pgx.Rows
	conn *pgxpool.Conn
	once sync.Once
}

func (r *connRows) Close() {
	r.Rows.Close()
	r.once.Do(r.conn.Release)
}

type connRow struct {
	row  pgx.Row
	conn *pgxpool.Conn
}

func (r *connRow) Scan(dest ...any) error {
	defer r.conn.Release()
	//nolint:wrapcheck // callers match pgx.ErrNoRows
	return r.row.Scan(dest...)
}

type errRow struct{ err error }

func (r errRow) Scan(...any) error { return r.err }

var _ Querier = (*Pool)(nil)
