// Package postgres implements the repositories on PostgreSQL via pgx.
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Pool defaults, applied after parsing the connection URL. Explicit
// options win; pool parameters embedded in the URL do not.
const (
	DefaultMaxConns        = 16
	DefaultMinConns        = 2
	DefaultMaxConnLifetime = 30 * time.Minute
	DefaultConnectTimeout  = 5 * time.Second
)

// DB wraps a PostgreSQL connection pool.
type DB struct {
	Pool *pgxpool.Pool
}

// Option adjusts the pool configuration before the pool is created.
type Option func(*pgxpool.Config)

// WithMaxConns caps the pool size.
func WithMaxConns(n int32) Option {
	return func(cfg *pgxpool.Config) {
		cfg.MaxConns = n
	}
}

// WithMinConns keeps a floor of warm connections.
func WithMinConns(n int32) Option {
	return func(cfg *pgxpool.Config) {
		cfg.MinConns = n
	}
}

// WithMaxConnLifetime recycles connections after the given age.
func WithMaxConnLifetime(d time.Duration) Option {
	return func(cfg *pgxpool.Config) {
		cfg.MaxConnLifetime = d
	}
}

// New creates a connection pool and verifies it with a ping.
func New(ctx context.Context, databaseURL string, opts ...Option) (*DB, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}

	cfg.MaxConns = DefaultMaxConns
	cfg.MinConns = DefaultMinConns
	cfg.MaxConnLifetime = DefaultMaxConnLifetime
	if cfg.ConnConfig.ConnectTimeout == 0 {
		cfg.ConnConfig.ConnectTimeout = DefaultConnectTimeout
	}
	for _, opt := range opts {
		opt(cfg)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &DB{Pool: pool}, nil
}

// Ping verifies the pool can still reach the database. Used by readiness
// probes.
func (db *DB) Ping(ctx context.Context) error {
	if err := db.Pool.Ping(ctx); err != nil {
		return fmt.Errorf("database unreachable: %w", err)
	}
	return nil
}

// Close closes the connection pool.
func (db *DB) Close() {
	db.Pool.Close()
}
