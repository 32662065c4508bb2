// Copyright (c) 2026 Leomall. All rights reserved.
// Author: leozheng-Miao

// Package postgres provides a managed PostgreSQL connection pool.
//
// The pool backs the revocation table and the read-only account lookup used
// by login. Revocation lookups sit on the request path, so statements are
// bounded much tighter than the request deadline.
package postgres

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/leozheng-Miao/leomall-sub001/internal/platform/constants"
)

// Pool settings for the identity workload.
const (
	maxConns          = 15
	minConns          = 2
	maxConnLifetime   = 30 * time.Minute
	maxConnIdleTime   = 5 * time.Minute
	healthCheckPeriod = 30 * time.Second
	connectTimeout    = 5 * time.Second
	pingTimeout       = 2 * time.Second

	// statementTimeout caps every statement; a slow revocation lookup must
	// surface as an error, not as a stalled request.
	statementTimeout = 3 * time.Second
)

// ParseConfig builds the tuned pool configuration for dsn without connecting.
func ParseConfig(dsn string) (*pgxpool.Config, error) {
	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: invalid DSN: %w", err)
	}

	poolConfig.MaxConns = maxConns
	poolConfig.MinConns = minConns
	poolConfig.MaxConnLifetime = maxConnLifetime
	poolConfig.MaxConnIdleTime = maxConnIdleTime
	poolConfig.HealthCheckPeriod = healthCheckPeriod
	poolConfig.ConnConfig.ConnectTimeout = connectTimeout

	// Runtime parameters travel in the startup packet, so no extra round trip per connection.
	runtime := poolConfig.ConnConfig.RuntimeParams
	if runtime["application_name"] == "" {
		runtime["application_name"] = constants.AppName
	}
	runtime["statement_timeout"] = fmt.Sprintf("%d", statementTimeout.Milliseconds())

	return poolConfig, nil
}

// NewPool creates and validates a new PostgreSQL connection pool.
//
// # Parameters
//   - ctx: Context for the initial connection attempt.
//   - dsn: A libpq-compatible connection string or postgres:// URL.
//   - logger: Structured logger for pool-level events.
func NewPool(ctx context.Context, dsn string, logger *slog.Logger) (*pgxpool.Pool, error) {
	poolConfig, err := ParseConfig(dsn)
	if err != nil {
		return nil, err
	}

	connectCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(connectCtx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to create pool: %w", err)
	}

	if err := Ping(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}

	logger.Info("postgres pool connected",
		slog.String("host", poolConfig.ConnConfig.Host),
		slog.String("database", poolConfig.ConnConfig.Database),
		slog.Int("max_conns", int(poolConfig.MaxConns)),
	)

	return pool, nil
}

// Ping verifies that the PostgreSQL connection pool is healthy.
func Ping(ctx context.Context, pool *pgxpool.Pool) error {
	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	if err := pool.Ping(pingCtx); err != nil {
		return fmt.Errorf("postgres: ping failed: %w", err)
	}
	return nil
}
