// Copyright (c) 2026 Leomall. All rights reserved.
// Author: leozheng-Miao

/*
Package redis provides a managed client for the revocation store.

Every authenticated request performs one revocation lookup, so the client is
tuned for short, frequent round trips with tight timeouts.
*/
package redis

import (
	stdctx "context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/leozheng-Miao/leomall-sub001/internal/platform/constants"
)

// Client settings for the request-path revocation lookup.
const (
	dialTimeout  = 2 * time.Second
	readTimeout  = 500 * time.Millisecond
	writeTimeout = 500 * time.Millisecond
	pingTimeout  = 2 * time.Second
	poolSize     = 20
	minIdleConns = 4
	maxRetries   = 1
)

// ParseOptions builds the tuned client options for redisURL without connecting.
func ParseOptions(redisURL string) (*redis.Options, error) {
	options, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("redis: invalid URL: %w", err)
	}

	options.ClientName = constants.AppName
	options.PoolSize = poolSize
	options.MinIdleConns = minIdleConns
	options.MaxRetries = maxRetries
	options.DialTimeout = dialTimeout
	options.ReadTimeout = readTimeout
	options.WriteTimeout = writeTimeout

	return options, nil
}

// NewClient parses a Redis URL and returns a ready-to-use client.
//
// # Parameters
//   - context: Context for the initial ping.
//   - redisURL: Redis connection URL.
//   - logger: Structured logger for connection events.
func NewClient(context stdctx.Context, redisURL string, logger *slog.Logger) (*redis.Client, error) {
	options, err := ParseOptions(redisURL)
	if err != nil {
		return nil, err
	}

	client := redis.NewClient(options)

	// Fail at startup rather than on the first authenticated request.
	if err := Ping(context, client); err != nil {
		_ = client.Close()
		return nil, err
	}

	logger.Info("redis client connected",
		slog.String("addr", options.Addr),
		slog.Int("db", options.DB),
	)

	return client, nil
}

// Ping verifies that the Redis client is healthy.
func Ping(context stdctx.Context, client *redis.Client) error {
	pingCtx, cancel := stdctx.WithTimeout(context, pingTimeout)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		return fmt.Errorf("redis: ping failed: %w", err)
	}
	return nil
}
