// Copyright (c) 2026 Leomall. All rights reserved.
// Author: leozheng-Miao

// Package ctxutil provides helpers for interacting with values stored in [context.Context].
//
// Identity values (tenant, principal) live in the request scope owned by package
// identity; this package only carries tracing and logging state.
package ctxutil

import (
	"context"
	"log/slog"

	"github.com/leozheng-Miao/leomall-sub001/internal/platform/ctxkey"
)

// # Request Tracing

// WithRequestID returns a new context with the provided request ID attached.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxkey.KeyRequestID, id)
}

// GetRequestID retrieves the request ID from the context.
// Returns an empty string if not found.
func GetRequestID(ctx context.Context) string {
	id, _ := ctx.Value(ctxkey.KeyRequestID).(string)
	return id
}

// # Structured Logging

// WithLogger returns a new context with the provided logger attached.
func WithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, ctxkey.KeyLogger, logger)
}

// GetLogger retrieves the logger from the context.
// If no logger is found, it returns the global default logger.
func GetLogger(ctx context.Context) *slog.Logger {
	logger, ok := ctx.Value(ctxkey.KeyLogger).(*slog.Logger)
	if !ok || logger == nil {
		return slog.Default()
	}
	return logger
}

// WithLogAttrs returns a context whose logger carries attrs on every record.
//
// The identity stages use it so handler logs are attributed without each
// handler reading the request scope.
func WithLogAttrs(ctx context.Context, attrs ...any) context.Context {
	return WithLogger(ctx, GetLogger(ctx).With(attrs...))
}
