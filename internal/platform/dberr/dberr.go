// Copyright (c) 2026 Leomall. All rights reserved.
// Author: leozheng-Miao

// Package dberr provides a bridge between low-level database errors and
// higher-level application errors.
package dberr

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/leozheng-Miao/leomall-sub001/internal/platform/apperr"
)

// Wrap inspects a database error and classifies it.
//
// Missing rows become NOT_FOUND for resource. Everything else keeps the
// original error wrapped with action so callers can log it, and is reported
// to clients as INTERNAL_ERROR.
func Wrap(err error, resource, action string) error {
	if err == nil {
		return nil
	}

	// 1. Not Found mapping
	if errors.Is(err, pgx.ErrNoRows) {
		return apperr.NotFound(resource)
	}

	// 2. Server-side SQLSTATE errors keep their code in the log line
	var pgError *pgconn.PgError
	if errors.As(err, &pgError) {
		return apperr.Internal(fmt.Errorf("%s: sqlstate %s: %w", action, pgError.Code, err))
	}

	// 3. Connectivity and unknown errors
	return apperr.Internal(fmt.Errorf("%s: %w", action, err))
}
