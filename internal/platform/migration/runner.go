// Copyright (c) 2026 Leomall. All rights reserved.
// Author: leozheng-Miao

// Package migration provides a thin wrapper around golang-migrate for
// the auth schema (the revoked token table).
//
// # Architecture
//
// The API applies pending migrations at startup when the postgres revocation
// backend is selected; operators can also run them through authctl.
package migration

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	// pgx5 driver registers "pgx5" scheme for golang-migrate.
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	// file source reads .sql files from disk.
	_ "github.com/golang-migrate/migrate/v4/source/file"
)

// Status describes the schema version after a run.
type Status struct {
	From  uint
	To    uint
	Dirty bool
}

// RunUp applies all pending UP migrations.
//
// # Parameters
//   - dsn: A libpq-compatible DSN or postgres:// URL.
//   - migrationsPath: Filesystem path to the migrations directory.
//   - logger: Structured logger for migration events.
func RunUp(dsn string, migrationsPath string, logger *slog.Logger) (Status, error) {
	return run(dsn, migrationsPath, logger, "up", func(migrator *migrate.Migrate) error {
		return migrator.Up()
	})
}

// RunDown rolls back the given number of migrations.
func RunDown(dsn string, migrationsPath string, steps int, logger *slog.Logger) (Status, error) {
	if steps <= 0 {
		return Status{}, fmt.Errorf("migration: down steps must be positive, got %d", steps)
	}
	return run(dsn, migrationsPath, logger, "down", func(migrator *migrate.Migrate) error {
		return migrator.Steps(-steps)
	})
}

func run(dsn, migrationsPath string, logger *slog.Logger, direction string, apply func(*migrate.Migrate) error) (Status, error) {
	// golang-migrate pgx/v5 driver expects "pgx5://" scheme.
	migrator, err := migrate.New("file://"+migrationsPath, convertToPgx5DSN(dsn))
	if err != nil {
		return Status{}, fmt.Errorf("migration: failed to initialize: %w", err)
	}
	defer func() {
		sourceError, dbError := migrator.Close()
		if sourceError != nil {
			logger.Error("migration_source_close_failed", slog.Any("error", sourceError))
		}
		if dbError != nil {
			logger.Error("migration_db_close_failed", slog.Any("error", dbError))
		}
	}()

	// Verbose logging via the slog bridge.
	migrator.Log = &migrateLogger{logger: logger}

	currentVersion, isDirty, err := migrator.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return Status{}, fmt.Errorf("migration: failed to get current version: %w", err)
	}
	if isDirty {
		return Status{From: currentVersion, Dirty: true}, fmt.Errorf("migration: database is in a dirty state at version %d (manual intervention required)", currentVersion)
	}

	logger.Info("migration_started", slog.String("direction", direction), slog.Int("current_version", int(currentVersion)))

	if err := apply(migrator); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			logger.Info("migration_already_up_to_date")
			return Status{From: currentVersion, To: currentVersion}, nil
		}
		return Status{From: currentVersion}, fmt.Errorf("migration: %s failed: %w", direction, err)
	}

	newVersion, dirty, _ := migrator.Version()
	logger.Info("migration_successful",
		slog.Int("from_version", int(currentVersion)),
		slog.Int("to_version", int(newVersion)),
	)

	return Status{From: currentVersion, To: newVersion, Dirty: dirty}, nil
}

// convertToPgx5DSN ensures the DSN uses the pgx5:// scheme required by golang-migrate/v4.
func convertToPgx5DSN(dsn string) string {
	for _, prefix := range []string{"postgres://", "postgresql://"} {
		if rest, ok := strings.CutPrefix(dsn, prefix); ok {
			return "pgx5://" + rest
		}
	}
	return dsn
}

// migrateLogger adapts golang-migrate's logger interface to slog.
type migrateLogger struct {
	logger  *slog.Logger
	verbose bool
}

// Printf implements migrate.Logger.
func (l *migrateLogger) Printf(format string, args ...any) {
	l.logger.Debug(strings.TrimSpace(fmt.Sprintf(format, args...)))
}

// Verbose implements migrate.Logger.
func (l *migrateLogger) Verbose() bool {
	return l.verbose
}
