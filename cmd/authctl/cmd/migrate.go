// Copyright (c) 2026 Leomall. All rights reserved.
// Author: leozheng-Miao

package cmd

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/leozheng-Miao/leomall-sub001/internal/platform/migration"
)

func newMigrateCmd(logger func() *slog.Logger) *cobra.Command {
	var path string

	migrateCmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply or roll back database migrations",
	}
	migrateCmd.PersistentFlags().StringVar(&path, "path", "", "Migrations directory (defaults to MIGRATION_PATH)")

	dsnAndPath := func() (string, string, error) {
		cfg, err := loadConfig()
		if err != nil {
			return "", "", err
		}
		if cfg.DatabaseURL == "" {
			return "", "", errors.New("DATABASE_URL is required")
		}
		if path == "" {
			path = cfg.MigrationPath
		}
		return cfg.DatabaseURL, path, nil
	}

	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			dsn, dir, err := dsnAndPath()
			if err != nil {
				return err
			}
			status, err := migration.RunUp(dsn, dir, logger())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "schema version %d -> %d\n", status.From, status.To)
			return nil
		},
	}

	var steps int
	downCmd := &cobra.Command{
		Use:   "down",
		Short: "Roll back migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if steps <= 0 {
				return fmt.Errorf("--steps must be positive, got %d", steps)
			}
			dsn, dir, err := dsnAndPath()
			if err != nil {
				return err
			}
			status, err := migration.RunDown(dsn, dir, steps, logger())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "schema version %d -> %d\n", status.From, status.To)
			return nil
		},
	}
	downCmd.Flags().IntVar(&steps, "steps", 1, "Number of migrations to roll back")

	migrateCmd.AddCommand(upCmd, downCmd)
	return migrateCmd
}
