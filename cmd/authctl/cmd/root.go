// Copyright (c) 2026 Leomall. All rights reserved.
// Author: leozheng-Miao

package cmd

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/leozheng-Miao/leomall-sub001/internal/platform/config"
)

// NewRootCmd builds the authctl command tree.
func NewRootCmd() *cobra.Command {
	var envFile string
	var verbose bool

	root := &cobra.Command{
		Use:   "authctl",
		Short: "Leomall identity operator CLI",
		Long: `authctl issues, inspects and revokes Leomall access tokens and applies the
identity service migrations. Settings are read from the same environment
variables as the API server.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if envFile != "" {
				if err := godotenv.Load(envFile); err != nil {
					return fmt.Errorf("failed to load %s: %w", envFile, err)
				}
			}
			return nil
		},
	}

	root.PersistentFlags().StringVar(&envFile, "env-file", "", "Load environment variables from this file first")
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log progress to stderr")

	logger := func() *slog.Logger {
		if !verbose {
			return slog.New(slog.NewTextHandler(io.Discard, nil))
		}
		return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
	}

	root.AddCommand(newTokenCmd(logger))
	root.AddCommand(newMigrateCmd(logger))
	return root
}

// Execute runs the root command
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadConfig reads and validates the service configuration.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}
