// Copyright (c) 2026 Leomall. All rights reserved.
// Author: leozheng-Miao

package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/leozheng-Miao/leomall-sub001/internal/identity"
	"github.com/leozheng-Miao/leomall-sub001/internal/platform/apperr"
	"github.com/leozheng-Miao/leomall-sub001/internal/platform/config"
	pgstore "github.com/leozheng-Miao/leomall-sub001/internal/platform/postgres"
	redisstore "github.com/leozheng-Miao/leomall-sub001/internal/platform/redis"
	"github.com/leozheng-Miao/leomall-sub001/internal/platform/sec"
	"github.com/leozheng-Miao/leomall-sub001/internal/platform/validate"
	"github.com/leozheng-Miao/leomall-sub001/internal/users/auth"
)

func newTokenCmd(logger func() *slog.Logger) *cobra.Command {
	tokenCmd := &cobra.Command{
		Use:   "token",
		Short: "Issue, inspect and revoke tokens",
	}
	tokenCmd.AddCommand(newTokenIssueCmd())
	tokenCmd.AddCommand(newTokenInspectCmd())
	tokenCmd.AddCommand(newTokenRevokeCmd(logger))
	return tokenCmd
}

// # token issue

type issueOptions struct {
	userID      string
	username    string
	nickname    string
	userType    string
	tenant      int64
	roles       []string
	permissions []string
}

func newTokenIssueCmd() *cobra.Command {
	opts := issueOptions{}

	issueCmd := &cobra.Command{
		Use:   "issue",
		Short: "Issue a token pair for an arbitrary principal",
		Long: `Issue signs an access/refresh pair with the configured keys. It is meant for
service accounts and local testing; nothing is looked up in the account store.`,
		Example: `  authctl token issue --user svc-orders --type SERVICE --perm ORDER_CANCEL`,
		RunE: func(cmd *cobra.Command, args []string) error {
			userType := identity.UserType(strings.ToUpper(opts.userType))
			if !userType.Valid() {
				return fmt.Errorf("unknown user type %q", opts.userType)
			}
			if opts.tenant <= 0 {
				return fmt.Errorf("tenant must be positive, got %d", opts.tenant)
			}

			opts.roles = trimAll(opts.roles)
			opts.permissions = trimAll(opts.permissions)
			validator := &validate.Validator{}
			validator.Codes("role", opts.roles).Codes("perm", opts.permissions)
			if err := flagErr(validator.Err()); err != nil {
				return err
			}

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			tokens, err := signingService(cfg)
			if err != nil {
				return err
			}

			username := opts.username
			if username == "" {
				username = opts.userID
			}
			pair, err := tokens.Issue(identity.Attributes{
				UserID:      opts.userID,
				Username:    username,
				Nickname:    opts.nickname,
				UserType:    userType,
				TenantID:    identity.TenantID(opts.tenant),
				Roles:       opts.roles,
				Permissions: opts.permissions,
			})
			if err != nil {
				return err
			}

			encoder := json.NewEncoder(cmd.OutOrStdout())
			encoder.SetIndent("", "  ")
			return encoder.Encode(map[string]any{
				auth.FieldAccessToken:      pair.AccessToken,
				auth.FieldRefreshToken:     pair.RefreshToken,
				auth.FieldTokenID:          pair.TokenID,
				"access_token_expires_at":  pair.AccessTokenExpiresAt.UTC().Format(time.RFC3339),
				"refresh_token_expires_at": pair.RefreshTokenExpiresAt.UTC().Format(time.RFC3339),
			})
		},
	}

	flags := issueCmd.Flags()
	flags.StringVar(&opts.userID, "user", "", "Subject user id (required)")
	flags.StringVar(&opts.username, "username", "", "Username claim (defaults to --user)")
	flags.StringVar(&opts.nickname, "nickname", "", "Nickname claim")
	flags.StringVar(&opts.userType, "type", string(identity.UserTypeService), "User type: MEMBER, ADMIN or SERVICE")
	flags.Int64Var(&opts.tenant, "tenant", int64(identity.DefaultTenantID), "Tenant id")
	flags.StringSliceVar(&opts.roles, "role", nil, "Role code (repeatable)")
	flags.StringSliceVar(&opts.permissions, "perm", nil, "Permission code (repeatable)")
	_ = issueCmd.MarkFlagRequired("user")

	return issueCmd
}

// signingService builds a token service for signing only; revocations are not consulted.
func signingService(cfg *config.Config) (*sec.TokenService, error) {
	tokenConfig, err := cfg.TokenConfig()
	if err != nil {
		return nil, err
	}
	return sec.NewTokenService(tokenConfig, auth.NewMemoryRevocationStore())
}

// # token inspect

func newTokenInspectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "inspect <token>",
		Short: "Decode a token without verifying its signature",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			claims, err := sec.Inspect(args[0])
			if err != nil {
				return err
			}

			principal := claims.Principal()
			writer := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintf(writer, "TOKEN ID\t%s\n", claims.TokenID())
			fmt.Fprintf(writer, "TYPE\t%s\n", claims.TokenType)
			fmt.Fprintf(writer, "ISSUER\t%s\n", claims.Issuer)
			fmt.Fprintf(writer, "SUBJECT\t%s\n", claims.SubjectID())
			fmt.Fprintf(writer, "USER TYPE\t%s\n", principal.UserType())
			fmt.Fprintf(writer, "TENANT\t%s\n", principal.TenantID())
			fmt.Fprintf(writer, "ROLES\t%s\n", strings.Join(principal.Roles(), ", "))
			fmt.Fprintf(writer, "PERMISSIONS\t%s\n", strings.Join(principal.Permissions(), ", "))
			fmt.Fprintf(writer, "ISSUED AT\t%s\n", claims.IssuedAtTime().UTC().Format(time.RFC3339))
			fmt.Fprintf(writer, "EXPIRES AT\t%s\n", claims.ExpiresAtTime().UTC().Format(time.RFC3339))
			return writer.Flush()
		},
	}
}

// # token revoke

func newTokenRevokeCmd(logger func() *slog.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "revoke <token-id>",
		Short: "Revoke a token family in the shared revocation store",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			store, closeStore, err := openRevocationStore(ctx, cfg, logger())
			if err != nil {
				return err
			}
			defer closeStore()

			tokenConfig, err := cfg.TokenConfig()
			if err != nil {
				return err
			}
			tokens, err := sec.NewTokenService(tokenConfig, store)
			if err != nil {
				return err
			}
			if err := tokens.Revoke(ctx, args[0]); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "revoked %s\n", args[0])
			return nil
		},
	}
}

// openRevocationStore connects to the configured shared backend.
func openRevocationStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (sec.RevocationStore, func(), error) {
	switch cfg.RevocationBackend {
	case config.BackendRedis:
		client, err := redisstore.NewClient(ctx, cfg.RedisURL, logger)
		if err != nil {
			return nil, nil, err
		}
		return auth.NewRedisRevocationStore(client), func() { _ = client.Close() }, nil

	case config.BackendPostgres:
		pool, err := pgstore.NewPool(ctx, cfg.DatabaseURL, logger)
		if err != nil {
			return nil, nil, err
		}
		return auth.NewPostgresRevocationStore(pool), pool.Close, nil

	default:
		return nil, nil, errors.New("the memory revocation backend is local to each server process; configure redis or postgres")
	}
}

func trimAll(values []string) []string {
	trimmed := make([]string, 0, len(values))
	for _, value := range values {
		trimmed = append(trimmed, strings.TrimSpace(value))
	}
	return trimmed
}

// flagErr renders validation failures as flag errors.
func flagErr(err error) error {
	var appErr *apperr.AppError
	if !errors.As(err, &appErr) || len(appErr.Details) == 0 {
		return err
	}
	messages := make([]string, 0, len(appErr.Details))
	for _, detail := range appErr.Details {
		messages = append(messages, fmt.Sprintf("--%s: %s", detail.Field, detail.Message))
	}
	return errors.New(strings.Join(messages, "; "))
}
