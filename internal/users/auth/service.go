// Copyright (c) 2026 Leomall. All rights reserved.
// Author: leozheng-Miao

package auth

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/leozheng-Miao/leomall-sub001/internal/identity"
	"github.com/leozheng-Miao/leomall-sub001/internal/platform/apperr"
	"github.com/leozheng-Miao/leomall-sub001/internal/platform/sec"
)

// dummyPasswordHash is compared against when an account does not exist so the
// failed lookup costs the same bcrypt work as a wrong password.
const dummyPasswordHash = "$2a$10$7EqJtq98hPqEX7fNZaFWoOhi5BWX4Z3fBF0pMuxeh5iZlB4fzR9a6"

// # Definitions & Constructors

// Service orchestrates the session lifecycle on top of [sec.TokenService].
type Service struct {
	accounts AccountSource
	tokens   *sec.TokenService
	logger   *slog.Logger
}

// NewService constructs a new [Service].
func NewService(accounts AccountSource, tokens *sec.TokenService, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		accounts: accounts,
		tokens:   tokens,
		logger:   logger,
	}
}

// # Authentication Flow

// LoginInput defines credentials for an authentication attempt.
type LoginInput struct {
	Tenant   identity.TenantID
	Login    string // Can be Username or Email
	Password string
}

// LoginSession is returned on successful authentication.
type LoginSession struct {
	*sec.TokenPair
	User identity.Principal
}

/*
Login validates credentials and issues a token pair for the account.

Description: Looks the account up inside the request tenant, verifies the bcrypt
hash, and issues an access/refresh pair carrying the account's roles and
permission codes.

Parameters:
  - ctx: context.Context
  - input: LoginInput

Returns:
  - *LoginSession: Token pair plus the resolved principal
  - error: Unauthorized on bad credentials, ServiceUnavailable without an account
    source, Internal on lookup failures
*/
func (service *Service) Login(ctx context.Context, input LoginInput) (*LoginSession, error) {

	// 1. Resolve the account within the tenant
	account, err := service.accounts.FindByLogin(ctx, input.Tenant, strings.TrimSpace(input.Login))
	if err != nil {
		switch apperr.CodeOf(err) {
		case apperr.CodeNotFound:
			// Equalize timing with the wrong-password path.
			sec.CheckPasswordHash(input.Password, dummyPasswordHash)
			return nil, apperr.Unauthorized("Invalid login or password")
		case apperr.CodeServiceUnavailable:
			return nil, err
		}
		return nil, apperr.Internal(fmt.Errorf("auth_service_login_lookup_failed: %w", err))
	}

	// 2. Verify the password
	if !sec.CheckPasswordHash(input.Password, account.PasswordHash) {
		return nil, apperr.Unauthorized("Invalid login or password")
	}

	// 3. Reject disabled accounts only after the password matched
	if account.Disabled {
		return nil, apperr.Forbidden("Account is disabled")
	}

	// 4. Issue the pair
	pair, err := service.tokens.Issue(account.Attributes())
	if err != nil {
		return nil, err
	}

	service.logger.InfoContext(ctx, "session_issued",
		slog.String("user_id", account.ID),
		slog.Int64("tenant_id", int64(account.TenantID)),
		slog.String("token_id", pair.TokenID),
	)

	return &LoginSession{
		TokenPair: pair,
		User:      identity.NewPrincipal(account.Attributes()),
	}, nil
}

/*
Refresh rotates a session: the presented refresh token is revoked and a new
pair is issued.

Returns:
  - *sec.TokenPair: New credentials
  - error: Token kinds from [sec.TokenService.Refresh]
*/
func (service *Service) Refresh(ctx context.Context, refreshToken string) (*sec.TokenPair, error) {
	if strings.TrimSpace(refreshToken) == "" {
		return nil, apperr.MissingToken()
	}
	return service.tokens.Refresh(ctx, refreshToken)
}

/*
Logout revokes the token family of the caller's access token.

Description: Access and refresh tokens of one session share a family id, so
revoking the family ends both. The access token must belong to principal.

Parameters:
  - ctx: context.Context
  - principal: identity.Principal (the authenticated caller)
  - accessToken: string (the bearer token of the current request)

Returns:
  - error: Forbidden if the token belongs to someone else
*/
func (service *Service) Logout(ctx context.Context, principal identity.Principal, accessToken string) error {
	claims, err := service.tokens.ValidateAccess(ctx, accessToken)
	if err != nil {
		return err
	}

	if claims.SubjectID() != principal.UserID() || claims.TenantID != principal.TenantID() {
		return apperr.Forbidden("Token does not belong to the caller")
	}

	if err := service.tokens.Revoke(ctx, claims.TokenID()); err != nil {
		return err
	}

	service.logger.InfoContext(ctx, "session_revoked",
		slog.String("user_id", principal.UserID()),
		slog.String("token_id", claims.TokenID()),
	)
	return nil
}

/*
RevokeToken revokes an arbitrary token family on behalf of an operator.

Description: Authorization is enforced by the route declaration; this method
only records who revoked what.
*/
func (service *Service) RevokeToken(ctx context.Context, operator identity.Principal, tokenID string) error {
	if err := service.tokens.Revoke(ctx, tokenID); err != nil {
		return err
	}

	service.logger.WarnContext(ctx, "token_revoked_by_operator",
		slog.String("operator_id", operator.UserID()),
		slog.String("token_id", tokenID),
	)
	return nil
}
