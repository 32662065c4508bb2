// Copyright (c) 2026 Leomall. All rights reserved.
// Author: leozheng-Miao

// Package sec provides cryptographic primitives and token management.
//
// # Architecture
//
// This package isolates security-sensitive code (Hashing, JWT Signing) from
// the request pipeline. The [TokenService] issues, validates, refreshes and
// revokes signed identity tokens; revocation state lives behind the
// [RevocationStore] interface so validators hold no session state themselves.
package sec

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/leozheng-Miao/leomall-sub001/internal/identity"
	"github.com/leozheng-Miao/leomall-sub001/internal/platform/apperr"
)

// # Contracts

// RevocationStore tracks revoked token family ids.
//
// Implementations must be safe for concurrent use. Revoke is idempotent and
// reports whether this call was the one that revoked the family.
type RevocationStore interface {
	// IsRevoked reports whether the token family has been revoked.
	IsRevoked(ctx context.Context, tokenID string) (bool, error)

	// Revoke marks the token family as revoked for at least ttl.
	Revoke(ctx context.Context, tokenID string, ttl time.Duration) (bool, error)
}

// TokenConfig holds the process-wide token settings.
type TokenConfig struct {
	// Issuer is the "iss" claim written and required on every token.
	Issuer string

	// AccessTTL is the lifetime of access tokens (minutes).
	AccessTTL time.Duration

	// RefreshTTL is the lifetime of refresh tokens (days). Must exceed AccessTTL.
	RefreshTTL time.Duration

	// Keys is the signing algorithm and key material.
	Keys SigningKeys
}

// Option customizes a [TokenService].
type Option func(*TokenService)

// WithClock overrides the time source used for issuing and validating tokens.
func WithClock(now func() time.Time) Option {
	return func(service *TokenService) {
		service.now = now
	}
}

// TokenService handles generation, verification and revocation of JWT tokens.
type TokenService struct {
	config TokenConfig
	store  RevocationStore
	parser *jwt.Parser
	now    func() time.Time
}

// NewTokenService creates a new TokenService.
//
// It rejects configurations where an access token would not expire strictly
// before its paired refresh token.
func NewTokenService(config TokenConfig, store RevocationStore, options ...Option) (*TokenService, error) {
	if config.Keys.method == nil {
		return nil, errors.New("sec: signing keys are not configured")
	}
	if store == nil {
		return nil, errors.New("sec: revocation store is required")
	}
	if config.AccessTTL <= 0 {
		return nil, fmt.Errorf("sec: access token ttl must be positive, got %s", config.AccessTTL)
	}
	if config.RefreshTTL <= config.AccessTTL {
		return nil, fmt.Errorf("sec: refresh token ttl %s must exceed access token ttl %s", config.RefreshTTL, config.AccessTTL)
	}

	service := &TokenService{
		config: config,
		store:  store,
		now:    time.Now,
	}
	for _, option := range options {
		option(service)
	}

	service.parser = jwt.NewParser(
		jwt.WithValidMethods([]string{config.Keys.Algorithm()}),
		jwt.WithIssuer(config.Issuer),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(service.now),
	)

	return service, nil
}

// AccessTTL returns the configured access token lifetime.
func (service *TokenService) AccessTTL() time.Duration { return service.config.AccessTTL }

// RefreshTTL returns the configured refresh token lifetime.
func (service *TokenService) RefreshTTL() time.Duration { return service.config.RefreshTTL }

// # Issuance

// Issue produces a signed access token and a signed refresh token sharing one
// token family id.
//
// It fails with a TOKEN_SIGNING_FAILED [apperr.AppError] if the claims cannot be
// serialized or signed.
func (service *TokenService) Issue(attrs identity.Attributes) (*TokenPair, error) {
	if attrs.UserID == "" {
		return nil, apperr.SigningFailed(errors.New("sec: subject id is required"))
	}

	familyID, err := uuid.NewV7()
	if err != nil {
		return nil, apperr.SigningFailed(fmt.Errorf("sec: failed to generate token id: %w", err))
	}

	issuedAt := service.now()
	accessExpiresAt := issuedAt.Add(service.config.AccessTTL)
	refreshExpiresAt := issuedAt.Add(service.config.RefreshTTL)

	accessToken, err := service.sign(attrs, familyID.String(), TokenTypeAccess, issuedAt, accessExpiresAt)
	if err != nil {
		return nil, err
	}

	refreshToken, err := service.sign(attrs, familyID.String(), TokenTypeRefresh, issuedAt, refreshExpiresAt)
	if err != nil {
		return nil, err
	}

	return &TokenPair{
		AccessToken:           accessToken,
		RefreshToken:          refreshToken,
		TokenID:               familyID.String(),
		AccessTokenExpiresAt:  accessExpiresAt,
		RefreshTokenExpiresAt: refreshExpiresAt,
	}, nil
}

func (service *TokenService) sign(attrs identity.Attributes, tokenID string, tokenType TokenType, issuedAt, expiresAt time.Time) (string, error) {
	claims := TokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        tokenID,
			Subject:   attrs.UserID,
			Issuer:    service.config.Issuer,
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		TenantID:    attrs.TenantID,
		Username:    attrs.Username,
		Nickname:    attrs.Nickname,
		UserType:    attrs.UserType,
		Roles:       attrs.Roles,
		Permissions: attrs.Permissions,
		TokenType:   tokenType,
	}

	token := jwt.NewWithClaims(service.config.Keys.method, claims)
	signedToken, err := token.SignedString(service.config.Keys.signKey)
	if err != nil {
		return "", apperr.SigningFailed(fmt.Errorf("sec: failed to sign %s token: %w", tokenType, err))
	}

	return signedToken, nil
}

// # Validation

// Validate verifies the signature, expiry and revocation status of a token of
// either type.
//
// # Errors
//   - TOKEN_EXPIRED: the token is past its expiry.
//   - TOKEN_INVALID: the token is tampered, malformed, or missing required claims.
//   - TOKEN_REVOKED: the token family has been revoked.
//   - INTERNAL_ERROR: the revocation store could not be consulted.
func (service *TokenService) Validate(ctx context.Context, tokenString string) (*TokenClaims, error) {
	claims := &TokenClaims{}
	_, err := service.parser.ParseWithClaims(tokenString, claims, service.keyFunc)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, apperr.TokenExpired(err)
		}
		return nil, apperr.TokenInvalid(err)
	}

	if claims.ID == "" || claims.Subject == "" {
		return nil, apperr.TokenInvalid(errors.New("sec: token is missing jti or sub"))
	}
	if claims.TokenType != TokenTypeAccess && claims.TokenType != TokenTypeRefresh {
		return nil, apperr.TokenInvalid(fmt.Errorf("sec: unknown token type %q", claims.TokenType))
	}

	revoked, err := service.store.IsRevoked(ctx, claims.ID)
	if err != nil {
		return nil, apperr.Internal(fmt.Errorf("sec: revocation lookup failed: %w", err))
	}
	if revoked {
		return nil, apperr.TokenRevoked()
	}

	return claims, nil
}

// ValidateAccess is [TokenService.Validate] restricted to access tokens. A refresh
// token presented as a bearer credential fails with WRONG_TOKEN_TYPE.
func (service *TokenService) ValidateAccess(ctx context.Context, tokenString string) (*TokenClaims, error) {
	claims, err := service.Validate(ctx, tokenString)
	if err != nil {
		return nil, err
	}
	if claims.TokenType != TokenTypeAccess {
		return nil, apperr.WrongTokenType(string(TokenTypeAccess))
	}
	return claims, nil
}

func (service *TokenService) keyFunc(token *jwt.Token) (interface{}, error) {
	if token.Method.Alg() != service.config.Keys.Algorithm() {
		return nil, fmt.Errorf("sec: unexpected signing method: %v", token.Header["alg"])
	}
	return service.config.Keys.verifyKey, nil
}

// # Rotation & Revocation

// Refresh validates a refresh token, revokes its family and issues a new pair.
//
// It fails with the same kinds as [TokenService.Validate], plus WRONG_TOKEN_TYPE
// when given an access token. A refresh token that loses a concurrent rotation
// race fails with TOKEN_REVOKED, so each refresh token is redeemable once.
func (service *TokenService) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	claims, err := service.Validate(ctx, refreshToken)
	if err != nil {
		return nil, err
	}
	if claims.TokenType != TokenTypeRefresh {
		return nil, apperr.WrongTokenType(string(TokenTypeRefresh))
	}

	// Rotation: revoke the old family for the rest of its lifetime to prevent replay.
	remaining := claims.ExpiresAtTime().Sub(service.now())
	if remaining < time.Second {
		remaining = time.Second
	}
	revokedNow, err := service.store.Revoke(ctx, claims.ID, remaining)
	if err != nil {
		return nil, apperr.Internal(fmt.Errorf("sec: failed to revoke rotated token: %w", err))
	}
	if !revokedNow {
		return nil, apperr.TokenRevoked()
	}

	return service.Issue(claims.Principal().Attributes())
}

// Revoke marks a token family as revoked. It is idempotent.
func (service *TokenService) Revoke(ctx context.Context, tokenID string) error {
	if tokenID == "" {
		return apperr.ValidationError("Token id is required")
	}
	if _, err := service.store.Revoke(ctx, tokenID, service.config.RefreshTTL); err != nil {
		return apperr.Internal(fmt.Errorf("sec: failed to revoke token %s: %w", tokenID, err))
	}
	return nil
}

// Inspect decodes a token's claims WITHOUT verifying it. It is meant for operator
// tooling only; never use the result for access decisions.
func Inspect(tokenString string) (*TokenClaims, error) {
	claims := &TokenClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(tokenString, claims); err != nil {
		return nil, fmt.Errorf("sec: failed to decode token: %w", err)
	}
	return claims, nil
}
