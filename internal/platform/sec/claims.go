// Copyright (c) 2026 Leomall. All rights reserved.
// Author: leozheng-Miao

package sec

import (
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/leozheng-Miao/leomall-sub001/internal/identity"
)

// # Token Types

// TokenType distinguishes short-lived access tokens from long-lived refresh tokens.
type TokenType string

const (
	TokenTypeAccess  TokenType = "access"
	TokenTypeRefresh TokenType = "refresh"
)

// # Claims

// TokenClaims represents the payload embedded inside every Leomall token.
//
// # Why custom claims?
//
// By embedding the tenant, roles and permission codes directly inside the JWT,
// the authentication stage can reconstruct the principal WITHOUT querying the
// user service on every request. The registered "sub" claim carries the subject
// id and "jti" the token family id shared by an access/refresh pair.
type TokenClaims struct {
	jwt.RegisteredClaims

	// Custom application claims are abbreviated to keep the JWT payload small.
	TenantID    identity.TenantID `json:"tid"`
	Username    string            `json:"unm,omitempty"`
	Nickname    string            `json:"nnm,omitempty"`
	UserType    identity.UserType `json:"utp"`
	Roles       []string          `json:"rol,omitempty"`
	Permissions []string          `json:"prm,omitempty"`
	TokenType   TokenType         `json:"tkt"`
}

// SubjectID returns the id of the user the token was issued to.
func (c *TokenClaims) SubjectID() string { return c.Subject }

// TokenID returns the token family id used for revocation lookups.
func (c *TokenClaims) TokenID() string { return c.ID }

// IssuedAtTime returns the issue instant, or the zero time if absent.
func (c *TokenClaims) IssuedAtTime() time.Time {
	if c.IssuedAt == nil {
		return time.Time{}
	}
	return c.IssuedAt.Time
}

// ExpiresAtTime returns the expiry instant, or the zero time if absent.
func (c *TokenClaims) ExpiresAtTime() time.Time {
	if c.ExpiresAt == nil {
		return time.Time{}
	}
	return c.ExpiresAt.Time
}

// Principal builds the immutable request principal described by the claims.
func (c *TokenClaims) Principal() identity.Principal {
	return identity.NewPrincipal(identity.Attributes{
		UserID:      c.Subject,
		Username:    c.Username,
		Nickname:    c.Nickname,
		UserType:    c.UserType,
		TenantID:    c.TenantID,
		Roles:       c.Roles,
		Permissions: c.Permissions,
	})
}

// TokenPair is the result of issuing or refreshing a session.
type TokenPair struct {
	AccessToken           string    `json:"access_token"`
	RefreshToken          string    `json:"refresh_token"`
	TokenID               string    `json:"token_id"`
	AccessTokenExpiresAt  time.Time `json:"access_token_expires_at"`
	RefreshTokenExpiresAt time.Time `json:"refresh_token_expires_at"`
}
