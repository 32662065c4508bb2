// Copyright (c) 2026 Leomall. All rights reserved.
// Author: leozheng-Miao

/*
Package auth implements the session entry points of the identity core.

It exposes login, refresh, logout and administrative revocation on top of
[sec.TokenService], and provides the concrete revocation stores (Redis, in-memory,
PostgreSQL) the token service consults on every validation.

# Architecture

Accounts, roles and permissions are owned by the user service. This package only
reads them through [AccountSource] when minting tokens; it never writes them.
*/
package auth

import (
	"github.com/leozheng-Miao/leomall-sub001/internal/identity"
)

// # Domain Entities

// Account is the credential view of a user as seen at login time.
type Account struct {
	ID           string            `json:"id"`
	TenantID     identity.TenantID `json:"tenant_id"`
	Username     string            `json:"username"`
	Nickname     string            `json:"nickname,omitempty"`
	UserType     identity.UserType `json:"user_type"`
	PasswordHash string            `json:"-"` // Explicitly omitted from JSON for security.
	Disabled     bool              `json:"disabled"`
	Roles        []string          `json:"roles"`
	Permissions  []string          `json:"permissions"`
}

// Attributes converts the account into the identity attributes embedded in tokens.
func (account *Account) Attributes() identity.Attributes {
	return identity.Attributes{
		UserID:      account.ID,
		Username:    account.Username,
		Nickname:    account.Nickname,
		UserType:    account.UserType,
		TenantID:    account.TenantID,
		Roles:       account.Roles,
		Permissions: account.Permissions,
	}
}

// # Field Identifiers

// Global field names for validation and identity mapping in the authentication domain.
const (
	FieldLogin        = "login"
	FieldPassword     = "password"
	FieldRefreshToken = "refresh_token"
	FieldTokenID      = "token_id"
	FieldAccessToken  = "access_token"
	FieldTokenType    = "token_type"
	FieldExpiresIn    = "expires_in"
	FieldUser         = "user"
)
