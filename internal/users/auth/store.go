// Copyright (c) 2026 Leomall. All rights reserved.
// Author: leozheng-Miao

package auth

import (
	"context"

	"github.com/leozheng-Miao/leomall-sub001/internal/identity"
	"github.com/leozheng-Miao/leomall-sub001/internal/platform/apperr"
)

// # Account Data Access

// AccountSource supplies credentials and the role/permission codes embedded in
// issued tokens.
type AccountSource interface {

	/*
		FindByLogin returns the account of tenant whose username or email equals login.

		Parameters:
		  - ctx: context.Context
		  - tenant: identity.TenantID
		  - login: string

		Returns:
		  - *Account: Hydrated entity including role and permission codes
		  - error: apperr.NotFound or retrieval failures
	*/
	FindByLogin(ctx context.Context, tenant identity.TenantID, login string) (*Account, error)
}

// UnavailableAccounts is the [AccountSource] of a deployment without an
// account database. Token validation keeps working; login does not.
type UnavailableAccounts struct{}

// FindByLogin always fails with SERVICE_UNAVAILABLE.
func (UnavailableAccounts) FindByLogin(context.Context, identity.TenantID, string) (*Account, error) {
	return nil, apperr.ServiceUnavailable("Login is not available on this deployment")
}
