// Copyright (c) 2026 Leomall. All rights reserved.
// Author: leozheng-Miao

package auth

// # Authentication Constraints

const (
	// PermissionRevokeToken is required to revoke another user's token family.
	PermissionRevokeToken = "AUTH_TOKEN_REVOKE"

	// RevokedKeyPrefix namespaces revoked token families in Redis and go-cache.
	RevokedKeyPrefix = "auth:revoked:"
)
