// Copyright (c) 2026 Leomall. All rights reserved.
// Author: leozheng-Miao

package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/leozheng-Miao/leomall-sub001/internal/identity"
	"github.com/leozheng-Miao/leomall-sub001/internal/platform/dberr"
)

// # Revocation Repository

// PostgresRevocationStore implements sec.RevocationStore on the auth.revoked_token table.
type PostgresRevocationStore struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

// NewPostgresRevocationStore creates a new PostgreSQL-backed revocation store.
func NewPostgresRevocationStore(pool *pgxpool.Pool) *PostgresRevocationStore {
	return &PostgresRevocationStore{pool: pool, now: time.Now}
}

/*
IsRevoked reports whether an unexpired revocation row exists for tokenID.

Parameters:
  - ctx: context.Context
  - tokenID: string

Returns:
  - bool: Whether the family is revoked
  - error: Connectivity errors
*/
func (repository *PostgresRevocationStore) IsRevoked(ctx context.Context, tokenID string) (bool, error) {
	const query = `
		SELECT EXISTS (
			SELECT 1 FROM auth.revoked_token
			WHERE token_id = $1 AND expires_at > $2
		)`

	var revoked bool
	if err := repository.pool.QueryRow(ctx, query, tokenID, repository.now()).Scan(&revoked); err != nil {
		return false, fmt.Errorf("postgres_revocation_lookup_failed: %w", err)
	}
	return revoked, nil
}

/*
Revoke inserts a revocation row that stays effective for ttl.

Description: An expired row left behind for the same id is replaced, so a purge
lagging behind never blocks a new revocation.

Returns:
  - bool: Whether this call created the effective row
  - error: Connectivity errors
*/
func (repository *PostgresRevocationStore) Revoke(ctx context.Context, tokenID string, ttl time.Duration) (bool, error) {
	const query = `
		INSERT INTO auth.revoked_token (token_id, revoked_at, expires_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (token_id) DO UPDATE
			SET revoked_at = EXCLUDED.revoked_at, expires_at = EXCLUDED.expires_at
			WHERE auth.revoked_token.expires_at <= EXCLUDED.revoked_at`

	now := repository.now()
	tag, err := repository.pool.Exec(ctx, query, tokenID, now, now.Add(ttl))
	if err != nil {
		return false, fmt.Errorf("postgres_revocation_insert_failed: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// DeleteExpired purges revocation rows whose tokens can no longer validate anyway.
func (repository *PostgresRevocationStore) DeleteExpired(ctx context.Context) (int64, error) {
	const query = `DELETE FROM auth.revoked_token WHERE expires_at <= $1`

	tag, err := repository.pool.Exec(ctx, query, repository.now())
	if err != nil {
		return 0, fmt.Errorf("postgres_revocation_purge_failed: %w", err)
	}
	return tag.RowsAffected(), nil
}

// # Account Repository

// PostgresAccountSource implements [AccountSource] over the user service's schema.
//
// It is strictly read-only.
type PostgresAccountSource struct {
	pool *pgxpool.Pool
}

// NewAccountSource creates a new PostgreSQL implementation of [AccountSource].
func NewAccountSource(pool *pgxpool.Pool) *PostgresAccountSource {
	return &PostgresAccountSource{pool: pool}
}

/*
FindByLogin retrieves an account by username or email within a tenant, together
with its role codes and the permission codes granted through those roles.

Parameters:
  - ctx: context.Context
  - tenant: identity.TenantID
  - login: string

Returns:
  - *Account: Hydrated entity
  - error: apperr.NotFound if no account matches
*/
func (repository *PostgresAccountSource) FindByLogin(ctx context.Context, tenant identity.TenantID, login string) (*Account, error) {
	const accountQuery = `
		SELECT id, tenantid, username, nickname, usertype, passwordhash, disabled
		FROM users.account
		WHERE tenantid = $1 AND (username = $2 OR lower(email) = lower($2))
		  AND deletedat IS NULL`

	var account Account
	err := repository.pool.QueryRow(ctx, accountQuery, int64(tenant), login).Scan(
		&account.ID,
		&account.TenantID,
		&account.Username,
		&account.Nickname,
		&account.UserType,
		&account.PasswordHash,
		&account.Disabled,
	)
	if err != nil {
		return nil, dberr.Wrap(err, "Account", "postgres_account_find_failed")
	}

	roles, err := repository.codes(ctx, `
		SELECT r.code
		FROM users.account_role ar
		JOIN users.role r ON r.id = ar.roleid
		WHERE ar.accountid = $1
		ORDER BY r.code`, account.ID)
	if err != nil {
		return nil, dberr.Wrap(err, "Account roles", "postgres_account_roles_failed")
	}

	permissions, err := repository.codes(ctx, `
		SELECT DISTINCT p.code
		FROM users.account_role ar
		JOIN users.role_permission rp ON rp.roleid = ar.roleid
		JOIN users.permission p ON p.id = rp.permissionid
		WHERE ar.accountid = $1
		ORDER BY p.code`, account.ID)
	if err != nil {
		return nil, dberr.Wrap(err, "Account permissions", "postgres_account_permissions_failed")
	}

	account.Roles = roles
	account.Permissions = permissions
	return &account, nil
}

func (repository *PostgresAccountSource) codes(ctx context.Context, query, accountID string) ([]string, error) {
	rows, err := repository.pool.Query(ctx, query, accountID)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}
