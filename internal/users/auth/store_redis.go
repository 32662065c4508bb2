// Copyright (c) 2026 Leomall. All rights reserved.
// Author: leozheng-Miao

package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// # Redis Revocation Store

// RedisRevocationStore implements sec.RevocationStore using Redis keys with TTL.
type RedisRevocationStore struct {
	client *redis.Client
}

// NewRedisRevocationStore creates a new Redis-backed revocation store.
func NewRedisRevocationStore(client *redis.Client) *RedisRevocationStore {
	return &RedisRevocationStore{client: client}
}

/*
IsRevoked reports whether the token family has a revocation marker.

Parameters:
  - ctx: context.Context
  - tokenID: string

Returns:
  - bool: Whether the family is revoked
  - error: Connectivity errors
*/
func (store *RedisRevocationStore) IsRevoked(ctx context.Context, tokenID string) (bool, error) {
	count, err := store.client.Exists(ctx, RevokedKeyPrefix+tokenID).Result()
	if err != nil {
		return false, fmt.Errorf("redis_revocation_exists_failed: %w", err)
	}
	return count > 0, nil
}

/*
Revoke writes a revocation marker that expires after ttl.

Description: Uses SET NX so concurrent callers agree on which one revoked first.

Parameters:
  - ctx: context.Context
  - tokenID: string
  - ttl: time.Duration

Returns:
  - bool: Whether this call created the marker
  - error: Connectivity errors
*/
func (store *RedisRevocationStore) Revoke(ctx context.Context, tokenID string, ttl time.Duration) (bool, error) {
	created, err := store.client.SetNX(ctx, RevokedKeyPrefix+tokenID, time.Now().Unix(), ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis_revocation_set_failed: %w", err)
	}
	return created, nil
}
