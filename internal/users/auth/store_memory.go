// Copyright (c) 2026 Leomall. All rights reserved.
// Author: leozheng-Miao

package auth

import (
	"context"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// memoryCleanupInterval is how often expired revocation markers are purged.
const memoryCleanupInterval = time.Minute

// # In-Memory Revocation Store

// MemoryRevocationStore implements sec.RevocationStore in process memory.
//
// It is only correct for a single replica; use Redis or PostgreSQL when more
// than one process validates tokens.
type MemoryRevocationStore struct {
	cache *gocache.Cache
}

// NewMemoryRevocationStore creates an empty in-memory revocation store.
func NewMemoryRevocationStore() *MemoryRevocationStore {
	return &MemoryRevocationStore{cache: gocache.New(gocache.NoExpiration, memoryCleanupInterval)}
}

// IsRevoked reports whether an unexpired marker exists for tokenID.
func (store *MemoryRevocationStore) IsRevoked(_ context.Context, tokenID string) (bool, error) {
	_, found := store.cache.Get(RevokedKeyPrefix + tokenID)
	return found, nil
}

// Revoke adds a marker for tokenID unless one already exists.
func (store *MemoryRevocationStore) Revoke(_ context.Context, tokenID string, ttl time.Duration) (bool, error) {
	if err := store.cache.Add(RevokedKeyPrefix+tokenID, time.Now(), ttl); err != nil {
		// go-cache reports an existing, unexpired item as an error.
		return false, nil
	}
	return true, nil
}
