// Copyright (c) 2026 Leomall. All rights reserved.
// Author: leozheng-Miao

package sec

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leozheng-Miao/leomall-sub001/internal/identity"
	"github.com/leozheng-Miao/leomall-sub001/internal/platform/apperr"
)

// # Test Doubles

type fakeRevocationStore struct {
	mu      sync.Mutex
	revoked map[string]time.Duration
	err     error
}

func newFakeStore() *fakeRevocationStore {
	return &fakeRevocationStore{revoked: map[string]time.Duration{}}
}

func (store *fakeRevocationStore) IsRevoked(_ context.Context, tokenID string) (bool, error) {
	store.mu.Lock()
	defer store.mu.Unlock()
	if store.err != nil {
		return false, store.err
	}
	_, ok := store.revoked[tokenID]
	return ok, nil
}

func (store *fakeRevocationStore) Revoke(_ context.Context, tokenID string, ttl time.Duration) (bool, error) {
	store.mu.Lock()
	defer store.mu.Unlock()
	if store.err != nil {
		return false, store.err
	}
	if _, ok := store.revoked[tokenID]; ok {
		return false, nil
	}
	store.revoked[tokenID] = ttl
	return true, nil
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (clock *testClock) Now() time.Time {
	clock.mu.Lock()
	defer clock.mu.Unlock()
	return clock.now
}

func (clock *testClock) Advance(d time.Duration) {
	clock.mu.Lock()
	defer clock.mu.Unlock()
	clock.now = clock.now.Add(d)
}

var testSecret = []byte("0123456789abcdef0123456789abcdef")

func newTestService(t *testing.T, keys SigningKeys) (*TokenService, *fakeRevocationStore, *testClock) {
	t.Helper()
	store := newFakeStore()
	clock := &testClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}

	service, err := NewTokenService(TokenConfig{
		Issuer:     "leomall.test",
		AccessTTL:  15 * time.Minute,
		RefreshTTL: 7 * 24 * time.Hour,
		Keys:       keys,
	}, store, WithClock(clock.Now))
	require.NoError(t, err)

	return service, store, clock
}

func hmacKeys(t *testing.T) SigningKeys {
	t.Helper()
	keys, err := HMACKey(testSecret)
	require.NoError(t, err)
	return keys
}

func adminAttributes() identity.Attributes {
	return identity.Attributes{
		UserID:      "1001",
		Username:    "root",
		Nickname:    "Root",
		UserType:    identity.UserTypeAdmin,
		TenantID:    7,
		Roles:       []string{"ADMIN"},
		Permissions: []string{"ORDER_CANCEL", "ORDER_VIEW"},
	}
}

// # Configuration

/*
TestNewTokenService_RejectsBadConfig verifies TTL ordering and required collaborators.
*/
func TestNewTokenService_RejectsBadConfig(t *testing.T) {
	keys := hmacKeys(t)

	_, err := NewTokenService(TokenConfig{AccessTTL: time.Hour, RefreshTTL: time.Hour, Keys: keys}, newFakeStore())
	assert.Error(t, err, "refresh ttl must exceed access ttl")

	_, err = NewTokenService(TokenConfig{AccessTTL: time.Minute, RefreshTTL: time.Hour, Keys: keys}, nil)
	assert.Error(t, err, "store is required")

	_, err = NewTokenService(TokenConfig{AccessTTL: time.Minute, RefreshTTL: time.Hour}, newFakeStore())
	assert.Error(t, err, "keys are required")

	_, err = HMACKey([]byte("short"))
	assert.Error(t, err)
}

// # Issue & Validate

/*
TestIssueValidate_RoundTrip verifies validate(issue(claims).access) recovers the claims.
*/
func TestIssueValidate_RoundTrip(t *testing.T) {
	privateKey, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	cases := map[string]SigningKeys{
		"HS256": hmacKeys(t),
		"RS256": RSAKeys(privateKey, &privateKey.PublicKey),
	}

	for name, keys := range cases {
		t.Run(name, func(t *testing.T) {
			service, _, clock := newTestService(t, keys)

			pair, err := service.Issue(adminAttributes())
			require.NoError(t, err)

			// Access expires strictly before refresh
			assert.True(t, pair.AccessTokenExpiresAt.Before(pair.RefreshTokenExpiresAt))
			assert.Equal(t, clock.Now().Add(15*time.Minute), pair.AccessTokenExpiresAt)

			claims, err := service.Validate(context.Background(), pair.AccessToken)
			require.NoError(t, err)

			assert.Equal(t, "1001", claims.SubjectID())
			assert.Equal(t, identity.TenantID(7), claims.TenantID)
			assert.Equal(t, identity.UserTypeAdmin, claims.UserType)
			assert.Equal(t, []string{"ADMIN"}, claims.Roles)
			assert.Equal(t, []string{"ORDER_CANCEL", "ORDER_VIEW"}, claims.Permissions)
			assert.Equal(t, TokenTypeAccess, claims.TokenType)
			assert.Equal(t, pair.TokenID, claims.TokenID())

			refreshClaims, err := service.Validate(context.Background(), pair.RefreshToken)
			require.NoError(t, err)
			assert.Equal(t, TokenTypeRefresh, refreshClaims.TokenType)
			assert.Equal(t, claims.TokenID(), refreshClaims.TokenID(), "pair shares one family id")
		})
	}
}

/*
TestClaims_Principal verifies the principal mirrors the claims exactly.
*/
func TestClaims_Principal(t *testing.T) {
	service, _, _ := newTestService(t, hmacKeys(t))

	pair, err := service.Issue(adminAttributes())
	require.NoError(t, err)
	claims, err := service.ValidateAccess(context.Background(), pair.AccessToken)
	require.NoError(t, err)

	principal := claims.Principal()
	assert.Equal(t, adminAttributes(), principal.Attributes())
}

/*
TestValidate_Expired verifies an access token past expiry fails with TOKEN_EXPIRED.
*/
func TestValidate_Expired(t *testing.T) {
	service, _, clock := newTestService(t, hmacKeys(t))

	pair, err := service.Issue(adminAttributes())
	require.NoError(t, err)

	clock.Advance(16 * time.Minute)

	_, err = service.Validate(context.Background(), pair.AccessToken)
	require.Error(t, err)
	assert.ErrorIs(t, err, apperr.ErrTokenExpired)
	assert.ErrorIs(t, err, jwt.ErrTokenExpired)

	// The refresh token is still valid
	_, err = service.Validate(context.Background(), pair.RefreshToken)
	assert.NoError(t, err)
}

/*
TestValidate_Tampered verifies signature and format failures map to TOKEN_INVALID.
*/
func TestValidate_Tampered(t *testing.T) {
	service, _, _ := newTestService(t, hmacKeys(t))

	pair, err := service.Issue(adminAttributes())
	require.NoError(t, err)

	parts := strings.Split(pair.AccessToken, ".")
	require.Len(t, parts, 3)

	// Swap the payload of the access token with the refresh token's payload
	refreshParts := strings.Split(pair.RefreshToken, ".")
	forged := parts[0] + "." + refreshParts[1] + "." + parts[2]

	otherKeys, err := HMACKey([]byte("ffffffffffffffffffffffffffffffff"))
	require.NoError(t, err)
	foreign, _, _ := newTestService(t, otherKeys)
	foreignPair, err := foreign.Issue(adminAttributes())
	require.NoError(t, err)

	for name, token := range map[string]string{
		"forged_payload": forged,
		"foreign_key":    foreignPair.AccessToken,
		"garbage":        "not-a-token",
		"empty":          "",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := service.Validate(context.Background(), token)
			require.Error(t, err)
			assert.Equal(t, apperr.CodeTokenInvalid, apperr.CodeOf(err))
		})
	}
}

/*
TestValidate_AlgorithmConfusion verifies tokens signed with another algorithm are rejected.
*/
func TestValidate_AlgorithmConfusion(t *testing.T) {
	privateKey, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	service, _, clock := newTestService(t, RSAKeys(privateKey, &privateKey.PublicKey))

	claims := TokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        "fam-1",
			Subject:   "1001",
			Issuer:    "leomall.test",
			IssuedAt:  jwt.NewNumericDate(clock.Now()),
			ExpiresAt: jwt.NewNumericDate(clock.Now().Add(time.Minute)),
		},
		TokenType: TokenTypeAccess,
	}
	unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = service.Validate(context.Background(), unsigned)
	assert.ErrorIs(t, err, apperr.ErrTokenInvalid)
}

/*
TestValidateAccess_RejectsRefresh verifies refresh tokens are not bearer credentials.
*/
func TestValidateAccess_RejectsRefresh(t *testing.T) {
	service, _, _ := newTestService(t, hmacKeys(t))

	pair, err := service.Issue(adminAttributes())
	require.NoError(t, err)

	_, err = service.ValidateAccess(context.Background(), pair.RefreshToken)
	assert.ErrorIs(t, err, apperr.ErrWrongTokenType)
}

/*
TestValidate_StoreFailure verifies a revocation store outage is an internal error.
*/
func TestValidate_StoreFailure(t *testing.T) {
	service, store, _ := newTestService(t, hmacKeys(t))

	pair, err := service.Issue(adminAttributes())
	require.NoError(t, err)

	store.err = errors.New("connection refused")
	_, err = service.Validate(context.Background(), pair.AccessToken)
	require.Error(t, err)
	assert.Equal(t, apperr.CodeInternal, apperr.CodeOf(err))
}

// # Revocation

/*
TestRevoke_Idempotent verifies revoking twice equals revoking once.
*/
func TestRevoke_Idempotent(t *testing.T) {
	service, store, _ := newTestService(t, hmacKeys(t))

	pair, err := service.Issue(adminAttributes())
	require.NoError(t, err)

	require.NoError(t, service.Revoke(context.Background(), pair.TokenID))
	require.NoError(t, service.Revoke(context.Background(), pair.TokenID))
	assert.Len(t, store.revoked, 1)
	assert.Equal(t, 7*24*time.Hour, store.revoked[pair.TokenID])

	for _, token := range []string{pair.AccessToken, pair.RefreshToken} {
		_, err = service.Validate(context.Background(), token)
		assert.ErrorIs(t, err, apperr.ErrTokenRevoked)
	}

	assert.ErrorIs(t, service.Revoke(context.Background(), ""), &apperr.AppError{Code: apperr.CodeValidation})
}

// # Refresh

/*
TestRefresh_Rotates verifies a refresh issues a new family and revokes the old one.
*/
func TestRefresh_Rotates(t *testing.T) {
	service, store, clock := newTestService(t, hmacKeys(t))

	pair, err := service.Issue(adminAttributes())
	require.NoError(t, err)

	clock.Advance(time.Hour)

	rotated, err := service.Refresh(context.Background(), pair.RefreshToken)
	require.NoError(t, err)
	assert.NotEqual(t, pair.TokenID, rotated.TokenID)

	// Old family lives in the store for the remaining refresh lifetime
	assert.Equal(t, 7*24*time.Hour-time.Hour, store.revoked[pair.TokenID])

	// The rotated access token carries the same identity
	claims, err := service.ValidateAccess(context.Background(), rotated.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, adminAttributes(), claims.Principal().Attributes())

	// Replaying the old refresh token fails
	_, err = service.Refresh(context.Background(), pair.RefreshToken)
	assert.ErrorIs(t, err, apperr.ErrTokenRevoked)
}

/*
TestRefresh_WithAccessToken verifies an access token cannot be redeemed for new tokens.
*/
func TestRefresh_WithAccessToken(t *testing.T) {
	service, store, _ := newTestService(t, hmacKeys(t))

	pair, err := service.Issue(adminAttributes())
	require.NoError(t, err)

	rotated, err := service.Refresh(context.Background(), pair.AccessToken)
	require.Error(t, err)
	assert.Nil(t, rotated)
	assert.ErrorIs(t, err, apperr.ErrWrongTokenType)
	assert.Empty(t, store.revoked, "no family is revoked and no tokens are issued")
}

/*
TestRefresh_Expired verifies an expired refresh token cannot be rotated.
*/
func TestRefresh_Expired(t *testing.T) {
	service, _, clock := newTestService(t, hmacKeys(t))

	pair, err := service.Issue(adminAttributes())
	require.NoError(t, err)

	clock.Advance(8 * 24 * time.Hour)

	_, err = service.Refresh(context.Background(), pair.RefreshToken)
	assert.ErrorIs(t, err, apperr.ErrTokenExpired)
}

// # Signing Failures

/*
TestIssue_SigningFailure verifies unusable key material surfaces as TOKEN_SIGNING_FAILED.
*/
func TestIssue_SigningFailure(t *testing.T) {
	broken := SigningKeys{method: jwt.SigningMethodRS256, signKey: []byte("not-an-rsa-key"), verifyKey: nil}
	service, _, _ := newTestService(t, broken)

	pair, err := service.Issue(adminAttributes())
	assert.Nil(t, pair)
	assert.ErrorIs(t, err, apperr.ErrSigningFailed)

	_, err = service.Issue(identity.Attributes{})
	assert.ErrorIs(t, err, apperr.ErrSigningFailed)
}

/*
TestInspect verifies operator decoding works without verification.
*/
func TestInspect(t *testing.T) {
	service, _, _ := newTestService(t, hmacKeys(t))

	pair, err := service.Issue(adminAttributes())
	require.NoError(t, err)

	claims, err := Inspect(pair.RefreshToken)
	require.NoError(t, err)
	assert.Equal(t, TokenTypeRefresh, claims.TokenType)

	_, err = Inspect("garbage")
	assert.Error(t, err)
}
