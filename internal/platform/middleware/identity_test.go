// Copyright (c) 2026 Leomall. All rights reserved.
// Author: leozheng-Miao

package middleware_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leozheng-Miao/leomall-sub001/internal/identity"
	"github.com/leozheng-Miao/leomall-sub001/internal/platform/apperr"
	"github.com/leozheng-Miao/leomall-sub001/internal/platform/middleware"
	"github.com/leozheng-Miao/leomall-sub001/internal/platform/sec"
)

// # Fakes

type fakeVerifier struct {
	calls  atomic.Int32
	tokens map[string]*sec.TokenClaims
	errs   map[string]error
}

func newFakeVerifier() *fakeVerifier {
	return &fakeVerifier{
		tokens: map[string]*sec.TokenClaims{},
		errs:   map[string]error{},
	}
}

func (f *fakeVerifier) ValidateAccess(_ context.Context, token string) (*sec.TokenClaims, error) {
	f.calls.Add(1)
	if err, ok := f.errs[token]; ok {
		return nil, err
	}
	if claims, ok := f.tokens[token]; ok {
		return claims, nil
	}
	return nil, apperr.TokenInvalid(errors.New("unknown token"))
}

func adminClaims(userID string, tenant identity.TenantID, permissions ...string) *sec.TokenClaims {
	return &sec.TokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: userID, ID: "family-" + userID},
		TenantID:         tenant,
		Username:         userID,
		UserType:         identity.UserTypeAdmin,
		Roles:            []string{"ADMIN"},
		Permissions:      permissions,
		TokenType:        sec.TokenTypeAccess,
	}
}

// observed is what a handler saw in its request scope.
type observed struct {
	called    bool
	tenant    identity.TenantID
	principal *identity.Principal
	scope     *identity.Scope
}

func observe(target *observed) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		target.called = true
		target.tenant = identity.Tenant(r.Context())
		target.scope = identity.ScopeFrom(r.Context())
		if principal, ok := identity.PrincipalFrom(r.Context()); ok {
			target.principal = &principal
		}
		w.WriteHeader(http.StatusOK)
	}
}

func pipeline(verifier middleware.TokenVerifier, policy middleware.RoutePolicy, handler http.Handler) http.Handler {
	router := chi.NewRouter()
	router.Use(middleware.Scope)
	router.Use(middleware.ResolveTenant(middleware.TenantOptions{Default: identity.DefaultTenantID}))
	router.Use(middleware.Authenticate(verifier, policy))
	router.Handle("/*", handler)
	return router
}

func errorCode(t *testing.T, recorder *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Code string `json:"code"`
	}
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &body))
	return body.Code
}

// # Tenant Resolution

func TestResolveTenant(t *testing.T) {
	tests := []struct {
		name       string
		header     string
		fallback   identity.TenantID
		wantStatus int
		wantTenant identity.TenantID
	}{
		{"absent_uses_default", "", identity.DefaultTenantID, http.StatusOK, 1},
		{"absent_uses_configured_default", "", 42, http.StatusOK, 42},
		{"valid_marker", "7", identity.DefaultTenantID, http.StatusOK, 7},
		{"whitespace_trimmed", " 12 ", identity.DefaultTenantID, http.StatusOK, 12},
		{"non_numeric", "acme", identity.DefaultTenantID, http.StatusBadRequest, 0},
		{"zero", "0", identity.DefaultTenantID, http.StatusBadRequest, 0},
		{"negative", "-3", identity.DefaultTenantID, http.StatusBadRequest, 0},
		{"overflow", "99999999999999999999", identity.DefaultTenantID, http.StatusBadRequest, 0},
		{"signed", "+7", identity.DefaultTenantID, http.StatusBadRequest, 0},
		{"leading_zeros", "007", identity.DefaultTenantID, http.StatusBadRequest, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var seen observed
			handler := middleware.Scope(middleware.ResolveTenant(middleware.TenantOptions{Default: tt.fallback})(observe(&seen)))

			request := httptest.NewRequest(http.MethodGet, "/products", nil)
			if tt.header != "" {
				request.Header.Set("X-Tenant-Id", tt.header)
			}
			recorder := httptest.NewRecorder()
			handler.ServeHTTP(recorder, request)

			assert.Equal(t, tt.wantStatus, recorder.Code)
			if tt.wantStatus != http.StatusOK {
				assert.False(t, seen.called)
				assert.Equal(t, apperr.CodeBadTenantID, errorCode(t, recorder))
				return
			}
			assert.Equal(t, tt.wantTenant, seen.tenant)
		})
	}
}

func TestResolveTenant_CustomHeaderWithoutScope(t *testing.T) {
	var seen observed
	handler := middleware.ResolveTenant(middleware.TenantOptions{Header: "X-Shop"})(observe(&seen))

	request := httptest.NewRequest(http.MethodGet, "/", nil)
	request.Header.Set("X-Shop", "5")
	handler.ServeHTTP(httptest.NewRecorder(), request)

	require.True(t, seen.called)
	assert.Equal(t, identity.TenantID(5), seen.tenant)
	assert.True(t, seen.scope.Released())
}

// # Authentication

func TestAuthenticate_Modes(t *testing.T) {
	verifier := newFakeVerifier()
	verifier.tokens["good"] = adminClaims("u-1", 7, "ORDER_CANCEL")
	verifier.errs["expired"] = apperr.TokenExpired(jwt.ErrTokenExpired)
	verifier.errs["revoked"] = apperr.TokenRevoked()
	verifier.errs["refresh"] = apperr.WrongTokenType("access")
	verifier.errs["store-down"] = apperr.Internal(errors.New("redis: connection refused"))

	policy := middleware.RoutePolicy{Optional: []string{"/catalog/**"}}

	tests := []struct {
		name          string
		path          string
		authorization string
		wantStatus    int
		wantCode      string
		wantPrincipal bool
	}{
		{"required_valid", "/orders", "Bearer good", http.StatusOK, "", true},
		{"required_missing", "/orders", "", http.StatusUnauthorized, apperr.CodeMissingToken, false},
		{"required_expired", "/orders", "Bearer expired", http.StatusUnauthorized, apperr.CodeTokenExpired, false},
		{"required_revoked", "/orders", "Bearer revoked", http.StatusUnauthorized, apperr.CodeTokenRevoked, false},
		{"required_tampered", "/orders", "Bearer forged", http.StatusUnauthorized, apperr.CodeTokenInvalid, false},
		{"required_refresh_token", "/orders", "Bearer refresh", http.StatusUnauthorized, apperr.CodeWrongTokenType, false},
		{"required_malformed_header", "/orders", "Basic Zm9vOmJhcg==", http.StatusUnauthorized, apperr.CodeUnauthorized, false},
		{"required_store_outage", "/orders", "Bearer store-down", http.StatusInternalServerError, apperr.CodeInternal, false},
		{"optional_missing", "/catalog/items", "", http.StatusOK, "", false},
		{"optional_expired", "/catalog/items", "Bearer expired", http.StatusOK, "", false},
		{"optional_store_outage", "/catalog", "Bearer store-down", http.StatusOK, "", false},
		{"optional_valid", "/catalog/items", "Bearer good", http.StatusOK, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var seen observed
			handler := pipeline(verifier, policy, observe(&seen))

			request := httptest.NewRequest(http.MethodGet, tt.path, nil)
			if tt.authorization != "" {
				request.Header.Set("Authorization", tt.authorization)
			}
			recorder := httptest.NewRecorder()
			handler.ServeHTTP(recorder, request)

			assert.Equal(t, tt.wantStatus, recorder.Code)
			if tt.wantCode != "" {
				assert.False(t, seen.called, "handler must not run")
				assert.Equal(t, tt.wantCode, errorCode(t, recorder))
				return
			}
			require.True(t, seen.called)
			assert.Equal(t, tt.wantPrincipal, seen.principal != nil)
		})
	}
}

func TestAuthenticate_ExemptNeverReadsToken(t *testing.T) {
	verifier := newFakeVerifier()

	for _, target := range []string{"/health", "/api/v1/auth/login", "/docs/index.html", "/docs", "/error"} {
		var seen observed
		recorder := httptest.NewRecorder()
		request := httptest.NewRequest(http.MethodGet, target, nil)
		request.Header.Set("Authorization", "Bearer garbage")

		pipeline(verifier, middleware.RoutePolicy{}, observe(&seen)).ServeHTTP(recorder, request)

		assert.Equal(t, http.StatusOK, recorder.Code, target)
		assert.Nil(t, seen.principal, target)
	}
	assert.Zero(t, verifier.calls.Load())
}

func TestAuthenticate_EncodedDotSegmentsStayRequired(t *testing.T) {
	verifier := newFakeVerifier()
	targets := []string{
		"/api/v1/orders/x%2F..%2F..%2F..%2F..%2Fhealth",
		"/api/v1/orders/x%2F..%2F..%2F..%2F..%2Fmetrics",
		"/docs/../api/v1/orders/9",
		"/health/%2E%2E/api/v1/orders/9",
	}

	for _, target := range targets {
		var seen observed
		recorder := httptest.NewRecorder()

		pipeline(verifier, middleware.RoutePolicy{}, observe(&seen)).
			ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, target, nil))

		assert.Equal(t, http.StatusUnauthorized, recorder.Code, target)
		assert.Equal(t, apperr.CodeMissingToken, errorCode(t, recorder), target)
		assert.False(t, seen.called, target)
	}
}

// Exempt route, no tenant header, no token: succeeds with nothing populated.
func TestScenario_ExemptRouteAnonymous(t *testing.T) {
	var seen observed
	recorder := httptest.NewRecorder()
	pipeline(newFakeVerifier(), middleware.RoutePolicy{}, observe(&seen)).
		ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, recorder.Code)
	assert.Equal(t, identity.DefaultTenantID, seen.tenant)
	assert.Nil(t, seen.principal)
}

// Principal fields match the claims and the scope is released afterwards.
func TestAuthenticate_PrincipalMatchesClaims(t *testing.T) {
	verifier := newFakeVerifier()
	claims := adminClaims("u-9", 7, "ORDER_CANCEL", "ORDER_READ")
	verifier.tokens["good"] = claims

	var seen observed
	request := httptest.NewRequest(http.MethodPost, "/orders/1/cancel", nil)
	request.Header.Set("Authorization", "Bearer good")
	request.Header.Set("X-Tenant-Id", "7")
	pipeline(verifier, middleware.RoutePolicy{}, observe(&seen)).ServeHTTP(httptest.NewRecorder(), request)

	require.NotNil(t, seen.principal)
	assert.Equal(t, claims.Principal().Attributes(), seen.principal.Attributes())
	assert.Equal(t, identity.TenantID(7), seen.tenant)

	require.NotNil(t, seen.scope)
	assert.True(t, seen.scope.Released())
	_, ok := seen.scope.Principal()
	assert.False(t, ok)
}

// # Guaranteed Release

func TestScope_ReleasedAfterPanic(t *testing.T) {
	var scope *identity.Scope
	handler := middleware.Scope(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		scope = identity.ScopeFrom(r.Context())
		scope.SetTenant(9)
		scope.SetPrincipal(identity.NewPrincipal(identity.Attributes{UserID: "u-panic"}))
		panic("boom")
	}))

	assert.Panics(t, func() {
		handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	})

	require.NotNil(t, scope)
	assert.True(t, scope.Released())
	_, tenantSet := scope.Tenant()
	assert.False(t, tenantSet)
}

func TestScope_ReleasedAfterCancellation(t *testing.T) {
	var scope *identity.Scope
	handler := middleware.Scope(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		scope = identity.ScopeFrom(r.Context())
		scope.SetTenant(4)
		<-r.Context().Done()
		w.WriteHeader(http.StatusServiceUnavailable)
	}))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	request := httptest.NewRequest(http.MethodGet, "/", nil).WithContext(ctx)
	handler.ServeHTTP(httptest.NewRecorder(), request)

	require.NotNil(t, scope)
	assert.True(t, scope.Released())
	_, tenantSet := scope.Tenant()
	assert.False(t, tenantSet)
}

func TestPipeline_ConcurrentRequestsAreIsolated(t *testing.T) {
	verifier := newFakeVerifier()
	for i := 1; i <= 20; i++ {
		id := strconv.Itoa(i)
		verifier.tokens["t"+id] = adminClaims("u-"+id, identity.TenantID(i))
	}

	var mu sync.Mutex
	mismatches := 0
	handler := pipeline(verifier, middleware.RoutePolicy{}, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		principal, ok := identity.PrincipalFrom(r.Context())
		tenant := identity.Tenant(r.Context())
		mu.Lock()
		if !ok || principal.UserID() != "u-"+tenant.String() {
			mismatches++
		}
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))

	var wg sync.WaitGroup
	for i := 1; i <= 20; i++ {
		for j := 0; j < 10; j++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				id := strconv.Itoa(i)
				request := httptest.NewRequest(http.MethodGet, "/orders", nil)
				request.Header.Set("X-Tenant-Id", id)
				request.Header.Set("Authorization", "Bearer t"+id)
				handler.ServeHTTP(httptest.NewRecorder(), request)
			}(i)
		}
	}
	wg.Wait()

	assert.Zero(t, mismatches)
}

func TestStructuredLogger_LogsIdentityBeforeRelease(t *testing.T) {
	var buffer bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buffer, nil))

	verifier := newFakeVerifier()
	verifier.tokens["good"] = adminClaims("u-log", 3)

	router := chi.NewRouter()
	router.Use(middleware.RequestID())
	router.Use(middleware.Scope)
	router.Use(middleware.StructuredLogger(logger))
	router.Use(middleware.ResolveTenant(middleware.TenantOptions{}))
	router.Use(middleware.Authenticate(verifier, middleware.RoutePolicy{}))
	router.Get("/orders", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })

	request := httptest.NewRequest(http.MethodGet, "/orders", nil)
	request.Header.Set("X-Tenant-Id", "3")
	request.Header.Set("Authorization", "Bearer good")
	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, request)

	require.Equal(t, http.StatusOK, recorder.Code)
	assert.NotEmpty(t, recorder.Header().Get("X-Request-ID"))

	var entry map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buffer.Bytes()), &entry))
	assert.Equal(t, "http_request_finished", entry["msg"])
	assert.Equal(t, float64(3), entry["tenant_id"])
	assert.Equal(t, "u-log", entry["user_id"])
	assert.NotContains(t, buffer.String(), "Bearer good")
}

// # Route Policy

func TestRoutePolicy_Mode(t *testing.T) {
	policy := middleware.RoutePolicy{
		Exempt:   []string{"/public/*", "/webhooks/**"},
		Optional: []string{"/catalog/**", "/public/feed"},
	}

	tests := []struct {
		path string
		want middleware.Mode
	}{
		{"/api/v1/auth/login", middleware.ModeExempt},
		{"/api/v1/auth/refresh", middleware.ModeExempt},
		{"/api/v1/auth/logout", middleware.ModeRequired},
		{"/health", middleware.ModeExempt},
		{"/docs/openapi.yaml", middleware.ModeExempt},
		{"/docs", middleware.ModeExempt},
		{"/docsx", middleware.ModeRequired},
		{"/public/banner", middleware.ModeExempt},
		{"/public/feed", middleware.ModeExempt},
		{"/public/a/b", middleware.ModeRequired},
		{"/webhooks/pay/notify", middleware.ModeExempt},
		{"/catalog", middleware.ModeOptional},
		{"/catalog/items/3", middleware.ModeOptional},
		{"/orders", middleware.ModeRequired},
		{"/health/../orders", middleware.ModeRequired},
		{"/docs/../orders", middleware.ModeRequired},
		{"/public/./banner", middleware.ModeRequired},
		{"/orders/x%2F..%2F..%2Fhealth", middleware.ModeRequired},
		{"/catalog/%2e%2e/orders", middleware.ModeOptional},
		{"/health/", middleware.ModeExempt},
		{"//health", middleware.ModeExempt},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.want, policy.Mode(tt.path))
		})
	}
}
