// Copyright (c) 2026 Leomall. All rights reserved.
// Author: leozheng-Miao

package requestutil_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leozheng-Miao/leomall-sub001/internal/identity"
	"github.com/leozheng-Miao/leomall-sub001/internal/platform/apperr"
	requestutil "github.com/leozheng-Miao/leomall-sub001/internal/platform/request"
	"github.com/leozheng-Miao/leomall-sub001/internal/platform/validate"
)

func newRequest(t *testing.T, principal *identity.Principal) *http.Request {
	t.Helper()
	ctx, release := identity.Begin(context.Background())
	t.Cleanup(release)
	if principal != nil {
		identity.ScopeFrom(ctx).SetPrincipal(*principal)
	}
	return httptest.NewRequest(http.MethodGet, "/me", nil).WithContext(ctx)
}

func alice() *identity.Principal {
	principal := identity.NewPrincipal(identity.Attributes{
		UserID:   "u-alice",
		Username: "alice",
		UserType: identity.UserTypeMember,
		TenantID: 3,
		Roles:    []string{"CUSTOMER"},
	})
	return &principal
}

func TestBindPrincipal_Required(t *testing.T) {
	called := false
	handler := requestutil.BindPrincipal(func(w http.ResponseWriter, _ *http.Request, p *identity.Principal) {
		called = true
		require.NotNil(t, p)
		assert.Equal(t, "u-alice", p.UserID())
		w.WriteHeader(http.StatusOK)
	})

	recorder := httptest.NewRecorder()
	handler(recorder, newRequest(t, nil))
	assert.Equal(t, http.StatusUnauthorized, recorder.Code)
	assert.Contains(t, recorder.Body.String(), apperr.CodeUnauthenticated)
	assert.False(t, called)

	recorder = httptest.NewRecorder()
	handler(recorder, newRequest(t, alice()))
	assert.Equal(t, http.StatusOK, recorder.Code)
	assert.True(t, called)
}

func TestBindPrincipal_Optional(t *testing.T) {
	var got *identity.Principal
	seen := false
	handler := requestutil.BindPrincipal(func(w http.ResponseWriter, _ *http.Request, p *identity.Principal) {
		seen = true
		got = p
		w.WriteHeader(http.StatusOK)
	}, requestutil.Optional())

	recorder := httptest.NewRecorder()
	handler(recorder, newRequest(t, nil))
	assert.Equal(t, http.StatusOK, recorder.Code)
	assert.True(t, seen)
	assert.Nil(t, got)

	handler(httptest.NewRecorder(), newRequest(t, alice()))
	require.NotNil(t, got)
	assert.Equal(t, identity.TenantID(3), got.TenantID())
}

func TestBindPrincipal_SnapshotIsolation(t *testing.T) {
	request := newRequest(t, alice())

	handler := requestutil.BindPrincipal(func(_ http.ResponseWriter, _ *http.Request, p *identity.Principal) {
		roles := p.Roles()
		roles[0] = "ADMIN"
		*p = identity.Principal{}
	})
	handler(httptest.NewRecorder(), request)

	stored, ok := identity.PrincipalFrom(request.Context())
	require.True(t, ok)
	assert.Equal(t, "u-alice", stored.UserID())
	assert.Equal(t, []string{"CUSTOMER"}, stored.Roles())
}

func TestRequiredPrincipal(t *testing.T) {
	_, err := requestutil.RequiredPrincipal(newRequest(t, nil))
	assert.True(t, errors.Is(err, apperr.ErrUnauthenticated))

	principal, err := requestutil.RequiredPrincipal(newRequest(t, alice()))
	require.NoError(t, err)
	assert.Equal(t, "alice", principal.Username())
}

func TestBearerToken(t *testing.T) {
	tests := []struct {
		name    string
		header  string
		want    string
		wantErr bool
	}{
		{"absent", "", "", false},
		{"bearer", "Bearer abc.def.ghi", "abc.def.ghi", false},
		{"lowercase_scheme", "bearer abc", "abc", false},
		{"basic_scheme", "Basic dXNlcjpwYXNz", "", true},
		{"missing_token", "Bearer ", "", true},
		{"no_separator", "Bearerabc", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			request := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				request.Header.Set("Authorization", tt.header)
			}
			got, err := requestutil.BearerToken(request)
			if tt.wantErr {
				assert.True(t, errors.Is(err, apperr.ErrUnauthorized))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDecodeJSON(t *testing.T) {
	var target struct {
		Login string `json:"login"`
	}

	request := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"login":"alice"}`))
	require.NoError(t, requestutil.DecodeJSON(request, &target))
	assert.Equal(t, "alice", target.Login)

	request = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{`))
	assert.Equal(t, validate.ErrInvalidJSON, requestutil.DecodeJSON(request, &target))
}
