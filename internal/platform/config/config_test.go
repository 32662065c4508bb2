// Copyright (c) 2026 Leomall. All rights reserved.
// Author: leozheng-Miao

package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leozheng-Miao/leomall-sub001/internal/identity"
	"github.com/leozheng-Miao/leomall-sub001/internal/platform/config"
	"github.com/leozheng-Miao/leomall-sub001/internal/platform/middleware"
)

var secret = strings.Repeat("s", 32)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("REVOCATION_BACKEND", "memory")
	t.Setenv("JWT_SECRET", secret)

	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.ServerPort)
	assert.Equal(t, 15*time.Minute, cfg.AccessTokenTTL)
	assert.Equal(t, 720*time.Hour, cfg.RefreshTokenTTL)
	assert.Equal(t, "X-Tenant-Id", cfg.TenantHeader)
	assert.Equal(t, identity.DefaultTenantID, cfg.DefaultTenant())
	assert.True(t, cfg.IsDevelopment())

	tokenConfig, err := cfg.TokenConfig()
	require.NoError(t, err)
	assert.Equal(t, "HS256", tokenConfig.Keys.Algorithm())
	assert.Equal(t, "leomall.auth", tokenConfig.Issuer)
}

func TestLoad_Lists(t *testing.T) {
	t.Setenv("REVOCATION_BACKEND", "memory")
	t.Setenv("JWT_SECRET", secret)
	t.Setenv("AUTH_EXEMPT_PATHS", "/public/**,/webhooks/*")
	t.Setenv("AUTH_OPTIONAL_PATHS", "/catalog/**")

	cfg, err := config.Load()
	require.NoError(t, err)

	policy, err := cfg.RoutePolicy()
	require.NoError(t, err)
	assert.Equal(t, []string{"/public/**", "/webhooks/*"}, policy.Exempt)
	assert.Equal(t, middleware.ModeOptional, policy.Mode("/catalog/1"))
}

func TestValidate(t *testing.T) {
	valid := func() *config.Config {
		return &config.Config{
			RevocationBackend: config.BackendMemory,
			JWTSecret:         secret,
			AccessTokenTTL:    time.Minute,
			RefreshTokenTTL:   time.Hour,
			DefaultTenantID:   1,
		}
	}

	tests := []struct {
		name   string
		mutate func(*config.Config)
		want   string
	}{
		{"valid", func(*config.Config) {}, ""},
		{"refresh_not_longer", func(c *config.Config) { c.RefreshTokenTTL = time.Minute }, "REFRESH_TOKEN_TTL"},
		{"zero_access", func(c *config.Config) { c.AccessTokenTTL = 0 }, "ACCESS_TOKEN_TTL"},
		{"short_secret", func(c *config.Config) { c.JWTSecret = "short" }, "JWT_SECRET"},
		{"half_key_pair", func(c *config.Config) { c.JWTPrivKeyPath = "priv.pem" }, "JWT_PUBLIC_KEY_PATH"},
		{"redis_without_url", func(c *config.Config) { c.RevocationBackend = config.BackendRedis }, "REDIS_URL"},
		{"postgres_without_dsn", func(c *config.Config) { c.RevocationBackend = config.BackendPostgres }, "DATABASE_URL"},
		{"unknown_backend", func(c *config.Config) { c.RevocationBackend = "etcd" }, "REVOCATION_BACKEND"},
		{"bad_default_tenant", func(c *config.Config) { c.DefaultTenantID = 0 }, "DEFAULT_TENANT_ID"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.want == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoadRoutePolicy(t *testing.T) {
	dir := t.TempDir()

	path := filepath.Join(dir, "policy.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
routes:
  exempt:
    - /public/**
  optional:
    - /catalog/**
    - /search
`), 0o600))

	policy, err := config.LoadRoutePolicy(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"/public/**"}, policy.Exempt)
	assert.Equal(t, []string{"/catalog/**", "/search"}, policy.Optional)

	empty := filepath.Join(dir, "empty.yaml")
	require.NoError(t, os.WriteFile(empty, nil, 0o600))
	policy, err = config.LoadRoutePolicy(empty)
	require.NoError(t, err)
	assert.Empty(t, policy.Exempt)

	unknown := filepath.Join(dir, "unknown.yaml")
	require.NoError(t, os.WriteFile(unknown, []byte("routes:\n  public: [/x]\n"), 0o600))
	_, err = config.LoadRoutePolicy(unknown)
	assert.Error(t, err)

	_, err = config.LoadRoutePolicy(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}

func TestRoutePolicy_MergesFileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policy.yaml")
	require.NoError(t, os.WriteFile(path, []byte("routes:\n  optional: [/catalog/**]\n"), 0o600))

	cfg := &config.Config{AuthPolicyFile: path, AuthOptionalPaths: []string{"/search"}}
	policy, err := cfg.RoutePolicy()
	require.NoError(t, err)
	assert.Equal(t, []string{"/catalog/**", "/search"}, policy.Optional)
}
