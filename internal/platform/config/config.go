// Copyright (c) 2026 Leomall. All rights reserved.
// Author: leozheng-Miao

/*
Package config handles application-wide settings and environment parsing.

It leverages 'caarlos0/env' to map OS environment variables into a strongly-typed
Go struct, providing early validation and default values. The optional route
policy file is YAML.

Usage:

	cfg, err := config.Load()
	if err != nil {
	    log.Fatal(err)
	}

Architecture:

  - Immutability: Once loaded, configuration is read-only.
  - DI-Friendly: Passed to core components (token service, stores) via constructors.
  - Zero Hidden State: No global variables are used to store config.
*/
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/leozheng-Miao/leomall-sub001/internal/identity"
	"github.com/leozheng-Miao/leomall-sub001/internal/platform/middleware"
	"github.com/leozheng-Miao/leomall-sub001/internal/platform/sec"
)

// # Revocation Backends

const (
	BackendRedis    = "redis"
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
)

// minSecretLength is the minimum HS256 secret size in bytes.
const minSecretLength = 32

// # Configuration Schema

// Config holds all runtime configuration for the identity service.
type Config struct {

	// Server settings
	ServerPort  string `env:"SERVER_PORT"  envDefault:"8080"`
	Environment string `env:"ENVIRONMENT"  envDefault:"development"`
	Debug       bool   `env:"DEBUG"        envDefault:"false"`

	// Relational Database (PostgreSQL). Required by the postgres backend and login.
	DatabaseURL string `env:"DATABASE_URL"`

	// MigrationPath is the filesystem path to the SQL migrations directory.
	MigrationPath string `env:"MIGRATION_PATH" envDefault:"./migrations"`

	// Key-Value Cache (Redis). Required by the redis backend.
	RedisURL string `env:"REDIS_URL"`

	// RevocationBackend selects where revoked token families are recorded.
	RevocationBackend string `env:"REVOCATION_BACKEND" envDefault:"redis"`

	// Token signing: RS256 key pair, or an HS256 secret as fallback.
	JWTIssuer      string `env:"JWT_ISSUER"           envDefault:"leomall.auth"`
	JWTPrivKeyPath string `env:"JWT_PRIVATE_KEY_PATH"`
	JWTPubKeyPath  string `env:"JWT_PUBLIC_KEY_PATH"`
	JWTSecret      string `env:"JWT_SECRET"`

	// Token lifetimes
	AccessTokenTTL  time.Duration `env:"ACCESS_TOKEN_TTL"  envDefault:"15m"`
	RefreshTokenTTL time.Duration `env:"REFRESH_TOKEN_TTL" envDefault:"720h"`

	// Tenant resolution
	TenantHeader    string `env:"TENANT_HEADER"     envDefault:"X-Tenant-Id"`
	DefaultTenantID int64  `env:"DEFAULT_TENANT_ID" envDefault:"1"`

	// Route policy
	AuthPolicyFile    string   `env:"AUTH_POLICY_FILE"`
	AuthExemptPaths   []string `env:"AUTH_EXEMPT_PATHS"   envSeparator:","`
	AuthOptionalPaths []string `env:"AUTH_OPTIONAL_PATHS" envSeparator:","`

	// Cross-Origin Resource Sharing (origin suffixes)
	AllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envSeparator:","`
}

// # Configuration Loading

// Load parses environment variables into a [Config] struct and validates it.
func Load() (*Config, error) {

	// Initialize an empty config struct
	cfg := &Config{}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("config: failed to parse environment variables: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks cross-field constraints the env tags cannot express.
func (c *Config) Validate() error {
	var errs []error

	switch c.RevocationBackend {
	case BackendRedis:
		if c.RedisURL == "" {
			errs = append(errs, errors.New("REDIS_URL is required for the redis revocation backend"))
		}
	case BackendPostgres:
		if c.DatabaseURL == "" {
			errs = append(errs, errors.New("DATABASE_URL is required for the postgres revocation backend"))
		}
	case BackendMemory:
	default:
		errs = append(errs, fmt.Errorf("REVOCATION_BACKEND must be one of redis, memory, postgres; got %q", c.RevocationBackend))
	}

	hasKeyPair := c.JWTPrivKeyPath != "" && c.JWTPubKeyPath != ""
	if !hasKeyPair && (c.JWTPrivKeyPath != "" || c.JWTPubKeyPath != "") {
		errs = append(errs, errors.New("JWT_PRIVATE_KEY_PATH and JWT_PUBLIC_KEY_PATH must be set together"))
	}
	if !hasKeyPair && len(c.JWTSecret) < minSecretLength {
		errs = append(errs, fmt.Errorf("either an RSA key pair or a JWT_SECRET of at least %d bytes is required", minSecretLength))
	}

	if c.AccessTokenTTL <= 0 {
		errs = append(errs, errors.New("ACCESS_TOKEN_TTL must be positive"))
	}
	if c.RefreshTokenTTL <= c.AccessTokenTTL {
		errs = append(errs, errors.New("REFRESH_TOKEN_TTL must exceed ACCESS_TOKEN_TTL"))
	}
	if c.DefaultTenantID <= 0 {
		errs = append(errs, errors.New("DEFAULT_TENANT_ID must be a positive integer"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config: invalid configuration: %w", errors.Join(errs...))
	}
	return nil
}

// IsDevelopment reports whether the server is running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// IsProduction reports whether the server is running in production mode.
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// CORSOrigins returns the allowed origin suffixes.
func (c *Config) CORSOrigins() []string {
	return c.AllowedOrigins
}

// DefaultTenant returns the configured fallback tenant.
func (c *Config) DefaultTenant() identity.TenantID {
	return identity.TenantID(c.DefaultTenantID)
}

// # Derived Settings

// SigningKeys loads the RSA key pair when configured, otherwise the HS256 secret.
func (c *Config) SigningKeys() (sec.SigningKeys, error) {
	if c.JWTPrivKeyPath != "" && c.JWTPubKeyPath != "" {
		return sec.LoadRSAKeys(c.JWTPrivKeyPath, c.JWTPubKeyPath)
	}
	return sec.HMACKey([]byte(c.JWTSecret))
}

// TokenConfig assembles the token service settings.
func (c *Config) TokenConfig() (sec.TokenConfig, error) {
	keys, err := c.SigningKeys()
	if err != nil {
		return sec.TokenConfig{}, fmt.Errorf("config: failed to load signing keys: %w", err)
	}
	return sec.TokenConfig{
		Issuer:     c.JWTIssuer,
		AccessTTL:  c.AccessTokenTTL,
		RefreshTTL: c.RefreshTokenTTL,
		Keys:       keys,
	}, nil
}

// RoutePolicy merges the policy file (if any) with the env pattern lists.
func (c *Config) RoutePolicy() (middleware.RoutePolicy, error) {
	policy := middleware.RoutePolicy{}
	if c.AuthPolicyFile != "" {
		loaded, err := LoadRoutePolicy(c.AuthPolicyFile)
		if err != nil {
			return middleware.RoutePolicy{}, err
		}
		policy = loaded
	}
	policy.Exempt = append(policy.Exempt, c.AuthExemptPaths...)
	policy.Optional = append(policy.Optional, c.AuthOptionalPaths...)
	return policy, nil
}

// # Policy File

// policyFile is the on-disk shape of AUTH_POLICY_FILE.
//
//	routes:
//	  exempt:   ["/public/**"]
//	  optional: ["/catalog/**"]
type policyFile struct {
	Routes middleware.RoutePolicy `yaml:"routes"`
}

// LoadRoutePolicy reads a YAML route policy file.
func LoadRoutePolicy(path string) (middleware.RoutePolicy, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return middleware.RoutePolicy{}, fmt.Errorf("config: failed to read policy file: %w", err)
	}

	var file policyFile
	decoder := yaml.NewDecoder(bytes.NewReader(raw))
	decoder.KnownFields(true)
	if err := decoder.Decode(&file); err != nil && !errors.Is(err, io.EOF) {
		return middleware.RoutePolicy{}, fmt.Errorf("config: failed to parse policy file %s: %w", path, err)
	}
	return file.Routes, nil
}
