// Centerpiece Auth - Multi-Tenant Identity and Session Service
// Copyright 2026 M. Sherwood (mjsherwood76-dev)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mjsherwood76-dev/centerpiece-auth

// Package config loads service configuration with Koanf v2 from layered
// sources: struct defaults, an optional YAML file, and environment
// variables (highest priority).
package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Config is the root configuration for the auth service.
type Config struct {
	Server    ServerConfig    `koanf:"server"`
	Database  DatabaseConfig  `koanf:"database"`
	Auth      AuthConfig      `koanf:"auth"`
	Providers ProvidersConfig `koanf:"providers"`
	Email     EmailConfig     `koanf:"email"`
	Logging   LoggingConfig   `koanf:"logging"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host    string        `koanf:"host"`
	Port    int           `koanf:"port"`
	Timeout time.Duration `koanf:"timeout"`

	// Environment gates dev-only redirects and selects the rate-limit cap.
	// One of: development, staging, production.
	Environment string `koanf:"environment"`

	// AuthDomain is this service's public origin, e.g.
	// "https://auth.centerpiece.shop". Used in the iss claim, cookie
	// domain, and provider callback URLs.
	AuthDomain string `koanf:"auth_domain"`
}

// IsProduction reports whether the service runs in production mode.
func (s *ServerConfig) IsProduction() bool {
	return s.Environment == "production"
}

// AuthHost returns the host portion of AuthDomain (without port), used as
// the refresh-cookie domain.
func (s *ServerConfig) AuthHost() string {
	u, err := url.Parse(s.AuthDomain)
	if err != nil {
		return ""
	}
	return u.Hostname()
}

// DatabaseConfig holds SQLite settings.
type DatabaseConfig struct {
	// Path is the SQLite database file, or ":memory:" for tests.
	Path string `koanf:"path"`
}

// AuthConfig holds token lifetimes, signing keys, and rate-limit caps.
type AuthConfig struct {
	// AccessTokenTTL is the lifetime of signed access tokens.
	AccessTokenTTL time.Duration `koanf:"access_token_ttl"`

	// RefreshTokenTTL is the lifetime of refresh tokens.
	RefreshTokenTTL time.Duration `koanf:"refresh_token_ttl"`

	// AuthCodeTTL is the lifetime of authorization codes. At most 60s.
	AuthCodeTTL time.Duration `koanf:"auth_code_ttl"`

	// JWTPrivateKey and JWTPublicKey are base64-wrapped PEM of the
	// ES256 keypair.
	JWTPrivateKey string `koanf:"jwt_private_key"`
	JWTPublicKey  string `koanf:"jwt_public_key"`

	// RateLimitRequests caps requests per IP per route per window.
	// 0 selects the environment default (10 in production, 200 otherwise).
	RateLimitRequests int           `koanf:"rate_limit_requests"`
	RateLimitWindow   time.Duration `koanf:"rate_limit_window"`
}

// RateLimitCap returns the effective per-window request cap for the
// given environment.
func (a *AuthConfig) RateLimitCap(production bool) int {
	if a.RateLimitRequests > 0 {
		return a.RateLimitRequests
	}
	if production {
		return 10
	}
	return 200
}

// ProvidersConfig holds federation provider credentials. A provider with
// an empty client id is treated as not configured.
type ProvidersConfig struct {
	Google    OAuthClientConfig `koanf:"google"`
	Facebook  OAuthClientConfig `koanf:"facebook"`
	Microsoft OAuthClientConfig `koanf:"microsoft"`
	Apple     AppleConfig       `koanf:"apple"`
}

// OAuthClientConfig is a standard confidential-client credential pair.
type OAuthClientConfig struct {
	ClientID     string `koanf:"client_id"`
	ClientSecret string `koanf:"client_secret"`
}

// Configured reports whether the provider has usable credentials.
func (c *OAuthClientConfig) Configured() bool {
	return c.ClientID != "" && c.ClientSecret != ""
}

// AppleConfig carries the extra material Apple requires: the client secret
// is a short-lived ES256 JWT signed with a provisioned private key.
type AppleConfig struct {
	ClientID   string `koanf:"client_id"`
	TeamID     string `koanf:"team_id"`
	KeyID      string `koanf:"key_id"`
	PrivateKey string `koanf:"private_key"` // base64-wrapped PEM
}

// Configured reports whether Apple sign-in has usable credentials.
func (c *AppleConfig) Configured() bool {
	return c.ClientID != "" && c.TeamID != "" && c.KeyID != "" && c.PrivateKey != ""
}

// EmailConfig holds the outgoing notification settings. Delivery failures
// are logged and never fail an auth flow.
type EmailConfig struct {
	From     string `koanf:"from"`
	FromName string `koanf:"from_name"`
	SMTPHost string `koanf:"smtp_host"`
	SMTPPort int    `koanf:"smtp_port"`
	SMTPUser string `koanf:"smtp_user"`
	SMTPPass string `koanf:"smtp_pass"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}

// Validate checks cross-field constraints after unmarshal.
func (c *Config) Validate() error {
	switch c.Server.Environment {
	case "development", "staging", "production":
	default:
		return fmt.Errorf("invalid environment %q (want development, staging, or production)", c.Server.Environment)
	}

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port %d", c.Server.Port)
	}

	if c.Server.AuthDomain == "" {
		return fmt.Errorf("auth_domain is required")
	}
	u, err := url.Parse(c.Server.AuthDomain)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("auth_domain must be an absolute origin, got %q", c.Server.AuthDomain)
	}
	if strings.HasSuffix(c.Server.AuthDomain, "/") {
		return fmt.Errorf("auth_domain must not carry a trailing slash")
	}

	if c.Auth.JWTPrivateKey == "" || c.Auth.JWTPublicKey == "" {
		return fmt.Errorf("jwt_private_key and jwt_public_key are required")
	}

	if c.Auth.AuthCodeTTL > 60*time.Second {
		return fmt.Errorf("auth_code_ttl must not exceed 60s, got %s", c.Auth.AuthCodeTTL)
	}
	if c.Auth.AccessTokenTTL <= 0 || c.Auth.RefreshTokenTTL <= 0 || c.Auth.AuthCodeTTL <= 0 {
		return fmt.Errorf("token TTLs must be positive")
	}

	if c.Database.Path == "" {
		return fmt.Errorf("database path is required")
	}

	return nil
}
