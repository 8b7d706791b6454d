// Centerpiece Auth - Multi-Tenant Identity and Session Service
// Copyright 2026 M. Sherwood (mjsherwood76-dev)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mjsherwood76-dev/centerpiece-auth

package config

import (
	"testing"
	"time"
)

func validConfig() *Config {
	cfg := defaultConfig()
	cfg.Auth.JWTPrivateKey = "cHJpdg=="
	cfg.Auth.JWTPublicKey = "cHVi"
	return cfg
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("CONFIG_PATH", "/nonexistent/config.yaml")
	t.Setenv("ENVIRONMENT", "production")
	t.Setenv("AUTH_DOMAIN", "https://auth.centerpiece.shop")
	t.Setenv("HTTP_PORT", "9000")
	t.Setenv("DATABASE_PATH", "/tmp/auth.db")
	t.Setenv("JWT_PRIVATE_KEY", "cHJpdg==")
	t.Setenv("JWT_PUBLIC_KEY", "cHVi")
	t.Setenv("ACCESS_TOKEN_TTL_SECONDS", "600")
	t.Setenv("REFRESH_TOKEN_TTL_DAYS", "7")
	t.Setenv("AUTH_CODE_TTL_SECONDS", "30")
	t.Setenv("GOOGLE_CLIENT_ID", "gid")
	t.Setenv("GOOGLE_CLIENT_SECRET", "gsecret")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !cfg.Server.IsProduction() {
		t.Error("environment not applied")
	}
	if cfg.Server.Port != 9000 {
		t.Errorf("port = %d, want 9000", cfg.Server.Port)
	}
	if cfg.Server.AuthHost() != "auth.centerpiece.shop" {
		t.Errorf("AuthHost = %q", cfg.Server.AuthHost())
	}
	if cfg.Auth.AccessTokenTTL != 10*time.Minute {
		t.Errorf("access TTL = %s, want 10m", cfg.Auth.AccessTokenTTL)
	}
	if cfg.Auth.RefreshTokenTTL != 7*24*time.Hour {
		t.Errorf("refresh TTL = %s, want 168h", cfg.Auth.RefreshTokenTTL)
	}
	if cfg.Auth.AuthCodeTTL != 30*time.Second {
		t.Errorf("code TTL = %s, want 30s", cfg.Auth.AuthCodeTTL)
	}
	if !cfg.Providers.Google.Configured() {
		t.Error("google provider not configured from env")
	}
	if cfg.Providers.Apple.Configured() {
		t.Error("apple provider configured without credentials")
	}
}

func TestValidateRejects(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad environment", func(c *Config) { c.Server.Environment = "test" }},
		{"zero port", func(c *Config) { c.Server.Port = 0 }},
		{"missing auth domain", func(c *Config) { c.Server.AuthDomain = "" }},
		{"relative auth domain", func(c *Config) { c.Server.AuthDomain = "auth.example" }},
		{"trailing slash", func(c *Config) { c.Server.AuthDomain = "https://auth.example/" }},
		{"missing keys", func(c *Config) { c.Auth.JWTPrivateKey = "" }},
		{"code ttl too long", func(c *Config) { c.Auth.AuthCodeTTL = 2 * time.Minute }},
		{"negative refresh ttl", func(c *Config) { c.Auth.RefreshTokenTTL = -time.Hour }},
		{"missing db path", func(c *Config) { c.Database.Path = "" }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := validConfig()
			tc.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("Validate accepted an invalid config")
			}
		})
	}

	if err := validConfig().Validate(); err != nil {
		t.Errorf("valid config rejected: %v", err)
	}
}

func TestRateLimitCap(t *testing.T) {
	a := &AuthConfig{}
	if got := a.RateLimitCap(true); got != 10 {
		t.Errorf("production cap = %d, want 10", got)
	}
	if got := a.RateLimitCap(false); got != 200 {
		t.Errorf("development cap = %d, want 200", got)
	}
	a.RateLimitRequests = 55
	if got := a.RateLimitCap(true); got != 55 {
		t.Errorf("override cap = %d, want 55", got)
	}
}
