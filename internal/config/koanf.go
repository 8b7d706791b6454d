// Centerpiece Auth - Multi-Tenant Identity and Session Service
// Copyright 2026 M. Sherwood (mjsherwood76-dev)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mjsherwood76-dev/centerpiece-auth

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists the paths searched for a config file, in order.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/centerpiece-auth/config.yaml",
	"/etc/centerpiece-auth/config.yml",
}

// ConfigPathEnvVar overrides the config file path.
const ConfigPathEnvVar = "CONFIG_PATH"

// defaultConfig returns the built-in defaults. These are applied first,
// then overridden by the config file and environment variables.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:        "0.0.0.0",
			Port:        8787,
			Timeout:     30 * time.Second,
			Environment: "development",
			AuthDomain:  "http://localhost:8787",
		},
		Database: DatabaseConfig{
			Path: "/data/centerpiece-auth.db",
		},
		Auth: AuthConfig{
			AccessTokenTTL:  15 * time.Minute,
			RefreshTokenTTL: 30 * 24 * time.Hour,
			AuthCodeTTL:     60 * time.Second,
			RateLimitWindow: 15 * time.Minute,
		},
		Email: EmailConfig{
			From:     "no-reply@centerpiece.shop",
			FromName: "Centerpiece",
			SMTPPort: 587,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load builds the configuration from defaults, an optional YAML file, and
// environment variables, then validates it. Precedence: ENV > file >
// defaults.
func Load() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("loading defaults: %w", err)
	}

	if path := findConfigFile(); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("loading config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("loading environment variables: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling configuration: %w", err)
	}

	// TTL env keys arrive as bare numbers, not Go durations.
	applyNumericTTLs(k, cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// findConfigFile returns the first config file that exists, or "".
func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// applyNumericTTLs maps the documented numeric TTL keys onto durations.
// ACCESS_TOKEN_TTL_SECONDS=900 and REFRESH_TOKEN_TTL_DAYS=30 are the
// published knobs; the koanf duration fields remain available to the
// YAML file.
func applyNumericTTLs(k *koanf.Koanf, cfg *Config) {
	if v := k.Int("auth.access_token_ttl_seconds"); v > 0 {
		cfg.Auth.AccessTokenTTL = time.Duration(v) * time.Second
	}
	if v := k.Int("auth.refresh_token_ttl_days"); v > 0 {
		cfg.Auth.RefreshTokenTTL = time.Duration(v) * 24 * time.Hour
	}
	if v := k.Int("auth.auth_code_ttl_seconds"); v > 0 {
		cfg.Auth.AuthCodeTTL = time.Duration(v) * time.Second
	}
}

// envTransformFunc maps recognized environment variable names to koanf
// config paths. Unmapped variables are skipped so random environment
// content cannot pollute the configuration.
func envTransformFunc(key string) string {
	key = strings.ToLower(key)

	envMappings := map[string]string{
		// Server
		"http_host":   "server.host",
		"http_port":   "server.port",
		"environment": "server.environment",
		"auth_domain": "server.auth_domain",

		// Database
		"database_path": "database.path",

		// Token lifetimes and keys
		"access_token_ttl_seconds": "auth.access_token_ttl_seconds",
		"refresh_token_ttl_days":   "auth.refresh_token_ttl_days",
		"auth_code_ttl_seconds":    "auth.auth_code_ttl_seconds",
		"jwt_private_key":          "auth.jwt_private_key",
		"jwt_public_key":           "auth.jwt_public_key",
		"rate_limit_requests":      "auth.rate_limit_requests",
		"rate_limit_window":        "auth.rate_limit_window",

		// Federation providers
		"google_client_id":        "providers.google.client_id",
		"google_client_secret":    "providers.google.client_secret",
		"facebook_client_id":      "providers.facebook.client_id",
		"facebook_client_secret":  "providers.facebook.client_secret",
		"microsoft_client_id":     "providers.microsoft.client_id",
		"microsoft_client_secret": "providers.microsoft.client_secret",
		"apple_client_id":         "providers.apple.client_id",
		"apple_team_id":           "providers.apple.team_id",
		"apple_key_id":            "providers.apple.key_id",
		"apple_private_key":       "providers.apple.private_key",

		// Email
		"email_from":      "email.from",
		"email_from_name": "email.from_name",
		"smtp_host":       "email.smtp_host",
		"smtp_port":       "email.smtp_port",
		"smtp_user":       "email.smtp_user",
		"smtp_pass":       "email.smtp_pass",

		// Logging
		"log_level":  "logging.level",
		"log_format": "logging.format",
		"log_caller": "logging.caller",
	}

	if mapped, ok := envMappings[key]; ok {
		return mapped
	}
	return ""
}
