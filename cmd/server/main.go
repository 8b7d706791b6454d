// Centerpiece Auth - Multi-Tenant Identity and Session Service
// Copyright 2026 M. Sherwood (mjsherwood76-dev)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mjsherwood76-dev/centerpiece-auth

// Package main is the entry point for the Centerpiece Auth server.
//
// Centerpiece Auth is the centralized identity service for the
// Centerpiece storefront platform: redirect-based sign-in, single-use
// authorization codes, rotating refresh-token families with theft
// detection, and OAuth federation with Google, Facebook, Apple, and
// Microsoft.
//
// Startup order:
//
//  1. Configuration (Koanf v2: defaults, optional YAML file, environment)
//  2. Logging (zerolog)
//  3. SQLite open + embedded goose migrations
//  4. Signing key, token kernel, JWT kernel, federation registry
//  5. Background sweeper for expired single-use rows
//  6. HTTP server with graceful shutdown on SIGINT/SIGTERM
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mjsherwood76-dev/centerpiece-auth/internal/api"
	"github.com/mjsherwood76-dev/centerpiece-auth/internal/authflow"
	"github.com/mjsherwood76-dev/centerpiece-auth/internal/config"
	"github.com/mjsherwood76-dev/centerpiece-auth/internal/crypto"
	"github.com/mjsherwood76-dev/centerpiece-auth/internal/database"
	"github.com/mjsherwood76-dev/centerpiece-auth/internal/email"
	"github.com/mjsherwood76-dev/centerpiece-auth/internal/jwtkernel"
	"github.com/mjsherwood76-dev/centerpiece-auth/internal/logging"
	"github.com/mjsherwood76-dev/centerpiece-auth/internal/oauth"
	"github.com/mjsherwood76-dev/centerpiece-auth/internal/token"
)

// Version is injected at build time via -ldflags.
var Version = "dev"

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})

	logging.Info().
		Str("version", Version).
		Str("environment", cfg.Server.Environment).
		Str("auth_domain", cfg.Server.AuthDomain).
		Msg("Starting Centerpiece Auth")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := database.Open(ctx, cfg.Database.Path)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to open database")
	}
	defer func() {
		if err := db.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing database")
		}
	}()

	key, err := crypto.LoadSigningKey(cfg.Auth.JWTPrivateKey, cfg.Auth.JWTPublicKey)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load signing key")
	}
	logging.Info().Str("kid", key.KID).Msg("Signing key loaded")

	validator := authflow.NewValidator(db, cfg.Server.IsProduction())
	tokens := token.New(db, cfg.Auth.RefreshTokenTTL, cfg.Auth.AuthCodeTTL)
	jwts := jwtkernel.New(key, cfg.Server.AuthDomain, cfg.Auth.AccessTokenTTL)

	registry := oauth.NewRegistry(&cfg.Providers, cfg.Server.AuthDomain)
	oauthSvc := oauth.NewService(registry, db, tokens, validator)
	if providers := registry.Names(); len(providers) > 0 {
		logging.Info().Strs("providers", providers).Msg("Federation providers configured")
	} else {
		logging.Info().Msg("No federation providers configured")
	}

	mailer := email.New(cfg.Email)

	go database.NewSweeper(db, database.DefaultSweepInterval).Run(ctx)

	handlers := api.NewHandlers(cfg, db, tokens, jwts, oauthSvc, validator, mailer, Version)
	server := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:           api.Router(handlers),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       cfg.Server.Timeout,
		WriteTimeout:      cfg.Server.Timeout,
		IdleTimeout:       2 * time.Minute,
	}

	errCh := make(chan error, 1)
	go func() {
		logging.Info().Str("addr", server.Addr).Msg("HTTP server listening")
		errCh <- server.ListenAndServe()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logging.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.Fatal().Err(err).Msg("HTTP server failed")
		}
	}

	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logging.Error().Err(err).Msg("Shutdown did not complete cleanly")
	}

	logging.Info().Msg("Stopped gracefully")
}
