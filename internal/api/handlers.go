// Centerpiece Auth - Multi-Tenant Identity and Session Service
// Copyright 2026 M. Sherwood (mjsherwood76-dev)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mjsherwood76-dev/centerpiece-auth

// Package api is the HTTP boundary: routing, handlers, cookies, CORS,
// and rate limiting for the auth service.
package api

import (
	"time"

	"github.com/mjsherwood76-dev/centerpiece-auth/internal/authflow"
	"github.com/mjsherwood76-dev/centerpiece-auth/internal/config"
	"github.com/mjsherwood76-dev/centerpiece-auth/internal/database"
	"github.com/mjsherwood76-dev/centerpiece-auth/internal/email"
	"github.com/mjsherwood76-dev/centerpiece-auth/internal/jwtkernel"
	"github.com/mjsherwood76-dev/centerpiece-auth/internal/oauth"
	"github.com/mjsherwood76-dev/centerpiece-auth/internal/token"
)

// resetTokenTTL is how long a password-reset link stays valid.
const resetTokenTTL = time.Hour

// Handlers carries the service dependencies into the HTTP handlers.
type Handlers struct {
	cfg      *config.Config
	db       *database.DB
	tokens   *token.Kernel
	jwts     *jwtkernel.Kernel
	oauth    *oauth.Service
	redirect *authflow.Validator
	mailer   email.Mailer

	version    string
	deployedAt time.Time
}

// NewHandlers wires the handler set.
func NewHandlers(
	cfg *config.Config,
	db *database.DB,
	tokens *token.Kernel,
	jwts *jwtkernel.Kernel,
	oauthSvc *oauth.Service,
	redirect *authflow.Validator,
	mailer email.Mailer,
	version string,
) *Handlers {
	return &Handlers{
		cfg:        cfg,
		db:         db,
		tokens:     tokens,
		jwts:       jwts,
		oauth:      oauthSvc,
		redirect:   redirect,
		mailer:     mailer,
		version:    version,
		deployedAt: time.Now().UTC(),
	}
}
