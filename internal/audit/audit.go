// Centerpiece Auth - Multi-Tenant Identity and Session Service
// Copyright 2026 M. Sherwood (mjsherwood76-dev)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mjsherwood76-dev/centerpiece-auth

// Package audit emits single-line structured audit events for
// security-relevant actions. Emission never fails the calling flow.
package audit

import (
	"context"
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"github.com/mjsherwood76-dev/centerpiece-auth/internal/logging"
)

// Event kinds. The log event field is "auth.audit.<kind>".
const (
	KindRegister        = "register"
	KindLogin           = "login"
	KindLoginFailed     = "login_failed"
	KindLogout          = "logout"
	KindLogoutAll       = "logout_all"
	KindTokenExchange   = "token_exchange"
	KindRefresh         = "refresh"
	KindReuseDetected   = "reuse_detected"
	KindPasswordForgot  = "password_forgot"
	KindPasswordReset   = "password_reset"
	KindOAuthInitiate   = "oauth_initiate"
	KindOAuthCallback   = "oauth_callback"
	KindOAuthFailed     = "oauth_failed"
	KindRedirectReject  = "redirect_rejected"
	KindRateLimited     = "rate_limited"
)

// Entry is one audit event under construction.
type Entry struct {
	event *zerolog.Event
}

// FromRequest starts an audit entry carrying the request's correlation
// id, client ip, route, and user agent.
func FromRequest(r *http.Request, kind string) *Entry {
	e := logging.Ctx(r.Context()).Info().
		Str("event", "auth.audit."+kind).
		Str("ip", ClientIP(r)).
		Str("route", r.URL.Path).
		Str("userAgent", r.UserAgent())
	return &Entry{event: e}
}

// FromContext starts an audit entry outside a request (sweeper, startup).
func FromContext(ctx context.Context, kind string) *Entry {
	return &Entry{event: logging.Ctx(ctx).Info().Str("event", "auth.audit."+kind)}
}

// User attaches the acting user id.
func (e *Entry) User(userID string) *Entry {
	if userID != "" {
		e.event = e.event.Str("userId", userID)
	}
	return e
}

// Status attaches the response status code.
func (e *Entry) Status(code int) *Entry {
	e.event = e.event.Int("statusCode", code)
	return e
}

// Detail attaches one free-form detail field.
func (e *Entry) Detail(key, value string) *Entry {
	if value != "" {
		e.event = e.event.Str("details."+key, value)
	}
	return e
}

// Emit writes the event.
func (e *Entry) Emit() {
	e.event.Msg("audit")
}

// ClientIP extracts the originating client address, preferring the
// leftmost X-Forwarded-For hop, then X-Real-Ip, then the socket peer.
func ClientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		return strings.TrimSpace(first)
	}
	if real := r.Header.Get("X-Real-Ip"); real != "" {
		return real
	}
	if i := strings.LastIndexByte(r.RemoteAddr, ':'); i >= 0 {
		return r.RemoteAddr[:i]
	}
	return r.RemoteAddr
}
