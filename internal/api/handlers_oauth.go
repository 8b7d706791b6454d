// Centerpiece Auth - Multi-Tenant Identity and Session Service
// Copyright 2026 M. Sherwood (mjsherwood76-dev)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mjsherwood76-dev/centerpiece-auth

package api

import (
	"errors"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"

	"github.com/mjsherwood76-dev/centerpiece-auth/internal/audit"
	"github.com/mjsherwood76-dev/centerpiece-auth/internal/authflow"
	"github.com/mjsherwood76-dev/centerpiece-auth/internal/logging"
	"github.com/mjsherwood76-dev/centerpiece-auth/internal/metrics"
	"github.com/mjsherwood76-dev/centerpiece-auth/internal/oauth"
)

// OAuthInitiate starts a federated sign-in round trip by redirecting the
// browser to the provider's authorization endpoint.
func (h *Handlers) OAuthInitiate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	provider := chi.URLParam(r, "provider")

	authURL, err := h.oauth.Initiate(ctx, provider, r.URL.Query().Get("redirect"))
	if err != nil {
		code := authflow.ErrCodeOAuthFailed
		switch {
		case errors.Is(err, oauth.ErrProviderUnknown):
			code = authflow.ErrCodeOAuthNotConfigured
		case errors.Is(err, authflow.ErrInvalidRedirect):
			code = authflow.ErrCodeInvalidRedirect
		default:
			logging.Ctx(ctx).Error().Err(err).Str("provider", provider).Msg("Federation initiate failed")
		}
		metrics.OAuthFlows.WithLabelValues(provider, "initiate", code).Inc()
		redirectWithParams(w, r, "/login", url.Values{"error": {code}})
		return
	}

	metrics.OAuthFlows.WithLabelValues(provider, "initiate", "success").Inc()
	audit.FromRequest(r, audit.KindOAuthInitiate).Detail("provider", provider).Emit()
	redirect(w, r, authURL)
}

// OAuthCallback completes a federated sign-in. Registered for both GET
// (Google, Facebook, Microsoft) and POST (Apple form_post).
func (h *Handlers) OAuthCallback(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	provider := chi.URLParam(r, "provider")

	var code, state, rawUser string
	if r.Method == http.MethodPost {
		if err := r.ParseForm(); err != nil {
			h.oauthFailed(w, r, provider, nil)
			return
		}
		code = r.PostForm.Get("code")
		state = r.PostForm.Get("state")
		rawUser = r.PostForm.Get("user")
	} else {
		q := r.URL.Query()
		code = q.Get("code")
		state = q.Get("state")
	}

	result, err := h.oauth.Callback(ctx, provider, code, state, rawUser, clientInfo(r))
	if err != nil {
		h.oauthFailed(w, r, provider, err)
		return
	}

	metrics.OAuthFlows.WithLabelValues(provider, "callback", "success").Inc()
	metrics.RecordAuthAttempt("oauth", "success")
	audit.FromRequest(r, audit.KindOAuthCallback).User(result.User.ID).
		Status(http.StatusFound).Detail("provider", provider).Emit()

	h.setRefreshCookie(w, result.RefreshToken, h.tokens.RefreshTTL())
	redirect(w, r, result.RedirectURL)
}

// oauthFailed collapses every callback failure onto one login-page error.
// The provider, not the user, chose most of the inputs here, so there is
// nothing actionable to show beyond "try again".
func (h *Handlers) oauthFailed(w http.ResponseWriter, r *http.Request, provider string, err error) {
	if err != nil && !errors.Is(err, oauth.ErrStateInvalid) && !errors.Is(err, oauth.ErrProviderUnknown) {
		logging.Ctx(r.Context()).Error().Err(err).Str("provider", provider).Msg("Federation callback failed")
	}
	metrics.OAuthFlows.WithLabelValues(provider, "callback", authflow.ErrCodeOAuthFailed).Inc()
	metrics.RecordAuthAttempt("oauth", authflow.ErrCodeOAuthFailed)
	audit.FromRequest(r, audit.KindOAuthFailed).Detail("provider", provider).Emit()
	redirectWithParams(w, r, "/login", url.Values{"error": {authflow.ErrCodeOAuthFailed}})
}
