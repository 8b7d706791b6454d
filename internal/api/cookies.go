// Centerpiece Auth - Multi-Tenant Identity and Session Service
// Copyright 2026 M. Sherwood (mjsherwood76-dev)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mjsherwood76-dev/centerpiece-auth

package api

import (
	"net/http"
	"time"
)

// RefreshCookieName is the refresh-token cookie on the auth domain.
const RefreshCookieName = "cp_refresh"

// setRefreshCookie hands the refresh plaintext to the browser. The
// cookie is the only place the plaintext ever appears after minting.
// SameSite=Lax is what makes the top-level-navigation refresh work when
// third-party cookies are blocked.
func (h *Handlers) setRefreshCookie(w http.ResponseWriter, value string, ttl time.Duration) {
	http.SetCookie(w, &http.Cookie{
		Name:     RefreshCookieName,
		Value:    value,
		Path:     "/",
		Domain:   h.cfg.Server.AuthHost(),
		MaxAge:   int(ttl.Seconds()),
		HttpOnly: true,
		Secure:   h.secureCookies(),
		SameSite: http.SameSiteLaxMode,
	})
}

// clearRefreshCookie expires the refresh cookie.
func (h *Handlers) clearRefreshCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     RefreshCookieName,
		Value:    "",
		Path:     "/",
		Domain:   h.cfg.Server.AuthHost(),
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.secureCookies(),
		SameSite: http.SameSiteLaxMode,
	})
}

// secureCookies reports whether the Secure attribute is set. Dropped
// only for dev localhost, where https is unavailable.
func (h *Handlers) secureCookies() bool {
	if h.cfg.Server.IsProduction() {
		return true
	}
	host := h.cfg.Server.AuthHost()
	return host != "localhost" && host != "127.0.0.1"
}

// refreshTokenFromRequest reads the presented refresh plaintext, or "".
func refreshTokenFromRequest(r *http.Request) string {
	c, err := r.Cookie(RefreshCookieName)
	if err != nil {
		return ""
	}
	return c.Value
}
