// Centerpiece Auth - Multi-Tenant Identity and Session Service
// Copyright 2026 M. Sherwood (mjsherwood76-dev)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mjsherwood76-dev/centerpiece-auth

package api

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/mjsherwood76-dev/centerpiece-auth/internal/audit"
	"github.com/mjsherwood76-dev/centerpiece-auth/internal/authflow"
	"github.com/mjsherwood76-dev/centerpiece-auth/internal/jwtkernel"
	"github.com/mjsherwood76-dev/centerpiece-auth/internal/logging"
	"github.com/mjsherwood76-dev/centerpiece-auth/internal/metrics"
	"github.com/mjsherwood76-dev/centerpiece-auth/internal/models"
	"github.com/mjsherwood76-dev/centerpiece-auth/internal/token"
)

type tokenRequest struct {
	Code           string `json:"code"`
	TenantID       string `json:"tenant_id"`
	RedirectOrigin string `json:"redirect_origin"`
	CodeVerifier   string `json:"code_verifier"`
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
}

// Token exchanges an authorization code for a signed access token. This
// is the only server-to-server endpoint; every kernel rejection collapses
// to a generic 400 so callers learn nothing about why a code is dead.
func (h *Handlers) Token(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req tokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		metrics.TokenExchanges.WithLabelValues("malformed").Inc()
		writeError(w, r, http.StatusBadRequest, "Invalid or expired code")
		return
	}

	record, err := h.tokens.ExchangeAuthCode(ctx, req.Code, req.TenantID, req.RedirectOrigin, req.CodeVerifier, time.Now())
	if err != nil {
		switch {
		case errors.Is(err, token.ErrExpiredCode):
			metrics.TokenExchanges.WithLabelValues("expired").Inc()
		case errors.Is(err, token.ErrInvalidCode):
			metrics.TokenExchanges.WithLabelValues("rejected").Inc()
		default:
			logging.Ctx(ctx).Error().Err(err).Msg("Code exchange failed")
			writeError(w, r, http.StatusInternalServerError, "Internal server error")
			return
		}
		audit.FromRequest(r, audit.KindTokenExchange).Status(http.StatusBadRequest).Emit()
		writeError(w, r, http.StatusBadRequest, "Invalid or expired code")
		return
	}

	user, err := h.db.GetUserByID(ctx, record.UserID)
	if err != nil {
		logging.Ctx(ctx).Error().Err(err).Str("user_id", record.UserID).Msg("User lookup failed during exchange")
		writeError(w, r, http.StatusInternalServerError, "Internal server error")
		return
	}

	var admin *jwtkernel.AdminContext
	if record.Audience == models.AudienceAdmin {
		admin, err = h.adminContext(r, user.ID)
		if err != nil {
			writeError(w, r, http.StatusInternalServerError, "Internal server error")
			return
		}
	}

	accessToken, err := h.jwts.Sign(user, record.Audience, admin, time.Now())
	if err != nil {
		logging.Ctx(ctx).Error().Err(err).Msg("Access token signing failed")
		writeError(w, r, http.StatusInternalServerError, "Internal server error")
		return
	}

	metrics.TokenExchanges.WithLabelValues("success").Inc()
	audit.FromRequest(r, audit.KindTokenExchange).User(user.ID).Status(http.StatusOK).
		Detail("audience", string(record.Audience)).Emit()

	w.Header().Set("Cache-Control", "no-store")
	writeJSON(w, r, http.StatusOK, tokenResponse{
		AccessToken: accessToken,
		TokenType:   "Bearer",
		ExpiresIn:   int64(h.jwts.TTL().Seconds()),
	})
}

// adminContext assembles the primary tenant and role set for an admin
// access token.
func (h *Handlers) adminContext(r *http.Request, userID string) (*jwtkernel.AdminContext, error) {
	ctx := r.Context()
	primary, err := h.db.PrimaryTenantID(ctx, userID)
	if err != nil {
		logging.Ctx(ctx).Error().Err(err).Msg("Primary tenant lookup failed")
		return nil, err
	}
	admin := &jwtkernel.AdminContext{PrimaryTenantID: primary}
	if primary != "" {
		roles, err := h.db.RolesAtTenant(ctx, userID, primary)
		if err != nil {
			logging.Ctx(ctx).Error().Err(err).Msg("Role lookup failed")
			return nil, err
		}
		admin.Roles = roles
	}
	return admin, nil
}

// Refresh rotates the cookie token and 302s back to the tenant with a
// fresh authorization code. This is a top-level navigation on purpose:
// SameSite=Lax sends the cookie on navigations even where third-party
// cookies are blocked. Every rejection lands on the login page with the
// cookie cleared.
func (h *Handlers) Refresh(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	sessionExpired := func() {
		h.clearRefreshCookie(w)
		redirect(w, r, "/login?error="+authflow.ErrCodeSessionExpired)
	}

	presented := refreshTokenFromRequest(r)
	if presented == "" {
		metrics.RefreshRotations.WithLabelValues("no_cookie").Inc()
		sessionExpired()
		return
	}

	validated, err := h.redirect.Validate(ctx, r.URL.Query().Get("redirect"))
	if err != nil {
		audit.FromRequest(r, audit.KindRedirectReject).Detail("flow", "refresh").Emit()
		metrics.RefreshRotations.WithLabelValues("bad_redirect").Inc()
		sessionExpired()
		return
	}

	next, rotated, err := h.tokens.Rotate(ctx, presented, clientInfo(r), time.Now())
	if err != nil {
		if errors.Is(err, token.ErrReuseDetected) {
			metrics.ReuseDetections.Inc()
			metrics.RefreshRotations.WithLabelValues("reuse").Inc()
			audit.FromRequest(r, audit.KindReuseDetected).Emit()
		} else if errors.Is(err, token.ErrSessionExpired) {
			metrics.RefreshRotations.WithLabelValues("expired").Inc()
		} else {
			logging.Ctx(ctx).Error().Err(err).Msg("Rotation failed")
			metrics.RefreshRotations.WithLabelValues("error").Inc()
		}
		sessionExpired()
		return
	}

	if err := h.db.EnsureMembership(ctx, rotated.UserID, validated.TenantID); err != nil {
		logging.Ctx(ctx).Error().Err(err).Msg("Membership creation failed during refresh")
		sessionExpired()
		return
	}

	code, err := h.tokens.IssueAuthCode(ctx, token.CodeRequest{
		UserID:         rotated.UserID,
		TenantID:       validated.TenantID,
		RedirectOrigin: validated.Origin,
		Audience:       audienceFromForm(r.URL.Query().Get("audience")),
	}, time.Now())
	if err != nil {
		logging.Ctx(ctx).Error().Err(err).Msg("Code issuance failed during refresh")
		sessionExpired()
		return
	}

	metrics.RefreshRotations.WithLabelValues("success").Inc()
	audit.FromRequest(r, audit.KindRefresh).User(rotated.UserID).Status(http.StatusFound).Emit()

	h.setRefreshCookie(w, next, h.tokens.RefreshTTL())
	redirect(w, r, callbackURL(validated, code))
}

// Logout revokes the presented refresh token's family and clears the
// cookie. Unknown or absent tokens still clear the cookie and succeed.
func (h *Handlers) Logout(w http.ResponseWriter, r *http.Request) {
	h.logout(w, r, false)
}

// LogoutAll additionally revokes every refresh token of the user.
func (h *Handlers) LogoutAll(w http.ResponseWriter, r *http.Request) {
	h.logout(w, r, true)
}

func (h *Handlers) logout(w http.ResponseWriter, r *http.Request, all bool) {
	ctx := r.Context()

	if presented := refreshTokenFromRequest(r); presented != "" {
		revoked, err := h.tokens.Revoke(ctx, presented, time.Now())
		if err != nil {
			logging.Ctx(ctx).Error().Err(err).Msg("Logout revocation failed")
			writeError(w, r, http.StatusInternalServerError, "Internal server error")
			return
		}
		if revoked != nil {
			kind := audit.KindLogout
			if all {
				kind = audit.KindLogoutAll
				if _, err := h.tokens.RevokeAll(ctx, revoked.UserID, time.Now()); err != nil {
					logging.Ctx(ctx).Error().Err(err).Msg("Logout-all revocation failed")
					writeError(w, r, http.StatusInternalServerError, "Internal server error")
					return
				}
			}
			audit.FromRequest(r, kind).User(revoked.UserID).Status(http.StatusOK).Emit()
		}
	}

	h.clearRefreshCookie(w)
	writeJSON(w, r, http.StatusOK, map[string]bool{"success": true})
}

type membershipView struct {
	TenantID string `json:"tenantId"`
	Role     string `json:"role"`
	Status   string `json:"status"`
}

// Memberships lists the caller's tenant memberships. Requires a valid
// Bearer access token; privileged UIs use it to render a tenant picker.
func (h *Handlers) Memberships(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	raw, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !ok || raw == "" {
		writeError(w, r, http.StatusUnauthorized, "Missing bearer token")
		return
	}
	claims, err := h.jwts.Verify(raw)
	if err != nil {
		writeError(w, r, http.StatusUnauthorized, "Invalid or expired token")
		return
	}

	memberships, err := h.db.ListMemberships(ctx, claims.Subject)
	if err != nil {
		logging.Ctx(ctx).Error().Err(err).Msg("Membership listing failed")
		writeError(w, r, http.StatusInternalServerError, "Internal server error")
		return
	}

	views := make([]membershipView, 0, len(memberships))
	for _, m := range memberships {
		views = append(views, membershipView{
			TenantID: m.TenantID,
			Role:     string(m.Role),
			Status:   string(m.Status),
		})
	}
	writeJSON(w, r, http.StatusOK, map[string][]membershipView{"memberships": views})
}
