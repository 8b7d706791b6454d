// Centerpiece Auth - Multi-Tenant Identity and Session Service
// Copyright 2026 M. Sherwood (mjsherwood76-dev)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mjsherwood76-dev/centerpiece-auth

package api

import (
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/mjsherwood76-dev/centerpiece-auth/internal/audit"
	"github.com/mjsherwood76-dev/centerpiece-auth/internal/authflow"
	"github.com/mjsherwood76-dev/centerpiece-auth/internal/crypto"
	"github.com/mjsherwood76-dev/centerpiece-auth/internal/database"
	"github.com/mjsherwood76-dev/centerpiece-auth/internal/logging"
	"github.com/mjsherwood76-dev/centerpiece-auth/internal/metrics"
	"github.com/mjsherwood76-dev/centerpiece-auth/internal/models"
	"github.com/mjsherwood76-dev/centerpiece-auth/internal/token"
	"github.com/mjsherwood76-dev/centerpiece-auth/internal/validation"
)

// audienceFromForm maps the optional audience hint, defaulting to
// storefront. Invalid hints fall back rather than erroring; the hint
// only widens the claim shape, never privileges.
func audienceFromForm(v string) models.Audience {
	if aud := models.Audience(v); aud.Valid() {
		return aud
	}
	return models.AudienceStorefront
}

// clientInfo captures the caller for refresh-token audit columns.
func clientInfo(r *http.Request) token.ClientInfo {
	return token.ClientInfo{IP: audit.ClientIP(r), UserAgent: r.UserAgent()}
}

// registerInput is the credential shape of a registration form. Field
// order matters: the validator reports failures in declaration order, so
// the first failed field picks the echoed error code (email shape, then
// password strength, then confirmation).
type registerInput struct {
	Email           string `validate:"required,simple_email"`
	Password        string `validate:"required,min=8"`
	ConfirmPassword string `validate:"required,eqfield=Password"`
}

// resetInput is the credential shape of a password-reset form.
type resetInput struct {
	Token           string `validate:"required"`
	NewPassword     string `validate:"required,min=8"`
	ConfirmPassword string `validate:"required,eqfield=NewPassword"`
}

// validationErrorCode maps the first failed field onto its user-visible
// error code.
func validationErrorCode(err error, byField map[string]string, fallback string) string {
	var verr *validation.RequestValidationError
	if errors.As(err, &verr) {
		if code, ok := byField[verr.First().Field]; ok {
			return code
		}
	}
	return fallback
}

// echoParams builds the redirect-back query for a failed form post,
// preserving what the user typed (never the password).
func echoParams(errCode string, form url.Values) url.Values {
	params := url.Values{"error": {errCode}}
	for _, key := range []string{"email", "name", "redirect", "tenant", "audience"} {
		if v := form.Get(key); v != "" {
			params.Set(key, v)
		}
	}
	return params
}

// finishAuth completes a successful password authentication: membership,
// session mint, refresh cookie, and the 302 to the tenant callback.
func (h *Handlers) finishAuth(w http.ResponseWriter, r *http.Request, user *models.User, validated *authflow.Validated, aud models.Audience, codeChallenge string) {
	ctx := r.Context()

	if err := h.db.EnsureMembership(ctx, user.ID, validated.TenantID); err != nil {
		logging.Ctx(ctx).Error().Err(err).Msg("Membership creation failed")
		writeError(w, r, http.StatusInternalServerError, "Internal server error")
		return
	}

	session, err := h.tokens.MintSession(ctx, token.CodeRequest{
		UserID:         user.ID,
		TenantID:       validated.TenantID,
		RedirectOrigin: validated.Origin,
		Audience:       aud,
		CodeChallenge:  codeChallenge,
	}, clientInfo(r), time.Now())
	if err != nil {
		logging.Ctx(ctx).Error().Err(err).Msg("Session mint failed")
		writeError(w, r, http.StatusInternalServerError, "Internal server error")
		return
	}

	h.setRefreshCookie(w, session.RefreshToken, h.tokens.RefreshTTL())
	redirect(w, r, callbackURL(validated, session.Code))
}

// callbackURL builds <origin>/auth/callback?code=…&returnTo=<path+query>.
func callbackURL(validated *authflow.Validated, code string) string {
	returnTo := validated.URL.Path
	if returnTo == "" {
		returnTo = "/"
	}
	if validated.URL.RawQuery != "" {
		returnTo += "?" + validated.URL.RawQuery
	}
	return validated.Origin + "/auth/callback?" + url.Values{
		"code":     {code},
		"returnTo": {returnTo},
	}.Encode()
}

// Register creates a user with a password and starts a session.
func (h *Handlers) Register(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if err := r.ParseForm(); err != nil {
		redirectWithParams(w, r, "/register", url.Values{"error": {authflow.ErrCodeInvalidEmail}})
		return
	}
	form := r.PostForm

	validated, err := h.redirect.Validate(ctx, form.Get("redirect"))
	if err != nil {
		audit.FromRequest(r, audit.KindRedirectReject).Detail("flow", "register").Emit()
		redirectWithParams(w, r, "/register", echoParams(authflow.ErrCodeInvalidRedirect, form))
		return
	}

	fail := func(code string) {
		metrics.RecordAuthAttempt("register", code)
		redirectWithParams(w, r, "/register", echoParams(code, form))
	}

	input := registerInput{
		Email:           form.Get("email"),
		Password:        form.Get("password"),
		ConfirmPassword: form.Get("confirmPassword"),
	}
	if err := validation.ValidateStruct(&input); err != nil {
		fail(validationErrorCode(err, map[string]string{
			"Email":           authflow.ErrCodeInvalidEmail,
			"Password":        authflow.ErrCodePasswordWeak,
			"ConfirmPassword": authflow.ErrCodePasswordMismatch,
		}, authflow.ErrCodeInvalidEmail))
		return
	}

	name := form.Get("name")
	if name == "" {
		// Blank display names default to the email local-part.
		if i := strings.IndexByte(input.Email, '@'); i > 0 {
			name = input.Email[:i]
		}
	}

	hash, err := crypto.HashPassword(input.Password)
	if err != nil {
		logging.Ctx(ctx).Error().Err(err).Msg("Password hashing failed")
		writeError(w, r, http.StatusInternalServerError, "Internal server error")
		return
	}

	user, err := h.db.CreateUser(ctx, input.Email, hash, name)
	if errors.Is(err, database.ErrEmailExists) {
		fail(authflow.ErrCodeEmailExists)
		return
	}
	if err != nil {
		logging.Ctx(ctx).Error().Err(err).Msg("User creation failed")
		writeError(w, r, http.StatusInternalServerError, "Internal server error")
		return
	}

	audit.FromRequest(r, audit.KindRegister).User(user.ID).Status(http.StatusFound).Emit()
	metrics.RecordAuthAttempt("register", "success")
	h.mailer.SendWelcome(ctx, user.Email, user.Name)

	h.finishAuth(w, r, user, validated, audienceFromForm(form.Get("audience")), form.Get("code_challenge"))
}

// Login verifies a password and starts a session. The response shape is
// identical whether the account is missing, federated-only, or holds a
// wrong password; a dummy derivation equalizes timing for the missing
// cases.
func (h *Handlers) Login(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if err := r.ParseForm(); err != nil {
		redirectWithParams(w, r, "/login", url.Values{"error": {authflow.ErrCodeInvalidCredentials}})
		return
	}
	form := r.PostForm

	validated, err := h.redirect.Validate(ctx, form.Get("redirect"))
	if err != nil {
		audit.FromRequest(r, audit.KindRedirectReject).Detail("flow", "login").Emit()
		redirectWithParams(w, r, "/login", echoParams(authflow.ErrCodeInvalidRedirect, form))
		return
	}

	rejectCredentials := func() {
		audit.FromRequest(r, audit.KindLoginFailed).Status(http.StatusFound).Emit()
		metrics.RecordAuthAttempt("login", authflow.ErrCodeInvalidCredentials)
		redirectWithParams(w, r, "/login", echoParams(authflow.ErrCodeInvalidCredentials, form))
	}

	user, err := h.db.GetUserByEmail(ctx, form.Get("email"))
	if errors.Is(err, database.ErrNotFound) {
		crypto.DummyVerify()
		rejectCredentials()
		return
	}
	if err != nil {
		logging.Ctx(ctx).Error().Err(err).Msg("User lookup failed")
		writeError(w, r, http.StatusInternalServerError, "Internal server error")
		return
	}
	if !user.HasPassword() {
		crypto.DummyVerify()
		rejectCredentials()
		return
	}
	if !crypto.VerifyPassword(form.Get("password"), user.PasswordHash) {
		rejectCredentials()
		return
	}

	audit.FromRequest(r, audit.KindLogin).User(user.ID).Status(http.StatusFound).Emit()
	metrics.RecordAuthAttempt("login", "success")

	h.finishAuth(w, r, user, validated, audienceFromForm(form.Get("audience")), form.Get("code_challenge"))
}

// ForgotPassword mints a reset token when the account exists and always
// answers identically either way.
func (h *Handlers) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	_ = r.ParseForm()
	emailAddr := r.PostForm.Get("email")

	if validation.ValidEmail(emailAddr) {
		// Federated-only accounts get a token too; the reset flow is how
		// they set a first password.
		if user, err := h.db.GetUserByEmail(ctx, emailAddr); err == nil {
			plain, err := h.tokens.MintPasswordResetToken(ctx, user.ID, resetTokenTTL, time.Now())
			if err != nil {
				logging.Ctx(ctx).Error().Err(err).Msg("Reset token mint failed")
			} else {
				resetURL := h.cfg.Server.AuthDomain + "/reset-password?" +
					url.Values{"token": {plain}}.Encode()
				h.mailer.SendPasswordReset(ctx, user.Email, resetURL)
				audit.FromRequest(r, audit.KindPasswordForgot).User(user.ID).Emit()
			}
		}
	}

	redirectWithParams(w, r, "/login", url.Values{"message": {authflow.MsgResetSent}})
}

// ResetPassword consumes a reset token, replaces the password, and
// revokes every refresh token of the user.
func (h *Handlers) ResetPassword(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	_ = r.ParseForm()
	form := r.PostForm

	fail := func(code string) {
		redirectWithParams(w, r, "/reset-password", url.Values{"error": {code}})
	}

	input := resetInput{
		Token:           form.Get("token"),
		NewPassword:     form.Get("newPassword"),
		ConfirmPassword: form.Get("confirmPassword"),
	}
	if err := validation.ValidateStruct(&input); err != nil {
		fail(validationErrorCode(err, map[string]string{
			"Token":           authflow.ErrCodeInvalidToken,
			"NewPassword":     authflow.ErrCodePasswordWeak,
			"ConfirmPassword": authflow.ErrCodePasswordMismatch,
		}, authflow.ErrCodeInvalidToken))
		return
	}

	record, err := h.tokens.ConsumePasswordResetToken(ctx, input.Token, time.Now())
	if errors.Is(err, token.ErrResetTokenExpired) {
		fail(authflow.ErrCodeTokenExpired)
		return
	}
	if err != nil {
		fail(authflow.ErrCodeInvalidToken)
		return
	}

	hash, err := crypto.HashPassword(input.NewPassword)
	if err != nil {
		logging.Ctx(ctx).Error().Err(err).Msg("Password hashing failed")
		writeError(w, r, http.StatusInternalServerError, "Internal server error")
		return
	}
	if err := h.db.UpdateUserPassword(ctx, record.UserID, hash); err != nil {
		logging.Ctx(ctx).Error().Err(err).Msg("Password update failed")
		writeError(w, r, http.StatusInternalServerError, "Internal server error")
		return
	}

	// Mandatory session wipe on password change.
	if _, err := h.tokens.RevokeAll(ctx, record.UserID, time.Now()); err != nil {
		logging.Ctx(ctx).Error().Err(err).Msg("Session wipe failed after password reset")
		writeError(w, r, http.StatusInternalServerError, "Internal server error")
		return
	}

	audit.FromRequest(r, audit.KindPasswordReset).User(record.UserID).Emit()
	redirectWithParams(w, r, "/login", url.Values{"message": {authflow.MsgPasswordChanged}})
}
