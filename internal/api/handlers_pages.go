// Centerpiece Auth - Multi-Tenant Identity and Session Service
// Copyright 2026 M. Sherwood (mjsherwood76-dev)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mjsherwood76-dev/centerpiece-auth

package api

import (
	"embed"
	"html/template"
	"net/http"
	"net/url"

	"github.com/mjsherwood76-dev/centerpiece-auth/internal/authflow"
	"github.com/mjsherwood76-dev/centerpiece-auth/internal/logging"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

var pageTemplates = template.Must(template.ParseFS(templateFS, "templates/*.tmpl"))

// errorMessages maps the closed error-code set onto user-facing text.
// Unknown codes render nothing rather than echoing attacker-chosen input.
var errorMessages = map[string]string{
	authflow.ErrCodeInvalidCredentials: "Invalid email or password.",
	authflow.ErrCodeInvalidRedirect:    "This sign-in link is not valid. Please start again from the store.",
	authflow.ErrCodeInvalidEmail:       "Please enter a valid email address.",
	authflow.ErrCodePasswordWeak:       "Password must be at least 8 characters.",
	authflow.ErrCodePasswordMismatch:   "Passwords do not match.",
	authflow.ErrCodeEmailExists:        "An account with that email already exists.",
	authflow.ErrCodeInvalidToken:       "This reset link is not valid. Please request a new one.",
	authflow.ErrCodeTokenExpired:       "This reset link has expired. Please request a new one.",
	authflow.ErrCodeSessionExpired:     "Your session has expired. Please sign in again.",
	authflow.ErrCodeOAuthFailed:        "Sign-in with the provider failed. Please try again.",
	authflow.ErrCodeOAuthNotConfigured: "That sign-in method is not available.",
}

var noticeMessages = map[string]string{
	authflow.MsgResetSent:       "If an account exists for that email, a reset link is on its way.",
	authflow.MsgPasswordChanged: "Your password has been changed. Please sign in.",
}

// pageData feeds the auth page templates.
type pageData struct {
	Title   string
	Error   string
	Message string

	Email    string
	Name     string
	Redirect string
	Tenant   string
	Audience string
	Token    string

	Providers []string
}

// RedirectQuery is the redirect value escaped for embedding in links.
func (p pageData) RedirectQuery() string { return url.QueryEscape(p.Redirect) }

func (h *Handlers) renderPage(w http.ResponseWriter, r *http.Request, name string, data pageData) {
	q := r.URL.Query()
	data.Error = errorMessages[q.Get("error")]
	data.Message = noticeMessages[q.Get("message")]
	data.Email = q.Get("email")
	data.Name = q.Get("name")
	data.Redirect = q.Get("redirect")
	data.Tenant = q.Get("tenant")
	data.Audience = q.Get("audience")

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	if err := pageTemplates.ExecuteTemplate(w, name, data); err != nil {
		logging.Ctx(r.Context()).Error().Err(err).Str("template", name).Msg("Page render failed")
	}
}

// LoginPage renders the sign-in form, including configured federation
// providers and the forgot-password form.
func (h *Handlers) LoginPage(w http.ResponseWriter, r *http.Request) {
	h.renderPage(w, r, "login.html.tmpl", pageData{
		Title:     "Sign in",
		Providers: h.oauth.Providers(),
	})
}

// RegisterPage renders the account-creation form.
func (h *Handlers) RegisterPage(w http.ResponseWriter, r *http.Request) {
	h.renderPage(w, r, "register.html.tmpl", pageData{Title: "Create account"})
}

// ResetPasswordPage renders the new-password form for an emailed token.
func (h *Handlers) ResetPasswordPage(w http.ResponseWriter, r *http.Request) {
	h.renderPage(w, r, "reset.html.tmpl", pageData{
		Title: "Reset password",
		Token: r.URL.Query().Get("token"),
	})
}
