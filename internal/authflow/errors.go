// Centerpiece Auth - Multi-Tenant Identity and Session Service
// Copyright 2026 M. Sherwood (mjsherwood76-dev)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mjsherwood76-dev/centerpiece-auth

package authflow

// User-visible error codes, delivered as ?error= query parameters on the
// redirect back to the originating page. The set is closed; handlers must
// never leak internal error text into a redirect.
const (
	ErrCodeInvalidCredentials = "invalid_credentials"
	ErrCodeInvalidRedirect    = "invalid_redirect"
	ErrCodeInvalidEmail       = "invalid_email"
	ErrCodePasswordWeak       = "password_weak"
	ErrCodePasswordMismatch   = "password_mismatch"
	ErrCodeEmailExists        = "email_exists"
	ErrCodeInvalidToken       = "invalid_token"
	ErrCodeTokenExpired       = "token_expired"
	ErrCodeSessionExpired     = "session_expired"
	ErrCodeOAuthFailed        = "oauth_failed"
	ErrCodeOAuthNotConfigured = "oauth_not_configured"
)

// Success-path messages, delivered as ?message= query parameters.
const (
	MsgResetSent       = "reset_sent"
	MsgPasswordChanged = "password_changed"
)
