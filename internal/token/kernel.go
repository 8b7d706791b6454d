// Centerpiece Auth - Multi-Tenant Identity and Session Service
// Copyright 2026 M. Sherwood (mjsherwood76-dev)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mjsherwood76-dev/centerpiece-auth

// Package token implements the refresh-token and authorization-code
// kernel: family-based rotation with reuse detection, single-use code
// issuance and exchange, and password-reset tokens.
package token

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mjsherwood76-dev/centerpiece-auth/internal/crypto"
	"github.com/mjsherwood76-dev/centerpiece-auth/internal/database"
	"github.com/mjsherwood76-dev/centerpiece-auth/internal/logging"
	"github.com/mjsherwood76-dev/centerpiece-auth/internal/models"
)

// Kernel rejections. Handlers map these onto the closed set of
// user-visible codes; no other detail leaves the kernel.
var (
	// ErrInvalidCode covers an unknown code, a tenant or origin
	// mismatch, and a failed PKCE check. The code is consumed either
	// way, so a retry with corrected parameters also fails.
	ErrInvalidCode = errors.New("token: authorization code rejected")

	// ErrExpiredCode is an authorization code past its expiry.
	ErrExpiredCode = errors.New("token: authorization code expired")

	// ErrSessionExpired covers a missing, expired, or revoked refresh
	// token. The cookie must be cleared.
	ErrSessionExpired = errors.New("token: session expired")

	// ErrReuseDetected is a revoked refresh token presented again. The
	// whole family has been revoked as a consequence. Surfaced to the
	// client identically to ErrSessionExpired.
	ErrReuseDetected = errors.New("token: refresh token reuse detected")

	// ErrResetTokenInvalid is an unknown or already-used reset token.
	ErrResetTokenInvalid = errors.New("token: reset token invalid")

	// ErrResetTokenExpired is a reset token past its expiry.
	ErrResetTokenExpired = errors.New("token: reset token expired")
)

// Store is the persistence surface the kernel needs.
type Store interface {
	InsertRefreshToken(ctx context.Context, t *models.RefreshToken) error
	GetRefreshTokenByHash(ctx context.Context, tokenHash string) (*models.RefreshToken, error)
	RotateRefreshToken(ctx context.Context, presented, successor *models.RefreshToken, now time.Time) (*models.RefreshToken, error)
	RevokeFamily(ctx context.Context, familyID string, now time.Time) (int64, error)
	RevokeAllForUser(ctx context.Context, userID string, now time.Time) (int64, error)

	InsertAuthCode(ctx context.Context, code *models.AuthCode) error
	ConsumeAuthCode(ctx context.Context, codeHash string) (*models.AuthCode, error)

	InsertPasswordResetToken(ctx context.Context, t *models.PasswordResetToken) error
	ConsumePasswordResetToken(ctx context.Context, tokenHash string, now time.Time) (*models.PasswordResetToken, error)
}

// ClientInfo captures the originating client for the refresh-token audit
// columns.
type ClientInfo struct {
	IP        string
	UserAgent string
}

// CodeRequest describes the binding of a new authorization code.
type CodeRequest struct {
	UserID         string
	TenantID       string
	RedirectOrigin string
	Audience       models.Audience

	// CodeChallenge is the optional PKCE S256 challenge.
	CodeChallenge string
}

// Session is the result of a successful authentication: a fresh refresh
// token plaintext (handed to the client exactly once, in a cookie) and a
// single-use authorization code plaintext (carried in the callback URL).
type Session struct {
	RefreshToken string
	Code         string
}

// Kernel mints, rotates, and exchanges the service's opaque tokens.
type Kernel struct {
	store      Store
	refreshTTL time.Duration
	codeTTL    time.Duration
}

// New builds a token kernel over the given store.
func New(store Store, refreshTTL, codeTTL time.Duration) *Kernel {
	return &Kernel{store: store, refreshTTL: refreshTTL, codeTTL: codeTTL}
}

// RefreshTTL returns the refresh-token lifetime, used for cookie Max-Age.
func (k *Kernel) RefreshTTL() time.Duration { return k.refreshTTL }

// MintSession starts a new refresh-token family for the user and issues
// an authorization code bound to the request. Called at the end of every
// successful password or federated authentication.
func (k *Kernel) MintSession(ctx context.Context, req CodeRequest, client ClientInfo, now time.Time) (*Session, error) {
	refresh, err := crypto.NewToken()
	if err != nil {
		return nil, fmt.Errorf("minting refresh token: %w", err)
	}
	if err := k.store.InsertRefreshToken(ctx, &models.RefreshToken{
		UserID:    req.UserID,
		TokenHash: crypto.SHA256Hex(refresh),
		ExpiresAt: now.Add(k.refreshTTL).Unix(),
		IP:        client.IP,
		UserAgent: client.UserAgent,
	}); err != nil {
		return nil, err
	}

	code, err := k.IssueAuthCode(ctx, req, now)
	if err != nil {
		return nil, err
	}
	return &Session{RefreshToken: refresh, Code: code}, nil
}

// IssueAuthCode mints a single-use authorization code bound to the
// request and returns its plaintext.
func (k *Kernel) IssueAuthCode(ctx context.Context, req CodeRequest, now time.Time) (string, error) {
	code, err := crypto.NewToken()
	if err != nil {
		return "", fmt.Errorf("minting authorization code: %w", err)
	}

	record := &models.AuthCode{
		CodeHash:       crypto.SHA256Hex(code),
		UserID:         req.UserID,
		TenantID:       req.TenantID,
		RedirectOrigin: req.RedirectOrigin,
		Audience:       req.Audience,
		ExpiresAt:      now.Add(k.codeTTL).Unix(),
	}
	if req.CodeChallenge != "" {
		record.CodeChallenge = req.CodeChallenge
		record.CodeChallengeMethod = "S256"
	}

	if err := k.store.InsertAuthCode(ctx, record); err != nil {
		return "", err
	}
	return code, nil
}

// ExchangeAuthCode consumes the presented code and checks its bindings in
// order: existence, expiry, tenant, redirect origin, PKCE. The consume
// happens first, so a code that fails any later check is already burned.
// On success the stored (user, tenant, audience) binding is returned for
// the JWT kernel to sign.
func (k *Kernel) ExchangeAuthCode(ctx context.Context, code, tenantID, redirectOrigin, codeVerifier string, now time.Time) (*models.AuthCode, error) {
	record, err := k.store.ConsumeAuthCode(ctx, crypto.SHA256Hex(code))
	if errors.Is(err, database.ErrNotFound) {
		return nil, ErrInvalidCode
	}
	if err != nil {
		return nil, err
	}

	if record.Expired(now) {
		return nil, ErrExpiredCode
	}
	if tenantID != record.TenantID {
		return nil, ErrInvalidCode
	}
	if redirectOrigin != record.RedirectOrigin {
		return nil, ErrInvalidCode
	}
	if record.CodeChallenge != "" {
		if codeVerifier == "" || !crypto.VerifyS256(codeVerifier, record.CodeChallenge) {
			return nil, ErrInvalidCode
		}
	}
	return record, nil
}

// Rotate exchanges a presented refresh-token plaintext for a successor in
// the same family. A revoked token trips family-wide revocation and
// returns ErrReuseDetected; a missing or expired token returns
// ErrSessionExpired. The successor plaintext is returned exactly once.
func (k *Kernel) Rotate(ctx context.Context, presented string, client ClientInfo, now time.Time) (string, *models.RefreshToken, error) {
	current, err := k.store.GetRefreshTokenByHash(ctx, crypto.SHA256Hex(presented))
	if errors.Is(err, database.ErrNotFound) {
		return "", nil, ErrSessionExpired
	}
	if err != nil {
		return "", nil, err
	}

	if current.Revoked() {
		if _, err := k.store.RevokeFamily(ctx, current.FamilyID, now); err != nil {
			logging.Ctx(ctx).Error().Err(err).Str("family_id", current.FamilyID).
				Msg("Family revocation failed after reuse")
		}
		return "", nil, ErrReuseDetected
	}
	if current.Expired(now) {
		return "", nil, ErrSessionExpired
	}

	next, err := crypto.NewToken()
	if err != nil {
		return "", nil, fmt.Errorf("minting successor token: %w", err)
	}
	successor := &models.RefreshToken{
		TokenHash: crypto.SHA256Hex(next),
		ExpiresAt: now.Add(k.refreshTTL).Unix(),
		IP:        client.IP,
		UserAgent: client.UserAgent,
	}

	inserted, err := k.store.RotateRefreshToken(ctx, current, successor, now)
	if errors.Is(err, database.ErrAlreadyRevoked) {
		// Lost the race to a concurrent rotation of the same token.
		// Treat it exactly like reuse of a revoked token.
		if _, err := k.store.RevokeFamily(ctx, current.FamilyID, now); err != nil {
			logging.Ctx(ctx).Error().Err(err).Str("family_id", current.FamilyID).
				Msg("Family revocation failed after rotation race")
		}
		return "", nil, ErrReuseDetected
	}
	if err != nil {
		return "", nil, err
	}
	return next, inserted, nil
}

// Revoke revokes the single refresh token matching the plaintext, for
// logout. Unknown tokens are a no-op.
func (k *Kernel) Revoke(ctx context.Context, presented string, now time.Time) (*models.RefreshToken, error) {
	current, err := k.store.GetRefreshTokenByHash(ctx, crypto.SHA256Hex(presented))
	if errors.Is(err, database.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if _, err := k.store.RevokeFamily(ctx, current.FamilyID, now); err != nil {
		return nil, err
	}
	return current, nil
}

// RevokeAll revokes every refresh token of the user. Used by logout-all
// and mandatorily by password reset.
func (k *Kernel) RevokeAll(ctx context.Context, userID string, now time.Time) (int64, error) {
	return k.store.RevokeAllForUser(ctx, userID, now)
}

// MintPasswordResetToken issues a reset token for the user and returns
// its plaintext for the email link.
func (k *Kernel) MintPasswordResetToken(ctx context.Context, userID string, ttl time.Duration, now time.Time) (string, error) {
	plain, err := crypto.NewToken()
	if err != nil {
		return "", fmt.Errorf("minting reset token: %w", err)
	}
	if err := k.store.InsertPasswordResetToken(ctx, &models.PasswordResetToken{
		TokenHash: crypto.SHA256Hex(plain),
		UserID:    userID,
		ExpiresAt: now.Add(ttl).Unix(),
	}); err != nil {
		return "", err
	}
	return plain, nil
}

// ConsumePasswordResetToken marks the token used and returns its user.
// The consume precedes the expiry check so a replayed expired token is
// burned on first presentation.
func (k *Kernel) ConsumePasswordResetToken(ctx context.Context, plain string, now time.Time) (*models.PasswordResetToken, error) {
	record, err := k.store.ConsumePasswordResetToken(ctx, crypto.SHA256Hex(plain), now)
	if errors.Is(err, database.ErrNotFound) {
		return nil, ErrResetTokenInvalid
	}
	if err != nil {
		return nil, err
	}
	if record.Expired(now) {
		return nil, ErrResetTokenExpired
	}
	return record, nil
}
