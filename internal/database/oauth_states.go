// Centerpiece Auth - Multi-Tenant Identity and Session Service
// Copyright 2026 M. Sherwood (mjsherwood76-dev)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mjsherwood76-dev/centerpiece-auth

package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/mjsherwood76-dev/centerpiece-auth/internal/models"
)

// InsertOAuthState pins a federated sign-in round trip.
func (d *DB) InsertOAuthState(ctx context.Context, s *models.OAuthState) error {
	_, err := d.db.ExecContext(ctx, `
		INSERT INTO oauth_states (state, tenant_id, redirect_url, code_verifier, nonce, provider, expires_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		s.State, s.TenantID, s.RedirectURL, s.CodeVerifier, s.Nonce, s.Provider, s.ExpiresAt)
	if err != nil {
		return fmt.Errorf("inserting oauth state: %w", err)
	}
	return nil
}

// ConsumeOAuthState atomically deletes and returns the state row. A
// replayed callback gets ErrNotFound. Expiry is left to the caller.
func (d *DB) ConsumeOAuthState(ctx context.Context, state string) (*models.OAuthState, error) {
	row := d.db.QueryRowContext(ctx, `
		DELETE FROM oauth_states
		WHERE state = ?
		RETURNING state, tenant_id, redirect_url, code_verifier, nonce, provider, expires_at`,
		state)

	var s models.OAuthState
	err := row.Scan(&s.State, &s.TenantID, &s.RedirectURL, &s.CodeVerifier, &s.Nonce, &s.Provider, &s.ExpiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("consuming oauth state: %w", err)
	}
	return &s, nil
}

// SweepOAuthStates deletes expired state rows.
func (d *DB) SweepOAuthStates(ctx context.Context, nowUnix int64) (int64, error) {
	res, err := d.db.ExecContext(ctx,
		`DELETE FROM oauth_states WHERE expires_at <= ?`, nowUnix)
	if err != nil {
		return 0, fmt.Errorf("sweeping oauth states: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}
