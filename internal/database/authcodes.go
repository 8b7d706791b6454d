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

// InsertAuthCode stores a single-use authorization code record. The
// caller passes the SHA-256 hex of the code; plaintext never reaches
// this layer.
func (d *DB) InsertAuthCode(ctx context.Context, code *models.AuthCode) error {
	var challenge, method any
	if code.CodeChallenge != "" {
		challenge = code.CodeChallenge
		method = code.CodeChallengeMethod
	}
	_, err := d.db.ExecContext(ctx, `
		INSERT INTO auth_codes (code_hash, user_id, tenant_id, redirect_origin, audience,
		                        expires_at, code_challenge, code_challenge_method)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		code.CodeHash, code.UserID, code.TenantID, code.RedirectOrigin, code.Audience,
		code.ExpiresAt, challenge, method)
	if err != nil {
		return fmt.Errorf("inserting auth code: %w", err)
	}
	return nil
}

// ConsumeAuthCode atomically deletes and returns the code row for the
// given hash. Exactly one of two concurrent callers can win; the loser
// gets ErrNotFound. Expiry is NOT checked here so the exchange layer can
// distinguish "unknown" from "expired" for its audit events.
func (d *DB) ConsumeAuthCode(ctx context.Context, codeHash string) (*models.AuthCode, error) {
	row := d.db.QueryRowContext(ctx, `
		DELETE FROM auth_codes
		WHERE code_hash = ?
		RETURNING code_hash, user_id, tenant_id, redirect_origin, audience,
		          expires_at, code_challenge, code_challenge_method`,
		codeHash)

	var (
		c         models.AuthCode
		challenge sql.NullString
		method    sql.NullString
	)
	err := row.Scan(&c.CodeHash, &c.UserID, &c.TenantID, &c.RedirectOrigin, &c.Audience,
		&c.ExpiresAt, &challenge, &method)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("consuming auth code: %w", err)
	}
	c.CodeChallenge = challenge.String
	c.CodeChallengeMethod = method.String
	return &c, nil
}

// SweepAuthCodes deletes codes whose expiry has passed. Returns the
// number of rows removed.
func (d *DB) SweepAuthCodes(ctx context.Context, nowUnix int64) (int64, error) {
	res, err := d.db.ExecContext(ctx,
		`DELETE FROM auth_codes WHERE expires_at <= ?`, nowUnix)
	if err != nil {
		return 0, fmt.Errorf("sweeping auth codes: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}
