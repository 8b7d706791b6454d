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
	"time"

	"github.com/mjsherwood76-dev/centerpiece-auth/internal/models"
)

// InsertPasswordResetToken stores a reset token by hash.
func (d *DB) InsertPasswordResetToken(ctx context.Context, t *models.PasswordResetToken) error {
	_, err := d.db.ExecContext(ctx, `
		INSERT INTO password_reset_tokens (token_hash, user_id, expires_at)
		VALUES (?, ?, ?)`,
		t.TokenHash, t.UserID, t.ExpiresAt)
	if err != nil {
		return fmt.Errorf("inserting reset token: %w", err)
	}
	return nil
}

// ConsumePasswordResetToken marks the token used and returns it, in one
// statement. A second presentation finds used_at set and gets ErrNotFound.
// The row is kept (rather than deleted) as an audit trail of completed
// resets until the sweeper clears it at expiry.
func (d *DB) ConsumePasswordResetToken(ctx context.Context, tokenHash string, now time.Time) (*models.PasswordResetToken, error) {
	row := d.db.QueryRowContext(ctx, `
		UPDATE password_reset_tokens
		SET used_at = ?
		WHERE token_hash = ? AND used_at IS NULL
		RETURNING token_hash, user_id, expires_at`,
		formatTime(now), tokenHash)

	var t models.PasswordResetToken
	err := row.Scan(&t.TokenHash, &t.UserID, &t.ExpiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("consuming reset token: %w", err)
	}
	return &t, nil
}

// SweepPasswordResetTokens deletes expired reset rows, used or not.
func (d *DB) SweepPasswordResetTokens(ctx context.Context, nowUnix int64) (int64, error) {
	res, err := d.db.ExecContext(ctx,
		`DELETE FROM password_reset_tokens WHERE expires_at <= ?`, nowUnix)
	if err != nil {
		return 0, fmt.Errorf("sweeping reset tokens: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}
