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

	"github.com/google/uuid"

	"github.com/mjsherwood76-dev/centerpiece-auth/internal/models"
)

const refreshTokenColumns = `id, user_id, token_hash, family_id, expires_at,
	revoked_at, last_used_at, created_at, ip, user_agent`

// InsertRefreshToken stores a refresh token record. A zero FamilyID
// starts a new family rooted at the token's own id.
func (d *DB) InsertRefreshToken(ctx context.Context, t *models.RefreshToken) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.FamilyID == "" {
		t.FamilyID = t.ID
	}
	_, err := d.db.ExecContext(ctx, `
		INSERT INTO refresh_tokens (id, user_id, token_hash, family_id, expires_at, ip, user_agent)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.UserID, t.TokenHash, t.FamilyID, t.ExpiresAt, t.IP, t.UserAgent)
	if err != nil {
		return fmt.Errorf("inserting refresh token: %w", err)
	}
	return nil
}

// GetRefreshTokenByHash looks up a token by its stored hash, revoked or not.
func (d *DB) GetRefreshTokenByHash(ctx context.Context, tokenHash string) (*models.RefreshToken, error) {
	row := d.db.QueryRowContext(ctx,
		`SELECT `+refreshTokenColumns+` FROM refresh_tokens WHERE token_hash = ?`,
		tokenHash)
	return scanRefreshToken(row)
}

// RotateRefreshToken revokes the presented token and inserts its successor
// in the same family, in one transaction. The revocation is conditional on
// revoked_at being NULL: when a second caller presents the same token, the
// conditional update matches zero rows and ErrAlreadyRevoked is returned
// so the caller can treat the presentation as reuse.
func (d *DB) RotateRefreshToken(ctx context.Context, presented *models.RefreshToken, successor *models.RefreshToken, now time.Time) (*models.RefreshToken, error) {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning rotation: %w", err)
	}
	defer rollback(tx)

	res, err := tx.ExecContext(ctx, `
		UPDATE refresh_tokens
		SET revoked_at = ?, last_used_at = ?
		WHERE id = ? AND revoked_at IS NULL`,
		formatTime(now), formatTime(now), presented.ID)
	if err != nil {
		return nil, fmt.Errorf("revoking presented token: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, ErrAlreadyRevoked
	}

	if successor.ID == "" {
		successor.ID = uuid.NewString()
	}
	successor.UserID = presented.UserID
	successor.FamilyID = presented.FamilyID

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO refresh_tokens (id, user_id, token_hash, family_id, expires_at, ip, user_agent)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		successor.ID, successor.UserID, successor.TokenHash, successor.FamilyID,
		successor.ExpiresAt, successor.IP, successor.UserAgent); err != nil {
		return nil, fmt.Errorf("inserting successor token: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing rotation: %w", err)
	}
	return successor, nil
}

// RevokeFamily revokes every live token in a family. Used on reuse
// detection and on logout.
func (d *DB) RevokeFamily(ctx context.Context, familyID string, now time.Time) (int64, error) {
	res, err := d.db.ExecContext(ctx, `
		UPDATE refresh_tokens
		SET revoked_at = ?
		WHERE family_id = ? AND revoked_at IS NULL`,
		formatTime(now), familyID)
	if err != nil {
		return 0, fmt.Errorf("revoking token family: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// RevokeAllForUser revokes every live token belonging to the user,
// across all families. Used on password reset and logout-all.
func (d *DB) RevokeAllForUser(ctx context.Context, userID string, now time.Time) (int64, error) {
	res, err := d.db.ExecContext(ctx, `
		UPDATE refresh_tokens
		SET revoked_at = ?
		WHERE user_id = ? AND revoked_at IS NULL`,
		formatTime(now), userID)
	if err != nil {
		return 0, fmt.Errorf("revoking user tokens: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// SweepRefreshTokens deletes tokens that expired before the cutoff.
// Revoked rows are kept until expiry so reuse of an old token still
// trips family revocation.
func (d *DB) SweepRefreshTokens(ctx context.Context, nowUnix int64) (int64, error) {
	res, err := d.db.ExecContext(ctx,
		`DELETE FROM refresh_tokens WHERE expires_at <= ?`, nowUnix)
	if err != nil {
		return 0, fmt.Errorf("sweeping refresh tokens: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

func scanRefreshToken(row scanner) (*models.RefreshToken, error) {
	var (
		t          models.RefreshToken
		revokedAt  sql.NullString
		lastUsedAt sql.NullString
		createdAt  string
	)
	err := row.Scan(&t.ID, &t.UserID, &t.TokenHash, &t.FamilyID, &t.ExpiresAt,
		&revokedAt, &lastUsedAt, &createdAt, &t.IP, &t.UserAgent)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning refresh token: %w", err)
	}
	if t.RevokedAt, err = nullTime(revokedAt); err != nil {
		return nil, err
	}
	if t.LastUsedAt, err = nullTime(lastUsedAt); err != nil {
		return nil, err
	}
	if t.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	return &t, nil
}
