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
	"strings"

	"github.com/google/uuid"

	"github.com/mjsherwood76-dev/centerpiece-auth/internal/models"
)

const userColumns = `id, email, email_verified, password_hash, name, avatar_url, created_at, updated_at`

// CreateUser inserts a new user. Email is normalized to lowercase before
// storage. Returns ErrEmailExists when the address is already registered.
func (d *DB) CreateUser(ctx context.Context, email, passwordHash, name string) (*models.User, error) {
	id := uuid.NewString()
	email = NormalizeEmail(email)

	var hash any
	if passwordHash != "" {
		hash = passwordHash
	}

	_, err := d.db.ExecContext(ctx, `
		INSERT INTO users (id, email, email_verified, password_hash, name)
		VALUES (?, ?, 0, ?, ?)`,
		id, email, hash, name)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrEmailExists
		}
		return nil, fmt.Errorf("creating user: %w", err)
	}

	return d.GetUserByID(ctx, id)
}

// GetUserByEmail looks up a user by normalized email.
func (d *DB) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	row := d.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE email = ?`,
		NormalizeEmail(email))
	return scanUser(row)
}

// GetUserByID looks up a user by id.
func (d *DB) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	row := d.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = ?`, id)
	return scanUser(row)
}

// UpdateUserPassword replaces the stored password hash, used by the reset
// flow and by profile backfill on federated accounts.
func (d *DB) UpdateUserPassword(ctx context.Context, userID, passwordHash string) error {
	res, err := d.db.ExecContext(ctx, `
		UPDATE users
		SET password_hash = ?, updated_at = strftime('%Y-%m-%dT%H:%M:%fZ', 'now')
		WHERE id = ?`,
		passwordHash, userID)
	if err != nil {
		return fmt.Errorf("updating password: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// MarkEmailVerified flips email_verified for the user. Used when a
// federated provider attests the address.
func (d *DB) MarkEmailVerified(ctx context.Context, userID string) error {
	res, err := d.db.ExecContext(ctx, `
		UPDATE users
		SET email_verified = 1, updated_at = strftime('%Y-%m-%dT%H:%M:%fZ', 'now')
		WHERE id = ?`, userID)
	if err != nil {
		return fmt.Errorf("marking email verified: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// BackfillUserProfile fills in name and avatar from a federated profile,
// but only where the stored values are empty. Existing user data wins.
func (d *DB) BackfillUserProfile(ctx context.Context, userID, name, avatarURL string) error {
	_, err := d.db.ExecContext(ctx, `
		UPDATE users
		SET name       = CASE WHEN name = '' AND ? != '' THEN ? ELSE name END,
		    avatar_url = CASE WHEN (avatar_url IS NULL OR avatar_url = '') AND ? != '' THEN ? ELSE avatar_url END,
		    updated_at = strftime('%Y-%m-%dT%H:%M:%fZ', 'now')
		WHERE id = ?`,
		name, name, avatarURL, avatarURL, userID)
	if err != nil {
		return fmt.Errorf("backfilling profile: %w", err)
	}
	return nil
}

// NormalizeEmail lowercases and trims an address for storage and lookup.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func scanUser(row scanner) (*models.User, error) {
	var (
		u         models.User
		verified  int
		hash      sql.NullString
		avatar    sql.NullString
		createdAt string
		updatedAt string
	)
	err := row.Scan(&u.ID, &u.Email, &verified, &hash, &u.Name, &avatar, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning user: %w", err)
	}

	u.EmailVerified = verified != 0
	u.PasswordHash = hash.String
	u.AvatarURL = avatar.String
	if u.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if u.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	return &u, nil
}
