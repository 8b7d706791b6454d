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

	"github.com/google/uuid"

	"github.com/mjsherwood76-dev/centerpiece-auth/internal/models"
)

// LinkOAuthAccount associates a provider account with a user. Returns
// ErrDuplicate when the provider account is already linked (to any user).
func (d *DB) LinkOAuthAccount(ctx context.Context, userID, provider, providerAccountID string) (*models.OAuthAccount, error) {
	id := uuid.NewString()
	_, err := d.db.ExecContext(ctx, `
		INSERT INTO oauth_accounts (id, user_id, provider, provider_account_id)
		VALUES (?, ?, ?, ?)`,
		id, userID, provider, providerAccountID)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicate
		}
		return nil, fmt.Errorf("linking oauth account: %w", err)
	}

	row := d.db.QueryRowContext(ctx, `
		SELECT id, user_id, provider, provider_account_id, created_at
		FROM oauth_accounts WHERE id = ?`, id)
	return scanOAuthAccount(row)
}

// GetOAuthAccount looks up a link by (provider, provider account id).
func (d *DB) GetOAuthAccount(ctx context.Context, provider, providerAccountID string) (*models.OAuthAccount, error) {
	row := d.db.QueryRowContext(ctx, `
		SELECT id, user_id, provider, provider_account_id, created_at
		FROM oauth_accounts
		WHERE provider = ? AND provider_account_id = ?`,
		provider, providerAccountID)
	return scanOAuthAccount(row)
}

// ListOAuthAccounts returns all federated links for a user.
func (d *DB) ListOAuthAccounts(ctx context.Context, userID string) ([]models.OAuthAccount, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT id, user_id, provider, provider_account_id, created_at
		FROM oauth_accounts
		WHERE user_id = ?
		ORDER BY created_at, id`, userID)
	if err != nil {
		return nil, fmt.Errorf("listing oauth accounts: %w", err)
	}
	defer rows.Close()

	var out []models.OAuthAccount
	for rows.Next() {
		a, err := scanOAuthAccount(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

func scanOAuthAccount(row scanner) (*models.OAuthAccount, error) {
	var (
		a         models.OAuthAccount
		createdAt string
	)
	err := row.Scan(&a.ID, &a.UserID, &a.Provider, &a.ProviderAccountID, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning oauth account: %w", err)
	}
	if a.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	return &a, nil
}
