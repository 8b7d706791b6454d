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
)

// GetTenantIDForDomain resolves a registered custom domain to its tenant,
// or ErrNotFound. Lookup is case-insensitive on the host.
func (d *DB) GetTenantIDForDomain(ctx context.Context, domain string) (string, error) {
	var tenantID string
	err := d.db.QueryRowContext(ctx,
		`SELECT tenant_id FROM tenant_domains WHERE domain = ?`,
		strings.ToLower(domain)).Scan(&tenantID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("resolving tenant domain: %w", err)
	}
	return tenantID, nil
}

// UpsertTenantDomain registers or reassigns a custom domain.
func (d *DB) UpsertTenantDomain(ctx context.Context, domain, tenantID string) error {
	_, err := d.db.ExecContext(ctx, `
		INSERT INTO tenant_domains (domain, tenant_id) VALUES (?, ?)
		ON CONFLICT (domain) DO UPDATE SET tenant_id = excluded.tenant_id`,
		strings.ToLower(domain), tenantID)
	if err != nil {
		return fmt.Errorf("upserting tenant domain: %w", err)
	}
	return nil
}

// DeleteTenantDomain removes a custom domain registration.
func (d *DB) DeleteTenantDomain(ctx context.Context, domain string) error {
	res, err := d.db.ExecContext(ctx,
		`DELETE FROM tenant_domains WHERE domain = ?`, strings.ToLower(domain))
	if err != nil {
		return fmt.Errorf("deleting tenant domain: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
