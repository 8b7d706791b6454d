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

// EnsureMembership inserts a customer membership at the tenant if the user
// has none, as active. When a (user, tenant, customer) row already exists
// the call is a no-op: in particular it never resurrects a suspended
// membership. The `__unknown__` sentinel gets a row like any real tenant,
// so sign-ins on unregistered controlled-suffix hosts still leave a
// membership behind.
func (d *DB) EnsureMembership(ctx context.Context, userID, tenantID string) error {
	_, err := d.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO tenant_memberships (id, user_id, tenant_id, role, status)
		VALUES (?, ?, ?, ?, ?)`,
		uuid.NewString(), userID, tenantID, models.RoleCustomer, models.MembershipActive)
	if err != nil {
		return fmt.Errorf("ensuring membership: %w", err)
	}
	return nil
}

// GrantMembership inserts a membership with an explicit role and status,
// for administrative grants. Returns ErrDuplicate when the (user, tenant,
// role) row already exists.
func (d *DB) GrantMembership(ctx context.Context, userID, tenantID string, role models.Role, status models.MembershipStatus) (*models.TenantMembership, error) {
	id := uuid.NewString()
	_, err := d.db.ExecContext(ctx, `
		INSERT INTO tenant_memberships (id, user_id, tenant_id, role, status)
		VALUES (?, ?, ?, ?, ?)`,
		id, userID, tenantID, role, status)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicate
		}
		return nil, fmt.Errorf("granting membership: %w", err)
	}

	row := d.db.QueryRowContext(ctx, `
		SELECT id, user_id, tenant_id, role, status, created_at
		FROM tenant_memberships WHERE id = ?`, id)
	return scanMembership(row)
}

// ListMemberships returns all memberships for the user, oldest first.
func (d *DB) ListMemberships(ctx context.Context, userID string) ([]models.TenantMembership, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT id, user_id, tenant_id, role, status, created_at
		FROM tenant_memberships
		WHERE user_id = ?
		ORDER BY created_at, id`, userID)
	if err != nil {
		return nil, fmt.Errorf("listing memberships: %w", err)
	}
	defer rows.Close()

	var out []models.TenantMembership
	for rows.Next() {
		m, err := scanMembership(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *m)
	}
	return out, rows.Err()
}

// RolesAtTenant returns the user's active roles at a tenant.
func (d *DB) RolesAtTenant(ctx context.Context, userID, tenantID string) ([]models.Role, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT role FROM tenant_memberships
		WHERE user_id = ? AND tenant_id = ? AND status = ?
		ORDER BY created_at, id`,
		userID, tenantID, models.MembershipActive)
	if err != nil {
		return nil, fmt.Errorf("querying roles: %w", err)
	}
	defer rows.Close()

	var roles []models.Role
	for rows.Next() {
		var r models.Role
		if err := rows.Scan(&r); err != nil {
			return nil, fmt.Errorf("scanning role: %w", err)
		}
		roles = append(roles, r)
	}
	return roles, rows.Err()
}

// PrimaryTenantID returns the tenant of the user's oldest active
// non-customer membership, or "" when the user has none. Admin tokens
// carry this as their home tenant.
func (d *DB) PrimaryTenantID(ctx context.Context, userID string) (string, error) {
	var tenantID string
	err := d.db.QueryRowContext(ctx, `
		SELECT tenant_id FROM tenant_memberships
		WHERE user_id = ? AND status = ? AND role != ?
		ORDER BY created_at, id
		LIMIT 1`,
		userID, models.MembershipActive, models.RoleCustomer).Scan(&tenantID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("querying primary tenant: %w", err)
	}
	return tenantID, nil
}

func scanMembership(row scanner) (*models.TenantMembership, error) {
	var (
		m         models.TenantMembership
		createdAt string
	)
	if err := row.Scan(&m.ID, &m.UserID, &m.TenantID, &m.Role, &m.Status, &createdAt); err != nil {
		return nil, fmt.Errorf("scanning membership: %w", err)
	}
	var err error
	if m.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	return &m, nil
}
