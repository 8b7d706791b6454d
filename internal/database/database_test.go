// Centerpiece Auth - Multi-Tenant Identity and Session Service
// Copyright 2026 M. Sherwood (mjsherwood76-dev)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mjsherwood76-dev/centerpiece-auth

package database

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/mjsherwood76-dev/centerpiece-auth/internal/models"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(context.Background(), filepath.Join(t.TempDir(), "auth.db"))
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func mustCreateUser(t *testing.T, db *DB, email string) *models.User {
	t.Helper()
	u, err := db.CreateUser(context.Background(), email, "pbkdf2:100000:aa:bb", "Test User")
	if err != nil {
		t.Fatalf("CreateUser(%q) error: %v", email, err)
	}
	return u
}

func TestCreateUserNormalizesEmail(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	u := mustCreateUser(t, db, "  Alice@Example.COM ")
	if u.Email != "alice@example.com" {
		t.Errorf("stored email = %q, want lowercase trimmed", u.Email)
	}

	got, err := db.GetUserByEmail(ctx, "ALICE@example.com")
	if err != nil {
		t.Fatalf("GetUserByEmail() error: %v", err)
	}
	if got.ID != u.ID {
		t.Errorf("lookup returned user %s, want %s", got.ID, u.ID)
	}
}

func TestCreateUserDuplicateEmail(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	mustCreateUser(t, db, "dup@example.com")
	_, err := db.CreateUser(ctx, "DUP@example.com", "", "Other")
	if !errors.Is(err, ErrEmailExists) {
		t.Fatalf("second CreateUser error = %v, want ErrEmailExists", err)
	}
}

func TestCreateUserWithoutPassword(t *testing.T) {
	db := openTestDB(t)

	u, err := db.CreateUser(context.Background(), "federated@example.com", "", "Fed")
	if err != nil {
		t.Fatalf("CreateUser() error: %v", err)
	}
	if u.HasPassword() {
		t.Error("federated-only user reports HasPassword() = true")
	}
}

func TestGetUserByIDNotFound(t *testing.T) {
	db := openTestDB(t)

	_, err := db.GetUserByID(context.Background(), "missing")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("GetUserByID(missing) error = %v, want ErrNotFound", err)
	}
}

func TestBackfillUserProfilePreservesExisting(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	u := mustCreateUser(t, db, "backfill@example.com")
	if err := db.BackfillUserProfile(ctx, u.ID, "Should Not Win", "https://cdn/avatar.png"); err != nil {
		t.Fatalf("BackfillUserProfile() error: %v", err)
	}

	got, err := db.GetUserByID(ctx, u.ID)
	if err != nil {
		t.Fatalf("GetUserByID() error: %v", err)
	}
	if got.Name != "Test User" {
		t.Errorf("existing name overwritten: %q", got.Name)
	}
	if got.AvatarURL != "https://cdn/avatar.png" {
		t.Errorf("empty avatar not backfilled: %q", got.AvatarURL)
	}
}

func TestEnsureMembershipIdempotent(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	u := mustCreateUser(t, db, "member@example.com")

	for i := 0; i < 3; i++ {
		if err := db.EnsureMembership(ctx, u.ID, "tenant-a"); err != nil {
			t.Fatalf("EnsureMembership() call %d error: %v", i, err)
		}
	}

	ms, err := db.ListMemberships(ctx, u.ID)
	if err != nil {
		t.Fatalf("ListMemberships() error: %v", err)
	}
	if len(ms) != 1 {
		t.Fatalf("got %d memberships, want 1", len(ms))
	}
	if ms[0].Role != models.RoleCustomer || ms[0].Status != models.MembershipActive {
		t.Errorf("membership = %s/%s, want customer/active", ms[0].Role, ms[0].Status)
	}
}

func TestEnsureMembershipNeverResurrectsSuspended(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	u := mustCreateUser(t, db, "suspended@example.com")

	if _, err := db.GrantMembership(ctx, u.ID, "tenant-a", models.RoleCustomer, models.MembershipSuspended); err != nil {
		t.Fatalf("GrantMembership() error: %v", err)
	}
	if err := db.EnsureMembership(ctx, u.ID, "tenant-a"); err != nil {
		t.Fatalf("EnsureMembership() error: %v", err)
	}

	ms, err := db.ListMemberships(ctx, u.ID)
	if err != nil {
		t.Fatalf("ListMemberships() error: %v", err)
	}
	if len(ms) != 1 || ms[0].Status != models.MembershipSuspended {
		t.Fatalf("suspended membership changed: %+v", ms)
	}
}

func TestEnsureMembershipMaterializesUnknownTenant(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	u := mustCreateUser(t, db, "unknown@example.com")

	if err := db.EnsureMembership(ctx, u.ID, models.TenantUnknown); err != nil {
		t.Fatalf("EnsureMembership(unknown) error: %v", err)
	}
	ms, err := db.ListMemberships(ctx, u.ID)
	if err != nil {
		t.Fatalf("ListMemberships() error: %v", err)
	}
	if len(ms) != 1 || ms[0].TenantID != models.TenantUnknown {
		t.Fatalf("memberships = %+v, want one customer row at the sentinel", ms)
	}
}

func TestPrimaryTenantIDIgnoresCustomerRows(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	u := mustCreateUser(t, db, "admin@example.com")

	if err := db.EnsureMembership(ctx, u.ID, "shop-1"); err != nil {
		t.Fatal(err)
	}
	primary, err := db.PrimaryTenantID(ctx, u.ID)
	if err != nil {
		t.Fatalf("PrimaryTenantID() error: %v", err)
	}
	if primary != "" {
		t.Errorf("customer-only user has primary tenant %q", primary)
	}

	if _, err := db.GrantMembership(ctx, u.ID, "shop-2", models.RoleSeller, models.MembershipActive); err != nil {
		t.Fatal(err)
	}
	primary, err = db.PrimaryTenantID(ctx, u.ID)
	if err != nil {
		t.Fatalf("PrimaryTenantID() error: %v", err)
	}
	if primary != "shop-2" {
		t.Errorf("primary tenant = %q, want shop-2", primary)
	}
}

func TestLinkOAuthAccountUniquePerProvider(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	u1 := mustCreateUser(t, db, "one@example.com")
	u2 := mustCreateUser(t, db, "two@example.com")

	if _, err := db.LinkOAuthAccount(ctx, u1.ID, "google", "g-123"); err != nil {
		t.Fatalf("LinkOAuthAccount() error: %v", err)
	}
	_, err := db.LinkOAuthAccount(ctx, u2.ID, "google", "g-123")
	if !errors.Is(err, ErrDuplicate) {
		t.Fatalf("relinking provider account error = %v, want ErrDuplicate", err)
	}

	acct, err := db.GetOAuthAccount(ctx, "google", "g-123")
	if err != nil {
		t.Fatalf("GetOAuthAccount() error: %v", err)
	}
	if acct.UserID != u1.ID {
		t.Errorf("account linked to %s, want %s", acct.UserID, u1.ID)
	}
}

func TestConsumeAuthCodeSingleUse(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	u := mustCreateUser(t, db, "code@example.com")

	code := &models.AuthCode{
		CodeHash:       "hash-1",
		UserID:         u.ID,
		TenantID:       "tenant-a",
		RedirectOrigin: "https://shop.centerpiece.shop",
		Audience:       models.AudienceStorefront,
		ExpiresAt:      time.Now().Add(time.Minute).Unix(),
	}
	if err := db.InsertAuthCode(ctx, code); err != nil {
		t.Fatalf("InsertAuthCode() error: %v", err)
	}

	got, err := db.ConsumeAuthCode(ctx, "hash-1")
	if err != nil {
		t.Fatalf("first ConsumeAuthCode() error: %v", err)
	}
	if got.UserID != u.ID || got.Audience != models.AudienceStorefront {
		t.Errorf("consumed code = %+v", got)
	}

	_, err = db.ConsumeAuthCode(ctx, "hash-1")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("second consume error = %v, want ErrNotFound", err)
	}
}

func TestConsumeAuthCodeReturnsExpiredRows(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	u := mustCreateUser(t, db, "expired@example.com")

	code := &models.AuthCode{
		CodeHash:       "hash-exp",
		UserID:         u.ID,
		TenantID:       "tenant-a",
		RedirectOrigin: "https://shop.centerpiece.shop",
		Audience:       models.AudienceStorefront,
		ExpiresAt:      time.Now().Add(-time.Minute).Unix(),
	}
	if err := db.InsertAuthCode(ctx, code); err != nil {
		t.Fatal(err)
	}

	// The exchange layer distinguishes expired from unknown, so the
	// store must hand back the expired row rather than filtering it.
	got, err := db.ConsumeAuthCode(ctx, "hash-exp")
	if err != nil {
		t.Fatalf("ConsumeAuthCode() error: %v", err)
	}
	if !got.Expired(time.Now()) {
		t.Error("row should report expired")
	}
}

func TestRotateRefreshToken(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	u := mustCreateUser(t, db, "rotate@example.com")
	now := time.Now()

	first := &models.RefreshToken{
		UserID:    u.ID,
		TokenHash: "rt-1",
		ExpiresAt: now.Add(time.Hour).Unix(),
		IP:        "203.0.113.9",
	}
	if err := db.InsertRefreshToken(ctx, first); err != nil {
		t.Fatalf("InsertRefreshToken() error: %v", err)
	}
	if first.FamilyID != first.ID {
		t.Errorf("new token family = %q, want own id %q", first.FamilyID, first.ID)
	}

	successor := &models.RefreshToken{TokenHash: "rt-2", ExpiresAt: now.Add(time.Hour).Unix()}
	got, err := db.RotateRefreshToken(ctx, first, successor, now)
	if err != nil {
		t.Fatalf("RotateRefreshToken() error: %v", err)
	}
	if got.FamilyID != first.FamilyID || got.UserID != u.ID {
		t.Errorf("successor = %+v, want family %s", got, first.FamilyID)
	}

	old, err := db.GetRefreshTokenByHash(ctx, "rt-1")
	if err != nil {
		t.Fatalf("GetRefreshTokenByHash() error: %v", err)
	}
	if !old.Revoked() || old.LastUsedAt == nil {
		t.Errorf("presented token not revoked after rotation: %+v", old)
	}
}

func TestRotateRefreshTokenDetectsReuse(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	u := mustCreateUser(t, db, "reuse@example.com")
	now := time.Now()

	first := &models.RefreshToken{UserID: u.ID, TokenHash: "rt-1", ExpiresAt: now.Add(time.Hour).Unix()}
	if err := db.InsertRefreshToken(ctx, first); err != nil {
		t.Fatal(err)
	}
	if _, err := db.RotateRefreshToken(ctx, first, &models.RefreshToken{TokenHash: "rt-2", ExpiresAt: now.Add(time.Hour).Unix()}, now); err != nil {
		t.Fatal(err)
	}

	// Presenting rt-1 again must fail closed.
	_, err := db.RotateRefreshToken(ctx, first, &models.RefreshToken{TokenHash: "rt-3", ExpiresAt: now.Add(time.Hour).Unix()}, now)
	if !errors.Is(err, ErrAlreadyRevoked) {
		t.Fatalf("reuse rotation error = %v, want ErrAlreadyRevoked", err)
	}

	// And the losing successor must not have been inserted.
	if _, err := db.GetRefreshTokenByHash(ctx, "rt-3"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("orphan successor present, lookup error = %v", err)
	}
}

func TestRevokeFamily(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	u := mustCreateUser(t, db, "family@example.com")
	now := time.Now()

	first := &models.RefreshToken{UserID: u.ID, TokenHash: "rt-1", ExpiresAt: now.Add(time.Hour).Unix()}
	if err := db.InsertRefreshToken(ctx, first); err != nil {
		t.Fatal(err)
	}
	second, err := db.RotateRefreshToken(ctx, first, &models.RefreshToken{TokenHash: "rt-2", ExpiresAt: now.Add(time.Hour).Unix()}, now)
	if err != nil {
		t.Fatal(err)
	}

	n, err := db.RevokeFamily(ctx, first.FamilyID, now)
	if err != nil {
		t.Fatalf("RevokeFamily() error: %v", err)
	}
	if n != 1 {
		t.Errorf("revoked %d live tokens, want 1", n)
	}

	live, err := db.GetRefreshTokenByHash(ctx, second.TokenHash)
	if err != nil {
		t.Fatal(err)
	}
	if !live.Revoked() {
		t.Error("family member still live after RevokeFamily")
	}
}

func TestRevokeAllForUserSpansFamilies(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	u := mustCreateUser(t, db, "all@example.com")
	now := time.Now()

	for _, h := range []string{"rt-a", "rt-b", "rt-c"} {
		if err := db.InsertRefreshToken(ctx, &models.RefreshToken{
			UserID: u.ID, TokenHash: h, ExpiresAt: now.Add(time.Hour).Unix(),
		}); err != nil {
			t.Fatal(err)
		}
	}

	n, err := db.RevokeAllForUser(ctx, u.ID, now)
	if err != nil {
		t.Fatalf("RevokeAllForUser() error: %v", err)
	}
	if n != 3 {
		t.Errorf("revoked %d tokens, want 3", n)
	}
}

func TestConsumeOAuthStateSingleUse(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	s := &models.OAuthState{
		State:        "st-1",
		TenantID:     "tenant-a",
		RedirectURL:  "https://shop.centerpiece.shop/account",
		CodeVerifier: "verifier",
		Provider:     "google",
		ExpiresAt:    time.Now().Add(5 * time.Minute).Unix(),
	}
	if err := db.InsertOAuthState(ctx, s); err != nil {
		t.Fatalf("InsertOAuthState() error: %v", err)
	}

	got, err := db.ConsumeOAuthState(ctx, "st-1")
	if err != nil {
		t.Fatalf("ConsumeOAuthState() error: %v", err)
	}
	if got.Provider != "google" || got.CodeVerifier != "verifier" {
		t.Errorf("consumed state = %+v", got)
	}

	if _, err := db.ConsumeOAuthState(ctx, "st-1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("replayed state error = %v, want ErrNotFound", err)
	}
}

func TestConsumePasswordResetTokenSingleUse(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	u := mustCreateUser(t, db, "reset@example.com")
	now := time.Now()

	tok := &models.PasswordResetToken{
		TokenHash: "prt-1",
		UserID:    u.ID,
		ExpiresAt: now.Add(time.Hour).Unix(),
	}
	if err := db.InsertPasswordResetToken(ctx, tok); err != nil {
		t.Fatalf("InsertPasswordResetToken() error: %v", err)
	}

	got, err := db.ConsumePasswordResetToken(ctx, "prt-1", now)
	if err != nil {
		t.Fatalf("ConsumePasswordResetToken() error: %v", err)
	}
	if got.UserID != u.ID {
		t.Errorf("consumed token user = %s, want %s", got.UserID, u.ID)
	}

	if _, err := db.ConsumePasswordResetToken(ctx, "prt-1", now); !errors.Is(err, ErrNotFound) {
		t.Fatalf("second consume error = %v, want ErrNotFound", err)
	}
}

func TestTenantDomains(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	if err := db.UpsertTenantDomain(ctx, "Shop.Example.COM", "tenant-a"); err != nil {
		t.Fatalf("UpsertTenantDomain() error: %v", err)
	}
	id, err := db.GetTenantIDForDomain(ctx, "shop.example.com")
	if err != nil {
		t.Fatalf("GetTenantIDForDomain() error: %v", err)
	}
	if id != "tenant-a" {
		t.Errorf("tenant = %q, want tenant-a", id)
	}

	if err := db.UpsertTenantDomain(ctx, "shop.example.com", "tenant-b"); err != nil {
		t.Fatalf("reassigning domain error: %v", err)
	}
	id, _ = db.GetTenantIDForDomain(ctx, "shop.example.com")
	if id != "tenant-b" {
		t.Errorf("tenant after reassign = %q, want tenant-b", id)
	}

	if err := db.DeleteTenantDomain(ctx, "shop.example.com"); err != nil {
		t.Fatalf("DeleteTenantDomain() error: %v", err)
	}
	if _, err := db.GetTenantIDForDomain(ctx, "shop.example.com"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("deleted domain lookup error = %v, want ErrNotFound", err)
	}
}

func TestSweepsRemoveOnlyExpiredRows(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	u := mustCreateUser(t, db, "sweep@example.com")
	now := time.Now()

	expired := now.Add(-time.Minute).Unix()
	live := now.Add(time.Hour).Unix()

	for hash, exp := range map[string]int64{"c-old": expired, "c-new": live} {
		if err := db.InsertAuthCode(ctx, &models.AuthCode{
			CodeHash: hash, UserID: u.ID, TenantID: "t", RedirectOrigin: "https://x",
			Audience: models.AudienceStorefront, ExpiresAt: exp,
		}); err != nil {
			t.Fatal(err)
		}
	}

	n, err := db.SweepAuthCodes(ctx, now.Unix())
	if err != nil {
		t.Fatalf("SweepAuthCodes() error: %v", err)
	}
	if n != 1 {
		t.Errorf("swept %d codes, want 1", n)
	}
	if _, err := db.ConsumeAuthCode(ctx, "c-new"); err != nil {
		t.Errorf("live code swept: %v", err)
	}
}

func TestForeignKeysEnforced(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	err := db.InsertRefreshToken(ctx, &models.RefreshToken{
		UserID:    "no-such-user",
		TokenHash: "rt-x",
		ExpiresAt: time.Now().Add(time.Hour).Unix(),
	})
	if err == nil {
		t.Fatal("insert with dangling user_id succeeded; foreign keys are off")
	}
}
