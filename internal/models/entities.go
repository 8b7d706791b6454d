// Centerpiece Auth - Multi-Tenant Identity and Session Service
// Copyright 2026 M. Sherwood (mjsherwood76-dev)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mjsherwood76-dev/centerpiece-auth

// Package models defines the persistent entities of the auth service.
//
// Eight tables back the service: users, tenant_memberships, oauth_accounts,
// auth_codes, refresh_tokens, oauth_states, password_reset_tokens, and
// tenant_domains. All
// identifiers are UUID strings. Token material is never stored in plaintext;
// columns named *_hash hold the SHA-256 hex of the value handed to the client.
package models

import "time"

// Role is a membership role at a tenant.
type Role string

// Membership roles. Only RoleCustomer may be auto-created by auth flows;
// the remaining roles require an explicit administrative grant.
const (
	RoleCustomer      Role = "customer"
	RoleSeller        Role = "seller"
	RoleSupplier      Role = "supplier"
	RolePlatformAdmin Role = "platform_admin"
)

// MembershipStatus is the lifecycle state of a tenant membership.
type MembershipStatus string

// Membership statuses.
const (
	MembershipActive    MembershipStatus = "active"
	MembershipSuspended MembershipStatus = "suspended"
	MembershipInvited   MembershipStatus = "invited"
)

// TenantUnknown is the sentinel tenant for hosts that match a controlled
// suffix but carry no registered tenant mapping. Sessions minted under it
// record their customer membership against the sentinel itself.
const TenantUnknown = "__unknown__"

// Audience is the consumer class of an access token. It governs which
// claims are present in the signed JWT.
type Audience string

// Token audiences.
const (
	AudienceStorefront Audience = "storefront"
	AudienceAdmin      Audience = "admin"
)

// Valid reports whether a is one of the enumerated audiences.
func (a Audience) Valid() bool {
	return a == AudienceStorefront || a == AudienceAdmin
}

// User is a platform-wide identity shared across all tenants.
type User struct {
	ID string `json:"id"`

	// Email is stored lowercased; uniqueness is case-insensitive.
	Email         string `json:"email"`
	EmailVerified bool   `json:"emailVerified"`

	// PasswordHash is empty for federated-only accounts.
	PasswordHash string `json:"-"`

	Name      string    `json:"name"`
	AvatarURL string    `json:"avatarUrl,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// HasPassword reports whether the user can authenticate with a password.
func (u *User) HasPassword() bool {
	return u.PasswordHash != ""
}

// TenantMembership associates a user with a tenant under a role.
// (UserID, TenantID, Role) is unique.
type TenantMembership struct {
	ID        string           `json:"id"`
	UserID    string           `json:"userId"`
	TenantID  string           `json:"tenantId"`
	Role      Role             `json:"role"`
	Status    MembershipStatus `json:"status"`
	CreatedAt time.Time        `json:"createdAt"`
}

// OAuthAccount links a user to a federated provider account.
// (Provider, ProviderAccountID) is unique: one provider account maps to at
// most one platform user.
type OAuthAccount struct {
	ID                string    `json:"id"`
	UserID            string    `json:"userId"`
	Provider          string    `json:"provider"`
	ProviderAccountID string    `json:"providerAccountId"`
	CreatedAt         time.Time `json:"createdAt"`
}

// AuthCode is a single-use authorization code record. The plaintext code
// never touches storage; CodeHash is its SHA-256 hex and is the primary key.
type AuthCode struct {
	CodeHash       string   `json:"-"`
	UserID         string   `json:"userId"`
	TenantID       string   `json:"tenantId"`
	RedirectOrigin string   `json:"redirectOrigin"`
	Audience       Audience `json:"audience"`

	// ExpiresAt is seconds since epoch. TTL is at most 60 seconds.
	ExpiresAt int64 `json:"expiresAt"`

	// CodeChallenge and CodeChallengeMethod are set when the initiating
	// client requested PKCE binding.
	CodeChallenge       string `json:"-"`
	CodeChallengeMethod string `json:"-"`
}

// Expired reports whether the code is past its expiry at the given time.
func (c *AuthCode) Expired(now time.Time) bool {
	return now.Unix() >= c.ExpiresAt
}

// RefreshToken is a long-lived rotatable credential. Tokens descend from a
// single authentication in families; revoking any member revokes the family.
type RefreshToken struct {
	ID        string `json:"id"`
	UserID    string `json:"userId"`
	TokenHash string `json:"-"`
	FamilyID  string `json:"familyId"`

	// ExpiresAt is seconds since epoch.
	ExpiresAt int64 `json:"expiresAt"`

	RevokedAt  *time.Time `json:"revokedAt,omitempty"`
	LastUsedAt *time.Time `json:"lastUsedAt,omitempty"`
	CreatedAt  time.Time  `json:"createdAt"`

	// IP and UserAgent capture the originating client for audit.
	IP        string `json:"ip,omitempty"`
	UserAgent string `json:"userAgent,omitempty"`
}

// Revoked reports whether the token has been revoked.
func (t *RefreshToken) Revoked() bool {
	return t.RevokedAt != nil
}

// Expired reports whether the token is past its expiry at the given time.
func (t *RefreshToken) Expired(now time.Time) bool {
	return now.Unix() >= t.ExpiresAt
}

// OAuthState pins one federated sign-in round trip. State is the primary
// key and is consumed on callback; TTL is at most 5 minutes.
type OAuthState struct {
	State        string `json:"-"`
	TenantID     string `json:"tenantId"`
	RedirectURL  string `json:"redirectUrl"`
	CodeVerifier string `json:"-"`
	Nonce        string `json:"-"`
	Provider     string `json:"provider"`
	ExpiresAt    int64  `json:"expiresAt"`
}

// Expired reports whether the state is past its expiry at the given time.
func (s *OAuthState) Expired(now time.Time) bool {
	return now.Unix() >= s.ExpiresAt
}

// PasswordResetToken is a single-use reset credential. TokenHash is the
// SHA-256 hex of the emailed token and is the primary key.
type PasswordResetToken struct {
	TokenHash string     `json:"-"`
	UserID    string     `json:"userId"`
	ExpiresAt int64      `json:"expiresAt"`
	UsedAt    *time.Time `json:"usedAt,omitempty"`
}

// Used reports whether the token has already been consumed.
func (t *PasswordResetToken) Used() bool {
	return t.UsedAt != nil
}

// Expired reports whether the token is past its expiry at the given time.
func (t *PasswordResetToken) Expired(now time.Time) bool {
	return now.Unix() >= t.ExpiresAt
}

// TenantDomain maps a custom domain to the tenant that registered it.
// The redirect validator consults this table to derive the authoritative
// tenant identity from a callback host.
type TenantDomain struct {
	Domain   string `json:"domain"`
	TenantID string `json:"tenantId"`
}

// Profile is the normalized identity returned by a federation provider
// after a successful callback.
type Profile struct {
	Provider          string `json:"provider"`
	ProviderAccountID string `json:"providerAccountId"`
	Email             string `json:"email"`
	EmailVerified     bool   `json:"emailVerified"`
	Name              string `json:"name"`
	AvatarURL         string `json:"avatarUrl,omitempty"`
}
