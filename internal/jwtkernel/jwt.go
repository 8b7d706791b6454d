// Centerpiece Auth - Multi-Tenant Identity and Session Service
// Copyright 2026 M. Sherwood (mjsherwood76-dev)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mjsherwood76-dev/centerpiece-auth

// Package jwtkernel signs and verifies the service's ES256 access tokens
// and publishes the JWKS discovery document.
package jwtkernel

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/mjsherwood76-dev/centerpiece-auth/internal/crypto"
	"github.com/mjsherwood76-dev/centerpiece-auth/internal/models"
)

// Verification errors.
var (
	ErrTokenInvalid = errors.New("jwtkernel: token invalid")
	ErrTokenExpired = errors.New("jwtkernel: token expired")
)

// Claims is the access-token payload. The storefront shape carries the
// base fields only; admin tokens additionally carry JTI, PrimaryTenantID,
// and Roles. Storefront tokens must never carry the admin fields, which
// downstream verifiers rely on as a format-stability guarantee.
type Claims struct {
	Subject  string          `json:"sub"`
	Email    string          `json:"email"`
	Name     string          `json:"name"`
	Audience models.Audience `json:"aud"`
	Issuer   string          `json:"iss"`
	IssuedAt int64           `json:"iat"`
	Expiry   int64           `json:"exp"`

	// Admin-only fields.
	JTI             string        `json:"jti,omitempty"`
	PrimaryTenantID *string       `json:"primaryTenantId,omitempty"`
	Roles           []models.Role `json:"roles,omitempty"`
}

// MarshalJSON emits the audience-dependent payload shape: storefront
// tokens carry the base fields only, admin tokens always carry jti,
// primaryTenantId (null when absent), and roles (empty array when none).
func (c *Claims) MarshalJSON() ([]byte, error) {
	payload := map[string]any{
		"sub":   c.Subject,
		"email": c.Email,
		"name":  c.Name,
		"aud":   c.Audience,
		"iss":   c.Issuer,
		"iat":   c.IssuedAt,
		"exp":   c.Expiry,
	}
	if c.Audience == models.AudienceAdmin {
		payload["jti"] = c.JTI
		payload["primaryTenantId"] = c.PrimaryTenantID
		roles := c.Roles
		if roles == nil {
			roles = []models.Role{}
		}
		payload["roles"] = roles
	}
	return json.Marshal(payload)
}

// GetExpirationTime implements jwt.Claims.
func (c *Claims) GetExpirationTime() (*jwt.NumericDate, error) {
	return jwt.NewNumericDate(time.Unix(c.Expiry, 0)), nil
}

// GetIssuedAt implements jwt.Claims.
func (c *Claims) GetIssuedAt() (*jwt.NumericDate, error) {
	return jwt.NewNumericDate(time.Unix(c.IssuedAt, 0)), nil
}

// GetNotBefore implements jwt.Claims.
func (c *Claims) GetNotBefore() (*jwt.NumericDate, error) { return nil, nil }

// GetIssuer implements jwt.Claims.
func (c *Claims) GetIssuer() (string, error) { return c.Issuer, nil }

// GetSubject implements jwt.Claims.
func (c *Claims) GetSubject() (string, error) { return c.Subject, nil }

// GetAudience implements jwt.Claims.
func (c *Claims) GetAudience() (jwt.ClaimStrings, error) {
	return jwt.ClaimStrings{string(c.Audience)}, nil
}

// AdminContext carries the extra claim inputs for admin-audience tokens.
type AdminContext struct {
	// PrimaryTenantID is the tenant of the oldest active non-customer
	// membership; empty means the claim is emitted as null.
	PrimaryTenantID string

	// Roles are the active roles at that tenant. A nil slice is emitted
	// as an empty array, never omitted.
	Roles []models.Role
}

// Kernel signs access tokens with the service keypair.
type Kernel struct {
	key    *crypto.SigningKey
	issuer string
	ttl    time.Duration

	jwksOnce sync.Once
	jwksBody []byte
	jwksETag string
}

// New builds a JWT kernel. issuer is the service's public origin and
// becomes the iss claim.
func New(key *crypto.SigningKey, issuer string, ttl time.Duration) *Kernel {
	return &Kernel{key: key, issuer: issuer, ttl: ttl}
}

// TTL returns the access-token lifetime, used for expires_in responses.
func (k *Kernel) TTL() time.Duration { return k.ttl }

// Sign mints an access token for the user under the given audience.
// admin must be non-nil exactly when audience is admin.
func (k *Kernel) Sign(user *models.User, audience models.Audience, admin *AdminContext, now time.Time) (string, error) {
	if !audience.Valid() {
		return "", fmt.Errorf("jwtkernel: invalid audience %q", audience)
	}

	claims := &Claims{
		Subject:  user.ID,
		Email:    user.Email,
		Name:     user.Name,
		Audience: audience,
		Issuer:   k.issuer,
		IssuedAt: now.Unix(),
		Expiry:   now.Add(k.ttl).Unix(),
	}

	if audience == models.AudienceAdmin {
		if admin == nil {
			admin = &AdminContext{}
		}
		claims.JTI = uuid.NewString()
		if admin.PrimaryTenantID != "" {
			claims.PrimaryTenantID = &admin.PrimaryTenantID
		} else {
			// Emitted as an explicit null for admin tokens.
			claims.PrimaryTenantID = nil
		}
		claims.Roles = admin.Roles
		if claims.Roles == nil {
			claims.Roles = []models.Role{}
		}
	}

	token := jwt.NewWithClaims(jwt.SigningMethodES256, claims)
	token.Header["kid"] = k.key.KID

	signed, err := token.SignedString(k.key.Private)
	if err != nil {
		return "", fmt.Errorf("signing access token: %w", err)
	}
	return signed, nil
}

// Verify checks structure, algorithm, signature, and expiry, and returns
// the claims. Expired tokens yield ErrTokenExpired; every other failure
// yields ErrTokenInvalid.
func (k *Kernel) Verify(tokenString string) (*Claims, error) {
	claims := &Claims{}
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodES256.Alg()}),
		jwt.WithExpirationRequired(),
	)
	_, err := parser.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		return k.key.Public, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrTokenInvalid
	}
	return claims, nil
}

// jwk is the single published key object.
type jwk struct {
	Kty string `json:"kty"`
	Crv string `json:"crv"`
	Alg string `json:"alg"`
	Use string `json:"use"`
	Kid string `json:"kid"`
	X   string `json:"x"`
	Y   string `json:"y"`
}

// JWKS returns the discovery document body and its ETag. The document is
// computed once per process; the signing key does not change within a
// process lifetime.
func (k *Kernel) JWKS() (body []byte, etag string, err error) {
	var buildErr error
	k.jwksOnce.Do(func() {
		doc := struct {
			Keys []jwk `json:"keys"`
		}{
			Keys: []jwk{{
				Kty: "EC",
				Crv: "P-256",
				Alg: "ES256",
				Use: "sig",
				Kid: k.key.KID,
				X:   crypto.CoordB64(k.key.Public.X.Bytes()),
				Y:   crypto.CoordB64(k.key.Public.Y.Bytes()),
			}},
		}
		k.jwksBody, buildErr = json.Marshal(doc)
		if buildErr != nil {
			return
		}
		k.jwksETag = `"` + crypto.SHA256Hex(string(k.jwksBody))[:32] + `"`
	})
	if buildErr != nil {
		return nil, "", fmt.Errorf("building jwks document: %w", buildErr)
	}
	if k.jwksBody == nil {
		return nil, "", fmt.Errorf("building jwks document: marshal failed")
	}
	return k.jwksBody, k.jwksETag, nil
}
