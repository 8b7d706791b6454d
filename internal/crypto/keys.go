// Centerpiece Auth - Multi-Tenant Identity and Session Service
// Copyright 2026 M. Sherwood (mjsherwood76-dev)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mjsherwood76-dev/centerpiece-auth

package crypto

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// SigningKey holds the service's ES256 keypair. The private key signs
// access tokens; the public key is published via the JWKS document. One
// keypair is loaded per process lifetime.
type SigningKey struct {
	Private *ecdsa.PrivateKey
	Public  *ecdsa.PublicKey

	// KID identifies the key in JWT headers and the JWKS document so
	// downstream verifiers can rotate without coordination.
	KID string
}

// LoadSigningKey parses a base64-wrapped PEM ES256 keypair as provided by
// configuration (JWT_PRIVATE_KEY / JWT_PUBLIC_KEY).
func LoadSigningKey(privateB64, publicB64 string) (*SigningKey, error) {
	privPEM, err := base64.StdEncoding.DecodeString(privateB64)
	if err != nil {
		return nil, fmt.Errorf("decoding private key: %w", err)
	}
	pubPEM, err := base64.StdEncoding.DecodeString(publicB64)
	if err != nil {
		return nil, fmt.Errorf("decoding public key: %w", err)
	}

	priv, err := jwt.ParseECPrivateKeyFromPEM(privPEM)
	if err != nil {
		return nil, fmt.Errorf("parsing private key: %w", err)
	}
	pub, err := jwt.ParseECPublicKeyFromPEM(pubPEM)
	if err != nil {
		return nil, fmt.Errorf("parsing public key: %w", err)
	}

	if priv.Curve != elliptic.P256() || pub.Curve != elliptic.P256() {
		return nil, fmt.Errorf("signing key must be on curve P-256, got %s", priv.Curve.Params().Name)
	}

	return &SigningKey{
		Private: priv,
		Public:  pub,
		KID:     KeyID(pub),
	}, nil
}

// KeyID derives a stable key identifier from the public key coordinates:
// the first 16 hex characters of SHA-256(x || y).
func KeyID(pub *ecdsa.PublicKey) string {
	data := append(padCoord(pub.X.Bytes()), padCoord(pub.Y.Bytes())...)
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])[:16]
}

// CoordB64 returns a P-256 coordinate as the 32-byte base64url string
// required by RFC 7517 for JWK "x" and "y" members.
func CoordB64(b []byte) string {
	return base64.RawURLEncoding.EncodeToString(padCoord(b))
}

// padCoord left-pads a coordinate to the 32-byte P-256 field width.
func padCoord(b []byte) []byte {
	if len(b) >= 32 {
		return b
	}
	out := make([]byte, 32)
	copy(out[32-len(b):], b)
	return out
}
