// Centerpiece Auth - Multi-Tenant Identity and Session Service
// Copyright 2026 M. Sherwood (mjsherwood76-dev)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mjsherwood76-dev/centerpiece-auth

package crypto

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"

	"golang.org/x/oauth2"
)

// tokenBytes is the entropy for every bearer value the service mints
// (refresh tokens, authorization codes, reset tokens, OAuth state).
const tokenBytes = 32

// RandomHex returns n random bytes as lowercase hex.
func RandomHex(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("reading random bytes: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// RandomURLToken returns n random bytes as unpadded base64url.
func RandomURLToken(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("reading random bytes: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// NewToken returns a fresh 32-byte bearer value as lowercase hex.
func NewToken() (string, error) {
	return RandomHex(tokenBytes)
}

// SHA256Hex returns the SHA-256 digest of s as lowercase hex. This is the
// storage representation of every client-held token.
func SHA256Hex(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

// NewPKCEVerifier generates a code_verifier per RFC 7636 §4.1
// (43 characters, 32 bytes of entropy, base64url alphabet).
func NewPKCEVerifier() string {
	return oauth2.GenerateVerifier()
}

// S256Challenge computes base64url(SHA-256(verifier)) per RFC 7636 §4.2.
func S256Challenge(verifier string) string {
	return oauth2.S256ChallengeFromVerifier(verifier)
}

// VerifyS256 reports whether the verifier's S256 transform equals the
// stored challenge, in constant time.
func VerifyS256(verifier, challenge string) bool {
	return ConstantTimeEquals(S256Challenge(verifier), challenge)
}
