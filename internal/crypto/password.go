// Centerpiece Auth - Multi-Tenant Identity and Session Service
// Copyright 2026 M. Sherwood (mjsherwood76-dev)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mjsherwood76-dev/centerpiece-auth

// Package crypto holds the cryptographic floor of the auth service:
// password hashing, random token generation, digests, PKCE, and the ES256
// signing key material.
//
// Every value handed to a client (refresh token, authorization code, reset
// token) is stored only as its SHA-256 hex. All comparisons of secret
// material are constant-time.
package crypto

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/crypto/pbkdf2"
)

const (
	// pbkdf2Iterations is the work factor for new password hashes.
	// Stored hashes carry their own iteration count, so this can be
	// raised without invalidating existing credentials.
	pbkdf2Iterations = 100_000

	// saltBytes is the random salt length for new password hashes.
	saltBytes = 32

	// keyBytes is the derived key length.
	keyBytes = 32

	passwordScheme = "pbkdf2"
)

// HashPassword derives a PBKDF2-SHA256 hash of the password with a fresh
// random salt. The result is a self-describing record:
//
//	pbkdf2:<iterations>:<salt-hex>:<hash-hex>
func HashPassword(password string) (string, error) {
	salt := make([]byte, saltBytes)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generating salt: %w", err)
	}

	key := pbkdf2.Key([]byte(password), salt, pbkdf2Iterations, keyBytes, sha256.New)
	return fmt.Sprintf("%s:%d:%s:%s",
		passwordScheme,
		pbkdf2Iterations,
		hex.EncodeToString(salt),
		hex.EncodeToString(key),
	), nil
}

// VerifyPassword checks a candidate password against a stored record.
// Malformed records verify as false; this function never panics or errors
// so that a corrupted row cannot turn into an authentication bypass.
func VerifyPassword(password, stored string) bool {
	parts := strings.Split(stored, ":")
	if len(parts) != 4 || parts[0] != passwordScheme {
		return false
	}

	iterations, err := strconv.Atoi(parts[1])
	if err != nil || iterations < 1 {
		return false
	}
	salt, err := hex.DecodeString(parts[2])
	if err != nil || len(salt) == 0 {
		return false
	}
	want, err := hex.DecodeString(parts[3])
	if err != nil || len(want) == 0 {
		return false
	}

	got := pbkdf2.Key([]byte(password), salt, iterations, len(want), sha256.New)
	return subtle.ConstantTimeCompare(got, want) == 1
}

// DummyVerify performs a PBKDF2 derivation of the same cost as a real
// verification. Login handlers call this when the account does not exist so
// that response timing does not reveal which emails are registered.
func DummyVerify() {
	salt := []byte("centerpiece-dummy-salt-constant!")
	pbkdf2.Key([]byte("dummy-password"), salt, pbkdf2Iterations, keyBytes, sha256.New)
}

// ConstantTimeEquals compares two strings in constant time.
func ConstantTimeEquals(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
