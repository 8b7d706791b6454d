// Centerpiece Auth - Multi-Tenant Identity and Session Service
// Copyright 2026 M. Sherwood (mjsherwood76-dev)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mjsherwood76-dev/centerpiece-auth

package crypto

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"strings"
	"testing"
)

func TestHashPasswordRoundTrip(t *testing.T) {
	hash, err := HashPassword("P4ssw0rd!xy")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	if !strings.HasPrefix(hash, "pbkdf2:100000:") {
		t.Errorf("hash = %q, want self-describing pbkdf2 record", hash)
	}
	if !VerifyPassword("P4ssw0rd!xy", hash) {
		t.Error("correct password rejected")
	}
	if VerifyPassword("wrong", hash) {
		t.Error("wrong password accepted")
	}
}

func TestHashPasswordSaltsDiffer(t *testing.T) {
	a, _ := HashPassword("same")
	b, _ := HashPassword("same")
	if a == b {
		t.Error("two hashes of the same password are identical")
	}
}

func TestVerifyPasswordMalformedRecords(t *testing.T) {
	for _, stored := range []string{
		"",
		"plain",
		"bcrypt:10:aa:bb",
		"pbkdf2:notanumber:aa:bb",
		"pbkdf2:0:aa:bb",
		"pbkdf2:100000:zz:bb",
		"pbkdf2:100000:aa:zz",
		"pbkdf2:100000::",
	} {
		if VerifyPassword("anything", stored) {
			t.Errorf("malformed record %q verified", stored)
		}
	}
}

func TestNewTokenShape(t *testing.T) {
	a, err := NewToken()
	if err != nil {
		t.Fatalf("NewToken: %v", err)
	}
	if len(a) != 64 {
		t.Errorf("token length = %d, want 64 hex chars", len(a))
	}
	b, _ := NewToken()
	if a == b {
		t.Error("two tokens are identical")
	}
}

func TestSHA256HexStable(t *testing.T) {
	if SHA256Hex("abc") != "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad" {
		t.Error("SHA256Hex does not match the known digest of \"abc\"")
	}
}

func TestPKCE(t *testing.T) {
	verifier := NewPKCEVerifier()
	if len(verifier) < 43 {
		t.Errorf("verifier length = %d, want >= 43", len(verifier))
	}
	challenge := S256Challenge(verifier)
	if !VerifyS256(verifier, challenge) {
		t.Error("verifier rejected against its own challenge")
	}
	if VerifyS256(NewPKCEVerifier(), challenge) {
		t.Error("foreign verifier accepted")
	}
}

func keypairB64(t *testing.T, curve elliptic.Curve) (string, string) {
	t.Helper()
	priv, err := ecdsa.GenerateKey(curve, rand.Reader)
	if err != nil {
		t.Fatalf("generating key: %v", err)
	}
	privDER, err := x509.MarshalECPrivateKey(priv)
	if err != nil {
		t.Fatalf("marshaling private key: %v", err)
	}
	pubDER, err := x509.MarshalPKIXPublicKey(&priv.PublicKey)
	if err != nil {
		t.Fatalf("marshaling public key: %v", err)
	}
	privPEM := pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: privDER})
	pubPEM := pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pubDER})
	return base64.StdEncoding.EncodeToString(privPEM), base64.StdEncoding.EncodeToString(pubPEM)
}

func TestLoadSigningKey(t *testing.T) {
	privB64, pubB64 := keypairB64(t, elliptic.P256())
	key, err := LoadSigningKey(privB64, pubB64)
	if err != nil {
		t.Fatalf("LoadSigningKey: %v", err)
	}
	if len(key.KID) != 16 {
		t.Errorf("KID = %q, want 16 hex chars", key.KID)
	}
	if key.KID != KeyID(key.Public) {
		t.Error("KID is not derived from the public key")
	}
}

func TestLoadSigningKeyRejectsWrongCurve(t *testing.T) {
	privB64, pubB64 := keypairB64(t, elliptic.P384())
	if _, err := LoadSigningKey(privB64, pubB64); err == nil {
		t.Error("P-384 keypair accepted, want P-256 only")
	}
}

func TestLoadSigningKeyRejectsGarbage(t *testing.T) {
	if _, err := LoadSigningKey("not base64!", "also not"); err == nil {
		t.Error("garbage input accepted")
	}
	b64 := base64.StdEncoding.EncodeToString([]byte("not pem"))
	if _, err := LoadSigningKey(b64, b64); err == nil {
		t.Error("non-PEM input accepted")
	}
}
