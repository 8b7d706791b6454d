// Centerpiece Auth - Multi-Tenant Identity and Session Service
// Copyright 2026 M. Sherwood (mjsherwood76-dev)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mjsherwood76-dev/centerpiece-auth

package authflow

import (
	"context"
	"errors"
	"testing"

	"github.com/mjsherwood76-dev/centerpiece-auth/internal/models"
)

type fakeTenantLookup map[string]string

func (f fakeTenantLookup) GetTenantIDForDomain(_ context.Context, domain string) (string, error) {
	if id, ok := f[domain]; ok {
		return id, nil
	}
	return "", errors.New("not found")
}

func TestValidateControlledSuffixes(t *testing.T) {
	v := NewValidator(nil, true)
	ctx := context.Background()

	cases := []struct {
		url    string
		origin string
	}{
		{"https://store-a.centerpiece.shop/cart", "https://store-a.centerpiece.shop"},
		{"https://admin.centerpiece.app/", "https://admin.centerpiece.app"},
		{"https://x.centerpiece.io/a?b=c", "https://x.centerpiece.io"},
		{"https://demo.centerpiecelab.com", "https://demo.centerpiecelab.com"},
		{"https://edge.workers.dev/cb", "https://edge.workers.dev"},
		{"https://site.pages.dev", "https://site.pages.dev"},
		{"https://shop.centerpiece.shop:8443/x", "https://shop.centerpiece.shop:8443"},
	}
	for _, tc := range cases {
		got, err := v.Validate(ctx, tc.url)
		if err != nil {
			t.Errorf("Validate(%q) rejected: %v", tc.url, err)
			continue
		}
		if got.Origin != tc.origin {
			t.Errorf("Validate(%q) origin = %q, want %q", tc.url, got.Origin, tc.origin)
		}
		if got.TenantID != models.TenantUnknown {
			t.Errorf("Validate(%q) tenant = %q, want sentinel", tc.url, got.TenantID)
		}
	}
}

func TestValidateRejections(t *testing.T) {
	v := NewValidator(nil, true)
	ctx := context.Background()

	rejected := []string{
		"",
		"not a url ://",
		"http://store.centerpiece.shop/cart",                  // http in production
		"javascript://store.centerpiece.shop/%0aalert(1)",     // always rejected
		"ftp://store.centerpiece.shop/",                       // unknown scheme
		"https://192.168.1.1/cb",                              // IPv4 literal
		"https://999.1.1.1/cb",                                // looks like an IP
		"https://[2001:db8::1]/cb",                            // IPv6 literal
		"https://store.centerpiece.shop/cart#fragment",        // fragment
		"https://evil.example.com/cb",                         // unknown host
		"https://centerpiece.shop.evil.com/cb",                // suffix spoof
		"http://localhost:3000/cb",                            // dev-only, not in prod
	}
	for _, raw := range rejected {
		if _, err := v.Validate(ctx, raw); !errors.Is(err, ErrInvalidRedirect) {
			t.Errorf("Validate(%q) error = %v, want ErrInvalidRedirect", raw, err)
		}
	}
}

func TestValidateDevLocalhost(t *testing.T) {
	v := NewValidator(nil, false)
	ctx := context.Background()

	got, err := v.Validate(ctx, "http://localhost:3000/cb")
	if err != nil {
		t.Fatalf("dev localhost rejected: %v", err)
	}
	if got.Origin != "http://localhost:3000" {
		t.Errorf("origin = %q", got.Origin)
	}

	if _, err := v.Validate(ctx, "http://127.0.0.1:8080/cb"); err != nil {
		t.Errorf("dev loopback rejected: %v", err)
	}

	// Non-localhost http stays rejected outside production too.
	if _, err := v.Validate(ctx, "http://store.centerpiece.shop/cb"); !errors.Is(err, ErrInvalidRedirect) {
		t.Errorf("plain http accepted in development for non-localhost host")
	}

	// The carve-out is http-only: an https loopback is an IP literal and
	// an https localhost is an unregistered host.
	if _, err := v.Validate(ctx, "https://127.0.0.1:8443/cb"); !errors.Is(err, ErrInvalidRedirect) {
		t.Errorf("https loopback accepted in development")
	}
	if _, err := v.Validate(ctx, "https://localhost:3000/cb"); !errors.Is(err, ErrInvalidRedirect) {
		t.Errorf("https localhost accepted in development")
	}
}

func TestValidateRegisteredDomainWinsTenant(t *testing.T) {
	lookup := fakeTenantLookup{
		"shop.custom.example": "tenant-42",
		"store-b.centerpiece.shop": "tenant-b",
	}
	v := NewValidator(lookup, true)
	ctx := context.Background()

	// Custom domain outside the controlled suffixes, registered.
	got, err := v.Validate(ctx, "https://shop.custom.example/cart")
	if err != nil {
		t.Fatalf("registered custom domain rejected: %v", err)
	}
	if got.TenantID != "tenant-42" {
		t.Errorf("tenant = %q, want tenant-42", got.TenantID)
	}

	// Controlled suffix with a registration: the lookup wins over the sentinel.
	got, err = v.Validate(ctx, "https://store-b.centerpiece.shop/")
	if err != nil {
		t.Fatal(err)
	}
	if got.TenantID != "tenant-b" {
		t.Errorf("tenant = %q, want tenant-b", got.TenantID)
	}

	// Unregistered custom domain stays rejected.
	if _, err := v.Validate(ctx, "https://other.custom.example/"); !errors.Is(err, ErrInvalidRedirect) {
		t.Errorf("unregistered custom domain accepted")
	}
}

func TestAllowedOrigin(t *testing.T) {
	v := NewValidator(nil, true)

	allowed := []string{
		"https://store.centerpiece.shop",
		"https://app.pages.dev",
	}
	for _, o := range allowed {
		if !v.AllowedOrigin(o) {
			t.Errorf("AllowedOrigin(%q) = false", o)
		}
	}

	denied := []string{
		"https://evil.example.com",
		"http://store.centerpiece.shop",
		"null",
		"",
	}
	for _, o := range denied {
		if v.AllowedOrigin(o) {
			t.Errorf("AllowedOrigin(%q) = true", o)
		}
	}

	dev := NewValidator(nil, false)
	if !dev.AllowedOrigin("http://localhost:3000") {
		t.Error("dev localhost origin denied")
	}
}
