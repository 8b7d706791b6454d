// Centerpiece Auth - Multi-Tenant Identity and Session Service
// Copyright 2026 M. Sherwood (mjsherwood76-dev)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mjsherwood76-dev/centerpiece-auth

// Package authflow holds the redirect validator and the closed set of
// user-visible error codes shared by the auth endpoints.
package authflow

import (
	"context"
	"errors"
	"net/url"
	"regexp"
	"strings"

	"github.com/mjsherwood76-dev/centerpiece-auth/internal/models"
)

// ErrInvalidRedirect is the single rejection the validator produces.
// Callers map it to the user-visible invalid_redirect code; the reason a
// URL failed is never surfaced to the client.
var ErrInvalidRedirect = errors.New("authflow: redirect url rejected")

// controlledSuffixes are the domain tails accepted without a per-tenant
// domain registration. The same list backs the CORS origin check.
var controlledSuffixes = []string{
	".centerpiece.shop",
	".centerpiece.app",
	".centerpiece.io",
	".centerpiecelab.com",
	".workers.dev",
	".pages.dev",
}

// ipv4Pattern matches four dot-separated groups of 1-3 digits. Range
// checking is deliberately absent: 999.1.1.1 looks like an IP to a
// browser's host parser and is rejected the same way.
var ipv4Pattern = regexp.MustCompile(`^\d{1,3}\.\d{1,3}\.\d{1,3}\.\d{1,3}$`)

// TenantLookup resolves a registered custom domain to its tenant id.
// Implementations return database.ErrNotFound-style errors for unknown
// domains; the validator treats any lookup failure as "not registered".
type TenantLookup interface {
	GetTenantIDForDomain(ctx context.Context, domain string) (string, error)
}

// Validated is the validator's accept result.
type Validated struct {
	// Origin is the scheme+authority of the redirect URL as serialized
	// by net/url. Stored with authorization codes and checked bit-equal
	// at exchange.
	Origin string

	// TenantID is the authoritative tenant derived from the host: the
	// registered domain owner when one exists, otherwise the
	// models.TenantUnknown sentinel for controlled-suffix hosts.
	TenantID string

	// URL is the parsed redirect target.
	URL *url.URL
}

// Validator classifies redirect URLs.
type Validator struct {
	tenants    TenantLookup
	production bool
}

// NewValidator builds a redirect validator. tenants may be nil, in which
// case only controlled suffixes are accepted.
func NewValidator(tenants TenantLookup, production bool) *Validator {
	return &Validator{tenants: tenants, production: production}
}

// Validate applies the acceptance rules in order and returns the redirect
// origin and authoritative tenant id, or ErrInvalidRedirect. The rules:
// the URL must parse; scheme must be https (http only for dev localhost);
// javascript is always rejected; IP-literal hosts are rejected; fragments
// are rejected; the host must match a controlled suffix or a registered
// tenant domain.
func (v *Validator) Validate(ctx context.Context, raw string) (*Validated, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, ErrInvalidRedirect
	}

	scheme := strings.ToLower(u.Scheme)
	host := strings.ToLower(u.Hostname())

	if scheme == "javascript" {
		return nil, ErrInvalidRedirect
	}

	// The localhost carve-out is http-only; https loopback URLs fall
	// through to the IP-literal and suffix rules like any other host.
	devLocalhost := !v.production && scheme == "http" &&
		(host == "localhost" || host == "127.0.0.1")
	switch scheme {
	case "https":
	case "http":
		if !devLocalhost {
			return nil, ErrInvalidRedirect
		}
	default:
		return nil, ErrInvalidRedirect
	}

	if !devLocalhost && isIPLiteral(host) {
		return nil, ErrInvalidRedirect
	}

	if u.Fragment != "" || u.RawFragment != "" {
		return nil, ErrInvalidRedirect
	}

	matchesSuffix := hasControlledSuffix(host)

	tenantID := ""
	if v.tenants != nil && host != "" {
		if id, err := v.tenants.GetTenantIDForDomain(ctx, host); err == nil && id != "" {
			tenantID = id
		}
	}

	if tenantID == "" {
		if !matchesSuffix && !devLocalhost {
			return nil, ErrInvalidRedirect
		}
		tenantID = models.TenantUnknown
	}

	origin := scheme + "://" + u.Host

	return &Validated{Origin: origin, TenantID: tenantID, URL: u}, nil
}

// AllowedOrigin reports whether a CORS Origin header value belongs to a
// controlled suffix or dev localhost. No tenant lookup is performed on
// the preflight path.
func (v *Validator) AllowedOrigin(origin string) bool {
	u, err := url.Parse(origin)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return false
	}
	host := strings.ToLower(u.Hostname())
	if !v.production && (host == "localhost" || host == "127.0.0.1") {
		return u.Scheme == "http" || u.Scheme == "https"
	}
	return u.Scheme == "https" && hasControlledSuffix(host)
}

func hasControlledSuffix(host string) bool {
	for _, suffix := range controlledSuffixes {
		if strings.HasSuffix(host, suffix) {
			return true
		}
	}
	return false
}

// isIPLiteral reports whether host is a bracketed IPv6 literal or four
// dot-separated 1-3 digit groups. Hostname() strips brackets, so any
// colon in the host marks an IPv6 literal.
func isIPLiteral(host string) bool {
	if strings.Contains(host, ":") {
		return true
	}
	return ipv4Pattern.MatchString(host)
}
