// Centerpiece Auth - Multi-Tenant Identity and Session Service
// Copyright 2026 M. Sherwood (mjsherwood76-dev)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mjsherwood76-dev/centerpiece-auth

package oauth

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"time"

	"github.com/goccy/go-json"
	"golang.org/x/oauth2"

	"github.com/mjsherwood76-dev/centerpiece-auth/internal/config"
	"github.com/mjsherwood76-dev/centerpiece-auth/internal/models"
)

// Provider names.
const (
	ProviderGoogle    = "google"
	ProviderFacebook  = "facebook"
	ProviderApple     = "apple"
	ProviderMicrosoft = "microsoft"
)

// exchangeTimeout bounds every outbound call to a provider endpoint.
const exchangeTimeout = 10 * time.Second

// ErrProviderUnknown is returned for a provider name outside the four
// supported adapters.
var ErrProviderUnknown = errors.New("oauth: unknown provider")

// ErrExchangeFailed covers token-endpoint and profile-endpoint failures.
var ErrExchangeFailed = errors.New("oauth: code exchange failed")

var (
	googleEndpoint = oauth2.Endpoint{
		AuthURL:  "https://accounts.google.com/o/oauth2/v2/auth",
		TokenURL: "https://oauth2.googleapis.com/token",
	}
	facebookEndpoint = oauth2.Endpoint{
		AuthURL:  "https://www.facebook.com/v19.0/dialog/oauth",
		TokenURL: "https://graph.facebook.com/v19.0/oauth/access_token",
	}
	appleEndpoint = oauth2.Endpoint{
		AuthURL:  "https://appleid.apple.com/auth/authorize",
		TokenURL: "https://appleid.apple.com/auth/token",
	}
	microsoftEndpoint = oauth2.Endpoint{
		AuthURL:  "https://login.microsoftonline.com/common/oauth2/v2.0/authorize",
		TokenURL: "https://login.microsoftonline.com/common/oauth2/v2.0/token",
	}

	// Microsoft issuers are tenant-specific.
	microsoftIssuerPattern = regexp.MustCompile(`^https://login\.microsoftonline\.com/[0-9a-fA-F-]+/v2\.0$`)
)

// Adapter is one federation provider.
type Adapter interface {
	// Name is the stable provider identifier used in URLs and storage.
	Name() string

	// OIDC reports whether the provider returns an ID token and accepts
	// a nonce.
	OIDC() bool

	// FormPostCallback reports whether the provider delivers its
	// callback as a form-encoded POST (Apple).
	FormPostCallback() bool

	// AuthCodeURL builds the provider authorization URL for one flow.
	AuthCodeURL(state, challenge, nonce string) string

	// FetchProfile redeems the callback code and produces a normalized
	// profile. rawUser carries Apple's first-login user blob, empty
	// otherwise.
	FetchProfile(ctx context.Context, code, verifier, nonce, rawUser string) (*models.Profile, error)
}

// Registry holds the configured adapters.
type Registry struct {
	adapters map[string]Adapter
}

// NewRegistry builds adapters for every provider with usable credentials.
// callbackBase is the service origin; each adapter's redirect URI is
// <callbackBase>/oauth/<name>/callback.
func NewRegistry(cfg *config.ProvidersConfig, callbackBase string) *Registry {
	r := &Registry{adapters: make(map[string]Adapter)}

	callback := func(name string) string {
		return callbackBase + "/oauth/" + name + "/callback"
	}

	if cfg.Google.Configured() {
		r.adapters[ProviderGoogle] = &oidcAdapter{
			name:   ProviderGoogle,
			issuer: issuerCheck{exact: "https://accounts.google.com"},
			config: &oauth2.Config{
				ClientID:     cfg.Google.ClientID,
				ClientSecret: cfg.Google.ClientSecret,
				Endpoint:     googleEndpoint,
				RedirectURL:  callback(ProviderGoogle),
				Scopes:       []string{"openid", "email", "profile"},
			},
		}
	}
	if cfg.Facebook.Configured() {
		r.adapters[ProviderFacebook] = &facebookAdapter{
			config: &oauth2.Config{
				ClientID:     cfg.Facebook.ClientID,
				ClientSecret: cfg.Facebook.ClientSecret,
				Endpoint:     facebookEndpoint,
				RedirectURL:  callback(ProviderFacebook),
				Scopes:       []string{"email", "public_profile"},
			},
		}
	}
	if cfg.Microsoft.Configured() {
		r.adapters[ProviderMicrosoft] = &oidcAdapter{
			name:   ProviderMicrosoft,
			issuer: issuerCheck{pattern: microsoftIssuerPattern},
			config: &oauth2.Config{
				ClientID:     cfg.Microsoft.ClientID,
				ClientSecret: cfg.Microsoft.ClientSecret,
				Endpoint:     microsoftEndpoint,
				RedirectURL:  callback(ProviderMicrosoft),
				Scopes:       []string{"openid", "email", "profile"},
			},
		}
	}
	if cfg.Apple.Configured() {
		r.adapters[ProviderApple] = &appleAdapter{
			cfg: cfg.Apple,
			config: &oauth2.Config{
				ClientID:    cfg.Apple.ClientID,
				Endpoint:    appleEndpoint,
				RedirectURL: callback(ProviderApple),
				Scopes:      []string{"name", "email"},
			},
		}
	}
	return r
}

// Get returns the adapter for name, or ErrProviderUnknown /
// a nil adapter with ok=false when not configured.
func (r *Registry) Get(name string) (Adapter, error) {
	a, ok := r.adapters[name]
	if !ok {
		return nil, ErrProviderUnknown
	}
	return a, nil
}

// Names returns the configured provider names in display order.
func (r *Registry) Names() []string {
	var names []string
	for _, name := range []string{ProviderGoogle, ProviderFacebook, ProviderApple, ProviderMicrosoft} {
		if _, ok := r.adapters[name]; ok {
			names = append(names, name)
		}
	}
	return names
}

// Known reports whether name is one of the four supported providers,
// configured or not.
func Known(name string) bool {
	switch name {
	case ProviderGoogle, ProviderFacebook, ProviderApple, ProviderMicrosoft:
		return true
	}
	return false
}

// oidcAdapter serves Google and Microsoft: standard code flow with PKCE,
// nonce, and an ID token in the token response.
type oidcAdapter struct {
	name   string
	issuer issuerCheck
	config *oauth2.Config
}

func (a *oidcAdapter) Name() string           { return a.name }
func (a *oidcAdapter) OIDC() bool             { return true }
func (a *oidcAdapter) FormPostCallback() bool { return false }

func (a *oidcAdapter) AuthCodeURL(state, challenge, nonce string) string {
	return a.config.AuthCodeURL(state,
		oauth2.SetAuthURLParam("code_challenge", challenge),
		oauth2.SetAuthURLParam("code_challenge_method", "S256"),
		oauth2.SetAuthURLParam("nonce", nonce),
	)
}

func (a *oidcAdapter) FetchProfile(ctx context.Context, code, verifier, nonce, _ string) (*models.Profile, error) {
	ctx, cancel := context.WithTimeout(ctx, exchangeTimeout)
	defer cancel()

	tok, err := a.config.Exchange(ctx, code, oauth2.VerifierOption(verifier))
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrExchangeFailed, a.name)
	}

	rawID, _ := tok.Extra("id_token").(string)
	claims, err := parseIDToken(rawID)
	if err != nil {
		return nil, err
	}
	if err := validateIDToken(claims, a.issuer, a.config.ClientID, nonce, time.Now()); err != nil {
		return nil, err
	}

	email := claims.Email
	if email == "" {
		email = claims.PreferredUsername
	}
	return &models.Profile{
		Provider:          a.name,
		ProviderAccountID: claims.Subject,
		Email:             email,
		EmailVerified:     claims.emailIsVerified(),
		Name:              claims.Name,
		AvatarURL:         claims.Picture,
	}, nil
}

// facebookAdapter has no ID token; the profile comes from the Graph API.
type facebookAdapter struct {
	config *oauth2.Config
}

func (a *facebookAdapter) Name() string           { return ProviderFacebook }
func (a *facebookAdapter) OIDC() bool             { return false }
func (a *facebookAdapter) FormPostCallback() bool { return false }

func (a *facebookAdapter) AuthCodeURL(state, challenge, _ string) string {
	return a.config.AuthCodeURL(state,
		oauth2.SetAuthURLParam("code_challenge", challenge),
		oauth2.SetAuthURLParam("code_challenge_method", "S256"),
	)
}

const facebookProfileURL = "https://graph.facebook.com/v19.0/me?fields=id,name,email,picture.width(256)"

func (a *facebookAdapter) FetchProfile(ctx context.Context, code, verifier, _, _ string) (*models.Profile, error) {
	ctx, cancel := context.WithTimeout(ctx, exchangeTimeout)
	defer cancel()

	tok, err := a.config.Exchange(ctx, code, oauth2.VerifierOption(verifier))
	if err != nil {
		return nil, fmt.Errorf("%w: facebook", ErrExchangeFailed)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, facebookProfileURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: facebook profile request", ErrExchangeFailed)
	}
	resp, err := a.config.Client(ctx, tok).Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: facebook profile fetch", ErrExchangeFailed)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: facebook profile status %d", ErrExchangeFailed, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("%w: reading facebook profile", ErrExchangeFailed)
	}

	var profile struct {
		ID      string `json:"id"`
		Name    string `json:"name"`
		Email   string `json:"email"`
		Picture struct {
			Data struct {
				URL string `json:"url"`
			} `json:"data"`
		} `json:"picture"`
	}
	if err := json.Unmarshal(body, &profile); err != nil || profile.ID == "" {
		return nil, fmt.Errorf("%w: facebook profile parse", ErrExchangeFailed)
	}

	// Facebook only returns an email when the account's address is
	// confirmed, so it is treated as verified.
	return &models.Profile{
		Provider:          ProviderFacebook,
		ProviderAccountID: profile.ID,
		Email:             profile.Email,
		EmailVerified:     profile.Email != "",
		Name:              profile.Name,
		AvatarURL:         profile.Picture.Data.URL,
	}, nil
}
