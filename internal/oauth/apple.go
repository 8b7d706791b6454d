// Centerpiece Auth - Multi-Tenant Identity and Session Service
// Copyright 2026 M. Sherwood (mjsherwood76-dev)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mjsherwood76-dev/centerpiece-auth

package oauth

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/oauth2"

	"github.com/mjsherwood76-dev/centerpiece-auth/internal/config"
	"github.com/mjsherwood76-dev/centerpiece-auth/internal/models"
)

// appleSecretTTL is the lifetime of the generated client-secret JWT.
// Apple caps it at six months; a short secret per exchange is simpler
// than caching one.
const appleSecretTTL = 5 * time.Minute

// appleAdapter implements Sign in with Apple. Apple differs from the
// other OIDC providers in two ways: the client secret is an ES256 JWT
// the service signs on the fly, and the callback is a form-encoded POST
// that carries a user JSON blob on first login only.
type appleAdapter struct {
	cfg    config.AppleConfig
	config *oauth2.Config
}

func (a *appleAdapter) Name() string           { return ProviderApple }
func (a *appleAdapter) OIDC() bool             { return true }
func (a *appleAdapter) FormPostCallback() bool { return true }

func (a *appleAdapter) AuthCodeURL(state, challenge, nonce string) string {
	// response_mode=form_post is mandatory when requesting name or email.
	return a.config.AuthCodeURL(state,
		oauth2.SetAuthURLParam("response_mode", "form_post"),
		oauth2.SetAuthURLParam("code_challenge", challenge),
		oauth2.SetAuthURLParam("code_challenge_method", "S256"),
		oauth2.SetAuthURLParam("nonce", nonce),
	)
}

func (a *appleAdapter) FetchProfile(ctx context.Context, code, verifier, nonce, rawUser string) (*models.Profile, error) {
	secret, err := appleClientSecret(a.cfg, time.Now())
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, exchangeTimeout)
	defer cancel()

	cfg := *a.config
	cfg.ClientSecret = secret
	tok, err := cfg.Exchange(ctx, code, oauth2.VerifierOption(verifier))
	if err != nil {
		return nil, fmt.Errorf("%w: apple", ErrExchangeFailed)
	}

	rawID, _ := tok.Extra("id_token").(string)
	claims, err := parseIDToken(rawID)
	if err != nil {
		return nil, err
	}
	issuer := issuerCheck{exact: "https://appleid.apple.com"}
	if err := validateIDToken(claims, issuer, a.config.ClientID, nonce, time.Now()); err != nil {
		return nil, err
	}

	profile := &models.Profile{
		Provider:          ProviderApple,
		ProviderAccountID: claims.Subject,
		Email:             claims.Email,
		EmailVerified:     claims.emailIsVerified(),
	}

	// The display name only ever arrives in the first-login user blob.
	if name := parseAppleUserName(rawUser); name != "" {
		profile.Name = name
	}
	return profile, nil
}

// appleClientSecret signs the short-lived ES256 client-secret JWT:
// {iss: team id, sub: client id, aud: appleid.apple.com, iat, exp}
// with the provisioned key id in the header.
func appleClientSecret(cfg config.AppleConfig, now time.Time) (string, error) {
	pemBytes, err := base64.StdEncoding.DecodeString(cfg.PrivateKey)
	if err != nil {
		// Keys may also be provisioned as raw PEM.
		if strings.Contains(cfg.PrivateKey, "PRIVATE KEY") {
			pemBytes = []byte(cfg.PrivateKey)
		} else {
			return "", fmt.Errorf("decoding apple private key: %w", err)
		}
	}

	key, err := jwt.ParseECPrivateKeyFromPEM(pemBytes)
	if err != nil {
		return "", fmt.Errorf("parsing apple private key: %w", err)
	}

	token := jwt.NewWithClaims(jwt.SigningMethodES256, jwt.MapClaims{
		"iss": cfg.TeamID,
		"sub": cfg.ClientID,
		"aud": "https://appleid.apple.com",
		"iat": now.Unix(),
		"exp": now.Add(appleSecretTTL).Unix(),
	})
	token.Header["kid"] = cfg.KeyID

	secret, err := token.SignedString(key)
	if err != nil {
		return "", fmt.Errorf("signing apple client secret: %w", err)
	}
	return secret, nil
}

// parseAppleUserName extracts a display name from the first-login user
// blob, e.g. {"name":{"firstName":"Jane","lastName":"Doe"},"email":...}.
// Returns "" for an empty or malformed blob.
func parseAppleUserName(rawUser string) string {
	if rawUser == "" {
		return ""
	}
	var blob struct {
		Name struct {
			FirstName string `json:"firstName"`
			LastName  string `json:"lastName"`
		} `json:"name"`
	}
	if err := json.Unmarshal([]byte(rawUser), &blob); err != nil {
		return ""
	}
	return strings.TrimSpace(strings.TrimSpace(blob.Name.FirstName) + " " + strings.TrimSpace(blob.Name.LastName))
}
