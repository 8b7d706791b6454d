// Centerpiece Auth - Multi-Tenant Identity and Session Service
// Copyright 2026 M. Sherwood (mjsherwood76-dev)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mjsherwood76-dev/centerpiece-auth

// Package oauth implements federated sign-in: a provider-agnostic state
// machine over four adapters (Google, Facebook, Apple, Microsoft).
package oauth

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/mjsherwood76-dev/centerpiece-auth/internal/authflow"
	"github.com/mjsherwood76-dev/centerpiece-auth/internal/crypto"
	"github.com/mjsherwood76-dev/centerpiece-auth/internal/database"
	"github.com/mjsherwood76-dev/centerpiece-auth/internal/logging"
	"github.com/mjsherwood76-dev/centerpiece-auth/internal/models"
	"github.com/mjsherwood76-dev/centerpiece-auth/internal/token"
)

// stateTTL is the lifetime of one federation round trip.
const stateTTL = 5 * time.Minute

// ErrStateInvalid is an unknown, expired, or provider-mismatched state.
var ErrStateInvalid = errors.New("oauth: state rejected")

// Store is the persistence surface of the federation flow.
type Store interface {
	InsertOAuthState(ctx context.Context, s *models.OAuthState) error
	ConsumeOAuthState(ctx context.Context, state string) (*models.OAuthState, error)

	GetUserByID(ctx context.Context, id string) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	CreateUser(ctx context.Context, email, passwordHash, name string) (*models.User, error)
	MarkEmailVerified(ctx context.Context, userID string) error
	BackfillUserProfile(ctx context.Context, userID, name, avatarURL string) error

	GetOAuthAccount(ctx context.Context, provider, providerAccountID string) (*models.OAuthAccount, error)
	LinkOAuthAccount(ctx context.Context, userID, provider, providerAccountID string) (*models.OAuthAccount, error)

	EnsureMembership(ctx context.Context, userID, tenantID string) error
}

// Service drives federated sign-in flows.
type Service struct {
	registry *Registry
	store    Store
	tokens   *token.Kernel
	redirect *authflow.Validator
}

// NewService wires the federation service.
func NewService(registry *Registry, store Store, tokens *token.Kernel, redirect *authflow.Validator) *Service {
	return &Service{registry: registry, store: store, tokens: tokens, redirect: redirect}
}

// Providers returns the configured provider names, for the login page.
func (s *Service) Providers() []string { return s.registry.Names() }

// Initiate validates the flow inputs, pins a state row, and returns the
// provider authorization URL to redirect the browser to.
func (s *Service) Initiate(ctx context.Context, provider, redirectURL string) (string, error) {
	adapter, err := s.registry.Get(provider)
	if err != nil {
		return "", err
	}

	validated, err := s.redirect.Validate(ctx, redirectURL)
	if err != nil {
		return "", err
	}

	state, err := crypto.NewToken()
	if err != nil {
		return "", fmt.Errorf("minting state: %w", err)
	}
	verifier := crypto.NewPKCEVerifier()

	nonce := ""
	if adapter.OIDC() {
		if nonce, err = crypto.RandomHex(16); err != nil {
			return "", fmt.Errorf("minting nonce: %w", err)
		}
	}

	if err := s.store.InsertOAuthState(ctx, &models.OAuthState{
		State:        state,
		TenantID:     validated.TenantID,
		RedirectURL:  redirectURL,
		CodeVerifier: verifier,
		Nonce:        nonce,
		Provider:     provider,
		ExpiresAt:    time.Now().Add(stateTTL).Unix(),
	}); err != nil {
		return "", err
	}

	return adapter.AuthCodeURL(state, crypto.S256Challenge(verifier), nonce), nil
}

// CallbackResult is a completed federated sign-in.
type CallbackResult struct {
	User *models.User

	// RefreshToken is the fresh cookie plaintext.
	RefreshToken string

	// RedirectURL is the tenant callback carrying the authorization code.
	RedirectURL string
}

// Callback consumes the state, redeems the provider code, resolves the
// user, and mints a session bound to audience storefront.
func (s *Service) Callback(ctx context.Context, provider, code, state, rawUser string, client token.ClientInfo) (*CallbackResult, error) {
	adapter, err := s.registry.Get(provider)
	if err != nil {
		return nil, err
	}

	flow, err := s.store.ConsumeOAuthState(ctx, state)
	if errors.Is(err, database.ErrNotFound) {
		return nil, ErrStateInvalid
	}
	if err != nil {
		return nil, err
	}
	now := time.Now()
	if flow.Expired(now) || flow.Provider != provider || code == "" {
		return nil, ErrStateInvalid
	}

	profile, err := adapter.FetchProfile(ctx, code, flow.CodeVerifier, flow.Nonce, rawUser)
	if err != nil {
		return nil, err
	}

	user, err := s.ResolveUser(ctx, profile)
	if err != nil {
		return nil, err
	}

	if err := s.store.EnsureMembership(ctx, user.ID, flow.TenantID); err != nil {
		return nil, err
	}

	target, err := url.Parse(flow.RedirectURL)
	if err != nil {
		return nil, ErrStateInvalid
	}
	origin := target.Scheme + "://" + target.Host

	session, err := s.tokens.MintSession(ctx, token.CodeRequest{
		UserID:         user.ID,
		TenantID:       flow.TenantID,
		RedirectOrigin: origin,
		Audience:       models.AudienceStorefront,
	}, client, now)
	if err != nil {
		return nil, err
	}

	returnTo := target.Path
	if returnTo == "" {
		returnTo = "/"
	}
	if target.RawQuery != "" {
		returnTo += "?" + target.RawQuery
	}
	callback := origin + "/auth/callback?" + url.Values{
		"code":     {session.Code},
		"returnTo": {returnTo},
	}.Encode()

	return &CallbackResult{
		User:         user,
		RefreshToken: session.RefreshToken,
		RedirectURL:  callback,
	}, nil
}

// ResolveUser maps a normalized provider profile onto a platform user:
//  1. An existing (provider, account) link wins outright.
//  2. A same-email user is linked only when the provider verified the
//     address.
//  3. A same-email user with an unverified provider address gets a new,
//     separate account. Linking on an unverified email would let anyone
//     who can register that address at the provider take the account over.
//  4. Otherwise a fresh passwordless user is created and linked.
func (s *Service) ResolveUser(ctx context.Context, profile *models.Profile) (*models.User, error) {
	if acct, err := s.store.GetOAuthAccount(ctx, profile.Provider, profile.ProviderAccountID); err == nil {
		user, err := s.store.GetUserByID(ctx, acct.UserID)
		if err != nil {
			return nil, err
		}
		s.backfill(ctx, user, profile)
		return s.store.GetUserByID(ctx, user.ID)
	} else if !errors.Is(err, database.ErrNotFound) {
		return nil, err
	}

	if profile.Email != "" && profile.EmailVerified {
		if user, err := s.store.GetUserByEmail(ctx, profile.Email); err == nil {
			if _, err := s.store.LinkOAuthAccount(ctx, user.ID, profile.Provider, profile.ProviderAccountID); err != nil {
				return nil, err
			}
			if err := s.store.MarkEmailVerified(ctx, user.ID); err != nil {
				return nil, err
			}
			s.backfill(ctx, user, profile)
			return s.store.GetUserByID(ctx, user.ID)
		} else if !errors.Is(err, database.ErrNotFound) {
			return nil, err
		}
	}

	// A colliding unverified email must not merge accounts; CreateUser's
	// uniqueness constraint forces a distinct address in that case, so
	// federated accounts with unverified duplicate emails get a
	// provider-scoped alias.
	email := profile.Email
	if email == "" {
		email = profile.Provider + "+" + profile.ProviderAccountID + "@accounts.invalid"
	} else if !profile.EmailVerified {
		if _, err := s.store.GetUserByEmail(ctx, email); err == nil {
			email = profile.Provider + "+" + profile.ProviderAccountID + "@accounts.invalid"
		} else if !errors.Is(err, database.ErrNotFound) {
			return nil, err
		}
	}

	user, err := s.store.CreateUser(ctx, email, "", profile.Name)
	if err != nil {
		return nil, err
	}
	if profile.EmailVerified {
		if err := s.store.MarkEmailVerified(ctx, user.ID); err != nil {
			return nil, err
		}
	}
	if profile.AvatarURL != "" {
		s.backfill(ctx, user, profile)
	}
	if _, err := s.store.LinkOAuthAccount(ctx, user.ID, profile.Provider, profile.ProviderAccountID); err != nil {
		return nil, err
	}
	return s.store.GetUserByID(ctx, user.ID)
}

// backfill fills empty name and avatar fields from the provider profile.
// Failures are logged, not fatal.
func (s *Service) backfill(ctx context.Context, user *models.User, profile *models.Profile) {
	if err := s.store.BackfillUserProfile(ctx, user.ID, profile.Name, profile.AvatarURL); err != nil {
		logging.Ctx(ctx).Warn().Err(err).Str("user_id", user.ID).Msg("Profile backfill failed")
	}
}
