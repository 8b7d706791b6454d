// Centerpiece Auth - Multi-Tenant Identity and Session Service
// Copyright 2026 M. Sherwood (mjsherwood76-dev)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mjsherwood76-dev/centerpiece-auth

package oauth

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"errors"
	"net/url"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/mjsherwood76-dev/centerpiece-auth/internal/authflow"
	"github.com/mjsherwood76-dev/centerpiece-auth/internal/config"
	"github.com/mjsherwood76-dev/centerpiece-auth/internal/database"
	"github.com/mjsherwood76-dev/centerpiece-auth/internal/models"
	"github.com/mjsherwood76-dev/centerpiece-auth/internal/token"
)

// fakeAdapter short-circuits the provider round trip.
type fakeAdapter struct {
	name    string
	profile *models.Profile
	err     error
}

func (f *fakeAdapter) Name() string           { return f.name }
func (f *fakeAdapter) OIDC() bool             { return true }
func (f *fakeAdapter) FormPostCallback() bool { return false }
func (f *fakeAdapter) AuthCodeURL(state, challenge, nonce string) string {
	return "https://provider.example/authorize?" + url.Values{
		"state":          {state},
		"code_challenge": {challenge},
		"nonce":          {nonce},
	}.Encode()
}

func (f *fakeAdapter) FetchProfile(_ context.Context, _, _, _, _ string) (*models.Profile, error) {
	return f.profile, f.err
}

func testService(t *testing.T, adapter Adapter) (*Service, *database.DB) {
	t.Helper()
	db, err := database.Open(context.Background(), filepath.Join(t.TempDir(), "auth.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })

	registry := &Registry{adapters: map[string]Adapter{}}
	if adapter != nil {
		registry.adapters[adapter.Name()] = adapter
	}
	kernel := token.New(db, 30*24*time.Hour, 60*time.Second)
	validator := authflow.NewValidator(db, true)
	return NewService(registry, db, kernel, validator), db
}

func googleProfile() *models.Profile {
	return &models.Profile{
		Provider:          ProviderGoogle,
		ProviderAccountID: "g-123",
		Email:             "fed@example.com",
		EmailVerified:     true,
		Name:              "Fed User",
		AvatarURL:         "https://cdn/avatar.png",
	}
}

func TestInitiateStoresStateAndBuildsURL(t *testing.T) {
	adapter := &fakeAdapter{name: ProviderGoogle, profile: googleProfile()}
	svc, db := testService(t, adapter)
	ctx := context.Background()

	authURL, err := svc.Initiate(ctx, ProviderGoogle, "https://store-a.centerpiece.shop/cart")
	if err != nil {
		t.Fatalf("Initiate() error: %v", err)
	}

	u, err := url.Parse(authURL)
	if err != nil {
		t.Fatal(err)
	}
	state := u.Query().Get("state")
	if len(state) != 64 {
		t.Errorf("state = %q, want 64 hex chars", state)
	}
	if u.Query().Get("nonce") == "" || u.Query().Get("code_challenge") == "" {
		t.Error("auth URL missing nonce or code challenge")
	}

	flow, err := db.ConsumeOAuthState(ctx, state)
	if err != nil {
		t.Fatalf("state row missing: %v", err)
	}
	if flow.Provider != ProviderGoogle || flow.TenantID != models.TenantUnknown {
		t.Errorf("flow = %+v", flow)
	}
}

func TestInitiateRejections(t *testing.T) {
	svc, _ := testService(t, &fakeAdapter{name: ProviderGoogle})
	ctx := context.Background()

	if _, err := svc.Initiate(ctx, "github", "https://store-a.centerpiece.shop/"); !errors.Is(err, ErrProviderUnknown) {
		t.Errorf("unconfigured provider error = %v, want ErrProviderUnknown", err)
	}
	if _, err := svc.Initiate(ctx, ProviderGoogle, "https://evil.example.com/"); !errors.Is(err, authflow.ErrInvalidRedirect) {
		t.Errorf("bad redirect error = %v, want ErrInvalidRedirect", err)
	}
}

func TestCallbackCreatesUserAndSession(t *testing.T) {
	adapter := &fakeAdapter{name: ProviderGoogle, profile: googleProfile()}
	svc, db := testService(t, adapter)
	ctx := context.Background()

	authURL, err := svc.Initiate(ctx, ProviderGoogle, "https://store-a.centerpiece.shop/cart?x=1")
	if err != nil {
		t.Fatal(err)
	}
	state := mustQueryParam(t, authURL, "state")

	result, err := svc.Callback(ctx, ProviderGoogle, "provider-code", state, "", token.ClientInfo{})
	if err != nil {
		t.Fatalf("Callback() error: %v", err)
	}

	if result.User.Email != "fed@example.com" || !result.User.EmailVerified {
		t.Errorf("resolved user = %+v", result.User)
	}
	if result.RefreshToken == "" {
		t.Error("no refresh token minted")
	}
	if !strings.HasPrefix(result.RedirectURL, "https://store-a.centerpiece.shop/auth/callback?") {
		t.Errorf("redirect = %q", result.RedirectURL)
	}
	if got := mustQueryParam(t, result.RedirectURL, "returnTo"); got != "/cart?x=1" {
		t.Errorf("returnTo = %q", got)
	}

	// The link row exists and a replayed callback (state burned) fails.
	if _, err := db.GetOAuthAccount(ctx, ProviderGoogle, "g-123"); err != nil {
		t.Errorf("link row missing: %v", err)
	}
	if _, err := svc.Callback(ctx, ProviderGoogle, "provider-code", state, "", token.ClientInfo{}); !errors.Is(err, ErrStateInvalid) {
		t.Errorf("replayed callback error = %v, want ErrStateInvalid", err)
	}
}

func TestCallbackRejectsProviderMismatch(t *testing.T) {
	google := &fakeAdapter{name: ProviderGoogle, profile: googleProfile()}
	svc, db := testService(t, google)
	svc.registry.adapters[ProviderFacebook] = &fakeAdapter{name: ProviderFacebook, profile: googleProfile()}
	ctx := context.Background()

	authURL, err := svc.Initiate(ctx, ProviderGoogle, "https://store-a.centerpiece.shop/")
	if err != nil {
		t.Fatal(err)
	}
	state := mustQueryParam(t, authURL, "state")

	if _, err := svc.Callback(ctx, ProviderFacebook, "code", state, "", token.ClientInfo{}); !errors.Is(err, ErrStateInvalid) {
		t.Errorf("cross-provider callback error = %v, want ErrStateInvalid", err)
	}
	// The mismatch burned the state.
	if _, err := db.ConsumeOAuthState(ctx, state); !errors.Is(err, database.ErrNotFound) {
		t.Errorf("state survived mismatch, error = %v", err)
	}
}

func TestResolveUserExistingLinkWins(t *testing.T) {
	svc, db := testService(t, nil)
	ctx := context.Background()

	existing, err := db.CreateUser(ctx, "linked@example.com", "", "")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.LinkOAuthAccount(ctx, existing.ID, ProviderGoogle, "g-9"); err != nil {
		t.Fatal(err)
	}

	profile := &models.Profile{
		Provider: ProviderGoogle, ProviderAccountID: "g-9",
		Email: "different@example.com", EmailVerified: true, Name: "Backfilled",
	}
	user, err := svc.ResolveUser(ctx, profile)
	if err != nil {
		t.Fatalf("ResolveUser() error: %v", err)
	}
	if user.ID != existing.ID {
		t.Errorf("resolved %s, want existing %s", user.ID, existing.ID)
	}
	if user.Name != "Backfilled" {
		t.Errorf("empty name not backfilled: %q", user.Name)
	}
}

func TestResolveUserLinksVerifiedEmail(t *testing.T) {
	svc, db := testService(t, nil)
	ctx := context.Background()

	existing, err := db.CreateUser(ctx, "match@example.com", "pbkdf2:100000:aa:bb", "Existing")
	if err != nil {
		t.Fatal(err)
	}

	user, err := svc.ResolveUser(ctx, &models.Profile{
		Provider: ProviderGoogle, ProviderAccountID: "g-10",
		Email: "match@example.com", EmailVerified: true,
	})
	if err != nil {
		t.Fatalf("ResolveUser() error: %v", err)
	}
	if user.ID != existing.ID {
		t.Errorf("verified email did not link: got %s want %s", user.ID, existing.ID)
	}
	if !user.EmailVerified {
		t.Error("email not marked verified after provider attestation")
	}
}

func TestResolveUserUnverifiedEmailNeverMerges(t *testing.T) {
	svc, db := testService(t, nil)
	ctx := context.Background()

	existing, err := db.CreateUser(ctx, "victim@example.com", "pbkdf2:100000:aa:bb", "Victim")
	if err != nil {
		t.Fatal(err)
	}

	user, err := svc.ResolveUser(ctx, &models.Profile{
		Provider: ProviderFacebook, ProviderAccountID: "f-66",
		Email: "victim@example.com", EmailVerified: false,
	})
	if err != nil {
		t.Fatalf("ResolveUser() error: %v", err)
	}
	if user.ID == existing.ID {
		t.Fatal("unverified provider email merged into existing account")
	}
	if user.HasPassword() {
		t.Error("federated user has a password")
	}
}

func TestResolveUserCreatesFreshAccount(t *testing.T) {
	svc, db := testService(t, nil)
	ctx := context.Background()

	user, err := svc.ResolveUser(ctx, &models.Profile{
		Provider: ProviderApple, ProviderAccountID: "a-1",
		Email: "new@example.com", EmailVerified: true, Name: "Apple User",
	})
	if err != nil {
		t.Fatalf("ResolveUser() error: %v", err)
	}
	if user.Email != "new@example.com" || !user.EmailVerified {
		t.Errorf("user = %+v", user)
	}
	if _, err := db.GetOAuthAccount(ctx, ProviderApple, "a-1"); err != nil {
		t.Errorf("link not created: %v", err)
	}
}

func TestAppleClientSecret(t *testing.T) {
	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatal(err)
	}
	der, err := x509.MarshalECPrivateKey(priv)
	if err != nil {
		t.Fatal(err)
	}
	pemBytes := pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: der})

	cfg := config.AppleConfig{
		ClientID:   "shop.centerpiece.signin",
		TeamID:     "TEAM123",
		KeyID:      "KEY456",
		PrivateKey: base64.StdEncoding.EncodeToString(pemBytes),
	}

	secret, err := appleClientSecret(cfg, time.Now())
	if err != nil {
		t.Fatalf("appleClientSecret() error: %v", err)
	}

	claims, err := parseIDToken(secret)
	if err != nil {
		t.Fatalf("parsing generated secret: %v", err)
	}
	if claims.Issuer != "TEAM123" || claims.Subject != "shop.centerpiece.signin" ||
		claims.Audience != "https://appleid.apple.com" {
		t.Errorf("secret claims = %+v", claims)
	}
}

func TestParseAppleUserName(t *testing.T) {
	got := parseAppleUserName(`{"name":{"firstName":"Jane","lastName":"Doe"},"email":"j@example.com"}`)
	if got != "Jane Doe" {
		t.Errorf("name = %q, want Jane Doe", got)
	}
	if parseAppleUserName("") != "" || parseAppleUserName("{bad json") != "" {
		t.Error("malformed blob did not yield empty name")
	}
}

func mustQueryParam(t *testing.T, rawURL, key string) string {
	t.Helper()
	u, err := url.Parse(rawURL)
	if err != nil {
		t.Fatal(err)
	}
	v := u.Query().Get(key)
	if v == "" {
		t.Fatalf("URL %q missing %q parameter", rawURL, key)
	}
	return v
}
