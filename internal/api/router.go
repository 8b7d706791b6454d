// Centerpiece Auth - Multi-Tenant Identity and Session Service
// Copyright 2026 M. Sherwood (mjsherwood76-dev)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mjsherwood76-dev/centerpiece-auth

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mjsherwood76-dev/centerpiece-auth/internal/audit"
	"github.com/mjsherwood76-dev/centerpiece-auth/internal/middleware"
)

// Router assembles the full HTTP surface.
func Router(h *Handlers) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.CorrelationID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		// Origins are validated against the same controlled-suffix list
		// as the redirect validator. Unknown origins get no
		// Access-Control-Allow-Origin; credentials with "*" never happen
		// because the allow decision is per-origin.
		AllowOriginFunc: func(r *http.Request, origin string) bool {
			return h.redirect.AllowedOrigin(origin)
		},
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Correlation-Id", "X-Request-Id"},
		ExposedHeaders:   []string{"X-Trace-Id"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.ServerTiming)
	r.Use(middleware.PrometheusMetrics)

	rateLimit := authRateLimit(h)

	r.Get("/health", h.Health)
	r.Get("/.well-known/jwks.json", h.JWKS)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Get("/login", h.LoginPage)
	r.Get("/register", h.RegisterPage)
	r.Get("/reset-password", h.ResetPasswordPage)

	r.Group(func(r chi.Router) {
		r.Use(rateLimit)

		r.Post("/api/register", h.Register)
		r.Post("/api/login", h.Login)
		r.Post("/api/forgot-password", h.ForgotPassword)
		r.Post("/api/reset-password", h.ResetPassword)

		r.Post("/api/token", h.Token)
		r.Get("/api/refresh", h.Refresh)
		r.Post("/api/logout", h.Logout)
		r.Post("/api/logout-all", h.LogoutAll)
		r.Get("/api/memberships", h.Memberships)

		r.Get("/oauth/{provider}", h.OAuthInitiate)
		r.Get("/oauth/{provider}/callback", h.OAuthCallback)
		r.Post("/oauth/{provider}/callback", h.OAuthCallback)
	})

	return r
}

// authRateLimit limits per IP per route over a floored window. The
// production cap is deliberately tight; these are unauthenticated
// endpoints guarding credential checks.
func authRateLimit(h *Handlers) func(http.Handler) http.Handler {
	limit := h.cfg.Auth.RateLimitCap(h.cfg.Server.IsProduction())
	return httprate.Limit(
		limit,
		h.cfg.Auth.RateLimitWindow,
		httprate.WithKeyFuncs(httprate.KeyByRealIP, httprate.KeyByEndpoint),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			audit.FromRequest(r, audit.KindRateLimited).Status(http.StatusTooManyRequests).Emit()
			writeError(w, r, http.StatusTooManyRequests, "Too many requests")
		}),
	)
}
