// Centerpiece Auth - Multi-Tenant Identity and Session Service
// Copyright 2026 M. Sherwood (mjsherwood76-dev)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mjsherwood76-dev/centerpiece-auth

package api

import (
	"net/http"
	"time"

	"github.com/mjsherwood76-dev/centerpiece-auth/internal/logging"
)

type subsystemHealth struct {
	Status     string `json:"status"`
	DurationMs int64  `json:"durationMs"`
	Error      string `json:"error,omitempty"`
}

type healthResponse struct {
	Status        string                     `json:"status"`
	Version       string                     `json:"version"`
	Env           string                     `json:"env"`
	DeployedAt    string                     `json:"deployedAt"`
	Subsystems    map[string]subsystemHealth `json:"subsystems"`
	DurationMs    int64                      `json:"durationMs"`
	CorrelationID string                     `json:"correlationId"`
}

// Health probes the data store and reports overall liveness.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	status := http.StatusOK
	resp := healthResponse{
		Status:        "ok",
		Version:       h.version,
		Env:           h.cfg.Server.Environment,
		DeployedAt:    h.deployedAt.Format(time.RFC3339),
		Subsystems:    map[string]subsystemHealth{},
		CorrelationID: logging.CorrelationIDFromContext(r.Context()),
	}

	dbStart := time.Now()
	dbHealth := subsystemHealth{Status: "ok"}
	if err := h.db.Ping(r.Context()); err != nil {
		dbHealth.Status = "error"
		dbHealth.Error = "data store unreachable"
		resp.Status = "degraded"
		status = http.StatusServiceUnavailable
		logging.Ctx(r.Context()).Error().Err(err).Msg("Health probe failed")
	}
	dbHealth.DurationMs = time.Since(dbStart).Milliseconds()
	resp.Subsystems["database"] = dbHealth

	resp.DurationMs = time.Since(start).Milliseconds()
	w.Header().Set("Cache-Control", "no-store")
	writeJSON(w, r, status, resp)
}

// JWKS publishes the verification key set with long-lived caching and an
// ETag for conditional requests.
func (h *Handlers) JWKS(w http.ResponseWriter, r *http.Request) {
	body, etag, err := h.jwts.JWKS()
	if err != nil {
		logging.Ctx(r.Context()).Error().Err(err).Msg("JWKS build failed")
		writeError(w, r, http.StatusInternalServerError, "Internal server error")
		return
	}

	w.Header().Set("Cache-Control", "public, max-age=3600")
	w.Header().Set("ETag", etag)
	if r.Header.Get("If-None-Match") == etag {
		w.WriteHeader(http.StatusNotModified)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}
