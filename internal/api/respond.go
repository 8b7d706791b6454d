// Centerpiece Auth - Multi-Tenant Identity and Session Service
// Copyright 2026 M. Sherwood (mjsherwood76-dev)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mjsherwood76-dev/centerpiece-auth

package api

import (
	"net/http"
	"net/url"

	"github.com/goccy/go-json"

	"github.com/mjsherwood76-dev/centerpiece-auth/internal/logging"
)

// writeJSON serializes v with the shared JSON encoder.
func writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Ctx(r.Context()).Error().Err(err).Msg("Response encoding failed")
	}
}

// writeError emits the generic JSON error shape.
func writeError(w http.ResponseWriter, r *http.Request, status int, message string) {
	writeJSON(w, r, status, map[string]string{"error": message})
}

// redirect issues a 303-free plain 302, the shape every browser flow in
// this service uses.
func redirect(w http.ResponseWriter, r *http.Request, location string) {
	http.Redirect(w, r, location, http.StatusFound)
}

// redirectWithParams sends the browser back to an auth page with query
// parameters (error codes, echoed form state).
func redirectWithParams(w http.ResponseWriter, r *http.Request, page string, params url.Values) {
	location := page
	if len(params) > 0 {
		location += "?" + params.Encode()
	}
	redirect(w, r, location)
}
