// Centerpiece Auth - Multi-Tenant Identity and Session Service
// Copyright 2026 M. Sherwood (mjsherwood76-dev)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mjsherwood76-dev/centerpiece-auth

// Package middleware provides the HTTP middleware stack: correlation
// ids, security headers, request timing, and Prometheus instrumentation.
package middleware

import (
	"net/http"

	"github.com/mjsherwood76-dev/centerpiece-auth/internal/logging"
)

// CorrelationID tags each request with a correlation id sourced from
// x-correlation-id, then x-request-id, then a generated UUID, and echoes
// it back as x-trace-id.
func CorrelationID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Correlation-Id")
		if id == "" {
			id = r.Header.Get("X-Request-Id")
		}
		if id == "" {
			id = logging.GenerateCorrelationID()
		}

		w.Header().Set("X-Trace-Id", id)
		ctx := logging.ContextWithCorrelationID(r.Context(), id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
