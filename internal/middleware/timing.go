// Centerpiece Auth - Multi-Tenant Identity and Session Service
// Copyright 2026 M. Sherwood (mjsherwood76-dev)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mjsherwood76-dev/centerpiece-auth

package middleware

import (
	"fmt"
	"net/http"
	"time"

	"github.com/mjsherwood76-dev/centerpiece-auth/internal/logging"
)

// ServerTiming attaches a Server-Timing header with the total handler
// duration and emits one request log line.
func ServerTiming(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		tw := &timingWriter{ResponseWriter: w, start: start, statusCode: http.StatusOK}

		next.ServeHTTP(tw, r)

		logging.Ctx(r.Context()).Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", tw.statusCode).
			Dur("duration", time.Since(start)).
			Msg("Request served")
	})
}

type timingWriter struct {
	http.ResponseWriter
	start       time.Time
	statusCode  int
	wroteHeader bool
}

func (tw *timingWriter) WriteHeader(code int) {
	if !tw.wroteHeader {
		tw.wroteHeader = true
		tw.statusCode = code
		// Header must be set before the status line goes out.
		elapsed := float64(time.Since(tw.start).Microseconds()) / 1000.0
		tw.Header().Set("Server-Timing", fmt.Sprintf("app;dur=%.1f", elapsed))
	}
	tw.ResponseWriter.WriteHeader(code)
}

func (tw *timingWriter) Write(b []byte) (int, error) {
	if !tw.wroteHeader {
		tw.WriteHeader(http.StatusOK)
	}
	return tw.ResponseWriter.Write(b)
}
