// Centerpiece Auth - Multi-Tenant Identity and Session Service
// Copyright 2026 M. Sherwood (mjsherwood76-dev)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mjsherwood76-dev/centerpiece-auth

package middleware

import (
	"net/http"
	"strings"
)

// htmlCSP is the policy for HTML responses. Inline style and script are
// whitelisted for the theming system; everything else is locked down.
const htmlCSP = "default-src 'self'; " +
	"script-src 'self' 'unsafe-inline'; " +
	"style-src 'self' 'unsafe-inline'; " +
	"img-src 'self' data: https:; " +
	"frame-ancestors 'none'; " +
	"form-action 'self'; " +
	"base-uri 'self'"

// SecurityHeaders applies baseline security headers to every response,
// and a strict CSP to HTML responses. Headers already set by a handler
// are left alone.
func SecurityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		next.ServeHTTP(&securityWriter{ResponseWriter: w}, r)
	})
}

type securityWriter struct {
	http.ResponseWriter
	wrote bool
}

func (sw *securityWriter) WriteHeader(code int) {
	sw.apply()
	sw.ResponseWriter.WriteHeader(code)
}

func (sw *securityWriter) Write(b []byte) (int, error) {
	sw.apply()
	return sw.ResponseWriter.Write(b)
}

func (sw *securityWriter) apply() {
	if sw.wrote {
		return
	}
	sw.wrote = true

	h := sw.Header()
	setIfAbsent(h, "X-Frame-Options", "DENY")
	setIfAbsent(h, "X-Content-Type-Options", "nosniff")
	setIfAbsent(h, "Referrer-Policy", "strict-origin-when-cross-origin")
	setIfAbsent(h, "Permissions-Policy", "camera=(), microphone=(), geolocation=(), payment=()")

	if strings.HasPrefix(h.Get("Content-Type"), "text/html") {
		setIfAbsent(h, "Content-Security-Policy", htmlCSP)
	}
}

func setIfAbsent(h http.Header, key, value string) {
	if h.Get(key) == "" {
		h.Set(key, value)
	}
}
