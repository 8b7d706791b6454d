// Centerpiece Auth - Multi-Tenant Identity and Session Service
// Copyright 2026 M. Sherwood (mjsherwood76-dev)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mjsherwood76-dev/centerpiece-auth

// Package metrics exposes Prometheus instrumentation for the auth
// service: HTTP latency and throughput, authentication outcomes, token
// kernel activity, and federation round trips.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics.
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "auth_http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route", "status"},
	)

	HTTPActiveRequests = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "auth_http_active_requests",
			Help: "Number of HTTP requests currently being served",
		},
	)

	// Authentication outcomes per flow (register, login, oauth) and
	// result (success or a user-visible error code).
	AuthAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_attempts_total",
			Help: "Total authentication attempts by flow and result",
		},
		[]string{"flow", "result"},
	)

	// Token kernel metrics.
	TokenExchanges = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_token_exchanges_total",
			Help: "Total authorization-code exchanges by result",
		},
		[]string{"result"},
	)

	RefreshRotations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_refresh_rotations_total",
			Help: "Total refresh-token rotations by result",
		},
		[]string{"result"},
	)

	ReuseDetections = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "auth_refresh_reuse_detections_total",
			Help: "Total refresh-token reuse detections (family revocations)",
		},
	)

	// Federation metrics.
	OAuthFlows = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_oauth_flows_total",
			Help: "Total federated sign-in flows by provider, phase, and result",
		},
		[]string{"provider", "phase", "result"},
	)

	// Email delivery attempts (fire-and-log).
	EmailSends = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_email_sends_total",
			Help: "Total outgoing email attempts by kind and result",
		},
		[]string{"kind", "result"},
	)

	// Sweeper activity.
	SweptRows = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_swept_rows_total",
			Help: "Total expired rows removed by the background sweeper",
		},
		[]string{"table"},
	)
)

// RecordHTTPRequest records one served request.
func RecordHTTPRequest(method, route string, status int, duration time.Duration) {
	HTTPRequestDuration.WithLabelValues(method, route, strconv.Itoa(status)).
		Observe(duration.Seconds())
}

// TrackActiveRequest adjusts the in-flight request gauge.
func TrackActiveRequest(active bool) {
	if active {
		HTTPActiveRequests.Inc()
	} else {
		HTTPActiveRequests.Dec()
	}
}

// RecordAuthAttempt records one authentication attempt outcome.
func RecordAuthAttempt(flow, result string) {
	AuthAttempts.WithLabelValues(flow, result).Inc()
}
