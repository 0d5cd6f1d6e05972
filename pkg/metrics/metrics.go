// Copyright (c) 2025 The go-passkey Authors
//
// This file is part of go-passkey.
//
// Licensed under the MIT License. See the LICENSE file for details.

// Package metrics exposes Prometheus instrumentation for the authentication
// server: HTTP request counts and latencies, ceremony outcomes, and token
// issuance.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the collectors for one server instance. Each instance owns
// its registry so tests can run in parallel without collector collisions.
type Metrics struct {
	registry *prometheus.Registry

	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	activeRequests      prometheus.Gauge

	ceremoniesTotal   *prometheus.CounterVec
	tokensIssuedTotal *prometheus.CounterVec
}

// New creates a metrics set registered on a fresh registry, including the
// standard Go runtime and process collectors.
func New() *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &Metrics{
		registry: registry,
		httpRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "passkey_http_requests_total",
				Help: "Total HTTP requests by method, path, and status code.",
			},
			[]string{"method", "path", "status"},
		),
		httpRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "passkey_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		activeRequests: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "passkey_http_active_requests",
				Help: "Number of HTTP requests currently being served.",
			},
		),
		ceremoniesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "passkey_ceremonies_total",
				Help: "Completed WebAuthn ceremonies by purpose and outcome.",
			},
			[]string{"purpose", "outcome"},
		),
		tokensIssuedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "passkey_tokens_issued_total",
				Help: "Session tokens issued by type.",
			},
			[]string{"type"},
		),
	}

	registry.MustRegister(
		m.httpRequestsTotal,
		m.httpRequestDuration,
		m.activeRequests,
		m.ceremoniesTotal,
		m.tokensIssuedTotal,
	)

	return m
}

// RecordHTTPRequest records one completed HTTP request.
func (m *Metrics) RecordHTTPRequest(method, path, status string, seconds float64) {
	m.httpRequestsTotal.WithLabelValues(method, path, status).Inc()
	m.httpRequestDuration.WithLabelValues(method, path).Observe(seconds)
}

// RecordCeremony records a completed ceremony. Outcome is "success" or
// "failure".
func (m *Metrics) RecordCeremony(purpose, outcome string) {
	m.ceremoniesTotal.WithLabelValues(purpose, outcome).Inc()
}

// RecordTokenIssued records one minted session token.
func (m *Metrics) RecordTokenIssued(tokenType string) {
	m.tokensIssuedTotal.WithLabelValues(tokenType).Inc()
}

// Handler returns the scrape endpoint handler for this registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
