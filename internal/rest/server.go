// Copyright (c) 2025 The go-passkey Authors
//
// This file is part of go-passkey.
//
// Licensed under the MIT License. See the LICENSE file for details.

// Package rest exposes the passkey authentication API over HTTP: ceremony
// option and verify endpoints, token refresh and logout, and the ops
// endpoints (health probes, metrics).
package rest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/passkeydev/go-passkey/pkg/ceremony"
	"github.com/passkeydev/go-passkey/pkg/health"
	"github.com/passkeydev/go-passkey/pkg/metrics"
	"github.com/passkeydev/go-passkey/pkg/ratelimit"
	"github.com/passkeydev/go-passkey/pkg/token"
)

// Server is the HTTP front end for the ceremony engine and token service.
type Server struct {
	server        *http.Server
	engine        *ceremony.Engine
	tokens        *token.Service
	metrics       *metrics.Metrics
	checker       *health.Checker
	limiter       *ratelimit.Limiter
	logger        *slog.Logger
	secureCookies bool
}

// Config holds the REST server configuration.
type Config struct {
	// Address is the host:port to listen on (default: localhost:8080).
	Address string

	// Engine runs the WebAuthn ceremonies (required).
	Engine *ceremony.Engine

	// Tokens mints and verifies session tokens (required).
	Tokens *token.Service

	// Metrics records request and ceremony metrics (optional, created if
	// not provided).
	Metrics *metrics.Metrics

	// Checker serves the health probes (optional, created if not provided).
	Checker *health.Checker

	// Limiter rate limits the unauthenticated endpoints (optional,
	// disabled if not provided).
	Limiter *ratelimit.Limiter

	// Logger is the structured logger (optional, defaults to slog.Default).
	Logger *slog.Logger

	// SecureCookies marks session cookies Secure. Enable everywhere TLS
	// terminates in front of the server.
	SecureCookies bool

	// MetricsPath is where the scrape endpoint is mounted. Empty disables
	// it.
	MetricsPath string

	// ReadTimeout is the maximum duration for reading the entire request.
	ReadTimeout time.Duration

	// WriteTimeout is the maximum duration before timing out writes.
	WriteTimeout time.Duration
}

// NewServer creates the REST server and its router.
func NewServer(cfg *Config) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if cfg.Engine == nil {
		return nil, fmt.Errorf("ceremony engine is required")
	}
	if cfg.Tokens == nil {
		return nil, fmt.Errorf("token service is required")
	}

	if cfg.Address == "" {
		cfg.Address = "localhost:8080"
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 10 * time.Second
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = 10 * time.Second
	}

	m := cfg.Metrics
	if m == nil {
		m = metrics.New()
	}
	checker := cfg.Checker
	if checker == nil {
		checker = health.NewChecker()
	}
	limiter := cfg.Limiter
	if limiter == nil {
		limiter = ratelimit.New(nil)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		engine:        cfg.Engine,
		tokens:        cfg.Tokens,
		metrics:       m,
		checker:       checker,
		limiter:       limiter,
		logger:        logger,
		secureCookies: cfg.SecureCookies,
	}

	s.server = &http.Server{
		Addr:         cfg.Address,
		Handler:      s.setupRouter(cfg.MetricsPath),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	return s, nil
}

// setupRouter configures the chi router with all routes and middleware.
func (s *Server) setupRouter(metricsPath string) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.LoggingMiddleware)
	r.Use(middleware.Recoverer)
	r.Use(metrics.Middleware(s.metrics))

	// Ceremony and token endpoints are unauthenticated by nature; they get
	// the rate limiter.
	r.Group(func(r chi.Router) {
		r.Use(ratelimit.Middleware(s.limiter))

		r.Get("/webauthn/register/options", s.handleRegisterOptions)
		r.Post("/webauthn/register/verify", s.handleRegisterVerify)
		r.Get("/webauthn/login/options", s.handleLoginOptions)
		r.Post("/webauthn/login/verify", s.handleLoginVerify)
		r.Post("/auth/refresh", s.handleRefresh)
		r.Post("/auth/logout", s.handleLogout)
	})

	r.Group(func(r chi.Router) {
		r.Use(s.RequireAccessToken)
		r.Get("/protected", s.handleProtected)
	})

	r.Get("/health/live", s.checker.LiveHandler())
	r.Get("/health/ready", s.checker.ReadyHandler())

	if metricsPath != "" {
		r.Method(http.MethodGet, metricsPath, s.metrics.Handler())
	}

	return r
}

// Handler returns the configured router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Start begins serving. It blocks until the listener fails or Stop is
// called.
func (s *Server) Start() error {
	s.logger.Info("http server listening", slog.String("address", s.server.Addr))
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server failed: %w", err)
	}
	return nil
}

// Stop gracefully shuts the server down, draining in-flight requests until
// the context expires.
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("http server shutting down")
	return s.server.Shutdown(ctx)
}
