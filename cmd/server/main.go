// Copyright (c) 2025 The go-passkey Authors
//
// This file is part of go-passkey.
//
// Licensed under the MIT License. See the LICENSE file for details.

package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/passkeydev/go-passkey/internal/config"
	"github.com/passkeydev/go-passkey/internal/rest"
	"github.com/passkeydev/go-passkey/pkg/ceremony"
	"github.com/passkeydev/go-passkey/pkg/health"
	"github.com/passkeydev/go-passkey/pkg/metrics"
	"github.com/passkeydev/go-passkey/pkg/ratelimit"
	"github.com/passkeydev/go-passkey/pkg/token"
)

var (
	// Version information (set during build)
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	configPath := flag.String("config", "", "Path to configuration file (optional)")
	showVersion := flag.Bool("version", false, "Show version information")
	flag.Parse()

	if *showVersion {
		fmt.Printf("go-passkey server\n")
		fmt.Printf("  Version:    %s\n", version)
		fmt.Printf("  Git Commit: %s\n", commit)
		fmt.Printf("  Built:      %s\n", date)
		os.Exit(0)
	}

	if envConfig := os.Getenv("PASSKEY_CONFIG"); envConfig != "" && *configPath == "" {
		*configPath = envConfig
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("Failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}

	logger := newLogger(cfg.Logging)
	slog.SetDefault(logger)

	logger.Info("Starting passkey server",
		"version", version,
		"address", cfg.Address(),
		"relying_party", cfg.RelyingParty.ID)

	userStore := ceremony.NewMemoryUserStore()
	challengeStore := ceremony.NewMemoryChallengeStore()

	engine, err := ceremony.NewEngine(ceremony.EngineParams{
		Config: &ceremony.Config{
			RPID:          cfg.RelyingParty.ID,
			RPDisplayName: cfg.RelyingParty.DisplayName,
			RPOrigins:     cfg.RelyingParty.Origins,
			ChallengeTTL:  cfg.Challenge.TTL,
		},
		Users:      userStore,
		Challenges: challengeStore,
	})
	if err != nil {
		logger.Error("Failed to create ceremony engine", slog.Any("error", err))
		os.Exit(1)
	}

	tokens, err := token.NewService(&token.Config{
		Secret:     []byte(cfg.Tokens.Secret),
		Issuer:     cfg.Tokens.Issuer,
		AccessTTL:  cfg.Tokens.AccessTTL,
		RefreshTTL: cfg.Tokens.RefreshTTL,
	})
	if err != nil {
		logger.Error("Failed to create token service", slog.Any("error", err))
		os.Exit(1)
	}

	limiter := ratelimit.New(&ratelimit.Config{
		Enabled:           cfg.RateLimit.Enabled,
		RequestsPerMinute: cfg.RateLimit.RequestsPerMin,
		Burst:             cfg.RateLimit.Burst,
	})
	defer limiter.Stop()

	checker := health.NewChecker()
	checker.RegisterCheck("stores", func(ctx context.Context) health.CheckResult {
		return health.CheckResult{
			Status: health.StatusHealthy,
			Message: fmt.Sprintf("%d users, %d pending challenges",
				userStore.Count(), challengeStore.Count()),
		}
	})

	metricsPath := ""
	if cfg.Metrics.Enabled {
		metricsPath = cfg.Metrics.Path
	}

	server, err := rest.NewServer(&rest.Config{
		Address:       cfg.Address(),
		Engine:        engine,
		Tokens:        tokens,
		Metrics:       metrics.New(),
		Checker:       checker,
		Limiter:       limiter,
		Logger:        logger,
		SecureCookies: hasSecureOrigin(cfg.RelyingParty.Origins),
		MetricsPath:   metricsPath,
		ReadTimeout:   cfg.Server.ReadTimeout,
		WriteTimeout:  cfg.Server.WriteTimeout,
	})
	if err != nil {
		logger.Error("Failed to create server", slog.Any("error", err))
		os.Exit(1)
	}

	// Abandoned ceremonies leave expired challenges behind; sweep them.
	cleanupCtx, cancelCleanup := context.WithCancel(context.Background())
	defer cancelCleanup()
	go runChallengeCleanup(cleanupCtx, challengeStore, cfg.Challenge.CleanupInterval, logger)

	shutdownCtx := setupSignalHandler(logger)

	errChan := make(chan error, 1)
	go func() {
		if err := server.Start(); err != nil {
			errChan <- err
		}
	}()

	select {
	case <-shutdownCtx.Done():
		logger.Info("Shutdown signal received")
	case err := <-errChan:
		logger.Error("Server error", slog.Any("error", err))
	}

	shutdownTimeout, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Stop(shutdownTimeout); err != nil {
		logger.Error("Error during shutdown", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("Server stopped")
}

// newLogger builds the process logger from the logging configuration.
func newLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	if strings.ToLower(cfg.Format) == "text" {
		return slog.New(slog.NewTextHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, opts))
}

// runChallengeCleanup periodically removes expired pending challenges.
func runChallengeCleanup(ctx context.Context, store *ceremony.MemoryChallengeStore, interval time.Duration, logger *slog.Logger) {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if removed := store.Cleanup(time.Now()); removed > 0 {
				logger.Debug("Removed expired challenges", slog.Int("count", removed))
			}
		case <-ctx.Done():
			return
		}
	}
}

// setupSignalHandler cancels the returned context on SIGINT or SIGTERM.
func setupSignalHandler(logger *slog.Logger) context.Context {
	ctx, cancel := context.WithCancel(context.Background())

	signalCh := make(chan os.Signal, 1)
	signal.Notify(signalCh, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-signalCh
		logger.Info("Received shutdown signal")
		cancel()
	}()

	return ctx
}

// hasSecureOrigin reports whether any configured origin is served over TLS.
func hasSecureOrigin(origins []string) bool {
	for _, origin := range origins {
		if strings.HasPrefix(origin, "https://") {
			return true
		}
	}
	return false
}
