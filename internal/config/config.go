// Copyright (c) 2025 The go-passkey Authors
//
// This file is part of go-passkey.
//
// Licensed under the MIT License. See the LICENSE file for details.

// Package config loads the server configuration from YAML with environment
// variable overrides. Environment variables win over file values, so secrets
// can stay out of the config file entirely.
package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete server configuration.
type Config struct {
	Server       ServerConfig       `yaml:"server"`
	RelyingParty RelyingPartyConfig `yaml:"relying_party"`
	Tokens       TokensConfig       `yaml:"tokens"`
	Challenge    ChallengeConfig    `yaml:"challenge"`
	Logging      LoggingConfig      `yaml:"logging"`
	RateLimit    RateLimitConfig    `yaml:"ratelimit"`
	Metrics      MetricsConfig      `yaml:"metrics"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// RelyingPartyConfig identifies this server to authenticators.
type RelyingPartyConfig struct {
	ID          string   `yaml:"id"`
	DisplayName string   `yaml:"display_name"`
	Origins     []string `yaml:"origins"`
}

// TokensConfig controls session token issuance.
type TokensConfig struct {
	// Secret is the HMAC signing key. Prefer setting it via the
	// PASSKEY_JWT_SECRET environment variable over the config file.
	Secret     string        `yaml:"secret"`
	Issuer     string        `yaml:"issuer"`
	AccessTTL  time.Duration `yaml:"access_ttl"`
	RefreshTTL time.Duration `yaml:"refresh_ttl"`
}

// ChallengeConfig controls ceremony challenge handling.
type ChallengeConfig struct {
	TTL             time.Duration `yaml:"ttl"`
	CleanupInterval time.Duration `yaml:"cleanup_interval"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// RateLimitConfig controls per-client rate limiting.
type RateLimitConfig struct {
	Enabled        bool `yaml:"enabled"`
	RequestsPerMin int  `yaml:"requests_per_min"`
	Burst          int  `yaml:"burst"`
}

// MetricsConfig controls the Prometheus scrape endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// Default returns a configuration with development-friendly defaults.
// The token secret is deliberately absent; Validate rejects it.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "localhost",
			Port:            8080,
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    10 * time.Second,
			ShutdownTimeout: 15 * time.Second,
		},
		RelyingParty: RelyingPartyConfig{
			ID:          "localhost",
			DisplayName: "Passkey Demo",
			Origins:     []string{"http://localhost:8080"},
		},
		Tokens: TokensConfig{
			Issuer:     "go-passkey",
			AccessTTL:  15 * time.Minute,
			RefreshTTL: 120 * time.Hour,
		},
		Challenge: ChallengeConfig{
			TTL:             2 * time.Minute,
			CleanupInterval: 5 * time.Minute,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		RateLimit: RateLimitConfig{
			Enabled:        true,
			RequestsPerMin: 120,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
	}
}

// Load reads configuration from a YAML file, applies environment variable
// overrides, and validates the result. An empty path loads defaults plus
// environment overrides only.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		// #nosec G304 - config file path is provided by the operator
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// applyEnvOverrides applies environment variable overrides.
func applyEnvOverrides(cfg *Config) {
	if host := os.Getenv("PASSKEY_HOST"); host != "" {
		cfg.Server.Host = host
	}
	if portStr := os.Getenv("PASSKEY_PORT"); portStr != "" {
		port, err := strconv.Atoi(portStr)
		if err != nil || port < 1 || port > 65535 {
			log.Printf("Warning: invalid PASSKEY_PORT value %q, using %d",
				portStr, cfg.Server.Port)
		} else {
			cfg.Server.Port = port
		}
	}

	if rpID := os.Getenv("PASSKEY_RP_ID"); rpID != "" {
		cfg.RelyingParty.ID = rpID
	}
	if origins := os.Getenv("PASSKEY_RP_ORIGINS"); origins != "" {
		parts := strings.Split(origins, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		cfg.RelyingParty.Origins = parts
	}

	if secret := os.Getenv("PASSKEY_JWT_SECRET"); secret != "" {
		cfg.Tokens.Secret = secret
	}

	if level := os.Getenv("PASSKEY_LOG_LEVEL"); level != "" {
		cfg.Logging.Level = level
	}
	if format := os.Getenv("PASSKEY_LOG_FORMAT"); format != "" {
		cfg.Logging.Format = format
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	if c.RelyingParty.ID == "" {
		return fmt.Errorf("relying_party.id must be specified")
	}
	if len(c.RelyingParty.Origins) == 0 {
		return fmt.Errorf("relying_party.origins must not be empty")
	}

	// A missing secret is fatal, never defaulted. A generated fallback would
	// invalidate all sessions on every restart and hide misconfiguration.
	if c.Tokens.Secret == "" {
		return fmt.Errorf("tokens.secret must be set (use PASSKEY_JWT_SECRET)")
	}
	if c.Tokens.AccessTTL <= 0 {
		return fmt.Errorf("tokens.access_ttl must be positive")
	}
	if c.Tokens.RefreshTTL <= 0 {
		return fmt.Errorf("tokens.refresh_ttl must be positive")
	}

	if c.Challenge.TTL <= 0 {
		return fmt.Errorf("challenge.ttl must be positive")
	}

	validLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLevels[strings.ToLower(c.Logging.Level)] {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", c.Logging.Level)
	}

	validFormats := map[string]bool{
		"json": true, "text": true,
	}
	if !validFormats[strings.ToLower(c.Logging.Format)] {
		return fmt.Errorf("invalid log format: %s (must be json or text)", c.Logging.Format)
	}

	if c.RateLimit.Enabled && c.RateLimit.RequestsPerMin < 1 {
		return fmt.Errorf("ratelimit.requests_per_min must be positive when enabled")
	}

	return nil
}

// Address returns the host:port the server listens on.
func (c *Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}
