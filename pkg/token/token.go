// Copyright (c) 2025 The go-passkey Authors
//
// This file is part of go-passkey.
//
// Licensed under the MIT License. See the LICENSE file for details.

// Package token mints and verifies the signed session tokens issued after a
// successful passkey login. Tokens are stateless HS256 JWTs; possession of a
// valid token is the whole session, there is no server-side session record.
package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Type distinguishes the two token classes a login produces.
type Type string

const (
	// TypeAccess is the short-lived token presented on protected requests.
	TypeAccess Type = "access"

	// TypeRefresh is the long-lived token exchanged for new access tokens.
	TypeRefresh Type = "refresh"
)

const (
	// DefaultAccessTTL is the default access token lifetime.
	DefaultAccessTTL = 15 * time.Minute

	// DefaultRefreshTTL is the default refresh token lifetime.
	DefaultRefreshTTL = 120 * time.Hour

	// DefaultIssuer is the default JWT issuer claim.
	DefaultIssuer = "go-passkey"
)

// signingMethods restricts verification to the single algorithm tokens are
// minted with, so an attacker cannot downgrade to "none" or confuse the
// verifier with an asymmetric method.
var signingMethods = []string{jwt.SigningMethodHS256.Alg()}

// Claims is the claim set carried by every session token.
type Claims struct {
	// Type marks the token as access or refresh. An access token can never
	// be used where a refresh token is required, and vice versa.
	Type Type `json:"type"`

	// DeviceID identifies the credential that performed the login, encoded
	// the way the credential reports it. Empty on tokens minted before the
	// device is known.
	DeviceID string `json:"device_id,omitempty"`

	jwt.RegisteredClaims
}

// Config contains configuration for the token service.
type Config struct {
	// Secret is the HMAC signing key (required).
	Secret []byte

	// Issuer is the JWT issuer claim (default: "go-passkey").
	Issuer string

	// AccessTTL is the access token lifetime (default: 15 minutes).
	AccessTTL time.Duration

	// RefreshTTL is the refresh token lifetime (default: 120 hours).
	RefreshTTL time.Duration
}

// Service mints and verifies session tokens with a shared HMAC secret.
type Service struct {
	secret     []byte
	issuer     string
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

// NewService creates a token service. The signing secret must be provided by
// the caller; there is no generated fallback, a restart with a fresh random
// secret would silently invalidate every outstanding session.
func NewService(config *Config) (*Service, error) {
	if config == nil {
		return nil, fmt.Errorf("config is required")
	}
	if len(config.Secret) == 0 {
		return nil, fmt.Errorf("signing secret is required")
	}

	issuer := config.Issuer
	if issuer == "" {
		issuer = DefaultIssuer
	}

	accessTTL := config.AccessTTL
	if accessTTL == 0 {
		accessTTL = DefaultAccessTTL
	}

	refreshTTL := config.RefreshTTL
	if refreshTTL == 0 {
		refreshTTL = DefaultRefreshTTL
	}

	return &Service{
		secret:     config.Secret,
		issuer:     issuer,
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		now:        time.Now,
	}, nil
}

// Mint creates a signed token of the given type for the subject. deviceID may
// be empty.
func (s *Service) Mint(subject, deviceID string, typ Type) (string, error) {
	now := s.now()

	claims := &Claims{
		Type:     typ,
		DeviceID: deviceID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.Lifetime(typ))),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// Verify checks the token's signature, expiry, and structure, and returns its
// claims. Expired tokens fail with ErrTokenExpired; every other failure is
// ErrTokenInvalid.
func (s *Service) Verify(tokenString string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(tokenString, claims,
		func(t *jwt.Token) (any, error) { return s.secret, nil },
		jwt.WithValidMethods(signingMethods),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}
	if claims.Type != TypeAccess && claims.Type != TypeRefresh {
		return nil, fmt.Errorf("%w: unknown token type %q", ErrTokenInvalid, claims.Type)
	}
	return claims, nil
}

// Refresh exchanges a valid refresh token for a new access token. The refresh
// token itself is not rotated; it stays valid until its own expiry, and the
// new access token's lifetime may extend past it.
func (s *Service) Refresh(refreshToken string) (string, *Claims, error) {
	claims, err := s.Verify(refreshToken)
	if err != nil {
		return "", nil, err
	}
	if claims.Type != TypeRefresh {
		return "", nil, ErrWrongTokenType
	}

	access, err := s.Mint(claims.Subject, claims.DeviceID, TypeAccess)
	if err != nil {
		return "", nil, err
	}
	return access, claims, nil
}

// Lifetime returns the configured lifetime for a token type.
func (s *Service) Lifetime(typ Type) time.Duration {
	if typ == TypeRefresh {
		return s.refreshTTL
	}
	return s.accessTTL
}

// Issuer returns the configured issuer claim.
func (s *Service) Issuer() string {
	return s.issuer
}
