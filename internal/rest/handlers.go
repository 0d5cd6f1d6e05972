// Copyright (c) 2025 The go-passkey Authors
//
// This file is part of go-passkey.
//
// Licensed under the MIT License. See the LICENSE file for details.

package rest

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-webauthn/webauthn/protocol"

	"github.com/passkeydev/go-passkey/pkg/ceremony"
	"github.com/passkeydev/go-passkey/pkg/token"
)

const (
	accessCookieName  = "access_token"
	refreshCookieName = "refresh_token"
)

// verifyRequest is the body of both verify endpoints. The credential field
// carries the client-side ceremony result untouched.
type verifyRequest struct {
	Email      string          `json:"email"`
	Credential json.RawMessage `json:"credential"`
}

type statusResponse struct {
	Status string `json:"status"`
}

type registerVerifyResponse struct {
	Status   string `json:"status"`
	User     string `json:"user"`
	DeviceID string `json:"device_id"`
}

type loginVerifyResponse struct {
	Status    string    `json:"status"`
	User      string    `json:"user"`
	DeviceID  string    `json:"device_id"`
	LoginTime time.Time `json:"login_time"`
}

type refreshResponse struct {
	Status string `json:"status"`
	User   string `json:"user"`
}

type protectedResponse struct {
	Message string `json:"message"`
}

// handleRegisterOptions serves GET /webauthn/register/options?email=...
func (s *Server) handleRegisterOptions(w http.ResponseWriter, r *http.Request) {
	email := r.URL.Query().Get("email")
	if email == "" {
		writeError(w, http.StatusBadRequest, "email query parameter is required")
		return
	}

	options, err := s.engine.BeginRegistration(r.Context(), email)
	if err != nil {
		s.logger.Error("begin registration failed", slog.String("error", err.Error()))
		writeCeremonyError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, options)
}

// handleRegisterVerify serves POST /webauthn/register/verify.
func (s *Server) handleRegisterVerify(w http.ResponseWriter, r *http.Request) {
	var req verifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Email == "" || len(req.Credential) == 0 {
		writeError(w, http.StatusBadRequest, "email and credential are required")
		return
	}

	response, err := protocol.ParseCredentialCreationResponseBytes(req.Credential)
	if err != nil {
		writeError(w, http.StatusBadRequest, "malformed credential")
		return
	}

	cred, err := s.engine.FinishRegistration(r.Context(), req.Email, response)
	if err != nil {
		s.logger.Warn("registration verification failed",
			slog.String("error", err.Error()))
		s.metrics.RecordCeremony("registration", "failure")
		writeCeremonyError(w, err)
		return
	}

	s.metrics.RecordCeremony("registration", "success")
	s.logger.Info("credential registered",
		slog.String("user", req.Email),
		slog.String("device_id", cred.DeviceID()))

	writeJSON(w, http.StatusOK, registerVerifyResponse{
		Status:   "registered",
		User:     req.Email,
		DeviceID: cred.DeviceID(),
	})
}

// handleLoginOptions serves GET /webauthn/login/options?email=...
// Absent identities and identities without credentials get the same 404.
func (s *Server) handleLoginOptions(w http.ResponseWriter, r *http.Request) {
	email := r.URL.Query().Get("email")
	if email == "" {
		writeError(w, http.StatusBadRequest, "email query parameter is required")
		return
	}

	options, err := s.engine.BeginLogin(r.Context(), email)
	if err != nil {
		if ceremony.IsNoCredentials(err) {
			writeError(w, http.StatusNotFound, "no passkeys registered")
			return
		}
		s.logger.Error("begin login failed", slog.String("error", err.Error()))
		writeLoginError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, options)
}

// handleLoginVerify serves POST /webauthn/login/verify. On success it sets
// the access and refresh cookies.
func (s *Server) handleLoginVerify(w http.ResponseWriter, r *http.Request) {
	var req verifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Email == "" || len(req.Credential) == 0 {
		writeError(w, http.StatusBadRequest, "email and credential are required")
		return
	}

	response, err := protocol.ParseCredentialRequestResponseBytes(req.Credential)
	if err != nil {
		writeError(w, http.StatusBadRequest, "malformed credential")
		return
	}

	cred, err := s.engine.FinishLogin(r.Context(), req.Email, response)
	if err != nil {
		s.logger.Warn("login verification failed",
			slog.String("error", err.Error()))
		s.metrics.RecordCeremony("login", "failure")
		writeLoginError(w, err)
		return
	}

	deviceID := cred.DeviceID()
	access, err := s.tokens.Mint(req.Email, deviceID, token.TypeAccess)
	if err != nil {
		s.logger.Error("minting access token failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	refresh, err := s.tokens.Mint(req.Email, deviceID, token.TypeRefresh)
	if err != nil {
		s.logger.Error("minting refresh token failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	s.setTokenCookie(w, accessCookieName, access, s.tokens.Lifetime(token.TypeAccess))
	s.setTokenCookie(w, refreshCookieName, refresh, s.tokens.Lifetime(token.TypeRefresh))

	s.metrics.RecordCeremony("login", "success")
	s.metrics.RecordTokenIssued(string(token.TypeAccess))
	s.metrics.RecordTokenIssued(string(token.TypeRefresh))
	s.logger.Info("login succeeded",
		slog.String("user", req.Email),
		slog.String("device_id", deviceID))

	writeJSON(w, http.StatusOK, loginVerifyResponse{
		Status:    "ok",
		User:      req.Email,
		DeviceID:  deviceID,
		LoginTime: time.Now().UTC(),
	})
}

// handleProtected serves GET /protected, demonstrating the authenticated
// request pattern.
func (s *Server) handleProtected(w http.ResponseWriter, r *http.Request) {
	claims := ClaimsFromContext(r.Context())
	if claims == nil {
		writeError(w, http.StatusUnauthorized, "missing access token")
		return
	}
	writeJSON(w, http.StatusOK, protectedResponse{
		Message: fmt.Sprintf("hello %s, you are authenticated", claims.Subject),
	})
}

// handleLogout serves POST /auth/logout. Tokens are stateless, so logout is
// purely a client-side cookie deletion.
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	s.clearCookie(w, accessCookieName)
	s.clearCookie(w, refreshCookieName)
	writeJSON(w, http.StatusOK, statusResponse{Status: "logged_out"})
}

// handleRefresh serves POST /auth/refresh: it exchanges the refresh cookie
// for a fresh access cookie. The refresh token is not rotated.
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie(refreshCookieName)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "missing refresh token")
		return
	}

	access, claims, err := s.tokens.Refresh(cookie.Value)
	if err != nil {
		writeTokenError(w, err)
		return
	}

	s.setTokenCookie(w, accessCookieName, access, s.tokens.Lifetime(token.TypeAccess))
	s.metrics.RecordTokenIssued(string(token.TypeAccess))

	writeJSON(w, http.StatusOK, refreshResponse{
		Status: "refreshed",
		User:   claims.Subject,
	})
}

// setTokenCookie writes an HTTP-only session cookie whose lifetime matches
// the token's.
func (s *Server) setTokenCookie(w http.ResponseWriter, name, value string, lifetime time.Duration) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		MaxAge:   int(lifetime.Seconds()),
		HttpOnly: true,
		Secure:   s.secureCookies,
		SameSite: http.SameSiteLaxMode,
	})
}

func (s *Server) clearCookie(w http.ResponseWriter, name string) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   s.secureCookies,
		SameSite: http.SameSiteLaxMode,
	})
}
