// Copyright (c) 2025 The go-passkey Authors
//
// This file is part of go-passkey.
//
// Licensed under the MIT License. See the LICENSE file for details.

package rest

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/passkeydev/go-passkey/pkg/ceremony"
	"github.com/passkeydev/go-passkey/pkg/token"
)

// errorResponse is the JSON body for failed requests.
type errorResponse struct {
	Error string `json:"error"`
}

// genericLoginFailure is the single message for every login verification
// failure. Unknown identity, unknown credential, and bad signatures must be
// indistinguishable to the caller, otherwise the endpoint leaks which
// accounts exist.
const genericLoginFailure = "authentication failed"

func writeJSON(w http.ResponseWriter, code int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, code int, message string) {
	writeJSON(w, code, errorResponse{Error: message})
}

// writeCeremonyError maps registration ceremony errors to HTTP responses.
func writeCeremonyError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ceremony.ErrNoPendingChallenge):
		writeError(w, http.StatusBadRequest, "no pending challenge; restart the ceremony")
	case errors.Is(err, ceremony.ErrChallengeExpired):
		writeError(w, http.StatusBadRequest, "challenge expired; restart the ceremony")
	case errors.Is(err, ceremony.ErrDuplicateCredential):
		writeError(w, http.StatusConflict, "credential already registered")
	case errors.Is(err, ceremony.ErrAttestationFailed):
		writeError(w, http.StatusBadRequest, "attestation verification failed")
	default:
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

// writeLoginError maps login ceremony errors to HTTP responses, collapsing
// every verification failure into one generic message.
func writeLoginError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ceremony.ErrNoPendingChallenge):
		writeError(w, http.StatusBadRequest, "no pending challenge; restart the ceremony")
	case errors.Is(err, ceremony.ErrChallengeExpired):
		writeError(w, http.StatusBadRequest, "challenge expired; restart the ceremony")
	case errors.Is(err, ceremony.ErrUnknownCredential),
		errors.Is(err, ceremony.ErrNoRegisteredCredentials),
		ceremony.IsVerificationFailure(err):
		writeError(w, http.StatusUnauthorized, genericLoginFailure)
	default:
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

// writeTokenError maps token verification errors to HTTP responses.
func writeTokenError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, token.ErrTokenExpired):
		writeError(w, http.StatusUnauthorized, "token expired")
	case errors.Is(err, token.ErrWrongTokenType):
		writeError(w, http.StatusUnauthorized, "wrong token type")
	case errors.Is(err, token.ErrTokenInvalid):
		writeError(w, http.StatusUnauthorized, "invalid token")
	default:
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
