// Copyright (c) 2025 The go-passkey Authors
//
// This file is part of go-passkey.
//
// Licensed under the MIT License. See the LICENSE file for details.

package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordHTTPRequest(t *testing.T) {
	m := New()

	m.RecordHTTPRequest(http.MethodGet, "/webauthn/login/options", "200", 0.05)
	m.RecordHTTPRequest(http.MethodGet, "/webauthn/login/options", "200", 0.10)
	m.RecordHTTPRequest(http.MethodPost, "/webauthn/login/verify", "401", 0.01)

	count := testutil.ToFloat64(m.httpRequestsTotal.WithLabelValues(http.MethodGet, "/webauthn/login/options", "200"))
	assert.Equal(t, float64(2), count)

	count = testutil.ToFloat64(m.httpRequestsTotal.WithLabelValues(http.MethodPost, "/webauthn/login/verify", "401"))
	assert.Equal(t, float64(1), count)
}

func TestRecordCeremonyAndTokens(t *testing.T) {
	m := New()

	m.RecordCeremony("registration", "success")
	m.RecordCeremony("login", "failure")
	m.RecordTokenIssued("access")
	m.RecordTokenIssued("access")
	m.RecordTokenIssued("refresh")

	assert.Equal(t, float64(1), testutil.ToFloat64(m.ceremoniesTotal.WithLabelValues("registration", "success")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.ceremoniesTotal.WithLabelValues("login", "failure")))
	assert.Equal(t, float64(2), testutil.ToFloat64(m.tokensIssuedTotal.WithLabelValues("access")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.tokensIssuedTotal.WithLabelValues("refresh")))
}

func TestMiddleware(t *testing.T) {
	m := New()

	handler := Middleware(m)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
	}))

	req := httptest.NewRequest(http.MethodPost, "/webauthn/register/verify", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	count := testutil.ToFloat64(m.httpRequestsTotal.WithLabelValues(http.MethodPost, "/webauthn/register/verify", "201"))
	assert.Equal(t, float64(1), count)
}

func TestMiddleware_DefaultStatus(t *testing.T) {
	m := New()

	handler := Middleware(m)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/protected", nil))

	count := testutil.ToFloat64(m.httpRequestsTotal.WithLabelValues(http.MethodGet, "/protected", "200"))
	assert.Equal(t, float64(1), count)
}

func TestHandler(t *testing.T) {
	m := New()
	m.RecordTokenIssued("access")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "passkey_tokens_issued_total")
}
