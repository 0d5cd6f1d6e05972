// Copyright (c) 2025 The go-passkey Authors
//
// This file is part of go-passkey.
//
// Licensed under the MIT License. See the LICENSE file for details.

package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLimiter_Disabled(t *testing.T) {
	limiter := New(nil)
	defer limiter.Stop()

	assert.False(t, limiter.IsEnabled())
	for i := 0; i < 100; i++ {
		assert.True(t, limiter.Allow("client"))
	}
}

func TestLimiter_AllowWithinBurst(t *testing.T) {
	limiter := New(&Config{Enabled: true, RequestsPerMinute: 60, Burst: 3})
	defer limiter.Stop()

	assert.True(t, limiter.Allow("client"))
	assert.True(t, limiter.Allow("client"))
	assert.True(t, limiter.Allow("client"))
	assert.False(t, limiter.Allow("client"))
}

func TestLimiter_PerClientBuckets(t *testing.T) {
	limiter := New(&Config{Enabled: true, RequestsPerMinute: 60, Burst: 1})
	defer limiter.Stop()

	assert.True(t, limiter.Allow("a"))
	assert.False(t, limiter.Allow("a"))

	// A different client has its own bucket
	assert.True(t, limiter.Allow("b"))
	assert.Equal(t, 2, limiter.ActiveClients())
}

func TestLimiter_Cleanup(t *testing.T) {
	limiter := New(&Config{
		Enabled:           true,
		RequestsPerMinute: 60,
		CleanupInterval:   time.Hour,
		MaxIdle:           time.Millisecond,
	})
	defer limiter.Stop()

	limiter.Allow("idle-client")
	require.Equal(t, 1, limiter.ActiveClients())

	time.Sleep(5 * time.Millisecond)
	limiter.cleanup()
	assert.Equal(t, 0, limiter.ActiveClients())
}

func TestLimiter_StopTwice(t *testing.T) {
	limiter := New(&Config{Enabled: true, RequestsPerMinute: 60})
	limiter.Stop()
	limiter.Stop()
}

func TestMiddleware(t *testing.T) {
	limiter := New(&Config{Enabled: true, RequestsPerMinute: 60, Burst: 1})
	defer limiter.Stop()

	handler := Middleware(limiter)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.1:1234"

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Body.String(), "rate limit exceeded")
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		name    string
		headers map[string]string
		remote  string
		want    string
	}{
		{
			name:   "remote addr fallback",
			remote: "192.0.2.1:5000",
			want:   "192.0.2.1:5000",
		},
		{
			name:    "x-real-ip",
			headers: map[string]string{"X-Real-IP": "203.0.113.9"},
			remote:  "10.0.0.1:1234",
			want:    "203.0.113.9",
		},
		{
			name:    "x-forwarded-for single",
			headers: map[string]string{"X-Forwarded-For": "203.0.113.7"},
			remote:  "10.0.0.1:1234",
			want:    "203.0.113.7",
		},
		{
			name:    "x-forwarded-for chain takes first",
			headers: map[string]string{"X-Forwarded-For": "203.0.113.7, 10.0.0.2"},
			remote:  "10.0.0.1:1234",
			want:    "203.0.113.7",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remote
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			assert.Equal(t, tt.want, clientIP(req))
		})
	}
}
