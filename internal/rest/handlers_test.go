// Copyright (c) 2025 The go-passkey Authors
//
// This file is part of go-passkey.
//
// Licensed under the MIT License. See the LICENSE file for details.

package rest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/descope/virtualwebauthn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/passkeydev/go-passkey/pkg/ceremony"
	"github.com/passkeydev/go-passkey/pkg/token"
)

const (
	testRPID   = "localhost"
	testOrigin = "http://localhost:8080"
)

// apiFixture drives the full HTTP API with a virtual authenticator.
type apiFixture struct {
	server        *Server
	rp            virtualwebauthn.RelyingParty
	authenticator virtualwebauthn.Authenticator
	credential    virtualwebauthn.Credential
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()

	engine, err := ceremony.NewEngine(ceremony.EngineParams{
		Config: &ceremony.Config{
			RPID:          testRPID,
			RPDisplayName: "Passkey Test",
			RPOrigins:     []string{testOrigin},
		},
		Users:      ceremony.NewMemoryUserStore(),
		Challenges: ceremony.NewMemoryChallengeStore(),
	})
	require.NoError(t, err)

	tokens, err := token.NewService(&token.Config{
		Secret: []byte("test-secret-at-least-32-bytes-ok"),
	})
	require.NoError(t, err)

	server, err := NewServer(&Config{
		Engine:      engine,
		Tokens:      tokens,
		MetricsPath: "/metrics",
	})
	require.NoError(t, err)

	return &apiFixture{
		server: server,
		rp: virtualwebauthn.RelyingParty{
			Name:   "Passkey Test",
			ID:     testRPID,
			Origin: testOrigin,
		},
		authenticator: virtualwebauthn.NewAuthenticator(),
		credential:    virtualwebauthn.NewCredential(virtualwebauthn.KeyTypeEC2),
	}
}

func (f *apiFixture) do(t *testing.T, method, path, body string, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, req)
	return rec
}

// register runs the full registration flow over HTTP.
func (f *apiFixture) register(t *testing.T, email string) {
	t.Helper()

	rec := f.do(t, http.MethodGet, "/webauthn/register/options?email="+url.QueryEscape(email), "")
	require.Equal(t, http.StatusOK, rec.Code)

	parsedOptions, err := virtualwebauthn.ParseAttestationOptions(rec.Body.String())
	require.NoError(t, err)

	attestation := virtualwebauthn.CreateAttestationResponse(f.rp, f.authenticator, f.credential, *parsedOptions)
	body := fmt.Sprintf(`{"email":%q,"credential":%s}`, email, attestation)

	rec = f.do(t, http.MethodPost, "/webauthn/register/verify", body)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	f.authenticator.AddCredential(f.credential)
}

// login runs the full login flow over HTTP and returns the response cookies.
func (f *apiFixture) login(t *testing.T, email string) (*httptest.ResponseRecorder, []*http.Cookie) {
	t.Helper()

	rec := f.do(t, http.MethodGet, "/webauthn/login/options?email="+url.QueryEscape(email), "")
	require.Equal(t, http.StatusOK, rec.Code)

	parsedOptions, err := virtualwebauthn.ParseAssertionOptions(rec.Body.String())
	require.NoError(t, err)

	f.credential.Counter++
	assertion := virtualwebauthn.CreateAssertionResponse(f.rp, f.authenticator, f.credential, *parsedOptions)
	body := fmt.Sprintf(`{"email":%q,"credential":%s}`, email, assertion)

	rec = f.do(t, http.MethodPost, "/webauthn/login/verify", body)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	return rec, rec.Result().Cookies()
}

func cookieByName(cookies []*http.Cookie, name string) *http.Cookie {
	for _, c := range cookies {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func TestRegisterOptions_MissingEmail(t *testing.T) {
	f := newAPIFixture(t)
	rec := f.do(t, http.MethodGet, "/webauthn/register/options", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRegisterVerify_BadBody(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(t, http.MethodPost, "/webauthn/register/verify", "not json")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodPost, "/webauthn/register/verify", `{"email":"a@x.com"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRegisterVerify_MalformedCredential(t *testing.T) {
	f := newAPIFixture(t)

	body := `{"email":"a@x.com","credential":{"id":"x","rawId":"eA","type":"public-key","response":{}}}`
	rec := f.do(t, http.MethodPost, "/webauthn/register/verify", body)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRegistrationFlow(t *testing.T) {
	f := newAPIFixture(t)
	f.register(t, "user@example.com")

	// Options for the same identity now carry an exclusion list
	rec := f.do(t, http.MethodGet, "/webauthn/register/options?email=user@example.com", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "excludeCredentials")
}

func TestLoginOptions_UnknownIdentity(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(t, http.MethodGet, "/webauthn/login/options?email=ghost@example.com", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "no passkeys registered")
}

func TestLoginOptions_NoCredentials(t *testing.T) {
	f := newAPIFixture(t)

	// Begin registration creates the record but registers nothing
	rec := f.do(t, http.MethodGet, "/webauthn/register/options?email=empty@example.com", "")
	require.Equal(t, http.StatusOK, rec.Code)

	// Identical failure to the unknown identity case
	rec = f.do(t, http.MethodGet, "/webauthn/login/options?email=empty@example.com", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "no passkeys registered")
}

func TestLoginFlow_CookiesAndResponse(t *testing.T) {
	f := newAPIFixture(t)
	f.register(t, "user@example.com")

	rec, cookies := f.login(t, "user@example.com")

	var resp loginVerifyResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "user@example.com", resp.User)
	assert.NotEmpty(t, resp.DeviceID)
	assert.WithinDuration(t, time.Now(), resp.LoginTime, time.Minute)

	access := cookieByName(cookies, "access_token")
	require.NotNil(t, access)
	assert.Equal(t, 900, access.MaxAge)
	assert.True(t, access.HttpOnly)
	assert.Equal(t, http.SameSiteLaxMode, access.SameSite)

	refresh := cookieByName(cookies, "refresh_token")
	require.NotNil(t, refresh)
	assert.Equal(t, 432000, refresh.MaxAge)
	assert.True(t, refresh.HttpOnly)
}

func TestLoginVerify_WrongAuthenticator(t *testing.T) {
	f := newAPIFixture(t)
	f.register(t, "user@example.com")

	rec := f.do(t, http.MethodGet, "/webauthn/login/options?email=user@example.com", "")
	require.Equal(t, http.StatusOK, rec.Code)

	parsedOptions, err := virtualwebauthn.ParseAssertionOptions(rec.Body.String())
	require.NoError(t, err)

	// Assert with a key that was never registered
	rogue := virtualwebauthn.NewCredential(virtualwebauthn.KeyTypeEC2)
	assertion := virtualwebauthn.CreateAssertionResponse(f.rp, f.authenticator, rogue, *parsedOptions)
	body := fmt.Sprintf(`{"email":"user@example.com","credential":%s}`, assertion)

	rec = f.do(t, http.MethodPost, "/webauthn/login/verify", body)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "authentication failed")
}

func TestProtected(t *testing.T) {
	f := newAPIFixture(t)
	f.register(t, "user@example.com")
	_, cookies := f.login(t, "user@example.com")

	// Without the cookie
	rec := f.do(t, http.MethodGet, "/protected", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// With the access cookie
	rec = f.do(t, http.MethodGet, "/protected", "", cookieByName(cookies, "access_token"))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "user@example.com")

	// A refresh token is not an access token
	rec = f.do(t, http.MethodGet, "/protected", "", &http.Cookie{
		Name:  "access_token",
		Value: cookieByName(cookies, "refresh_token").Value,
	})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRefresh(t *testing.T) {
	f := newAPIFixture(t)
	f.register(t, "user@example.com")
	_, cookies := f.login(t, "user@example.com")

	rec := f.do(t, http.MethodPost, "/auth/refresh", "", cookieByName(cookies, "refresh_token"))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp refreshResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "refreshed", resp.Status)
	assert.Equal(t, "user@example.com", resp.User)

	access := cookieByName(rec.Result().Cookies(), "access_token")
	require.NotNil(t, access)
	assert.Equal(t, 900, access.MaxAge)
	assert.NotEmpty(t, access.Value)
}

func TestRefresh_MissingCookie(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(t, http.MethodPost, "/auth/refresh", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "missing refresh token")
}

func TestRefresh_RejectsAccessToken(t *testing.T) {
	f := newAPIFixture(t)
	f.register(t, "user@example.com")
	_, cookies := f.login(t, "user@example.com")

	rec := f.do(t, http.MethodPost, "/auth/refresh", "", &http.Cookie{
		Name:  "refresh_token",
		Value: cookieByName(cookies, "access_token").Value,
	})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "wrong token type")
}

func TestLogout(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(t, http.MethodPost, "/auth/logout", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "logged_out")

	for _, name := range []string{"access_token", "refresh_token"} {
		c := cookieByName(rec.Result().Cookies(), name)
		require.NotNil(t, c, name)
		assert.Equal(t, -1, c.MaxAge)
		assert.Empty(t, c.Value)
	}
}

func TestHealthEndpoints(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(t, http.MethodGet, "/health/live", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, http.MethodGet, "/health/ready", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	f := newAPIFixture(t)
	f.register(t, "user@example.com")

	rec := f.do(t, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "passkey_http_requests_total")
	assert.Contains(t, rec.Body.String(), "passkey_ceremonies_total")
}

func TestNewServer_Validation(t *testing.T) {
	_, err := NewServer(nil)
	require.Error(t, err)

	_, err = NewServer(&Config{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ceremony engine is required")
}
