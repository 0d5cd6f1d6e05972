// Copyright (c) 2025 The go-passkey Authors
//
// This file is part of go-passkey.
//
// Licensed under the MIT License. See the LICENSE file for details.

package ceremony

import (
	"crypto/rand"
	"encoding/base64"
	"time"

	"github.com/go-webauthn/webauthn/protocol"
	"github.com/go-webauthn/webauthn/webauthn"
)

// Purpose identifies which ceremony a challenge belongs to. A registration
// challenge can never satisfy a login finish and vice versa.
type Purpose string

const (
	// PurposeRegistration marks challenges issued by BeginRegistration.
	PurposeRegistration Purpose = "registration"

	// PurposeLogin marks challenges issued by BeginLogin.
	PurposeLogin Purpose = "login"
)

// handleSize is the length of the random user handle in bytes.
const handleSize = 16

// Challenge is a pending single-use ceremony state. It wraps the session data
// the verifier needs (challenge bytes, allowed credential ids, user handle)
// together with an absolute expiry.
type Challenge struct {
	// Session is the verifier session captured at begin time.
	Session webauthn.SessionData

	// IssuedAt is when the challenge was created.
	IssuedAt time.Time

	// ExpiresAt is when the challenge stops being acceptable, even if it was
	// never superseded by a later begin.
	ExpiresAt time.Time
}

// Expired reports whether the challenge expiry has passed at the given time.
func (c *Challenge) Expired(now time.Time) bool {
	return now.After(c.ExpiresAt)
}

// Credential is one authenticator-bound key pair registered for a user.
type Credential struct {
	// ID is the credential identifier assigned by the authenticator.
	ID []byte `json:"id"`

	// PublicKey is the credential's public key in COSE format. The core never
	// interprets it; it is handed back to the verifier on each assertion.
	PublicKey []byte `json:"public_key"`

	// AttestationType indicates the type of attestation used at registration.
	AttestationType string `json:"attestation_type"`

	// Transport lists the transports supported by the authenticator.
	Transport []protocol.AuthenticatorTransport `json:"transport,omitempty"`

	// SignCount is the signature counter, monotonically non-decreasing.
	// Updated on every successful assertion; the strictly-greater check is
	// the replay/clone defense.
	SignCount uint32 `json:"sign_count"`

	// CreatedAt is when the credential was registered.
	CreatedAt time.Time `json:"created_at"`

	// LastUsedAt is when the credential last passed an assertion.
	LastUsedAt time.Time `json:"last_used_at,omitempty"`
}

// DeviceID returns the credential id in its wire form: unpadded base64url.
func (c *Credential) DeviceID() string {
	return base64.RawURLEncoding.EncodeToString(c.ID)
}

// ToWebAuthn converts a Credential to the verifier library's type.
func (c *Credential) ToWebAuthn() webauthn.Credential {
	return webauthn.Credential{
		ID:              c.ID,
		PublicKey:       c.PublicKey,
		AttestationType: c.AttestationType,
		Transport:       c.Transport,
		Authenticator: webauthn.Authenticator{
			SignCount: c.SignCount,
		},
	}
}

// newCredential creates a Credential from a freshly verified registration.
func newCredential(wc *webauthn.Credential, now time.Time) *Credential {
	return &Credential{
		ID:              wc.ID,
		PublicKey:       wc.PublicKey,
		AttestationType: wc.AttestationType,
		Transport:       wc.Transport,
		SignCount:       wc.Authenticator.SignCount,
		CreatedAt:       now,
	}
}

// UserRecord is the durable record for one identity: a stable random handle
// and the credentials registered against it. It satisfies webauthn.User so
// the verifier can build option sets directly from it.
type UserRecord struct {
	// Identity is the opaque user-facing key, typically an email address.
	Identity string `json:"identity"`

	// Handle is a fixed-length random byte string, stable for the lifetime of
	// the record and never reused across identities.
	Handle []byte `json:"handle"`

	// Credentials are the registered credentials, in registration order.
	Credentials []*Credential `json:"credentials"`
}

// NewUserRecord creates a record with a fresh random handle and no credentials.
func NewUserRecord(identity string) (*UserRecord, error) {
	handle := make([]byte, handleSize)
	if _, err := rand.Read(handle); err != nil {
		return nil, wrapError("generate user handle", err)
	}
	return &UserRecord{
		Identity:    identity,
		Handle:      handle,
		Credentials: make([]*Credential, 0),
	}, nil
}

// WebAuthnID returns the user handle.
func (u *UserRecord) WebAuthnID() []byte {
	return u.Handle
}

// WebAuthnName returns the identity.
func (u *UserRecord) WebAuthnName() string {
	return u.Identity
}

// WebAuthnDisplayName returns the identity; no separate display name is kept.
func (u *UserRecord) WebAuthnDisplayName() string {
	return u.Identity
}

// WebAuthnCredentials returns the registered credentials in verifier form.
func (u *UserRecord) WebAuthnCredentials() []webauthn.Credential {
	creds := make([]webauthn.Credential, len(u.Credentials))
	for i, c := range u.Credentials {
		creds[i] = c.ToWebAuthn()
	}
	return creds
}

// clone returns a deep copy so callers never share credential structs with
// the store's copy.
func (u *UserRecord) clone() *UserRecord {
	creds := make([]*Credential, len(u.Credentials))
	for i, c := range u.Credentials {
		cc := *c
		cc.ID = append([]byte(nil), c.ID...)
		cc.PublicKey = append([]byte(nil), c.PublicKey...)
		creds[i] = &cc
	}
	return &UserRecord{
		Identity:    u.Identity,
		Handle:      append([]byte(nil), u.Handle...),
		Credentials: creds,
	}
}
