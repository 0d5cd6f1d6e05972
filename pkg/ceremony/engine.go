// Copyright (c) 2025 The go-passkey Authors
//
// This file is part of go-passkey.
//
// Licensed under the MIT License. See the LICENSE file for details.

package ceremony

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-webauthn/webauthn/protocol"
	"github.com/go-webauthn/webauthn/webauthn"
)

// Engine runs WebAuthn registration and authentication ceremonies: it builds
// option sets, tracks single-use challenges, and interprets the verifier's
// results. The signature and attestation math lives in go-webauthn; the
// engine owns the state machine around it.
//
// Per (identity, purpose) the state machine is
//
//	NoChallenge -> Pending (begin) -> NoChallenge (finish, success or failure)
//
// A failed finish requires a fresh begin; there is no retry within a ceremony.
type Engine struct {
	wa         *webauthn.WebAuthn
	config     *Config
	users      UserStore
	challenges ChallengeStore
	now        func() time.Time
}

// EngineParams contains dependencies for creating an Engine.
type EngineParams struct {
	// Config is the relying-party configuration (required).
	Config *Config

	// Users is the user/credential persistence layer (required).
	Users UserStore

	// Challenges is the pending-challenge store (required).
	Challenges ChallengeStore
}

// NewEngine creates a ceremony engine with the provided dependencies.
func NewEngine(params EngineParams) (*Engine, error) {
	if params.Config == nil {
		return nil, fmt.Errorf("config is required")
	}
	if params.Users == nil {
		return nil, fmt.Errorf("user store is required")
	}
	if params.Challenges == nil {
		return nil, fmt.Errorf("challenge store is required")
	}

	params.Config.SetDefaults()
	if err := params.Config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	wa, err := webauthn.New(params.Config.toWebAuthnConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to create webauthn instance: %w", err)
	}

	return &Engine{
		wa:         wa,
		config:     params.Config,
		users:      params.Users,
		challenges: params.Challenges,
		now:        time.Now,
	}, nil
}

// Config returns the engine configuration.
func (e *Engine) Config() *Config {
	return e.config
}

// BeginRegistration starts the registration ceremony for an identity.
// Unknown identities get a fresh user record. Already-registered credential
// ids go on the exclusion list so the same authenticator cannot be registered
// twice as a "new" device. The issued challenge supersedes any prior
// unconsumed registration challenge for the identity.
func (e *Engine) BeginRegistration(ctx context.Context, identity string) (*protocol.CredentialCreation, error) {
	user, err := e.users.GetOrCreate(ctx, identity)
	if err != nil {
		return nil, wrapError("get or create user", err)
	}

	exclusions := make([]protocol.CredentialDescriptor, len(user.Credentials))
	for i, cred := range user.Credentials {
		exclusions[i] = protocol.CredentialDescriptor{
			Type:         protocol.PublicKeyCredentialType,
			CredentialID: cred.ID,
			Transport:    cred.Transport,
		}
	}

	options, session, err := e.wa.BeginRegistration(user, webauthn.WithExclusions(exclusions))
	if err != nil {
		return nil, wrapError("begin registration", err)
	}

	if err := e.challenges.Put(ctx, identity, PurposeRegistration, e.newChallenge(session)); err != nil {
		return nil, wrapError("store challenge", err)
	}

	return options, nil
}

// FinishRegistration completes the registration ceremony. The pending
// challenge is consumed whether or not verification succeeds. On success the
// new credential is appended to the identity's record and returned.
func (e *Engine) FinishRegistration(ctx context.Context, identity string, response *protocol.ParsedCredentialCreationData) (*Credential, error) {
	challenge, err := e.takeChallenge(ctx, identity, PurposeRegistration)
	if err != nil {
		return nil, err
	}

	user, err := e.users.Get(ctx, identity)
	if err != nil {
		return nil, wrapError("get user", err)
	}

	wc, err := e.wa.CreateCredential(user, challenge.Session, response)
	if err != nil {
		return nil, wrapError("create credential", fmt.Errorf("%w: %v", ErrAttestationFailed, err))
	}

	cred := newCredential(wc, e.now().UTC())
	if err := e.users.AppendCredential(ctx, identity, cred); err != nil {
		return nil, wrapError("append credential", err)
	}

	return cred, nil
}

// BeginLogin starts the authentication ceremony for an identity. Unknown
// identities and identities without credentials produce the same
// ErrNoRegisteredCredentials so callers cannot enumerate accounts. The
// issued challenge supersedes any prior unconsumed login challenge.
func (e *Engine) BeginLogin(ctx context.Context, identity string) (*protocol.CredentialAssertion, error) {
	user, err := e.users.Get(ctx, identity)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, ErrNoRegisteredCredentials
		}
		return nil, wrapError("get user", err)
	}
	if len(user.Credentials) == 0 {
		return nil, ErrNoRegisteredCredentials
	}

	options, session, err := e.wa.BeginLogin(user)
	if err != nil {
		return nil, wrapError("begin login", err)
	}

	if err := e.challenges.Put(ctx, identity, PurposeLogin, e.newChallenge(session)); err != nil {
		return nil, wrapError("store challenge", err)
	}

	return options, nil
}

// FinishLogin completes the authentication ceremony. The pending challenge is
// consumed whether or not verification succeeds. A sign count that did not
// strictly increase fails with ErrClonedAuthenticator; on success the stored
// count is overwritten with the asserted value before returning, since the
// counter is the only defense against replay across separate ceremonies.
// Returns the matched credential, whose DeviceID identifies the device for
// token issuance.
func (e *Engine) FinishLogin(ctx context.Context, identity string, response *protocol.ParsedCredentialAssertionData) (*Credential, error) {
	challenge, err := e.takeChallenge(ctx, identity, PurposeLogin)
	if err != nil {
		return nil, err
	}

	user, err := e.users.Get(ctx, identity)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, ErrNoRegisteredCredentials
		}
		return nil, wrapError("get user", err)
	}

	cred, err := e.users.FindCredentialByID(ctx, identity, response.RawID)
	if err != nil {
		return nil, wrapError("find credential", err)
	}

	wc, err := e.wa.ValidateLogin(user, challenge.Session, response)
	if err != nil {
		return nil, wrapError("validate login", fmt.Errorf("%w: %v", ErrAssertionFailed, err))
	}
	if wc.Authenticator.CloneWarning {
		return nil, wrapError("validate login", ErrClonedAuthenticator)
	}

	if err := e.users.UpdateSignCount(ctx, identity, wc.ID, wc.Authenticator.SignCount); err != nil {
		return nil, wrapError("update sign count", err)
	}

	cred.SignCount = wc.Authenticator.SignCount
	return cred, nil
}

// takeChallenge consumes the pending challenge for the key. Expired entries
// are consumed too but reported as ErrChallengeExpired.
func (e *Engine) takeChallenge(ctx context.Context, identity string, purpose Purpose) (*Challenge, error) {
	challenge, err := e.challenges.TakeAndRemove(ctx, identity, purpose)
	if err != nil {
		if errors.Is(err, ErrNoPendingChallenge) {
			return nil, ErrNoPendingChallenge
		}
		return nil, wrapError("take challenge", err)
	}
	if challenge.Expired(e.now()) {
		return nil, ErrChallengeExpired
	}
	return challenge, nil
}

// newChallenge wraps verifier session data with the configured expiry.
func (e *Engine) newChallenge(session *webauthn.SessionData) *Challenge {
	now := e.now()
	return &Challenge{
		Session:   *session,
		IssuedAt:  now,
		ExpiresAt: now.Add(e.config.ChallengeTTL),
	}
}
