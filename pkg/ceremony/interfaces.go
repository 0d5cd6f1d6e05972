// Copyright (c) 2025 The go-passkey Authors
//
// This file is part of go-passkey.
//
// Licensed under the MIT License. See the LICENSE file for details.

package ceremony

import "context"

// UserStore persists user records and their credentials. All mutations are
// keyed by identity; implementations must apply them atomically per identity
// and keep credential ids globally unique on a best-effort basis.
type UserStore interface {
	// GetOrCreate returns the record for identity, creating one with a fresh
	// random handle and no credentials if it does not exist.
	GetOrCreate(ctx context.Context, identity string) (*UserRecord, error)

	// Get returns the record for identity without creating it.
	// Returns ErrUserNotFound if the identity is unknown.
	Get(ctx context.Context, identity string) (*UserRecord, error)

	// AppendCredential adds a credential to the identity's record.
	// Returns ErrDuplicateCredential if the credential id already exists for
	// any identity, and ErrUserNotFound if the identity is unknown.
	AppendCredential(ctx context.Context, identity string, cred *Credential) error

	// FindCredentialByID returns the identity's credential with the given id.
	// Returns ErrUnknownCredential if no such credential is registered.
	FindCredentialByID(ctx context.Context, identity string, id []byte) (*Credential, error)

	// UpdateSignCount overwrites the stored sign count for one credential.
	// The update must be atomic with respect to other updates on the same
	// credential and visible to any subsequent read.
	UpdateSignCount(ctx context.Context, identity string, id []byte, newCount uint32) error
}

// ChallengeStore holds at most one pending challenge per (identity, purpose).
// Implementations must serialize Put and TakeAndRemove on the same key so a
// begin cannot race a finish that is mid-way through consuming, and two
// concurrent finishes cannot both obtain the same challenge.
type ChallengeStore interface {
	// Put stores a challenge, overwriting any existing entry for the key.
	Put(ctx context.Context, identity string, purpose Purpose, ch *Challenge) error

	// TakeAndRemove returns the stored challenge and atomically deletes it.
	// Returns ErrNoPendingChallenge when no entry exists. A challenge is
	// never read without being removed in the same step.
	TakeAndRemove(ctx context.Context, identity string, purpose Purpose) (*Challenge, error)
}
