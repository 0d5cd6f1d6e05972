// Copyright (c) 2025 The go-passkey Authors
//
// This file is part of go-passkey.
//
// Licensed under the MIT License. See the LICENSE file for details.

package ceremony

import (
	"errors"
	"fmt"
)

// Sentinel errors for ceremony operations.
var (
	// ErrUserNotFound is returned when an identity has no user record.
	ErrUserNotFound = errors.New("user not found")

	// ErrNoPendingChallenge is returned when a finish call finds no stored
	// challenge for the (identity, purpose) pair.
	ErrNoPendingChallenge = errors.New("no pending challenge")

	// ErrChallengeExpired is returned when a challenge was still stored but
	// its expiry has passed. The challenge is consumed regardless.
	ErrChallengeExpired = errors.New("challenge expired")

	// ErrNoRegisteredCredentials is returned by BeginLogin for both unknown
	// identities and identities without credentials. Callers must not be able
	// to tell the two cases apart.
	ErrNoRegisteredCredentials = errors.New("no registered credentials")

	// ErrUnknownCredential is returned when an assertion claims a credential
	// id that is not registered for the identity.
	ErrUnknownCredential = errors.New("unknown credential")

	// ErrAttestationFailed is returned when registration verification fails.
	ErrAttestationFailed = errors.New("attestation verification failed")

	// ErrAssertionFailed is returned when authentication verification fails.
	ErrAssertionFailed = errors.New("assertion verification failed")

	// ErrClonedAuthenticator is returned when an assertion carries a sign
	// count that did not increase, indicating a cloned authenticator or a
	// replayed response.
	ErrClonedAuthenticator = errors.New("cloned authenticator detected")

	// ErrDuplicateCredential is returned when a registration produces a
	// credential id that already exists.
	ErrDuplicateCredential = errors.New("credential already registered")
)

// Error wraps an error with the operation that produced it.
type Error struct {
	Op  string // Operation that failed
	Err error  // Underlying error
}

// Error returns the error message.
func (e *Error) Error() string {
	if e.Op != "" {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return e.Err.Error()
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether the target error matches.
func (e *Error) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// wrapError wraps an error with an operation name if it's not nil.
func wrapError(op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Op: op, Err: err}
}

// IsNoPendingChallenge returns true if the error indicates a missing challenge.
func IsNoPendingChallenge(err error) bool {
	return errors.Is(err, ErrNoPendingChallenge)
}

// IsNoCredentials returns true if the error indicates the identity cannot
// log in because it has no registered credentials.
func IsNoCredentials(err error) bool {
	return errors.Is(err, ErrNoRegisteredCredentials)
}

// IsVerificationFailure returns true for attestation, assertion and clone
// detection failures.
func IsVerificationFailure(err error) bool {
	return errors.Is(err, ErrAttestationFailed) ||
		errors.Is(err, ErrAssertionFailed) ||
		errors.Is(err, ErrClonedAuthenticator)
}
