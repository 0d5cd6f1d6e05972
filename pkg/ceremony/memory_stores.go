// Copyright (c) 2025 The go-passkey Authors
//
// This file is part of go-passkey.
//
// Licensed under the MIT License. See the LICENSE file for details.

package ceremony

import (
	"bytes"
	"context"
	"encoding/hex"
	"sync"
	"time"
)

// MemoryUserStore is an in-memory implementation of UserStore. Suitable for
// development, testing, and single-process deployments; production setups can
// put a persistent keyed store behind the same interface.
type MemoryUserStore struct {
	mu    sync.RWMutex
	users map[string]*UserRecord
	// credOwner maps hex credential id to owning identity, enforcing global
	// credential id uniqueness.
	credOwner map[string]string
}

// NewMemoryUserStore creates a new in-memory user store.
func NewMemoryUserStore() *MemoryUserStore {
	return &MemoryUserStore{
		users:     make(map[string]*UserRecord),
		credOwner: make(map[string]string),
	}
}

// GetOrCreate returns the record for identity, creating it if absent.
func (s *MemoryUserStore) GetOrCreate(ctx context.Context, identity string) (*UserRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if user, ok := s.users[identity]; ok {
		return user.clone(), nil
	}

	user, err := NewUserRecord(identity)
	if err != nil {
		return nil, err
	}
	s.users[identity] = user
	return user.clone(), nil
}

// Get returns the record for identity without creating it.
func (s *MemoryUserStore) Get(ctx context.Context, identity string) (*UserRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, ok := s.users[identity]
	if !ok {
		return nil, ErrUserNotFound
	}
	return user.clone(), nil
}

// AppendCredential adds a credential to the identity's record.
func (s *MemoryUserStore) AppendCredential(ctx context.Context, identity string, cred *Credential) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.users[identity]
	if !ok {
		return ErrUserNotFound
	}

	credKey := hex.EncodeToString(cred.ID)
	if _, ok := s.credOwner[credKey]; ok {
		return ErrDuplicateCredential
	}

	cc := *cred
	cc.ID = append([]byte(nil), cred.ID...)
	cc.PublicKey = append([]byte(nil), cred.PublicKey...)
	user.Credentials = append(user.Credentials, &cc)
	s.credOwner[credKey] = identity

	return nil
}

// FindCredentialByID returns the identity's credential with the given id.
func (s *MemoryUserStore) FindCredentialByID(ctx context.Context, identity string, id []byte) (*Credential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, ok := s.users[identity]
	if !ok {
		return nil, ErrUnknownCredential
	}
	for _, c := range user.Credentials {
		if bytes.Equal(c.ID, id) {
			cc := *c
			cc.ID = append([]byte(nil), c.ID...)
			cc.PublicKey = append([]byte(nil), c.PublicKey...)
			return &cc, nil
		}
	}
	return nil, ErrUnknownCredential
}

// UpdateSignCount overwrites the stored sign count for one credential and
// stamps its last-used time. The whole update happens under the store lock.
func (s *MemoryUserStore) UpdateSignCount(ctx context.Context, identity string, id []byte, newCount uint32) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.users[identity]
	if !ok {
		return ErrUserNotFound
	}
	for _, c := range user.Credentials {
		if bytes.Equal(c.ID, id) {
			c.SignCount = newCount
			c.LastUsedAt = time.Now().UTC()
			return nil
		}
	}
	return ErrUnknownCredential
}

// Count returns the number of user records in the store.
func (s *MemoryUserStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.users)
}

// challengeKey addresses the single live challenge per identity and purpose.
type challengeKey struct {
	identity string
	purpose  Purpose
}

// MemoryChallengeStore is an in-memory implementation of ChallengeStore.
// A single mutex serializes all mutations, which makes Put followed by
// TakeAndRemove on the same key linearizable.
type MemoryChallengeStore struct {
	mu      sync.Mutex
	entries map[challengeKey]*Challenge
}

// NewMemoryChallengeStore creates a new in-memory challenge store.
func NewMemoryChallengeStore() *MemoryChallengeStore {
	return &MemoryChallengeStore{
		entries: make(map[challengeKey]*Challenge),
	}
}

// Put stores a challenge, superseding any existing entry for the key.
func (s *MemoryChallengeStore) Put(ctx context.Context, identity string, purpose Purpose, ch *Challenge) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries[challengeKey{identity, purpose}] = ch
	return nil
}

// TakeAndRemove returns the stored challenge and deletes it in the same step.
func (s *MemoryChallengeStore) TakeAndRemove(ctx context.Context, identity string, purpose Purpose) (*Challenge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := challengeKey{identity, purpose}
	ch, ok := s.entries[key]
	if !ok {
		return nil, ErrNoPendingChallenge
	}
	delete(s.entries, key)
	return ch, nil
}

// Count returns the number of pending challenges.
func (s *MemoryChallengeStore) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Cleanup removes challenges whose expiry has passed and returns how many
// were removed. Expired-but-unconsumed entries are otherwise harmless; this
// just bounds memory for ceremonies that were never finished.
func (s *MemoryChallengeStore) Cleanup(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for key, ch := range s.entries {
		if ch.Expired(now) {
			delete(s.entries, key)
			removed++
		}
	}
	return removed
}
