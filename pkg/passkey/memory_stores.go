// Copyright (c) 2026 Meridian Press Digital
//
// This file is part of go-passkey.
//
// go-passkey is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@meridianpress.com for commercial licensing options.

package passkey

import (
	"context"
	"encoding/hex"
	"sync"
	"time"

	"github.com/go-webauthn/webauthn/webauthn"
)

// MemoryChallengeStore is an in-memory ChallengeStore. Suitable for tests
// and single-instance deployments; a multi-instance deployment needs a
// shared store (see redisstore) so a finish call can land on any instance.
type MemoryChallengeStore struct {
	mu      sync.Mutex
	entries map[string]*challengeEntry
}

type challengeEntry struct {
	session   *webauthn.SessionData
	expiresAt time.Time
}

// NewMemoryChallengeStore creates a new in-memory challenge store.
func NewMemoryChallengeStore() *MemoryChallengeStore {
	return &MemoryChallengeStore{
		entries: make(map[string]*challengeEntry),
	}
}

func challengeKey(userID []byte, kind CeremonyKind) string {
	return hex.EncodeToString(userID) + "|" + string(kind)
}

// Put stores the session under (userID, kind), overwriting any prior entry.
func (s *MemoryChallengeStore) Put(ctx context.Context, userID []byte, kind CeremonyKind, session *webauthn.SessionData, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries[challengeKey(userID, kind)] = &challengeEntry{
		session:   session,
		expiresAt: time.Now().Add(ttl),
	}
	return nil
}

// TakeAndDelete atomically consumes the stored session. Expiry is checked
// lazily on read; no sweep goroutine is needed for correctness.
func (s *MemoryChallengeStore) TakeAndDelete(ctx context.Context, userID []byte, kind CeremonyKind) (*webauthn.SessionData, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := challengeKey(userID, kind)
	entry, ok := s.entries[key]
	if !ok {
		return nil, ErrChallengeNotFound
	}
	delete(s.entries, key)

	if time.Now().After(entry.expiresAt) {
		return nil, ErrChallengeNotFound
	}
	return entry.session, nil
}

// Count returns the number of live (possibly expired, unswept) entries.
func (s *MemoryChallengeStore) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Sweep removes expired entries and returns how many were removed. Memory
// hygiene only; TakeAndDelete already treats expired entries as absent.
func (s *MemoryChallengeStore) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	removed := 0
	for key, entry := range s.entries {
		if now.After(entry.expiresAt) {
			delete(s.entries, key)
			removed++
		}
	}
	return removed
}

// MemoryCredentialStore is an in-memory CredentialStore. Suitable for tests
// and development; production deployments persist credentials (see
// sqlitestore) so registrations survive restarts.
type MemoryCredentialStore struct {
	mu       sync.RWMutex
	byID     map[string]*Credential
	byUserID map[string][]*Credential
}

// NewMemoryCredentialStore creates a new in-memory credential store.
func NewMemoryCredentialStore() *MemoryCredentialStore {
	return &MemoryCredentialStore{
		byID:     make(map[string]*Credential),
		byUserID: make(map[string][]*Credential),
	}
}

// Append stores a newly registered credential. The ID index is global, so a
// credential registered by one user can never be re-registered by another.
func (s *MemoryCredentialStore) Append(ctx context.Context, cred *Credential) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	credKey := hex.EncodeToString(cred.ID)
	if _, ok := s.byID[credKey]; ok {
		return ErrDuplicateCredential
	}

	stored := *cred
	userKey := hex.EncodeToString(cred.UserID)
	s.byID[credKey] = &stored
	s.byUserID[userKey] = append(s.byUserID[userKey], &stored)
	return nil
}

// List returns all credentials for a user.
func (s *MemoryCredentialStore) List(ctx context.Context, userID []byte) ([]*Credential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	creds := s.byUserID[hex.EncodeToString(userID)]
	result := make([]*Credential, len(creds))
	for i, c := range creds {
		copied := *c
		result[i] = &copied
	}
	return result, nil
}

// Get returns the user's credential with the given ID.
func (s *MemoryCredentialStore) Get(ctx context.Context, userID, credID []byte) (*Credential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cred, err := s.lookup(userID, credID)
	if err != nil {
		return nil, err
	}
	copied := *cred
	return &copied, nil
}

// UpdateCounter advances the signature counter via compare-and-swap.
func (s *MemoryCredentialStore) UpdateCounter(ctx context.Context, userID, credID []byte, oldCount, newCount uint32, usedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cred, err := s.lookup(userID, credID)
	if err != nil {
		return err
	}
	if cred.Authenticator.SignCount != oldCount {
		return ErrCounterConflict
	}
	cred.Authenticator.SignCount = newCount
	cred.LastUsedAt = usedAt
	return nil
}

// Flag marks the credential with a clone warning.
func (s *MemoryCredentialStore) Flag(ctx context.Context, userID, credID []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cred, err := s.lookup(userID, credID)
	if err != nil {
		return err
	}
	cred.Authenticator.CloneWarning = true
	return nil
}

// Delete removes the user's credential.
func (s *MemoryCredentialStore) Delete(ctx context.Context, userID, credID []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	credKey := hex.EncodeToString(credID)
	cred, ok := s.byID[credKey]
	if !ok || hex.EncodeToString(cred.UserID) != hex.EncodeToString(userID) {
		return ErrUnknownCredential
	}

	delete(s.byID, credKey)
	userKey := hex.EncodeToString(userID)
	creds := s.byUserID[userKey]
	for i, c := range creds {
		if hex.EncodeToString(c.ID) == credKey {
			s.byUserID[userKey] = append(creds[:i], creds[i+1:]...)
			break
		}
	}
	return nil
}

// Count returns the total number of credentials in the store.
func (s *MemoryCredentialStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byID)
}

// lookup resolves a credential scoped to its owner. Callers hold s.mu.
func (s *MemoryCredentialStore) lookup(userID, credID []byte) (*Credential, error) {
	cred, ok := s.byID[hex.EncodeToString(credID)]
	if !ok {
		return nil, ErrUnknownCredential
	}
	if hex.EncodeToString(cred.UserID) != hex.EncodeToString(userID) {
		// Scoped lookup: another user's credential is indistinguishable
		// from an unknown one.
		return nil, ErrUnknownCredential
	}
	return cred, nil
}
