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

// Package redisstore provides a Redis-backed challenge store for
// multi-instance deployments. Challenges expire server-side via Redis
// TTLs and are consumed atomically with GETDEL, so a challenge can be
// spent at most once across the whole fleet.
package redisstore

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-webauthn/webauthn/webauthn"
	"github.com/redis/go-redis/v9"

	"github.com/meridianpress/go-passkey/pkg/passkey"
)

// DefaultKeyPrefix namespaces challenge keys in a shared Redis.
const DefaultKeyPrefix = "passkey:challenge"

// ErrRedisUnavailable wraps transport-level Redis failures so callers can
// distinguish infrastructure errors from an absent challenge.
var ErrRedisUnavailable = errors.New("challenge redis unavailable")

// ChallengeStore implements passkey.ChallengeStore on top of a Redis
// client.
type ChallengeStore struct {
	client *redis.Client
	prefix string
}

// Option configures a ChallengeStore.
type Option func(*ChallengeStore)

// WithKeyPrefix overrides the default key prefix.
func WithKeyPrefix(prefix string) Option {
	return func(s *ChallengeStore) {
		s.prefix = prefix
	}
}

// NewChallengeStore creates a Redis-backed challenge store.
func NewChallengeStore(client *redis.Client, opts ...Option) *ChallengeStore {
	s := &ChallengeStore{
		client: client,
		prefix: DefaultKeyPrefix,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// key builds the Redis key for one (user, ceremony) slot. The user handle
// is base64url-encoded so arbitrary bytes cannot collide with the key
// separator.
func (s *ChallengeStore) key(userID []byte, kind passkey.CeremonyKind) string {
	return s.prefix + ":" + string(kind) + ":" + base64.RawURLEncoding.EncodeToString(userID)
}

// Put stores session data for a pending ceremony, replacing any pending
// challenge in the same slot. The Redis TTL enforces expiry server-side.
func (s *ChallengeStore) Put(ctx context.Context, userID []byte, kind passkey.CeremonyKind, session *webauthn.SessionData, ttl time.Duration) error {
	encoded, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("encode session data: %w", err)
	}

	if err := s.client.Set(ctx, s.key(userID, kind), encoded, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	return nil
}

// TakeAndDelete atomically retrieves and removes the pending challenge
// for a (user, ceremony) slot. GETDEL guarantees at-most-once consumption
// even with concurrent finish attempts against different instances.
func (s *ChallengeStore) TakeAndDelete(ctx context.Context, userID []byte, kind passkey.CeremonyKind) (*webauthn.SessionData, error) {
	encoded, err := s.client.GetDel(ctx, s.key(userID, kind)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, passkey.ErrChallengeNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	var session webauthn.SessionData
	if err := json.Unmarshal(encoded, &session); err != nil {
		return nil, fmt.Errorf("decode session data: %w", err)
	}

	return &session, nil
}

// Ping verifies connectivity to Redis.
func (s *ChallengeStore) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}
