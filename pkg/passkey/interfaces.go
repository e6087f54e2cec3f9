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
	"time"

	"github.com/go-webauthn/webauthn/webauthn"
)

// ChallengeStore holds at most one outstanding challenge per
// (user, ceremony) pair. Entries are ephemeral: they need not survive a
// process restart, and a cache-tier implementation (see redisstore) is
// preferred in multi-instance deployments.
type ChallengeStore interface {
	// Put stores the ceremony session under (userID, kind), overwriting any
	// existing entry for the pair. The entry becomes absent after ttl.
	Put(ctx context.Context, userID []byte, kind CeremonyKind, session *webauthn.SessionData, ttl time.Duration) error

	// TakeAndDelete atomically returns the stored session and removes it.
	// Two concurrent calls for the same pair cannot both succeed: one
	// observes ErrChallengeNotFound. Expired entries are treated as absent
	// even if not yet swept.
	TakeAndDelete(ctx context.Context, userID []byte, kind CeremonyKind) (*webauthn.SessionData, error)
}

// CredentialStore is the durable per-user authenticator registry.
// Credential IDs are globally unique across users; all lookups except
// Append are scoped to a user.
type CredentialStore interface {
	// Append stores a newly registered credential. Returns
	// ErrDuplicateCredential if any user already holds cred.ID.
	Append(ctx context.Context, cred *Credential) error

	// List returns all credentials for a user. Empty slice, never nil,
	// when the user has none.
	List(ctx context.Context, userID []byte) ([]*Credential, error)

	// Get returns the user's credential with the given ID, or
	// ErrUnknownCredential if it is not in this user's list.
	Get(ctx context.Context, userID, credID []byte) (*Credential, error)

	// UpdateCounter advances the signature counter from oldCount to
	// newCount and records usedAt as the last-used time. The update is
	// compare-and-swap: if the stored counter is no longer oldCount the
	// call fails with ErrCounterConflict and nothing is written.
	UpdateCounter(ctx context.Context, userID, credID []byte, oldCount, newCount uint32, usedAt time.Time) error

	// Flag marks the credential with a clone warning for owner review.
	Flag(ctx context.Context, userID, credID []byte) error

	// Delete removes the user's credential. Owner-initiated revocation is
	// the only way a credential leaves the registry.
	Delete(ctx context.Context, userID, credID []byte) error
}

// SessionIssuer is the integration seam the surrounding application
// implements to mint session or MFA artifacts from a ceremony Result. The
// core never calls it; transports do, after FinishAuthentication succeeds.
type SessionIssuer interface {
	// Issue produces an opaque session artifact (typically a JWT) for the
	// verified user.
	Issue(ctx context.Context, result *Result) (string, error)
}
