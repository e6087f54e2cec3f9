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
	"errors"
	"fmt"
)

// Sentinel errors for ceremony operations. Handlers map all the
// verification-class values to a single generic client response; the precise
// value is for logs and metrics only.
var (
	// ErrChallengeNotFound is returned when no challenge is outstanding for
	// the (user, ceremony) pair, either because none was issued, it expired,
	// or it was already consumed by a previous finish attempt.
	ErrChallengeNotFound = errors.New("challenge not found")

	// ErrVerificationFailed is returned when the authenticator response does
	// not verify: challenge, origin, or RP ID mismatch, or a bad signature.
	ErrVerificationFailed = errors.New("verification failed")

	// ErrDuplicateCredential is returned when registration presents a
	// credential ID the store already holds, for any user.
	ErrDuplicateCredential = errors.New("credential already registered")

	// ErrUnknownCredential is returned when an assertion references a
	// credential that is not in the authenticating user's registry.
	ErrUnknownCredential = errors.New("unknown credential")

	// ErrNoCredentials is returned when an authentication ceremony is begun
	// for a user with no registered authenticators.
	ErrNoCredentials = errors.New("user has no registered credentials")

	// ErrClonedAuthenticator is returned when the reported signature counter
	// regresses, indicating a possible cloned authenticator. The stored
	// credential is flagged for owner review before this is returned.
	ErrClonedAuthenticator = errors.New("possible cloned authenticator detected")

	// ErrTooManyAttempts is returned by the transport layer when the source
	// has exceeded its rate limit for an endpoint class.
	ErrTooManyAttempts = errors.New("too many attempts")

	// ErrCounterConflict is returned by CredentialStore.UpdateCounter when
	// the stored counter no longer matches the expected value, i.e. a
	// concurrent authentication won the race.
	ErrCounterConflict = errors.New("credential counter conflict")

	// ErrInvalidRequest is returned when ceremony inputs are malformed.
	ErrInvalidRequest = errors.New("invalid request")

	// ErrNotConfigured is returned when the service is used before it was
	// built through NewService.
	ErrNotConfigured = errors.New("passkey service not configured")
)

// CeremonyError wraps an error with the operation that produced it.
type CeremonyError struct {
	Op  string // Operation that failed
	Err error  // Underlying error
}

// Error returns the error message.
func (e *CeremonyError) Error() string {
	if e.Op != "" {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return e.Err.Error()
}

// Unwrap returns the underlying error.
func (e *CeremonyError) Unwrap() error {
	return e.Err
}

// Is reports whether the target error matches.
func (e *CeremonyError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewError creates a new CeremonyError with the given operation and error.
func NewError(op string, err error) error {
	return &CeremonyError{
		Op:  op,
		Err: err,
	}
}

// WrapError wraps an error with an operation name if it's not nil.
func WrapError(op string, err error) error {
	if err == nil {
		return nil
	}
	return NewError(op, err)
}

// IsChallengeNotFound returns true if the error indicates a missing,
// expired, or already-consumed challenge.
func IsChallengeNotFound(err error) bool {
	return errors.Is(err, ErrChallengeNotFound)
}

// IsVerificationFailed returns true if the error indicates verification failed.
func IsVerificationFailed(err error) bool {
	return errors.Is(err, ErrVerificationFailed)
}

// IsCloneDetected returns true if the error indicates a signature counter
// regression.
func IsCloneDetected(err error) bool {
	return errors.Is(err, ErrClonedAuthenticator)
}

// IsNoCredentials returns true if the error indicates an empty registry.
func IsNoCredentials(err error) bool {
	return errors.Is(err, ErrNoCredentials)
}
