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
	"bytes"
	"context"
	"time"

	"github.com/go-webauthn/webauthn/protocol"
	"github.com/go-webauthn/webauthn/webauthn"
)

// BeginAuthentication starts the "prove possession" ceremony. A user with
// no registered credentials gets ErrNoCredentials and no challenge is
// issued; callers should fall back to another authentication method.
func (s *Service) BeginAuthentication(ctx context.Context, userID []byte) (*protocol.CredentialAssertion, error) {
	started := time.Now()
	if !s.configured {
		return nil, ErrNotConfigured
	}
	if len(userID) == 0 {
		return nil, WrapError("begin authentication", ErrInvalidRequest)
	}

	user, err := s.loadUser(ctx, userID, "")
	if err != nil {
		observeCeremony(CeremonyAuthentication, phaseBegin, err, started)
		return nil, WrapError("begin authentication", err)
	}
	if len(user.credentials) == 0 {
		err = NewError("begin authentication", ErrNoCredentials)
		observeCeremony(CeremonyAuthentication, phaseBegin, err, started)
		return nil, err
	}

	allowList := make([]protocol.CredentialDescriptor, len(user.credentials))
	for i, cred := range user.credentials {
		allowList[i] = cred.Descriptor()
	}

	options, session, err := s.webauthn.BeginLogin(user,
		webauthn.WithAllowedCredentials(allowList),
	)
	if err != nil {
		observeCeremony(CeremonyAuthentication, phaseBegin, err, started)
		return nil, WrapError("begin authentication", err)
	}

	if err := s.challenges.Put(ctx, userID, CeremonyAuthentication, session, s.config.ChallengeTTL); err != nil {
		observeCeremony(CeremonyAuthentication, phaseBegin, err, started)
		return nil, WrapError("store authentication challenge", err)
	}

	observeCeremony(CeremonyAuthentication, phaseBegin, nil, started)
	return options, nil
}

// FinishAuthentication completes the authentication ceremony: consume the
// challenge, resolve the credential within the user's own registry, verify
// the assertion, run the clone check, and advance the counter via
// compare-and-swap. On success the caller hands the Result to its
// SessionIssuer; the core never mints tokens.
func (s *Service) FinishAuthentication(ctx context.Context, userID []byte, response *protocol.ParsedCredentialAssertionData) (*Result, error) {
	started := time.Now()
	if !s.configured {
		return nil, ErrNotConfigured
	}
	if len(userID) == 0 || response == nil {
		return nil, WrapError("finish authentication", ErrInvalidRequest)
	}

	// Single consumption, before any other validation: a replayed assertion
	// body fails here no matter how valid its signature is.
	session, err := s.challenges.TakeAndDelete(ctx, userID, CeremonyAuthentication)
	if err != nil {
		observeCeremony(CeremonyAuthentication, phaseFinish, err, started)
		return nil, WrapError("take authentication challenge", err)
	}

	user, err := s.loadUser(ctx, userID, "")
	if err != nil {
		observeCeremony(CeremonyAuthentication, phaseFinish, err, started)
		return nil, WrapError("finish authentication", err)
	}

	// Lookup is scoped to this user, so cross-user credential confusion is
	// rejected by construction.
	stored := findCredential(user.credentials, response.RawID)
	if stored == nil {
		err = NewError("resolve credential", ErrUnknownCredential)
		observeCeremony(CeremonyAuthentication, phaseFinish, err, started)
		return nil, err
	}

	validated, err := s.webauthn.ValidateLogin(user, *session, response)
	if err != nil {
		err = NewError("verify assertion", ErrVerificationFailed)
		observeCeremony(CeremonyAuthentication, phaseFinish, err, started)
		return nil, err
	}

	// Clone check. The library flags a regressed counter (newCounter <=
	// storedCounter) unless both are zero — authenticators that never
	// implement counters report zero on every use and are tolerated, a
	// deliberate relaxation that disables clone detection for them. A
	// flagged credential is persisted for owner review and the ceremony
	// fails; the session is never issued.
	if validated.Authenticator.CloneWarning {
		if flagErr := s.creds.Flag(ctx, userID, stored.ID); flagErr != nil {
			observeCeremony(CeremonyAuthentication, phaseFinish, flagErr, started)
			return nil, WrapError("flag cloned credential", flagErr)
		}
		err = NewError("counter check", ErrClonedAuthenticator)
		observeCeremony(CeremonyAuthentication, phaseFinish, err, started)
		return nil, err
	}

	// Compare-and-swap against the counter value read above: two concurrent
	// authentications cannot both advance from the same stale read.
	now := time.Now().UTC()
	if err := s.creds.UpdateCounter(ctx, userID, stored.ID,
		stored.Authenticator.SignCount, validated.Authenticator.SignCount, now); err != nil {
		observeCeremony(CeremonyAuthentication, phaseFinish, err, started)
		return nil, WrapError("advance counter", err)
	}

	observeCeremony(CeremonyAuthentication, phaseFinish, nil, started)
	return &Result{
		UserID:       userID,
		CredentialID: stored.ID,
		Kind:         CeremonyAuthentication,
		Device:       stored.Device,
		VerifiedAt:   now,
	}, nil
}

func findCredential(creds []*Credential, credID []byte) *Credential {
	for _, c := range creds {
		if bytes.Equal(c.ID, credID) {
			return c
		}
	}
	return nil
}
