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

	"github.com/go-webauthn/webauthn/protocol"
	"github.com/go-webauthn/webauthn/webauthn"
)

// BeginRegistration starts the "add a new authenticator" ceremony for an
// already-authenticated user. Callers must enforce that a valid session
// exists before reaching this point: registration adds a factor to an
// authenticated identity, it does not authenticate by itself.
//
// The returned options carry the challenge, RP identity, user handle,
// accepted algorithms, and an exclude list built from the user's existing
// credentials, so the same physical authenticator cannot be registered
// twice. Any previously outstanding registration challenge for the user is
// overwritten.
func (s *Service) BeginRegistration(ctx context.Context, userID []byte, displayName string) (*protocol.CredentialCreation, error) {
	started := time.Now()
	if !s.configured {
		return nil, ErrNotConfigured
	}
	if len(userID) == 0 {
		return nil, WrapError("begin registration", ErrInvalidRequest)
	}

	user, err := s.loadUser(ctx, userID, displayName)
	if err != nil {
		observeCeremony(CeremonyRegistration, phaseBegin, err, started)
		return nil, WrapError("begin registration", err)
	}

	excludeList := make([]protocol.CredentialDescriptor, len(user.credentials))
	for i, cred := range user.credentials {
		excludeList[i] = cred.Descriptor()
	}

	options, session, err := s.webauthn.BeginRegistration(user,
		webauthn.WithExclusions(excludeList),
	)
	if err != nil {
		observeCeremony(CeremonyRegistration, phaseBegin, err, started)
		return nil, WrapError("begin registration", err)
	}

	if err := s.challenges.Put(ctx, userID, CeremonyRegistration, session, s.config.ChallengeTTL); err != nil {
		observeCeremony(CeremonyRegistration, phaseBegin, err, started)
		return nil, WrapError("store registration challenge", err)
	}

	observeCeremony(CeremonyRegistration, phaseBegin, nil, started)
	return options, nil
}

// FinishRegistration completes the registration ceremony. The stored
// challenge is consumed first, success or fail, so a replayed attestation
// always gets ErrChallengeNotFound. On verification failure nothing is
// persisted; on success the new credential is appended to the registry and
// described in the returned Result.
func (s *Service) FinishRegistration(ctx context.Context, userID []byte, device DeviceMeta, response *protocol.ParsedCredentialCreationData) (*Result, error) {
	started := time.Now()
	if !s.configured {
		return nil, ErrNotConfigured
	}
	if len(userID) == 0 || response == nil {
		return nil, WrapError("finish registration", ErrInvalidRequest)
	}

	// Single consumption: the challenge is gone from here on, whatever the
	// verification outcome.
	session, err := s.challenges.TakeAndDelete(ctx, userID, CeremonyRegistration)
	if err != nil {
		observeCeremony(CeremonyRegistration, phaseFinish, err, started)
		return nil, WrapError("take registration challenge", err)
	}

	user, err := s.loadUser(ctx, userID, "")
	if err != nil {
		observeCeremony(CeremonyRegistration, phaseFinish, err, started)
		return nil, WrapError("finish registration", err)
	}

	credential, err := s.webauthn.CreateCredential(user, *session, response)
	if err != nil {
		err = NewError("verify attestation", ErrVerificationFailed)
		observeCeremony(CeremonyRegistration, phaseFinish, err, started)
		return nil, err
	}

	now := time.Now().UTC()
	cred := fromWebAuthnCredential(userID, credential, device, now)
	if err := s.creds.Append(ctx, cred); err != nil {
		observeCeremony(CeremonyRegistration, phaseFinish, err, started)
		return nil, WrapError("append credential", err)
	}

	observeCeremony(CeremonyRegistration, phaseFinish, nil, started)
	return &Result{
		UserID:       userID,
		CredentialID: cred.ID,
		Kind:         CeremonyRegistration,
		Device:       device,
		VerifiedAt:   now,
	}, nil
}
