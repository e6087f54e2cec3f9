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

// Package passkey implements the WebAuthn ceremony core used for founder and
// admin login in the Meridian Press CMS: challenge issuance, attestation and
// assertion verification, and the authenticator registry with clone
// detection.
//
// The package is deliberately narrow. It owns two pieces of state — the
// ephemeral ChallengeStore and the durable CredentialStore — and exposes a
// Service with a begin/finish pair per ceremony:
//
//	svc, _ := passkey.NewService(passkey.ServiceParams{
//	    Config:          &passkey.Config{RPID: "meridianpress.com", ...},
//	    ChallengeStore:  passkey.NewMemoryChallengeStore(),
//	    CredentialStore: passkey.NewMemoryCredentialStore(),
//	})
//
//	options, err := svc.BeginRegistration(ctx, userID, "Jo Editor")
//	// client signs ...
//	result, err := svc.FinishRegistration(ctx, userID, response)
//
// Users, sessions, RBAC, and audit logging belong to the surrounding
// application. On success the Service hands back a Result; minting session
// or MFA tokens from it is the caller's job (see SessionIssuer and
// JWTIssuer for the seam).
//
// A challenge is consumed exactly once: the finish call removes it whether
// verification succeeds or fails, so replaying a captured finish request
// always fails with ErrChallengeNotFound. At most one challenge is
// outstanding per (user, ceremony) pair; a repeated begin overwrites the
// previous one.
package passkey
