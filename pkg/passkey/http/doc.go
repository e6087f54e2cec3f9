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

// Package http provides router-agnostic HTTP handlers for the passkey
// ceremony endpoints, with first-class mounting helpers for chi.
//
// The handlers speak the standard WebAuthn browser wire formats: begin
// endpoints return PublicKeyCredentialCreationOptions or
// PublicKeyCredentialRequestOptions ready to hand to
// navigator.credentials, and complete endpoints accept the authenticator
// response exactly as the browser serializes it.
//
// Error responses never reveal why a ceremony was rejected. A missing
// challenge, an unknown credential, a bad signature, and a clone warning
// all produce the same 401 authentication_failed body; operators get the
// precise cause from logs and metrics instead.
//
// Basic usage:
//
//	svc, err := passkey.NewService(passkey.ServiceParams{
//	    Config:          cfg,
//	    ChallengeStore:  passkey.NewMemoryChallengeStore(),
//	    CredentialStore: passkey.NewMemoryCredentialStore(),
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	handler := passkeyhttp.NewHandler(svc, issuer)
//	r := chi.NewRouter()
//	r.Route("/passkey", func(r chi.Router) {
//	    passkeyhttp.MountChiLimited(r, handler, limiter)
//	})
package http
