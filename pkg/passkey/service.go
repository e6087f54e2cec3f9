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
	"fmt"

	"github.com/go-webauthn/webauthn/webauthn"
)

// Service orchestrates the registration and authentication ceremonies over
// an injected ChallengeStore and CredentialStore. It is safe for concurrent
// use; ceremonies for different users are fully independent.
type Service struct {
	webauthn   *webauthn.WebAuthn
	config     *Config
	challenges ChallengeStore
	creds      CredentialStore
	configured bool
}

// ServiceParams contains dependencies for creating a passkey service.
// Stores are injected rather than package-global so tests can run isolated
// instances and deployments can pick shared backends.
type ServiceParams struct {
	// Config is the Relying Party configuration (required).
	Config *Config

	// ChallengeStore holds outstanding ceremony challenges (required).
	ChallengeStore ChallengeStore

	// CredentialStore is the durable authenticator registry (required).
	CredentialStore CredentialStore
}

// NewService creates a new passkey service with the provided dependencies.
func NewService(params ServiceParams) (*Service, error) {
	if params.Config == nil {
		return nil, fmt.Errorf("config is required")
	}
	if params.ChallengeStore == nil {
		return nil, fmt.Errorf("challenge store is required")
	}
	if params.CredentialStore == nil {
		return nil, fmt.Errorf("credential store is required")
	}

	params.Config.SetDefaults()
	if err := params.Config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	wa, err := webauthn.New(params.Config.ToWebAuthnConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to create webauthn instance: %w", err)
	}

	return &Service{
		webauthn:   wa,
		config:     params.Config,
		challenges: params.ChallengeStore,
		creds:      params.CredentialStore,
		configured: true,
	}, nil
}

// Config returns the service configuration.
func (s *Service) Config() *Config {
	return s.config
}

// ListCredentials returns the user's registered credentials.
func (s *Service) ListCredentials(ctx context.Context, userID []byte) ([]*Credential, error) {
	if !s.configured {
		return nil, ErrNotConfigured
	}
	if len(userID) == 0 {
		return nil, WrapError("list credentials", ErrInvalidRequest)
	}
	return s.creds.List(ctx, userID)
}

// RevokeCredential removes one of the user's credentials. Revocation is the
// only way a credential leaves the registry; ceremonies never delete.
func (s *Service) RevokeCredential(ctx context.Context, userID, credID []byte) error {
	if !s.configured {
		return ErrNotConfigured
	}
	if len(userID) == 0 || len(credID) == 0 {
		return WrapError("revoke credential", ErrInvalidRequest)
	}
	return s.creds.Delete(ctx, userID, credID)
}

// loadUser builds the transient webauthn.User view for a ceremony from the
// stored credential list.
func (s *Service) loadUser(ctx context.Context, userID []byte, displayName string) (*ceremonyUser, error) {
	creds, err := s.creds.List(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &ceremonyUser{
		id:          userID,
		displayName: displayName,
		credentials: creds,
	}, nil
}
