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
	"time"

	"github.com/go-webauthn/webauthn/protocol"
	"github.com/go-webauthn/webauthn/webauthn"
)

// CeremonyKind distinguishes the two WebAuthn ceremonies. It is part of
// the challenge key: registration and authentication challenges for the
// same user never collide.
type CeremonyKind string

const (
	// CeremonyRegistration is the "add a new authenticator" ceremony.
	CeremonyRegistration CeremonyKind = "registration"

	// CeremonyAuthentication is the "prove possession" ceremony.
	CeremonyAuthentication CeremonyKind = "authentication"
)

// Credential is one registered authenticator, owned by exactly one user.
// Only the public half of the key pair ever exists server-side.
type Credential struct {
	// ID is the credential identifier assigned by the authenticator.
	// It is globally unique within a CredentialStore.
	ID []byte `json:"id"`

	// UserID is the user handle this credential belongs to.
	UserID []byte `json:"user_id"`

	// PublicKey is the credential's public key in COSE format.
	PublicKey []byte `json:"public_key"`

	// AttestationType indicates the type of attestation used.
	AttestationType string `json:"attestation_type"`

	// Transports lists the transport hints declared by the authenticator
	// (usb, nfc, ble, internal). Advisory only, never a security input.
	Transports []protocol.AuthenticatorTransport `json:"transports,omitempty"`

	// Flags contains authenticator capability flags.
	Flags CredentialFlags `json:"flags"`

	// Authenticator contains authenticator-specific data, including the
	// signature counter used for clone detection.
	Authenticator AuthenticatorData `json:"authenticator"`

	// Device is a human-readable label for the owner's own review.
	// Never used for security decisions.
	Device DeviceMeta `json:"device"`

	// CreatedAt is when the credential was registered.
	CreatedAt time.Time `json:"created_at"`

	// LastUsedAt is when the credential last completed an authentication.
	LastUsedAt time.Time `json:"last_used_at,omitempty"`
}

// CredentialFlags contains authenticator capability flags.
type CredentialFlags struct {
	// UserPresent indicates the user was present during the operation.
	UserPresent bool `json:"user_present"`

	// UserVerified indicates the user was verified (e.g., biometric, PIN).
	UserVerified bool `json:"user_verified"`

	// BackupEligible indicates the credential can be backed up.
	BackupEligible bool `json:"backup_eligible"`

	// BackupState indicates the credential is currently backed up.
	BackupState bool `json:"backup_state"`
}

// AuthenticatorData contains authenticator-specific information.
type AuthenticatorData struct {
	// AAGUID is the authenticator's model identifier.
	AAGUID []byte `json:"aaguid"`

	// SignCount is the signature counter reported by the authenticator.
	// It must be non-decreasing across successful authentications.
	SignCount uint32 `json:"sign_count"`

	// CloneWarning marks a credential whose counter regressed. Flagged
	// credentials stay in the registry for owner review but the triggering
	// authentication is rejected.
	CloneWarning bool `json:"clone_warning"`

	// Attachment indicates how the authenticator is attached.
	Attachment protocol.AuthenticatorAttachment `json:"attachment"`
}

// DeviceMeta is the owner-facing label for a registered authenticator.
type DeviceMeta struct {
	// Label is a free-form name ("YubiKey 5C", "Pixel 9").
	Label string `json:"label,omitempty"`

	// Browser records the user agent seen at registration time.
	Browser string `json:"browser,omitempty"`
}

// Result is the only success artifact a ceremony produces. The surrounding
// application turns it into session or MFA tokens; the core never mints
// tokens itself.
type Result struct {
	// UserID is the authenticated user handle.
	UserID []byte `json:"user_id"`

	// CredentialID identifies the authenticator that completed the ceremony.
	CredentialID []byte `json:"credential_id"`

	// Kind is the ceremony that produced this result.
	Kind CeremonyKind `json:"kind"`

	// Device is the credential's owner-facing label.
	Device DeviceMeta `json:"device"`

	// VerifiedAt is when verification completed.
	VerifiedAt time.Time `json:"verified_at"`
}

// ToWebAuthn converts a Credential to the go-webauthn library's type.
func (c *Credential) ToWebAuthn() webauthn.Credential {
	return webauthn.Credential{
		ID:              c.ID,
		PublicKey:       c.PublicKey,
		AttestationType: c.AttestationType,
		Transport:       c.Transports,
		Flags: webauthn.CredentialFlags{
			UserPresent:    c.Flags.UserPresent,
			UserVerified:   c.Flags.UserVerified,
			BackupEligible: c.Flags.BackupEligible,
			BackupState:    c.Flags.BackupState,
		},
		Authenticator: webauthn.Authenticator{
			AAGUID:       c.Authenticator.AAGUID,
			SignCount:    c.Authenticator.SignCount,
			CloneWarning: c.Authenticator.CloneWarning,
			Attachment:   c.Authenticator.Attachment,
		},
	}
}

// Descriptor returns the credential descriptor used in allow/exclude lists.
func (c *Credential) Descriptor() protocol.CredentialDescriptor {
	return protocol.CredentialDescriptor{
		Type:         protocol.PublicKeyCredentialType,
		CredentialID: c.ID,
		Transport:    c.Transports,
	}
}

// fromWebAuthnCredential creates a Credential from the go-webauthn type.
func fromWebAuthnCredential(userID []byte, wc *webauthn.Credential, device DeviceMeta, now time.Time) *Credential {
	return &Credential{
		ID:              wc.ID,
		UserID:          userID,
		PublicKey:       wc.PublicKey,
		AttestationType: wc.AttestationType,
		Transports:      wc.Transport,
		Flags: CredentialFlags{
			UserPresent:    wc.Flags.UserPresent,
			UserVerified:   wc.Flags.UserVerified,
			BackupEligible: wc.Flags.BackupEligible,
			BackupState:    wc.Flags.BackupState,
		},
		Authenticator: AuthenticatorData{
			AAGUID:       wc.Authenticator.AAGUID,
			SignCount:    wc.Authenticator.SignCount,
			CloneWarning: wc.Authenticator.CloneWarning,
			Attachment:   wc.Authenticator.Attachment,
		},
		Device:    device,
		CreatedAt: now,
	}
}

// ceremonyUser is the transient webauthn.User view a ceremony builds from
// the caller-supplied identity and the stored credential list. Users live in
// the surrounding application; the core never persists them.
type ceremonyUser struct {
	id          []byte
	displayName string
	credentials []*Credential
}

func (u *ceremonyUser) WebAuthnID() []byte {
	return u.id
}

func (u *ceremonyUser) WebAuthnName() string {
	if u.displayName != "" {
		return u.displayName
	}
	return string(u.id)
}

func (u *ceremonyUser) WebAuthnDisplayName() string {
	return u.WebAuthnName()
}

func (u *ceremonyUser) WebAuthnCredentials() []webauthn.Credential {
	creds := make([]webauthn.Credential, len(u.credentials))
	for i, c := range u.credentials {
		creds[i] = c.ToWebAuthn()
	}
	return creds
}
