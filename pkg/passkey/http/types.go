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

package http

// HeaderUserID is the header name for the base64url-encoded user handle.
const HeaderUserID = "X-User-Id"

// HeaderDeviceLabel is an optional header naming the authenticator being
// registered ("YubiKey 5C", "Pixel 9"). Stored verbatim for the owner's
// own review, never used for security decisions.
const HeaderDeviceLabel = "X-Device-Label"

// BeginRegistrationRequest is the request body for starting registration.
type BeginRegistrationRequest struct {
	// UserID is the base64url-encoded user handle (required).
	UserID string `json:"user_id"`

	// DisplayName is the name shown in the authenticator's UI (optional).
	DisplayName string `json:"display_name,omitempty"`
}

// BeginAuthenticationRequest is the request body for starting authentication.
type BeginAuthenticationRequest struct {
	// UserID is the base64url-encoded user handle (required).
	UserID string `json:"user_id"`
}

// AuthResponse is the response after a successful ceremony.
type AuthResponse struct {
	// Token is the session artifact minted by the configured issuer.
	// Empty when no issuer is configured.
	Token string `json:"token,omitempty"`

	// UserID is the base64url-encoded user handle.
	UserID string `json:"user_id"`

	// CredentialID is the base64url-encoded credential that completed
	// the ceremony.
	CredentialID string `json:"credential_id"`
}

// CredentialSummary is one registered authenticator as shown to its owner.
// The public key is deliberately omitted from the wire format.
type CredentialSummary struct {
	// ID is the base64url-encoded credential ID.
	ID string `json:"id"`

	// Label is the owner-assigned device name.
	Label string `json:"label,omitempty"`

	// Browser is the user agent seen at registration time.
	Browser string `json:"browser,omitempty"`

	// Transports lists the authenticator's declared transports.
	Transports []string `json:"transports,omitempty"`

	// BackedUp indicates the credential is synced to a platform backup.
	BackedUp bool `json:"backed_up"`

	// CloneWarning marks a credential whose counter regressed.
	CloneWarning bool `json:"clone_warning"`

	// CreatedAt is when the credential was registered (RFC 3339).
	CreatedAt string `json:"created_at"`

	// LastUsedAt is when the credential last completed an authentication.
	LastUsedAt string `json:"last_used_at,omitempty"`
}

// CredentialListResponse is the response for listing credentials.
type CredentialListResponse struct {
	Credentials []CredentialSummary `json:"credentials"`
}

// ErrorResponse is the response format for errors.
type ErrorResponse struct {
	// Error is the error code.
	Error string `json:"error"`

	// Message is a human-readable error message.
	Message string `json:"message"`
}

// Error codes returned in ErrorResponse. Verification failures of any
// cause share ErrorCodeAuthenticationFailed so the response does not
// leak why a ceremony was rejected.
const (
	ErrorCodeInvalidRequest       = "invalid_request"
	ErrorCodeNoCredentials        = "no_credentials"
	ErrorCodeUnknownCredential    = "unknown_credential"
	ErrorCodeAuthenticationFailed = "authentication_failed"
	ErrorCodeTooManyAttempts      = "too_many_attempts"
	ErrorCodeInternalError        = "internal_error"
)
