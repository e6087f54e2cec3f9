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

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-webauthn/webauthn/protocol"
	"github.com/meridianpress/go-passkey/pkg/passkey"
)

// Handler provides HTTP handlers for passkey ceremony operations.
// These handlers can be mounted on any HTTP router.
type Handler struct {
	service *passkey.Service
	issuer  passkey.SessionIssuer
	logger  *slog.Logger
}

// NewHandler creates a new passkey HTTP handler. issuer may be nil, in
// which case AuthResponse.Token is left empty and callers establish
// sessions by other means.
func NewHandler(service *passkey.Service, issuer passkey.SessionIssuer) *Handler {
	return &Handler{
		service: service,
		issuer:  issuer,
		logger:  slog.Default(),
	}
}

// WithLogger sets a custom logger for the handler.
func (h *Handler) WithLogger(logger *slog.Logger) *Handler {
	h.logger = logger
	return h
}

// BeginRegistration handles POST /register/begin
//
// Request body:
//
//	{
//	    "user_id": "base64url-user-handle",
//	    "display_name": "User Name" // optional
//	}
//
// Response: WebAuthn PublicKeyCredentialCreationOptions
//
// When mounted behind a session guard, the X-User-Id header carries the
// verified session's user handle and takes precedence over the body.
func (h *Handler) BeginRegistration(w http.ResponseWriter, r *http.Request) {
	var req BeginRegistrationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, ErrorCodeInvalidRequest, "invalid request body")
		return
	}

	encoded := r.Header.Get(HeaderUserID)
	if encoded == "" {
		encoded = req.UserID
	}

	userID, ok := h.decodeUserID(w, encoded)
	if !ok {
		return
	}

	options, err := h.service.BeginRegistration(r.Context(), userID, req.DisplayName)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusOK, options)
}

// FinishRegistration handles POST /register/complete
//
// Header: X-User-Id (base64url user handle)
// Header: X-Device-Label (optional authenticator name)
// Request body: attestation response from the authenticator
// Response: AuthResponse
func (h *Handler) FinishRegistration(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.decodeUserID(w, r.Header.Get(HeaderUserID))
	if !ok {
		return
	}

	response, err := protocol.ParseCredentialCreationResponseBody(r.Body)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, ErrorCodeInvalidRequest, "invalid attestation response")
		return
	}

	device := passkey.DeviceMeta{
		Label:   r.Header.Get(HeaderDeviceLabel),
		Browser: r.UserAgent(),
	}

	result, err := h.service.FinishRegistration(r.Context(), userID, device, response)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	h.writeAuthResponse(w, r, result)
}

// BeginAuthentication handles POST /authenticate/begin
//
// Request body:
//
//	{
//	    "user_id": "base64url-user-handle"
//	}
//
// Response: WebAuthn PublicKeyCredentialRequestOptions
func (h *Handler) BeginAuthentication(w http.ResponseWriter, r *http.Request) {
	var req BeginAuthenticationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, ErrorCodeInvalidRequest, "invalid request body")
		return
	}

	userID, ok := h.decodeUserID(w, req.UserID)
	if !ok {
		return
	}

	options, err := h.service.BeginAuthentication(r.Context(), userID)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusOK, options)
}

// FinishAuthentication handles POST /authenticate/complete
//
// Header: X-User-Id (base64url user handle)
// Request body: assertion response from the authenticator
// Response: AuthResponse
func (h *Handler) FinishAuthentication(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.decodeUserID(w, r.Header.Get(HeaderUserID))
	if !ok {
		return
	}

	response, err := protocol.ParseCredentialRequestResponseBody(r.Body)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, ErrorCodeInvalidRequest, "invalid assertion response")
		return
	}

	result, err := h.service.FinishAuthentication(r.Context(), userID, response)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	h.writeAuthResponse(w, r, result)
}

// ListCredentials handles GET /credentials
//
// Header: X-User-Id (base64url user handle)
// Response: CredentialListResponse
func (h *Handler) ListCredentials(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.decodeUserID(w, r.Header.Get(HeaderUserID))
	if !ok {
		return
	}

	creds, err := h.service.ListCredentials(r.Context(), userID)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	resp := CredentialListResponse{Credentials: make([]CredentialSummary, 0, len(creds))}
	for _, cred := range creds {
		resp.Credentials = append(resp.Credentials, summarize(cred))
	}

	h.writeJSON(w, http.StatusOK, resp)
}

// RevokeCredential handles DELETE /credentials/{credentialID}
//
// Header: X-User-Id (base64url user handle)
// Response: 204 No Content on success
func (h *Handler) RevokeCredential(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.decodeUserID(w, r.Header.Get(HeaderUserID))
	if !ok {
		return
	}

	credID, err := base64.RawURLEncoding.DecodeString(chi.URLParam(r, "credentialID"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, ErrorCodeInvalidRequest, "invalid credential ID encoding")
		return
	}

	if err := h.service.RevokeCredential(r.Context(), userID, credID); err != nil {
		if errors.Is(err, passkey.ErrUnknownCredential) {
			h.writeError(w, http.StatusNotFound, ErrorCodeUnknownCredential, "credential not found")
			return
		}
		h.handleServiceError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// decodeUserID decodes a base64url user handle, writing a 400 on failure.
func (h *Handler) decodeUserID(w http.ResponseWriter, encoded string) ([]byte, bool) {
	if encoded == "" {
		h.writeError(w, http.StatusBadRequest, ErrorCodeInvalidRequest, "user ID is required")
		return nil, false
	}

	userID, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, ErrorCodeInvalidRequest, "invalid user ID encoding")
		return nil, false
	}

	return userID, true
}

// writeAuthResponse mints a session token for a successful ceremony and
// writes the AuthResponse.
func (h *Handler) writeAuthResponse(w http.ResponseWriter, r *http.Request, result *passkey.Result) {
	var token string
	if h.issuer != nil {
		var err error
		token, err = h.issuer.Issue(r.Context(), result)
		if err != nil {
			h.logger.Error("failed to issue session token",
				"error", err,
				"ceremony", result.Kind)
			h.writeError(w, http.StatusInternalServerError, ErrorCodeInternalError, "internal server error")
			return
		}
	}

	h.writeJSON(w, http.StatusOK, AuthResponse{
		Token:        token,
		UserID:       base64.RawURLEncoding.EncodeToString(result.UserID),
		CredentialID: base64.RawURLEncoding.EncodeToString(result.CredentialID),
	})
}

// handleServiceError maps service errors to HTTP responses. Every
// verification failure collapses to the same 401 regardless of cause;
// the precise reason goes to the log only.
func (h *Handler) handleServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, passkey.ErrNoCredentials):
		h.writeError(w, http.StatusBadRequest, ErrorCodeNoCredentials, "user has no registered credentials")
	case errors.Is(err, passkey.ErrInvalidRequest):
		h.writeError(w, http.StatusBadRequest, ErrorCodeInvalidRequest, err.Error())
	case errors.Is(err, passkey.ErrChallengeNotFound),
		errors.Is(err, passkey.ErrVerificationFailed),
		errors.Is(err, passkey.ErrUnknownCredential),
		errors.Is(err, passkey.ErrClonedAuthenticator),
		errors.Is(err, passkey.ErrCounterConflict),
		errors.Is(err, passkey.ErrDuplicateCredential):
		h.logger.Warn("ceremony rejected",
			"error", err,
			"path", r.URL.Path,
			"remote", r.RemoteAddr)
		h.writeError(w, http.StatusUnauthorized, ErrorCodeAuthenticationFailed, "authentication failed")
	default:
		h.logger.Error("ceremony failed",
			"error", err,
			"path", r.URL.Path)
		h.writeError(w, http.StatusInternalServerError, ErrorCodeInternalError, "internal server error")
	}
}

// summarize converts a stored credential to its owner-facing wire form.
func summarize(cred *passkey.Credential) CredentialSummary {
	s := CredentialSummary{
		ID:           base64.RawURLEncoding.EncodeToString(cred.ID),
		Label:        cred.Device.Label,
		Browser:      cred.Device.Browser,
		BackedUp:     cred.Flags.BackupState,
		CloneWarning: cred.Authenticator.CloneWarning,
		CreatedAt:    cred.CreatedAt.UTC().Format(time.RFC3339),
	}
	for _, t := range cred.Transports {
		s.Transports = append(s.Transports, string(t))
	}
	if !cred.LastUsedAt.IsZero() {
		s.LastUsedAt = cred.LastUsedAt.UTC().Format(time.RFC3339)
	}
	return s
}

// writeJSON writes a JSON response.
func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		// Response headers already written, can only log the error
		h.logger.Error("failed to encode JSON response",
			"error", err,
			"status", status)
	}
}

// writeError writes an error response.
func (h *Handler) writeError(w http.ResponseWriter, status int, code, message string) {
	h.writeJSON(w, status, ErrorResponse{
		Error:   code,
		Message: message,
	})
}
