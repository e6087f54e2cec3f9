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

package rest

import (
	"encoding/base64"
	"fmt"
	"net/http"
	"strings"

	"github.com/meridianpress/go-passkey/pkg/passkey"
)

// Authorizer resolves the authenticated user behind a request.
// Registering a credential is an account-takeover primitive, so the
// registration and credential-management routes only act for the user
// the surrounding application has already authenticated, never for a
// user handle the client names itself.
type Authorizer interface {
	// Authorize returns the authenticated user handle, or an error if
	// the request carries no valid session.
	Authorize(r *http.Request) ([]byte, error)
}

// AuthorizerFunc adapts a function to the Authorizer interface.
type AuthorizerFunc func(r *http.Request) ([]byte, error)

// Authorize implements Authorizer.
func (f AuthorizerFunc) Authorize(r *http.Request) ([]byte, error) {
	return f(r)
}

// SessionGuard enforces the authorizer on a route group. On success the
// verified user handle replaces any client-supplied X-User-Id header, so
// downstream handlers always operate on the session's user.
func (s *Server) SessionGuard() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, err := s.authorizer.Authorize(r)
			if err != nil {
				s.logger.Warn("session guard rejected request",
					"method", r.Method,
					"path", r.URL.Path,
					"remote", r.RemoteAddr,
					"error", err)
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				_, _ = w.Write([]byte(`{"error":"authentication_failed","message":"authentication failed"}`))
				return
			}

			r.Header.Set(passkeyhttpUserIDHeader, base64.RawURLEncoding.EncodeToString(userID))
			next.ServeHTTP(w, r)
		})
	}
}

const passkeyhttpUserIDHeader = "X-User-Id"

// JWTAuthorizer accepts Bearer tokens minted by a passkey.JWTIssuer.
// It lets a session established by one ceremony authorize adding
// further credentials without a separate session system.
type JWTAuthorizer struct {
	issuer *passkey.JWTIssuer
}

// NewJWTAuthorizer creates an authorizer verifying tokens from issuer.
func NewJWTAuthorizer(issuer *passkey.JWTIssuer) *JWTAuthorizer {
	return &JWTAuthorizer{issuer: issuer}
}

// Authorize verifies the Bearer token and returns the subject user handle.
func (a *JWTAuthorizer) Authorize(r *http.Request) ([]byte, error) {
	auth := r.Header.Get("Authorization")
	if auth == "" {
		return nil, fmt.Errorf("missing authorization header")
	}

	token, ok := strings.CutPrefix(auth, "Bearer ")
	if !ok {
		return nil, fmt.Errorf("authorization header is not a bearer token")
	}

	claims, err := a.issuer.Verify(token)
	if err != nil {
		return nil, fmt.Errorf("verify token: %w", err)
	}

	sub, ok := claims["sub"].(string)
	if !ok || sub == "" {
		return nil, fmt.Errorf("token has no subject")
	}

	userID, err := base64.RawURLEncoding.DecodeString(sub)
	if err != nil {
		return nil, fmt.Errorf("decode subject: %w", err)
	}

	return userID, nil
}
