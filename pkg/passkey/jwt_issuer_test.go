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
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"encoding/base64"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testResult() *Result {
	return &Result{
		UserID:       []byte("user-1"),
		CredentialID: []byte("cred-1"),
		Kind:         CeremonyAuthentication,
		VerifiedAt:   time.Now().UTC(),
	}
}

func TestNewJWTIssuer_Validation(t *testing.T) {
	_, err := NewJWTIssuer(nil)
	assert.Error(t, err)

	_, err = NewJWTIssuer(&JWTIssuerConfig{})
	assert.Error(t, err)

	_, err = NewJWTIssuer(&JWTIssuerConfig{Key: "not a key"})
	assert.Error(t, err)
}

func TestJWTIssuer_HS256_RoundTrip(t *testing.T) {
	issuer, err := NewJWTIssuer(&JWTIssuerConfig{
		Key:      []byte("test-secret-with-enough-entropy"),
		Issuer:   "test-issuer",
		Audience: []string{"test-audience"},
	})
	require.NoError(t, err)

	token, err := issuer.Issue(context.Background(), testResult())
	require.NoError(t, err)
	require.NotEmpty(t, token)

	claims, err := issuer.Verify(token)
	require.NoError(t, err)

	assert.Equal(t, "test-issuer", claims["iss"])
	assert.Equal(t, base64.RawURLEncoding.EncodeToString([]byte("user-1")), claims["sub"])
	assert.Equal(t, base64.RawURLEncoding.EncodeToString([]byte("cred-1")), claims["cred"])
	assert.NotEmpty(t, claims["jti"])
}

func TestJWTIssuer_ES256_RoundTrip(t *testing.T) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	issuer, err := NewJWTIssuer(&JWTIssuerConfig{Key: key})
	require.NoError(t, err)

	token, err := issuer.Issue(context.Background(), testResult())
	require.NoError(t, err)

	claims, err := issuer.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "go-passkey", claims["iss"])
}

func TestJWTIssuer_RejectsForeignToken(t *testing.T) {
	a, err := NewJWTIssuer(&JWTIssuerConfig{Key: []byte("secret-a")})
	require.NoError(t, err)
	b, err := NewJWTIssuer(&JWTIssuerConfig{Key: []byte("secret-b")})
	require.NoError(t, err)

	token, err := a.Issue(context.Background(), testResult())
	require.NoError(t, err)

	_, err = b.Verify(token)
	assert.Error(t, err)
}

func TestJWTIssuer_NilResult(t *testing.T) {
	issuer, err := NewJWTIssuer(&JWTIssuerConfig{Key: []byte("secret")})
	require.NoError(t, err)

	_, err = issuer.Issue(context.Background(), nil)
	assert.Error(t, err)
}

func TestJWTIssuer_Defaults(t *testing.T) {
	issuer, err := NewJWTIssuer(&JWTIssuerConfig{Key: []byte("secret")})
	require.NoError(t, err)
	assert.Equal(t, time.Hour, issuer.ExpiresIn())
}
