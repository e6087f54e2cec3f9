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
	"crypto"
	"crypto/ecdsa"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// JWTIssuer is the bundled SessionIssuer: it mints a short-lived JWT from a
// ceremony Result. It belongs to the integration seam, not the core —
// transports call it after FinishAuthentication succeeds, never the Service.
type JWTIssuer struct {
	key       crypto.PrivateKey
	method    jwt.SigningMethod
	issuer    string
	audience  []string
	expiresIn time.Duration
}

// JWTIssuerConfig configures the JWT session issuer.
type JWTIssuerConfig struct {
	// Key signs tokens (required). *ecdsa.PrivateKey is signed with ES256,
	// []byte with HS256.
	Key crypto.PrivateKey

	// Issuer is the JWT issuer claim (default: "go-passkey").
	Issuer string

	// Audience is the JWT audience claim (default: ["go-passkey"]).
	Audience []string

	// ExpiresIn is how long tokens are valid (default: 1 hour).
	ExpiresIn time.Duration
}

// NewJWTIssuer creates a new JWT session issuer.
func NewJWTIssuer(config *JWTIssuerConfig) (*JWTIssuer, error) {
	if config == nil {
		return nil, fmt.Errorf("config is required")
	}
	if config.Key == nil {
		return nil, fmt.Errorf("signing key is required")
	}

	var method jwt.SigningMethod
	switch config.Key.(type) {
	case *ecdsa.PrivateKey:
		method = jwt.SigningMethodES256
	case []byte:
		method = jwt.SigningMethodHS256
	default:
		return nil, fmt.Errorf("unsupported signing key type %T", config.Key)
	}

	issuer := config.Issuer
	if issuer == "" {
		issuer = "go-passkey"
	}
	audience := config.Audience
	if len(audience) == 0 {
		audience = []string{"go-passkey"}
	}
	expiresIn := config.ExpiresIn
	if expiresIn == 0 {
		expiresIn = time.Hour
	}

	return &JWTIssuer{
		key:       config.Key,
		method:    method,
		issuer:    issuer,
		audience:  audience,
		expiresIn: expiresIn,
	}, nil
}

// Issue mints a JWT for the verified user. The subject is the base64url
// user handle and the credential that completed the ceremony is recorded in
// a custom claim, so downstream MFA policy can tell which factor was used.
func (g *JWTIssuer) Issue(ctx context.Context, result *Result) (string, error) {
	if result == nil {
		return "", fmt.Errorf("result is required")
	}

	now := time.Now()
	claims := jwt.MapClaims{
		"iss": g.issuer,
		"aud": g.audience,
		"sub": base64.RawURLEncoding.EncodeToString(result.UserID),
		"jti": uuid.NewString(),
		"iat": now.Unix(),
		"nbf": now.Unix(),
		"exp": now.Add(g.expiresIn).Unix(),
		// Custom claims
		"cred": base64.RawURLEncoding.EncodeToString(result.CredentialID),
		"amr":  []string{"webauthn"},
	}

	token := jwt.NewWithClaims(g.method, claims)
	signed, err := token.SignedString(g.key)
	if err != nil {
		return "", fmt.Errorf("sign session token: %w", err)
	}
	return signed, nil
}

// Verify parses a token minted by Issue and returns its claims.
func (g *JWTIssuer) Verify(tokenString string) (jwt.MapClaims, error) {
	keyFunc := func(t *jwt.Token) (interface{}, error) {
		if t.Method.Alg() != g.method.Alg() {
			return nil, fmt.Errorf("unexpected signing method %s", t.Method.Alg())
		}
		switch key := g.key.(type) {
		case *ecdsa.PrivateKey:
			return &key.PublicKey, nil
		case []byte:
			return key, nil
		default:
			return nil, fmt.Errorf("unsupported signing key type %T", g.key)
		}
	}

	token, err := jwt.Parse(tokenString, keyFunc,
		jwt.WithIssuer(g.issuer),
		jwt.WithAudience(g.audience[0]),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, fmt.Errorf("token verification failed: %w", err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, fmt.Errorf("invalid claims type")
	}
	return claims, nil
}

// ExpiresIn returns the token expiration duration.
func (g *JWTIssuer) ExpiresIn() time.Duration {
	return g.expiresIn
}
