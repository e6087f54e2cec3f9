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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testOrigin = "https://example.com"

func newTestAuthenticator(t *testing.T) *MockAuthenticator {
	t.Helper()
	auth, err := NewMockAuthenticator("example.com")
	require.NoError(t, err)
	return auth
}

// register drives a full registration ceremony for userID with the given
// authenticator.
func register(t *testing.T, svc *Service, auth *MockAuthenticator, userID []byte, device DeviceMeta) *Result {
	t.Helper()
	ctx := context.Background()

	options, err := svc.BeginRegistration(ctx, userID, "Test User")
	require.NoError(t, err)

	attestation, err := auth.CreateAttestationObject(options.Response.Challenge, userID, testOrigin)
	require.NoError(t, err)

	result, err := svc.FinishRegistration(ctx, userID, device, attestation)
	require.NoError(t, err)
	return result
}

func TestRegistrationFlow(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)
	auth := newTestAuthenticator(t)
	userID := []byte("user-reg-flow")

	options, err := svc.BeginRegistration(ctx, userID, "Test User")
	require.NoError(t, err)
	require.NotNil(t, options)

	assert.Equal(t, "example.com", options.Response.RelyingParty.ID)
	assert.Equal(t, "Example", options.Response.RelyingParty.Name)
	assert.Equal(t, "Test User", options.Response.User.DisplayName)
	assert.NotEmpty(t, options.Response.Challenge)
	assert.Empty(t, options.Response.CredentialExcludeList)

	attestation, err := auth.CreateAttestationObject(options.Response.Challenge, userID, testOrigin)
	require.NoError(t, err)

	device := DeviceMeta{Label: "YubiKey 5C", Browser: "test-agent"}
	result, err := svc.FinishRegistration(ctx, userID, device, attestation)
	require.NoError(t, err)
	require.NotNil(t, result)

	assert.Equal(t, userID, result.UserID)
	assert.Equal(t, auth.CredentialID, result.CredentialID)
	assert.Equal(t, CeremonyRegistration, result.Kind)
	assert.Equal(t, device, result.Device)
	assert.False(t, result.VerifiedAt.IsZero())

	creds, err := svc.ListCredentials(ctx, userID)
	require.NoError(t, err)
	require.Len(t, creds, 1)
	assert.Equal(t, auth.CredentialID, creds[0].ID)
	assert.Equal(t, userID, creds[0].UserID)
	assert.Equal(t, "YubiKey 5C", creds[0].Device.Label)
	assert.NotEmpty(t, creds[0].PublicKey)
	assert.False(t, creds[0].Authenticator.CloneWarning)
}

func TestRegistration_ChallengeConsumedOnFailure(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)
	auth := newTestAuthenticator(t)
	userID := []byte("user-consume")

	options, err := svc.BeginRegistration(ctx, userID, "Test User")
	require.NoError(t, err)

	// Attestation carrying the wrong challenge fails verification but
	// still consumes the stored challenge.
	bogus, err := auth.CreateAttestationObject([]byte("wrong-challenge"), userID, testOrigin)
	require.NoError(t, err)

	_, err = svc.FinishRegistration(ctx, userID, DeviceMeta{}, bogus)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrVerificationFailed)

	// A correct attestation can no longer complete the ceremony.
	good, err := auth.CreateAttestationObject(options.Response.Challenge, userID, testOrigin)
	require.NoError(t, err)

	_, err = svc.FinishRegistration(ctx, userID, DeviceMeta{}, good)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrChallengeNotFound)

	creds, err := svc.ListCredentials(ctx, userID)
	require.NoError(t, err)
	assert.Empty(t, creds)
}

func TestRegistration_ReplayAttestation(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)
	auth := newTestAuthenticator(t)
	userID := []byte("user-replay-reg")

	options, err := svc.BeginRegistration(ctx, userID, "Test User")
	require.NoError(t, err)

	attestation, err := auth.CreateAttestationObject(options.Response.Challenge, userID, testOrigin)
	require.NoError(t, err)

	_, err = svc.FinishRegistration(ctx, userID, DeviceMeta{}, attestation)
	require.NoError(t, err)

	// Same attestation again: the challenge was consumed by the first call.
	_, err = svc.FinishRegistration(ctx, userID, DeviceMeta{}, attestation)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrChallengeNotFound)
}

func TestRegistration_FinishWithoutBegin(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)
	auth := newTestAuthenticator(t)
	userID := []byte("user-no-begin")

	attestation, err := auth.CreateAttestationObject([]byte("some-challenge"), userID, testOrigin)
	require.NoError(t, err)

	_, err = svc.FinishRegistration(ctx, userID, DeviceMeta{}, attestation)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrChallengeNotFound)
}

func TestRegistration_OverwritePendingChallenge(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)
	auth := newTestAuthenticator(t)
	userID := []byte("user-overwrite")

	first, err := svc.BeginRegistration(ctx, userID, "Test User")
	require.NoError(t, err)

	second, err := svc.BeginRegistration(ctx, userID, "Test User")
	require.NoError(t, err)
	require.NotEqual(t, first.Response.Challenge, second.Response.Challenge)

	// Only the latest challenge is live.
	stale, err := auth.CreateAttestationObject(first.Response.Challenge, userID, testOrigin)
	require.NoError(t, err)

	_, err = svc.FinishRegistration(ctx, userID, DeviceMeta{}, stale)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrVerificationFailed)
}

func TestRegistration_DuplicateCredentialAcrossUsers(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)
	auth := newTestAuthenticator(t)

	userA := []byte("user-dup-a")
	userB := []byte("user-dup-b")

	register(t, svc, auth, userA, DeviceMeta{})

	// The same physical credential presented under another user handle
	// must be rejected; credential IDs are globally unique.
	options, err := svc.BeginRegistration(ctx, userB, "Other User")
	require.NoError(t, err)

	attestation, err := auth.CreateAttestationObject(options.Response.Challenge, userB, testOrigin)
	require.NoError(t, err)

	_, err = svc.FinishRegistration(ctx, userB, DeviceMeta{}, attestation)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDuplicateCredential)

	creds, err := svc.ListCredentials(ctx, userB)
	require.NoError(t, err)
	assert.Empty(t, creds)
}

func TestRegistration_ExcludesExistingCredentials(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)
	auth := newTestAuthenticator(t)
	userID := []byte("user-exclude")

	register(t, svc, auth, userID, DeviceMeta{})

	options, err := svc.BeginRegistration(ctx, userID, "Test User")
	require.NoError(t, err)
	require.Len(t, options.Response.CredentialExcludeList, 1)
	assert.EqualValues(t, auth.CredentialID, options.Response.CredentialExcludeList[0].CredentialID)
}

func TestAuthenticationFlow(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)
	auth := newTestAuthenticator(t)
	userID := []byte("user-auth-flow")
	device := DeviceMeta{Label: "Pixel 9"}

	register(t, svc, auth, userID, device)

	options, err := svc.BeginAuthentication(ctx, userID)
	require.NoError(t, err)
	require.NotNil(t, options)
	assert.NotEmpty(t, options.Response.Challenge)
	require.Len(t, options.Response.AllowedCredentials, 1)
	assert.EqualValues(t, auth.CredentialID, options.Response.AllowedCredentials[0].CredentialID)

	assertion, err := auth.CreateAssertionResponse(options.Response.Challenge, userID, testOrigin)
	require.NoError(t, err)

	result, err := svc.FinishAuthentication(ctx, userID, assertion)
	require.NoError(t, err)
	require.NotNil(t, result)

	assert.Equal(t, userID, result.UserID)
	assert.Equal(t, auth.CredentialID, result.CredentialID)
	assert.Equal(t, CeremonyAuthentication, result.Kind)
	assert.Equal(t, device, result.Device)

	// The stored counter advanced and last-used was stamped.
	creds, err := svc.ListCredentials(ctx, userID)
	require.NoError(t, err)
	require.Len(t, creds, 1)
	assert.Equal(t, auth.SignCount, creds[0].Authenticator.SignCount)
	assert.False(t, creds[0].LastUsedAt.IsZero())
}

func TestAuthentication_NoCredentials(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)

	_, err := svc.BeginAuthentication(ctx, []byte("user-none"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNoCredentials)
}

func TestAuthentication_ReplayAssertion(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)
	auth := newTestAuthenticator(t)
	userID := []byte("user-replay-auth")

	register(t, svc, auth, userID, DeviceMeta{})

	options, err := svc.BeginAuthentication(ctx, userID)
	require.NoError(t, err)

	assertion, err := auth.CreateAssertionResponse(options.Response.Challenge, userID, testOrigin)
	require.NoError(t, err)

	_, err = svc.FinishAuthentication(ctx, userID, assertion)
	require.NoError(t, err)

	// Identical bytes replayed: the challenge is gone, regardless of how
	// valid the signature still is.
	_, err = svc.FinishAuthentication(ctx, userID, assertion)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrChallengeNotFound)
}

func TestAuthentication_UnknownCredential(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)
	userA := []byte("user-cross-a")
	userB := []byte("user-cross-b")

	authA := newTestAuthenticator(t)
	authB := newTestAuthenticator(t)
	register(t, svc, authA, userA, DeviceMeta{})
	register(t, svc, authB, userB, DeviceMeta{})

	options, err := svc.BeginAuthentication(ctx, userA)
	require.NoError(t, err)

	// Another user's credential answers A's challenge: lookup is scoped to
	// A's registry, so the credential is treated as unknown.
	assertion, err := authB.CreateAssertionResponse(options.Response.Challenge, userA, testOrigin)
	require.NoError(t, err)

	_, err = svc.FinishAuthentication(ctx, userA, assertion)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnknownCredential)
}

func TestAuthentication_CloneDetection(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)
	auth := newTestAuthenticator(t)
	userID := []byte("user-clone")

	register(t, svc, auth, userID, DeviceMeta{})

	// A legitimate authentication advances the counter past zero.
	options, err := svc.BeginAuthentication(ctx, userID)
	require.NoError(t, err)
	assertion, err := auth.CreateAssertionResponse(options.Response.Challenge, userID, testOrigin)
	require.NoError(t, err)
	_, err = svc.FinishAuthentication(ctx, userID, assertion)
	require.NoError(t, err)

	// A clone replaying the same counter value regresses the check. The
	// ceremony fails and the credential is flagged but stays registered.
	options, err = svc.BeginAuthentication(ctx, userID)
	require.NoError(t, err)
	stale, err := auth.CreateStaleAssertionResponse(options.Response.Challenge, userID, testOrigin)
	require.NoError(t, err)

	_, err = svc.FinishAuthentication(ctx, userID, stale)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrClonedAuthenticator)
	assert.True(t, IsCloneDetected(err))

	creds, err := svc.ListCredentials(ctx, userID)
	require.NoError(t, err)
	require.Len(t, creds, 1)
	assert.True(t, creds[0].Authenticator.CloneWarning)
}

func TestAuthentication_ZeroCounterTolerated(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)
	auth := newTestAuthenticator(t)
	userID := []byte("user-zero-counter")

	register(t, svc, auth, userID, DeviceMeta{})

	// Authenticators that never implement counters report zero on every
	// use. Stored zero and reported zero is not a regression.
	options, err := svc.BeginAuthentication(ctx, userID)
	require.NoError(t, err)
	assertion, err := auth.CreateStaleAssertionResponse(options.Response.Challenge, userID, testOrigin)
	require.NoError(t, err)

	result, err := svc.FinishAuthentication(ctx, userID, assertion)
	require.NoError(t, err)
	assert.Equal(t, auth.CredentialID, result.CredentialID)
}

func TestAuthentication_ExpiredChallenge(t *testing.T) {
	ctx := context.Background()
	cfg := validTestConfig()
	cfg.ChallengeTTL = 20 * time.Millisecond

	svc, err := NewService(ServiceParams{
		Config:          cfg,
		ChallengeStore:  NewMemoryChallengeStore(),
		CredentialStore: NewMemoryCredentialStore(),
	})
	require.NoError(t, err)

	auth := newTestAuthenticator(t)
	userID := []byte("user-expired")
	register(t, svc, auth, userID, DeviceMeta{})

	options, err := svc.BeginAuthentication(ctx, userID)
	require.NoError(t, err)

	assertion, err := auth.CreateAssertionResponse(options.Response.Challenge, userID, testOrigin)
	require.NoError(t, err)

	time.Sleep(50 * time.Millisecond)

	_, err = svc.FinishAuthentication(ctx, userID, assertion)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrChallengeNotFound)
}

func TestAuthentication_AfterRevocation(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)
	auth := newTestAuthenticator(t)
	userID := []byte("user-revoked")

	register(t, svc, auth, userID, DeviceMeta{})

	require.NoError(t, svc.RevokeCredential(ctx, userID, auth.CredentialID))

	_, err := svc.BeginAuthentication(ctx, userID)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNoCredentials)
}
