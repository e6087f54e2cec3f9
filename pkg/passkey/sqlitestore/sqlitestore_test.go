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

package sqlitestore

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-webauthn/webauthn/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridianpress/go-passkey/pkg/passkey"
)

func newTestStore(t *testing.T) *CredentialStore {
	t.Helper()
	store, err := Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func testCredential(userID, credID []byte) *passkey.Credential {
	return &passkey.Credential{
		ID:              credID,
		UserID:          userID,
		PublicKey:       []byte("cose-public-key"),
		AttestationType: "none",
		Transports:      []protocol.AuthenticatorTransport{protocol.USB},
		Flags: passkey.CredentialFlags{
			UserPresent:  true,
			UserVerified: true,
		},
		Authenticator: passkey.AuthenticatorData{
			AAGUID:     []byte("aaguid-16-bytes!"),
			SignCount:  0,
			Attachment: protocol.CrossPlatform,
		},
		Device:    passkey.DeviceMeta{Label: "YubiKey 5C", Browser: "test-agent"},
		CreatedAt: time.Now().UTC().Truncate(time.Millisecond),
	}
}

func TestCredentialStore_AppendAndGet(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	userID := []byte("user-1")
	credID := []byte("cred-1")

	want := testCredential(userID, credID)
	require.NoError(t, store.Append(ctx, want))

	got, err := store.Get(ctx, userID, credID)
	require.NoError(t, err)

	assert.Equal(t, want.ID, got.ID)
	assert.Equal(t, want.UserID, got.UserID)
	assert.Equal(t, want.PublicKey, got.PublicKey)
	assert.Equal(t, want.AttestationType, got.AttestationType)
	assert.Equal(t, want.Transports, got.Transports)
	assert.Equal(t, want.Flags, got.Flags)
	assert.Equal(t, want.Authenticator.AAGUID, got.Authenticator.AAGUID)
	assert.Equal(t, want.Authenticator.Attachment, got.Authenticator.Attachment)
	assert.Equal(t, want.Device, got.Device)
	assert.Equal(t, want.CreatedAt, got.CreatedAt)
	assert.True(t, got.LastUsedAt.IsZero())
}

func TestCredentialStore_AppendInvalid(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	assert.ErrorIs(t, store.Append(ctx, nil), passkey.ErrInvalidRequest)
	assert.ErrorIs(t, store.Append(ctx, testCredential([]byte("u"), nil)), passkey.ErrInvalidRequest)
}

func TestCredentialStore_DuplicateID(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	credID := []byte("cred-dup")

	require.NoError(t, store.Append(ctx, testCredential([]byte("user-a"), credID)))

	// Same ID for the same user.
	err := store.Append(ctx, testCredential([]byte("user-a"), credID))
	assert.ErrorIs(t, err, passkey.ErrDuplicateCredential)

	// Uniqueness holds across users too.
	err = store.Append(ctx, testCredential([]byte("user-b"), credID))
	assert.ErrorIs(t, err, passkey.ErrDuplicateCredential)
}

func TestCredentialStore_List(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	userID := []byte("user-list")

	first := testCredential(userID, []byte("cred-1"))
	first.CreatedAt = time.Now().Add(-time.Hour).UTC().Truncate(time.Millisecond)
	second := testCredential(userID, []byte("cred-2"))
	require.NoError(t, store.Append(ctx, first))
	require.NoError(t, store.Append(ctx, second))
	require.NoError(t, store.Append(ctx, testCredential([]byte("other-user"), []byte("cred-3"))))

	creds, err := store.List(ctx, userID)
	require.NoError(t, err)
	require.Len(t, creds, 2)
	assert.Equal(t, []byte("cred-1"), creds[0].ID)
	assert.Equal(t, []byte("cred-2"), creds[1].ID)

	creds, err = store.List(ctx, []byte("nobody"))
	require.NoError(t, err)
	assert.Empty(t, creds)
}

func TestCredentialStore_GetScopedToOwner(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	credID := []byte("cred-scoped")

	require.NoError(t, store.Append(ctx, testCredential([]byte("owner"), credID)))

	_, err := store.Get(ctx, []byte("someone-else"), credID)
	assert.ErrorIs(t, err, passkey.ErrUnknownCredential)

	_, err = store.Get(ctx, []byte("owner"), []byte("no-such-cred"))
	assert.ErrorIs(t, err, passkey.ErrUnknownCredential)
}

func TestCredentialStore_UpdateCounter(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	userID := []byte("user-cas")
	credID := []byte("cred-cas")

	require.NoError(t, store.Append(ctx, testCredential(userID, credID)))

	usedAt := time.Now().UTC().Truncate(time.Millisecond)
	require.NoError(t, store.UpdateCounter(ctx, userID, credID, 0, 5, usedAt))

	got, err := store.Get(ctx, userID, credID)
	require.NoError(t, err)
	assert.Equal(t, uint32(5), got.Authenticator.SignCount)
	assert.Equal(t, usedAt, got.LastUsedAt)

	// Stale oldCount loses the race.
	err = store.UpdateCounter(ctx, userID, credID, 0, 6, time.Now())
	assert.ErrorIs(t, err, passkey.ErrCounterConflict)

	// Counter unchanged after the conflict.
	got, err = store.Get(ctx, userID, credID)
	require.NoError(t, err)
	assert.Equal(t, uint32(5), got.Authenticator.SignCount)

	err = store.UpdateCounter(ctx, userID, []byte("no-such-cred"), 0, 1, time.Now())
	assert.ErrorIs(t, err, passkey.ErrUnknownCredential)
}

func TestCredentialStore_Flag(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	userID := []byte("user-flag")
	credID := []byte("cred-flag")

	require.NoError(t, store.Append(ctx, testCredential(userID, credID)))
	require.NoError(t, store.Flag(ctx, userID, credID))

	got, err := store.Get(ctx, userID, credID)
	require.NoError(t, err)
	assert.True(t, got.Authenticator.CloneWarning)

	// Flagged credentials stay visible to their owner.
	creds, err := store.List(ctx, userID)
	require.NoError(t, err)
	require.Len(t, creds, 1)

	assert.ErrorIs(t, store.Flag(ctx, userID, []byte("no-such-cred")), passkey.ErrUnknownCredential)
	assert.ErrorIs(t, store.Flag(ctx, []byte("someone-else"), credID), passkey.ErrUnknownCredential)
}

func TestCredentialStore_Delete(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	userID := []byte("user-del")
	credID := []byte("cred-del")

	require.NoError(t, store.Append(ctx, testCredential(userID, credID)))

	// Scoped: another user cannot delete it.
	assert.ErrorIs(t, store.Delete(ctx, []byte("someone-else"), credID), passkey.ErrUnknownCredential)

	require.NoError(t, store.Delete(ctx, userID, credID))
	assert.ErrorIs(t, store.Delete(ctx, userID, credID), passkey.ErrUnknownCredential)

	// A deleted ID can be registered again.
	require.NoError(t, store.Append(ctx, testCredential(userID, credID)))
}

func TestCredentialStore_CancelledContext(t *testing.T) {
	store := newTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.Error(t, store.Append(ctx, testCredential([]byte("u"), []byte("c"))))
	_, err := store.List(ctx, []byte("u"))
	assert.Error(t, err)
}

func TestOpen_FileBacked(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "credentials.db")

	store, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, store.Append(ctx, testCredential([]byte("u"), []byte("c"))))
	require.NoError(t, store.Close())

	// Credentials survive a reopen.
	store, err = Open(path)
	require.NoError(t, err)
	defer store.Close()

	got, err := store.Get(ctx, []byte("u"), []byte("c"))
	require.NoError(t, err)
	assert.Equal(t, []byte("c"), got.ID)
}

func TestNew_NilDB(t *testing.T) {
	_, err := New(nil)
	assert.Error(t, err)
}
