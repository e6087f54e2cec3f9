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

// Package sqlitestore provides a durable SQLite-backed credential store
// using the pure-Go modernc.org/sqlite driver. Counter updates are
// compare-and-swap at the SQL level, so two racing authentications with
// the same credential cannot both commit.
package sqlitestore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-webauthn/webauthn/protocol"
	_ "modernc.org/sqlite"

	"github.com/meridianpress/go-passkey/pkg/passkey"
)

const schema = `
CREATE TABLE IF NOT EXISTS passkey_credentials (
	id               BLOB PRIMARY KEY,
	user_id          BLOB NOT NULL,
	public_key       BLOB NOT NULL,
	attestation_type TEXT NOT NULL DEFAULT '',
	transports       TEXT NOT NULL DEFAULT '[]',
	user_present     INTEGER NOT NULL DEFAULT 0,
	user_verified    INTEGER NOT NULL DEFAULT 0,
	backup_eligible  INTEGER NOT NULL DEFAULT 0,
	backup_state     INTEGER NOT NULL DEFAULT 0,
	aaguid           BLOB,
	sign_count       INTEGER NOT NULL DEFAULT 0,
	clone_warning    INTEGER NOT NULL DEFAULT 0,
	attachment       TEXT NOT NULL DEFAULT '',
	device_label     TEXT NOT NULL DEFAULT '',
	device_browser   TEXT NOT NULL DEFAULT '',
	created_at       INTEGER NOT NULL,
	last_used_at     INTEGER
);
CREATE INDEX IF NOT EXISTS idx_passkey_credentials_user
	ON passkey_credentials (user_id);
`

// CredentialStore implements passkey.CredentialStore on a SQLite database.
type CredentialStore struct {
	db *sql.DB
}

// Open opens (or creates) a SQLite database at dsn and prepares the
// credential schema. Use ":memory:" for an ephemeral store in tests.
func Open(dsn string) (*CredentialStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// modernc.org/sqlite serializes writes; a single connection avoids
	// SQLITE_BUSY on concurrent writers.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &CredentialStore{db: db}, nil
}

// New wraps an existing database handle and prepares the schema.
func New(db *sql.DB) (*CredentialStore, error) {
	if db == nil {
		return nil, fmt.Errorf("db handle is required")
	}
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &CredentialStore{db: db}, nil
}

// Close closes the underlying database.
func (s *CredentialStore) Close() error {
	return s.db.Close()
}

// Append stores a new credential. The primary key on the credential ID
// enforces global uniqueness across all users.
func (s *CredentialStore) Append(ctx context.Context, cred *passkey.Credential) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if cred == nil || len(cred.ID) == 0 {
		return passkey.ErrInvalidRequest
	}

	transports, err := json.Marshal(cred.Transports)
	if err != nil {
		return fmt.Errorf("encode transports: %w", err)
	}

	var lastUsed sql.NullInt64
	if !cred.LastUsedAt.IsZero() {
		lastUsed = sql.NullInt64{Int64: cred.LastUsedAt.UnixMilli(), Valid: true}
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO passkey_credentials (
			id, user_id, public_key, attestation_type, transports,
			user_present, user_verified, backup_eligible, backup_state,
			aaguid, sign_count, clone_warning, attachment,
			device_label, device_browser, created_at, last_used_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		cred.ID, cred.UserID, cred.PublicKey, cred.AttestationType, string(transports),
		cred.Flags.UserPresent, cred.Flags.UserVerified, cred.Flags.BackupEligible, cred.Flags.BackupState,
		cred.Authenticator.AAGUID, cred.Authenticator.SignCount, cred.Authenticator.CloneWarning,
		string(cred.Authenticator.Attachment),
		cred.Device.Label, cred.Device.Browser, cred.CreatedAt.UnixMilli(), lastUsed,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return passkey.ErrDuplicateCredential
		}
		return fmt.Errorf("insert credential: %w", err)
	}

	return nil
}

// List returns all credentials for a user in registration order.
func (s *CredentialStore) List(ctx context.Context, userID []byte) ([]*passkey.Credential, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, public_key, attestation_type, transports,
			user_present, user_verified, backup_eligible, backup_state,
			aaguid, sign_count, clone_warning, attachment,
			device_label, device_browser, created_at, last_used_at
		FROM passkey_credentials
		WHERE user_id = ?
		ORDER BY created_at, id`, userID)
	if err != nil {
		return nil, fmt.Errorf("list credentials: %w", err)
	}
	defer rows.Close()

	var creds []*passkey.Credential
	for rows.Next() {
		cred, err := scanCredential(rows)
		if err != nil {
			return nil, err
		}
		creds = append(creds, cred)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list credentials: %w", err)
	}

	return creds, nil
}

// Get returns one credential scoped to its owner. A credential belonging
// to a different user is indistinguishable from an absent one.
func (s *CredentialStore) Get(ctx context.Context, userID, credID []byte) (*passkey.Credential, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	row := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, public_key, attestation_type, transports,
			user_present, user_verified, backup_eligible, backup_state,
			aaguid, sign_count, clone_warning, attachment,
			device_label, device_browser, created_at, last_used_at
		FROM passkey_credentials
		WHERE user_id = ? AND id = ?`, userID, credID)

	cred, err := scanCredential(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, passkey.ErrUnknownCredential
		}
		return nil, err
	}

	return cred, nil
}

// UpdateCounter advances the signature counter with compare-and-swap
// semantics. The update commits only if the stored counter still equals
// oldCount; a lost race surfaces as passkey.ErrCounterConflict.
func (s *CredentialStore) UpdateCounter(ctx context.Context, userID, credID []byte, oldCount, newCount uint32, usedAt time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE passkey_credentials
		SET sign_count = ?, last_used_at = ?
		WHERE user_id = ? AND id = ? AND sign_count = ?`,
		newCount, usedAt.UnixMilli(), userID, credID, oldCount)
	if err != nil {
		return fmt.Errorf("update counter: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update counter: %w", err)
	}
	if affected == 0 {
		// Distinguish a missing credential from a lost CAS race.
		if _, err := s.Get(ctx, userID, credID); err != nil {
			return err
		}
		return passkey.ErrCounterConflict
	}

	return nil
}

// Flag marks a credential with a clone warning. The credential stays in
// the registry for owner review.
func (s *CredentialStore) Flag(ctx context.Context, userID, credID []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE passkey_credentials
		SET clone_warning = 1
		WHERE user_id = ? AND id = ?`, userID, credID)
	if err != nil {
		return fmt.Errorf("flag credential: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("flag credential: %w", err)
	}
	if affected == 0 {
		return passkey.ErrUnknownCredential
	}

	return nil
}

// Delete removes a credential scoped to its owner.
func (s *CredentialStore) Delete(ctx context.Context, userID, credID []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx, `
		DELETE FROM passkey_credentials
		WHERE user_id = ? AND id = ?`, userID, credID)
	if err != nil {
		return fmt.Errorf("delete credential: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete credential: %w", err)
	}
	if affected == 0 {
		return passkey.ErrUnknownCredential
	}

	return nil
}

// scanner covers both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanCredential(row scanner) (*passkey.Credential, error) {
	var (
		cred       passkey.Credential
		transports string
		attachment string
		createdAt  int64
		lastUsed   sql.NullInt64
	)

	err := row.Scan(
		&cred.ID, &cred.UserID, &cred.PublicKey, &cred.AttestationType, &transports,
		&cred.Flags.UserPresent, &cred.Flags.UserVerified, &cred.Flags.BackupEligible, &cred.Flags.BackupState,
		&cred.Authenticator.AAGUID, &cred.Authenticator.SignCount, &cred.Authenticator.CloneWarning, &attachment,
		&cred.Device.Label, &cred.Device.Browser, &createdAt, &lastUsed,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan credential: %w", err)
	}

	if err := json.Unmarshal([]byte(transports), &cred.Transports); err != nil {
		return nil, fmt.Errorf("decode transports: %w", err)
	}
	cred.Authenticator.Attachment = protocol.AuthenticatorAttachment(attachment)
	cred.CreatedAt = time.UnixMilli(createdAt).UTC()
	if lastUsed.Valid {
		cred.LastUsedAt = time.UnixMilli(lastUsed.Int64).UTC()
	}

	return &cred, nil
}

// isUniqueViolation reports whether err is a SQLite primary key or unique
// constraint failure. String matching avoids depending on driver-specific
// error types.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "constraint failed: passkey_credentials.id")
}
