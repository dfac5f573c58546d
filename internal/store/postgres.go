package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// PostgresCredentialStore is the durable CredentialStore backed by
// PostgreSQL. One row per user; writes go through a single upsert
// statement so the IV and both ciphertexts always land together.
type PostgresCredentialStore struct {
	db *sql.DB
}

// NewPostgresCredentialStore creates a PostgresCredentialStore.
func NewPostgresCredentialStore(db *sql.DB) *PostgresCredentialStore {
	return &PostgresCredentialStore{db: db}
}

// Upsert writes the credential record, replacing any existing row for the
// user (last-writer-wins at the row level).
func (s *PostgresCredentialStore) Upsert(ctx context.Context, cred *CalendarCredential) error {
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO calendar_credentials
		   (user_id, account_email, encrypted_access_token, encrypted_refresh_token, iv, scope, access_token_expires_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (user_id) DO UPDATE SET
		   account_email = EXCLUDED.account_email,
		   encrypted_access_token = EXCLUDED.encrypted_access_token,
		   encrypted_refresh_token = EXCLUDED.encrypted_refresh_token,
		   iv = EXCLUDED.iv,
		   scope = EXCLUDED.scope,
		   access_token_expires_at = EXCLUDED.access_token_expires_at,
		   updated_at = EXCLUDED.updated_at`,
		cred.UserID,
		cred.AccountEmail,
		cred.EncryptedAccessToken,
		cred.EncryptedRefreshToken,
		cred.IV,
		cred.Scope,
		cred.AccessTokenExpiresAt.UTC(),
		now,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert calendar credential: %w", err)
	}
	cred.UpdatedAt = now
	return nil
}

// Get returns the record for the user, or nil when not linked.
func (s *PostgresCredentialStore) Get(ctx context.Context, userID string) (*CalendarCredential, error) {
	cred := &CalendarCredential{}
	err := s.db.QueryRowContext(ctx,
		`SELECT user_id, account_email, encrypted_access_token, encrypted_refresh_token, iv, scope, access_token_expires_at, updated_at
		 FROM calendar_credentials
		 WHERE user_id = $1`,
		userID,
	).Scan(
		&cred.UserID,
		&cred.AccountEmail,
		&cred.EncryptedAccessToken,
		&cred.EncryptedRefreshToken,
		&cred.IV,
		&cred.Scope,
		&cred.AccessTokenExpiresAt,
		&cred.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read calendar credential: %w", err)
	}

	return cred, nil
}

// Delete removes the record; idempotent.
func (s *PostgresCredentialStore) Delete(ctx context.Context, userID string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM calendar_credentials WHERE user_id = $1`,
		userID,
	)
	if err != nil {
		return fmt.Errorf("failed to delete calendar credential: %w", err)
	}
	return nil
}

// compile-time interface check
var _ CredentialStore = (*PostgresCredentialStore)(nil)
