package store

import (
	"context"
	"time"
)

// CalendarCredential is the single encrypted credential record a user may
// hold. Its existence is the definition of "linked": absence means the user
// has no connected calendar, never "linked with empty credentials".
//
// Both ciphertexts in a record are always sealed under the IV stored next
// to them. Every write regenerates the IV and rewrites both ciphertexts
// together.
type CalendarCredential struct {
	UserID                string
	AccountEmail          string
	EncryptedAccessToken  []byte
	EncryptedRefreshToken []byte
	IV                    []byte
	Scope                 string
	AccessTokenExpiresAt  time.Time
	UpdatedAt             time.Time
}

// CredentialStore persists at most one CalendarCredential per user.
type CredentialStore interface {
	// Upsert writes the record, replacing any existing record for the
	// same user. The whole record is written in one statement so a
	// reader can never observe ciphertexts from two different writes.
	Upsert(ctx context.Context, cred *CalendarCredential) error

	// Get returns the record for the user, or nil when the user is not
	// linked.
	Get(ctx context.Context, userID string) (*CalendarCredential, error)

	// Delete removes the record. Deleting a non-existent record is not
	// an error.
	Delete(ctx context.Context, userID string) error
}
