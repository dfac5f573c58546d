package tokens

import (
	"context"
	"fmt"
	"time"

	"github.com/CreateIntelligens/voicetextpro/internal/crypto"
	"github.com/CreateIntelligens/voicetextpro/internal/store"
)

// PlainCredential is a decrypted credential as it exists only in memory,
// inside this package's boundary. It is never persisted or logged as-is.
type PlainCredential struct {
	UserID       string
	AccountEmail string
	AccessToken  string
	RefreshToken string
	Scope        string
	ExpiresAt    time.Time
}

// Vault is the only component that moves credentials across the
// plaintext/ciphertext boundary. Every Save generates one fresh IV and
// seals both tokens under it, so a stored record can never mix IVs.
type Vault struct {
	store  store.CredentialStore
	cipher *crypto.TokenCipher
}

// NewVault creates a Vault over the given store and cipher.
func NewVault(s store.CredentialStore, c *crypto.TokenCipher) *Vault {
	return &Vault{store: s, cipher: c}
}

// Save encrypts both tokens under a fresh IV and upserts the record.
func (v *Vault) Save(ctx context.Context, in PlainCredential) error {
	iv, err := crypto.NewIV()
	if err != nil {
		return err
	}

	encAccess, err := v.cipher.Encrypt([]byte(in.AccessToken), iv)
	if err != nil {
		return fmt.Errorf("failed to encrypt access token: %w", err)
	}
	encRefresh, err := v.cipher.Encrypt([]byte(in.RefreshToken), iv)
	if err != nil {
		return fmt.Errorf("failed to encrypt refresh token: %w", err)
	}

	return v.store.Upsert(ctx, &store.CalendarCredential{
		UserID:                in.UserID,
		AccountEmail:          in.AccountEmail,
		EncryptedAccessToken:  encAccess,
		EncryptedRefreshToken: encRefresh,
		IV:                    iv,
		Scope:                 in.Scope,
		AccessTokenExpiresAt:  in.ExpiresAt.UTC(),
	})
}

// Open decrypts a stored record. A crypto.ErrIntegrity from either
// ciphertext means the record cannot be trusted at all; callers delete it
// and force a re-link.
func (v *Vault) Open(cred *store.CalendarCredential) (PlainCredential, error) {
	access, err := v.cipher.Decrypt(cred.EncryptedAccessToken, cred.IV)
	if err != nil {
		return PlainCredential{}, fmt.Errorf("access token: %w", err)
	}
	refresh, err := v.cipher.Decrypt(cred.EncryptedRefreshToken, cred.IV)
	if err != nil {
		return PlainCredential{}, fmt.Errorf("refresh token: %w", err)
	}

	return PlainCredential{
		UserID:       cred.UserID,
		AccountEmail: cred.AccountEmail,
		AccessToken:  string(access),
		RefreshToken: string(refresh),
		Scope:        cred.Scope,
		ExpiresAt:    cred.AccessTokenExpiresAt,
	}, nil
}

// Get reads the raw record without decrypting; nil when not linked.
func (v *Vault) Get(ctx context.Context, userID string) (*store.CalendarCredential, error) {
	return v.store.Get(ctx, userID)
}

// Delete removes the record; idempotent.
func (v *Vault) Delete(ctx context.Context, userID string) error {
	return v.store.Delete(ctx, userID)
}
