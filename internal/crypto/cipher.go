package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
)

const (
	// KeySize is 32 bytes for AES-256.
	KeySize = 32

	// IVSize is the initialization vector length in bytes. The stored
	// credential format uses a 16-byte IV, so the GCM instance is created
	// with a matching nonce size.
	IVSize = 16
)

// ErrIntegrity is returned by Decrypt when the authentication tag does not
// verify. This covers tampered ciphertext, a wrong key, and a wrong IV;
// altered plaintext is never returned.
var ErrIntegrity = errors.New("ciphertext integrity check failed")

// TokenCipher encrypts and decrypts OAuth tokens at rest using AES-256-GCM.
// The key is process-wide and read-only after construction, so a single
// instance is safe for concurrent use.
type TokenCipher struct {
	aead cipher.AEAD
}

// ParseKeyHex decodes a hex-encoded 256-bit key. The key must be exactly
// 64 hex characters; anything else is a configuration error.
func ParseKeyHex(s string) ([]byte, error) {
	key, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("encryption key is not valid hex: %w", err)
	}
	if len(key) != KeySize {
		return nil, fmt.Errorf("encryption key must be %d bytes (%d hex chars), got %d bytes", KeySize, KeySize*2, len(key))
	}
	return key, nil
}

// NewTokenCipher creates a TokenCipher from a raw 32-byte key.
func NewTokenCipher(key []byte) (*TokenCipher, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("invalid key size: expected %d, got %d", KeySize, len(key))
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	aead, err := cipher.NewGCMWithNonceSize(block, IVSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	return &TokenCipher{aead: aead}, nil
}

// NewIV generates a fresh random initialization vector. An IV must never be
// reused across writes; callers generate one per credential write and use it
// for every ciphertext in that write.
func NewIV() ([]byte, error) {
	iv := make([]byte, IVSize)
	if _, err := io.ReadFull(rand.Reader, iv); err != nil {
		return nil, fmt.Errorf("failed to generate IV: %w", err)
	}
	return iv, nil
}

// Encrypt seals plaintext under the given IV. The returned slice is the
// ciphertext with the GCM authentication tag appended.
func (c *TokenCipher) Encrypt(plaintext, iv []byte) ([]byte, error) {
	if len(iv) != IVSize {
		return nil, fmt.Errorf("invalid IV size: expected %d, got %d", IVSize, len(iv))
	}
	return c.aead.Seal(nil, iv, plaintext, nil), nil
}

// Decrypt opens ciphertext produced by Encrypt. It returns ErrIntegrity when
// the authentication tag does not verify.
func (c *TokenCipher) Decrypt(ciphertext, iv []byte) ([]byte, error) {
	if len(iv) != IVSize {
		return nil, fmt.Errorf("invalid IV size: expected %d, got %d", IVSize, len(iv))
	}
	if len(ciphertext) < c.aead.Overhead() {
		return nil, ErrIntegrity
	}

	plaintext, err := c.aead.Open(nil, iv, ciphertext, nil)
	if err != nil {
		return nil, ErrIntegrity
	}
	return plaintext, nil
}
