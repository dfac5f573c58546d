package crypto

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testKey(t *testing.T) []byte {
	t.Helper()
	key, err := ParseKeyHex(strings.Repeat("ab", KeySize))
	require.NoError(t, err)
	return key
}

func TestParseKeyHex(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{
			name:    "valid 64 hex chars",
			input:   strings.Repeat("0f", 32),
			wantErr: false,
		},
		{
			name:    "too short",
			input:   strings.Repeat("0f", 16),
			wantErr: true,
		},
		{
			name:    "too long",
			input:   strings.Repeat("0f", 48),
			wantErr: true,
		},
		{
			name:    "not hex",
			input:   strings.Repeat("zz", 32),
			wantErr: true,
		},
		{
			name:    "empty",
			input:   "",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			key, err := ParseKeyHex(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Len(t, key, KeySize)
		})
	}
}

func TestNewTokenCipher_RejectsBadKeySize(t *testing.T) {
	_, err := NewTokenCipher(make([]byte, 16))
	assert.Error(t, err)

	_, err = NewTokenCipher(nil)
	assert.Error(t, err)
}

func TestEncryptDecrypt_RoundTrip(t *testing.T) {
	c, err := NewTokenCipher(testKey(t))
	require.NoError(t, err)

	plaintexts := []string{
		"",
		"a",
		"ya29.a0AfB_byDSomeAccessToken",
		strings.Repeat("long refresh token payload ", 100),
	}

	for _, p := range plaintexts {
		iv, err := NewIV()
		require.NoError(t, err)
		require.Len(t, iv, IVSize)

		ct, err := c.Encrypt([]byte(p), iv)
		require.NoError(t, err)

		got, err := c.Decrypt(ct, iv)
		require.NoError(t, err)
		assert.Equal(t, p, string(got))
	}
}

func TestDecrypt_TamperDetection(t *testing.T) {
	c, err := NewTokenCipher(testKey(t))
	require.NoError(t, err)

	iv, err := NewIV()
	require.NoError(t, err)

	ct, err := c.Encrypt([]byte("secret-access-token"), iv)
	require.NoError(t, err)

	// Flipping any single bit anywhere in ciphertext or tag must fail closed.
	for i := range ct {
		tampered := bytes.Clone(ct)
		tampered[i] ^= 0x01

		_, err := c.Decrypt(tampered, iv)
		assert.ErrorIs(t, err, ErrIntegrity, "bit flip at byte %d must be detected", i)
	}
}

func TestDecrypt_WrongIV(t *testing.T) {
	c, err := NewTokenCipher(testKey(t))
	require.NoError(t, err)

	iv, err := NewIV()
	require.NoError(t, err)
	other, err := NewIV()
	require.NoError(t, err)

	ct, err := c.Encrypt([]byte("secret"), iv)
	require.NoError(t, err)

	_, err = c.Decrypt(ct, other)
	assert.ErrorIs(t, err, ErrIntegrity)
}

func TestDecrypt_WrongKey(t *testing.T) {
	c1, err := NewTokenCipher(testKey(t))
	require.NoError(t, err)

	otherKey, err := ParseKeyHex(strings.Repeat("cd", KeySize))
	require.NoError(t, err)
	c2, err := NewTokenCipher(otherKey)
	require.NoError(t, err)

	iv, err := NewIV()
	require.NoError(t, err)

	ct, err := c1.Encrypt([]byte("secret"), iv)
	require.NoError(t, err)

	_, err = c2.Decrypt(ct, iv)
	assert.ErrorIs(t, err, ErrIntegrity)
}

func TestDecrypt_TruncatedCiphertext(t *testing.T) {
	c, err := NewTokenCipher(testKey(t))
	require.NoError(t, err)

	iv, err := NewIV()
	require.NoError(t, err)

	_, err = c.Decrypt([]byte{0x01, 0x02}, iv)
	assert.ErrorIs(t, err, ErrIntegrity)
}

func TestNewIV_Unique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		iv, err := NewIV()
		require.NoError(t, err)
		assert.False(t, seen[string(iv)], "IV reuse detected")
		seen[string(iv)] = true
	}
}

func TestCipher_RejectsBadIVSize(t *testing.T) {
	c, err := NewTokenCipher(testKey(t))
	require.NoError(t, err)

	_, err = c.Encrypt([]byte("x"), make([]byte, 12))
	assert.Error(t, err)

	_, err = c.Decrypt([]byte("x"), make([]byte, 12))
	assert.Error(t, err)
}
