package crypto

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testKey = "6368616e676520746869732070617373776f726420746f206120736563726574"

func TestEncryptor_RoundTrip(t *testing.T) {
	enc, err := NewEncryptor(testKey)
	require.NoError(t, err)

	tests := []struct {
		name     string
		password string
	}{
		{"empty password", ""},
		{"typical password", "s3cret-pg-pass"},
		{"password with symbols", "p@ss w0rd/with:odd\"chars"},
		{"long password", "an-unreasonably-long-generated-database-password-0123456789-0123456789"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sealed, err := enc.Encrypt(tt.password)
			require.NoError(t, err)
			assert.NotEqual(t, tt.password, sealed)

			opened, err := enc.Decrypt(sealed)
			require.NoError(t, err)
			assert.Equal(t, tt.password, opened)
		})
	}
}

func TestEncryptor_FreshNoncePerCall(t *testing.T) {
	enc, err := NewEncryptor(testKey)
	require.NoError(t, err)

	c1, err := enc.Encrypt("same-password")
	require.NoError(t, err)
	c2, err := enc.Encrypt("same-password")
	require.NoError(t, err)

	assert.NotEqual(t, c1, c2, "same plaintext must seal to different ciphertexts")
}

func TestNewEncryptor_KeyErrors(t *testing.T) {
	_, err := NewEncryptor("abcd")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "32 bytes")

	_, err = NewEncryptor("zz")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode encryption key")
}

func TestDecrypt_Tampered(t *testing.T) {
	enc, err := NewEncryptor(testKey)
	require.NoError(t, err)

	sealed, err := enc.Encrypt("s3cret-pg-pass")
	require.NoError(t, err)

	_, err = enc.Decrypt("not hex")
	require.Error(t, err)

	_, err = enc.Decrypt("abcd")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "too short")

	// Flip the last hex digit so the GCM tag no longer matches.
	tail := sealed[len(sealed)-1]
	flip := byte('0')
	if tail == '0' {
		flip = '1'
	}
	_, err = enc.Decrypt(sealed[:len(sealed)-1] + string(flip))
	require.Error(t, err)
}

func TestDecrypt_WrongKey(t *testing.T) {
	enc, err := NewEncryptor(testKey)
	require.NoError(t, err)
	other, err := NewEncryptor("0000000000000000000000000000000000000000000000000000000000000000")
	require.NoError(t, err)

	sealed, err := enc.Encrypt("s3cret-pg-pass")
	require.NoError(t, err)

	_, err = other.Decrypt(sealed)
	require.Error(t, err)
}
