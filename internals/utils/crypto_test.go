package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncryptDecrypt(t *testing.T) {
	key := []byte("0123456789abcdef")

	sealed, err := Encrypt("JBSWY3DPEHPK3PXP", key)
	require.NoError(t, err)

	again, err := Encrypt("JBSWY3DPEHPK3PXP", key)
	require.NoError(t, err)
	assert.NotEqual(t, sealed, again, "every seal uses a fresh nonce")

	plain, err := Decrypt(sealed, key)
	require.NoError(t, err)
	assert.Equal(t, "JBSWY3DPEHPK3PXP", plain)
}

func TestDecrypt_WrongKey(t *testing.T) {
	sealed, err := Encrypt("secret", []byte("0123456789abcdef"))
	require.NoError(t, err)

	_, err = Decrypt(sealed, []byte("fedcba9876543210"))
	assert.ErrorIs(t, err, ErrDecrypt)
}

func TestDecrypt_Malformed(t *testing.T) {
	key := []byte("0123456789abcdef")

	_, err := Decrypt("zz", key)
	assert.Error(t, err)

	_, err = Decrypt("abcd", key)
	assert.EqualError(t, err, "ciphertext too short")

	_, err = Encrypt("x", []byte("short"))
	assert.Error(t, err)
}
