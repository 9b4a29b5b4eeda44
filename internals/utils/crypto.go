package utils

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"io"
)

// ErrDecrypt is returned when a sealed value cannot be opened with the key.
var ErrDecrypt = errors.New("decryption failed (wrong key or tampered data)")

// Encrypt seals plainText with AES-GCM under key (16, 24 or 32 bytes) and
// returns hex(nonce || ciphertext).
func Encrypt(plainText string, key []byte) (string, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return "", err
	}

	// Create a unique nonce for this specific encryption
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}

	// Seal appends the ciphertext to the nonce so only one column is stored
	cipherText := gcm.Seal(nonce, nonce, []byte(plainText), nil)

	return hex.EncodeToString(cipherText), nil
}

// Decrypt opens a value produced by Encrypt.
func Decrypt(cipherTextHex string, key []byte) (string, error) {
	data, err := hex.DecodeString(cipherTextHex)
	if err != nil {
		return "", err
	}

	gcm, err := newGCM(key)
	if err != nil {
		return "", err
	}

	nonceSize := gcm.NonceSize()
	if len(data) < nonceSize {
		return "", errors.New("ciphertext too short")
	}

	nonce, cipherText := data[:nonceSize], data[nonceSize:]
	plainText, err := gcm.Open(nil, nonce, cipherText, nil)
	if err != nil {
		return "", ErrDecrypt
	}

	return string(plainText), nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}
