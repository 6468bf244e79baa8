package persistence

import (
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/chacha20poly1305"
)

// sealedPrefix marks a sealed value; values without it are plaintext
const sealedPrefix = "enc:v1:"

var (
	// ErrInvalidSecretKey is returned when the key is neither 32 raw bytes nor 64 hex characters
	ErrInvalidSecretKey = errors.New("persistence: secret key must be 32 bytes or 64 hex characters")
	// ErrSecretKeyRequired is returned when a sealed value is read without a key
	ErrSecretKeyRequired = errors.New("persistence: sealed secret found but no secret key configured")
	// ErrCorruptSecret is returned when a sealed value fails to open
	ErrCorruptSecret = errors.New("persistence: sealed secret is corrupt")
)

// SecretCipher seals store credentials at rest with XChaCha20-Poly1305.
// A nil *SecretCipher stores plaintext.
type SecretCipher struct {
	aead cipher.AEAD
}

// NewSecretCipher parses key. An empty key returns a nil cipher.
func NewSecretCipher(key string) (*SecretCipher, error) {
	if key == "" {
		return nil, nil
	}

	raw := []byte(key)
	if len(key) == 2*chacha20poly1305.KeySize {
		decoded, err := hex.DecodeString(key)
		if err != nil {
			return nil, ErrInvalidSecretKey
		}
		raw = decoded
	}
	if len(raw) != chacha20poly1305.KeySize {
		return nil, ErrInvalidSecretKey
	}

	aead, err := chacha20poly1305.NewX(raw)
	if err != nil {
		return nil, fmt.Errorf("persistence: init cipher: %w", err)
	}
	return &SecretCipher{aead: aead}, nil
}

// Seal encrypts plaintext. Empty values and a nil cipher pass through.
func (c *SecretCipher) Seal(plaintext string) (string, error) {
	if c == nil || plaintext == "" || strings.HasPrefix(plaintext, sealedPrefix) {
		return plaintext, nil
	}

	nonce := make([]byte, c.aead.NonceSize(), c.aead.NonceSize()+len(plaintext)+c.aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("persistence: nonce: %w", err)
	}
	sealed := c.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return sealedPrefix + base64.RawStdEncoding.EncodeToString(sealed), nil
}

// Open decrypts a value produced by Seal. Plaintext values pass through.
func (c *SecretCipher) Open(stored string) (string, error) {
	if !strings.HasPrefix(stored, sealedPrefix) {
		return stored, nil
	}
	if c == nil {
		return "", ErrSecretKeyRequired
	}

	data, err := base64.RawStdEncoding.DecodeString(strings.TrimPrefix(stored, sealedPrefix))
	if err != nil || len(data) < c.aead.NonceSize() {
		return "", ErrCorruptSecret
	}
	nonce, ciphertext := data[:c.aead.NonceSize()], data[c.aead.NonceSize():]
	plaintext, err := c.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", ErrCorruptSecret
	}
	return string(plaintext), nil
}
