package secrets

import (
	"crypto/rand"
	"fmt"

	"golang.org/x/crypto/nacl/secretbox"
)

// FieldCipher encrypts and decrypts opaque per-user secrets, such as
// bootstrap secrets stored alongside a host. Built on
// golang.org/x/crypto/nacl/secretbox, the same crypto dependency already
// pulled in for password hashing, so field-level encryption needs no
// additional library.
type FieldCipher struct {
	key [32]byte
}

// NewFieldCipher builds a FieldCipher from a 32-byte key.
func NewFieldCipher(key []byte) (*FieldCipher, error) {
	if len(key) != 32 {
		return nil, fmt.Errorf("secrets: field cipher key must be 32 bytes, got %d", len(key))
	}
	var k [32]byte
	copy(k[:], key)
	return &FieldCipher{key: k}, nil
}

// Encrypt seals plaintext with a fresh random nonce prepended to the output.
func (c *FieldCipher) Encrypt(plaintext []byte) ([]byte, error) {
	var nonce [24]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return nil, fmt.Errorf("secrets: generating nonce: %w", err)
	}
	return secretbox.Seal(nonce[:], plaintext, &nonce, &c.key), nil
}

// Decrypt opens ciphertext produced by Encrypt.
func (c *FieldCipher) Decrypt(ciphertext []byte) ([]byte, error) {
	if len(ciphertext) < 24 {
		return nil, fmt.Errorf("%w: ciphertext too short", ErrMalformed)
	}
	var nonce [24]byte
	copy(nonce[:], ciphertext[:24])

	plaintext, ok := secretbox.Open(nil, ciphertext[24:], &nonce, &c.key)
	if !ok {
		return nil, ErrInvalidSignature
	}
	return plaintext, nil
}
