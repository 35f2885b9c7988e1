package secrets

import (
	"bytes"
	"strings"
	"testing"
)

func TestFieldCipherRoundTrip(t *testing.T) {
	c, err := NewFieldCipher([]byte(strings.Repeat("k", 32)))
	if err != nil {
		t.Fatalf("NewFieldCipher: %v", err)
	}

	plaintext := []byte("super-secret-rpc-credential")
	ciphertext, err := c.Encrypt(plaintext)
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	if bytes.Contains(ciphertext, plaintext) {
		t.Fatal("ciphertext must not contain the plaintext")
	}

	decrypted, err := c.Decrypt(ciphertext)
	if err != nil {
		t.Fatalf("Decrypt: %v", err)
	}
	if !bytes.Equal(decrypted, plaintext) {
		t.Fatalf("got %q, want %q", decrypted, plaintext)
	}
}

func TestFieldCipherRejectsWrongKey(t *testing.T) {
	c1, _ := NewFieldCipher([]byte(strings.Repeat("k", 32)))
	c2, _ := NewFieldCipher([]byte(strings.Repeat("j", 32)))

	ciphertext, _ := c1.Encrypt([]byte("hello"))
	if _, err := c2.Decrypt(ciphertext); err == nil {
		t.Fatal("expected decryption failure with the wrong key")
	}
}

func TestFieldCipherRejectsShortKey(t *testing.T) {
	if _, err := NewFieldCipher([]byte("short")); err == nil {
		t.Fatal("expected error for short cipher key")
	}
}
