package secrets

import (
	"strings"
	"testing"
	"time"
)

func testKey() []byte {
	return []byte(strings.Repeat("a", 32))
}

func TestEncodeDecodeJWTRoundTrip(t *testing.T) {
	s, err := NewSigner(testKey())
	if err != nil {
		t.Fatalf("NewSigner: %v", err)
	}

	now := time.Now().UTC().Unix()
	c := Claims{
		ResourceType: "user",
		ResourceID:   "11111111-1111-1111-1111-111111111111",
		IssuedAt:     now,
		ExpiresAt:    now + 3600,
		AccessKind:   "roles",
		AccessMode:   "many",
		AccessValues: []string{"org-admin"},
	}

	token, err := s.EncodeJWT(c)
	if err != nil {
		t.Fatalf("EncodeJWT: %v", err)
	}

	decoded, err := s.DecodeJWT(token)
	if err != nil {
		t.Fatalf("DecodeJWT: %v", err)
	}

	if decoded.ResourceID != c.ResourceID || decoded.ExpiresAt != c.ExpiresAt {
		t.Fatalf("round trip mismatch: got %+v, want %+v", decoded, c)
	}
}

func TestDecodeJWTExpired(t *testing.T) {
	s, _ := NewSigner(testKey())
	now := time.Now().UTC().Unix()
	c := Claims{ResourceType: "user", ResourceID: "x", IssuedAt: now - 7200, ExpiresAt: now - 3600}

	token, err := s.EncodeJWT(c)
	if err != nil {
		t.Fatalf("EncodeJWT: %v", err)
	}

	if _, err := s.DecodeJWT(token); !IsExpiredErr(err) {
		t.Fatalf("expected expired error, got %v", err)
	}

	// DecodeExpiredJWT tolerates the expiry but still validates the signature.
	decoded, err := s.DecodeExpiredJWT(token)
	if err != nil {
		t.Fatalf("DecodeExpiredJWT: %v", err)
	}
	if decoded.ResourceID != "x" {
		t.Fatalf("unexpected resource id: %s", decoded.ResourceID)
	}
}

func TestDecodeJWTInvalidSignature(t *testing.T) {
	s1, _ := NewSigner(testKey())
	s2, _ := NewSigner([]byte(strings.Repeat("b", 32)))

	now := time.Now().UTC().Unix()
	token, err := s1.EncodeJWT(Claims{ResourceType: "user", ResourceID: "x", IssuedAt: now, ExpiresAt: now + 60})
	if err != nil {
		t.Fatalf("EncodeJWT: %v", err)
	}

	if _, err := s2.DecodeJWT(token); err == nil {
		t.Fatal("expected signature verification failure with a different key")
	}
}

func TestDecodeJWTMalformedNeverPanics(t *testing.T) {
	s, _ := NewSigner(testKey())
	defer func() {
		if r := recover(); r != nil {
			t.Fatalf("DecodeJWT panicked on malformed input: %v", r)
		}
	}()
	if _, err := s.DecodeJWT("not a jwt at all"); err == nil {
		t.Fatal("expected error for malformed token")
	}
}

func TestNewSignerRejectsShortKey(t *testing.T) {
	if _, err := NewSigner([]byte("too-short")); err == nil {
		t.Fatal("expected error for short signing key")
	}
}
