package secrets

import (
	"strings"
	"testing"
	"time"
)

func TestEncodeDecodeRefreshRoundTrip(t *testing.T) {
	s, err := NewRefreshSigner(testKey())
	if err != nil {
		t.Fatalf("NewRefreshSigner: %v", err)
	}

	now := time.Now().UTC().Unix()
	c := RefreshClaims{ResourceType: "user", ResourceID: "abc", IssuedAt: now, ExpiresAt: now + 86400}

	token, err := s.EncodeRefresh(c)
	if err != nil {
		t.Fatalf("EncodeRefresh: %v", err)
	}

	decoded, err := s.DecodeRefresh(token)
	if err != nil {
		t.Fatalf("DecodeRefresh: %v", err)
	}
	if decoded.ResourceID != c.ResourceID {
		t.Fatalf("mismatch: got %+v, want %+v", decoded, c)
	}
}

func TestDecodeRefreshExpired(t *testing.T) {
	s, _ := NewRefreshSigner(testKey())
	now := time.Now().UTC().Unix()
	token, _ := s.EncodeRefresh(RefreshClaims{ResourceType: "user", ResourceID: "abc", IssuedAt: now - 200, ExpiresAt: now - 100})

	if _, err := s.DecodeRefresh(token); !IsExpiredErr(err) {
		t.Fatalf("expected expired error, got %v", err)
	}
}

func TestCookieString(t *testing.T) {
	exp := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	got := CookieString("tok123", exp)
	want := "refresh=tok123; Path=/; Expires=" + exp.Format(time.RFC1123) + "; Secure; HttpOnly; SameSite=Lax"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
	if !strings.Contains(got, "HttpOnly") {
		t.Fatal("cookie must be HttpOnly")
	}
}
