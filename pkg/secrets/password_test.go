package secrets

import (
	"context"
	"testing"
)

func TestHashAndComparePassword(t *testing.T) {
	ctx := context.Background()
	hash, err := HashPassword(ctx, "correct horse battery staple")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}

	ok, err := ComparePassword(ctx, hash, "correct horse battery staple")
	if err != nil {
		t.Fatalf("ComparePassword: %v", err)
	}
	if !ok {
		t.Fatal("expected password to match")
	}

	ok, err = ComparePassword(ctx, hash, "wrong password")
	if err != nil {
		t.Fatalf("ComparePassword: %v", err)
	}
	if ok {
		t.Fatal("expected password mismatch")
	}
}

func TestHashPasswordRespectsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// The context is already cancelled, so HashPassword must return its
	// error without producing a hash.
	if _, err := HashPassword(ctx, "x"); err == nil {
		t.Fatal("expected context error")
	}
}
