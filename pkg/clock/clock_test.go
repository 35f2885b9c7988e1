package clock

import (
	"testing"
	"time"
)

func TestExpirableValidate(t *testing.T) {
	now := TruncSecond(Now())
	valid := Expirable{IssuedAt: now, ExpiresAt: now.Add(time.Hour)}
	if err := valid.Validate(); err != nil {
		t.Fatalf("expected valid expirable, got %v", err)
	}

	invalid := Expirable{IssuedAt: now.Add(time.Hour), ExpiresAt: now}
	if err := invalid.Validate(); err == nil {
		t.Fatal("expected error when issued_at is after expires_at")
	}
}

func TestExpirableExpired(t *testing.T) {
	now := TruncSecond(Now())
	e := Expirable{IssuedAt: now.Add(-time.Hour), ExpiresAt: now.Add(-time.Minute)}
	if !e.Expired(now) {
		t.Fatal("expected expirable to be expired")
	}

	fresh := Expirable{IssuedAt: now, ExpiresAt: now.Add(time.Hour)}
	if fresh.Expired(now) {
		t.Fatal("expected fresh expirable to not be expired")
	}
}

func TestTruncSecondDropsSubsecond(t *testing.T) {
	t1 := time.Date(2026, 1, 1, 0, 0, 0, 123456789, time.UTC)
	got := TruncSecond(t1)
	if got.Nanosecond() != 0 {
		t.Fatalf("expected zero nanoseconds, got %d", got.Nanosecond())
	}
}
