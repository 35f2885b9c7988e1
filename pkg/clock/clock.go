// Package clock centralizes the UTC time handling rules the control plane
// relies on: claims and refresh tokens compare at second precision, persisted
// rows are stored at microsecond precision.
package clock

import (
	"fmt"
	"time"
)

// Now returns the current time in UTC.
func Now() time.Time {
	return time.Now().UTC()
}

// TruncSecond truncates t to second precision in UTC, the precision claims
// and refresh tokens are compared at.
func TruncSecond(t time.Time) time.Time {
	return t.UTC().Truncate(time.Second)
}

// TruncMicro truncates t to microsecond precision in UTC, the precision rows
// are persisted at.
func TruncMicro(t time.Time) time.Time {
	return t.UTC().Truncate(time.Microsecond)
}

// Expirable is an embeddable (issued_at, expires_at) pair shared by claims,
// refresh tokens, and any other time-windowed token.
type Expirable struct {
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// NewExpirable builds an Expirable starting now with the given duration,
// both truncated to second precision.
func NewExpirable(d time.Duration) Expirable {
	now := TruncSecond(Now())
	return Expirable{IssuedAt: now, ExpiresAt: now.Add(d)}
}

// Validate enforces IssuedAt <= ExpiresAt.
func (e Expirable) Validate() error {
	if e.IssuedAt.After(e.ExpiresAt) {
		return fmt.Errorf("issued_at %s is after expires_at %s", e.IssuedAt, e.ExpiresAt)
	}
	return nil
}

// Expired reports whether now is strictly after ExpiresAt.
func (e Expirable) Expired(now time.Time) bool {
	return now.After(e.ExpiresAt)
}
