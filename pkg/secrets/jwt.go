package secrets

import (
	"errors"
	"fmt"
	"time"

	"github.com/go-jose/go-jose/v4"
	"github.com/go-jose/go-jose/v4/jwt"
)

// Claims is the wire payload carried by an access JWT. It is intentionally
// generic — the RBAC semantics of Access live in pkg/claims, which builds a
// richer type on top of this envelope. Keeping the envelope generic here
// means the signer has no dependency on the RBAC graph.
type Claims struct {
	ResourceType string            `json:"res_type"`
	ResourceID   string            `json:"res_id"`
	IssuedAt     int64             `json:"iat"`
	ExpiresAt    int64             `json:"exp"`
	AccessKind   string            `json:"access_kind"`   // "roles" | "perms"
	AccessMode   string            `json:"access_mode"`   // "one" | "all" | "any"
	AccessValues []string          `json:"access_values"` // role or permission names
	Data         map[string]string `json:"data,omitempty"`
}

// Signer encodes and verifies access JWTs using HS512.
type Signer struct {
	key []byte
}

// NewSigner builds a Signer from a shared secret. The secret must be at
// least 32 bytes, matching the HS512 key-strength floor.
func NewSigner(secret []byte) (*Signer, error) {
	if len(secret) < 32 {
		return nil, fmt.Errorf("secrets: JWT signing secret must be at least 32 bytes, got %d", len(secret))
	}
	return &Signer{key: secret}, nil
}

// EncodeJWT signs claims and returns the compact serialization.
func (s *Signer) EncodeJWT(c Claims) (string, error) {
	signer, err := jose.NewSigner(
		jose.SigningKey{Algorithm: jose.HS512, Key: s.key},
		(&jose.SignerOptions{}).WithType("JWT"),
	)
	if err != nil {
		return "", fmt.Errorf("secrets: creating signer: %w", err)
	}

	token, err := jwt.Signed(signer).Claims(c).Serialize()
	if err != nil {
		return "", fmt.Errorf("secrets: signing claims: %w", err)
	}
	return token, nil
}

// DecodeJWT verifies the signature and expiry of raw and returns its claims.
func (s *Signer) DecodeJWT(raw string) (Claims, error) {
	return s.decode(raw, true)
}

// DecodeExpiredJWT verifies only the signature, skipping the expiry check.
// It exists solely for the "rotate roles of an expired token" flow, which
// additionally requires the caller to present a still-valid refresh token —
// enforced by pkg/claims, not here.
func (s *Signer) DecodeExpiredJWT(raw string) (Claims, error) {
	return s.decode(raw, false)
}

func (s *Signer) decode(raw string, enforceExpiry bool) (Claims, error) {
	tok, err := jwt.ParseSigned(raw, []jose.SignatureAlgorithm{jose.HS512})
	if err != nil {
		return Claims{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	var c Claims
	if err := tok.Claims(s.key, &c); err != nil {
		return Claims{}, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}

	if enforceExpiry {
		now := time.Now().UTC().Unix()
		if now > c.ExpiresAt {
			return Claims{}, ErrExpired
		}
	}

	if c.IssuedAt > c.ExpiresAt {
		return Claims{}, fmt.Errorf("%w: issued_at after expires_at", ErrMalformed)
	}

	return c, nil
}

// IsExpiredErr reports whether err denotes an expired token. It is used by
// callers that need to branch between "expired" (debug-logged, expected) and
// other auth failures (warn-logged).
func IsExpiredErr(err error) bool {
	return errors.Is(err, ErrExpired)
}
