package secrets

import (
	"fmt"
	"time"

	"github.com/go-jose/go-jose/v4"
	"github.com/go-jose/go-jose/v4/jwt"
)

// RefreshClaims is the payload of a refresh token: it carries only a
// resource identity and an expiry window, never an access grant.
type RefreshClaims struct {
	ResourceType string `json:"res_type"`
	ResourceID   string `json:"res_id"`
	IssuedAt     int64  `json:"iat"`
	ExpiresAt    int64  `json:"exp"`
}

// RefreshSigner encodes and verifies refresh tokens with HS512, using a key
// distinct from the access-token signer so a compromised refresh secret
// cannot be used to forge access tokens and vice versa.
type RefreshSigner struct {
	key []byte
}

// NewRefreshSigner builds a RefreshSigner from a shared secret of at least 32 bytes.
func NewRefreshSigner(secret []byte) (*RefreshSigner, error) {
	if len(secret) < 32 {
		return nil, fmt.Errorf("secrets: refresh signing secret must be at least 32 bytes, got %d", len(secret))
	}
	return &RefreshSigner{key: secret}, nil
}

// EncodeRefresh signs a refresh token.
func (s *RefreshSigner) EncodeRefresh(c RefreshClaims) (string, error) {
	signer, err := jose.NewSigner(
		jose.SigningKey{Algorithm: jose.HS512, Key: s.key},
		(&jose.SignerOptions{}).WithType("JWT"),
	)
	if err != nil {
		return "", fmt.Errorf("secrets: creating refresh signer: %w", err)
	}

	token, err := jwt.Signed(signer).Claims(c).Serialize()
	if err != nil {
		return "", fmt.Errorf("secrets: signing refresh claims: %w", err)
	}
	return token, nil
}

// DecodeRefresh verifies the signature and expiry of a refresh token.
func (s *RefreshSigner) DecodeRefresh(raw string) (RefreshClaims, error) {
	tok, err := jwt.ParseSigned(raw, []jose.SignatureAlgorithm{jose.HS512})
	if err != nil {
		return RefreshClaims{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	var c RefreshClaims
	if err := tok.Claims(s.key, &c); err != nil {
		return RefreshClaims{}, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}

	if time.Now().UTC().Unix() > c.ExpiresAt {
		return RefreshClaims{}, ErrExpired
	}
	if c.IssuedAt > c.ExpiresAt {
		return RefreshClaims{}, fmt.Errorf("%w: issued_at after expires_at", ErrMalformed)
	}

	return c, nil
}

// CookieString renders a refresh token as a Set-Cookie value:
// "refresh=<token>; Path=/; Expires=<RFC1123>; Secure; HttpOnly; SameSite=Lax".
func CookieString(token string, expiresAt time.Time) string {
	return fmt.Sprintf(
		"refresh=%s; Path=/; Expires=%s; Secure; HttpOnly; SameSite=Lax",
		token, expiresAt.UTC().Format(time.RFC1123),
	)
}
