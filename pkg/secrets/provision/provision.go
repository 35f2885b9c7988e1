// Package provision issues and verifies the short-lived token a host agent
// trades for its own access/refresh token pair on first boot.
//
// A human is normally authenticated by redirecting them to a third-party
// OIDC provider, exchanging an authorization code for an ID token, and
// verifying that ID token with go-oidc against the provider's JWKS. A host
// agent has no browser and no third-party identity to redirect to, so the
// exchange here is shaped like golang.org/x/oauth2/clientcredentials
// instead of the authorization-code grant — the host presents a client id
// (its own host id) and a client secret (handed to it once, out of band,
// at host-create time) directly, with no redirect step. The token it
// receives back is still verified the same way: an *oidc.IDTokenVerifier
// checking signature and standard claims, just against this control
// plane's own key instead of a fetched one, since there is no external
// issuer to discover.
package provision

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/go-jose/go-jose/v4"
	"github.com/go-jose/go-jose/v4/jwt"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/fleetforge/controlplane/pkg/id"
)

const issuer = "fleetforge-controlplane"

// Claims is the bootstrap token's payload: it scopes the token to exactly
// one host and carries a random nonce. No redemption of the nonce is
// recorded, so a token can be redeemed repeatedly until it expires.
type Claims struct {
	HostID string `json:"host_id"`
	OrgID  string `json:"org_id"`
	Nonce  string `json:"nonce"`
}

// Issuer mints bootstrap tokens using an RSA key generated once at process
// start. Verification therefore only works within the process that minted
// the token — acceptable for a single-replica control plane; a multi-replica
// deployment would need this key shared (e.g. loaded from config) rather
// than generated fresh per process.
type Issuer struct {
	key *rsa.PrivateKey
}

// NewIssuer generates a fresh RSA signing key for bootstrap tokens.
func NewIssuer() (*Issuer, error) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return nil, fmt.Errorf("provision: generating signing key: %w", err)
	}
	return &Issuer{key: key}, nil
}

// Token mints a bootstrap token scoped to hostID/orgID, valid for ttl, and
// returns the token alongside its nonce so the caller can record the nonce
// as outstanding before handing the token to the host agent.
func (iss *Issuer) Token(hostID id.HostID, orgID id.OrgID, ttl time.Duration) (token, nonce string, err error) {
	nonce, err = randomNonce()
	if err != nil {
		return "", "", err
	}

	signer, err := jose.NewSigner(
		jose.SigningKey{Algorithm: jose.RS256, Key: iss.key},
		(&jose.SignerOptions{}).WithType("JWT"),
	)
	if err != nil {
		return "", "", fmt.Errorf("provision: creating signer: %w", err)
	}

	now := time.Now().UTC()
	std := jwt.Claims{
		Issuer:   issuer,
		Subject:  hostID.String(),
		IssuedAt: jwt.NewNumericDate(now),
		Expiry:   jwt.NewNumericDate(now.Add(ttl)),
	}
	bootstrap := Claims{HostID: hostID.String(), OrgID: orgID.String(), Nonce: nonce}

	raw, err := jwt.Signed(signer).Claims(std).Claims(bootstrap).Serialize()
	if err != nil {
		return "", "", fmt.Errorf("provision: signing token: %w", err)
	}
	return raw, nonce, nil
}

// Verifier checks a bootstrap token's signature and expiry via go-oidc's
// verifier, against a key set containing exactly this Issuer's public key.
type Verifier struct {
	v *oidc.IDTokenVerifier
}

// NewVerifier builds a Verifier for tokens minted by iss.
func NewVerifier(iss *Issuer) *Verifier {
	ks := &staticKeySet{public: &iss.key.PublicKey}
	return &Verifier{v: oidc.NewVerifier(issuer, ks, &oidc.Config{SkipClientIDCheck: true})}
}

// Verify checks raw's signature and expiry and returns its bootstrap claims.
// The caller is still responsible for checking the nonce hasn't already
// been redeemed — this package has no storage of its own.
func (ver *Verifier) Verify(ctx context.Context, raw string) (Claims, error) {
	idToken, err := ver.v.Verify(ctx, raw)
	if err != nil {
		return Claims{}, fmt.Errorf("provision: verifying bootstrap token: %w", err)
	}
	var c Claims
	if err := idToken.Claims(&c); err != nil {
		return Claims{}, fmt.Errorf("provision: decoding claims: %w", err)
	}
	return c, nil
}

// staticKeySet implements oidc.KeySet over a single local RSA public key,
// standing in for the remote JWKS an oidc.NewProvider would otherwise
// fetch over the network.
type staticKeySet struct {
	public *rsa.PublicKey
}

func (s *staticKeySet) VerifySignature(_ context.Context, rawJWT string) ([]byte, error) {
	sig, err := jose.ParseSigned(rawJWT, []jose.SignatureAlgorithm{jose.RS256})
	if err != nil {
		return nil, fmt.Errorf("provision: parsing token: %w", err)
	}
	return sig.Verify(s.public)
}

// ClientCredentialsConfig shapes a host agent's bootstrap request the same
// way golang.org/x/oauth2/clientcredentials.Config shapes any other
// client-credentials exchange: client_id is the host id, client_secret is
// the bootstrap secret the host was given once at host-create time, and
// tokenURL is this control plane's own bootstrap endpoint rather than a
// third party's token endpoint.
func ClientCredentialsConfig(hostID, secret, tokenURL string) clientcredentials.Config {
	return clientcredentials.Config{
		ClientID:     hostID,
		ClientSecret: secret,
		TokenURL:     tokenURL,
		AuthStyle:    clientcredentials.AuthStyleInParams,
	}
}

func randomNonce() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("provision: generating nonce: %w", err)
	}
	return hex.EncodeToString(b), nil
}
