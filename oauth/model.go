package oauth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"time"
)

// ErrNotFound indicates the requested record does not exist (or has expired
// and been purged). Stores return it for misses; the service maps it onto
// the OAuth error vocabulary.
var ErrNotFound = errors.New("oauth: not found")

// Client is a registered OAuth client. Records are immutable after
// registration; the secret is returned to the caller exactly once, at
// registration time.
type Client struct {
	ID            string    `json:"client_id"`
	Secret        string    `json:"client_secret,omitempty"`
	Name          string    `json:"client_name,omitempty"`
	RedirectURIs  []string  `json:"redirect_uris"`
	GrantTypes    []string  `json:"grant_types"`
	ResponseTypes []string  `json:"response_types"`
	Scope         string    `json:"scope,omitempty"`
	CreatedAt     time.Time `json:"-"`
}

// HasRedirectURI reports whether uri is one of the client's registered
// redirect URIs. Comparison is exact; no prefix matching.
func (c *Client) HasRedirectURI(uri string) bool {
	for _, u := range c.RedirectURIs {
		if u == uri {
			return true
		}
	}
	return false
}

// AuthorizationCode is a short-lived, one-time-use grant bound to a PKCE
// challenge. Consuming it deletes it.
type AuthorizationCode struct {
	Code                string    `json:"code"`
	ClientID            string    `json:"client_id"`
	RedirectURI         string    `json:"redirect_uri"`
	Scope               string    `json:"scope"`
	CodeChallenge       string    `json:"code_challenge"`
	CodeChallengeMethod string    `json:"code_challenge_method"`
	CreatedAt           time.Time `json:"created_at"`
	ExpiresAt           time.Time `json:"expires_at"`
}

// Expired reports whether the code's TTL has elapsed at now.
func (c *AuthorizationCode) Expired(now time.Time) bool {
	return now.After(c.ExpiresAt)
}

// AccessToken is an opaque bearer credential. Validity is computed lazily
// from CreatedAt and ExpiresIn; expired tokens are purged on next lookup.
type AccessToken struct {
	Token     string    `json:"token"`
	TokenType string    `json:"token_type"`
	Scope     string    `json:"scope"`
	ClientID  string    `json:"client_id"`
	ExpiresIn int64     `json:"expires_in"`
	CreatedAt time.Time `json:"created_at"`
}

// ExpiresAt returns the instant the token stops being valid.
func (t *AccessToken) ExpiresAt() time.Time {
	return t.CreatedAt.Add(time.Duration(t.ExpiresIn) * time.Second)
}

// Active reports whether the token is valid at now.
func (t *AccessToken) Active(now time.Time) bool {
	return now.Before(t.ExpiresAt())
}

// RefreshToken is redeemable exactly for a new AccessToken of the same
// scope and client. It carries no expiry and is not rotated on use; see
// Service.refreshTokenGrant for the rationale.
type RefreshToken struct {
	Token     string    `json:"token"`
	ClientID  string    `json:"client_id"`
	Scope     string    `json:"scope"`
	CreatedAt time.Time `json:"created_at"`
}

// ClientStore persists registered clients.
type ClientStore interface {
	PutClient(ctx context.Context, c *Client) error
	// GetClient returns ErrNotFound for unknown ids.
	GetClient(ctx context.Context, id string) (*Client, error)
}

// CodeStore persists authorization codes.
type CodeStore interface {
	PutCode(ctx context.Context, c *AuthorizationCode) error
	// ConsumeCode atomically retrieves and deletes a code. Exactly one
	// concurrent caller can succeed; all others get ErrNotFound.
	ConsumeCode(ctx context.Context, code string) (*AuthorizationCode, error)
}

// TokenStore persists access and refresh tokens.
type TokenStore interface {
	PutAccessToken(ctx context.Context, t *AccessToken) error
	GetAccessToken(ctx context.Context, token string) (*AccessToken, error)
	DeleteAccessToken(ctx context.Context, token string) error
	PutRefreshToken(ctx context.Context, t *RefreshToken) error
	GetRefreshToken(ctx context.Context, token string) (*RefreshToken, error)
}

// NewToken returns a 256-bit cryptographically random opaque token,
// base64url-encoded without padding. Used for client ids, client secrets,
// authorization codes, and both token kinds: four independent key spaces,
// one generator.
func NewToken() string {
	var b [32]byte
	if _, err := rand.Read(b[:]); err != nil {
		// rand.Read only fails when the platform CSPRNG is broken, at which
		// point minting any credential would be unsafe.
		panic(fmt.Sprintf("oauth: crypto/rand unavailable: %v", err))
	}
	return base64.RawURLEncoding.EncodeToString(b[:])
}
