package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/ggoodman/mcp-gateway-go/oauth"
)

// KindOAuth marks principals admitted via a token minted by the embedded
// authorization server.
const KindOAuth = "oauth"

// TokenAuthenticator admits bearer tokens issued by the embedded
// authorization server.
type TokenAuthenticator struct {
	svc *oauth.Service
}

var _ Authenticator = (*TokenAuthenticator)(nil)

// NewTokenAuthenticator wraps an oauth.Service as an Authenticator.
func NewTokenAuthenticator(svc *oauth.Service) *TokenAuthenticator {
	return &TokenAuthenticator{svc: svc}
}

func (a *TokenAuthenticator) CheckAuthentication(ctx context.Context, tok string) (Principal, error) {
	if tok == "" {
		return nil, fmt.Errorf("%w: empty token", ErrUnauthorized)
	}
	at, err := a.svc.ValidateAccessToken(ctx, tok)
	if err != nil {
		if errors.Is(err, oauth.ErrNotFound) {
			return nil, fmt.Errorf("%w: unknown or expired token", ErrUnauthorized)
		}
		return nil, fmt.Errorf("validating access token: %w", err)
	}
	return NewPrincipal(at.ClientID, KindOAuth), nil
}
