package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/ggoodman/mcp-gateway-go/internal/jwtauth"
)

// KindJWT marks principals admitted via an upstream-issued JWT access token.
const KindJWT = "jwt"

// JWTAuthenticator adapts a jwtauth validator into the gate chain so that
// tokens minted by an external issuer are accepted alongside the gateway's
// own tokens.
type JWTAuthenticator struct {
	inner jwtauth.Authenticator
}

var _ Authenticator = (*JWTAuthenticator)(nil)

// NewJWTAuthenticator wraps a jwtauth.Authenticator.
func NewJWTAuthenticator(inner jwtauth.Authenticator) *JWTAuthenticator {
	return &JWTAuthenticator{inner: inner}
}

func (a *JWTAuthenticator) CheckAuthentication(ctx context.Context, tok string) (Principal, error) {
	ui, err := a.inner.CheckAuthentication(ctx, tok)
	if err != nil {
		if errors.Is(err, jwtauth.ErrUnauthorized) || errors.Is(err, jwtauth.ErrInsufficientScope) {
			return nil, fmt.Errorf("%w: %v", ErrUnauthorized, err)
		}
		return nil, err
	}
	return NewPrincipal(ui.UserID(), KindJWT), nil
}
