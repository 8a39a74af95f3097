package auth

import (
	"context"
	"fmt"
)

// Chain tries each authenticator in order and admits the caller on the
// first success. A credential rejected by every link is unauthorized.
type Chain struct {
	links []Authenticator
}

var _ Authenticator = (*Chain)(nil)

// NewChain constructs a Chain from the given authenticators. Nil entries
// are skipped.
func NewChain(links ...Authenticator) *Chain {
	c := &Chain{}
	for _, l := range links {
		if l != nil {
			c.links = append(c.links, l)
		}
	}
	return c
}

func (c *Chain) CheckAuthentication(ctx context.Context, tok string) (Principal, error) {
	if len(c.links) == 0 {
		return nil, fmt.Errorf("%w: no authenticators configured", ErrUnauthorized)
	}
	var lastErr error
	for _, l := range c.links {
		p, err := l.CheckAuthentication(ctx, tok)
		if err == nil {
			return p, nil
		}
		lastErr = err
	}
	return nil, lastErr
}
