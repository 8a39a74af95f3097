// Package auth gates access to the MCP endpoint. A request presents a
// bearer credential; an Authenticator decides whether it is valid and who
// it belongs to. Several authenticators can be chained so that tokens
// minted by the embedded authorization server, static API keys, and
// upstream-issued JWTs are all accepted through one check.
package auth

import (
	"context"
	"errors"
)

// ErrUnauthorized indicates the presented credential is missing, malformed,
// expired, or unknown.
var ErrUnauthorized = errors.New("auth: unauthorized")

// Principal identifies an authenticated caller.
type Principal interface {
	// Subject is a stable identifier for the caller: a client_id for
	// OAuth tokens, a fingerprint for API keys, a sub claim for JWTs.
	Subject() string
	// Kind names the credential mechanism that admitted the caller,
	// one of "oauth", "api_key", or "jwt".
	Kind() string
}

// Authenticator validates a bearer credential.
type Authenticator interface {
	// CheckAuthentication returns the authenticated principal, or an
	// error wrapping ErrUnauthorized when the credential is rejected.
	CheckAuthentication(ctx context.Context, tok string) (Principal, error)
}

type principal struct {
	subject string
	kind    string
}

func (p *principal) Subject() string { return p.subject }
func (p *principal) Kind() string    { return p.kind }

// NewPrincipal constructs a Principal with the given subject and kind.
func NewPrincipal(subject, kind string) Principal {
	return &principal{subject: subject, kind: kind}
}
