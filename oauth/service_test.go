package oauth_test

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/ggoodman/mcp-gateway-go/oauth"
	"github.com/ggoodman/mcp-gateway-go/oauth/memstore"
)

func challengeFor(verifier string) string {
	sum := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

func newTestService(t *testing.T, opts ...oauth.ServiceOption) *oauth.Service {
	t.Helper()
	store := memstore.New()
	t.Cleanup(store.Stop)
	return oauth.NewService(store, store, store, opts...)
}

func registerClient(t *testing.T, svc *oauth.Service) *oauth.Client {
	t.Helper()
	c, err := svc.RegisterClient(context.Background(), &oauth.RegistrationRequest{
		ClientName:   "test-client",
		RedirectURIs: []string{"https://client.example.com/cb"},
	})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	return c
}

// authorize runs the authorization leg and returns the issued code.
func authorize(t *testing.T, svc *oauth.Service, clientID, challenge, state string) string {
	t.Helper()
	redirect, err := svc.Authorize(context.Background(), &oauth.AuthorizeParams{
		ResponseType:        "code",
		ClientID:            clientID,
		RedirectURI:         "https://client.example.com/cb",
		State:               state,
		CodeChallenge:       challenge,
		CodeChallengeMethod: "S256",
	})
	if err != nil {
		t.Fatalf("authorize: %v", err)
	}
	u, err := url.Parse(redirect)
	if err != nil {
		t.Fatalf("parse redirect: %v", err)
	}
	code := u.Query().Get("code")
	if code == "" {
		t.Fatalf("redirect missing code: %s", redirect)
	}
	if got := u.Query().Get("state"); got != state {
		t.Fatalf("state roundtrip: want %q, got %q", state, got)
	}
	return code
}

func TestVerifyPKCE(t *testing.T) {
	verifier := "dBjftJeZ4CVP-mB92K27uhbUJU1p1r_wW1gFWFOEjXk"
	challenge := challengeFor(verifier)

	if !oauth.VerifyPKCE(verifier, challenge) {
		t.Fatalf("matching verifier rejected")
	}
	if oauth.VerifyPKCE("some-other-verifier", challenge) {
		t.Fatalf("mismatched verifier accepted")
	}
	if oauth.VerifyPKCE("", challenge) {
		t.Fatalf("empty verifier accepted")
	}
	// A challenge that is the plain verifier (not its hash) must not match.
	if oauth.VerifyPKCE(verifier, verifier) {
		t.Fatalf("plain-text challenge accepted")
	}
}

func TestRegisterClientValidation(t *testing.T) {
	svc := newTestService(t)

	if _, err := svc.RegisterClient(context.Background(), &oauth.RegistrationRequest{}); err == nil {
		t.Fatalf("registration without redirect_uris must fail")
	}
	if _, err := svc.RegisterClient(context.Background(), &oauth.RegistrationRequest{
		RedirectURIs: []string{"http://attacker.example.com/cb"},
	}); err == nil {
		t.Fatalf("plain http redirect on a non-loopback host must fail")
	}
	if _, err := svc.RegisterClient(context.Background(), &oauth.RegistrationRequest{
		RedirectURIs: []string{"http://localhost:3000/cb"},
	}); err != nil {
		t.Fatalf("loopback http redirect must be allowed: %v", err)
	}

	c := registerClient(t, svc)
	if c.ID == "" || c.Secret == "" {
		t.Fatalf("registered client missing credentials: %+v", c)
	}
	if len(c.GrantTypes) != 2 {
		t.Fatalf("want defaulted grant types, got %v", c.GrantTypes)
	}
}

func TestAuthorizationCodeFlow(t *testing.T) {
	svc := newTestService(t)
	c := registerClient(t, svc)

	verifier := "correct-horse-battery-staple-but-long-enough"
	code := authorize(t, svc, c.ID, challengeFor(verifier), "xyz")

	resp, err := svc.Exchange(context.Background(), &oauth.TokenRequest{
		GrantType:    "authorization_code",
		Code:         code,
		RedirectURI:  "https://client.example.com/cb",
		ClientID:     c.ID,
		CodeVerifier: verifier,
	})
	if err != nil {
		t.Fatalf("exchange: %v", err)
	}
	if resp.TokenType != "Bearer" {
		t.Fatalf("want Bearer, got %q", resp.TokenType)
	}
	if resp.ExpiresIn != 3600 {
		t.Fatalf("want expires_in 3600, got %d", resp.ExpiresIn)
	}
	if resp.RefreshToken == "" {
		t.Fatalf("authorization_code grant must mint a refresh token")
	}
	if resp.Scope != "mcp" {
		t.Fatalf("want default scope mcp, got %q", resp.Scope)
	}

	at, err := svc.ValidateAccessToken(context.Background(), resp.AccessToken)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if at.ClientID != c.ID {
		t.Fatalf("token bound to wrong client: %q", at.ClientID)
	}
}

func TestAuthorizationCodeIsSingleUse(t *testing.T) {
	svc := newTestService(t)
	c := registerClient(t, svc)

	verifier := "a-sufficiently-long-code-verifier-value"
	code := authorize(t, svc, c.ID, challengeFor(verifier), "")

	req := &oauth.TokenRequest{
		GrantType:    "authorization_code",
		Code:         code,
		RedirectURI:  "https://client.example.com/cb",
		ClientID:     c.ID,
		CodeVerifier: verifier,
	}
	if _, err := svc.Exchange(context.Background(), req); err != nil {
		t.Fatalf("first exchange: %v", err)
	}
	_, err := svc.Exchange(context.Background(), req)
	var oerr *oauth.Error
	if !errors.As(err, &oerr) || oerr.Code != oauth.ErrorInvalidGrant {
		t.Fatalf("second exchange must be invalid_grant, got %v", err)
	}
}

func TestAuthorizationCodeRejectsWrongVerifier(t *testing.T) {
	svc := newTestService(t)
	c := registerClient(t, svc)

	code := authorize(t, svc, c.ID, challengeFor("the-real-verifier-used-by-the-client"), "")

	_, err := svc.Exchange(context.Background(), &oauth.TokenRequest{
		GrantType:    "authorization_code",
		Code:         code,
		RedirectURI:  "https://client.example.com/cb",
		ClientID:     c.ID,
		CodeVerifier: "a-completely-different-verifier-value",
	})
	var oerr *oauth.Error
	if !errors.As(err, &oerr) || oerr.Code != oauth.ErrorInvalidGrant {
		t.Fatalf("wrong verifier must be invalid_grant, got %v", err)
	}
}

func TestAuthorizationCodeExpiry(t *testing.T) {
	now := time.Now()
	svc := newTestService(t, oauth.WithClock(func() time.Time { return now }))
	c := registerClient(t, svc)

	verifier := "yet-another-long-enough-code-verifier"
	code := authorize(t, svc, c.ID, challengeFor(verifier), "")

	now = now.Add(11 * time.Minute)

	_, err := svc.Exchange(context.Background(), &oauth.TokenRequest{
		GrantType:    "authorization_code",
		Code:         code,
		RedirectURI:  "https://client.example.com/cb",
		ClientID:     c.ID,
		CodeVerifier: verifier,
	})
	var oerr *oauth.Error
	if !errors.As(err, &oerr) || oerr.Code != oauth.ErrorInvalidGrant {
		t.Fatalf("expired code must be invalid_grant, got %v", err)
	}
}

func TestAuthorizeRejections(t *testing.T) {
	svc := newTestService(t)
	c := registerClient(t, svc)

	cases := []struct {
		name   string
		params oauth.AuthorizeParams
		code   string
	}{
		{"bad response_type", oauth.AuthorizeParams{ResponseType: "token", ClientID: c.ID, RedirectURI: "https://client.example.com/cb", CodeChallenge: challengeFor("v"), CodeChallengeMethod: "S256"}, oauth.ErrorUnsupportedResponseType},
		{"unknown client", oauth.AuthorizeParams{ResponseType: "code", ClientID: "nope", RedirectURI: "https://client.example.com/cb", CodeChallenge: challengeFor("v"), CodeChallengeMethod: "S256"}, oauth.ErrorInvalidClient},
		{"unregistered redirect", oauth.AuthorizeParams{ResponseType: "code", ClientID: c.ID, RedirectURI: "https://other.example.com/cb", CodeChallenge: challengeFor("v"), CodeChallengeMethod: "S256"}, oauth.ErrorInvalidRequest},
		{"missing challenge", oauth.AuthorizeParams{ResponseType: "code", ClientID: c.ID, RedirectURI: "https://client.example.com/cb"}, oauth.ErrorInvalidRequest},
		{"plain method", oauth.AuthorizeParams{ResponseType: "code", ClientID: c.ID, RedirectURI: "https://client.example.com/cb", CodeChallenge: challengeFor("v"), CodeChallengeMethod: "plain"}, oauth.ErrorInvalidRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Authorize(context.Background(), &tc.params)
			var oerr *oauth.Error
			if !errors.As(err, &oerr) || oerr.Code != tc.code {
				t.Fatalf("want %s, got %v", tc.code, err)
			}
		})
	}
}

func TestClientCredentialsGrant(t *testing.T) {
	svc := newTestService(t)
	c := registerClient(t, svc)

	resp, err := svc.Exchange(context.Background(), &oauth.TokenRequest{
		GrantType:    "client_credentials",
		ClientID:     c.ID,
		ClientSecret: c.Secret,
	})
	if err != nil {
		t.Fatalf("exchange: %v", err)
	}
	if resp.RefreshToken != "" {
		t.Fatalf("client_credentials must not mint a refresh token")
	}
	if resp.AccessToken == "" || resp.TokenType != "Bearer" {
		t.Fatalf("unexpected response: %+v", resp)
	}

	_, err = svc.Exchange(context.Background(), &oauth.TokenRequest{
		GrantType:    "client_credentials",
		ClientID:     c.ID,
		ClientSecret: "wrong-secret",
	})
	var oerr *oauth.Error
	if !errors.As(err, &oerr) || oerr.Code != oauth.ErrorInvalidClient {
		t.Fatalf("wrong secret must be invalid_client, got %v", err)
	}
}

func TestRefreshTokenGrant(t *testing.T) {
	svc := newTestService(t)
	c := registerClient(t, svc)

	verifier := "refresh-grant-code-verifier-long-enough"
	code := authorize(t, svc, c.ID, challengeFor(verifier), "")
	first, err := svc.Exchange(context.Background(), &oauth.TokenRequest{
		GrantType:    "authorization_code",
		Code:         code,
		RedirectURI:  "https://client.example.com/cb",
		ClientID:     c.ID,
		CodeVerifier: verifier,
	})
	if err != nil {
		t.Fatalf("exchange: %v", err)
	}

	second, err := svc.Exchange(context.Background(), &oauth.TokenRequest{
		GrantType:    "refresh_token",
		RefreshToken: first.RefreshToken,
		ClientID:     c.ID,
	})
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if second.AccessToken == first.AccessToken {
		t.Fatalf("refresh must mint a fresh access token")
	}

	// The refresh token is stable across uses.
	third, err := svc.Exchange(context.Background(), &oauth.TokenRequest{
		GrantType:    "refresh_token",
		RefreshToken: first.RefreshToken,
		ClientID:     c.ID,
	})
	if err != nil {
		t.Fatalf("second refresh: %v", err)
	}
	if third.AccessToken == second.AccessToken {
		t.Fatalf("each refresh must mint a distinct token")
	}

	// A refresh token is bound to its client.
	other := registerClient(t, svc)
	_, err = svc.Exchange(context.Background(), &oauth.TokenRequest{
		GrantType:    "refresh_token",
		RefreshToken: first.RefreshToken,
		ClientID:     other.ID,
	})
	var oerr *oauth.Error
	if !errors.As(err, &oerr) || oerr.Code != oauth.ErrorInvalidGrant {
		t.Fatalf("cross-client refresh must be invalid_grant, got %v", err)
	}
}

func TestUnsupportedGrantType(t *testing.T) {
	svc := newTestService(t)
	_, err := svc.Exchange(context.Background(), &oauth.TokenRequest{GrantType: "password"})
	var oerr *oauth.Error
	if !errors.As(err, &oerr) || oerr.Code != oauth.ErrorUnsupportedGrantType {
		t.Fatalf("want unsupported_grant_type, got %v", err)
	}
}

func TestAccessTokenLazyExpiry(t *testing.T) {
	now := time.Now()
	svc := newTestService(t, oauth.WithClock(func() time.Time { return now }))
	c := registerClient(t, svc)

	resp, err := svc.Exchange(context.Background(), &oauth.TokenRequest{
		GrantType:    "client_credentials",
		ClientID:     c.ID,
		ClientSecret: c.Secret,
	})
	if err != nil {
		t.Fatalf("exchange: %v", err)
	}

	if _, err := svc.ValidateAccessToken(context.Background(), resp.AccessToken); err != nil {
		t.Fatalf("fresh token rejected: %v", err)
	}

	now = now.Add(2 * time.Hour)

	if _, err := svc.ValidateAccessToken(context.Background(), resp.AccessToken); !errors.Is(err, oauth.ErrNotFound) {
		t.Fatalf("expired token: want ErrNotFound, got %v", err)
	}
	// The expired record was purged on that lookup; a fresh clock does not
	// resurrect it.
	now = now.Add(-2 * time.Hour)
	if _, err := svc.ValidateAccessToken(context.Background(), resp.AccessToken); !errors.Is(err, oauth.ErrNotFound) {
		t.Fatalf("purged token resurfaced: %v", err)
	}
}

func TestIntrospect(t *testing.T) {
	now := time.Now()
	svc := newTestService(t, oauth.WithClock(func() time.Time { return now }))
	c := registerClient(t, svc)

	resp, err := svc.Exchange(context.Background(), &oauth.TokenRequest{
		GrantType:    "client_credentials",
		ClientID:     c.ID,
		ClientSecret: c.Secret,
	})
	if err != nil {
		t.Fatalf("exchange: %v", err)
	}

	intro, err := svc.Introspect(context.Background(), resp.AccessToken)
	if err != nil {
		t.Fatalf("introspect: %v", err)
	}
	if !intro.Active || intro.ClientID != c.ID || intro.TokenType != "Bearer" {
		t.Fatalf("unexpected introspection: %+v", intro)
	}
	if intro.Exp <= now.Unix() {
		t.Fatalf("exp must be in the future: %d", intro.Exp)
	}

	unknown, err := svc.Introspect(context.Background(), "no-such-token")
	if err != nil {
		t.Fatalf("introspect unknown: %v", err)
	}
	if unknown.Active {
		t.Fatalf("unknown token must be inactive")
	}

	now = now.Add(2 * time.Hour)
	expired, err := svc.Introspect(context.Background(), resp.AccessToken)
	if err != nil {
		t.Fatalf("introspect expired: %v", err)
	}
	if expired.Active {
		t.Fatalf("expired token must be inactive")
	}
}

func TestNewTokenShape(t *testing.T) {
	seen := map[string]bool{}
	for range 32 {
		tok := oauth.NewToken()
		if len(tok) != 43 {
			t.Fatalf("want 43-char base64url token for 256 bits, got %d", len(tok))
		}
		if strings.ContainsAny(tok, "+/=") {
			t.Fatalf("token must be unpadded base64url: %q", tok)
		}
		if seen[tok] {
			t.Fatalf("duplicate token generated")
		}
		seen[tok] = true
	}
}
