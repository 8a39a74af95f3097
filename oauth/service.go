package oauth

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"time"
)

const (
	// DefaultCodeTTL bounds how long an authorization code may sit unredeemed.
	DefaultCodeTTL = 10 * time.Minute
	// DefaultAccessTokenTTL is the lifetime of minted access tokens.
	DefaultAccessTokenTTL = time.Hour
	// DefaultScope is granted when a request names no scope.
	DefaultScope = "mcp"
)

// Service implements the authorization server's behavior over injected
// stores. It is safe for concurrent use as long as its stores are.
type Service struct {
	clients ClientStore
	codes   CodeStore
	tokens  TokenStore

	log          *slog.Logger
	now          func() time.Time
	codeTTL      time.Duration
	tokenTTL     time.Duration
	defaultScope string
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithLogger sets the slog logger. If not provided, logs are discarded.
func WithLogger(log *slog.Logger) ServiceOption {
	return func(s *Service) { s.log = log }
}

// WithClock overrides the time source. Tests use this to simulate expiry.
func WithClock(now func() time.Time) ServiceOption {
	return func(s *Service) { s.now = now }
}

// WithCodeTTL overrides the authorization-code lifetime.
func WithCodeTTL(d time.Duration) ServiceOption {
	return func(s *Service) { s.codeTTL = d }
}

// WithAccessTokenTTL overrides the access-token lifetime.
func WithAccessTokenTTL(d time.Duration) ServiceOption {
	return func(s *Service) { s.tokenTTL = d }
}

// NewService builds a Service over the given stores.
func NewService(clients ClientStore, codes CodeStore, tokens TokenStore, opts ...ServiceOption) *Service {
	s := &Service{
		clients:      clients,
		codes:        codes,
		tokens:       tokens,
		log:          slog.New(slog.DiscardHandler),
		now:          time.Now,
		codeTTL:      DefaultCodeTTL,
		tokenTTL:     DefaultAccessTokenTTL,
		defaultScope: DefaultScope,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RegistrationRequest is the RFC 7591 dynamic registration payload subset
// the server accepts.
type RegistrationRequest struct {
	RedirectURIs            []string `json:"redirect_uris"`
	ClientName              string   `json:"client_name,omitempty"`
	GrantTypes              []string `json:"grant_types,omitempty"`
	ResponseTypes           []string `json:"response_types,omitempty"`
	Scope                   string   `json:"scope,omitempty"`
	TokenEndpointAuthMethod string   `json:"token_endpoint_auth_method,omitempty"`
}

// RegisterClient validates and stores a new client. The returned record is
// the only copy that carries the secret.
func (s *Service) RegisterClient(ctx context.Context, req *RegistrationRequest) (*Client, error) {
	if req == nil || len(req.RedirectURIs) == 0 {
		return nil, NewError(ErrorInvalidRedirectURI, "at least one redirect_uri is required")
	}
	for _, raw := range req.RedirectURIs {
		if err := validateRedirectURI(raw); err != nil {
			return nil, err
		}
	}

	grantTypes := req.GrantTypes
	if len(grantTypes) == 0 {
		grantTypes = []string{"authorization_code", "refresh_token"}
	}
	responseTypes := req.ResponseTypes
	if len(responseTypes) == 0 {
		responseTypes = []string{"code"}
	}
	scope := req.Scope
	if scope == "" {
		scope = s.defaultScope
	}

	c := &Client{
		ID:            NewToken(),
		Secret:        NewToken(),
		Name:          req.ClientName,
		RedirectURIs:  append([]string(nil), req.RedirectURIs...),
		GrantTypes:    grantTypes,
		ResponseTypes: responseTypes,
		Scope:         scope,
		CreatedAt:     s.now(),
	}
	if err := s.clients.PutClient(ctx, c); err != nil {
		return nil, fmt.Errorf("store client: %w", err)
	}
	s.log.InfoContext(ctx, "oauth.client.register", slog.String("client_id", c.ID), slog.String("name", c.Name))
	return c, nil
}

// validateRedirectURI enforces the registration constraint: https, or any
// scheme on a loopback host.
func validateRedirectURI(raw string) error {
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return Errorf(ErrorInvalidRedirectURI, "malformed redirect_uri %q", raw)
	}
	if u.Scheme == "https" {
		return nil
	}
	switch u.Hostname() {
	case "localhost", "127.0.0.1", "::1":
		return nil
	}
	return Errorf(ErrorInvalidRedirectURI, "redirect_uri %q must be https or loopback", raw)
}

// AuthorizeParams carries the query parameters of GET /authorize.
type AuthorizeParams struct {
	ResponseType        string
	ClientID            string
	RedirectURI         string
	Scope               string
	State               string
	CodeChallenge       string
	CodeChallengeMethod string
}

// Authorize validates an authorization request, issues a one-time code, and
// returns the redirect target. The server auto-approves: there is no
// consent step between validation and code issuance.
func (s *Service) Authorize(ctx context.Context, p *AuthorizeParams) (string, error) {
	if p.ResponseType != "code" {
		return "", Errorf(ErrorUnsupportedResponseType, "response_type must be code, got %q", p.ResponseType)
	}
	if p.ClientID == "" {
		return "", NewError(ErrorInvalidRequest, "client_id is required")
	}
	client, err := s.clients.GetClient(ctx, p.ClientID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return "", NewError(ErrorInvalidClient, "unknown client")
		}
		return "", fmt.Errorf("load client: %w", err)
	}
	if p.RedirectURI == "" || !client.HasRedirectURI(p.RedirectURI) {
		return "", NewError(ErrorInvalidRequest, "redirect_uri is not registered for this client")
	}
	// PKCE is mandatory. Absent challenge or any method other than S256 is
	// rejected before a code exists.
	if p.CodeChallenge == "" {
		return "", NewError(ErrorInvalidRequest, "code_challenge is required")
	}
	if p.CodeChallengeMethod != CodeChallengeMethodS256 {
		return "", Errorf(ErrorInvalidRequest, "code_challenge_method must be %s", CodeChallengeMethodS256)
	}

	scope := p.Scope
	if scope == "" {
		scope = client.Scope
	}

	now := s.now()
	code := &AuthorizationCode{
		Code:                NewToken(),
		ClientID:            client.ID,
		RedirectURI:         p.RedirectURI,
		Scope:               scope,
		CodeChallenge:       p.CodeChallenge,
		CodeChallengeMethod: p.CodeChallengeMethod,
		CreatedAt:           now,
		ExpiresAt:           now.Add(s.codeTTL),
	}
	if err := s.codes.PutCode(ctx, code); err != nil {
		return "", fmt.Errorf("store code: %w", err)
	}

	u, err := url.Parse(p.RedirectURI)
	if err != nil {
		return "", NewError(ErrorInvalidRequest, "malformed redirect_uri")
	}
	q := u.Query()
	q.Set("code", code.Code)
	if p.State != "" {
		q.Set("state", p.State)
	}
	u.RawQuery = q.Encode()

	s.log.InfoContext(ctx, "oauth.code.issue", slog.String("client_id", client.ID), slog.String("scope", scope))
	return u.String(), nil
}

// TokenRequest carries the form parameters of POST /token across all grants.
type TokenRequest struct {
	GrantType    string
	Code         string
	RedirectURI  string
	ClientID     string
	ClientSecret string
	CodeVerifier string
	RefreshToken string
	Scope        string
}

// TokenResponse is the success body of POST /token.
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
	RefreshToken string `json:"refresh_token,omitempty"`
	Scope        string `json:"scope,omitempty"`
}

// Exchange handles POST /token for all supported grant types.
func (s *Service) Exchange(ctx context.Context, req *TokenRequest) (*TokenResponse, error) {
	switch req.GrantType {
	case "authorization_code":
		return s.authorizationCodeGrant(ctx, req)
	case "client_credentials":
		return s.clientCredentialsGrant(ctx, req)
	case "refresh_token":
		return s.refreshTokenGrant(ctx, req)
	default:
		return nil, Errorf(ErrorUnsupportedGrantType, "unsupported grant_type %q", req.GrantType)
	}
}

func (s *Service) authorizationCodeGrant(ctx context.Context, req *TokenRequest) (*TokenResponse, error) {
	if req.Code == "" || req.RedirectURI == "" || req.ClientID == "" || req.CodeVerifier == "" {
		return nil, NewError(ErrorInvalidRequest, "code, redirect_uri, client_id and code_verifier are required")
	}

	// Consumption is atomic: the code is gone after this call whether or not
	// the remaining checks pass, which is what makes it single-use.
	code, err := s.codes.ConsumeCode(ctx, req.Code)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, NewError(ErrorInvalidGrant, "unknown or already redeemed code")
		}
		return nil, fmt.Errorf("consume code: %w", err)
	}
	if code.Expired(s.now()) {
		return nil, NewError(ErrorInvalidGrant, "authorization code expired")
	}
	if code.ClientID != req.ClientID || code.RedirectURI != req.RedirectURI {
		return nil, NewError(ErrorInvalidGrant, "client_id or redirect_uri mismatch")
	}
	if !VerifyPKCE(req.CodeVerifier, code.CodeChallenge) {
		s.log.WarnContext(ctx, "oauth.pkce.fail", slog.String("client_id", req.ClientID))
		return nil, NewError(ErrorInvalidGrant, "PKCE verification failed")
	}

	access, err := s.mintAccessToken(ctx, code.ClientID, code.Scope)
	if err != nil {
		return nil, err
	}
	refresh := &RefreshToken{
		Token:     NewToken(),
		ClientID:  code.ClientID,
		Scope:     code.Scope,
		CreatedAt: s.now(),
	}
	if err := s.tokens.PutRefreshToken(ctx, refresh); err != nil {
		return nil, fmt.Errorf("store refresh token: %w", err)
	}

	s.log.InfoContext(ctx, "oauth.token.issue",
		slog.String("grant", "authorization_code"),
		slog.String("client_id", code.ClientID),
		slog.String("scope", code.Scope))

	return &TokenResponse{
		AccessToken:  access.Token,
		TokenType:    access.TokenType,
		ExpiresIn:    access.ExpiresIn,
		RefreshToken: refresh.Token,
		Scope:        access.Scope,
	}, nil
}

func (s *Service) clientCredentialsGrant(ctx context.Context, req *TokenRequest) (*TokenResponse, error) {
	if req.ClientID == "" || req.ClientSecret == "" {
		return nil, NewError(ErrorInvalidRequest, "client_id and client_secret are required")
	}
	client, err := s.clients.GetClient(ctx, req.ClientID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, NewError(ErrorInvalidClient, "unknown client")
		}
		return nil, fmt.Errorf("load client: %w", err)
	}
	if subtle.ConstantTimeCompare([]byte(client.Secret), []byte(req.ClientSecret)) != 1 {
		return nil, NewError(ErrorInvalidClient, "invalid client credentials")
	}

	scope := req.Scope
	if scope == "" {
		scope = client.Scope
	}
	access, err := s.mintAccessToken(ctx, client.ID, scope)
	if err != nil {
		return nil, err
	}

	s.log.InfoContext(ctx, "oauth.token.issue",
		slog.String("grant", "client_credentials"),
		slog.String("client_id", client.ID),
		slog.String("scope", scope))

	// No refresh token for client_credentials; the client can always re-auth.
	return &TokenResponse{
		AccessToken: access.Token,
		TokenType:   access.TokenType,
		ExpiresIn:   access.ExpiresIn,
		Scope:       access.Scope,
	}, nil
}

// refreshTokenGrant redeems a refresh token for a fresh access token of the
// same scope and client. The refresh token is neither rotated nor expired:
// the stored record stays redeemable, so clients refreshing concurrently
// never race each other out of their grant. Revisit if stores move to a
// shared backend with atomic rotation support.
func (s *Service) refreshTokenGrant(ctx context.Context, req *TokenRequest) (*TokenResponse, error) {
	if req.RefreshToken == "" || req.ClientID == "" {
		return nil, NewError(ErrorInvalidRequest, "refresh_token and client_id are required")
	}
	rt, err := s.tokens.GetRefreshToken(ctx, req.RefreshToken)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, NewError(ErrorInvalidGrant, "unknown refresh token")
		}
		return nil, fmt.Errorf("load refresh token: %w", err)
	}
	if rt.ClientID != req.ClientID {
		return nil, NewError(ErrorInvalidGrant, "refresh token was not issued to this client")
	}

	access, err := s.mintAccessToken(ctx, rt.ClientID, rt.Scope)
	if err != nil {
		return nil, err
	}

	s.log.InfoContext(ctx, "oauth.token.issue",
		slog.String("grant", "refresh_token"),
		slog.String("client_id", rt.ClientID),
		slog.String("scope", rt.Scope))

	return &TokenResponse{
		AccessToken: access.Token,
		TokenType:   access.TokenType,
		ExpiresIn:   access.ExpiresIn,
		Scope:       access.Scope,
	}, nil
}

func (s *Service) mintAccessToken(ctx context.Context, clientID, scope string) (*AccessToken, error) {
	t := &AccessToken{
		Token:     NewToken(),
		TokenType: "Bearer",
		Scope:     scope,
		ClientID:  clientID,
		ExpiresIn: int64(s.tokenTTL / time.Second),
		CreatedAt: s.now(),
	}
	if err := s.tokens.PutAccessToken(ctx, t); err != nil {
		return nil, fmt.Errorf("store access token: %w", err)
	}
	return t, nil
}

// ValidateAccessToken looks up a bearer token and applies the lazy-expiry
// rule: an expired record is purged on this lookup and reported as
// ErrNotFound.
func (s *Service) ValidateAccessToken(ctx context.Context, token string) (*AccessToken, error) {
	if token == "" {
		return nil, ErrNotFound
	}
	t, err := s.tokens.GetAccessToken(ctx, token)
	if err != nil {
		return nil, err
	}
	if !t.Active(s.now()) {
		// Lazy GC: drop the record now rather than waiting on a sweeper.
		_ = s.tokens.DeleteAccessToken(ctx, token)
		return nil, ErrNotFound
	}
	return t, nil
}

// Introspection is the RFC 7662 response shape.
type Introspection struct {
	Active    bool   `json:"active"`
	Scope     string `json:"scope,omitempty"`
	ClientID  string `json:"client_id,omitempty"`
	TokenType string `json:"token_type,omitempty"`
	Exp       int64  `json:"exp,omitempty"`
}

// Introspect reports whether a token is active. Unknown and expired tokens
// yield {active: false} rather than an error, per RFC 7662.
func (s *Service) Introspect(ctx context.Context, token string) (*Introspection, error) {
	t, err := s.ValidateAccessToken(ctx, token)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return &Introspection{Active: false}, nil
		}
		return nil, err
	}
	return &Introspection{
		Active:    true,
		Scope:     t.Scope,
		ClientID:  t.ClientID,
		TokenType: t.TokenType,
		Exp:       t.ExpiresAt().Unix(),
	}, nil
}
