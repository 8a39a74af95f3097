package oauth

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
)

// Metadata is the RFC 8414 authorization server metadata document.
type Metadata struct {
	Issuer                            string   `json:"issuer"`
	AuthorizationEndpoint             string   `json:"authorization_endpoint"`
	TokenEndpoint                     string   `json:"token_endpoint"`
	RegistrationEndpoint              string   `json:"registration_endpoint"`
	IntrospectionEndpoint             string   `json:"introspection_endpoint"`
	ResponseTypesSupported            []string `json:"response_types_supported"`
	GrantTypesSupported               []string `json:"grant_types_supported"`
	CodeChallengeMethodsSupported     []string `json:"code_challenge_methods_supported"`
	TokenEndpointAuthMethodsSupported []string `json:"token_endpoint_auth_methods_supported"`
	ScopesSupported                   []string `json:"scopes_supported"`
}

// Handler exposes the authorization server over HTTP:
//
//	GET  /.well-known/oauth-authorization-server
//	GET  /authorize
//	POST /token
//	POST /register
//	POST /introspect
//
// Mount it on the same mux as the transport handler.
type Handler struct {
	svc      *Service
	log      *slog.Logger
	metadata Metadata
	mux      *http.ServeMux
}

// HandlerOption configures a Handler.
type HandlerOption func(*Handler)

// WithHandlerLogger sets the slog logger for endpoint logging.
func WithHandlerLogger(log *slog.Logger) HandlerOption {
	return func(h *Handler) { h.log = log }
}

// NewHandler builds the endpoint set. baseURL is the externally visible
// origin used to construct absolute endpoint URLs in the metadata document.
func NewHandler(svc *Service, baseURL string, opts ...HandlerOption) (*Handler, error) {
	base, err := url.Parse(baseURL)
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid base URL %q", baseURL)
	}
	abs := func(path string) string {
		u := *base
		u.Path = path
		return u.String()
	}

	h := &Handler{
		svc: svc,
		log: slog.New(slog.DiscardHandler),
		metadata: Metadata{
			Issuer:                            strings.TrimSuffix(base.String(), "/"),
			AuthorizationEndpoint:             abs("/authorize"),
			TokenEndpoint:                     abs("/token"),
			RegistrationEndpoint:              abs("/register"),
			IntrospectionEndpoint:             abs("/introspect"),
			ResponseTypesSupported:            []string{"code"},
			GrantTypesSupported:               []string{"authorization_code", "client_credentials", "refresh_token"},
			CodeChallengeMethodsSupported:     []string{CodeChallengeMethodS256},
			TokenEndpointAuthMethodsSupported: []string{"client_secret_post", "none"},
			ScopesSupported:                   []string{DefaultScope},
		},
	}
	for _, opt := range opts {
		opt(h)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /.well-known/oauth-authorization-server", h.handleMetadata)
	mux.HandleFunc("GET /authorize", h.handleAuthorize)
	mux.HandleFunc("POST /token", h.handleToken)
	mux.HandleFunc("POST /register", h.handleRegister)
	mux.HandleFunc("POST /introspect", h.handleIntrospect)
	for _, p := range []string{"/.well-known/oauth-authorization-server", "/authorize", "/token", "/register", "/introspect"} {
		mux.HandleFunc("OPTIONS "+p, h.handlePreflight)
	}
	h.mux = mux
	return h, nil
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

func setCORS(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
	w.Header().Set("Vary", "Origin")
}

func (h *Handler) handlePreflight(w http.ResponseWriter, r *http.Request) {
	setCORS(w)
	w.Header().Set("Access-Control-Max-Age", "600")
	w.WriteHeader(http.StatusOK)
}

func (h *Handler) handleMetadata(w http.ResponseWriter, r *http.Request) {
	setCORS(w)
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(h.metadata); err != nil {
		h.log.ErrorContext(r.Context(), "oauth.metadata.encode.fail", slog.String("err", err.Error()))
	}
}

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	setCORS(w)
	ctx := r.Context()

	var req RegistrationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, r, NewError(ErrorInvalidRequest, "invalid registration body"))
		return
	}
	client, err := h.svc.RegisterClient(ctx, &req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	// RFC 7591 response. The secret appears here and never again.
	type registrationResponse struct {
		*Client
		ClientIDIssuedAt int64 `json:"client_id_issued_at"`
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	if err := json.NewEncoder(w).Encode(registrationResponse{Client: client, ClientIDIssuedAt: client.CreatedAt.Unix()}); err != nil {
		h.log.ErrorContext(ctx, "oauth.register.encode.fail", slog.String("err", err.Error()))
	}
}

func (h *Handler) handleAuthorize(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()

	redirect, err := h.svc.Authorize(ctx, &AuthorizeParams{
		ResponseType:        q.Get("response_type"),
		ClientID:            q.Get("client_id"),
		RedirectURI:         q.Get("redirect_uri"),
		Scope:               q.Get("scope"),
		State:               q.Get("state"),
		CodeChallenge:       q.Get("code_challenge"),
		CodeChallengeMethod: q.Get("code_challenge_method"),
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	http.Redirect(w, r, redirect, http.StatusFound)
}

func (h *Handler) handleToken(w http.ResponseWriter, r *http.Request) {
	setCORS(w)
	ctx := r.Context()

	if err := r.ParseForm(); err != nil {
		h.writeError(w, r, NewError(ErrorInvalidRequest, "invalid form body"))
		return
	}
	resp, err := h.svc.Exchange(ctx, &TokenRequest{
		GrantType:    r.PostFormValue("grant_type"),
		Code:         r.PostFormValue("code"),
		RedirectURI:  r.PostFormValue("redirect_uri"),
		ClientID:     r.PostFormValue("client_id"),
		ClientSecret: r.PostFormValue("client_secret"),
		CodeVerifier: r.PostFormValue("code_verifier"),
		RefreshToken: r.PostFormValue("refresh_token"),
		Scope:        r.PostFormValue("scope"),
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		h.log.ErrorContext(ctx, "oauth.token.encode.fail", slog.String("err", err.Error()))
	}
}

func (h *Handler) handleIntrospect(w http.ResponseWriter, r *http.Request) {
	setCORS(w)
	ctx := r.Context()

	if err := r.ParseForm(); err != nil {
		h.writeError(w, r, NewError(ErrorInvalidRequest, "invalid form body"))
		return
	}
	intro, err := h.svc.Introspect(ctx, r.PostFormValue("token"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(intro); err != nil {
		h.log.ErrorContext(ctx, "oauth.introspect.encode.fail", slog.String("err", err.Error()))
	}
}

// writeError renders the OAuth error vocabulary. Protocol errors and
// internal failures alike surface as HTTP 400 {error, error_description};
// internal detail is logged, not leaked.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var oe *Error
	if !errors.As(err, &oe) {
		h.log.ErrorContext(r.Context(), "oauth.endpoint.fail", slog.String("err", err.Error()))
		oe = NewError(ErrorServerError, "internal error")
	} else {
		h.log.InfoContext(r.Context(), "oauth.endpoint.reject", slog.String("code", oe.Code), slog.String("desc", oe.Description))
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusBadRequest)
	_ = json.NewEncoder(w).Encode(oe)
}
