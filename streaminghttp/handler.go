// Package streaminghttp implements the streamable HTTP transport for an MCP
// gateway: JSON-RPC over POST with JSON or SSE delivery, a standalone GET
// event stream, and DELETE for session termination. Authentication, origin
// checks, and the embedded authorization server mount all live here.
package streaminghttp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/elnormous/contenttype"

	"github.com/ggoodman/mcp-gateway-go/auth"
	"github.com/ggoodman/mcp-gateway-go/internal/jsonrpc"
	"github.com/ggoodman/mcp-gateway-go/internal/logctx"
	"github.com/ggoodman/mcp-gateway-go/mcp"
	"github.com/ggoodman/mcp-gateway-go/registry"
	"github.com/ggoodman/mcp-gateway-go/sessions"
)

var (
	jsonMediaType        = contenttype.NewMediaType("application/json")
	eventStreamMediaType = contenttype.NewMediaType("text/event-stream")
	postResponseTypes    = []contenttype.MediaType{jsonMediaType, eventStreamMediaType}
	eventStreamTypes     = []contenttype.MediaType{eventStreamMediaType}
)

const (
	// Use canonical header names for clarity; Go matches headers case-insensitively.
	lastEventIDHeader        = "Last-Event-ID"
	mcpSessionIDHeader       = "Mcp-Session-Id"
	mcpProtocolVersionHeader = "Mcp-Protocol-Version"
	authorizationHeader      = "Authorization"
	wwwAuthenticateHeader    = "WWW-Authenticate"

	defaultPingInterval = 30 * time.Second
)

// readOnlyMethods are the calls admitted without credentials when the
// handler is configured WithPublicReadOnly.
var readOnlyMethods = map[string]bool{
	string(mcp.InitializeMethod):  true,
	string(mcp.PingMethod):        true,
	string(mcp.ToolsListMethod):   true,
	string(mcp.PromptsListMethod): true,
	string(mcp.PromptsGetMethod):  true,
}

// Option configures the Handler.
type Option func(*newConfig)

type newConfig struct {
	logger         *slog.Logger
	serverInfo     mcp.ImplementationInfo
	instructions   string
	authenticator  auth.Authenticator
	authRequired   bool
	publicReadOnly bool
	allowedOrigins []string
	oauthHandler   http.Handler
	pingInterval   time.Duration
	requestTimeout time.Duration
}

// WithLogger sets the slog logger used by the handler. If not provided,
// logs are discarded.
func WithLogger(log *slog.Logger) Option {
	return func(c *newConfig) { c.logger = log }
}

// WithServerInfo sets the name and version reported in initialize results.
func WithServerInfo(name, version string) Option {
	return func(c *newConfig) {
		c.serverInfo = mcp.ImplementationInfo{Name: name, Version: version}
	}
}

// WithInstructions sets the usage instructions reported to clients.
func WithInstructions(s string) Option {
	return func(c *newConfig) { c.instructions = s }
}

// WithAuthenticator sets the bearer gate and makes authentication
// mandatory for all MCP requests.
func WithAuthenticator(a auth.Authenticator) Option {
	return func(c *newConfig) {
		c.authenticator = a
		c.authRequired = a != nil
	}
}

// WithPublicReadOnly admits unauthenticated requests whose calls are all
// read-only (initialize, ping, tools/list, prompts/list, prompts/get).
// tools/call and session termination always require credentials. This is
// an explicit operator opt-in; nothing about the request itself relaxes
// the gate.
func WithPublicReadOnly() Option {
	return func(c *newConfig) { c.publicReadOnly = true }
}

// WithAllowedOrigins restricts browser access to the given Origin values.
// With an empty list, requests carrying an Origin header are rejected.
func WithAllowedOrigins(origins []string) Option {
	return func(c *newConfig) { c.allowedOrigins = origins }
}

// WithOAuthHandler mounts the embedded authorization server's endpoints
// alongside the MCP endpoint.
func WithOAuthHandler(h http.Handler) Option {
	return func(c *newConfig) { c.oauthHandler = h }
}

// WithPingInterval sets the keepalive cadence on standalone GET streams.
func WithPingInterval(d time.Duration) Option {
	return func(c *newConfig) {
		if d > 0 {
			c.pingInterval = d
		}
	}
}

// WithRequestTimeout bounds the handling of a single JSON-RPC call.
func WithRequestTimeout(d time.Duration) Option {
	return func(c *newConfig) {
		if d > 0 {
			c.requestTimeout = d
		}
	}
}

// Handler is the streamable HTTP MCP endpoint.
type Handler struct {
	mux *http.ServeMux
	log *slog.Logger

	endpointURL *url.URL
	sessions    *sessions.Manager
	disp        *dispatcher

	authenticator  auth.Authenticator
	authRequired   bool
	publicReadOnly bool
	allowedOrigins map[string]bool
	pingInterval   time.Duration
}

// New constructs a Handler serving the MCP endpoint at the path of
// publicEndpoint. The session manager's expiry sweep runs on a background
// goroutine until ctx is canceled.
func New(ctx context.Context, publicEndpoint string, mgr *sessions.Manager, reg registry.CapabilityRegistry, opts ...Option) (*Handler, error) {
	if mgr == nil {
		return nil, fmt.Errorf("session manager is required")
	}
	if reg == nil {
		return nil, fmt.Errorf("capability registry is required")
	}
	u, err := url.Parse(publicEndpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid public endpoint: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("public endpoint must be http or https")
	}

	cfg := &newConfig{
		serverInfo:     mcp.ImplementationInfo{Name: "mcp-gateway", Version: "0.0.0"},
		pingInterval:   defaultPingInterval,
		requestTimeout: defaultRequestTimeout,
	}
	for _, o := range opts {
		o(cfg)
	}
	log := cfg.logger
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}

	h := &Handler{
		log:            log,
		endpointURL:    u,
		sessions:       mgr,
		authenticator:  cfg.authenticator,
		authRequired:   cfg.authRequired,
		publicReadOnly: cfg.publicReadOnly,
		pingInterval:   cfg.pingInterval,
		disp: &dispatcher{
			reg:            reg,
			log:            log,
			serverInfo:     cfg.serverInfo,
			instructions:   cfg.instructions,
			requestTimeout: cfg.requestTimeout,
		},
	}
	if len(cfg.allowedOrigins) > 0 {
		h.allowedOrigins = make(map[string]bool, len(cfg.allowedOrigins))
		for _, o := range cfg.allowedOrigins {
			h.allowedOrigins[strings.TrimSpace(o)] = true
		}
	}

	mcpPath := u.Path
	if mcpPath == "" || mcpPath == "/" {
		mcpPath = "/{$}"
	}
	mux := http.NewServeMux()
	mux.HandleFunc(fmt.Sprintf("POST %s", mcpPath), h.handlePostMCP)
	mux.HandleFunc(fmt.Sprintf("GET %s", mcpPath), h.handleGetMCP)
	mux.HandleFunc(fmt.Sprintf("DELETE %s", mcpPath), h.handleDeleteMCP)
	mux.HandleFunc(fmt.Sprintf("OPTIONS %s", mcpPath), h.handleOptionsMCP)
	if cfg.oauthHandler != nil {
		mux.Handle("/", cfg.oauthHandler)
	}
	h.mux = mux

	go mgr.Run(ctx)

	return h, nil
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := logctx.WithRequestData(r.Context(), &logctx.RequestData{
		Method:     r.Method,
		Path:       r.URL.Path,
		RemoteAddr: r.RemoteAddr,
	})
	r = r.WithContext(ctx)

	// Origin is checked before anything else: a disallowed browser origin
	// never reaches authentication or the dispatcher.
	if origin := r.Header.Get("Origin"); origin != "" {
		if !h.originAllowed(origin) {
			h.log.WarnContext(ctx, "http.origin.denied", slog.String("origin", origin))
			writeJSONError(w, http.StatusForbidden, "origin not allowed")
			return
		}
		w.Header().Set("Access-Control-Allow-Origin", origin)
		w.Header().Set("Vary", "Origin")
	}

	h.mux.ServeHTTP(w, r)
}

func (h *Handler) originAllowed(origin string) bool {
	if h.allowedOrigins == nil {
		return false
	}
	return h.allowedOrigins[origin]
}

func (h *Handler) handleOptionsMCP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Accept, Authorization, Mcp-Session-Id, Mcp-Protocol-Version, Last-Event-ID")
	w.Header().Set("Access-Control-Max-Age", "600")
	w.WriteHeader(http.StatusOK)
}

// writeJSONError emits a minimal JSON body for HTTP-layer rejections before
// a JSON-RPC message exchange is possible. Shape:
// {"error":{"code":<httpStatus>,"message":"<reason>"}}
func writeJSONError(w http.ResponseWriter, status int, msg string) {
	if ct := w.Header().Get("Content-Type"); ct == "" || ct == jsonMediaType.String() {
		w.Header().Set("Content-Type", jsonMediaType.String())
	}
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{"error": map[string]any{"code": status, "message": msg}})
}

// writeRPCError emits a single JSON-RPC error response with the given HTTP
// status. Used for rejections that happen before dispatch.
func writeRPCError(w http.ResponseWriter, status int, id *jsonrpc.RequestID, code jsonrpc.ErrorCode, msg string) {
	w.Header().Set("Content-Type", jsonMediaType.String())
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(jsonrpc.NewErrorResponse(id, code, msg, nil))
}

// buildBearerChallenge builds a Bearer challenge header value:
//
//	Bearer error="...", error_description="..."
func buildBearerChallenge(params map[string]string) string {
	esc := func(v string) string { return strings.NewReplacer(`\`, `\\`, `"`, `\"`).Replace(v) }
	pieces := make([]string, 0, len(params))
	if v, ok := params["error"]; ok {
		pieces = append(pieces, fmt.Sprintf(`error="%s"`, esc(v)))
	}
	if v, ok := params["error_description"]; ok {
		pieces = append(pieces, fmt.Sprintf(`error_description="%s"`, esc(v)))
	}
	if len(pieces) == 0 {
		return "Bearer"
	}
	return "Bearer " + strings.Join(pieces, ", ")
}

// checkAuthentication resolves the caller's principal, writing the rejection
// response itself when the credential fails. A nil return with ok=false
// means the response is already written. An anonymous request against a
// handler that does not require auth yields a nil principal with ok=true.
func (h *Handler) checkAuthentication(ctx context.Context, r *http.Request, w http.ResponseWriter, payload *jsonrpc.Payload) (auth.Principal, bool) {
	authHeader := r.Header.Get(authorizationHeader)

	if !h.authRequired {
		return nil, true
	}

	if authHeader == "" {
		// Session termination is a mutation; DELETE never rides the
		// read-only leniency.
		if h.publicReadOnly && r.Method != http.MethodDelete && h.payloadIsReadOnly(payload) {
			return nil, true
		}
		h.log.InfoContext(ctx, "auth.check.missing")
		w.Header().Add(wwwAuthenticateHeader, buildBearerChallenge(nil))
		writeRPCError(w, http.StatusUnauthorized, nil, jsonrpc.ErrorCodeUnauthorized, "authentication required")
		return nil, false
	}

	const bearerPrefix = "Bearer "
	if !strings.HasPrefix(authHeader, bearerPrefix) || len(authHeader) <= len(bearerPrefix) {
		h.log.InfoContext(ctx, "auth.check.invalid", slog.String("err", "malformed bearer authorization header"))
		w.Header().Add(wwwAuthenticateHeader, buildBearerChallenge(map[string]string{"error": "invalid_request", "error_description": "malformed bearer authorization header"}))
		writeRPCError(w, http.StatusBadRequest, nil, jsonrpc.ErrorCodeUnauthorized, "malformed bearer authorization header")
		return nil, false
	}
	tok := strings.TrimSpace(authHeader[len(bearerPrefix):])

	principal, err := h.authenticator.CheckAuthentication(ctx, tok)
	if err != nil {
		if errors.Is(err, auth.ErrUnauthorized) {
			h.log.InfoContext(ctx, "auth.check.fail", slog.String("err", err.Error()))
			w.Header().Add(wwwAuthenticateHeader, buildBearerChallenge(map[string]string{"error": "invalid_token", "error_description": "token rejected"}))
			writeRPCError(w, http.StatusUnauthorized, nil, jsonrpc.ErrorCodeUnauthorized, "invalid or expired credential")
			return nil, false
		}
		h.log.ErrorContext(ctx, "auth.check.err", slog.String("err", err.Error()))
		w.WriteHeader(http.StatusInternalServerError)
		return nil, false
	}
	return principal, true
}

// payloadIsReadOnly reports whether every call in the payload is admitted
// without credentials. A nil payload (the GET event stream) is read-only:
// the session id itself scopes what the stream can observe.
func (h *Handler) payloadIsReadOnly(payload *jsonrpc.Payload) bool {
	if payload == nil {
		return true
	}
	for _, msg := range payload.Messages {
		if msg.Method != "" && !readOnlyMethods[msg.Method] {
			return false
		}
	}
	return true
}

func (h *Handler) handlePostMCP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()
	h.log.InfoContext(ctx, "http.post.start")

	ctype, err := contenttype.GetMediaType(r)
	if err != nil || !ctype.Matches(jsonMediaType) {
		writeJSONError(w, http.StatusUnsupportedMediaType, "content-type must be application/json")
		h.log.WarnContext(ctx, "content_type.unsupported")
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "failed to read request body")
		h.log.WarnContext(ctx, "http.body.read.fail", slog.String("err", err.Error()))
		return
	}
	payload, err := jsonrpc.ParsePayload(body)
	if err != nil {
		code := jsonrpc.ErrorCodeParseError
		if errors.Is(err, jsonrpc.ErrInvalidPayload) {
			code = jsonrpc.ErrorCodeInvalidRequest
		}
		writeRPCError(w, http.StatusBadRequest, nil, code, err.Error())
		h.log.WarnContext(ctx, "jsonrpc.payload.invalid", slog.String("err", err.Error()))
		return
	}

	principal, ok := h.checkAuthentication(ctx, r, w, payload)
	if !ok {
		h.log.InfoContext(ctx, "auth.fail")
		return
	}
	if principal != nil {
		ctx = logctx.WithAuthData(ctx, &logctx.AuthData{Principal: principal.Subject(), Kind: principal.Kind()})
	}

	if pv := r.Header.Get(mcpProtocolVersionHeader); pv != "" && !mcp.IsSupportedProtocolVersion(pv) {
		writeJSONError(w, http.StatusBadRequest, fmt.Sprintf("unsupported protocol version %q", pv))
		h.log.WarnContext(ctx, "protocol.version.unsupported", slog.String("version", pv))
		return
	}

	// The initialize handshake establishes the session; everything else
	// requires one that already exists.
	if req := initializeCall(payload); req != nil {
		h.handleInitialize(ctx, w, r, start, payload, req)
		return
	}

	sessID := r.Header.Get(mcpSessionIDHeader)
	if sessID == "" {
		writeJSONError(w, http.StatusNotFound, "missing session; send initialize first")
		h.log.InfoContext(ctx, "session.id.missing")
		return
	}
	if err := h.sessions.Touch(sessID); err != nil {
		writeJSONError(w, http.StatusNotFound, "session not found")
		h.log.InfoContext(ctx, "session.load.miss", slog.String("session_id", sessID))
		return
	}
	ctx = logctx.WithSessionData(ctx, &logctx.SessionData{SessionID: sessID})

	if !payload.HasCalls() {
		// Notifications and client responses produce no reply.
		for _, msg := range payload.Messages {
			if req := msg.AsRequest(); req != nil {
				h.disp.handleNotification(ctx, req)
			}
		}
		w.WriteHeader(http.StatusAccepted)
		h.log.InfoContext(ctx, "http.post.accepted", slog.Duration("dur", time.Since(start)))
		return
	}

	// One deadline covers the whole exchange; a batch of stalling calls
	// cannot hold the connection for a multiple of the timeout.
	dispatchCtx, cancel := context.WithTimeout(ctx, h.disp.requestTimeout)
	defer cancel()

	responses := make([]*jsonrpc.Response, 0, len(payload.Messages))
	for _, msg := range payload.Messages {
		req := msg.AsRequest()
		if req == nil {
			continue
		}
		if resp := h.disp.handleRequest(dispatchCtx, req); resp != nil {
			responses = append(responses, resp)
		}
	}

	w.Header().Set(mcpSessionIDHeader, sessID)
	h.writeResponses(ctx, w, r, payload.Batch, responses)
	h.log.InfoContext(ctx, "http.post.ok", slog.Duration("dur", time.Since(start)))
}

// initializeCall returns the initialize request when the payload is a
// single initialize call, nil otherwise.
func initializeCall(payload *jsonrpc.Payload) *jsonrpc.Request {
	if payload.Batch || len(payload.Messages) != 1 {
		return nil
	}
	req := payload.Messages[0].AsRequest()
	if req == nil || req.Method != string(mcp.InitializeMethod) || req.ID.IsNil() {
		return nil
	}
	return req
}

func (h *Handler) handleInitialize(ctx context.Context, w http.ResponseWriter, r *http.Request, start time.Time, payload *jsonrpc.Payload, req *jsonrpc.Request) {
	var initReq mcp.InitializeRequest
	if len(req.Params) > 0 {
		if err := json.Unmarshal(req.Params, &initReq); err != nil {
			writeRPCError(w, http.StatusBadRequest, req.ID, jsonrpc.ErrorCodeInvalidParams, "invalid initialize params")
			h.log.WarnContext(ctx, "session.initialize.params.fail", slog.String("err", err.Error()))
			return
		}
	}

	// A supplied id that still names a live session is refreshed and
	// reused; anything else gets a fresh session.
	sess, _ := h.sessions.GetOrCreate(r.Header.Get(mcpSessionIDHeader))
	ctx = logctx.WithSessionData(ctx, &logctx.SessionData{SessionID: sess.ID})

	res := h.disp.initializeResult(&initReq)
	resp, err := jsonrpc.NewResultResponse(req.ID, res)
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, "failed to encode initialize response")
		h.log.ErrorContext(ctx, "session.initialize.encode.fail", slog.String("err", err.Error()))
		return
	}

	w.Header().Set(mcpSessionIDHeader, sess.ID)
	w.Header().Set(mcpProtocolVersionHeader, res.ProtocolVersion)
	h.writeResponses(ctx, w, r, payload.Batch, []*jsonrpc.Response{resp})
	h.log.InfoContext(ctx, "session.initialize.ok",
		slog.String("protocol_version", res.ProtocolVersion),
		slog.String("client", initReq.ClientInfo.Name),
		slog.Duration("dur", time.Since(start)))
}

// writeResponses delivers call responses either as a JSON body or as SSE
// events, per the request's Accept header. SSE delivery emits one message
// event and closes the stream.
func (h *Handler) writeResponses(ctx context.Context, w http.ResponseWriter, r *http.Request, batch bool, responses []*jsonrpc.Response) {
	var body any
	if batch {
		body = responses
	} else if len(responses) > 0 {
		body = responses[0]
	}

	accepted, _, err := contenttype.GetAcceptableMediaType(r, postResponseTypes)
	useSSE := err == nil && accepted.Matches(eventStreamMediaType)

	if !useSSE {
		w.Header().Set("Content-Type", jsonMediaType.String())
		w.WriteHeader(http.StatusOK)
		if err := json.NewEncoder(w).Encode(body); err != nil {
			h.log.ErrorContext(ctx, "http.response.write.fail", slog.String("err", err.Error()))
		}
		return
	}

	f, ok := w.(http.Flusher)
	if !ok {
		w.WriteHeader(http.StatusInternalServerError)
		h.log.ErrorContext(ctx, "sse.flusher.missing")
		return
	}
	wf := &lockedWriteFlusher{Writer: w, Flusher: f, ctx: ctx}

	setSSEHeaders(w)
	w.WriteHeader(http.StatusOK)
	wf.Flush()

	b, err := json.Marshal(body)
	if err != nil {
		h.log.ErrorContext(ctx, "sse.response.marshal.fail", slog.String("err", err.Error()))
		return
	}
	if err := writeSSEEvent(wf, "message", b); err != nil {
		h.log.ErrorContext(ctx, "sse.write.fail", slog.String("err", err.Error()))
	}
}

func setSSEHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", eventStreamMediaType.String())
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
}

// handleGetMCP serves the standalone event stream for an established
// session. The stream carries keepalive pings until the client disconnects.
// A Last-Event-ID header is accepted for protocol compatibility but events
// before the reconnect are not replayed; delivery is at-most-once.
func (h *Handler) handleGetMCP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()

	if _, _, err := contenttype.GetAcceptableMediaType(r, eventStreamTypes); err != nil {
		writeJSONError(w, http.StatusNotAcceptable, "accept must include text/event-stream")
		h.log.WarnContext(ctx, "http.get.unsupported_media_type")
		return
	}

	f, ok := w.(http.Flusher)
	if !ok {
		w.WriteHeader(http.StatusInternalServerError)
		h.log.ErrorContext(ctx, "sse.flusher.missing")
		return
	}
	wf := &lockedWriteFlusher{Writer: w, Flusher: f, ctx: ctx}

	principal, authOK := h.checkAuthentication(ctx, r, w, nil)
	if !authOK {
		h.log.InfoContext(ctx, "auth.fail")
		return
	}
	if principal != nil {
		ctx = logctx.WithAuthData(ctx, &logctx.AuthData{Principal: principal.Subject(), Kind: principal.Kind()})
	}

	sessID := r.Header.Get(mcpSessionIDHeader)
	if sessID == "" {
		writeJSONError(w, http.StatusBadRequest, "missing Mcp-Session-Id header")
		h.log.WarnContext(ctx, "session.id.missing")
		return
	}
	if err := h.sessions.Touch(sessID); err != nil {
		writeJSONError(w, http.StatusNotFound, "session not found")
		h.log.InfoContext(ctx, "session.load.miss", slog.String("session_id", sessID))
		return
	}
	ctx = logctx.WithSessionData(ctx, &logctx.SessionData{SessionID: sessID})

	if lastEventID := r.Header.Get(lastEventIDHeader); lastEventID != "" {
		h.log.InfoContext(ctx, "sse.resume.no_replay", slog.String("last_event_id", lastEventID))
	}

	setSSEHeaders(w)
	w.Header().Set(mcpSessionIDHeader, sessID)
	w.WriteHeader(http.StatusOK)
	wf.Flush()

	h.log.InfoContext(ctx, "sse.stream.start")

	ticker := time.NewTicker(h.pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			h.log.InfoContext(ctx, "sse.stream.end", slog.Duration("dur", time.Since(start)))
			return
		case <-ticker.C:
			if err := writeSSEPing(wf); err != nil {
				h.log.InfoContext(ctx, "sse.ping.fail", slog.String("err", err.Error()))
				return
			}
			// Pings double as liveness signals for the session sweeper.
			if err := h.sessions.Touch(sessID); err != nil {
				h.log.InfoContext(ctx, "sse.session.gone")
				return
			}
		}
	}
}

func (h *Handler) handleDeleteMCP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	principal, ok := h.checkAuthentication(ctx, r, w, nil)
	if !ok {
		h.log.InfoContext(ctx, "auth.fail")
		return
	}
	if principal != nil {
		ctx = logctx.WithAuthData(ctx, &logctx.AuthData{Principal: principal.Subject(), Kind: principal.Kind()})
	}

	sessID := r.Header.Get(mcpSessionIDHeader)
	if sessID == "" {
		writeJSONError(w, http.StatusBadRequest, "missing Mcp-Session-Id header")
		h.log.WarnContext(ctx, "session.id.missing")
		return
	}
	if err := h.sessions.Terminate(sessID); err != nil {
		writeJSONError(w, http.StatusNotFound, "session not found")
		h.log.InfoContext(ctx, "session.terminate.miss", slog.String("session_id", sessID))
		return
	}
	h.log.InfoContext(ctx, "session.terminate.ok", slog.String("session_id", sessID))
	w.WriteHeader(http.StatusNoContent)
}
