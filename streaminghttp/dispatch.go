package streaminghttp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ggoodman/mcp-gateway-go/internal/jsonrpc"
	"github.com/ggoodman/mcp-gateway-go/internal/logctx"
	"github.com/ggoodman/mcp-gateway-go/mcp"
	"github.com/ggoodman/mcp-gateway-go/registry"
)

const (
	// defaultRequestTimeout bounds a whole non-streaming request,
	// including every call in a batch.
	defaultRequestTimeout = 30 * time.Second
	// listTimeout bounds capability listing; a slow registry degrades to an
	// empty list rather than failing the call.
	listTimeout = 5 * time.Second
)

// dispatcher routes JSON-RPC calls to the capability registry.
type dispatcher struct {
	reg            registry.CapabilityRegistry
	log            *slog.Logger
	serverInfo     mcp.ImplementationInfo
	instructions   string
	requestTimeout time.Duration
}

// handleRequest executes one call and returns its response. Notifications
// (calls without an id) return nil. The returned response is never nil for
// a call with an id: failures map to JSON-RPC error responses. The caller
// is expected to bound ctx with the request deadline; once it expires,
// remaining calls in a batch fail fast with the timeout code.
func (d *dispatcher) handleRequest(ctx context.Context, req *jsonrpc.Request) (resp *jsonrpc.Response) {
	if req.ID.IsNil() {
		d.handleNotification(ctx, req)
		return nil
	}

	ctx = logctx.WithRPCMessage(ctx, &logctx.RPCMessage{Method: req.Method, ID: req.ID.String(), Type: "request"})

	start := time.Now()

	// Run the call on its own goroutine so a tool that ignores its context
	// cannot hold the HTTP request past the deadline.
	done := make(chan *jsonrpc.Response, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				d.log.ErrorContext(ctx, "rpc.dispatch.panic", slog.Any("panic", r))
				done <- jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeInternalError, "internal server error", nil)
			}
		}()
		done <- d.route(ctx, req)
	}()

	select {
	case resp = <-done:
	case <-ctx.Done():
		d.log.WarnContext(ctx, "rpc.dispatch.timeout", slog.Duration("dur", time.Since(start)))
		return jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeTimeout, "request timed out", nil)
	}
	d.log.InfoContext(ctx, "rpc.dispatch.ok", slog.Duration("dur", time.Since(start)))
	return resp
}

func (d *dispatcher) route(ctx context.Context, req *jsonrpc.Request) *jsonrpc.Response {
	switch mcp.Method(req.Method) {
	case mcp.PingMethod:
		return mustResult(req.ID, struct{}{})
	case mcp.ToolsListMethod:
		return d.listTools(ctx, req)
	case mcp.ToolsCallMethod:
		return d.callTool(ctx, req)
	case mcp.PromptsListMethod:
		return d.listPrompts(ctx, req)
	case mcp.PromptsGetMethod:
		return d.getPrompt(ctx, req)
	case mcp.InitializeMethod:
		// Initialization is handled at the transport layer before dispatch;
		// a second initialize on a live session is a protocol violation.
		return jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeInvalidRequest, "session already initialized", nil)
	default:
		return jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeMethodNotFound, fmt.Sprintf("method %q not found", req.Method), nil)
	}
}

func (d *dispatcher) handleNotification(ctx context.Context, req *jsonrpc.Request) {
	ctx = logctx.WithRPCMessage(ctx, &logctx.RPCMessage{Method: req.Method, Type: "notification"})
	switch mcp.Method(req.Method) {
	case mcp.InitializedNotificationMethod:
		d.log.InfoContext(ctx, "session.initialized")
	default:
		d.log.DebugContext(ctx, "notification.ignored")
	}
}

func (d *dispatcher) listTools(ctx context.Context, req *jsonrpc.Request) *jsonrpc.Response {
	ctx, cancel := context.WithTimeout(ctx, listTimeout)
	defer cancel()

	tools, err := d.reg.ListTools(ctx)
	if err != nil {
		d.log.WarnContext(ctx, "tools.list.fail", slog.String("err", err.Error()))
		tools = nil
	}
	if tools == nil {
		tools = []mcp.Tool{}
	}
	return mustResult(req.ID, &mcp.ListToolsResult{Tools: tools})
}

func (d *dispatcher) callTool(ctx context.Context, req *jsonrpc.Request) *jsonrpc.Response {
	var params mcp.CallToolRequest
	if err := json.Unmarshal(req.Params, &params); err != nil || params.Name == "" {
		return jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeInvalidParams, "tools/call requires a name", nil)
	}
	res, err := d.reg.CallTool(ctx, params.Name, params.Arguments)
	if err != nil {
		if errors.Is(err, registry.ErrToolNotFound) {
			return jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeInvalidParams, fmt.Sprintf("unknown tool %q", params.Name), nil)
		}
		if errors.Is(err, context.DeadlineExceeded) {
			return jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeTimeout, "request timed out", nil)
		}
		d.log.ErrorContext(ctx, "tools.call.fail", slog.String("tool", params.Name), slog.String("err", err.Error()))
		return jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeInternalError, "tool execution failed", nil)
	}
	return mustResult(req.ID, res)
}

func (d *dispatcher) listPrompts(ctx context.Context, req *jsonrpc.Request) *jsonrpc.Response {
	ctx, cancel := context.WithTimeout(ctx, listTimeout)
	defer cancel()

	prompts, err := d.reg.ListPrompts(ctx)
	if err != nil {
		d.log.WarnContext(ctx, "prompts.list.fail", slog.String("err", err.Error()))
		prompts = nil
	}
	if prompts == nil {
		prompts = []mcp.Prompt{}
	}
	return mustResult(req.ID, &mcp.ListPromptsResult{Prompts: prompts})
}

func (d *dispatcher) getPrompt(ctx context.Context, req *jsonrpc.Request) *jsonrpc.Response {
	var params mcp.GetPromptRequest
	if err := json.Unmarshal(req.Params, &params); err != nil || params.Name == "" {
		return jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeInvalidParams, "prompts/get requires a name", nil)
	}
	res, err := d.reg.GetPrompt(ctx, params.Name, params.Arguments)
	if err != nil {
		if errors.Is(err, registry.ErrPromptNotFound) {
			return jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeInvalidParams, fmt.Sprintf("unknown prompt %q", params.Name), nil)
		}
		d.log.ErrorContext(ctx, "prompts.get.fail", slog.String("prompt", params.Name), slog.String("err", err.Error()))
		return jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeInternalError, "prompt rendering failed", nil)
	}
	return mustResult(req.ID, res)
}

// initializeResult negotiates the protocol version and describes the server.
// An unsupported or absent requested version falls back to the newest
// supported version.
func (d *dispatcher) initializeResult(initReq *mcp.InitializeRequest) *mcp.InitializeResult {
	version := mcp.LatestProtocolVersion
	if initReq != nil && mcp.IsSupportedProtocolVersion(initReq.ProtocolVersion) {
		version = initReq.ProtocolVersion
	}
	return &mcp.InitializeResult{
		ProtocolVersion: version,
		Capabilities: mcp.ServerCapabilities{
			Tools:   &mcp.ToolsCapability{},
			Prompts: &mcp.PromptsCapability{},
		},
		ServerInfo:   d.serverInfo,
		Instructions: d.instructions,
	}
}

func mustResult(id *jsonrpc.RequestID, result any) *jsonrpc.Response {
	resp, err := jsonrpc.NewResultResponse(id, result)
	if err != nil {
		return jsonrpc.NewErrorResponse(id, jsonrpc.ErrorCodeInternalError, "failed to encode result", nil)
	}
	return resp
}
