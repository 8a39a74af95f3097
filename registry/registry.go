// Package registry defines the capability-registry contract the gateway
// transport depends on. The registry enumerates and executes the tools and
// prompts the gateway exposes; the transport never reaches into a
// registry's internals, it only speaks this interface.
package registry

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/ggoodman/mcp-gateway-go/mcp"
)

// ErrToolNotFound indicates the named tool is not registered.
var ErrToolNotFound = errors.New("tool not found")

// ErrPromptNotFound indicates the named prompt is not registered.
var ErrPromptNotFound = errors.New("prompt not found")

// CapabilityRegistry enumerates and invokes the capabilities behind the
// gateway. Implementations must be safe for concurrent use and must honor
// the context for cancellation: the dispatcher bounds listing with a short
// deadline and invocation with the overall request deadline.
type CapabilityRegistry interface {
	ListTools(ctx context.Context) ([]mcp.Tool, error)
	CallTool(ctx context.Context, name string, args json.RawMessage) (*mcp.CallToolResult, error)
	ListPrompts(ctx context.Context) ([]mcp.Prompt, error)
	GetPrompt(ctx context.Context, name string, args map[string]string) (*mcp.GetPromptResult, error)
}
