package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/ggoodman/mcp-gateway-go/mcp"
	"github.com/invopop/jsonschema"
)

// ToolHandler executes a tool invocation.
type ToolHandler func(ctx context.Context, args json.RawMessage) (*mcp.CallToolResult, error)

// PromptHandler renders a prompt from its arguments.
type PromptHandler func(ctx context.Context, args map[string]string) (*mcp.GetPromptResult, error)

// StaticRegistry is a fixed, threadsafe CapabilityRegistry. It is the
// simplest way to stand a gateway up: register tools and prompts at
// startup and hand the registry to the transport.
type StaticRegistry struct {
	mu             sync.RWMutex
	tools          []mcp.Tool
	toolHandlers   map[string]ToolHandler
	prompts        []mcp.Prompt
	promptHandlers map[string]PromptHandler
}

var _ CapabilityRegistry = (*StaticRegistry)(nil)

// NewStaticRegistry returns an empty registry.
func NewStaticRegistry() *StaticRegistry {
	return &StaticRegistry{
		toolHandlers:   make(map[string]ToolHandler),
		promptHandlers: make(map[string]PromptHandler),
	}
}

// AddTool registers a tool with an explicit descriptor.
func (r *StaticRegistry) AddTool(desc mcp.Tool, handler ToolHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools = append(r.tools, desc)
	r.toolHandlers[desc.Name] = handler
}

// AddPrompt registers a prompt.
func (r *StaticRegistry) AddPrompt(desc mcp.Prompt, handler PromptHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.prompts = append(r.prompts, desc)
	r.promptHandlers[desc.Name] = handler
}

func (r *StaticRegistry) ListTools(ctx context.Context) ([]mcp.Tool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]mcp.Tool(nil), r.tools...), nil
}

func (r *StaticRegistry) CallTool(ctx context.Context, name string, args json.RawMessage) (*mcp.CallToolResult, error) {
	r.mu.RLock()
	handler, ok := r.toolHandlers[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrToolNotFound, name)
	}
	return handler(ctx, args)
}

func (r *StaticRegistry) ListPrompts(ctx context.Context) ([]mcp.Prompt, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]mcp.Prompt(nil), r.prompts...), nil
}

func (r *StaticRegistry) GetPrompt(ctx context.Context, name string, args map[string]string) (*mcp.GetPromptResult, error) {
	r.mu.RLock()
	handler, ok := r.promptHandlers[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrPromptNotFound, name)
	}
	return handler(ctx, args)
}

// Tool builds a StaticRegistry tool from a typed argument struct A. The
// input schema is reflected from A's fields and json tags; arguments are
// decoded strictly before the handler runs.
func Tool[A any](name, description string, fn func(ctx context.Context, args A) (*mcp.CallToolResult, error)) (mcp.Tool, ToolHandler) {
	desc := mcp.Tool{
		Name:        name,
		Description: description,
		InputSchema: reflectInputSchema[A](),
	}
	handler := func(ctx context.Context, raw json.RawMessage) (*mcp.CallToolResult, error) {
		var a A
		if len(raw) > 0 {
			if err := json.Unmarshal(raw, &a); err != nil {
				return textError("invalid arguments: %v", err), nil
			}
		}
		return fn(ctx, a)
	}
	return desc, handler
}

// TextResult wraps a string as a successful tool result.
func TextResult(s string) *mcp.CallToolResult {
	return &mcp.CallToolResult{Content: []mcp.ContentBlock{{Type: "text", Text: s}}}
}

func textError(format string, args ...any) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.ContentBlock{{Type: "text", Text: fmt.Sprintf(format, args...)}},
		IsError: true,
	}
}

// reflectInputSchema reflects a Go type into the simplified tool input
// schema. Non-object types degrade to an empty object schema.
func reflectInputSchema[A any]() mcp.ToolInputSchema {
	r := &jsonschema.Reflector{
		DoNotReference: true, // inline defs
		ExpandedStruct: true, // put struct at root
	}
	s := r.Reflect(new(A))
	if s == nil || s.Type != "object" {
		return mcp.ToolInputSchema{Type: "object", Properties: map[string]mcp.SchemaProperty{}}
	}

	props := make(map[string]mcp.SchemaProperty)
	if s.Properties != nil {
		for el := s.Properties.Oldest(); el != nil; el = el.Next() {
			props[el.Key] = toSchemaProperty(el.Value)
		}
	}
	var required []string
	if len(s.Required) > 0 {
		required = append(required, s.Required...)
	}
	return mcp.ToolInputSchema{
		Type:       "object",
		Properties: props,
		Required:   required,
	}
}

func toSchemaProperty(s *jsonschema.Schema) mcp.SchemaProperty {
	if s == nil {
		return mcp.SchemaProperty{}
	}
	p := mcp.SchemaProperty{
		Type:        s.Type,
		Description: s.Description,
	}
	if len(s.Enum) > 0 {
		p.Enum = s.Enum
	}
	if s.Type == "array" && s.Items != nil {
		item := toSchemaProperty(s.Items)
		p.Items = &item
	}
	if s.Type == "object" && s.Properties != nil {
		m := make(map[string]mcp.SchemaProperty, s.Properties.Len())
		for el := s.Properties.Oldest(); el != nil; el = el.Next() {
			m[el.Key] = toSchemaProperty(el.Value)
		}
		p.Properties = m
	}
	return p
}
