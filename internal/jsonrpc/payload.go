package jsonrpc

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrInvalidPayload marks bodies that are well-formed JSON but not a valid
// JSON-RPC payload (empty body, empty batch). These map to "invalid
// request" rather than "parse error".
var ErrInvalidPayload = errors.New("invalid payload")

// Payload is the tagged union of the shapes a transport body can carry: a
// single message or a batch of messages. Classification happens here, at the
// boundary, so that handlers never duck-type raw JSON.
type Payload struct {
	// Batch is true when the body was a JSON array, even a single-element one.
	// Batch replies must be arrays regardless of element count.
	Batch    bool
	Messages []*AnyMessage
}

// ParsePayload decodes and validates a request body. It returns an error for
// bodies that are not valid JSON-RPC: non-object/array JSON, empty arrays,
// or elements violating 2.0 structural rules.
func ParsePayload(raw []byte) (*Payload, error) {
	trimmed := bytes.TrimLeft(raw, " \t\r\n")
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("%w: empty request body", ErrInvalidPayload)
	}

	if trimmed[0] == '[' {
		var elems []json.RawMessage
		if err := json.Unmarshal(raw, &elems); err != nil {
			return nil, fmt.Errorf("invalid JSON array: %w", err)
		}
		if len(elems) == 0 {
			return nil, fmt.Errorf("%w: empty batch", ErrInvalidPayload)
		}
		p := &Payload{Batch: true, Messages: make([]*AnyMessage, 0, len(elems))}
		for i, el := range elems {
			var msg AnyMessage
			if err := json.Unmarshal(el, &msg); err != nil {
				return nil, fmt.Errorf("batch element %d: %w", i, err)
			}
			p.Messages = append(p.Messages, &msg)
		}
		return p, nil
	}

	var msg AnyMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return nil, err
	}
	return &Payload{Messages: []*AnyMessage{&msg}}, nil
}

// Calls returns the subset of messages that are requests expecting a reply.
func (p *Payload) Calls() []*AnyMessage {
	var calls []*AnyMessage
	for _, m := range p.Messages {
		if m.IsCall() {
			calls = append(calls, m)
		}
	}
	return calls
}

// HasCalls reports whether any message expects a reply. A payload with no
// calls is acknowledged at the transport level (HTTP 202) with no body.
func (p *Payload) HasCalls() bool {
	for _, m := range p.Messages {
		if m.IsCall() {
			return true
		}
	}
	return false
}
