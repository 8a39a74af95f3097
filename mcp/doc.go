// Package mcp defines the protocol-level types the gateway transport
// exchanges with clients: the initialize handshake, tool and prompt
// descriptors, and the method name constants used for routing.
//
// Only the subset of the protocol the transport itself needs lives here.
// Capability execution is external to the gateway; see the registry package
// for the contract the transport depends on.
package mcp
