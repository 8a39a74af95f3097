// Package oauth implements the gateway's embedded OAuth 2.1 authorization
// server: dynamic client registration (RFC 7591), the authorization-code
// flow with mandatory PKCE (S256), client-credentials and refresh-token
// grants, token introspection (RFC 7662), and authorization server metadata
// (RFC 8414).
//
// State lives behind three narrow store interfaces (ClientStore, CodeStore,
// TokenStore) injected into the Service. The memstore subpackage provides
// the default in-process implementation; redisstore backs shared
// deployments. All identifiers and credentials are 256-bit random opaque
// strings; nothing here is a JWT.
//
// The /authorize endpoint auto-approves: there is no interactive consent
// step. That is a deliberate simplification for a tool gateway whose
// clients are operator-provisioned, not a missing feature.
package oauth
