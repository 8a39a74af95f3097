package oauth

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
)

// CodeChallengeMethodS256 is the only PKCE method the server accepts.
// "plain" defeats the purpose of PKCE and is rejected at /authorize.
const CodeChallengeMethodS256 = "S256"

// VerifyPKCE checks that base64url(SHA256(verifier)) equals the stored
// challenge. The comparison is constant-time; no token is minted unless
// this holds.
func VerifyPKCE(verifier, challenge string) bool {
	if verifier == "" || challenge == "" {
		return false
	}
	sum := sha256.Sum256([]byte(verifier))
	computed := base64.RawURLEncoding.EncodeToString(sum[:])
	return subtle.ConstantTimeCompare([]byte(computed), []byte(challenge)) == 1
}
