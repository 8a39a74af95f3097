package oauth

import "fmt"

// Standard OAuth 2.1 error codes surfaced in {error, error_description}
// bodies, always with HTTP status 400.
const (
	ErrorInvalidRequest          = "invalid_request"
	ErrorInvalidClient           = "invalid_client"
	ErrorInvalidGrant            = "invalid_grant"
	ErrorUnsupportedGrantType    = "unsupported_grant_type"
	ErrorUnsupportedResponseType = "unsupported_response_type"
	ErrorInvalidRedirectURI      = "invalid_redirect_uri"
	ErrorServerError             = "server_error"
)

// Error is an OAuth protocol error. It marshals directly to the wire shape.
type Error struct {
	Code        string `json:"error"`
	Description string `json:"error_description,omitempty"`
}

func (e *Error) Error() string {
	if e.Description == "" {
		return e.Code
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Description)
}

// NewError builds an OAuth protocol error.
func NewError(code, description string) *Error {
	return &Error{Code: code, Description: description}
}

// Errorf builds an OAuth protocol error with a formatted description.
func Errorf(code, format string, args ...any) *Error {
	return &Error{Code: code, Description: fmt.Sprintf(format, args...)}
}
