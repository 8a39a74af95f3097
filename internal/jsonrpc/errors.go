package jsonrpc

// ErrorCode is a JSON-RPC 2.0 error code.
type ErrorCode int

const (
	// ErrorCodeParseError indicates invalid JSON was received by the server.
	ErrorCodeParseError ErrorCode = -32700
	// ErrorCodeInvalidRequest indicates the JSON sent is not a valid Request object.
	ErrorCodeInvalidRequest ErrorCode = -32600
	// ErrorCodeMethodNotFound indicates the method does not exist / is not available.
	ErrorCodeMethodNotFound ErrorCode = -32601
	// ErrorCodeInvalidParams indicates invalid method parameters.
	ErrorCodeInvalidParams ErrorCode = -32602
	// ErrorCodeInternalError indicates an internal JSON-RPC error.
	ErrorCodeInternalError ErrorCode = -32603

	// ErrorCodeUnauthorized is the distinguished code carried in the body of
	// HTTP 401 rejections so that plain JSON-RPC clients can interpret them.
	ErrorCodeUnauthorized ErrorCode = -32000
	// ErrorCodeTimeout indicates the request exceeded the dispatcher's
	// overall processing deadline.
	ErrorCodeTimeout ErrorCode = -32001
)
