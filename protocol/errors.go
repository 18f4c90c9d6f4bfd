package protocol

import "fmt"

// Standard JSON-RPC 2.0 error codes.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
)

// Error represents a JSON-RPC 2.0 error.
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("mcp: %s (code: %d)", e.Message, e.Code)
}

// Is implements errors.Is comparison by error code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// NewMethodNotFound creates a method not found error (-32601).
func NewMethodNotFound(msg string) *Error {
	return &Error{Code: CodeMethodNotFound, Message: msg}
}

// NewInvalidParams creates an invalid params error (-32602).
func NewInvalidParams(msg string) *Error {
	return &Error{Code: CodeInvalidParams, Message: msg}
}

// NewInternalError creates an internal error (-32603).
func NewInternalError(msg string) *Error {
	return &Error{Code: CodeInternalError, Message: msg}
}

// maxBodySnippet bounds how much of a raw response body a DecodeError
// carries for diagnostics.
const maxBodySnippet = 1000

// DecodeError reports a response body that could not be decoded into a
// JSON-RPC envelope. It keeps the HTTP status and a truncated copy of the
// raw body so callers can see what the server actually sent. Decode
// failures are never retried automatically.
type DecodeError struct {
	Status int
	Body   string
	Err    error
}

// NewDecodeError creates a DecodeError, truncating body to a bounded
// snippet.
func NewDecodeError(status int, body []byte, err error) *DecodeError {
	snippet := string(body)
	if len(snippet) > maxBodySnippet {
		snippet = snippet[:maxBodySnippet]
	}
	return &DecodeError{Status: status, Body: snippet, Err: err}
}

// Error implements the error interface.
func (e *DecodeError) Error() string {
	return fmt.Sprintf("mcp: decode response (status %d): %v: %q", e.Status, e.Err, e.Body)
}

// Unwrap returns the underlying decode failure.
func (e *DecodeError) Unwrap() error {
	return e.Err
}
