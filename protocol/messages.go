package protocol

import "encoding/json"

// JSONRPCVersion is the JSON-RPC protocol version.
const JSONRPCVersion = "2.0"

// Request represents a JSON-RPC 2.0 request.
//
// IDs are opaque strings (UUIDs in practice). A request without an ID is a
// notification: the server sends no response and the caller must not wait
// for one.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      string          `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// IsNotification returns true if this request has no ID (is a notification).
func (r *Request) IsNotification() bool {
	return r.ID == ""
}

// NewRequest creates a request with the given correlation ID. params may be
// nil, in which case the params field is omitted from the wire encoding
// entirely; some servers distinguish a missing params field from an empty
// object.
func NewRequest(id, method string, params any) (*Request, error) {
	req := &Request{
		JSONRPC: JSONRPCVersion,
		ID:      id,
		Method:  method,
	}
	if params != nil {
		raw, err := json.Marshal(params)
		if err != nil {
			return nil, err
		}
		req.Params = raw
	}
	return req, nil
}

// NewNotification creates a fire-and-forget request carrying no ID.
func NewNotification(method string, params any) (*Request, error) {
	return NewRequest("", method, params)
}

// Response represents a JSON-RPC 2.0 response.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      string          `json:"id,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`
}

// NewResponse creates a successful response.
func NewResponse(id string, result any) (*Response, error) {
	resp := &Response{
		JSONRPC: JSONRPCVersion,
		ID:      id,
	}
	if result != nil {
		raw, err := json.Marshal(result)
		if err != nil {
			return nil, err
		}
		resp.Result = raw
	}
	return resp, nil
}

// NewErrorResponse creates an error response.
func NewErrorResponse(id string, err *Error) *Response {
	return &Response{
		JSONRPC: JSONRPCVersion,
		ID:      id,
		Error:   err,
	}
}
