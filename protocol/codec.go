package protocol

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// EncodeRequest serializes a request for the wire. A nil Params field is
// omitted from the output.
func EncodeRequest(req *Request) ([]byte, error) {
	if req.JSONRPC == "" {
		req.JSONRPC = JSONRPCVersion
	}
	data, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}
	return data, nil
}

// DecodeResponse turns wire bytes back into a response envelope.
//
// If contentType declares an event stream, the body is scanned line by
// line: every line starting with the case-insensitive marker "data:"
// carries a JSON payload, and the last valid payload wins. Servers may
// emit several data lines per message and only the final one is
// authoritative. A body with no usable data line is parsed as one JSON
// document. Any other content type is parsed directly as JSON.
//
// Malformed bodies on either path yield a *DecodeError carrying the HTTP
// status and a truncated body snippet.
func DecodeResponse(contentType string, status int, body []byte) (*Response, error) {
	payload := body
	if strings.Contains(strings.ToLower(contentType), ContentTypeEventStream) {
		if data := lastEventData(body); data != nil {
			payload = data
		}
	}

	var resp Response
	if err := json.Unmarshal(payload, &resp); err != nil {
		return nil, NewDecodeError(status, body, err)
	}
	return &resp, nil
}

// lastEventData returns the payload of the last valid "data:" line in an
// event-stream body, or nil if none was found.
func lastEventData(body []byte) []byte {
	var last []byte
	scanner := bufio.NewScanner(bytes.NewReader(body))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if len(line) < 5 || !strings.EqualFold(line[:5], "data:") {
			continue
		}
		payload := strings.TrimPrefix(line[5:], " ")
		if json.Valid([]byte(payload)) {
			last = []byte(payload)
		}
	}
	return last
}
