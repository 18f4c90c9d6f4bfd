package client

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/supportbase/mcpcollect/protocol"
)

// HTTPTransport speaks the streamable HTTP flavor of MCP: every exchange
// is a POST to one fixed endpoint, and the server answers with either a
// plain JSON document or an event-stream framed payload. Session
// continuity rides on a header echoed back and forth.
type HTTPTransport struct {
	endpoint string
	client   *http.Client
	session  *Session
}

// HTTPOption configures the HTTP transport.
type HTTPOption func(*HTTPTransport)

// WithHTTPTimeout sets the per-request timeout applied uniformly to every
// exchange.
func WithHTTPTimeout(d time.Duration) HTTPOption {
	return func(t *HTTPTransport) {
		t.client.Timeout = d
	}
}

// WithHTTPClient replaces the underlying http.Client.
func WithHTTPClient(c *http.Client) HTTPOption {
	return func(t *HTTPTransport) {
		t.client = c
	}
}

// NewHTTPTransport creates a transport POSTing to the given endpoint URL.
func NewHTTPTransport(endpoint string, opts ...HTTPOption) *HTTPTransport {
	t := &HTTPTransport{
		endpoint: endpoint,
		client:   &http.Client{Timeout: 30 * time.Second},
		session:  &Session{},
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Session exposes the transport's session state.
func (t *HTTPTransport) Session() *Session {
	return t.session
}

// Send posts a request and decodes the correlated response.
func (t *HTTPTransport) Send(ctx context.Context, req *protocol.Request) (*protocol.Response, error) {
	resp, body, err := t.post(ctx, req)
	if err != nil {
		return nil, err
	}
	return protocol.DecodeResponse(resp.Header.Get("Content-Type"), resp.StatusCode, body)
}

// Notify posts a notification and discards whatever the server answers.
func (t *HTTPTransport) Notify(ctx context.Context, req *protocol.Request) error {
	_, _, err := t.post(ctx, req)
	return err
}

func (t *HTTPTransport) post(ctx context.Context, req *protocol.Request) (*http.Response, []byte, error) {
	data, err := protocol.EncodeRequest(req)
	if err != nil {
		return nil, nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint, bytes.NewReader(data))
	if err != nil {
		return nil, nil, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", protocol.ContentTypeJSON)
	httpReq.Header.Set("Accept", protocol.AcceptTypes)
	t.session.Apply(httpReq.Header)

	resp, err := t.client.Do(httpReq)
	if err != nil {
		return nil, nil, fmt.Errorf("send %s: %w", req.Method, err)
	}
	defer resp.Body.Close()

	// Update the session before anything can fail: a decode error must
	// not lose a server-issued token.
	t.session.Update(resp.Header)

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet := body
		if len(snippet) > 200 {
			snippet = snippet[:200]
		}
		return nil, nil, fmt.Errorf("send %s: server returned status %d: %q", req.Method, resp.StatusCode, snippet)
	}

	return resp, body, nil
}

// Close releases pooled connections and discards the session token.
// Safe to call multiple times.
func (t *HTTPTransport) Close() error {
	t.client.CloseIdleConnections()
	t.session.Reset()
	return nil
}
