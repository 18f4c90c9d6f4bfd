package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/supportbase/mcpcollect/backoff"
	"github.com/supportbase/mcpcollect/protocol"
)

// State describes the client's connection lifecycle.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "disconnected"
	}
}

// Tool represents a tool exposed by the server, with its parameter schema
// flattened into an ordered list.
type Tool struct {
	Name        string
	Description string
	Parameters  []ToolParameter
}

// ToolParameter describes one parameter of a tool.
type ToolParameter struct {
	Name        string
	Type        string
	Description string
	Required    bool
	Enum        []string
}

// ToolResult is the result of calling a tool. When IsError is set the
// content is a human-readable failure explanation, not structured data.
type ToolResult struct {
	Content []ContentItem
	IsError bool
}

// ContentItem is one content item in a tool result, in server order.
type ContentItem struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
	Data string `json:"data,omitempty"`
}

// Resource represents a resource exposed by the server.
type Resource struct {
	URI         string `json:"uri"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	MimeType    string `json:"mimeType,omitempty"`
}

// Health reports the outcome of a health check.
type Health struct {
	Status       string
	ResponseTime time.Duration
	Err          string
}

// Healthy reports whether the server answered.
func (h Health) Healthy() bool {
	return h.Status == "healthy"
}

// Option configures a Client.
type Option func(*clientOptions)

type clientOptions struct {
	timeout     time.Duration
	clientName  string
	clientVer   string
	protocolVer string
	logger      *slog.Logger
	policy      backoff.Policy
	tracerProv  trace.TracerProvider
	meterProv   metric.MeterProvider
}

// WithTimeout sets the default timeout applied to each request.
func WithTimeout(d time.Duration) Option {
	return func(o *clientOptions) {
		o.timeout = d
	}
}

// WithClientInfo sets the client name and version sent during the
// handshake.
func WithClientInfo(name, version string) Option {
	return func(o *clientOptions) {
		o.clientName = name
		o.clientVer = version
	}
}

// WithProtocolVersion sets the protocol version to declare.
func WithProtocolVersion(version string) Option {
	return func(o *clientOptions) {
		o.protocolVer = version
	}
}

// WithLogger sets the structured logger. Defaults to a discarding logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *clientOptions) {
		o.logger = l
	}
}

// WithBackoff sets the retry policy used for connection establishment.
func WithBackoff(p backoff.Policy) Option {
	return func(o *clientOptions) {
		o.policy = p
	}
}

// WithTracerProvider sets a custom tracer provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(o *clientOptions) {
		o.tracerProv = tp
	}
}

// WithMeterProvider sets a custom meter provider.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(o *clientOptions) {
		o.meterProv = mp
	}
}

// Client is an MCP client. It is synchronous: each call blocks until the
// transport completes or times out. The connection lifecycle is
// Disconnected -> Connecting -> Connected -> Disconnected, and a
// disconnected client may connect again.
type Client struct {
	transport Transport
	opts      clientOptions
	logger    *slog.Logger
	tel       *telemetry

	mu           sync.RWMutex
	state        State
	capabilities map[string]any
}

// New creates a client over the given transport.
func New(transport Transport, opts ...Option) *Client {
	options := clientOptions{
		timeout:     30 * time.Second,
		clientName:  "mcpcollect",
		clientVer:   "1.0.0",
		protocolVer: protocol.Version,
		policy:      backoff.Default(),
	}
	for _, opt := range opts {
		opt(&options)
	}
	if options.logger == nil {
		options.logger = slog.New(slog.DiscardHandler)
	}
	if options.tracerProv == nil {
		options.tracerProv = otel.GetTracerProvider()
	}
	if options.meterProv == nil {
		options.meterProv = otel.GetMeterProvider()
	}

	return &Client{
		transport: transport,
		opts:      options,
		logger:    options.logger,
		tel:       newTelemetry(options.tracerProv, options.meterProv),
	}
}

// State returns the current connection state.
func (c *Client) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

func (c *Client) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

// Capabilities returns the server-declared capabilities captured during
// the handshake, or nil before a successful Connect.
func (c *Client) Capabilities() map[string]any {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.capabilities
}

// Connect performs the handshake under the retry policy, then announces
// readiness. Transport and decode failures are retried with exponential
// delay; a protocol-level rejection is surfaced immediately. On
// exhaustion the client stays disconnected and the last failure is
// returned.
func (c *Client) Connect(ctx context.Context) error {
	c.setState(StateConnecting)

	err := c.opts.policy.Run(ctx, func(ctx context.Context) error {
		resp, err := c.call(ctx, protocol.MethodInitialize, map[string]any{
			"protocolVersion": c.opts.protocolVer,
			"capabilities": map[string]any{
				"roots":    map[string]any{"listChanged": true},
				"sampling": map[string]any{},
			},
			"clientInfo": map[string]any{
				"name":    c.opts.clientName,
				"version": c.opts.clientVer,
			},
		})
		if err != nil {
			var protoErr *protocol.Error
			if errors.As(err, &protoErr) {
				return backoff.Permanent(err)
			}
			c.logger.Warn("connection attempt failed", "error", err)
			return err
		}

		var caps struct {
			Capabilities map[string]any `json:"capabilities"`
		}
		if len(resp.Result) > 0 {
			if err := json.Unmarshal(resp.Result, &caps); err != nil {
				return fmt.Errorf("decode capabilities: %w", err)
			}
		}
		c.mu.Lock()
		c.capabilities = caps.Capabilities
		c.mu.Unlock()
		return nil
	})
	if err != nil {
		c.setState(StateDisconnected)
		return fmt.Errorf("connect: %w", err)
	}

	// Readiness notification is fire-and-forget and never retried.
	if err := c.notify(ctx, protocol.MethodInitialized, nil); err != nil {
		c.logger.Warn("initialized notification failed", "error", err)
	}

	c.setState(StateConnected)
	c.logger.Info("mcp connection established")
	return nil
}

// Disconnect sends a best-effort shutdown request when connected, then
// unconditionally transitions to disconnected and releases the
// transport. It never returns an error and is safe to call repeatedly,
// including after a failed Connect.
func (c *Client) Disconnect(ctx context.Context) {
	if c.State() == StateConnected {
		if _, err := c.call(ctx, protocol.MethodShutdown, nil); err != nil {
			c.logger.Warn("shutdown request failed", "error", err)
		}
	}

	c.setState(StateDisconnected)
	if err := c.transport.Close(); err != nil {
		c.logger.Warn("transport close failed", "error", err)
	}
	c.logger.Info("mcp connection closed")
}

// ListTools returns the tools available on the server. A response without
// a tools key yields an empty list: a server with nothing to offer is
// valid, not broken.
func (c *Client) ListTools(ctx context.Context) ([]Tool, error) {
	resp, err := c.call(ctx, protocol.MethodToolsList, nil)
	if err != nil {
		return nil, fmt.Errorf("list tools: %w", err)
	}

	var result struct {
		Tools []struct {
			Name        string          `json:"name"`
			Description string          `json:"description"`
			InputSchema json.RawMessage `json:"inputSchema"`
		} `json:"tools"`
	}
	if len(resp.Result) > 0 {
		if err := json.Unmarshal(resp.Result, &result); err != nil {
			return nil, fmt.Errorf("list tools: %w", err)
		}
	}

	tools := make([]Tool, 0, len(result.Tools))
	for _, t := range result.Tools {
		tools = append(tools, Tool{
			Name:        t.Name,
			Description: t.Description,
			Parameters:  flattenSchema(t.InputSchema),
		})
	}
	return tools, nil
}

// flattenSchema turns a nested JSON schema into an ordered parameter
// list. Order follows the schema's property declaration order, and the
// required flag is computed by membership in the schema's required set.
func flattenSchema(schema json.RawMessage) []ToolParameter {
	if len(schema) == 0 {
		return nil
	}

	var s struct {
		Properties json.RawMessage `json:"properties"`
		Required   []string        `json:"required"`
	}
	if err := json.Unmarshal(schema, &s); err != nil || len(s.Properties) == 0 {
		return nil
	}

	required := make(map[string]bool, len(s.Required))
	for _, name := range s.Required {
		required[name] = true
	}

	// encoding/json maps do not preserve key order, so walk the
	// properties object with a token decoder.
	dec := json.NewDecoder(bytes.NewReader(s.Properties))
	if tok, err := dec.Token(); err != nil || tok != json.Delim('{') {
		return nil
	}

	var params []ToolParameter
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			break
		}
		name, ok := keyTok.(string)
		if !ok {
			break
		}

		var info struct {
			Type        string   `json:"type"`
			Description string   `json:"description"`
			Enum        []string `json:"enum"`
		}
		if err := dec.Decode(&info); err != nil {
			break
		}
		if info.Type == "" {
			info.Type = "string"
		}
		params = append(params, ToolParameter{
			Name:        name,
			Type:        info.Type,
			Description: info.Description,
			Required:    required[name],
			Enum:        info.Enum,
		})
	}
	return params
}

// CallTool invokes a tool by name. It never returns an error: transport
// and protocol failures come back as a result with the error flag set and
// a single text item describing the failure, so batch callers get one
// uniform success/failure value per call.
func (c *Client) CallTool(ctx context.Context, name string, arguments map[string]any) *ToolResult {
	params := map[string]any{"name": name}
	if arguments != nil {
		params["arguments"] = arguments
	}

	resp, err := c.call(ctx, protocol.MethodToolsCall, params)
	if err != nil {
		c.logger.Error("tool call failed", "tool", name, "error", err)
		return &ToolResult{
			IsError: true,
			Content: []ContentItem{{Type: "text", Text: fmt.Sprintf("Error: %v", err)}},
		}
	}

	var result struct {
		Content []ContentItem `json:"content"`
		IsError bool          `json:"isError"`
	}
	if len(resp.Result) > 0 {
		if err := json.Unmarshal(resp.Result, &result); err != nil {
			c.logger.Error("tool result malformed", "tool", name, "error", err)
			return &ToolResult{
				IsError: true,
				Content: []ContentItem{{Type: "text", Text: fmt.Sprintf("Error: %v", err)}},
			}
		}
	}
	return &ToolResult{Content: result.Content, IsError: result.IsError}
}

// ListResources returns the resources available on the server. A missing
// resources key yields an empty list.
func (c *Client) ListResources(ctx context.Context) ([]Resource, error) {
	resp, err := c.call(ctx, protocol.MethodResourcesList, nil)
	if err != nil {
		return nil, fmt.Errorf("list resources: %w", err)
	}

	var result struct {
		Resources []Resource `json:"resources"`
	}
	if len(resp.Result) > 0 {
		if err := json.Unmarshal(resp.Result, &result); err != nil {
			return nil, fmt.Errorf("list resources: %w", err)
		}
	}
	if result.Resources == nil {
		return []Resource{}, nil
	}
	return result.Resources, nil
}

// ReadResource reads a resource by URI and returns the first content
// item's text or binary payload, or "" if the server returned no content.
func (c *Client) ReadResource(ctx context.Context, uri string) (string, error) {
	resp, err := c.call(ctx, protocol.MethodResourcesRead, map[string]any{"uri": uri})
	if err != nil {
		return "", fmt.Errorf("read resource %q: %w", uri, err)
	}

	var result struct {
		Contents []struct {
			Text string `json:"text"`
			Blob string `json:"blob"`
		} `json:"contents"`
	}
	if len(resp.Result) > 0 {
		if err := json.Unmarshal(resp.Result, &result); err != nil {
			return "", fmt.Errorf("read resource %q: %w", uri, err)
		}
	}
	if len(result.Contents) == 0 {
		return "", nil
	}
	if result.Contents[0].Text != "" {
		return result.Contents[0].Text, nil
	}
	return result.Contents[0].Blob, nil
}

// HealthCheck issues a cheap tools/list request and reports elapsed time
// and status. It works without an established session and never fails:
// every error degrades to an unhealthy report carrying the error text.
func (c *Client) HealthCheck(ctx context.Context) Health {
	start := time.Now()
	_, err := c.call(ctx, protocol.MethodToolsList, nil)
	elapsed := time.Since(start)

	if err != nil {
		c.logger.Error("health check failed", "error", err)
		return Health{Status: "unhealthy", ResponseTime: elapsed, Err: err.Error()}
	}
	c.logger.Info("health check passed", "elapsed", elapsed)
	return Health{Status: "healthy", ResponseTime: elapsed}
}

// call makes one JSON-RPC exchange with a fresh correlation ID.
func (c *Client) call(ctx context.Context, method string, params any) (*protocol.Response, error) {
	req, err := protocol.NewRequest(uuid.NewString(), method, params)
	if err != nil {
		return nil, fmt.Errorf("marshal params: %w", err)
	}

	if c.opts.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.opts.timeout)
		defer cancel()
	}

	var resp *protocol.Response
	err = c.tel.observe(ctx, method, func(ctx context.Context) error {
		r, err := c.transport.Send(ctx, req)
		if err != nil {
			return err
		}
		if r.Error != nil {
			return r.Error
		}
		resp = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// notify sends a fire-and-forget notification. Notifications carry no ID
// and are never retried.
func (c *Client) notify(ctx context.Context, method string, params any) error {
	req, err := protocol.NewNotification(method, params)
	if err != nil {
		return fmt.Errorf("marshal params: %w", err)
	}

	if c.opts.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.opts.timeout)
		defer cancel()
	}

	return c.tel.observe(ctx, method, func(ctx context.Context) error {
		return c.transport.Notify(ctx, req)
	})
}
