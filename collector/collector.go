// Package collector pulls support data out of an Atlassian MCP gateway
// through tool calls and optionally persists it.
package collector

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/felixgeelhaar/fortify/ratelimit"

	"github.com/supportbase/mcpcollect/client"
	"github.com/supportbase/mcpcollect/store"
)

// ToolCaller is the slice of the MCP client collectors depend on.
type ToolCaller interface {
	CallTool(ctx context.Context, name string, arguments map[string]any) *client.ToolResult
}

// Option configures a collector.
type Option func(*options)

type options struct {
	store  *store.Store
	logger *slog.Logger
	allow  func(ctx context.Context, key string) bool
}

// WithStore persists collected records after each successful pull.
func WithStore(s *store.Store) Option {
	return func(o *options) {
		o.store = s
	}
}

// WithLogger sets the structured logger. Defaults to a discarding logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// WithRateLimit caps tool calls at rate per second with the given burst,
// protecting the upstream Atlassian APIs behind the gateway.
func WithRateLimit(rate, burst int) Option {
	return func(o *options) {
		limiter := ratelimit.New(&ratelimit.Config{
			Rate:     rate,
			Burst:    burst,
			Interval: time.Second,
		})
		o.allow = limiter.Allow
	}
}

func newOptions(opts []Option) options {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.New(slog.DiscardHandler)
	}
	return o
}

// throttle blocks until the limiter admits another call or the context
// ends. A collector without a limiter proceeds immediately.
func (o *options) throttle(ctx context.Context, key string) error {
	if o.allow == nil {
		return nil
	}
	for !o.allow(ctx, key) {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(50 * time.Millisecond):
		}
	}
	return nil
}

// resultText extracts the text payload from a tool result, turning
// flagged results into errors.
func resultText(res *client.ToolResult) (string, error) {
	if res.IsError {
		parts := make([]string, 0, len(res.Content))
		for _, item := range res.Content {
			if item.Text != "" {
				parts = append(parts, item.Text)
			}
		}
		if len(parts) == 0 {
			return "", errors.New("tool call failed")
		}
		return "", errors.New(strings.Join(parts, "; "))
	}
	for _, item := range res.Content {
		if item.Type == "text" && item.Text != "" {
			return item.Text, nil
		}
	}
	return "", nil
}

// decodeRecords parses a tool's text payload as either a JSON array of T
// or a single T, matching the two shapes gateways emit.
func decodeRecords[T any](text string) ([]T, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, nil
	}

	var many []T
	if err := json.Unmarshal([]byte(text), &many); err == nil {
		return many, nil
	}
	var one T
	if err := json.Unmarshal([]byte(text), &one); err != nil {
		return nil, fmt.Errorf("unexpected tool payload: %w", err)
	}
	return []T{one}, nil
}
