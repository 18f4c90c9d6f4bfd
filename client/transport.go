package client

import (
	"context"

	"github.com/supportbase/mcpcollect/protocol"
)

// Transport defines the interface for client-side transport.
type Transport interface {
	// Send sends a request and waits for the correlated response.
	Send(ctx context.Context, req *protocol.Request) (*protocol.Response, error)
	// Notify sends a fire-and-forget notification; no response is awaited.
	Notify(ctx context.Context, req *protocol.Request) error
	// Close releases the transport's underlying resources. It must be
	// safe to call more than once.
	Close() error
}
