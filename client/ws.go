package client

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/supportbase/mcpcollect/protocol"
)

// WSTransport speaks JSON-RPC over a single WebSocket connection. Frames
// interleave, so responses are correlated with requests by ID. There is
// no session header on this transport; the connection itself is the
// session.
type WSTransport struct {
	conn    *websocket.Conn
	writeMu sync.Mutex

	mu      sync.Mutex
	pending map[string]chan *protocol.Response

	closeOnce sync.Once
	done      chan struct{}
	readErr   error
}

// DialWS connects to a WebSocket MCP endpoint.
func DialWS(ctx context.Context, url string) (*WSTransport, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}

	t := &WSTransport{
		conn:    conn,
		pending: make(map[string]chan *protocol.Response),
		done:    make(chan struct{}),
	}
	go t.readLoop()
	return t, nil
}

func (t *WSTransport) readLoop() {
	for {
		var resp protocol.Response
		if err := t.conn.ReadJSON(&resp); err != nil {
			t.readErr = err
			close(t.done)
			return
		}
		t.mu.Lock()
		ch, ok := t.pending[resp.ID]
		delete(t.pending, resp.ID)
		t.mu.Unlock()
		if ok {
			ch <- &resp
		}
	}
}

// Send writes a request frame and waits for the response carrying the
// same ID.
func (t *WSTransport) Send(ctx context.Context, req *protocol.Request) (*protocol.Response, error) {
	ch := make(chan *protocol.Response, 1)
	t.mu.Lock()
	t.pending[req.ID] = ch
	t.mu.Unlock()

	if err := t.write(req); err != nil {
		t.mu.Lock()
		delete(t.pending, req.ID)
		t.mu.Unlock()
		return nil, fmt.Errorf("send %s: %w", req.Method, err)
	}

	select {
	case resp := <-ch:
		return resp, nil
	case <-t.done:
		return nil, fmt.Errorf("send %s: connection lost: %w", req.Method, t.readErr)
	case <-ctx.Done():
		t.mu.Lock()
		delete(t.pending, req.ID)
		t.mu.Unlock()
		return nil, ctx.Err()
	}
}

// Notify writes a notification frame without awaiting anything.
func (t *WSTransport) Notify(_ context.Context, req *protocol.Request) error {
	if err := t.write(req); err != nil {
		return fmt.Errorf("notify %s: %w", req.Method, err)
	}
	return nil
}

func (t *WSTransport) write(req *protocol.Request) error {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	return t.conn.WriteJSON(req)
}

// Close sends a close frame and tears down the connection. Safe to call
// multiple times.
func (t *WSTransport) Close() error {
	var err error
	t.closeOnce.Do(func() {
		deadline := time.Now().Add(time.Second)
		_ = t.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
		err = t.conn.Close()
	})
	return err
}
