package client

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"sync"

	"github.com/supportbase/mcpcollect/protocol"
)

// StdioTransport talks to an MCP server spawned as a subprocess,
// exchanging newline-delimited JSON over its stdin/stdout.
type StdioTransport struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout io.ReadCloser

	writeMu sync.Mutex

	mu      sync.Mutex
	pending map[string]chan *protocol.Response
	closed  bool

	readWG  sync.WaitGroup
	done    chan struct{}
	readErr error
}

// NewStdioTransport spawns command and connects to its stdio.
func NewStdioTransport(command string, args ...string) (*StdioTransport, error) {
	cmd := exec.Command(command, args...)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start %s: %w", command, err)
	}

	t := &StdioTransport{
		cmd:     cmd,
		stdin:   stdin,
		stdout:  stdout,
		pending: make(map[string]chan *protocol.Response),
		done:    make(chan struct{}),
	}
	t.readWG.Add(1)
	go t.readLoop()
	return t, nil
}

func (t *StdioTransport) readLoop() {
	defer t.readWG.Done()
	scanner := bufio.NewScanner(t.stdout)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var resp protocol.Response
		if err := json.Unmarshal(line, &resp); err != nil {
			// Server-initiated notifications and junk lines are skipped.
			continue
		}

		t.mu.Lock()
		ch, ok := t.pending[resp.ID]
		delete(t.pending, resp.ID)
		t.mu.Unlock()
		if ok {
			ch <- &resp
		}
	}
	t.readErr = scanner.Err()
	if t.readErr == nil {
		t.readErr = io.EOF
	}
	close(t.done)
}

// Send writes a request line and waits for the response with the same ID.
func (t *StdioTransport) Send(ctx context.Context, req *protocol.Request) (*protocol.Response, error) {
	ch := make(chan *protocol.Response, 1)
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil, fmt.Errorf("send %s: transport closed", req.Method)
	}
	t.pending[req.ID] = ch
	t.mu.Unlock()

	if err := t.writeLine(req); err != nil {
		t.mu.Lock()
		delete(t.pending, req.ID)
		t.mu.Unlock()
		return nil, fmt.Errorf("send %s: %w", req.Method, err)
	}

	select {
	case resp := <-ch:
		return resp, nil
	case <-t.done:
		return nil, fmt.Errorf("send %s: server exited: %w", req.Method, t.readErr)
	case <-ctx.Done():
		t.mu.Lock()
		delete(t.pending, req.ID)
		t.mu.Unlock()
		return nil, ctx.Err()
	}
}

// Notify writes a notification line without awaiting a response.
func (t *StdioTransport) Notify(_ context.Context, req *protocol.Request) error {
	if err := t.writeLine(req); err != nil {
		return fmt.Errorf("notify %s: %w", req.Method, err)
	}
	return nil
}

func (t *StdioTransport) writeLine(req *protocol.Request) error {
	data, err := protocol.EncodeRequest(req)
	if err != nil {
		return err
	}

	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	if _, err := t.stdin.Write(append(data, '\n')); err != nil {
		return err
	}
	return nil
}

// Close signals EOF on stdin, kills the subprocess and reaps it. Servers
// that exit on EOF get a moment to do so via the pipe close; ones that
// ignore it are killed, so teardown never blocks on the child. Safe to
// call multiple times.
func (t *StdioTransport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	t.mu.Unlock()

	_ = t.stdin.Close()
	if t.cmd.Process != nil {
		_ = t.cmd.Process.Kill()
	}

	// All stdout reads must finish before Wait releases the pipe.
	t.readWG.Wait()

	err := t.cmd.Wait()
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		// A nonzero or killed exit is the expected outcome of teardown.
		return nil
	}
	return err
}
