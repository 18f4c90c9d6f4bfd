package client_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/supportbase/mcpcollect/client"
	"github.com/supportbase/mcpcollect/protocol"
)

func TestHTTPTransport_Send(t *testing.T) {
	t.Run("posts JSON-RPC with accept headers", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPost {
				t.Errorf("expected POST, got %s", r.Method)
			}
			if got := r.Header.Get("Content-Type"); got != protocol.ContentTypeJSON {
				t.Errorf("unexpected content type %q", got)
			}
			if got := r.Header.Get("Accept"); got != protocol.AcceptTypes {
				t.Errorf("unexpected accept header %q", got)
			}
			w.Header().Set("Content-Type", protocol.ContentTypeJSON)
			fmt.Fprint(w, `{"jsonrpc":"2.0","id":"1","result":{"ok":true}}`)
		}))
		defer srv.Close()

		tr := client.NewHTTPTransport(srv.URL)
		defer tr.Close()

		req, _ := protocol.NewRequest("1", protocol.MethodToolsList, nil)
		resp, err := tr.Send(context.Background(), req)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if string(resp.Result) != `{"ok":true}` {
			t.Errorf("unexpected result: %s", resp.Result)
		}
	})

	t.Run("decodes event-stream responses", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", protocol.ContentTypeEventStream)
			fmt.Fprint(w, "event: message\ndata: {\"jsonrpc\":\"2.0\",\"id\":\"1\",\"result\":{\"tools\":[]}}\n\n")
		}))
		defer srv.Close()

		tr := client.NewHTTPTransport(srv.URL)
		defer tr.Close()

		req, _ := protocol.NewRequest("1", protocol.MethodToolsList, nil)
		resp, err := tr.Send(context.Background(), req)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if string(resp.Result) != `{"tools":[]}` {
			t.Errorf("unexpected result: %s", resp.Result)
		}
	})

	t.Run("session token is stored and replayed", func(t *testing.T) {
		var mu sync.Mutex
		var seenSessions []string
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			mu.Lock()
			seenSessions = append(seenSessions, r.Header.Get(protocol.SessionHeader))
			mu.Unlock()
			w.Header().Set(protocol.SessionHeader, "sess-42")
			w.Header().Set("Content-Type", protocol.ContentTypeJSON)
			fmt.Fprint(w, `{"jsonrpc":"2.0","id":"1","result":{}}`)
		}))
		defer srv.Close()

		tr := client.NewHTTPTransport(srv.URL)
		defer tr.Close()

		req1, _ := protocol.NewRequest("1", protocol.MethodInitialize, nil)
		if _, err := tr.Send(context.Background(), req1); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		req2, _ := protocol.NewRequest("2", protocol.MethodToolsList, nil)
		if _, err := tr.Send(context.Background(), req2); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		mu.Lock()
		defer mu.Unlock()
		if seenSessions[0] != "" {
			t.Errorf("first request must carry no session header, got %q", seenSessions[0])
		}
		if seenSessions[1] != "sess-42" {
			t.Errorf("second request must replay the token, got %q", seenSessions[1])
		}
		if tr.Session().ID() != "sess-42" {
			t.Errorf("expected stored token, got %q", tr.Session().ID())
		}
	})

	t.Run("session survives a decode failure", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set(protocol.SessionHeader, "sess-7")
			w.Header().Set("Content-Type", protocol.ContentTypeJSON)
			fmt.Fprint(w, "this is not json")
		}))
		defer srv.Close()

		tr := client.NewHTTPTransport(srv.URL)
		defer tr.Close()

		req, _ := protocol.NewRequest("1", protocol.MethodToolsList, nil)
		_, err := tr.Send(context.Background(), req)

		var decodeErr *protocol.DecodeError
		if !errors.As(err, &decodeErr) {
			t.Fatalf("expected DecodeError, got %v", err)
		}
		if tr.Session().ID() != "sess-7" {
			t.Errorf("token issued alongside a bad body must not be lost, got %q", tr.Session().ID())
		}
	})

	t.Run("non-2xx status is a transport error", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "service unavailable", http.StatusServiceUnavailable)
		}))
		defer srv.Close()

		tr := client.NewHTTPTransport(srv.URL)
		defer tr.Close()

		req, _ := protocol.NewRequest("1", protocol.MethodToolsList, nil)
		_, err := tr.Send(context.Background(), req)
		if err == nil {
			t.Fatal("expected error")
		}
		if !strings.Contains(err.Error(), "503") {
			t.Errorf("expected status in error, got %v", err)
		}
	})

	t.Run("close resets the session and is repeatable", func(t *testing.T) {
		tr := client.NewHTTPTransport("http://localhost:0/mcp")
		h := http.Header{}
		h.Set(protocol.SessionHeader, "sess-1")
		tr.Session().Update(h)
		if tr.Session().ID() != "sess-1" {
			t.Fatalf("expected stored token, got %q", tr.Session().ID())
		}

		if err := tr.Close(); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if tr.Session().ID() != "" {
			t.Error("expected session to be discarded on close")
		}
		if err := tr.Close(); err != nil {
			t.Fatalf("second close: %v", err)
		}
	})
}

func jsonDecode(r *http.Request, v any) error {
	return json.NewDecoder(r.Body).Decode(v)
}

func TestHTTPTransport_Notify(t *testing.T) {
	t.Run("posts notification and ignores the body", func(t *testing.T) {
		var gotMethod string
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var req protocol.Request
			if err := jsonDecode(r, &req); err != nil {
				t.Errorf("bad body: %v", err)
			}
			gotMethod = req.Method
			if !req.IsNotification() {
				t.Error("notification must carry no ID")
			}
			w.WriteHeader(http.StatusAccepted)
		}))
		defer srv.Close()

		tr := client.NewHTTPTransport(srv.URL)
		defer tr.Close()

		req, _ := protocol.NewNotification(protocol.MethodInitialized, nil)
		if err := tr.Notify(context.Background(), req); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if gotMethod != protocol.MethodInitialized {
			t.Errorf("unexpected method %q", gotMethod)
		}
	})
}
