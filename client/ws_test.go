package client_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/websocket"

	"github.com/supportbase/mcpcollect/client"
	"github.com/supportbase/mcpcollect/protocol"
)

// wsEchoServer answers every request frame with a canned result and
// swallows notifications.
func wsEchoServer(t *testing.T, result string) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			var req protocol.Request
			if err := conn.ReadJSON(&req); err != nil {
				return
			}
			if req.IsNotification() {
				continue
			}
			resp := protocol.Response{
				JSONRPC: "2.0",
				ID:      req.ID,
				Result:  []byte(result),
			}
			if err := conn.WriteJSON(&resp); err != nil {
				return
			}
		}
	}))
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestWSTransport(t *testing.T) {
	t.Run("correlates responses by id", func(t *testing.T) {
		srv := wsEchoServer(t, `{"ok":true}`)
		defer srv.Close()

		tr, err := client.DialWS(context.Background(), wsURL(srv))
		if err != nil {
			t.Fatalf("dial: %v", err)
		}
		defer tr.Close()

		req, _ := protocol.NewRequest("req-1", protocol.MethodToolsList, nil)
		resp, err := tr.Send(context.Background(), req)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if resp.ID != "req-1" {
			t.Errorf("expected matching ID, got %q", resp.ID)
		}
		if string(resp.Result) != `{"ok":true}` {
			t.Errorf("unexpected result: %s", resp.Result)
		}
	})

	t.Run("notifications expect no response", func(t *testing.T) {
		srv := wsEchoServer(t, `{}`)
		defer srv.Close()

		tr, err := client.DialWS(context.Background(), wsURL(srv))
		if err != nil {
			t.Fatalf("dial: %v", err)
		}
		defer tr.Close()

		note, _ := protocol.NewNotification(protocol.MethodInitialized, nil)
		if err := tr.Notify(context.Background(), note); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		// The connection must still be usable afterwards.
		req, _ := protocol.NewRequest("req-2", protocol.MethodToolsList, nil)
		if _, err := tr.Send(context.Background(), req); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	})

	t.Run("send fails once the connection drops", func(t *testing.T) {
		// CloseClientConnections does not reach hijacked (upgraded)
		// connections, so the server hands out the websocket conn and
		// the test closes it directly to simulate the drop.
		upgrader := websocket.Upgrader{}
		connCh := make(chan *websocket.Conn, 1)
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			conn, err := upgrader.Upgrade(w, r, nil)
			if err != nil {
				return
			}
			connCh <- conn
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}))

		tr, err := client.DialWS(context.Background(), wsURL(srv))
		if err != nil {
			t.Fatalf("dial: %v", err)
		}
		defer tr.Close()

		(<-connCh).Close()
		srv.Close()

		req, _ := protocol.NewRequest("req-3", protocol.MethodToolsList, nil)
		if _, err := tr.Send(context.Background(), req); err == nil {
			t.Fatal("expected error after connection loss")
		}
	})

	t.Run("close is repeatable", func(t *testing.T) {
		srv := wsEchoServer(t, `{}`)
		defer srv.Close()

		tr, err := client.DialWS(context.Background(), wsURL(srv))
		if err != nil {
			t.Fatalf("dial: %v", err)
		}
		if err := tr.Close(); err != nil {
			t.Fatalf("close: %v", err)
		}
		_ = tr.Close()
	})
}
