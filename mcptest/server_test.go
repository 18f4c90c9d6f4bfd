package mcptest_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/supportbase/mcpcollect/mcptest"
	"github.com/supportbase/mcpcollect/protocol"
)

func post(t *testing.T, url, session string, req *protocol.Request) *http.Response {
	t.Helper()
	data, err := protocol.EncodeRequest(req)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	httpReq, _ := http.NewRequest(http.MethodPost, url, bytes.NewReader(data))
	httpReq.Header.Set("Content-Type", protocol.ContentTypeJSON)
	if session != "" {
		httpReq.Header.Set(protocol.SessionHeader, session)
	}
	resp, err := http.DefaultClient.Do(httpReq)
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	return resp
}

func TestServer(t *testing.T) {
	t.Run("answers with event-stream framing", func(t *testing.T) {
		server := mcptest.NewServer()
		srv := httptest.NewServer(server)
		defer srv.Close()

		req, _ := protocol.NewRequest("1", protocol.MethodToolsList, nil)
		resp := post(t, srv.URL, "", req)
		defer resp.Body.Close()

		if ct := resp.Header.Get("Content-Type"); !strings.Contains(ct, "text/event-stream") {
			t.Errorf("unexpected content type: %s", ct)
		}
		if resp.Header.Get(protocol.SessionHeader) == "" {
			t.Error("expected a session token")
		}
	})

	t.Run("reuses a presented session", func(t *testing.T) {
		server := mcptest.NewServer()
		srv := httptest.NewServer(server)
		defer srv.Close()

		req, _ := protocol.NewRequest("1", protocol.MethodInitialize, nil)
		resp := post(t, srv.URL, "", req)
		session := resp.Header.Get(protocol.SessionHeader)
		resp.Body.Close()

		req2, _ := protocol.NewRequest("2", protocol.MethodToolsList, nil)
		resp2 := post(t, srv.URL, session, req2)
		resp2.Body.Close()

		if n := server.Sessions(); n != 1 {
			t.Errorf("expected 1 session, got %d", n)
		}
	})

	t.Run("notifications get 202 and no body", func(t *testing.T) {
		server := mcptest.NewServer()
		srv := httptest.NewServer(server)
		defer srv.Close()

		note, _ := protocol.NewNotification(protocol.MethodInitialized, nil)
		resp := post(t, srv.URL, "", note)
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusAccepted {
			t.Errorf("expected 202, got %d", resp.StatusCode)
		}
	})

	t.Run("overrides observe notifications", func(t *testing.T) {
		server := mcptest.NewServer()
		var seen []string
		server.Handle(protocol.MethodInitialized, func(req *protocol.Request) *protocol.Response {
			seen = append(seen, req.Method)
			return nil
		})
		srv := httptest.NewServer(server)
		defer srv.Close()

		note, _ := protocol.NewNotification(protocol.MethodInitialized, nil)
		resp := post(t, srv.URL, "", note)
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusAccepted {
			t.Errorf("expected 202 for a nil override result, got %d", resp.StatusCode)
		}
		if len(seen) != 1 || seen[0] != protocol.MethodInitialized {
			t.Errorf("override did not run for the notification: %v", seen)
		}
	})

	t.Run("overrides replace built-in behavior", func(t *testing.T) {
		server := mcptest.NewServer()
		server.Handle(protocol.MethodToolsList, func(req *protocol.Request) *protocol.Response {
			return protocol.NewErrorResponse(req.ID, protocol.NewInternalError("down for maintenance"))
		})
		srv := httptest.NewServer(server)
		defer srv.Close()

		req, _ := protocol.NewRequest("1", protocol.MethodToolsList, nil)
		resp := post(t, srv.URL, "", req)
		defer resp.Body.Close()

		var buf bytes.Buffer
		buf.ReadFrom(resp.Body)
		decoded, err := protocol.DecodeResponse(resp.Header.Get("Content-Type"), resp.StatusCode, buf.Bytes())
		if err != nil {
			t.Fatalf("decode: %v", err)
		}
		if decoded.Error == nil || decoded.Error.Message != "down for maintenance" {
			t.Errorf("override not applied: %+v", decoded)
		}
	})

	t.Run("mock generators produce parseable records", func(t *testing.T) {
		issues := mcptest.MockJiraIssues(3)
		if len(issues) != 3 {
			t.Fatalf("expected 3 issues, got %d", len(issues))
		}
		data, _ := json.Marshal(issues)
		var decoded []map[string]any
		if err := json.Unmarshal(data, &decoded); err != nil {
			t.Fatalf("round trip: %v", err)
		}
		if decoded[0]["key"] != "MOCK-1000" {
			t.Errorf("unexpected first key: %v", decoded[0]["key"])
		}

		pages := mcptest.MockConfluencePages(2)
		if len(pages) != 2 {
			t.Fatalf("expected 2 pages, got %d", len(pages))
		}
		if pages[0]["space"] != "SUPPORT" {
			t.Errorf("unexpected space: %v", pages[0]["space"])
		}
	})

	t.Run("requests are recorded in order", func(t *testing.T) {
		server := mcptest.NewServer()
		srv := httptest.NewServer(server)
		defer srv.Close()

		for _, method := range []string{protocol.MethodInitialize, protocol.MethodToolsList} {
			req, _ := protocol.NewRequest("x", method, nil)
			resp := post(t, srv.URL, "", req)
			resp.Body.Close()
		}

		got := server.Requests()
		if len(got) != 2 || got[0] != protocol.MethodInitialize || got[1] != protocol.MethodToolsList {
			t.Errorf("unexpected request log: %v", got)
		}
	})
}
