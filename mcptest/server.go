// Package mcptest provides an in-process mock MCP server for testing
// clients and collectors without a real Atlassian gateway.
//
// The server always answers via event-stream framing and mints a session
// token on first contact, echoing it on every response, the same shape
// real streamable-HTTP MCP servers use.
package mcptest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/supportbase/mcpcollect/protocol"
)

// Handler produces a response for one request. Returning nil falls
// through to the built-in behavior.
type Handler func(req *protocol.Request) *protocol.Response

// Server is an http.Handler implementing enough of the MCP protocol to
// exercise a client end to end: initialize, notifications/initialized,
// tools/list, tools/call, resources/list, resources/read and shutdown.
type Server struct {
	mu        sync.Mutex
	overrides map[string]Handler
	sessions  map[string]bool
	requests  []string
}

// NewServer creates a mock server with canned Jira/Confluence tools.
func NewServer() *Server {
	return &Server{
		overrides: make(map[string]Handler),
		sessions:  make(map[string]bool),
	}
}

// Handle overrides the response for a method, notifications included.
// For notifications a nil return keeps the default 202; a non-nil
// response is framed and written like any other. The handler runs with
// the server lock released.
func (s *Server) Handle(method string, h Handler) {
	s.mu.Lock()
	s.overrides[method] = h
	s.mu.Unlock()
}

// Requests returns the methods received so far, in order.
func (s *Server) Requests() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.requests...)
}

// Sessions returns the number of distinct sessions minted.
func (s *Server) Sessions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// ServeHTTP handles one JSON-RPC exchange.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req protocol.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return
	}

	session := r.Header.Get(protocol.SessionHeader)
	s.mu.Lock()
	if session == "" {
		session = strings.ReplaceAll(uuid.NewString(), "-", "")
	}
	s.sessions[session] = true
	s.requests = append(s.requests, req.Method)
	override := s.overrides[req.Method]
	s.mu.Unlock()

	var resp *protocol.Response
	if override != nil {
		resp = override(&req)
	}

	if req.IsNotification() {
		// Notifications get no response body; an override can still
		// observe them or force a framed answer.
		if resp == nil {
			w.Header().Set(protocol.SessionHeader, session)
			w.WriteHeader(http.StatusAccepted)
			return
		}
	} else if resp == nil {
		resp = s.dispatch(&req)
	}

	writeSSE(w, session, resp)
}

func (s *Server) dispatch(req *protocol.Request) *protocol.Response {
	switch req.Method {
	case protocol.MethodInitialize:
		resp, _ := protocol.NewResponse(req.ID, map[string]any{
			"protocolVersion": protocol.Version,
			"capabilities": map[string]any{
				"tools":     map[string]any{"listChanged": false},
				"resources": map[string]any{"subscribe": false, "listChanged": false},
			},
			"serverInfo": map[string]any{
				"name":    "mock-atlassian-mcp",
				"version": "1.0.0-mock",
			},
		})
		return resp

	case protocol.MethodToolsList:
		resp, _ := protocol.NewResponse(req.ID, map[string]any{"tools": cannedTools()})
		return resp

	case protocol.MethodToolsCall:
		return s.callTool(req)

	case protocol.MethodResourcesList:
		resp, _ := protocol.NewResponse(req.ID, map[string]any{"resources": []any{}})
		return resp

	case protocol.MethodResourcesRead:
		resp, _ := protocol.NewResponse(req.ID, map[string]any{
			"contents": []any{map[string]any{"uri": "mock://resource", "text": "mock resource content"}},
		})
		return resp

	case protocol.MethodShutdown:
		resp, _ := protocol.NewResponse(req.ID, map[string]any{})
		return resp

	default:
		return protocol.NewErrorResponse(req.ID,
			protocol.NewMethodNotFound(fmt.Sprintf("Method not found: %s", req.Method)))
	}
}

func (s *Server) callTool(req *protocol.Request) *protocol.Response {
	var params struct {
		Name      string         `json:"name"`
		Arguments map[string]any `json:"arguments"`
	}
	if len(req.Params) > 0 {
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return protocol.NewErrorResponse(req.ID, protocol.NewInvalidParams(err.Error()))
		}
	}

	var payload any
	switch params.Name {
	case "jira_search":
		payload = MockJiraIssues(intArg(params.Arguments, "max_results", 10))
	case "jira_get_issue":
		payload = MockJiraIssue(stringArg(params.Arguments, "issue_key", "MOCK-1000"))
	case "confluence_search":
		payload = MockConfluencePages(intArg(params.Arguments, "limit", 10))
	case "confluence_get_page":
		payload = MockConfluencePage(stringArg(params.Arguments, "page_id", "100001"))
	default:
		return protocol.NewErrorResponse(req.ID,
			protocol.NewMethodNotFound(fmt.Sprintf("Tool not found: %s", params.Name)))
	}

	text, _ := json.Marshal(payload)
	resp, _ := protocol.NewResponse(req.ID, map[string]any{
		"content": []any{map[string]any{"type": "text", "text": string(text)}},
	})
	return resp
}

func writeSSE(w http.ResponseWriter, session string, resp *protocol.Response) {
	data, _ := json.Marshal(resp)
	w.Header().Set("Content-Type", protocol.ContentTypeEventStream)
	w.Header().Set(protocol.SessionHeader, session)
	fmt.Fprintf(w, "event: message\ndata: %s\n\n", data)
}

func cannedTools() []any {
	return []any{
		map[string]any{
			"name":        "jira_search",
			"description": "Search Jira issues using JQL",
			"inputSchema": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"jql":         map[string]any{"type": "string"},
					"max_results": map[string]any{"type": "integer"},
				},
				"required": []string{"jql"},
			},
		},
		map[string]any{
			"name":        "jira_get_issue",
			"description": "Get details of a specific Jira issue",
			"inputSchema": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"issue_key": map[string]any{"type": "string"},
				},
				"required": []string{"issue_key"},
			},
		},
		map[string]any{
			"name":        "confluence_search",
			"description": "Search Confluence pages",
			"inputSchema": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"cql":   map[string]any{"type": "string"},
					"limit": map[string]any{"type": "integer"},
				},
			},
		},
		map[string]any{
			"name":        "confluence_get_page",
			"description": "Get details of a specific Confluence page",
			"inputSchema": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"page_id": map[string]any{"type": "string"},
				},
				"required": []string{"page_id"},
			},
		},
	}
}

// MockJiraIssues generates count issues shaped like the Atlassian
// gateway's jira_search output.
func MockJiraIssues(count int) []map[string]any {
	base := time.Now().AddDate(0, -6, 0)
	issues := make([]map[string]any, 0, count)
	for i := 0; i < count; i++ {
		created := base.AddDate(0, 0, i*5)
		status := "Resolved"
		if i%3 == 0 {
			status = "Done"
		}
		issues = append(issues, map[string]any{
			"key":         fmt.Sprintf("MOCK-%d", 1000+i),
			"summary":     fmt.Sprintf("Mock issue %d: customer support request", i+1),
			"description": fmt.Sprintf("Mock issue body #%d", i+1),
			"status":      status,
			"priority":    "Medium",
			"assignee":    fmt.Sprintf("user-%d", i%5+1),
			"reporter":    "mock-reporter",
			"created":     created.Format(time.RFC3339),
			"updated":     created.AddDate(0, 0, 2).Format(time.RFC3339),
			"labels":      []string{"support", "mock-data"},
		})
	}
	return issues
}

// MockJiraIssue generates one issue for the given key.
func MockJiraIssue(key string) map[string]any {
	return map[string]any{
		"key":         key,
		"summary":     fmt.Sprintf("Mock issue: %s", key),
		"description": "Detailed mock issue description.",
		"status":      "Done",
		"priority":    "High",
		"assignee":    "mock-user",
		"reporter":    "mock-reporter",
		"created":     time.Now().AddDate(0, -1, 0).Format(time.RFC3339),
		"updated":     time.Now().AddDate(0, 0, -5).Format(time.RFC3339),
		"labels":      []string{"support", "urgent", "mock-data"},
	}
}

// MockConfluencePages generates count pages shaped like confluence_search
// output.
func MockConfluencePages(count int) []map[string]any {
	base := time.Now().AddDate(0, -3, 0)
	pages := make([]map[string]any, 0, count)
	for i := 0; i < count; i++ {
		pages = append(pages, map[string]any{
			"id":      fmt.Sprintf("%d", 100001+i),
			"title":   fmt.Sprintf("Mock page %d: troubleshooting guide", i+1),
			"space":   "SUPPORT",
			"content": fmt.Sprintf("Mock page body #%d", i+1),
			"version": i + 1,
			"author":  "mock-author",
			"created": base.AddDate(0, 0, i*3).Format(time.RFC3339),
			"updated": base.AddDate(0, 0, i*3+1).Format(time.RFC3339),
			"labels":  []string{"documentation", "mock-data"},
		})
	}
	return pages
}

// MockConfluencePage generates one page for the given id.
func MockConfluencePage(id string) map[string]any {
	return map[string]any{
		"id":      id,
		"title":   fmt.Sprintf("Mock page: %s", id),
		"space":   "SUPPORT",
		"content": "Detailed mock page content.",
		"version": 3,
		"author":  "mock-author",
		"created": time.Now().AddDate(0, -2, 0).Format(time.RFC3339),
		"updated": time.Now().AddDate(0, 0, -1).Format(time.RFC3339),
		"labels":  []string{"documentation"},
	}
}

func intArg(args map[string]any, key string, def int) int {
	if v, ok := args[key].(float64); ok {
		return int(v)
	}
	return def
}

func stringArg(args map[string]any, key, def string) string {
	if v, ok := args[key].(string); ok && v != "" {
		return v
	}
	return def
}
