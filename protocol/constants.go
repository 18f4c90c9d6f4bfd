package protocol

// Version is the MCP protocol version declared during the handshake.
const Version = "2024-11-05"

// MCP method names.
const (
	MethodInitialize    = "initialize"
	MethodInitialized   = "notifications/initialized"
	MethodToolsList     = "tools/list"
	MethodToolsCall     = "tools/call"
	MethodResourcesList = "resources/list"
	MethodResourcesRead = "resources/read"
	MethodShutdown      = "shutdown"
	MethodPing          = "ping"
)

// SessionHeader is the HTTP header carrying the opaque session token.
// The server mints it on first contact; the client replays it on every
// subsequent request over the same logical connection.
const SessionHeader = "mcp-session-id"

// Content types used on the wire.
const (
	ContentTypeJSON        = "application/json"
	ContentTypeEventStream = "text/event-stream"

	// AcceptTypes is sent on every request: servers answer with either a
	// single JSON document or an event-stream framed payload.
	AcceptTypes = "application/json, text/event-stream"
)
