// Package client provides an MCP client for connecting to MCP servers
// over streamable HTTP, WebSocket, or subprocess stdio.
//
// The client is synchronous: each call blocks until the transport
// completes or times out. Connection establishment retries with
// exponential backoff; ordinary calls after a session is established do
// not auto-retry, since idempotency of arbitrary tool calls cannot be
// assumed.
package client
