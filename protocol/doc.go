// Package protocol implements the JSON-RPC 2.0 message layer of the MCP
// wire protocol: request/response envelopes, error objects, method and
// header constants, and the dual-framing codec that decodes both plain
// JSON and event-stream responses.
package protocol
