package client

import (
	"net/http"
	"sync"

	"github.com/supportbase/mcpcollect/protocol"
)

// Session holds the opaque session token a server mints to give a
// stateless transport a continuous logical connection. The token is never
// fabricated locally: until the server supplies one, requests go out
// without session context, which is expected for the first handshake.
//
// The token is mutated from response handling and read when building the
// next request, so access is guarded for callers sharing a client across
// goroutines.
type Session struct {
	mu sync.Mutex
	id string
}

// Apply attaches the session header to an outgoing request if a token is
// currently held.
func (s *Session) Apply(h http.Header) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.id != "" {
		h.Set(protocol.SessionHeader, s.id)
	}
}

// Update stores the session token from a response, overwriting any
// previous value. Responses without the header leave the token untouched.
func (s *Session) Update(h http.Header) {
	v := h.Get(protocol.SessionHeader)
	if v == "" {
		return
	}
	s.mu.Lock()
	s.id = v
	s.mu.Unlock()
}

// ID returns the current token, or "" if the server has not issued one.
func (s *Session) ID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.id
}

// Reset discards the token. Called on teardown; the next connection
// starts without session context.
func (s *Session) Reset() {
	s.mu.Lock()
	s.id = ""
	s.mu.Unlock()
}
