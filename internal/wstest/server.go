// Package wstest provides an in-process WebSocket backend for tests.
package wstest

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/lamassuiot/lamassu-simulation-tools/pkg/wire"
)

// Server accepts WebSocket upgrades and hands each connection to the test.
type Server struct {
	srv      *httptest.Server
	upgrader websocket.Upgrader
	conns    chan *Conn
	accepted atomic.Int32

	mu     sync.Mutex
	reject bool
}

// NewServer starts a server; it is closed with the test.
func NewServer(t testing.TB) *Server {
	t.Helper()

	s := &Server{
		conns: make(chan *Conn, 16),
	}
	s.srv = httptest.NewServer(http.HandlerFunc(s.handle))
	t.Cleanup(s.Close)
	return s
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	reject := s.reject
	s.mu.Unlock()
	if reject {
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
		return
	}

	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	s.accepted.Add(1)
	s.conns <- &Conn{ws: ws}
}

// URL returns the ws:// endpoint.
func (s *Server) URL() string {
	return "ws" + strings.TrimPrefix(s.srv.URL, "http")
}

// Reject makes subsequent upgrade requests fail with 503.
func (s *Server) Reject(reject bool) {
	s.mu.Lock()
	s.reject = reject
	s.mu.Unlock()
}

// Accepted returns the number of upgraded connections so far.
func (s *Server) Accepted() int {
	return int(s.accepted.Load())
}

// Accept waits for the next connection.
func (s *Server) Accept(t testing.TB, timeout time.Duration) *Conn {
	t.Helper()
	select {
	case c := <-s.conns:
		t.Cleanup(func() { _ = c.ws.Close() })
		return c
	case <-time.After(timeout):
		t.Fatalf("no connection within %v", timeout)
		return nil
	}
}

// Close shuts the server down.
func (s *Server) Close() {
	s.srv.CloseClientConnections()
	s.srv.Close()
}

// Conn is the server side of one connection.
type Conn struct {
	ws *websocket.Conn
}

// ReadEnvelope reads and decodes the next frame.
func (c *Conn) ReadEnvelope(t testing.TB, timeout time.Duration) wire.Envelope {
	t.Helper()
	_ = c.ws.SetReadDeadline(time.Now().Add(timeout))
	_, data, err := c.ws.ReadMessage()
	if err != nil {
		t.Fatalf("read envelope: %v", err)
	}
	env, err := wire.DecodeEnvelope(data)
	if err != nil {
		t.Fatalf("decode envelope %q: %v", data, err)
	}
	return env
}

// ReadTypes reads n envelopes and returns their types in arrival order.
func (c *Conn) ReadTypes(t testing.TB, n int, timeout time.Duration) []wire.MessageType {
	t.Helper()
	types := make([]wire.MessageType, 0, n)
	for i := 0; i < n; i++ {
		types = append(types, c.ReadEnvelope(t, timeout).Type)
	}
	return types
}

// WriteEnvelope encodes and sends env.
func (c *Conn) WriteEnvelope(t testing.TB, env wire.Envelope) {
	t.Helper()
	data, err := wire.Encode(env)
	if err != nil {
		t.Fatalf("encode envelope: %v", err)
	}
	c.WriteRaw(t, data)
}

// WriteRaw sends data as a text frame.
func (c *Conn) WriteRaw(t testing.TB, data []byte) {
	t.Helper()
	if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
		t.Fatalf("write frame: %v", err)
	}
}

// Push builds an inbound envelope from body and sends it.
func (c *Conn) Push(t testing.TB, typ wire.MessageType, body any) {
	t.Helper()
	env, err := wire.NewEnvelope(typ, body)
	if err != nil {
		t.Fatalf("build %s: %v", typ, err)
	}
	c.WriteEnvelope(t, env)
}

// CloseNormal performs a clean close handshake from the server side.
func (c *Conn) CloseNormal() {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye")
	_ = c.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	_ = c.ws.Close()
}

// Drop closes the TCP connection without a close frame.
func (c *Conn) Drop() {
	_ = c.ws.Close()
}
