// ABOUTME: In-process fake ActionCable server for tests
// ABOUTME: Speaks welcome/ping/confirm/reject and lets tests push frames to subscribers

package cabletest

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"
)

// Command is a client command received by the server.
type Command struct {
	Command    string `json:"command"`
	Identifier string `json:"identifier"`
}

// ConversationID extracts conversation_id from the command identifier.
func (c Command) ConversationID() string {
	var id struct {
		ConversationID string `json:"conversation_id"`
	}
	_ = json.Unmarshal([]byte(c.Identifier), &id)
	return id.ConversationID
}

type conn struct {
	ws         *websocket.Conn
	subscribed map[string]bool
}

// Server is a fake cable endpoint backed by httptest.
type Server struct {
	srv          *httptest.Server
	pingInterval time.Duration
	fallback     http.Handler

	mu       sync.Mutex
	conns    map[*conn]struct{}
	rejected map[string]bool
	silent   bool
	commands []Command
	dials    int
}

// Option configures a Server.
type Option func(*Server)

// WithPingInterval sets how often pings are sent. Zero disables pings.
func WithPingInterval(d time.Duration) Option {
	return func(s *Server) { s.pingInterval = d }
}

// WithHandler serves every path other than /cable with h, so one server can
// fake both the REST API and the cable.
func WithHandler(h http.Handler) Option {
	return func(s *Server) { s.fallback = h }
}

// NewServer starts a server that is closed when the test ends.
func NewServer(t testing.TB, opts ...Option) *Server {
	t.Helper()

	s := &Server{
		pingInterval: 100 * time.Millisecond,
		conns:        make(map[*conn]struct{}),
		rejected:     make(map[string]bool),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.srv = httptest.NewServer(http.HandlerFunc(s.handle))
	t.Cleanup(s.Close)
	return s
}

// HTTPURL is the server's http:// base URL, usable as an API endpoint.
func (s *Server) HTTPURL() string {
	return s.srv.URL
}

// URL is the ws:// URL of the cable endpoint.
func (s *Server) URL() string {
	return "ws" + strings.TrimPrefix(s.srv.URL, "http") + "/cable"
}

// Close drops all connections and stops the server.
func (s *Server) Close() {
	s.DropConnections()
	s.srv.Close()
}

// Reject makes future subscriptions to conversationID fail.
func (s *Server) Reject(conversationID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rejected[conversationID] = true
}

// SetSilent stops pings on every connection, so clients see it as stale.
func (s *Server) SetSilent(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.silent = v
}

// Dials returns the number of accepted handshakes.
func (s *Server) Dials() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dials
}

// Commands returns every command received so far.
func (s *Server) Commands() []Command {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Command(nil), s.commands...)
}

// Subscribed reports whether any connection is subscribed to conversationID.
func (s *Server) Subscribed(conversationID string) bool {
	return s.subscribers(conversationID) > 0
}

func (s *Server) subscribers(conversationID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for c := range s.conns {
		for identifier := range c.subscribed {
			if (Command{Identifier: identifier}).ConversationID() == conversationID {
				n++
			}
		}
	}
	return n
}

// Push sends payload as a data frame to every subscriber of conversationID.
// Returns the number of connections written to.
func (s *Server) Push(conversationID string, payload any) int {
	message, err := json.Marshal(payload)
	if err != nil {
		panic(err)
	}

	s.mu.Lock()
	var targets []*websocket.Conn
	var identifiers []string
	for c := range s.conns {
		for identifier := range c.subscribed {
			if (Command{Identifier: identifier}).ConversationID() == conversationID {
				targets = append(targets, c.ws)
				identifiers = append(identifiers, identifier)
			}
		}
	}
	s.mu.Unlock()

	for i, ws := range targets {
		s.write(ws, map[string]any{
			"identifier": identifiers[i],
			"message":    json.RawMessage(message),
		})
	}
	return len(targets)
}

// SendRaw writes an arbitrary frame to every connection.
func (s *Server) SendRaw(frame any) {
	for _, ws := range s.sockets() {
		s.write(ws, frame)
	}
}

// Disconnect sends an ActionCable disconnect frame to every connection.
func (s *Server) Disconnect(reason string, reconnect bool) {
	s.SendRaw(map[string]any{"type": "disconnect", "reason": reason, "reconnect": reconnect})
}

// DropConnections closes every connection without a disconnect frame.
func (s *Server) DropConnections() {
	for _, ws := range s.sockets() {
		_ = ws.Close(websocket.StatusGoingAway, "dropped")
	}
}

func (s *Server) sockets() []*websocket.Conn {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*websocket.Conn, 0, len(s.conns))
	for c := range s.conns {
		out = append(out, c.ws)
	}
	return out
}

func (s *Server) write(ws *websocket.Conn, frame any) {
	data, err := json.Marshal(frame)
	if err != nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_ = ws.Write(ctx, websocket.MessageText, data)
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/cable" {
		if s.fallback != nil {
			s.fallback.ServeHTTP(w, r)
			return
		}
		http.NotFound(w, r)
		return
	}

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		Subprotocols: []string{"actioncable-v1-json"},
	})
	if err != nil {
		return
	}

	c := &conn{ws: ws, subscribed: make(map[string]bool)}
	s.mu.Lock()
	s.conns[c] = struct{}{}
	s.dials++
	s.mu.Unlock()

	ctx, cancel := context.WithCancel(r.Context())
	defer func() {
		cancel()
		s.mu.Lock()
		delete(s.conns, c)
		s.mu.Unlock()
		_ = ws.CloseNow()
	}()

	s.write(ws, map[string]string{"type": "welcome"})
	if s.pingInterval > 0 {
		go s.pingLoop(ctx, ws)
	}

	for {
		_, data, err := ws.Read(ctx)
		if err != nil {
			return
		}

		var cmd Command
		if err := json.Unmarshal(data, &cmd); err != nil {
			continue
		}
		s.handleCommand(c, cmd)
	}
}

func (s *Server) handleCommand(c *conn, cmd Command) {
	s.mu.Lock()
	s.commands = append(s.commands, cmd)
	rejected := s.rejected[cmd.ConversationID()]

	switch cmd.Command {
	case "subscribe":
		if rejected {
			s.mu.Unlock()
			s.write(c.ws, map[string]string{"type": "reject_subscription", "identifier": cmd.Identifier})
			return
		}
		c.subscribed[cmd.Identifier] = true
		s.mu.Unlock()
		s.write(c.ws, map[string]string{"type": "confirm_subscription", "identifier": cmd.Identifier})

	case "unsubscribe":
		delete(c.subscribed, cmd.Identifier)
		s.mu.Unlock()

	default:
		s.mu.Unlock()
	}
}

func (s *Server) pingLoop(ctx context.Context, ws *websocket.Conn) {
	ticker := time.NewTicker(s.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case t := <-ticker.C:
			s.mu.Lock()
			silent := s.silent
			s.mu.Unlock()
			if silent {
				continue
			}
			s.write(ws, map[string]any{"type": "ping", "message": t.Unix()})
		}
	}
}
