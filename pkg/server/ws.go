package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/mitchellh/mapstructure"

	"github.com/slate-agents/slate/pkg/blackboard"
	"github.com/slate-agents/slate/pkg/coordinator"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// The CLI client and browser playground connect from arbitrary origins.
	CheckOrigin: func(*http.Request) bool { return true },
}

// inboundMessage is the client-to-server frame.
type inboundMessage struct {
	Type       string         `json:"type"`
	Query      string         `json:"query,omitempty"`
	HITLConfig map[string]any `json:"hitl_config,omitempty"`
	Response   string         `json:"response,omitempty"`
}

// outboundMessage is the server-to-client frame.
type outboundMessage struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}

// hitlRequest is the data payload of a "hitl_request" frame.
type hitlRequest struct {
	Prompt  string `json:"prompt"`
	Context any    `json:"context,omitempty"`
}

// wsSession owns one connection: it forwards coordinator events as frames
// and blocks coordinator Input calls until a hitl_response frame arrives.
type wsSession struct {
	conn    *websocket.Conn
	writeMu sync.Mutex

	connCtx context.Context

	mu        sync.Mutex
	responses chan string
	runCancel context.CancelFunc
}

var _ coordinator.IOHandler = (*wsSession)(nil)

func newWSSession(connCtx context.Context, conn *websocket.Conn) *wsSession {
	return &wsSession{
		conn:      conn,
		connCtx:   connCtx,
		responses: make(chan string, 1),
	}
}

func (s *wsSession) send(msgType string, data any) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := s.conn.WriteJSON(outboundMessage{Type: msgType, Data: data}); err != nil {
		slog.Warn("websocket write failed", "type", msgType, "error", err)
	}
}

// Output forwards a coordinator event as a typed frame.
func (s *wsSession) Output(kind string, data any) {
	s.send(kind, data)
}

// Input sends a hitl_request frame and waits for the matching hitl_response.
func (s *wsSession) Input(prompt string, data any) (string, error) {
	// Drain a stale response left over from an abandoned prompt.
	select {
	case <-s.responses:
	default:
	}

	s.send("hitl_request", hitlRequest{Prompt: prompt, Context: data})

	select {
	case response := <-s.responses:
		return response, nil
	case <-s.connCtx.Done():
		return "", fmt.Errorf("connection closed while awaiting input")
	}
}

// resolve delivers a hitl_response to a pending Input call, if any.
func (s *wsSession) resolve(response string) {
	select {
	case s.responses <- response:
	default:
		slog.Warn("hitl_response with no pending request")
	}
}

// startRun cancels any in-flight run and returns a context for the new one.
func (s *wsSession) startRun() context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.runCancel != nil {
		s.runCancel()
	}
	runCtx, cancel := context.WithCancel(s.connCtx)
	s.runCancel = cancel
	return runCtx
}

func (s *wsSession) stopRun() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.runCancel != nil {
		s.runCancel()
		s.runCancel = nil
	}
}

// handleWS upgrades the connection and runs the message loop. Each
// connection gets its own coordinator, so session memory accumulates for
// the lifetime of the socket.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	if s.metrics != nil {
		s.metrics.WSConnections.Inc()
		defer s.metrics.WSConnections.Dec()
	}

	connCtx, cancel := context.WithCancel(r.Context())
	defer cancel()

	session := newWSSession(connCtx, conn)
	defer session.stopRun()

	coord := s.factory(session)
	slog.Info("websocket session opened", "session_id", coord.SessionID(), "remote", r.RemoteAddr)

	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		var msg inboundMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				slog.Warn("websocket read failed", "error", err)
			}
			cancel()
			return
		}

		switch msg.Type {
		case "query":
			if msg.Query == "" {
				session.send("error", "empty query")
				continue
			}
			hitl := &blackboard.HITLConfig{}
			if msg.HITLConfig != nil {
				if err := mapstructure.Decode(msg.HITLConfig, hitl); err != nil {
					session.send("error", fmt.Sprintf("invalid hitl_config: %v", err))
					continue
				}
			}
			runCtx := session.startRun()
			wg.Add(1)
			go func(query string) {
				defer wg.Done()
				coord.Run(runCtx, query, hitl)
			}(msg.Query)

		case "hitl_response":
			session.resolve(msg.Response)

		default:
			session.send("error", fmt.Sprintf("unknown message type %q", msg.Type))
		}
	}
}
