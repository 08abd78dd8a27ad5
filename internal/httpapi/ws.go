package httpapi

import (
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"pushrelay/internal/registry"
)

const (
	wsWriteTimeout    = 10 * time.Second
	maxWSMessageBytes = 1 << 20
)

// Clients authenticate with the shared token, so upgrades are accepted from
// any origin.
var upgrader = websocket.Upgrader{
	CheckOrigin: func(*http.Request) bool { return true },
}

// wsSink adapts a gorilla connection to the registry's Sink. Writes are
// serialized: gorilla allows at most one concurrent writer per connection.
type wsSink struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (s *wsSink) Send(env registry.Envelope) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_ = s.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	return s.conn.WriteJSON(env)
}

func (s *wsSink) Close() error {
	return s.conn.Close()
}

type clientMessage struct {
	Type  string `json:"type"`
	Event string `json:"event,omitempty"`
	Data  any    `json:"data,omitempty"`
}

func (s server) handleWS(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		token = bearerToken(r)
	}
	if !tokenEqual(token, s.authToken) {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid token"})
		return
	}

	// Query parameters arrive as lists; the first value wins and the core
	// only ever sees a single trimmed string.
	channel := strings.TrimSpace(r.URL.Query().Get("channel"))
	userID := strings.TrimSpace(r.URL.Query().Get("userId"))

	wsConn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Printf("ws upgrade failed: %v", err)
		return
	}
	wsConn.SetReadLimit(maxWSMessageBytes)

	conn := s.registry.Register(channel, userID, &wsSink{conn: wsConn})
	s.logger.Printf("ws connected conn=%s channel=%s user=%s", conn.ID, conn.Channel, conn.UserID)

	welcome := registry.Envelope{
		Kind: registry.KindConnected,
		Data: map[string]any{
			"connectionId": conn.ID,
			"channel":      conn.Channel,
			"userId":       conn.UserID,
			"connectedAt":  conn.ConnectedAt,
		},
		Timestamp: time.Now().UTC(),
	}
	if err := conn.Send(welcome); err != nil {
		s.registry.Remove(conn.ID)
		_ = wsConn.Close()
		return
	}

	defer func() {
		s.registry.Remove(conn.ID)
		_ = wsConn.Close()
		s.logger.Printf("ws disconnected conn=%s", conn.ID)
	}()

	for {
		var msg clientMessage
		if err := wsConn.ReadJSON(&msg); err != nil {
			return
		}

		switch msg.Type {
		case "ping":
			_ = conn.Send(registry.Envelope{
				Kind:      registry.KindPong,
				Timestamp: time.Now().UTC(),
			})
		case "message":
			now := time.Now().UTC()
			_ = conn.Send(registry.Envelope{
				Kind: registry.KindMessageReceived,
				Data: map[string]any{
					"originalMessage": map[string]any{
						"event":     msg.Event,
						"data":      msg.Data,
						"timestamp": now,
					},
					"receivedAt": now,
				},
				Timestamp: now,
			})
		default:
			// Unknown client message types are ignored.
		}
	}
}
