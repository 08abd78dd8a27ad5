package registry

import "time"

// Envelope is the single message shape pushed to live connections. Kind is
// one of the fixed kinds below, or the caller-supplied event name for
// dispatched application events.
type Envelope struct {
	Kind      string    `json:"kind"`
	Data      any       `json:"data,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

const (
	KindConnected       = "connected"
	KindPong            = "pong"
	KindMessageReceived = "message-received"
)

// Sink is the send-capable endpoint owned by one registry entry. Send
// returns an error once the underlying transport is no longer writable.
type Sink interface {
	Send(Envelope) error
	Close() error
}
