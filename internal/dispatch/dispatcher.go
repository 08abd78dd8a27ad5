package dispatch

import (
	"log"
	"strings"
	"time"

	"pushrelay/internal/registry"
)

// Engine resolves a target set of live connections from channel and user
// criteria and pushes an event envelope to each.
type Engine struct {
	logger   *log.Logger
	registry *registry.Registry
}

func New(logger *log.Logger, reg *registry.Registry) *Engine {
	return &Engine{logger: logger, registry: reg}
}

// Dispatch pushes {event, data} to every connection matched by the targeting
// criteria and returns the number of successful pushes. Targeting precedence:
// channel+user intersection, then channel only, then user only. The target
// set is a point-in-time snapshot; connections registering afterwards are
// not targets of this call.
//
// A connection whose transport rejects the push is treated as disconnected:
// it is removed from the registry and excluded from the returned count.
// Dispatch never fails; an empty target set simply yields zero.
func (e *Engine) Dispatch(channel, userID, event string, data any) int {
	channel = strings.TrimSpace(channel)
	userID = strings.TrimSpace(userID)

	var targets []*registry.Connection
	switch {
	case channel != "" && userID != "":
		targets = e.registry.OfUserInChannel(channel, userID)
	case channel != "":
		targets = e.registry.InChannel(channel)
	case userID != "":
		targets = e.registry.OfUser(userID)
	}

	env := registry.Envelope{Kind: event, Data: data, Timestamp: time.Now().UTC()}
	delivered := 0
	for _, conn := range targets {
		if err := conn.Send(env); err != nil {
			e.logger.Printf("push failed, dropping connection conn=%s channel=%s user=%s err=%v",
				conn.ID, conn.Channel, conn.UserID, err)
			e.registry.Remove(conn.ID)
			_ = conn.Close()
			continue
		}
		delivered++
	}
	return delivered
}
