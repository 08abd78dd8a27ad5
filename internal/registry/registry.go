package registry

import (
	"sort"
	"strings"
	"sync"
	"time"

	"pushrelay/internal/ids"
)

// Connection is one live bidirectional link. Fields are set at registration
// and never mutated afterwards, so snapshots may share pointers.
type Connection struct {
	ID          string
	Channel     string
	UserID      string
	ConnectedAt time.Time

	seq  uint64
	sink Sink
}

// Send pushes an envelope through the connection's transport.
func (c *Connection) Send(env Envelope) error {
	return c.sink.Send(env)
}

// Close closes the connection's transport.
func (c *Connection) Close() error {
	return c.sink.Close()
}

// ChannelStats summarizes one channel's live membership.
type ChannelStats struct {
	SocketCount int
	UserCount   int
}

// Registry owns the authoritative set of live connections and two derived
// indexes (by channel, by user). All three structures are mutated under one
// mutex so a reader never observes a connection present in the primary table
// but missing from an index, or the reverse.
type Registry struct {
	mu        sync.Mutex
	nextSeq   uint64
	conns     map[string]*Connection
	byChannel map[string]map[string]struct{}
	byUser    map[string]map[string]struct{}
}

func New() *Registry {
	return &Registry{
		conns:     make(map[string]*Connection),
		byChannel: make(map[string]map[string]struct{}),
		byUser:    make(map[string]map[string]struct{}),
	}
}

// Register inserts a new connection into the primary table and both indexes.
// Blank channel or user ids are replaced with generated ones. Register
// always succeeds.
func (r *Registry) Register(channel, userID string, sink Sink) *Connection {
	channel = strings.TrimSpace(channel)
	if channel == "" {
		channel = ids.Generated("channel")
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		userID = ids.Generated("user")
	}

	conn := &Connection{
		ID:          ids.New("conn"),
		Channel:     channel,
		UserID:      userID,
		ConnectedAt: time.Now().UTC(),
		sink:        sink,
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextSeq++
	conn.seq = r.nextSeq
	r.conns[conn.ID] = conn
	members := r.byChannel[channel]
	if members == nil {
		members = make(map[string]struct{})
		r.byChannel[channel] = members
	}
	members[conn.ID] = struct{}{}

	owned := r.byUser[userID]
	if owned == nil {
		owned = make(map[string]struct{})
		r.byUser[userID] = owned
	}
	owned[conn.ID] = struct{}{}

	return conn
}

// Remove deletes a connection from the primary table and prunes it from both
// indexes, dropping an index key once its set is empty. Removing an unknown
// id is a no-op.
func (r *Registry) Remove(connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	conn, ok := r.conns[connID]
	if !ok {
		return
	}
	delete(r.conns, connID)

	if members, ok := r.byChannel[conn.Channel]; ok {
		delete(members, connID)
		if len(members) == 0 {
			delete(r.byChannel, conn.Channel)
		}
	}
	if owned, ok := r.byUser[conn.UserID]; ok {
		delete(owned, connID)
		if len(owned) == 0 {
			delete(r.byUser, conn.UserID)
		}
	}
}

// InChannel returns a snapshot of the connections currently in a channel.
func (r *Registry) InChannel(channel string) []*Connection {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.resolveLocked(r.byChannel[channel])
}

// OfUser returns a snapshot of one user's connections across all channels.
func (r *Registry) OfUser(userID string) []*Connection {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.resolveLocked(r.byUser[userID])
}

// OfUserInChannel returns the intersection of the channel and user indexes.
func (r *Registry) OfUserInChannel(channel, userID string) []*Connection {
	r.mu.Lock()
	defer r.mu.Unlock()

	members := r.byChannel[channel]
	owned := r.byUser[userID]
	if len(members) == 0 || len(owned) == 0 {
		return nil
	}

	out := make([]*Connection, 0, len(owned))
	for id := range owned {
		if _, ok := members[id]; ok {
			out = append(out, r.conns[id])
		}
	}
	sortByConnected(out)
	return out
}

// Stats reports socket and distinct-user counts for a channel.
func (r *Registry) Stats(channel string) ChannelStats {
	r.mu.Lock()
	defer r.mu.Unlock()

	members := r.byChannel[channel]
	users := make(map[string]struct{}, len(members))
	for id := range members {
		users[r.conns[id].UserID] = struct{}{}
	}
	return ChannelStats{SocketCount: len(members), UserCount: len(users)}
}

// All returns a snapshot of every live connection in registration order.
func (r *Registry) All() []*Connection {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]*Connection, 0, len(r.conns))
	for _, conn := range r.conns {
		out = append(out, conn)
	}
	sortByConnected(out)
	return out
}

func (r *Registry) resolveLocked(set map[string]struct{}) []*Connection {
	if len(set) == 0 {
		return nil
	}
	out := make([]*Connection, 0, len(set))
	for id := range set {
		out = append(out, r.conns[id])
	}
	sortByConnected(out)
	return out
}

func sortByConnected(conns []*Connection) {
	sort.Slice(conns, func(i, j int) bool {
		return conns[i].seq < conns[j].seq
	})
}
