package registry

import (
	"errors"
	"strings"
	"testing"
)

type fakeSink struct {
	sent   []Envelope
	failed bool
	closed bool
}

func (f *fakeSink) Send(env Envelope) error {
	if f.failed {
		return errors.New("sink closed")
	}
	f.sent = append(f.sent, env)
	return nil
}

func (f *fakeSink) Close() error {
	f.closed = true
	return nil
}

func TestRegisterInsertsIntoAllStructures(t *testing.T) {
	r := New()
	conn := r.Register("lobby", "alice", &fakeSink{})

	if conn.ID == "" || !strings.HasPrefix(conn.ID, "conn_") {
		t.Fatalf("unexpected connection id %q", conn.ID)
	}
	if conn.Channel != "lobby" || conn.UserID != "alice" {
		t.Fatalf("unexpected identity: %+v", conn)
	}
	if conn.ConnectedAt.IsZero() {
		t.Fatalf("expected connected_at to be set")
	}

	if got := r.InChannel("lobby"); len(got) != 1 || got[0].ID != conn.ID {
		t.Fatalf("channel index lookup mismatch: %v", got)
	}
	if got := r.OfUser("alice"); len(got) != 1 || got[0].ID != conn.ID {
		t.Fatalf("user index lookup mismatch: %v", got)
	}
	if got := r.All(); len(got) != 1 {
		t.Fatalf("expected 1 connection, got %d", len(got))
	}
}

func TestRegisterGeneratesBlankIdentity(t *testing.T) {
	r := New()
	conn := r.Register("  ", "", &fakeSink{})

	if !strings.HasPrefix(conn.Channel, "channel_") {
		t.Fatalf("expected generated channel, got %q", conn.Channel)
	}
	if !strings.HasPrefix(conn.UserID, "user_") {
		t.Fatalf("expected generated user id, got %q", conn.UserID)
	}
	if len(conn.Channel) != len("channel_")+8 {
		t.Fatalf("unexpected generated channel length: %q", conn.Channel)
	}
}

func TestRemovePrunesBothIndexes(t *testing.T) {
	r := New()
	a := r.Register("lobby", "alice", &fakeSink{})
	b := r.Register("lobby", "bob", &fakeSink{})

	r.Remove(a.ID)

	if got := r.InChannel("lobby"); len(got) != 1 || got[0].ID != b.ID {
		t.Fatalf("expected only bob in channel, got %v", got)
	}
	if got := r.OfUser("alice"); len(got) != 0 {
		t.Fatalf("expected alice index gone, got %v", got)
	}

	r.Remove(b.ID)

	if stats := r.Stats("lobby"); stats.SocketCount != 0 || stats.UserCount != 0 {
		t.Fatalf("expected empty channel stats, got %+v", stats)
	}
	if got := r.All(); len(got) != 0 {
		t.Fatalf("expected no connections, got %v", got)
	}
}

func TestRemoveUnknownIsNoop(t *testing.T) {
	r := New()
	r.Register("lobby", "alice", &fakeSink{})

	r.Remove("conn_0_missing")

	if got := r.All(); len(got) != 1 {
		t.Fatalf("expected connection untouched, got %v", got)
	}
}

func TestOfUserInChannelIntersects(t *testing.T) {
	r := New()
	inLobby := r.Register("lobby", "alice", &fakeSink{})
	r.Register("ops", "alice", &fakeSink{})
	r.Register("lobby", "bob", &fakeSink{})

	got := r.OfUserInChannel("lobby", "alice")
	if len(got) != 1 || got[0].ID != inLobby.ID {
		t.Fatalf("expected alice's lobby connection only, got %v", got)
	}

	if got := r.OfUserInChannel("ops", "bob"); len(got) != 0 {
		t.Fatalf("expected empty intersection, got %v", got)
	}
}

func TestStatsCountsDistinctUsers(t *testing.T) {
	r := New()
	r.Register("lobby", "alice", &fakeSink{})
	r.Register("lobby", "alice", &fakeSink{})
	r.Register("lobby", "bob", &fakeSink{})

	stats := r.Stats("lobby")
	if stats.SocketCount != 3 {
		t.Fatalf("expected 3 sockets, got %d", stats.SocketCount)
	}
	if stats.UserCount != 2 {
		t.Fatalf("expected 2 distinct users, got %d", stats.UserCount)
	}
}

func TestAllOrderedByConnectTime(t *testing.T) {
	r := New()
	a := r.Register("lobby", "alice", &fakeSink{})
	b := r.Register("ops", "bob", &fakeSink{})
	c := r.Register("lobby", "carol", &fakeSink{})

	got := r.All()
	if len(got) != 3 {
		t.Fatalf("expected 3 connections, got %d", len(got))
	}
	for i, want := range []*Connection{a, b, c} {
		if got[i].ID != want.ID {
			t.Fatalf("unexpected order at %d: got %s want %s", i, got[i].ID, want.ID)
		}
	}
}
