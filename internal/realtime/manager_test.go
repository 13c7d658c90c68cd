package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"
)

func TestAcceptRejectsBadCredentials(t *testing.T) {
	m, _ := newTestManager(t, ManagerConfig{})

	if _, err := m.Accept("bogus"); !errors.Is(err, ErrAuthFailed) {
		t.Fatalf("expected ErrAuthFailed, got %v", err)
	}
}

func TestAcceptDeliversConnectionEstablished(t *testing.T) {
	m, _ := newTestManager(t, ManagerConfig{})

	conn, err := m.Accept("token-1")
	if err != nil {
		t.Fatalf("accept: %v", err)
	}
	if conn.UserID != 1 || conn.Username != "alice" {
		t.Fatalf("unexpected identity: %+v", conn)
	}

	f := mustFrame(t, conn, EventConnected)
	var data map[string]string
	if err := json.Unmarshal(f.Data, &data); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if data["connection_id"] != conn.ID {
		t.Fatalf("connection_established carries %q, want %q", data["connection_id"], conn.ID)
	}
}

func TestDisconnectIsIdempotent(t *testing.T) {
	m, r := newTestManager(t, ManagerConfig{})

	conn, err := m.Accept("token-1")
	if err != nil {
		t.Fatalf("accept: %v", err)
	}
	if err := r.Subscribe(conn, "posts", ""); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	m.Disconnect(conn, ReasonClientClose)
	// Second call must produce the same end state without panicking on the
	// already closed send queue.
	m.Disconnect(conn, ReasonClientClose)

	if got := r.Members("posts"); got != nil {
		t.Fatalf("dangling subscription after disconnect: %d members", len(got))
	}
	if m.Lookup(conn.ID) != nil {
		t.Fatalf("connection still registered after disconnect")
	}
	if conn.Deliver(Frame{Event: "x"}) {
		t.Fatalf("delivery to a closed connection must fail")
	}
}

func TestHeartbeatTimeoutDisconnects(t *testing.T) {
	m, _ := newTestManager(t, ManagerConfig{
		HeartbeatInterval: 20 * time.Millisecond,
		HeartbeatGrace:    10 * time.Millisecond,
	})

	conn, err := m.Accept("token-1")
	if err != nil {
		t.Fatalf("accept: %v", err)
	}

	m.sweep()
	if m.Lookup(conn.ID) == nil {
		t.Fatalf("fresh connection must survive a sweep")
	}

	time.Sleep(50 * time.Millisecond)
	m.sweep()
	if m.Lookup(conn.ID) != nil {
		t.Fatalf("idle connection must be disconnected")
	}
}

func TestTouchDefersHeartbeatTimeout(t *testing.T) {
	m, _ := newTestManager(t, ManagerConfig{
		HeartbeatInterval: 30 * time.Millisecond,
		HeartbeatGrace:    10 * time.Millisecond,
	})

	conn, err := m.Accept("token-1")
	if err != nil {
		t.Fatalf("accept: %v", err)
	}

	time.Sleep(30 * time.Millisecond)
	conn.Touch()
	m.sweep()
	if m.Lookup(conn.ID) == nil {
		t.Fatalf("active connection must not time out")
	}
}

func TestSlowConsumerIsDisconnected(t *testing.T) {
	m, _ := newTestManager(t, ManagerConfig{
		SendQueueSize: 2,
		SlowDropLimit: 3,
	})

	conn, err := m.Accept("token-1")
	if err != nil {
		t.Fatalf("accept: %v", err)
	}

	// Nobody drains the queue: after enough shed frames the manager gives
	// up on the connection instead of stalling everyone else.
	for i := 0; i < 20; i++ {
		m.Send(conn, Frame{Event: "e"})
	}
	if m.Lookup(conn.ID) != nil {
		t.Fatalf("slow consumer was not evicted")
	}
}

func TestDeliverDropsOldestOnOverflow(t *testing.T) {
	conn := newConn("c1", 1, "alice", 2)

	conn.Deliver(Frame{Event: "a"})
	conn.Deliver(Frame{Event: "b"})
	if ok := conn.Deliver(Frame{Event: "c"}); ok {
		t.Fatalf("overflow delivery must report a drop")
	}

	// Oldest frame was shed to make room for the newest.
	first := <-conn.Frames()
	second := <-conn.Frames()
	if first.Event != "b" || second.Event != "c" {
		t.Fatalf("unexpected queue order: %s, %s", first.Event, second.Event)
	}
}

func TestEvict(t *testing.T) {
	m, _ := newTestManager(t, ManagerConfig{})

	conn, err := m.Accept("token-1")
	if err != nil {
		t.Fatalf("accept: %v", err)
	}

	if !m.Evict(conn.ID) {
		t.Fatalf("evict reported unknown connection")
	}
	if m.Evict(conn.ID) {
		t.Fatalf("second evict must report false")
	}
}

func TestRunClosesConnectionsOnShutdown(t *testing.T) {
	m, _ := newTestManager(t, ManagerConfig{})

	conn, err := m.Accept("token-1")
	if err != nil {
		t.Fatalf("accept: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		m.Run(ctx)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("manager did not stop")
	}
	if m.Lookup(conn.ID) != nil {
		t.Fatalf("connection survived shutdown")
	}
}
