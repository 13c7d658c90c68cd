package realtime

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
)

// mustFrame waits for the next frame with the given event name, skipping
// frames of other kinds.
func mustFrame(t *testing.T, c *Conn, event string) Frame {
	t.Helper()

	deadline := time.After(2 * time.Second)
	for {
		select {
		case f, ok := <-c.Frames():
			if !ok {
				t.Fatalf("connection closed while waiting for %q", event)
			}
			if f.Event == event {
				return f
			}
		case <-deadline:
			t.Fatalf("expected frame %q not received", event)
		}
	}
}

// noFrame asserts that no frame with the given event name arrives within a
// short window.
func noFrame(t *testing.T, c *Conn, event string) {
	t.Helper()

	timeout := time.After(150 * time.Millisecond)
	for {
		select {
		case f, ok := <-c.Frames():
			if !ok {
				return
			}
			if f.Event == event {
				t.Fatalf("unexpected frame %q: %s", event, string(f.Data))
			}
		case <-timeout:
			return
		}
	}
}

// staticVerifier authenticates any token of the form it was seeded with.
type staticVerifier struct {
	identities map[string]Identity
}

func (v *staticVerifier) VerifySession(token string) (Identity, error) {
	id, ok := v.identities[token]
	if !ok {
		return Identity{}, ErrAuthFailed
	}
	return id, nil
}

func newTestManager(t *testing.T, cfg ManagerConfig) (*Manager, *Registry) {
	t.Helper()

	registry := NewRegistry(NewGate(nil))
	verifier := &staticVerifier{identities: map[string]Identity{
		"token-1": {UserID: 1, Username: "alice"},
		"token-2": {UserID: 2, Username: "bob"},
		"token-5": {UserID: 5, Username: "eve"},
		"token-9": {UserID: 9, Username: "nina"},
	}}
	return NewManager(registry, verifier, cfg, zerolog.Nop()), registry
}

// testConn builds a bare connection without going through a manager.
func testConn(id string, userID int64, username string) *Conn {
	return newConn(id, userID, username, 16)
}
