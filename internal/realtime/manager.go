package realtime

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Disconnect reasons, logged and reported to the transport.
const (
	ReasonClientClose  = "client_close"
	ReasonTransport    = "transport_error"
	ReasonTimeout      = "timeout"
	ReasonSlowConsumer = "slow_consumer"
	ReasonRateLimited  = "rate_limited"
	ReasonEvicted      = "evicted"
	ReasonShutdown     = "shutdown"
)

// Identity is the authenticated principal carried by a connection.
type Identity struct {
	UserID   int64
	Username string
}

// SessionVerifier validates handshake credentials. Implemented by the auth
// service; the core treats it as an external capability check.
type SessionVerifier interface {
	VerifySession(token string) (Identity, error)
}

// ManagerConfig tunes connection lifecycle behavior.
type ManagerConfig struct {
	// HeartbeatInterval is the expected client activity period.
	HeartbeatInterval time.Duration
	// HeartbeatGrace extends the interval before a forced close.
	HeartbeatGrace time.Duration
	// SendQueueSize bounds the per-connection outbound queue.
	SendQueueSize int
	// SlowDropLimit is the number of shed frames tolerated before the
	// connection is force-closed as a slow consumer.
	SlowDropLimit int
}

func (c *ManagerConfig) defaults() {
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = 30 * time.Second
	}
	if c.HeartbeatGrace <= 0 {
		c.HeartbeatGrace = 10 * time.Second
	}
	if c.SendQueueSize <= 0 {
		c.SendQueueSize = 64
	}
	if c.SlowDropLimit <= 0 {
		c.SlowDropLimit = 32
	}
}

// Manager owns the lifecycle of every live connection: handshake, heartbeat
// and teardown. It is the only entity that closes a connection's send queue.
type Manager struct {
	registry *Registry
	verifier SessionVerifier
	cfg      ManagerConfig
	log      zerolog.Logger

	mu    sync.Mutex
	conns map[string]*Conn
}

// NewManager builds a connection manager.
func NewManager(registry *Registry, verifier SessionVerifier, cfg ManagerConfig, logger zerolog.Logger) *Manager {
	cfg.defaults()
	return &Manager{
		registry: registry,
		verifier: verifier,
		cfg:      cfg,
		log:      logger.With().Str("component", "connmgr").Logger(),
		conns:    make(map[string]*Conn),
	}
}

// Accept validates handshake credentials and registers a new connection with
// an empty subscription set. The first frame delivered to the client carries
// the connection id, which clients echo back when requesting channel grants.
func (m *Manager) Accept(token string) (*Conn, error) {
	identity, err := m.verifier.VerifySession(token)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAuthFailed, err)
	}

	conn := newConn(uuid.NewString(), identity.UserID, identity.Username, m.cfg.SendQueueSize)

	m.mu.Lock()
	m.conns[conn.ID] = conn
	total := len(m.conns)
	m.mu.Unlock()

	conn.Deliver(Frame{
		Event: EventConnected,
		Data:  mustRaw(map[string]string{"connection_id": conn.ID}),
	})

	m.log.Info().
		Str("conn_id", conn.ID).
		Int64("user_id", identity.UserID).
		Int("connections", total).
		Msg("connection accepted")
	return conn, nil
}

// Send enqueues a frame for the connection. Writes never block the caller;
// a connection that keeps shedding frames is disconnected instead of
// stalling delivery to everyone else.
func (m *Manager) Send(conn *Conn, f Frame) {
	if conn.Deliver(f) {
		return
	}
	if conn.Dropped() > m.cfg.SlowDropLimit {
		m.log.Warn().
			Str("conn_id", conn.ID).
			Int64("user_id", conn.UserID).
			Msg("disconnecting slow consumer")
		m.Disconnect(conn, ReasonSlowConsumer)
	}
}

// Disconnect tears the connection down: every subscription is removed from
// the registry (emitting presence member_removed where due) and the send
// queue is closed so the transport write loop exits. Safe to call twice.
func (m *Manager) Disconnect(conn *Conn, reason string) {
	if !conn.close() {
		return
	}

	m.registry.RemoveConn(conn)

	m.mu.Lock()
	delete(m.conns, conn.ID)
	total := len(m.conns)
	m.mu.Unlock()

	m.log.Info().
		Str("conn_id", conn.ID).
		Int64("user_id", conn.UserID).
		Str("reason", reason).
		Int("connections", total).
		Msg("connection closed")
}

// Evict force-closes a connection by id. Administrative action.
func (m *Manager) Evict(connID string) bool {
	m.mu.Lock()
	conn := m.conns[connID]
	m.mu.Unlock()
	if conn == nil {
		return false
	}
	m.Disconnect(conn, ReasonEvicted)
	return true
}

// Lookup returns the live connection with the given id, if any.
func (m *Manager) Lookup(connID string) *Conn {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.conns[connID]
}

// Run sweeps for connections with no client activity within the heartbeat
// interval plus grace and disconnects them. Blocks until ctx is done.
func (m *Manager) Run(ctx context.Context) {
	period := m.cfg.HeartbeatInterval / 2
	if period < time.Second {
		period = time.Second
	}
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.closeAll()
			return
		case <-ticker.C:
			m.sweep()
		}
	}
}

func (m *Manager) sweep() {
	deadline := time.Now().Add(-(m.cfg.HeartbeatInterval + m.cfg.HeartbeatGrace))

	m.mu.Lock()
	stale := make([]*Conn, 0)
	for _, conn := range m.conns {
		if conn.idleSince().Before(deadline) {
			stale = append(stale, conn)
		}
	}
	m.mu.Unlock()

	for _, conn := range stale {
		m.Disconnect(conn, ReasonTimeout)
	}
}

func (m *Manager) closeAll() {
	m.mu.Lock()
	conns := make([]*Conn, 0, len(m.conns))
	for _, conn := range m.conns {
		conns = append(conns, conn)
	}
	m.mu.Unlock()

	for _, conn := range conns {
		m.Disconnect(conn, ReasonShutdown)
	}
}
