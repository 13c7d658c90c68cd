package realtime

import (
	"sync"
	"time"
)

// Conn is a live client connection as seen by the core layer. The transport
// owns the socket; the core only ever enqueues frames onto the send queue.
type Conn struct {
	ID       string
	UserID   int64
	Username string

	mu       sync.Mutex
	sendq    chan Frame
	closed   bool
	lastSeen time.Time
	dropped  int
}

func newConn(id string, userID int64, username string, queueSize int) *Conn {
	if queueSize <= 0 {
		queueSize = 64
	}
	return &Conn{
		ID:       id,
		UserID:   userID,
		Username: username,
		sendq:    make(chan Frame, queueSize),
		lastSeen: time.Now(),
	}
}

// Frames returns the outbound queue the transport write loop drains.
// The channel is closed when the connection is disconnected.
func (c *Conn) Frames() <-chan Frame {
	return c.sendq
}

// Touch records client activity for the heartbeat sweeper.
func (c *Conn) Touch() {
	c.mu.Lock()
	c.lastSeen = time.Now()
	c.mu.Unlock()
}

// Deliver enqueues a frame without blocking. When the queue is full the
// oldest frame is dropped to make room. Returns false once the connection
// is closed or when a frame had to be dropped.
func (c *Conn) Deliver(f Frame) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.sendq <- f:
		return true
	default:
	}
	// Queue full: shed the oldest frame. The transport write loop is the
	// only reader, so after one receive there is room again.
	select {
	case <-c.sendq:
	default:
	}
	select {
	case c.sendq <- f:
	default:
	}
	c.dropped++
	return false
}

// Dropped reports how many times delivery had to shed frames.
func (c *Conn) Dropped() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dropped
}

func (c *Conn) idleSince() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastSeen
}

// close marks the connection closed and closes the send queue.
// Returns false if it was already closed.
func (c *Conn) close() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	c.closed = true
	close(c.sendq)
	return true
}
