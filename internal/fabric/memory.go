package fabric

import (
	"context"
	"sync"
)

// Memory is an in-process PubSub for single-instance deployments and tests.
// Frames are fanned out to every subscriber in publish order.
type Memory struct {
	mu     sync.Mutex
	subs   map[chan Frame]struct{}
	closed bool
}

// NewMemory builds an in-process fabric.
func NewMemory() *Memory {
	return &Memory{subs: make(map[chan Frame]struct{})}
}

// Publish delivers the frame to all current subscribers. Per-subscriber
// buffers are generous; a full buffer drops the frame for that subscriber,
// matching the fabric's best-effort contract.
func (m *Memory) Publish(_ context.Context, topic string, payload []byte) error {
	f := Frame{Topic: topic, Payload: payload}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	for ch := range m.subs {
		select {
		case ch <- f:
		default:
		}
	}
	return nil
}

// Subscribe registers a new subscriber stream.
func (m *Memory) Subscribe(ctx context.Context) (<-chan Frame, error) {
	ch := make(chan Frame, 256)

	m.mu.Lock()
	m.subs[ch] = struct{}{}
	m.mu.Unlock()

	go func() {
		<-ctx.Done()
		m.mu.Lock()
		if _, ok := m.subs[ch]; ok {
			delete(m.subs, ch)
			close(ch)
		}
		m.mu.Unlock()
	}()

	return ch, nil
}

// Close shuts down all subscriber streams.
func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	for ch := range m.subs {
		delete(m.subs, ch)
		close(ch)
	}
	return nil
}
