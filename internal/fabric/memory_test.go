package fabric

import (
	"context"
	"fmt"
	"testing"
	"time"
)

func collect(t *testing.T, ch <-chan Frame, n int) []Frame {
	t.Helper()

	frames := make([]Frame, 0, n)
	deadline := time.After(2 * time.Second)
	for len(frames) < n {
		select {
		case f, ok := <-ch:
			if !ok {
				t.Fatalf("stream closed after %d of %d frames", len(frames), n)
			}
			frames = append(frames, f)
		case <-deadline:
			t.Fatalf("timed out after %d of %d frames", len(frames), n)
		}
	}
	return frames
}

func TestMemoryPublishReachesAllSubscribers(t *testing.T) {
	m := NewMemory()
	defer m.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := m.Subscribe(ctx)
	if err != nil {
		t.Fatalf("subscribe a: %v", err)
	}
	b, err := m.Subscribe(ctx)
	if err != nil {
		t.Fatalf("subscribe b: %v", err)
	}

	if err := m.Publish(ctx, "posts", []byte("payload")); err != nil {
		t.Fatalf("publish: %v", err)
	}

	for _, ch := range []<-chan Frame{a, b} {
		f := collect(t, ch, 1)[0]
		if f.Topic != "posts" || string(f.Payload) != "payload" {
			t.Fatalf("unexpected frame: %+v", f)
		}
	}
}

func TestMemoryPreservesPublishOrder(t *testing.T) {
	m := NewMemory()
	defer m.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sub, err := m.Subscribe(ctx)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	const n = 100
	for i := 0; i < n; i++ {
		if err := m.Publish(ctx, "posts", []byte(fmt.Sprintf("%d", i))); err != nil {
			t.Fatalf("publish %d: %v", i, err)
		}
	}

	frames := collect(t, sub, n)
	for i, f := range frames {
		if string(f.Payload) != fmt.Sprintf("%d", i) {
			t.Fatalf("frame %d out of order: %s", i, f.Payload)
		}
	}
}

func TestMemorySubscribeStopsOnContextCancel(t *testing.T) {
	m := NewMemory()
	defer m.Close()

	ctx, cancel := context.WithCancel(context.Background())
	sub, err := m.Subscribe(ctx)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	cancel()

	deadline := time.After(2 * time.Second)
	for {
		select {
		case _, ok := <-sub:
			if !ok {
				return
			}
		case <-deadline:
			t.Fatalf("stream not closed after cancel")
		}
	}
}

func TestMemoryCloseClosesStreams(t *testing.T) {
	m := NewMemory()

	ctx := context.Background()
	sub, err := m.Subscribe(ctx)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	if err := m.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if _, ok := <-sub; ok {
		t.Fatalf("expected closed stream")
	}

	// Publishing after close is a no-op, not a panic.
	if err := m.Publish(ctx, "posts", []byte("x")); err != nil {
		t.Fatalf("publish after close: %v", err)
	}
}
