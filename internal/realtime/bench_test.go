package realtime

import (
	"fmt"
	"testing"
)

func BenchmarkRegistrySubscribeUnsubscribe(b *testing.B) {
	r := newTestRegistry()
	conn := testConn("c1", 1, "alice")

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = r.Subscribe(conn, "posts", "")
		r.Unsubscribe(conn, "posts")
		// Drain acknowledgment frames so the queue never fills.
		for len(conn.Frames()) > 0 {
			<-conn.Frames()
		}
	}
}

func BenchmarkMembersSnapshot(b *testing.B) {
	r := newTestRegistry()
	for i := 0; i < 500; i++ {
		conn := testConn(fmt.Sprintf("c%d", i), int64(i+1), "")
		_ = r.Subscribe(conn, "posts", "")
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if got := r.Members("posts"); len(got) != 500 {
			b.Fatalf("unexpected member count %d", len(got))
		}
	}
}
