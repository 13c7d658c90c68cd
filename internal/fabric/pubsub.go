// Package fabric abstracts the cross-process pub/sub transport that lets
// multiple broadcast-server instances share channel subscriptions. The
// broker is modeled as a narrow capability (publish / subscribe-by-topic) so
// Redis, Kafka or an in-process implementation all satisfy it.
package fabric

import "context"

// Frame is one payload received from the fabric, tagged with its topic
// (the channel name it was published under).
type Frame struct {
	Topic   string
	Payload []byte
}

// PubSub is the broadcast fabric contract. Publish order per topic is
// preserved end-to-end by every implementation; no ordering is guaranteed
// across topics.
type PubSub interface {
	// Publish sends the payload on the topic. Best-effort: callers treat a
	// failure as lost delivery, never as a failed write.
	Publish(ctx context.Context, topic string, payload []byte) error

	// Subscribe returns a stream of every frame published on the broadcast
	// namespace, across all topics. The channel closes when ctx is done or
	// the fabric shuts down.
	Subscribe(ctx context.Context) (<-chan Frame, error)

	// Close releases broker resources.
	Close() error
}
