package fabric

import (
	"context"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// topicPrefix namespaces broadcast traffic on a shared Redis instance.
const topicPrefix = "relaycast:"

// Redis implements PubSub on Redis pub/sub. Redis preserves publish order
// per channel, which carries the per-topic ordering guarantee.
type Redis struct {
	client *redis.Client
	log    zerolog.Logger
}

// NewRedis connects to the Redis broker at addr.
func NewRedis(ctx context.Context, addr string, logger zerolog.Logger) (*Redis, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("ping redis %s: %w", addr, err)
	}
	return &Redis{
		client: client,
		log:    logger.With().Str("component", "fabric.redis").Logger(),
	}, nil
}

// Publish sends the payload on the namespaced topic.
func (r *Redis) Publish(ctx context.Context, topic string, payload []byte) error {
	if err := r.client.Publish(ctx, topicPrefix+topic, payload).Err(); err != nil {
		return fmt.Errorf("redis publish %s: %w", topic, err)
	}
	return nil
}

// Subscribe pattern-subscribes to the whole broadcast namespace and streams
// frames until ctx is done.
func (r *Redis) Subscribe(ctx context.Context) (<-chan Frame, error) {
	ps := r.client.PSubscribe(ctx, topicPrefix+"*")
	// Force the subscription to be established before returning.
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("redis psubscribe: %w", err)
	}

	out := make(chan Frame, 256)
	go func() {
		defer close(out)
		defer func() { _ = ps.Close() }()

		in := ps.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-in:
				if !ok {
					return
				}
				out <- Frame{
					Topic:   strings.TrimPrefix(msg.Channel, topicPrefix),
					Payload: []byte(msg.Payload),
				}
			}
		}
	}()
	return out, nil
}

// Close releases the Redis client.
func (r *Redis) Close() error {
	return r.client.Close()
}
