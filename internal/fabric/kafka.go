package fabric

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
)

// Kafka implements PubSub on a single Kafka topic. The channel name rides as
// the message key, so frames for one channel land on one partition and keep
// their order. Every server instance reads with a unique group id: each
// instance sees every frame, which is what channel fan-out needs.
type Kafka struct {
	writer *kafka.Writer
	reader *kafka.Reader
	log    zerolog.Logger
}

// NewKafka builds a Kafka-backed fabric on the given brokers and topic.
func NewKafka(brokers []string, topic string, logger zerolog.Logger) *Kafka {
	writer := &kafka.Writer{
		Addr:     kafka.TCP(brokers...),
		Topic:    topic,
		Balancer: &kafka.Hash{},
	}
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     brokers,
		Topic:       topic,
		GroupID:     "relaycast-" + uuid.NewString(),
		StartOffset: kafka.LastOffset,
		MinBytes:    1,
		MaxBytes:    10e6,
	})
	return &Kafka{
		writer: writer,
		reader: reader,
		log:    logger.With().Str("component", "fabric.kafka").Logger(),
	}
}

// Publish writes the payload keyed by topic (the channel name).
func (k *Kafka) Publish(ctx context.Context, topic string, payload []byte) error {
	err := k.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(topic),
		Value: payload,
		Time:  time.Now(),
	})
	if err != nil {
		return fmt.Errorf("kafka publish %s: %w", topic, err)
	}
	return nil
}

// Subscribe streams every frame on the broadcast topic.
func (k *Kafka) Subscribe(ctx context.Context) (<-chan Frame, error) {
	out := make(chan Frame, 256)
	go func() {
		defer close(out)
		for {
			msg, err := k.reader.ReadMessage(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				k.log.Warn().Err(err).Msg("kafka read failed, retrying")
				select {
				case <-ctx.Done():
					return
				case <-time.After(time.Second):
				}
				continue
			}
			select {
			case <-ctx.Done():
				return
			case out <- Frame{Topic: string(msg.Key), Payload: msg.Value}:
			}
		}
	}()
	return out, nil
}

// Close releases the writer and reader.
func (k *Kafka) Close() error {
	werr := k.writer.Close()
	rerr := k.reader.Close()
	if werr != nil {
		return werr
	}
	return rerr
}
