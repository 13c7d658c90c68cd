package realtime

import (
	"context"
	"encoding/json"
	"hash/fnv"
	"sync"

	"github.com/rs/zerolog"

	"github.com/avolkov-dev/relaycast-server/internal/fabric"
)

// routerWorkers is the size of the delivery pool. Frames are sharded onto
// workers by channel name so per-channel order survives the parallelism.
const routerWorkers = 4

// Router fans domain events out to subscribed connections. Publishing goes
// through the pub/sub fabric so every server instance, the originator
// included, delivers to its own local subscribers.
type Router struct {
	fabric   fabric.PubSub
	registry *Registry
	manager  *Manager
	log      zerolog.Logger
}

// NewRouter builds a broadcast router.
func NewRouter(pubsub fabric.PubSub, registry *Registry, manager *Manager, logger zerolog.Logger) *Router {
	return &Router{
		fabric:   pubsub,
		registry: registry,
		manager:  manager,
		log:      logger.With().Str("component", "router").Logger(),
	}
}

// Publish serializes the event and hands it to the fabric. originConnID, when
// non-empty, marks the producing connection so it is excluded from delivery
// ("broadcast to others").
//
// Best-effort by contract: the caller's durable write has already succeeded,
// so fabric failures are logged and swallowed rather than surfaced to the
// request that produced the event.
func (r *Router) Publish(ctx context.Context, ev Event, originConnID string) {
	payload, err := ev.Payload()
	if err != nil {
		r.log.Error().Err(err).Str("event", ev.Name()).Msg("serialize event")
		return
	}
	channel := ev.Channel()
	frame, err := json.Marshal(wireFrame{
		Event:   ev.Name(),
		Channel: channel,
		Data:    payload,
		Origin:  originConnID,
	})
	if err != nil {
		r.log.Error().Err(err).Str("event", ev.Name()).Msg("serialize frame")
		return
	}
	if err := r.fabric.Publish(ctx, channel, frame); err != nil {
		r.log.Error().Err(err).
			Str("event", ev.Name()).
			Str("channel", channel).
			Msg("fabric publish failed, event dropped")
	}
}

// Run consumes the fabric subscription stream and delivers each frame to the
// channel's current local subscribers. Blocks until ctx is done.
func (r *Router) Run(ctx context.Context) error {
	frames, err := r.fabric.Subscribe(ctx)
	if err != nil {
		return err
	}

	// Shard onto a small worker pool by channel so one busy channel does
	// not serialize all delivery, while frames for the same channel stay
	// in publish order.
	queues := make([]chan fabric.Frame, routerWorkers)
	var wg sync.WaitGroup
	for i := range queues {
		queues[i] = make(chan fabric.Frame, 64)
		wg.Add(1)
		go func(q <-chan fabric.Frame) {
			defer wg.Done()
			for f := range q {
				r.deliver(f)
			}
		}(queues[i])
	}

	for f := range frames {
		h := fnv.New32a()
		_, _ = h.Write([]byte(f.Topic))
		queues[h.Sum32()%routerWorkers] <- f
	}
	for _, q := range queues {
		close(q)
	}
	wg.Wait()
	return ctx.Err()
}

func (r *Router) deliver(f fabric.Frame) {
	var wf wireFrame
	if err := json.Unmarshal(f.Payload, &wf); err != nil {
		r.log.Warn().Err(err).Str("topic", f.Topic).Msg("discard malformed frame")
		return
	}

	out := Frame{Event: wf.Event, Channel: wf.Channel, Data: wf.Data}
	members := r.registry.Members(wf.Channel)
	delivered := 0
	for _, conn := range members {
		if wf.Origin != "" && conn.ID == wf.Origin {
			continue
		}
		r.manager.Send(conn, out)
		delivered++
	}
	r.log.Debug().
		Str("event", wf.Event).
		Str("channel", wf.Channel).
		Int("delivered", delivered).
		Msg("frame delivered")
}
