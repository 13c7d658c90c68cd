package realtime

import (
	"encoding/json"
	"fmt"

	"github.com/avolkov-dev/relaycast-server/internal/store"
)

// Event names as they appear on the wire. Part of the client contract.
const (
	EventPostCreated  = "post.created"
	EventMessageSent  = "message.sent"
	EventMemberAdded  = "member_added"
	EventMemberLeft   = "member_removed"
	EventSubscribed   = "subscription_succeeded"
	EventConnected    = "connection_established"
	EventPong         = "pong"
	EventError        = "error"
)

// EventKind tags a domain event variant.
type EventKind int

const (
	// KindPostCreated announces a new post on the public feed.
	KindPostCreated EventKind = iota
	// KindMessageSent announces a chat message to its receiver.
	KindMessageSent
)

// Event is a domain event produced by a write path and handed to the Router.
// It is transient: only the underlying post/message record is persisted.
type Event struct {
	Kind    EventKind
	Post    *store.Post
	Message *store.Message
}

// PostCreated builds the event for a freshly stored post.
func PostCreated(p *store.Post) Event {
	return Event{Kind: KindPostCreated, Post: p}
}

// MessageSent builds the event for a freshly stored chat message.
func MessageSent(m *store.Message) Event {
	return Event{Kind: KindMessageSent, Message: m}
}

// Name returns the wire event name for the variant.
func (e Event) Name() string {
	switch e.Kind {
	case KindPostCreated:
		return EventPostCreated
	case KindMessageSent:
		return EventMessageSent
	}
	return ""
}

// Channel resolves the target channel statically per variant.
func (e Event) Channel() string {
	switch e.Kind {
	case KindPostCreated:
		return PostsChannel
	case KindMessageSent:
		return ChatChannel(e.Message.ReceiverID)
	}
	return ""
}

// Payload serializes the event-specific data.
func (e Event) Payload() (json.RawMessage, error) {
	var v any
	switch e.Kind {
	case KindPostCreated:
		v = e.Post
	case KindMessageSent:
		v = e.Message
	default:
		return nil, fmt.Errorf("unknown event kind %d", e.Kind)
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal event payload: %w", err)
	}
	return data, nil
}

// Frame is the server-to-client event envelope.
type Frame struct {
	Event   string          `json:"event"`
	Channel string          `json:"channel,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// wireFrame is the envelope published on the pub/sub fabric. Origin carries
// the producing connection id so receivers can honor exclude-self delivery.
type wireFrame struct {
	Event   string          `json:"event"`
	Channel string          `json:"channel"`
	Data    json.RawMessage `json:"data,omitempty"`
	Origin  string          `json:"origin,omitempty"`
}

func mustRaw(v any) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		// All callers marshal plain structs; this cannot fail at runtime.
		panic(err)
	}
	return data
}
