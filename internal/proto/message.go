// Package proto defines the websocket wire protocol. Inbound frames are
// client commands; outbound frames are realtime.Frame envelopes
// ({event, channel, data}) written as-is.
package proto

import "encoding/json"

// Inbound is the envelope for messages coming from the client.
type Inbound struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

const (
	ProtocolVersion = 1

	InboundTypeSubscribe   = "subscribe"
	InboundTypeUnsubscribe = "unsubscribe"
	InboundTypePing        = "ping"
)

// SubscribeData requests a subscription to a channel. Auth carries the
// signed grant obtained from the broadcasting auth endpoint; it is required
// for private and presence channels and ignored for public ones.
type SubscribeData struct {
	Channel string `json:"channel"`
	Auth    string `json:"auth,omitempty"`
}

// UnsubscribeData removes a subscription.
type UnsubscribeData struct {
	Channel string `json:"channel"`
}

// ErrorData describes a protocol-level error pushed to the client.
type ErrorData struct {
	Code    string `json:"code"`
	Msg     string `json:"msg"`
	Channel string `json:"channel,omitempty"`
}
