package realtime

import "errors"

// Error codes surfaced to clients over the websocket.
const (
	ErrCodeAuthFailed      = "auth_failed"
	ErrCodeSubscribeDenied = "subscribe_denied"
	ErrCodeBadRequest      = "bad_request"
)

var (
	// ErrAuthFailed means handshake credentials were missing or invalid.
	// The connection is refused; there is no retry.
	ErrAuthFailed = errors.New("authentication failed")
	// ErrSubscribeDenied means authorization failed for one channel.
	// The session continues; only the subscription is refused.
	ErrSubscribeDenied = errors.New("subscription denied")
)
