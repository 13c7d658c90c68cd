package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	stdhttp "net/http"
	"strings"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/rs/zerolog"

	"github.com/avolkov-dev/relaycast-server/internal/proto"
	"github.com/avolkov-dev/relaycast-server/internal/realtime"
)

// inboundPerMinute caps commands one connection may issue per minute.
const inboundPerMinute = 240

// WSHandler upgrades HTTP connections and bridges them to realtime.Conn.
type WSHandler struct {
	manager  *realtime.Manager
	registry *realtime.Registry
	log      *zerolog.Logger
}

// NewWSHandler builds a new WebSocket handler.
func NewWSHandler(manager *realtime.Manager, registry *realtime.Registry, logger *zerolog.Logger) stdhttp.Handler {
	return &WSHandler{manager: manager, registry: registry, log: logger}
}

func (h *WSHandler) ServeHTTP(w stdhttp.ResponseWriter, r *stdhttp.Request) {
	ctx := r.Context()

	token := bearerToken(r)
	if token == "" {
		stdhttp.Error(w, "missing token", stdhttp.StatusUnauthorized)
		return
	}

	wsConn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		h.log.Error().Err(err).Msg("ws accept error")
		return
	}
	defer wsConn.Close(websocket.StatusInternalError, "internal error")

	client, err := h.manager.Accept(token)
	if err != nil {
		h.log.Warn().Err(err).Msg("ws handshake refused")
		wsConn.Close(websocket.StatusPolicyViolation, realtime.ErrCodeAuthFailed)
		return
	}
	defer h.manager.Disconnect(client, realtime.ReasonClientClose)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	errCh := make(chan error, 2)
	go func() {
		errCh <- h.readLoop(ctx, wsConn, client)
	}()
	go func() {
		errCh <- h.writeLoop(ctx, wsConn, client)
	}()

	err = <-errCh
	cancel() // stop the other goroutine
	<-errCh

	status := websocket.StatusNormalClosure
	reason := "closing"
	if err != nil && !errors.Is(err, context.Canceled) {
		if errors.Is(err, io.EOF) {
			err = nil
		}
		if s := websocket.CloseStatus(err); s != 0 {
			status = s
		}
		if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway {
			err = nil
		}
		if err != nil {
			if status == websocket.StatusNormalClosure {
				status = websocket.StatusInternalError
			}
			reason = realtime.ReasonTransport
			h.manager.Disconnect(client, realtime.ReasonTransport)
			h.log.Warn().Err(err).Str("conn_id", client.ID).Msg("ws connection closed with error")
		}
	}

	wsConn.Close(status, reason)
}

func (h *WSHandler) readLoop(ctx context.Context, wsConn *websocket.Conn, client *realtime.Conn) error {
	limiter := newRateLimiter(inboundPerMinute)
	stop := make(chan struct{})
	defer close(stop)
	limiter.startReset(stop)

	for {
		var inbound proto.Inbound
		if err := wsjson.Read(ctx, wsConn, &inbound); err != nil {
			return err
		}

		// Any inbound frame counts as client activity for the heartbeat.
		client.Touch()

		if !limiter.allow() {
			h.manager.Disconnect(client, realtime.ReasonRateLimited)
			return errors.New("inbound rate limit exceeded")
		}

		h.handleInbound(client, inbound)
	}
}

func (h *WSHandler) handleInbound(client *realtime.Conn, inbound proto.Inbound) {
	switch inbound.Type {
	case proto.InboundTypeSubscribe:
		var sub proto.SubscribeData
		if err := json.Unmarshal(inbound.Data, &sub); err != nil || sub.Channel == "" {
			h.sendError(client, realtime.ErrCodeBadRequest, "channel is required", "")
			return
		}
		if err := h.registry.Subscribe(client, sub.Channel, sub.Auth); err != nil {
			// A denial refuses only this subscription. The session
			// continues; the client may retry another channel.
			h.log.Info().
				Str("conn_id", client.ID).
				Int64("user_id", client.UserID).
				Str("channel", sub.Channel).
				Msg("subscription denied")
			h.sendError(client, realtime.ErrCodeSubscribeDenied, "subscription denied", sub.Channel)
		}
	case proto.InboundTypeUnsubscribe:
		var unsub proto.UnsubscribeData
		if err := json.Unmarshal(inbound.Data, &unsub); err != nil || unsub.Channel == "" {
			h.sendError(client, realtime.ErrCodeBadRequest, "channel is required", "")
			return
		}
		h.registry.Unsubscribe(client, unsub.Channel)
	case proto.InboundTypePing:
		client.Deliver(realtime.Frame{Event: realtime.EventPong})
	default:
		h.sendError(client, realtime.ErrCodeBadRequest, "unknown frame type", "")
	}
}

func (h *WSHandler) sendError(client *realtime.Conn, code, msg, channel string) {
	data, _ := json.Marshal(proto.ErrorData{Code: code, Msg: msg, Channel: channel})
	client.Deliver(realtime.Frame{Event: realtime.EventError, Data: data})
}

func (h *WSHandler) writeLoop(ctx context.Context, wsConn *websocket.Conn, client *realtime.Conn) error {
	for {
		select {
		case frame, ok := <-client.Frames():
			if !ok {
				return nil
			}
			if err := wsjson.Write(ctx, wsConn, frame); err != nil {
				h.log.Error().Err(err).Str("conn_id", client.ID).Msg("write ws frame")
				return err
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// bearerToken extracts the session token from the Authorization header or,
// for browser websocket clients that cannot set headers, the token query
// parameter.
func bearerToken(r *stdhttp.Request) string {
	header := r.Header.Get("Authorization")
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimPrefix(header, "Bearer ")
	}
	return r.URL.Query().Get("token")
}
