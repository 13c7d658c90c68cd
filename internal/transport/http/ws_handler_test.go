package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	stdhttp "net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/rs/zerolog"

	"github.com/avolkov-dev/relaycast-server/internal/auth"
	"github.com/avolkov-dev/relaycast-server/internal/config"
	"github.com/avolkov-dev/relaycast-server/internal/fabric"
	"github.com/avolkov-dev/relaycast-server/internal/proto"
	"github.com/avolkov-dev/relaycast-server/internal/realtime"
	"github.com/avolkov-dev/relaycast-server/internal/service"
	"github.com/avolkov-dev/relaycast-server/internal/store/sqlite"
)

// testServer hosts the full HTTP surface over an in-memory store and fabric.
type testServer struct {
	*httptest.Server
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	st, err := sqlite.New(":memory:")
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	cfg := config.Default()
	logger := zerolog.Nop()

	authService := auth.NewService(st, &auth.JWTConfig{
		Secret:   []byte("test-secret"),
		Issuer:   cfg.JWTIssuer,
		Audience: cfg.JWTAudience,
		TTL:      time.Hour,
		GrantTTL: time.Minute,
	})

	gate := realtime.NewGate(authService)
	registry := realtime.NewRegistry(gate)
	manager := realtime.NewManager(registry, authService, realtime.ManagerConfig{}, logger)
	router := realtime.NewRouter(fabric.NewMemory(), registry, manager, logger)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go manager.Run(ctx)
	go func() { _ = router.Run(ctx) }()
	time.Sleep(10 * time.Millisecond)

	chat := service.NewChatService(st, st, router, cfg.MaxMessageBody, logger)
	posts := service.NewPostService(st, router, logger)

	srv := NewServer(Deps{
		Auth:     authService,
		Chat:     chat,
		Posts:    posts,
		Gate:     gate,
		Manager:  manager,
		Registry: registry,
	}, cfg, &logger)

	ts := httptest.NewServer(srv.Handler)
	t.Cleanup(ts.Close)
	return &testServer{ts}
}

// register creates a user through the public API and returns their session
// token.
func (s *testServer) register(t *testing.T, username string) string {
	t.Helper()

	var resp AuthResponse
	status := s.doJSON(t, "POST", "/api/register", "", RegisterRequest{
		Username: username,
		Password: "password123",
	}, &resp)
	if status != stdhttp.StatusCreated {
		t.Fatalf("register %s: status %d", username, status)
	}
	return resp.Token
}

func (s *testServer) doJSON(t *testing.T, method, path, token string, body, out any) int {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}

	req, err := stdhttp.NewRequest(method, s.URL+path, &buf)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := s.Client().Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()

	if out != nil && resp.StatusCode < 300 {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode response: %v", err)
		}
	} else {
		_, _ = io.Copy(io.Discard, resp.Body)
	}
	return resp.StatusCode
}

// dial opens a websocket session and returns the connection together with its
// server-assigned connection id.
func (s *testServer) dial(t *testing.T, token string) (*websocket.Conn, string) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	url := "ws" + strings.TrimPrefix(s.URL, "http") + "/ws?token=" + token
	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		t.Fatalf("websocket dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close(websocket.StatusNormalClosure, "done") })

	f := readEvent(t, conn, realtime.EventConnected)
	var hello struct {
		ConnectionID string `json:"connection_id"`
	}
	if err := json.Unmarshal(f.Data, &hello); err != nil {
		t.Fatalf("unmarshal hello: %v", err)
	}
	if hello.ConnectionID == "" {
		t.Fatalf("missing connection id in hello frame")
	}
	return conn, hello.ConnectionID
}

// readEvent reads frames until one with the given event name arrives.
func readEvent(t *testing.T, conn *websocket.Conn, event string) realtime.Frame {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	for {
		var f realtime.Frame
		if err := wsjson.Read(ctx, conn, &f); err != nil {
			t.Fatalf("waiting for %q: %v", event, err)
		}
		if f.Event == event {
			return f
		}
	}
}

func sendCommand(t *testing.T, conn *websocket.Conn, typ string, data any) {
	t.Helper()

	raw, err := json.Marshal(data)
	if err != nil {
		t.Fatalf("marshal command data: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := wsjson.Write(ctx, conn, proto.Inbound{Type: typ, Data: raw}); err != nil {
		t.Fatalf("write command: %v", err)
	}
}

func TestWSRejectsMissingToken(t *testing.T) {
	s := newTestServer(t)

	resp, err := s.Client().Get(s.URL + "/ws")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != stdhttp.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}
}

func TestWSRejectsBadToken(t *testing.T) {
	s := newTestServer(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	url := "ws" + strings.TrimPrefix(s.URL, "http") + "/ws?token=not-a-token"
	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		return // refused at upgrade, also acceptable
	}
	defer conn.Close(websocket.StatusNormalClosure, "done")

	// The server accepts the upgrade, then closes with a policy violation.
	var f realtime.Frame
	if err := wsjson.Read(ctx, conn, &f); err == nil {
		t.Fatalf("expected close, got frame %+v", f)
	}
}

func TestPublicFeedEndToEnd(t *testing.T) {
	s := newTestServer(t)

	aliceToken := s.register(t, "alice")
	bobToken := s.register(t, "bob")

	bobConn, _ := s.dial(t, bobToken)
	sendCommand(t, bobConn, proto.InboundTypeSubscribe, proto.SubscribeData{Channel: realtime.PostsChannel})
	ack := readEvent(t, bobConn, realtime.EventSubscribed)
	if ack.Channel != realtime.PostsChannel {
		t.Fatalf("ack for wrong channel %q", ack.Channel)
	}

	status := s.doJSON(t, "POST", "/api/posts", aliceToken, map[string]any{
		"content": "hello feed",
	}, nil)
	if status != stdhttp.StatusCreated {
		t.Fatalf("create post: status %d", status)
	}

	f := readEvent(t, bobConn, realtime.EventPostCreated)
	if f.Channel != realtime.PostsChannel {
		t.Fatalf("post event on wrong channel %q", f.Channel)
	}
	var post struct {
		Content string `json:"content"`
	}
	if err := json.Unmarshal(f.Data, &post); err != nil {
		t.Fatalf("unmarshal post: %v", err)
	}
	if post.Content != "hello feed" {
		t.Fatalf("unexpected content %q", post.Content)
	}
}

func TestPrivateChatEndToEnd(t *testing.T) {
	s := newTestServer(t)

	aliceToken := s.register(t, "alice")
	bobToken := s.register(t, "bob")

	// User ids follow registration order.
	const aliceID, bobID = 1, 2

	bobConn, bobConnID := s.dial(t, bobToken)
	bobChannel := realtime.ChatChannel(bobID)

	// Without a grant the subscription is refused but the session survives.
	sendCommand(t, bobConn, proto.InboundTypeSubscribe, proto.SubscribeData{Channel: bobChannel})
	errFrame := readEvent(t, bobConn, realtime.EventError)
	var errData proto.ErrorData
	if err := json.Unmarshal(errFrame.Data, &errData); err != nil {
		t.Fatalf("unmarshal error frame: %v", err)
	}
	if errData.Code != realtime.ErrCodeSubscribeDenied {
		t.Fatalf("expected %q, got %q", realtime.ErrCodeSubscribeDenied, errData.Code)
	}

	// Fetch a grant bound to this connection and retry.
	var grant GrantResponse
	status := s.doJSON(t, "POST", "/api/broadcasting/auth", bobToken, GrantRequest{
		ChannelName:  bobChannel,
		ConnectionID: bobConnID,
	}, &grant)
	if status != stdhttp.StatusOK {
		t.Fatalf("grant request: status %d", status)
	}

	sendCommand(t, bobConn, proto.InboundTypeSubscribe, proto.SubscribeData{Channel: bobChannel, Auth: grant.Auth})
	readEvent(t, bobConn, realtime.EventSubscribed)

	status = s.doJSON(t, "POST", "/api/chat", aliceToken, SendMessageRequest{
		ReceiverID: bobID,
		Body:       "hi bob",
	}, nil)
	if status != stdhttp.StatusCreated {
		t.Fatalf("send message: status %d", status)
	}

	f := readEvent(t, bobConn, realtime.EventMessageSent)
	if f.Channel != bobChannel {
		t.Fatalf("message on wrong channel %q", f.Channel)
	}
	var msg struct {
		SenderID int64  `json:"sender_id"`
		Body     string `json:"body"`
	}
	if err := json.Unmarshal(f.Data, &msg); err != nil {
		t.Fatalf("unmarshal message: %v", err)
	}
	if msg.SenderID != aliceID || msg.Body != "hi bob" {
		t.Fatalf("unexpected message: %+v", msg)
	}

	// Durability is independent of delivery: the conversation shows it.
	var conv ConversationResponse
	status = s.doJSON(t, "GET", fmt.Sprintf("/api/chat/%d", aliceID), bobToken, nil, &conv)
	if status != stdhttp.StatusOK {
		t.Fatalf("conversation: status %d", status)
	}
	if len(conv.Messages) != 1 || conv.Unread != 1 {
		t.Fatalf("unexpected conversation: %d messages, %d unread", len(conv.Messages), conv.Unread)
	}
}

func TestGrantRefusedForForeignChannel(t *testing.T) {
	s := newTestServer(t)

	aliceToken := s.register(t, "alice")
	s.register(t, "bob")

	_, aliceConnID := s.dial(t, aliceToken)

	// Alice may not receive on bob's chat channel.
	status := s.doJSON(t, "POST", "/api/broadcasting/auth", aliceToken, GrantRequest{
		ChannelName:  realtime.ChatChannel(2),
		ConnectionID: aliceConnID,
	}, nil)
	if status != stdhttp.StatusForbidden {
		t.Fatalf("expected 403, got %d", status)
	}
}

func TestGrantRefusedForForeignConnection(t *testing.T) {
	s := newTestServer(t)

	aliceToken := s.register(t, "alice")
	bobToken := s.register(t, "bob")

	_, bobConnID := s.dial(t, bobToken)

	// A grant request must name a connection owned by the caller.
	status := s.doJSON(t, "POST", "/api/broadcasting/auth", aliceToken, GrantRequest{
		ChannelName:  realtime.ChatChannel(1),
		ConnectionID: bobConnID,
	}, nil)
	if status != stdhttp.StatusForbidden {
		t.Fatalf("expected 403, got %d", status)
	}
}

func TestPingPong(t *testing.T) {
	s := newTestServer(t)

	token := s.register(t, "alice")
	conn, _ := s.dial(t, token)

	sendCommand(t, conn, proto.InboundTypePing, struct{}{})
	readEvent(t, conn, realtime.EventPong)
}

func TestInboundRateLimitClosesConnection(t *testing.T) {
	s := newTestServer(t)

	token := s.register(t, "alice")
	conn, _ := s.dial(t, token)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	for i := 0; i < inboundPerMinute+10; i++ {
		if err := wsjson.Write(ctx, conn, proto.Inbound{Type: proto.InboundTypePing}); err != nil {
			return // server already tore the connection down
		}
	}

	// Drain pongs until the server's close arrives.
	for {
		var f realtime.Frame
		if err := wsjson.Read(ctx, conn, &f); err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				t.Fatalf("connection survived exceeding the inbound limit")
			}
			return
		}
	}
}

func TestUnknownInboundTypeReturnsError(t *testing.T) {
	s := newTestServer(t)

	token := s.register(t, "alice")
	conn, _ := s.dial(t, token)

	sendCommand(t, conn, "bogus", struct{}{})
	f := readEvent(t, conn, realtime.EventError)
	var errData proto.ErrorData
	if err := json.Unmarshal(f.Data, &errData); err != nil {
		t.Fatalf("unmarshal error frame: %v", err)
	}
	if errData.Code != realtime.ErrCodeBadRequest {
		t.Fatalf("expected %q, got %q", realtime.ErrCodeBadRequest, errData.Code)
	}
}
