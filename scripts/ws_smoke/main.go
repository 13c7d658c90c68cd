package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/avolkov-dev/relaycast-server/internal/proto"
)

// Manual smoke client: logs in over REST, opens a websocket session,
// subscribes to the public feed and prints every frame it receives.
func main() {
	if err := run(); err != nil {
		log.Printf("ws_smoke: %v", err)
		os.Exit(1)
	}
}

func run() error {
	api := flag.String("api", "http://localhost:8080", "REST base URL")
	ws := flag.String("ws", "ws://localhost:8080/ws", "WebSocket address")
	user := flag.String("user", "smoke", "username")
	pass := flag.String("pass", "smoke-password", "password")
	channel := flag.String("channel", "posts", "channel to subscribe to")
	post := flag.String("post", "", "optional post content to publish after subscribing")
	timeout := flag.Duration("timeout", 10*time.Second, "total timeout for the run")
	flag.Parse()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	token, err := login(ctx, *api, *user, *pass)
	if err != nil {
		return err
	}

	conn, _, err := websocket.Dial(ctx, *ws+"?token="+token, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "bye")

	subData, err := json.Marshal(proto.SubscribeData{Channel: *channel})
	if err != nil {
		return fmt.Errorf("marshal subscribe: %w", err)
	}
	if err := wsjson.Write(ctx, conn, proto.Inbound{Type: proto.InboundTypeSubscribe, Data: subData}); err != nil {
		return fmt.Errorf("send subscribe: %w", err)
	}

	if *post != "" {
		if err := createPost(ctx, *api, token, *post); err != nil {
			return err
		}
	}

	for {
		var frame struct {
			Event   string          `json:"event"`
			Channel string          `json:"channel"`
			Data    json.RawMessage `json:"data"`
		}
		if err := wsjson.Read(ctx, conn, &frame); err != nil {
			return fmt.Errorf("read: %w", err)
		}
		fmt.Printf("event=%s channel=%s data=%s\n", frame.Event, frame.Channel, string(frame.Data))
	}
}

// login registers the user first so the script works against a fresh
// database, then falls back to a normal login when the user already exists.
func login(ctx context.Context, api, user, pass string) (string, error) {
	token, err := postAuth(ctx, api+"/api/register", user, pass)
	if err == nil {
		return token, nil
	}
	return postAuth(ctx, api+"/api/login", user, pass)
}

func postAuth(ctx context.Context, url, user, pass string) (string, error) {
	body, err := json.Marshal(map[string]string{"username": user, "password": pass})
	if err != nil {
		return "", fmt.Errorf("marshal credentials: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("post %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return "", fmt.Errorf("%s: status %d", url, resp.StatusCode)
	}

	var auth struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&auth); err != nil {
		return "", fmt.Errorf("decode auth response: %w", err)
	}
	return auth.Token, nil
}

func createPost(ctx context.Context, api, token, content string) error {
	body, err := json.Marshal(map[string]string{"content": content})
	if err != nil {
		return fmt.Errorf("marshal post: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, api+"/api/posts", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("create post: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("create post: status %d", resp.StatusCode)
	}
	return nil
}
