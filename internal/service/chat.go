package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/avolkov-dev/relaycast-server/internal/realtime"
	"github.com/avolkov-dev/relaycast-server/internal/store"
)

// ChatService handles two-party chat: durable writes first, broadcast after.
type ChatService struct {
	users    store.UserStore
	messages store.MessageStore
	router   *realtime.Router
	maxBody  int
	log      zerolog.Logger
}

// NewChatService builds a chat service. maxBody bounds message length in
// bytes; zero or negative selects the default of 2000.
func NewChatService(users store.UserStore, messages store.MessageStore, router *realtime.Router, maxBody int, logger zerolog.Logger) *ChatService {
	if maxBody <= 0 {
		maxBody = 2000
	}
	return &ChatService{
		users:    users,
		messages: messages,
		router:   router,
		maxBody:  maxBody,
		log:      logger.With().Str("component", "chat").Logger(),
	}
}

// SendMessage validates, durably stores a message with read=false, then
// publishes MessageSent excluding the sender's own connection. The store
// write decides the outcome of the request; delivery is best-effort and the
// caller never waits on it.
func (s *ChatService) SendMessage(ctx context.Context, senderID, receiverID int64, body, originConnID string) (*store.Message, error) {
	if body == "" {
		return nil, validationErr("body", "must not be empty")
	}
	if len(body) > s.maxBody {
		return nil, validationErr("body", fmt.Sprintf("exceeds %d bytes", s.maxBody))
	}
	if senderID == receiverID {
		return nil, validationErr("receiver_id", "cannot message yourself")
	}
	if _, err := s.users.GetUserByID(ctx, receiverID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, validationErr("receiver_id", "unknown receiver")
		}
		return nil, fmt.Errorf("lookup receiver: %w", err)
	}

	msg, err := s.messages.CreateMessage(ctx, senderID, receiverID, body)
	if err != nil {
		return nil, fmt.Errorf("store message: %w", err)
	}

	s.router.Publish(ctx, realtime.MessageSent(msg), originConnID)
	return msg, nil
}

// Conversation returns the chronologically ordered messages between the two
// users. Read flags are not mutated.
func (s *ChatService) Conversation(ctx context.Context, userID, otherID int64) ([]store.Message, error) {
	if userID == otherID {
		return nil, validationErr("user_id", "conversation requires two distinct users")
	}
	msgs, err := s.messages.Conversation(ctx, userID, otherID)
	if err != nil {
		return nil, fmt.Errorf("load conversation: %w", err)
	}
	return msgs, nil
}

// MarkRead transitions unread messages from otherID to userID to read.
func (s *ChatService) MarkRead(ctx context.Context, userID, otherID int64) (int64, error) {
	n, err := s.messages.MarkRead(ctx, userID, otherID)
	if err != nil {
		return 0, fmt.Errorf("mark read: %w", err)
	}
	return n, nil
}

// CountUnread reports unread messages addressed to userID from otherID.
func (s *ChatService) CountUnread(ctx context.Context, userID, otherID int64) (int64, error) {
	n, err := s.messages.CountUnread(ctx, userID, otherID)
	if err != nil {
		return 0, fmt.Errorf("count unread: %w", err)
	}
	return n, nil
}
