package http

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/avolkov-dev/relaycast-server/internal/service"
	"github.com/avolkov-dev/relaycast-server/internal/store"
)

// ChatHandlers provides HTTP handlers for the chat endpoints.
type ChatHandlers struct {
	chat *service.ChatService
	log  *zerolog.Logger
}

// NewChatHandlers creates a new chat handlers instance.
func NewChatHandlers(chat *service.ChatService, logger *zerolog.Logger) *ChatHandlers {
	return &ChatHandlers{chat: chat, log: logger}
}

// SendMessageRequest represents the chat send request body. ConnectionID is
// the sender's websocket connection, so the broadcast skips it
// (exclude-self: the sender already has the message locally).
type SendMessageRequest struct {
	ReceiverID   int64  `json:"receiver_id" binding:"required"`
	Body         string `json:"body" binding:"required"`
	ConnectionID string `json:"connection_id,omitempty"`
}

// ConversationResponse wraps the ordered message sequence.
type ConversationResponse struct {
	Messages []store.Message `json:"messages"`
	Unread   int64           `json:"unread"`
}

// MarkReadResponse reports how many messages were transitioned to read.
type MarkReadResponse struct {
	Updated int64 `json:"updated"`
}

// Send handles sending a chat message.
// POST /api/chat
func (h *ChatHandlers) Send(c *gin.Context) {
	var req SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Debug().Err(err).Msg("invalid send request")
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	senderID := currentUserID(c)
	msg, err := h.chat.SendMessage(c.Request.Context(), senderID, req.ReceiverID, req.Body, req.ConnectionID)
	if err != nil {
		var verr *service.ValidationError
		if errors.As(err, &verr) {
			c.JSON(http.StatusUnprocessableEntity, ErrorResponse{Error: verr.Error()})
			return
		}
		h.log.Error().Err(err).Int64("sender_id", senderID).Msg("failed to send message")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	c.JSON(http.StatusCreated, msg)
}

// Conversation returns the ordered messages with another user.
// GET /api/chat/:user_id
func (h *ChatHandlers) Conversation(c *gin.Context) {
	otherID, err := strconv.ParseInt(c.Param("user_id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid user id"})
		return
	}

	userID := currentUserID(c)
	msgs, err := h.chat.Conversation(c.Request.Context(), userID, otherID)
	if err != nil {
		var verr *service.ValidationError
		if errors.As(err, &verr) {
			c.JSON(http.StatusUnprocessableEntity, ErrorResponse{Error: verr.Error()})
			return
		}
		h.log.Error().Err(err).Int64("user_id", userID).Msg("failed to load conversation")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	unread, err := h.chat.CountUnread(c.Request.Context(), userID, otherID)
	if err != nil {
		h.log.Warn().Err(err).Int64("user_id", userID).Msg("failed to count unread")
	}

	if msgs == nil {
		msgs = []store.Message{}
	}
	c.JSON(http.StatusOK, ConversationResponse{Messages: msgs, Unread: unread})
}

// MarkRead flips unread messages from the other user to read.
// POST /api/chat/:user_id/read
func (h *ChatHandlers) MarkRead(c *gin.Context) {
	otherID, err := strconv.ParseInt(c.Param("user_id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid user id"})
		return
	}

	userID := currentUserID(c)
	n, err := h.chat.MarkRead(c.Request.Context(), userID, otherID)
	if err != nil {
		h.log.Error().Err(err).Int64("user_id", userID).Msg("failed to mark read")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	c.JSON(http.StatusOK, MarkReadResponse{Updated: n})
}
