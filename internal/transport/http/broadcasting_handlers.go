package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/avolkov-dev/relaycast-server/internal/auth"
	"github.com/avolkov-dev/relaycast-server/internal/realtime"
)

// BroadcastingHandlers implements the companion channel authorization
// endpoint. A client that wants a private or presence channel first asks
// here for a signed grant bound to its current connection, then presents
// the grant in its subscribe frame.
type BroadcastingHandlers struct {
	authService *auth.Service
	gate        *realtime.Gate
	manager     *realtime.Manager
	log         *zerolog.Logger
}

// NewBroadcastingHandlers creates a new broadcasting handlers instance.
func NewBroadcastingHandlers(authService *auth.Service, gate *realtime.Gate, manager *realtime.Manager, logger *zerolog.Logger) *BroadcastingHandlers {
	return &BroadcastingHandlers{
		authService: authService,
		gate:        gate,
		manager:     manager,
		log:         logger,
	}
}

// GrantRequest asks for a channel grant on behalf of a live connection.
type GrantRequest struct {
	ChannelName  string `json:"channel_name" binding:"required"`
	ConnectionID string `json:"connection_id" binding:"required"`
}

// GrantResponse carries the signed grant.
type GrantResponse struct {
	Auth string `json:"auth"`
}

// Authorize issues a grant when the static channel rule allows the
// authenticated user. Denials are logged and returned as 403; the session
// is unaffected.
// POST /api/broadcasting/auth
func (h *BroadcastingHandlers) Authorize(c *gin.Context) {
	var req GrantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Debug().Err(err).Msg("invalid grant request")
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	userID := currentUserID(c)

	// The grant must be for a connection this instance actually owns and
	// that belongs to the requesting user.
	conn := h.manager.Lookup(req.ConnectionID)
	if conn == nil || conn.UserID != userID {
		c.JSON(http.StatusForbidden, ErrorResponse{Error: "unknown connection"})
		return
	}

	if err := h.gate.Authorize(userID, req.ChannelName); err != nil {
		if errors.Is(err, realtime.ErrSubscribeDenied) {
			h.log.Info().
				Int64("user_id", userID).
				Str("channel", req.ChannelName).
				Msg("channel grant denied")
			c.JSON(http.StatusForbidden, ErrorResponse{Error: "forbidden"})
			return
		}
		h.log.Error().Err(err).Msg("gate failure")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	grant, err := h.authService.IssueGrant(userID, req.ConnectionID, req.ChannelName)
	if err != nil {
		h.log.Error().Err(err).Msg("failed to issue grant")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	c.JSON(http.StatusOK, GrantResponse{Auth: grant})
}
