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

// PostHandlers provides HTTP handlers for the public feed.
type PostHandlers struct {
	posts *service.PostService
	log   *zerolog.Logger
}

// NewPostHandlers creates a new post handlers instance.
func NewPostHandlers(posts *service.PostService, logger *zerolog.Logger) *PostHandlers {
	return &PostHandlers{posts: posts, log: logger}
}

// CreatePostRequest represents the post creation body.
type CreatePostRequest struct {
	Content      string `json:"content" binding:"required"`
	ConnectionID string `json:"connection_id,omitempty"`
}

// Create stores a post and broadcasts it on the feed channel.
// POST /api/posts
func (h *PostHandlers) Create(c *gin.Context) {
	var req CreatePostRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Debug().Err(err).Msg("invalid post request")
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	authorID := currentUserID(c)
	post, err := h.posts.Create(c.Request.Context(), authorID, req.Content, req.ConnectionID)
	if err != nil {
		var verr *service.ValidationError
		if errors.As(err, &verr) {
			c.JSON(http.StatusUnprocessableEntity, ErrorResponse{Error: verr.Error()})
			return
		}
		h.log.Error().Err(err).Int64("author_id", authorID).Msg("failed to create post")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	c.JSON(http.StatusCreated, post)
}

// List returns the newest posts.
// GET /api/posts
func (h *PostHandlers) List(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))

	posts, err := h.posts.List(c.Request.Context(), limit)
	if err != nil {
		h.log.Error().Err(err).Msg("failed to list posts")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	if posts == nil {
		posts = []store.Post{}
	}
	c.JSON(http.StatusOK, posts)
}
