package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/avolkov-dev/relaycast-server/internal/realtime"
	"github.com/avolkov-dev/relaycast-server/internal/store"
)

// maxPostContent bounds post length.
const maxPostContent = 10000

// PostService handles the public feed.
type PostService struct {
	posts  store.PostStore
	router *realtime.Router
	log    zerolog.Logger
}

// NewPostService builds a post service.
func NewPostService(posts store.PostStore, router *realtime.Router, logger zerolog.Logger) *PostService {
	return &PostService{
		posts:  posts,
		router: router,
		log:    logger.With().Str("component", "posts").Logger(),
	}
}

// Create stores a post and publishes PostCreated on the public feed channel.
// Everyone sees it, the author's connection included, unless the author
// opted out via originConnID.
func (s *PostService) Create(ctx context.Context, authorID int64, content, originConnID string) (*store.Post, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, validationErr("content", "must not be empty")
	}
	if len(content) > maxPostContent {
		return nil, validationErr("content", fmt.Sprintf("exceeds %d bytes", maxPostContent))
	}

	post, err := s.posts.CreatePost(ctx, authorID, content)
	if err != nil {
		return nil, fmt.Errorf("store post: %w", err)
	}

	s.router.Publish(ctx, realtime.PostCreated(post), originConnID)
	return post, nil
}

// List returns the newest posts first.
func (s *PostService) List(ctx context.Context, limit int) ([]store.Post, error) {
	posts, err := s.posts.ListPosts(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("list posts: %w", err)
	}
	return posts, nil
}
