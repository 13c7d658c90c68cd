package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// User represents a registered user.
type User struct {
	ID           int64     `json:"id"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

// Post is a feed entry visible to everyone.
type Post struct {
	ID        int64     `json:"id"`
	AuthorID  int64     `json:"author_id"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Message is a persisted one-to-one chat message. It is created once,
// mutated only by the unread-to-read transition, and never deleted.
type Message struct {
	ID         int64     `json:"id"`
	SenderID   int64     `json:"sender_id"`
	ReceiverID int64     `json:"receiver_id"`
	Body       string    `json:"body"`
	Read       bool      `json:"read"`
	CreatedAt  time.Time `json:"created_at"`
}

// UserStore persists users.
type UserStore interface {
	CreateUser(ctx context.Context, username, passwordHash string) (*User, error)
	GetUserByID(ctx context.Context, id int64) (*User, error)
	GetUserByUsername(ctx context.Context, username string) (*User, error)
}

// PostStore persists feed posts.
type PostStore interface {
	CreatePost(ctx context.Context, authorID int64, content string) (*Post, error)
	GetPost(ctx context.Context, id int64) (*Post, error)
	ListPosts(ctx context.Context, limit int) ([]Post, error)
}

// MessageStore persists chat messages.
type MessageStore interface {
	CreateMessage(ctx context.Context, senderID, receiverID int64, body string) (*Message, error)

	// Conversation returns every message exchanged between the two users,
	// in either direction, ordered by creation time ascending with ties
	// broken by id. Does not touch read flags.
	Conversation(ctx context.Context, userA, userB int64) ([]Message, error)

	// MarkRead flips unread messages sent by otherID to readerID to read.
	// Returns the number of messages updated.
	MarkRead(ctx context.Context, readerID, otherID int64) (int64, error)

	// CountUnread returns the number of unread messages addressed to
	// readerID from otherID.
	CountUnread(ctx context.Context, readerID, otherID int64) (int64, error)
}

// Store aggregates all persistence interfaces.
type Store interface {
	UserStore
	PostStore
	MessageStore

	Close() error
}
