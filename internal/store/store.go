// ABOUTME: Store interface and data types for coven-chat persistence
// ABOUTME: Defines User, Message and the append-only message log contract

package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

// ErrDuplicateUser is returned when creating a user whose ID is already taken
var ErrDuplicateUser = errors.New("user already exists")

// ErrInvalidMessage is returned when a message violates the log invariants
// (self-addressed, empty body, missing participants).
var ErrInvalidMessage = errors.New("invalid message")

// ErrVectorRejected marks a write failure caused by the embedding vector alone.
// CreateMessage treats it as recoverable and retries without the vector.
var ErrVectorRejected = errors.New("embedding vector rejected")

// DefaultHistoryLimit is used when ListConversation is called with limit <= 0.
const DefaultHistoryLimit = 50

// User is the display identity of a chat participant.
// Users are owned by the auth subsystem; the store only keeps id and name.
type User struct {
	ID        string
	Name      string
	CreatedAt time.Time
}

// Message is a single immutable direct message.
// SenderName and ReceiverName are hydrated from the users table on read.
type Message struct {
	ID           string
	SenderID     string
	ReceiverID   string
	SenderName   string
	ReceiverName string
	Body         string
	CreatedAt    time.Time
	Embedding    []float32 // nil when generation failed or was skipped at write time
}

// HasEmbedding reports whether a vector was stored with the message.
func (m *Message) HasEmbedding() bool {
	return len(m.Embedding) > 0
}

// NewMessage is the input to CreateMessage. The store assigns ID and CreatedAt.
type NewMessage struct {
	SenderID   string
	ReceiverID string
	Body       string
	Embedding  []float32
}

// ConversationQuery selects messages touching UserID, optionally narrowed to
// the pair {UserID, PeerID}.
type ConversationQuery struct {
	UserID string
	PeerID string // empty means every conversation of UserID
	Limit  int
}

// Store defines the persistence contract for users and the message log
type Store interface {
	// Users
	CreateUser(ctx context.Context, user *User) error
	GetUser(ctx context.Context, id string) (*User, error)

	// Messages (append-only)
	CreateMessage(ctx context.Context, msg *NewMessage) (*Message, error)
	GetMessage(ctx context.Context, id string) (*Message, error)
	ListConversation(ctx context.Context, q ConversationQuery) ([]*Message, error)

	// ListSearchCandidates returns every message touching userID, with
	// embeddings loaded where present, ordered by (created_at, id).
	ListSearchCandidates(ctx context.Context, userID string) ([]*Message, error)

	Ping(ctx context.Context) error
	Close() error
}

// validateNewMessage enforces the log invariants before any write.
func validateNewMessage(msg *NewMessage) error {
	switch {
	case msg.SenderID == "" || msg.ReceiverID == "":
		return fmt.Errorf("%w: sender and receiver are required", ErrInvalidMessage)
	case msg.SenderID == msg.ReceiverID:
		return fmt.Errorf("%w: sender and receiver must differ", ErrInvalidMessage)
	case strings.TrimSpace(msg.Body) == "":
		return fmt.Errorf("%w: body is empty", ErrInvalidMessage)
	}
	return nil
}
