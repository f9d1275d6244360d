// ABOUTME: Conversation service: the single path by which direct messages are written and read
// ABOUTME: Record first, then publish; embedding is best-effort on send and strict on search

package conversation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/2389/coven-chat/internal/embedding"
	"github.com/2389/coven-chat/internal/store"
)

// Defaults applied when Config leaves a field at zero.
const (
	DefaultEmbedTimeout = 5 * time.Second
	DefaultHistoryLimit = store.DefaultHistoryLimit
	DefaultMaxLimit     = 500
	DefaultSearchK      = 10
	DefaultMaxK         = 100
)

// Store defines what the service needs from storage
type Store interface {
	GetUser(ctx context.Context, id string) (*store.User, error)
	CreateMessage(ctx context.Context, msg *store.NewMessage) (*store.Message, error)
	ListConversation(ctx context.Context, q store.ConversationQuery) ([]*store.Message, error)
	ListSearchCandidates(ctx context.Context, userID string) ([]*store.Message, error)
}

// Publisher receives every message after it has been durably stored.
// Implementations must not block.
type Publisher interface {
	PublishMessage(msg *MessageView)
}

// Config tunes limits and timeouts. Zero values select the defaults above.
type Config struct {
	EmbedTimeout time.Duration
	DefaultLimit int
	MaxLimit     int
	DefaultK     int
	MaxK         int
}

func (c Config) withDefaults() Config {
	if c.EmbedTimeout <= 0 {
		c.EmbedTimeout = DefaultEmbedTimeout
	}
	if c.DefaultLimit <= 0 {
		c.DefaultLimit = DefaultHistoryLimit
	}
	if c.MaxLimit <= 0 {
		c.MaxLimit = DefaultMaxLimit
	}
	if c.DefaultK <= 0 {
		c.DefaultK = DefaultSearchK
	}
	if c.MaxK <= 0 {
		c.MaxK = DefaultMaxK
	}
	return c
}

// Service owns the send path and conversation queries.
type Service struct {
	store     Store
	embedder  embedding.Provider
	publisher Publisher
	cfg       Config
	logger    *slog.Logger
}

// New creates a conversation service. A nil embedder disables embeddings,
// a nil publisher disables live delivery, and a nil logger uses the default.
func New(st Store, embedder embedding.Provider, publisher Publisher, cfg Config, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if embedder == nil {
		embedder = embedding.Disabled{Dims: embedding.DefaultDimensions}
	}
	return &Service{
		store:     st,
		embedder:  embedder,
		publisher: publisher,
		cfg:       cfg.withDefaults(),
		logger:    logger.With("component", "conversation"),
	}
}

// SendRequest is a direct message to be written.
type SendRequest struct {
	SenderID   string
	ReceiverID string
	Body       string
}

// SendMessage stores a message and publishes it to the participants' room.
//
// Key principle: record first, then act. The message is published only after
// CreateMessage returns; when the write fails nothing is published.
func (s *Service) SendMessage(ctx context.Context, req SendRequest) (*MessageView, error) {
	senderID := strings.TrimSpace(req.SenderID)
	receiverID := strings.TrimSpace(req.ReceiverID)
	body := strings.TrimSpace(req.Body)

	switch {
	case senderID == "" || receiverID == "" || req.Body == "":
		return nil, invalid("senderId, receiverId, and message are required")
	case body == "":
		return nil, invalid("Message cannot be empty")
	case senderID == receiverID:
		return nil, invalid("Cannot send messages to yourself")
	}

	if err := s.requireUser(ctx, senderID, "Sender"); err != nil {
		return nil, err
	}
	if err := s.requireUser(ctx, receiverID, "Receiver"); err != nil {
		return nil, err
	}

	vector := s.bestEffortEmbed(ctx, body, senderID, receiverID)

	msg, err := s.store.CreateMessage(ctx, &store.NewMessage{
		SenderID:   senderID,
		ReceiverID: receiverID,
		Body:       body,
		Embedding:  vector,
	})
	if err != nil {
		s.logger.Error("failed to record message",
			"sender_id", senderID,
			"receiver_id", receiverID,
			"error", err)
		return nil, mapWriteError(err)
	}

	s.logger.Debug("message recorded",
		"message_id", msg.ID,
		"sender_id", senderID,
		"receiver_id", receiverID,
		"length", len(body),
		"has_embedding", msg.HasEmbedding())

	view := NewMessageView(msg)
	if s.publisher != nil {
		s.publisher.PublishMessage(view)
	}
	return view, nil
}

// bestEffortEmbed returns nil when the provider fails or times out.
func (s *Service) bestEffortEmbed(ctx context.Context, body, senderID, receiverID string) []float32 {
	embedCtx, cancel := context.WithTimeout(ctx, s.cfg.EmbedTimeout)
	defer cancel()

	vector, err := s.embedder.Embed(embedCtx, body)
	if err != nil {
		s.logger.Warn("embedding unavailable, storing message without vector",
			"sender_id", senderID,
			"receiver_id", receiverID,
			"error", err)
		return nil
	}
	return vector
}

// History returns the conversation of userID, narrowed to otherUserID when
// set, ordered by (created_at, id) ascending.
func (s *Service) History(ctx context.Context, userID, otherUserID string, limit int) (*History, error) {
	userID = strings.TrimSpace(userID)
	otherUserID = strings.TrimSpace(otherUserID)
	if userID == "" {
		return nil, invalid("userId query parameter is required")
	}

	user, err := s.store.GetUser(ctx, userID)
	if err != nil {
		return nil, s.mapLookupError(err, userID, "User")
	}

	msgs, err := s.store.ListConversation(ctx, store.ConversationQuery{
		UserID: userID,
		PeerID: otherUserID,
		Limit:  s.clampLimit(limit),
	})
	if err != nil {
		s.logger.Error("failed to list conversation",
			"user_id", userID,
			"other_user_id", otherUserID,
			"error", err)
		return nil, fmt.Errorf("%w: %w", ErrPersistence, err)
	}

	return &History{
		User:     Participant{ID: user.ID, Name: user.Name},
		Messages: toViews(msgs),
	}, nil
}

func (s *Service) clampLimit(limit int) int {
	if limit <= 0 {
		return s.cfg.DefaultLimit
	}
	return min(limit, s.cfg.MaxLimit)
}

func (s *Service) requireUser(ctx context.Context, id, role string) error {
	if _, err := s.store.GetUser(ctx, id); err != nil {
		return s.mapLookupError(err, id, role)
	}
	return nil
}

func (s *Service) mapLookupError(err error, id, role string) error {
	if errors.Is(err, store.ErrNotFound) {
		return &NotFoundError{Role: role, ID: id}
	}
	s.logger.Error("user lookup failed", "user_id", id, "error", err)
	return fmt.Errorf("%w: %w", ErrPersistence, err)
}

func mapWriteError(err error) error {
	switch {
	case errors.Is(err, store.ErrInvalidMessage):
		return invalid(err.Error())
	case errors.Is(err, store.ErrNotFound):
		return &NotFoundError{Role: "User"}
	default:
		return fmt.Errorf("%w: %w", ErrPersistence, err)
	}
}
