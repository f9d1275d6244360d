// ABOUTME: Registry of live sessions and the publisher that delivers stored messages to rooms
// ABOUTME: Owns session creation, teardown and shutdown of every connection

package realtime

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/2389/coven-chat/internal/auth"
	"github.com/2389/coven-chat/internal/conversation"
	"github.com/2389/coven-chat/internal/dedupe"
	"github.com/2389/coven-chat/internal/room"
)

// RoomPublisher delivers stored messages to the canonical room of their
// participants. It implements conversation.Publisher.
type RoomPublisher struct {
	router *room.Router
	logger *slog.Logger
}

// NewRoomPublisher creates a publisher. Pass nil logger for default.
func NewRoomPublisher(router *room.Router, logger *slog.Logger) *RoomPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &RoomPublisher{router: router, logger: logger.With("component", "room-publisher")}
}

// PublishMessage broadcasts receive-message to every member of the room,
// the sender's own connections included.
func (p *RoomPublisher) PublishMessage(msg *conversation.MessageView) {
	payload, err := encodeEvent(EventReceiveMessage, msg)
	if err != nil {
		p.logger.Error("failed to encode message", "message_id", msg.ID, "error", err)
		return
	}
	roomID := room.CanonicalID(msg.SenderID, msg.ReceiverID)
	delivered := p.router.Broadcast(roomID, payload, "")
	p.logger.Debug("message published", "message_id", msg.ID, "room_id", roomID, "delivered", delivered)
}

// HubConfig wires a Hub to its collaborators.
type HubConfig struct {
	Router   *room.Router
	Verifier auth.TokenVerifier
	Messages MessageSender
	Dedupe   *dedupe.Cache // optional; nil disables client_msg_id dedupe
	Logger   *slog.Logger
}

// Hub tracks every live session.
type Hub struct {
	cfg    HubConfig
	logger *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	sessions map[string]*Session
	closed   bool
}

// NewHub creates a hub.
func NewHub(cfg HubConfig) *Hub {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Router == nil {
		cfg.Router = room.NewRouter(logger)
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		cfg:      cfg,
		logger:   logger.With("component", "realtime"),
		ctx:      ctx,
		cancel:   cancel,
		sessions: make(map[string]*Session),
	}
}

// Open registers a new session writing to out. It returns nil once the hub
// has been shut down.
func (h *Hub) Open(out Outbox) *Session {
	id := uuid.New().String()
	s := &Session{
		id:       id,
		out:      out,
		verifier: h.cfg.Verifier,
		messages: h.cfg.Messages,
		router:   h.cfg.Router,
		dedupe:   h.cfg.Dedupe,
		onClose:  h.release,
		ctx:      h.ctx,
		logger:   h.logger.With("conn_id", id),
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil
	}
	h.sessions[id] = s
	total := len(h.sessions)
	h.mu.Unlock()

	h.logger.Debug("session opened", "conn_id", id, "sessions", total)
	return s
}

// Context is cancelled when the hub shuts down. Sessions run their
// handlers under it.
func (h *Hub) Context() context.Context { return h.ctx }

func (h *Hub) release(s *Session) {
	h.mu.Lock()
	delete(h.sessions, s.id)
	h.mu.Unlock()
}

// Count returns the number of live sessions.
func (h *Hub) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.sessions)
}

// Shutdown closes every session and refuses new ones.
func (h *Hub) Shutdown() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	sessions := make([]*Session, 0, len(h.sessions))
	for _, s := range h.sessions {
		sessions = append(sessions, s)
	}
	h.mu.Unlock()

	h.cancel()
	for _, s := range sessions {
		s.Close()
	}
	h.logger.Info("realtime sessions closed", "count", len(sessions))
}
