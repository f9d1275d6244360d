// ABOUTME: Per-connection chat session state machine
// ABOUTME: Handles authenticate, room join/leave, send-message and typing events

package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"sync"

	"github.com/2389/coven-chat/internal/auth"
	"github.com/2389/coven-chat/internal/conversation"
	"github.com/2389/coven-chat/internal/dedupe"
	"github.com/2389/coven-chat/internal/room"
)

// State is the lifecycle position of a session.
type State int

const (
	StateUnauthenticated State = iota
	StateAuthenticated
	StateInRoom
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateUnauthenticated:
		return "unauthenticated"
	case StateAuthenticated:
		return "authenticated"
	case StateInRoom:
		return "in_room"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Outbox is the outgoing side of a connection.
type Outbox interface {
	// Send queues a frame without blocking; false means it was dropped.
	Send(payload []byte) bool
	// Close flushes queued frames and then closes the connection.
	Close()
}

// MessageSender persists and publishes a message.
type MessageSender interface {
	SendMessage(ctx context.Context, req conversation.SendRequest) (*conversation.MessageView, error)
}

// Session is one live connection. It satisfies room.Member.
type Session struct {
	id       string
	out      Outbox
	verifier auth.TokenVerifier
	messages MessageSender
	router   *room.Router
	dedupe   *dedupe.Cache
	onClose  func(*Session)
	ctx      context.Context
	logger   *slog.Logger

	mu     sync.Mutex
	userID string
	roomID string
	closed bool
}

// ID returns the connection id.
func (s *Session) ID() string { return s.id }

// Send queues a frame for this connection.
func (s *Session) Send(payload []byte) bool { return s.out.Send(payload) }

func (s *Session) hubContext() context.Context {
	if s.ctx == nil {
		return context.Background()
	}
	return s.ctx
}

// State reports the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case s.closed:
		return StateClosed
	case s.userID == "":
		return StateUnauthenticated
	case s.roomID != "":
		return StateInRoom
	default:
		return StateAuthenticated
	}
}

// UserID returns the authenticated user, or "" before authentication.
func (s *Session) UserID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.userID
}

// RoomID returns the joined room, or "" when not in a room.
func (s *Session) RoomID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.roomID
}

// Handle processes one inbound frame. Callers must not call Handle
// concurrently for the same session.
func (s *Session) Handle(ctx context.Context, frame []byte) {
	if s.State() == StateClosed {
		return
	}

	var in inbound
	if err := json.Unmarshal(frame, &in); err != nil || in.Event == "" {
		s.logger.Debug("malformed frame", "error", err, "size", len(frame))
		s.emit(EventError, NoticePayload{Message: msgMalformed})
		return
	}

	switch in.Event {
	case EventAuthenticate:
		s.authenticate(in.Data)
	case EventJoinRoom:
		s.joinRoom(in.Data)
	case EventLeaveRoom:
		s.leaveRoom(in.Data)
	case EventSendMessage:
		s.sendMessage(ctx, in.Data)
	case EventTyping:
		s.typing(in.Data)
	default:
		s.logger.Debug("unknown event", "event", in.Event)
		s.emit(EventError, NoticePayload{Message: "Unknown event: " + in.Event})
	}
}

func (s *Session) authenticate(data json.RawMessage) {
	token, err := decodeStringOrField(data, "token")
	if err == nil && token == "" {
		err = errEmptyData
	}

	var userID string
	if err == nil {
		userID, err = s.verifier.Verify(token)
	}
	if err != nil {
		s.logger.Warn("authentication failed", "error", err)
		s.emit(EventUnauthorized, NoticePayload{Message: msgAuthFailed})
		s.Close()
		return
	}

	s.mu.Lock()
	previousUser, previousRoom := s.userID, s.roomID
	s.userID = userID
	if previousUser != "" && previousUser != userID {
		s.roomID = ""
	}
	s.mu.Unlock()

	if previousUser != "" && previousUser != userID && previousRoom != "" {
		s.router.Leave(previousRoom, s.id)
	}

	s.logger.Info("authenticated", "user_id", userID)
	s.emit(EventAuthenticated, AuthenticatedPayload{UserID: userID})
}

func (s *Session) joinRoom(data json.RawMessage) {
	userID := s.UserID()
	if userID == "" {
		s.emit(EventUnauthorized, NoticePayload{Message: msgAuthFirst})
		return
	}

	var req joinRoomData
	if err := decodeData(data, &req); err != nil {
		s.emit(EventError, NoticePayload{Message: msgOtherUserMissing})
		return
	}
	other := strings.TrimSpace(req.OtherUserID)
	switch {
	case other == "":
		s.emit(EventError, NoticePayload{Message: msgOtherUserMissing})
		return
	case other == userID:
		s.emit(EventError, NoticePayload{Message: msgSelfRoom})
		return
	}

	roomID := room.CanonicalID(userID, other)
	if req.RoomID != "" && req.RoomID != roomID {
		s.logger.Debug("ignoring client room id", "client_room_id", req.RoomID, "room_id", roomID)
	}

	// Membership changes under s.mu so a concurrent Close sees either no
	// room or a room the session is already in.
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	previous := s.roomID
	s.roomID = roomID
	if previous != "" && previous != roomID {
		s.router.Leave(previous, s.id)
	}
	s.router.Join(roomID, s)
	s.mu.Unlock()

	s.logger.Debug("joined room", "user_id", userID, "room_id", roomID)
	s.emit(EventRoomJoined, RoomPayload{RoomID: roomID})
}

func (s *Session) leaveRoom(data json.RawMessage) {
	requested, _ := decodeStringOrField(data, "roomId")

	s.mu.Lock()
	current := s.roomID
	if current == "" || (requested != "" && requested != current) {
		s.mu.Unlock()
		return
	}
	s.roomID = ""
	s.mu.Unlock()

	s.router.Leave(current, s.id)
	s.logger.Debug("left room", "room_id", current)
	s.emit(EventRoomLeft, RoomPayload{RoomID: current})
}

func (s *Session) sendMessage(ctx context.Context, data json.RawMessage) {
	userID := s.UserID()
	if userID == "" {
		s.emit(EventUnauthorized, NoticePayload{Message: msgAuthFirst})
		return
	}

	var req sendMessageData
	if err := decodeData(data, &req); err != nil {
		s.emit(EventError, NoticePayload{Message: msgMalformed})
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		s.logger.Info("dropping empty message", "user_id", userID, "receiver_id", req.ReceiverID)
		return
	}

	if req.ClientMsgID != "" && s.dedupe != nil {
		if !s.dedupe.Claim(userID, req.ClientMsgID) {
			s.logger.Info("dropping duplicate message",
				"user_id", userID,
				"client_msg_id", req.ClientMsgID)
			return
		}
	}

	_, err := s.messages.SendMessage(ctx, conversation.SendRequest{
		SenderID:   userID,
		ReceiverID: req.ReceiverID,
		Body:       req.Message,
	})
	if err == nil {
		return
	}

	if req.ClientMsgID != "" && s.dedupe != nil {
		s.dedupe.Release(userID, req.ClientMsgID)
	}

	var verr *conversation.ValidationError
	var nf *conversation.NotFoundError
	switch {
	case errors.As(err, &verr):
		s.emit(EventError, NoticePayload{Message: verr.Message})
	case errors.As(err, &nf):
		s.emit(EventError, NoticePayload{Message: nf.Error()})
	default:
		s.logger.Error("send failed",
			"user_id", userID,
			"receiver_id", req.ReceiverID,
			"error", err)
		s.emit(EventError, NoticePayload{Message: msgSendFailed})
	}
}

func (s *Session) typing(data json.RawMessage) {
	userID := s.UserID()
	if userID == "" {
		return
	}

	var req typingData
	if err := decodeData(data, &req); err != nil || req.ReceiverID == "" {
		return
	}

	name := req.UserName
	if name == "" {
		name = userID
	}
	payload, err := encodeEvent(EventUserTyping, TypingPayload{User: name, IsTyping: req.IsTyping})
	if err != nil {
		return
	}
	s.router.Broadcast(room.CanonicalID(userID, req.ReceiverID), payload, s.id)
}

// Close leaves any joined room and closes the connection. Idempotent.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	roomID := s.roomID
	s.roomID = ""
	s.mu.Unlock()

	if roomID != "" {
		s.router.Leave(roomID, s.id)
	}
	s.out.Close()
	if s.onClose != nil {
		s.onClose(s)
	}
	s.logger.Debug("session closed")
}

func (s *Session) emit(event string, data any) {
	payload, err := encodeEvent(event, data)
	if err != nil {
		s.logger.Error("failed to encode event", "event", event, "error", err)
		return
	}
	if !s.out.Send(payload) {
		s.logger.Debug("outbound frame dropped", "event", event)
	}
}
