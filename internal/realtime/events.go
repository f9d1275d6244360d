// ABOUTME: Wire format for the realtime channel
// ABOUTME: JSON envelopes carrying inbound commands and server-emitted events

package realtime

import (
	"encoding/json"
	"errors"
	"strings"
)

// Inbound event names.
const (
	EventAuthenticate = "authenticate"
	EventJoinRoom     = "join-room"
	EventLeaveRoom    = "leave-room"
	EventSendMessage  = "send-message"
	EventTyping       = "typing"
)

// Outbound event names.
const (
	EventAuthenticated  = "authenticated"
	EventRoomJoined     = "room-joined"
	EventRoomLeft       = "room-left"
	EventReceiveMessage = "receive-message"
	EventUserTyping     = "user-typing"
	EventUnauthorized   = "unauthorized"
	EventError          = "error"
)

// Client-visible messages.
const (
	msgAuthFailed       = "Authentication failed"
	msgAuthFirst        = "Please authenticate first"
	msgSendFailed       = "Failed to send message"
	msgMalformed        = "Malformed event"
	msgOtherUserMissing = "otherUserId is required"
	msgSelfRoom         = "Cannot join a room with yourself"
)

// inbound is a frame received from a client.
type inbound struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// outbound is a frame sent to a client.
type outbound struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

type joinRoomData struct {
	OtherUserID string `json:"otherUserId"`
	RoomID      string `json:"roomId,omitempty"`
}

type sendMessageData struct {
	ReceiverID  string `json:"receiver_id"`
	Message     string `json:"message"`
	ClientMsgID string `json:"client_msg_id,omitempty"`
}

type typingData struct {
	ReceiverID string `json:"receiver_id"`
	IsTyping   bool   `json:"isTyping"`
	UserName   string `json:"userName"`
}

// AuthenticatedPayload confirms the identity bound to the connection.
type AuthenticatedPayload struct {
	UserID string `json:"userId"`
}

// RoomPayload names a room in room-joined and room-left.
type RoomPayload struct {
	RoomID string `json:"roomId"`
}

// TypingPayload is delivered to the other members of a room.
type TypingPayload struct {
	User     string `json:"user"`
	IsTyping bool   `json:"isTyping"`
}

// NoticePayload carries unauthorized and error messages.
type NoticePayload struct {
	Message string `json:"message"`
}

var errEmptyData = errors.New("missing event data")

// encodeEvent builds an outbound frame.
func encodeEvent(event string, data any) ([]byte, error) {
	return json.Marshal(outbound{Event: event, Data: data})
}

// decodeStringOrField accepts either a bare JSON string or an object holding
// the value under field. authenticate and leave-room accept both forms.
func decodeStringOrField(raw json.RawMessage, field string) (string, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return "", errEmptyData
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s), nil
	}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil {
		return "", err
	}
	value, ok := obj[field]
	if !ok {
		return "", errEmptyData
	}
	if err := json.Unmarshal(value, &s); err != nil {
		return "", err
	}
	return strings.TrimSpace(s), nil
}

func decodeData(raw json.RawMessage, v any) error {
	if len(raw) == 0 || string(raw) == "null" {
		return errEmptyData
	}
	return json.Unmarshal(raw, v)
}
