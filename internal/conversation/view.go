// ABOUTME: Client-facing representations of stored messages
// ABOUTME: Shared by the REST API and the realtime receive-message event

package conversation

import (
	"time"

	"github.com/samber/lo"

	"github.com/2389/coven-chat/internal/store"
)

// Participant is the display identity attached to a message.
type Participant struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// MessageView is a stored message enriched with sender and receiver identity.
type MessageView struct {
	ID           string      `json:"id"`
	SenderID     string      `json:"sender_id"`
	ReceiverID   string      `json:"receiver_id"`
	Message      string      `json:"message"`
	CreatedAt    time.Time   `json:"created_at"`
	Sender       Participant `json:"sender"`
	Receiver     Participant `json:"receiver"`
	HasEmbedding bool        `json:"has_embedding"`
}

// SearchResult is one ranked hit of a semantic search.
type SearchResult struct {
	ID           string    `json:"id"`
	Message      string    `json:"message"`
	CreatedAt    time.Time `json:"created_at"`
	SenderID     string    `json:"sender_id"`
	ReceiverID   string    `json:"receiver_id"`
	SenderName   string    `json:"sender_name"`
	ReceiverName string    `json:"receiver_name"`
	Score        float64   `json:"score"`
}

// History is a conversation listing together with the requesting user.
type History struct {
	User     Participant    `json:"user"`
	Messages []*MessageView `json:"messages"`
}

// NewMessageView converts a stored message.
func NewMessageView(m *store.Message) *MessageView {
	return &MessageView{
		ID:           m.ID,
		SenderID:     m.SenderID,
		ReceiverID:   m.ReceiverID,
		Message:      m.Body,
		CreatedAt:    m.CreatedAt,
		Sender:       Participant{ID: m.SenderID, Name: m.SenderName},
		Receiver:     Participant{ID: m.ReceiverID, Name: m.ReceiverName},
		HasEmbedding: m.HasEmbedding(),
	}
}

func toViews(msgs []*store.Message) []*MessageView {
	return lo.Map(msgs, func(m *store.Message, _ int) *MessageView {
		return NewMessageView(m)
	})
}
