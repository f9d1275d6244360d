// ABOUTME: Mock Store implementation for testing
// ABOUTME: Allows tests to run without SQLite and to inject write failures

package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// MockStore is an in-memory Store implementation for testing.
type MockStore struct {
	mu       sync.RWMutex
	users    map[string]*User    // keyed by user ID
	messages map[string]*Message // keyed by message ID
	order    []string            // message IDs in insertion order
	clock    time.Time

	// CreateErr, when set, fails every CreateMessage call.
	CreateErr error
	// RejectVectors makes every vector write fail with ErrVectorRejected,
	// exercising the retry-without-vector path.
	RejectVectors bool
	// CreateCalls counts CreateMessage invocations that reached the store.
	CreateCalls int
}

// NewMockStore creates a new MockStore.
func NewMockStore() *MockStore {
	return &MockStore{
		users:    make(map[string]*User),
		messages: make(map[string]*Message),
		clock:    time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

// CreateUser stores a new user.
func (m *MockStore) CreateUser(ctx context.Context, user *User) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.users[user.ID]; ok {
		return ErrDuplicateUser
	}
	u := *user
	m.users[u.ID] = &u
	return nil
}

// GetUser retrieves a user by ID.
func (m *MockStore) GetUser(ctx context.Context, id string) (*User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	u, ok := m.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	result := *u
	return &result, nil
}

// CreateMessage appends a message, honoring the injected failures.
func (m *MockStore) CreateMessage(ctx context.Context, in *NewMessage) (*Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.CreateCalls++
	if err := validateNewMessage(in); err != nil {
		return nil, err
	}
	if m.CreateErr != nil {
		return nil, m.CreateErr
	}

	sender, ok := m.users[in.SenderID]
	if !ok {
		return nil, fmt.Errorf("inserting message: sender %s: %w", in.SenderID, ErrNotFound)
	}
	receiver, ok := m.users[in.ReceiverID]
	if !ok {
		return nil, fmt.Errorf("inserting message: receiver %s: %w", in.ReceiverID, ErrNotFound)
	}

	// Advance a synthetic clock so ordering is deterministic
	m.clock = m.clock.Add(time.Millisecond)
	msg := &Message{
		ID:           newMessageID(),
		SenderID:     in.SenderID,
		ReceiverID:   in.ReceiverID,
		SenderName:   sender.Name,
		ReceiverName: receiver.Name,
		Body:         in.Body,
		CreatedAt:    m.clock,
	}
	if len(in.Embedding) > 0 && !m.RejectVectors {
		msg.Embedding = append([]float32(nil), in.Embedding...)
	}

	m.messages[msg.ID] = msg
	m.order = append(m.order, msg.ID)

	result := *msg
	return &result, nil
}

// GetMessage retrieves a message by ID.
func (m *MockStore) GetMessage(ctx context.Context, id string) (*Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	msg, ok := m.messages[id]
	if !ok {
		return nil, ErrNotFound
	}
	result := *msg
	return &result, nil
}

// ListConversation mirrors SQLiteStore.ListConversation.
func (m *MockStore) ListConversation(ctx context.Context, q ConversationQuery) ([]*Message, error) {
	limit := q.Limit
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}

	result := m.filter(func(msg *Message) bool {
		if q.PeerID == "" {
			return msg.SenderID == q.UserID || msg.ReceiverID == q.UserID
		}
		return (msg.SenderID == q.UserID && msg.ReceiverID == q.PeerID) ||
			(msg.SenderID == q.PeerID && msg.ReceiverID == q.UserID)
	})
	if len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

// ListSearchCandidates mirrors SQLiteStore.ListSearchCandidates.
func (m *MockStore) ListSearchCandidates(ctx context.Context, userID string) ([]*Message, error) {
	return m.filter(func(msg *Message) bool {
		return msg.SenderID == userID || msg.ReceiverID == userID
	}), nil
}

// filter returns copies of matching messages sorted by (created_at, id).
func (m *MockStore) filter(keep func(*Message) bool) []*Message {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []*Message
	for _, id := range m.order {
		msg := m.messages[id]
		if keep(msg) {
			c := *msg
			result = append(result, &c)
		}
	}
	sort.SliceStable(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.Before(result[j].CreatedAt)
		}
		return result[i].ID < result[j].ID
	})
	return result
}

// Ping always succeeds.
func (m *MockStore) Ping(ctx context.Context) error { return nil }

// Close is a no-op.
func (m *MockStore) Close() error { return nil }
