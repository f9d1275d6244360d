// ABOUTME: Error taxonomy for the conversation layer
// ABOUTME: Transports map these to status codes and realtime error events

package conversation

import (
	"errors"
	"fmt"

	"github.com/2389/coven-chat/internal/store"
)

// ErrPersistence wraps any failure of the message store during a send or query.
var ErrPersistence = errors.New("persistence failure")

// ValidationError reports a request rejected before touching the store.
// Message is safe to show to clients.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

// NotFoundError reports an unknown user. Role is "Sender", "Receiver" or "User".
type NotFoundError struct {
	Role string
	ID   string
}

func (e *NotFoundError) Error() string { return fmt.Sprintf("%s not found", e.Role) }

// Unwrap lets callers match store.ErrNotFound.
func (e *NotFoundError) Unwrap() error { return store.ErrNotFound }

func invalid(msg string) error { return &ValidationError{Message: msg} }
