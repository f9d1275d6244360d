// ABOUTME: REST handlers for sending, listing and searching direct messages
// ABOUTME: Maps conversation errors onto status codes inside the {success, data} envelope

package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/2389/coven-chat/internal/auth"
	"github.com/2389/coven-chat/internal/conversation"
	"github.com/2389/coven-chat/internal/embedding"
)

// IdempotencyKeyHeader names the optional header that deduplicates POST /api/messages.
const IdempotencyKeyHeader = "Idempotency-Key"

var validate = validator.New()

// SendMessageRequest is the JSON request body for POST /api/messages.
type SendMessageRequest struct {
	SenderID   string `json:"senderId" validate:"required"`
	ReceiverID string `json:"receiverId" validate:"required"`
	Message    string `json:"message" validate:"required"`
}

// DataResponse is the success envelope.
type DataResponse struct {
	Success bool `json:"success"`
	Data    any  `json:"data"`
}

// HistoryResponse is the JSON response for GET /api/messages.
type HistoryResponse struct {
	Success bool                        `json:"success"`
	Data    []*conversation.MessageView `json:"data"`
	User    conversation.Participant    `json:"user"`
}

// ErrorResponse is the failure envelope.
type ErrorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

// handleMessages routes /api/messages by method.
func (g *Gateway) handleMessages(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		g.handleSendMessage(w, r)
	case http.MethodGet:
		g.handleHistory(w, r)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// handleSendMessage handles POST /api/messages.
func (g *Gateway) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	caller := auth.MustCaller(r.Context())

	var req SendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		g.sendJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := validate.Struct(req); err != nil {
		g.sendJSONError(w, http.StatusBadRequest, "senderId, receiverId, and message are required")
		return
	}

	if strings.TrimSpace(req.SenderID) != caller.UserID {
		g.logger.Warn("rejected send on behalf of another user",
			"user_id", caller.UserID,
			"sender_id", req.SenderID)
		g.sendJSONError(w, http.StatusForbidden, "Cannot send messages as another user")
		return
	}

	key := strings.TrimSpace(r.Header.Get(IdempotencyKeyHeader))
	if key != "" && !g.dedupe.Claim(caller.UserID, key) {
		g.logger.Info("duplicate send rejected", "user_id", caller.UserID, "idempotency_key", key)
		g.sendJSONError(w, http.StatusConflict, "Duplicate request")
		return
	}

	view, err := g.conversation.SendMessage(r.Context(), conversation.SendRequest{
		SenderID:   caller.UserID,
		ReceiverID: req.ReceiverID,
		Body:       req.Message,
	})
	if err != nil {
		if key != "" {
			g.dedupe.Release(caller.UserID, key)
		}
		g.writeServiceError(w, err, "Failed to send message")
		return
	}

	g.sendJSON(w, http.StatusCreated, DataResponse{Success: true, Data: view})
}

// handleHistory handles GET /api/messages?userId=&otherUserId=&limit=.
func (g *Gateway) handleHistory(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	userID, ok := g.authorizeUserParam(w, r)
	if !ok {
		return
	}

	limit, ok := g.parsePositiveInt(w, q.Get("limit"), "limit")
	if !ok {
		return
	}

	history, err := g.conversation.History(r.Context(), userID, q.Get("otherUserId"), limit)
	if err != nil {
		g.writeServiceError(w, err, "Failed to fetch messages")
		return
	}

	g.sendJSON(w, http.StatusOK, HistoryResponse{
		Success: true,
		Data:    history.Messages,
		User:    history.User,
	})
}

// handleSearch handles GET /api/messages/search?userId=&q=&k=.
func (g *Gateway) handleSearch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	q := r.URL.Query()
	userID, ok := g.authorizeUserParam(w, r)
	if !ok {
		return
	}

	k, ok := g.parsePositiveInt(w, q.Get("k"), "k")
	if !ok {
		return
	}

	results, err := g.conversation.Search(r.Context(), userID, q.Get("q"), k)
	if err != nil {
		g.writeServiceError(w, err, "Failed to search messages")
		return
	}

	g.sendJSON(w, http.StatusOK, DataResponse{Success: true, Data: results})
}

// authorizeUserParam reads the required userId parameter and checks it
// belongs to the caller.
func (g *Gateway) authorizeUserParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	caller := auth.MustCaller(r.Context())

	userID := strings.TrimSpace(r.URL.Query().Get("userId"))
	if userID == "" {
		g.sendJSONError(w, http.StatusBadRequest, "userId query parameter is required")
		return "", false
	}
	if userID != caller.UserID {
		g.logger.Warn("rejected read of another user's messages",
			"user_id", caller.UserID,
			"requested_user_id", userID)
		g.sendJSONError(w, http.StatusForbidden, "Cannot read another user's messages")
		return "", false
	}
	return userID, true
}

// parsePositiveInt parses an optional positive integer parameter. Empty means 0.
func (g *Gateway) parsePositiveInt(w http.ResponseWriter, raw, name string) (int, bool) {
	if raw == "" {
		return 0, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		g.sendJSONError(w, http.StatusBadRequest, name+" must be a positive integer")
		return 0, false
	}
	return n, true
}

// writeServiceError maps a conversation error onto a status code. Internal
// detail is logged, never returned.
func (g *Gateway) writeServiceError(w http.ResponseWriter, err error, fallback string) {
	var verr *conversation.ValidationError
	var nf *conversation.NotFoundError
	switch {
	case errors.As(err, &verr):
		g.sendJSONError(w, http.StatusBadRequest, verr.Message)
	case errors.As(err, &nf):
		g.sendJSONError(w, http.StatusNotFound, nf.Error())
	case errors.Is(err, embedding.ErrUnavailable), errors.Is(err, context.DeadlineExceeded):
		g.logger.Warn("embedding unavailable", "error", err)
		g.sendJSONError(w, http.StatusServiceUnavailable, "Search is temporarily unavailable")
	default:
		g.logger.Error(strings.ToLower(fallback), "error", err)
		g.sendJSONError(w, http.StatusInternalServerError, fallback)
	}
}

// sendJSON writes a JSON response with the given status.
func (g *Gateway) sendJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		g.logger.Debug("failed to write response", "error", err)
	}
}

// sendJSONError writes a JSON error response.
func (g *Gateway) sendJSONError(w http.ResponseWriter, status int, message string) {
	g.sendJSON(w, status, ErrorResponse{Success: false, Error: message})
}
