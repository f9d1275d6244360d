// ABOUTME: HTTP middleware for JWT authentication on API endpoints
// ABOUTME: Extracts JWT from Authorization header and adds the user to context

package auth

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/2389/coven-chat/internal/store"
)

// UserStore resolves the user a token was issued to.
type UserStore interface {
	GetUser(ctx context.Context, id string) (*store.User, error)
}

// ExtractBearerToken extracts a bearer token from the Authorization header.
// Returns the token and an error message (empty if successful).
func ExtractBearerToken(authHeader string) (string, string) {
	if authHeader == "" {
		return "", "missing authorization header"
	}
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return "", "invalid authorization header format"
	}
	token := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
	if token == "" {
		return "", "empty token"
	}
	return token, ""
}

func writeAuthError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{"success": false, "error": msg})
}

// HTTPAuthMiddleware creates an HTTP middleware that extracts and validates JWT
// tokens, resolves the user and stores the Caller on the request context.
// Pass nil logger to disable failure logging.
func HTTPAuthMiddleware(users UserStore, verifier TokenVerifier, logger *slog.Logger) func(http.Handler) http.Handler {
	logFailure := func(r *http.Request, reason string, args ...any) {
		if logger == nil {
			return
		}
		attrs := append([]any{
			"reason", reason,
			"method", r.Method,
			"path", r.URL.Path,
			"remote_addr", r.RemoteAddr,
		}, args...)
		logger.Warn("http auth failure", attrs...)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, errMsg := ExtractBearerToken(r.Header.Get("Authorization"))
			if errMsg != "" {
				logFailure(r, "token_extraction_failed", "detail", errMsg)
				writeAuthError(w, http.StatusUnauthorized, errMsg)
				return
			}

			userID, err := verifier.Verify(token)
			if err != nil {
				logFailure(r, "token_invalid", "error", err)
				writeAuthError(w, http.StatusUnauthorized, "invalid token")
				return
			}

			user, err := users.GetUser(r.Context(), userID)
			if err != nil {
				if errors.Is(err, store.ErrNotFound) {
					logFailure(r, "user_not_found", "user_id", userID)
					writeAuthError(w, http.StatusUnauthorized, "user not found")
					return
				}
				logFailure(r, "user_lookup_failed", "user_id", userID, "error", err)
				writeAuthError(w, http.StatusInternalServerError, "authentication unavailable")
				return
			}

			caller := &Caller{UserID: user.ID, Name: user.Name}
			next.ServeHTTP(w, r.WithContext(WithCaller(r.Context(), caller)))
		})
	}
}
