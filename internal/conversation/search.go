// ABOUTME: Semantic search over a user's messages
// ABOUTME: Ranks by 1 - cosine distance; unembedded messages always rank last with score 0

package conversation

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/samber/lo"

	"github.com/2389/coven-chat/internal/embedding"
	"github.com/2389/coven-chat/internal/store"
)

// Search returns the k messages touching userID most similar to query.
// An empty query is rejected before the provider is called. Provider failure
// is returned wrapping embedding.ErrUnavailable.
func (s *Service) Search(ctx context.Context, userID, query string, k int) ([]*SearchResult, error) {
	userID = strings.TrimSpace(userID)
	query = strings.TrimSpace(query)
	switch {
	case userID == "":
		return nil, invalid("userId query parameter is required")
	case query == "":
		return nil, invalid("q query parameter is required")
	}

	if err := s.requireUser(ctx, userID, "User"); err != nil {
		return nil, err
	}

	embedCtx, cancel := context.WithTimeout(ctx, s.cfg.EmbedTimeout)
	queryVec, err := s.embedder.Embed(embedCtx, query)
	cancel()
	if err != nil {
		s.logger.Warn("search embedding failed", "user_id", userID, "error", err)
		return nil, fmt.Errorf("embedding search query: %w", err)
	}

	candidates, err := s.store.ListSearchCandidates(ctx, userID)
	if err != nil {
		s.logger.Error("failed to load search candidates", "user_id", userID, "error", err)
		return nil, fmt.Errorf("%w: %w", ErrPersistence, err)
	}

	ranked := rank(candidates, queryVec)
	if limit := s.clampK(k); len(ranked) > limit {
		ranked = ranked[:limit]
	}

	s.logger.Debug("search completed",
		"user_id", userID,
		"candidates", len(candidates),
		"results", len(ranked))

	return lo.Map(ranked, func(h scored, _ int) *SearchResult {
		return &SearchResult{
			ID:           h.msg.ID,
			Message:      h.msg.Body,
			CreatedAt:    h.msg.CreatedAt,
			SenderID:     h.msg.SenderID,
			ReceiverID:   h.msg.ReceiverID,
			SenderName:   h.msg.SenderName,
			ReceiverName: h.msg.ReceiverName,
			Score:        h.score,
		}
	}), nil
}

func (s *Service) clampK(k int) int {
	if k <= 0 {
		return s.cfg.DefaultK
	}
	return min(k, s.cfg.MaxK)
}

type scored struct {
	msg      *store.Message
	score    float64
	embedded bool
}

// rank orders candidates: comparable embedded messages first by descending
// score, then everything else. Ties fall back to (created_at, id) ascending.
// Embedded scores are the raw 1 - cosine distance and may be negative; the
// unembedded tail always follows with score 0.
func rank(candidates []*store.Message, query []float32) []scored {
	hits := lo.Map(candidates, func(m *store.Message, _ int) scored {
		score, ok := embedding.Score(m.Embedding, query)
		if !ok {
			return scored{msg: m}
		}
		return scored{msg: m, score: score, embedded: true}
	})

	slices.SortStableFunc(hits, func(a, b scored) int {
		if a.embedded != b.embedded {
			if a.embedded {
				return -1
			}
			return 1
		}
		if a.score != b.score {
			if a.score > b.score {
				return -1
			}
			return 1
		}
		if c := a.msg.CreatedAt.Compare(b.msg.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.msg.ID, b.msg.ID)
	})
	return hits
}
