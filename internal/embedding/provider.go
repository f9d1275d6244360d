// ABOUTME: Embedding provider capability and the always-unavailable provider
// ABOUTME: All provider failures wrap ErrUnavailable

package embedding

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrUnavailable is returned when no embedding could be produced.
var ErrUnavailable = errors.New("embedding unavailable")

// Provider maps text to a fixed-length vector.
type Provider interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dimensions() int
}

// Disabled is a Provider that never produces embeddings.
type Disabled struct {
	Dims int
}

// Embed always fails with ErrUnavailable.
func (d Disabled) Embed(ctx context.Context, text string) ([]float32, error) {
	return nil, fmt.Errorf("%w: provider disabled", ErrUnavailable)
}

// Dimensions returns the configured vector length.
func (d Disabled) Dimensions() int { return d.Dims }

// normalizeInput trims text and rejects empty input.
func normalizeInput(text string) (string, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty input text", ErrUnavailable)
	}
	return trimmed, nil
}
