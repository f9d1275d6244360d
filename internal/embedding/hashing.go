// ABOUTME: Deterministic feature-hashing embedding provider
// ABOUTME: Works offline; used for development and as a test double

package embedding

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
)

// Hashing embeds text with the hashing trick: each lowercased token is
// hashed into one of Dims buckets and the result is L2-normalized.
// Texts sharing words get a positive cosine similarity.
type Hashing struct {
	Dims int
}

// NewHashing creates a hashing provider with the given vector length.
func NewHashing(dims int) *Hashing {
	if dims <= 0 {
		dims = DefaultDimensions
	}
	return &Hashing{Dims: dims}
}

// Dimensions returns the vector length.
func (h *Hashing) Dimensions() int { return h.Dims }

// Embed never fails for non-empty text.
func (h *Hashing) Embed(ctx context.Context, text string) ([]float32, error) {
	input, err := normalizeInput(text)
	if err != nil {
		return nil, err
	}

	vec := make([]float32, h.Dims)
	for _, word := range strings.Fields(strings.ToLower(input)) {
		word = strings.Trim(word, ".,!?;:\"'()[]{}")
		if word == "" {
			continue
		}
		hasher := fnv.New32a()
		hasher.Write([]byte(word))
		vec[int(hasher.Sum32()%uint32(h.Dims))] += 1
	}

	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm == 0 {
		// Only punctuation: fall back to a fixed unit vector
		vec[0] = 1
		return vec, nil
	}
	scale := float32(1 / math.Sqrt(norm))
	for i := range vec {
		vec[i] *= scale
	}
	return vec, nil
}
