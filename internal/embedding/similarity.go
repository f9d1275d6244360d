// ABOUTME: Vector similarity used to rank semantic search results
// ABOUTME: Score is 1 - cosine distance

package embedding

import "math"

// Score returns 1 - cosineDistance(a, b), which equals the cosine similarity.
// ok is false when the vectors cannot be compared (length mismatch, empty,
// or zero magnitude).
func Score(a, b []float32) (score float64, ok bool) {
	if len(a) == 0 || len(a) != len(b) {
		return 0, false
	}

	var dot, normA, normB float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		normA += x * x
		normB += y * y
	}
	if normA == 0 || normB == 0 {
		return 0, false
	}

	distance := 1 - dot/(math.Sqrt(normA)*math.Sqrt(normB))
	return 1 - distance, true
}
