// Package embedding maps message text to fixed-length vectors for semantic search.
//
// # Provider
//
// Provider is the capability the rest of the service depends on:
//
//	vec, err := provider.Embed(ctx, "hello there")
//
// Any failure (network error, timeout, bad response, missing credentials)
// is reported as an error wrapping ErrUnavailable. Callers decide whether
// that is fatal: the send path stores the message without a vector, the
// search path reports the failure.
//
// # Implementations
//
//   - HuggingFace: hosted feature-extraction (sentence-transformers/all-MiniLM-L6-v2 by default)
//   - Hashing: deterministic feature hashing, offline and dependency free
//   - Disabled: always unavailable
//
// # Similarity
//
// Score returns 1 - cosine distance, i.e. the cosine similarity of two
// vectors of equal length.
package embedding
