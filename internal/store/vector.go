// ABOUTME: Fixed-width binary codec for message embedding vectors
// ABOUTME: Vectors are stored as little-endian float32 blobs

package store

import (
	"encoding/binary"
	"fmt"
	"math"
)

const float32Size = 4

// encodeVector packs v into a little-endian float32 blob.
// If dims > 0 the vector must have exactly dims components.
// Every failure here is vector-specific and wraps ErrVectorRejected.
func encodeVector(v []float32, dims int) ([]byte, error) {
	if len(v) == 0 {
		return nil, fmt.Errorf("%w: empty vector", ErrVectorRejected)
	}
	if dims > 0 && len(v) != dims {
		return nil, fmt.Errorf("%w: got %d dimensions, want %d", ErrVectorRejected, len(v), dims)
	}

	buf := make([]byte, len(v)*float32Size)
	for i, f := range v {
		if math.IsNaN(float64(f)) || math.IsInf(float64(f), 0) {
			return nil, fmt.Errorf("%w: non-finite component at %d", ErrVectorRejected, i)
		}
		binary.LittleEndian.PutUint32(buf[i*float32Size:], math.Float32bits(f))
	}
	return buf, nil
}

// decodeVector unpacks a blob written by encodeVector. A nil blob yields nil.
func decodeVector(b []byte) ([]float32, error) {
	if len(b) == 0 {
		return nil, nil
	}
	if len(b)%float32Size != 0 {
		return nil, fmt.Errorf("corrupt vector blob of %d bytes", len(b))
	}

	v := make([]float32, len(b)/float32Size)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*float32Size:]))
	}
	return v, nil
}
