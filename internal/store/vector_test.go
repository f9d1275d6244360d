// ABOUTME: Tests for the embedding vector codec
// ABOUTME: Covers round trips, dimension checks and non-finite rejection

package store

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVectorCodec_RoundTrip(t *testing.T) {
	in := []float32{0, 1, -1, 0.123456, math.MaxFloat32}

	blob, err := encodeVector(in, len(in))
	require.NoError(t, err)
	assert.Len(t, blob, len(in)*4)

	out, err := decodeVector(blob)
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestVectorCodec_Rejections(t *testing.T) {
	tests := []struct {
		name string
		in   []float32
		dims int
	}{
		{"empty", nil, 0},
		{"dimension mismatch", []float32{1, 2, 3}, 4},
		{"NaN", []float32{1, float32(math.NaN())}, 0},
		{"infinity", []float32{float32(math.Inf(1))}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := encodeVector(tt.in, tt.dims)
			assert.ErrorIs(t, err, ErrVectorRejected)
		})
	}
}

func TestDecodeVector_Corrupt(t *testing.T) {
	_, err := decodeVector([]byte{1, 2, 3})
	assert.Error(t, err)

	v, err := decodeVector(nil)
	require.NoError(t, err)
	assert.Nil(t, v)
}
