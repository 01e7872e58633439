package cosine

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSimilarityIdentical(t *testing.T) {
	v := []float32{1, 2, 3}
	require.InDelta(t, 1.0, Similarity(v, v), 1e-9)
}

func TestSimilarityOrthogonal(t *testing.T) {
	require.InDelta(t, 0.0, Similarity([]float32{1, 0}, []float32{0, 1}), 1e-9)
}

func TestSimilarityOpposite(t *testing.T) {
	require.InDelta(t, -1.0, Similarity([]float32{1, 0}, []float32{-1, 0}), 1e-9)
}

func TestSimilarityMismatchedDimensions(t *testing.T) {
	require.Equal(t, 0.0, Similarity([]float32{1, 2}, []float32{1, 2, 3}))
}

func TestSimilarityZeroVector(t *testing.T) {
	require.Equal(t, 0.0, Similarity([]float32{0, 0}, []float32{1, 1}))
}

func TestSimilarityWithMagnitudeMatchesSimilarity(t *testing.T) {
	a := []float32{0.3, 0.4}
	b := []float32{1, 2}
	require.InDelta(t, Similarity(a, b), SimilarityWithMagnitude(a, Magnitude(a), b), 1e-9)
}
