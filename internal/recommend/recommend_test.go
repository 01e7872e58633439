package recommend

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNormalizeWeightsSumsToOne(t *testing.T) {
	w := NormalizeWeights(Weights{Vector: 2, Recency: 1, Frequency: 1})
	require.InDelta(t, 1.0, w.Vector+w.Recency+w.Frequency, 1e-9)
	require.GreaterOrEqual(t, w.Vector, 0.0)
}

func TestNormalizeWeightsZeroSumFallsBackToDefault(t *testing.T) {
	w := NormalizeWeights(Weights{})
	require.Equal(t, DefaultWeights, w)
}

func TestRecencyDecay(t *testing.T) {
	require.InDelta(t, 0.5, RecencyScore(1000, 1000), 1e-6)
	require.InDelta(t, 1.0, RecencyScore(0, 1000), 1e-6)
}

func TestFrequencyScoreNoAccesses(t *testing.T) {
	require.Equal(t, 0.0, FrequencyScore(0, 0))
}

func TestScoreBlendsComponents(t *testing.T) {
	s := Score(Candidate{VectorScore: 1, AgeMs: 0, AccessCount: 10}, 10, 1000, Weights{Vector: 1, Recency: 0, Frequency: 0})
	require.InDelta(t, 1.0, s, 1e-9)
}
