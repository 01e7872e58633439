package learning

import (
	"testing"

	"github.com/stretchr/testify/require"

	"vellum/internal/recommend"
)

func TestNewEngineFreshState(t *testing.T) {
	e := New(nil)
	require.Equal(t, recommend.DefaultWeights, e.CurrentWeights(""))
	require.Equal(t, int64(0), e.State().TotalQueries)
}

func TestRecordImplicitUpdatesFeedbackAndHistory(t *testing.T) {
	e := New(nil, WithClock(func() int64 { return 1000 }))
	e.RecordImplicit([]float32{1, 0}, []string{"a", "b"}, "")

	st := e.State()
	require.Equal(t, int64(1), st.Feedback["a"].TotalRetrievals)
	require.Equal(t, int64(1), st.Feedback["b"].QueryCount)
	require.Len(t, st.QueryHistory, 1)
	require.Equal(t, int64(1000), st.QueryHistory[0].Timestamp)
	require.Equal(t, int64(1), st.TotalQueries)
}

func TestQueryHistoryBounded(t *testing.T) {
	e := New(nil, WithHistoryCapacity(3), WithAdaptEveryN(1000))
	for i := 0; i < 10; i++ {
		e.RecordImplicit([]float32{1, 0}, nil, "")
	}
	require.Len(t, e.State().QueryHistory, 3)
}

func TestTopicProfileInterestEmbeddingTracksQueries(t *testing.T) {
	e := New(nil, WithAdaptEveryN(1000))
	e.RecordImplicit([]float32{1, 0}, nil, "go")
	e.RecordImplicit([]float32{0, 1}, nil, "go")

	p := e.State().TopicProfiles["go"]
	require.Equal(t, int64(2), p.QueryCount)
	require.Len(t, p.InterestEmbedding, 2)
}

func TestRecordFeedbackCounters(t *testing.T) {
	e := New(nil)
	e.RecordFeedback("a", true)
	e.RecordFeedback("a", true)
	e.RecordFeedback("a", false)

	fb := e.State().ExplicitFeedback["a"]
	require.Equal(t, int64(2), fb.PositiveCount)
	require.Equal(t, int64(1), fb.NegativeCount)
}

func TestAdaptWeightsStaysNormalized(t *testing.T) {
	e := New(nil)
	e.ObserveRecommendationScore(0.9)
	e.ObserveRecommendationScore(0.8)
	e.AdaptWeights("")

	w := e.CurrentWeights("")
	require.InDelta(t, 1.0, w.Vector+w.Recency+w.Frequency, 1e-9)
	require.GreaterOrEqual(t, w.Vector, 0.0)
	require.GreaterOrEqual(t, w.Recency, 0.0)
	require.GreaterOrEqual(t, w.Frequency, 0.0)
}

func TestAdaptWeightsTriggersEveryN(t *testing.T) {
	e := New(nil, WithAdaptEveryN(2))
	e.ObserveRecommendationScore(1.0)
	before := e.CurrentWeights("")
	e.RecordImplicit([]float32{1}, nil, "")
	e.RecordImplicit([]float32{1}, nil, "")
	after := e.CurrentWeights("")
	// Adaptation ran at the 2nd query: with a mean observed score of 1 the
	// surrogate favours vector emphasis, so the vector weight rose, and the
	// weights remain a valid normalized profile.
	require.InDelta(t, 1.0, after.Vector+after.Recency+after.Frequency, 1e-9)
	require.Greater(t, after.Vector, before.Vector)
}
