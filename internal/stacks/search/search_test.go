package search

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"vellum/internal/invertedindex"
	"vellum/internal/metadataindex"
	"vellum/internal/stacks"
	"vellum/internal/storage"
)

func newFixture(t *testing.T) (*stacks.Stacks, *Search) {
	t.Helper()
	s := stacks.New(storage.NewMemoryBackend(), stacks.Options{Dimensions: 2})
	require.NoError(t, s.Load(context.Background()))
	return s, New(s)
}

func TestVectorSearchFiltersAndSorts(t *testing.T) {
	s, sr := newFixture(t)
	ctx := context.Background()

	idA, _ := s.Add(ctx, "close", []float32{1, 0}, nil, nil)
	idB, _ := s.Add(ctx, "far", []float32{0, 1}, nil, nil)

	hits := sr.Vector([]float32{1, 0}, Options{MaxResults: 10})
	require.Len(t, hits, 2)
	require.Equal(t, idA, hits[0].Volume.ID)
	require.InDelta(t, 1.0, hits[0].Score, 1e-9)
	require.Equal(t, idB, hits[1].Volume.ID)
}

func TestVectorSearchAppliesSimilarityThreshold(t *testing.T) {
	s, sr := newFixture(t)
	ctx := context.Background()
	s.Add(ctx, "orthogonal", []float32{0, 1}, nil, nil)

	hits := sr.Vector([]float32{1, 0}, Options{SimilarityThreshold: 0.5})
	require.Empty(t, hits)
}

func TestTextSearchRanksByBM25(t *testing.T) {
	s, sr := newFixture(t)
	ctx := context.Background()
	s.Add(ctx, "apple", []float32{1, 0}, nil, nil)
	idB, _ := s.Add(ctx, "apple banana banana", []float32{0, 1}, nil, nil)

	hits := sr.Text("banana", invertedindex.DefaultParams, Options{})
	require.Len(t, hits, 1)
	require.Equal(t, idB, hits[0].Volume.ID)
}

func TestHybridBlendsVectorAndText(t *testing.T) {
	s, sr := newFixture(t)
	ctx := context.Background()
	idA, _ := s.Add(ctx, "apple pie recipe", []float32{1, 0}, nil, nil)
	s.Add(ctx, "banana bread", []float32{0, 1}, nil, nil)

	hits := sr.Hybrid([]float32{1, 0}, "apple", Options{MaxResults: 10})
	require.NotEmpty(t, hits)
	require.Equal(t, idA, hits[0].Volume.ID)
}

func TestHybridAlphaZeroDisablesVectorContribution(t *testing.T) {
	s, sr := newFixture(t)
	ctx := context.Background()
	// "unrelated" is the closer vector match but has no lexical overlap with
	// the query text; "banana bread" (idFar) is the worse vector match but
	// matches the query text exactly. With Alpha explicitly 0 the vector
	// score must not be able to pull "unrelated" ahead of it.
	idFar, _ := s.Add(ctx, "banana bread", []float32{0, 1}, nil, nil)
	s.Add(ctx, "unrelated", []float32{1, 0}, nil, nil)

	zero := 0.0
	hits := sr.Hybrid([]float32{1, 0}, "banana bread", Options{MaxResults: 10, Alpha: &zero})
	require.NotEmpty(t, hits)
	require.Equal(t, idFar, hits[0].Volume.ID)
}

func TestMetadataFilterNarrowsVectorSearch(t *testing.T) {
	s, sr := newFixture(t)
	ctx := context.Background()
	s.Add(ctx, "a", []float32{1, 0}, map[string]string{"shelf": "work"}, nil)
	s.Add(ctx, "b", []float32{1, 0}, map[string]string{"shelf": "home"}, nil)

	hits := sr.Vector([]float32{1, 0}, Options{MetadataFilters: []metadataindex.Filter{
		{Key: "shelf", Mode: metadataindex.Eq, Value: "work"},
	}})
	require.Len(t, hits, 1)
	require.Equal(t, "work", hits[0].Volume.Metadata["shelf"])
}

func TestParseQueryExtractsClauses(t *testing.T) {
	pq := ParseQuery("free text +tag:x -topic:y/z score>0.5")
	require.Equal(t, "free text", pq.Text)
	require.Len(t, pq.MetadataFilters, 2)
	require.InDelta(t, 0.5, pq.MinScore, 1e-9)
}

func TestParseQueryDateClauses(t *testing.T) {
	pq := ParseQuery("after:2025-01-01 before:2025-12-31 hello")
	require.NotNil(t, pq.DateRange)
	require.NotNil(t, pq.DateRange.After)
	require.NotNil(t, pq.DateRange.Before)
	require.Equal(t, "hello", pq.Text)
}
