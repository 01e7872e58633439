package library

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"vellum/internal/config"
	"vellum/internal/stacks/search"
	"vellum/internal/storage"
)

type stubEmbedder struct {
	vectors map[string][]float32
	next    []float32
}

func (s *stubEmbedder) Embed(ctx context.Context, inputs []string) ([][]float32, error) {
	out := make([][]float32, len(inputs))
	for i, in := range inputs {
		if v, ok := s.vectors[in]; ok {
			out[i] = v
			continue
		}
		if s.next != nil {
			out[i] = s.next
			continue
		}
		out[i] = []float32{1, 0}
	}
	return out, nil
}

func newTestLibrary(t *testing.T, emb *stubEmbedder) *Library {
	t.Helper()
	cfg := config.Config{Dimensions: 2}
	lib := New(storage.NewMemoryBackend(), emb, cfg)
	require.NoError(t, lib.Initialize(context.Background()))
	return lib
}

func TestAddAndGetByID(t *testing.T) {
	lib := newTestLibrary(t, &stubEmbedder{vectors: map[string][]float32{"hello": {1, 0}}})
	id, err := lib.Add(context.Background(), "hello", nil)
	require.NoError(t, err)

	v, ok := lib.GetByID(id)
	require.True(t, ok)
	require.Equal(t, "hello", v.Text)
}

func TestAddDeduplicatesIdenticalText(t *testing.T) {
	lib := newTestLibrary(t, &stubEmbedder{next: []float32{1, 0}})
	id1, err := lib.Add(context.Background(), "same text", nil)
	require.NoError(t, err)
	id2, err := lib.Add(context.Background(), "same text", nil)
	require.NoError(t, err)
	require.Equal(t, id1, id2)
	require.Equal(t, 1, lib.Size())
}

func TestSearchReturnsNearestVolume(t *testing.T) {
	emb := &stubEmbedder{vectors: map[string][]float32{
		"apple pie":    {1, 0},
		"banana bread": {0, 1},
		"apple":        {1, 0},
	}}
	lib := newTestLibrary(t, emb)
	ctx := context.Background()
	idA, err := lib.Add(ctx, "apple pie", nil)
	require.NoError(t, err)
	_, err = lib.Add(ctx, "banana bread", nil)
	require.NoError(t, err)

	hits, err := lib.Search(ctx, "apple", search.Options{MaxResults: 1})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	require.Equal(t, idA, hits[0].Volume.ID)
}

func TestFindDuplicatesGroupsMatches(t *testing.T) {
	emb := &stubEmbedder{next: []float32{1, 0}}
	lib := newTestLibrary(t, emb)
	ctx := context.Background()
	lib.Add(ctx, "same text", nil)

	groups := lib.FindDuplicates(0)
	require.Empty(t, groups) // single surviving entry after auto-dedup has nothing to group with
}

func TestDeleteAndClear(t *testing.T) {
	emb := &stubEmbedder{next: []float32{1, 0}}
	lib := newTestLibrary(t, emb)
	ctx := context.Background()
	id, err := lib.Add(ctx, "x", nil)
	require.NoError(t, err)

	require.NoError(t, lib.Delete(ctx, id))
	require.Equal(t, 0, lib.Size())

	lib.Add(ctx, "y", nil)
	require.NoError(t, lib.Clear(ctx))
	require.Equal(t, 0, lib.Size())
}

func TestShelvesReflectsMetadata(t *testing.T) {
	emb := &stubEmbedder{next: []float32{1, 0}}
	lib := newTestLibrary(t, emb)
	ctx := context.Background()
	lib.Add(ctx, "a", map[string]string{"shelf": "work"})

	require.Equal(t, []string{"work"}, lib.Shelves())
}

func TestPatronProfileReflectsQueries(t *testing.T) {
	emb := &stubEmbedder{next: []float32{1, 0}}
	lib := newTestLibrary(t, emb)
	ctx := context.Background()
	lib.Add(ctx, "a", nil)
	_, err := lib.Search(ctx, "a", search.Options{})
	require.NoError(t, err)

	profile := lib.PatronProfile()
	require.GreaterOrEqual(t, profile.TotalQueries, int64(1))
}

func TestDisposeWithoutCirculationDesk(t *testing.T) {
	lib := newTestLibrary(t, &stubEmbedder{next: []float32{1, 0}})
	require.NoError(t, lib.Dispose(context.Background()))
	require.False(t, lib.IsInitialized())
}
