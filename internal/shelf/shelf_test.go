package shelf

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"vellum/internal/config"
	"vellum/internal/library"
	"vellum/internal/stacks/search"
	"vellum/internal/storage"
	"vellum/internal/volume"
)

// fixedEmbedder maps each input text to a unit 2D vector whose angle in
// degrees is the sum of its character codes mod 90, so the texts used here
// ("work note" at 21, "home note" at 85) stay well below the dedup index's
// cosine threshold while every similarity stays non-negative.
type fixedEmbedder struct{}

func (f *fixedEmbedder) Embed(ctx context.Context, inputs []string) ([][]float32, error) {
	out := make([][]float32, len(inputs))
	for i, text := range inputs {
		var sum int
		for _, c := range text {
			sum += int(c)
		}
		angle := float64(sum%90) * math.Pi / 180
		out[i] = []float32{float32(math.Cos(angle)), float32(math.Sin(angle))}
	}
	return out, nil
}

func newTestShelf(t *testing.T, name string) (*Shelf, *library.Library) {
	t.Helper()
	cfg := config.Config{Dimensions: 2}
	lib := library.New(storage.NewMemoryBackend(), &fixedEmbedder{}, cfg)
	require.NoError(t, lib.Initialize(context.Background()))
	return New(lib, name), lib
}

func TestAddStampsShelfMetadata(t *testing.T) {
	sh, lib := newTestShelf(t, "work")
	id, err := sh.Add(context.Background(), "note one", nil)
	require.NoError(t, err)

	v, ok := lib.GetByID(id)
	require.True(t, ok)
	require.Equal(t, "work", v.Metadata[volume.MetaShelf])
}

func TestVolumesScopedToShelf(t *testing.T) {
	work, lib := newTestShelf(t, "work")
	home := New(lib, "home")

	_, err := work.Add(context.Background(), "work note", nil)
	require.NoError(t, err)
	_, err = home.Add(context.Background(), "home note", nil)
	require.NoError(t, err)

	require.Len(t, work.Volumes(), 1)
	require.Equal(t, "work note", work.Volumes()[0].Text)
	require.Len(t, home.Volumes(), 1)
}

func TestSearchScopedToShelf(t *testing.T) {
	work, lib := newTestShelf(t, "work")
	home := New(lib, "home")

	_, err := work.Add(context.Background(), "work note", nil)
	require.NoError(t, err)
	_, err = home.Add(context.Background(), "home note", nil)
	require.NoError(t, err)

	hits, err := work.Search(context.Background(), "note", search.Options{})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	require.Equal(t, "work note", hits[0].Volume.Text)
}

func TestSearchGlobalEscapesShelfFilter(t *testing.T) {
	work, lib := newTestShelf(t, "work")
	home := New(lib, "home")

	_, err := work.Add(context.Background(), "work note", nil)
	require.NoError(t, err)
	_, err = home.Add(context.Background(), "home note", nil)
	require.NoError(t, err)

	hits, err := work.SearchGlobal(context.Background(), "note", search.Options{})
	require.NoError(t, err)
	require.Len(t, hits, 2)
}

func TestClearOnlyRemovesOwnShelf(t *testing.T) {
	work, lib := newTestShelf(t, "work")
	home := New(lib, "home")

	_, err := work.Add(context.Background(), "work note", nil)
	require.NoError(t, err)
	_, err = home.Add(context.Background(), "home note", nil)
	require.NoError(t, err)

	require.NoError(t, work.Clear(context.Background()))
	require.Empty(t, work.Volumes())
	require.Len(t, home.Volumes(), 1)
	require.Equal(t, 1, lib.Size())
}
