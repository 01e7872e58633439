package stacks

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"vellum/internal/invertedindex"
	"vellum/internal/storage"
)

func newTestStacks(t *testing.T) *Stacks {
	t.Helper()
	s := New(storage.NewMemoryBackend(), Options{Dimensions: 2, CompressTextAboveBytes: 1024})
	require.NoError(t, s.Load(context.Background()))
	return s
}

func TestAddAndGetByID(t *testing.T) {
	s := newTestStacks(t)
	id, err := s.Add(context.Background(), "hello world", []float32{1, 0}, map[string]string{"topic": "go"}, []string{"go"})
	require.NoError(t, err)
	require.Len(t, id, 8)

	v, ok := s.GetByID(id)
	require.True(t, ok)
	require.Equal(t, "hello world", v.Text)
	require.Equal(t, 1, s.Size())
}

func TestAddRejectsWrongDimension(t *testing.T) {
	s := newTestStacks(t)
	_, err := s.Add(context.Background(), "x", []float32{1, 0, 0}, nil, nil)
	require.Error(t, err)
}

func TestUpdateReindexes(t *testing.T) {
	s := newTestStacks(t)
	id, err := s.Add(context.Background(), "alpha beta", []float32{1, 0}, nil, []string{"lang"})
	require.NoError(t, err)

	require.NoError(t, s.Update(context.Background(), id, "gamma delta", []float32{0, 1}, nil, []string{"lang"}))

	results := s.Inverted().BM25Search("alpha", invertedindex.DefaultParams)
	require.Empty(t, results)
	results = s.Inverted().BM25Search("gamma", invertedindex.DefaultParams)
	require.Len(t, results, 1)
}

func TestDeleteRemovesFromIndices(t *testing.T) {
	s := newTestStacks(t)
	id, err := s.Add(context.Background(), "apple", []float32{1, 0}, nil, nil)
	require.NoError(t, err)
	require.NoError(t, s.Delete(context.Background(), id))

	_, ok := s.GetByID(id)
	require.False(t, ok)
	require.Equal(t, 0, s.Size())
}

func TestClearEmptiesStore(t *testing.T) {
	s := newTestStacks(t)
	_, err := s.Add(context.Background(), "apple", []float32{1, 0}, nil, nil)
	require.NoError(t, err)
	require.NoError(t, s.Clear(context.Background()))
	require.Equal(t, 0, s.Size())
}

func TestFlushAndReloadRoundTrips(t *testing.T) {
	backend := storage.NewMemoryBackend()
	s := New(backend, Options{Dimensions: 2})
	require.NoError(t, s.Load(context.Background()))

	id, err := s.Add(context.Background(), "persisted text", []float32{0.5, 0.5}, map[string]string{"k": "v"}, nil)
	require.NoError(t, err)
	require.NoError(t, s.Flush(context.Background()))

	s2 := New(backend, Options{Dimensions: 2})
	require.NoError(t, s2.Load(context.Background()))

	v, ok := s2.GetByID(id)
	require.True(t, ok)
	require.Equal(t, "persisted text", v.Text)
	require.Equal(t, "v", v.Metadata["k"])
}

func TestLoadSkipsCorruptEntries(t *testing.T) {
	backend := storage.NewMemoryBackend()
	require.NoError(t, backend.Save(context.Background(), map[string][]byte{
		"badid1": []byte("not a valid record"),
	}))

	s := New(backend, Options{})
	require.NoError(t, s.Load(context.Background()))
	require.Equal(t, 0, s.Size())
	require.Equal(t, 1, s.CorruptSkipped())
}

func TestDisposeFlushesSynchronously(t *testing.T) {
	backend := storage.NewMemoryBackend()
	s := New(backend, Options{Dimensions: 2})
	require.NoError(t, s.Load(context.Background()))
	_, err := s.Add(context.Background(), "x", []float32{1, 0}, nil, nil)
	require.NoError(t, err)
	require.NoError(t, s.Dispose(context.Background()))

	raw, err := backend.Load(context.Background())
	require.NoError(t, err)
	require.Len(t, raw, 2) // entry + learning sentinel
}
