package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMemoryBackendRoundTrip(t *testing.T) {
	ctx := context.Background()
	b := NewMemoryBackend()

	require.NoError(t, b.Save(ctx, map[string][]byte{"a": []byte("hello"), "b": []byte("world")}))

	loaded, err := b.Load(ctx)
	require.NoError(t, err)
	require.Equal(t, []byte("hello"), loaded["a"])
	require.Equal(t, []byte("world"), loaded["b"])

	// Save replaces the whole map.
	require.NoError(t, b.Save(ctx, map[string][]byte{"c": []byte("only")}))
	loaded, err = b.Load(ctx)
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	require.Equal(t, []byte("only"), loaded["c"])
}

func TestMemoryBackendLoadIsDefensiveCopy(t *testing.T) {
	ctx := context.Background()
	b := NewMemoryBackend()
	require.NoError(t, b.Save(ctx, map[string][]byte{"a": []byte("hello")}))

	loaded, err := b.Load(ctx)
	require.NoError(t, err)
	loaded["a"][0] = 'X'

	loaded2, err := b.Load(ctx)
	require.NoError(t, err)
	require.Equal(t, []byte("hello"), loaded2["a"])
}
