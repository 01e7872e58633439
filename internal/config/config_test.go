package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaultsWithoutFile(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	require.Equal(t, 1536, cfg.Dimensions)
	require.Equal(t, "memory", cfg.Storage.Backend)
	require.Equal(t, 0.97, cfg.DedupThreshold)
	require.Equal(t, 256, cfg.TextCacheCapacity)
}

func TestLoadFromYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "library.yaml")
	contents := []byte("dimensions: 8\nstorage:\n  backend: sqlite\n  path: ./library.db\ndedupThreshold: 0.9\n")
	require.NoError(t, os.WriteFile(path, contents, 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 8, cfg.Dimensions)
	require.Equal(t, "sqlite", cfg.Storage.Backend)
	require.Equal(t, "./library.db", cfg.Storage.Path)
	require.Equal(t, 0.9, cfg.DedupThreshold)
}

func TestEnvOverridesSecrets(t *testing.T) {
	t.Setenv("LIBRARY_EMBEDDING_API_KEY", "env-key")
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	require.Equal(t, "env-key", cfg.Embedding.APIKey)
}
