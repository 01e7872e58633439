package storage

import (
	"context"
	"fmt"

	"vellum/internal/config"
)

// New constructs the configured StorageBackend implementation.
func New(ctx context.Context, cfg config.StorageConfig) (Backend, error) {
	switch cfg.Backend {
	case "", "memory":
		return NewMemoryBackend(), nil
	case "sqlite":
		path := cfg.Path
		if path == "" {
			path = "library.db"
		}
		return NewSQLiteBackend(path)
	case "postgres", "pg":
		if cfg.DSN == "" {
			return nil, fmt.Errorf("storage backend postgres requires a dsn")
		}
		return NewPostgresBackend(ctx, cfg.DSN)
	case "redis":
		if cfg.DSN == "" {
			return nil, fmt.Errorf("storage backend redis requires a dsn (address)")
		}
		return NewRedisBackend(cfg.DSN, "")
	default:
		return nil, fmt.Errorf("unsupported storage backend: %s", cfg.Backend)
	}
}
