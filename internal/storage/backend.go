// Package storage provides pluggable StorageBackend implementations for the
// Library core's Stacks persistence layer.
package storage

import "context"

// Backend is the Library core's required collaborator for durability:
// load the entire keyed record map, save the entire map back atomically,
// and close any underlying resources.
type Backend interface {
	Load(ctx context.Context) (map[string][]byte, error)
	Save(ctx context.Context, records map[string][]byte) error
	Close() error
}
