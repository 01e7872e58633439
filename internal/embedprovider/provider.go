// Package embedprovider defines the Library core's EmbeddingProvider
// collaborator and an HTTP-backed implementation.
package embedprovider

import "context"

// Provider embeds one or more strings into fixed-dimension float32 vectors.
type Provider interface {
	Embed(ctx context.Context, inputs []string) ([][]float32, error)
}
