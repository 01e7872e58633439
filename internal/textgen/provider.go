// Package textgen defines the Library core's optional TextGenerationProvider
// collaborator, required only by Librarians.
package textgen

import "context"

// Options tunes a single generation call.
type Options struct {
	MaxTokens   int
	Temperature float64
}

// Chunk is one piece of a streamed generation.
type Chunk struct {
	Content string
	Done    bool
}

// Provider generates text completions for a prompt.
type Provider interface {
	Generate(ctx context.Context, prompt string, opts Options) (string, error)
	GenerateStream(ctx context.Context, prompt string, opts Options) (<-chan Chunk, error)
}
