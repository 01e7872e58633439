package textgen

import (
	"fmt"

	"vellum/internal/config"
)

// New selects a Provider implementation by cfg.Provider ("anthropic",
// "gemini", or "openai"/"" for any OpenAI-compatible endpoint).
func New(cfg config.TextGenConfig) (Provider, error) {
	switch cfg.Provider {
	case "anthropic":
		return NewAnthropicProvider(cfg), nil
	case "gemini":
		return NewGeminiProvider(cfg)
	case "", "openai":
		return NewOpenAIProvider(cfg), nil
	default:
		return nil, fmt.Errorf("unknown text generation provider %q", cfg.Provider)
	}
}
