package textgen

import (
	"context"
	"strings"

	genai "google.golang.org/genai"

	"vellum/internal/config"
	"vellum/internal/libraryerr"
)

// GeminiProvider is a minimal, non-streaming TextGenerationProvider backed
// by Google's Gemini API.
type GeminiProvider struct {
	client *genai.Client
	model  string
}

func NewGeminiProvider(cfg config.TextGenConfig) (*GeminiProvider, error) {
	httpOpts := genai.HTTPOptions{}
	if base := strings.TrimSpace(cfg.BaseURL); base != "" {
		httpOpts.BaseURL = strings.TrimSuffix(base, "/") + "/"
	}
	client, err := genai.NewClient(context.Background(), &genai.ClientConfig{
		APIKey:      strings.TrimSpace(cfg.APIKey),
		HTTPOptions: httpOpts,
	})
	if err != nil {
		return nil, libraryerr.LibraryError("gemini client init failed", err)
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = "gemini-1.5-flash"
	}
	return &GeminiProvider{client: client, model: model}, nil
}

func (p *GeminiProvider) Generate(ctx context.Context, prompt string, opts Options) (string, error) {
	cfg := &genai.GenerateContentConfig{}
	if opts.MaxTokens > 0 {
		cfg.MaxOutputTokens = int32(opts.MaxTokens)
	}
	if opts.Temperature > 0 {
		t := float32(opts.Temperature)
		cfg.Temperature = &t
	}

	resp, err := p.client.Models.GenerateContent(ctx, p.model, genai.Text(prompt), cfg)
	if err != nil {
		return "", libraryerr.LibraryError("gemini generate failed", err)
	}
	return resp.Text(), nil
}

func (p *GeminiProvider) GenerateStream(ctx context.Context, prompt string, opts Options) (<-chan Chunk, error) {
	out := make(chan Chunk, 1)
	go func() {
		defer close(out)
		content, err := p.Generate(ctx, prompt, opts)
		if err != nil {
			out <- Chunk{Done: true}
			return
		}
		out <- Chunk{Content: content, Done: true}
	}()
	return out, nil
}
