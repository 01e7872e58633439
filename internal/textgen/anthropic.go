package textgen

import (
	"context"
	"strings"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"vellum/internal/config"
	"vellum/internal/libraryerr"
)

const defaultMaxTokens int64 = 1024

// AnthropicProvider is a minimal, non-streaming-tool-call TextGenerationProvider
// backed by the Anthropic Messages API.
type AnthropicProvider struct {
	sdk   anthropic.Client
	model string
}

func NewAnthropicProvider(cfg config.TextGenConfig) *AnthropicProvider {
	opts := []option.RequestOption{option.WithAPIKey(strings.TrimSpace(cfg.APIKey))}
	if base := strings.TrimSpace(cfg.BaseURL); base != "" {
		opts = append(opts, option.WithBaseURL(strings.TrimSuffix(base, "/")))
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = string(anthropic.ModelClaude3_7SonnetLatest)
	}
	return &AnthropicProvider{sdk: anthropic.NewClient(opts...), model: model}
}

func (p *AnthropicProvider) Generate(ctx context.Context, prompt string, opts Options) (string, error) {
	maxTokens := defaultMaxTokens
	if opts.MaxTokens > 0 {
		maxTokens = int64(opts.MaxTokens)
	}
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(p.model),
		MaxTokens: maxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	}
	resp, err := p.sdk.Messages.New(ctx, params)
	if err != nil {
		return "", libraryerr.LibraryError("anthropic generate failed", err)
	}
	var sb strings.Builder
	for _, block := range resp.Content {
		if tb, ok := block.AsAny().(anthropic.TextBlock); ok {
			sb.WriteString(tb.Text)
		}
	}
	return sb.String(), nil
}

func (p *AnthropicProvider) GenerateStream(ctx context.Context, prompt string, opts Options) (<-chan Chunk, error) {
	out := make(chan Chunk, 1)
	go func() {
		defer close(out)
		content, err := p.Generate(ctx, prompt, opts)
		if err != nil {
			out <- Chunk{Content: "", Done: true}
			return
		}
		out <- Chunk{Content: content, Done: true}
	}()
	return out, nil
}
