package textgen

import (
	"context"
	"fmt"

	openai "github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"
	"github.com/openai/openai-go/v2/packages/param"
	"github.com/openai/openai-go/v2/shared"

	"vellum/internal/config"
	"vellum/internal/libraryerr"
)

const defaultTemperature = 0.7

// OpenAIProvider is a minimal TextGenerationProvider for any
// OpenAI-compatible chat completions endpoint.
type OpenAIProvider struct {
	client openai.Client
	model  string
}

func NewOpenAIProvider(cfg config.TextGenConfig) *OpenAIProvider {
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	return &OpenAIProvider{client: openai.NewClient(opts...), model: cfg.Model}
}

func (p *OpenAIProvider) Generate(ctx context.Context, prompt string, opts Options) (string, error) {
	temperature := defaultTemperature
	if opts.Temperature > 0 {
		temperature = opts.Temperature
	}
	maxTokens := int64(1024)
	if opts.MaxTokens > 0 {
		maxTokens = int64(opts.MaxTokens)
	}

	params := openai.ChatCompletionNewParams{
		Model:       shared.ChatModel(p.model),
		Messages:    []openai.ChatCompletionMessageParamUnion{openai.UserMessage(prompt)},
		Temperature: param.NewOpt(temperature),
		MaxTokens:   param.NewOpt(maxTokens),
	}
	resp, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", libraryerr.LibraryError("openai generate failed", err)
	}
	if len(resp.Choices) == 0 {
		return "", libraryerr.LibraryError("openai generate returned no choices", fmt.Errorf("empty choices"))
	}
	return resp.Choices[0].Message.Content, nil
}

func (p *OpenAIProvider) GenerateStream(ctx context.Context, prompt string, opts Options) (<-chan Chunk, error) {
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
