package embedprovider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"vellum/internal/config"
	"vellum/internal/libraryerr"
)

type embedReq struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embedResp struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

// HTTPProvider calls an OpenAI-compatible embeddings endpoint.
type HTTPProvider struct {
	cfg    config.EmbeddingConfig
	client *http.Client
}

func NewHTTPProvider(cfg config.EmbeddingConfig) *HTTPProvider {
	return &HTTPProvider{cfg: cfg, client: http.DefaultClient}
}

func (p *HTTPProvider) Embed(ctx context.Context, inputs []string) ([][]float32, error) {
	if len(inputs) == 0 {
		return nil, libraryerr.EmbeddingError(fmt.Errorf("no inputs"))
	}

	reqBody, err := json.Marshal(embedReq{Model: p.cfg.Model, Input: inputs})
	if err != nil {
		return nil, libraryerr.EmbeddingError(err)
	}

	timeout := time.Duration(p.cfg.TimeoutSec) * time.Second
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	url := p.cfg.BaseURL + p.cfg.Path
	req, err := http.NewRequestWithContext(cctx, http.MethodPost, url, bytes.NewReader(reqBody))
	if err != nil {
		return nil, libraryerr.EmbeddingError(err)
	}
	switch {
	case p.cfg.APIHeader == "Authorization":
		req.Header.Set("Authorization", "Bearer "+p.cfg.APIKey)
	case p.cfg.APIHeader != "":
		req.Header.Set(p.cfg.APIHeader, p.cfg.APIKey)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, libraryerr.EmbeddingError(err)
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, libraryerr.EmbeddingError(fmt.Errorf("read response body: %w", err))
	}
	if resp.StatusCode/100 != 2 {
		return nil, libraryerr.EmbeddingError(fmt.Errorf("embeddings error: %s: %s", resp.Status, string(bodyBytes)))
	}

	var er embedResp
	if err := json.Unmarshal(bodyBytes, &er); err != nil {
		snippet := bodyBytes
		if len(snippet) > 200 {
			snippet = snippet[:200]
		}
		return nil, libraryerr.EmbeddingError(fmt.Errorf("parse embedding response (input count %d, response %q): %w", len(inputs), string(snippet), err))
	}
	if len(er.Data) != len(inputs) {
		return nil, libraryerr.EmbeddingError(fmt.Errorf("unexpected embedding count: got %d, want %d", len(er.Data), len(inputs)))
	}

	out := make([][]float32, len(er.Data))
	for i := range er.Data {
		out[i] = er.Data[i].Embedding
	}
	return out, nil
}

// CheckReachability verifies the embedding endpoint responds correctly.
func (p *HTTPProvider) CheckReachability(ctx context.Context) error {
	_, err := p.Embed(ctx, []string{"ping"})
	if err != nil {
		return fmt.Errorf("embedding endpoint reachability check failed: %w", err)
	}
	return nil
}
