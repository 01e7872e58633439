package embedprovider

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"vellum/internal/config"
)

func TestHTTPProviderEmbed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req embedReq
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		resp := embedResp{}
		for range req.Input {
			resp.Data = append(resp.Data, struct {
				Embedding []float32 `json:"embedding"`
			}{Embedding: []float32{0.1, 0.2}})
		}
		json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	p := NewHTTPProvider(config.EmbeddingConfig{BaseURL: srv.URL, Path: "/embed", Model: "test"})
	out, err := p.Embed(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	require.Len(t, out, 2)
	require.Equal(t, []float32{0.1, 0.2}, out[0])
}

func TestHTTPProviderEmbedEmptyInput(t *testing.T) {
	p := NewHTTPProvider(config.EmbeddingConfig{})
	_, err := p.Embed(context.Background(), nil)
	require.Error(t, err)
}

func TestHTTPProviderEmbedMismatchedCount(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(embedResp{Data: nil})
	}))
	defer srv.Close()

	p := NewHTTPProvider(config.EmbeddingConfig{BaseURL: srv.URL, Path: "/embed"})
	_, err := p.Embed(context.Background(), []string{"a"})
	require.Error(t, err)
}
