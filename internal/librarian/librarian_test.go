package librarian

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"vellum/internal/textgen"
)

type stubProvider struct {
	response string
}

func (s *stubProvider) Generate(ctx context.Context, prompt string, opts textgen.Options) (string, error) {
	return s.response, nil
}

func (s *stubProvider) GenerateStream(ctx context.Context, prompt string, opts textgen.Options) (<-chan textgen.Chunk, error) {
	ch := make(chan textgen.Chunk, 1)
	ch <- textgen.Chunk{Content: s.response, Done: true}
	close(ch)
	return ch, nil
}

func TestExtractParsesJSONArray(t *testing.T) {
	l := CreateDefaultLibrarian("default", &stubProvider{response: `[{"text":"likes go"},{"text":"uses vim"}]`})
	memories, err := l.Extract(context.Background(), "hi", "hello")
	require.NoError(t, err)
	require.Len(t, memories, 2)
	require.Equal(t, "likes go", memories[0].Text)
}

func TestExtractFallsBackToRawText(t *testing.T) {
	l := CreateDefaultLibrarian("default", &stubProvider{response: "not json"})
	memories, err := l.Extract(context.Background(), "hi", "hello")
	require.NoError(t, err)
	require.Len(t, memories, 1)
	require.Equal(t, "not json", memories[0].Text)
}

func TestClassifyTopicTrimsResponse(t *testing.T) {
	l := CreateDefaultLibrarian("default", &stubProvider{response: "  programming/go  "})
	tc, err := l.ClassifyTopic(context.Background(), "some text")
	require.NoError(t, err)
	require.Equal(t, "programming/go", tc.Topic)
}

func TestRegistryArbitratesByBid(t *testing.T) {
	reg := NewRegistry()
	reg.Register(CreateDefaultLibrarian("low", &stubProvider{}))
	reg.Register(CreateDefaultLibrarian("high", &stubProvider{}))

	conn, ok := reg.Acquire("topic")
	require.True(t, ok)
	require.NotNil(t, conn.Librarian)
	conn.Release()
}

func TestRegistryEmptyReturnsFalse(t *testing.T) {
	reg := NewRegistry()
	_, ok := reg.Acquire("topic")
	require.False(t, ok)
}
