package embedder_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soundprediction/kgroute/pkg/cache"
	"github.com/soundprediction/kgroute/pkg/config"
	"github.com/soundprediction/kgroute/pkg/driver"
	"github.com/soundprediction/kgroute/pkg/embedder"
	"github.com/soundprediction/kgroute/pkg/nlp"
)

func TestEmbedderInterface(t *testing.T) {
	var _ embedder.Client = (*embedder.OpenAIEmbedder)(nil)
	var _ embedder.Client = (*embedder.OllamaEmbedder)(nil)
	var _ embedder.Client = (*embedder.EmbedEverythingClient)(nil)
	var _ embedder.Client = (*embedder.CachedClient)(nil)
	var _ driver.TextEmbedder = (*embedder.CachedClient)(nil)
}

func TestEmbedderConfig(t *testing.T) {
	tests := []struct {
		name         string
		config       embedder.Config
		expectedDims int
	}{
		{
			name:         "ada",
			config:       embedder.Config{Model: "text-embedding-ada-002"},
			expectedDims: 1536,
		},
		{
			name:         "custom base URL",
			config:       embedder.Config{Model: "text-embedding-3-small", BaseURL: "https://custom.openai.com"},
			expectedDims: 1536,
		},
		{
			name:         "large model",
			config:       embedder.Config{Model: "text-embedding-3-large"},
			expectedDims: 3072,
		},
		{
			name:         "custom dimensions",
			config:       embedder.Config{Model: "custom-model", Dimensions: 512},
			expectedDims: 512,
		},
		{
			name:         "empty model uses default",
			config:       embedder.Config{},
			expectedDims: 1536,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := embedder.NewOpenAIEmbedder("test-key", tt.config)
			assert.NotNil(t, client)
			assert.Equal(t, tt.expectedDims, client.Dimensions())
		})
	}
}

// openAIEmbeddingServer answers /v1/embeddings with vectors [len(text), i]
// listed in reverse order to exercise index mapping.
func openAIEmbeddingServer(t *testing.T, requests *int32) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(requests, 1)
		assert.Equal(t, "/v1/embeddings", r.URL.Path)
		var req struct {
			Input []string `json:"input"`
			Model string   `json:"model"`
		}
		body, _ := io.ReadAll(r.Body)
		assert.NoError(t, json.Unmarshal(body, &req))

		type item struct {
			Object    string    `json:"object"`
			Embedding []float32 `json:"embedding"`
			Index     int       `json:"index"`
		}
		var data []item
		for i := len(req.Input) - 1; i >= 0; i-- {
			data = append(data, item{Object: "embedding", Embedding: []float32{float32(len(req.Input[i])), float32(i)}, Index: i})
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"object": "list", "data": data, "model": req.Model})
	}))
}

func TestOpenAIEmbedderBatches(t *testing.T) {
	var requests int32
	server := openAIEmbeddingServer(t, &requests)
	defer server.Close()

	client := embedder.NewOpenAIEmbedder("k", embedder.Config{BaseURL: server.URL, BatchSize: 2})
	vecs, err := client.Embed(context.Background(), []string{"a", "bb", "ccc"})
	require.NoError(t, err)
	require.Len(t, vecs, 3)
	assert.Equal(t, []float32{1, 0}, vecs[0])
	assert.Equal(t, []float32{2, 1}, vecs[1])
	assert.Equal(t, []float32{3, 0}, vecs[2])
	assert.Equal(t, int32(2), atomic.LoadInt32(&requests))

	one, err := client.EmbedSingle(context.Background(), "dddd")
	require.NoError(t, err)
	assert.Equal(t, []float32{4, 0}, one)

	none, err := client.Embed(context.Background(), nil)
	require.NoError(t, err)
	assert.Nil(t, none)
}

func TestOllamaEmbedder(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/embed", r.URL.Path)
		var req struct {
			Model string   `json:"model"`
			Input []string `json:"input"`
		}
		body, _ := io.ReadAll(r.Body)
		assert.NoError(t, json.Unmarshal(body, &req))
		assert.Equal(t, "nomic-embed-text", req.Model)

		embeddings := make([][]float32, len(req.Input))
		for i, s := range req.Input {
			embeddings[i] = []float32{float32(len(s)), 1, 2}
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"model": req.Model, "embeddings": embeddings, "prompt_eval_count": 3})
	}))
	defer server.Close()

	client, err := embedder.NewOllamaEmbedder("", embedder.Config{Model: "nomic-embed-text", BaseURL: server.URL, Dimensions: 2})
	require.NoError(t, err)
	vecs, err := client.Embed(context.Background(), []string{"abc", "de"})
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{3, 1}, {2, 1}}, vecs)
	assert.Equal(t, 2, client.Dimensions())

	_, err = embedder.NewOllamaEmbedder("", embedder.Config{})
	assert.ErrorIs(t, err, nlp.ErrInvalidModel)
}

type countingEmbedder struct {
	calls  int
	inputs []string
}

func (c *countingEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	c.calls++
	c.inputs = append(c.inputs, texts...)
	out := make([][]float32, len(texts))
	for i, s := range texts {
		out[i] = []float32{float32(len(s)), float32(strings.Count(s, "a"))}
	}
	return out, nil
}

func (c *countingEmbedder) EmbedSingle(ctx context.Context, text string) ([]float32, error) {
	v, err := c.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return v[0], nil
}

func (c *countingEmbedder) Dimensions() int { return 2 }
func (c *countingEmbedder) Close() error    { return nil }

func TestCachedClient(t *testing.T) {
	store, err := cache.Open(cache.Options{InMemory: true})
	require.NoError(t, err)
	defer store.Close()

	inner := &countingEmbedder{}
	client := embedder.NewCachedClient(inner, store, "m1")

	first, err := client.Embed(context.Background(), []string{"banana", "kiwi"})
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{6, 3}, {4, 0}}, first)

	second, err := client.Embed(context.Background(), []string{"kiwi", "apple"})
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{4, 0}, {5, 1}}, second)

	assert.Equal(t, 2, inner.calls)
	assert.Equal(t, []string{"banana", "kiwi", "apple"}, inner.inputs)
	assert.Equal(t, 3, store.Len("emb"))

	other := embedder.NewCachedClient(inner, store, "m2")
	_, err = other.EmbedSingle(context.Background(), "kiwi")
	require.NoError(t, err)
	assert.Equal(t, 3, inner.calls, "a different model must not share vectors")
	assert.Equal(t, 2, client.Dimensions())
}

func TestNewClientFactory(t *testing.T) {
	c, err := embedder.NewClient(config.EmbeddingConfig{Provider: "openai", APIKey: "k", Model: "text-embedding-3-large"})
	require.NoError(t, err)
	assert.Equal(t, 3072, c.Dimensions())

	c, err = embedder.NewClient(config.EmbeddingConfig{Provider: "none"})
	require.NoError(t, err)
	assert.Nil(t, c)

	_, err = embedder.NewClient(config.EmbeddingConfig{Provider: "openai"})
	assert.Error(t, err)

	_, err = embedder.NewClient(config.EmbeddingConfig{Provider: "word2vec"})
	assert.ErrorIs(t, err, nlp.ErrUnknownProvider)
}
