package embedder

import (
	"context"
	"fmt"
	"strings"

	"github.com/sashabaranov/go-openai"

	"github.com/soundprediction/kgroute/pkg/nlp"
	"github.com/soundprediction/kgroute/pkg/utils"
)

// DefaultOpenAIModel is used when Config.Model is empty.
const DefaultOpenAIModel = string(openai.SmallEmbedding3)

// OpenAIEmbedder embeds text with the OpenAI embeddings endpoint or a
// compatible service.
type OpenAIEmbedder struct {
	client *openai.Client
	config Config
}

// NewOpenAIEmbedder creates an OpenAI embedder. An empty model selects
// text-embedding-3-small.
func NewOpenAIEmbedder(apiKey string, config Config) *OpenAIEmbedder {
	if config.Model == "" {
		config.Model = DefaultOpenAIModel
	}
	if config.Dimensions == 0 {
		config.Dimensions = config.dimensions()
	}

	clientConfig := openai.DefaultConfig(apiKey)
	if config.BaseURL != "" {
		base := strings.TrimRight(config.BaseURL, "/")
		if !strings.HasSuffix(base, "/v1") {
			base += "/v1"
		}
		clientConfig.BaseURL = base
	}

	return &OpenAIEmbedder{
		client: openai.NewClientWithConfig(clientConfig),
		config: config,
	}
}

// Embed implements Client. Texts are sent in batches of Config.BatchSize.
func (e *OpenAIEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	out := make([][]float32, 0, len(texts))
	for _, batch := range utils.Batch(texts, e.config.batchSize()) {
		req := openai.EmbeddingRequest{
			Input: batch,
			Model: openai.EmbeddingModel(e.config.Model),
		}
		// only the v3 models accept a reduced size
		if strings.HasPrefix(e.config.Model, "text-embedding-3") && e.config.Dimensions != knownDimensions[e.config.Model] {
			req.Dimensions = e.config.Dimensions
		}

		resp, err := e.client.CreateEmbeddings(ctx, req)
		if err != nil {
			return nil, fmt.Errorf("failed to generate embeddings: %w", err)
		}
		if len(resp.Data) != len(batch) {
			return nil, fmt.Errorf("embedding result size mismatch: got %d want %d", len(resp.Data), len(batch))
		}

		vecs := make([][]float32, len(batch))
		for _, d := range resp.Data {
			if d.Index < 0 || d.Index >= len(batch) {
				return nil, fmt.Errorf("embedding index %d out of range", d.Index)
			}
			vecs[d.Index] = d.Embedding
		}
		out = append(out, vecs...)
	}
	return out, nil
}

// EmbedSingle implements Client.
func (e *OpenAIEmbedder) EmbedSingle(ctx context.Context, text string) ([]float32, error) {
	return embedSingle(ctx, e, text)
}

// Dimensions implements Client.
func (e *OpenAIEmbedder) Dimensions() int {
	return e.config.Dimensions
}

// Close implements Client.
func (e *OpenAIEmbedder) Close() error {
	return nil
}

// GetCapabilities returns the list of capabilities supported by this client.
func (e *OpenAIEmbedder) GetCapabilities() []nlp.TaskCapability {
	return []nlp.TaskCapability{nlp.TaskEmbedding}
}
