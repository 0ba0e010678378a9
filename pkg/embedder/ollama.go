package embedder

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ollama/ollama/api"
	"golang.org/x/sync/semaphore"

	"github.com/soundprediction/kgroute/pkg/nlp"
	"github.com/soundprediction/kgroute/pkg/utils"
)

// OllamaEmbedder embeds text with a self-hosted Ollama server.
type OllamaEmbedder struct {
	client  *api.Client
	config  Config
	reqLock *semaphore.Weighted
}

// NewOllamaEmbedder creates an Ollama embedder.
func NewOllamaEmbedder(apiKey string, config Config) (*OllamaEmbedder, error) {
	if config.Model == "" {
		return nil, fmt.Errorf("%w: ollama requires an embedding model", nlp.ErrInvalidModel)
	}
	cli, err := nlp.NewOllamaHTTPClient(config.BaseURL, apiKey)
	if err != nil {
		return nil, err
	}
	config.Dimensions = config.dimensions()
	return &OllamaEmbedder{
		client:  cli,
		config:  config,
		reqLock: semaphore.NewWeighted(nlp.DefaultMaxConcurrent),
	}, nil
}

// Embed implements Client.
func (e *OllamaEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	out := make([][]float32, 0, len(texts))
	for _, batch := range utils.Batch(texts, e.config.batchSize()) {
		if err := e.reqLock.Acquire(ctx, 1); err != nil {
			return nil, err
		}
		res, err := e.client.Embed(ctx, &api.EmbedRequest{
			Model: e.config.Model,
			Input: batch,
		})
		e.reqLock.Release(1)
		if err != nil {
			return nil, fmt.Errorf("failed to generate embeddings: %w", err)
		}
		if len(res.Embeddings) != len(batch) {
			return nil, fmt.Errorf("embedding result size mismatch: got %d want %d", len(res.Embeddings), len(batch))
		}
		slog.Debug("ollama embeddings", "model", e.config.Model, "inputs", len(batch), "prompt_tokens", res.PromptEvalCount)

		for _, v := range res.Embeddings {
			if e.config.Dimensions > 0 && len(v) > e.config.Dimensions {
				v = v[:e.config.Dimensions]
			}
			out = append(out, v)
		}
	}
	return out, nil
}

// EmbedSingle implements Client.
func (e *OllamaEmbedder) EmbedSingle(ctx context.Context, text string) ([]float32, error) {
	return embedSingle(ctx, e, text)
}

// Dimensions implements Client.
func (e *OllamaEmbedder) Dimensions() int {
	return e.config.Dimensions
}

// Close implements Client.
func (e *OllamaEmbedder) Close() error {
	return nil
}

// GetCapabilities returns the list of capabilities supported by this client.
func (e *OllamaEmbedder) GetCapabilities() []nlp.TaskCapability {
	return []nlp.TaskCapability{nlp.TaskEmbedding}
}
