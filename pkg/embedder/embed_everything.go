package embedder

import (
	"context"
	"fmt"
	"sync"

	"github.com/soundprediction/go-embedeverything/pkg/embedder"

	"github.com/soundprediction/kgroute/pkg/nlp"
	"github.com/soundprediction/kgroute/pkg/utils"
)

// EmbedEverythingClient runs a Hugging Face embedding model in process. Calls
// are serialized on the native model.
type EmbedEverythingClient struct {
	model     *embedder.Embedder
	batchSize int

	mu   sync.Mutex
	dims int
}

// NewEmbedEverythingClient loads config.Model, a Hugging Face model id or a
// local path.
func NewEmbedEverythingClient(config Config) (*EmbedEverythingClient, error) {
	if config.Model == "" {
		return nil, fmt.Errorf("%w: embedeverything requires a model", nlp.ErrInvalidModel)
	}
	model, err := embedder.NewEmbedder(config.Model)
	if err != nil {
		return nil, fmt.Errorf("load embedding model %s: %w", config.Model, err)
	}
	return &EmbedEverythingClient{model: model, batchSize: config.batchSize(), dims: config.Dimensions}, nil
}

// Embed checks ctx between batches only; the native call cannot be
// interrupted.
func (e *EmbedEverythingClient) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([][]float32, 0, len(texts))
	for _, batch := range utils.Batch(texts, e.batchSize) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		vecs, err := e.model.Embed(batch)
		if err != nil {
			return nil, fmt.Errorf("embed %d texts: %w", len(batch), err)
		}
		out = append(out, vecs...)
	}
	if e.dims == 0 && len(out) > 0 {
		e.dims = len(out[0])
	}
	return out, nil
}

func (e *EmbedEverythingClient) EmbedSingle(ctx context.Context, text string) ([]float32, error) {
	return embedSingle(ctx, e, text)
}

// Dimensions is learned from the first batch unless configured.
func (e *EmbedEverythingClient) Dimensions() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.dims
}

func (e *EmbedEverythingClient) Close() error {
	e.model.Close()
	return nil
}

func (e *EmbedEverythingClient) GetCapabilities() []nlp.TaskCapability {
	return []nlp.TaskCapability{nlp.TaskEmbedding}
}
