package embedder

import (
	"context"
	"errors"
	"log/slog"

	"github.com/soundprediction/kgroute/pkg/cache"
)

const cacheNamespace = "emb"

// CachedClient serves repeated texts from a persistent cache and forwards
// only misses to the wrapped client.
type CachedClient struct {
	client Client
	store  *cache.Store
	model  string
}

// NewCachedClient wraps client. model scopes the cache keys so switching
// models never returns stale vectors.
func NewCachedClient(client Client, store *cache.Store, model string) *CachedClient {
	return &CachedClient{client: client, store: store, model: model}
}

// Embed implements Client.
func (c *CachedClient) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	var missIdx []int
	var missTexts []string
	for i, text := range texts {
		var vec []float32
		err := c.store.Get(cache.Key(cacheNamespace, c.model, text), &vec)
		switch {
		case err == nil:
			out[i] = vec
		case errors.Is(err, cache.ErrMiss):
			missIdx = append(missIdx, i)
			missTexts = append(missTexts, text)
		default:
			slog.Warn("embedding cache read failed", "error", err)
			missIdx = append(missIdx, i)
			missTexts = append(missTexts, text)
		}
	}
	if len(missTexts) == 0 {
		return out, nil
	}

	vecs, err := c.client.Embed(ctx, missTexts)
	if err != nil {
		return nil, err
	}
	for j, vec := range vecs {
		out[missIdx[j]] = vec
		if err := c.store.Set(cache.Key(cacheNamespace, c.model, missTexts[j]), vec); err != nil {
			slog.Warn("embedding cache write failed", "error", err)
		}
	}
	return out, nil
}

// EmbedSingle implements Client.
func (c *CachedClient) EmbedSingle(ctx context.Context, text string) ([]float32, error) {
	return embedSingle(ctx, c, text)
}

// Dimensions implements Client.
func (c *CachedClient) Dimensions() int {
	return c.client.Dimensions()
}

// Close closes the wrapped client. The store is owned by the caller.
func (c *CachedClient) Close() error {
	return c.client.Close()
}
