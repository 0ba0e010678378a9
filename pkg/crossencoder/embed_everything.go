package crossencoder

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/soundprediction/go-embedeverything/pkg/embedder"
)

// EmbedEverythingClient scores passages with a cross-encoder running in
// process. Calls are serialized on the native model.
type EmbedEverythingClient struct {
	mu       sync.Mutex
	reranker *embedder.Reranker
}

var _ Client = (*EmbedEverythingClient)(nil)

// NewEmbedEverythingClient loads model, a Hugging Face id or a local path.
func NewEmbedEverythingClient(model string) (*EmbedEverythingClient, error) {
	if model == "" {
		return nil, fmt.Errorf("a reranker model is required")
	}
	r, err := embedder.NewReranker(model)
	if err != nil {
		return nil, fmt.Errorf("load reranker %s: %w", model, err)
	}
	return &EmbedEverythingClient{reranker: r}, nil
}

// Rank checks ctx once before the native call, which cannot be interrupted.
func (e *EmbedEverythingClient) Rank(ctx context.Context, query string, passages []string) ([]RankedPassage, error) {
	if len(passages) == 0 {
		return []RankedPassage{}, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	e.mu.Lock()
	scored, err := e.reranker.Rerank(query, passages)
	e.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("rerank %d passages: %w", len(passages), err)
	}

	// The reranker returns texts, not positions. Duplicate passages are
	// assigned their input positions in order.
	slots := make(map[string][]int, len(passages))
	for i, p := range passages {
		slots[p] = append(slots[p], i)
	}
	out := make([]RankedPassage, 0, len(scored))
	for _, s := range scored {
		idx := slots[s.Text]
		if len(idx) == 0 {
			continue
		}
		slots[s.Text] = idx[1:]
		out = append(out, RankedPassage{Index: idx[0], Passage: s.Text, Score: float64(s.Score)})
	}
	slices.SortStableFunc(out, func(a, b RankedPassage) int { return cmp.Compare(b.Score, a.Score) })
	return out, nil
}

func (e *EmbedEverythingClient) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.reranker.Close()
	return nil
}
