package judge

import (
	"context"
	"fmt"

	"github.com/soundprediction/kgroute/pkg/search"
	"github.com/soundprediction/kgroute/pkg/utils"
)

// Embedder embeds texts in one call.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// EmbeddingJudge scores candidates by cosine similarity to the route text.
// Negative similarities are clipped to zero and the rest normalized to sum
// to one. It needs no chat model.
type EmbeddingJudge struct {
	embedder Embedder
	// MinSimilarity drops candidates at or below it before normalization.
	MinSimilarity float64
}

var _ search.RelevanceJudge = (*EmbeddingJudge)(nil)

// NewEmbeddingJudge creates an embedding-based relevance judge.
func NewEmbeddingJudge(embedder Embedder) *EmbeddingJudge {
	return &EmbeddingJudge{embedder: embedder}
}

// ScoreCandidates implements search.RelevanceJudge.
func (j *EmbeddingJudge) ScoreCandidates(ctx context.Context, rc search.RouteContext, candidates []search.Candidate) (search.Scores, error) {
	if len(candidates) == 0 || rc.Route == nil {
		return search.Scores{}, nil
	}
	texts := make([]string, 0, len(candidates)+1)
	texts = append(texts, rc.Route.Text())
	for _, c := range candidates {
		texts = append(texts, c.Text)
	}
	vecs, err := j.embedder.Embed(ctx, texts)
	if err != nil {
		return search.Scores{}, fmt.Errorf("failed to embed candidates: %w", err)
	}
	if len(vecs) != len(texts) {
		return search.Scores{}, fmt.Errorf("embedder returned %d vectors for %d texts", len(vecs), len(texts))
	}

	query := vecs[0]
	raw := make(map[string]float64, len(candidates))
	var total float64
	for i, c := range candidates {
		sim := utils.CosineSimilarity(query, vecs[i+1])
		if sim <= j.MinSimilarity || sim <= 0 {
			continue
		}
		raw[c.ID] = sim
		total += sim
	}
	for id, s := range raw {
		raw[id] = s / total
	}
	return search.Scores{Values: raw, Rationale: "cosine similarity to the route"}, nil
}
