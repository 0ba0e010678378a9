package crossencoder

import (
	"context"
	"fmt"
	"math"

	"github.com/soundprediction/kgroute/pkg/search"
)

// RankedPassage is one passage with its relevance score. Index is the
// passage's position in the input.
type RankedPassage struct {
	Index   int     `json:"index"`
	Passage string  `json:"passage"`
	Score   float64 `json:"score"`
}

// Client ranks passages by relevance to a query.
type Client interface {
	// Rank returns every passage with its score, most relevant first.
	Rank(ctx context.Context, query string, passages []string) ([]RankedPassage, error)

	Close() error
}

// DefaultMinScore drops candidates the reranker considers irrelevant.
const DefaultMinScore = 0.1

// Judge scores candidates with a cross-encoder. Scores outside [0, 1] are
// treated as logits. Candidates at or below MinScore are dropped and the
// rest normalized to sum to one.
type Judge struct {
	client   Client
	MinScore float64
}

var _ search.RelevanceJudge = (*Judge)(nil)

// NewJudge creates a cross-encoder relevance judge.
func NewJudge(client Client) *Judge {
	return &Judge{client: client, MinScore: DefaultMinScore}
}

// ScoreCandidates implements search.RelevanceJudge.
func (j *Judge) ScoreCandidates(ctx context.Context, rc search.RouteContext, candidates []search.Candidate) (search.Scores, error) {
	if len(candidates) == 0 || rc.Route == nil {
		return search.Scores{}, nil
	}
	passages := make([]string, len(candidates))
	for i, c := range candidates {
		passages[i] = c.Text
	}
	ranked, err := j.client.Rank(ctx, rc.Route.Text(), passages)
	if err != nil {
		return search.Scores{}, fmt.Errorf("failed to rank candidates: %w", err)
	}

	values := make(map[string]float64, len(ranked))
	var total float64
	for _, r := range ranked {
		if r.Index < 0 || r.Index >= len(candidates) {
			return search.Scores{}, fmt.Errorf("reranker returned passage index %d for %d passages", r.Index, len(candidates))
		}
		s := probability(r.Score)
		if s <= j.MinScore {
			continue
		}
		values[candidates[r.Index].ID] = s
		total += s
	}
	for id, s := range values {
		values[id] = s / total
	}
	return search.Scores{Values: values, Rationale: "cross-encoder relevance to the route"}, nil
}

func probability(score float64) float64 {
	if score >= 0 && score <= 1 {
		return score
	}
	return 1 / (1 + math.Exp(-score))
}
