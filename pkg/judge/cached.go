package judge

import (
	"context"
	"errors"
	"log/slog"
	"strconv"

	"github.com/soundprediction/kgroute/pkg/cache"
	"github.com/soundprediction/kgroute/pkg/search"
)

const judgeNamespace = "judge"

// CachedRelevanceJudge memoizes another judge's scores in a cache store,
// keyed by the candidate kind, route, anchor and candidate texts.
type CachedRelevanceJudge struct {
	inner search.RelevanceJudge
	store *cache.Store
	// salt separates judges whose answers differ for the same input, such as
	// two models.
	salt   string
	logger *slog.Logger
}

var _ search.RelevanceJudge = (*CachedRelevanceJudge)(nil)

// NewCachedRelevanceJudge wraps inner. salt should name the model behind it.
func NewCachedRelevanceJudge(inner search.RelevanceJudge, store *cache.Store, salt string) *CachedRelevanceJudge {
	return &CachedRelevanceJudge{inner: inner, store: store, salt: salt, logger: slog.Default()}
}

type cachedScores struct {
	Values    map[string]float64 `json:"values"`
	Rationale string             `json:"rationale,omitempty"`
}

// ScoreCandidates implements search.RelevanceJudge. Failed judgments are not
// cached.
func (c *CachedRelevanceJudge) ScoreCandidates(ctx context.Context, rc search.RouteContext, candidates []search.Candidate) (search.Scores, error) {
	key := c.key(rc, candidates)

	var hit cachedScores
	err := c.store.Get(key, &hit)
	if err == nil {
		return search.Scores{Values: hit.Values, Rationale: hit.Rationale}, nil
	}
	if !errors.Is(err, cache.ErrMiss) {
		c.logger.Warn("judgment cache read failed", "error", err)
	}

	scores, err := c.inner.ScoreCandidates(ctx, rc, candidates)
	if err != nil {
		return scores, err
	}
	if err := c.store.Set(key, cachedScores{Values: scores.Values, Rationale: scores.Rationale}); err != nil {
		c.logger.Warn("judgment cache write failed", "error", err)
	}
	return scores, nil
}

func (c *CachedRelevanceJudge) key(rc search.RouteContext, candidates []search.Candidate) []byte {
	parts := []string{c.salt, string(rc.Kind), strconv.Itoa(rc.Width), rc.Note}
	if rc.Route != nil {
		parts = append(parts, rc.Route.Text())
	}
	if rc.Anchor != nil {
		parts = append(parts, rc.Anchor.ID)
	}
	for _, cand := range candidates {
		parts = append(parts, cand.ID, cand.Text)
	}
	return cache.Key(judgeNamespace, parts...)
}
