package search

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand/v2"
	"sort"
	"time"

	"github.com/soundprediction/kgroute/pkg/types"
)

// EntityCandidates labels entities ent_0, ent_1, ... in order.
func EntityCandidates(entities []*types.Entity, now time.Time) []Candidate {
	out := make([]Candidate, len(entities))
	for i, e := range entities {
		out[i] = Candidate{
			ID:     fmt.Sprintf("ent_%d", i),
			Text:   types.EntityText(e, types.TextOptions{Now: now}),
			Entity: e,
		}
	}
	return out
}

// RelationCandidates labels relations rel_0, rel_1, ... in order.
func RelationCandidates(relations []*types.Relation, opts types.TextOptions) []Candidate {
	out := make([]Candidate, len(relations))
	for i, r := range relations {
		out[i] = Candidate{
			ID:       fmt.Sprintf("rel_%d", i),
			Text:     types.RelationText(r, opts),
			Relation: r,
		}
	}
	return out
}

// scoredCandidate is a candidate with the judge's local score.
type scoredCandidate struct {
	Candidate
	score float64
}

// judgeCandidates asks the judge to score candidates and returns those with
// a positive finite score, in candidate order. Judge failures other than
// cancellation yield no candidates.
func judgeCandidates(ctx context.Context, judge RelevanceJudge, rc RouteContext, candidates []Candidate, logger *slog.Logger) ([]scoredCandidate, error) {
	if len(candidates) == 0 {
		return nil, nil
	}
	scores, err := judge.ScoreCandidates(ctx, rc, candidates)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		if errors.Is(err, context.Canceled) {
			return nil, err
		}
		logger.Warn("relevance judge failed, dropping candidates",
			"kind", rc.Kind,
			"candidates", len(candidates),
			"error", err)
		return nil, nil
	}
	var out []scoredCandidate
	for _, c := range candidates {
		s, ok := scores.Values[c.ID]
		if !ok || math.IsNaN(s) || math.IsInf(s, 0) || s <= 0 {
			continue
		}
		out = append(out, scoredCandidate{Candidate: c, score: s})
	}
	return out, nil
}

// sampleRelations keeps at most limit relations, drawn uniformly without
// replacement and returned in their original order.
func sampleRelations(rng *rand.Rand, relations []*types.Relation, limit int) []*types.Relation {
	if limit <= 0 || len(relations) <= limit {
		return relations
	}
	picked := rng.Perm(len(relations))[:limit]
	sort.Ints(picked)
	out := make([]*types.Relation, limit)
	for i, idx := range picked {
		out[i] = relations[idx]
	}
	return out
}

// rankRelations sorts by score descending, keeping discovery order among
// ties, removes repeated relation ids, truncates to width and drops
// non-positive scores.
func rankRelations(relations []types.ScoredRelation, width int) []types.ScoredRelation {
	ranked := make([]types.ScoredRelation, len(relations))
	copy(ranked, relations)
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Score > ranked[j].Score
	})

	seen := make(map[string]bool, len(ranked))
	out := ranked[:0]
	for _, r := range ranked {
		if r.Relation == nil || seen[r.Relation.ID] {
			continue
		}
		seen[r.Relation.ID] = true
		out = append(out, r)
	}
	if width > 0 && len(out) > width {
		out = out[:width]
	}

	kept := out[:0]
	for _, r := range out {
		if r.Score > 0 {
			kept = append(kept, r)
		}
	}
	return kept
}

// groupByTarget normalizes relation scores to sum 1 and sums them per
// target entity, in first-appearance order.
func groupByTarget(relations []types.ScoredRelation, step int) []types.ScoredEntity {
	var total float64
	for _, r := range relations {
		total += r.Score
	}
	norm := 1.0
	if total > 0 {
		norm = 1 / total
	}

	index := make(map[string]int)
	var out []types.ScoredEntity
	for _, r := range relations {
		target := r.Relation.Target
		if target == nil {
			continue
		}
		if i, ok := index[target.ID]; ok {
			out[i].Score += r.Score * norm
			continue
		}
		index[target.ID] = len(out)
		out = append(out, types.ScoredEntity{Entity: target, Score: r.Score * norm, Step: step})
	}
	return out
}
