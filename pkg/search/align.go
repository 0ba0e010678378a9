package search

import (
	"context"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/soundprediction/kgroute/pkg/driver"
	"github.com/soundprediction/kgroute/pkg/types"
	"github.com/soundprediction/kgroute/pkg/utils"
)

// Aligner maps topic strings to graph entities.
type Aligner struct {
	graph       driver.GraphAccess
	judge       RelevanceJudge
	embedder    Embedder
	topK        int
	concurrency int
	logger      *slog.Logger
}

// NewAligner creates an aligner considering up to topK entities per topic.
// embedder may be nil, in which case only name lookups are made.
func NewAligner(graph driver.GraphAccess, judge RelevanceJudge, embedder Embedder, topK, concurrency int, logger *slog.Logger) *Aligner {
	if topK <= 0 {
		topK = DefaultAlignTopK
	}
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Aligner{graph: graph, judge: judge, embedder: embedder, topK: topK, concurrency: concurrency, logger: logger}
}

// Align returns the hop-0 seeds of a route. Every topic carries an equal
// share of the total weight, split by the judge among its candidates.
func (a *Aligner) Align(ctx context.Context, route *types.Route, topics []string) ([]types.ScoredEntity, error) {
	topics = utils.DedupeStrings(topics)
	if len(topics) == 0 {
		return nil, nil
	}
	share := 1 / float64(len(topics))
	perTopic := make([][]types.ScoredEntity, len(topics))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.concurrency)
	for i, topic := range topics {
		g.Go(func() (err error) {
			defer utils.RecoverAsError(&err)

			entities, err := a.lookup(gctx, topic)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				a.logger.Warn("topic lookup failed", "topic", topic, "error", err)
				return nil
			}
			rc := RouteContext{Route: route, Kind: KindEntity, Width: len(entities)}
			kept, err := judgeCandidates(gctx, a.judge, rc, EntityCandidates(entities, route.QueryTime), a.logger)
			if err != nil {
				return err
			}
			for _, k := range kept {
				perTopic[i] = append(perTopic[i], types.ScoredEntity{Entity: k.Entity, Score: k.score * share})
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var out []types.ScoredEntity
	for i, seeds := range perTopic {
		a.logger.Debug("topic aligned", "route", route.Index, "topic", topics[i], "entities", len(seeds))
		out = append(out, seeds...)
	}
	return out, nil
}

// lookup collects candidate entities for one topic: the closest names first,
// then nearest neighbours of the topic embedding.
func (a *Aligner) lookup(ctx context.Context, topic string) ([]*types.Entity, error) {
	byName, err := a.graph.GetEntities(ctx, driver.EntityQuery{
		Name:  topic,
		Fuzzy: true,
		TopK:  max(1, min(4, a.topK/2)),
	})
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	var out []*types.Entity
	add := func(found []types.ScoredEntity) {
		for _, f := range found {
			if f.Entity == nil || seen[f.Entity.ID] || len(out) >= a.topK {
				continue
			}
			seen[f.Entity.ID] = true
			out = append(out, f.Entity)
		}
	}
	add(byName)

	if len(out) >= a.topK || a.embedder == nil {
		return out, nil
	}
	vec, err := a.embedder.EmbedSingle(ctx, topic)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		a.logger.Warn("failed to embed topic", "topic", topic, "error", err)
		return out, nil
	}
	similar, err := a.graph.GetEntities(ctx, driver.EntityQuery{
		Embedding: vec,
		TopK:      a.topK - len(out),
	})
	if err != nil {
		if ctx.Err() != nil || len(out) == 0 {
			return nil, err
		}
		a.logger.Warn("vector lookup failed, keeping name matches", "topic", topic, "error", err)
		return out, nil
	}
	add(similar)
	return out, nil
}
