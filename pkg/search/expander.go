package search

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"

	"golang.org/x/sync/errgroup"

	"github.com/soundprediction/kgroute/pkg/driver"
	"github.com/soundprediction/kgroute/pkg/types"
	"github.com/soundprediction/kgroute/pkg/utils"
)

// Budget bounds the work of one hop.
type Budget struct {
	// CandidateCap bounds the triplets judged per relation.
	CandidateCap int
	// QueryEmbedding re-ranks triplet candidates by target similarity.
	QueryEmbedding []float32
	// Seed drives candidate sampling.
	Seed uint64
}

// Hop is the outcome of one expansion.
type Hop struct {
	Frontier *types.Frontier
	// Relations is the hop's evidence chain, best first.
	Relations    []types.ScoredRelation
	MadeProgress bool
}

// Expander advances a route frontier by one hop.
type Expander struct {
	graph       driver.GraphAccess
	judge       RelevanceJudge
	concurrency int
	logger      *slog.Logger
}

// NewExpander creates an expander. concurrency bounds the graph and judge
// calls in flight.
func NewExpander(graph driver.GraphAccess, judge RelevanceJudge, concurrency int, logger *slog.Logger) *Expander {
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Expander{graph: graph, judge: judge, concurrency: concurrency, logger: logger}
}

// Expand selects relation types around the frontier, judges the concrete
// triplets behind them and returns the next frontier. Only cancellation is
// reported as an error; failing graph or judge calls shrink the hop.
func (x *Expander) Expand(ctx context.Context, route *types.Route, frontier *types.Frontier, depth, width int, budget Budget) (*Hop, error) {
	if width <= 0 {
		width = DefaultWidth
	}
	logger := x.logger.With("route", route.Index, "depth", depth)

	selected, err := x.selectRelations(ctx, route, frontier, width, logger)
	if err != nil {
		return nil, err
	}
	judged, err := x.judgeTriplets(ctx, route, frontier, selected, width, budget, logger)
	if err != nil {
		return nil, err
	}

	chain := rankRelations(judged, width)
	ids := make([]string, len(chain))
	for i := range chain {
		chain[i].Step = depth
		ids[i] = chain[i].Relation.ID
	}
	next := frontier.Advance(groupByTarget(chain, depth), ids)

	logger.Debug("hop expanded",
		"relation_types", len(selected),
		"triplets", len(judged),
		"kept", len(chain),
		"frontier", next.Len())

	return &Hop{Frontier: next, Relations: chain, MadeProgress: len(chain) > 0}, nil
}

// selectRelations scores the relation types around every frontier entity and
// weights them by the entity's score.
func (x *Expander) selectRelations(ctx context.Context, route *types.Route, frontier *types.Frontier, width int, logger *slog.Logger) ([]types.ScoredRelation, error) {
	entities := frontier.Entities()
	perEntity := make([][]types.ScoredRelation, len(entities))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(x.concurrency)
	for i, se := range entities {
		if se.Entity == nil {
			continue
		}
		g.Go(func() (err error) {
			defer utils.RecoverAsError(&err)

			found, err := x.graph.GetRelations(gctx, driver.RelationQuery{Source: se.Entity, UniqueByType: true})
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				logger.Warn("failed to list relation types", "entity", se.Entity.ID, "error", err)
				return nil
			}
			if len(found) == 0 {
				return nil
			}

			shapes := make([]*types.Relation, len(found))
			for j, f := range found {
				shapes[j] = f.Relation.TypeOnly()
			}
			rc := RouteContext{Route: route, Kind: KindRelation, Anchor: se.Entity, Width: width}
			cands := RelationCandidates(shapes, types.TextOptions{Now: route.QueryTime})
			kept, err := judgeCandidates(gctx, x.judge, rc, cands, logger)
			if err != nil {
				return err
			}
			for _, k := range kept {
				perEntity[i] = append(perEntity[i], types.ScoredRelation{Relation: k.Relation, Score: k.score * se.Score})
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var out []types.ScoredRelation
	for _, rels := range perEntity {
		out = append(out, rels...)
	}
	return out, nil
}

// judgeTriplets fetches the concrete relations behind each selected relation
// type and scores them in batches of at most width.
func (x *Expander) judgeTriplets(ctx context.Context, route *types.Route, frontier *types.Frontier, selected []types.ScoredRelation, width int, budget Budget, logger *slog.Logger) ([]types.ScoredRelation, error) {
	perRelation := make([][]types.ScoredRelation, len(selected))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(x.concurrency)
	for i, sr := range selected {
		g.Go(func() (err error) {
			defer utils.RecoverAsError(&err)

			candidates, err := x.triplets(gctx, frontier, sr.Relation, budget.QueryEmbedding)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				logger.Warn("failed to fetch triplets", "relation", sr.Relation.Name, "error", err)
				return nil
			}
			if len(candidates) == 0 {
				return nil
			}

			note := ""
			if budget.CandidateCap > 0 && len(candidates) > budget.CandidateCap {
				rng := rand.New(rand.NewPCG(budget.Seed, uint64(i)))
				note = fmt.Sprintf("...(%d relation(s) truncated)", len(candidates)-budget.CandidateCap)
				candidates = sampleRelations(rng, candidates, budget.CandidateCap)
			}

			for _, batch := range utils.Batch(candidates, width) {
				rc := RouteContext{Route: route, Kind: KindTriplet, Anchor: sr.Relation.Source, Width: width, Note: note}
				cands := RelationCandidates(batch, types.TextOptions{Now: route.QueryTime, OmitSourceDetails: true})
				kept, err := judgeCandidates(gctx, x.judge, rc, cands, logger)
				if err != nil {
					return err
				}
				for _, k := range kept {
					perRelation[i] = append(perRelation[i], types.ScoredRelation{Relation: k.Relation, Score: k.score * sr.Score})
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var out []types.ScoredRelation
	for _, rels := range perRelation {
		out = append(out, rels...)
	}
	return out, nil
}

// triplets lists unvisited relations matching shape's source, name and
// target type.
func (x *Expander) triplets(ctx context.Context, frontier *types.Frontier, shape *types.Relation, queryEmbedding []float32) ([]*types.Relation, error) {
	q := driver.RelationQuery{
		Source:          shape.Source,
		Relation:        shape.Name,
		TargetEmbedding: queryEmbedding,
	}
	if shape.Target != nil {
		q.TargetType = shape.Target.Type
	}
	found, err := x.graph.GetRelations(ctx, q)
	if err != nil {
		return nil, err
	}
	out := make([]*types.Relation, 0, len(found))
	for _, f := range found {
		if f.Relation == nil || frontier.Visited(f.Relation.ID) {
			continue
		}
		out = append(out, f.Relation)
	}
	return out, nil
}
