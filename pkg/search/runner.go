package search

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/soundprediction/kgroute/pkg/types"
)

// RouteRunner drives one route from topic alignment to an answer.
type RouteRunner struct {
	topics      TopicExtractor
	aligner     *Aligner
	expander    *Expander
	sufficiency SufficiencyJudge
	width       int
	depth       int
	logger      *slog.Logger
}

// NewRouteRunner wires the per-route components. topics may be nil, in which
// case the question itself is the only topic.
func NewRouteRunner(topics TopicExtractor, aligner *Aligner, expander *Expander, sufficiency SufficiencyJudge, width, depth int, logger *slog.Logger) *RouteRunner {
	if width <= 0 {
		width = DefaultWidth
	}
	if depth <= 0 {
		depth = DefaultDepth
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RouteRunner{
		topics:      topics,
		aligner:     aligner,
		expander:    expander,
		sufficiency: sufficiency,
		width:       width,
		depth:       depth,
		logger:      logger,
	}
}

// Run explores route. It never fails: errors are recorded on the result,
// whose answer is then unknown.
func (r *RouteRunner) Run(ctx context.Context, route *types.Route, budget Budget) *types.RouteResult {
	start := time.Now()
	logger := r.logger.With("route", route.Index)
	res := &types.RouteResult{Route: route, State: types.RouteInit}
	defer func() {
		res.Duration = time.Since(start)
		if strings.TrimSpace(res.Answer) == "" {
			res.Answer = types.UnknownAnswer
		}
	}()

	topics := r.extractTopics(ctx, route, logger)
	seeds, err := r.aligner.Align(ctx, route, topics)
	if err != nil {
		res.Err = err
		return res
	}

	frontier := types.NewFrontier(seeds)
	evidence := types.NewEvidenceBundle(frontier.Entities(), route.QueryTime)
	res.Evidence = evidence
	rc := RouteContext{Route: route, Width: r.width}

	verdict, err := r.evaluate(ctx, rc, evidence, logger)
	if err != nil {
		res.Err = err
		return res
	}
	if verdict.Sufficient {
		logger.Debug("route sufficient", "depth", 0)
		r.settle(res, types.RouteSufficient, verdict)
		return res
	}

	res.State = types.RouteExpanding
	for depth := 1; depth <= r.depth; depth++ {
		hop, err := r.expander.Expand(ctx, route, frontier, depth, r.width, budget)
		if err != nil {
			res.Err = err
			return res
		}
		frontier = hop.Frontier
		evidence.AddHop(hop.Relations, route.QueryTime)
		res.Depth = depth

		verdict, err = r.evaluate(ctx, rc, evidence, logger)
		if err != nil {
			res.Err = err
			return res
		}
		if verdict.Sufficient {
			logger.Debug("route sufficient", "depth", depth)
			r.settle(res, types.RouteSufficient, verdict)
			return res
		}
		if !hop.MadeProgress {
			logger.Debug("no new evidence, stopping", "depth", depth)
			r.settle(res, types.RouteExhausted, verdict)
			return res
		}
		logger.Debug("evidence insufficient", "depth", depth, "relations", len(hop.Relations))
	}

	logger.Debug("depth exhausted, answering from the question", "depth", r.depth)
	direct, err := r.sufficiency.AnswerDirectly(ctx, route.Question, route.QueryTime)
	if err != nil {
		if ctx.Err() != nil {
			res.Err = ctx.Err()
			return res
		}
		logger.Warn("direct answer failed", "error", err)
		direct = Verdict{Answer: types.UnknownAnswer, Rationale: verdict.Rationale}
	}
	r.settle(res, types.RouteExhausted, direct)
	return res
}

func (r *RouteRunner) settle(res *types.RouteResult, state types.RouteState, v Verdict) {
	res.State = state
	res.Answer = v.Answer
	res.Rationale = v.Rationale
}

func (r *RouteRunner) extractTopics(ctx context.Context, route *types.Route, logger *slog.Logger) []string {
	if r.topics == nil {
		return []string{route.Question}
	}
	topics, err := r.topics.ExtractTopics(ctx, route)
	if err != nil {
		logger.Warn("topic extraction failed, using the question", "error", err)
		return []string{route.Question}
	}
	logger.Debug("topics extracted", "topics", topics)
	return topics
}

// evaluate asks the sufficiency judge about the evidence. A failing judge
// counts as an insufficient verdict; only cancellation is returned.
func (r *RouteRunner) evaluate(ctx context.Context, rc RouteContext, evidence *types.EvidenceBundle, logger *slog.Logger) (Verdict, error) {
	v, err := r.sufficiency.Evaluate(ctx, rc, evidence)
	if err != nil {
		if ctx.Err() != nil {
			return Verdict{}, ctx.Err()
		}
		logger.Warn("sufficiency judge failed", "depth", evidence.Depth(), "error", err)
		return Verdict{Answer: types.UnknownAnswer}, nil
	}
	return v, nil
}
