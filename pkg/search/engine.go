package search

import (
	"context"
	"hash/fnv"
	"log/slog"
	"strings"
	"time"

	"github.com/soundprediction/kgroute/pkg/driver"
	"github.com/soundprediction/kgroute/pkg/types"
	"github.com/soundprediction/kgroute/pkg/utils"
)

// ErrEmptyQuestion is returned by Answer for a blank question.
var ErrEmptyQuestion = types.ErrEmptyQuestion

// Engine answers questions by exploring a knowledge graph along planned routes.
type Engine struct {
	graph       driver.GraphAccess
	planner     Planner
	relevance   RelevanceJudge
	sufficiency SufficiencyJudge
	topics      TopicExtractor
	embedder    Embedder
	tracer      Tracer
	cfg         Config
	logger      *slog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithTopicExtractor sets how route topics are named.
func WithTopicExtractor(t TopicExtractor) Option {
	return func(e *Engine) { e.topics = t }
}

// WithEmbedder enables vector alignment and triplet re-ranking.
func WithEmbedder(emb Embedder) Option {
	return func(e *Engine) { e.embedder = emb }
}

// WithTracer records every finished route.
func WithTracer(t Tracer) Option {
	return func(e *Engine) { e.tracer = t }
}

// WithLogger sets the engine logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// NewEngine creates an engine over graph.
func NewEngine(graph driver.GraphAccess, planner Planner, relevance RelevanceJudge, sufficiency SufficiencyJudge, cfg Config, opts ...Option) *Engine {
	e := &Engine{
		graph:       graph,
		planner:     planner,
		relevance:   relevance,
		sufficiency: sufficiency,
		cfg:         cfg.WithDefaults(),
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Config returns the effective configuration.
func (e *Engine) Config() Config {
	return e.cfg
}

// AnswerOptions override the engine configuration for one question.
type AnswerOptions struct {
	// QueryTime is the time the question is asked at. Zero means now.
	QueryTime time.Time
	MaxRoutes int
	Width     int
	Depth     int
}

// Answer answers question. Judge and graph failures degrade the answer to
// "I don't know."; only a blank question or a cancelled context fail.
func (e *Engine) Answer(ctx context.Context, question string, opts AnswerOptions) (*types.AnswerResult, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, ErrEmptyQuestion
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	cfg := e.cfg
	if opts.MaxRoutes > 0 {
		cfg.MaxRoutes = opts.MaxRoutes
	}
	if opts.Width > 0 {
		cfg.Width = opts.Width
	}
	if opts.Depth > 0 {
		cfg.Depth = opts.Depth
	}
	queryTime := opts.QueryTime
	if queryTime.IsZero() {
		queryTime = time.Now()
	}

	runID := utils.NewRunID()
	ctx = context.WithValue(ctx, types.ContextKeyRunID, runID)
	logger := e.logger.With("run_id", runID)
	start := time.Now()

	budget := Budget{CandidateCap: cfg.CandidateCap, Seed: uint64(cfg.Seed)}
	if cfg.Seed == 0 {
		budget.Seed = seedFromRunID(runID)
	}
	if e.embedder != nil {
		vec, err := e.embedder.EmbedSingle(ctx, question)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			logger.Warn("failed to embed question, triplets are not re-ranked", "error", err)
		}
		budget.QueryEmbedding = vec
	}

	routes := e.plan(ctx, question, queryTime, cfg.MaxRoutes, logger)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	logger.Info("question planned", "routes", len(routes))

	aligner := NewAligner(e.graph, e.relevance, e.embedder, cfg.AlignTopK, cfg.Concurrency, logger)
	expander := NewExpander(e.graph, e.relevance, cfg.Concurrency, logger)
	runner := NewRouteRunner(e.topics, aligner, expander, e.sufficiency, cfg.Width, cfg.Depth, logger)
	finalizer := NewFinalizer(e.sufficiency, logger)

	run := func(ctx context.Context, route *types.Route) *types.RouteResult {
		res := runner.Run(ctx, route, budget)
		logger.Info("route finished",
			"route", route.Index,
			"state", res.State,
			"depth", res.Depth,
			"duration", res.Duration)
		if e.tracer != nil && ctx.Err() == nil {
			if err := e.tracer.TraceRoute(ctx, runID, res); err != nil {
				logger.Warn("failed to trace route", "route", route.Index, "error", err)
			}
		}
		return res
	}

	d, err := finalizer.Finalize(ctx, question, queryTime, routes, run)
	if err != nil {
		return nil, err
	}
	logger.Info("question answered", "decision", d.Decision, "duration", time.Since(start))

	return &types.AnswerResult{
		RunID:         runID,
		Question:      question,
		QueryTime:     queryTime,
		Answer:        d.Answer,
		Decision:      d.Decision,
		DirectAttempt: d.Direct,
		Routes:        d.Routes,
	}, nil
}

// plan asks the planner for routes, falling back to the question itself.
func (e *Engine) plan(ctx context.Context, question string, queryTime time.Time, maxRoutes int, logger *slog.Logger) []*types.Route {
	var routes []*types.Route
	if e.planner != nil {
		planned, err := e.planner.Plan(ctx, question, queryTime, maxRoutes)
		if err != nil && ctx.Err() == nil {
			logger.Warn("planner failed, exploring the question as a single route", "error", err)
		}
		for _, r := range planned {
			if r != nil && len(r.SubObjectives) > 0 {
				routes = append(routes, r)
			}
		}
	}
	if len(routes) == 0 {
		routes = []*types.Route{{SubObjectives: []string{question}}}
	}
	if maxRoutes > 0 && len(routes) > maxRoutes {
		routes = routes[:maxRoutes]
	}
	for i, r := range routes {
		r.Index = i
		r.Question = question
		if r.QueryTime.IsZero() {
			r.QueryTime = queryTime
		}
	}
	return routes
}

// seedFromRunID derives the sampling seed of a run, so a run replays with its id.
func seedFromRunID(runID string) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(runID))
	return h.Sum64()
}
