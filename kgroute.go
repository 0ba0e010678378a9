package kgroute

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/soundprediction/kgroute/pkg/archive"
	"github.com/soundprediction/kgroute/pkg/driver"
	"github.com/soundprediction/kgroute/pkg/search"
	"github.com/soundprediction/kgroute/pkg/types"
)

// ErrEmptyQuestion is returned by Answer for a blank question.
var ErrEmptyQuestion = types.ErrEmptyQuestion

// ErrNoArchive is returned by run lookups when no archive is configured.
var ErrNoArchive = errors.New("run archive is not configured")

// Models holds the judges the engine consults. Planner, Relevance and
// Sufficiency are required.
type Models struct {
	Planner     search.Planner
	Relevance   search.RelevanceJudge
	Sufficiency search.SufficiencyJudge
	// Topics defaults to the question itself when nil.
	Topics search.TopicExtractor
	// Embedder enables vector alignment and triplet re-ranking.
	Embedder search.Embedder
}

// Config holds configuration for the Client.
type Config struct {
	Search search.Config
	// Tracer records every explored route.
	Tracer search.Tracer
	// Archive stores every answered question. It is closed with the client.
	Archive archive.Store
	// Closers are released by Close after the graph, in order.
	Closers []io.Closer
}

// AnswerOptions override the configured search for one question.
type AnswerOptions struct {
	// QueryTime is when the question is asked. Zero means now.
	QueryTime time.Time
	MaxRoutes int
	Width     int
	Depth     int
}

// Client is the main implementation of KGRoute.
type Client struct {
	graph   driver.GraphAccess
	engine  *search.Engine
	archive archive.Store
	closers []io.Closer
	logger  *slog.Logger
}

// NewClient creates a client answering over graph with models.
func NewClient(graph driver.GraphAccess, models Models, config *Config, logger *slog.Logger) (*Client, error) {
	if graph == nil {
		return nil, errors.New("a graph is required")
	}
	if models.Planner == nil || models.Relevance == nil || models.Sufficiency == nil {
		return nil, errors.New("planner, relevance and sufficiency judges are required")
	}
	if config == nil {
		config = &Config{Search: search.DefaultConfig()}
	}
	if logger == nil {
		logger = slog.Default()
	}

	opts := []search.Option{search.WithLogger(logger)}
	if models.Topics != nil {
		opts = append(opts, search.WithTopicExtractor(models.Topics))
	}
	if models.Embedder != nil {
		opts = append(opts, search.WithEmbedder(models.Embedder))
	}
	if config.Tracer != nil {
		opts = append(opts, search.WithTracer(config.Tracer))
	}

	return &Client{
		graph:   graph,
		engine:  search.NewEngine(graph, models.Planner, models.Relevance, models.Sufficiency, config.Search, opts...),
		archive: config.Archive,
		closers: config.Closers,
		logger:  logger,
	}, nil
}

// Answer implements Answerer.
func (c *Client) Answer(ctx context.Context, question string, options *AnswerOptions) (*types.AnswerResult, error) {
	var opts search.AnswerOptions
	if options != nil {
		opts = search.AnswerOptions{
			QueryTime: options.QueryTime,
			MaxRoutes: options.MaxRoutes,
			Width:     options.Width,
			Depth:     options.Depth,
		}
	}
	res, err := c.engine.Answer(ctx, question, opts)
	if err != nil {
		return nil, err
	}
	if c.archive != nil {
		if err := c.archive.SaveRun(ctx, res); err != nil {
			c.logger.Warn("failed to archive run", "run_id", res.RunID, "error", err)
		}
	}
	return res, nil
}

// Run implements RunLookup.
func (c *Client) Run(ctx context.Context, runID string) (*archive.Run, error) {
	if c.archive == nil {
		return nil, ErrNoArchive
	}
	return c.archive.GetRun(ctx, runID)
}

// Runs implements RunLookup.
func (c *Client) Runs(ctx context.Context, limit int) ([]*archive.Run, error) {
	if c.archive == nil {
		return nil, ErrNoArchive
	}
	return c.archive.ListRuns(ctx, limit)
}

// EntityTypes implements GraphInspector.
func (c *Client) EntityTypes(ctx context.Context) ([]string, error) {
	return c.graph.GetEntityTypes(ctx)
}

// Ping implements GraphInspector.
func (c *Client) Ping(ctx context.Context) error {
	if _, err := c.graph.GetEntityTypes(ctx); err != nil {
		return fmt.Errorf("graph %s unreachable: %w", c.graph.Provider(), err)
	}
	return nil
}

// SearchConfig returns the effective search configuration.
func (c *Client) SearchConfig() search.Config {
	return c.engine.Config()
}

// GetGraph returns the underlying graph.
func (c *Client) GetGraph() driver.GraphAccess {
	return c.graph
}

// Close implements KGRoute.
func (c *Client) Close(ctx context.Context) error {
	errs := []error{c.graph.Close(ctx)}
	if c.archive != nil {
		errs = append(errs, c.archive.Close())
	}
	for _, closer := range c.closers {
		errs = append(errs, closer.Close())
	}
	return errors.Join(errs...)
}
