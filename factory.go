package kgroute

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/soundprediction/kgroute/pkg/alert"
	"github.com/soundprediction/kgroute/pkg/archive"
	"github.com/soundprediction/kgroute/pkg/cache"
	"github.com/soundprediction/kgroute/pkg/config"
	"github.com/soundprediction/kgroute/pkg/crossencoder"
	"github.com/soundprediction/kgroute/pkg/driver"
	"github.com/soundprediction/kgroute/pkg/embedder"
	"github.com/soundprediction/kgroute/pkg/gliner"
	"github.com/soundprediction/kgroute/pkg/judge"
	"github.com/soundprediction/kgroute/pkg/nlp"
	"github.com/soundprediction/kgroute/pkg/rustbert"
	"github.com/soundprediction/kgroute/pkg/search"
	"github.com/soundprediction/kgroute/pkg/telemetry"
	"github.com/soundprediction/kgroute/pkg/utils"
)

// Judge backends accepted in search.judge.
const (
	JudgeLLM       = "llm"
	JudgeEmbedding = "embedding"
	JudgeRerank    = "rerank"
)

// Topic extractors accepted in topics.extractor.
const (
	TopicsLLM      = "llm"
	TopicsGLiNER   = "gliner"
	TopicsRustBert = "rustbert"
)

type closerFunc func() error

func (f closerFunc) Close() error { return f() }

// builder accumulates what NewClientFromConfig opens so a failure can
// release it.
type builder struct {
	cfg     *config.Config
	logger  *slog.Logger
	closers []io.Closer
}

func (b *builder) own(c io.Closer) {
	b.closers = append(b.closers, c)
}

func (b *builder) release() {
	for i := len(b.closers) - 1; i >= 0; i-- {
		_ = b.closers[i].Close()
	}
}

// NewClientFromConfig builds the graph driver, model clients, judges, cache
// and telemetry described by cfg.
func NewClientFromConfig(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Client, error) {
	if logger == nil {
		logger = slog.Default()
	}
	b := &builder{cfg: cfg, logger: logger}

	client, err := b.build(ctx)
	if err != nil {
		b.release()
		return nil, err
	}
	return client, nil
}

func (b *builder) build(ctx context.Context) (*Client, error) {
	store, err := b.openCache()
	if err != nil {
		return nil, err
	}
	emb, err := b.embedder(store)
	if err != nil {
		return nil, err
	}

	var textEmb driver.TextEmbedder
	if emb != nil {
		textEmb = emb
	}
	graph, err := NewGraphFromConfig(ctx, b.cfg.Database, textEmb)
	if err != nil {
		return nil, err
	}

	models, err := b.models(store, emb)
	if err != nil {
		_ = graph.Close(ctx)
		return nil, err
	}

	conf := &Config{Search: SearchConfigFrom(b.cfg.Search)}
	if b.cfg.Telemetry.TraceRoutes && b.cfg.Telemetry.ParquetPath != "" {
		tracer, err := telemetry.NewRouteTraceWriter(b.cfg.Telemetry.ParquetPath, 0)
		if err != nil {
			_ = graph.Close(ctx)
			return nil, err
		}
		b.own(tracer)
		conf.Tracer = tracer
	}
	// closers run in reverse order of opening
	for i := len(b.closers) - 1; i >= 0; i-- {
		conf.Closers = append(conf.Closers, b.closers[i])
	}

	if a := b.cfg.Archive; a.DSN != "" {
		runs, err := archive.New(ctx, &archive.Config{Type: a.Type, DSN: a.DSN})
		if err != nil {
			_ = graph.Close(ctx)
			return nil, fmt.Errorf("open run archive: %w", err)
		}
		conf.Archive = runs
	}

	client, err := NewClient(graph, models, conf, b.logger)
	if err != nil {
		_ = graph.Close(ctx)
		if conf.Archive != nil {
			_ = conf.Archive.Close()
		}
		return nil, err
	}
	return client, nil
}

// SearchConfigFrom maps the configuration file's search section.
func SearchConfigFrom(s config.SearchConfig) search.Config {
	return search.Config{
		Width:        s.Width,
		Depth:        s.Depth,
		MaxRoutes:    s.MaxRoutes,
		CandidateCap: s.CandidateCap,
		AlignTopK:    s.AlignTopK,
		Concurrency:  s.Concurrency,
		Seed:         s.Seed,
		Domain:       s.Domain,
	}.WithDefaults()
}

// NewGraphFromConfig opens the configured graph store. The memory driver
// loads database.fixture_path when set.
func NewGraphFromConfig(ctx context.Context, db config.DatabaseConfig, emb driver.TextEmbedder) (driver.GraphAccess, error) {
	switch strings.ToLower(db.Driver) {
	case string(driver.GraphProviderNeo4j), "":
		d, err := driver.NewNeo4jDriver(db.URI, db.Username, db.Password, db.Database)
		if err != nil {
			return nil, err
		}
		if db.VectorIndex != "" {
			d.VectorIndex = db.VectorIndex
		}
		return d, nil
	case string(driver.GraphProviderLadybug):
		return driver.NewLadybugDriverWithConfig(driver.DefaultLadybugDriverConfig().WithDBPath(db.URI).WithEmbedder(emb))
	case string(driver.GraphProviderMemory):
		if db.FixturePath == "" {
			return driver.NewMemoryDriver(emb), nil
		}
		fx, err := driver.ReadGraphFixture(db.FixturePath)
		if err != nil {
			return nil, err
		}
		return driver.NewMemoryDriverFromFixture(ctx, fx, emb)
	default:
		return nil, fmt.Errorf("unsupported graph driver %q", db.Driver)
	}
}

func (b *builder) openCache() (*cache.Store, error) {
	if !b.cfg.Cache.Enabled {
		return nil, nil
	}
	store, err := cache.Open(cache.Options{
		Dir: b.cfg.Cache.Path,
		TTL: time.Duration(b.cfg.Cache.TTL) * time.Second,
	})
	if err != nil {
		return nil, err
	}
	b.own(store)
	return store, nil
}

func (b *builder) embedder(store *cache.Store) (embedder.Client, error) {
	emb, err := embedder.NewClient(b.cfg.Embedding)
	if err != nil {
		return nil, fmt.Errorf("failed to create embedder: %w", err)
	}
	if emb == nil {
		return nil, nil
	}
	b.own(emb)
	if store != nil {
		return embedder.NewCachedClient(emb, store, b.cfg.Embedding.Provider+"/"+b.cfg.Embedding.Model), nil
	}
	return emb, nil
}

func (b *builder) models(store *cache.Store, emb embedder.Client) (Models, error) {
	alerter := alert.New(b.cfg.Alert)
	if _, off := alerter.(*alert.NoOpAlerter); off {
		alerter = &alert.LogAlerter{Logger: b.logger}
	}
	var tracker *nlp.ParquetTokenTracker
	if b.cfg.Telemetry.TrackTokens && b.cfg.Telemetry.ParquetPath != "" {
		t, err := nlp.NewTokenTracker(b.cfg.Telemetry.ParquetPath)
		if err != nil {
			b.logger.Warn("Failed to initialize token tracker", "error", err)
		} else {
			tracker = t
			b.own(closerFunc(t.Flush))
		}
	}

	chat := func(name string) (nlp.Client, error) {
		m, ok := b.cfg.NLP.Models[name]
		if !ok {
			return nil, nil
		}
		var c nlp.Client
		if m.Provider == "rustbert" {
			rb := rustbert.NewClient(rustbert.Config{})
			b.own(closerFunc(func() error { rb.Close(); return nil }))
			c = rustbert.NewLLMAdapter(rb, rustbert.TaskGeneration)
		} else {
			var err error
			if c, err = nlp.NewClient(m); err != nil {
				return nil, fmt.Errorf("failed to create %s model: %w", name, err)
			}
		}
		retry := utils.DefaultRetryConfig()
		retry.MaxRetries = b.cfg.NLP.MaxRetries
		c = nlp.Wrap(c, nlp.WrapOptions{
			Name:           name,
			Retry:          &retry,
			CircuitBreaker: b.cfg.CircuitBreaker,
			Alerter:        alerter,
			Tracker:        tracker,
		})
		b.own(c)
		return c, nil
	}

	main, err := chat("default")
	if err != nil {
		return Models{}, err
	}
	if main == nil {
		return Models{}, fmt.Errorf("nlp.models.default is required")
	}
	opts := judge.Options{Domain: b.cfg.Search.Domain, Logger: b.logger}
	llm := judge.NewLLMJudge(main, opts)

	models := Models{Planner: llm, Relevance: llm, Sufficiency: llm, Topics: llm}
	if emb != nil {
		models.Embedder = emb
	}

	salt := "default:" + b.cfg.NLP.Models["default"].Model
	switch strings.ToLower(b.cfg.Search.Judge) {
	case JudgeEmbedding:
		if emb == nil {
			return Models{}, fmt.Errorf("the embedding judge needs an embedder")
		}
		models.Relevance = judge.NewEmbeddingJudge(emb)
		salt = "embedding:" + b.cfg.Embedding.Model
	case JudgeRerank:
		reranker, err := crossencoder.NewEmbedEverythingClient(b.cfg.Search.RerankModel)
		if err != nil {
			return Models{}, err
		}
		b.own(reranker)
		models.Relevance = crossencoder.NewJudge(reranker)
		salt = "rerank:" + b.cfg.Search.RerankModel
	case JudgeLLM, "":
		small, err := chat("small")
		if err != nil {
			return Models{}, err
		}
		if small != nil {
			models.Relevance = judge.NewLLMJudge(small, opts)
			salt = "small:" + b.cfg.NLP.Models["small"].Model
		}
	default:
		return Models{}, fmt.Errorf("unknown judge %q", b.cfg.Search.Judge)
	}
	if store != nil {
		models.Relevance = judge.NewCachedRelevanceJudge(models.Relevance, store, salt)
	}

	topics, err := b.topics()
	if err != nil {
		return Models{}, err
	}
	if topics != nil {
		models.Topics = topics
	}
	return models, nil
}

func (b *builder) topics() (search.TopicExtractor, error) {
	tc := b.cfg.Topics
	switch strings.ToLower(tc.Extractor) {
	case TopicsLLM, "":
		return nil, nil
	case TopicsGLiNER:
		c, err := gliner.NewClient(tc.ModelPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load GLiNER model: %w", err)
		}
		b.own(closerFunc(func() error { c.Close(); return nil }))
		x := gliner.NewTopicExtractor(c, tc.Labels, tc.Threshold)
		x.SetLogger(b.logger)
		return x, nil
	case TopicsRustBert:
		c := rustbert.NewClient(rustbert.Config{NERModelID: tc.ModelPath})
		b.own(closerFunc(func() error { c.Close(); return nil }))
		return rustbert.NewTopicExtractor(c, float64(tc.Threshold)), nil
	default:
		return nil, fmt.Errorf("unknown topic extractor %q", tc.Extractor)
	}
}
