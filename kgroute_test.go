package kgroute

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soundprediction/kgroute/pkg/archive"
	"github.com/soundprediction/kgroute/pkg/config"
	"github.com/soundprediction/kgroute/pkg/driver"
	"github.com/soundprediction/kgroute/pkg/search"
	"github.com/soundprediction/kgroute/pkg/types"
)

var quietLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

const movieFixture = `
entities:
  - id: m1
    type: Movie
    name: Heat
    timestamp: "1995-12-15"
  - id: p1
    type: Person
    name: Michael Mann
  - id: p2
    type: Person
    name: Al Pacino
relations:
  - id: r1
    name: DIRECTED_BY
    source: m1
    target: p1
  - id: r2
    name: STARRING
    source: m1
    target: p2
`

// scriptedJudge keeps everything and answers once the director shows up.
type scriptedJudge struct {
	routes [][]string
}

func (j *scriptedJudge) Plan(_ context.Context, question string, qt time.Time, _ int) ([]*types.Route, error) {
	out := make([]*types.Route, len(j.routes))
	for i, objs := range j.routes {
		out[i] = &types.Route{Index: i, Question: question, QueryTime: qt, SubObjectives: objs}
	}
	return out, nil
}

func (j *scriptedJudge) ExtractTopics(context.Context, *types.Route) ([]string, error) {
	return []string{"Heat"}, nil
}

func (j *scriptedJudge) ScoreCandidates(_ context.Context, _ search.RouteContext, candidates []search.Candidate) (search.Scores, error) {
	out := search.Scores{Values: make(map[string]float64)}
	for _, c := range candidates {
		out.Values[c.ID] = 1
	}
	return out, nil
}

func (j *scriptedJudge) Evaluate(_ context.Context, _ search.RouteContext, ev *types.EvidenceBundle) (search.Verdict, error) {
	if ev != nil && strings.Contains(ev.Context(), "Michael Mann") {
		return search.Verdict{Sufficient: true, Answer: "Michael Mann", Rationale: "credits"}, nil
	}
	return search.Verdict{Answer: types.UnknownAnswer}, nil
}

func (j *scriptedJudge) Consensus(_ context.Context, in search.ConsensusInput) (search.ConsensusVerdict, error) {
	return search.ConsensusVerdict{Final: true, Answer: in.Completed[len(in.Completed)-1].Answer}, nil
}

func (j *scriptedJudge) AnswerDirectly(context.Context, string, time.Time) (search.Verdict, error) {
	return search.Verdict{Answer: "Martin Scorsese", Rationale: "guess"}, nil
}

func models(j *scriptedJudge) Models {
	return Models{Planner: j, Relevance: j, Sufficiency: j, Topics: j}
}

func movieGraph(t *testing.T) *driver.MemoryDriver {
	t.Helper()
	fx, err := driver.ParseGraphFixture(strings.NewReader(movieFixture))
	require.NoError(t, err)
	g, err := driver.NewMemoryDriverFromFixture(context.Background(), fx, nil)
	require.NoError(t, err)
	return g
}

type closeRecorder struct {
	closed bool
	err    error
}

func (c *closeRecorder) Close() error {
	c.closed = true
	return c.err
}

func TestNewClientValidates(t *testing.T) {
	j := &scriptedJudge{}
	_, err := NewClient(nil, models(j), nil, quietLogger)
	assert.Error(t, err)

	_, err = NewClient(movieGraph(t), Models{Planner: j}, nil, quietLogger)
	assert.Error(t, err)

	c, err := NewClient(movieGraph(t), models(j), nil, nil)
	require.NoError(t, err)
	assert.Equal(t, search.DefaultConfig(), c.SearchConfig())
}

func TestAnswer(t *testing.T) {
	j := &scriptedJudge{routes: [][]string{{"Find the movie Heat", "Find its director"}, {"Find the credits of Heat"}}}
	c, err := NewClient(movieGraph(t), models(j), &Config{Search: search.Config{Seed: 7}}, quietLogger)
	require.NoError(t, err)

	res, err := c.Answer(context.Background(), "Who directed Heat?", &AnswerOptions{
		QueryTime: time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC),
		MaxRoutes: 2,
	})
	require.NoError(t, err)
	assert.Equal(t, "Michael Mann", res.Answer)
	assert.Contains(t, []types.Decision{types.DecisionMajority, types.DecisionConsensus}, res.Decision)
	require.NotNil(t, res.DirectAttempt)
	assert.Equal(t, "Martin Scorsese", res.DirectAttempt.Answer)
	assert.NotEmpty(t, res.RunID)
	require.NotEmpty(t, res.Routes)
	assert.Equal(t, types.RouteSufficient, res.Routes[0].State)
}

// memoryArchive keeps runs in a map.
type memoryArchive struct {
	runs    map[string]*archive.Run
	saveErr error
	closed  bool
}

func (m *memoryArchive) Initialize(context.Context) error { return nil }

func (m *memoryArchive) SaveRun(_ context.Context, res *types.AnswerResult) error {
	if m.saveErr != nil {
		return m.saveErr
	}
	if m.runs == nil {
		m.runs = map[string]*archive.Run{}
	}
	m.runs[res.RunID] = archive.NewRun(res, time.Now())
	return nil
}

func (m *memoryArchive) GetRun(_ context.Context, id string) (*archive.Run, error) {
	run, ok := m.runs[id]
	if !ok {
		return nil, archive.ErrNotFound
	}
	return run, nil
}

func (m *memoryArchive) ListRuns(context.Context, int) ([]*archive.Run, error) {
	var out []*archive.Run
	for _, r := range m.runs {
		out = append(out, r)
	}
	return out, nil
}

func (m *memoryArchive) Close() error {
	m.closed = true
	return nil
}

func TestAnswerArchivesRun(t *testing.T) {
	j := &scriptedJudge{routes: [][]string{{"Find the movie Heat", "Find its director"}}}
	store := &memoryArchive{}
	c, err := NewClient(movieGraph(t), models(j), &Config{Search: search.Config{Seed: 7}, Archive: store}, quietLogger)
	require.NoError(t, err)

	res, err := c.Answer(context.Background(), "Who directed Heat?", nil)
	require.NoError(t, err)

	run, err := c.Run(context.Background(), res.RunID)
	require.NoError(t, err)
	assert.Equal(t, res.Answer, run.Answer)
	assert.Equal(t, res.Decision, run.Decision)
	assert.Len(t, run.Routes, len(res.Routes))

	runs, err := c.Runs(context.Background(), 10)
	require.NoError(t, err)
	assert.Len(t, runs, 1)

	_, err = c.Run(context.Background(), "missing")
	assert.ErrorIs(t, err, archive.ErrNotFound)

	require.NoError(t, c.Close(context.Background()))
	assert.True(t, store.closed)
}

func TestAnswerSurvivesArchiveFailure(t *testing.T) {
	j := &scriptedJudge{routes: [][]string{{"Find the movie Heat"}}}
	c, err := NewClient(movieGraph(t), models(j), &Config{Archive: &memoryArchive{saveErr: errors.New("disk full")}}, quietLogger)
	require.NoError(t, err)

	res, err := c.Answer(context.Background(), "Who directed Heat?", nil)
	require.NoError(t, err)
	assert.NotEmpty(t, res.Answer)
}

func TestRunWithoutArchive(t *testing.T) {
	c, err := NewClient(movieGraph(t), models(&scriptedJudge{}), nil, quietLogger)
	require.NoError(t, err)

	_, err = c.Run(context.Background(), "r")
	assert.ErrorIs(t, err, ErrNoArchive)
	_, err = c.Runs(context.Background(), 0)
	assert.ErrorIs(t, err, ErrNoArchive)
}

func TestAnswerEmptyQuestion(t *testing.T) {
	c, err := NewClient(movieGraph(t), models(&scriptedJudge{}), nil, quietLogger)
	require.NoError(t, err)
	_, err = c.Answer(context.Background(), "   ", nil)
	assert.ErrorIs(t, err, ErrEmptyQuestion)
}

func TestGraphInspection(t *testing.T) {
	c, err := NewClient(movieGraph(t), models(&scriptedJudge{}), nil, quietLogger)
	require.NoError(t, err)

	got, err := c.EntityTypes(context.Background())
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"Movie", "Person"}, got)
	assert.NoError(t, c.Ping(context.Background()))

	require.NoError(t, c.Close(context.Background()))
	err = c.Ping(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "memory")
}

func TestCloseJoinsErrors(t *testing.T) {
	ok := &closeRecorder{}
	bad := &closeRecorder{err: errors.New("flush failed")}
	c, err := NewClient(movieGraph(t), models(&scriptedJudge{}), &Config{Closers: []io.Closer{bad, ok}}, quietLogger)
	require.NoError(t, err)

	err = c.Close(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "flush failed")
	assert.True(t, ok.closed)
	assert.True(t, bad.closed)
}

func TestNewGraphFromConfig(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "graph.yaml")
	require.NoError(t, os.WriteFile(path, []byte(movieFixture), 0o644))

	g, err := NewGraphFromConfig(ctx, config.DatabaseConfig{Driver: "memory", FixturePath: path}, nil)
	require.NoError(t, err)
	defer g.Close(ctx)
	assert.Equal(t, driver.GraphProviderMemory, g.Provider())
	found, err := g.GetEntities(ctx, driver.EntityQuery{Name: "Heat"})
	require.NoError(t, err)
	require.NotEmpty(t, found)
	assert.Equal(t, "m1", found[0].Entity.ID)

	_, err = NewGraphFromConfig(ctx, config.DatabaseConfig{Driver: "memory", FixturePath: filepath.Join(t.TempDir(), "missing.yaml")}, nil)
	assert.Error(t, err)

	_, err = NewGraphFromConfig(ctx, config.DatabaseConfig{Driver: "postgres"}, nil)
	assert.ErrorContains(t, err, "unsupported graph driver")
}

func TestSearchConfigFrom(t *testing.T) {
	got := SearchConfigFrom(config.SearchConfig{Width: 5, Seed: 11, Domain: "movie"})
	assert.Equal(t, 5, got.Width)
	assert.Equal(t, int64(11), got.Seed)
	assert.Equal(t, "movie", got.Domain)
	assert.Equal(t, search.DefaultDepth, got.Depth)
	assert.Equal(t, search.DefaultMaxRoutes, got.MaxRoutes)
}

func TestNewClientFromConfigNeedsDefaultModel(t *testing.T) {
	cfg := &config.Config{
		Database:  config.DatabaseConfig{Driver: "memory"},
		Embedding: config.EmbeddingConfig{Provider: "none"},
		Search:    config.SearchConfig{Judge: JudgeLLM},
	}
	_, err := NewClientFromConfig(context.Background(), cfg, quietLogger)
	assert.ErrorContains(t, err, "nlp.models.default")
}

func TestNewClientFromConfigEmbeddingJudgeNeedsEmbedder(t *testing.T) {
	cfg := &config.Config{
		Database:  config.DatabaseConfig{Driver: "memory"},
		Embedding: config.EmbeddingConfig{Provider: "none"},
		NLP: config.NLPConfig{Models: map[string]config.NLPModelConfig{
			"default": {Provider: "openai", Model: "gpt-4o-mini", APIKey: "test"},
		}},
		Search: config.SearchConfig{Judge: JudgeEmbedding},
	}
	_, err := NewClientFromConfig(context.Background(), cfg, quietLogger)
	assert.ErrorContains(t, err, "needs an embedder")
}
