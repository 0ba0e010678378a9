package search

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/soundprediction/kgroute/pkg/driver"
	"github.com/soundprediction/kgroute/pkg/types"
)

var quietLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

// fakeRelevance scores every candidate with score. Candidates scored 0 are
// omitted, like a sparse judge answer.
type fakeRelevance struct {
	mu    sync.Mutex
	calls []RouteContext
	sizes []int
	score func(rc RouteContext, c Candidate) float64
	err   error
}

func (f *fakeRelevance) ScoreCandidates(_ context.Context, rc RouteContext, candidates []Candidate) (Scores, error) {
	f.mu.Lock()
	f.calls = append(f.calls, rc)
	f.sizes = append(f.sizes, len(candidates))
	f.mu.Unlock()
	if f.err != nil {
		return Scores{}, f.err
	}
	out := Scores{Values: make(map[string]float64)}
	for _, c := range candidates {
		if s := f.score(rc, c); s != 0 {
			out.Values[c.ID] = s
		}
	}
	return out, nil
}

func (f *fakeRelevance) callsOf(kind CandidateKind) (calls []RouteContext, sizes []int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, rc := range f.calls {
		if rc.Kind == kind {
			calls = append(calls, rc)
			sizes = append(sizes, f.sizes[i])
		}
	}
	return calls, sizes
}

// seedOn aligns only the entity named name and keeps every relation.
func seedOn(name string) func(RouteContext, Candidate) float64 {
	return func(rc RouteContext, c Candidate) float64 {
		if rc.Kind == KindEntity {
			if c.Entity.Name == name {
				return 1
			}
			return 0
		}
		return 1
	}
}

type fakeSufficiency struct {
	mu        sync.Mutex
	evaluate  func(rc RouteContext, ev *types.EvidenceBundle) (Verdict, error)
	consensus func(in ConsensusInput) (ConsensusVerdict, error)
	direct    Verdict
	directErr error

	evaluations    int
	consensusCalls []ConsensusInput
	directCalls    int
}

func (f *fakeSufficiency) Evaluate(_ context.Context, rc RouteContext, ev *types.EvidenceBundle) (Verdict, error) {
	f.mu.Lock()
	f.evaluations++
	f.mu.Unlock()
	if f.evaluate == nil {
		return Verdict{Answer: types.UnknownAnswer}, nil
	}
	return f.evaluate(rc, ev)
}

func (f *fakeSufficiency) Consensus(_ context.Context, in ConsensusInput) (ConsensusVerdict, error) {
	f.mu.Lock()
	f.consensusCalls = append(f.consensusCalls, in)
	f.mu.Unlock()
	if f.consensus == nil {
		return ConsensusVerdict{}, nil
	}
	return f.consensus(in)
}

func (f *fakeSufficiency) AnswerDirectly(context.Context, string, time.Time) (Verdict, error) {
	f.mu.Lock()
	f.directCalls++
	f.mu.Unlock()
	return f.direct, f.directErr
}

func (f *fakeSufficiency) counts() (evaluations, consensus, direct int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.evaluations, len(f.consensusCalls), f.directCalls
}

type fixedTopics []string

func (t fixedTopics) ExtractTopics(context.Context, *types.Route) ([]string, error) {
	return t, nil
}

type fakePlanner struct {
	routes [][]string
	err    error
}

func (p *fakePlanner) Plan(context.Context, string, time.Time, int) ([]*types.Route, error) {
	if p.err != nil {
		return nil, p.err
	}
	out := make([]*types.Route, len(p.routes))
	for i, objs := range p.routes {
		out[i] = &types.Route{SubObjectives: objs}
	}
	return out, nil
}

type recordingTracer struct {
	mu     sync.Mutex
	runIDs []string
	routes []int
}

func (r *recordingTracer) TraceRoute(_ context.Context, runID string, res *types.RouteResult) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runIDs = append(r.runIDs, runID)
	r.routes = append(r.routes, res.Route.Index)
	return nil
}

func node(name string) *types.Entity {
	return &types.Entity{ID: name, Type: "Node", Name: name}
}

// newGraph stores the named nodes and an edge "X>Y" for every "X>Y" pair.
func newGraph(t *testing.T, nodes []string, edges ...string) *driver.MemoryDriver {
	t.Helper()
	ctx := context.Background()
	g := driver.NewMemoryDriver(nil)
	for _, n := range nodes {
		require.NoError(t, g.UpsertEntity(ctx, node(n), nil))
	}
	for _, e := range edges {
		var src, dst string
		for i := range e {
			if e[i] == '>' {
				src, dst = e[:i], e[i+1:]
			}
		}
		require.NotEmpty(t, src, e)
		r := &types.Relation{
			ID:        e,
			Name:      "LINKS_TO",
			Source:    node(src),
			Target:    node(dst),
			Direction: types.DirectionForward,
		}
		require.NoError(t, g.UpsertRelation(ctx, r, nil))
	}
	return g
}

// starGraph links center to leaves L0..L(n-1).
func starGraph(t *testing.T, n int) *driver.MemoryDriver {
	t.Helper()
	nodes := []string{"A"}
	var edges []string
	for i := 0; i < n; i++ {
		leaf := fmt.Sprintf("L%d", i)
		nodes = append(nodes, leaf)
		edges = append(edges, "A>"+leaf)
	}
	return newGraph(t, nodes, edges...)
}

func seedFrontier(scores map[string]float64, order ...string) *types.Frontier {
	seeds := make([]types.ScoredEntity, 0, len(order))
	for _, name := range order {
		seeds = append(seeds, types.ScoredEntity{Entity: node(name), Score: scores[name]})
	}
	return types.NewFrontier(seeds)
}

func testRoute() *types.Route {
	return &types.Route{
		Question:      "Where does A lead?",
		QueryTime:     time.Date(2024, 3, 5, 12, 0, 0, 0, time.UTC),
		SubObjectives: []string{"Find A", "Follow its links"},
	}
}
