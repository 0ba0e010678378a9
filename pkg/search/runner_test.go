package search

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soundprediction/kgroute/pkg/driver"
	"github.com/soundprediction/kgroute/pkg/types"
)

func newRunner(g *driver.MemoryDriver, rel RelevanceJudge, suff SufficiencyJudge, depth int) *RouteRunner {
	aligner := NewAligner(g, rel, nil, DefaultAlignTopK, 2, quietLogger)
	expander := NewExpander(g, rel, 2, quietLogger)
	return NewRouteRunner(fixedTopics{"A"}, aligner, expander, suff, 30, depth, quietLogger)
}

func chain(t *testing.T, n int) *driver.MemoryDriver {
	t.Helper()
	names := []string{"A", "B", "C", "D", "E", "F"}[:n]
	var edges []string
	for i := 1; i < n; i++ {
		edges = append(edges, names[i-1]+">"+names[i])
	}
	return newGraph(t, names, edges...)
}

func TestRouteSufficientAtHopZero(t *testing.T) {
	g := chain(t, 3)
	suff := &fakeSufficiency{evaluate: func(rc RouteContext, ev *types.EvidenceBundle) (Verdict, error) {
		return Verdict{Sufficient: true, Answer: "A itself", Rationale: "topic suffices"}, nil
	}}
	res := newRunner(g, &fakeRelevance{score: seedOn("A")}, suff, 3).Run(context.Background(), testRoute(), Budget{})

	assert.Equal(t, types.RouteSufficient, res.State)
	assert.Equal(t, 0, res.Depth)
	assert.Equal(t, "A itself", res.Answer)
	assert.Equal(t, `"A itself". topic suffices`, res.Summary())
	require.Len(t, res.Evidence.TopicEntities, 1)
	assert.InDelta(t, 1.0, res.Evidence.TopicEntities[0].Score, 1e-9)
	assert.Contains(t, res.Context(), "ent_0: (Node: A)")
}

func TestDepthBound(t *testing.T) {
	for _, depth := range []int{1, 2, 3} {
		t.Run(fmt.Sprintf("depth=%d", depth), func(t *testing.T) {
			g := chain(t, 6)
			suff := &fakeSufficiency{direct: Verdict{Answer: "from memory"}}
			res := newRunner(g, &fakeRelevance{score: seedOn("A")}, suff, depth).Run(context.Background(), testRoute(), Budget{})

			assert.Equal(t, depth, res.Depth)
			assert.Equal(t, depth, res.Evidence.Depth())
			evaluations, _, _ := suff.counts()
			assert.Equal(t, depth+1, evaluations)
		})
	}
}

func TestScenarioDepthExhaustion(t *testing.T) {
	g := chain(t, 6)
	suff := &fakeSufficiency{
		evaluate: func(rc RouteContext, ev *types.EvidenceBundle) (Verdict, error) {
			return Verdict{Answer: types.UnknownAnswer, Rationale: fmt.Sprintf("%d hops are not enough", ev.Depth())}, nil
		},
		direct: Verdict{Answer: "E", Rationale: "recalled"},
	}
	res := newRunner(g, &fakeRelevance{score: seedOn("A")}, suff, 3).Run(context.Background(), testRoute(), Budget{})

	require.NoError(t, res.Err)
	assert.Equal(t, types.RouteExhausted, res.State)
	assert.Equal(t, 3, res.Depth)
	assert.Equal(t, "E", res.Answer)
	assert.Equal(t, "recalled", res.Rationale)
	assert.Equal(t, []string{
		"(Node: A)-[LINKS_TO]->(Node: B)",
		"(Node: B)-[LINKS_TO]->(Node: C)",
		"(Node: C)-[LINKS_TO]->(Node: D)",
	}, res.Evidence.Lines())

	evaluations, _, direct := suff.counts()
	assert.Equal(t, 4, evaluations)
	assert.Equal(t, 1, direct)
}

func TestNoProgressTermination(t *testing.T) {
	g := newGraph(t, []string{"A"})
	suff := &fakeSufficiency{evaluate: func(rc RouteContext, ev *types.EvidenceBundle) (Verdict, error) {
		return Verdict{Answer: fmt.Sprintf("guess at depth %d", ev.Depth())}, nil
	}}
	res := newRunner(g, &fakeRelevance{score: seedOn("A")}, suff, 3).Run(context.Background(), testRoute(), Budget{})

	assert.Equal(t, types.RouteExhausted, res.State)
	assert.Equal(t, 1, res.Depth)
	assert.Equal(t, "guess at depth 1", res.Answer, "the final pass answers even when insufficient")

	evaluations, _, direct := suff.counts()
	assert.Equal(t, 2, evaluations)
	assert.Equal(t, 0, direct)
}

func TestSufficientHopWithoutProgress(t *testing.T) {
	g := newGraph(t, []string{"A"})
	suff := &fakeSufficiency{evaluate: func(rc RouteContext, ev *types.EvidenceBundle) (Verdict, error) {
		if ev.Depth() == 1 {
			return Verdict{Sufficient: true, Answer: "A"}, nil
		}
		return Verdict{Answer: types.UnknownAnswer}, nil
	}}
	res := newRunner(g, &fakeRelevance{score: seedOn("A")}, suff, 3).Run(context.Background(), testRoute(), Budget{})

	assert.Equal(t, types.RouteSufficient, res.State)
	assert.Equal(t, 1, res.Depth)
	assert.Equal(t, "A", res.Answer)
}

func TestRouteSufficientAfterHop(t *testing.T) {
	g := chain(t, 4)
	suff := &fakeSufficiency{evaluate: func(rc RouteContext, ev *types.EvidenceBundle) (Verdict, error) {
		if ev.Depth() == 2 {
			return Verdict{Sufficient: true, Answer: "C"}, nil
		}
		return Verdict{Answer: types.UnknownAnswer}, nil
	}}
	res := newRunner(g, &fakeRelevance{score: seedOn("A")}, suff, 3).Run(context.Background(), testRoute(), Budget{})

	assert.Equal(t, types.RouteSufficient, res.State)
	assert.Equal(t, 2, res.Depth)
	assert.Equal(t, "C", res.Answer)
	n, total := res.Evidence.Strength()
	assert.Equal(t, 2, n)
	assert.InDelta(t, 2.0, total, 1e-9)
}

func TestRouteJudgeFailureIsUnknown(t *testing.T) {
	g := chain(t, 3)
	suff := &fakeSufficiency{evaluate: func(RouteContext, *types.EvidenceBundle) (Verdict, error) {
		return Verdict{}, errors.New("judge unavailable")
	}}
	res := newRunner(g, &fakeRelevance{score: seedOn("A")}, suff, 3).Run(context.Background(), testRoute(), Budget{})

	require.NoError(t, res.Err)
	assert.True(t, res.Unknown())
	assert.Equal(t, types.UnknownAnswer, res.Answer)
}

func TestRouteCancelled(t *testing.T) {
	g := chain(t, 3)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res := newRunner(g, &fakeRelevance{score: seedOn("A")}, &fakeSufficiency{}, 3).Run(ctx, testRoute(), Budget{})

	require.ErrorIs(t, res.Err, context.Canceled)
	assert.True(t, res.Unknown())
}
