package search

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soundprediction/kgroute/pkg/types"
)

// scriptedRoutes answers route i with answers[i] and evidence of lines[i]
// relations.
type scriptedRoutes struct {
	mu      sync.Mutex
	answers []string
	lines   []int
	ran     []int
}

func (s *scriptedRoutes) run(_ context.Context, route *types.Route) *types.RouteResult {
	s.mu.Lock()
	s.ran = append(s.ran, route.Index)
	s.mu.Unlock()

	ev := types.NewEvidenceBundle(nil, time.Time{})
	if route.Index < len(s.lines) {
		rels := make([]types.ScoredRelation, s.lines[route.Index])
		for i := range rels {
			rels[i] = types.ScoredRelation{Relation: &types.Relation{ID: "r", Source: node("A"), Target: node("B")}, Score: 0.5}
		}
		ev.AddHop(rels, time.Time{})
	}
	return &types.RouteResult{Route: route, Answer: s.answers[route.Index], Evidence: ev, State: types.RouteSufficient}
}

func plannedRoutes(n int) []*types.Route {
	out := make([]*types.Route, n)
	for i := range out {
		out[i] = &types.Route{Index: i, Question: "q", SubObjectives: []string{"step"}}
	}
	return out
}

func TestConsensusMajority(t *testing.T) {
	routes := &scriptedRoutes{answers: []string{"Lyon", "paris.", "Marseille"}}
	suff := &fakeSufficiency{direct: Verdict{Answer: "Paris", Rationale: "capital"}}
	f := NewFinalizer(suff, quietLogger)

	d, err := f.Finalize(context.Background(), "q", time.Time{}, plannedRoutes(3), routes.run)
	require.NoError(t, err)

	assert.Equal(t, types.DecisionMajority, d.Decision)
	assert.Equal(t, "paris.", d.Answer)
	assert.Equal(t, []int{0, 1}, routes.ran, "the third route is skipped")
	assert.Len(t, d.Routes, 2)
	assert.Equal(t, "Paris", d.Direct.Answer)

	_, consensus, direct := suff.counts()
	assert.Equal(t, 0, consensus)
	assert.Equal(t, 1, direct)
}

func TestConsensusJudgeDecides(t *testing.T) {
	routes := &scriptedRoutes{answers: []string{"Lyon", "Paris", "Nice"}}
	suff := &fakeSufficiency{
		direct: Verdict{Answer: "Marseille"},
		consensus: func(in ConsensusInput) (ConsensusVerdict, error) {
			return ConsensusVerdict{Final: true, Answer: "Paris. most routes point there"}, nil
		},
	}
	d, err := NewFinalizer(suff, quietLogger).Finalize(context.Background(), "q", time.Time{}, plannedRoutes(3), routes.run)
	require.NoError(t, err)

	assert.Equal(t, types.DecisionConsensus, d.Decision)
	assert.Equal(t, "Paris. most routes point there", d.Answer)
	assert.Equal(t, []int{0, 1}, routes.ran)

	require.Len(t, suff.consensusCalls, 1)
	in := suff.consensusCalls[0]
	assert.Len(t, in.Completed, 2)
	assert.Equal(t, 1, in.Remaining())
	assert.Equal(t, "Marseille", in.Direct.Answer)
}

func TestConsensusWaitsForTwoRoutes(t *testing.T) {
	routes := &scriptedRoutes{answers: []string{"Paris", "Paris"}}
	suff := &fakeSufficiency{direct: Verdict{Answer: "Paris"}}
	d, err := NewFinalizer(suff, quietLogger).Finalize(context.Background(), "q", time.Time{}, plannedRoutes(2), routes.run)
	require.NoError(t, err)

	assert.Equal(t, types.DecisionMajority, d.Decision)
	assert.Equal(t, []int{0, 1}, routes.ran, "one route never decides alone while others remain")
}

func TestForcedBestEffortPrefersStrongerEvidence(t *testing.T) {
	routes := &scriptedRoutes{
		answers: []string{"Lyon", "Paris"},
		lines:   []int{1, 3},
	}
	suff := &fakeSufficiency{directErr: errors.New("judge unavailable")}
	d, err := NewFinalizer(suff, quietLogger).Finalize(context.Background(), "q", time.Time{}, plannedRoutes(2), routes.run)
	require.NoError(t, err)

	assert.Equal(t, types.DecisionForced, d.Decision)
	assert.Equal(t, "Paris", d.Answer)
	assert.True(t, d.Direct.Failed)
}

func TestForcedAnswerFromJudge(t *testing.T) {
	routes := &scriptedRoutes{answers: []string{"Lyon", "Paris"}}
	suff := &fakeSufficiency{
		direct: Verdict{Answer: "Nice"},
		consensus: func(in ConsensusInput) (ConsensusVerdict, error) {
			return ConsensusVerdict{Final: true, Answer: "Lyon. best supported"}, nil
		},
	}
	d, err := NewFinalizer(suff, quietLogger).Finalize(context.Background(), "q", time.Time{}, plannedRoutes(2), routes.run)
	require.NoError(t, err)

	assert.Equal(t, types.DecisionForced, d.Decision)
	assert.Equal(t, "Lyon. best supported", d.Answer)
}

func TestAllUnknownFallsBackToDirect(t *testing.T) {
	routes := &scriptedRoutes{answers: []string{types.UnknownAnswer, "i don't know"}}
	suff := &fakeSufficiency{direct: Verdict{Answer: "Paris"}}
	d, err := NewFinalizer(suff, quietLogger).Finalize(context.Background(), "q", time.Time{}, plannedRoutes(2), routes.run)
	require.NoError(t, err)

	assert.Equal(t, types.DecisionDirectFallback, d.Decision)
	assert.Equal(t, "Paris", d.Answer)
}

func TestSingleRouteAsksJudge(t *testing.T) {
	routes := &scriptedRoutes{answers: []string{"Paris"}}
	suff := &fakeSufficiency{
		direct: Verdict{Answer: "Lyon"},
		consensus: func(in ConsensusInput) (ConsensusVerdict, error) {
			assert.Equal(t, 0, in.Remaining())
			return ConsensusVerdict{Final: true, Answer: "Paris"}, nil
		},
	}
	d, err := NewFinalizer(suff, quietLogger).Finalize(context.Background(), "q", time.Time{}, plannedRoutes(1), routes.run)
	require.NoError(t, err)

	assert.Equal(t, types.DecisionForced, d.Decision)
	assert.Equal(t, "Paris", d.Answer)
}

func TestNormalizeAnswer(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"Paris", "paris"},
		{`"Paris."`, "paris"},
		{"  New   York ", "new york"},
		{"ＰＡＲＩＳ", "paris"},
		{"STRASSE", "strasse"},
	}
	for _, tt := range tests {
		if got := NormalizeAnswer(tt.in); got != tt.want {
			t.Errorf("NormalizeAnswer(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestMajorityThreshold(t *testing.T) {
	results := func(answers ...string) []*types.RouteResult {
		out := make([]*types.RouteResult, len(answers))
		for i, a := range answers {
			out[i] = &types.RouteResult{Answer: a}
		}
		return out
	}

	_, ok := majority(results("a", "b"), &types.DirectAttempt{Answer: "c"})
	assert.False(t, ok)

	got, ok := majority(results("a", "b", "c", "A"), &types.DirectAttempt{Answer: "d"})
	assert.False(t, ok, "two of five votes is not a majority")
	assert.Empty(t, got)

	got, ok = majority(results("a", "b", "c", "A"), &types.DirectAttempt{Answer: "a"})
	assert.True(t, ok)
	assert.Equal(t, "a", got)

	_, ok = majority(results("a", "a"), &types.DirectAttempt{Answer: "a", Failed: true})
	assert.True(t, ok, "a failed direct attempt does not vote")
}
