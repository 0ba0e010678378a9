package search

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"

	"github.com/soundprediction/kgroute/pkg/types"
	"github.com/soundprediction/kgroute/pkg/utils"
)

// RunRouteFunc explores one route.
type RunRouteFunc func(ctx context.Context, route *types.Route) *types.RouteResult

// Decision is the finalizer's outcome.
type Decision struct {
	Answer   string
	Decision types.Decision
	Direct   *types.DirectAttempt
	Routes   []*types.RouteResult
}

// Finalizer runs routes in order and stops as soon as their answers agree.
type Finalizer struct {
	sufficiency SufficiencyJudge
	logger      *slog.Logger
}

// NewFinalizer creates a finalizer that consults sufficiency when the
// answers alone do not settle the question.
func NewFinalizer(sufficiency SufficiencyJudge, logger *slog.Logger) *Finalizer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Finalizer{sufficiency: sufficiency, logger: logger}
}

// Finalize answers the question from the given routes. The direct attempt
// runs alongside the first route; the remaining routes run one at a time and
// are skipped once a decision is reached. Only cancellation is returned as
// an error.
func (f *Finalizer) Finalize(ctx context.Context, question string, queryTime time.Time, routes []*types.Route, run RunRouteFunc) (*Decision, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	directCh := make(chan *types.DirectAttempt, 1)
	utils.SafeGo(func() {
		directCh <- f.attemptDirectly(ctx, question, queryTime)
	}, func(err error) {
		f.logger.Error("direct attempt panicked", "error", err)
		directCh <- &types.DirectAttempt{Answer: types.UnknownAnswer, Failed: true}
	})

	var direct *types.DirectAttempt
	awaitDirect := func() *types.DirectAttempt {
		if direct == nil {
			direct = <-directCh
		}
		return direct
	}

	var (
		completed []*types.RouteResult
		last      ConsensusVerdict
	)
	for i, route := range routes {
		res := run(ctx, route)
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		completed = append(completed, res)
		if res.Err != nil {
			f.logger.Warn("route failed", "route", route.Index, "error", res.Err)
		}

		remaining := len(routes) - i - 1
		if len(completed) < 2 && remaining > 0 {
			continue
		}
		awaitDirect()

		if len(completed) >= 2 {
			if answer, ok := majority(completed, direct); ok {
				f.logger.Info("answers agree", "decision", types.DecisionMajority, "routes", len(completed))
				return &Decision{Answer: answer, Decision: types.DecisionMajority, Direct: direct, Routes: completed}, nil
			}
		}

		in := ConsensusInput{
			Question:  question,
			QueryTime: queryTime,
			Direct:    direct,
			Routes:    routes,
			Completed: completed,
		}
		v, err := f.sufficiency.Consensus(ctx, in)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			f.logger.Warn("consensus judge failed", "routes", len(completed), "error", err)
			continue
		}
		last = v
		if v.Final && remaining > 0 && !types.IsUnknownAnswer(v.Answer) {
			f.logger.Info("consensus reached", "decision", types.DecisionConsensus, "routes", len(completed))
			return &Decision{Answer: v.Answer, Decision: types.DecisionConsensus, Direct: direct, Routes: completed}, nil
		}
	}
	awaitDirect()

	d := f.bestEffort(completed, direct, last)
	f.logger.Info("routes exhausted", "decision", d.Decision, "routes", len(completed))
	return d, nil
}

func (f *Finalizer) attemptDirectly(ctx context.Context, question string, queryTime time.Time) *types.DirectAttempt {
	v, err := f.sufficiency.AnswerDirectly(ctx, question, queryTime)
	if err != nil {
		if ctx.Err() == nil {
			f.logger.Warn("direct attempt failed", "error", err)
		}
		return &types.DirectAttempt{Answer: types.UnknownAnswer, Failed: true}
	}
	answer := v.Answer
	if strings.TrimSpace(answer) == "" {
		answer = types.UnknownAnswer
	}
	return &types.DirectAttempt{Answer: answer, Rationale: v.Rationale}
}

// bestEffort decides once every route has run without agreement.
func (f *Finalizer) bestEffort(completed []*types.RouteResult, direct *types.DirectAttempt, last ConsensusVerdict) *Decision {
	d := &Decision{Direct: direct, Routes: completed}

	allUnknown := true
	for _, r := range completed {
		if !r.Unknown() {
			allUnknown = false
			break
		}
	}
	if allUnknown {
		if direct != nil && !direct.Failed && !types.IsUnknownAnswer(direct.Answer) {
			d.Answer, d.Decision = direct.Answer, types.DecisionDirectFallback
			return d
		}
		d.Answer, d.Decision = types.UnknownAnswer, types.DecisionUnknown
		return d
	}

	if last.Final && !types.IsUnknownAnswer(last.Answer) {
		d.Answer, d.Decision = last.Answer, types.DecisionForced
		return d
	}
	d.Answer, d.Decision = plurality(completed, direct), types.DecisionForced
	return d
}

// NormalizeAnswer folds an answer for vote counting: case, unicode form,
// surrounding quotes and punctuation, and inner whitespace.
func NormalizeAnswer(answer string) string {
	a := norm.NFKC.String(answer)
	a = cases.Fold().String(a)
	a = strings.Trim(a, " \t\n\"'.,;:!`")
	return strings.Join(strings.Fields(a), " ")
}

type tally struct {
	answer string
	votes  int
	lines  int
	score  float64
	order  int
}

func countVotes(completed []*types.RouteResult, direct *types.DirectAttempt) []*tally {
	index := make(map[string]*tally)
	var out []*tally
	vote := func(answer string, lines int, score float64) {
		if types.IsUnknownAnswer(answer) {
			return
		}
		key := NormalizeAnswer(answer)
		t, ok := index[key]
		if !ok {
			t = &tally{answer: strings.TrimSpace(answer), order: len(out)}
			index[key] = t
			out = append(out, t)
		}
		t.votes++
		if lines > t.lines || (lines == t.lines && score > t.score) {
			t.lines, t.score = lines, score
		}
	}
	for _, r := range completed {
		var lines int
		var score float64
		if r.Evidence != nil {
			lines, score = r.Evidence.Strength()
		}
		vote(r.Answer, lines, score)
	}
	if direct != nil && !direct.Failed {
		vote(direct.Answer, 0, 0)
	}
	return out
}

// majority returns the answer given by at least ceil((N+1)/2) of the N route
// answers and the direct attempt.
func majority(completed []*types.RouteResult, direct *types.DirectAttempt) (string, bool) {
	need := (len(completed) + 2) / 2
	for _, t := range countVotes(completed, direct) {
		if t.votes >= need {
			return t.answer, true
		}
	}
	return "", false
}

// plurality returns the most voted answer, preferring stronger evidence and
// then earlier answers among ties.
func plurality(completed []*types.RouteResult, direct *types.DirectAttempt) string {
	var best *tally
	for _, t := range countVotes(completed, direct) {
		switch {
		case best == nil:
			best = t
		case t.votes != best.votes:
			if t.votes > best.votes {
				best = t
			}
		case t.lines != best.lines:
			if t.lines > best.lines {
				best = t
			}
		case t.score > best.score:
			best = t
		}
	}
	if best == nil {
		return types.UnknownAnswer
	}
	return best.answer
}
