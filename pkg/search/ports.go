package search

import (
	"context"
	"time"

	"github.com/soundprediction/kgroute/pkg/types"
)

// CandidateKind tells a relevance judge what it is scoring.
type CandidateKind string

const (
	// KindEntity scores graph entities against a route (topic alignment).
	KindEntity CandidateKind = "entity"
	// KindRelation scores relation types around an anchor entity.
	KindRelation CandidateKind = "relation"
	// KindTriplet scores concrete relations from an anchor entity.
	KindTriplet CandidateKind = "triplet"
)

// RouteContext is what a judge knows about the route being explored.
type RouteContext struct {
	Route *types.Route
	Kind  CandidateKind
	// Anchor is the entity the candidates hang off, if any.
	Anchor *types.Entity
	// Width is the number of candidates the judge may select.
	Width int
	// Note is appended to the rendered candidate list, e.g. a truncation count.
	Note string
}

// Candidate is one item offered to a relevance judge. Exactly one of Entity
// and Relation is set.
type Candidate struct {
	ID       string
	Text     string
	Entity   *types.Entity
	Relation *types.Relation
}

// Scores maps candidate ids to non-negative relevance. Ids not present
// scored zero.
type Scores struct {
	Values    map[string]float64
	Rationale string
}

// Verdict is a sufficiency judgment.
type Verdict struct {
	Sufficient bool
	Answer     string
	Rationale  string
}

// ConsensusInput is the state handed to the consensus judge.
type ConsensusInput struct {
	Question  string
	QueryTime time.Time
	Direct    *types.DirectAttempt
	// Routes is every planned route; Completed holds results for the
	// explored prefix.
	Routes    []*types.Route
	Completed []*types.RouteResult
}

// Remaining returns the number of routes not yet explored.
func (in ConsensusInput) Remaining() int {
	if n := len(in.Routes) - len(in.Completed); n > 0 {
		return n
	}
	return 0
}

// ConsensusVerdict is the consensus judge's decision.
type ConsensusVerdict struct {
	Final  bool
	Answer string
}

// RelevanceJudge scores candidates against a route.
type RelevanceJudge interface {
	ScoreCandidates(ctx context.Context, rc RouteContext, candidates []Candidate) (Scores, error)
}

// SufficiencyJudge decides whether evidence answers a question.
type SufficiencyJudge interface {
	Evaluate(ctx context.Context, rc RouteContext, evidence *types.EvidenceBundle) (Verdict, error)
	Consensus(ctx context.Context, in ConsensusInput) (ConsensusVerdict, error)
	AnswerDirectly(ctx context.Context, question string, queryTime time.Time) (Verdict, error)
}

// Planner decomposes a question into ordered routes.
type Planner interface {
	Plan(ctx context.Context, question string, queryTime time.Time, maxRoutes int) ([]*types.Route, error)
}

// TopicExtractor names the topic entities of a route.
type TopicExtractor interface {
	ExtractTopics(ctx context.Context, route *types.Route) ([]string, error)
}

// Embedder embeds query text for vector lookups and re-ranking.
type Embedder interface {
	EmbedSingle(ctx context.Context, text string) ([]float32, error)
}

// Tracer records finished routes.
type Tracer interface {
	TraceRoute(ctx context.Context, runID string, result *types.RouteResult) error
}
