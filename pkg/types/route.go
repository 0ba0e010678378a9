package types

import (
	"fmt"
	"strings"
	"time"
)

// UnknownAnswer is the answer given when nothing better is available.
const UnknownAnswer = "I don't know."

// IsUnknownAnswer reports whether an answer carries no information.
func IsUnknownAnswer(answer string) bool {
	a := strings.ToLower(strings.TrimSpace(answer))
	a = strings.Trim(a, "\"'. ")
	if a == "" || a == "unknown" || a == "none" || a == "n/a" {
		return true
	}
	return strings.HasPrefix(a, "i don't know") || strings.HasPrefix(a, "i do not know") ||
		strings.HasPrefix(a, "i don’t know")
}

// Route is one candidate decomposition of a question into sub-objectives.
type Route struct {
	Index         int       `json:"index"`
	Question      string    `json:"question"`
	QueryTime     time.Time `json:"query_time"`
	SubObjectives []string  `json:"sub_objectives"`
}

// Objectives renders the sub-objectives as a bracketed, quoted list.
func (r *Route) Objectives() string {
	quoted := make([]string, len(r.SubObjectives))
	for i, s := range r.SubObjectives {
		quoted[i] = fmt.Sprintf("%q", s)
	}
	return "[" + strings.Join(quoted, ", ") + "]"
}

// Text joins the question and sub-objectives, used for embedding-based scoring.
func (r *Route) Text() string {
	if len(r.SubObjectives) == 0 {
		return r.Question
	}
	return r.Question + "\n" + strings.Join(r.SubObjectives, "\n")
}

// Frontier is the weighted entity set a route expands from, together with the
// ids of relations already used. A Frontier is never mutated after Advance.
type Frontier struct {
	order    []string
	entities map[string]ScoredEntity
	visited  map[string]struct{}
}

// NewFrontier builds a hop-0 frontier. Seeds sharing an entity id have their
// scores summed; seeds without an entity are ignored.
func NewFrontier(seeds []ScoredEntity) *Frontier {
	f := &Frontier{
		entities: make(map[string]ScoredEntity),
		visited:  make(map[string]struct{}),
	}
	f.accumulate(seeds)
	return f
}

func (f *Frontier) accumulate(seeds []ScoredEntity) {
	for _, s := range seeds {
		if s.Entity == nil {
			continue
		}
		id := s.Entity.ID
		if cur, ok := f.entities[id]; ok {
			cur.Score += s.Score
			f.entities[id] = cur
			continue
		}
		f.order = append(f.order, id)
		f.entities[id] = s
	}
}

// Advance returns the next-hop frontier: the given entities plus a visited set
// extended with relationIDs.
func (f *Frontier) Advance(entities []ScoredEntity, relationIDs []string) *Frontier {
	next := &Frontier{
		entities: make(map[string]ScoredEntity, len(entities)),
		visited:  make(map[string]struct{}, len(f.visited)+len(relationIDs)),
	}
	for id := range f.visited {
		next.visited[id] = struct{}{}
	}
	for _, id := range relationIDs {
		next.visited[id] = struct{}{}
	}
	next.accumulate(entities)
	return next
}

// Entities returns the scored entities in discovery order.
func (f *Frontier) Entities() []ScoredEntity {
	out := make([]ScoredEntity, 0, len(f.order))
	for _, id := range f.order {
		out = append(out, f.entities[id])
	}
	return out
}

// Get returns the scored entity with the given id.
func (f *Frontier) Get(id string) (ScoredEntity, bool) {
	e, ok := f.entities[id]
	return e, ok
}

// Len returns the number of entities.
func (f *Frontier) Len() int {
	return len(f.order)
}

// TotalScore sums all entity weights.
func (f *Frontier) TotalScore() float64 {
	var total float64
	for _, e := range f.entities {
		total += e.Score
	}
	return total
}

// Visited reports whether a relation id has been used by this route.
func (f *Frontier) Visited(relationID string) bool {
	_, ok := f.visited[relationID]
	return ok
}

// VisitedIDs returns the visited relation ids in no particular order.
func (f *Frontier) VisitedIDs() []string {
	ids := make([]string, 0, len(f.visited))
	for id := range f.visited {
		ids = append(ids, id)
	}
	return ids
}

// RouteState is the state of a route driver.
type RouteState string

const (
	RouteInit       RouteState = "init"
	RouteExpanding  RouteState = "expanding"
	RouteSufficient RouteState = "sufficient"
	RouteExhausted  RouteState = "exhausted"
)

// RouteResult is what one route produces.
type RouteResult struct {
	Route     *Route          `json:"route"`
	Evidence  *EvidenceBundle `json:"evidence"`
	Answer    string          `json:"answer"`
	Rationale string          `json:"rationale,omitempty"`
	State     RouteState      `json:"state"`
	Depth     int             `json:"depth"`
	Duration  time.Duration   `json:"duration"`
	Err       error           `json:"-"`
}

// Summary renders the answer and its rationale as one line.
func (r *RouteResult) Summary() string {
	return summarize(r.Answer, r.Rationale)
}

// Context renders the evidence for consensus judgments.
func (r *RouteResult) Context() string {
	if r.Evidence == nil {
		return "Knowledge Entities:\nNone\nKnowledge Triplets:\nNone"
	}
	return r.Evidence.Context()
}

// Unknown reports whether the route failed to produce an informative answer.
func (r *RouteResult) Unknown() bool {
	return r == nil || IsUnknownAnswer(r.Answer)
}

// DirectAttempt is the answer produced from the question alone.
type DirectAttempt struct {
	Answer    string `json:"answer"`
	Rationale string `json:"rationale,omitempty"`
	Failed    bool   `json:"failed,omitempty"`
}

// Summary renders the answer and its rationale as one line.
func (d *DirectAttempt) Summary() string {
	return summarize(d.Answer, d.Rationale)
}

func summarize(answer, rationale string) string {
	s := fmt.Sprintf("%q.", answer)
	if rationale = strings.TrimSpace(rationale); rationale != "" {
		s += " " + rationale
	}
	return s
}

// Decision records how the final answer was chosen.
type Decision string

const (
	DecisionMajority       Decision = "majority"
	DecisionConsensus      Decision = "consensus"
	DecisionForced         Decision = "forced"
	DecisionDirectFallback Decision = "direct_fallback"
	DecisionUnknown        Decision = "unknown"
)

// AnswerResult is the outcome of answering one question.
type AnswerResult struct {
	RunID         string         `json:"run_id"`
	Question      string         `json:"question"`
	QueryTime     time.Time      `json:"query_time"`
	Answer        string         `json:"answer"`
	Decision      Decision       `json:"decision"`
	DirectAttempt *DirectAttempt `json:"direct_attempt,omitempty"`
	Routes        []*RouteResult `json:"routes,omitempty"`
}
