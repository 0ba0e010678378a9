package archive

import (
	"context"
	"errors"
	"time"

	"github.com/soundprediction/kgroute/pkg/types"
)

// ErrNotFound is returned by GetRun for an unknown run id.
var ErrNotFound = errors.New("run not found")

// DefaultListLimit bounds ListRuns when no limit is given.
const DefaultListLimit = 50

// Store persists answered questions.
type Store interface {
	// Initialize creates the tables if they do not exist.
	Initialize(ctx context.Context) error

	// SaveRun records a result and its routes in one transaction.
	SaveRun(ctx context.Context, result *types.AnswerResult) error

	// GetRun loads a run with its routes.
	GetRun(ctx context.Context, runID string) (*Run, error)

	// ListRuns returns the most recent runs without their routes.
	ListRuns(ctx context.Context, limit int) ([]*Run, error)

	Close() error
}

// Run is the stored form of an answer result.
type Run struct {
	RunID           string         `json:"run_id"`
	Question        string         `json:"question"`
	QueryTime       time.Time      `json:"query_time"`
	Answer          string         `json:"answer"`
	Decision        types.Decision `json:"decision"`
	DirectAnswer    string         `json:"direct_answer,omitempty"`
	DirectRationale string         `json:"direct_rationale,omitempty"`
	CreatedAt       time.Time      `json:"created_at"`
	Routes          []*RouteRecord `json:"routes,omitempty"`
}

// RouteRecord is the stored form of one explored route.
type RouteRecord struct {
	Index         int              `json:"index"`
	SubObjectives []string         `json:"sub_objectives"`
	State         types.RouteState `json:"state"`
	Depth         int              `json:"depth"`
	Answer        string           `json:"answer"`
	Rationale     string           `json:"rationale,omitempty"`
	DurationMS    int64            `json:"duration_ms"`
	Evidence      []string         `json:"evidence,omitempty"`
	Error         string           `json:"error,omitempty"`
}

// NewRun converts an answer result into its stored form.
func NewRun(result *types.AnswerResult, now time.Time) *Run {
	run := &Run{
		RunID:     result.RunID,
		Question:  result.Question,
		QueryTime: result.QueryTime.UTC(),
		Answer:    result.Answer,
		Decision:  result.Decision,
		CreatedAt: now.UTC(),
	}
	if d := result.DirectAttempt; d != nil {
		run.DirectAnswer = d.Answer
		run.DirectRationale = d.Rationale
	}
	for i, r := range result.Routes {
		if r == nil {
			continue
		}
		rec := &RouteRecord{
			Index:      i,
			State:      r.State,
			Depth:      r.Depth,
			Answer:     r.Answer,
			Rationale:  r.Rationale,
			DurationMS: r.Duration.Milliseconds(),
		}
		if r.Route != nil {
			rec.Index = r.Route.Index
			rec.SubObjectives = r.Route.SubObjectives
		}
		if r.Evidence != nil {
			rec.Evidence = r.Evidence.Lines()
		}
		if r.Err != nil {
			rec.Error = r.Err.Error()
		}
		run.Routes = append(run.Routes, rec)
	}
	return run
}
