package dto

import (
	"errors"
	"strings"
	"time"

	"github.com/soundprediction/kgroute/pkg/types"
)

// Validation errors
var (
	ErrEmptyQuestion   = errors.New("question cannot be empty")
	ErrQuestionTooLong = errors.New("question exceeds maximum length (4096)")
	ErrRoutesRange     = errors.New("routes must be between 0 and 10")
	ErrWidthRange      = errors.New("width must be between 0 and 50")
	ErrDepthRange      = errors.New("depth must be between 0 and 10")
)

// Request limits to prevent abuse
const (
	MaxQuestionLength = 4096
	MaxRoutes         = 10
	MaxWidth          = 50
	MaxDepth          = 10
)

// AnswerRequest asks the engine to answer one question. Zero routes, width
// and depth fall back to the server configuration.
type AnswerRequest struct {
	Question       string     `json:"question" binding:"required"`
	QueryTime      *time.Time `json:"query_time,omitempty"`
	Routes         int        `json:"routes,omitempty"`
	Width          int        `json:"width,omitempty"`
	Depth          int        `json:"depth,omitempty"`
	IncludeDetails bool       `json:"include_details,omitempty"`
}

// Validate performs validation on AnswerRequest
func (r *AnswerRequest) Validate() error {
	if strings.TrimSpace(r.Question) == "" {
		return ErrEmptyQuestion
	}
	if len(r.Question) > MaxQuestionLength {
		return ErrQuestionTooLong
	}
	if r.Routes < 0 || r.Routes > MaxRoutes {
		return ErrRoutesRange
	}
	if r.Width < 0 || r.Width > MaxWidth {
		return ErrWidthRange
	}
	if r.Depth < 0 || r.Depth > MaxDepth {
		return ErrDepthRange
	}
	return nil
}

// AnswerResponse is the reply to an AnswerRequest.
type AnswerResponse struct {
	Answer        string         `json:"answer"`
	Decision      string         `json:"decision"`
	RunID         string         `json:"run_id"`
	QueryTime     *time.Time     `json:"query_time,omitempty"`
	DirectAttempt *DirectAttempt `json:"direct_attempt,omitempty"`
	Routes        []RouteResult  `json:"routes,omitempty"`
}

// DirectAttempt is the answer given without graph evidence.
type DirectAttempt struct {
	Answer    string `json:"answer"`
	Rationale string `json:"rationale,omitempty"`
	Failed    bool   `json:"failed,omitempty"`
}

// RouteResult describes one explored route.
type RouteResult struct {
	Index         int      `json:"index"`
	SubObjectives []string `json:"sub_objectives"`
	State         string   `json:"state"`
	Depth         int      `json:"depth"`
	Answer        string   `json:"answer"`
	Rationale     string   `json:"rationale,omitempty"`
	DurationMS    int64    `json:"duration_ms"`
	TopicEntities []string `json:"topic_entities,omitempty"`
	Evidence      []string `json:"evidence,omitempty"`
	Error         string   `json:"error,omitempty"`
}

// NewAnswerResponse converts an engine result. Route details are included
// only when details is set.
func NewAnswerResponse(res *types.AnswerResult, details bool) AnswerResponse {
	out := AnswerResponse{
		Answer:   res.Answer,
		Decision: string(res.Decision),
		RunID:    res.RunID,
	}
	if !res.QueryTime.IsZero() {
		qt := res.QueryTime
		out.QueryTime = &qt
	}
	if res.DirectAttempt != nil {
		out.DirectAttempt = &DirectAttempt{
			Answer:    res.DirectAttempt.Answer,
			Rationale: res.DirectAttempt.Rationale,
			Failed:    res.DirectAttempt.Failed,
		}
	}
	if !details {
		return out
	}
	for _, r := range res.Routes {
		if r == nil || r.Route == nil {
			continue
		}
		rr := RouteResult{
			Index:         r.Route.Index,
			SubObjectives: r.Route.SubObjectives,
			State:         string(r.State),
			Depth:         r.Depth,
			Answer:        r.Answer,
			Rationale:     r.Rationale,
			DurationMS:    r.Duration.Milliseconds(),
		}
		if r.Evidence != nil {
			rr.TopicEntities = r.Evidence.TopicLines
			rr.Evidence = r.Evidence.Lines()
		}
		if r.Err != nil {
			rr.Error = r.Err.Error()
		}
		out.Routes = append(out.Routes, rr)
	}
	return out
}

// EntityTypesResponse lists the entity types of the graph.
type EntityTypesResponse struct {
	EntityTypes []string `json:"entity_types"`
}
