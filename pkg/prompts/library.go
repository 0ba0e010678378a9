package prompts

import (
	"fmt"
	"log/slog"

	"github.com/soundprediction/kgroute/pkg/types"
)

// Context keys read by the route prompts.
const (
	KeyQuestion  = "question"
	KeyQueryTime = "query_time"
	KeyRoute     = "route"
	KeyDomain    = "domain"
	KeyRoutes    = "routes"
	KeyWidth     = "width"
	KeyEntity    = "entity"
	KeyEntities  = "entities"
	KeyRelations = "relations"
	KeyTriplets  = "triplets"
	KeyAttempt   = "attempt"
	KeyHistory   = "history"
	KeyLogger    = "logger"
)

// Library exposes every prompt used by route exploration.
type Library interface {
	// Plan decomposes a question into solving routes.
	Plan() types.PromptVersion
	// Topics extracts topic entity names for one route.
	Topics() types.PromptVersion
	// AlignEntities scores graph entities against a route (ent_i ids).
	AlignEntities() types.PromptVersion
	// PruneRelations scores the relation types around an entity (rel_i ids).
	PruneRelations() types.PromptVersion
	// PruneTriplets scores concrete triplets from a source entity (rel_i ids).
	PruneTriplets() types.PromptVersion
	// Evaluate judges whether accumulated evidence answers the question.
	Evaluate() types.PromptVersion
	// Consensus reconciles route answers with the direct attempt.
	Consensus() types.PromptVersion
	// AnswerDirectly answers from model knowledge alone.
	AnswerDirectly() types.PromptVersion
}

// RouteVersions holds the current version of each route prompt.
type RouteVersions struct {
	plan           types.PromptVersion
	topics         types.PromptVersion
	alignEntities  types.PromptVersion
	pruneRelations types.PromptVersion
	pruneTriplets  types.PromptVersion
	evaluate       types.PromptVersion
	consensus      types.PromptVersion
	answerDirectly types.PromptVersion
}

func (r *RouteVersions) Plan() types.PromptVersion           { return r.plan }
func (r *RouteVersions) Topics() types.PromptVersion         { return r.topics }
func (r *RouteVersions) AlignEntities() types.PromptVersion  { return r.alignEntities }
func (r *RouteVersions) PruneRelations() types.PromptVersion { return r.pruneRelations }
func (r *RouteVersions) PruneTriplets() types.PromptVersion  { return r.pruneTriplets }
func (r *RouteVersions) Evaluate() types.PromptVersion       { return r.evaluate }
func (r *RouteVersions) Consensus() types.PromptVersion      { return r.consensus }
func (r *RouteVersions) AnswerDirectly() types.PromptVersion { return r.answerDirectly }

// NewLibrary returns the default prompt library.
func NewLibrary() Library {
	return &RouteVersions{
		plan:           NewPromptVersion(planPrompt),
		topics:         NewPromptVersion(topicsPrompt),
		alignEntities:  NewPromptVersion(alignEntitiesPrompt),
		pruneRelations: NewPromptVersion(pruneRelationsPrompt),
		pruneTriplets:  NewPromptVersion(pruneTripletsPrompt),
		evaluate:       NewPromptVersion(evaluatePrompt),
		consensus:      NewPromptVersion(consensusPrompt),
		answerDirectly: NewPromptVersion(answerDirectlyPrompt),
	}
}

func str(context map[string]interface{}, key string) string {
	v, ok := context[key]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

func intOr(context map[string]interface{}, key string, def int) int {
	if v, ok := context[key].(int); ok && v > 0 {
		return v
	}
	return def
}

func requireKeys(context map[string]interface{}, keys ...string) error {
	for _, k := range keys {
		if str(context, k) == "" {
			return fmt.Errorf("prompt context is missing %q", k)
		}
	}
	return nil
}

func loggerFrom(context map[string]interface{}) *slog.Logger {
	if l, ok := context[KeyLogger].(*slog.Logger); ok && l != nil {
		return l
	}
	return slog.Default()
}
