package judge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/soundprediction/kgroute/pkg/nlp"
	"github.com/soundprediction/kgroute/pkg/prompts"
	"github.com/soundprediction/kgroute/pkg/search"
	"github.com/soundprediction/kgroute/pkg/types"
	"github.com/soundprediction/kgroute/pkg/utils"
)

// Options configures an LLMJudge.
type Options struct {
	// Domain selects prompt hints (movie, sports, open, yearly).
	Domain string
	// Retry covers undecodable responses.
	Retry utils.RetryConfig
	// Prompts overrides the default prompt library.
	Prompts prompts.Library
	Logger  *slog.Logger
}

// LLMJudge plans routes, names topics and makes every relevance and
// sufficiency judgment with a chat model.
type LLMJudge struct {
	client  nlp.Client
	prompts prompts.Library
	domain  string
	retry   utils.RetryConfig
	logger  *slog.Logger
}

var (
	_ search.Planner          = (*LLMJudge)(nil)
	_ search.TopicExtractor   = (*LLMJudge)(nil)
	_ search.RelevanceJudge   = (*LLMJudge)(nil)
	_ search.SufficiencyJudge = (*LLMJudge)(nil)
)

// NewLLMJudge creates a judge backed by client.
func NewLLMJudge(client nlp.Client, opts Options) *LLMJudge {
	if opts.Prompts == nil {
		opts.Prompts = prompts.NewLibrary()
	}
	if opts.Domain == "" {
		opts.Domain = prompts.DefaultDomain
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Retry.MaxRetries == 0 && opts.Retry.InitialDelay == 0 {
		retryable := opts.Retry.Retryable
		opts.Retry = utils.DefaultRetryConfig()
		opts.Retry.Retryable = retryable
	}
	if opts.Retry.Retryable == nil {
		opts.Retry.Retryable = retryable
	}
	return &LLMJudge{
		client:  client,
		prompts: opts.Prompts,
		domain:  opts.Domain,
		retry:   opts.Retry,
		logger:  opts.Logger,
	}
}

// retryable retries undecodable output only. Transport failures are retried
// by the client wrapper.
func retryable(err error) bool {
	return errors.Is(err, ErrMalformedOutput)
}

// Plan implements search.Planner.
func (j *LLMJudge) Plan(ctx context.Context, question string, queryTime time.Time, maxRoutes int) ([]*types.Route, error) {
	vars := map[string]interface{}{
		prompts.KeyQuestion:  question,
		prompts.KeyQueryTime: prompts.FormatQueryTime(queryTime),
		prompts.KeyRoutes:    maxRoutes,
	}
	var plan prompts.RoutePlan
	if err := j.complete(ctx, "plan", j.prompts.Plan(), vars, &prompts.RoutePlan{}, &plan); err != nil {
		return nil, err
	}

	var routes []*types.Route
	for _, objs := range plan.Routes {
		objs = utils.DedupeStrings(objs)
		if len(objs) == 0 {
			continue
		}
		routes = append(routes, &types.Route{
			Index:         len(routes),
			Question:      question,
			QueryTime:     queryTime,
			SubObjectives: objs,
		})
		if maxRoutes > 0 && len(routes) == maxRoutes {
			break
		}
	}
	j.logger.Debug("routes planned", "routes", len(routes), "reason", plan.Reason)
	return routes, nil
}

// ExtractTopics implements search.TopicExtractor. Topics are upper-cased to
// match how entity names are stored.
func (j *LLMJudge) ExtractTopics(ctx context.Context, route *types.Route) ([]string, error) {
	vars := routeVars(route)
	var topics []string
	// a bare array is not a valid structured-output root, so this is plain chat
	if err := j.complete(ctx, "topics", j.prompts.Topics(), vars, nil, &topics); err != nil {
		return nil, err
	}
	for i, t := range topics {
		topics[i] = strings.ToUpper(strings.TrimSpace(t))
	}
	return utils.DedupeStrings(topics), nil
}

// ScoreCandidates implements search.RelevanceJudge.
func (j *LLMJudge) ScoreCandidates(ctx context.Context, rc search.RouteContext, candidates []search.Candidate) (search.Scores, error) {
	if len(candidates) == 0 {
		return search.Scores{}, nil
	}
	vars := routeVars(rc.Route)
	lines := candidateLines(candidates)
	if rc.Note != "" {
		lines += "\n" + rc.Note
	}

	switch rc.Kind {
	case search.KindEntity:
		vars[prompts.KeyEntities] = lines
		var out struct {
			Reason   string   `json:"reason"`
			Entities scoreMap `json:"relevant_entities"`
		}
		if err := j.complete(ctx, "align_entities", j.prompts.AlignEntities(), vars, &prompts.EntityScores{}, &out); err != nil {
			return search.Scores{}, err
		}
		return search.Scores{Values: out.Entities, Rationale: out.Reason}, nil

	case search.KindRelation, search.KindTriplet:
		vars[prompts.KeyRelations] = lines
		vars[prompts.KeyWidth] = rc.Width
		pv, op := j.prompts.PruneRelations(), "prune_relations"
		anchor := types.TextOptions{Now: queryTime(rc.Route)}
		if rc.Kind == search.KindTriplet {
			pv, op = j.prompts.PruneTriplets(), "prune_triplets"
		}
		vars[prompts.KeyEntity] = types.EntityText(rc.Anchor, anchor)
		var out struct {
			Reason    string   `json:"reason"`
			Relations scoreMap `json:"relevant_relations"`
		}
		if err := j.complete(ctx, op, pv, vars, &prompts.RelationScores{}, &out); err != nil {
			return search.Scores{}, err
		}
		return search.Scores{Values: out.Relations, Rationale: out.Reason}, nil

	default:
		return search.Scores{}, fmt.Errorf("unknown candidate kind %q", rc.Kind)
	}
}

// Evaluate implements search.SufficiencyJudge.
func (j *LLMJudge) Evaluate(ctx context.Context, rc search.RouteContext, evidence *types.EvidenceBundle) (search.Verdict, error) {
	vars := routeVars(rc.Route)
	if evidence != nil {
		vars[prompts.KeyEntities] = evidence.EntitiesText()
		vars[prompts.KeyTriplets] = evidence.TripletsText()
	}
	var out prompts.Sufficiency
	if err := j.complete(ctx, "evaluate", j.prompts.Evaluate(), vars, &prompts.Sufficiency{}, &out); err != nil {
		return search.Verdict{}, err
	}
	return verdict(out), nil
}

// Consensus implements search.SufficiencyJudge.
func (j *LLMJudge) Consensus(ctx context.Context, in search.ConsensusInput) (search.ConsensusVerdict, error) {
	history := make([]prompts.RouteOutcome, len(in.Routes))
	for i, r := range in.Routes {
		history[i] = prompts.RouteOutcome{Objectives: r.Objectives()}
		if i < len(in.Completed) && in.Completed[i] != nil {
			history[i].Done = true
			history[i].Reference = in.Completed[i].Context()
			history[i].Answer = in.Completed[i].Summary()
		}
	}
	attempt := fmt.Sprintf("%q.", types.UnknownAnswer)
	if in.Direct != nil {
		attempt = in.Direct.Summary()
	}
	vars := map[string]interface{}{
		prompts.KeyQuestion:  in.Question,
		prompts.KeyQueryTime: prompts.FormatQueryTime(in.QueryTime),
		prompts.KeyAttempt:   attempt,
		prompts.KeyHistory:   history,
	}

	var out prompts.ConsensusJudgement
	if err := j.complete(ctx, "consensus", j.prompts.Consensus(), vars, &prompts.ConsensusJudgement{}, &out); err != nil {
		return search.ConsensusVerdict{}, err
	}
	return search.ConsensusVerdict{Final: yes(out.Judgement), Answer: strings.TrimSpace(out.FinalAnswer)}, nil
}

// AnswerDirectly implements search.SufficiencyJudge.
func (j *LLMJudge) AnswerDirectly(ctx context.Context, question string, queryTime time.Time) (search.Verdict, error) {
	vars := map[string]interface{}{
		prompts.KeyQuestion:  question,
		prompts.KeyQueryTime: prompts.FormatQueryTime(queryTime),
	}
	var out prompts.Sufficiency
	if err := j.complete(ctx, "answer_directly", j.prompts.AnswerDirectly(), vars, &prompts.Sufficiency{}, &out); err != nil {
		return search.Verdict{}, err
	}
	return verdict(out), nil
}

// complete renders a prompt, calls the model and decodes the answer into
// out, retrying failed calls and undecodable answers. A nil schema uses
// plain chat.
func (j *LLMJudge) complete(ctx context.Context, op string, pv types.PromptVersion, vars map[string]interface{}, schema any, out any) error {
	vars[prompts.KeyDomain] = j.domain
	vars[prompts.KeyLogger] = j.logger
	messages, err := pv.Call(vars)
	if err != nil {
		return fmt.Errorf("failed to render %s prompt: %w", op, err)
	}
	structured := schema != nil && nlp.HasCapability(j.client, nlp.TaskStructuredOutput)

	_, err = utils.Retry(ctx, j.retry, func(ctx context.Context) (struct{}, error) {
		var resp *types.Response
		var err error
		if structured {
			resp, err = j.client.ChatWithStructuredOutput(ctx, messages, schema)
		} else {
			resp, err = j.client.Chat(ctx, messages)
		}
		if err != nil {
			return struct{}{}, err
		}
		prompts.LogResponses(j.logger, *resp)
		if err := UnmarshalFlexible(resp.Content, out); err != nil {
			j.logger.Debug("undecodable judge output", "op", op, "error", err)
			return struct{}{}, err
		}
		return struct{}{}, nil
	})
	if err != nil {
		return fmt.Errorf("%s failed: %w", op, err)
	}
	return nil
}

func routeVars(route *types.Route) map[string]interface{} {
	vars := make(map[string]interface{})
	if route == nil {
		return vars
	}
	vars[prompts.KeyQuestion] = route.Question
	vars[prompts.KeyQueryTime] = prompts.FormatQueryTime(route.QueryTime)
	vars[prompts.KeyRoute] = route.Objectives()
	return vars
}

func queryTime(route *types.Route) time.Time {
	if route == nil {
		return time.Time{}
	}
	return route.QueryTime
}

func candidateLines(candidates []search.Candidate) string {
	lines := make([]string, len(candidates))
	for i, c := range candidates {
		lines[i] = c.ID + ": " + c.Text
	}
	return strings.Join(lines, "\n")
}

func verdict(s prompts.Sufficiency) search.Verdict {
	answer := strings.TrimSpace(s.Answer)
	if answer == "" {
		answer = types.UnknownAnswer
	}
	return search.Verdict{
		Sufficient: yes(s.Sufficient),
		Answer:     answer,
		Rationale:  strings.TrimSpace(s.Reason),
	}
}
