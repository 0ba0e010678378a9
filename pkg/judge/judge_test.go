package judge

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soundprediction/kgroute/pkg/nlp"
	"github.com/soundprediction/kgroute/pkg/search"
	"github.com/soundprediction/kgroute/pkg/types"
	"github.com/soundprediction/kgroute/pkg/utils"
)

var quietLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

// scriptedClient replies with its responses in order, repeating the last.
type scriptedClient struct {
	mu         sync.Mutex
	replies    []string
	err        error
	structured bool
	calls      int
	schemas    []any
	prompts    [][]types.Message
}

func (c *scriptedClient) reply(messages []types.Message, schema any) (*types.Response, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	c.schemas = append(c.schemas, schema)
	c.prompts = append(c.prompts, messages)
	if c.err != nil {
		return nil, c.err
	}
	i := c.calls - 1
	if i >= len(c.replies) {
		i = len(c.replies) - 1
	}
	return &types.Response{Content: c.replies[i]}, nil
}

func (c *scriptedClient) Chat(_ context.Context, messages []types.Message) (*types.Response, error) {
	return c.reply(messages, nil)
}

func (c *scriptedClient) ChatWithStructuredOutput(_ context.Context, messages []types.Message, schema any) (*types.Response, error) {
	return c.reply(messages, schema)
}

func (c *scriptedClient) GetCapabilities() []nlp.TaskCapability {
	if c.structured {
		return []nlp.TaskCapability{nlp.TaskTextGeneration, nlp.TaskStructuredOutput}
	}
	return []nlp.TaskCapability{nlp.TaskTextGeneration}
}

func (c *scriptedClient) Close() error { return nil }

func (c *scriptedClient) lastUserPrompt() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	msgs := c.prompts[len(c.prompts)-1]
	return msgs[len(msgs)-1].Content
}

func newJudge(c *scriptedClient) *LLMJudge {
	return NewLLMJudge(c, Options{
		Retry:  utils.RetryConfig{MaxRetries: 2, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond, BackoffMultiplier: 1},
		Logger: quietLogger,
	})
}

func testRoute() *types.Route {
	return &types.Route{
		Question:      "Who directed Heat?",
		QueryTime:     time.Date(2024, 3, 5, 12, 0, 0, 0, time.UTC),
		SubObjectives: []string{"Find the movie Heat", "Find its director"},
	}
}

func TestPlan(t *testing.T) {
	c := &scriptedClient{structured: true, replies: []string{
		`{"reason": "two angles", "routes": [["Find Heat", "Find Heat"], [], ["Find director", "Check credits"], ["extra"]]}`,
	}}
	j := newJudge(c)

	qt := time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC)
	routes, err := j.Plan(context.Background(), "Who directed Heat?", qt, 2)
	require.NoError(t, err)
	require.Len(t, routes, 2)
	assert.Equal(t, []string{"Find Heat"}, routes[0].SubObjectives)
	assert.Equal(t, []string{"Find director", "Check credits"}, routes[1].SubObjectives)
	assert.Equal(t, 1, routes[1].Index)
	assert.Equal(t, qt, routes[1].QueryTime)
	assert.NotNil(t, c.schemas[0])
	assert.Contains(t, c.lastUserPrompt(), "Who directed Heat?")
}

func TestExtractTopicsUsesPlainChat(t *testing.T) {
	c := &scriptedClient{structured: true, replies: []string{"<think>hmm</think>\n```json\n[\"heat\", \" Michael Mann \", \"HEAT\"]\n```"}}
	topics, err := newJudge(c).ExtractTopics(context.Background(), testRoute())
	require.NoError(t, err)
	assert.Equal(t, []string{"HEAT", "MICHAEL MANN"}, topics)
	assert.Nil(t, c.schemas[0])
}

func TestScoreEntities(t *testing.T) {
	c := &scriptedClient{replies: []string{`Sure: {"reason": "movie match", "relevant_entities": {"ent_0": 0.8, "ent_1": "0.2"}}`}}
	scores, err := newJudge(c).ScoreCandidates(context.Background(), search.RouteContext{
		Route: testRoute(),
		Kind:  search.KindEntity,
	}, []search.Candidate{{ID: "ent_0", Text: "Heat (Movie)"}, {ID: "ent_1", Text: "Heat (Weather)"}})
	require.NoError(t, err)
	assert.Equal(t, map[string]float64{"ent_0": 0.8, "ent_1": 0.2}, scores.Values)
	assert.Equal(t, "movie match", scores.Rationale)
	assert.Contains(t, c.lastUserPrompt(), "ent_1: Heat (Weather)")
	assert.Nil(t, c.schemas[0], "structured output requires the capability")
}

func TestScoreRelationsAndTriplets(t *testing.T) {
	anchor := &types.Entity{ID: "e1", Name: "HEAT", Type: "Movie"}
	cands := []search.Candidate{{ID: "rel_0", Text: "DIRECTED_BY"}, {ID: "rel_1", Text: "RELEASED_IN"}}

	for _, kind := range []search.CandidateKind{search.KindRelation, search.KindTriplet} {
		t.Run(string(kind), func(t *testing.T) {
			c := &scriptedClient{structured: true, replies: []string{`{"reason": "r", "relevant_relations": {"rel_0": 1}}`}}
			scores, err := newJudge(c).ScoreCandidates(context.Background(), search.RouteContext{
				Route:  testRoute(),
				Kind:   kind,
				Anchor: anchor,
				Width:  7,
				Note:   "...(3 relation(s) truncated)",
			}, cands)
			require.NoError(t, err)
			assert.Equal(t, map[string]float64{"rel_0": 1}, scores.Values)

			prompt := c.lastUserPrompt()
			assert.Contains(t, prompt, "HEAT")
			assert.Contains(t, prompt, "rel_1: RELEASED_IN")
			assert.Contains(t, prompt, "(3 relation(s) truncated)")
			assert.NotNil(t, c.schemas[0])
		})
	}
}

func TestScoreNoCandidates(t *testing.T) {
	c := &scriptedClient{}
	scores, err := newJudge(c).ScoreCandidates(context.Background(), search.RouteContext{Route: testRoute(), Kind: search.KindEntity}, nil)
	require.NoError(t, err)
	assert.Empty(t, scores.Values)
	assert.Zero(t, c.calls)
}

func TestEvaluate(t *testing.T) {
	c := &scriptedClient{replies: []string{`{"sufficient": "Yes", "reason": "credits list him", "answer": "Michael Mann"}`}}
	ev := types.NewEvidenceBundle([]types.ScoredEntity{{Entity: &types.Entity{ID: "e1", Name: "HEAT", Type: "Movie"}, Score: 1}}, time.Time{})

	v, err := newJudge(c).Evaluate(context.Background(), search.RouteContext{Route: testRoute()}, ev)
	require.NoError(t, err)
	assert.True(t, v.Sufficient)
	assert.Equal(t, "Michael Mann", v.Answer)
	assert.Equal(t, "credits list him", v.Rationale)
	assert.Contains(t, c.lastUserPrompt(), "HEAT")
}

func TestEvaluateEmptyAnswerIsUnknown(t *testing.T) {
	c := &scriptedClient{replies: []string{`{"sufficient": "No", "reason": "", "answer": ""}`}}
	v, err := newJudge(c).Evaluate(context.Background(), search.RouteContext{Route: testRoute()}, nil)
	require.NoError(t, err)
	assert.False(t, v.Sufficient)
	assert.Equal(t, types.UnknownAnswer, v.Answer)
}

func TestConsensusHistory(t *testing.T) {
	c := &scriptedClient{replies: []string{`{"judgement": "yes", "final_answer": " Michael Mann "}`}}
	r0 := testRoute()
	r1 := &types.Route{Index: 1, Question: r0.Question, SubObjectives: []string{"Search credits"}}
	in := search.ConsensusInput{
		Question:  r0.Question,
		QueryTime: r0.QueryTime,
		Direct:    &types.DirectAttempt{Answer: "Mann", Rationale: "recall"},
		Routes:    []*types.Route{r0, r1},
		Completed: []*types.RouteResult{{Route: r0, Answer: "Michael Mann", Rationale: "credits"}},
	}

	v, err := newJudge(c).Consensus(context.Background(), in)
	require.NoError(t, err)
	assert.True(t, v.Final)
	assert.Equal(t, "Michael Mann", v.Answer)

	prompt := c.lastUserPrompt()
	assert.Contains(t, prompt, `"Mann". recall`)
	assert.Contains(t, prompt, `Answer: "Michael Mann". credits`)
	assert.Contains(t, prompt, "Route 2: [\"Search credits\"]")
	assert.Contains(t, prompt, "have 1 unexplored")
}

func TestAnswerDirectly(t *testing.T) {
	c := &scriptedClient{replies: []string{`{"sufficient": "No", "reason": "guess", "answer": "Michael Mann"}`}}
	v, err := newJudge(c).AnswerDirectly(context.Background(), "Who directed Heat?", time.Time{})
	require.NoError(t, err)
	assert.Equal(t, "Michael Mann", v.Answer)
	assert.Contains(t, c.lastUserPrompt(), "unknown")
}

func TestRetryOnMalformedOutput(t *testing.T) {
	c := &scriptedClient{replies: []string{"I cannot answer", "still not json", `{"sufficient": "Yes", "answer": "x"}`}}
	v, err := newJudge(c).AnswerDirectly(context.Background(), "q", time.Time{})
	require.NoError(t, err)
	assert.Equal(t, "x", v.Answer)
	assert.Equal(t, 3, c.calls)
}

func TestRetryExhausted(t *testing.T) {
	c := &scriptedClient{replies: []string{"nope"}}
	_, err := newJudge(c).AnswerDirectly(context.Background(), "q", time.Time{})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMalformedOutput)
	assert.Equal(t, 3, c.calls)
}

func TestClientErrorsAreNotRetriedByJudge(t *testing.T) {
	for _, failure := range []error{nlp.ErrRefusal, nlp.ErrRateLimit, errors.New("connection reset by peer")} {
		t.Run(failure.Error(), func(t *testing.T) {
			c := &scriptedClient{err: failure}
			_, err := newJudge(c).AnswerDirectly(context.Background(), "q", time.Time{})
			require.Error(t, err)
			assert.ErrorIs(t, err, failure)
			assert.Equal(t, 1, c.calls)
		})
	}
}

func TestDomainReachesPrompt(t *testing.T) {
	c := &scriptedClient{replies: []string{`{"sufficient": "No", "answer": ""}`}}
	j := NewLLMJudge(c, Options{Domain: "movie", Logger: quietLogger})
	_, err := j.AnswerDirectly(context.Background(), "q", time.Time{})
	require.NoError(t, err)

	c.mu.Lock()
	defer c.mu.Unlock()
	assert.Contains(t, c.prompts[0][0].Content, "in the movie domain")
}
