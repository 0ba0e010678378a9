package prompts

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/soundprediction/kgroute/pkg/types"
)

// RoutePlan is the planner's decomposition of a question.
type RoutePlan struct {
	Reason string     `json:"reason"`
	Routes [][]string `json:"routes"`
}

// EntityScores is the relevance of aligned candidate entities, keyed ent_i.
type EntityScores struct {
	Reason           string             `json:"reason"`
	RelevantEntities map[string]float64 `json:"relevant_entities"`
}

// RelationScores is the relevance of candidate relations or triplets, keyed rel_i.
type RelationScores struct {
	Reason            string             `json:"reason"`
	RelevantRelations map[string]float64 `json:"relevant_relations"`
}

// Sufficiency is the verdict of the evaluate and direct-answer prompts.
type Sufficiency struct {
	Sufficient string `json:"sufficient"`
	Reason     string `json:"reason"`
	Answer     string `json:"answer"`
}

// ConsensusJudgement is the verdict of the consensus prompt.
type ConsensusJudgement struct {
	Judgement   string `json:"judgement"`
	FinalAnswer string `json:"final_answer"`
}

// unicodeHint is appended to every system turn so models emit UTF-8 names
// instead of \u escapes.
const unicodeHint = "\nDo not escape unicode characters.\n"

type promptVersion struct {
	fn types.PromptFunction
}

func (p *promptVersion) Call(context map[string]interface{}) ([]types.Message, error) {
	messages, err := p.fn(context)
	if err != nil {
		return nil, err
	}
	for i := range messages {
		if messages[i].Role == types.RoleSystem {
			messages[i].Content += unicodeHint
		}
	}
	return messages, nil
}

// NewPromptVersion wraps fn as a types.PromptVersion.
func NewPromptVersion(fn types.PromptFunction) types.PromptVersion {
	return &promptVersion{fn: fn}
}

// QueryTimeLayout renders query times in prompts.
const QueryTimeLayout = "01/02/2006, 15:04:05 MST"

// FormatQueryTime renders t for a prompt, or "unknown" for the zero time.
func FormatQueryTime(t time.Time) string {
	if t.IsZero() {
		return "unknown"
	}
	return t.Format(QueryTimeLayout)
}

// ToPromptJSON marshals data, indented by indent spaces when indent > 0.
func ToPromptJSON(data interface{}, indent int) (string, error) {
	var (
		b   []byte
		err error
	)
	if indent > 0 {
		b, err = json.MarshalIndent(data, "", strings.Repeat(" ", indent))
	} else {
		b, err = json.Marshal(data)
	}
	return string(b), err
}

// debugOut receives raw prompts and responses when DEBUG_LLM_PROMPTS=true.
var debugOut io.Writer = os.Stderr

func debugPrompts() bool {
	return os.Getenv("DEBUG_LLM_PROMPTS") == "true"
}

// dump writes text between banner lines so multi-line prompts stay readable.
func dump(title, text string) {
	fmt.Fprintf(debugOut, "=== %s ===\n%s\n=== END %s ===\n", title, text, title)
}

// logPrompts dumps both prompts when DEBUG_LLM_PROMPTS=true.
func logPrompts(logger *slog.Logger, sysPrompt, userPrompt string) {
	if !debugPrompts() {
		return
	}
	logger.Debug("dumping prompts", "system_len", len(sysPrompt), "user_len", len(userPrompt))
	dump("SYSTEM PROMPT", sysPrompt)
	dump("USER PROMPT", userPrompt)
}

// LogResponses dumps a model response when DEBUG_LLM_PROMPTS=true.
func LogResponses(logger *slog.Logger, response types.Response) {
	if !debugPrompts() {
		return
	}
	logger.Debug("dumping model response", "model", response.Model, "finish_reason", response.FinishReason)
	dump("LLM RESPONSE", response.Content)
}
