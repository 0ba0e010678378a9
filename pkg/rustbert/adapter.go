package rustbert

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/soundprediction/kgroute/pkg/nlp"
	"github.com/soundprediction/kgroute/pkg/types"
)

// Tasks an LLMAdapter can serve.
const (
	TaskGeneration = "text_generation"
	TaskNER        = "ner"
)

// model is the part of Client the adapter uses.
type model interface {
	ExtractEntities(text string) ([]Entity, error)
	GenerateText(prompt string) (string, error)
}

// LLMAdapter exposes a RustBert model as an nlp.Client so it can stand in
// for a hosted chat model.
type LLMAdapter struct {
	client model
	task   string
}

var _ nlp.Client = (*LLMAdapter)(nil)

// NewLLMAdapter creates a new LLM adapter for RustBert.
func NewLLMAdapter(client *Client, task string) *LLMAdapter {
	return &LLMAdapter{client: client, task: task}
}

// Chat runs the adapter's task over the user messages joined by newlines.
// NER output is a JSON array of entities.
func (a *LLMAdapter) Chat(ctx context.Context, messages []types.Message) (*types.Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var input strings.Builder
	for _, msg := range messages {
		if msg.Role != types.RoleUser {
			continue
		}
		if input.Len() > 0 {
			input.WriteString("\n")
		}
		input.WriteString(msg.Content)
	}
	if input.Len() == 0 {
		return nil, nlp.NewEmptyResponseError("no user message to run")
	}

	var output string
	switch a.task {
	case TaskGeneration, "generation":
		out, err := a.client.GenerateText(input.String())
		if err != nil {
			return nil, err
		}
		output = out
	case TaskNER:
		entities, err := a.client.ExtractEntities(input.String())
		if err != nil {
			return nil, err
		}
		b, err := json.Marshal(entities)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal NER entities: %w", err)
		}
		output = string(b)
	default:
		return nil, fmt.Errorf("unknown task: %s", a.task)
	}

	return &types.Response{Content: output, Model: "rustbert/" + a.task}, nil
}

// ChatWithStructuredOutput falls back to Chat; local models cannot be
// constrained to a schema.
func (a *LLMAdapter) ChatWithStructuredOutput(ctx context.Context, messages []types.Message, _ any) (*types.Response, error) {
	return a.Chat(ctx, messages)
}

// GetCapabilities implements nlp.Client.
func (a *LLMAdapter) GetCapabilities() []nlp.TaskCapability {
	if a.task == TaskNER {
		return []nlp.TaskCapability{nlp.TaskNamedEntityRecognition}
	}
	return []nlp.TaskCapability{nlp.TaskTextGeneration}
}

// Close is a no-op; the owner of the Client closes it.
func (a *LLMAdapter) Close() error {
	return nil
}
