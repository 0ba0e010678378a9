package nlp

import (
	"context"
	"slices"

	"github.com/soundprediction/kgroute/pkg/types"
)

// TaskCapability names a task a Client can serve.
type TaskCapability string

const (
	TaskTextGeneration         TaskCapability = "text_generation"
	TaskStructuredOutput       TaskCapability = "structured_output"
	TaskEmbedding              TaskCapability = "embedding"
	TaskNamedEntityRecognition TaskCapability = "ner"
)

// Client is a chat model. Judges and planners only depend on this interface;
// providers, retries, breakers and usage tracking are layered as wrappers.
type Client interface {
	Chat(ctx context.Context, messages []types.Message) (*types.Response, error)

	// ChatWithStructuredOutput constrains the reply to a JSON schema. schema
	// is either a schema document or a Go value to derive one from (see
	// GenerateSchema).
	ChatWithStructuredOutput(ctx context.Context, messages []types.Message, schema any) (*types.Response, error)

	GetCapabilities() []TaskCapability

	Close() error
}

// HasCapability reports whether c supports task.
func HasCapability(c Client, task TaskCapability) bool {
	return slices.Contains(c.GetCapabilities(), task)
}

// NewSystemMessage returns a system turn.
func NewSystemMessage(content string) types.Message {
	return types.Message{Role: types.RoleSystem, Content: content}
}

// NewUserMessage returns a user turn.
func NewUserMessage(content string) types.Message {
	return types.Message{Role: types.RoleUser, Content: content}
}
