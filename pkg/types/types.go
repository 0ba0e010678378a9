package types

import (
	"errors"
)

// Validation errors
var (
	ErrEmptyID       = errors.New("id cannot be empty")
	ErrEmptyName     = errors.New("name cannot be empty")
	ErrNilEndpoint   = errors.New("relation source and target cannot be nil")
	ErrBadDirection  = errors.New("direction must be forward or reverse")
	ErrEmptyQuestion = errors.New("question cannot be empty")
)

// Role is the author of a chat message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is a single chat message sent to a language model.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// TokenUsage reports the tokens consumed by one model call.
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Response is a language model reply.
type Response struct {
	Content      string      `json:"content"`
	FinishReason string      `json:"finish_reason,omitempty"`
	Model        string      `json:"model,omitempty"`
	TokensUsed   *TokenUsage `json:"tokens_used,omitempty"`
}

// PromptFunction builds prompt messages from a template context.
type PromptFunction func(context map[string]interface{}) ([]Message, error)

// PromptVersion is a callable, versioned prompt.
type PromptVersion interface {
	Call(context map[string]interface{}) ([]Message, error)
}

// ContextKey is the type of request-scoped values stored in a context.Context.
type ContextKey string

const (
	// ContextKeyUserID identifies the caller.
	ContextKeyUserID ContextKey = "user_id"
	// ContextKeySessionID identifies the caller's session.
	ContextKeySessionID ContextKey = "session_id"
	// ContextKeyRequestSource names the surface that issued the request (server, cli).
	ContextKeyRequestSource ContextKey = "request_source"
	// ContextKeyRunID carries the id of the current answer run.
	ContextKeyRunID ContextKey = "run_id"
	// ContextKeySystemCall marks calls made by the system rather than a user.
	ContextKeySystemCall ContextKey = "system_call"
)
