package nlp

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/sashabaranov/go-openai"

	"github.com/soundprediction/kgroute/pkg/types"
)

// placeholderKey is sent to compatible services that take no credentials.
const placeholderKey = "dummy-key"

// OpenAIClient talks to the OpenAI API or, when BaseURL is set, to an
// OpenAI-compatible server such as vLLM, LM Studio or llama.cpp.
type OpenAIClient struct {
	client *openai.Client
	config LLMConfig
}

// NewOpenAIClient validates config and builds the client. A nil config uses
// NewLLMConfig. OpenAI proper needs an API key and defaults the model to
// gpt-4o-mini; compatible servers need a model instead.
func NewOpenAIClient(config *LLMConfig) (*OpenAIClient, error) {
	if config == nil {
		config = NewLLMConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	cfg := *config

	if cfg.BaseURL == "" {
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("openai api key is required")
		}
		if cfg.Model == "" {
			cfg.Model = openai.GPT4oMini
		}
		return &OpenAIClient{client: openai.NewClient(cfg.APIKey), config: cfg}, nil
	}

	if err := validateBaseURL(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("%w: a model is required for openai-compatible services", ErrInvalidModel)
	}
	key := cfg.APIKey
	if key == "" {
		key = placeholderKey
	}
	oc := openai.DefaultConfig(key)
	oc.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if !hasAPIPath(oc.BaseURL) {
		oc.BaseURL += "/v1"
	}
	return &OpenAIClient{client: openai.NewClientWithConfig(oc), config: cfg}, nil
}

func (c *OpenAIClient) Model() string { return c.config.Model }

func (c *OpenAIClient) Chat(ctx context.Context, messages []types.Message) (*types.Response, error) {
	req, err := c.buildChatRequest(messages, false, nil)
	if err != nil {
		return nil, err
	}
	return c.complete(ctx, req)
}

// ChatWithStructuredOutput sends the schema as a json_schema response format
// to OpenAI. Compatible servers get JSON mode with the schema appended to the
// last user turn.
func (c *OpenAIClient) ChatWithStructuredOutput(ctx context.Context, messages []types.Message, schema any) (*types.Response, error) {
	req, err := c.buildChatRequest(messages, true, schema)
	if err != nil {
		return nil, err
	}
	return c.complete(ctx, req)
}

func (c *OpenAIClient) GetCapabilities() []TaskCapability {
	return []TaskCapability{TaskTextGeneration, TaskStructuredOutput}
}

func (c *OpenAIClient) Close() error { return nil }

func (c *OpenAIClient) providerLabel() string {
	if c.config.BaseURL == "" {
		return "openai"
	}
	return "openai-compatible"
}

func (c *OpenAIClient) complete(ctx context.Context, req openai.ChatCompletionRequest) (*types.Response, error) {
	label := c.providerLabel()
	resp, err := c.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("%s chat completion failed: %w", label, classifyOpenAIError(err))
	}
	if len(resp.Choices) == 0 {
		return nil, NewEmptyResponseError("no choices returned from " + label)
	}

	choice := resp.Choices[0]
	switch {
	case choice.Message.Refusal != "":
		return nil, NewRefusalError(choice.Message.Refusal)
	case choice.FinishReason == openai.FinishReasonContentFilter:
		return nil, NewRefusalError("response blocked by content filter")
	case strings.TrimSpace(choice.Message.Content) == "":
		return nil, NewEmptyResponseError(fmt.Sprintf("empty content from %s (finish reason %q)", label, choice.FinishReason))
	}

	out := &types.Response{
		Content:      choice.Message.Content,
		FinishReason: string(choice.FinishReason),
		Model:        resp.Model,
	}
	// compatible servers often leave usage empty
	if u := resp.Usage; u.TotalTokens > 0 {
		out.TokensUsed = &types.TokenUsage{
			PromptTokens:     u.PromptTokens,
			CompletionTokens: u.CompletionTokens,
			TotalTokens:      u.TotalTokens,
		}
	}
	return out, nil
}

func (c *OpenAIClient) buildChatRequest(messages []types.Message, structured bool, schema any) (openai.ChatCompletionRequest, error) {
	req := openai.ChatCompletionRequest{
		Model:       c.config.Model,
		Messages:    make([]openai.ChatCompletionMessage, 0, len(messages)),
		Temperature: c.config.Temperature,
		TopP:        c.config.TopP,
	}
	for _, m := range messages {
		req.Messages = append(req.Messages, openai.ChatCompletionMessage{Role: string(m.Role), Content: m.Content})
	}
	if c.config.MaxTokens > 0 {
		req.MaxCompletionTokens = c.config.MaxTokens
	}
	if !structured {
		return req, nil
	}

	doc, err := schemaJSON(schema)
	if err != nil {
		return req, err
	}
	if c.config.BaseURL == "" && doc != nil {
		req.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type:       openai.ChatCompletionResponseFormatTypeJSONSchema,
			JSONSchema: &openai.ChatCompletionResponseFormatJSONSchema{Name: schemaName(schema), Schema: doc},
		}
		return req, nil
	}

	req.ResponseFormat = &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject}
	if n := len(req.Messages); n > 0 && req.Messages[n-1].Role == string(types.RoleUser) {
		hint := "\n\nPlease respond with valid JSON only."
		if doc != nil {
			hint += " The JSON must follow this schema:\n" + string(doc)
		}
		req.Messages[n-1].Content += hint
	}
	return req, nil
}

func validateBaseURL(raw string) error {
	if raw == "" {
		return fmt.Errorf("baseURL cannot be empty")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid baseURL format: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("baseURL must use http:// or https:// scheme, got %q", u.Scheme)
	}
	return nil
}

// hasAPIPath reports whether baseURL already ends in /v1 or /api.
func hasAPIPath(baseURL string) bool {
	p := strings.TrimRight(baseURL, "/")
	return strings.HasSuffix(p, "/v1") || strings.HasSuffix(p, "/api")
}
