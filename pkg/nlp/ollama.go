package nlp

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strings"

	"github.com/ollama/ollama/api"
	"golang.org/x/sync/semaphore"

	"github.com/soundprediction/kgroute/pkg/types"
)

// DefaultOllamaURL is used when no base URL is configured.
const DefaultOllamaURL = "http://127.0.0.1:11434"

// defaultContextWindow is the num_ctx Ollama uses when none is requested.
const defaultContextWindow = 4096

// OllamaClient implements Client against a self-hosted Ollama server.
type OllamaClient struct {
	config  LLMConfig
	reqLock *semaphore.Weighted

	Client *api.Client
}

type headerTransport struct {
	headers map[string]string
	rt      http.RoundTripper
}

func (t *headerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	// clone so original request isn't modified
	r := req.Clone(req.Context())
	for k, v := range t.headers {
		if r.Header.Get(k) == "" {
			r.Header.Set(k, v)
		}
	}
	return t.rt.RoundTrip(r)
}

// NewOllamaHTTPClient builds the api client shared by chat and embeddings.
// A non-empty apiKey is sent as a bearer token for proxied deployments.
func NewOllamaHTTPClient(baseURL, apiKey string) (*api.Client, error) {
	if baseURL == "" {
		baseURL = DefaultOllamaURL
	}
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid ollama base URL: %w", err)
	}

	httpClient := http.DefaultClient
	if apiKey != "" {
		httpClient = &http.Client{
			Transport: &headerTransport{
				headers: map[string]string{"Authorization": "Bearer " + apiKey},
				rt:      http.DefaultTransport,
			},
		}
	}
	return api.NewClient(u, httpClient), nil
}

// NewOllamaClient creates a new Ollama chat client.
func NewOllamaClient(config *LLMConfig) (*OllamaClient, error) {
	if config == nil || config.Model == "" {
		return nil, fmt.Errorf("%w: ollama requires a model", ErrInvalidModel)
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	cli, err := NewOllamaHTTPClient(config.BaseURL, config.APIKey)
	if err != nil {
		return nil, err
	}
	limit := config.MaxConcurrent
	if limit <= 0 {
		limit = DefaultMaxConcurrent
	}
	return &OllamaClient{
		config:  *config,
		reqLock: semaphore.NewWeighted(limit),
		Client:  cli,
	}, nil
}

// Chat implements Client.
func (c *OllamaClient) Chat(ctx context.Context, messages []types.Message) (*types.Response, error) {
	return c.chat(ctx, messages, nil)
}

// ChatWithStructuredOutput implements Client; the schema is passed as the
// request format.
func (c *OllamaClient) ChatWithStructuredOutput(ctx context.Context, messages []types.Message, schema any) (*types.Response, error) {
	format, err := schemaJSON(schema)
	if err != nil {
		return nil, err
	}
	if format == nil {
		format = []byte(`"json"`)
	}
	return c.chat(ctx, messages, format)
}

func (c *OllamaClient) chat(ctx context.Context, messages []types.Message, format []byte) (*types.Response, error) {
	stream := false
	req := &api.ChatRequest{
		Model:    c.config.Model,
		Messages: make([]api.Message, len(messages)),
		Stream:   &stream,
		Format:   format,
		Options:  c.options(),
	}
	for i, m := range messages {
		req.Messages[i] = api.Message{Role: string(m.Role), Content: m.Content}
	}

	// grow num_ctx for long prompts
	tokens := CountMessageTokens(messages) + c.config.MaxTokens
	if tokens > defaultContextWindow {
		req.Options["num_ctx"] = tokens
	}

	if err := c.reqLock.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer c.reqLock.Release(1)

	var final api.ChatResponse
	if err := c.Client.Chat(ctx, req, func(cr api.ChatResponse) error {
		final.Message.Content += cr.Message.Content
		if cr.Done {
			final.Done = true
			final.DoneReason = cr.DoneReason
			final.Model = cr.Model
			final.Metrics = cr.Metrics
		}
		return nil
	}); err != nil {
		return nil, fmt.Errorf("ollama chat failed: %w", err)
	}

	content := removeThinkTags(final.Message.Content)
	if strings.TrimSpace(content) == "" {
		return nil, NewEmptyResponseError("empty content from ollama")
	}

	resp := &types.Response{
		Content:      content,
		FinishReason: final.DoneReason,
		Model:        final.Model,
	}
	if final.Metrics.PromptEvalCount > 0 || final.Metrics.EvalCount > 0 {
		resp.TokensUsed = &types.TokenUsage{
			PromptTokens:     final.Metrics.PromptEvalCount,
			CompletionTokens: final.Metrics.EvalCount,
			TotalTokens:      final.Metrics.PromptEvalCount + final.Metrics.EvalCount,
		}
	} else {
		resp.TokensUsed = estimateUsage(messages, content)
	}
	if resp.Model == "" {
		resp.Model = c.config.Model
	}
	return resp, nil
}

func (c *OllamaClient) options() map[string]any {
	opts := map[string]any{"temperature": c.config.Temperature}
	if c.config.MaxTokens > 0 {
		opts["num_predict"] = c.config.MaxTokens
	}
	if c.config.TopP > 0 {
		opts["top_p"] = c.config.TopP
	}
	if c.config.TopK > 0 {
		opts["top_k"] = c.config.TopK
	}
	if c.config.MinP > 0 {
		opts["min_p"] = c.config.MinP
	}
	return opts
}

// GetCapabilities returns the list of capabilities supported by this client.
func (c *OllamaClient) GetCapabilities() []TaskCapability {
	return []TaskCapability{TaskTextGeneration, TaskStructuredOutput}
}

// Close implements Client.
func (c *OllamaClient) Close() error {
	return nil
}

var thinkTags = regexp.MustCompile(`(?s)<think>.*?</think>`)

// removeThinkTags removes <think> tags and everything in between them.
func removeThinkTags(s string) string {
	return strings.TrimSpace(thinkTags.ReplaceAllString(s, ""))
}
