package nlp

import (
	"fmt"

	"github.com/soundprediction/kgroute/pkg/config"
)

const (
	DefaultMaxTokens   = 8192
	DefaultTemperature = 1.0
	// DefaultMaxConcurrent bounds in-flight requests to self-hosted models.
	DefaultMaxConcurrent = 4
)

// Provider names accepted in model configuration.
const (
	ProviderOpenAI   = "openai"
	ProviderOllama   = "ollama"
	ProviderRustBert = "rustbert"
)

// LLMConfig is the provider-neutral setup of a chat client. Zero sampling
// fields leave the provider default in place.
type LLMConfig struct {
	APIKey      string  `json:"-"`
	Model       string  `json:"model,omitempty"`
	BaseURL     string  `json:"base_url,omitempty"`
	Temperature float32 `json:"temperature,omitempty"`
	MaxTokens   int     `json:"max_tokens,omitempty"`

	TopP float32 `json:"top_p,omitempty"`
	// TopK and MinP are only honored by Ollama.
	TopK int     `json:"top_k,omitempty"`
	MinP float32 `json:"min_p,omitempty"`

	// MaxConcurrent bounds concurrent requests for self-hosted providers.
	MaxConcurrent int64 `json:"max_concurrent,omitempty"`
}

func NewLLMConfig() *LLMConfig {
	return &LLMConfig{Temperature: DefaultTemperature, MaxTokens: DefaultMaxTokens}
}

// FromModelConfig converts a configured model entry. A zero max_tokens keeps
// DefaultMaxTokens.
func FromModelConfig(m config.NLPModelConfig) *LLMConfig {
	c := &LLMConfig{
		APIKey:        m.APIKey,
		Model:         m.Model,
		BaseURL:       m.BaseURL,
		Temperature:   m.Temperature,
		MaxTokens:     m.MaxTokens,
		TopP:          m.TopP,
		TopK:          m.TopK,
		MinP:          m.MinP,
		MaxConcurrent: m.MaxConcurrent,
	}
	if c.MaxTokens <= 0 {
		c.MaxTokens = DefaultMaxTokens
	}
	return c
}

func (c *LLMConfig) WithAPIKey(key string) *LLMConfig     { c.APIKey = key; return c }
func (c *LLMConfig) WithModel(model string) *LLMConfig    { c.Model = model; return c }
func (c *LLMConfig) WithBaseURL(url string) *LLMConfig    { c.BaseURL = url; return c }
func (c *LLMConfig) WithTemperature(t float32) *LLMConfig { c.Temperature = t; return c }
func (c *LLMConfig) WithMaxTokens(n int) *LLMConfig       { c.MaxTokens = n; return c }

// Validate checks value ranges.
func (c *LLMConfig) Validate() error {
	switch {
	case c.Temperature < 0 || c.Temperature > 2:
		return fmt.Errorf("temperature %.2f out of range [0, 2]", c.Temperature)
	case c.TopP < 0 || c.TopP > 1:
		return fmt.Errorf("top_p %.2f out of range [0, 1]", c.TopP)
	case c.MinP < 0 || c.MinP > 1:
		return fmt.Errorf("min_p %.2f out of range [0, 1]", c.MinP)
	case c.MaxTokens < 0:
		return fmt.Errorf("max_tokens must not be negative")
	}
	return nil
}
