package embedder

import (
	"fmt"

	"github.com/soundprediction/kgroute/pkg/config"
	"github.com/soundprediction/kgroute/pkg/nlp"
)

// Provider names accepted in embedding configuration.
const (
	ProviderOpenAI          = "openai"
	ProviderOllama          = "ollama"
	ProviderEmbedEverything = "embedeverything"
	ProviderNone            = "none"
)

// NewClient builds the configured embedder. Provider "none" returns a nil
// client and no error; vector lookups are then skipped.
func NewClient(cfg config.EmbeddingConfig) (Client, error) {
	ec := Config{
		Model:      cfg.Model,
		BaseURL:    cfg.BaseURL,
		Dimensions: cfg.Dimensions,
	}
	switch cfg.Provider {
	case ProviderOpenAI, "":
		if cfg.APIKey == "" && cfg.BaseURL == "" {
			return nil, fmt.Errorf("openai embeddings require an api key")
		}
		return NewOpenAIEmbedder(cfg.APIKey, ec), nil
	case ProviderOllama:
		return NewOllamaEmbedder(cfg.APIKey, ec)
	case ProviderEmbedEverything:
		return NewEmbedEverythingClient(ec)
	case ProviderNone:
		return nil, nil
	default:
		return nil, fmt.Errorf("%w: %q", nlp.ErrUnknownProvider, cfg.Provider)
	}
}
