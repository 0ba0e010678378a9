package nlp

import (
	"fmt"

	"github.com/soundprediction/kgroute/pkg/alert"
	"github.com/soundprediction/kgroute/pkg/config"
	"github.com/soundprediction/kgroute/pkg/utils"
)

// NewClient builds a remote chat client for a configured model. Local
// providers (rustbert) are constructed by their own packages.
func NewClient(m config.NLPModelConfig) (Client, error) {
	cfg := FromModelConfig(m)
	switch m.Provider {
	case ProviderOpenAI, "":
		return NewOpenAIClient(cfg)
	case ProviderOllama:
		return NewOllamaClient(cfg)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, m.Provider)
	}
}

// WrapOptions selects the decorators applied by Wrap.
type WrapOptions struct {
	Name           string
	Retry          *utils.RetryConfig
	CircuitBreaker config.CircuitBreakerConfig
	Alerter        alert.Alerter
	Tracker        *ParquetTokenTracker
}

// Wrap layers token tracking, retries and the circuit breaker around client,
// innermost first. The breaker sees one failure per exhausted retry loop.
func Wrap(client Client, opts WrapOptions) Client {
	if opts.Tracker != nil {
		client = NewTokenTrackingClient(client, opts.Tracker)
	}
	client = NewRetryClient(client, opts.Retry)
	name := opts.Name
	if name == "" {
		name = "llm"
	}
	return WithCircuitBreaker(client, opts.CircuitBreaker, opts.Alerter, name)
}
