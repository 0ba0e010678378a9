// Package nlp provides the language model clients used by the judges.
//
// This package defines the Client interface and provides implementations for
// OpenAI, OpenAI-compatible services (vLLM, LM Studio) and Ollama.
//
// # Client Wrappers
//
// The package provides several wrapper clients for enhanced functionality:
//   - RetryClient: Automatic retry with exponential backoff
//   - TokenTrackingClient: Persist token usage to Parquet
//   - CircuitBreakerClient: Circuit breaker pattern for fault tolerance
//
// Wrap applies all three in the intended order.
//
// # Usage
//
//	client, err := nlp.NewClient(cfg.NLP.Models["default"])
//	if err != nil {
//	    return err
//	}
//	client = nlp.Wrap(client, nlp.WrapOptions{Name: "default"})
//	resp, err := client.Chat(ctx, []types.Message{nlp.NewUserMessage("hello")})
//
// # Error Handling
//
// Provider failures are reported as *ModelError values whose Kind is one of
// ErrRateLimit, ErrRefusal or ErrEmptyResponse; match them with errors.Is.
// Rate limits are retried, refusals are not.
package nlp
