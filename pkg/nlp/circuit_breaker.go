package nlp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sony/gobreaker"

	"github.com/soundprediction/kgroute/pkg/alert"
	"github.com/soundprediction/kgroute/pkg/config"
	"github.com/soundprediction/kgroute/pkg/types"
)

const (
	defaultTripRatio = 0.6
	// minTripRequests is the sample size below which the breaker stays closed.
	minTripRequests = 3
)

// CircuitBreakerClient stops calling a failing model until its timeout
// elapses and sends an alert whenever it opens.
type CircuitBreakerClient struct {
	client Client
	cb     *gobreaker.CircuitBreaker
}

// WithCircuitBreaker returns client unchanged unless cfg.Enabled.
func WithCircuitBreaker(client Client, cfg config.CircuitBreakerConfig, alerter alert.Alerter, name string) Client {
	if !cfg.Enabled {
		return client
	}
	return NewCircuitBreakerClient(client, cfg, alerter, name)
}

// NewCircuitBreakerClient wraps client in a breaker called name. A nil
// alerter disables alerts.
func NewCircuitBreakerClient(client Client, cfg config.CircuitBreakerConfig, alerter alert.Alerter, name string) *CircuitBreakerClient {
	if alerter == nil {
		alerter = &alert.NoOpAlerter{}
	}
	ratio := cfg.ReadyToTripRatio
	if ratio <= 0 {
		ratio = defaultTripRatio
	}

	onChange := func(name string, from, to gobreaker.State) {
		slog.Info("circuit breaker state changed", "breaker", name, "from", from.String(), "to", to.String())
		if to != gobreaker.StateOpen {
			return
		}
		subject := fmt.Sprintf("URGENT: model breaker %s is open", name)
		body := fmt.Sprintf("Breaker %s moved from %s to %s after repeated model failures. Calls fail fast until it half-opens.", name, from, to)
		if err := alerter.Alert(subject, body); err != nil {
			slog.Error("failed to send circuit breaker alert", "breaker", name, "error", err)
		}
	}

	return &CircuitBreakerClient{
		client: client,
		cb: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        name,
			MaxRequests: cfg.MaxRequests,
			Interval:    time.Duration(cfg.Interval) * time.Second,
			Timeout:     time.Duration(cfg.Timeout) * time.Second,
			ReadyToTrip: func(c gobreaker.Counts) bool {
				return c.Requests >= minTripRequests &&
					float64(c.TotalFailures)/float64(c.Requests) >= ratio
			},
			OnStateChange: onChange,
			IsSuccessful: func(err error) bool {
				return err == nil || errors.Is(err, context.Canceled)
			},
		}),
	}
}

// State returns the current breaker state.
func (c *CircuitBreakerClient) State() gobreaker.State {
	return c.cb.State()
}

func (c *CircuitBreakerClient) do(call func() (*types.Response, error)) (*types.Response, error) {
	out, err := c.cb.Execute(func() (any, error) { return call() })
	if err != nil {
		return nil, err
	}
	return out.(*types.Response), nil
}

func (c *CircuitBreakerClient) Chat(ctx context.Context, messages []types.Message) (*types.Response, error) {
	return c.do(func() (*types.Response, error) { return c.client.Chat(ctx, messages) })
}

func (c *CircuitBreakerClient) ChatWithStructuredOutput(ctx context.Context, messages []types.Message, schema any) (*types.Response, error) {
	return c.do(func() (*types.Response, error) {
		return c.client.ChatWithStructuredOutput(ctx, messages, schema)
	})
}

func (c *CircuitBreakerClient) GetCapabilities() []TaskCapability { return c.client.GetCapabilities() }

func (c *CircuitBreakerClient) Close() error { return c.client.Close() }
