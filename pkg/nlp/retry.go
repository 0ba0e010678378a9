package nlp

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/soundprediction/kgroute/pkg/types"
	"github.com/soundprediction/kgroute/pkg/utils"
)

// RetryClient retries transient model failures with exponential backoff.
type RetryClient struct {
	client Client
	config utils.RetryConfig
	logger *slog.Logger
}

// NewRetryClient wraps client. A nil config uses utils.DefaultRetryConfig.
// The retry predicate is always IsRetryableError.
func NewRetryClient(client Client, config *utils.RetryConfig) *RetryClient {
	cfg := utils.DefaultRetryConfig()
	if config != nil {
		cfg = *config
	}
	cfg.Retryable = IsRetryableError
	return &RetryClient{client: client, config: cfg, logger: slog.Default()}
}

func (r *RetryClient) WithLogger(logger *slog.Logger) *RetryClient {
	r.logger = logger
	return r
}

func (r *RetryClient) Chat(ctx context.Context, messages []types.Message) (*types.Response, error) {
	return r.retry(ctx, "chat", func(ctx context.Context) (*types.Response, error) {
		return r.client.Chat(ctx, messages)
	})
}

func (r *RetryClient) ChatWithStructuredOutput(ctx context.Context, messages []types.Message, schema any) (*types.Response, error) {
	return r.retry(ctx, "structured", func(ctx context.Context) (*types.Response, error) {
		return r.client.ChatWithStructuredOutput(ctx, messages, schema)
	})
}

func (r *RetryClient) retry(ctx context.Context, op string, call func(context.Context) (*types.Response, error)) (*types.Response, error) {
	attempt := 0
	return utils.Retry(ctx, r.config, func(ctx context.Context) (*types.Response, error) {
		attempt++
		resp, err := call(ctx)
		if err != nil && attempt <= r.config.MaxRetries && IsRetryableError(err) {
			r.logger.WarnContext(ctx, "model call failed, retrying", "op", op, "attempt", attempt, "error", err)
		}
		return resp, err
	})
}

func (r *RetryClient) GetCapabilities() []TaskCapability { return r.client.GetCapabilities() }

func (r *RetryClient) Close() error { return r.client.Close() }

// transientMarkers are matched against lowercased error text when no typed
// status is available.
var transientMarkers = []string{
	"429", "500", "502", "503", "504",
	"rate limit", "too many requests",
	"internal server error", "bad gateway", "service unavailable", "gateway timeout",
	"timeout", "temporary failure",
	"connection reset", "connection refused",
}

// IsRetryableError reports whether err is worth another attempt: rate limits,
// 5xx and 429 statuses, timeouts and dropped connections. Cancellation and
// refusals are final.
func IsRetryableError(err error) bool {
	switch {
	case err == nil, errors.Is(err, context.Canceled), errors.Is(err, ErrRefusal):
		return false
	case errors.Is(err, ErrRateLimit):
		return true
	}

	var status interface{ HTTPStatusCode() int }
	if errors.As(err, &status) {
		code := status.HTTPStatusCode()
		return code == http.StatusTooManyRequests || code >= http.StatusInternalServerError
	}

	msg := strings.ToLower(err.Error())
	for _, m := range transientMarkers {
		if strings.Contains(msg, m) {
			return true
		}
	}
	return false
}
