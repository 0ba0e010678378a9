package nlp

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/parquet-go/parquet-go"

	"github.com/soundprediction/kgroute/pkg/types"
)

// TokenUsageRecord is one model call in the token usage log.
type TokenUsageRecord struct {
	ID               string    `parquet:"id"`
	Timestamp        time.Time `parquet:"timestamp"`
	Model            string    `parquet:"model"`
	TotalTokens      int       `parquet:"total_tokens"`
	PromptTokens     int       `parquet:"prompt_tokens"`
	CompletionTokens int       `parquet:"completion_tokens"`
	Estimated        bool      `parquet:"estimated"`
	RunID            string    `parquet:"run_id"`
	UserID           string    `parquet:"user_id"`
	SessionID        string    `parquet:"session_id"`
	RequestSource    string    `parquet:"request_source"`
	IsSystemCall     bool      `parquet:"is_system_call"`
}

const tokenBatchSize = 100

// ParquetTokenTracker buffers usage records and writes them to a new Parquet
// file in its directory every batchSize records and on Flush.
type ParquetTokenTracker struct {
	dir       string
	batchSize int

	mu      sync.Mutex
	pending []TokenUsageRecord
	totals  types.TokenUsage
}

// NewTokenTracker creates dir if needed.
func NewTokenTracker(dir string) (*ParquetTokenTracker, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create token usage directory: %w", err)
	}
	return &ParquetTokenTracker{dir: dir, batchSize: tokenBatchSize}, nil
}

func ctxValue[T any](ctx context.Context, key types.ContextKey) T {
	v, _ := ctx.Value(key).(T)
	return v
}

// AddUsage records one call. Run, user, session and source come from ctx.
func (t *ParquetTokenTracker) AddUsage(ctx context.Context, usage *types.TokenUsage, model string, estimated bool) error {
	if usage == nil {
		return nil
	}
	rec := TokenUsageRecord{
		ID:               uuid.NewString(),
		Timestamp:        time.Now().UTC(),
		Model:            model,
		TotalTokens:      usage.TotalTokens,
		PromptTokens:     usage.PromptTokens,
		CompletionTokens: usage.CompletionTokens,
		Estimated:        estimated,
		RunID:            ctxValue[string](ctx, types.ContextKeyRunID),
		UserID:           ctxValue[string](ctx, types.ContextKeyUserID),
		SessionID:        ctxValue[string](ctx, types.ContextKeySessionID),
		RequestSource:    ctxValue[string](ctx, types.ContextKeyRequestSource),
		IsSystemCall:     ctxValue[bool](ctx, types.ContextKeySystemCall),
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.totals.PromptTokens += usage.PromptTokens
	t.totals.CompletionTokens += usage.CompletionTokens
	t.totals.TotalTokens += usage.TotalTokens
	t.pending = append(t.pending, rec)
	if len(t.pending) < t.batchSize {
		return nil
	}
	return t.writeLocked()
}

// Totals sums every call recorded so far.
func (t *ParquetTokenTracker) Totals() types.TokenUsage {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.totals
}

// Flush writes pending records.
func (t *ParquetTokenTracker) Flush() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.writeLocked()
}

func (t *ParquetTokenTracker) writeLocked() error {
	if len(t.pending) == 0 {
		return nil
	}
	now := time.Now()
	name := fmt.Sprintf("token_usage_%s_%d.parquet", now.Format("20060102_150405"), now.UnixNano())
	if err := parquet.WriteFile(filepath.Join(t.dir, name), t.pending); err != nil {
		return fmt.Errorf("write token usage: %w", err)
	}
	t.pending = t.pending[:0]
	return nil
}

// TokenTrackingClient wraps a Client to track usage. Providers that report no
// usage are estimated with CountTokens.
type TokenTrackingClient struct {
	client  Client
	tracker *ParquetTokenTracker
}

// NewTokenTrackingClient creates a wrapper client
func NewTokenTrackingClient(client Client, tracker *ParquetTokenTracker) *TokenTrackingClient {
	return &TokenTrackingClient{
		client:  client,
		tracker: tracker,
	}
}

// Chat implements Client
func (c *TokenTrackingClient) Chat(ctx context.Context, messages []types.Message) (*types.Response, error) {
	resp, err := c.client.Chat(ctx, messages)
	if err != nil {
		return nil, err
	}
	c.record(ctx, messages, resp)
	return resp, nil
}

// ChatWithStructuredOutput implements Client
func (c *TokenTrackingClient) ChatWithStructuredOutput(ctx context.Context, messages []types.Message, schema any) (*types.Response, error) {
	resp, err := c.client.ChatWithStructuredOutput(ctx, messages, schema)
	if err != nil {
		return nil, err
	}
	c.record(ctx, messages, resp)
	return resp, nil
}

func (c *TokenTrackingClient) record(ctx context.Context, messages []types.Message, resp *types.Response) {
	usage := resp.TokensUsed
	estimated := false
	if usage == nil {
		usage = estimateUsage(messages, resp.Content)
		estimated = true
	}

	model := resp.Model
	if model == "" {
		model = "unknown"
	}

	if err := c.tracker.AddUsage(ctx, usage, model, estimated); err != nil {
		slog.WarnContext(ctx, "failed to log token usage", "error", err)
	}
}

// GetCapabilities returns the list of capabilities supported by this client.
func (c *TokenTrackingClient) GetCapabilities() []TaskCapability {
	return c.client.GetCapabilities()
}

// Close flushes pending records and closes the wrapped client.
func (c *TokenTrackingClient) Close() error {
	flushErr := c.tracker.Flush()
	if err := c.client.Close(); err != nil {
		return err
	}
	return flushErr
}
