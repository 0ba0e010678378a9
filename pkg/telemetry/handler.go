// Package telemetry persists error logs and route traces as Parquet files.
package telemetry

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/parquet-go/parquet-go"

	"github.com/soundprediction/kgroute/pkg/types"
)

// LogRecord is one error-level log line. Attributes holds the record's
// attrs as a JSON object.
type LogRecord struct {
	ID            string    `parquet:"id"`
	Timestamp     time.Time `parquet:"timestamp"`
	Level         string    `parquet:"level"`
	Message       string    `parquet:"message"`
	RunID         string    `parquet:"run_id"`
	UserID        string    `parquet:"user_id"`
	SessionID     string    `parquet:"session_id"`
	RequestSource string    `parquet:"request_source"`
	SourceFile    string    `parquet:"source_file"`
	LineNumber    int       `parquet:"line_number"`
	Attributes    string    `parquet:"attributes"`
}

// batch buffers rows of one kind and writes them to numbered Parquet files.
// Clones of a handler share one batch.
type batch[T any] struct {
	dir    string
	prefix string
	size   int

	mu   sync.Mutex
	rows []T
}

func newBatch[T any](dir, prefix string, size int) (*batch[T], error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create telemetry directory: %w", err)
	}
	return &batch[T]{dir: dir, prefix: prefix, size: size, rows: make([]T, 0, size)}, nil
}

func (b *batch[T]) add(row T) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.rows = append(b.rows, row)
	if len(b.rows) >= b.size {
		return b.flushLocked()
	}
	return nil
}

func (b *batch[T]) flush() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.flushLocked()
}

func (b *batch[T]) flushLocked() error {
	if len(b.rows) == 0 {
		return nil
	}
	now := time.Now()
	name := fmt.Sprintf("%s_%s_%d.parquet", b.prefix, now.Format("20060102_150405"), now.UnixNano())
	if err := parquet.WriteFile(filepath.Join(b.dir, name), b.rows); err != nil {
		return fmt.Errorf("failed to write %s: %w", name, err)
	}
	b.rows = b.rows[:0]
	return nil
}

const errorBatchSize = 100

// ParquetHandler forwards every record to next and additionally keeps
// error-level records, written as execution_errors_*.parquet every
// errorBatchSize records and on Close.
type ParquetHandler struct {
	next  slog.Handler
	batch *batch[LogRecord]
}

func NewParquetHandler(next slog.Handler, outputDir string) (*ParquetHandler, error) {
	b, err := newBatch[LogRecord](outputDir, "execution_errors", errorBatchSize)
	if err != nil {
		return nil, err
	}
	return &ParquetHandler{next: next, batch: b}, nil
}

func (h *ParquetHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

// attrsJSON renders attrs as a JSON object; error values become their text.
func attrsJSON(r slog.Record) string {
	m := make(map[string]any, r.NumAttrs())
	r.Attrs(func(a slog.Attr) bool {
		v := a.Value.Any()
		if err, ok := v.(error); ok {
			v = err.Error()
		}
		m[a.Key] = v
		return true
	})
	b, err := json.Marshal(m)
	if err != nil {
		return "{}"
	}
	return string(b)
}

func (h *ParquetHandler) Handle(ctx context.Context, r slog.Record) error {
	if err := h.next.Handle(ctx, r); err != nil || r.Level < slog.LevelError {
		return err
	}

	frame, _ := runtime.CallersFrames([]uintptr{r.PC}).Next()
	return h.batch.add(LogRecord{
		ID:            uuid.NewString(),
		Timestamp:     r.Time.UTC(),
		Level:         r.Level.String(),
		Message:       r.Message,
		RunID:         contextString(ctx, types.ContextKeyRunID),
		UserID:        contextString(ctx, types.ContextKeyUserID),
		SessionID:     contextString(ctx, types.ContextKeySessionID),
		RequestSource: contextString(ctx, types.ContextKeyRequestSource),
		SourceFile:    frame.File,
		LineNumber:    frame.Line,
		Attributes:    attrsJSON(r),
	})
}

func (h *ParquetHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &ParquetHandler{next: h.next.WithAttrs(attrs), batch: h.batch}
}

func (h *ParquetHandler) WithGroup(name string) slog.Handler {
	return &ParquetHandler{next: h.next.WithGroup(name), batch: h.batch}
}

// Close writes buffered records.
func (h *ParquetHandler) Close() error {
	return h.batch.flush()
}

func contextString(ctx context.Context, key types.ContextKey) string {
	v, _ := ctx.Value(key).(string)
	return v
}
