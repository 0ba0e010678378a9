package telemetry

import (
	"context"
	"time"

	"github.com/soundprediction/kgroute/pkg/search"
	"github.com/soundprediction/kgroute/pkg/types"
)

// RouteTrace is one explored route.
type RouteTrace struct {
	RunID         string    `parquet:"run_id"`
	Timestamp     time.Time `parquet:"timestamp"`
	Question      string    `parquet:"question"`
	RouteIndex    int       `parquet:"route_index"`
	SubObjectives []string  `parquet:"sub_objectives,list"`
	State         string    `parquet:"state"`
	Depth         int       `parquet:"depth"`
	Answer        string    `parquet:"answer"`
	Unknown       bool      `parquet:"unknown"`
	TopicEntities int       `parquet:"topic_entities"`
	Relations     int       `parquet:"relations"`
	DurationMs    int64     `parquet:"duration_ms"`
	Error         string    `parquet:"error"`
	UserID        string    `parquet:"user_id"`
}

// RouteTraceWriter appends route traces to Parquet files.
type RouteTraceWriter struct {
	batch *batch[RouteTrace]
}

var _ search.Tracer = (*RouteTraceWriter)(nil)

// NewRouteTraceWriter writes traces under dir, one file per batchSize routes
// and one on Close. A non-positive batchSize selects 50.
func NewRouteTraceWriter(dir string, batchSize int) (*RouteTraceWriter, error) {
	if batchSize <= 0 {
		batchSize = 50
	}
	b, err := newBatch[RouteTrace](dir, "route_traces", batchSize)
	if err != nil {
		return nil, err
	}
	return &RouteTraceWriter{batch: b}, nil
}

// TraceRoute implements search.Tracer.
func (w *RouteTraceWriter) TraceRoute(ctx context.Context, runID string, res *types.RouteResult) error {
	if res == nil {
		return nil
	}
	row := RouteTrace{
		RunID:      runID,
		Timestamp:  time.Now().UTC(),
		State:      string(res.State),
		Depth:      res.Depth,
		Answer:     res.Answer,
		Unknown:    res.Unknown(),
		DurationMs: res.Duration.Milliseconds(),
		UserID:     contextString(ctx, types.ContextKeyUserID),
	}
	if res.Route != nil {
		row.Question = res.Route.Question
		row.RouteIndex = res.Route.Index
		row.SubObjectives = res.Route.SubObjectives
	}
	if res.Evidence != nil {
		row.TopicEntities = len(res.Evidence.TopicEntities)
		row.Relations = len(res.Evidence.Lines())
	}
	if res.Err != nil {
		row.Error = res.Err.Error()
	}
	return w.batch.add(row)
}

// Flush writes buffered traces.
func (w *RouteTraceWriter) Flush() error {
	return w.batch.flush()
}

// Close flushes buffered traces.
func (w *RouteTraceWriter) Close() error {
	return w.batch.flush()
}
