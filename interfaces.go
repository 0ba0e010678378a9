package kgroute

import (
	"context"

	"github.com/soundprediction/kgroute/pkg/archive"
	"github.com/soundprediction/kgroute/pkg/types"
)

// Answerer answers questions over the knowledge graph.
type Answerer interface {
	// Answer explores planned routes through the graph and returns the chosen
	// answer with its provenance. Options may be nil.
	Answer(ctx context.Context, question string, options *AnswerOptions) (*types.AnswerResult, error)
}

// GraphInspector exposes read-only facts about the configured graph.
type GraphInspector interface {
	// EntityTypes lists the entity types present in the graph.
	EntityTypes(ctx context.Context) ([]string, error)

	// Ping checks that the graph answers queries.
	Ping(ctx context.Context) error
}

// RunLookup reads archived runs. Both methods return ErrNoArchive when the
// client has no archive.
type RunLookup interface {
	Run(ctx context.Context, runID string) (*archive.Run, error)
	Runs(ctx context.Context, limit int) ([]*archive.Run, error)
}

// KGRoute is the main interface of the library. Consumers should depend on
// the smallest interface they need.
type KGRoute interface {
	Answerer
	GraphInspector

	// Close releases the graph connection and every model client.
	Close(ctx context.Context) error
}

var (
	_ KGRoute   = (*Client)(nil)
	_ RunLookup = (*Client)(nil)
)
