package driver

import (
	"context"
	"errors"

	"github.com/soundprediction/kgroute/pkg/types"
)

// GraphProvider represents the type of graph database provider
type GraphProvider string

const (
	GraphProviderNeo4j   GraphProvider = "neo4j"
	GraphProviderLadybug GraphProvider = "ladybug"
	GraphProviderMemory  GraphProvider = "memory"
)

var (
	// ErrClosed is returned by drivers used after Close.
	ErrClosed = errors.New("graph driver is closed")
	// ErrEntityNotFound is returned when a relation references a missing entity.
	ErrEntityNotFound = errors.New("entity not found")
	// ErrUnknownProvider is returned for an unsupported provider name.
	ErrUnknownProvider = errors.New("unknown graph provider")
)

// EntityQuery selects entities. An empty query matches every entity.
type EntityQuery struct {
	// Type restricts results to one entity type.
	Type string
	// Name matches entity names exactly, or by similarity when Fuzzy is set.
	Name  string
	Fuzzy bool
	// Embedding switches to nearest-neighbour search over entity vectors.
	Embedding []float32
	// Constraint filters and orders by the entity's event timestamp.
	Constraint *TemporalConstraint
	// TopK limits the result size; 0 means unlimited.
	TopK int
}

// RelationQuery selects relations around entities, matched in both
// directions. Results are reported from the source's point of view.
type RelationQuery struct {
	Source     *types.Entity
	Relation   string
	Target     *types.Entity
	SourceType string
	TargetType string
	// UniqueByType keeps one representative per (relation name, target type, direction).
	UniqueByType bool
	// Embedding re-ranks by relation vector similarity.
	Embedding []float32
	// TargetEmbedding re-ranks by target entity vector similarity.
	TargetEmbedding []float32
	TopK            int
}

// GraphAccess is the read side of the knowledge graph used by the search engine.
// Implementations must be safe for concurrent use.
type GraphAccess interface {
	// GetEntities returns matching entities. Scores are 1 for exact matches and
	// the similarity for fuzzy or vector matches.
	GetEntities(ctx context.Context, q EntityQuery) ([]types.ScoredEntity, error)

	// GetRelations returns matching relations. Scores are the re-rank
	// similarity when an embedding is given, otherwise 1.
	GetRelations(ctx context.Context, q RelationQuery) ([]types.ScoredRelation, error)

	// GetEntityTypes lists the entity types present in the graph.
	GetEntityTypes(ctx context.Context) ([]string, error)

	// Provider returns the type of graph database provider.
	Provider() GraphProvider

	// Close releases all resources held by the driver.
	Close(ctx context.Context) error
}
