package driver

import (
	"context"
	"fmt"
	"sync"

	"github.com/soundprediction/kgroute/pkg/types"
)

// MemoryDriver is an in-process GraphAccess backed by maps. It is meant for
// tests, fixtures and small graphs.
type MemoryDriver struct {
	mu        sync.RWMutex
	entities  []*entityRecord
	byID      map[string]*entityRecord
	relations []relationRecord
	relByID   map[string]int
	embedder  TextEmbedder
	closed    bool
}

// NewMemoryDriver creates an empty graph. When embedder is non-nil, entities
// loaded without a vector are embedded from their rendered text.
func NewMemoryDriver(embedder TextEmbedder) *MemoryDriver {
	return &MemoryDriver{
		byID:     make(map[string]*entityRecord),
		relByID:  make(map[string]int),
		embedder: embedder,
	}
}

// NewMemoryDriverFromFixture creates a graph holding the fixture's content.
func NewMemoryDriverFromFixture(ctx context.Context, fx *GraphFixture, embedder TextEmbedder) (*MemoryDriver, error) {
	d := NewMemoryDriver(embedder)
	if err := LoadGraph(ctx, d, fx); err != nil {
		return nil, err
	}
	return d, nil
}

// UpsertEntity implements GraphWriter.
func (d *MemoryDriver) UpsertEntity(ctx context.Context, e *types.Entity, embedding []float32) error {
	if err := e.Validate(); err != nil {
		return err
	}
	if embedding == nil && d.embedder != nil {
		var err error
		if embedding, err = embedEntity(ctx, d.embedder, e); err != nil {
			return fmt.Errorf("failed to embed entity %s: %w", e.ID, err)
		}
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return ErrClosed
	}
	rec := newEntityRecord(e.Clone(), embedding)
	if existing, ok := d.byID[e.ID]; ok {
		// relations keep pointing at the same record
		*existing = *rec
		return nil
	}
	d.byID[e.ID] = rec
	d.entities = append(d.entities, rec)
	return nil
}

// UpsertRelation implements GraphWriter.
func (d *MemoryDriver) UpsertRelation(_ context.Context, r *types.Relation, embedding []float32) error {
	if err := r.Validate(); err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return ErrClosed
	}
	src, ok := d.byID[r.Source.ID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrEntityNotFound, r.Source.ID)
	}
	tgt, ok := d.byID[r.Target.ID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrEntityNotFound, r.Target.ID)
	}

	stored := *r
	stored.Properties = r.Properties.Clone()
	stored.Source, stored.Target = nil, nil
	stored.Direction = types.DirectionForward
	rec := relationRecord{relation: &stored, embedding: embedding, source: src, target: tgt}
	if i, ok := d.relByID[r.ID]; ok {
		d.relations[i] = rec
		return nil
	}
	d.relByID[r.ID] = len(d.relations)
	d.relations = append(d.relations, rec)
	return nil
}

// GetEntities implements GraphAccess.
func (d *MemoryDriver) GetEntities(ctx context.Context, q EntityQuery) ([]types.ScoredEntity, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return nil, ErrClosed
	}
	return rankEntities(d.entities, q), nil
}

// GetRelations implements GraphAccess.
func (d *MemoryDriver) GetRelations(ctx context.Context, q RelationQuery) ([]types.ScoredRelation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return nil, ErrClosed
	}
	return rankRelations(d.relations, q), nil
}

// GetEntityTypes implements GraphAccess.
func (d *MemoryDriver) GetEntityTypes(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return nil, ErrClosed
	}
	return entityTypes(d.entities), nil
}

// Provider implements GraphAccess.
func (d *MemoryDriver) Provider() GraphProvider {
	return GraphProviderMemory
}

// Close implements GraphAccess.
func (d *MemoryDriver) Close(context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	return nil
}

// Stats returns the number of entities and relations held.
func (d *MemoryDriver) Stats() (entities, relations int) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.entities), len(d.relations)
}
