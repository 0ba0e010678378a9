package driver

import (
	"context"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/soundprediction/kgroute/pkg/types"
)

// GraphWriter loads entities and relations into a graph store.
type GraphWriter interface {
	// UpsertEntity stores e. A nil embedding leaves vector search to the store.
	UpsertEntity(ctx context.Context, e *types.Entity, embedding []float32) error
	// UpsertRelation stores r between existing entities r.Source.ID and r.Target.ID.
	UpsertRelation(ctx context.Context, r *types.Relation, embedding []float32) error
}

// TextEmbedder turns text into vectors. It is satisfied by embedder.Client.
type TextEmbedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// GraphFixture is the YAML interchange format for small graphs.
//
//	entities:
//	  - id: m1
//	    type: Movie
//	    name: Inception
//	    timestamp: "2010-07-16"
//	    properties:
//	      genre: {sci-fi: {count: 3}, thriller: {count: 1}}
//	relations:
//	  - id: r1
//	    name: DIRECTED_BY
//	    source: m1
//	    target: p1
type GraphFixture struct {
	Entities  []FixtureEntity   `yaml:"entities"`
	Relations []FixtureRelation `yaml:"relations"`
}

// FixtureEntity is one entity of a GraphFixture.
type FixtureEntity struct {
	types.Entity `yaml:",inline"`
	Timestamp    string    `yaml:"timestamp,omitempty"`
	Embedding    []float32 `yaml:"embedding,omitempty"`
}

// FixtureRelation is one relation of a GraphFixture, referencing entities by id.
type FixtureRelation struct {
	ID          string            `yaml:"id"`
	Name        string            `yaml:"name"`
	Source      string            `yaml:"source"`
	Target      string            `yaml:"target"`
	Description string            `yaml:"description,omitempty"`
	Properties  types.PropertyBag `yaml:"properties,omitempty"`
	Embedding   []float32         `yaml:"embedding,omitempty"`
}

// ParseGraphFixture decodes a YAML fixture.
func ParseGraphFixture(r io.Reader) (*GraphFixture, error) {
	var fx GraphFixture
	if err := yaml.NewDecoder(r).Decode(&fx); err != nil && err != io.EOF {
		return nil, fmt.Errorf("failed to decode graph fixture: %w", err)
	}
	return &fx, nil
}

// ReadGraphFixture decodes the YAML fixture stored at path.
func ReadGraphFixture(path string) (*GraphFixture, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open graph fixture: %w", err)
	}
	defer f.Close()
	return ParseGraphFixture(f)
}

// LoadGraph writes every fixture entity and then every relation to w.
func LoadGraph(ctx context.Context, w GraphWriter, fx *GraphFixture) error {
	for i := range fx.Entities {
		fe := &fx.Entities[i]
		e := fe.Entity.Clone()
		if fe.Timestamp != "" {
			e.Properties.Set(PropTimestamp, fe.Timestamp)
		}
		if err := e.Validate(); err != nil {
			return fmt.Errorf("entity %d: %w", i, err)
		}
		if err := w.UpsertEntity(ctx, e, fe.Embedding); err != nil {
			return fmt.Errorf("failed to load entity %s: %w", e.ID, err)
		}
	}
	for i, fr := range fx.Relations {
		r := &types.Relation{
			ID:          fr.ID,
			Name:        fr.Name,
			Source:      &types.Entity{ID: fr.Source},
			Target:      &types.Entity{ID: fr.Target},
			Direction:   types.DirectionForward,
			Description: fr.Description,
			Properties:  fr.Properties.Clone(),
		}
		if err := r.Validate(); err != nil {
			return fmt.Errorf("relation %d: %w", i, err)
		}
		if err := w.UpsertRelation(ctx, r, fr.Embedding); err != nil {
			return fmt.Errorf("failed to load relation %s: %w", r.ID, err)
		}
	}
	return nil
}

// embedEntity computes the vector of an entity from its rendered text.
func embedEntity(ctx context.Context, emb TextEmbedder, e *types.Entity) ([]float32, error) {
	vecs, err := emb.Embed(ctx, []string{types.EntityText(e, types.TextOptions{})})
	if err != nil {
		return nil, err
	}
	if len(vecs) == 0 {
		return nil, fmt.Errorf("embedder returned no vectors")
	}
	return vecs[0], nil
}
