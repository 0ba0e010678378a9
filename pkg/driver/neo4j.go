package driver

import (
	"context"
	"fmt"
	"strings"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j/db"

	"github.com/soundprediction/kgroute/pkg/types"
)

const (
	// DefaultVectorIndex is the Neo4j vector index over entity embeddings.
	DefaultVectorIndex = "entityVector"
)

// Neo4jDriver implements GraphAccess and GraphWriter for Neo4j databases.
// Entities carry their type as a label plus the shared _Embeddable label.
// The APOC plugin is required.
type Neo4jDriver struct {
	client   neo4j.DriverWithContext
	database string

	// VectorIndex names the entity vector index.
	VectorIndex string
	// EmbeddingProperty names the vector property on nodes and relationships.
	EmbeddingProperty string
}

// NewNeo4jDriver creates a new Neo4j driver instance.
func NewNeo4jDriver(uri, username, password, database string) (*Neo4jDriver, error) {
	driver, err := neo4j.NewDriverWithContext(uri, neo4j.BasicAuth(username, password, ""))
	if err != nil {
		return nil, fmt.Errorf("failed to create neo4j driver: %w", err)
	}

	if database == "" {
		database = "neo4j"
	}

	return &Neo4jDriver{
		client:            driver,
		database:          database,
		VectorIndex:       DefaultVectorIndex,
		EmbeddingProperty: types.PropEmbedding,
	}, nil
}

func (n *Neo4jDriver) read(ctx context.Context, query string, params map[string]any) ([]*db.Record, error) {
	session := n.client.NewSession(ctx, neo4j.SessionConfig{DatabaseName: n.database})
	defer session.Close(ctx)

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, query, params)
		if err != nil {
			return nil, err
		}
		return res.Collect(ctx)
	})
	if err != nil {
		return nil, err
	}
	records, ok := AsRecordSlice(result)
	if !ok {
		return nil, NewTypeConversionError("[]*db.Record", fmt.Sprintf("%T", result), "")
	}
	return records, nil
}

func (n *Neo4jDriver) write(ctx context.Context, query string, params map[string]any) ([]*db.Record, error) {
	session := n.client.NewSession(ctx, neo4j.SessionConfig{DatabaseName: n.database})
	defer session.Close(ctx)

	result, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, query, params)
		if err != nil {
			return nil, err
		}
		return res.Collect(ctx)
	})
	if err != nil {
		return nil, err
	}
	records, _ := AsRecordSlice(result)
	return records, nil
}

// GetEntities implements GraphAccess.
func (n *Neo4jDriver) GetEntities(ctx context.Context, q EntityQuery) ([]types.ScoredEntity, error) {
	query, params := buildNeo4jEntityQuery(q, n.VectorIndex, n.EmbeddingProperty)
	records, err := n.read(ctx, query, params)
	if err != nil {
		return nil, fmt.Errorf("failed to query entities: %w", err)
	}

	out := make([]types.ScoredEntity, 0, len(records))
	for _, record := range records {
		e, err := entityFromRecord(record, "")
		if err != nil {
			return nil, err
		}
		score, _ := record.Get("score")
		s, _ := AsFloat64(score)
		out = append(out, types.ScoredEntity{Entity: e, Score: s})
	}
	return out, nil
}

// GetRelations implements GraphAccess.
func (n *Neo4jDriver) GetRelations(ctx context.Context, q RelationQuery) ([]types.ScoredRelation, error) {
	query, params := buildNeo4jRelationQuery(q, n.EmbeddingProperty)
	records, err := n.read(ctx, query, params)
	if err != nil {
		return nil, fmt.Errorf("failed to query relations: %w", err)
	}

	out := make([]types.ScoredRelation, 0, len(records))
	for _, record := range records {
		src, err := entityFromRecord(record, "src_")
		if err != nil {
			return nil, err
		}
		tgt, err := entityFromRecord(record, "tgt_")
		if err != nil {
			return nil, err
		}
		id, _ := record.Get("id")
		name, _ := record.Get("relation")
		rawProps, _ := record.Get("rel_properties")
		direction, _ := record.Get("direction")
		score, _ := record.Get("score")

		idStr, err := MustString(id, "id")
		if err != nil {
			return nil, err
		}
		nameStr, _ := AsString(name)
		props, _ := AsMap(rawProps)
		dir, _ := AsString(direction)
		s, _ := AsFloat64(score)

		rel := relationFromStored(idStr, nameStr, props)
		rel.Source, rel.Target = src, tgt
		rel.Direction = types.Direction(dir)
		out = append(out, types.ScoredRelation{Relation: rel, Score: s})
	}
	return out, nil
}

func entityFromRecord(record *db.Record, prefix string) (*types.Entity, error) {
	id, _ := record.Get(prefix + "id")
	labels, _ := record.Get(prefix + "labels")
	name, _ := record.Get(prefix + "name")
	rawProps, _ := record.Get(prefix + "properties")

	idStr, err := MustString(id, prefix+"id")
	if err != nil {
		return nil, err
	}
	labelList, _ := AsStringSlice(labels)
	nameStr, _ := AsString(name)
	props, err := MustMap(rawProps, prefix+"properties")
	if err != nil {
		return nil, err
	}
	return entityFromStored(idStr, LabelType(labelList), nameStr, props), nil
}

// GetEntityTypes implements GraphAccess.
func (n *Neo4jDriver) GetEntityTypes(ctx context.Context) ([]string, error) {
	records, err := n.read(ctx, "CALL db.labels() YIELD label WHERE NOT label STARTS WITH '_' RETURN label ORDER BY label", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to list entity types: %w", err)
	}
	out := make([]string, 0, len(records))
	for _, record := range records {
		v, _ := record.Get("label")
		if s, ok := AsString(v); ok {
			out = append(out, s)
		}
	}
	return out, nil
}

// UpsertEntity implements GraphWriter. The entity is matched on its id.
func (n *Neo4jDriver) UpsertEntity(ctx context.Context, e *types.Entity, embedding []float32) error {
	if err := e.Validate(); err != nil {
		return err
	}
	props, err := EncodeProperties(e.Properties)
	if err != nil {
		return err
	}
	for k, v := range storedFields(e.Description, e.Ref, e.CreatedAt, e.ModifiedAt) {
		props[k] = v
	}
	props["name"] = e.Name

	query := "MERGE (n:" + LabelEmbeddable + " {" + PropID + ": $id})\nSET n += $props"
	if e.Type != "" {
		query += ", n" + labelClause(e.Type)
	}
	params := map[string]any{"id": e.ID, "props": props}
	if len(embedding) > 0 {
		query += "\nWITH n CALL db.create.setNodeVectorProperty(n, $embedding_prop, $embedding)"
		params["embedding_prop"] = n.EmbeddingProperty
		params["embedding"] = embedding
	}
	if _, err := n.write(ctx, query, params); err != nil {
		return fmt.Errorf("failed to upsert entity %s: %w", e.ID, err)
	}
	return nil
}

// UpsertRelation implements GraphWriter.
func (n *Neo4jDriver) UpsertRelation(ctx context.Context, r *types.Relation, embedding []float32) error {
	if err := r.Validate(); err != nil {
		return err
	}
	if r.Name == "" {
		return types.ErrEmptyName
	}
	props, err := EncodeProperties(r.Properties)
	if err != nil {
		return err
	}
	for k, v := range storedFields(r.Description, r.Ref, r.CreatedAt, r.ModifiedAt) {
		props[k] = v
	}

	query := "MATCH (src:" + LabelEmbeddable + " {" + PropID + ": $source_id})\n" +
		"MATCH (tgt:" + LabelEmbeddable + " {" + PropID + ": $target_id})\n" +
		"MERGE (src)-[rel" + labelClause(r.Name) + " {" + PropID + ": $id}]->(tgt)\n" +
		"SET rel += $props"
	params := map[string]any{
		"id":        r.ID,
		"source_id": r.Source.ID,
		"target_id": r.Target.ID,
		"props":     props,
	}
	if len(embedding) > 0 {
		query += "\nWITH rel CALL db.create.setRelationshipVectorProperty(rel, $embedding_prop, $embedding)"
		params["embedding_prop"] = n.EmbeddingProperty
		params["embedding"] = embedding
	}
	query += "\nRETURN count(rel) AS created"

	records, err := n.write(ctx, query, params)
	if err != nil {
		return fmt.Errorf("failed to upsert relation %s: %w", r.ID, err)
	}
	if len(records) == 0 {
		return fmt.Errorf("%w: %s or %s", ErrEntityNotFound, r.Source.ID, r.Target.ID)
	}
	created, _ := records[0].Get("created")
	if c, _ := AsFloat64(created); c == 0 {
		return fmt.Errorf("%w: %s or %s", ErrEntityNotFound, r.Source.ID, r.Target.ID)
	}
	return nil
}

// CreateIndices creates the range indices and, when dimensions > 0, the
// entity vector index.
func (n *Neo4jDriver) CreateIndices(ctx context.Context, dimensions int) error {
	session := n.client.NewSession(ctx, neo4j.SessionConfig{DatabaseName: n.database})
	defer session.Close(ctx)

	indices := GetRangeIndices(GraphProviderNeo4j)
	if dimensions > 0 {
		indices = append(indices, GetVectorIndexQuery(n.VectorIndex, n.EmbeddingProperty, dimensions))
	}
	for _, indexQuery := range indices {
		_, err := session.Run(ctx, indexQuery, nil)
		if err != nil {
			if !strings.Contains(err.Error(), "already exists") && !strings.Contains(err.Error(), "An equivalent") {
				return err
			}
		}
	}
	return nil
}

// Provider implements GraphAccess.
func (n *Neo4jDriver) Provider() GraphProvider {
	return GraphProviderNeo4j
}

// Close closes the Neo4j driver.
func (n *Neo4jDriver) Close(ctx context.Context) error {
	return n.client.Close(ctx)
}

// VerifyConnectivity checks if the driver can connect to the database.
func (n *Neo4jDriver) VerifyConnectivity(ctx context.Context) error {
	return n.client.VerifyConnectivity(ctx)
}
