//go:build cgo

package driver

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	ladybug "github.com/LadybugDB/go-ladybug"

	"github.com/soundprediction/kgroute/pkg/types"
)

// LadybugDriver implements GraphAccess and GraphWriter over an embedded
// Ladybug database. Cypher narrows candidates; ranking runs in process.
type LadybugDriver struct {
	db     *ladybug.Database
	client *ladybug.Connection
	dbPath string
	// ladybug connections are not safe for concurrent use
	mu       sync.Mutex
	embedder TextEmbedder
	closed   bool
}

// NewLadybugDriver opens the database at dbPath with default settings.
func NewLadybugDriver(dbPath string) (*LadybugDriver, error) {
	config := DefaultLadybugDriverConfig()
	if dbPath != "" {
		config.DBPath = dbPath
	}
	return NewLadybugDriverWithConfig(config)
}

// NewLadybugDriverWithConfig opens a database and ensures the schema exists.
func NewLadybugDriverWithConfig(config *LadybugDriverConfig) (*LadybugDriver, error) {
	if config == nil {
		config = DefaultLadybugDriverConfig()
	}
	if config.DBPath == "" {
		config.DBPath = ":memory:"
	}
	if config.MaxNumThreads <= 0 {
		config.MaxNumThreads = 1
	}
	if config.BufferPoolSize == 0 {
		config.BufferPoolSize = 1024 * 1024 * 1024
	}
	if config.MaxDbSize == 0 {
		config.MaxDbSize = 1 << 43
	}

	// Build SystemConfig manually to avoid version mismatch issues with DefaultSystemConfig()
	systemConfig := ladybug.SystemConfig{
		BufferPoolSize:    config.BufferPoolSize,
		MaxNumThreads:     uint64(config.MaxNumThreads),
		EnableCompression: config.EnableCompression,
		ReadOnly:          config.ReadOnly,
		MaxDbSize:         config.MaxDbSize,
	}

	database, err := ladybug.OpenDatabase(config.DBPath, systemConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to open ladybug database: %w", err)
	}
	client, err := ladybug.OpenConnection(database)
	if err != nil {
		database.Close()
		return nil, fmt.Errorf("failed to open ladybug connection: %w", err)
	}

	d := &LadybugDriver{
		db:       database,
		client:   client,
		dbPath:   config.DBPath,
		embedder: config.Embedder,
	}
	if !config.ReadOnly {
		if err := d.setupSchema(); err != nil {
			d.Close(context.Background())
			return nil, err
		}
	}
	return d, nil
}

func (k *LadybugDriver) setupSchema() error {
	k.mu.Lock()
	defer k.mu.Unlock()
	for _, q := range LadybugSchemaQueries {
		res, err := k.client.Query(q)
		if err != nil {
			return fmt.Errorf("failed to create ladybug schema: %w", err)
		}
		res.Close()
	}
	return nil
}

// query runs a statement and returns each row keyed by column name.
func (k *LadybugDriver) query(ctx context.Context, cypherQuery string, params map[string]any) ([]map[string]any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.closed {
		return nil, ErrClosed
	}

	var results *ladybug.QueryResult
	if len(params) > 0 {
		stmt, err := k.client.Prepare(cypherQuery)
		if err != nil {
			slog.Error("Error preparing ladybug query", "error", err, "query", cypherQuery)
			return nil, err
		}
		results, err = k.client.Execute(stmt, params)
		if err != nil {
			slog.Error("Error executing ladybug query", "error", err, "query", cypherQuery)
			return nil, err
		}
	} else {
		var err error
		results, err = k.client.Query(cypherQuery)
		if err != nil {
			slog.Error("Error executing ladybug query", "error", err, "query", cypherQuery)
			return nil, err
		}
	}
	defer results.Close()

	columnNames := results.GetColumnNames()
	var rows []map[string]any
	for results.HasNext() {
		row, err := results.Next()
		if err != nil {
			return nil, err
		}
		values, err := row.GetAsSlice()
		if err != nil {
			return nil, err
		}
		rowDict := make(map[string]any, len(values))
		for i, value := range values {
			if i < len(columnNames) {
				rowDict[columnNames[i]] = value
			}
		}
		rows = append(rows, rowDict)
	}
	return rows, nil
}

// GetEntities implements GraphAccess.
func (k *LadybugDriver) GetEntities(ctx context.Context, q EntityQuery) ([]types.ScoredEntity, error) {
	query, params := buildLadybugEntityQuery(q)
	rows, err := k.query(ctx, query, params)
	if err != nil {
		return nil, fmt.Errorf("failed to query entities: %w", err)
	}
	records := make([]*entityRecord, 0, len(rows))
	for _, row := range rows {
		rec, err := entityRecordFromRow(row, "")
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return rankEntities(records, q), nil
}

// GetRelations implements GraphAccess.
func (k *LadybugDriver) GetRelations(ctx context.Context, q RelationQuery) ([]types.ScoredRelation, error) {
	query, params := buildLadybugRelationQuery(q)
	rows, err := k.query(ctx, query, params)
	if err != nil {
		return nil, fmt.Errorf("failed to query relations: %w", err)
	}

	// one record per entity id so both views share endpoints
	entities := make(map[string]*entityRecord)
	endpoint := func(row map[string]any, prefix string) (*entityRecord, error) {
		id, _ := AsString(row[prefix+"id"])
		if rec, ok := entities[id]; ok {
			return rec, nil
		}
		rec, err := entityRecordFromRow(row, prefix)
		if err != nil {
			return nil, err
		}
		entities[id] = rec
		return rec, nil
	}

	records := make([]relationRecord, 0, len(rows))
	for _, row := range rows {
		src, err := endpoint(row, "src_")
		if err != nil {
			return nil, err
		}
		tgt, err := endpoint(row, "tgt_")
		if err != nil {
			return nil, err
		}
		id, err := MustString(row["id"], "id")
		if err != nil {
			return nil, err
		}
		name, _ := AsString(row["relation"])
		props, err := decodePropertyColumn(row["rel_properties"])
		if err != nil {
			return nil, err
		}
		records = append(records, relationRecord{
			relation:  relationFromStored(id, name, props),
			embedding: toFloat32Slice(row["rel_embedding"]),
			source:    src,
			target:    tgt,
		})
	}
	return rankRelations(records, q), nil
}

func entityRecordFromRow(row map[string]any, prefix string) (*entityRecord, error) {
	id, err := MustString(row[prefix+"id"], prefix+"id")
	if err != nil {
		return nil, err
	}
	entityType, _ := AsString(row[prefix+"type"])
	name, _ := AsString(row[prefix+"name"])
	props, err := decodePropertyColumn(row[prefix+"properties"])
	if err != nil {
		return nil, err
	}
	return newEntityRecord(entityFromStored(id, entityType, name, props), toFloat32Slice(row[prefix+"embedding"])), nil
}

func decodePropertyColumn(v any) (map[string]any, error) {
	s, _ := AsString(v)
	if strings.TrimSpace(s) == "" {
		return map[string]any{}, nil
	}
	var props map[string]any
	if err := json.Unmarshal([]byte(s), &props); err != nil {
		return nil, fmt.Errorf("failed to decode stored properties: %w", err)
	}
	return props, nil
}

func toFloat32Slice(data any) []float32 {
	switch v := data.(type) {
	case []float32:
		return v
	case []float64:
		out := make([]float32, len(v))
		for i, f := range v {
			out[i] = float32(f)
		}
		return out
	case []any:
		if len(v) == 0 {
			return nil
		}
		out := make([]float32, len(v))
		for i, item := range v {
			f, _ := AsFloat64(item)
			out[i] = float32(f)
		}
		return out
	default:
		return nil
	}
}

func toFloat64Slice(v []float32) []float64 {
	out := make([]float64, len(v))
	for i, f := range v {
		out[i] = float64(f)
	}
	return out
}

// GetEntityTypes implements GraphAccess.
func (k *LadybugDriver) GetEntityTypes(ctx context.Context) ([]string, error) {
	rows, err := k.query(ctx, "MATCH (n:Entity) RETURN DISTINCT n.type AS type ORDER BY type", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to list entity types: %w", err)
	}
	out := make([]string, 0, len(rows))
	for _, row := range rows {
		if t, ok := AsString(row["type"]); ok && t != "" && !strings.HasPrefix(t, "_") {
			out = append(out, t)
		}
	}
	return out, nil
}

// UpsertEntity implements GraphWriter.
func (k *LadybugDriver) UpsertEntity(ctx context.Context, e *types.Entity, embedding []float32) error {
	if err := e.Validate(); err != nil {
		return err
	}
	if embedding == nil && k.embedder != nil {
		var err error
		if embedding, err = embedEntity(ctx, k.embedder, e); err != nil {
			return fmt.Errorf("failed to embed entity %s: %w", e.ID, err)
		}
	}
	props, err := storedPropertyColumn(e.Properties, storedFields(e.Description, e.Ref, e.CreatedAt, e.ModifiedAt))
	if err != nil {
		return err
	}

	params := map[string]any{"id": e.ID, "type": e.Type, "name": e.Name, "properties": props}
	embeddingValue := "CAST([] AS FLOAT[])"
	if len(embedding) > 0 {
		embeddingValue = "$embedding"
		params["embedding"] = toFloat64Slice(embedding)
	}
	query := "MERGE (n:Entity {id: $id}) SET n.type = $type, n.name = $name, n.properties = $properties, n.embedding = " + embeddingValue
	if _, err := k.query(ctx, query, params); err != nil {
		return fmt.Errorf("failed to upsert entity %s: %w", e.ID, err)
	}
	return nil
}

// UpsertRelation implements GraphWriter.
func (k *LadybugDriver) UpsertRelation(ctx context.Context, r *types.Relation, embedding []float32) error {
	if err := r.Validate(); err != nil {
		return err
	}
	props, err := storedPropertyColumn(r.Properties, storedFields(r.Description, r.Ref, r.CreatedAt, r.ModifiedAt))
	if err != nil {
		return err
	}

	params := map[string]any{
		"id":         r.ID,
		"name":       r.Name,
		"source_id":  r.Source.ID,
		"target_id":  r.Target.ID,
		"properties": props,
	}
	embeddingValue := "CAST([] AS FLOAT[])"
	if len(embedding) > 0 {
		embeddingValue = "$embedding"
		params["embedding"] = toFloat64Slice(embedding)
	}
	query := "MATCH (a:Entity {id: $source_id}), (b:Entity {id: $target_id}) " +
		"MERGE (a)-[r:RELATES {id: $id}]->(b) " +
		"SET r.name = $name, r.properties = $properties, r.embedding = " + embeddingValue + " " +
		"RETURN count(r) AS created"
	rows, err := k.query(ctx, query, params)
	if err != nil {
		return fmt.Errorf("failed to upsert relation %s: %w", r.ID, err)
	}
	if len(rows) == 0 {
		return fmt.Errorf("%w: %s or %s", ErrEntityNotFound, r.Source.ID, r.Target.ID)
	}
	if c, _ := AsFloat64(rows[0]["created"]); c == 0 {
		return fmt.Errorf("%w: %s or %s", ErrEntityNotFound, r.Source.ID, r.Target.ID)
	}
	return nil
}

func storedPropertyColumn(bag types.PropertyBag, fields map[string]any) (string, error) {
	props, err := EncodeProperties(bag)
	if err != nil {
		return "", err
	}
	for k, v := range fields {
		props[k] = v
	}
	data, err := json.Marshal(props)
	if err != nil {
		return "", fmt.Errorf("failed to encode properties: %w", err)
	}
	return string(data), nil
}

// Provider implements GraphAccess.
func (k *LadybugDriver) Provider() GraphProvider {
	return GraphProviderLadybug
}

// Close closes the connection and the database.
func (k *LadybugDriver) Close(context.Context) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.closed {
		return nil
	}
	k.closed = true
	if k.client != nil {
		k.client.Close()
	}
	if k.db != nil {
		k.db.Close()
	}
	return nil
}
