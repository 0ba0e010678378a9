package driver

import (
	"fmt"
	"strings"

	"github.com/soundprediction/kgroute/pkg/types"
)

// LabelEmbeddable is the label shared by every entity node so one vector
// index and one id index cover all entity types.
const LabelEmbeddable = "_Embeddable"

// defaultVectorK is the neighbour count used when a vector query has no TopK.
const defaultVectorK = 100

// LadybugSchemaQueries defines the Ladybug schema. Entity types are a column
// rather than a label because Ladybug tables are declared up front.
var LadybugSchemaQueries = []string{
	`CREATE NODE TABLE IF NOT EXISTS Entity (
        id STRING PRIMARY KEY,
        type STRING,
        name STRING,
        properties STRING,
        embedding FLOAT[]
    );`,
	`CREATE REL TABLE IF NOT EXISTS RELATES (
        FROM Entity TO Entity,
        id STRING,
        name STRING,
        properties STRING,
        embedding FLOAT[]
    );`,
}

// GetRangeIndices returns database-specific range index creation queries
func GetRangeIndices(provider GraphProvider) []string {
	switch provider {
	case GraphProviderNeo4j:
		return []string{
			"CREATE INDEX entity_id IF NOT EXISTS FOR (n:" + LabelEmbeddable + ") ON (n." + PropID + ")",
			"CREATE INDEX entity_name IF NOT EXISTS FOR (n:" + LabelEmbeddable + ") ON (n.name)",
			"CREATE INDEX entity_timestamp IF NOT EXISTS FOR (n:" + LabelEmbeddable + ") ON (n." + PropTimestamp + ")",
		}
	default:
		// ladybug indexes primary keys itself; memory keeps maps
		return []string{}
	}
}

// GetVectorIndexQuery returns the Neo4j statement creating the entity vector index.
func GetVectorIndexQuery(index, property string, dimensions int) string {
	return fmt.Sprintf("CREATE VECTOR INDEX %s IF NOT EXISTS FOR (n:%s) ON n.%s "+
		"OPTIONS {indexConfig: {`vector.dimensions`: %d, `vector.similarity_function`: 'cosine'}}",
		quoteIdent(index), LabelEmbeddable, quoteIdent(property), dimensions)
}

// quoteIdent backquotes a label, relationship type or property name.
func quoteIdent(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}

func labelClause(name string) string {
	if name == "" {
		return ""
	}
	return ":" + quoteIdent(name)
}

// buildNeo4jEntityQuery renders q as Cypher. Every row yields id, labels,
// name, properties and score.
func buildNeo4jEntityQuery(q EntityQuery, vectorIndex, embeddingProp string) (string, map[string]any) {
	params := map[string]any{"embedding_prop": embeddingProp}
	var sb strings.Builder
	var filters []string

	constrained := !q.Constraint.IsZero()
	if len(q.Embedding) > 0 {
		rawK := q.TopK
		if rawK <= 0 {
			rawK = defaultVectorK
		}
		if constrained || q.Type != "" || q.Name != "" {
			rawK *= 20
		}
		params["index"] = vectorIndex
		params["raw_k"] = rawK
		params["embedding"] = q.Embedding
		sb.WriteString("CALL db.index.vector.queryNodes($index, $raw_k, $embedding)\nYIELD node AS n, score\n")
		if q.Type != "" {
			filters = append(filters, "$type IN labels(n)")
			params["type"] = q.Type
		}
		if q.Name != "" && !q.Fuzzy {
			filters = append(filters, "n.name = $name")
			params["name"] = q.Name
		}
	} else {
		sb.WriteString("MATCH (n" + labelClause(q.Type) + ")\n")
		switch {
		case q.Name != "" && q.Fuzzy:
			params["name"] = q.Name
			sb.WriteString("WITH n, apoc.text.levenshteinSimilarity(toUpper(n.name), toUpper($name)) AS score\n")
		case q.Name != "":
			params["name"] = q.Name
			sb.WriteString("WHERE n.name = $name\nWITH n, 1.0 AS score\n")
		default:
			sb.WriteString("WITH n, 1.0 AS score\n")
		}
	}

	order := "ORDER BY score DESC"
	if constrained {
		ts := "datetime(replace(n." + PropTimestamp + ", ' ', 'T'))"
		filters = append(filters, "n."+PropTimestamp+" IS NOT NULL")
		if c := q.Constraint; c.Start != nil {
			params["start"] = c.Start.UTC().Format("2006-01-02T15:04:05Z")
			filters = append(filters, ts+" >= datetime($start)")
		}
		if c := q.Constraint; c.End != nil {
			params["end"] = c.End.UTC().Format("2006-01-02T15:04:05Z")
			filters = append(filters, ts+" < datetime($end)")
		}
		if q.Constraint.Around != nil {
			params["around"] = q.Constraint.Around.UTC().Format("2006-01-02T15:04:05Z")
			if len(filters) > 0 {
				sb.WriteString("WITH n, score WHERE " + strings.Join(filters, " AND ") + "\n")
				filters = nil
			}
			sb.WriteString("WITH n, score, abs(duration.inSeconds(datetime($around), " + ts + ").seconds) AS time_diff\n")
			order = "ORDER BY time_diff ASC, score DESC"
		}
	}
	if len(filters) > 0 {
		sb.WriteString("WITH n, score WHERE " + strings.Join(filters, " AND ") + "\n")
	}

	sb.WriteString("RETURN coalesce(n." + PropID + ", elementId(n)) AS id, labels(n) AS labels, n.name AS name,\n")
	sb.WriteString("    apoc.map.removeKey(properties(n), $embedding_prop) AS properties, score\n")
	sb.WriteString(order)
	if q.TopK > 0 {
		params["top_k"] = q.TopK
		sb.WriteString("\nLIMIT $top_k")
	}
	return sb.String(), params
}

// buildNeo4jRelationQuery renders q as Cypher matching both orientations.
func buildNeo4jRelationQuery(q RelationQuery, embeddingProp string) (string, map[string]any) {
	params := map[string]any{"embedding_prop": embeddingProp}
	var filters []string

	if q.Source != nil {
		if q.Source.ID != "" {
			filters = append(filters, "(src."+PropID+" = $source_id OR elementId(src) = $source_id)")
			params["source_id"] = q.Source.ID
		} else {
			filters = append(filters, "src.name = $source_name")
			params["source_name"] = q.Source.Name
		}
	}
	if q.Target != nil {
		if q.Target.ID != "" {
			filters = append(filters, "(tgt."+PropID+" = $target_id OR elementId(tgt) = $target_id)")
			params["target_id"] = q.Target.ID
		} else {
			filters = append(filters, "tgt.name = $target_name")
			params["target_name"] = q.Target.Name
		}
	}
	if len(q.Embedding) > 0 {
		filters = append(filters, "rel."+quoteIdent(embeddingProp)+" IS NOT NULL")
	}
	if len(q.TargetEmbedding) > 0 {
		filters = append(filters, "tgt."+quoteIdent(embeddingProp)+" IS NOT NULL")
	}
	where := ""
	if len(filters) > 0 {
		where = "WHERE " + strings.Join(filters, " AND ")
	}

	src, tgt, rel := labelClause(q.SourceType), labelClause(q.TargetType), labelClause(q.Relation)
	var sb strings.Builder
	sb.WriteString("CALL () {\n")
	sb.WriteString("    MATCH (src" + src + ")-[rel" + rel + "]->(tgt" + tgt + ")\n    " + where + "\n")
	sb.WriteString("    RETURN src, rel, tgt, 'forward' AS direction\n    UNION\n")
	sb.WriteString("    MATCH (src" + src + ")<-[rel" + rel + "]-(tgt" + tgt + ")\n    " + where + "\n")
	sb.WriteString("    RETURN src, rel, tgt, 'reverse' AS direction\n}\n")

	if q.UniqueByType {
		sb.WriteString("WITH [l IN labels(src) WHERE NOT l STARTS WITH '_'] AS src_type, type(rel) AS relation_type,\n")
		sb.WriteString("    [l IN labels(tgt) WHERE NOT l STARTS WITH '_'] AS tgt_type, direction,\n")
		sb.WriteString("    collect({src: src, rel: rel, tgt: tgt}) AS rel_set\n")
		sb.WriteString("WITH rel_set[0].src AS src, rel_set[0].rel AS rel, rel_set[0].tgt AS tgt, direction\n")
	}

	order := ""
	switch {
	case len(q.TargetEmbedding) > 0:
		params["tgt_embedding"] = q.TargetEmbedding
		sb.WriteString("WITH src, rel, tgt, direction, vector.similarity.cosine(tgt." + quoteIdent(embeddingProp) + ", $tgt_embedding) AS score\n")
		order = "ORDER BY score DESC\n"
	case len(q.Embedding) > 0:
		params["embedding"] = q.Embedding
		sb.WriteString("WITH src, rel, tgt, direction, vector.similarity.cosine(rel." + quoteIdent(embeddingProp) + ", $embedding) AS score\n")
		order = "ORDER BY score DESC\n"
	default:
		sb.WriteString("WITH src, rel, tgt, direction, 1.0 AS score\n")
	}

	sb.WriteString("RETURN DISTINCT\n")
	sb.WriteString("    coalesce(src." + PropID + ", elementId(src)) AS src_id, labels(src) AS src_labels, src.name AS src_name,\n")
	sb.WriteString("    apoc.map.removeKey(properties(src), $embedding_prop) AS src_properties,\n")
	sb.WriteString("    coalesce(tgt." + PropID + ", elementId(tgt)) AS tgt_id, labels(tgt) AS tgt_labels, tgt.name AS tgt_name,\n")
	sb.WriteString("    apoc.map.removeKey(properties(tgt), $embedding_prop) AS tgt_properties,\n")
	sb.WriteString("    coalesce(rel." + PropID + ", elementId(rel)) AS id, type(rel) AS relation,\n")
	sb.WriteString("    apoc.map.removeKey(properties(rel), $embedding_prop) AS rel_properties,\n")
	sb.WriteString("    direction, score\n")
	sb.WriteString(order)
	if q.TopK > 0 {
		params["top_k"] = q.TopK
		sb.WriteString("LIMIT $top_k\n")
	}
	return sb.String(), params
}

// buildLadybugEntityQuery narrows the Entity table; ranking happens in process.
func buildLadybugEntityQuery(q EntityQuery) (string, map[string]any) {
	params := map[string]any{}
	var filters []string
	if q.Type != "" {
		filters = append(filters, "n.type = $type")
		params["type"] = q.Type
	}
	if q.Name != "" && !q.Fuzzy {
		filters = append(filters, "lower(n.name) = lower($name)")
		params["name"] = q.Name
	}
	query := "MATCH (n:Entity)"
	if len(filters) > 0 {
		query += " WHERE " + strings.Join(filters, " AND ")
	}
	query += " RETURN n.id AS id, n.type AS type, n.name AS name, n.properties AS properties, n.embedding AS embedding"
	return query, params
}

// buildLadybugRelationQuery narrows stored edges touching the requested
// endpoints in either orientation; ranking happens in process.
func buildLadybugRelationQuery(q RelationQuery) (string, map[string]any) {
	params := map[string]any{}
	var filters []string
	endpoint := func(e *types.Entity, key string) {
		if e == nil {
			return
		}
		if e.ID != "" {
			filters = append(filters, "(a.id = $"+key+" OR b.id = $"+key+")")
			params[key] = e.ID
		} else {
			filters = append(filters, "(a.name = $"+key+" OR b.name = $"+key+")")
			params[key] = e.Name
		}
	}
	endpoint(q.Source, "source")
	endpoint(q.Target, "target")
	if q.Relation != "" {
		filters = append(filters, "r.name = $relation")
		params["relation"] = q.Relation
	}
	query := "MATCH (a:Entity)-[r:RELATES]->(b:Entity)"
	if len(filters) > 0 {
		query += " WHERE " + strings.Join(filters, " AND ")
	}
	query += " RETURN a.id AS src_id, a.type AS src_type, a.name AS src_name, a.properties AS src_properties, a.embedding AS src_embedding," +
		" b.id AS tgt_id, b.type AS tgt_type, b.name AS tgt_name, b.properties AS tgt_properties, b.embedding AS tgt_embedding," +
		" r.id AS id, r.name AS relation, r.properties AS rel_properties, r.embedding AS rel_embedding"
	return query, params
}
