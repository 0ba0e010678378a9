package driver

import (
	"strings"
	"testing"
	"time"

	"github.com/soundprediction/kgroute/pkg/types"
)

func TestGraphProvider(t *testing.T) {
	providers := []GraphProvider{
		GraphProviderNeo4j,
		GraphProviderLadybug,
		GraphProviderMemory,
	}

	for _, provider := range providers {
		t.Run(string(provider), func(t *testing.T) {
			if string(provider) == "" {
				t.Errorf("Provider %s should not be empty", provider)
			}
		})
	}
}

func TestGetRangeIndices(t *testing.T) {
	tests := []struct {
		provider GraphProvider
		expected int
	}{
		{GraphProviderNeo4j, 3},
		{GraphProviderLadybug, 0},
		{GraphProviderMemory, 0},
	}

	for _, tt := range tests {
		t.Run(string(tt.provider), func(t *testing.T) {
			indices := GetRangeIndices(tt.provider)
			if len(indices) != tt.expected {
				t.Errorf("GetRangeIndices(%s) returned %d indices, expected %d",
					tt.provider, len(indices), tt.expected)
			}
			for _, index := range indices {
				if !strings.Contains(index, "IF NOT EXISTS") {
					t.Errorf("index query should be idempotent: %s", index)
				}
			}
		})
	}
}

func TestGetVectorIndexQuery(t *testing.T) {
	q := GetVectorIndexQuery("entityVector", "_embedding", 768)
	for _, want := range []string{"`entityVector`", "(n:_Embeddable)", "n.`_embedding`", "`vector.dimensions`: 768", "'cosine'"} {
		if !strings.Contains(q, want) {
			t.Errorf("vector index query missing %q:\n%s", want, q)
		}
	}
}

func TestQuoteIdent(t *testing.T) {
	if got := quoteIdent("Movie"); got != "`Movie`" {
		t.Errorf("quoteIdent = %s", got)
	}
	if got := quoteIdent("a`b"); got != "`a``b`" {
		t.Errorf("quoteIdent must escape backquotes, got %s", got)
	}
	if got := labelClause(""); got != "" {
		t.Errorf("empty label should render nothing, got %q", got)
	}
}

func TestBuildNeo4jEntityQuery(t *testing.T) {
	t.Run("exact name", func(t *testing.T) {
		q, params := buildNeo4jEntityQuery(EntityQuery{Type: "Movie", Name: "Inception", TopK: 5}, "entityVector", "_embedding")
		assertContains(t, q, "MATCH (n:`Movie`)", "WHERE n.name = $name", "LIMIT $top_k", "ORDER BY score DESC")
		if params["name"] != "Inception" || params["top_k"] != 5 {
			t.Errorf("unexpected params: %v", params)
		}
	})

	t.Run("fuzzy", func(t *testing.T) {
		q, _ := buildNeo4jEntityQuery(EntityQuery{Name: "incepton", Fuzzy: true}, "entityVector", "_embedding")
		assertContains(t, q, "apoc.text.levenshteinSimilarity")
		if strings.Contains(q, "LIMIT") {
			t.Errorf("query without TopK must not be limited:\n%s", q)
		}
	})

	t.Run("vector with constraint", func(t *testing.T) {
		around := time.Date(2010, 7, 16, 0, 0, 0, 0, time.UTC)
		start := around.AddDate(-1, 0, 0)
		q, params := buildNeo4jEntityQuery(EntityQuery{
			Embedding:  []float32{1, 0},
			TopK:       3,
			Constraint: &TemporalConstraint{Around: &around, Start: &start},
		}, "entityVector", "_embedding")

		assertContains(t, q,
			"db.index.vector.queryNodes($index, $raw_k, $embedding)",
			"datetime(replace(n._timestamp, ' ', 'T')) >= datetime($start)",
			"duration.inSeconds(datetime($around)",
			"ORDER BY time_diff ASC, score DESC",
		)
		if params["raw_k"] != 60 {
			t.Errorf("raw_k = %v, want 60", params["raw_k"])
		}
		if params["around"] != "2010-07-16T00:00:00Z" {
			t.Errorf("around = %v", params["around"])
		}
	})
}

func TestBuildNeo4jRelationQuery(t *testing.T) {
	q, params := buildNeo4jRelationQuery(RelationQuery{
		Source:          &types.Entity{ID: "m1"},
		Relation:        "DIRECTED_BY",
		TargetType:      "Person",
		UniqueByType:    true,
		TargetEmbedding: []float32{0, 1},
		TopK:            10,
	}, "_embedding")

	assertContains(t, q,
		"MATCH (src)-[rel:`DIRECTED_BY`]->(tgt:`Person`)",
		"MATCH (src)<-[rel:`DIRECTED_BY`]-(tgt:`Person`)",
		"'forward' AS direction",
		"'reverse' AS direction",
		"UNION",
		"collect({src: src, rel: rel, tgt: tgt}) AS rel_set",
		"vector.similarity.cosine(tgt.`_embedding`, $tgt_embedding)",
		"tgt.`_embedding` IS NOT NULL",
		"LIMIT $top_k",
	)
	if params["source_id"] != "m1" {
		t.Errorf("source_id = %v", params["source_id"])
	}
}

func TestBuildLadybugQueries(t *testing.T) {
	q, params := buildLadybugEntityQuery(EntityQuery{Type: "Movie", Name: "Inception"})
	assertContains(t, q, "MATCH (n:Entity)", "n.type = $type", "lower(n.name) = lower($name)")
	if len(params) != 2 {
		t.Errorf("expected 2 params, got %v", params)
	}

	q, _ = buildLadybugEntityQuery(EntityQuery{Name: "Inception", Fuzzy: true})
	if strings.Contains(q, "$name") {
		t.Errorf("fuzzy queries are ranked in process:\n%s", q)
	}

	q, params = buildLadybugRelationQuery(RelationQuery{Source: &types.Entity{Name: "Inception"}, Relation: "WON"})
	assertContains(t, q, "(a.name = $source OR b.name = $source)", "r.name = $relation")
	if params["source"] != "Inception" {
		t.Errorf("source = %v", params["source"])
	}
}

func assertContains(t *testing.T, s string, parts ...string) {
	t.Helper()
	for _, p := range parts {
		if !strings.Contains(s, p) {
			t.Errorf("expected query to contain %q:\n%s", p, s)
		}
	}
}
