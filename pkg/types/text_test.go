package types

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

func movie() *Entity {
	return &Entity{
		ID:          "m1",
		Type:        "Movie",
		Name:        "INCEPTION",
		Description: "2010 film",
		Properties:  NewPropertyBag("year", "2010"),
	}
}

func TestEntityText(t *testing.T) {
	assert.Equal(t, `(Movie: INCEPTION, desc: "2010 film", props: {year: 2010})`,
		EntityText(movie(), TextOptions{Now: fixedNow}))
	assert.Equal(t, `(Movie: INCEPTION (ID: m1))`,
		EntityText(movie(), TextOptions{Now: fixedNow, IncludeID: true, OmitDescription: true, OmitProperties: true}))
	assert.Equal(t, "", EntityText(nil, TextOptions{}))
}

func TestEntityTextSkipsReservedKeys(t *testing.T) {
	e := &Entity{Type: "Person", Name: "ADA", Properties: NewPropertyBag(PropEmbedding, "[0.1]", PropReference, "{}", "born", "1815")}
	assert.Equal(t, `(Person: ADA, props: {born: 1815})`, EntityText(e, TextOptions{Now: fixedNow}))
}

func TestPropertyConfidence(t *testing.T) {
	var bag PropertyBag
	bag.Observe("status", PropertyValue{Value: "active", Count: 7, Context: "c", LastSeen: fixedNow})
	bag.Observe("status", PropertyValue{Value: "retired", Count: 3, LastSeen: fixedNow})
	e := &Entity{Type: "Team", Name: "X", Properties: bag}

	assert.Equal(t, `(Team: X, props: {status: [active (70%, ctx:c), retired (30%)]})`,
		EntityText(e, TextOptions{Now: fixedNow}))
}

func TestPropertyConfidenceDecays(t *testing.T) {
	var bag PropertyBag
	bag.Observe("coach", PropertyValue{Value: "OLD", LastSeen: fixedNow.Add(-100 * 24 * time.Hour)})
	bag.Observe("coach", PropertyValue{Value: "NEW", LastSeen: fixedNow})
	e := &Entity{Type: "Team", Name: "X", Properties: bag}

	// exp(-1) / (1 + exp(-1)) rounds to 27%
	assert.Equal(t, `(Team: X, props: {coach: [NEW (73%), OLD (27%)]})`,
		EntityText(e, TextOptions{Now: fixedNow}))
}

func TestPropertyWithoutWeightIsSkipped(t *testing.T) {
	var bag PropertyBag
	bag.put("ghost", []PropertyValue{{Value: "x", Count: 0}})
	e := &Entity{Type: "T", Name: "N", Properties: bag}
	assert.Equal(t, `(T: N)`, EntityText(e, TextOptions{Now: fixedNow}))
}

func TestRelationText(t *testing.T) {
	person := &Entity{ID: "p1", Type: "Person", Name: "CHRISTOPHER NOLAN", Description: "director"}
	forward := &Relation{ID: "r1", Name: "DIRECTED_BY", Source: movie(), Target: person, Direction: DirectionForward}

	assert.Equal(t,
		`(Movie: INCEPTION)-[DIRECTED_BY]->(Person: CHRISTOPHER NOLAN, desc: "director")`,
		RelationText(forward, TextOptions{Now: fixedNow, OmitSourceDetails: true}))

	reverse := &Relation{
		ID: "r2", Name: "DIRECTED_BY", Source: person, Target: movie(), Direction: DirectionReverse,
		Description: "credited", Properties: NewPropertyBag("year", "2010"),
	}
	assert.Equal(t,
		`(Person: CHRISTOPHER NOLAN)<-[DIRECTED_BY, desc: "credited", props: {year: 2010}]-(Movie: INCEPTION)`,
		RelationText(reverse, TextOptions{Now: fixedNow, OmitSourceDetails: true, OmitTargetDetails: true}))

	typed := forward.TypeOnly()
	assert.Equal(t, `(Movie: INCEPTION)-[DIRECTED_BY]->(Person: )`,
		RelationText(typed, TextOptions{Now: fixedNow, OmitDescription: true, OmitSourceDetails: true}))
}

func TestEvidenceBundleContext(t *testing.T) {
	m := movie()
	b := NewEvidenceBundle([]ScoredEntity{{Entity: m, Score: 1}}, fixedNow)
	assert.Equal(t, "Knowledge Entities:\nent_0: "+EntityText(m, TextOptions{Now: fixedNow})+"\nKnowledge Triplets:\nNone", b.Context())

	person := &Entity{ID: "p1", Type: "Person", Name: "NOLAN"}
	studio := &Entity{ID: "s1", Type: "Studio", Name: "WARNER"}
	b.AddHop([]ScoredRelation{{Relation: &Relation{ID: "r1", Name: "DIRECTED_BY", Source: m, Target: person, Direction: DirectionForward}, Score: 0.6}}, fixedNow)
	b.AddHop([]ScoredRelation{{Relation: &Relation{ID: "r2", Name: "DISTRIBUTED_BY", Source: m, Target: studio, Direction: DirectionForward}, Score: 0.4}}, fixedNow)

	require.Equal(t, 2, b.Depth())
	triplets := b.TripletsText()
	assert.True(t, strings.HasPrefix(triplets, "rel_0: "))
	assert.Contains(t, triplets, "\nrel_1: ")
	assert.Contains(t, triplets, "[DISTRIBUTED_BY]->(Studio: WARNER)")

	n, total := b.Strength()
	assert.Equal(t, 2, n)
	assert.InDelta(t, 1.0, total, 1e-9)

	entities := b.Entities()
	assert.Len(t, entities, 3)
	assert.Equal(t, 2, entities["s1"].Step)
}

func TestNormalizers(t *testing.T) {
	assert.Equal(t, "BEYONCE KNOWLES", NormalizeEntityName("  Beyoncé   Knowles! "))
	assert.Equal(t, "AT&T INC.", NormalizeEntityName("AT&T Inc."))
	assert.Equal(t, "東京 TOWER", NormalizeEntityName("東京 tower"))

	assert.Equal(t, "DIRECTED_BY", NormalizeRelationName("directed by"))
	assert.Equal(t, "WORKS_FOR", NormalizeRelationName("-works for-"))

	assert.Equal(t, "Sports_Team", NormalizeEntityType("sports team"))
	assert.Equal(t, "Movie", NormalizeEntityType("_movie_"))

	assert.Equal(t, "birth_date", NormalizeKey("Birth Date"))

	assert.Equal(t, "(Movie)-[DIRECTED_BY]->(Person)", RelationSchemaText("movie", "directed by", "person"))
}
