package driver

import (
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/agnivade/levenshtein"

	"github.com/soundprediction/kgroute/pkg/types"
	"github.com/soundprediction/kgroute/pkg/utils"
)

// NameSimilarity is 1 - editDistance/maxLen over case-folded names, matching
// the apoc.text.levenshteinSimilarity scale.
func NameSimilarity(a, b string) float64 {
	a, b = strings.ToUpper(a), strings.ToUpper(b)
	maxLen := utf8.RuneCountInString(a)
	if n := utf8.RuneCountInString(b); n > maxLen {
		maxLen = n
	}
	if maxLen == 0 {
		return 1
	}
	return 1 - float64(levenshtein.ComputeDistance(a, b))/float64(maxLen)
}

// entityRecord is an entity as held by the in-process rankers.
type entityRecord struct {
	entity    *types.Entity
	embedding []float32
	timestamp time.Time
	hasTime   bool
}

func newEntityRecord(e *types.Entity, embedding []float32) *entityRecord {
	rec := &entityRecord{entity: e, embedding: embedding}
	rec.timestamp, rec.hasTime = EntityTimestamp(e)
	return rec
}

// relationRecord is a stored edge, oriented as stored.
type relationRecord struct {
	relation  *types.Relation
	embedding []float32
	source    *entityRecord
	target    *entityRecord
}

type rankedEntity struct {
	types.ScoredEntity
	distance time.Duration
}

// rankEntities applies an EntityQuery to candidate records in memory.
func rankEntities(records []*entityRecord, q EntityQuery) []types.ScoredEntity {
	var ranked []rankedEntity
	constrained := !q.Constraint.IsZero()

	for _, rec := range records {
		e := rec.entity
		if q.Type != "" && e.Type != q.Type {
			continue
		}
		score := 1.0
		switch {
		case len(q.Embedding) > 0:
			if len(rec.embedding) == 0 {
				continue
			}
			if q.Name != "" && !q.Fuzzy && !strings.EqualFold(e.Name, q.Name) {
				continue
			}
			score = utils.CosineSimilarity(rec.embedding, q.Embedding)
		case q.Name != "" && q.Fuzzy:
			score = NameSimilarity(e.Name, q.Name)
		case q.Name != "":
			if !strings.EqualFold(e.Name, q.Name) {
				continue
			}
		}

		r := rankedEntity{ScoredEntity: types.ScoredEntity{Entity: e.Clone(), Score: score}}
		if constrained {
			if !rec.hasTime || !q.Constraint.Contains(rec.timestamp) {
				continue
			}
			r.distance = q.Constraint.Distance(rec.timestamp)
		}
		ranked = append(ranked, r)
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		if constrained && ranked[i].distance != ranked[j].distance {
			return ranked[i].distance < ranked[j].distance
		}
		return ranked[i].Score > ranked[j].Score
	})
	if q.TopK > 0 && len(ranked) > q.TopK {
		ranked = ranked[:q.TopK]
	}

	out := make([]types.ScoredEntity, len(ranked))
	for i, r := range ranked {
		out[i] = r.ScoredEntity
	}
	return out
}

// relationView is one orientation of a stored edge.
type relationView struct {
	record    *relationRecord
	source    *entityRecord
	target    *entityRecord
	direction types.Direction
}

func (v relationView) materialize(score float64) types.ScoredRelation {
	r := *v.record.relation
	r.Properties = r.Properties.Clone()
	r.Source = v.source.entity.Clone()
	r.Target = v.target.entity.Clone()
	r.Direction = v.direction
	return types.ScoredRelation{Relation: &r, Score: score}
}

func entityMatches(want *types.Entity, got *entityRecord) bool {
	if want == nil {
		return true
	}
	if want.ID != "" {
		return got.entity.ID == want.ID
	}
	return got.entity.Name == want.Name
}

// rankRelations applies a RelationQuery to stored edges, viewing each edge in
// both directions. Forward views precede reverse views for equal scores.
func rankRelations(records []relationRecord, q RelationQuery) []types.ScoredRelation {
	var views []relationView
	for dir := 0; dir < 2; dir++ {
		for i := range records {
			rec := &records[i]
			v := relationView{record: rec, source: rec.source, target: rec.target, direction: types.DirectionForward}
			if dir == 1 {
				v = relationView{record: rec, source: rec.target, target: rec.source, direction: types.DirectionReverse}
			}
			if !entityMatches(q.Source, v.source) || !entityMatches(q.Target, v.target) {
				continue
			}
			if q.Relation != "" && rec.relation.Name != q.Relation {
				continue
			}
			if q.SourceType != "" && v.source.entity.Type != q.SourceType {
				continue
			}
			if q.TargetType != "" && v.target.entity.Type != q.TargetType {
				continue
			}
			if len(q.Embedding) > 0 && len(rec.embedding) == 0 {
				continue
			}
			if len(q.TargetEmbedding) > 0 && len(v.target.embedding) == 0 {
				continue
			}
			views = append(views, v)
		}
	}

	if q.UniqueByType {
		seen := make(map[string]bool)
		unique := views[:0]
		for _, v := range views {
			key := v.source.entity.Type + "\x00" + v.record.relation.Name + "\x00" + v.target.entity.Type + "\x00" + string(v.direction)
			if seen[key] {
				continue
			}
			seen[key] = true
			unique = append(unique, v)
		}
		views = unique
	}

	scored := make([]utils.ScoredItem[relationView], len(views))
	for i, v := range views {
		score := 1.0
		switch {
		case len(q.TargetEmbedding) > 0:
			score = utils.CosineSimilarity(v.target.embedding, q.TargetEmbedding)
		case len(q.Embedding) > 0:
			score = utils.CosineSimilarity(v.record.embedding, q.Embedding)
		}
		scored[i] = utils.ScoredItem[relationView]{Item: v, Score: score}
	}
	top := utils.TopKByScore(scored, q.TopK)

	out := make([]types.ScoredRelation, len(top))
	for i, item := range top {
		out[i] = item.Item.materialize(item.Score)
	}
	return out
}

func entityTypes(records []*entityRecord) []string {
	seen := make(map[string]bool)
	var out []string
	for _, rec := range records {
		t := rec.entity.Type
		if t == "" || strings.HasPrefix(t, "_") || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}
