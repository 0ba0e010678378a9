package types

import (
	"fmt"
	"strings"
	"time"
)

// Hop is the evidence accepted at one search depth.
type Hop struct {
	Depth     int              `json:"depth"`
	Relations []ScoredRelation `json:"relations"`
	Lines     []string         `json:"lines"`
}

// EvidenceBundle accumulates what a route has learned: its topic entities
// and, per hop, the accepted relations in rendered form.
type EvidenceBundle struct {
	TopicEntities []ScoredEntity `json:"topic_entities"`
	TopicLines    []string       `json:"topic_lines"`
	Hops          []Hop          `json:"hops"`
}

// NewEvidenceBundle creates a bundle seeded with the route's topic entities.
func NewEvidenceBundle(topics []ScoredEntity, now time.Time) *EvidenceBundle {
	b := &EvidenceBundle{TopicEntities: topics}
	for _, t := range topics {
		if t.Entity == nil {
			continue
		}
		b.TopicLines = append(b.TopicLines, EntityText(t.Entity, TextOptions{Now: now}))
	}
	return b
}

// AddHop appends the relations accepted at the next depth. An empty hop is
// still recorded so depth bookkeeping stays aligned.
func (b *EvidenceBundle) AddHop(relations []ScoredRelation, now time.Time) {
	hop := Hop{Depth: len(b.Hops) + 1, Relations: relations}
	for _, r := range relations {
		hop.Lines = append(hop.Lines, RelationText(r.Relation, TextOptions{Now: now}))
	}
	b.Hops = append(b.Hops, hop)
}

// Depth returns the number of recorded hops.
func (b *EvidenceBundle) Depth() int {
	return len(b.Hops)
}

// Lines returns all rendered relation lines across hops.
func (b *EvidenceBundle) Lines() []string {
	var lines []string
	for _, h := range b.Hops {
		lines = append(lines, h.Lines...)
	}
	return lines
}

// EntitiesText lists topic entities as "ent_i: ..." lines, or "None".
func (b *EvidenceBundle) EntitiesText() string {
	if len(b.TopicLines) == 0 {
		return "None"
	}
	lines := make([]string, len(b.TopicLines))
	for i, l := range b.TopicLines {
		lines[i] = fmt.Sprintf("ent_%d: %s", i, l)
	}
	return strings.Join(lines, "\n")
}

// TripletsText lists relation lines across hops as "rel_i: ..." with a
// running index, or "None".
func (b *EvidenceBundle) TripletsText() string {
	all := b.Lines()
	if len(all) == 0 {
		return "None"
	}
	lines := make([]string, len(all))
	for i, l := range all {
		lines[i] = fmt.Sprintf("rel_%d: %s", i, l)
	}
	return strings.Join(lines, "\n")
}

// Context renders the whole bundle as a reference block.
func (b *EvidenceBundle) Context() string {
	return "Knowledge Entities:\n" + b.EntitiesText() + "\nKnowledge Triplets:\n" + b.TripletsText()
}

// Strength returns the number of accepted relations and the sum of their scores.
func (b *EvidenceBundle) Strength() (int, float64) {
	var n int
	var total float64
	for _, h := range b.Hops {
		for _, r := range h.Relations {
			n++
			total += r.Score
		}
	}
	return n, total
}

// Entities returns every entity the route touched, keyed by id, with the
// score and step of its latest appearance.
func (b *EvidenceBundle) Entities() map[string]ScoredEntity {
	out := make(map[string]ScoredEntity)
	for _, t := range b.TopicEntities {
		if t.Entity != nil {
			out[t.Entity.ID] = t
		}
	}
	for _, h := range b.Hops {
		for _, r := range h.Relations {
			if r.Relation == nil || r.Relation.Target == nil {
				continue
			}
			out[r.Relation.Target.ID] = ScoredEntity{Entity: r.Relation.Target, Score: r.Score, Step: h.Depth}
		}
	}
	return out
}
