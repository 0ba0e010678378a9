package types

import "time"

// Reserved property keys. They carry bookkeeping data and are never rendered
// as entity or relation properties.
const (
	PropName        = "name"
	PropDescription = "_description"
	PropCreated     = "_created_at"
	PropModified    = "_modified_at"
	PropReference   = "_ref"
	PropEmbedding   = "_embedding"
	PropExclusive   = "_exclusive"
)

var reservedKeys = map[string]bool{
	PropName:        true,
	PropDescription: true,
	PropCreated:     true,
	PropModified:    true,
	PropReference:   true,
	PropEmbedding:   true,
	PropExclusive:   true,
}

// IsReservedKey reports whether key is a bookkeeping property.
func IsReservedKey(key string) bool {
	return reservedKeys[key]
}

// Entity is a node of the knowledge graph.
type Entity struct {
	ID          string      `json:"id" yaml:"id"`
	Type        string      `json:"type" yaml:"type"`
	Name        string      `json:"name" yaml:"name"`
	Description string      `json:"description,omitempty" yaml:"description,omitempty"`
	CreatedAt   *time.Time  `json:"created_at,omitempty" yaml:"created_at,omitempty"`
	ModifiedAt  *time.Time  `json:"modified_at,omitempty" yaml:"modified_at,omitempty"`
	Properties  PropertyBag `json:"properties" yaml:"properties,omitempty"`
	Ref         string      `json:"ref,omitempty" yaml:"ref,omitempty"`
}

// Validate checks if the Entity has all required fields set.
func (e *Entity) Validate() error {
	if e.ID == "" {
		return ErrEmptyID
	}
	if e.Name == "" {
		return ErrEmptyName
	}
	return nil
}

// Equal compares entities by id.
func (e *Entity) Equal(other *Entity) bool {
	if e == nil || other == nil {
		return e == other
	}
	return e.ID == other.ID
}

// Clone returns a deep copy of the entity.
func (e *Entity) Clone() *Entity {
	if e == nil {
		return nil
	}
	c := *e
	c.Properties = e.Properties.Clone()
	return &c
}

// Direction tells whether a relation was matched along or against its stored orientation.
type Direction string

const (
	// DirectionForward means source -> target as stored.
	DirectionForward Direction = "forward"
	// DirectionReverse means the queried entity is the stored target.
	DirectionReverse Direction = "reverse"
)

// Relation is a directed edge of the knowledge graph, seen from the entity it was queried from.
type Relation struct {
	ID          string      `json:"id" yaml:"id"`
	Name        string      `json:"name" yaml:"name"`
	Source      *Entity     `json:"source" yaml:"-"`
	Target      *Entity     `json:"target" yaml:"-"`
	Direction   Direction   `json:"direction" yaml:"direction,omitempty"`
	Description string      `json:"description,omitempty" yaml:"description,omitempty"`
	CreatedAt   *time.Time  `json:"created_at,omitempty" yaml:"created_at,omitempty"`
	ModifiedAt  *time.Time  `json:"modified_at,omitempty" yaml:"modified_at,omitempty"`
	Properties  PropertyBag `json:"properties" yaml:"properties,omitempty"`
	Ref         string      `json:"ref,omitempty" yaml:"ref,omitempty"`
}

// Validate checks the relation endpoints and direction.
func (r *Relation) Validate() error {
	if r.ID == "" {
		return ErrEmptyID
	}
	if r.Source == nil || r.Target == nil {
		return ErrNilEndpoint
	}
	if r.Direction != DirectionForward && r.Direction != DirectionReverse {
		return ErrBadDirection
	}
	return nil
}

// TypeOnly returns a copy describing only the relation type: the target is
// reduced to its entity type and all properties are dropped.
func (r *Relation) TypeOnly() *Relation {
	c := *r
	c.Target = &Entity{Type: r.Target.Type}
	c.Properties = PropertyBag{}
	return &c
}

// ScoredEntity is an entity with the cumulative weight of the paths reaching it.
type ScoredEntity struct {
	Entity *Entity `json:"entity"`
	Score  float64 `json:"score"`
	Step   int     `json:"step"`
}

// ScoredRelation is a relation with a path-weighted relevance score.
type ScoredRelation struct {
	Relation *Relation `json:"relation"`
	Score    float64   `json:"score"`
	Step     int       `json:"step"`
}
