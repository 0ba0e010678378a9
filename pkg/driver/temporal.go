package driver

import (
	"strings"
	"time"

	"github.com/soundprediction/kgroute/pkg/types"
)

// PropTimestamp is the entity property holding its event time.
const PropTimestamp = "_timestamp"

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02",
	"2006-01",
	"2006",
}

// TemporalConstraint filters entities to [Start, End) and, when Around is
// set, orders them by distance to Around.
type TemporalConstraint struct {
	Around *time.Time `json:"around,omitempty"`
	Start  *time.Time `json:"start,omitempty"`
	End    *time.Time `json:"end,omitempty"`
}

// IsZero reports whether the constraint has no effect.
func (c *TemporalConstraint) IsZero() bool {
	return c == nil || (c.Around == nil && c.Start == nil && c.End == nil)
}

// Contains reports whether t lies inside [Start, End).
func (c *TemporalConstraint) Contains(t time.Time) bool {
	if c == nil {
		return true
	}
	if c.Start != nil && t.Before(*c.Start) {
		return false
	}
	if c.End != nil && !t.Before(*c.End) {
		return false
	}
	return true
}

// Distance returns |t - Around|, or 0 without Around.
func (c *TemporalConstraint) Distance(t time.Time) time.Duration {
	if c == nil || c.Around == nil {
		return 0
	}
	d := t.Sub(*c.Around)
	if d < 0 {
		return -d
	}
	return d
}

// ParseTimestamp parses the timestamp formats found in graph properties.
// A space between date and time is accepted in place of 'T'.
func ParseTimestamp(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	s = strings.Replace(s, " ", "T", 1)
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// EntityTimestamp returns the event time stored on an entity.
func EntityTimestamp(e *types.Entity) (time.Time, bool) {
	if e == nil {
		return time.Time{}, false
	}
	values, ok := e.Properties.Get(PropTimestamp)
	if !ok || len(values) == 0 {
		return time.Time{}, false
	}
	return ParseTimestamp(values[0].Value)
}
