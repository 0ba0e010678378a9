package driver

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j/db"

	"github.com/soundprediction/kgroute/pkg/types"
)

// PropID stores the caller-assigned entity or relation id in graph stores
// that generate their own element ids.
const PropID = "_id"

// TypeConversionError represents an error during type conversion from database types.
type TypeConversionError struct {
	Expected string
	Actual   string
	Field    string
}

func (e *TypeConversionError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("type conversion error for field %q: expected %s, got %s", e.Field, e.Expected, e.Actual)
	}
	return fmt.Sprintf("type conversion error: expected %s, got %s", e.Expected, e.Actual)
}

// NewTypeConversionError creates a new TypeConversionError.
func NewTypeConversionError(expected, actual, field string) *TypeConversionError {
	return &TypeConversionError{
		Expected: expected,
		Actual:   actual,
		Field:    field,
	}
}

// AsRecordSlice safely converts an interface{} to []*db.Record.
func AsRecordSlice(v any) ([]*db.Record, bool) {
	if v == nil {
		return nil, false
	}
	records, ok := v.([]*db.Record)
	return records, ok
}

// AsString safely converts an interface{} to string.
func AsString(v any) (string, bool) {
	s, ok := v.(string)
	return s, ok
}

// AsFloat64 converts any numeric database value to float64.
func AsFloat64(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int64:
		return float64(n), true
	case int:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

// AsStringSlice converts []string or a []any of strings.
func AsStringSlice(v any) ([]string, bool) {
	switch s := v.(type) {
	case []string:
		return s, true
	case []any:
		out := make([]string, 0, len(s))
		for _, item := range s {
			str, ok := item.(string)
			if !ok {
				return nil, false
			}
			out = append(out, str)
		}
		return out, true
	default:
		return nil, false
	}
}

// AsMap safely converts an interface{} to map[string]any.
func AsMap(v any) (map[string]any, bool) {
	m, ok := v.(map[string]any)
	return m, ok
}

// AsTime converts a driver datetime or a timestamp string.
func AsTime(v any) (*time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return &t, true
	case string:
		parsed, ok := ParseTimestamp(t)
		if !ok {
			return nil, false
		}
		return &parsed, true
	default:
		return nil, false
	}
}

// MustString converts an interface{} to string or returns an error.
func MustString(v any, field string) (string, error) {
	s, ok := AsString(v)
	if !ok {
		return "", NewTypeConversionError("string", fmt.Sprintf("%T", v), field)
	}
	return s, nil
}

// MustMap converts an interface{} to map[string]any or returns an error.
func MustMap(v any, field string) (map[string]any, error) {
	m, ok := AsMap(v)
	if !ok {
		return nil, NewTypeConversionError("map[string]any", fmt.Sprintf("%T", v), field)
	}
	return m, nil
}

// LabelType returns the first label that does not start with "_".
func LabelType(labels []string) string {
	for _, l := range labels {
		if !strings.HasPrefix(l, "_") {
			return l
		}
	}
	return ""
}

// DecodeProperties converts stored node or edge properties into a bag.
// Reserved keys are skipped. A value holding a JSON object of
// value -> {count, context, last_seen} keeps every observation; anything
// else is one observation of its string form.
func DecodeProperties(props map[string]any) types.PropertyBag {
	keys := make([]string, 0, len(props))
	for k := range props {
		if types.IsReservedKey(k) || k == PropID {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var bag types.PropertyBag
	for _, k := range keys {
		key := types.NormalizeKey(k)
		switch v := props[k].(type) {
		case nil:
		case string:
			if observed, ok := decodeObservations(v); ok {
				for _, pv := range observed {
					bag.Observe(key, pv)
				}
				continue
			}
			bag.Set(key, v)
		case time.Time:
			bag.Set(key, v.Format(time.RFC3339))
		default:
			bag.Set(key, fmt.Sprint(v))
		}
	}
	return bag
}

func decodeObservations(s string) ([]types.PropertyValue, bool) {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "{") {
		return nil, false
	}
	var byValue map[string]types.PropertyValue
	if err := json.Unmarshal([]byte(s), &byValue); err != nil {
		return nil, false
	}
	values := make([]string, 0, len(byValue))
	for v := range byValue {
		values = append(values, v)
	}
	sort.Strings(values)
	out := make([]types.PropertyValue, 0, len(values))
	for _, v := range values {
		pv := byValue[v]
		pv.Value = v
		out = append(out, pv)
	}
	return out, true
}

// EncodeProperties flattens a bag for storage. Keys with a single plain
// observation are stored as that value; others as a JSON object keyed by value.
func EncodeProperties(bag types.PropertyBag) (map[string]any, error) {
	out := make(map[string]any, bag.Len())
	for _, p := range bag.Properties() {
		if len(p.Values) == 1 && p.Values[0].Count <= 1 && p.Values[0].Context == "" && p.Values[0].LastSeen.IsZero() {
			out[p.Key] = p.Values[0].Value
			continue
		}
		byValue := make(map[string]types.PropertyValue, len(p.Values))
		for _, v := range p.Values {
			val := v.Value
			v.Value = ""
			byValue[val] = v
		}
		data, err := json.Marshal(byValue)
		if err != nil {
			return nil, fmt.Errorf("failed to encode property %q: %w", p.Key, err)
		}
		out[p.Key] = string(data)
	}
	return out, nil
}

// entityFromStored builds an entity from an id, its labels or type, its name
// and the raw stored properties.
func entityFromStored(id, entityType, name string, props map[string]any) *types.Entity {
	e := &types.Entity{
		ID:         id,
		Type:       entityType,
		Name:       name,
		Properties: DecodeProperties(props),
	}
	if s, ok := AsString(props[types.PropDescription]); ok {
		e.Description = s
	}
	if t, ok := AsTime(props[types.PropCreated]); ok {
		e.CreatedAt = t
	}
	if t, ok := AsTime(props[types.PropModified]); ok {
		e.ModifiedAt = t
	}
	if s, ok := AsString(props[types.PropReference]); ok {
		e.Ref = s
	}
	return e
}

// relationFromStored fills the bookkeeping fields of a relation from raw properties.
func relationFromStored(id, name string, props map[string]any) *types.Relation {
	r := &types.Relation{
		ID:         id,
		Name:       name,
		Properties: DecodeProperties(props),
	}
	if s, ok := AsString(props[types.PropDescription]); ok {
		r.Description = s
	}
	if t, ok := AsTime(props[types.PropCreated]); ok {
		r.CreatedAt = t
	}
	if t, ok := AsTime(props[types.PropModified]); ok {
		r.ModifiedAt = t
	}
	if s, ok := AsString(props[types.PropReference]); ok {
		r.Ref = s
	}
	return r
}

// storedFields returns the bookkeeping properties written next to the
// user properties of an entity or relation.
func storedFields(description, ref string, created, modified *time.Time) map[string]any {
	out := map[string]any{}
	if description != "" {
		out[types.PropDescription] = description
	}
	if ref != "" {
		out[types.PropReference] = ref
	}
	now := time.Now().UTC()
	if created == nil {
		created = &now
	}
	if modified == nil {
		modified = &now
	}
	out[types.PropCreated] = created.UTC().Format(time.RFC3339)
	out[types.PropModified] = modified.UTC().Format(time.RFC3339)
	return out
}
