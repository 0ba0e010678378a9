package types

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"gopkg.in/yaml.v3"
)

// PropertyValue is one observed value of a property.
type PropertyValue struct {
	Value    string    `json:"value" yaml:"value"`
	Count    int       `json:"count" yaml:"count"`
	Context  string    `json:"context,omitempty" yaml:"context,omitempty"`
	LastSeen time.Time `json:"last_seen,omitempty" yaml:"last_seen,omitempty"`
}

// Property is a key with all of its observed values, in insertion order.
type Property struct {
	Key    string
	Values []PropertyValue
}

// PropertyBag is an insertion-ordered map of property key to observed values.
// The zero value is an empty bag ready to use.
type PropertyBag struct {
	props []Property
	index map[string]int
}

// NewPropertyBag creates a bag from single-valued key/value pairs.
func NewPropertyBag(kv ...string) PropertyBag {
	var b PropertyBag
	for i := 0; i+1 < len(kv); i += 2 {
		b.Set(kv[i], kv[i+1])
	}
	return b
}

// Len returns the number of keys.
func (b *PropertyBag) Len() int {
	return len(b.props)
}

// Set replaces key with a single value observed once.
func (b *PropertyBag) Set(key, value string) {
	b.put(key, []PropertyValue{{Value: value, Count: 1}})
}

// Observe records one more observation of value under key. Repeated values
// increase the count and refresh context and last-seen time.
func (b *PropertyBag) Observe(key string, v PropertyValue) {
	if v.Count <= 0 {
		v.Count = 1
	}
	if i, ok := b.index[key]; ok {
		values := b.props[i].Values
		for j := range values {
			if values[j].Value == v.Value {
				values[j].Count += v.Count
				if v.Context != "" {
					values[j].Context = v.Context
				}
				if v.LastSeen.After(values[j].LastSeen) {
					values[j].LastSeen = v.LastSeen
				}
				return
			}
		}
		b.props[i].Values = append(values, v)
		return
	}
	b.put(key, []PropertyValue{v})
}

func (b *PropertyBag) put(key string, values []PropertyValue) {
	if b.index == nil {
		b.index = make(map[string]int)
	}
	if i, ok := b.index[key]; ok {
		b.props[i].Values = values
		return
	}
	b.index[key] = len(b.props)
	b.props = append(b.props, Property{Key: key, Values: values})
}

// Get returns the values recorded for key.
func (b *PropertyBag) Get(key string) ([]PropertyValue, bool) {
	i, ok := b.index[key]
	if !ok {
		return nil, false
	}
	return b.props[i].Values, true
}

// Properties returns the properties in insertion order.
func (b *PropertyBag) Properties() []Property {
	return b.props
}

// Clone returns a deep copy.
func (b PropertyBag) Clone() PropertyBag {
	var c PropertyBag
	for _, p := range b.props {
		c.put(p.Key, append([]PropertyValue(nil), p.Values...))
	}
	return c
}

// MarshalJSON renders the bag as an object preserving key order. Single
// observations collapse to their plain value.
func (b PropertyBag) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, p := range b.props {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(p.Key)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')

		var val []byte
		if len(p.Values) == 1 && p.Values[0].Count <= 1 && p.Values[0].Context == "" {
			val, err = json.Marshal(p.Values[0].Value)
		} else {
			val, err = json.Marshal(p.Values)
		}
		if err != nil {
			return nil, err
		}
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON accepts plain values, lists of PropertyValue, or
// value -> PropertyValue objects per key. Key order is preserved.
func (b *PropertyBag) UnmarshalJSON(data []byte) error {
	*b = PropertyBag{}
	if string(bytes.TrimSpace(data)) == "null" {
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("properties must be a JSON object")
	}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		key, _ := tok.(string)
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return fmt.Errorf("property %q: %w", key, err)
		}
		if err := b.decodeJSONValue(key, raw); err != nil {
			return err
		}
	}
	return nil
}

func (b *PropertyBag) decodeJSONValue(key string, raw json.RawMessage) error {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return nil
	}
	switch trimmed[0] {
	case '[':
		var values []PropertyValue
		if err := json.Unmarshal(trimmed, &values); err != nil {
			return fmt.Errorf("property %q: %w", key, err)
		}
		for _, pv := range values {
			b.Observe(key, pv)
		}
	case '{':
		var byValue map[string]PropertyValue
		if err := json.Unmarshal(trimmed, &byValue); err != nil {
			return fmt.Errorf("property %q: %w", key, err)
		}
		names := make([]string, 0, len(byValue))
		for name := range byValue {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			pv := byValue[name]
			pv.Value = name
			b.Observe(key, pv)
		}
	case 'n':
		// null values are skipped
	default:
		dec := json.NewDecoder(bytes.NewReader(trimmed))
		dec.UseNumber()
		var v interface{}
		if err := dec.Decode(&v); err != nil {
			return fmt.Errorf("property %q: %w", key, err)
		}
		b.Set(key, fmt.Sprint(v))
	}
	return nil
}

// UnmarshalYAML decodes a mapping whose values are either scalars or a
// value -> {count, context, last_seen} mapping, or a list of PropertyValue.
func (b *PropertyBag) UnmarshalYAML(value *yaml.Node) error {
	*b = PropertyBag{}
	if value.Kind == yaml.ScalarNode && value.Tag == "!!null" {
		return nil
	}
	if value.Kind != yaml.MappingNode {
		return fmt.Errorf("properties must be a mapping, got node kind %d", value.Kind)
	}
	for i := 0; i+1 < len(value.Content); i += 2 {
		key := value.Content[i].Value
		v := value.Content[i+1]
		switch v.Kind {
		case yaml.ScalarNode:
			b.Set(key, v.Value)
		case yaml.SequenceNode:
			var values []PropertyValue
			if err := v.Decode(&values); err != nil {
				return fmt.Errorf("property %q: %w", key, err)
			}
			for _, pv := range values {
				b.Observe(key, pv)
			}
		case yaml.MappingNode:
			for j := 0; j+1 < len(v.Content); j += 2 {
				var pv PropertyValue
				if err := v.Content[j+1].Decode(&pv); err != nil {
					return fmt.Errorf("property %q value %q: %w", key, v.Content[j].Value, err)
				}
				pv.Value = v.Content[j].Value
				b.Observe(key, pv)
			}
		default:
			return fmt.Errorf("property %q has unsupported node kind %d", key, v.Kind)
		}
	}
	return nil
}
