package nlp

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strings"

	"github.com/invopop/jsonschema"
)

// GenerateSchema creates a JSON Schema from the type of value. Pointers are
// dereferenced; definitions are inlined.
func GenerateSchema(value any) *jsonschema.Schema {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
	}

	t := reflect.TypeOf(value)
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}

	v := reflect.New(t).Interface()
	return reflector.Reflect(v)
}

// schemaJSON renders the schema argument of ChatWithStructuredOutput. nil
// yields nil; documents pass through; other values are reflected.
func schemaJSON(schema any) (json.RawMessage, error) {
	switch v := schema.(type) {
	case nil:
		return nil, nil
	case json.RawMessage:
		return v, nil
	case []byte:
		return json.RawMessage(v), nil
	case string:
		if !strings.HasPrefix(strings.TrimSpace(v), "{") {
			return nil, fmt.Errorf("schema string is not a JSON object")
		}
		return json.RawMessage(v), nil
	case *jsonschema.Schema:
		return json.Marshal(v)
	case map[string]any:
		return json.Marshal(v)
	default:
		return json.Marshal(GenerateSchema(v))
	}
}

// schemaName derives a response format name from a Go value's type.
func schemaName(schema any) string {
	if schema == nil {
		return "response"
	}
	t := reflect.TypeOf(schema)
	for t.Kind() == reflect.Pointer || t.Kind() == reflect.Slice {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct || t.Name() == "" {
		return "response"
	}
	return toSnake(t.Name())
}

func toSnake(s string) string {
	var sb strings.Builder
	for i, r := range s {
		if r >= 'A' && r <= 'Z' {
			if i > 0 {
				sb.WriteByte('_')
			}
			r += 'a' - 'A'
		}
		sb.WriteRune(r)
	}
	return sb.String()
}
