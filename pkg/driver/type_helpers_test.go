package driver

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soundprediction/kgroute/pkg/types"
)

func TestTypeConversionError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		err      *TypeConversionError
		expected string
	}{
		{
			name: "with field",
			err: &TypeConversionError{
				Expected: "string",
				Actual:   "int64",
				Field:    "src_id",
			},
			expected: `type conversion error for field "src_id": expected string, got int64`,
		},
		{
			name: "without field",
			err: &TypeConversionError{
				Expected: "map[string]any",
				Actual:   "nil",
			},
			expected: "type conversion error: expected map[string]any, got nil",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := tt.err.Error(); got != tt.expected {
				t.Errorf("Error() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestAsString(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		input  any
		want   string
		wantOK bool
	}{
		{"valid string", "hello", "hello", true},
		{"empty string", "", "", true},
		{"nil", nil, "", false},
		{"int", 42, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, ok := AsString(tt.input)
			if ok != tt.wantOK || got != tt.want {
				t.Errorf("AsString(%v) = (%q, %v), want (%q, %v)", tt.input, got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestAsFloat64(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input  any
		want   float64
		wantOK bool
	}{
		{0.5, 0.5, true},
		{float32(0.25), 0.25, true},
		{int64(3), 3, true},
		{json.Number("1.5"), 1.5, true},
		{"1.5", 0, false},
		{nil, 0, false},
	}

	for _, tt := range tests {
		got, ok := AsFloat64(tt.input)
		if ok != tt.wantOK || got != tt.want {
			t.Errorf("AsFloat64(%#v) = (%v, %v), want (%v, %v)", tt.input, got, ok, tt.want, tt.wantOK)
		}
	}
}

func TestAsStringSlice(t *testing.T) {
	got, ok := AsStringSlice([]any{"Movie", "_Embeddable"})
	require.True(t, ok)
	assert.Equal(t, []string{"Movie", "_Embeddable"}, got)

	_, ok = AsStringSlice([]any{"Movie", 1})
	assert.False(t, ok)
}

func TestMustMap(t *testing.T) {
	_, err := MustMap("not a map", "properties")
	var convErr *TypeConversionError
	require.ErrorAs(t, err, &convErr)
	assert.Equal(t, "properties", convErr.Field)
}

func TestLabelType(t *testing.T) {
	assert.Equal(t, "Movie", LabelType([]string{"_Embeddable", "Movie"}))
	assert.Equal(t, "", LabelType([]string{"_Embeddable"}))
	assert.Equal(t, "", LabelType(nil))
}

func TestDecodeProperties(t *testing.T) {
	props := map[string]any{
		"name":         "Inception",
		"_description": "a film",
		"_id":          "m1",
		"Genre":        `{"sci-fi": {"count": 3, "context": "poster"}, "thriller": {"count": 1}}`,
		"runtime":      int64(148),
		"released":     time.Date(2010, 7, 16, 0, 0, 0, 0, time.UTC),
		"rating":       nil,
	}

	bag := DecodeProperties(props)
	assert.Equal(t, 3, bag.Len())

	genre, ok := bag.Get("genre")
	require.True(t, ok)
	require.Len(t, genre, 2)
	assert.Equal(t, "sci-fi", genre[0].Value)
	assert.Equal(t, 3, genre[0].Count)
	assert.Equal(t, "poster", genre[0].Context)

	runtime, _ := bag.Get("runtime")
	assert.Equal(t, "148", runtime[0].Value)

	released, _ := bag.Get("released")
	assert.Equal(t, "2010-07-16T00:00:00Z", released[0].Value)

	_, ok = bag.Get("name")
	assert.False(t, ok)
}

func TestEncodePropertiesRoundTrip(t *testing.T) {
	var bag types.PropertyBag
	bag.Set("runtime", "148")
	bag.Observe("genre", types.PropertyValue{Value: "sci-fi", Count: 3})
	bag.Observe("genre", types.PropertyValue{Value: "thriller", Count: 1})

	encoded, err := EncodeProperties(bag)
	require.NoError(t, err)
	assert.Equal(t, "148", encoded["runtime"])
	assert.IsType(t, "", encoded["genre"])

	decoded := DecodeProperties(encoded)
	genre, ok := decoded.Get("genre")
	require.True(t, ok)
	require.Len(t, genre, 2)
	assert.Equal(t, 3, genre[0].Count)
	assert.Equal(t, "thriller", genre[1].Value)
}

func TestEntityFromStored(t *testing.T) {
	e := entityFromStored("m1", "Movie", "Inception", map[string]any{
		types.PropDescription: "a film",
		types.PropCreated:     "2024-01-02T03:04:05Z",
		types.PropReference:   "wiki",
		"genre":               "sci-fi",
	})
	assert.Equal(t, "a film", e.Description)
	assert.Equal(t, "wiki", e.Ref)
	require.NotNil(t, e.CreatedAt)
	assert.Equal(t, 2024, e.CreatedAt.Year())
	assert.Equal(t, 1, e.Properties.Len())
}

func TestNameSimilarity(t *testing.T) {
	assert.Equal(t, 1.0, NameSimilarity("Inception", "INCEPTION"))
	assert.InDelta(t, 1-2.0/9, NameSimilarity("Inception", "Inceptoin"), 1e-9)
	assert.Equal(t, 1.0, NameSimilarity("", ""))
	assert.Equal(t, 0.0, NameSimilarity("abc", ""))
}

func TestTemporalConstraint(t *testing.T) {
	start := time.Date(2010, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2011, 1, 1, 0, 0, 0, 0, time.UTC)
	c := &TemporalConstraint{Start: &start, End: &end}

	assert.True(t, c.Contains(start))
	assert.False(t, c.Contains(end))
	assert.True(t, (*TemporalConstraint)(nil).IsZero())
	assert.Equal(t, time.Duration(0), c.Distance(start))

	around := start.Add(48 * time.Hour)
	c.Around = &around
	assert.Equal(t, 48*time.Hour, c.Distance(start))

	ts, ok := ParseTimestamp("2010-07-16 10:30:00")
	require.True(t, ok)
	assert.Equal(t, 10, ts.Hour())
	_, ok = ParseTimestamp("yesterday")
	assert.False(t, ok)
}
