package judge

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name, in, want string
	}{
		{"plain", `{"a": 1}`, `{"a": 1}`},
		{"prose", `Here you go: {"a": 1} hope it helps`, `{"a": 1}`},
		{"fence", "```json\n{\"a\": 1}\n```", `{"a": 1}`},
		{"think", "<think>{\"wrong\": true}</think>{\"a\": 1}", `{"a": 1}`},
		{"array", `topics: ["A", "B"]`, `["A", "B"]`},
		{"truncated", `answer {"a": [1, 2`, `{"a": [1, 2`},
		{"none", "  no json here ", "no json here"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractJSON(tt.in))
		})
	}
}

func TestUnmarshalFlexible(t *testing.T) {
	type verdict struct {
		Sufficient string `json:"sufficient"`
		Answer     string `json:"answer"`
	}

	t.Run("double encoded", func(t *testing.T) {
		var v verdict
		require.NoError(t, UnmarshalFlexible(`"{\"sufficient\": \"Yes\", \"answer\": \"Paris\"}"`, &v))
		assert.Equal(t, "Paris", v.Answer)
	})

	t.Run("repaired", func(t *testing.T) {
		var v verdict
		require.NoError(t, UnmarshalFlexible(`{'sufficient': 'Yes', 'answer': 'Paris',}`, &v))
		assert.Equal(t, "Yes", v.Sufficient)
		assert.Equal(t, "Paris", v.Answer)
	})

	t.Run("empty", func(t *testing.T) {
		var v verdict
		assert.ErrorIs(t, UnmarshalFlexible("<think>only thoughts</think>", &v), ErrMalformedOutput)
	})
}

func TestScoreMapLenient(t *testing.T) {
	var out struct {
		Scores scoreMap `json:"scores"`
	}
	require.NoError(t, UnmarshalFlexible(`{"scores": {"rel_0": 0.5, " rel_1 ": "30%", "rel_2": "high", "rel_3": null, "rel_4": "0.2"}}`, &out))
	assert.Equal(t, scoreMap{"rel_0": 0.5, "rel_1": 0.3, "rel_4": 0.2}, out.Scores)
}

func TestParseScorePercent(t *testing.T) {
	tests := []struct {
		in   string
		want float64
	}{
		{`"50%"`, 0.5},
		{`" 5 % "`, 0.05},
		{`"100%"`, 1},
		{`0.25`, 0.25},
	}
	for _, tt := range tests {
		got, ok := parseScore(json.RawMessage(tt.in))
		require.True(t, ok, tt.in)
		assert.InDelta(t, tt.want, got, 1e-9, tt.in)
	}

	_, ok := parseScore(json.RawMessage(`"%"`))
	assert.False(t, ok)
}

func TestYes(t *testing.T) {
	for _, s := range []string{"Yes", " yes.", `"YES"`, "true", "y"} {
		assert.True(t, yes(s), s)
	}
	for _, s := range []string{"No", "", "maybe", "yesterday"} {
		assert.False(t, yes(s), s)
	}
}
