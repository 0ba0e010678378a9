package judge

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	jsonrepair "github.com/kaptinlin/jsonrepair"
)

// ErrMalformedOutput is returned when a model response cannot be decoded.
var ErrMalformedOutput = errors.New("malformed judge output")

var (
	thinkTags  = regexp.MustCompile(`(?s)<think>.*?</think>`)
	codeFences = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)```")
)

// RemoveThinkTags removes <think> tags and everything in between them.
func RemoveThinkTags(s string) string {
	return strings.TrimSpace(thinkTags.ReplaceAllString(s, ""))
}

// ExtractJSON returns the outermost JSON object or array in s, skipping
// reasoning blocks, code fences and surrounding prose. s is returned trimmed
// when no bracket is found.
func ExtractJSON(s string) string {
	s = RemoveThinkTags(s)
	if m := codeFences.FindStringSubmatch(s); m != nil {
		s = m[1]
	}
	s = strings.TrimSpace(s)

	start := strings.IndexAny(s, "{[")
	if start < 0 {
		return s
	}
	closer := byte('}')
	if s[start] == '[' {
		closer = ']'
	}
	end := strings.LastIndexByte(s, closer)
	if end < start {
		// truncated output; let the repair pass close it
		return s[start:]
	}
	return s[start : end+1]
}

// UnmarshalFlexible decodes model output into out. It tolerates reasoning
// blocks, prose around the JSON, double-encoded JSON strings and malformed
// JSON that jsonrepair can fix.
func UnmarshalFlexible(input string, out any) error {
	input = RemoveThinkTags(input)
	if strings.HasPrefix(input, `"`) {
		var asString string
		if err := json.Unmarshal([]byte(input), &asString); err == nil {
			input = asString
		}
	}
	input = ExtractJSON(input)
	if input == "" {
		return fmt.Errorf("%w: empty", ErrMalformedOutput)
	}

	if err := json.Unmarshal([]byte(input), out); err == nil {
		return nil
	}

	repaired, err := jsonrepair.JSONRepair(input)
	if err != nil {
		return fmt.Errorf("%w: json repair failed: %v", ErrMalformedOutput, err)
	}
	if err := json.Unmarshal([]byte(repaired), out); err != nil {
		return fmt.Errorf("%w: %v (repaired: %s)", ErrMalformedOutput, err, repaired)
	}
	return nil
}

// scoreMap decodes {"id": score} leniently: scores may be numbers or numeric
// strings, anything else is dropped.
type scoreMap map[string]float64

func (m *scoreMap) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	out := make(scoreMap, len(raw))
	for k, v := range raw {
		if f, ok := parseScore(v); ok {
			out[strings.TrimSpace(k)] = f
		}
	}
	*m = out
	return nil
}

func parseScore(v json.RawMessage) (float64, bool) {
	if string(v) == "null" {
		return 0, false
	}
	var f float64
	if err := json.Unmarshal(v, &f); err == nil {
		return f, true
	}
	var s string
	if err := json.Unmarshal(v, &s); err != nil {
		return 0, false
	}
	s = strings.TrimSpace(s)
	percent := strings.HasSuffix(s, "%")
	f, err := strconv.ParseFloat(strings.TrimSpace(strings.TrimSuffix(s, "%")), 64)
	if err != nil {
		return 0, false
	}
	if percent {
		f /= 100
	}
	return f, true
}

// yes interprets a "Yes"/"No" verdict field.
func yes(s string) bool {
	s = strings.ToLower(strings.Trim(strings.TrimSpace(s), `"'.`))
	return s == "yes" || s == "true" || s == "y"
}
