package utils

import (
	"strings"

	"github.com/google/uuid"
)

// NewRunID returns a fresh identifier for one answer run.
func NewRunID() string {
	return uuid.NewString()
}

// DedupeStrings removes empty and repeated strings, comparing case-insensitively
// and keeping the first spelling.
func DedupeStrings(items []string) []string {
	seen := make(map[string]bool, len(items))
	out := make([]string, 0, len(items))
	for _, s := range items {
		s = strings.TrimSpace(s)
		key := strings.ToLower(s)
		if s == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, s)
	}
	return out
}
