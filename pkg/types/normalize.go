package types

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

const nameAllowed = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789:.'-_,& "

func identAllowed(r rune) bool {
	return r == '_' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')
}

// normalizeString strips accents, replaces disallowed ASCII with spaces,
// collapses whitespace runs into delim and trims cutset from both ends.
func normalizeString(text, delim, cutset string, allowed func(rune) bool) string {
	var sb strings.Builder
	for _, r := range norm.NFKD.String(text) {
		if unicode.Is(unicode.Mn, r) {
			continue
		}
		if allowed(r) || r > unicode.MaxASCII {
			sb.WriteRune(r)
		} else {
			sb.WriteRune(' ')
		}
	}
	out := strings.Join(strings.Fields(sb.String()), delim)
	if cutset != "" {
		out = strings.Trim(out, cutset)
	}
	return out
}

// NormalizeEntityName uppercases a name, keeping common name punctuation.
func NormalizeEntityName(name string) string {
	s := normalizeString(name, " ", "", func(r rune) bool {
		return strings.ContainsRune(nameAllowed, r)
	})
	return strings.ToUpper(s)
}

// NormalizeRelationName converts a relation name to UPPER_SNAKE form.
func NormalizeRelationName(name string) string {
	return strings.ToUpper(normalizeString(name, "_", "_", identAllowed))
}

// NormalizeEntityType converts an entity type to Title_Snake form.
func NormalizeEntityType(name string) string {
	return titleCase(normalizeString(name, "_", "_", identAllowed))
}

// NormalizeKey converts a property key to lower_snake form.
func NormalizeKey(key string) string {
	return strings.ToLower(normalizeString(key, "_", "", identAllowed))
}

// titleCase uppercases each letter that follows a non-letter and lowercases the rest.
func titleCase(s string) string {
	var sb strings.Builder
	prevLetter := false
	for _, r := range s {
		if unicode.IsLetter(r) {
			if prevLetter {
				sb.WriteRune(unicode.ToLower(r))
			} else {
				sb.WriteRune(unicode.ToUpper(r))
			}
			prevLetter = true
			continue
		}
		sb.WriteRune(r)
		prevLetter = false
	}
	return sb.String()
}

// RelationSchemaText renders a (source type, relation, target type) schema triple.
func RelationSchemaText(sourceType, relation, targetType string) string {
	return "(" + NormalizeEntityType(sourceType) + ")-[" + NormalizeRelationName(relation) + "]->(" + NormalizeEntityType(targetType) + ")"
}
