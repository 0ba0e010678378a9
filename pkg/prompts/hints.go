package prompts

import "strings"

// DefaultDomain is used when the context names no domain.
const DefaultDomain = "open"

// domainHints are appended to judging prompts for known domains.
var domainHints = map[string]string{
	"movie": `1. The movie award is usually announced one year after the movie's release. References may use different conventions to represent the year.
When comparing award-holding and winning years, always use the year in which the event occurred (the actual award-holding year).`,
	"sports": "",
	"open":   "",
	"yearly": "You only need to provide answer up to the granularity of year.",
}

// Hints returns the hints for domain, or "None".
func Hints(domain string) string {
	if h := domainHints[strings.ToLower(domain)]; h != "" {
		return h
	}
	return "None"
}

func domainOf(context map[string]interface{}) string {
	if d := str(context, KeyDomain); d != "" {
		return d
	}
	return DefaultDomain
}

// fill substitutes {key} placeholders.
func fill(template string, values map[string]string) string {
	pairs := make([]string, 0, 2*len(values))
	for k, v := range values {
		pairs = append(pairs, "{"+k+"}", v)
	}
	return strings.NewReplacer(pairs...).Replace(template)
}
