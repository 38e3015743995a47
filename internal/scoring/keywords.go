package scoring

import (
	"slices"
	"strings"
)

// defaultProjectKeywords maps a configured project type to the phrases that
// signal it in tender text.
var defaultProjectKeywords = map[string][]string{
	"mobile":         {"mobile app", "android", "ios", "smartphone", "mobile application"},
	"web":            {"website", "web application", "web portal", "online platform", "web development"},
	"software":       {"software", "application development", "erp", "system development", "it solution"},
	"tax collection": {"tax collection", "revenue collection", "property tax", "tax administration", "municipal tax"},
	"infrastructure": {"infrastructure", "construction", "civil work", "road", "building"},
	"hardware":       {"hardware", "computer", "server", "networking equipment", "laptop"},
	"consulting":     {"consulting", "consultancy", "advisory", "project management consultant", "pmc"},
}

// keywordSet merges the defaults with configured additions, lowercasing
// every key and phrase.
func keywordSet(extra map[string][]string) map[string][]string {
	out := make(map[string][]string, len(defaultProjectKeywords)+len(extra))
	add := func(kind string, words []string) {
		kind = strings.ToLower(strings.TrimSpace(kind))
		if kind == "" {
			return
		}
		for _, w := range words {
			w = strings.ToLower(strings.TrimSpace(w))
			if w == "" || slices.Contains(out[kind], w) {
				continue
			}
			out[kind] = append(out[kind], w)
		}
	}
	for kind, words := range defaultProjectKeywords {
		add(kind, words)
	}
	for kind, words := range extra {
		add(kind, words)
	}
	return out
}
