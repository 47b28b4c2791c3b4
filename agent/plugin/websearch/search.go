// Package websearch implements plugins backed by general web search engines,
// optionally scoped to one site and enriched with readable page text.
package websearch

import (
	"context"
	"strings"
)

type SearchResult struct {
	URL     string
	Title   string
	Snippet string
}

type Searcher interface {
	Search(ctx context.Context, query string, count int) ([]SearchResult, error)
}

func trimToWordLimit(input string, maxWords int) string {
	if maxWords <= 0 {
		return ""
	}
	words := strings.Fields(strings.TrimSpace(input))
	if len(words) <= maxWords {
		return strings.Join(words, " ")
	}
	return strings.Join(words[:maxWords], " ")
}

func dedupeByURL(in []SearchResult, count int) []SearchResult {
	out := make([]SearchResult, 0, len(in))
	seen := make(map[string]struct{}, len(in))
	for _, r := range in {
		u := strings.TrimSpace(r.URL)
		if u == "" {
			continue
		}
		if _, ok := seen[u]; ok {
			continue
		}
		seen[u] = struct{}{}
		r.URL = u
		if strings.TrimSpace(r.Title) == "" {
			r.Title = u
		}
		out = append(out, r)
		if count > 0 && len(out) >= count {
			break
		}
	}
	return out
}
