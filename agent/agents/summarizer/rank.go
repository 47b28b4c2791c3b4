package summarizer

import (
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/blevesearch/bleve"

	contractx "github.com/yixiaowang2001/game-sage-agent/agent/contract"
)

type passageDoc struct {
	Title string `json:"title"`
	Text  string `json:"text"`
}

// rankPassages orders passages by BM25 relevance to query using a throwaway
// in-memory index. Passages without a hit keep their original relative order
// after the ranked ones. Any index error returns the input order.
func rankPassages(query string, passages []contractx.Passage) []contractx.Passage {
	if len(passages) < 2 || strings.TrimSpace(query) == "" {
		return passages
	}

	index, err := bleve.NewMemOnly(bleve.NewIndexMapping())
	if err != nil {
		return passages
	}
	defer index.Close()

	batch := index.NewBatch()
	for i, p := range passages {
		if err := batch.Index(strconv.Itoa(i), passageDoc{Title: p.Title, Text: p.Text}); err != nil {
			return passages
		}
	}
	if err := index.Batch(batch); err != nil {
		return passages
	}

	req := bleve.NewSearchRequestOptions(bleve.NewMatchQuery(query), len(passages), 0, false)
	res, err := index.Search(req)
	if err != nil {
		return passages
	}

	out := make([]contractx.Passage, 0, len(passages))
	used := make([]bool, len(passages))
	for _, hit := range res.Hits {
		i, err := strconv.Atoi(hit.ID)
		if err != nil || i < 0 || i >= len(passages) || used[i] {
			continue
		}
		used[i] = true
		out = append(out, passages[i])
	}
	for i, p := range passages {
		if !used[i] {
			out = append(out, p)
		}
	}
	return out
}

// packPassages keeps passages in order until budget characters are spent. The
// first passage is always kept, truncated if needed.
func packPassages(passages []contractx.Passage, budget int) []contractx.Passage {
	if budget <= 0 {
		return passages
	}
	out := make([]contractx.Passage, 0, len(passages))
	remaining := budget
	for _, p := range passages {
		size := utf8.RuneCountInString(p.Text)
		if size > remaining {
			if len(out) > 0 {
				break
			}
			p.Text = truncateRunes(p.Text, remaining)
			size = remaining
		}
		out = append(out, p)
		remaining -= size
		if remaining <= 0 {
			break
		}
	}
	return out
}

func truncateRunes(s string, limit int) string {
	if limit <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	return string([]rune(s)[:limit])
}
