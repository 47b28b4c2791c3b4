package websearch

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc/pool"
	contractx "github.com/yixiaowang2001/game-sage-agent/agent/contract"
	logx "github.com/yixiaowang2001/game-sage-agent/pkg/logger"
)

const (
	ProviderBrave      = "brave"
	ProviderDuckDuckGo = "duckduckgo"
)

// PageReader fetches the readable text of a page.
type PageReader interface {
	Read(ctx context.Context, rawURL string) (Page, error)
}

type PluginConfig struct {
	// Site restricts results to one domain, e.g. "nga.178.com".
	Site       string
	MaxResults int
	// ReadPages is how many of the top results get their full text fetched.
	ReadPages int
	Timeout   time.Duration
}

// SearchPlugin turns web search results into passages.
type SearchPlugin struct {
	name     string
	searcher Searcher
	reader   PageReader
	cfg      PluginConfig
	logger   zerolog.Logger
}

var _ contractx.Plugin = (*SearchPlugin)(nil)

func NewSearchPlugin(name string, searcher Searcher, reader PageReader, cfg PluginConfig) *SearchPlugin {
	if cfg.MaxResults <= 0 {
		cfg.MaxResults = 5
	}
	if reader == nil {
		cfg.ReadPages = 0
	}
	if cfg.ReadPages > cfg.MaxResults {
		cfg.ReadPages = cfg.MaxResults
	}
	cfg.Site = strings.TrimSpace(cfg.Site)
	return &SearchPlugin{
		name:     name,
		searcher: searcher,
		reader:   reader,
		cfg:      cfg,
		logger:   logx.Component("plugin." + name).With().Str("site", cfg.Site).Logger(),
	}
}

func (p *SearchPlugin) Name() string { return p.name }

func (p *SearchPlugin) Site() string { return p.cfg.Site }

func (p *SearchPlugin) Retrieve(ctx context.Context, subQuery string) contractx.RetrievalResult {
	started := time.Now()
	result := contractx.RetrievalResult{Provider: p.name, SubQuery: subQuery}

	if p.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.cfg.Timeout)
		defer cancel()
	}

	query := strings.TrimSpace(subQuery)
	if p.cfg.Site != "" {
		query = fmt.Sprintf("%s site:%s", query, p.cfg.Site)
	}

	hits, err := p.searcher.Search(ctx, query, p.cfg.MaxResults)
	result.Elapsed = time.Since(started)
	if err != nil {
		result.Status = contractx.StatusFailed
		result.Error = fmt.Sprintf("search: %v", err)
		return result
	}
	if len(hits) == 0 {
		result.Status = contractx.StatusEmpty
		return result
	}

	passages := make([]contractx.Passage, len(hits))
	for i, hit := range hits {
		passages[i] = contractx.Passage{
			Ref:   hit.URL,
			Title: hit.Title,
			URL:   hit.URL,
			Text:  strings.TrimSpace(hit.Title + "\n" + hit.Snippet),
		}
	}
	p.enrich(ctx, passages)

	result.Passages = passages
	result.Status = contractx.StatusOK
	result.Elapsed = time.Since(started)
	return result
}

// enrich replaces the snippet of the top ReadPages results with the page's
// article text. Failures keep the snippet.
func (p *SearchPlugin) enrich(ctx context.Context, passages []contractx.Passage) {
	n := min(p.cfg.ReadPages, len(passages))
	if n <= 0 {
		return
	}
	workers := pool.New().WithMaxGoroutines(n)
	for i := 0; i < n; i++ {
		i := i
		workers.Go(func() {
			page, err := p.reader.Read(ctx, passages[i].URL)
			if err != nil {
				p.logger.Debug().Err(err).Str("url", passages[i].URL).Msg("page read failed, keeping snippet")
				return
			}
			if strings.TrimSpace(page.Text) == "" {
				return
			}
			title := passages[i].Title
			if page.Title != "" {
				title = page.Title
			}
			passages[i].Title = title
			passages[i].Text = strings.TrimSpace(title + "\n" + page.Text)
		})
	}
	workers.Wait()
}
