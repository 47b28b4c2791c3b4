package websearch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/net/html"
)

const (
	defaultDuckDuckGoEndpoint = "https://lite.duckduckgo.com/lite/"
	ddgUserAgent              = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	maxDuckDuckGoBodyBytes    = 2 << 20
)

// ddgRateLimit is shared by every DuckDuckGo instance: 1 query per second.
var ddgRateLimit struct {
	mu   sync.Mutex
	last time.Time
}

type DuckDuckGoConfig struct {
	Endpoint string        `split_words:"true" default:"https://lite.duckduckgo.com/lite/"`
	Timeout  time.Duration `split_words:"true" default:"15s"`
}

// DuckDuckGo scrapes the lite HTML interface; it needs no API key.
type DuckDuckGo struct {
	endpoint   string
	httpClient *http.Client
	minGap     time.Duration
}

var _ Searcher = (*DuckDuckGo)(nil)

func NewDuckDuckGo(cfg DuckDuckGoConfig, httpClient *http.Client) *DuckDuckGo {
	endpoint := strings.TrimSpace(cfg.Endpoint)
	if endpoint == "" {
		endpoint = defaultDuckDuckGoEndpoint
	}
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 15 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	return &DuckDuckGo{endpoint: endpoint, httpClient: httpClient, minGap: time.Second}
}

func (d *DuckDuckGo) Search(ctx context.Context, query string, count int) ([]SearchResult, error) {
	if strings.TrimSpace(query) == "" {
		return nil, errors.New("query is empty")
	}
	if count <= 0 {
		count = 5
	}

	if err := d.throttle(ctx); err != nil {
		return nil, err
	}

	formData := url.Values{}
	formData.Set("q", query)

	var resp *http.Response
	delay := time.Second
	for {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.endpoint, strings.NewReader(formData.Encode()))
		if err != nil {
			return nil, err
		}
		req.Header.Set("User-Agent", ddgUserAgent)
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

		resp, err = d.httpClient.Do(req)
		if err != nil {
			return nil, fmt.Errorf("request duckduckgo: %w", err)
		}
		if resp.StatusCode != http.StatusTooManyRequests {
			break
		}
		resp.Body.Close()

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
		if delay < 30*time.Second {
			delay *= 2
		}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("duckduckgo http %d", resp.StatusCode)
	}

	results, err := parseLiteResults(io.LimitReader(resp.Body, maxDuckDuckGoBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("parse duckduckgo response: %w", err)
	}
	return dedupeByURL(results, count), nil
}

func (d *DuckDuckGo) throttle(ctx context.Context) error {
	ddgRateLimit.mu.Lock()
	wait := time.Until(ddgRateLimit.last.Add(d.minGap))
	if wait < 0 {
		wait = 0
	}
	ddgRateLimit.last = time.Now().Add(wait)
	ddgRateLimit.mu.Unlock()

	if wait == 0 {
		return nil
	}
	select {
	case <-time.After(wait):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// parseLiteResults reads result-link anchors in document order; each
// result-snippet cell belongs to the link before it.
func parseLiteResults(r io.Reader) ([]SearchResult, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return nil, err
	}

	var results []SearchResult
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch {
			case n.Data == "a" && hasClass(n, "result-link"):
				results = append(results, SearchResult{
					URL:   resolveDuckDuckGoLink(strings.TrimSpace(attr(n, "href"))),
					Title: nodeText(n),
				})
				return
			case n.Data == "td" && hasClass(n, "result-snippet"):
				if last := len(results) - 1; last >= 0 && results[last].Snippet == "" {
					results[last].Snippet = nodeText(n)
				}
				return
			}
		}
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			walk(child)
		}
	}
	walk(doc)

	out := results[:0]
	for _, res := range results {
		if res.URL == "" || res.Title == "" {
			continue
		}
		out = append(out, res)
	}
	return out, nil
}

// resolveDuckDuckGoLink unwraps //duckduckgo.com/l/?uddg=<target> redirects.
func resolveDuckDuckGoLink(raw string) string {
	if strings.HasPrefix(raw, "//") {
		raw = "https:" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	if strings.HasSuffix(u.Host, "duckduckgo.com") {
		if target := u.Query().Get("uddg"); target != "" {
			return target
		}
		return ""
	}
	return u.String()
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func hasClass(n *html.Node, class string) bool {
	for _, c := range strings.Fields(attr(n, "class")) {
		if c == class {
			return true
		}
	}
	return false
}

func nodeText(n *html.Node) string {
	var b strings.Builder
	var collect func(*html.Node)
	collect = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
			return
		}
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			collect(child)
		}
	}
	collect(n)
	return strings.Join(strings.Fields(b.String()), " ")
}
