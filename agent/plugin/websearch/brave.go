package websearch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"
)

const (
	maxErrorBodyBytes = 8 * 1024
	maxQueryWords     = 50
	maxBraveRetries   = 3
)

var ErrMissingAPIKey = errors.New("brave api key is not configured")

type APIError struct {
	StatusCode int
	Body       string
}

func (e APIError) Error() string {
	return fmt.Sprintf("brave returned %d: %s", e.StatusCode, e.Body)
}

type BraveConfig struct {
	APIKey  string        `envconfig:"API_KEY" split_words:"true"`
	BaseURL string        `envconfig:"BASE_URL" split_words:"true" default:"https://api.search.brave.com/res/v1"`
	Timeout time.Duration `split_words:"true" default:"15s"`
}

// braveGates serialises calls per API key; the free tier allows 1 req/s.
var braveGates sync.Map

type braveGate struct {
	mu   sync.Mutex
	next time.Time
}

func gateFor(key string) *braveGate {
	g, _ := braveGates.LoadOrStore(key, &braveGate{})
	return g.(*braveGate)
}

func (g *braveGate) wait(ctx context.Context, interval time.Duration) error {
	g.mu.Lock()
	wait := time.Until(g.next)
	if wait < 0 {
		wait = 0
	}
	g.next = time.Now().Add(wait + interval)
	g.mu.Unlock()

	if wait == 0 {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(wait):
		return nil
	}
}

type BraveClient struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	interval   time.Duration
}

var _ Searcher = BraveClient{}

func NewBraveClient(cfg BraveConfig, httpClient *http.Client) BraveClient {
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 15 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	return BraveClient{
		apiKey:     strings.TrimSpace(cfg.APIKey),
		baseURL:    strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
		httpClient: httpClient,
		interval:   time.Second,
	}
}

func (c BraveClient) Search(ctx context.Context, query string, count int) ([]SearchResult, error) {
	if strings.TrimSpace(c.apiKey) == "" {
		return nil, ErrMissingAPIKey
	}

	trimmedQuery := strings.TrimSpace(query)
	if trimmedQuery == "" {
		return nil, nil
	}
	trimmedQuery = trimToWordLimit(trimmedQuery, maxQueryWords)

	if count <= 0 {
		count = 5
	}

	endpoint, err := url.Parse(c.baseURL + "/web/search")
	if err != nil {
		return nil, fmt.Errorf("parse brave endpoint: %w", err)
	}

	params := endpoint.Query()
	params.Set("q", trimmedQuery)
	params.Set("count", strconv.Itoa(count))
	params.Set("spellcheck", "0")
	params.Set("text_decorations", "0")
	endpoint.RawQuery = params.Encode()

	gate := gateFor(c.apiKey)
	for attempt := 0; ; attempt++ {
		if err := gate.wait(ctx, c.interval); err != nil {
			return nil, err
		}

		results, retryAfter, err := c.searchOnce(ctx, endpoint.String(), count)
		if err == nil {
			return results, nil
		}

		var apiErr APIError
		if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusTooManyRequests || attempt >= maxBraveRetries {
			return nil, err
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(retryAfter):
		}
	}
}

func (c BraveClient) searchOnce(ctx context.Context, endpoint string, count int) ([]SearchResult, time.Duration, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("build brave request: %w", err)
	}
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("X-Subscription-Token", c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, 0, fmt.Errorf("request brave: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		return nil, braveRetryDelay(resp.Header), APIError{
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(body)),
		}
	}

	var parsed struct {
		Web struct {
			Results []braveResult `json:"results"`
		} `json:"web"`
		Results []braveResult `json:"results"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, 0, fmt.Errorf("decode brave response: %w", err)
	}

	raw := parsed.Web.Results
	if len(raw) == 0 {
		raw = parsed.Results
	}

	results := make([]SearchResult, 0, len(raw))
	for _, item := range raw {
		snippet := strings.TrimSpace(item.Description)
		if snippet == "" {
			snippet = strings.TrimSpace(item.Snippet)
		}
		if snippet == "" && len(item.ExtraSnippets) > 0 {
			snippet = strings.TrimSpace(item.ExtraSnippets[0])
		}
		results = append(results, SearchResult{
			URL:     item.URL,
			Title:   strings.TrimSpace(item.Title),
			Snippet: snippet,
		})
	}
	return dedupeByURL(results, count), 0, nil
}

type braveResult struct {
	URL           string   `json:"url"`
	Title         string   `json:"title"`
	Description   string   `json:"description"`
	Snippet       string   `json:"snippet"`
	ExtraSnippets []string `json:"extra_snippets"`
}

// braveRetryDelay reads the per-second window of X-RateLimit-Reset ("1, 14832").
func braveRetryDelay(h http.Header) time.Duration {
	const fallback = time.Second
	raw := strings.TrimSpace(h.Get("X-RateLimit-Reset"))
	if raw == "" {
		return fallback
	}
	first := strings.TrimSpace(strings.Split(raw, ",")[0])
	secs, err := strconv.Atoi(first)
	if err != nil || secs <= 0 {
		return fallback
	}
	if secs > 30 {
		secs = 30
	}
	return time.Duration(secs) * time.Second
}
