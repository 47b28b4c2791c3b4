package websearch

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	readability "github.com/go-shiori/go-readability"
)

const (
	defaultReaderUserAgent = "game-sage-reader/1.0"
	defaultReaderMaxBytes  = int64(1_500_000)
	defaultReaderMaxRunes  = 6_000
)

type ReaderConfig struct {
	RequestTimeout time.Duration `split_words:"true" default:"10s"`
	MaxBytes       int64         `split_words:"true" default:"1500000"`
	MaxTextRunes   int           `split_words:"true" default:"6000"`
}

type Page struct {
	URL   string
	Title string
	Text  string
}

// Reader downloads an HTML page and extracts its main article text.
type Reader struct {
	cfg        ReaderConfig
	httpClient *http.Client
}

func NewReader(cfg ReaderConfig, httpClient *http.Client) *Reader {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 10 * time.Second
	}
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = defaultReaderMaxBytes
	}
	if cfg.MaxTextRunes <= 0 {
		cfg.MaxTextRunes = defaultReaderMaxRunes
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.RequestTimeout}
	}
	return &Reader{cfg: cfg, httpClient: httpClient}
}

func (r *Reader) Read(ctx context.Context, rawURL string) (Page, error) {
	parsed, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		return Page{}, fmt.Errorf("unsupported url %q", rawURL)
	}

	ctx, cancel := context.WithTimeout(ctx, r.cfg.RequestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, parsed.String(), nil)
	if err != nil {
		return Page{}, fmt.Errorf("build page request: %w", err)
	}
	req.Header.Set("User-Agent", defaultReaderUserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return Page{}, fmt.Errorf("fetch page: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return Page{}, fmt.Errorf("page http status=%d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "" {
		mediaType, _, _ := mime.ParseMediaType(ct)
		if mediaType != "text/html" && mediaType != "application/xhtml+xml" {
			return Page{}, fmt.Errorf("unsupported content type %q", mediaType)
		}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, r.cfg.MaxBytes))
	if err != nil {
		return Page{}, fmt.Errorf("read page: %w", err)
	}

	article, err := readability.FromReader(strings.NewReader(string(body)), parsed)
	if err != nil {
		return Page{}, fmt.Errorf("extract article: %w", err)
	}

	text := strings.Join(strings.Fields(article.TextContent), " ")
	return Page{
		URL:   parsed.String(),
		Title: strings.TrimSpace(article.Title),
		Text:  truncateRunes(text, r.cfg.MaxTextRunes),
	}, nil
}

func truncateRunes(s string, limit int) string {
	if limit <= 0 || utf8.RuneCountInString(s) <= limit {
		return s
	}
	runes := []rune(s)
	return string(runes[:limit])
}
