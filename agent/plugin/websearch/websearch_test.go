package websearch

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	contractx "github.com/yixiaowang2001/game-sage-agent/agent/contract"
)

func TestBraveClientSearchParsesWebResults(t *testing.T) {
	t.Parallel()

	var gotToken, gotQuery string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/web/search" {
			t.Errorf("path = %q", r.URL.Path)
		}
		gotToken = r.Header.Get("X-Subscription-Token")
		gotQuery = r.URL.Query().Get("q")
		fmt.Fprint(w, `{"web":{"results":[
			{"url":"https://nga.178.com/read.php?tid=1","title":"Healer tier list","description":"Disc priest is strong"},
			{"url":"https://nga.178.com/read.php?tid=1","title":"dup"},
			{"url":"https://nga.178.com/read.php?tid=2","title":"","extra_snippets":["resto druid"]}
		]}}`)
	}))
	t.Cleanup(server.Close)

	client := NewBraveClient(BraveConfig{APIKey: "key-parses", BaseURL: server.URL}, server.Client())
	results, err := client.Search(context.Background(), "best healer", 5)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if gotToken != "key-parses" || gotQuery != "best healer" {
		t.Fatalf("token = %q, query = %q", gotToken, gotQuery)
	}
	if len(results) != 2 {
		t.Fatalf("results = %#v", results)
	}
	if results[0].Snippet != "Disc priest is strong" {
		t.Fatalf("snippet = %q", results[0].Snippet)
	}
	if results[1].Title != results[1].URL || results[1].Snippet != "resto druid" {
		t.Fatalf("second result = %#v", results[1])
	}
}

func TestBraveClientRetriesRateLimit(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.Header().Set("X-RateLimit-Reset", "1, 100")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		fmt.Fprint(w, `{"web":{"results":[{"url":"https://a.example","title":"a"}]}}`)
	}))
	t.Cleanup(server.Close)

	client := NewBraveClient(BraveConfig{APIKey: "key-retry", BaseURL: server.URL}, server.Client())
	client.interval = time.Millisecond
	results, err := client.Search(context.Background(), "q", 3)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(results) != 1 || calls.Load() != 2 {
		t.Fatalf("results = %d, calls = %d", len(results), calls.Load())
	}
}

func TestBraveClientRequiresAPIKey(t *testing.T) {
	t.Parallel()

	_, err := NewBraveClient(BraveConfig{}, nil).Search(context.Background(), "q", 1)
	if !errors.Is(err, ErrMissingAPIKey) {
		t.Fatalf("Search() error = %v, want ErrMissingAPIKey", err)
	}
}

func TestBraveRetryDelay(t *testing.T) {
	t.Parallel()

	cases := map[string]time.Duration{
		"":        time.Second,
		"3, 1000": 3 * time.Second,
		"90":      30 * time.Second,
		"bogus":   time.Second,
	}
	for raw, want := range cases {
		h := http.Header{}
		if raw != "" {
			h.Set("X-RateLimit-Reset", raw)
		}
		if got := braveRetryDelay(h); got != want {
			t.Fatalf("braveRetryDelay(%q) = %v, want %v", raw, got, want)
		}
	}
}

func TestParseLiteResults(t *testing.T) {
	t.Parallel()

	page := `<table>
<tr><td><a rel="nofollow" href="//duckduckgo.com/l/?uddg=https%3A%2F%2Ftieba.baidu.com%2Fp%2F1&amp;rut=x" class='result-link'>Tier &amp; list</a></td></tr>
<tr><td class='result-snippet'>Holy <b>paladin</b> is top</td></tr>
<tr><td><a href="https://example.com/guide" class='result-link'>Guide</a></td></tr>
<tr><td class='result-snippet'>second</td></tr>
</table>`

	results, err := parseLiteResults(strings.NewReader(page))
	if err != nil {
		t.Fatalf("parseLiteResults() error = %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("results = %#v", results)
	}
	if results[0].URL != "https://tieba.baidu.com/p/1" || results[0].Title != "Tier & list" {
		t.Fatalf("first = %#v", results[0])
	}
	if results[0].Snippet != "Holy paladin is top" {
		t.Fatalf("snippet = %q", results[0].Snippet)
	}
	if results[1].URL != "https://example.com/guide" {
		t.Fatalf("second = %#v", results[1])
	}
}

func TestDuckDuckGoSearchPostsQuery(t *testing.T) {
	t.Parallel()

	var gotQuery string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s", r.Method)
		}
		if err := r.ParseForm(); err != nil {
			t.Errorf("parse form: %v", err)
		}
		gotQuery = r.PostForm.Get("q")
		fmt.Fprint(w, `<table><tr><td><a href="https://example.com/a" class="result-link">A</a></td></tr><tr><td class="result-snippet">aa</td></tr></table>`)
	}))
	t.Cleanup(server.Close)

	ddg := NewDuckDuckGo(DuckDuckGoConfig{Endpoint: server.URL}, server.Client())
	ddg.minGap = 0
	results, err := ddg.Search(context.Background(), "mage talents", 5)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if gotQuery != "mage talents" {
		t.Fatalf("q = %q", gotQuery)
	}
	if len(results) != 1 || results[0].Snippet != "aa" {
		t.Fatalf("results = %#v", results)
	}
}

func TestReaderExtractsArticle(t *testing.T) {
	t.Parallel()

	body := "<html><head><title>Healer guide</title></head><body><article><h1>Healer guide</h1>" +
		strings.Repeat("<p>Discipline priest shields absorb a lot of damage in raids and dungeons alike.</p>", 8) +
		"</article></body></html>"
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, body)
	}))
	t.Cleanup(server.Close)

	page, err := NewReader(ReaderConfig{MaxTextRunes: 60}, server.Client()).Read(context.Background(), server.URL)
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if !strings.Contains(page.Text, "Discipline priest") {
		t.Fatalf("text = %q", page.Text)
	}
	if len([]rune(page.Text)) > 60 {
		t.Fatalf("text not truncated: %d runes", len([]rune(page.Text)))
	}
}

func TestReaderRejectsNonHTML(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/pdf")
		fmt.Fprint(w, "%PDF")
	}))
	t.Cleanup(server.Close)

	if _, err := NewReader(ReaderConfig{}, server.Client()).Read(context.Background(), server.URL); err == nil {
		t.Fatal("expected error for pdf content")
	}
}

type fakeSearcher struct {
	results []SearchResult
	err     error
	query   string
}

func (f *fakeSearcher) Search(_ context.Context, query string, _ int) ([]SearchResult, error) {
	f.query = query
	return f.results, f.err
}

type fakeReader struct {
	pages map[string]Page
}

func (f fakeReader) Read(_ context.Context, rawURL string) (Page, error) {
	page, ok := f.pages[rawURL]
	if !ok {
		return Page{}, errors.New("not found")
	}
	return page, nil
}

func TestSearchPluginScopesQueryAndEnriches(t *testing.T) {
	t.Parallel()

	searcher := &fakeSearcher{results: []SearchResult{
		{URL: "https://nga.178.com/1", Title: "t1", Snippet: "s1"},
		{URL: "https://nga.178.com/2", Title: "t2", Snippet: "s2"},
	}}
	reader := fakeReader{pages: map[string]Page{
		"https://nga.178.com/1": {Title: "Full 1", Text: "full article text"},
	}}

	p := NewSearchPlugin(ProviderBrave, searcher, reader, PluginConfig{Site: "nga.178.com", MaxResults: 5, ReadPages: 2})
	res := p.Retrieve(context.Background(), "healer")

	if searcher.query != "healer site:nga.178.com" {
		t.Fatalf("query = %q", searcher.query)
	}
	if res.Status != contractx.StatusOK || res.Provider != ProviderBrave {
		t.Fatalf("result = %#v", res)
	}
	if len(res.Passages) != 2 {
		t.Fatalf("passages = %#v", res.Passages)
	}
	if res.Passages[0].Title != "Full 1" || !strings.Contains(res.Passages[0].Text, "full article text") {
		t.Fatalf("first passage not enriched: %#v", res.Passages[0])
	}
	if !strings.Contains(res.Passages[1].Text, "s2") {
		t.Fatalf("second passage lost snippet: %#v", res.Passages[1])
	}
}

func TestSearchPluginReportsFailureAndEmpty(t *testing.T) {
	t.Parallel()

	failed := NewSearchPlugin(ProviderDuckDuckGo, &fakeSearcher{err: errors.New("boom")}, nil, PluginConfig{})
	if res := failed.Retrieve(context.Background(), "q"); res.Status != contractx.StatusFailed || res.Error == "" {
		t.Fatalf("failed result = %#v", res)
	}

	empty := NewSearchPlugin(ProviderDuckDuckGo, &fakeSearcher{}, nil, PluginConfig{})
	if res := empty.Retrieve(context.Background(), "q"); res.Status != contractx.StatusEmpty {
		t.Fatalf("empty result = %#v", res)
	}
}
