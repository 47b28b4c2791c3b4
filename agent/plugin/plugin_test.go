package plugin

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	contractx "github.com/yixiaowang2001/game-sage-agent/agent/contract"
	"github.com/yixiaowang2001/game-sage-agent/agent/plugin/websearch"
)

type stubPlugin struct {
	name   string
	result contractx.RetrievalResult
	calls  atomic.Int32
}

func (s *stubPlugin) Name() string { return s.name }

func (s *stubPlugin) Retrieve(_ context.Context, subQuery string) contractx.RetrievalResult {
	s.calls.Add(1)
	res := s.result
	res.Provider = s.name
	res.SubQuery = subQuery
	return res
}

type memoryCache struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newMemoryCache() *memoryCache {
	return &memoryCache{data: map[string][]byte{}}
}

func (m *memoryCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *memoryCache) Set(_ context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	return nil
}

func TestNewRegistryKeepsOrderAndRejectsBadEntries(t *testing.T) {
	t.Parallel()

	a := &stubPlugin{name: "a"}
	reg, err := NewRegistry(
		Entry{Info: contractx.PlatformInfo{ID: "nga", Description: " forum "}, Binding: contractx.Binding{Primary: a}},
		Entry{Info: contractx.PlatformInfo{ID: "bilibili"}, Binding: contractx.Binding{Primary: a, Fallback: a}},
	)
	if err != nil {
		t.Fatalf("NewRegistry() error = %v", err)
	}
	platforms := reg.Platforms()
	if len(platforms) != 2 || platforms[0].ID != "nga" || platforms[1].ID != "bilibili" {
		t.Fatalf("Platforms() = %#v", platforms)
	}
	if platforms[0].Description != "forum" {
		t.Fatalf("description = %q", platforms[0].Description)
	}
	if b, ok := reg.Lookup("bilibili"); !ok || b.Fallback == nil {
		t.Fatalf("Lookup(bilibili) = %#v, %v", b, ok)
	}
	if _, ok := reg.Lookup("tieba"); ok {
		t.Fatal("Lookup(tieba) should miss")
	}

	if _, err := NewRegistry(
		Entry{Info: contractx.PlatformInfo{ID: "x"}, Binding: contractx.Binding{Primary: a}},
		Entry{Info: contractx.PlatformInfo{ID: "x"}, Binding: contractx.Binding{Primary: a}},
	); !errors.Is(err, contractx.ErrValidation) {
		t.Fatalf("duplicate id error = %v", err)
	}
	if _, err := NewRegistry(Entry{Info: contractx.PlatformInfo{ID: "x"}}); !errors.Is(err, contractx.ErrValidation) {
		t.Fatalf("missing primary error = %v", err)
	}

	empty, err := NewRegistry()
	if err != nil || empty.Len() != 0 {
		t.Fatalf("empty registry = %v, %v", empty, err)
	}
}

func TestParseConfig(t *testing.T) {
	t.Parallel()

	raw := []byte(`
platforms:
  - id: nga
    description: NGA forum
    primary: {kind: brave, site: nga.178.com, read_pages: 2}
    fallback: {kind: duckduckgo, site: nga.178.com}
    cache: true
  - id: bilibili
    primary: {kind: bilibili, max_results: 2}
`)
	cfg, err := ParseConfig(raw)
	if err != nil {
		t.Fatalf("ParseConfig() error = %v", err)
	}
	if len(cfg.Platforms) != 2 {
		t.Fatalf("platforms = %#v", cfg.Platforms)
	}
	nga := cfg.Platforms[0]
	if nga.Primary.Site != "nga.178.com" || nga.Primary.ReadPages != 2 || nga.Fallback == nil || !nga.Cache {
		t.Fatalf("nga = %#v", nga)
	}
	if cfg.Platforms[1].Fallback != nil || cfg.Platforms[1].Primary.MaxResults != 2 {
		t.Fatalf("bilibili = %#v", cfg.Platforms[1])
	}

	for name, bad := range map[string]string{
		"unknown kind": "platforms:\n  - id: x\n    primary: {kind: steam}\n",
		"missing id":   "platforms:\n  - primary: {kind: brave}\n",
		"duplicate":    "platforms:\n  - id: x\n    primary: {kind: brave}\n  - id: x\n    primary: {kind: brave}\n",
		"not yaml":     "platforms: [",
	} {
		if _, err := ParseConfig([]byte(bad)); !errors.Is(err, contractx.ErrValidation) {
			t.Fatalf("%s: error = %v, want ErrValidation", name, err)
		}
	}
}

func TestDefaultFileConfigIsValid(t *testing.T) {
	t.Parallel()

	if err := DefaultFileConfig().Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
}

func TestBuildRegistrySkipsPlatformsWithoutCredentials(t *testing.T) {
	t.Parallel()

	f := NewFactory(BuiltinConfig{}, nil)
	reg, err := f.BuildRegistry(DefaultFileConfig())
	if err != nil {
		t.Fatalf("BuildRegistry() error = %v", err)
	}

	// Without a Brave key only bilibili (anonymous) survives, and its Brave
	// fallback is dropped.
	platforms := reg.Platforms()
	if len(platforms) != 1 || platforms[0].ID != "bilibili" {
		t.Fatalf("platforms = %#v", platforms)
	}
	b, _ := reg.Lookup("bilibili")
	if b.Fallback != nil {
		t.Fatalf("fallback should be dropped, got %s", b.Fallback.Name())
	}
}

func TestBuildRegistryEmpty(t *testing.T) {
	t.Parallel()

	cfg := FileConfig{Platforms: []PlatformConfig{{ID: "web", Primary: SourceSpec{Kind: KindBrave}}}}
	if _, err := NewFactory(BuiltinConfig{}, nil).BuildRegistry(cfg); !errors.Is(err, contractx.ErrEmptyRegistry) {
		t.Fatalf("BuildRegistry() error = %v, want ErrEmptyRegistry", err)
	}
	if !IsConfigError(contractx.ErrEmptyRegistry) {
		t.Fatal("empty registry should be a config error")
	}
}

func TestFactoryWrapsCachedPlugins(t *testing.T) {
	t.Parallel()

	f := NewFactory(BuiltinConfig{Brave: websearch.BraveConfig{APIKey: "k"}}, newMemoryCache())
	p, err := f.Build(SourceSpec{Kind: KindBrave, Site: "nga.178.com"}, true)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if _, ok := p.(*CachedPlugin); !ok || p.Name() != websearch.ProviderBrave {
		t.Fatalf("Build() = %T %s", p, p.Name())
	}

	p, err = f.Build(SourceSpec{Kind: KindDuckDuckGo}, false)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if _, ok := p.(*CachedPlugin); ok {
		t.Fatal("uncached spec should not be wrapped")
	}
}

func TestCachedPluginServesOKResultsOnly(t *testing.T) {
	t.Parallel()

	store := newMemoryCache()
	inner := &stubPlugin{name: "brave", result: contractx.RetrievalResult{
		Status:   contractx.StatusOK,
		Passages: []contractx.Passage{{Ref: "u1", Text: "holy paladin"}},
	}}
	cached := NewCachedPlugin(inner, store, "nga.178.com")

	first := cached.Retrieve(context.Background(), "Best  Healer")
	second := cached.Retrieve(context.Background(), "best healer")
	if inner.calls.Load() != 1 {
		t.Fatalf("inner calls = %d, want 1", inner.calls.Load())
	}
	if !second.OK() || second.Passages[0].Ref != first.Passages[0].Ref {
		t.Fatalf("cached result = %#v", second)
	}
	if second.SubQuery != "best healer" {
		t.Fatalf("SubQuery = %q", second.SubQuery)
	}

	emptyInner := &stubPlugin{name: "ddg", result: contractx.RetrievalResult{Status: contractx.StatusEmpty}}
	uncached := NewCachedPlugin(emptyInner, store, "")
	uncached.Retrieve(context.Background(), "q")
	uncached.Retrieve(context.Background(), "q")
	if emptyInner.calls.Load() != 2 {
		t.Fatalf("empty results must not be cached, calls = %d", emptyInner.calls.Load())
	}
}
