package router

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	contractx "github.com/yixiaowang2001/game-sage-agent/agent/contract"
)

type fakeChatModel struct {
	mu        sync.Mutex
	responses []string
	err       error
	inputs    [][]*schema.Message
}

func (f *fakeChatModel) Generate(ctx context.Context, input []*schema.Message, opts ...einomodel.Option) (*schema.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inputs = append(f.inputs, input)
	if f.err != nil {
		return nil, f.err
	}
	if len(f.responses) == 0 {
		return nil, errors.New("no fake response left")
	}
	content := f.responses[0]
	f.responses = f.responses[1:]
	return schema.AssistantMessage(content, nil), nil
}

func (f *fakeChatModel) Stream(ctx context.Context, input []*schema.Message, opts ...einomodel.Option) (*schema.StreamReader[*schema.Message], error) {
	return nil, errors.New("stream not implemented in fake model")
}

func (f *fakeChatModel) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.inputs)
}

var platforms = []contractx.PlatformInfo{
	{ID: "bilibili", Description: "videos"},
	{ID: "nga", Description: "forum"},
	{ID: "tieba", Description: "q&a"},
}

func newTestRouter(t *testing.T, fake *fakeChatModel, cfg Config) *Router {
	t.Helper()

	r, err := New(context.Background(), fake, "router prompt", cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return r
}

func TestRouteNoCapabilitySkipsModel(t *testing.T) {
	t.Parallel()

	fake := &fakeChatModel{}
	r := newTestRouter(t, fake, Config{})

	_, err := r.Route(context.Background(), contractx.NewQuery("best healer", "", ""), nil, nil)
	if !errors.Is(err, contractx.ErrNoCapability) {
		t.Fatalf("Route() error = %v, want ErrNoCapability", err)
	}
	if fake.calls() != 0 {
		t.Fatalf("model called %d times", fake.calls())
	}
}

func TestRouteFiltersAndOrdersPlan(t *testing.T) {
	t.Parallel()

	fake := &fakeChatModel{responses: []string{`{
		"thought": "check forums and videos",
		"sufficient": false,
		"plan": [
			{"platform_id": "nga", "sub_query": "healer tier list", "priority": 1},
			{"platform_id": "steam", "sub_query": "healer", "priority": 9},
			{"platform_id": "bilibili", "sub_query": "  ", "priority": 5},
			{"platform_id": "bilibili", "sub_query": "best healer 11.0", "priority": 3},
			{"platform_id": "nga", "sub_query": "Healer  Tier List", "priority": 2},
			{"platform_id": "tieba", "sub_query": "healer", "priority": 0}
		]
	}`}}
	r := newTestRouter(t, fake, Config{MaxEntries: 2})

	decision, err := r.Route(context.Background(), contractx.NewQuery("best healer?", "", "wow"), platforms, nil)
	if err != nil {
		t.Fatalf("Route() error = %v", err)
	}
	entries := decision.Plan.Entries
	if len(entries) != 2 {
		t.Fatalf("entries = %#v", entries)
	}
	if entries[0].PlatformID != "bilibili" || entries[0].SubQuery != "best healer 11.0" {
		t.Fatalf("entries[0] = %#v", entries[0])
	}
	if entries[1].PlatformID != "nga" || entries[1].SubQuery != "healer tier list" {
		t.Fatalf("entries[1] = %#v", entries[1])
	}
	if decision.Thought != "check forums and videos" {
		t.Fatalf("Thought = %q", decision.Thought)
	}

	user := fake.inputs[0][1].Content
	for _, want := range []string{`"query":"best healer?"`, `"domain":"wow"`, `"id":"tieba"`, `"max_entries":2`} {
		if !strings.Contains(user, want) {
			t.Fatalf("payload missing %s: %s", want, user)
		}
	}
}

func TestRouteEmptyPlan(t *testing.T) {
	t.Parallel()

	fake := &fakeChatModel{responses: []string{
		`{"thought":"nothing fits","sufficient":false,"plan":[{"platform_id":"steam","sub_query":"x"}]}`,
		`{"thought":"already answered","sufficient":true,"plan":[]}`,
		`{"thought":"claims enough","sufficient":true,"plan":[]}`,
	}}
	r := newTestRouter(t, fake, Config{})
	q := contractx.NewQuery("best healer", "", "")

	if _, err := r.Route(context.Background(), q, platforms, nil); !errors.Is(err, contractx.ErrEmptyPlan) {
		t.Fatalf("Route() error = %v, want ErrEmptyPlan", err)
	}

	history := []contractx.Step{{Turn: 1, Observations: []contractx.Observation{{PlatformID: "nga", Status: contractx.StatusOK, Summary: "disc priest"}}}}
	decision, err := r.Route(context.Background(), q, platforms, history)
	if err != nil {
		t.Fatalf("Route(history) error = %v", err)
	}
	if !decision.Sufficient || !decision.Plan.Empty() {
		t.Fatalf("decision = %#v", decision)
	}
	if !strings.Contains(fake.inputs[1][1].Content, `"summary":"disc priest"`) {
		t.Fatalf("history missing from payload: %s", fake.inputs[1][1].Content)
	}

	// Without history there is nothing to be sufficient about.
	if _, err := r.Route(context.Background(), q, platforms, nil); !errors.Is(err, contractx.ErrEmptyPlan) {
		t.Fatalf("Route() error = %v, want ErrEmptyPlan", err)
	}
}

func TestRouteModelErrors(t *testing.T) {
	t.Parallel()

	q := contractx.NewQuery("best healer", "", "")

	down := newTestRouter(t, &fakeChatModel{err: errors.New("502")}, Config{})
	if _, err := down.Route(context.Background(), q, platforms, nil); !errors.Is(err, contractx.ErrLLMUnavailable) {
		t.Fatalf("Route() error = %v, want ErrLLMUnavailable", err)
	}

	garbled := newTestRouter(t, &fakeChatModel{responses: []string{"I think nga is best"}}, Config{})
	if _, err := garbled.Route(context.Background(), q, platforms, nil); !errors.Is(err, contractx.ErrLLMMalformedResponse) {
		t.Fatalf("Route() error = %v, want ErrLLMMalformedResponse", err)
	}
}
