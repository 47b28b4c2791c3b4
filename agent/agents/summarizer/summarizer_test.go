package summarizer

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	contractx "github.com/yixiaowang2001/game-sage-agent/agent/contract"
)

// fakeChatModel answers with reply(userContent); calls are safe for
// concurrent use.
type fakeChatModel struct {
	mu     sync.Mutex
	reply  func(user string) (string, error)
	inputs []string
}

func (f *fakeChatModel) Generate(ctx context.Context, input []*schema.Message, opts ...einomodel.Option) (*schema.Message, error) {
	user := input[len(input)-1].Content
	f.mu.Lock()
	f.inputs = append(f.inputs, user)
	f.mu.Unlock()

	content, err := f.reply(user)
	if err != nil {
		return nil, err
	}
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

func fixed(content string) func(string) (string, error) {
	return func(string) (string, error) { return content, nil }
}

func okResult(platform contractx.PlatformID, passages ...contractx.Passage) contractx.RetrievalResult {
	return contractx.RetrievalResult{PlatformID: platform, Provider: string(platform), Status: contractx.StatusOK, Passages: passages}
}

func TestSourceSummarizeTruncatesAndClamps(t *testing.T) {
	t.Parallel()

	long := strings.Repeat("圣骑士", 50)
	fake := &fakeChatModel{reply: fixed(`{"summary":"` + long + `","confidence":1.7,"passage_refs":["BV1","BV9"]}`)}
	s, err := NewSource(context.Background(), fake, "source prompt", Config{MaxChars: 10})
	if err != nil {
		t.Fatalf("NewSource() error = %v", err)
	}

	summary, err := s.Summarize(context.Background(), contractx.NewQuery("最强治疗", "", ""), okResult("bilibili",
		contractx.Passage{Ref: "BV1", Text: "神圣骑士 治疗"},
		contractx.Passage{Ref: "BV2", Text: "戒律牧师"},
	))
	if err != nil {
		t.Fatalf("Summarize() error = %v", err)
	}
	if utf8.RuneCountInString(summary.Text) != 10 || !utf8.ValidString(summary.Text) {
		t.Fatalf("Text = %q", summary.Text)
	}
	if summary.Confidence != 1 {
		t.Fatalf("Confidence = %v", summary.Confidence)
	}
	if !reflect.DeepEqual(summary.PassageRefs, []string{"BV1"}) {
		t.Fatalf("PassageRefs = %v", summary.PassageRefs)
	}
	if summary.PlatformID != "bilibili" || summary.Provider != "bilibili" {
		t.Fatalf("identity = %s/%s", summary.PlatformID, summary.Provider)
	}
	if !strings.Contains(fake.inputs[0], `"max_chars":10`) {
		t.Fatalf("payload = %s", fake.inputs[0])
	}
}

func TestSourceSummarizeErrors(t *testing.T) {
	t.Parallel()

	q := contractx.NewQuery("best healer", "", "")
	result := okResult("nga", contractx.Passage{Ref: "u1", Text: "disc priest"})

	empty, _ := NewSource(context.Background(), &fakeChatModel{reply: fixed(`{"summary":"  ","confidence":0.5}`)}, "p", Config{})
	if _, err := empty.Summarize(context.Background(), q, result); !errors.Is(err, contractx.ErrSummarization) {
		t.Fatalf("empty summary error = %v", err)
	}

	down, _ := NewSource(context.Background(), &fakeChatModel{reply: func(string) (string, error) { return "", errors.New("503") }}, "p", Config{})
	_, err := down.Summarize(context.Background(), q, result)
	if !errors.Is(err, contractx.ErrSummarization) || !errors.Is(err, contractx.ErrLLMUnavailable) {
		t.Fatalf("model failure error = %v", err)
	}

	fake := &fakeChatModel{reply: fixed(`{"summary":"x","confidence":0.5}`)}
	notOK, _ := NewSource(context.Background(), fake, "p", Config{})
	if _, err := notOK.Summarize(context.Background(), q, contractx.RetrievalResult{PlatformID: "nga", Status: contractx.StatusEmpty}); !errors.Is(err, contractx.ErrSummarization) {
		t.Fatalf("empty result error = %v", err)
	}
	if fake.calls() != 0 {
		t.Fatal("model must not be called for a result that is not ok")
	}
}

func TestSummarizeRoundKeepsSlots(t *testing.T) {
	t.Parallel()

	fake := &fakeChatModel{reply: func(user string) (string, error) {
		if strings.Contains(user, `"platform_id":"tieba"`) {
			return "not json", nil
		}
		return `{"summary":"fine","confidence":0.6}`, nil
	}}
	s, _ := NewSource(context.Background(), fake, "p", Config{})

	results := []contractx.RetrievalResult{
		okResult("nga", contractx.Passage{Ref: "a", Text: "a"}),
		{PlatformID: "web", Status: contractx.StatusFailed, Error: "timeout"},
		okResult("tieba", contractx.Passage{Ref: "b", Text: "b"}),
		okResult("bilibili", contractx.Passage{Ref: "c", Text: "c"}),
	}
	slots := SummarizeRound(context.Background(), s, contractx.NewQuery("q", "", ""), results, 2)
	if len(slots) != len(results) {
		t.Fatalf("len(slots) = %d, want %d", len(slots), len(results))
	}
	if slots[0] == nil || slots[0].PlatformID != "nga" {
		t.Fatalf("slots[0] = %#v, want nga summary", slots[0])
	}
	if slots[1] != nil || slots[2] != nil {
		t.Fatalf("failed results got summaries: %#v, %#v", slots[1], slots[2])
	}
	if slots[3] == nil || slots[3].PlatformID != "bilibili" {
		t.Fatalf("slots[3] = %#v, want bilibili summary", slots[3])
	}
	if fake.calls() != 3 {
		t.Fatalf("model calls = %d, want 3", fake.calls())
	}
}

func TestRankPassagesPrefersRelevantText(t *testing.T) {
	t.Parallel()

	passages := []contractx.Passage{
		{Ref: "1", Text: "patch notes for the new raid tier"},
		{Ref: "2", Text: "weekly vendor reset times"},
		{Ref: "3", Text: "holy paladin healer guide, the best healer for mythic plus healer rankings"},
	}
	ranked := rankPassages("best healer", passages)
	if len(ranked) != 3 || ranked[0].Ref != "3" {
		t.Fatalf("ranked = %#v", ranked)
	}
}

func TestPackPassagesRespectsBudget(t *testing.T) {
	t.Parallel()

	passages := []contractx.Passage{
		{Ref: "1", Text: strings.Repeat("a", 8)},
		{Ref: "2", Text: strings.Repeat("b", 8)},
	}
	if got := packPassages(passages, 10); len(got) != 1 {
		t.Fatalf("packPassages(10) = %#v", got)
	}
	got := packPassages(passages, 5)
	if len(got) != 1 || got[0].Text != "aaaaa" {
		t.Fatalf("packPassages(5) = %#v", got)
	}
	if got := packPassages(passages, 100); len(got) != 2 {
		t.Fatalf("packPassages(100) = %#v", got)
	}
}

func TestClampConfidence(t *testing.T) {
	t.Parallel()

	for in, want := range map[float64]float64{-0.5: 0, 0.4: 0.4, 3: 1} {
		if got := clampConfidence(in); got != want {
			t.Fatalf("clampConfidence(%v) = %v", in, got)
		}
	}
	if got := clampConfidence(math.NaN()); got != 0 {
		t.Fatalf("clampConfidence(NaN) = %v", got)
	}
}

func TestAggregateEmptyInputSkipsModel(t *testing.T) {
	t.Parallel()

	fake := &fakeChatModel{reply: fixed(`{"answer":"x"}`)}
	f, err := NewFinal(context.Background(), fake, "final prompt")
	if err != nil {
		t.Fatalf("NewFinal() error = %v", err)
	}

	answer, err := f.Aggregate(context.Background(), contractx.NewQuery("最强治疗", "", ""), nil)
	if err != nil {
		t.Fatalf("Aggregate() error = %v", err)
	}
	if !answer.InsufficientEvidence || len(answer.Citations) != 0 || answer.Text != NoEvidenceText("zh") {
		t.Fatalf("answer = %#v", answer)
	}
	if fake.calls() != 0 {
		t.Fatalf("model calls = %d", fake.calls())
	}
}

func TestAggregateCitationsArePermutationStable(t *testing.T) {
	t.Parallel()

	summaries := []contractx.SourceSummary{
		{PlatformID: "nga", Provider: "brave", Text: "disc priest", PassageRefs: []string{"u2", "u1"}},
		{PlatformID: "bilibili", Provider: "bilibili", Text: "holy paladin", PassageRefs: []string{"BV1"}},
		{PlatformID: "bilibili", Provider: "brave", Text: "resto shaman", PassageRefs: []string{"u3"}},
		{PlatformID: "tieba", Provider: "brave", Text: "   "},
	}
	fake := &fakeChatModel{reply: fixed(`{"answer":"[bilibili] says paladin, [nga] says priest"}`)}
	f, _ := NewFinal(context.Background(), fake, "final prompt")

	base, err := f.Aggregate(context.Background(), contractx.NewQuery("best healer", "", ""), summaries)
	if err != nil {
		t.Fatalf("Aggregate() error = %v", err)
	}
	if !reflect.DeepEqual(base.CitedPlatforms(), []contractx.PlatformID{"bilibili", "nga"}) {
		t.Fatalf("cited = %v", base.CitedPlatforms())
	}
	if !reflect.DeepEqual(base.Citations[0].Providers, []string{"bilibili", "brave"}) {
		t.Fatalf("providers = %v", base.Citations[0].Providers)
	}
	if !reflect.DeepEqual(base.Citations[1].PassageRefs, []string{"u1", "u2"}) {
		t.Fatalf("refs = %v", base.Citations[1].PassageRefs)
	}

	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 10; i++ {
		shuffled := append([]contractx.SourceSummary(nil), summaries...)
		rng.Shuffle(len(shuffled), func(a, b int) { shuffled[a], shuffled[b] = shuffled[b], shuffled[a] })
		got, err := f.Aggregate(context.Background(), contractx.NewQuery("best healer", "", ""), shuffled)
		if err != nil {
			t.Fatalf("Aggregate() error = %v", err)
		}
		if !reflect.DeepEqual(got.Citations, base.Citations) {
			t.Fatalf("citations changed under permutation: %#v vs %#v", got.Citations, base.Citations)
		}
	}

	// Canonical order reaches the model regardless of input order.
	first := fake.inputs[0]
	for _, in := range fake.inputs[1:] {
		if in != first {
			t.Fatalf("prompt payload differs between permutations:\n%s\n%s", first, in)
		}
	}
}

func TestAggregateFallsBackOnModelFailure(t *testing.T) {
	t.Parallel()

	fake := &fakeChatModel{reply: func(string) (string, error) { return "", errors.New("timeout") }}
	f, _ := NewFinal(context.Background(), fake, "final prompt")

	answer, err := f.Aggregate(context.Background(), contractx.NewQuery("best healer", "", ""), []contractx.SourceSummary{
		{PlatformID: "nga", Provider: "brave", Text: "disc priest"},
		{PlatformID: "bilibili", Provider: "bilibili", Text: "holy paladin"},
	})
	if err != nil {
		t.Fatalf("Aggregate() error = %v", err)
	}
	want := "[bilibili] (bilibili)\nholy paladin\n\n[nga] (brave)\ndisc priest"
	if answer.Text != want {
		t.Fatalf("Text = %q", answer.Text)
	}
	if answer.InsufficientEvidence || len(answer.Citations) != 2 {
		t.Fatalf("answer = %#v", answer)
	}
}

func TestSummarizeRoundBoundsConcurrency(t *testing.T) {
	t.Parallel()

	var (
		mu       sync.Mutex
		inFlight int
		peak     int
	)
	release := make(chan struct{})
	fake := &fakeChatModel{reply: func(string) (string, error) {
		mu.Lock()
		inFlight++
		peak = max(peak, inFlight)
		mu.Unlock()
		<-release
		mu.Lock()
		inFlight--
		mu.Unlock()
		return `{"summary":"ok","confidence":0.5}`, nil
	}}
	s, _ := NewSource(context.Background(), fake, "p", Config{})

	results := make([]contractx.RetrievalResult, 6)
	for i := range results {
		results[i] = okResult(contractx.PlatformID("p"+string(rune('a'+i))), contractx.Passage{Ref: "r", Text: "t"})
	}

	done := make(chan []*contractx.SourceSummary)
	go func() {
		done <- SummarizeRound(context.Background(), s, contractx.NewQuery("q", "", ""), results, 2)
	}()
	waitFor := func() bool {
		mu.Lock()
		defer mu.Unlock()
		return inFlight == 2
	}
	for deadline := time.Now().Add(2 * time.Second); !waitFor(); {
		if time.Now().After(deadline) {
			t.Fatal("workers never reached the concurrency limit")
		}
		time.Sleep(time.Millisecond)
	}
	time.Sleep(20 * time.Millisecond)
	close(release)
	slots := <-done

	if peak != 2 {
		t.Fatalf("peak concurrency = %d, want 2", peak)
	}
	for i, slot := range slots {
		if slot == nil {
			t.Fatalf("slots[%d] = nil, want summary", i)
		}
	}
}
