package contract

import (
	"strings"
	"time"
	"unicode"
)

type PlatformID string

type AgentType string

const (
	AgentTypeRouter           AgentType = "router"
	AgentTypeSourceSummarizer AgentType = "source_summarizer"
	AgentTypeFinalSummarizer  AgentType = "final_summarizer"
)

// Query is the user's question. It is never mutated once built.
type Query struct {
	Text   string `json:"text"`
	Lang   string `json:"lang,omitempty"`
	Domain string `json:"domain,omitempty"`
}

// NewQuery trims text and fills Lang when the caller did not provide one.
func NewQuery(text, lang, domain string) Query {
	text = strings.TrimSpace(text)
	lang = strings.TrimSpace(lang)
	if lang == "" {
		lang = DetectLang(text)
	}
	return Query{
		Text:   text,
		Lang:   lang,
		Domain: strings.TrimSpace(domain),
	}
}

func DetectLang(text string) string {
	for _, r := range text {
		if unicode.Is(unicode.Han, r) {
			return "zh"
		}
	}
	return "en"
}

type PlatformInfo struct {
	ID          PlatformID `json:"id"`
	Description string     `json:"description"`
}

type PlanEntry struct {
	PlatformID PlatformID `json:"platform_id"`
	SubQuery   string     `json:"sub_query"`
	Priority   int        `json:"priority"`
}

type DispatchPlan struct {
	Entries []PlanEntry `json:"entries"`
}

func (p DispatchPlan) Empty() bool {
	return len(p.Entries) == 0
}

// Platforms returns the distinct platform ids of the plan in entry order.
func (p DispatchPlan) Platforms() []PlatformID {
	seen := make(map[PlatformID]struct{}, len(p.Entries))
	out := make([]PlatformID, 0, len(p.Entries))
	for _, e := range p.Entries {
		if _, ok := seen[e.PlatformID]; ok {
			continue
		}
		seen[e.PlatformID] = struct{}{}
		out = append(out, e.PlatformID)
	}
	return out
}

type Decision struct {
	Thought    string       `json:"thought"`
	Sufficient bool         `json:"sufficient"`
	Plan       DispatchPlan `json:"plan"`
}

type RetrievalStatus string

const (
	StatusOK     RetrievalStatus = "ok"
	StatusEmpty  RetrievalStatus = "empty"
	StatusFailed RetrievalStatus = "failed"
)

type Passage struct {
	Ref   string `json:"ref"`
	Title string `json:"title,omitempty"`
	URL   string `json:"url,omitempty"`
	Text  string `json:"text"`
}

type RetrievalResult struct {
	PlatformID PlatformID      `json:"platform_id"`
	Provider   string          `json:"provider"`
	SubQuery   string          `json:"sub_query"`
	Passages   []Passage       `json:"passages,omitempty"`
	Status     RetrievalStatus `json:"status"`
	Error      string          `json:"error,omitempty"`
	Fallback   bool            `json:"fallback,omitempty"`
	Elapsed    time.Duration   `json:"elapsed"`
}

func (r RetrievalResult) OK() bool {
	return r.Status == StatusOK && len(r.Passages) > 0
}

// Failed builds a failed result for platform/provider with the given reason.
func Failed(platform PlatformID, provider, subQuery, reason string) RetrievalResult {
	return RetrievalResult{
		PlatformID: platform,
		Provider:   provider,
		SubQuery:   subQuery,
		Status:     StatusFailed,
		Error:      reason,
	}
}

type SourceSummary struct {
	PlatformID  PlatformID `json:"platform_id"`
	Provider    string     `json:"provider"`
	Text        string     `json:"text"`
	Confidence  float64    `json:"confidence"`
	PassageRefs []string   `json:"passage_refs,omitempty"`
}

type Citation struct {
	PlatformID  PlatformID `json:"platform_id"`
	Providers   []string   `json:"providers,omitempty"`
	PassageRefs []string   `json:"passage_refs,omitempty"`
}

type StopReason string

const (
	StopSufficient    StopReason = "sufficient"
	StopTurnCap       StopReason = "turn_cap"
	StopNoResults     StopReason = "no_results"
	StopRoutingFailed StopReason = "routing_failed"
	StopNoCapability  StopReason = "no_capability"
	StopDeadline      StopReason = "deadline"
)

type FinalAnswer struct {
	SessionID            string     `json:"session_id"`
	Text                 string     `json:"text"`
	Citations            []Citation `json:"citations"`
	InsufficientEvidence bool       `json:"insufficient_evidence"`
	Turns                int        `json:"turns"`
	StopReason           StopReason `json:"stop_reason,omitempty"`
}

// CitedPlatforms lists the platform ids referenced by the answer's citations.
func (a FinalAnswer) CitedPlatforms() []PlatformID {
	out := make([]PlatformID, 0, len(a.Citations))
	for _, c := range a.Citations {
		out = append(out, c.PlatformID)
	}
	return out
}

type Observation struct {
	PlatformID PlatformID      `json:"platform_id"`
	Provider   string          `json:"provider"`
	Status     RetrievalStatus `json:"status"`
	Error      string          `json:"error,omitempty"`
	Summary    string          `json:"summary,omitempty"`
	Confidence float64         `json:"confidence,omitempty"`
}

// Step is one thought/action/observation round of the controller.
type Step struct {
	Turn         int           `json:"turn"`
	Thought      string        `json:"thought,omitempty"`
	Action       []PlanEntry   `json:"action,omitempty"`
	Observations []Observation `json:"observations,omitempty"`
}
