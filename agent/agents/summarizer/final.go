package summarizer

import (
	"context"
	"fmt"
	"sort"
	"strings"

	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"

	contractx "github.com/yixiaowang2001/game-sage-agent/agent/contract"
	llmx "github.com/yixiaowang2001/game-sage-agent/agent/llm"
	logx "github.com/yixiaowang2001/game-sage-agent/pkg/logger"
)

const (
	noEvidenceEN = "No evidence was found for this question on the configured platforms."
	noEvidenceZH = "未能在已配置的平台上找到与该问题相关的资料。"
)

// NoEvidenceText is the answer used when no source produced a summary.
func NoEvidenceText(lang string) string {
	if strings.HasPrefix(strings.ToLower(lang), "zh") {
		return noEvidenceZH
	}
	return noEvidenceEN
}

type Final struct {
	llm    *llmx.Structured[finalOutput]
	logger zerolog.Logger
}

var _ contractx.FinalSummarizer = (*Final)(nil)

type finalOutput struct {
	Answer string `json:"answer"`
}

type finalSource struct {
	PlatformID string  `json:"platform_id"`
	Provider   string  `json:"provider"`
	Confidence float64 `json:"confidence"`
	Summary    string  `json:"summary"`
}

type finalPayload struct {
	Query   string        `json:"query"`
	Sources []finalSource `json:"sources"`
}

func NewFinal(ctx context.Context, chatModel einomodel.BaseChatModel, systemPrompt string) (*Final, error) {
	structured, err := llmx.NewStructured[finalOutput](ctx, chatModel, systemPrompt, "final_summary")
	if err != nil {
		return nil, err
	}
	return &Final{llm: structured, logger: logx.Component("summarizer.final")}, nil
}

// Aggregate never fails: an empty input yields an insufficient-evidence
// answer without calling the model, and a model failure yields a plain
// per-platform listing. Citations depend only on the set of summaries.
func (f *Final) Aggregate(ctx context.Context, query contractx.Query, summaries []contractx.SourceSummary) (contractx.FinalAnswer, error) {
	canonical := Canonicalize(summaries)
	if len(canonical) == 0 {
		return contractx.FinalAnswer{
			Text:                 NoEvidenceText(query.Lang),
			InsufficientEvidence: true,
		}, nil
	}

	ctx, span := tracer.Start(ctx, "summarizer.final")
	defer span.End()
	span.SetAttributes(attribute.Int("sources", len(canonical)))

	answer := contractx.FinalAnswer{Citations: BuildCitations(canonical)}

	payload := finalPayload{Query: query.Text, Sources: make([]finalSource, 0, len(canonical))}
	for _, s := range canonical {
		payload.Sources = append(payload.Sources, finalSource{
			PlatformID: string(s.PlatformID),
			Provider:   s.Provider,
			Confidence: s.Confidence,
			Summary:    s.Text,
		})
	}

	out, err := f.llm.Invoke(ctx, payload)
	text := strings.TrimSpace(out.Answer)
	switch {
	case err != nil:
		f.logger.Warn().Err(err).Msg("final summary failed, listing sources")
		text = FallbackAnswer(canonical)
	case text == "":
		f.logger.Warn().Msg("final summary was empty, listing sources")
		text = FallbackAnswer(canonical)
	}
	answer.Text = text
	return answer, nil
}

// Canonicalize drops empty summaries and sorts by platform, provider and text.
func Canonicalize(summaries []contractx.SourceSummary) []contractx.SourceSummary {
	out := make([]contractx.SourceSummary, 0, len(summaries))
	for _, s := range summaries {
		if strings.TrimSpace(s.Text) == "" {
			continue
		}
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].PlatformID != out[j].PlatformID {
			return out[i].PlatformID < out[j].PlatformID
		}
		if out[i].Provider != out[j].Provider {
			return out[i].Provider < out[j].Provider
		}
		return out[i].Text < out[j].Text
	})
	return out
}

// BuildCitations cites every platform present in summaries, one citation per
// platform with its sorted providers and passage refs.
func BuildCitations(summaries []contractx.SourceSummary) []contractx.Citation {
	type acc struct {
		providers map[string]struct{}
		refs      map[string]struct{}
	}
	byPlatform := make(map[contractx.PlatformID]*acc)
	for _, s := range summaries {
		a, ok := byPlatform[s.PlatformID]
		if !ok {
			a = &acc{providers: map[string]struct{}{}, refs: map[string]struct{}{}}
			byPlatform[s.PlatformID] = a
		}
		if s.Provider != "" {
			a.providers[s.Provider] = struct{}{}
		}
		for _, ref := range s.PassageRefs {
			if ref != "" {
				a.refs[ref] = struct{}{}
			}
		}
	}

	citations := make([]contractx.Citation, 0, len(byPlatform))
	for id, a := range byPlatform {
		citations = append(citations, contractx.Citation{
			PlatformID:  id,
			Providers:   sortedKeys(a.providers),
			PassageRefs: sortedKeys(a.refs),
		})
	}
	sort.Slice(citations, func(i, j int) bool { return citations[i].PlatformID < citations[j].PlatformID })
	return citations
}

// FallbackAnswer lists each summary under its platform heading.
func FallbackAnswer(summaries []contractx.SourceSummary) string {
	var b strings.Builder
	for i, s := range summaries {
		if i > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "[%s] (%s)\n%s", s.PlatformID, s.Provider, strings.TrimSpace(s.Text))
	}
	return b.String()
}

func sortedKeys(set map[string]struct{}) []string {
	if len(set) == 0 {
		return nil
	}
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
