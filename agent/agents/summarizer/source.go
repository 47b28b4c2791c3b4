// Package summarizer reduces retrieval results to per-platform summaries and
// fuses those into the final answer.
package summarizer

import (
	"context"
	"fmt"
	"math"
	"strings"

	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc/pool"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	contractx "github.com/yixiaowang2001/game-sage-agent/agent/contract"
	llmx "github.com/yixiaowang2001/game-sage-agent/agent/llm"
	logx "github.com/yixiaowang2001/game-sage-agent/pkg/logger"
)

var tracer = otel.Tracer("github.com/yixiaowang2001/game-sage-agent/agent/agents/summarizer")

type Config struct {
	MaxChars    int `split_words:"true" default:"800"`
	InputBudget int `split_words:"true" default:"8000"`
}

type Source struct {
	llm    *llmx.Structured[sourceOutput]
	cfg    Config
	logger zerolog.Logger
}

var _ contractx.SourceSummarizer = (*Source)(nil)

type sourceOutput struct {
	Summary     string   `json:"summary"`
	Confidence  float64  `json:"confidence"`
	PassageRefs []string `json:"passage_refs"`
}

type sourcePassage struct {
	Ref   string `json:"ref"`
	Title string `json:"title,omitempty"`
	Text  string `json:"text"`
}

type sourcePayload struct {
	Query      string          `json:"query"`
	PlatformID string          `json:"platform_id"`
	Passages   []sourcePassage `json:"passages"`
	MaxChars   int             `json:"max_chars"`
}

func NewSource(ctx context.Context, chatModel einomodel.BaseChatModel, systemPrompt string, cfg Config) (*Source, error) {
	if cfg.MaxChars <= 0 {
		cfg.MaxChars = 800
	}
	if cfg.InputBudget <= 0 {
		cfg.InputBudget = 8000
	}
	structured, err := llmx.NewStructured[sourceOutput](ctx, chatModel, systemPrompt, "source_summary")
	if err != nil {
		return nil, err
	}
	return &Source{llm: structured, cfg: cfg, logger: logx.Component("summarizer.source")}, nil
}

// Summarize condenses one ok result into at most MaxChars runes. Errors wrap
// ErrSummarization, plus the model error when there is one.
func (s *Source) Summarize(ctx context.Context, query contractx.Query, result contractx.RetrievalResult) (contractx.SourceSummary, error) {
	if !result.OK() {
		return contractx.SourceSummary{}, fmt.Errorf("%w: %s result is %s", contractx.ErrSummarization, result.PlatformID, result.Status)
	}

	ctx, span := tracer.Start(ctx, "summarizer.source")
	defer span.End()
	span.SetAttributes(
		attribute.String("platform", string(result.PlatformID)),
		attribute.Int("passages", len(result.Passages)),
	)

	packed := packPassages(rankPassages(query.Text, result.Passages), s.cfg.InputBudget)
	payload := sourcePayload{
		Query:      query.Text,
		PlatformID: string(result.PlatformID),
		Passages:   make([]sourcePassage, 0, len(packed)),
		MaxChars:   s.cfg.MaxChars,
	}
	for _, p := range packed {
		payload.Passages = append(payload.Passages, sourcePassage{Ref: p.Ref, Title: p.Title, Text: p.Text})
	}

	out, err := s.llm.Invoke(ctx, payload)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return contractx.SourceSummary{}, fmt.Errorf("%w: platform %s: %w", contractx.ErrSummarization, result.PlatformID, err)
	}

	text := truncateRunes(strings.TrimSpace(out.Summary), s.cfg.MaxChars)
	if text == "" {
		span.SetStatus(codes.Error, "empty summary")
		return contractx.SourceSummary{}, fmt.Errorf("%w: platform %s: empty summary", contractx.ErrSummarization, result.PlatformID)
	}

	return contractx.SourceSummary{
		PlatformID:  result.PlatformID,
		Provider:    result.Provider,
		Text:        text,
		Confidence:  clampConfidence(out.Confidence),
		PassageRefs: knownRefs(out.PassageRefs, packed),
	}, nil
}

// SummarizeRound summarizes every ok result with at most maxConcurrency
// calls in flight. Slot i holds the summary of results[i], or nil when the
// result is not ok or its summary failed.
func SummarizeRound(
	ctx context.Context,
	s contractx.SourceSummarizer,
	query contractx.Query,
	results []contractx.RetrievalResult,
	maxConcurrency int,
) []*contractx.SourceSummary {
	if maxConcurrency <= 0 {
		maxConcurrency = 4
	}
	logger := logx.Component("summarizer.source")

	slots := make([]*contractx.SourceSummary, len(results))
	workers := pool.New().WithMaxGoroutines(maxConcurrency)
	for i, r := range results {
		if !r.OK() {
			continue
		}
		i, r := i, r
		workers.Go(func() {
			defer func() {
				if rec := recover(); rec != nil {
					logger.Error().Interface("panic", rec).Str("platform", string(r.PlatformID)).Msg("summarizer panicked")
				}
			}()
			summary, err := s.Summarize(ctx, query, r)
			if err != nil {
				logger.Warn().Err(err).Str("platform", string(r.PlatformID)).Str("provider", r.Provider).Msg("source summary skipped")
				return
			}
			slots[i] = &summary
		})
	}
	workers.Wait()
	return slots
}

func clampConfidence(v float64) float64 {
	switch {
	case math.IsNaN(v) || v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}

// knownRefs keeps the refs the model cited that were actually shown to it,
// falling back to every shown ref.
func knownRefs(cited []string, shown []contractx.Passage) []string {
	shownSet := make(map[string]struct{}, len(shown))
	all := make([]string, 0, len(shown))
	for _, p := range shown {
		if p.Ref == "" {
			continue
		}
		if _, ok := shownSet[p.Ref]; ok {
			continue
		}
		shownSet[p.Ref] = struct{}{}
		all = append(all, p.Ref)
	}

	out := make([]string, 0, len(cited))
	seen := make(map[string]struct{}, len(cited))
	for _, ref := range cited {
		ref = strings.TrimSpace(ref)
		if _, ok := shownSet[ref]; !ok {
			continue
		}
		if _, dup := seen[ref]; dup {
			continue
		}
		seen[ref] = struct{}{}
		out = append(out, ref)
	}
	if len(out) == 0 {
		return all
	}
	return out
}
