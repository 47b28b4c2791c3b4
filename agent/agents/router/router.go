// Package router turns a player's question into a dispatch plan.
package router

import (
	"context"
	"fmt"
	"sort"
	"strings"

	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	contractx "github.com/yixiaowang2001/game-sage-agent/agent/contract"
	llmx "github.com/yixiaowang2001/game-sage-agent/agent/llm"
	logx "github.com/yixiaowang2001/game-sage-agent/pkg/logger"
)

const graphName = "router"

var tracer = otel.Tracer("github.com/yixiaowang2001/game-sage-agent/agent/agents/router")

type Config struct {
	MaxEntries int `split_words:"true" default:"6"`
}

type Router struct {
	llm    *llmx.Structured[routerOutput]
	cfg    Config
	logger zerolog.Logger
}

var _ contractx.Router = (*Router)(nil)

type routerOutput struct {
	Thought    string        `json:"thought"`
	Sufficient bool          `json:"sufficient"`
	Plan       []routerEntry `json:"plan"`
}

type routerEntry struct {
	PlatformID string `json:"platform_id"`
	SubQuery   string `json:"sub_query"`
	Priority   int    `json:"priority"`
}

type routerPayload struct {
	Query      string                   `json:"query"`
	Lang       string                   `json:"lang"`
	Domain     string                   `json:"domain,omitempty"`
	Platforms  []contractx.PlatformInfo `json:"platforms"`
	History    []contractx.Step         `json:"history,omitempty"`
	MaxEntries int                      `json:"max_entries"`
}

func New(ctx context.Context, chatModel einomodel.BaseChatModel, systemPrompt string, cfg Config) (*Router, error) {
	if cfg.MaxEntries <= 0 {
		cfg.MaxEntries = 6
	}
	structured, err := llmx.NewStructured[routerOutput](ctx, chatModel, systemPrompt, graphName)
	if err != nil {
		return nil, err
	}
	return &Router{llm: structured, cfg: cfg, logger: logx.Component("router")}, nil
}

// Route asks the model for a plan over the available platforms. The returned
// plan only references platforms from available, holds no empty sub-queries
// or duplicates, and is sorted by priority, highest first.
func (r *Router) Route(
	ctx context.Context,
	query contractx.Query,
	available []contractx.PlatformInfo,
	history []contractx.Step,
) (contractx.Decision, error) {
	if len(available) == 0 {
		return contractx.Decision{}, contractx.ErrNoCapability
	}
	if strings.TrimSpace(query.Text) == "" {
		return contractx.Decision{}, fmt.Errorf("%w: query is empty", contractx.ErrValidation)
	}

	ctx, span := tracer.Start(ctx, "router.route")
	defer span.End()
	span.SetAttributes(
		attribute.Int("platforms", len(available)),
		attribute.Int("history", len(history)),
	)

	out, err := r.llm.Invoke(ctx, routerPayload{
		Query:      query.Text,
		Lang:       query.Lang,
		Domain:     query.Domain,
		Platforms:  available,
		History:    history,
		MaxEntries: r.cfg.MaxEntries,
	})
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return contractx.Decision{}, err
	}

	decision := contractx.Decision{
		Thought:    strings.TrimSpace(out.Thought),
		Sufficient: out.Sufficient && len(history) > 0,
		Plan:       r.filter(out.Plan, available),
	}
	span.SetAttributes(
		attribute.Int("entries", len(decision.Plan.Entries)),
		attribute.Bool("sufficient", decision.Sufficient),
	)

	if decision.Plan.Empty() && !decision.Sufficient {
		span.SetStatus(codes.Error, "empty plan")
		return decision, fmt.Errorf("%w: model proposed no usable entries", contractx.ErrEmptyPlan)
	}
	return decision, nil
}

func (r *Router) filter(entries []routerEntry, available []contractx.PlatformInfo) contractx.DispatchPlan {
	known := make(map[contractx.PlatformID]struct{}, len(available))
	for _, p := range available {
		known[p.ID] = struct{}{}
	}

	type pair struct {
		platform contractx.PlatformID
		subQuery string
	}
	seen := make(map[pair]struct{}, len(entries))
	out := make([]contractx.PlanEntry, 0, len(entries))
	for _, e := range entries {
		id := contractx.PlatformID(strings.TrimSpace(e.PlatformID))
		if _, ok := known[id]; !ok {
			r.logger.Warn().Str("platform", string(id)).Msg("router proposed an unknown platform, dropped")
			continue
		}
		sub := strings.Join(strings.Fields(e.SubQuery), " ")
		if sub == "" {
			continue
		}
		key := pair{platform: id, subQuery: strings.ToLower(sub)}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, contractx.PlanEntry{PlatformID: id, SubQuery: sub, Priority: e.Priority})
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Priority > out[j].Priority })
	if len(out) > r.cfg.MaxEntries {
		out = out[:r.cfg.MaxEntries]
	}
	return contractx.DispatchPlan{Entries: out}
}
