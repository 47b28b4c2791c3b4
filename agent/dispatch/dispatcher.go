// Package dispatch runs a dispatch plan against the plugin registry.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc/pool"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	contractx "github.com/yixiaowang2001/game-sage-agent/agent/contract"
	metricsx "github.com/yixiaowang2001/game-sage-agent/agent/metrics"
	logx "github.com/yixiaowang2001/game-sage-agent/pkg/logger"
)

const (
	ErrTimeout  = "timeout"
	ErrCanceled = "canceled"
)

var tracer = otel.Tracer("github.com/yixiaowang2001/game-sage-agent/agent/dispatch")

type Config struct {
	PluginTimeout  time.Duration `split_words:"true" default:"45s"`
	MaxConcurrency int           `split_words:"true" default:"8"`
}

// Dispatcher fans plan entries out to plugins. Each entry gets its own
// deadline and at most one fallback call.
type Dispatcher struct {
	registry contractx.Registry
	cfg      Config
	logger   zerolog.Logger
}

var _ contractx.Dispatcher = (*Dispatcher)(nil)

func New(registry contractx.Registry, cfg Config) *Dispatcher {
	if cfg.PluginTimeout <= 0 {
		cfg.PluginTimeout = 45 * time.Second
	}
	if cfg.MaxConcurrency <= 0 {
		cfg.MaxConcurrency = 8
	}
	return &Dispatcher{registry: registry, cfg: cfg, logger: logx.Component("dispatcher")}
}

// Dispatch returns exactly one result per plan entry, in plan order. The only
// errors are plan validation errors, raised before any plugin runs.
func (d *Dispatcher) Dispatch(ctx context.Context, plan contractx.DispatchPlan) ([]contractx.RetrievalResult, error) {
	bindings, err := d.validate(plan)
	if err != nil {
		return nil, err
	}

	ctx, span := tracer.Start(ctx, "dispatch")
	defer span.End()
	span.SetAttributes(attribute.Int("entries", len(plan.Entries)))

	results := make([]contractx.RetrievalResult, len(plan.Entries))
	workers := pool.New().WithMaxGoroutines(min(d.cfg.MaxConcurrency, max(len(plan.Entries), 1)))
	for i, entry := range plan.Entries {
		i, entry := i, entry
		workers.Go(func() {
			results[i] = d.runEntry(ctx, entry, bindings[i])
		})
	}
	workers.Wait()

	okCount := 0
	for _, r := range results {
		if r.OK() {
			okCount++
		}
	}
	span.SetAttributes(attribute.Int("ok", okCount))
	return results, nil
}

func (d *Dispatcher) validate(plan contractx.DispatchPlan) ([]contractx.Binding, error) {
	bindings := make([]contractx.Binding, len(plan.Entries))
	for i, e := range plan.Entries {
		b, ok := d.registry.Lookup(e.PlatformID)
		if !ok {
			return nil, fmt.Errorf("%w: %q", contractx.ErrUnknownPlatform, e.PlatformID)
		}
		if strings.TrimSpace(e.SubQuery) == "" {
			return nil, fmt.Errorf("%w: entry %d for %q has an empty sub_query", contractx.ErrValidation, i, e.PlatformID)
		}
		bindings[i] = b
	}
	return bindings, nil
}

func (d *Dispatcher) runEntry(ctx context.Context, entry contractx.PlanEntry, binding contractx.Binding) contractx.RetrievalResult {
	subQuery := strings.TrimSpace(entry.SubQuery)
	result := d.call(ctx, entry.PlatformID, binding.Primary, subQuery)
	if result.OK() || binding.Fallback == nil || ctx.Err() != nil {
		return result
	}

	logger := d.logger.With().Str("platform", string(entry.PlatformID)).Logger()
	logger.Info().
		Str("primary", result.Provider).
		Str("status", string(result.Status)).
		Str("reason", result.Error).
		Str("fallback", binding.Fallback.Name()).
		Msg("primary plugin unusable, trying fallback")
	metricsx.Fallbacks.WithLabelValues(string(entry.PlatformID)).Inc()

	fallback := d.call(ctx, entry.PlatformID, binding.Fallback, subQuery)
	fallback.Fallback = true
	return fallback
}

// call invokes one plugin under the per-call deadline. The deadline holds even
// when the plugin ignores its context: the result is abandoned, not awaited.
func (d *Dispatcher) call(ctx context.Context, platform contractx.PlatformID, p contractx.Plugin, subQuery string) contractx.RetrievalResult {
	provider := p.Name()
	ctx, span := tracer.Start(ctx, "plugin.retrieve")
	defer span.End()
	span.SetAttributes(
		attribute.String("platform", string(platform)),
		attribute.String("provider", provider),
	)

	callCtx, cancel := context.WithTimeout(ctx, d.cfg.PluginTimeout)
	defer cancel()

	started := time.Now()
	done := make(chan contractx.RetrievalResult, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- contractx.Failed(platform, provider, subQuery, fmt.Sprintf("panic: %v", r))
			}
		}()
		done <- p.Retrieve(callCtx, subQuery)
	}()

	var result contractx.RetrievalResult
	select {
	case result = <-done:
		result = normalize(result, platform, provider, subQuery)
		if !result.OK() && callCtx.Err() != nil {
			result = contractx.Failed(platform, provider, subQuery, deadlineReason(ctx))
		}
	case <-callCtx.Done():
		result = contractx.Failed(platform, provider, subQuery, deadlineReason(ctx))
	}
	result.Elapsed = time.Since(started)

	metricsx.PluginCalls.WithLabelValues(string(platform), provider, string(result.Status)).Inc()
	metricsx.PluginLatency.WithLabelValues(string(platform), provider).Observe(result.Elapsed.Seconds())
	span.SetAttributes(attribute.String("status", string(result.Status)))
	if result.Status == contractx.StatusFailed {
		span.SetStatus(codes.Error, result.Error)
		d.logger.Warn().
			Str("platform", string(platform)).
			Str("provider", provider).
			Str("reason", result.Error).
			Dur("elapsed", result.Elapsed).
			Msg("plugin call failed")
	}
	return result
}

func deadlineReason(parent context.Context) string {
	if errors.Is(parent.Err(), context.Canceled) {
		return ErrCanceled
	}
	return ErrTimeout
}

// normalize stamps platform identity on a plugin's result and fixes
// inconsistent statuses.
func normalize(r contractx.RetrievalResult, platform contractx.PlatformID, provider, subQuery string) contractx.RetrievalResult {
	r.PlatformID = platform
	r.Provider = provider
	if r.SubQuery == "" {
		r.SubQuery = subQuery
	}
	switch r.Status {
	case contractx.StatusOK:
		if len(r.Passages) == 0 {
			r.Status = contractx.StatusEmpty
		}
	case contractx.StatusEmpty, contractx.StatusFailed:
	default:
		r.Status = contractx.StatusFailed
		if r.Error == "" {
			r.Error = "invalid status"
		}
	}
	if r.Status == contractx.StatusFailed && r.Error == "" {
		r.Error = "unknown error"
	}
	return r
}
