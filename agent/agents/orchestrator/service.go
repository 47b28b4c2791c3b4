// Package orchestrator runs one question through the route, dispatch,
// summarize and decide loop and always produces an answer.
package orchestrator

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/cloudwego/eino/compose"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	summarizerx "github.com/yixiaowang2001/game-sage-agent/agent/agents/summarizer"
	contractx "github.com/yixiaowang2001/game-sage-agent/agent/contract"
	metricsx "github.com/yixiaowang2001/game-sage-agent/agent/metrics"
	nodex "github.com/yixiaowang2001/game-sage-agent/agent/nodes/orchestrator"
	logx "github.com/yixiaowang2001/game-sage-agent/pkg/logger"
)

var tracer = otel.Tracer("github.com/yixiaowang2001/game-sage-agent/agent/agents/orchestrator")

var (
	ErrInvalidQuery   = nodex.ErrInvalidQuery
	ErrInvalidSession = nodex.ErrInvalidSession
)

type Config struct {
	MaxTurns                 int           `split_words:"true" default:"3"`
	SessionTimeout           time.Duration `split_words:"true" default:"3m"`
	FinalizeTimeout          time.Duration `split_words:"true" default:"60s"`
	SummaryConcurrency       int           `split_words:"true" default:"4"`
	BroadcastOnRouterFailure bool          `split_words:"true" default:"false"`
}

type Components struct {
	Registry   contractx.Registry
	Router     contractx.Router
	Dispatcher contractx.Dispatcher
	Source     contractx.SourceSummarizer
	Final      contractx.FinalSummarizer
	// Recorder is optional.
	Recorder nodex.Recorder
}

type Orchestrator struct {
	deps           nodex.Deps
	sessionTimeout time.Duration
	graphRunner    compose.Runnable[nodex.GraphInput, contractx.FinalAnswer]
	newSessionID   func() string
	logger         zerolog.Logger
}

type Option func(*Orchestrator)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		if now != nil {
			o.deps.Now = now
		}
	}
}

func WithSessionIDs(next func() string) Option {
	return func(o *Orchestrator) {
		if next != nil {
			o.newSessionID = next
		}
	}
}

func New(c Components, cfg Config, opts ...Option) (*Orchestrator, error) {
	if c.Registry == nil {
		return nil, errors.New("plugin registry is required")
	}
	if c.Router == nil {
		return nil, errors.New("router is required")
	}
	if c.Dispatcher == nil {
		return nil, errors.New("dispatcher is required")
	}
	if c.Source == nil || c.Final == nil {
		return nil, errors.New("summarizers are required")
	}
	if cfg.MaxTurns <= 0 {
		cfg.MaxTurns = 3
	}

	o := &Orchestrator{
		deps: nodex.Deps{
			Registry:                 c.Registry,
			Router:                   c.Router,
			Dispatcher:               c.Dispatcher,
			Source:                   c.Source,
			Final:                    c.Final,
			Recorder:                 c.Recorder,
			MaxTurns:                 cfg.MaxTurns,
			SummaryConcurrency:       cfg.SummaryConcurrency,
			FinalizeTimeout:          cfg.FinalizeTimeout,
			BroadcastOnRouterFailure: cfg.BroadcastOnRouterFailure,
			Now:                      time.Now,
		},
		sessionTimeout: cfg.SessionTimeout,
		newSessionID:   uuid.NewString,
		logger:         logx.Component("orchestrator"),
	}
	for _, opt := range opts {
		opt(o)
	}

	graphRunner, err := o.compileAskGraph(context.Background())
	if err != nil {
		return nil, err
	}
	o.graphRunner = graphRunner
	return o, nil
}

// Ask answers text. The only error is ErrInvalidQuery; every other failure
// degrades into the returned answer.
func (o *Orchestrator) Ask(ctx context.Context, text string) (contractx.FinalAnswer, error) {
	return o.AskQuery(ctx, contractx.NewQuery(text, "", ""))
}

func (o *Orchestrator) AskQuery(ctx context.Context, query contractx.Query) (contractx.FinalAnswer, error) {
	if strings.TrimSpace(query.Text) == "" {
		return contractx.FinalAnswer{}, ErrInvalidQuery
	}

	started := o.deps.Now()
	sessionID := o.newSessionID()
	logger := o.logger.With().Str("session_id", sessionID).Logger()

	ctx, span := tracer.Start(ctx, "orchestrator.ask",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(attribute.String("session_id", sessionID)),
	)
	defer span.End()

	roundCtx, cancel := ctx, context.CancelFunc(func() {})
	if o.sessionTimeout > 0 {
		roundCtx, cancel = context.WithTimeout(ctx, o.sessionTimeout)
	}
	defer cancel()

	answer, err := o.graphRunner.Invoke(context.WithoutCancel(ctx), nodex.GraphInput{
		SessionID: sessionID,
		Query:     query,
		RoundCtx:  roundCtx,
	})
	if err != nil {
		logger.Error().Err(err).Msg("controller graph failed")
		answer = contractx.FinalAnswer{
			SessionID:            sessionID,
			Text:                 summarizerx.NoEvidenceText(query.Lang),
			InsufficientEvidence: true,
			StopReason:           contractx.StopRoutingFailed,
		}
	}

	span.SetAttributes(
		attribute.Int("turns", answer.Turns),
		attribute.String("stop_reason", string(answer.StopReason)),
		attribute.Bool("insufficient_evidence", answer.InsufficientEvidence),
	)
	metricsx.Sessions.WithLabelValues(string(answer.StopReason)).Inc()
	metricsx.SessionTurns.Observe(float64(answer.Turns))
	metricsx.SessionDuration.Observe(o.deps.Now().Sub(started).Seconds())
	logger.Info().
		Int("turns", answer.Turns).
		Str("stop_reason", string(answer.StopReason)).
		Bool("insufficient_evidence", answer.InsufficientEvidence).
		Int("citations", len(answer.Citations)).
		Msg("session finished")
	return answer, nil
}

// Platforms lists the registered platforms.
func (o *Orchestrator) Platforms() []contractx.PlatformInfo {
	return o.deps.Registry.Platforms()
}
