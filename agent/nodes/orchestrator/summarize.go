package orchestratornode

import (
	"context"

	summarizerx "github.com/yixiaowang2001/game-sage-agent/agent/agents/summarizer"
	contractx "github.com/yixiaowang2001/game-sage-agent/agent/contract"
	logx "github.com/yixiaowang2001/game-sage-agent/pkg/logger"
)

// Summarize condenses every ok result of the round and records the round's
// observations.
func Summarize(ctx context.Context, in *GraphState, deps Deps) (*GraphState, error) {
	roundCtx, cancel := in.roundContext(ctx)
	slots := summarizerx.SummarizeRound(roundCtx, deps.Source, in.State.Query, in.Round, deps.SummaryConcurrency)
	cancel()

	summaries := make([]contractx.SourceSummary, 0, len(slots))
	for _, s := range slots {
		if s != nil {
			summaries = append(summaries, *s)
		}
	}
	in.State.AddSummaries(summaries, deps.Now())
	if err := in.State.Observe(observations(in.Round, slots), deps.Now()); err != nil {
		return nil, err
	}

	logger := logx.Component("controller.summarize")
	logger.Debug().
		Str("session_id", in.State.SessionID).
		Int("turn", in.State.Turn()).
		Int("summaries", len(summaries)).
		Msg("round summarized")

	if in.expired() {
		in.stop(contractx.StopDeadline, in.RoundCtx.Err())
	}
	return in, nil
}
