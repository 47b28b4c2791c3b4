package orchestratornode

import (
	"context"

	contractx "github.com/yixiaowang2001/game-sage-agent/agent/contract"
	logx "github.com/yixiaowang2001/game-sage-agent/pkg/logger"
)

// Dispatch runs the current plan and waits for the whole round, fallbacks
// included. A round without any ok result ends the session.
func Dispatch(ctx context.Context, in *GraphState, deps Deps) (*GraphState, error) {
	logger := logx.Component("controller.dispatch").With().
		Str("session_id", in.State.SessionID).
		Int("turn", in.State.Turn()).
		Logger()

	roundCtx, cancel := in.roundContext(ctx)
	results, err := deps.Dispatcher.Dispatch(roundCtx, in.Plan)
	cancel()
	if err != nil {
		logger.Warn().Err(err).Msg("plan rejected by dispatcher")
		in.Round = nil
		in.stop(contractx.StopRoutingFailed, err)
		return in, nil
	}
	in.Round = results

	okCount := 0
	for _, r := range results {
		if r.OK() {
			okCount++
		}
	}
	logger.Info().Int("entries", len(results)).Int("ok", okCount).Msg("round dispatched")

	if okCount == 0 {
		if err := in.State.Observe(observations(results, nil), deps.Now()); err != nil {
			return nil, err
		}
		if in.expired() {
			in.stop(contractx.StopDeadline, roundCtx.Err())
		} else {
			in.stop(contractx.StopNoResults, nil)
		}
	}
	return in, nil
}

func observations(results []contractx.RetrievalResult, summaries []*contractx.SourceSummary) []contractx.Observation {
	out := make([]contractx.Observation, len(results))
	for i, r := range results {
		out[i] = contractx.Observation{
			PlatformID: r.PlatformID,
			Provider:   r.Provider,
			Status:     r.Status,
			Error:      r.Error,
		}
		if i < len(summaries) && summaries[i] != nil {
			out[i].Summary = summaries[i].Text
			out[i].Confidence = summaries[i].Confidence
		}
	}
	return out
}
