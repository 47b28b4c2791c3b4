package orchestratornode

import (
	"context"
	"errors"

	contractx "github.com/yixiaowang2001/game-sage-agent/agent/contract"
	logx "github.com/yixiaowang2001/game-sage-agent/pkg/logger"
)

// Decide asks the router whether the collected evidence suffices. At the turn
// cap the router is not consulted again.
func Decide(ctx context.Context, in *GraphState, deps Deps) (*GraphState, error) {
	if in.Stop != "" {
		return in, nil
	}
	logger := logx.Component("controller.decide").With().
		Str("session_id", in.State.SessionID).
		Int("turn", in.State.Turn()).
		Logger()

	if in.State.Turn() >= deps.MaxTurns {
		logger.Info().Int("max_turns", deps.MaxTurns).Msg("turn cap reached")
		in.stop(contractx.StopTurnCap, nil)
		return in, nil
	}
	if in.expired() {
		in.stop(contractx.StopDeadline, in.RoundCtx.Err())
		return in, nil
	}

	roundCtx, cancel := in.roundContext(ctx)
	decision, err := deps.Router.Route(roundCtx, in.State.Query, deps.Registry.Platforms(), in.State.History())
	cancel()
	if errors.Is(err, contractx.ErrEmptyPlan) {
		logger.Info().Msg("router has nothing left to search")
		in.stop(contractx.StopSufficient, nil)
		return in, nil
	}
	if err != nil {
		// Evidence already gathered is still worth an answer.
		reason := routeStopReason(err, in)
		logger.Warn().Err(err).Str("stop_reason", string(reason)).Msg("follow-up routing failed")
		in.stop(reason, err)
		return in, nil
	}
	if decision.Sufficient || decision.Plan.Empty() {
		logger.Info().Str("thought", decision.Thought).Msg("evidence sufficient")
		in.stop(contractx.StopSufficient, nil)
		return in, nil
	}

	in.Pending = &decision
	return in, nil
}
