package orchestratornode

import (
	"context"
	"errors"

	contractx "github.com/yixiaowang2001/game-sage-agent/agent/contract"
	logx "github.com/yixiaowang2001/game-sage-agent/pkg/logger"
)

// Route opens a new round. It reuses the plan decide already obtained and only
// asks the router itself on the first turn.
func Route(ctx context.Context, in *GraphState, deps Deps) (*GraphState, error) {
	logger := logx.Component("controller.route").With().
		Str("session_id", in.State.SessionID).
		Int("turn", in.State.Turn()+1).
		Logger()

	var decision contractx.Decision
	if in.Pending != nil {
		decision = *in.Pending
		in.Pending = nil
	} else {
		roundCtx, cancel := in.roundContext(ctx)
		d, err := deps.Router.Route(roundCtx, in.State.Query, deps.Registry.Platforms(), in.State.History())
		cancel()
		if err != nil {
			broadcast, ok := broadcastDecision(err, in, deps)
			if !ok {
				reason := routeStopReason(err, in)
				logger.Warn().Err(err).Str("stop_reason", string(reason)).Msg("routing failed")
				in.stop(reason, err)
				return in, nil
			}
			logger.Warn().Err(err).Int("platforms", len(broadcast.Plan.Entries)).Msg("router unavailable, broadcasting query")
			d = broadcast
		}
		decision = d
	}

	if decision.Plan.Empty() {
		// Only reachable with history: the router judged the evidence sufficient.
		in.stop(contractx.StopSufficient, nil)
		return in, nil
	}

	if _, err := in.State.AppendStep(decision.Thought, decision.Plan.Entries, deps.Now()); err != nil {
		return nil, err
	}
	in.Plan = decision.Plan
	logger.Debug().Int("entries", len(decision.Plan.Entries)).Msg("round planned")
	return in, nil
}

func routeStopReason(err error, in *GraphState) contractx.StopReason {
	switch {
	case errors.Is(err, contractx.ErrNoCapability):
		return contractx.StopNoCapability
	case in.expired():
		return contractx.StopDeadline
	default:
		return contractx.StopRoutingFailed
	}
}

// broadcastDecision sends the raw query to every platform when the very first
// routing attempt failed because of the model.
func broadcastDecision(err error, in *GraphState, deps Deps) (contractx.Decision, bool) {
	if !deps.BroadcastOnRouterFailure || in.State.Turn() > 0 || in.expired() {
		return contractx.Decision{}, false
	}
	if !errors.Is(err, contractx.ErrLLMUnavailable) &&
		!errors.Is(err, contractx.ErrLLMMalformedResponse) &&
		!errors.Is(err, contractx.ErrEmptyPlan) {
		return contractx.Decision{}, false
	}

	platforms := deps.Registry.Platforms()
	if len(platforms) == 0 {
		return contractx.Decision{}, false
	}
	entries := make([]contractx.PlanEntry, 0, len(platforms))
	for _, p := range platforms {
		entries = append(entries, contractx.PlanEntry{PlatformID: p.ID, SubQuery: in.State.Query.Text})
	}
	return contractx.Decision{
		Thought: "router unavailable; querying every platform with the original question",
		Plan:    contractx.DispatchPlan{Entries: entries},
	}, true
}
