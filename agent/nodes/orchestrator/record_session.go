package orchestratornode

import (
	"context"

	contractx "github.com/yixiaowang2001/game-sage-agent/agent/contract"
	logx "github.com/yixiaowang2001/game-sage-agent/pkg/logger"
)

// RecordSession hands the finished session to the recorder. Recording
// failures are logged and never change the answer.
func RecordSession(ctx context.Context, in *GraphState, deps Deps) (contractx.FinalAnswer, error) {
	if deps.Recorder == nil {
		return in.Answer, nil
	}
	if err := deps.Recorder.Record(context.WithoutCancel(ctx), in.State, in.Answer); err != nil {
		logger := logx.Component("controller.record")
		logger.Warn().Err(err).
			Str("session_id", in.State.SessionID).
			Msg("session not recorded")
	}
	return in.Answer, nil
}
