package orchestratornode

import (
	"context"
	"time"

	summarizerx "github.com/yixiaowang2001/game-sage-agent/agent/agents/summarizer"
	contractx "github.com/yixiaowang2001/game-sage-agent/agent/contract"
	logx "github.com/yixiaowang2001/game-sage-agent/pkg/logger"
)

const defaultFinalizeTimeout = 60 * time.Second

// Finalize fuses every summary of the session into the answer. It runs on a
// detached context so a spent session deadline still yields an answer.
func Finalize(ctx context.Context, in *GraphState, deps Deps) (*GraphState, error) {
	timeout := deps.FinalizeTimeout
	if timeout <= 0 {
		timeout = defaultFinalizeTimeout
	}
	finalCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()

	if in.Stop == "" {
		in.Stop = contractx.StopSufficient
	}

	summaries := in.State.SummariesCopy()
	answer, err := deps.Final.Aggregate(finalCtx, in.State.Query, summaries)
	if err != nil {
		logger := logx.Component("controller.finalize")
		logger.Warn().Err(err).
			Str("session_id", in.State.SessionID).
			Msg("final summarizer failed, using plain listing")
		answer = plainAnswer(in.State.Query, summaries)
	}

	answer.SessionID = in.State.SessionID
	answer.Turns = in.State.Turn()
	answer.StopReason = in.Stop
	if len(summaries) == 0 {
		answer.InsufficientEvidence = true
		answer.Citations = nil
	}
	in.Answer = answer
	in.Finished = deps.Now()
	in.State.Touch(in.Finished)
	return in, nil
}

func plainAnswer(query contractx.Query, summaries []contractx.SourceSummary) contractx.FinalAnswer {
	canonical := summarizerx.Canonicalize(summaries)
	if len(canonical) == 0 {
		return contractx.FinalAnswer{Text: summarizerx.NoEvidenceText(query.Lang), InsufficientEvidence: true}
	}
	return contractx.FinalAnswer{
		Text:      summarizerx.FallbackAnswer(canonical),
		Citations: summarizerx.BuildCitations(canonical),
	}
}
