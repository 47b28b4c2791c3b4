package orchestratornode

import (
	"context"
	"time"

	contractx "github.com/yixiaowang2001/game-sage-agent/agent/contract"
	statex "github.com/yixiaowang2001/game-sage-agent/agent/state"
)

// Recorder persists finished sessions.
type Recorder interface {
	Record(ctx context.Context, state *statex.AgentState, answer contractx.FinalAnswer) error
}

type Deps struct {
	Registry   contractx.Registry
	Router     contractx.Router
	Dispatcher contractx.Dispatcher
	Source     contractx.SourceSummarizer
	Final      contractx.FinalSummarizer
	Recorder   Recorder

	MaxTurns                 int
	SummaryConcurrency       int
	FinalizeTimeout          time.Duration
	BroadcastOnRouterFailure bool

	Now func() time.Time
}
