package orchestratornode

import (
	"context"
	"errors"
	"strings"
	"time"

	contractx "github.com/yixiaowang2001/game-sage-agent/agent/contract"
	statex "github.com/yixiaowang2001/game-sage-agent/agent/state"
)

var (
	ErrInvalidQuery   = errors.New("query is empty")
	ErrInvalidSession = errors.New("session id is empty")
)

type GraphInput struct {
	SessionID string
	Query     contractx.Query
	// RoundCtx bounds every round of the session. The graph itself runs on a
	// context that is never canceled so that finalize always executes.
	RoundCtx context.Context
}

type GraphState struct {
	State    *statex.AgentState
	RoundCtx context.Context

	// Pending is the plan chosen by decide for the next route step.
	Pending *contractx.Decision
	Plan    contractx.DispatchPlan
	Round   []contractx.RetrievalResult

	Stop     contractx.StopReason
	StopErr  error
	Answer   contractx.FinalAnswer
	Finished time.Time
}

func ValidateRequest(in GraphInput, nowFn func() time.Time) (*GraphState, error) {
	sessionID := strings.TrimSpace(in.SessionID)
	if sessionID == "" {
		return nil, ErrInvalidSession
	}
	if strings.TrimSpace(in.Query.Text) == "" {
		return nil, ErrInvalidQuery
	}

	roundCtx := in.RoundCtx
	if roundCtx == nil {
		roundCtx = context.Background()
	}

	return &GraphState{
		State:    statex.NewAgentState(sessionID, in.Query, nowFn()),
		RoundCtx: roundCtx,
	}, nil
}

// roundContext joins the graph context with the session deadline.
func (s *GraphState) roundContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.RoundCtx == nil {
		return context.WithCancel(ctx)
	}
	merged, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(s.RoundCtx, cancel)
	return merged, func() {
		stop()
		cancel()
	}
}

// expired reports whether the session deadline has passed.
func (s *GraphState) expired() bool {
	return s.RoundCtx != nil && s.RoundCtx.Err() != nil
}

func (s *GraphState) stop(reason contractx.StopReason, err error) {
	if s.Stop != "" {
		return
	}
	s.Stop = reason
	s.StopErr = err
}
