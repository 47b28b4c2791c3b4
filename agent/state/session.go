package state

import (
	"errors"
	"fmt"
	"strings"
	"time"

	contractx "github.com/yixiaowang2001/game-sage-agent/agent/contract"
)

// AgentState is the per-session reasoning log of the controller.
// - Steps only grow: each round appends one Step, observations fill its tail.
// - Summaries collects every per-source summary produced during the session.
type AgentState struct {
	SessionID string          `json:"session_id"`
	Query     contractx.Query `json:"query"`

	Steps     []contractx.Step          `json:"steps,omitempty"`
	Summaries []contractx.SourceSummary `json:"summaries,omitempty"`

	StartedAt time.Time `json:"started_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

var (
	ErrNilState       = errors.New("agent state is nil")
	ErrInvalidSession = errors.New("session id is empty")
	ErrEmptyQuery     = errors.New("query text is empty")
	ErrNoOpenStep     = errors.New("no step to attach observations to")
)

func NewAgentState(sessionID string, query contractx.Query, now time.Time) *AgentState {
	return &AgentState{
		SessionID: sessionID,
		Query:     query,
		Steps:     make([]contractx.Step, 0, 4),
		StartedAt: now.UTC(),
		UpdatedAt: now.UTC(),
	}
}

func (s *AgentState) Touch(now time.Time) {
	s.UpdatedAt = now.UTC()
}

// Turn is the number of rounds dispatched so far.
func (s *AgentState) Turn() int {
	if s == nil {
		return 0
	}
	return len(s.Steps)
}

/* ------------------------------ Append-only ------------------------------ */

// AppendStep opens a new round with the router's thought and the dispatched plan.
func (s *AgentState) AppendStep(thought string, action []contractx.PlanEntry, now time.Time) (int, error) {
	if s == nil {
		return 0, ErrNilState
	}
	turn := len(s.Steps) + 1
	entries := make([]contractx.PlanEntry, len(action))
	copy(entries, action)

	s.Steps = append(s.Steps, contractx.Step{
		Turn:    turn,
		Thought: strings.TrimSpace(thought),
		Action:  entries,
	})
	s.Touch(now)
	return turn, nil
}

// Observe attaches observations to the latest round.
func (s *AgentState) Observe(obs []contractx.Observation, now time.Time) error {
	if s == nil {
		return ErrNilState
	}
	if len(s.Steps) == 0 {
		return ErrNoOpenStep
	}
	last := &s.Steps[len(s.Steps)-1]
	last.Observations = append(last.Observations, obs...)
	s.Touch(now)
	return nil
}

func (s *AgentState) AddSummaries(summaries []contractx.SourceSummary, now time.Time) {
	if s == nil || len(summaries) == 0 {
		return
	}
	s.Summaries = append(s.Summaries, summaries...)
	s.Touch(now)
}

/* -------------------------------- Readers -------------------------------- */

// History returns a copy of the steps safe to hand to other components.
func (s *AgentState) History() []contractx.Step {
	if s == nil || len(s.Steps) == 0 {
		return nil
	}
	out := make([]contractx.Step, len(s.Steps))
	for i, step := range s.Steps {
		out[i] = contractx.Step{
			Turn:         step.Turn,
			Thought:      step.Thought,
			Action:       append([]contractx.PlanEntry(nil), step.Action...),
			Observations: append([]contractx.Observation(nil), step.Observations...),
		}
	}
	return out
}

// SummariesCopy returns the collected summaries without aliasing the log.
func (s *AgentState) SummariesCopy() []contractx.SourceSummary {
	if s == nil || len(s.Summaries) == 0 {
		return nil
	}
	return append([]contractx.SourceSummary(nil), s.Summaries...)
}

func (s *AgentState) Validate() error {
	if s == nil {
		return ErrNilState
	}
	if strings.TrimSpace(s.SessionID) == "" {
		return ErrInvalidSession
	}
	if strings.TrimSpace(s.Query.Text) == "" {
		return ErrEmptyQuery
	}
	for i, step := range s.Steps {
		if step.Turn != i+1 {
			return fmt.Errorf("step %d has turn %d", i, step.Turn)
		}
	}
	return nil
}
