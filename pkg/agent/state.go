// Package agent drives the plan, execute and verify loop.
package agent

import (
	"time"

	"github.com/computerscienceiscool/llm-troubleshooter/pkg/model"
)

// Status is the overall state of a session.
type Status string

const (
	StatusInProgress Status = "in_progress"
	StatusComplete   Status = "complete"
	StatusFailed     Status = "failed"
	StatusAborted    Status = "aborted"
)

// Terminal reports whether no further transition is allowed.
func (s Status) Terminal() bool {
	return s == StatusComplete || s == StatusFailed || s == StatusAborted
}

// Phase is where the loop currently is.
type Phase string

const (
	PhaseIdle      Phase = "idle"
	PhasePlanning  Phase = "planning"
	PhaseExecuting Phase = "executing"
	PhaseVerifying Phase = "verifying"
	PhaseDone      Phase = "done"
)

// Terminal causes
const (
	CausePlannerUnavailable = "planner unavailable"
	CauseIterationLimit     = "iteration limit exceeded"
	CauseInterrupted        = "interrupted"
	CausePlannerGaveUp      = "planner gave up"
)

// LoopState is the single mutable record of a session.
type LoopState struct {
	SessionID  string
	Problem    string
	History    []model.Step
	Status     Status
	Cause      string
	Phase      Phase
	Iteration  int
	Resolution string // verifier summary when complete
	Summary    string
	StartedAt  time.Time
	FinishedAt time.Time
}

func newLoopState(sessionID, problem string, now time.Time) *LoopState {
	return &LoopState{
		SessionID: sessionID,
		Problem:   problem,
		Status:    StatusInProgress,
		Phase:     PhaseIdle,
		StartedAt: now,
	}
}

// finish moves the state to a terminal status. Once terminal, later calls
// are ignored and false is returned.
func (s *LoopState) finish(status Status, cause string, now time.Time) bool {
	if s.Status.Terminal() || !status.Terminal() {
		return false
	}
	s.Status = status
	s.Cause = cause
	s.Phase = PhaseDone
	s.FinishedAt = now
	return true
}

func (s *LoopState) append(step model.Step) {
	s.History = append(s.History, step)
}

// Attempts counts executed (non-skipped) steps.
func (s *LoopState) Attempts() int {
	n := 0
	for _, st := range s.History {
		if !st.Result.Skipped {
			n++
		}
	}
	return n
}
