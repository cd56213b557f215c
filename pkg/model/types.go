package model

import (
	"time"
)

// PlannedAction is one proposed command awaiting execution
type PlannedAction struct {
	Command      string `json:"command" yaml:"command"`
	Rationale    string `json:"rationale,omitempty" yaml:"rationale,omitempty"`
	ExpectSignal string `json:"expect,omitempty" yaml:"expect,omitempty"`
}

// ExecutionResult holds the outcome of exactly one PlannedAction
type ExecutionResult struct {
	Seq        int
	Action     PlannedAction
	Command    string // command line actually run, after normalization
	Stdout     string
	Stderr     string
	ExitCode   int
	StartedAt  time.Time
	Duration   time.Duration
	TimedOut   bool
	Skipped    bool
	SkipReason string
}

// Succeeded reports a zero exit within the deadline.
func (r ExecutionResult) Succeeded() bool {
	return !r.Skipped && !r.TimedOut && r.ExitCode == 0
}

// Step pairs an action with its result; history is a slice of steps in
// execution order.
type Step struct {
	Action PlannedAction
	Result ExecutionResult
}

// Decision is the Completion Verifier's judgement for one round
type Decision string

const (
	DecisionComplete Decision = "complete"
	DecisionContinue Decision = "continue"
	DecisionFailed   Decision = "failed"
)

// Verdict is a Decision plus the text that explains it
type Verdict struct {
	Decision Decision
	Summary  string
	Reason   string
}
