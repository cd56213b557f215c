package planner

import (
	"context"

	"github.com/computerscienceiscool/llm-troubleshooter/pkg/model"
)

// Scripted returns a fixed, ordered sequence of action batches, one batch
// per Propose call.
type Scripted struct {
	batches [][]model.PlannedAction
	next    int
}

// NewScripted creates a scripted planner.
func NewScripted(batches ...[]model.PlannedAction) *Scripted {
	copied := make([][]model.PlannedAction, len(batches))
	for i, b := range batches {
		copied[i] = append([]model.PlannedAction(nil), b...)
	}
	return &Scripted{batches: copied}
}

// Propose returns the next batch.
func (s *Scripted) Propose(ctx context.Context, req Request) ([]model.PlannedAction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.next >= len(s.batches) {
		return nil, ErrScriptExhausted
	}
	batch := s.batches[s.next]
	s.next++
	return append([]model.PlannedAction(nil), batch...), nil
}

// Calls returns how many batches have been handed out.
func (s *Scripted) Calls() int {
	return s.next
}
