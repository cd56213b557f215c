// Package planner defines the boundary to the reasoning engine that proposes
// commands and may judge completion, plus two implementations: a scripted
// stand-in for deterministic runs and an OpenAI-compatible chat client.
package planner

import (
	"context"

	cerr "github.com/cockroachdb/errors"
	"github.com/computerscienceiscool/llm-troubleshooter/pkg/model"
)

// ErrScriptExhausted is returned when a scripted planner has no batches left.
var ErrScriptExhausted = cerr.New("scripted planner has no more actions")

// Request is everything a planner sees for one decision.
type Request struct {
	Problem     string
	History     []model.Step
	Diagnostics string
	Iteration   int
}

// Planner proposes the next command(s).
type Planner interface {
	Propose(ctx context.Context, req Request) ([]model.PlannedAction, error)
}

// Verifier judges whether the problem is resolved.
type Verifier interface {
	Verify(ctx context.Context, req Request) (model.Verdict, error)
}
