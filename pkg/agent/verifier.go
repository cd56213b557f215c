package agent

import (
	"context"
	"fmt"
	"strings"

	ierrors "github.com/computerscienceiscool/llm-troubleshooter/internal/errors"
	"github.com/computerscienceiscool/llm-troubleshooter/pkg/model"
	"github.com/computerscienceiscool/llm-troubleshooter/pkg/planner"
)

// CompletionVerifier decides after each round whether the session is done.
//
// The last action of a round may carry an expected signal; when it does,
// the round is complete only if that command exited 0 within its deadline
// and printed the signal. Without a signal the planner is asked, if it can
// judge completion. Otherwise the loop keeps going until the iteration cap.
type CompletionVerifier struct {
	oracle planner.Verifier
}

// NewVerifier uses p as oracle when it implements planner.Verifier.
func NewVerifier(p planner.Planner) *CompletionVerifier {
	v := &CompletionVerifier{}
	if oracle, ok := p.(planner.Verifier); ok {
		v.oracle = oracle
	}
	return v
}

// Verify judges the session from its history. diagnostics is an optional
// fresh snapshot handed to the oracle.
func (v *CompletionVerifier) Verify(ctx context.Context, problem string, history []model.Step, diagnostics string) (model.Verdict, error) {
	if len(history) == 0 {
		return model.Verdict{Decision: model.DecisionContinue, Reason: "no commands executed"}, nil
	}

	last := history[len(history)-1]
	if signal := last.Action.ExpectSignal; signal != "" {
		return checkSignal(last, signal), nil
	}

	if v.oracle != nil {
		verdict, err := v.oracle.Verify(ctx, planner.Request{
			Problem:     problem,
			History:     history,
			Diagnostics: diagnostics,
		})
		if err != nil {
			return model.Verdict{}, ierrors.PlannerUnavailable(err)
		}
		return verdict, nil
	}

	return model.Verdict{Decision: model.DecisionContinue, Reason: "no completion signal"}, nil
}

func checkSignal(step model.Step, signal string) model.Verdict {
	r := step.Result
	switch {
	case r.Skipped:
		return model.Verdict{Decision: model.DecisionContinue, Reason: "check command was skipped: " + r.SkipReason}
	case r.TimedOut:
		return model.Verdict{Decision: model.DecisionContinue, Reason: "check command timed out"}
	case r.ExitCode != 0:
		return model.Verdict{Decision: model.DecisionContinue, Reason: fmt.Sprintf("check command exited %d", r.ExitCode)}
	case !strings.Contains(r.Stdout+r.Stderr, signal):
		return model.Verdict{Decision: model.DecisionContinue, Reason: fmt.Sprintf("output does not contain %q", signal)}
	}
	return model.Verdict{
		Decision: model.DecisionComplete,
		Summary:  fmt.Sprintf("%q reported %q", r.Command, signal),
		Reason:   "expected signal observed",
	}
}
