package agent

import (
	"context"
	"fmt"
	"time"

	cerr "github.com/cockroachdb/errors"
	"github.com/computerscienceiscool/llm-troubleshooter/pkg/diagnostics"
	"github.com/computerscienceiscool/llm-troubleshooter/pkg/journal"
	"github.com/computerscienceiscool/llm-troubleshooter/pkg/logging"
	"github.com/computerscienceiscool/llm-troubleshooter/pkg/model"
	"github.com/computerscienceiscool/llm-troubleshooter/pkg/planner"
	"github.com/computerscienceiscool/llm-troubleshooter/pkg/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// DefaultMaxIterations caps plan/execute/verify passes.
const DefaultMaxIterations = 8

// digestStreamBytes bounds each diagnostics stream handed to the planner.
const digestStreamBytes = 2000

// DiagnosticsSource gathers a diagnostics snapshot.
type DiagnosticsSource interface {
	Collect(ctx context.Context, sections []diagnostics.Section, dest string) (*diagnostics.Log, error)
}

// Options tunes the loop.
type Options struct {
	MaxIterations  int
	CollectFirst   bool
	FirstSections  []diagnostics.Section
	VerifySections []diagnostics.Section
}

// Loop alternates planning, execution and verification until a terminal
// verdict.
type Loop struct {
	planner   planner.Planner
	runner    *Runner
	verifier  *CompletionVerifier
	diag      DiagnosticsSource
	journal   *journal.Journal
	logger    *zap.Logger
	opts      Options
	sessionID string
	now       func() time.Time
}

// LoopOption configures a Loop.
type LoopOption func(*Loop)

// WithDiagnostics enables up-front and verification-time collection.
func WithDiagnostics(src DiagnosticsSource) LoopOption {
	return func(l *Loop) { l.diag = src }
}

// WithLoopJournal sets the journal the loop writes to and closes when done.
func WithLoopJournal(j *journal.Journal) LoopOption {
	return func(l *Loop) { l.journal = j }
}

// WithLoopLogger sets the logger.
func WithLoopLogger(lg *zap.Logger) LoopOption {
	return func(l *Loop) { l.logger = logging.OrNop(lg) }
}

// WithSessionID stamps the state with id.
func WithSessionID(id string) LoopOption {
	return func(l *Loop) { l.sessionID = id }
}

// WithOptions sets the loop options.
func WithOptions(o Options) LoopOption {
	return func(l *Loop) { l.opts = o }
}

// NewLoop builds a loop around p and r.
func NewLoop(p planner.Planner, r *Runner, opts ...LoopOption) *Loop {
	l := &Loop{
		planner:  p,
		runner:   r,
		verifier: NewVerifier(p),
		logger:   zap.NewNop(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.opts.MaxIterations <= 0 {
		l.opts.MaxIterations = DefaultMaxIterations
	}
	return l
}

// Run drives one session for problem and returns its final state. It never
// returns a non-terminal state.
func (l *Loop) Run(ctx context.Context, problem string) *LoopState {
	state := newLoopState(l.sessionID, problem, l.now())
	l.record(journal.EventStart, "", true, problem)

	defer func() {
		state.Summary = RenderSummary(state)
		l.record(journal.EventOutcome, "", state.Status == StatusComplete, outcomeDetail(state))
		if err := l.journal.Close(); err != nil {
			l.logger.Warn("Could not close journal", zap.Error(err))
		}
	}()

	var snapshot string
	if l.opts.CollectFirst {
		snapshot = l.collect(ctx, l.opts.FirstSections)
	}

	for {
		if ctx.Err() != nil {
			l.abort(state)
			return state
		}
		if state.Iteration >= l.opts.MaxIterations {
			l.fail(state, CauseIterationLimit)
			return state
		}
		state.Iteration++
		if done := l.pass(ctx, state, &snapshot); done {
			return state
		}
	}
}

// pass runs one plan/execute/verify round and reports whether the state
// became terminal.
func (l *Loop) pass(ctx context.Context, state *LoopState, snapshot *string) bool {
	ctx, span := telemetry.Start(ctx, "agent.iteration", attribute.Int("iteration", state.Iteration))
	defer span.End()

	state.Phase = PhasePlanning
	l.logger.Info("Planning", zap.Int("iteration", state.Iteration))
	actions, err := l.planner.Propose(ctx, planner.Request{
		Problem:     state.Problem,
		History:     state.History,
		Diagnostics: *snapshot,
		Iteration:   state.Iteration,
	})
	if ctx.Err() != nil {
		l.abort(state)
		return true
	}
	if err != nil || len(actions) == 0 {
		if err == nil {
			err = cerr.New("planner proposed no actions")
		}
		l.logger.Error("Planner failed", zap.Error(err))
		l.record(journal.EventPlan, "", false, err.Error())
		l.fail(state, CausePlannerUnavailable)
		return true
	}
	l.record(journal.EventPlan, "", true, fmt.Sprintf("%d action(s)", len(actions)))

	state.Phase = PhaseExecuting
	for _, action := range actions {
		if ctx.Err() != nil {
			l.abort(state)
			return true
		}
		result := l.runner.Run(ctx, action)
		state.append(model.Step{Action: action, Result: result})
	}

	if ctx.Err() != nil {
		l.abort(state)
		return true
	}

	state.Phase = PhaseVerifying
	if len(l.opts.VerifySections) > 0 {
		*snapshot = l.collect(ctx, l.opts.VerifySections)
	}
	verdict, err := l.verifier.Verify(ctx, state.Problem, state.History, *snapshot)
	if ctx.Err() != nil {
		l.abort(state)
		return true
	}
	if err != nil {
		l.logger.Error("Verification failed", zap.Error(err))
		l.record(journal.EventVerify, "", false, err.Error())
		l.fail(state, CausePlannerUnavailable)
		return true
	}
	l.record(journal.EventVerify, "", verdict.Decision == model.DecisionComplete, string(verdict.Decision)+": "+verdict.Reason)

	switch verdict.Decision {
	case model.DecisionComplete:
		state.Resolution = verdict.Summary
		state.finish(StatusComplete, "", l.now())
		l.logger.Info("Problem resolved", zap.Int("iteration", state.Iteration), zap.String("summary", verdict.Summary))
		return true
	case model.DecisionFailed:
		cause := verdict.Reason
		if cause == "" {
			cause = CausePlannerGaveUp
		}
		l.fail(state, cause)
		return true
	}
	return false
}

func (l *Loop) collect(ctx context.Context, sections []diagnostics.Section) string {
	if l.diag == nil || ctx.Err() != nil {
		return ""
	}
	log, err := l.diag.Collect(ctx, sections, "")
	if err != nil {
		l.logger.Warn("Diagnostics collection incomplete", zap.Error(err))
	}
	if log == nil {
		return ""
	}
	return log.Digest(digestStreamBytes)
}

func (l *Loop) fail(state *LoopState, cause string) {
	if state.finish(StatusFailed, cause, l.now()) {
		l.logger.Warn("Session failed", zap.String("cause", cause), zap.Int("iteration", state.Iteration))
	}
}

func (l *Loop) abort(state *LoopState) {
	if state.finish(StatusAborted, CauseInterrupted, l.now()) {
		l.logger.Warn("Session interrupted", zap.Int("iteration", state.Iteration))
	}
}

func (l *Loop) record(event, command string, success bool, detail string) {
	if err := l.journal.Record(event, command, success, detail); err != nil {
		l.logger.Warn("Journal write failed", zap.Error(err))
	}
}

func outcomeDetail(s *LoopState) string {
	if s.Cause == "" {
		return string(s.Status)
	}
	return fmt.Sprintf("%s: %s", s.Status, s.Cause)
}
