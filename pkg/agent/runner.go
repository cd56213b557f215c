package agent

import (
	"context"
	"fmt"
	"time"

	"github.com/computerscienceiscool/llm-troubleshooter/pkg/journal"
	"github.com/computerscienceiscool/llm-troubleshooter/pkg/logging"
	"github.com/computerscienceiscool/llm-troubleshooter/pkg/model"
	"github.com/computerscienceiscool/llm-troubleshooter/pkg/shell"
	"github.com/computerscienceiscool/llm-troubleshooter/pkg/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// DefaultExecTimeout bounds a single command.
const DefaultExecTimeout = shell.DefaultTimeout

// Skip reasons
const (
	SkipPlaceholder = "unfilled placeholder"
	SkipRisky       = "refused in safe mode"
)

// Runner executes planned actions one at a time on a backend. It is not
// safe for concurrent use.
type Runner struct {
	backend  shell.Backend
	timeout  time.Duration
	safeMode bool
	journal  *journal.Journal
	logger   *zap.Logger

	seq         int
	commandsRun int
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithExecTimeout sets the per-command deadline.
func WithExecTimeout(d time.Duration) RunnerOption {
	return func(r *Runner) {
		if d > 0 {
			r.timeout = d
		}
	}
}

// WithSafeMode refuses risky commands.
func WithSafeMode(on bool) RunnerOption {
	return func(r *Runner) { r.safeMode = on }
}

// WithJournal records every step in j.
func WithJournal(j *journal.Journal) RunnerOption {
	return func(r *Runner) { r.journal = j }
}

// WithRunnerLogger sets the logger.
func WithRunnerLogger(l *zap.Logger) RunnerOption {
	return func(r *Runner) { r.logger = logging.OrNop(l) }
}

// NewRunner creates a runner on backend.
func NewRunner(backend shell.Backend, opts ...RunnerOption) *Runner {
	r := &Runner{
		backend: backend,
		timeout: DefaultExecTimeout,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run executes one action and always returns exactly one result. The
// command is detached from ctx cancellation so an interrupt lets it finish
// or time out rather than leaving it half-killed.
func (r *Runner) Run(ctx context.Context, action model.PlannedAction) model.ExecutionResult {
	r.seq++
	seq := r.seq

	cmd := NormalizeCommand(action.Command)
	result := model.ExecutionResult{
		Seq:       seq,
		Action:    action,
		Command:   cmd,
		StartedAt: time.Now(),
	}

	if reason := r.skipReason(cmd); reason != "" {
		result.Skipped = true
		result.SkipReason = reason
		result.ExitCode = shell.ExitSkipped
		r.logger.Warn("Skipping command", zap.Int("seq", seq), zap.String("command", cmd), zap.String("reason", reason))
		r.audit(result)
		return result
	}

	spanCtx, span := telemetry.Start(ctx, "agent.exec",
		attribute.Int("seq", seq),
		attribute.String("backend", r.backend.Name()),
		attribute.String("command", cmd))
	defer span.End()

	r.logger.Info("Executing command", zap.Int("seq", seq), zap.String("command", cmd))
	out := r.backend.Run(context.WithoutCancel(spanCtx), cmd, r.timeout)

	result.Stdout = out.Stdout
	result.Stderr = out.Stderr
	result.ExitCode = out.ExitCode
	result.TimedOut = out.TimedOut
	result.Duration = out.Duration
	if !out.StartedAt.IsZero() {
		result.StartedAt = out.StartedAt
	}
	span.SetAttributes(attribute.Int("exit_code", out.ExitCode), attribute.Bool("timed_out", out.TimedOut))

	r.logger.Debug("Command finished",
		zap.Int("seq", seq),
		zap.Int("exit_code", result.ExitCode),
		zap.Bool("timed_out", result.TimedOut),
		zap.Duration("duration", result.Duration))

	r.commandsRun++
	r.audit(result)
	return result
}

// CommandsRun returns how many commands were actually executed.
func (r *Runner) CommandsRun() int {
	return r.commandsRun
}

func (r *Runner) skipReason(cmd string) string {
	if HasPlaceholder(cmd) {
		return SkipPlaceholder
	}
	if r.safeMode && IsRisky(cmd) {
		return SkipRisky
	}
	return ""
}

func (r *Runner) audit(res model.ExecutionResult) {
	detail := fmt.Sprintf("exit %d", res.ExitCode)
	switch {
	case res.Skipped:
		detail = "skipped: " + res.SkipReason
	case res.TimedOut:
		detail = fmt.Sprintf("timed out after %s", r.timeout)
	}
	if err := r.journal.Record(journal.EventExec, res.Command, res.Succeeded(), detail); err != nil {
		r.logger.Warn("Journal write failed", zap.Error(err))
	}
}
