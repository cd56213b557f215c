package scenario

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/computerscienceiscool/llm-troubleshooter/pkg/agent"
	"github.com/computerscienceiscool/llm-troubleshooter/pkg/logging"
	"github.com/computerscienceiscool/llm-troubleshooter/pkg/planner"
	"github.com/computerscienceiscool/llm-troubleshooter/pkg/shell"
	"go.uber.org/zap"
)

// CaseResult is the outcome of one scenario.
type CaseResult struct {
	Name       string
	Passed     bool
	Status     agent.Status
	Cause      string
	Iterations int
	Reason     string
	Commands   []string
	Duration   time.Duration
}

// Report collects per-case results.
type Report struct {
	Results []CaseResult
}

// Passed is true only when every case ran and passed.
func (r Report) Passed() bool {
	if len(r.Results) == 0 {
		return false
	}
	for _, res := range r.Results {
		if !res.Passed {
			return false
		}
	}
	return true
}

// Failed returns the failing results.
func (r Report) Failed() []CaseResult {
	var out []CaseResult
	for _, res := range r.Results {
		if !res.Passed {
			out = append(out, res)
		}
	}
	return out
}

// Harness replays cases through the agent loop.
type Harness struct {
	cases         []Case
	newHost       func() shell.Backend
	maxIterations int
	logger        *zap.Logger
}

// Option configures a Harness.
type Option func(*Harness)

// WithHostFactory replaces the simulated host.
func WithHostFactory(f func() shell.Backend) Option {
	return func(h *Harness) { h.newHost = f }
}

// WithMaxIterations sets the loop cap for every case.
func WithMaxIterations(n int) Option {
	return func(h *Harness) {
		if n > 0 {
			h.maxIterations = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(h *Harness) { h.logger = logging.OrNop(l) }
}

// NewHarness creates a harness over cases.
func NewHarness(cases []Case, opts ...Option) *Harness {
	h := &Harness{
		cases:         cases,
		newHost:       func() shell.Backend { return NewSimHost() },
		maxIterations: agent.DefaultMaxIterations,
		logger:        zap.NewNop(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Run executes every case in order. Cancelling ctx marks the remaining
// cases as failed without running them.
func (h *Harness) Run(ctx context.Context) Report {
	var report Report
	for _, c := range h.cases {
		if ctx.Err() != nil {
			report.Results = append(report.Results, CaseResult{Name: c.Name, Status: agent.StatusAborted, Reason: "interrupted"})
			continue
		}
		report.Results = append(report.Results, h.RunCase(ctx, c))
	}
	return report
}

// RunCase runs a single case on a fresh host.
func (h *Harness) RunCase(ctx context.Context, c Case) (res CaseResult) {
	start := time.Now()
	res = CaseResult{Name: c.Name}
	host := h.newHost()
	logger := h.logger.With(zap.String("scenario", c.Name))

	defer func() {
		for _, cmd := range c.Teardown {
			if out := host.Run(context.WithoutCancel(ctx), cmd, shell.DefaultTimeout); !out.Succeeded() {
				logger.Warn("Teardown step failed", zap.String("command", cmd), zap.Int("exit_code", out.ExitCode))
			}
		}
		res.Duration = time.Since(start)
	}()

	for _, cmd := range c.Setup {
		out := host.Run(ctx, cmd, shell.DefaultTimeout)
		if !out.Succeeded() {
			res.Reason = fmt.Sprintf("setup %q exited %d: %s", cmd, out.ExitCode, strings.TrimSpace(out.Stderr))
			return res
		}
	}

	loop := agent.NewLoop(
		planner.NewScripted(c.Plan...),
		agent.NewRunner(host, agent.WithRunnerLogger(logger)),
		agent.WithLoopLogger(logger),
		agent.WithSessionID(c.Name),
		agent.WithOptions(agent.Options{MaxIterations: h.maxIterations}),
	)
	state := loop.Run(ctx, c.Problem)

	res.Status = state.Status
	res.Cause = state.Cause
	res.Iterations = state.Iteration
	for _, step := range state.History {
		res.Commands = append(res.Commands, step.Result.Command)
	}

	if state.Status != agent.StatusComplete {
		res.Reason = fmt.Sprintf("loop ended %s: %s", state.Status, state.Cause)
		return res
	}
	for _, step := range state.History {
		if step.Result.Succeeded() && c.Matches(step.Result.Command) {
			res.Passed = true
			return res
		}
	}
	res.Reason = fmt.Sprintf("no successful command matches %q", c.Signature)
	return res
}

// Line renders a result as a single PASS/FAIL line.
func (r CaseResult) Line() string {
	if r.Passed {
		return fmt.Sprintf("PASS %s (%d iteration(s), %s)", r.Name, r.Iterations, r.Duration.Round(time.Millisecond))
	}
	return fmt.Sprintf("FAIL %s: %s", r.Name, r.Reason)
}
