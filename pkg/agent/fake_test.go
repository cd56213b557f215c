package agent

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/computerscienceiscool/llm-troubleshooter/pkg/model"
	"github.com/computerscienceiscool/llm-troubleshooter/pkg/planner"
	"github.com/computerscienceiscool/llm-troubleshooter/pkg/shell"
)

// fakeBackend answers commands from a table; unknown commands exit 0 with
// no output.
type fakeBackend struct {
	mu        sync.Mutex
	outcomes  map[string]shell.Outcome
	calls     []string
	ctxErrs   []error
	timeouts  []time.Duration
	onCommand func(cmd string)
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{outcomes: make(map[string]shell.Outcome)}
}

func (f *fakeBackend) Name() string { return "fake" }

func (f *fakeBackend) Run(ctx context.Context, command string, timeout time.Duration) shell.Outcome {
	f.mu.Lock()
	f.calls = append(f.calls, command)
	f.timeouts = append(f.timeouts, timeout)
	hook := f.onCommand
	f.mu.Unlock()

	if hook != nil {
		hook(command)
	}

	f.mu.Lock()
	f.ctxErrs = append(f.ctxErrs, ctx.Err())
	out, ok := f.outcomes[command]
	f.mu.Unlock()
	if !ok {
		out = shell.Outcome{}
	}
	out.StartedAt = time.Now()
	return out
}

func (f *fakeBackend) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

// endlessPlanner always proposes the same read-only command and records
// the iteration numbers it was asked for.
type endlessPlanner struct {
	iterations []int
}

func (p *endlessPlanner) Propose(ctx context.Context, req planner.Request) ([]model.PlannedAction, error) {
	p.iterations = append(p.iterations, req.Iteration)
	return []model.PlannedAction{{Command: "uptime"}}, nil
}

// oraclePlanner proposes a fixed batch and answers Verify from a queue.
type oraclePlanner struct {
	batch    []model.PlannedAction
	verdicts []model.Verdict
	err      error
	requests []planner.Request
}

func (p *oraclePlanner) Propose(ctx context.Context, req planner.Request) ([]model.PlannedAction, error) {
	return p.batch, nil
}

func (p *oraclePlanner) Verify(ctx context.Context, req planner.Request) (model.Verdict, error) {
	p.requests = append(p.requests, req)
	if p.err != nil {
		return model.Verdict{}, p.err
	}
	if len(p.verdicts) == 0 {
		return model.Verdict{Decision: model.DecisionContinue}, nil
	}
	v := p.verdicts[0]
	p.verdicts = p.verdicts[1:]
	return v, nil
}

func containsLine(text, want string) bool {
	for _, ln := range strings.Split(text, "\n") {
		if strings.Contains(ln, want) {
			return true
		}
	}
	return false
}
