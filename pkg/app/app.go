// Package app wires configuration, logging, the command backend, the
// collector and the planner into the three top-level operations.
package app

import (
	"context"
	"io"
	"strings"

	cerr "github.com/cockroachdb/errors"
	ierrors "github.com/computerscienceiscool/llm-troubleshooter/internal/errors"
	"github.com/computerscienceiscool/llm-troubleshooter/pkg/agent"
	"github.com/computerscienceiscool/llm-troubleshooter/pkg/config"
	"github.com/computerscienceiscool/llm-troubleshooter/pkg/diagnostics"
	"github.com/computerscienceiscool/llm-troubleshooter/pkg/envsafe"
	"github.com/computerscienceiscool/llm-troubleshooter/pkg/journal"
	"github.com/computerscienceiscool/llm-troubleshooter/pkg/planner"
	"github.com/computerscienceiscool/llm-troubleshooter/pkg/scenario"
	"github.com/computerscienceiscool/llm-troubleshooter/pkg/shell"
	"github.com/computerscienceiscool/llm-troubleshooter/pkg/telemetry"
	"go.uber.org/zap"
)

// App represents the main application
type App struct {
	config    *config.Config
	logger    *zap.Logger
	path      *envsafe.SearchPath
	backend   shell.Backend
	collector *diagnostics.Collector
	planner   planner.Planner
	sessionID string
	shutdown  telemetry.Shutdown
	closers   []io.Closer
}

// Collect runs one diagnostics collection. An empty dest picks a fresh
// timestamped path in the configured output directory.
func (a *App) Collect(ctx context.Context, sections []diagnostics.Section, dest string) (*diagnostics.Log, error) {
	if len(sections) == 0 {
		sections = a.config.Diagnostics.Sections
	}
	return a.collector.Collect(ctx, sections, dest)
}

// Fix runs the troubleshooting loop for problem. The returned state is
// always terminal.
func (a *App) Fix(ctx context.Context, problem string) (*agent.LoopState, error) {
	problem = strings.TrimSpace(problem)
	if problem == "" {
		return nil, cerr.Mark(cerr.New("a problem description is required"), ierrors.ErrConfig)
	}

	cfg := a.config.Agent
	var j *journal.Journal
	if cfg.JournalPath != "" {
		var err error
		if j, err = journal.Open(cfg.JournalPath, a.sessionID); err != nil {
			a.logger.Warn("Session journal disabled", zap.String("path", cfg.JournalPath), zap.Error(err))
			j = nil
		}
	}

	runner := agent.NewRunner(a.backend,
		agent.WithExecTimeout(cfg.ExecTimeout),
		agent.WithSafeMode(cfg.SafeMode),
		agent.WithJournal(j),
		agent.WithRunnerLogger(a.logger))

	loop := agent.NewLoop(a.planner, runner,
		agent.WithDiagnostics(a.collector),
		agent.WithLoopJournal(j),
		agent.WithLoopLogger(a.logger),
		agent.WithSessionID(a.sessionID),
		agent.WithOptions(agent.Options{
			MaxIterations:  cfg.MaxIterations,
			CollectFirst:   cfg.CollectFirst,
			FirstSections:  a.config.Diagnostics.Sections,
			VerifySections: cfg.VerifySections,
		}))

	a.logger.Info("Starting session",
		zap.String("problem", problem),
		zap.String("backend", a.backend.Name()),
		zap.Bool("safe_mode", cfg.SafeMode))

	state := loop.Run(ctx, problem)

	a.logger.Info("Session finished",
		zap.String("status", string(state.Status)),
		zap.String("cause", state.Cause),
		zap.Int("iterations", state.Iteration),
		zap.Int("commands", runner.CommandsRun()))
	return state, nil
}

// Scenarios replays the built-in scenario catalogue, or only the named
// cases when names is non-empty.
func (a *App) Scenarios(ctx context.Context, names []string) (scenario.Report, error) {
	cases, err := scenario.Builtin()
	if err != nil {
		return scenario.Report{}, err
	}
	if cases, err = selectCases(cases, names); err != nil {
		return scenario.Report{}, err
	}

	h := scenario.NewHarness(cases,
		scenario.WithMaxIterations(a.config.Agent.MaxIterations),
		scenario.WithLogger(a.logger))
	return h.Run(ctx), nil
}

func selectCases(cases []scenario.Case, names []string) ([]scenario.Case, error) {
	if len(names) == 0 {
		return cases, nil
	}
	byName := make(map[string]scenario.Case, len(cases))
	for _, c := range cases {
		byName[c.Name] = c
	}
	selected := make([]scenario.Case, 0, len(names))
	for _, name := range names {
		c, ok := byName[name]
		if !ok {
			return nil, cerr.Mark(cerr.Newf("unknown scenario %q", name), ierrors.ErrConfig)
		}
		selected = append(selected, c)
	}
	return selected, nil
}

// Close flushes telemetry and releases the backend and any open files.
func (a *App) Close() error {
	var err error
	if a.shutdown != nil {
		err = cerr.CombineErrors(err, a.shutdown(context.Background()))
		a.shutdown = nil
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		err = cerr.CombineErrors(err, a.closers[i].Close())
	}
	a.closers = nil
	if a.logger != nil {
		_ = a.logger.Sync()
	}
	return err
}

// Config returns the app's configuration
func (a *App) Config() *config.Config {
	return a.config
}

// SessionID returns the identifier stamped on logs and the journal.
func (a *App) SessionID() string {
	return a.sessionID
}

// Logger returns the app's logger
func (a *App) Logger() *zap.Logger {
	return a.logger
}

// Backend returns the command backend.
func (a *App) Backend() shell.Backend {
	return a.backend
}
