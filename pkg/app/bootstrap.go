package app

import (
	"io"
	"os"
	"path/filepath"

	cerr "github.com/cockroachdb/errors"
	ierrors "github.com/computerscienceiscool/llm-troubleshooter/internal/errors"
	"github.com/computerscienceiscool/llm-troubleshooter/pkg/config"
	"github.com/computerscienceiscool/llm-troubleshooter/pkg/diagnostics"
	"github.com/computerscienceiscool/llm-troubleshooter/pkg/envsafe"
	"github.com/computerscienceiscool/llm-troubleshooter/pkg/logging"
	"github.com/computerscienceiscool/llm-troubleshooter/pkg/planner"
	"github.com/computerscienceiscool/llm-troubleshooter/pkg/shell"
	"github.com/computerscienceiscool/llm-troubleshooter/pkg/telemetry"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ServiceName identifies the process in logs and spans.
const ServiceName = "llm-troubleshooter"

// Option overrides a component Bootstrap would otherwise build.
type Option func(*App)

// WithLogger uses l instead of building a logger from the config.
func WithLogger(l *zap.Logger) Option {
	return func(a *App) { a.logger = l }
}

// WithBackend replaces the command backend.
func WithBackend(b shell.Backend) Option {
	return func(a *App) { a.backend = b }
}

// WithPlanner replaces the chat planner.
func WithPlanner(p planner.Planner) Option {
	return func(a *App) { a.planner = p }
}

// WithSearchPath replaces the sanitized search path.
func WithSearchPath(sp *envsafe.SearchPath) Option {
	return func(a *App) { a.path = sp }
}

// Bootstrap initializes and returns a configured App
func Bootstrap(cfg *config.Config, opts ...Option) (*App, error) {
	if cfg == nil {
		return nil, cerr.New("configuration is required")
	}

	a := &App{
		config:    cfg,
		sessionID: uuid.NewString(),
	}
	for _, opt := range opts {
		opt(a)
	}

	if a.logger == nil {
		logger, err := logging.New(logging.Options{
			Level:  cfg.Logging.Level,
			Format: cfg.Logging.Format,
			File:   cfg.Logging.File,
		})
		if err != nil {
			return nil, cerr.Mark(err, ierrors.ErrConfig)
		}
		a.logger = logger
	}
	a.logger = a.logger.With(zap.String("session", a.sessionID))

	if err := a.initTelemetry(); err != nil {
		a.Close()
		return nil, err
	}

	// Sanitize once; everything downstream shares the same search path.
	if a.path == nil {
		a.path = envsafe.Sanitize()
	}

	if a.backend == nil {
		backend, err := newBackend(cfg.Agent.Container, a.path)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.backend = backend
	}
	if c, ok := a.backend.(io.Closer); ok {
		a.closers = append(a.closers, c)
	}

	a.collector = diagnostics.NewCollector(a.backend, a.logger,
		diagnostics.WithOutputDir(cfg.Diagnostics.OutputDir),
		diagnostics.WithTimeout(cfg.Diagnostics.Timeout))

	if a.planner == nil {
		p, err := planner.NewChatClient(planner.ChatConfig{
			BaseURL:           cfg.Planner.BaseURL,
			APIKey:            cfg.Planner.APIKey,
			Model:             cfg.Planner.Model,
			Temperature:       cfg.Planner.Temperature,
			Timeout:           cfg.Planner.Timeout,
			MaxRetries:        cfg.Planner.MaxRetries,
			RetryDelay:        cfg.Planner.RetryDelay,
			RequestsPerMinute: cfg.Planner.RequestsPerMinute,
		}, a.logger)
		if err != nil {
			a.Close()
			return nil, cerr.Mark(err, ierrors.ErrConfig)
		}
		a.planner = p
	}

	a.logger.Debug("Bootstrap complete",
		zap.String("backend", a.backend.Name()),
		zap.String("path", a.path.String()),
		zap.Int("max_iterations", cfg.Agent.MaxIterations))
	return a, nil
}

func (a *App) initTelemetry() error {
	var w io.Writer
	if a.config.Telemetry.Enabled {
		w = os.Stderr
		if file := a.config.Telemetry.File; file != "" {
			if dir := filepath.Dir(file); dir != "." {
				if err := os.MkdirAll(dir, 0755); err != nil {
					return ierrors.Persistence(err, "cannot create telemetry directory %s", dir)
				}
			}
			f, err := os.OpenFile(file, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
			if err != nil {
				return ierrors.Persistence(err, "cannot open telemetry file %s", file)
			}
			a.closers = append(a.closers, f)
			w = f
		}
	}

	shutdown, err := telemetry.Init(ServiceName, w)
	if err != nil {
		return err
	}
	a.shutdown = shutdown
	return nil
}

func newBackend(container string, sp *envsafe.SearchPath) (shell.Backend, error) {
	if container == "" {
		return shell.NewLocalBackend(sp), nil
	}
	backend, err := shell.NewContainerBackend(container, sp)
	if err != nil {
		return nil, cerr.Wrapf(err, "cannot run commands in container %q", container)
	}
	return backend, nil
}
