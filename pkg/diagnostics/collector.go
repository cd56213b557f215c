// Package diagnostics gathers a fixed battery of read-only inspection
// commands into a durable, timestamped, append-only log.
package diagnostics

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"time"

	cerr "github.com/cockroachdb/errors"
	apperrors "github.com/computerscienceiscool/llm-troubleshooter/internal/errors"
	"github.com/computerscienceiscool/llm-troubleshooter/pkg/logging"
	"github.com/computerscienceiscool/llm-troubleshooter/pkg/shell"
	"github.com/computerscienceiscool/llm-troubleshooter/pkg/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// DefaultProbeTimeout bounds each inspection command.
const DefaultProbeTimeout = 30 * time.Second

// Collector runs inspection batteries and writes them to a log file.
type Collector struct {
	backend   shell.Backend
	resolver  shell.Resolver
	catalog   Catalog
	timeout   time.Duration
	outputDir string
	logger    *zap.Logger
	now       func() time.Time
}

// Option customises a Collector.
type Option func(*Collector)

// WithCatalog replaces the standard batteries.
func WithCatalog(c Catalog) Option {
	return func(col *Collector) { col.catalog = c }
}

// WithTimeout sets the per-command timeout.
func WithTimeout(d time.Duration) Option {
	return func(col *Collector) {
		if d > 0 {
			col.timeout = d
		}
	}
}

// WithOutputDir sets the directory for auto-generated log paths.
func WithOutputDir(dir string) Option {
	return func(col *Collector) { col.outputDir = dir }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(col *Collector) { col.now = now }
}

// NewCollector creates a collector. Commands run through backend. When the
// backend is a shell.Resolver the leading program of each probe is resolved
// through it first; otherwise probes run directly and the shell reports
// missing programs.
func NewCollector(backend shell.Backend, logger *zap.Logger, opts ...Option) *Collector {
	resolver, _ := backend.(shell.Resolver)
	c := &Collector{
		backend:  backend,
		resolver: resolver,
		timeout:  DefaultProbeTimeout,
		logger:   logging.OrNop(logger),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.catalog.batteries == nil {
		c.catalog = BuildCatalog(c.resolver)
	}
	return c
}

// Collect runs every probe of the requested sections (all when empty) and
// appends each record to dest, or to a fresh timestamped path when dest is
// empty.
//
// Command failures never fail collection. A write failure returns the
// records gathered so far with an error marked ErrPersistence. Cancelling
// ctx stops collection between commands and returns the partial log with
// the context error.
func (c *Collector) Collect(ctx context.Context, sections []Section, dest string) (*Log, error) {
	if len(sections) == 0 {
		sections = append([]Section(nil), AllSections...)
	} else {
		sections = append([]Section(nil), sections...)
		sortSections(sections)
	}

	created := c.now()
	if dest == "" {
		dest = DefaultPath(c.outputDir, created)
	}

	ctx, span := telemetry.Start(ctx, "diagnostics.Collect",
		attribute.Int("sections", len(sections)))
	defer span.End()

	log := &Log{
		CreatedAt: created,
		Host:      hostname(),
		Sections:  sections,
	}

	w, err := createLogFile(dest)
	if err != nil {
		span.RecordError(err)
		return log, apperrors.Persistence(err, "cannot persist diagnostics to %s", dest)
	}
	log.Path = w.path
	c.logger.Info("Collecting diagnostics",
		zap.String("path", log.Path),
		zap.Int("sections", len(sections)))

	if err := w.writeHeader(log); err != nil {
		_ = w.Close()
		return log, apperrors.Persistence(err, "cannot write diagnostics header to %s", log.Path)
	}

	for _, section := range sections {
		probes := c.catalog.Probes(section)
		if len(probes) == 0 {
			if err := w.writeEmptySection(section); err != nil {
				_ = w.Close()
				return log, apperrors.Persistence(err, "cannot write to %s", log.Path)
			}
			continue
		}
		for _, probe := range probes {
			if ctxErr := ctx.Err(); ctxErr != nil {
				c.logger.Warn("Diagnostics collection interrupted",
					zap.String("path", log.Path),
					zap.Int("records", len(log.Records)))
				if err := w.Close(); err != nil {
					return log, apperrors.Persistence(err, "cannot close %s", log.Path)
				}
				return log, cerr.Wrap(ctxErr, "diagnostics collection interrupted")
			}

			rec := c.RunCommand(ctx, section, probe)
			log.Records = append(log.Records, rec)
			if err := w.writeRecord(rec); err != nil {
				_ = w.Close()
				return log, apperrors.Persistence(err, "cannot append record to %s", log.Path)
			}
		}
	}

	if err := w.Close(); err != nil {
		return log, apperrors.Persistence(err, "cannot close %s", log.Path)
	}
	c.logger.Info("Diagnostics collected",
		zap.String("path", log.Path),
		zap.Int("records", len(log.Records)))
	return log, nil
}

// RunCommand runs one probe. It never fails: a missing executable, a
// non-zero exit or a timeout are recorded as field values. The probe is
// not interrupted by ctx cancellation; only its own timeout bounds it.
func (c *Collector) RunCommand(ctx context.Context, section Section, probe Probe) Record {
	rec := Record{
		Command:     probe.Command,
		Description: probe.Description,
		Section:     section,
		Timestamp:   c.now(),
	}
	if rec.Description == "" {
		rec.Description = probe.Command
	}

	if program := probe.program(); program != "" && c.resolver != nil {
		if _, ok := c.resolver.LookPath(program); !ok {
			rec.ExitCode = shell.ExitNotFound
			rec.Stderr = fmt.Sprintf("executable %q not found on backend %s", program, c.backend.Name())
			c.logger.Debug("Probe skipped, executable missing",
				zap.String("command", probe.Command),
				zap.String("program", program))
			return rec
		}
	}

	out := c.backend.Run(context.WithoutCancel(ctx), probe.Command, c.timeout)
	rec.ExitCode = out.ExitCode
	rec.Stdout = out.Stdout
	rec.Stderr = out.Stderr
	rec.Duration = out.Duration
	rec.TimedOut = out.TimedOut
	if !out.StartedAt.IsZero() {
		rec.Timestamp = out.StartedAt
	}

	c.logger.Debug("Probe finished",
		zap.String("section", string(section)),
		zap.String("command", probe.Command),
		zap.Int("exit_code", rec.ExitCode),
		zap.Duration("duration", rec.Duration))
	return rec
}

func hostname() string {
	return readHostname("/etc/hostname")
}

// readHostname prefers the name in file and falls back to the kernel's.
func readHostname(file string) string {
	if data, err := os.ReadFile(file); err == nil {
		if h := string(bytes.TrimRight(data, "\r\n ")); h != "" {
			return h
		}
	}
	if h, err := os.Hostname(); err == nil {
		return h
	}
	return "unknown"
}
