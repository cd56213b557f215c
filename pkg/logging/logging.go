package logging

import (
	"strings"

	cerr "github.com/cockroachdb/errors"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Options selects level, encoding and an optional log file.
type Options struct {
	Level  string // debug, info, warn, error
	Format string // console or json
	File   string // extra output path; empty for stderr only
}

// Config returns the zap configuration for opts. Output goes to stderr so
// that stdout stays reserved for summaries.
func Config(opts Options) (zap.Config, error) {
	level := zap.NewAtomicLevelAt(zap.InfoLevel)
	if opts.Level != "" {
		parsed, err := zap.ParseAtomicLevel(strings.ToLower(opts.Level))
		if err != nil {
			return zap.Config{}, cerr.Wrapf(err, "invalid log level %q", opts.Level)
		}
		level = parsed
	}

	encoding := "console"
	switch strings.ToLower(opts.Format) {
	case "", "console", "text":
	case "json":
		encoding = "json"
	default:
		return zap.Config{}, cerr.Newf("invalid log format %q", opts.Format)
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	if encoding == "console" {
		encCfg.EncodeLevel = zapcore.CapitalLevelEncoder
	}

	outputs := []string{"stderr"}
	if opts.File != "" {
		outputs = append(outputs, opts.File)
	}

	return zap.Config{
		Level:            level,
		Encoding:         encoding,
		EncoderConfig:    encCfg,
		OutputPaths:      outputs,
		ErrorOutputPaths: []string{"stderr"},
	}, nil
}

// New builds a logger, falling back to stderr-only output if the log file
// cannot be opened.
func New(opts Options) (*zap.Logger, error) {
	cfg, err := Config(opts)
	if err != nil {
		return nil, err
	}
	logger, err := cfg.Build()
	if err != nil && opts.File != "" {
		cfg.OutputPaths = []string{"stderr"}
		logger, err = cfg.Build()
		if err == nil {
			logger.Warn("Log file unavailable, logging to stderr only", zap.String("file", opts.File))
		}
	}
	if err != nil {
		return nil, cerr.Wrap(err, "failed to build logger")
	}
	return logger, nil
}

// OrNop returns l, or a no-op logger when l is nil.
func OrNop(l *zap.Logger) *zap.Logger {
	if l == nil {
		return zap.NewNop()
	}
	return l
}
