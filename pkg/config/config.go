// Package config holds the troubleshooter configuration and loads it from
// viper (defaults, config file, TROUBLESHOOTER_* environment and flags).
package config

import (
	"strings"
	"time"

	ierrors "github.com/computerscienceiscool/llm-troubleshooter/internal/errors"
	"github.com/computerscienceiscool/llm-troubleshooter/pkg/diagnostics"
	"github.com/spf13/viper"
)

// Config is the full runtime configuration.
type Config struct {
	Agent       AgentConfig
	Diagnostics DiagnosticsConfig
	Planner     PlannerConfig
	Logging     LoggingConfig
	Telemetry   TelemetryConfig
}

// AgentConfig tunes the plan/execute/verify loop.
type AgentConfig struct {
	MaxIterations  int
	ExecTimeout    time.Duration
	SafeMode       bool
	CollectFirst   bool
	VerifySections []diagnostics.Section
	Container      string // run commands inside this container instead of locally
	JournalPath    string
}

// DiagnosticsConfig configures the collector.
type DiagnosticsConfig struct {
	OutputDir string
	Sections  []diagnostics.Section
	Timeout   time.Duration
}

// PlannerConfig points at an OpenAI-compatible endpoint.
type PlannerConfig struct {
	BaseURL           string
	APIKey            string
	Model             string
	Temperature       float64
	Timeout           time.Duration
	MaxRetries        int
	RetryDelay        time.Duration
	RequestsPerMinute int
}

type LoggingConfig struct {
	Level  string
	Format string
	File   string
}

type TelemetryConfig struct {
	Enabled bool
	File    string // empty means stderr
}

// Load builds a Config from v and validates it.
func Load(v *viper.Viper) (*Config, error) {
	var verify []diagnostics.Section
	if names := List(v, "agent.verify_sections"); len(names) > 0 {
		var err error
		if verify, err = diagnostics.ParseSections(names); err != nil {
			return nil, err
		}
	}
	sections, err := diagnostics.ParseSections(List(v, "diagnostics.sections"))
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Agent: AgentConfig{
			MaxIterations:  v.GetInt("agent.max_iterations"),
			ExecTimeout:    v.GetDuration("agent.exec_timeout"),
			SafeMode:       v.GetBool("agent.safe_mode"),
			CollectFirst:   v.GetBool("agent.collect_first"),
			VerifySections: verify,
			Container:      v.GetString("agent.container"),
			JournalPath:    v.GetString("agent.journal_path"),
		},
		Diagnostics: DiagnosticsConfig{
			OutputDir: v.GetString("diagnostics.output_dir"),
			Sections:  sections,
			Timeout:   v.GetDuration("diagnostics.timeout"),
		},
		Planner: PlannerConfig{
			BaseURL:           v.GetString("planner.base_url"),
			APIKey:            v.GetString("planner.api_key"),
			Model:             v.GetString("planner.model"),
			Temperature:       v.GetFloat64("planner.temperature"),
			Timeout:           v.GetDuration("planner.timeout"),
			MaxRetries:        v.GetInt("planner.max_retries"),
			RetryDelay:        v.GetDuration("planner.retry_delay"),
			RequestsPerMinute: v.GetInt("planner.requests_per_minute"),
		},
		Logging: LoggingConfig{
			Level:  v.GetString("logging.level"),
			Format: v.GetString("logging.format"),
			File:   v.GetString("logging.file"),
		},
		Telemetry: TelemetryConfig{
			Enabled: v.GetBool("telemetry.enabled"),
			File:    v.GetString("telemetry.file"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// List reads key as a list, accepting comma separated values from the
// environment or a single flag.
func List(v *viper.Viper, key string) []string {
	var out []string
	for _, item := range v.GetStringSlice(key) {
		for _, part := range strings.Split(item, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

// Validate checks value ranges.
func (c *Config) Validate() error {
	switch {
	case c.Agent.MaxIterations <= 0:
		return &ierrors.ConfigError{Field: "agent.max_iterations", Value: c.Agent.MaxIterations, Err: ierrors.ErrConfig}
	case c.Agent.ExecTimeout <= 0:
		return &ierrors.ConfigError{Field: "agent.exec_timeout", Value: c.Agent.ExecTimeout, Err: ierrors.ErrConfig}
	case c.Diagnostics.Timeout <= 0:
		return &ierrors.ConfigError{Field: "diagnostics.timeout", Value: c.Diagnostics.Timeout, Err: ierrors.ErrConfig}
	case c.Logging.Format != "console" && c.Logging.Format != "json":
		return &ierrors.ConfigError{Field: "logging.format", Value: c.Logging.Format, Err: ierrors.ErrConfig}
	}
	return nil
}
