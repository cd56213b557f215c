package config

import (
	"github.com/spf13/viper"
)

// SetViperDefaults sets all default configuration values on v
func SetViperDefaults(v *viper.Viper) {
	// Agent loop
	v.SetDefault("agent.max_iterations", DefaultMaxIterations)
	v.SetDefault("agent.exec_timeout", DefaultExecTimeout)
	v.SetDefault("agent.safe_mode", false)
	v.SetDefault("agent.collect_first", false)
	v.SetDefault("agent.verify_sections", []string{})
	v.SetDefault("agent.container", "")
	v.SetDefault("agent.journal_path", DefaultJournalPath)

	// Diagnostics
	v.SetDefault("diagnostics.output_dir", DefaultDiagnosticsDir)
	v.SetDefault("diagnostics.sections", []string{})
	v.SetDefault("diagnostics.timeout", DefaultExecTimeout)

	// Planner
	v.SetDefault("planner.base_url", DefaultPlannerBaseURL)
	v.SetDefault("planner.model", DefaultPlannerModel)
	v.SetDefault("planner.temperature", DefaultPlannerTemperature)
	v.SetDefault("planner.timeout", DefaultPlannerTimeout)
	v.SetDefault("planner.max_retries", DefaultPlannerMaxRetries)
	v.SetDefault("planner.retry_delay", DefaultPlannerRetryDelay)
	v.SetDefault("planner.requests_per_minute", DefaultRequestsPerMinute)

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
	v.SetDefault("logging.file", "")

	// Telemetry
	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.file", "")
}
