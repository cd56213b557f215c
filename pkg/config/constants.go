package config

import "time"

// Default values and limits for the troubleshooter
const (
	// Loop
	DefaultMaxIterations = 8
	DefaultExecTimeout   = 30 * time.Second // per command, agent and collector

	// Diagnostics
	DefaultDiagnosticsDir = "."

	// Journal
	DefaultJournalPath = "llm-troubleshooter.journal"

	// Planner
	DefaultPlannerBaseURL     = "https://api.openai.com/v1"
	DefaultPlannerModel       = "gpt-4o-mini"
	DefaultPlannerTimeout     = 60 * time.Second
	DefaultPlannerMaxRetries  = 3
	DefaultPlannerRetryDelay  = 2 * time.Second
	DefaultRequestsPerMinute  = 30
	DefaultPlannerTemperature = 0.2

	// Config file and environment
	ConfigName = "llm-troubleshooter"
	EnvPrefix  = "TROUBLESHOOTER"
)
