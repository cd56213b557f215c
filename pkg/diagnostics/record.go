package diagnostics

import (
	"fmt"
	"strings"
	"time"
)

// Record is the immutable outcome of one inspection command.
type Record struct {
	Command     string
	Description string
	Section     Section
	ExitCode    int
	Stdout      string
	Stderr      string
	Timestamp   time.Time
	Duration    time.Duration
	TimedOut    bool
}

// Log is one collection run. Records are only ever appended.
type Log struct {
	Path      string
	CreatedAt time.Time
	Host      string
	Sections  []Section
	Records   []Record
}

// Commands returns the recorded command lines in execution order.
func (l *Log) Commands() []string {
	out := make([]string, len(l.Records))
	for i, r := range l.Records {
		out[i] = r.Command
	}
	return out
}

// Digest renders the log as compact text for a planner prompt, truncating
// each stream to maxBytes.
func (l *Log) Digest(maxBytes int) string {
	if l == nil || len(l.Records) == 0 {
		return ""
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Diagnostics collected %s on %s\n", l.CreatedAt.Format(time.RFC3339), l.Host)
	for _, r := range l.Records {
		fmt.Fprintf(&b, "[%s] $ %s (exit %d)\n", r.Section, r.Command, r.ExitCode)
		if out := truncate(strings.TrimSpace(r.Stdout), maxBytes); out != "" {
			b.WriteString(out)
			b.WriteString("\n")
		}
		if errOut := truncate(strings.TrimSpace(r.Stderr), maxBytes); errOut != "" {
			b.WriteString("stderr: ")
			b.WriteString(errOut)
			b.WriteString("\n")
		}
	}
	return b.String()
}

func truncate(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	return s[:max] + "\n...[truncated]"
}
