package agent

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/computerscienceiscool/llm-troubleshooter/pkg/model"
)

// mutating matches command lines that change host state rather than read it.
var mutating = regexp.MustCompile(`\b(add|del|delete|replace|connect|disconnect|restart|start|enable|install|remove|flush|up|down)\b|\biptables\b.*\s-[AIDRF]\s|\bsysctl\s+-w\b|\bsed\s+-i\b|\btee\b|[^2]>{1,2}\s*/`)

// RenderSummary describes a finished session for a human: what ran, how it
// ended, and either the inferred remediation or the cause of failure.
func RenderSummary(s *LoopState) string {
	var b strings.Builder
	if s.SessionID != "" {
		fmt.Fprintf(&b, "Session: %s\n", s.SessionID)
	}
	fmt.Fprintf(&b, "Problem: %s\n", s.Problem)
	fmt.Fprintf(&b, "Status: %s after %d iteration(s)\n", s.Status, s.Iteration)

	if len(s.History) == 0 {
		b.WriteString("\nNo commands were run.\n")
	} else {
		b.WriteString("\nCommands:\n")
		for i, step := range s.History {
			fmt.Fprintf(&b, "  %2d. %s  [%s]\n", i+1, oneLine(step.Result.Command, step.Action.Command), outcome(step.Result))
		}
	}

	switch s.Status {
	case StatusComplete:
		if s.Resolution != "" {
			fmt.Fprintf(&b, "\nResolution: %s\n", s.Resolution)
		}
		if fixes := Remediation(s.History); len(fixes) > 0 {
			b.WriteString("Remediation:\n")
			for _, f := range fixes {
				fmt.Fprintf(&b, "  %s\n", f)
			}
		}
	case StatusFailed, StatusAborted:
		fmt.Fprintf(&b, "\nCause: %s\n", s.Cause)
		fmt.Fprintf(&b, "Attempts: %d command(s) executed, %d failed\n", s.Attempts(), failedCount(s.History))
	}
	return b.String()
}

// Remediation returns the successful state-changing commands in execution
// order, without duplicates.
func Remediation(history []model.Step) []string {
	var out []string
	seen := make(map[string]bool)
	for _, step := range history {
		r := step.Result
		if !r.Succeeded() || !mutating.MatchString(r.Command) {
			continue
		}
		cmd := oneLine(r.Command, step.Action.Command)
		if seen[cmd] {
			continue
		}
		seen[cmd] = true
		out = append(out, cmd)
	}
	return out
}

func outcome(r model.ExecutionResult) string {
	switch {
	case r.Skipped:
		return "skipped: " + r.SkipReason
	case r.TimedOut:
		return "timed out"
	}
	return fmt.Sprintf("exit %d", r.ExitCode)
}

func failedCount(history []model.Step) int {
	n := 0
	for _, st := range history {
		if !st.Result.Skipped && !st.Result.Succeeded() {
			n++
		}
	}
	return n
}

func oneLine(cmd, fallback string) string {
	if cmd == "" {
		cmd = fallback
	}
	cmd = strings.TrimSpace(cmd)
	if i := strings.IndexByte(cmd, '\n'); i >= 0 {
		return cmd[:i] + " ..."
	}
	return cmd
}
