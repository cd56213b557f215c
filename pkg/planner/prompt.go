package planner

import (
	"fmt"
	"strings"
)

const systemPrompt = `You are a troubleshooting agent running on a Linux host.
The user describes a problem in natural language. Reply with JSON ONLY (no backticks, no prose):
{
  "explanation": "short numbered plan of what you will check or change and why",
  "commands": ["bash command 1", "bash command 2"],
  "expect": "optional text that the LAST command prints once the problem is fixed"
}
Rules:
- Gather evidence first: status checks, logs, configuration. Escalate to disruptive changes only when needed.
- Prefer idempotent commands. Use real newlines and heredocs (<<'EOF') for multi-line files.
- Never leave placeholders like <container>; inspect first (docker ps, docker network ls) to learn real names.
- For Docker networking, inspect networks and routes and test connectivity from inside containers
  (docker exec <name> ip route, docker exec <name> ping -c1 <host>).
- Confirm you probe the right service and port; check port mappings and host firewall rules.
- When you believe the fix is in place, finish with a read-only check command and set "expect" to its success output.
- Commands run non-interactively in separate shells; cd and exported variables do not carry over. Each has a timeout.`

const verifyPrompt = `Decide whether the original problem is resolved, based on the commands run and their outputs.
Reply with JSON ONLY:
{"done": true|false, "give_up": true|false, "summary": "what was achieved", "reason": "why it is or is not resolved"}
Set "give_up" only when further commands cannot help.`

// maxStreamBytes bounds each captured stream in prompts.
const maxStreamBytes = 4000

// renderRequest describes the problem, diagnostics and history as a user
// message.
func renderRequest(req Request) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Problem: %s\n", req.Problem)
	if req.Diagnostics != "" {
		b.WriteString("\nDiagnostics snapshot:\n")
		b.WriteString(req.Diagnostics)
		if !strings.HasSuffix(req.Diagnostics, "\n") {
			b.WriteString("\n")
		}
	}
	if len(req.History) == 0 {
		b.WriteString("\nNo commands have been run yet.\n")
		return b.String()
	}
	b.WriteString("\nCommands run so far, in order:\n")
	for i, step := range req.History {
		r := step.Result
		status := fmt.Sprintf("exit %d", r.ExitCode)
		switch {
		case r.Skipped:
			status = "skipped: " + r.SkipReason
		case r.TimedOut:
			status = "timed out"
		}
		fmt.Fprintf(&b, "%d. $ %s [%s]\n", i+1, step.Action.Command, status)
		if out := clip(r.Stdout); out != "" {
			fmt.Fprintf(&b, "stdout:\n%s\n", out)
		}
		if errOut := clip(r.Stderr); errOut != "" {
			fmt.Fprintf(&b, "stderr:\n%s\n", errOut)
		}
	}
	return b.String()
}

func clip(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > maxStreamBytes {
		return s[:maxStreamBytes] + "\n...[truncated]"
	}
	return s
}
