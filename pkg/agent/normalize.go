package agent

import (
	"regexp"
	"strings"
)

var (
	placeholderPattern = regexp.MustCompile(`<[\w-]+>`)
	privilegedPattern  = regexp.MustCompile(`^sudo\b`)
)

// riskyPatterns are refused in safe mode.
var riskyPatterns = []*regexp.Regexp{
	regexp.MustCompile(`\brm\s+-rf\s+/(\s|$|\*)`),
	regexp.MustCompile(`\bmkfs\.`),
	regexp.MustCompile(`\bdd\s+if=`),
	regexp.MustCompile(`(^|[\s;&|]):>\s*/`),
	regexp.MustCompile(`\bchmod\s+777\s+/`),
	regexp.MustCompile(`\bchown\s+-R\s+\S+\s+/`),
	regexp.MustCompile(`\bparted\b`),
	regexp.MustCompile(`\bfdisk\b`),
	regexp.MustCompile(`\bsudo\s+passwd\b`),
	regexp.MustCompile(`\biptables\b`),
	regexp.MustCompile(`\bufw\b.*\breset\b`),
}

// NormalizeCommand repairs common artefacts in model-written command lines:
// one pair of enclosing quotes is removed, literal \n \t \r escapes are
// decoded, trailing whitespace is trimmed from each line and heredocs are
// terminated with a newline.
func NormalizeCommand(cmd string) string {
	cmd = unwrapQuotes(cmd)
	cmd = strings.NewReplacer(`\n`, "\n", `\t`, "\t", `\r`, "\r").Replace(cmd)

	lines := strings.Split(strings.TrimRight(cmd, "\n"), "\n")
	for i, ln := range lines {
		lines[i] = strings.TrimRight(ln, " \t\r")
	}
	cmd = strings.Join(lines, "\n")

	if strings.Contains(cmd, "<<") {
		cmd += "\n"
	}
	return cmd
}

func unwrapQuotes(cmd string) string {
	if len(cmd) >= 2 {
		first, last := cmd[0], cmd[len(cmd)-1]
		if first == last && (first == '"' || first == '\'') {
			return cmd[1 : len(cmd)-1]
		}
	}
	return cmd
}

// HasPlaceholder reports an unfilled <name> template outside a heredoc.
func HasPlaceholder(cmd string) bool {
	return !strings.Contains(cmd, "<<") && placeholderPattern.MatchString(cmd)
}

// IsRisky reports whether cmd is privileged or matches a destructive pattern.
func IsRisky(cmd string) bool {
	if privilegedPattern.MatchString(strings.TrimSpace(cmd)) {
		return true
	}
	for _, re := range riskyPatterns {
		if re.MatchString(cmd) {
			return true
		}
	}
	return false
}
