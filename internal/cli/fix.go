package cli

import (
	"fmt"
	"strings"

	ierrors "github.com/computerscienceiscool/llm-troubleshooter/internal/errors"
	"github.com/computerscienceiscool/llm-troubleshooter/pkg/agent"
	"github.com/computerscienceiscool/llm-troubleshooter/pkg/config"
	"github.com/spf13/cobra"
)

func newFixCmd(rt *runtime) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fix PROBLEM...",
		Short: "Diagnose and repair a reported problem",
		Long: `fix runs the plan/execute/verify loop for the problem given as arguments and
prints a summary of every command it ran. It exits 0 when the problem was
resolved, 1 when the loop failed and 130 when interrupted.`,
		Args: usageArgs(cobra.MinimumNArgs(1)),
		RunE: rt.runFix,
	}

	flags := cmd.Flags()
	flags.Int("max-iterations", config.DefaultMaxIterations, "Maximum plan/execute/verify rounds")
	flags.Duration("timeout", config.DefaultExecTimeout, "Per-command timeout")
	flags.StringSlice("verify-sections", nil, "Diagnostics sections collected before each verification")
	flags.Bool("collect-first", false, "Collect diagnostics before the first round")
	flags.String("container", "", "Run commands inside this container")
	flags.Bool("safe-mode", false, "Refuse sudo and destructive commands")

	rt.bind(flags, map[string]string{
		"agent.max_iterations":  "max-iterations",
		"agent.exec_timeout":    "timeout",
		"agent.verify_sections": "verify-sections",
		"agent.collect_first":   "collect-first",
		"agent.container":       "container",
		"agent.safe_mode":       "safe-mode",
	})
	return cmd
}

func (rt *runtime) runFix(cmd *cobra.Command, args []string) error {
	a, err := rt.bootstrap()
	if err != nil {
		return err
	}
	defer a.Close()

	state, err := a.Fix(cmd.Context(), strings.Join(args, " "))
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprint(out, state.Summary)
	if !strings.HasSuffix(state.Summary, "\n") {
		fmt.Fprintln(out)
	}

	switch state.Status {
	case agent.StatusComplete:
		return nil
	case agent.StatusAborted:
		return &ierrors.ExitError{Code: ExitInterrupted}
	default:
		return &ierrors.ExitError{Code: ExitFailure}
	}
}
