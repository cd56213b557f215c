package cli

import (
	"fmt"

	ierrors "github.com/computerscienceiscool/llm-troubleshooter/internal/errors"
	"github.com/spf13/cobra"
)

func newScenariosCmd(rt *runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "scenarios [NAME...]",
		Short: "Replay the built-in fault scenarios",
		Long: `scenarios injects each built-in fault into a simulated host, runs the agent
loop with a scripted planner and checks that the fault is repaired. It prints
one PASS or FAIL line per scenario and exits non-zero unless all pass.`,
		RunE: rt.runScenarios,
	}
}

func (rt *runtime) runScenarios(cmd *cobra.Command, args []string) error {
	a, err := rt.bootstrap()
	if err != nil {
		return err
	}
	defer a.Close()

	report, err := a.Scenarios(cmd.Context(), args)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	for _, res := range report.Results {
		fmt.Fprintln(out, res.Line())
	}
	failed := len(report.Failed())
	fmt.Fprintf(out, "%d/%d scenarios passed\n", len(report.Results)-failed, len(report.Results))

	if cmd.Context().Err() != nil {
		return &ierrors.ExitError{Code: ExitInterrupted}
	}
	if !report.Passed() {
		return &ierrors.ExitError{Code: ExitFailure}
	}
	return nil
}
