package cli

import (
	"context"
	"fmt"
	"strings"

	cerr "github.com/cockroachdb/errors"
	ierrors "github.com/computerscienceiscool/llm-troubleshooter/internal/errors"
	"github.com/computerscienceiscool/llm-troubleshooter/pkg/diagnostics"
	"github.com/spf13/cobra"
)

func newCollectCmd(rt *runtime) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "collect",
		Short: "Write a diagnostics snapshot",
		Long: `collect runs the read-only inspection batteries and appends every command,
its output and exit code to a timestamped log. Failing commands are recorded,
not fatal. Sections: ` + strings.Join(diagnostics.SectionNames(), ", ") + ".",
		Args: usageArgs(cobra.NoArgs),
		RunE: rt.runCollect,
	}

	flags := cmd.Flags()
	flags.StringP("output", "o", "", "Log file path (default: timestamped file in diagnostics.output_dir)")
	flags.StringSlice("sections", nil, "Sections to collect (default: all)")

	rt.bind(flags, map[string]string{
		"diagnostics.sections": "sections",
	})
	return cmd
}

func (rt *runtime) runCollect(cmd *cobra.Command, args []string) error {
	a, err := rt.bootstrap()
	if err != nil {
		return err
	}
	defer a.Close()

	output, _ := cmd.Flags().GetString("output")
	log, err := a.Collect(cmd.Context(), a.Config().Diagnostics.Sections, output)
	out := cmd.OutOrStdout()

	switch {
	case err == nil:
		fmt.Fprintf(out, "Diagnostics written to %s (%d records)\n", log.Path, len(log.Records))
		return nil

	case ierrors.Is(err, ierrors.ErrPersistence):
		// The log is gone; keep what was gathered on stdout.
		for _, rec := range log.Records {
			fmt.Fprint(out, diagnostics.FormatRecord(rec))
		}
		return &ierrors.ExitError{Code: ExitFailure, Err: err}

	case cerr.Is(err, context.Canceled):
		fmt.Fprintf(out, "Diagnostics interrupted, partial log at %s (%d records)\n", log.Path, len(log.Records))
		return &ierrors.ExitError{Code: ExitInterrupted}

	default:
		return err
	}
}
