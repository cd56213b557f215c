// Package cli implements the llm-troubleshooter command line.
package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	cerr "github.com/cockroachdb/errors"
	ierrors "github.com/computerscienceiscool/llm-troubleshooter/internal/errors"
	"github.com/computerscienceiscool/llm-troubleshooter/pkg/app"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Exit codes shared by every subcommand.
const (
	ExitOK          = 0
	ExitFailure     = 1
	ExitUsage       = 2
	ExitInterrupted = 130
)

// runtime carries the per-invocation viper instance and app overrides.
type runtime struct {
	v       *viper.Viper
	appOpts []app.Option
}

// NewRootCmd builds the command tree. opts are handed to app.Bootstrap.
func NewRootCmd(opts ...app.Option) *cobra.Command {
	rt := &runtime{v: newViper(), appOpts: opts}

	rootCmd := &cobra.Command{
		Use:   "llm-troubleshooter",
		Short: "Autonomous Linux troubleshooting agent",
		Long: `llm-troubleshooter collects read-only diagnostics, asks a planner for shell
commands, runs them and checks whether the reported problem is resolved.`,
		Args:          usageArgs(cobra.NoArgs),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return rt.initConfig(cmd)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.String("config", "", "Config file (default: ./llm-troubleshooter.yaml or $HOME)")
	flags.String("log-level", "info", "Log level: debug, info, warn, error")
	flags.String("log-format", "console", "Log format: console or json")
	flags.Bool("telemetry", false, "Export trace spans")

	rt.bind(flags, map[string]string{
		"logging.level":     "log-level",
		"logging.format":    "log-format",
		"telemetry.enabled": "telemetry",
	})

	rootCmd.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		return cerr.Mark(err, ierrors.ErrConfig)
	})

	rootCmd.AddCommand(
		newFixCmd(rt),
		newCollectCmd(rt),
		newScenariosCmd(rt),
	)
	return rootCmd
}

// bind ties viper keys to flags.
func (rt *runtime) bind(flags *pflag.FlagSet, keys map[string]string) {
	for key, name := range keys {
		_ = rt.v.BindPFlag(key, flags.Lookup(name))
	}
}

func (rt *runtime) bootstrap() (*app.App, error) {
	cfg, err := rt.buildConfig()
	if err != nil {
		return nil, err
	}
	return app.Bootstrap(cfg, rt.appOpts...)
}

// usageArgs marks argument validation failures as usage errors.
func usageArgs(validate cobra.PositionalArgs) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := validate(cmd, args); err != nil {
			return cerr.Mark(err, ierrors.ErrConfig)
		}
		return nil
	}
}

// ExitCode maps an error returned by a command to a process exit code.
func ExitCode(err error) int {
	var exitErr *ierrors.ExitError
	switch {
	case err == nil:
		return ExitOK
	case cerr.As(err, &exitErr):
		return exitErr.Code
	case ierrors.Is(err, ierrors.ErrConfig), ierrors.Is(err, ierrors.ErrInvalidSection):
		return ExitUsage
	case cerr.Is(err, context.Canceled):
		return ExitInterrupted
	default:
		return ExitFailure
	}
}

// Execute runs the root command with SIGINT/SIGTERM wired to cancellation
// and returns the process exit code.
func Execute() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := NewRootCmd().ExecuteContext(ctx)
	report(os.Stderr, err)
	return ExitCode(err)
}

func report(w io.Writer, err error) {
	if err == nil {
		return
	}
	var exitErr *ierrors.ExitError
	if cerr.As(err, &exitErr) && exitErr.Err == nil {
		return
	}
	fmt.Fprintf(w, "Error: %v\n", err)
	if hints := cerr.GetAllHints(err); len(hints) > 0 {
		for _, h := range hints {
			fmt.Fprintf(w, "Hint: %s\n", h)
		}
	}
}
