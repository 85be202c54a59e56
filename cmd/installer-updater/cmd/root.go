package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/oshokin/installer-updater/internal/config"
	"github.com/oshokin/installer-updater/internal/logger"
	"github.com/oshokin/installer-updater/internal/service/updater"
	"github.com/oshokin/installer-updater/internal/version"
)

// requiredArgs is the number of positional arguments of the root command.
const requiredArgs = 3

// flags are the optional overrides of the settings file.
type flags struct {
	configPath        string
	parentPID         int
	quiescenceWait    string
	parentWaitTimeout string
	settleDelay       string
	minSize           int64
	sizeMismatch      string
	launchCommand     []string
	readinessAddress  string
	readinessTimeout  string
	logLevel          string
}

// runFunc performs the update once the options are resolved.
type runFunc func(ctx context.Context, opts *updater.Options) error

// newRootCommand builds the CLI. Usage and errors are printed to out.
func newRootCommand(out io.Writer, run runFunc) *cobra.Command {
	f := new(flags)

	root := &cobra.Command{
		Use:   "installer-updater <new_artifact_path> <target_path> <version_label>",
		Short: "Replace an installed artifact with a staged one and restart it",
		Long: "Waits for the installer to exit, moves the target aside, renames the staged artifact " +
			"into place, starts it and removes the backup. Any failure restores the backup.",
		Args:          positionalArgs,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			// Arguments are valid; later failures are not usage problems.
			cmd.SilenceUsage = true

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGTERM, syscall.SIGINT)
			defer stop()

			options, err := f.options(cmd, args)
			if err != nil {
				return err
			}

			return run(ctx, options)
		},
	}

	root.SetOut(out)
	root.SetErr(out)

	fs := root.Flags()
	fs.StringVarP(&f.configPath, "config", "c", "",
		"path to settings file (default "+config.DefaultConfigFilename+" if present)")
	fs.IntVar(&f.parentPID, "parent-pid", 0, "PID of the installer to wait for instead of the fixed quiescence wait")
	fs.StringVar(&f.quiescenceWait, "quiescence-wait", "", "fixed wait before touching the target, e.g. 5s")
	fs.StringVar(&f.parentWaitTimeout, "parent-wait-timeout", "", "upper bound on waiting for --parent-pid to exit")
	fs.StringVar(&f.settleDelay, "settle-delay", "", "pause after starting the new version, e.g. 2s")
	fs.Int64Var(&f.minSize, "min-size", 0, "smallest accepted artifact size in bytes")
	fs.StringVar(&f.sizeMismatch, "size-mismatch", "", "post-install size mismatch policy: warn or fail")
	fs.StringArrayVar(&f.launchCommand, "launch-command", nil,
		"command prefix used to start the target, one word per flag (e.g. --launch-command java --launch-command -jar)")
	fs.StringVar(&f.readinessAddress, "readiness-address", "", "gRPC address whose health service is probed after the restart")
	fs.StringVar(&f.readinessTimeout, "readiness-timeout", "", "upper bound on the readiness probe")
	fs.StringVar(&f.logLevel, "log-level", "", "debug, info, warn or error")

	version.AttachCobraVersionCommand(root)
	root.AddCommand(newInitConfigCommand())

	return root
}

// positionalArgs requires the three positional values; extra ones are ignored.
func positionalArgs(_ *cobra.Command, args []string) error {
	if len(args) < requiredArgs {
		return updater.NewStepError(updater.StageUsage,
			fmt.Errorf("expected %d arguments, got %d", requiredArgs, len(args)))
	}

	return nil
}

// execute runs root and reports errors the updater has not logged itself.
func execute(ctx context.Context, root *cobra.Command) error {
	err := root.ExecuteContext(ctx)
	if err == nil {
		return nil
	}

	if stage, ok := updater.StageOf(err); !ok || stage == updater.StageUsage {
		root.PrintErrln("Error:", err)
	}

	return err
}

// Execute runs the CLI and exits with status 1 on any error.
func Execute() {
	err := execute(context.Background(), newRootCommand(os.Stdout, updater.Run))

	logger.Sync()

	if err != nil {
		os.Exit(1)
	}
}
