package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// options are the command-line overrides.
type options struct {
	configPath  string
	dryRun      bool
	batteryMode bool
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:   "inkframe",
		Short: "Run the e-ink frame.",
		Long: `Runs the e-ink frame.

In battery mode one wake cycle runs: report battery, handle queued commands,
set the next RTC alarm, shut down. An enter_continuous_mode command (or
power.enabled=false) keeps the frame awake and listening instead.

A second SIGINT/SIGTERM forces an immediate exit.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := notifyContext(cmd.Context())
			defer stop()

			if err := run(ctx, opts); err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "Error: %v\n", err)
				return err
			}
			return nil
		},
	}

	root.Flags().StringVarP(&opts.configPath, "config", "c", "", "path to configuration file (default $INKFRAME_CONFIG or "+defaultConfigPath+")")
	root.Flags().BoolVar(&opts.dryRun, "dry-run", false, "use the mock display instead of the configured driver")
	root.Flags().BoolVar(&opts.batteryMode, "battery-mode", false, "force battery mode regardless of power.enabled")

	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information.",
		Run: func(cmd *cobra.Command, _ []string) {
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "inkframe %s (commit %s, built %s)\n", version, commit, date)
		},
	})

	return root
}

// getConfigPath returns the configuration file path: the flag, then
// INKFRAME_CONFIG, then the default.
func getConfigPath(flag string) string {
	if flag != "" {
		return flag
	}
	if path := os.Getenv("INKFRAME_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}
