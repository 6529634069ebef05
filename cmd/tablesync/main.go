package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
)

func main() {
	root := buildRoot()
	if err := root.Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// GlobalFlags holds minimal global/persistent flags for CLI commands
type GlobalFlags struct {
	ConfigPath string
}

// RunFlags override listener addresses from the config file
type RunFlags struct {
	APIListen     string
	MetricsListen string
	HighFrequency bool
}

// APIFlags holds remote daemon connection flags
type APIFlags struct {
	APIUrl     string
	APITimeout time.Duration
	JSON       bool
	Emergency  bool
}

// buildRoot creates the root command with its subcommands
func buildRoot() *cobra.Command {
	globalFlags := &GlobalFlags{}
	runFlags := &RunFlags{}

	root := createRootCommand(globalFlags)
	root.AddCommand(
		createRunCommand(globalFlags, runFlags),
		createStatusCommand(&APIFlags{}),
		createStartCommand(&APIFlags{}),
		createStopCommand(&APIFlags{}),
	)
	return root
}

// createRootCommand creates the root command with minimal persistent flags
func createRootCommand(flags *GlobalFlags) *cobra.Command {
	root := &cobra.Command{
		Use:   "tablesync",
		Short: "Background table sync module host",
		Long: `tablesync hosts the sync module: an order writer and a change reader
running over shared versioned tables and a lossy change-event bus.

Examples:
  tablesync run --config=tablesync.toml
  tablesync status --api-url=http://localhost:8080/api
  tablesync stop --emergency`,
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVar(&flags.ConfigPath, "config", "", "path to TOML config file (optional)")

	return root
}

// createRunCommand creates the run subcommand
func createRunCommand(globalFlags *GlobalFlags, runFlags *RunFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the host and the sync module until interrupted",
		Long: `Start the host (shared tables, change bus, monitor and peer writer), initialize
the sync module and run until SIGINT or SIGTERM. On exit the module is shut down,
the host stopped and the final bus statistics printed.

Environment toggles:
  WRITER_DISABLED=1        run the order writer as a no-op
  HIGH_FREQUENCY=1         use the short writer and peer intervals
  PEER_WRITERS_DISABLED=1  do not start the peer user writer

Examples:
  tablesync run
  tablesync run --config=tablesync.toml --api-listen=:8080 --metrics-listen=:9090`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signalContext()
			defer stop()
			return runDaemon(ctx, globalFlags.ConfigPath, *runFlags, cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVar(&runFlags.APIListen, "api-listen", "", "control API listen address (overrides [api].listen)")
	cmd.Flags().StringVar(&runFlags.MetricsListen, "metrics-listen", "", "Prometheus listen address (overrides [metrics].listen)")
	cmd.Flags().BoolVar(&runFlags.HighFrequency, "high-frequency", false, "use high-frequency writer and peer intervals")

	return cmd
}

func addAPIFlags(cmd *cobra.Command, flags *APIFlags) {
	cmd.Flags().StringVar(&flags.APIUrl, "api-url", "http://localhost:8080/api", "daemon API URL")
	cmd.Flags().DurationVar(&flags.APITimeout, "api-timeout", 10*time.Second, "request timeout")
	cmd.Flags().BoolVar(&flags.JSON, "json", false, "print raw JSON")
}

// createStatusCommand creates the status subcommand
func createStatusCommand(flags *APIFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show module status and bus statistics",
		Long: `Query a running daemon for the module status, worker liveness and
bus counters.

Examples:
  tablesync status
  tablesync status --api-url=http://remote:8080/api --json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmdStatus(cmd.Context(), newAPIClient(*flags), *flags, cmd.OutOrStdout())
		},
	}
	addAPIFlags(cmd, flags)
	return cmd
}

// createStartCommand creates the start subcommand
func createStartCommand(flags *APIFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Initialize the sync module on a running daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmdStart(cmd.Context(), newAPIClient(*flags), *flags, cmd.OutOrStdout())
		},
	}
	addAPIFlags(cmd, flags)
	return cmd
}

// createStopCommand creates the stop subcommand
func createStopCommand(flags *APIFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stop",
		Short: "Shut the sync module down on a running daemon",
		Long: `Request a module shutdown. With --emergency the workers are detached without
signalling or joining.

Examples:
  tablesync stop
  tablesync stop --emergency`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmdStop(cmd.Context(), newAPIClient(*flags), *flags, cmd.OutOrStdout())
		},
	}
	addAPIFlags(cmd, flags)
	cmd.Flags().BoolVar(&flags.Emergency, "emergency", false, "detach workers without signalling or joining")
	return cmd
}
