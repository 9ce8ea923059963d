package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"globesort/internal/app"
)

var (
	appInstance *app.App
	version     = "dev"
)

// newRootCmd builds the command tree. The root command runs a benchmark.
func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "globesort <server_ip> <server_port> <num_values>",
		Short: "GlobeSort - measure remote sort latency and throughput",
		Long: `GlobeSort - measure remote sort latency and throughput

  Pings a GlobeSort server, asks it to sort num_values random integers
  and reports round-trip times, the server's own sort time and the
  derived one-way network time.

  Quick start:
    globesort 10.0.0.7 50051 1000000
    globesort 10.0.0.7 50051 100000 --runs 10 --verify
    globesort 10.0.0.7 50051 100000 --parallel 4 --output json
    globesort watch 10.0.0.7 50051 10000 --every 30s`,
		Version:       version,
		Args:          cobra.ExactArgs(3),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			configPath, _ := cmd.Flags().GetString("config")
			var logLevel string
			if cmd.Flags().Changed("log-level") {
				logLevel, _ = cmd.Flags().GetString("log-level")
			}

			var err error
			appInstance, err = app.New(app.Options{
				ConfigPath: configPath,
				LogLevel:   logLevel,
				Out:        cmd.OutOrStdout(),
				Err:        cmd.ErrOrStderr(),
			})
			if err != nil {
				return fmt.Errorf("failed to initialize application: %w", err)
			}
			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if appInstance != nil {
				return appInstance.Close()
			}
			return nil
		},
		RunE: runBenchmark,
	}

	// Global flags
	rootCmd.PersistentFlags().StringP("config", "c", "", "config file path (default ~/.config/globesort/config.yaml)")
	rootCmd.PersistentFlags().String("log-level", "warn", "log level (debug, info, warn, error)")

	addBenchFlags(rootCmd)
	addBatchFlags(rootCmd)

	rootCmd.AddCommand(newWatchCmd())
	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newCompletionCmd(rootCmd))

	return rootCmd
}

// Execute executes the root command
func Execute() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	cancel()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "GlobeSort %s\n", version)
		},
	}
}
