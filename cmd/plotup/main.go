package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	root := buildRoot()
	if err := root.Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// buildRoot creates the root command and wires the subcommands.
func buildRoot() *cobra.Command {
	globalFlags := &GlobalFlags{}
	upFlags := &UpFlags{}
	serveFlags := &ServeFlags{}
	sweepFlags := &SweepFlags{}

	root := createRootCommand(globalFlags)
	root.AddCommand(
		createUpCommand(globalFlags, upFlags),
		createServeCommand(globalFlags, serveFlags),
		createSweepCommand(globalFlags, sweepFlags),
	)
	return root
}

// createRootCommand creates the root command with minimal persistent flags.
func createRootCommand(flags *GlobalFlags) *cobra.Command {
	root := &cobra.Command{
		Use:   "plotup",
		Short: "Launch the plot server and the agent development server together",
		Long: `Plotup starts the plot-image HTTP server in the background, runs the
LangGraph development server in the foreground, and tears the plot server
down again when the development server exits.

Examples:
  plotup up                         # Start both servers (plot server on localhost:8001)
  plotup serve                      # Run only the plot server in the foreground
  plotup sweep                      # Remove stale plot images once and exit
  plotup up --config=plotup.toml    # Load commands, ports and logging from TOML`,
	}

	root.PersistentFlags().StringVar(&flags.ConfigPath, "config", "", "path to TOML config file (optional)")
	root.PersistentFlags().StringVar(&flags.LogLevel, "log-level", "info", "log level: debug, info, warn, error")

	return root
}

// createUpCommand creates the up subcommand.
func createUpCommand(globalFlags *GlobalFlags, upFlags *UpFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "up",
		Short: "Start the plot server in the background and the dev server in the foreground",
		Long: `Start the plot server as a background process, print its PID, then run
the development server in the foreground and block until it exits. The plot
server receives a single SIGTERM afterwards; if it is already gone, that is
silently ignored.

Examples:
  plotup up
  plotup up --primary-cmd="langgraph dev --port 2024"
  plotup up --history-dsn=sqlite:///tmp/plotup-history.db`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runUpCommand(globalFlags, upFlags)
		},
	}

	cmd.Flags().StringVar(&upFlags.AuxCmd, "aux-cmd", "", "plot server command (default: this binary's serve command)")
	cmd.Flags().StringVar(&upFlags.PrimaryCmd, "primary-cmd", "", "development server command (default: langgraph dev)")
	cmd.Flags().StringVar(&upFlags.HistoryDSN, "history-dsn", "", "record job lifecycle events to this DSN (sqlite, postgres, clickhouse)")

	return cmd
}

// createServeCommand creates the serve subcommand.
func createServeCommand(globalFlags *GlobalFlags, serveFlags *ServeFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the plot-image HTTP server",
		Long: `Serve plot images over HTTP with CORS headers for agent-chat-ui and
sweep stale plot files in the background.

Examples:
  plotup serve
  plotup serve --listen=localhost:8001 --dir=/tmp/dataanalysis_plots`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServeCommand(globalFlags, serveFlags)
		},
	}

	cmd.Flags().StringVar(&serveFlags.Listen, "listen", "", "listen address (default localhost:8001)")
	cmd.Flags().StringVar(&serveFlags.BasePath, "base-path", "", "URL base path to serve under")
	cmd.Flags().StringVar(&serveFlags.Dir, "dir", "", "plots directory (default /tmp/dataanalysis_plots)")

	return cmd
}

// createSweepCommand creates the sweep subcommand.
func createSweepCommand(globalFlags *GlobalFlags, sweepFlags *SweepFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Remove stale plot images once and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSweepCommand(globalFlags, sweepFlags)
		},
	}

	cmd.Flags().StringVar(&sweepFlags.Dir, "dir", "", "plots directory (default /tmp/dataanalysis_plots)")
	cmd.Flags().DurationVar(&sweepFlags.MaxAge, "max-age", 0, "age after which a plot is stale (default 1h)")

	return cmd
}
