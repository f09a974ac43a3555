package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "callgraph",
	Short: "Callgraph runs graphs of components driven by a tick loop",
	Long: `Callgraph loads task definitions (nodes, call edges and parameter edges),
validates them and runs them step by step, either once from the command line
or as a long-lived MCP server with a scheduler.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.String("db-path", "", "database path (default: ~/.callgraph/callgraph.db)")
	pf.String("log-level", "", "log level: debug, info, warn, error")
	pf.String("log-format", "", "log format: text or json")
	pf.Duration("tick-interval", 0, "time between engine ticks")
	pf.Int("pool-size", 0, "worker pool size for asynchronous components")
	pf.String("metrics-addr", "", "serve /metrics and the HTTP API on this address")
}
