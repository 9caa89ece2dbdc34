// Package cli implements the loom command-line interface using Cobra.
// Commands run in-process against the local queue database, the same engine
// the daemon serves over HTTP.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "loom",
	Short: "loom — Task queue for autonomous agents",
	Long: `loom is a task lifecycle and reservation engine for concurrent agents.
Tasks are claimed atomically, released explicitly or by timeout, and every
change is recorded in an append-only history.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command. Called from main.go.
func Execute(version string) {
	rootCmd.Version = version

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
