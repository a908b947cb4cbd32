// Command taskforge is the CLI façade over the orchestrator (spec §6).
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "dev"

var rootCmd = &cobra.Command{
	Use:     "taskforge",
	Short:   "Submit and track AI-agent tasks with guaranteed completion verification",
	Version: version,
	Long: `taskforge orchestrates AI-coding-agent tasks end to end: it dispatches
a task to an adapter, independently re-verifies every claimed change, and
retries or fails the task according to its own evidence rather than the
agent's self-report.

Common tasks:
  taskforge run <vtid> <title>   # submit a task and block until terminal
  taskforge status <task-id>     # inspect a submitted task
  taskforge config --show        # print the effective configuration`,
	Run: func(cmd *cobra.Command, args []string) {
		_ = cmd.Help()
	},
}

func init() {
	rootCmd.PersistentFlags().StringP("config", "c", "taskforge.yaml", "path to the configuration file")
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(serveCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
