// Command echo-agent runs the feedback pipeline: change-feed consumer,
// analysis worker, escalation dispatcher, and the code-generation HTTP
// service.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "echo-agent",
	Short: "Autonomous feedback analysis and code-generation agent",
	Long: `echo-agent watches a feedback store for new comments, classifies them
with a local or hosted model, escalates important feedback into agent
tasks, and drives autonomous code-generation runs that can open pull
requests against a monitored repository.`,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to YAML config file")
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(doctorCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
