package cli

import (
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "pulsewatch",
	Short: "Client-side error tracking and telemetry agent",
	Long:  "Captures and classifies application failures, tracks repetition patterns, batches delivery to a reporting backend, and correlates errors with performance telemetry.",
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
