// Command banditsim runs bandit experiments from the command line.
package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/freeeve/banditlab/internal/logger"
)

var logLevel string

var rootCmd = &cobra.Command{
	Use:   "banditsim",
	Short: "banditsim - multi-armed bandit simulator",
	Long: `banditsim plays bandit strategies against simulated reward sources and
reports how quickly they converge on the best arm.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		logger.Init(logger.Options{Level: logLevel, Out: os.Stderr, Dev: true})
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "Log level (debug, info, warn, error)")
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
