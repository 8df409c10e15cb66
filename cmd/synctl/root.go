package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sitosync/reasoner/internal/config"
	"github.com/sitosync/reasoner/internal/obslog"
)

var (
	verbose    bool
	configFile string
	logger     *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "synctl",
	Short: "synctl drives the situation reasoner against a digital-twin situation graph",
	Long: `synctl loads a multi-layer situation graph, runs the reasoning
cycle that keeps each situation instance's belief and trigger state in
sync with incoming sensor events, and emits the resulting operations.

Run "synctl run" to start the host driver, or "synctl inspect" to load
and summarize a graph file without running anything.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		built, err := config.Load(configFile)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		if verbose {
			built.Verbose = true
		}
		logger, err = obslog.New(built.Verbose)
		if err != nil {
			return fmt.Errorf("build logger: %w", err)
		}
		cfgHolder = built
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

// cfgHolder carries the layered config resolved by PersistentPreRunE
// through to whichever subcommand's RunE executes.
var cfgHolder config.Config

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "path to a synctl config file")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(inspectCmd)
	rootCmd.AddCommand(replayCmd)
}
