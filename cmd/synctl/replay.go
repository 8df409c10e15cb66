package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sitosync/reasoner/internal/replay"
)

var replayCmd = &cobra.Command{
	Use:   "replay <fixture-file>",
	Short: "replay a JSON fixture's tick sequence and check it against its expected states",
	Args:  cobra.ExactArgs(1),
	RunE:  runReplay,
}

func runReplay(cmd *cobra.Command, args []string) error {
	fixture, err := replay.LoadFixture(args[0])
	if err != nil {
		return err
	}

	results, err := fixture.Run(logger.Sugar())
	if err != nil {
		return err
	}

	summary := replay.Summarize(results)
	fmt.Printf("fixture: %s\n", fixture.Description)
	fmt.Printf("ticks: %d  fires: %d\n", summary.TotalTicks, summary.TotalFires)
	fmt.Println("all expectations satisfied")
	return nil
}
