package main

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/woozyrabbit123/acha-code-health-agent/internal/journal"
	"github.com/woozyrabbit123/acha-code-health-agent/internal/types"
)

var revertCmd = &cobra.Command{
	Use:   "revert [run-id]",
	Short: "Restore the files touched by a run to their pre-run bytes",
	Args:  cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		e, err := newEngine()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(types.ExitOperationalErr)
		}
		defer e.Close()

		runID := ""
		if len(args) == 1 {
			runID = args[0]
		} else {
			runs, err := journal.ListRuns(e.JournalDir())
			if err != nil || len(runs) == 0 {
				fmt.Fprintf(os.Stderr, "Error: no journals found\n")
				os.Exit(types.ExitOperationalErr)
			}
			runID = runs[len(runs)-1]
		}

		outcomes, err := e.RevertRun(runID)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(types.ExitOperationalErr)
		}

		green := color.New(color.FgGreen).SprintFunc()
		yellow := color.New(color.FgYellow).SprintFunc()
		reverted := 0
		for _, o := range outcomes {
			if o.Reverted {
				reverted++
				fmt.Printf("%s %s\n", green("restored"), o.File)
			} else {
				fmt.Printf("%s %s: %s\n", yellow("skipped"), o.File, o.Reason)
			}
		}
		fmt.Printf("\n%s: %d restored, %d skipped\n", runID, reverted, len(outcomes)-reverted)
	},
}

func init() {
	rootCmd.AddCommand(revertCmd)
}
