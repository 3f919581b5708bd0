package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/woozyrabbit123/acha-code-health-agent/internal/journal"
	"github.com/woozyrabbit123/acha-code-health-agent/internal/packs"
	"github.com/woozyrabbit123/acha-code-health-agent/internal/types"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show engine state: policy, learner, skiplist, journals",
	Run: func(cmd *cobra.Command, args []string) {
		e, err := newEngine()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(types.ExitOperationalErr)
		}
		defer e.Close()

		cyan := color.New(color.FgCyan, color.Bold).SprintFunc()
		gray := color.New(color.FgHiBlack).SprintFunc()

		fmt.Printf("%s\n", cyan("=== ace status ==="))
		fmt.Printf("policy hash: %s\n", gray(e.Policy.Hash[:16]))
		fmt.Printf("scoring: alpha=%.2f beta=%.2f gamma=%.2f auto=%.2f suggest=%.2f\n",
			e.Policy.Scoring.Alpha, e.Policy.Scoring.Beta, e.Policy.Scoring.Gamma,
			e.Policy.Scoring.AutoThreshold, e.Policy.Scoring.SuggestThreshold)
		fmt.Printf("skiplist entries: %d\n", e.Skiplist.Len())

		if top := e.Learner.TopRevertedRules(5); len(top) > 0 {
			fmt.Printf("most-reverted rules: %v\n", top)
		}

		if runs, err := journal.ListRuns(e.JournalDir()); err == nil && len(runs) > 0 {
			fmt.Printf("journals: %d (latest %s)\n", len(runs), runs[len(runs)-1])
		}

		if e.Cache != nil {
			if n, err := e.Cache.Stats(); err == nil {
				fmt.Printf("cache entries: %d\n", n)
			}
		}
	},
}

var packsCmd = &cobra.Command{
	Use:   "packs",
	Short: "List the pack recipes (built-in plus .ace/recipes.yaml)",
	Run: func(cmd *cobra.Command, args []string) {
		e, err := newEngine()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(types.ExitOperationalErr)
		}
		defer e.Close()

		recipes, err := packs.LoadRecipes(filepath.Join(e.StateDir(), "recipes.yaml"))
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(types.ExitOperationalErr)
		}
		for _, r := range recipes {
			fmt.Printf("%-24s %-8s %s\n", r.ID, r.Context, r.Description)
			for _, rule := range r.Rules {
				fmt.Printf("    %s\n", rule)
			}
		}
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(packsCmd)
}
