package main

import (
	"context"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/woozyrabbit123/acha-code-health-agent/internal/assist"
	"github.com/woozyrabbit123/acha-code-health-agent/internal/types"
)

var (
	flagApplySuggested bool
	flagDryRun         bool
	flagExplain        bool
)

var fixCmd = &cobra.Command{
	Use:   "fix",
	Short: "Apply prioritized fixes under guard verification",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()

		e, err := newEngine()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(types.ExitOperationalErr)
		}
		defer e.Close()

		// Resolve crash orphans from prior runs before touching anything.
		if recovered, err := e.Recover(); err == nil && len(recovered) > 0 {
			for _, r := range recovered {
				fmt.Printf("recovered %s (%s)\n", r.File, r.Reason)
			}
		}

		if _, err := e.BuildRepoMap(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "warning: repomap build failed: %v\n", err)
		}

		analysis, err := e.Analyze(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(types.ExitOperationalErr)
		}
		plans, err := e.BuildPlans(ctx, analysis)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(types.ExitOperationalErr)
		}
		actions, err := e.PlanActions(plans)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(types.ExitOperationalErr)
		}

		cyan := color.New(color.FgCyan).SprintFunc()
		gray := color.New(color.FgHiBlack).SprintFunc()

		var explainer assist.Provider
		if flagExplain {
			explainer = assist.Default()
		}
		for _, a := range actions {
			fmt.Printf("%s %-8s p=%.1f %s\n", cyan(a.Plan.ID), a.Decision, a.Priority, gray(a.Rationale))
			if explainer != nil {
				if text, err := explainer.Explain(ctx, &a); err == nil {
					fmt.Printf("    %s\n", text)
				}
			}
		}
		if flagDryRun {
			fmt.Printf("\ndry run: %d actions planned\n", len(actions))
			return
		}

		result, err := e.Apply(ctx, actions, flagApplySuggested)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(types.ExitOperationalErr)
		}

		green := color.New(color.FgGreen).SprintFunc()
		red := color.New(color.FgRed).SprintFunc()
		for _, o := range result.Outcomes {
			switch o.Outcome {
			case types.OutcomeApplied:
				note := ""
				if o.Repaired > 0 {
					note = fmt.Sprintf(" (%s)", o.Reason)
				}
				fmt.Printf("%s %s %s%s\n", green("applied"), o.PlanID, o.File, note)
			case types.OutcomeReverted:
				fmt.Printf("%s %s %s: %s\n", red("reverted"), o.PlanID, o.File, o.Reason)
			case types.OutcomeDeferred:
				fmt.Printf("%s %s %s\n", gray("deferred"), o.PlanID, o.File)
			}
		}
		fmt.Printf("\nrun %s: %d applied, %d reverted, %d skipped, %d deferred\n",
			result.RunID, result.Applied, result.Reverted, result.Skipped, result.Deferred)
		fmt.Printf("receipts: %s/receipts  journal: %s\n", e.StateDir(), result.RunID)
	},
}

func init() {
	fixCmd.Flags().BoolVar(&flagApplySuggested, "apply-suggested", false, "also apply SUGGEST-level plans")
	fixCmd.Flags().BoolVarP(&flagDryRun, "dry-run", "n", false, "plan and print actions without applying")
	fixCmd.Flags().BoolVar(&flagExplain, "explain", false, "add plan explanations (LLM-assisted when configured)")
	rootCmd.AddCommand(fixCmd)
}
