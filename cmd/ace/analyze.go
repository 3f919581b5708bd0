package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/woozyrabbit123/acha-code-health-agent/internal/baseline"
	"github.com/woozyrabbit123/acha-code-health-agent/internal/types"
)

var (
	flagFailOnNew        bool
	flagFailOnRegression bool
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Detect findings without modifying anything",
	Run: func(cmd *cobra.Command, args []string) {
		e, err := newEngine()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(types.ExitOperationalErr)
		}
		defer e.Close()

		analysis, err := e.Analyze(context.Background())
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(types.ExitOperationalErr)
		}

		yellow := color.New(color.FgYellow).SprintFunc()
		gray := color.New(color.FgHiBlack).SprintFunc()

		for _, f := range analysis.Findings {
			fmt.Printf("%s:%d-%d %s %s %s\n",
				f.File, f.StartLine, f.EndLine,
				yellow(f.RuleID), f.Message, gray("("+f.StableID()+")"))
		}
		fmt.Printf("\n%d findings", len(analysis.Findings))
		if analysis.Suppressed > 0 {
			fmt.Printf(", %d suppressed", analysis.Suppressed)
		}
		if analysis.SkipListed > 0 {
			fmt.Printf(", %d skiplisted", analysis.SkipListed)
		}
		if analysis.Partial {
			fmt.Printf(" %s", yellow("(partial run)"))
		}
		fmt.Println()

		// Count gates from the policy's [limits] section.
		severities := make([]float64, len(analysis.Findings))
		ruleIDs := make([]string, len(analysis.Findings))
		for i, f := range analysis.Findings {
			severities[i] = f.Severity
			ruleIDs[i] = f.RuleID
		}
		warn, fail := e.Policy.GateCounts(severities, ruleIDs)
		if warn {
			fmt.Fprintf(os.Stderr, "warning: finding count reached warn_at (%d)\n", e.Policy.Limits.WarnAt)
		}

		// Baseline gates decide the exit code.
		if flagFailOnNew || flagFailOnRegression {
			base, err := baseline.Load(filepath.Join(e.StateDir(), "baseline.json"))
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(types.ExitOperationalErr)
			}
			diff := base.Compare(analysis.Findings)
			fmt.Printf("baseline: %d new, %d existing, %d fixed\n",
				len(diff.New), len(diff.Existing), len(diff.Fixed))
			if code := diff.GateResult(flagFailOnNew, flagFailOnRegression); code != types.ExitOK {
				os.Exit(code)
			}
		}
		if fail {
			os.Exit(types.ExitPolicyViolation)
		}
	},
}

var baselineCmd = &cobra.Command{
	Use:   "baseline",
	Short: "Capture the current findings as the baseline",
	Run: func(cmd *cobra.Command, args []string) {
		e, err := newEngine()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(types.ExitOperationalErr)
		}
		defer e.Close()

		analysis, err := e.Analyze(context.Background())
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(types.ExitOperationalErr)
		}
		b := baseline.FromFindings(analysis.Findings)
		path := filepath.Join(e.StateDir(), "baseline.json")
		if err := b.Save(path); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(types.ExitOperationalErr)
		}
		fmt.Printf("baseline captured: %d findings -> %s\n", len(b.Records), path)
	},
}

func init() {
	analyzeCmd.Flags().BoolVar(&flagFailOnNew, "fail-on-new", false, "exit 2 when findings not in the baseline appear")
	analyzeCmd.Flags().BoolVar(&flagFailOnRegression, "fail-on-regression", false, "exit 2 when an existing finding's severity increased")
	rootCmd.AddCommand(analyzeCmd)
	rootCmd.AddCommand(baselineCmd)
}
