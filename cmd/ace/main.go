// Command ace is the autonomous code-health engine CLI: analyze a source
// tree, apply grouped fixes under guard, and revert exactly.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/woozyrabbit123/acha-code-health-agent/internal/engine"
	"github.com/woozyrabbit123/acha-code-health-agent/internal/guard"
)

var (
	flagRoot    string
	flagJobs    int
	flagNoCache bool
	flagLenient bool
)

var rootCmd = &cobra.Command{
	Use:   "ace",
	Short: "Autonomous code health engine",
	Long: `ace detects rule-based findings in a source tree, synthesizes
grouped edit plans, and applies them under multi-layer verification with
crash-safe rollback and adaptive learning.`,
	SilenceUsage: true,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&flagRoot, "root", "C", ".", "project root")
	rootCmd.PersistentFlags().IntVarP(&flagJobs, "jobs", "j", 0, "detection workers (0 = all cores)")
	rootCmd.PersistentFlags().BoolVar(&flagNoCache, "no-cache", false, "disable the detector result cache")
	rootCmd.PersistentFlags().BoolVar(&flagLenient, "lenient", false, "downgrade structural guard layers to warnings")
}

// newEngine builds the engine from the global flags.
func newEngine() (*engine.Engine, error) {
	mode := guard.ModeStrict
	if flagLenient {
		mode = guard.ModeLenient
	}
	return engine.New(engine.Options{
		Root:        flagRoot,
		Jobs:        flagJobs,
		UseCache:    !flagNoCache,
		GuardMode:   mode,
		FileTimeout: 10 * time.Second,
	})
}
