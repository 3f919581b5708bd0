package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/woozyrabbit123/acha-code-health-agent/internal/repomap"
	"github.com/woozyrabbit123/acha-code-health-agent/internal/types"
)

var flagHot int

var repomapCmd = &cobra.Command{
	Use:   "repomap",
	Short: "Build the deterministic symbol index",
	Run: func(cmd *cobra.Command, args []string) {
		e, err := newEngine()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(types.ExitOperationalErr)
		}
		defer e.Close()

		m, err := e.BuildRepoMap(context.Background())
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(types.ExitOperationalErr)
		}
		fmt.Printf("indexed %d symbols across %d files -> %s\n",
			len(m.Entries), len(m.Files()), filepath.Join(e.StateDir(), "symbols.json"))

		if flagHot > 0 {
			ranker := repomap.NewRanker(m, e.Now())
			for _, score := range ranker.HotFiles(flagHot) {
				fmt.Printf("  %.3f %s (%d symbols)\n", score.Score, score.File, score.SymbolCount)
			}
		}
	},
}

func init() {
	repomapCmd.Flags().IntVar(&flagHot, "hot", 0, "also list the N hottest files by density and recency")
	rootCmd.AddCommand(repomapCmd)
}
