package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/woozyrabbit123/acha-code-health-agent/internal/types"
	"github.com/woozyrabbit123/acha-code-health-agent/internal/watch"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Re-run analysis whenever source files change",
	Run: func(cmd *cobra.Command, args []string) {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		w, err := watch.New(watch.Config{
			Root: flagRoot,
			OnChange: func(ctx context.Context, changed []string) error {
				e, err := newEngine()
				if err != nil {
					return err
				}
				defer e.Close()

				analysis, err := e.Analyze(ctx)
				if err != nil {
					return err
				}
				fmt.Printf("change detected (%d paths): %d findings\n", len(changed), len(analysis.Findings))
				return nil
			},
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(types.ExitOperationalErr)
		}

		fmt.Printf("watching %s (ctrl-c to stop)\n", flagRoot)
		if err := w.Run(ctx); err != nil && err != context.Canceled {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(types.ExitOperationalErr)
		}
	},
}

func init() {
	rootCmd.AddCommand(watchCmd)
}
