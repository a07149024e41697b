package main

import (
	"context"
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var trackCmd = &cobra.Command{
	Use:   "track",
	Short: "Run one lifecycle pass now",
	Long: `Run a single lifecycle pass immediately instead of waiting for the
scheduled cadence: pull external tracker state, scan recent commits for
issue references, and flag stale issues.`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		a, err := newApp(ctx)
		if err != nil {
			fatal("%v", err)
		}
		defer a.Close()

		result, err := a.lifecycle.RunOnce(ctx)
		if err != nil {
			fatal("lifecycle pass failed: %v", err)
		}

		cyan := color.New(color.FgCyan, color.Bold).SprintFunc()
		fmt.Printf("%s\n", cyan("lifecycle pass complete"))
		fmt.Printf("  Processed:       %d\n", result.Processed)
		fmt.Printf("  Closed:          %d\n", result.Closed)
		fmt.Printf("  In progress:     %d\n", result.InProgress)
		fmt.Printf("  Pending closure: %d\n", result.PendingClosure)
		fmt.Printf("  Stale reminders: %d\n", result.StaleReminders)
	},
}

func init() {
	rootCmd.AddCommand(trackCmd)
}
