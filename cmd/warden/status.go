package main

import (
	"context"
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/wardenhq/warden/internal/types"
)

var statusAll bool

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show issues and aggregate statistics",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		a, err := newApp(ctx)
		if err != nil {
			fatal("%v", err)
		}
		defer a.Close()

		issues, err := a.store.ListIssues(ctx, types.IssueFilter{ExcludeClosed: !statusAll})
		if err != nil {
			fatal("%v", err)
		}
		stats, err := a.store.GetStatistics(ctx)
		if err != nil {
			fatal("%v", err)
		}

		cyan := color.New(color.FgCyan, color.Bold).SprintFunc()
		fmt.Printf("%s\n\n", cyan("=== Warden Status ==="))

		if len(issues) == 0 {
			gray := color.New(color.FgHiBlack).SprintFunc()
			fmt.Printf("  %s\n\n", gray("no issues"))
		}
		for _, issue := range issues {
			fmt.Printf("  %s %s [%s/%s] %s%s\n",
				statusBadge(issue.Status), issue.ID, issue.Severity, issue.Category,
				issue.Title, staleSuffix(issue))
			if issue.ExternalID != nil {
				gray := color.New(color.FgHiBlack).SprintFunc()
				fmt.Printf("    %s\n", gray(fmt.Sprintf("external #%d", *issue.ExternalID)))
			}
		}

		yellow := color.New(color.FgYellow).SprintFunc()
		fmt.Printf("\n%s\n", yellow("Statistics:"))
		fmt.Printf("  Total:       %d\n", stats.TotalIssues)
		fmt.Printf("  Open:        %d\n", stats.OpenIssues)
		fmt.Printf("  In progress: %d\n", stats.InProgressIssues)
		fmt.Printf("  Closed:      %d (%d auto, %d manual)\n",
			stats.ClosedIssues, stats.AutoClosed, stats.ManualClosed)
		if stats.ClosedIssues > 0 {
			fmt.Printf("  Avg close:   %.1fh\n", stats.AverageHoursToClose)
		}
	},
}

func statusBadge(s types.Status) string {
	switch s {
	case types.StatusOpen:
		return color.New(color.FgGreen).Sprint("●")
	case types.StatusInProgress:
		return color.New(color.FgYellow).Sprint("◐")
	case types.StatusPendingClosure:
		return color.New(color.FgCyan).Sprint("◍")
	case types.StatusClosed:
		return color.New(color.FgHiBlack).Sprint("○")
	}
	return "?"
}

func staleSuffix(issue *types.Issue) string {
	if !issue.StaleReminderSent || issue.Status == types.StatusClosed {
		return ""
	}
	return " " + color.New(color.FgRed).Sprint("(stale)")
}

func init() {
	statusCmd.Flags().BoolVar(&statusAll, "all", false, "include closed issues")
	rootCmd.AddCommand(statusCmd)
}
