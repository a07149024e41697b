package main

import (
	"context"
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/wardenhq/warden/internal/types"
	"github.com/wardenhq/warden/internal/verify"
)

var verifyCmd = &cobra.Command{
	Use:   "verify [issue-id]",
	Short: "Verify and close resolved issues",
	Long: `Run closure verification. With an issue id, verify that single issue
now. Without arguments, verify every pending-closure issue. Categories
restricted to manual verification never close through this path; close
their tracker issue instead and the lifecycle pass picks it up.

Examples:
  warden verify           # verify all pending issues
  warden verify wd-42     # verify one issue now`,
	Args: cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		a, err := newApp(ctx)
		if err != nil {
			fatal("%v", err)
		}
		defer a.Close()

		if len(args) == 0 {
			closed, examined, err := a.verifier.ProcessPending(ctx)
			if err != nil {
				fatal("%v", err)
			}
			fmt.Printf("verified %d pending issue(s), closed %d\n", examined, closed)
			return
		}

		issue, err := a.store.GetIssue(ctx, args[0])
		if err != nil {
			fatal("%v", err)
		}

		result, err := a.verifier.Verify(ctx, issue, verify.TriggerManual)
		if err != nil {
			fatal("%v", err)
		}
		printVerification(issue, result)
	},
}

func printVerification(issue *types.Issue, result *types.VerificationResult) {
	green := color.New(color.FgGreen).SprintFunc()
	red := color.New(color.FgRed).SprintFunc()
	gray := color.New(color.FgHiBlack).SprintFunc()

	fmt.Printf("%s confidence %.2f\n", issue.ID, result.Confidence)
	for _, check := range result.Checks {
		mark := green("✓")
		note := ""
		if !check.Passed {
			mark = red("✗")
		}
		if !check.Enabled {
			note = gray(" (disabled)")
		}
		fmt.Printf("  %s %s%s\n", mark, check.Kind, note)
	}

	if result.CanClose {
		fmt.Printf("%s %s\n", green("closed:"), result.Reason)
	} else {
		fmt.Printf("%s %s\n", red("not closed:"), result.Reason)
	}
}

func init() {
	rootCmd.AddCommand(verifyCmd)
}
