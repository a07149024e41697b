package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/wardenhq/warden/internal/engine"
	"github.com/wardenhq/warden/internal/types"
)

var (
	signalSource   string
	signalFile     string
	signalSeverity string
)

var signalCmd = &cobra.Command{
	Use:   "signal [text]",
	Short: "Submit an error signal",
	Long: `Submit one error signal to the intake pipeline. The text is taken from
the argument, or from stdin when no argument is given.

Examples:
  warden signal "error TS2345: argument of type 'string' is not assignable"
  go build ./... 2>&1 | warden signal --source build
  warden signal --source manual "login page is broken on safari"`,
	Args: cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		text := ""
		if len(args) > 0 {
			text = args[0]
		} else {
			data, err := io.ReadAll(os.Stdin)
			if err != nil {
				fatal("failed to read stdin: %v", err)
			}
			text = string(data)
		}
		if strings.TrimSpace(text) == "" {
			fatal("signal text is empty")
		}

		sig := types.ErrorSignal{
			Text:     text,
			Source:   types.Source(signalSource),
			File:     signalFile,
			Severity: types.Severity(signalSeverity),
		}
		if !sig.Source.IsValid() {
			fatal("invalid source %q (tool, build, test, lint, manual)", signalSource)
		}
		if signalSeverity != "" && !sig.Severity.IsValid() {
			fatal("invalid severity %q (critical, high, medium, low)", signalSeverity)
		}

		ctx := context.Background()
		a, err := newApp(ctx)
		if err != nil {
			fatal("%v", err)
		}
		defer a.Close()

		out, err := a.engine.Process(ctx, sig)
		if err != nil {
			fatal("%v", err)
		}

		printOutcome(out)
	},
}

func printOutcome(out *engine.Outcome) {
	green := color.New(color.FgGreen).SprintFunc()
	yellow := color.New(color.FgYellow).SprintFunc()
	gray := color.New(color.FgHiBlack).SprintFunc()

	switch out.Action {
	case engine.ActionCreated:
		fmt.Printf("%s Created %s [%s/%s] %s\n", green("✓"),
			out.Issue.ID, out.Issue.Severity, out.Issue.Category, out.Issue.Title)
		if out.Decision != nil && len(out.Decision.RelatedIDs) > 0 {
			fmt.Printf("  Related: %s\n", strings.Join(out.Decision.RelatedIDs, ", "))
		}
	case engine.ActionDuplicate:
		fmt.Printf("%s Duplicate of %s (%s, confidence %.2f)\n", yellow("≡"),
			out.Decision.MatchedID, out.Decision.Method, out.Decision.Confidence)
	case engine.ActionIgnored:
		fmt.Printf("%s Ignored: %s\n", gray("·"), out.Reason)
	}
}

func init() {
	signalCmd.Flags().StringVar(&signalSource, "source", "tool", "signal source (tool, build, test, lint, manual)")
	signalCmd.Flags().StringVar(&signalFile, "file", "", "file the error refers to")
	signalCmd.Flags().StringVar(&signalSeverity, "severity", "", "explicit severity override")
	rootCmd.AddCommand(signalCmd)
}
