package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/wardenhq/warden/internal/engine"
	"github.com/wardenhq/warden/internal/lifecycle"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Run the intake watcher and lifecycle scheduler",
	Long: `Watch the signal drop directory and run periodic lifecycle passes.

Tools submit signals by writing JSON files into the drop directory; each
file holds one signal and is deleted once consumed. Lifecycle passes run on
the configured cadence and the auto-closer examines pending issues after
each pass. Runs until interrupted.`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		a, err := newApp(ctx)
		if err != nil {
			fatal("%v", err)
		}
		defer a.Close()

		watcher := engine.NewWatcher(a.cfg.WatchDir, a.engine)
		if err := watcher.Start(ctx); err != nil {
			fatal("failed to start watcher: %v", err)
		}
		defer watcher.Stop()

		scheduler := lifecycle.NewScheduler(a.lifecycle, a.cfg.LifecycleInterval.Std())
		if err := scheduler.Start(ctx); err != nil {
			fatal("failed to start scheduler: %v", err)
		}
		defer scheduler.Stop()

		// The auto-closer runs on the same cadence, offset behind the
		// lifecycle pass so freshly pending issues get verified promptly.
		go func() {
			ticker := time.NewTicker(a.cfg.LifecycleInterval.Std())
			defer ticker.Stop()
			for {
				select {
				case <-ticker.C:
					closed, examined, err := a.verifier.ProcessPending(ctx)
					if err != nil {
						log.Printf("Warning: auto-close pass failed: %v", err)
						continue
					}
					if examined > 0 {
						log.Printf("auto-close pass: %d/%d closed", closed, examined)
					}
				case <-ctx.Done():
					return
				}
			}
		}()

		cyan := color.New(color.FgCyan, color.Bold).SprintFunc()
		fmt.Printf("%s\n", cyan("warden watching"))
		fmt.Printf("  Signals:   %s\n", a.cfg.WatchDir)
		fmt.Printf("  Lifecycle: every %s\n", a.cfg.LifecycleInterval)

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
		<-sigCh
		fmt.Println("\nshutting down")
	},
}

func init() {
	rootCmd.AddCommand(watchCmd)
}
