package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/wardenhq/warden/internal/config"
	"github.com/wardenhq/warden/internal/storage/sqlite"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize warden in the current directory",
	Long: `Initialize warden by creating the .warden/ directory.

This creates:
  - .warden/config.yaml (default configuration)
  - .warden/wd.db (SQLite issue database)
  - .warden/audit/ (JSONL audit trail)
  - .warden/signals/ (drop directory for signal files)

Example:
  cd ~/myproject
  warden init`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		if _, err := os.Stat(configPath); err == nil {
			fatal("%s already exists", configPath)
		}

		cfg := config.DefaultConfig()
		if err := cfg.Write(configPath); err != nil {
			fatal("%v", err)
		}

		// Create the database and supporting directories up front so the
		// first signal does not race directory creation.
		store, err := sqlite.New(cfg.Storage.Path)
		if err != nil {
			fatal("failed to create issue database: %v", err)
		}
		store.Close()

		for _, dir := range []string{cfg.AuditDir, cfg.WatchDir} {
			if err := os.MkdirAll(dir, 0755); err != nil {
				fatal("failed to create %s: %v", dir, err)
			}
		}

		green := color.New(color.FgGreen).SprintFunc()
		fmt.Printf("%s Initialized warden in %s\n", green("✓"), filepath.Dir(configPath))
		fmt.Printf("  Config:   %s\n", configPath)
		fmt.Printf("  Database: %s\n", cfg.Storage.Path)
		fmt.Printf("  Signals:  %s\n", cfg.WatchDir)
	},
}

func init() {
	rootCmd.AddCommand(initCmd)
}
