package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/wardenhq/warden/internal/audit"
	"github.com/wardenhq/warden/internal/classifier"
	"github.com/wardenhq/warden/internal/codebase"
	"github.com/wardenhq/warden/internal/config"
	"github.com/wardenhq/warden/internal/dedup"
	"github.com/wardenhq/warden/internal/embedding"
	"github.com/wardenhq/warden/internal/engine"
	"github.com/wardenhq/warden/internal/gitlog"
	"github.com/wardenhq/warden/internal/lifecycle"
	"github.com/wardenhq/warden/internal/notify"
	"github.com/wardenhq/warden/internal/storage"
	"github.com/wardenhq/warden/internal/storage/sqlite"
	"github.com/wardenhq/warden/internal/tracker"
	"github.com/wardenhq/warden/internal/verify"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "warden",
	Short: "Issue lifecycle and deduplication engine",
	Long: `Warden watches error signals from tools, builds, tests, and humans,
deduplicates them against open issues, tracks their lifecycle from ambient
activity, and closes them automatically once verification clears the bar.`,
	SilenceUsage: true,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config",
		filepath.Join(config.DefaultDir, config.DefaultFile), "path to config file")
}

// app bundles the wired components the commands operate on.
type app struct {
	cfg       *config.Config
	store     storage.Storage
	auditor   *audit.Logger
	engine    *engine.Engine
	lifecycle *lifecycle.Tracker
	verifier  *verify.Verifier
}

// newApp wires the full stack from the configuration file.
func newApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	backend, err := sqlite.New(cfg.Storage.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open issue store: %w", err)
	}
	store := storage.NewRetrying(backend, 0)

	auditor, err := audit.New(cfg.AuditDir)
	if err != nil {
		return nil, fmt.Errorf("failed to open audit log: %w", err)
	}

	var embedder embedding.Generator
	if cfg.Embedding.Enabled {
		embedder = embedding.NewCachedGenerator(
			embedding.NewClient(cfg.Embedding.ClientConfig()), store)
	}

	var lookup classifier.CodebaseLookup
	if cfg.ProjectMap != "" {
		m, err := codebase.Load(cfg.ProjectMap)
		if err != nil {
			log.Printf("Warning: project map unavailable, enrichment disabled: %v", err)
		} else {
			lookup = m
		}
	}

	resolver, err := dedup.New(embedder, cfg.Dedup)
	if err != nil {
		return nil, err
	}

	var external tracker.Tracker
	if cfg.Tracker.Enabled {
		gh, err := tracker.NewGitHub(ctx, cfg.Tracker.GitHub)
		if err != nil {
			return nil, fmt.Errorf("failed to configure external tracker: %w", err)
		}
		external = gh
	}

	eng, err := engine.New(classifier.New(lookup), resolver, store, external, auditor, cfg.Engine)
	if err != nil {
		return nil, err
	}

	var git gitlog.Reader
	if reader, err := gitlog.NewCLIReader(ctx); err != nil {
		log.Printf("Warning: git unavailable, commit signals disabled: %v", err)
	} else {
		git = reader
	}

	var sinks []notify.Notifier
	if cfg.Notify.Terminal {
		sinks = append(sinks, notify.NewTerminal())
	}
	if cfg.Notify.File != "" {
		sinks = append(sinks, notify.NewFile(cfg.Notify.File))
	}
	notifier := notify.NewMulti(sinks...)

	lc, err := lifecycle.New(store, external, git, notifier, auditor, cfg.Lifecycle)
	if err != nil {
		return nil, err
	}

	verifier, err := verify.New(store, verify.NewExecRunner(cfg.Verify.WorkingDir), git, external, auditor, cfg.Verify)
	if err != nil {
		return nil, err
	}

	return &app{
		cfg:       cfg,
		store:     store,
		auditor:   auditor,
		engine:    eng,
		lifecycle: lc,
		verifier:  verifier,
	}, nil
}

// Close releases the app's resources.
func (a *app) Close() {
	if err := a.store.Close(); err != nil {
		log.Printf("Warning: failed to close store: %v", err)
	}
	if err := a.auditor.Close(); err != nil {
		log.Printf("Warning: failed to close audit log: %v", err)
	}
}

func fatal(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	os.Exit(1)
}
