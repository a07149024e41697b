// Package config loads the warden configuration file.
//
// Everything has a working default: a bare `warden init` produces a usable
// setup with the external tracker and semantic dedup disabled until
// credentials are configured.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/wardenhq/warden/internal/dedup"
	"github.com/wardenhq/warden/internal/embedding"
	"github.com/wardenhq/warden/internal/engine"
	"github.com/wardenhq/warden/internal/lifecycle"
	"github.com/wardenhq/warden/internal/tracker"
	"github.com/wardenhq/warden/internal/types"
	"github.com/wardenhq/warden/internal/verify"
)

// DefaultDir is the per-project warden directory.
const DefaultDir = ".warden"

// DefaultFile is the config filename inside the warden directory.
const DefaultFile = "config.yaml"

// EmbeddingConfig is the file shape for the embedding provider settings.
type EmbeddingConfig struct {
	// Enabled turns the semantic dedup tier on. Requires an API key.
	Enabled bool   `yaml:"enabled"`
	APIKey  string `yaml:"api_key"`
	Model   string `yaml:"model"`
	BaseURL string `yaml:"base_url"`

	Timeout           types.Duration `yaml:"timeout"`
	RequestsPerSecond float64        `yaml:"requests_per_second"`
}

// ClientConfig converts the file shape into the embedding client's config.
func (e EmbeddingConfig) ClientConfig() embedding.ClientConfig {
	return embedding.ClientConfig{
		APIKey:            e.APIKey,
		Model:             e.Model,
		BaseURL:           e.BaseURL,
		Timeout:           e.Timeout.Std(),
		RequestsPerSecond: e.RequestsPerSecond,
	}
}

// TrackerConfig is the file shape for external tracker settings.
type TrackerConfig struct {
	// Enabled turns external mirroring on.
	Enabled bool                 `yaml:"enabled"`
	GitHub  tracker.GitHubConfig `yaml:"github"`
}

// StorageConfig holds persistence settings.
type StorageConfig struct {
	// Path is the SQLite database file.
	Path string `yaml:"path"`
}

// NotifyConfig holds notification sink settings.
type NotifyConfig struct {
	// Terminal enables colorized stderr notifications.
	Terminal bool `yaml:"terminal"`

	// File, when set, appends notifications to this path.
	File string `yaml:"file,omitempty"`
}

// Config is the root warden configuration.
type Config struct {
	Storage   StorageConfig    `yaml:"storage"`
	Engine    engine.Config    `yaml:"detection"`
	Dedup     dedup.Config     `yaml:"dedup"`
	Embedding EmbeddingConfig  `yaml:"embedding"`
	Lifecycle lifecycle.Config `yaml:"lifecycle"`
	Verify    verify.Config    `yaml:"verify"`
	Tracker   TrackerConfig    `yaml:"tracker"`
	Notify    NotifyConfig     `yaml:"notify"`

	// AuditDir is where the JSONL audit trail is written.
	AuditDir string `yaml:"audit_dir"`

	// WatchDir is the drop directory the watch command consumes.
	WatchDir string `yaml:"watch_dir"`

	// ProjectMap is an optional YAML file describing file couplings and
	// design decisions for classifier enrichment.
	ProjectMap string `yaml:"project_map,omitempty"`

	// LifecycleInterval is the cadence of lifecycle passes in watch mode.
	LifecycleInterval types.Duration `yaml:"lifecycle_interval"`
}

// DefaultConfig returns the configuration used when no file exists.
func DefaultConfig() *Config {
	return &Config{
		Storage:           StorageConfig{Path: filepath.Join(DefaultDir, "wd.db")},
		Engine:            engine.DefaultConfig(),
		Dedup:             dedup.DefaultConfig(),
		Lifecycle:         lifecycle.DefaultConfig(),
		Verify:            verify.DefaultConfig(),
		Notify:            NotifyConfig{Terminal: true},
		AuditDir:          filepath.Join(DefaultDir, "audit"),
		WatchDir:          filepath.Join(DefaultDir, "signals"),
		LifecycleInterval: types.Duration(lifecycle.DefaultInterval),
	}
}

// Load reads the configuration from path, applying defaults for anything
// the file leaves out. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks the configuration for consistency.
func (c *Config) Validate() error {
	if c.Storage.Path == "" {
		return fmt.Errorf("storage path is required")
	}
	if err := c.Engine.Validate(); err != nil {
		return fmt.Errorf("detection: %w", err)
	}
	if err := c.Dedup.Validate(); err != nil {
		return fmt.Errorf("dedup: %w", err)
	}
	if err := c.Lifecycle.Validate(); err != nil {
		return fmt.Errorf("lifecycle: %w", err)
	}
	if err := c.Verify.Validate(); err != nil {
		return fmt.Errorf("verify: %w", err)
	}
	if c.Embedding.Enabled && c.Embedding.APIKey == "" {
		return fmt.Errorf("embedding: enabled but api_key is empty")
	}
	if c.Tracker.Enabled {
		if err := c.Tracker.GitHub.Validate(); err != nil {
			return fmt.Errorf("tracker: %w", err)
		}
	}
	if c.LifecycleInterval < 0 {
		return fmt.Errorf("lifecycle_interval cannot be negative")
	}
	return nil
}

// Write serializes the configuration to path, creating parent directories.
func (c *Config) Write(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to serialize config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}
