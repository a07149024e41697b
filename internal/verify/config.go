package verify

import (
	"fmt"
	"time"

	"github.com/wardenhq/warden/internal/types"
)

// Check weights. Build and tests carry the bulk of the confidence because
// they are the only checks that can veto a closure outright.
const (
	WeightBuild       = 0.40
	WeightTests       = 0.40
	WeightLint        = 0.10
	WeightRelatedFile = 0.10
)

// DefaultThreshold is the minimum confidence for automatic closure.
const DefaultThreshold = 0.95

// CheckConfig configures one command-backed verification check.
type CheckConfig struct {
	Enabled bool           `yaml:"enabled"`
	Command []string       `yaml:"command"`
	Timeout types.Duration `yaml:"timeout"`
}

// Config holds the verifier settings.
type Config struct {
	Build CheckConfig `yaml:"build"`
	Tests CheckConfig `yaml:"tests"`
	Lint  CheckConfig `yaml:"lint"`

	// Threshold is the minimum confidence for automatic closure.
	Threshold float64 `yaml:"threshold"`

	// ManualOnlyCategories lists issue categories that are never auto-closed
	// regardless of confidence.
	ManualOnlyCategories []string `yaml:"manual_only_categories"`

	// CommitWindow is how many recent commits feed the related-file check
	// and the closure evidence.
	CommitWindow int `yaml:"commit_window"`

	// MaxEvidenceFiles caps the touched-file list attached as evidence.
	MaxEvidenceFiles int `yaml:"max_evidence_files"`

	// WorkingDir is where check commands run and where git history is read.
	WorkingDir string `yaml:"working_dir"`
}

// DefaultConfig returns the default verifier configuration.
func DefaultConfig() Config {
	return Config{
		Build: CheckConfig{Enabled: true, Command: []string{"go", "build", "./..."}, Timeout: types.Duration(60 * time.Second)},
		Tests: CheckConfig{Enabled: true, Command: []string{"go", "test", "./..."}, Timeout: types.Duration(60 * time.Second)},
		Lint:  CheckConfig{Enabled: true, Command: []string{"go", "vet", "./..."}, Timeout: types.Duration(30 * time.Second)},

		Threshold:            DefaultThreshold,
		ManualOnlyCategories: []string{"architecture-violation", "security"},
		CommitWindow:         10,
		MaxEvidenceFiles:     10,
		WorkingDir:           ".",
	}
}

// Validate checks the configuration for consistency.
func (c *Config) Validate() error {
	if c.Threshold < 0 || c.Threshold > 1 {
		return fmt.Errorf("threshold must be between 0.0 and 1.0 (got %.2f)", c.Threshold)
	}
	if c.CommitWindow < 0 {
		return fmt.Errorf("commit_window cannot be negative")
	}
	if c.MaxEvidenceFiles < 0 {
		return fmt.Errorf("max_evidence_files cannot be negative")
	}
	for kind, check := range map[types.CheckKind]CheckConfig{
		types.CheckBuild: c.Build,
		types.CheckTests: c.Tests,
		types.CheckLint:  c.Lint,
	} {
		if check.Enabled && len(check.Command) == 0 {
			return fmt.Errorf("%s check is enabled but has no command", kind)
		}
	}
	return nil
}

// manualOnly reports whether a category requires manual verification.
func (c *Config) manualOnly(category string) bool {
	for _, mc := range c.ManualOnlyCategories {
		if mc == category {
			return true
		}
	}
	return false
}

// checkFor returns the configuration for a command-backed check kind.
func (c *Config) checkFor(kind types.CheckKind) CheckConfig {
	switch kind {
	case types.CheckBuild:
		return c.Build
	case types.CheckTests:
		return c.Tests
	case types.CheckLint:
		return c.Lint
	}
	return CheckConfig{}
}
