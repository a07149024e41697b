package dedup

import (
	"fmt"
	"time"

	"github.com/wardenhq/warden/internal/types"
)

// Config holds configuration for the duplicate resolver
type Config struct {
	// SimilarityThreshold is the minimum cosine similarity (0.0-1.0) for the
	// semantic tier to declare a duplicate.
	// Higher values = more conservative (fewer false positives).
	// Default: 0.95
	SimilarityThreshold float64 `yaml:"similarity_threshold"`

	// EmbedTimeout bounds each embedding-provider call. On timeout the
	// semantic tier is skipped for this resolution, never blocked.
	// Default: 2s
	EmbedTimeout types.Duration `yaml:"embed_timeout"`

	// MaxConcurrentEmbeds bounds parallel candidate-embedding lookups.
	// Candidate embeddings are read-only and safe to parallelize; the
	// final decision is still made in candidate order.
	// Default: 4
	MaxConcurrentEmbeds int `yaml:"max_concurrent_embeds"`

	// MaxCandidates caps how many open issues are compared in the semantic
	// tier, bounding provider cost per signal.
	// Default: 50
	MaxCandidates int `yaml:"max_candidates"`
}

// DefaultConfig returns the default resolver configuration
func DefaultConfig() Config {
	return Config{
		SimilarityThreshold: 0.95,
		EmbedTimeout:        types.Duration(2 * time.Second),
		MaxConcurrentEmbeds: 4,
		MaxCandidates:       50,
	}
}

// Validate checks if the configuration has valid values
func (c Config) Validate() error {
	if c.SimilarityThreshold < 0.0 || c.SimilarityThreshold > 1.0 {
		return fmt.Errorf("similarity_threshold must be between 0.0 and 1.0 (got %.2f)", c.SimilarityThreshold)
	}
	if c.EmbedTimeout <= 0 {
		return fmt.Errorf("embed_timeout must be positive (got %v)", c.EmbedTimeout)
	}
	if c.MaxConcurrentEmbeds <= 0 {
		return fmt.Errorf("max_concurrent_embeds must be positive (got %d)", c.MaxConcurrentEmbeds)
	}
	if c.MaxCandidates <= 0 {
		return fmt.Errorf("max_candidates must be positive (got %d)", c.MaxCandidates)
	}
	return nil
}
