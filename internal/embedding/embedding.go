// Package embedding provides vector embeddings for semantic duplicate
// detection. The provider is an external, fallible collaborator: callers
// must treat ErrUnavailable as "skip the semantic tier for this call", not
// as "no duplicate exists".
package embedding

import (
	"context"
	"errors"
	"strings"
)

// ErrUnavailable indicates the embedding provider could not serve the
// request (unreachable, timed out, rate-limited, or circuit open).
var ErrUnavailable = errors.New("embedding provider unavailable")

// Generator produces an embedding vector for a text.
type Generator interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Cache persists normalized-text -> vector mappings across runs.
// Entries never expire; invalidation (e.g., on a model change) is a manual
// operation on the underlying store.
type Cache interface {
	GetEmbedding(ctx context.Context, key string) ([]float32, error)
	PutEmbedding(ctx context.Context, key string, vec []float32) error
}

// Normalize canonicalizes text for cache keys and exact-match comparison:
// lowercased with whitespace runs collapsed to single spaces.
func Normalize(text string) string {
	return strings.Join(strings.Fields(strings.ToLower(text)), " ")
}

// CachedGenerator consults the cache before calling the inner generator.
// Cache failures fall through to the provider; provider results are stored
// best-effort.
type CachedGenerator struct {
	inner Generator
	cache Cache
}

// NewCachedGenerator wraps a generator with a persistent cache.
func NewCachedGenerator(inner Generator, cache Cache) *CachedGenerator {
	return &CachedGenerator{inner: inner, cache: cache}
}

// Embed returns the cached vector for the normalized text, or computes and
// caches one.
func (g *CachedGenerator) Embed(ctx context.Context, text string) ([]float32, error) {
	key := Normalize(text)

	if vec, err := g.cache.GetEmbedding(ctx, key); err == nil && len(vec) > 0 {
		return vec, nil
	}

	vec, err := g.inner.Embed(ctx, text)
	if err != nil {
		return nil, err
	}

	// A write failure loses the cache entry, not the result.
	_ = g.cache.PutEmbedding(ctx, key, vec)
	return vec, nil
}

var _ Generator = (*CachedGenerator)(nil)
