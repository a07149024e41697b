package embedding

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	assert.Equal(t, "error ts2345: bad arg", Normalize("  Error   TS2345:\tbad arg\n"))
	assert.Equal(t, "", Normalize("   \t\n"))
	assert.Equal(t, Normalize("Error TS2345"), Normalize("error   ts2345"))
}

// memCache is an in-memory Cache for tests
type memCache struct {
	entries map[string][]float32
	getErr  error
	puts    int
}

func newMemCache() *memCache {
	return &memCache{entries: make(map[string][]float32)}
}

func (m *memCache) GetEmbedding(ctx context.Context, key string) ([]float32, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	return m.entries[key], nil
}

func (m *memCache) PutEmbedding(ctx context.Context, key string, vec []float32) error {
	m.puts++
	m.entries[key] = vec
	return nil
}

// countingGenerator records how many embed calls reach the provider
type countingGenerator struct {
	vec   []float32
	err   error
	calls int
}

func (g *countingGenerator) Embed(ctx context.Context, text string) ([]float32, error) {
	g.calls++
	if g.err != nil {
		return nil, g.err
	}
	return g.vec, nil
}

func TestCachedGeneratorHitsCacheFirst(t *testing.T) {
	cache := newMemCache()
	inner := &countingGenerator{vec: []float32{0.1, 0.2}}
	g := NewCachedGenerator(inner, cache)
	ctx := context.Background()

	vec, err := g.Embed(ctx, "Error TS2345: bad arg")
	require.NoError(t, err)
	assert.Equal(t, []float32{0.1, 0.2}, vec)
	assert.Equal(t, 1, inner.calls)
	assert.Equal(t, 1, cache.puts)

	// Same text modulo case/whitespace: served from cache.
	vec, err = g.Embed(ctx, "error   ts2345: bad arg")
	require.NoError(t, err)
	assert.Equal(t, []float32{0.1, 0.2}, vec)
	assert.Equal(t, 1, inner.calls, "second call must not reach the provider")
}

func TestCachedGeneratorCacheFailureFallsThrough(t *testing.T) {
	cache := newMemCache()
	cache.getErr = errors.New("disk error")
	inner := &countingGenerator{vec: []float32{1}}
	g := NewCachedGenerator(inner, cache)

	vec, err := g.Embed(context.Background(), "some text")
	require.NoError(t, err)
	assert.Equal(t, []float32{1}, vec)
	assert.Equal(t, 1, inner.calls)
}

func TestCachedGeneratorPropagatesProviderError(t *testing.T) {
	g := NewCachedGenerator(&countingGenerator{err: ErrUnavailable}, newMemCache())

	_, err := g.Embed(context.Background(), "some text")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestClientEmbed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/embeddings", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`{"data":[{"embedding":[0.5,-0.25,1.0]}]}`))
	}))
	defer srv.Close()

	c := NewClient(ClientConfig{APIKey: "test-key", BaseURL: srv.URL})
	vec, err := c.Embed(context.Background(), "error text")
	require.NoError(t, err)
	assert.Equal(t, []float32{0.5, -0.25, 1.0}, vec)
}

func TestClientEmbedServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream down", http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewClient(ClientConfig{BaseURL: srv.URL})
	_, err := c.Embed(context.Background(), "error text")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestClientBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewClient(ClientConfig{BaseURL: srv.URL, RequestsPerSecond: 1000})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := c.Embed(ctx, "text")
		require.ErrorIs(t, err, ErrUnavailable)
	}
	require.Equal(t, 3, hits)

	// Breaker is open now: the call fails fast without reaching the server.
	_, err := c.Embed(ctx, "text")
	require.ErrorIs(t, err, ErrUnavailable)
	assert.Equal(t, 3, hits)
}
