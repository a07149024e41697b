package engine

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wardenhq/warden/internal/classifier"
	"github.com/wardenhq/warden/internal/dedup"
	"github.com/wardenhq/warden/internal/storage/sqlite"
	"github.com/wardenhq/warden/internal/types"
)

// fakeTracker assigns sequential external ids
type fakeTracker struct {
	mu   sync.Mutex
	next int64
}

func (f *fakeTracker) Create(ctx context.Context, issue *types.Issue) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.next++
	return f.next, nil
}

func (f *fakeTracker) IsClosed(ctx context.Context, id int64) (bool, error) { return false, nil }
func (f *fakeTracker) Comments(ctx context.Context, id int64) ([]string, error) {
	return nil, nil
}
func (f *fakeTracker) Close(ctx context.Context, id int64, comment string) error { return nil }

func newEngine(t *testing.T, external *fakeTracker) (*Engine, *sqlite.Store) {
	t.Helper()
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	resolver, err := dedup.New(nil, dedup.DefaultConfig())
	require.NoError(t, err)

	var tr *fakeTracker
	if external != nil {
		tr = external
	}

	cfg := DefaultConfig()
	var e *Engine
	if tr != nil {
		e, err = New(classifier.New(nil), resolver, store, tr, nil, cfg)
	} else {
		e, err = New(classifier.New(nil), resolver, store, nil, nil, cfg)
	}
	require.NoError(t, err)
	return e, store
}

func buildSignal(text, file string) types.ErrorSignal {
	return types.ErrorSignal{Text: text, Source: types.SourceBuild, File: file}
}

func TestProcessNovelSignalCreatesIssue(t *testing.T) {
	e, store := newEngine(t, nil)
	ctx := context.Background()

	out, err := e.Process(ctx, buildSignal("error TS2345: bad argument", "src/auth/login.ts"))
	require.NoError(t, err)
	assert.Equal(t, ActionCreated, out.Action)
	require.NotNil(t, out.Issue)
	assert.Equal(t, "wd-1", out.Issue.ID)
	assert.Equal(t, "type-error", out.Issue.Category)
	assert.NotEmpty(t, out.SignalID)

	got, err := store.GetIssue(ctx, out.Issue.ID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusOpen, got.Status)
}

func TestProcessDuplicateCreatesNothing(t *testing.T) {
	e, store := newEngine(t, nil)
	ctx := context.Background()

	first, err := e.Process(ctx, buildSignal("error TS2345: bad argument", "src/auth/login.ts"))
	require.NoError(t, err)
	require.Equal(t, ActionCreated, first.Action)

	second, err := e.Process(ctx, buildSignal("Error  TS2345: bad argument", "src/auth/login.ts"))
	require.NoError(t, err)
	assert.Equal(t, ActionDuplicate, second.Action)
	require.NotNil(t, second.Decision)
	assert.Equal(t, first.Issue.ID, second.Decision.MatchedID)
	assert.Equal(t, 1.0, second.Decision.Confidence)

	issues, err := store.ListIssues(ctx, types.IssueFilter{})
	require.NoError(t, err)
	assert.Len(t, issues, 1)
}

func TestProcessRelatedCreatesWithComponentLabel(t *testing.T) {
	e, store := newEngine(t, nil)
	ctx := context.Background()

	_, err := e.Process(ctx, buildSignal("error TS2345: bad argument", "src/auth/login.ts"))
	require.NoError(t, err)

	out, err := e.Process(ctx, buildSignal("panic: nil session pointer", "src/auth/session.ts"))
	require.NoError(t, err)
	assert.Equal(t, ActionCreated, out.Action)
	assert.Equal(t, dedup.KindRelated, out.Decision.Kind)
	assert.Contains(t, out.Issue.Labels, "component:auth")

	issues, err := store.ListIssues(ctx, types.IssueFilter{})
	require.NoError(t, err)
	assert.Len(t, issues, 2)
}

// stubLookup returns fixed related files for any path
type stubLookup struct {
	files []string
}

func (s *stubLookup) RelatedFiles(ctx context.Context, file string) ([]string, error) {
	return s.files, nil
}

func (s *stubLookup) RelatedDecisions(ctx context.Context, file, domain string) ([]string, error) {
	return nil, nil
}

func TestProcessPersistsRelatedFiles(t *testing.T) {
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	resolver, err := dedup.New(nil, dedup.DefaultConfig())
	require.NoError(t, err)

	lookup := &stubLookup{files: []string{"src/auth/session.ts", "src/auth/token.ts"}}
	e, err := New(classifier.New(lookup), resolver, store, nil, nil, DefaultConfig())
	require.NoError(t, err)
	ctx := context.Background()

	out, err := e.Process(ctx, buildSignal("error TS2345: bad argument", "src/auth/login.ts"))
	require.NoError(t, err)
	require.Equal(t, ActionCreated, out.Action)

	got, err := store.GetIssue(ctx, out.Issue.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"src/auth/session.ts", "src/auth/token.ts"}, got.RelatedFiles)
}

func TestProcessBelowSeverityThresholdIgnored(t *testing.T) {
	e, store := newEngine(t, nil)
	ctx := context.Background()

	// Lint findings classify as low severity, below the default medium gate.
	out, err := e.Process(ctx, types.ErrorSignal{
		Text:   "src/app.ts:10:5: warning: unused variable 'x'",
		Source: types.SourceLint,
	})
	require.NoError(t, err)
	assert.Equal(t, ActionIgnored, out.Action)
	assert.Contains(t, out.Reason, "below auto-create threshold")

	issues, err := store.ListIssues(ctx, types.IssueFilter{})
	require.NoError(t, err)
	assert.Empty(t, issues)
}

func TestProcessManualNonProblemIgnored(t *testing.T) {
	e, _ := newEngine(t, nil)

	out, err := e.Process(context.Background(), types.ErrorSignal{
		Text:   "what a lovely day",
		Source: types.SourceManual,
	})
	require.NoError(t, err)
	assert.Equal(t, ActionIgnored, out.Action)
	assert.Nil(t, out.Decision)
}

func TestProcessRegistersExternally(t *testing.T) {
	external := &fakeTracker{}
	e, store := newEngine(t, external)
	ctx := context.Background()

	out, err := e.Process(ctx, buildSignal("error TS2345: bad argument", "src/auth/login.ts"))
	require.NoError(t, err)
	require.NotNil(t, out.Issue.ExternalID)
	assert.Equal(t, int64(1), *out.Issue.ExternalID)

	got, err := store.GetIssue(ctx, out.Issue.ID)
	require.NoError(t, err)
	require.NotNil(t, got.ExternalID)
	assert.Equal(t, int64(1), *got.ExternalID)
}

func TestProcessConcurrentIdenticalSignals(t *testing.T) {
	e, store := newEngine(t, nil)
	ctx := context.Background()

	const n = 8
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := e.Process(ctx, buildSignal("error TS2345: bad argument", "src/auth/login.ts"))
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	issues, err := store.ListIssues(ctx, types.IssueFilter{})
	require.NoError(t, err)
	assert.Len(t, issues, 1, "identical racing signals must create exactly one issue")
}

func TestTitleFrom(t *testing.T) {
	assert.Equal(t, "first line", titleFrom("first line\nsecond line"))
	assert.Equal(t, "trimmed", titleFrom("  trimmed  \nrest"))
	assert.Equal(t, "untitled issue", titleFrom("\n"))

	long := make([]byte, 600)
	for i := range long {
		long[i] = 'x'
	}
	assert.Len(t, titleFrom(string(long)), 500)
}
