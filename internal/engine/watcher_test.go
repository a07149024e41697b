package engine

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wardenhq/warden/internal/types"
)

func dropSignal(t *testing.T, dir, name string, sig types.ErrorSignal) {
	t.Helper()
	data, err := json.Marshal(sig)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), data, 0644))
}

func TestWatcherDrainsExistingFiles(t *testing.T) {
	e, store := newEngine(t, nil)
	dir := t.TempDir()

	dropSignal(t, dir, "a.json", buildSignal("error TS2345: bad argument", "src/auth/login.ts"))
	dropSignal(t, dir, "b.json", buildSignal("panic: index out of range", "src/ui/grid.tsx"))
	// Non-signal files are left alone.
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignore me"), 0644))

	ctx, cancel := context.WithCancel(context.Background())
	w := NewWatcher(dir, e)
	require.NoError(t, w.Start(ctx))
	cancel()
	w.Stop()

	issues, err := store.ListIssues(context.Background(), types.IssueFilter{})
	require.NoError(t, err)
	assert.Len(t, issues, 2)

	// Consumed signal files are deleted; the stray file survives.
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "notes.txt", entries[0].Name())
}

func TestWatcherSkipsMalformedFiles(t *testing.T) {
	e, store := newEngine(t, nil)
	dir := t.TempDir()

	require.NoError(t, os.WriteFile(filepath.Join(dir, "bad.json"), []byte("{not json"), 0644))

	ctx, cancel := context.WithCancel(context.Background())
	w := NewWatcher(dir, e)
	require.NoError(t, w.Start(ctx))
	cancel()
	w.Stop()

	issues, err := store.ListIssues(context.Background(), types.IssueFilter{})
	require.NoError(t, err)
	assert.Empty(t, issues)

	// An unparseable file is left in place; it may still be mid-write.
	_, err = os.Stat(filepath.Join(dir, "bad.json"))
	assert.NoError(t, err)
}

func TestWatcherPicksUpSlowWriter(t *testing.T) {
	e, store := newEngine(t, nil)
	dir := t.TempDir()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w := NewWatcher(dir, e)
	require.NoError(t, w.Start(ctx))
	defer w.Stop()

	// Create the file with a truncated payload first, then complete it,
	// the way a tool writing without a rename does.
	path := filepath.Join(dir, "slow.json")
	full, err := json.Marshal(buildSignal("error TS2345: bad argument", "src/auth/login.ts"))
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, full[:4], 0644))
	require.NoError(t, os.WriteFile(path, full, 0644))

	require.Eventually(t, func() bool {
		issues, err := store.ListIssues(context.Background(), types.IssueFilter{})
		return err == nil && len(issues) == 1
	}, 5*time.Second, 20*time.Millisecond, "the completed signal file must be consumed")

	require.Eventually(t, func() bool {
		_, err := os.Stat(path)
		return os.IsNotExist(err)
	}, 5*time.Second, 20*time.Millisecond)
}
