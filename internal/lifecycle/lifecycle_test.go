package lifecycle

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wardenhq/warden/internal/notify"
	"github.com/wardenhq/warden/internal/storage/sqlite"
	"github.com/wardenhq/warden/internal/types"
)

// fakeTracker scripts external tracker responses per external id
type fakeTracker struct {
	closed   map[int64]bool
	comments map[int64][]string
	created  int64
}

func (f *fakeTracker) Create(ctx context.Context, issue *types.Issue) (int64, error) {
	f.created++
	return f.created, nil
}

func (f *fakeTracker) IsClosed(ctx context.Context, id int64) (bool, error) {
	return f.closed[id], nil
}

func (f *fakeTracker) Comments(ctx context.Context, id int64) ([]string, error) {
	return f.comments[id], nil
}

func (f *fakeTracker) Close(ctx context.Context, id int64, comment string) error {
	f.closed[id] = true
	return nil
}

// fakeGit returns canned commits
type fakeGit struct {
	commits []types.Commit
}

func (f *fakeGit) RecentCommits(ctx context.Context, repoPath string, limit int) ([]types.Commit, error) {
	if limit < len(f.commits) {
		return f.commits[:limit], nil
	}
	return f.commits, nil
}

func (f *fakeGit) FilesTouched(ctx context.Context, repoPath string, limit int) ([]string, error) {
	return nil, nil
}

// recordingNotifier captures stale reminders
type recordingNotifier struct {
	payloads []notify.Payload
}

func (r *recordingNotifier) Notify(ctx context.Context, p notify.Payload) error {
	r.payloads = append(r.payloads, p)
	return nil
}

func newStore(t *testing.T) *sqlite.Store {
	t.Helper()
	s, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func createIssue(t *testing.T, s *sqlite.Store, title string, externalID int64) *types.Issue {
	t.Helper()
	issue := &types.Issue{
		Title:     title,
		ErrorText: title,
		Source:    types.SourceTool,
		Severity:  types.SeverityMedium,
		Category:  "test-failure",
		Status:    types.StatusOpen,
	}
	require.NoError(t, s.CreateIssue(context.Background(), issue, "test"))
	if externalID > 0 {
		require.NoError(t, s.SetExternalID(context.Background(), issue.ID, externalID))
	}
	return issue
}

func TestRunOnceClosesWhenExternalClosed(t *testing.T) {
	store := newStore(t)
	issue := createIssue(t, store, "externally closed", 11)

	external := &fakeTracker{
		closed: map[int64]bool{11: true},
		// In-progress comment present but outranked by the closed state.
		comments: map[int64][]string{11: {"working on this now"}},
	}
	tr, err := New(store, external, nil, nil, nil, DefaultConfig())
	require.NoError(t, err)

	result, err := tr.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Closed)
	assert.Equal(t, 0, result.InProgress)

	got, err := store.GetIssue(context.Background(), issue.ID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusClosed, got.Status)

	last := got.History[len(got.History)-1]
	assert.Equal(t, "lifecycle-tracker", last.Trigger)
}

func TestRunOnceMarksInProgressFromComment(t *testing.T) {
	store := newStore(t)
	issue := createIssue(t, store, "claimed issue", 12)

	external := &fakeTracker{
		closed:   map[int64]bool{},
		comments: map[int64][]string{12: {"thanks", "I'm looking into this"}},
	}
	tr, err := New(store, external, nil, nil, nil, DefaultConfig())
	require.NoError(t, err)

	result, err := tr.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.InProgress)

	got, err := store.GetIssue(context.Background(), issue.ID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusInProgress, got.Status)
}

func TestRunOncePendingClosureFromCommitReference(t *testing.T) {
	store := newStore(t)
	issue := createIssue(t, store, "referenced issue", 42)

	external := &fakeTracker{closed: map[int64]bool{}, comments: map[int64][]string{}}
	git := &fakeGit{commits: []types.Commit{
		{Hash: "abc", Message: "refactor session handling"},
		{Hash: "def", Message: "Fixes #42: repair token refresh"},
	}}
	tr, err := New(store, external, git, nil, nil, DefaultConfig())
	require.NoError(t, err)

	result, err := tr.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.PendingClosure)

	got, err := store.GetIssue(context.Background(), issue.ID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusPendingClosure, got.Status)
}

func TestRunOncePrecedenceCommentOverCommitReference(t *testing.T) {
	store := newStore(t)
	issue := createIssue(t, store, "claimed and referenced", 42)

	external := &fakeTracker{
		closed:   map[int64]bool{},
		comments: map[int64][]string{42: {"working on it"}},
	}
	git := &fakeGit{commits: []types.Commit{{Hash: "a", Message: "closes #42"}}}
	tr, err := New(store, external, git, nil, nil, DefaultConfig())
	require.NoError(t, err)

	_, err = tr.RunOnce(context.Background())
	require.NoError(t, err)

	got, err := store.GetIssue(context.Background(), issue.ID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusInProgress, got.Status,
		"in-progress comment outranks commit reference")
}

func TestRunOnceRetainsWithoutSignals(t *testing.T) {
	store := newStore(t)
	issue := createIssue(t, store, "quiet issue", 13)

	external := &fakeTracker{closed: map[int64]bool{}, comments: map[int64][]string{}}
	tr, err := New(store, external, nil, nil, nil, DefaultConfig())
	require.NoError(t, err)

	result, err := tr.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Processed)
	assert.Equal(t, 0, result.Closed+result.InProgress+result.PendingClosure)

	got, err := store.GetIssue(context.Background(), issue.ID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusOpen, got.Status)
	assert.Len(t, got.History, 1)
}

func TestRunOnceUnregisteredIssueIgnoresTrackerSignals(t *testing.T) {
	store := newStore(t)
	issue := createIssue(t, store, "not yet registered", 0)

	external := &fakeTracker{closed: map[int64]bool{0: true}, comments: map[int64][]string{}}
	tr, err := New(store, external, nil, nil, nil, DefaultConfig())
	require.NoError(t, err)

	_, err = tr.RunOnce(context.Background())
	require.NoError(t, err)

	got, err := store.GetIssue(context.Background(), issue.ID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusOpen, got.Status)
}

func TestStaleReminderFiresOnce(t *testing.T) {
	store := newStore(t)
	issue := createIssue(t, store, "dormant issue", 0)

	notifier := &recordingNotifier{}
	tr, err := New(store, nil, nil, notifier, nil, DefaultConfig())
	require.NoError(t, err)

	// Jump the clock past the staleness window.
	tr.now = func() time.Time { return time.Now().Add(15 * 24 * time.Hour) }

	_, err = tr.RunOnce(context.Background())
	require.NoError(t, err)
	require.Len(t, notifier.payloads, 1)
	assert.Equal(t, issue.ID, notifier.payloads[0].IssueID)
	assert.Contains(t, notifier.payloads[0].Title, "14 days")

	// Second pass: flag already set, no second reminder.
	result, err := tr.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, result.StaleReminders)
	assert.Len(t, notifier.payloads, 1)
}

func TestStaleReminderNotFiredForFreshIssue(t *testing.T) {
	store := newStore(t)
	createIssue(t, store, "fresh issue", 0)

	notifier := &recordingNotifier{}
	tr, err := New(store, nil, nil, notifier, nil, DefaultConfig())
	require.NoError(t, err)

	_, err = tr.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Empty(t, notifier.payloads)
}

func TestCommitRefPattern(t *testing.T) {
	tests := []struct {
		message string
		want    []int64
	}{
		{"Fixes #42: repair login", []int64{42}},
		{"closes #7", []int64{7}},
		{"fixes #1 and closes #2", []int64{1, 2}},
		{"prefix #42 mention", nil},
		{"fixes nothing", nil},
	}
	for _, tt := range tests {
		var got []int64
		for _, m := range commitRefPattern.FindAllStringSubmatch(tt.message, -1) {
			var n int64
			for _, ch := range m[1] {
				n = n*10 + int64(ch-'0')
			}
			got = append(got, n)
		}
		assert.Equal(t, tt.want, got, tt.message)
	}
}
