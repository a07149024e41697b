package notify

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wardenhq/warden/internal/types"
)

func TestFileNotifierAppends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "notifications.log")
	n := NewFile(path)
	ctx := context.Background()

	require.NoError(t, n.Notify(ctx, Payload{
		Title:    "issue has seen no activity for 14 days",
		IssueID:  "wd-3",
		Severity: types.SeverityMedium,
		Body:     "last updated 2026-08-10",
	}))
	require.NoError(t, n.Notify(ctx, Payload{
		Title:    "auto-closed",
		IssueID:  "wd-4",
		Severity: types.SeverityLow,
	}))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	content := string(data)
	assert.Contains(t, content, "wd-3 issue has seen no activity for 14 days")
	assert.Contains(t, content, "[medium]")
	assert.Contains(t, content, "wd-4 auto-closed")
}

// recording captures payloads and optionally fails
type recording struct {
	payloads []Payload
	err      error
}

func (r *recording) Notify(ctx context.Context, p Payload) error {
	if r.err != nil {
		return r.err
	}
	r.payloads = append(r.payloads, p)
	return nil
}

func TestMultiDeliversToAllSinks(t *testing.T) {
	a := &recording{}
	b := &recording{}
	m := NewMulti(a, b)

	require.NoError(t, m.Notify(context.Background(), Payload{Title: "hello"}))
	assert.Len(t, a.payloads, 1)
	assert.Len(t, b.payloads, 1)
}

func TestMultiSkipsFailingSink(t *testing.T) {
	failing := &recording{err: errors.New("sink down")}
	healthy := &recording{}
	m := NewMulti(failing, healthy)

	require.NoError(t, m.Notify(context.Background(), Payload{Title: "hello"}))
	assert.Len(t, healthy.payloads, 1, "healthy sink still receives the notification")
}
