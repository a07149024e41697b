package audit

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readRecords(t *testing.T, dir string) []record {
	t.Helper()
	path := filepath.Join(dir, time.Now().UTC().Format("2006-01-02")+".jsonl")
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	var records []record
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var r record
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &r))
		records = append(records, r)
	}
	require.NoError(t, scanner.Err())
	return records
}

func TestLogAppendsToDailyPartition(t *testing.T) {
	dir := t.TempDir()
	l, err := New(dir)
	require.NoError(t, err)
	defer l.Close()

	require.NoError(t, l.Log(EventDetection, map[string]string{"issue_id": "wd-1"}))
	require.NoError(t, l.Log(EventDedupDecision, map[string]string{"kind": "duplicate"}))

	records := readRecords(t, dir)
	require.Len(t, records, 2)
	assert.Equal(t, EventDetection, records[0].Event)
	assert.Equal(t, EventDedupDecision, records[1].Event)
	assert.False(t, records[0].Timestamp.IsZero())

	payload, ok := records[0].Payload.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "wd-1", payload["issue_id"])
}

func TestLogUnmarshalablePayloadDegrades(t *testing.T) {
	dir := t.TempDir()
	l, err := New(dir)
	require.NoError(t, err)
	defer l.Close()

	// A channel cannot be marshaled.
	require.NoError(t, l.Log(EventClosureAttempt, make(chan int)))

	records := readRecords(t, dir)
	require.Len(t, records, 1)
	assert.Equal(t, EventDataQuality, records[0].Event)
}

func TestLogConcurrentWriters(t *testing.T) {
	dir := t.TempDir()
	l, err := New(dir)
	require.NoError(t, err)
	defer l.Close()

	const n = 20
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			assert.NoError(t, l.Log(EventStateTransition, map[string]int{"n": i}))
		}(i)
	}
	wg.Wait()

	assert.Len(t, readRecords(t, dir), n)
}
