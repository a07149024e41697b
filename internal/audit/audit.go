// Package audit writes an append-only JSONL trail of engine activity.
//
// Files are partitioned by day (YYYY-MM-DD.jsonl) so old partitions can be
// archived or pruned without touching the active file. Writes are serialized
// by a mutex; a single logger instance is shared process-wide.
package audit

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Event names recorded in the trail.
const (
	EventDetection       = "detection"
	EventDedupDecision   = "dedup_decision"
	EventStateTransition = "state_transition"
	EventClosureAttempt  = "closure_attempt"
	EventDataQuality     = "data_quality"
)

type record struct {
	Timestamp time.Time   `json:"timestamp"`
	Event     string      `json:"event"`
	Payload   interface{} `json:"payload"`
}

// Logger appends events to the day's JSONL partition.
type Logger struct {
	dir string

	mu   sync.Mutex
	day  string
	file *os.File
}

// New creates an audit logger writing under dir.
func New(dir string) (*Logger, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create audit directory: %w", err)
	}
	return &Logger{dir: dir}, nil
}

// Log appends one event. The payload must be JSON-marshalable; a payload
// that fails to marshal is itself recorded as a data_quality event.
func (l *Logger) Log(event string, payload interface{}) error {
	line, err := marshalRecord(event, payload)
	if err != nil {
		line, _ = marshalRecord(EventDataQuality, map[string]string{
			"error":          err.Error(),
			"original_event": event,
		})
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.rotateLocked(); err != nil {
		return err
	}
	if _, err := l.file.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("failed to append audit record: %w", err)
	}
	return nil
}

// Close closes the active partition file.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	return err
}

func marshalRecord(event string, payload interface{}) ([]byte, error) {
	return json.Marshal(record{
		Timestamp: time.Now().UTC(),
		Event:     event,
		Payload:   payload,
	})
}

// rotateLocked opens the partition for today, rolling over at midnight.
func (l *Logger) rotateLocked() error {
	day := time.Now().UTC().Format("2006-01-02")
	if l.file != nil && day == l.day {
		return nil
	}
	if l.file != nil {
		l.file.Close()
	}

	path := filepath.Join(l.dir, day+".jsonl")
	file, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to open audit partition %s: %w", path, err)
	}
	l.day = day
	l.file = file
	return nil
}
