// Package notify delivers human-facing notifications (stale reminders,
// closure announcements). Delivery is best-effort and must never block or
// fail engine operations.
package notify

import (
	"context"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"github.com/fatih/color"

	"github.com/wardenhq/warden/internal/types"
)

// Payload is one notification.
type Payload struct {
	Title    string
	Body     string
	Severity types.Severity
	IssueID  string
}

// Notifier delivers a notification to one sink.
type Notifier interface {
	Notify(ctx context.Context, p Payload) error
}

// Terminal writes colorized notifications to stderr.
type Terminal struct{}

// NewTerminal creates a terminal notifier.
func NewTerminal() *Terminal {
	return &Terminal{}
}

// Notify prints the notification with severity-based coloring.
func (t *Terminal) Notify(ctx context.Context, p Payload) error {
	paint := color.New(color.FgYellow)
	switch p.Severity {
	case types.SeverityCritical:
		paint = color.New(color.FgRed, color.Bold)
	case types.SeverityHigh:
		paint = color.New(color.FgRed)
	case types.SeverityLow:
		paint = color.New(color.FgCyan)
	}

	header := p.Title
	if p.IssueID != "" {
		header = fmt.Sprintf("[%s] %s", p.IssueID, p.Title)
	}
	paint.Fprintln(os.Stderr, header)
	if p.Body != "" {
		fmt.Fprintln(os.Stderr, p.Body)
	}
	return nil
}

// File appends notifications to a plain text file, one block per entry.
type File struct {
	mu   sync.Mutex
	path string
}

// NewFile creates a file notifier appending to path.
func NewFile(path string) *File {
	return &File{path: path}
}

// Notify appends the notification to the file.
func (f *File) Notify(ctx context.Context, p Payload) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	file, err := os.OpenFile(f.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to open notification file: %w", err)
	}
	defer file.Close()

	_, err = fmt.Fprintf(file, "%s [%s] %s: %s\n",
		time.Now().UTC().Format(time.RFC3339), p.Severity, headerFor(p), p.Body)
	if err != nil {
		return fmt.Errorf("failed to write notification: %w", err)
	}
	return nil
}

func headerFor(p Payload) string {
	if p.IssueID != "" {
		return fmt.Sprintf("%s %s", p.IssueID, p.Title)
	}
	return p.Title
}

// Multi fans a notification out to several sinks. A failing sink is logged
// and skipped; the rest still receive the notification.
type Multi struct {
	sinks []Notifier
}

// NewMulti creates a dispatcher over the given sinks.
func NewMulti(sinks ...Notifier) *Multi {
	return &Multi{sinks: sinks}
}

// Notify delivers to every sink, best-effort.
func (m *Multi) Notify(ctx context.Context, p Payload) error {
	for _, sink := range m.sinks {
		if err := sink.Notify(ctx, p); err != nil {
			log.Printf("Warning: notification sink failed: %v", err)
		}
	}
	return nil
}
