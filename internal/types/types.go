package types

import (
	"fmt"
	"time"
)

// Issue represents one tracked problem and its lifecycle.
type Issue struct {
	// ID is the internal issue ID (e.g., "wd-42"), stable from creation
	ID string `json:"id"`

	// ExternalID is the external tracker's issue number.
	// Nil until the issue has been registered with the tracker.
	ExternalID *int64 `json:"external_id,omitempty"`

	Title     string   `json:"title"`
	ErrorText string   `json:"error_text"`
	Source    Source   `json:"source"`
	File      string   `json:"file,omitempty"`
	Line      int      `json:"line,omitempty"`
	Severity  Severity `json:"severity"`
	Category  string   `json:"category"`
	Labels    []string `json:"labels,omitempty"`

	// RelatedFiles carries the classification-time related-file list; the
	// closure verifier matches commit history against these too.
	RelatedFiles []string `json:"related_files,omitempty"`

	Status      Status    `json:"status"`
	CreatedAt   time.Time `json:"created_at"`
	LastUpdated time.Time `json:"last_updated"`

	// History is the append-only list of state transitions.
	// The first entry always has From == nil.
	History []StateTransition `json:"state_history"`

	// StaleReminderSent transitions false->true at most once per issue.
	StaleReminderSent bool `json:"stale_reminder_sent"`

	// Closure is set only by the auto-closer, on a closure attempt that succeeds.
	Closure *VerificationResult `json:"closure_verification,omitempty"`
}

// Validate checks if the issue has valid field values
func (i *Issue) Validate() error {
	if i.Title == "" {
		return fmt.Errorf("title is required")
	}
	if len(i.Title) > 500 {
		return fmt.Errorf("title must be 500 characters or less (got %d)", len(i.Title))
	}
	if !i.Status.IsValid() {
		return fmt.Errorf("invalid status: %s", i.Status)
	}
	if !i.Severity.IsValid() {
		return fmt.Errorf("invalid severity: %s", i.Severity)
	}
	if i.Category == "" {
		return fmt.Errorf("category is required")
	}
	return nil
}

// Status represents the current lifecycle state of an issue
type Status string

const (
	StatusOpen           Status = "open"
	StatusInProgress     Status = "in_progress"
	StatusPendingClosure Status = "pending_closure"
	StatusClosed         Status = "closed"
)

// IsValid checks if the status value is valid
func (s Status) IsValid() bool {
	switch s {
	case StatusOpen, StatusInProgress, StatusPendingClosure, StatusClosed:
		return true
	}
	return false
}

// CanTransitionTo reports whether the state machine permits moving from s to next.
// Closed is terminal; there is no reopen path.
func (s Status) CanTransitionTo(next Status) bool {
	switch s {
	case StatusOpen:
		return next == StatusInProgress || next == StatusPendingClosure || next == StatusClosed
	case StatusInProgress:
		return next == StatusPendingClosure || next == StatusClosed
	case StatusPendingClosure:
		return next == StatusClosed
	case StatusClosed:
		return false
	}
	return false
}

// StateTransition is one entry in an issue's append-only state history.
type StateTransition struct {
	// From is nil for the creation entry, otherwise the previous status
	From      *Status   `json:"from"`
	To        Status    `json:"to"`
	Timestamp time.Time `json:"timestamp"`
	// Trigger identifies the component that caused the transition
	// (e.g., "duplicate-resolver", "lifecycle-tracker", "auto-closer")
	Trigger string `json:"trigger"`
}

// Severity classifies how serious a detected problem is
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
)

// IsValid checks if the severity value is valid
func (s Severity) IsValid() bool {
	switch s {
	case SeverityCritical, SeverityHigh, SeverityMedium, SeverityLow:
		return true
	}
	return false
}

// Rank returns the ordering of a severity for threshold comparisons.
// Higher rank means more severe. Unknown severities rank lowest.
func (s Severity) Rank() int {
	switch s {
	case SeverityCritical:
		return 4
	case SeverityHigh:
		return 3
	case SeverityMedium:
		return 2
	case SeverityLow:
		return 1
	}
	return 0
}

// Source identifies where an error signal originated
type Source string

const (
	SourceTool   Source = "tool"   // tool output captured after execution
	SourceBuild  Source = "build"  // compiler/build output
	SourceTest   Source = "test"   // test runner output
	SourceLint   Source = "lint"   // linter output
	SourceManual Source = "manual" // free-text user report
)

// IsValid checks if the source value is valid
func (s Source) IsValid() bool {
	switch s {
	case SourceTool, SourceBuild, SourceTest, SourceLint, SourceManual:
		return true
	}
	return false
}

// ErrorSignal is a raw, unstructured error report before classification.
// Signals are transient and never persisted as-is.
type ErrorSignal struct {
	Text     string            `json:"text"`
	Source   Source            `json:"source"`
	File     string            `json:"file,omitempty"`
	Severity Severity          `json:"severity,omitempty"` // optional explicit override
	Metadata map[string]string `json:"metadata,omitempty"`
}

// IssueContext is the structured, enriched output of signal classification.
// It is transient: the duplicate resolver consumes it and either discards it
// (duplicate) or the engine turns it into a persisted Issue (novel).
type IssueContext struct {
	ErrorText        string    `json:"error_text"`
	Source           Source    `json:"source"`
	Timestamp        time.Time `json:"timestamp"`
	File             string    `json:"file,omitempty"`
	Line             int       `json:"line,omitempty"`
	Column           int       `json:"column,omitempty"`
	StackExcerpt     []string  `json:"stack_excerpt,omitempty"`
	Severity         Severity  `json:"severity"`
	Category         string    `json:"category"`
	Labels           []string  `json:"labels,omitempty"`
	RelatedFiles     []string  `json:"related_files,omitempty"`     // capped at 5
	RelatedDecisions []string  `json:"related_decisions,omitempty"` // capped at 3
}

// Statistics provides aggregate metrics over the issue store
type Statistics struct {
	TotalIssues       int     `json:"total_issues"`
	OpenIssues        int     `json:"open_issues"`
	InProgressIssues  int     `json:"in_progress_issues"`
	ClosedIssues      int     `json:"closed_issues"`
	AutoClosed        int     `json:"auto_closed"`
	ManualClosed      int     `json:"manual_closed"`
	AverageHoursToClose float64 `json:"average_hours_to_close"`
}

// IssueFilter is used to filter issue queries
type IssueFilter struct {
	Status        *Status
	Category      *string
	ExcludeClosed bool
	Limit         int
}
