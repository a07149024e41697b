// Package lifecycle advances issue state from ambient activity signals:
// external tracker state, tracker comments, and commit references.
//
// Each pass processes a batch of non-closed issues. Signals are checked in
// strict precedence order per issue; the first signal that fires decides the
// transition and the rest are not consulted.
package lifecycle

import (
	"context"
	"fmt"
	"log"
	"regexp"
	"strconv"
	"time"

	"github.com/wardenhq/warden/internal/audit"
	"github.com/wardenhq/warden/internal/gitlog"
	"github.com/wardenhq/warden/internal/notify"
	"github.com/wardenhq/warden/internal/storage"
	"github.com/wardenhq/warden/internal/tracker"
	"github.com/wardenhq/warden/internal/types"
)

// triggerName identifies this component in state history entries.
const triggerName = "lifecycle-tracker"

// commitWindow is how many recent commits are scanned for issue references.
const commitWindow = 10

// commitRefPattern matches closing references in commit subjects,
// e.g. "fixes #42" or "Closes #7".
var commitRefPattern = regexp.MustCompile(`(?i)\b(?:fixes|closes)\s+#(\d+)\b`)

// inProgressPattern matches tracker comments that indicate someone has
// started working on the issue.
var inProgressPattern = regexp.MustCompile(`(?i)\b(?:working on|in progress|looking into|investigating|started on)\b`)

// Config holds the lifecycle pass settings.
type Config struct {
	// StaleAfter is how long an issue may go without updates before a
	// reminder fires. Zero means the default of 14 days.
	StaleAfter types.Duration `yaml:"stale_after"`

	// RepoPath is the repository scanned for commit references.
	RepoPath string `yaml:"repo_path"`

	// BatchLimit caps how many issues one pass processes. Zero means
	// unlimited.
	BatchLimit int `yaml:"batch_limit"`
}

// DefaultConfig returns the default lifecycle configuration.
func DefaultConfig() Config {
	return Config{
		StaleAfter: types.Duration(14 * 24 * time.Hour),
		RepoPath:   ".",
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.StaleAfter < 0 {
		return fmt.Errorf("stale_after cannot be negative")
	}
	if c.BatchLimit < 0 {
		return fmt.Errorf("batch_limit cannot be negative")
	}
	return nil
}

// Tracker runs periodic lifecycle passes over the issue store.
type Tracker struct {
	store    storage.Storage
	external tracker.Tracker // optional; nil disables tracker signals
	git      gitlog.Reader   // optional; nil disables commit references
	notifier notify.Notifier // optional; nil disables stale reminders
	auditor  *audit.Logger   // optional
	cfg      Config

	// now is swappable for tests
	now func() time.Time
}

// New creates a lifecycle tracker. external, git, notifier, and auditor may
// each be nil to disable the corresponding signal or side effect.
func New(store storage.Storage, external tracker.Tracker, git gitlog.Reader, notifier notify.Notifier, auditor *audit.Logger, cfg Config) (*Tracker, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.StaleAfter == 0 {
		cfg.StaleAfter = DefaultConfig().StaleAfter
	}
	return &Tracker{
		store:    store,
		external: external,
		git:      git,
		notifier: notifier,
		auditor:  auditor,
		cfg:      cfg,
		now:      time.Now,
	}, nil
}

// PassResult summarizes one lifecycle pass.
type PassResult struct {
	Processed      int
	Closed         int
	InProgress     int
	PendingClosure int
	StaleReminders int
}

// RunOnce executes a single lifecycle pass. Per-issue failures are logged
// and skipped; the pass continues with the remaining issues.
func (t *Tracker) RunOnce(ctx context.Context) (*PassResult, error) {
	issues, err := t.store.ListIssues(ctx, types.IssueFilter{
		ExcludeClosed: true,
		Limit:         t.cfg.BatchLimit,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list issues: %w", err)
	}

	// Commit references are shared across the batch, so read them once.
	refs := t.referencedExternalIDs(ctx)

	result := &PassResult{}
	for _, issue := range issues {
		result.Processed++
		if err := t.processIssue(ctx, issue, refs, result); err != nil {
			log.Printf("Warning: lifecycle pass failed for %s: %v", issue.ID, err)
		}
	}
	return result, nil
}

// processIssue applies the precedence chain to one issue, then the
// staleness check. Staleness is independent of the derived transition.
func (t *Tracker) processIssue(ctx context.Context, issue *types.Issue, refs map[int64]bool, result *PassResult) error {
	target, reason := t.deriveStatus(ctx, issue, refs)
	if target != issue.Status {
		if err := t.transition(ctx, issue, target, reason, result); err != nil {
			return err
		}
		if target == types.StatusClosed {
			// Terminal; no stale reminder for an issue closed this pass.
			return nil
		}
		issue.LastUpdated = t.now().UTC()
	}

	return t.checkStale(ctx, issue, result)
}

// deriveStatus returns the status the precedence chain selects, which may be
// the current status when no signal fires or the transition is not legal.
func (t *Tracker) deriveStatus(ctx context.Context, issue *types.Issue, refs map[int64]bool) (types.Status, string) {
	if issue.ExternalID != nil && t.external != nil {
		closed, err := t.external.IsClosed(ctx, *issue.ExternalID)
		if err != nil {
			log.Printf("Warning: tracker state check failed for %s: %v", issue.ID, err)
		} else if closed {
			return types.StatusClosed, "external tracker closed"
		}

		comments, err := t.external.Comments(ctx, *issue.ExternalID)
		if err != nil {
			log.Printf("Warning: tracker comment check failed for %s: %v", issue.ID, err)
		} else if hasInProgressMarker(comments) && issue.Status.CanTransitionTo(types.StatusInProgress) {
			return types.StatusInProgress, "in-progress comment"
		}

		if refs[*issue.ExternalID] && issue.Status.CanTransitionTo(types.StatusPendingClosure) {
			return types.StatusPendingClosure, "commit reference"
		}
	}

	return issue.Status, ""
}

func (t *Tracker) transition(ctx context.Context, issue *types.Issue, to types.Status, reason string, result *PassResult) error {
	if err := t.store.UpdateStatus(ctx, issue.ID, to, triggerName); err != nil {
		return fmt.Errorf("failed to transition to %s: %w", to, err)
	}
	issue.Status = to

	switch to {
	case types.StatusClosed:
		result.Closed++
	case types.StatusInProgress:
		result.InProgress++
	case types.StatusPendingClosure:
		result.PendingClosure++
	}

	if t.auditor != nil {
		t.auditor.Log(audit.EventStateTransition, map[string]string{
			"issue_id": issue.ID,
			"to":       string(to),
			"reason":   reason,
			"trigger":  triggerName,
		})
	}
	return nil
}

// checkStale emits at most one reminder per issue over its lifetime.
// The store's flag flip is the idempotency gate, so concurrent passes
// cannot double-send.
func (t *Tracker) checkStale(ctx context.Context, issue *types.Issue, result *PassResult) error {
	if issue.StaleReminderSent {
		return nil
	}
	if t.now().UTC().Sub(issue.LastUpdated) < t.cfg.StaleAfter.Std() {
		return nil
	}

	flipped, err := t.store.MarkStaleReminderSent(ctx, issue.ID)
	if err != nil {
		return fmt.Errorf("failed to mark stale reminder: %w", err)
	}
	if !flipped {
		return nil
	}

	result.StaleReminders++
	if t.notifier != nil {
		days := int(t.cfg.StaleAfter.Std().Hours() / 24)
		t.notifier.Notify(ctx, notify.Payload{
			Title:    fmt.Sprintf("no activity for %d days", days),
			Body:     fmt.Sprintf("last updated %s", issue.LastUpdated.Format(time.RFC3339)),
			Severity: issue.Severity,
			IssueID:  issue.ID,
		})
	}
	return nil
}

// referencedExternalIDs scans the recent commit window for closing
// references and returns the set of referenced issue numbers.
func (t *Tracker) referencedExternalIDs(ctx context.Context) map[int64]bool {
	if t.git == nil {
		return nil
	}

	commits, err := t.git.RecentCommits(ctx, t.cfg.RepoPath, commitWindow)
	if err != nil {
		log.Printf("Warning: commit scan failed: %v", err)
		return nil
	}

	refs := make(map[int64]bool)
	for _, c := range commits {
		for _, m := range commitRefPattern.FindAllStringSubmatch(c.Message, -1) {
			if n, err := strconv.ParseInt(m[1], 10, 64); err == nil {
				refs[n] = true
			}
		}
	}
	return refs
}

func hasInProgressMarker(comments []string) bool {
	for _, c := range comments {
		if inProgressPattern.MatchString(c) {
			return true
		}
	}
	return false
}
