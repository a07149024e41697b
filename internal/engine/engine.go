// Package engine wires classification, deduplication, and persistence into
// the signal intake pipeline.
package engine

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/wardenhq/warden/internal/audit"
	"github.com/wardenhq/warden/internal/classifier"
	"github.com/wardenhq/warden/internal/dedup"
	"github.com/wardenhq/warden/internal/storage"
	"github.com/wardenhq/warden/internal/tracker"
	"github.com/wardenhq/warden/internal/types"
)

// maxTitleLen keeps generated titles within the store's limit.
const maxTitleLen = 500

// Action describes what the engine did with a signal.
type Action string

const (
	ActionIgnored   Action = "ignored"
	ActionDuplicate Action = "duplicate"
	ActionCreated   Action = "created"
)

// Outcome is the result of processing one signal.
type Outcome struct {
	// SignalID is a unique id assigned to the signal for audit correlation.
	SignalID string
	Action   Action
	Reason   string

	// Issue is set when Action is created.
	Issue *types.Issue

	// Decision is the dedup verdict; nil when the signal was ignored before
	// reaching the resolver.
	Decision *dedup.Decision
}

// Config holds the intake pipeline settings.
type Config struct {
	// MinSeverity is the auto-create threshold: signals classified below it
	// are recorded in the audit trail but never become issues.
	MinSeverity types.Severity `yaml:"min_severity"`
}

// DefaultConfig returns the default engine configuration.
func DefaultConfig() Config {
	return Config{MinSeverity: types.SeverityMedium}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.MinSeverity != "" && !c.MinSeverity.IsValid() {
		return fmt.Errorf("invalid min_severity: %s", c.MinSeverity)
	}
	return nil
}

// Engine runs the intake pipeline: classify, resolve duplicates, persist.
type Engine struct {
	classifier *classifier.Classifier
	resolver   *dedup.Resolver
	store      storage.Storage
	external   tracker.Tracker // optional
	auditor    *audit.Logger   // optional
	cfg        Config

	// mu serializes the resolve-then-create window so two identical signals
	// arriving together cannot both pass the duplicate check.
	mu sync.Mutex
}

// New creates an engine. external and auditor may be nil.
func New(cl *classifier.Classifier, resolver *dedup.Resolver, store storage.Storage, external tracker.Tracker, auditor *audit.Logger, cfg Config) (*Engine, error) {
	if cl == nil || resolver == nil || store == nil {
		return nil, fmt.Errorf("classifier, resolver, and storage are required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.MinSeverity == "" {
		cfg.MinSeverity = DefaultConfig().MinSeverity
	}
	return &Engine{
		classifier: cl,
		resolver:   resolver,
		store:      store,
		external:   external,
		auditor:    auditor,
		cfg:        cfg,
	}, nil
}

// Process runs one signal through the pipeline.
func (e *Engine) Process(ctx context.Context, sig types.ErrorSignal) (*Outcome, error) {
	out := &Outcome{SignalID: uuid.NewString()}

	ic := e.classifier.Classify(ctx, sig)
	if ic == nil {
		out.Action = ActionIgnored
		out.Reason = "signal did not classify as a problem report"
		e.auditDetection(out, nil)
		return out, nil
	}

	if ic.Severity.Rank() < e.cfg.MinSeverity.Rank() {
		out.Action = ActionIgnored
		out.Reason = fmt.Sprintf("severity %s below auto-create threshold %s", ic.Severity, e.cfg.MinSeverity)
		e.auditDetection(out, ic)
		return out, nil
	}

	// The duplicate check and the create must be atomic with respect to
	// other signals; otherwise two identical signals racing through would
	// both come out novel.
	e.mu.Lock()
	defer e.mu.Unlock()

	active, err := e.store.ListIssues(ctx, types.IssueFilter{ExcludeClosed: true})
	if err != nil {
		return nil, fmt.Errorf("failed to list active issues: %w", err)
	}

	decision := e.resolver.Resolve(ctx, ic, active)
	out.Decision = decision
	e.auditDecision(out, decision)

	if decision.Kind == dedup.KindDuplicate {
		out.Action = ActionDuplicate
		out.Reason = fmt.Sprintf("duplicate of %s (%s, confidence %.2f)",
			decision.MatchedID, decision.Method, decision.Confidence)
		e.auditDetection(out, ic)
		return out, nil
	}

	issue := issueFrom(ic, decision)
	if err := e.store.CreateIssue(ctx, issue, "signal-classifier"); err != nil {
		return nil, fmt.Errorf("failed to create issue: %w", err)
	}
	out.Action = ActionCreated
	out.Issue = issue
	out.Reason = string(decision.Kind)

	e.register(ctx, issue)
	e.auditDetection(out, ic)
	return out, nil
}

// register mirrors the issue to the external tracker, best-effort.
func (e *Engine) register(ctx context.Context, issue *types.Issue) {
	if e.external == nil {
		return
	}

	externalID, err := e.external.Create(ctx, issue)
	if err != nil {
		log.Printf("Warning: failed to register %s externally: %v", issue.ID, err)
		return
	}
	if err := e.store.SetExternalID(ctx, issue.ID, externalID); err != nil {
		log.Printf("Warning: failed to record external id for %s: %v", issue.ID, err)
		return
	}
	issue.ExternalID = &externalID
}

// issueFrom builds a persistable issue from a classified context.
func issueFrom(ic *types.IssueContext, decision *dedup.Decision) *types.Issue {
	labels := append([]string(nil), ic.Labels...)
	if decision.Kind == dedup.KindRelated && decision.Component != "" {
		labels = append(labels, "component:"+decision.Component)
	}

	return &types.Issue{
		Title:        titleFrom(ic.ErrorText),
		ErrorText:    ic.ErrorText,
		Source:       ic.Source,
		File:         ic.File,
		Line:         ic.Line,
		Severity:     ic.Severity,
		Category:     ic.Category,
		Labels:       labels,
		RelatedFiles: append([]string(nil), ic.RelatedFiles...),
		Status:       types.StatusOpen,
	}
}

// titleFrom derives a title from the first line of the error text.
func titleFrom(text string) string {
	title := text
	if i := strings.IndexByte(title, '\n'); i >= 0 {
		title = title[:i]
	}
	title = strings.TrimSpace(title)
	if len(title) > maxTitleLen {
		title = title[:maxTitleLen]
	}
	if title == "" {
		title = "untitled issue"
	}
	return title
}

func (e *Engine) auditDetection(out *Outcome, ic *types.IssueContext) {
	if e.auditor == nil {
		return
	}
	payload := map[string]interface{}{
		"signal_id": out.SignalID,
		"action":    string(out.Action),
		"reason":    out.Reason,
	}
	if ic != nil {
		payload["category"] = ic.Category
		payload["severity"] = string(ic.Severity)
	}
	if out.Issue != nil {
		payload["issue_id"] = out.Issue.ID
	}
	e.auditor.Log(audit.EventDetection, payload)
}

func (e *Engine) auditDecision(out *Outcome, d *dedup.Decision) {
	if e.auditor == nil {
		return
	}
	e.auditor.Log(audit.EventDedupDecision, map[string]interface{}{
		"signal_id":        out.SignalID,
		"kind":             string(d.Kind),
		"matched_id":       d.MatchedID,
		"confidence":       d.Confidence,
		"method":           string(d.Method),
		"compared":         d.ComparedCount,
		"semantic_skipped": d.SemanticSkipped,
	})
}
