// Package verify decides whether a pending issue can be closed
// automatically, and closes it when the evidence clears the bar.
//
// Closure requires all of: no vetoing check failed, the issue's category
// permits automatic closure, and the weighted confidence meets the
// threshold. Build and tests are the only vetoing checks.
package verify

import (
	"context"
	"fmt"
	"log"
	"math"
	"time"

	"github.com/wardenhq/warden/internal/audit"
	"github.com/wardenhq/warden/internal/gitlog"
	"github.com/wardenhq/warden/internal/storage"
	"github.com/wardenhq/warden/internal/tracker"
	"github.com/wardenhq/warden/internal/types"
)

// Triggers recorded on verification results.
const (
	TriggerCommitReference = "commit-reference"
	TriggerManual          = "manual"
)

// closeActor is the actor recorded on automatic closure transitions.
const closeActor = "auto-closer"

// Verifier runs closure verification against the working tree.
type Verifier struct {
	store    storage.Storage
	runner   CheckRunner
	git      gitlog.Reader   // optional; nil fails the related-file check
	external tracker.Tracker // optional; closes the mirrored issue
	auditor  *audit.Logger   // optional
	cfg      Config
}

// New creates a verifier. git, external, and auditor may be nil.
func New(store storage.Storage, runner CheckRunner, git gitlog.Reader, external tracker.Tracker, auditor *audit.Logger, cfg Config) (*Verifier, error) {
	if store == nil {
		return nil, fmt.Errorf("storage is required")
	}
	if runner == nil {
		return nil, fmt.Errorf("check runner is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Verifier{
		store:    store,
		runner:   runner,
		git:      git,
		external: external,
		auditor:  auditor,
		cfg:      cfg,
	}, nil
}

// Verify runs the full check suite for one issue and closes it when the
// verdict allows. The returned result describes the verdict either way; the
// error is reserved for issues that cannot be verified at all (already
// closed, storage failures).
func (v *Verifier) Verify(ctx context.Context, issue *types.Issue, trigger string) (*types.VerificationResult, error) {
	if issue.Status == types.StatusClosed {
		return nil, fmt.Errorf("%w: %s", storage.ErrAlreadyClosed, issue.ID)
	}

	result := &types.VerificationResult{
		Trigger:    trigger,
		VerifiedAt: time.Now().UTC(),
	}

	// Vetoing checks run first; a veto ends the attempt immediately.
	for _, vc := range []struct {
		kind   types.CheckKind
		weight float64
	}{
		{types.CheckBuild, WeightBuild},
		{types.CheckTests, WeightTests},
	} {
		credit, check, vetoed := v.runCheck(ctx, vc.kind, vc.weight)
		result.Checks = append(result.Checks, check)
		result.Confidence += credit
		if vetoed {
			result.CanClose = false
			result.Reason = fmt.Sprintf("%s check failed", vc.kind)
			v.auditAttempt(issue, result)
			return result, nil
		}
	}

	// Advisory checks: failure costs credit but cannot veto.
	credit, lintCheck, _ := v.runCheck(ctx, types.CheckLint, WeightLint)
	result.Checks = append(result.Checks, lintCheck)
	result.Confidence += credit

	relatedCheck := v.relatedFileCheck(ctx, issue)
	result.Checks = append(result.Checks, relatedCheck)
	if relatedCheck.Passed {
		result.Confidence += WeightRelatedFile
	}

	// Float credit can overshoot 1.0 by an ulp.
	result.Confidence = math.Min(result.Confidence, 1.0)

	// The category restriction is absolute: a manual-only issue never
	// closes through this path, whatever the trigger or the confidence.
	switch {
	case v.cfg.manualOnly(issue.Category):
		result.CanClose = false
		result.Reason = fmt.Sprintf("category %q requires manual verification", issue.Category)
	case result.Confidence < v.cfg.Threshold:
		result.CanClose = false
		result.Reason = fmt.Sprintf("confidence %.1f%% below threshold %.1f%%",
			result.Confidence*100, v.cfg.Threshold*100)
	default:
		result.CanClose = true
		result.Reason = "all checks passed"
	}

	if !result.CanClose {
		v.auditAttempt(issue, result)
		return result, nil
	}

	result.Evidence = v.gatherEvidence(ctx)

	if err := v.store.RecordClosure(ctx, issue.ID, result, closeActor); err != nil {
		// A concurrent closure is not a failure of this verdict.
		v.auditAttempt(issue, result)
		return result, fmt.Errorf("failed to record closure of %s: %w", issue.ID, err)
	}
	issue.Status = types.StatusClosed
	issue.Closure = result

	if v.external != nil && issue.ExternalID != nil {
		comment := fmt.Sprintf("Closed automatically: %s (confidence %.0f%%)",
			result.Reason, result.Confidence*100)
		if err := v.external.Close(ctx, *issue.ExternalID, comment); err != nil {
			log.Printf("Warning: failed to close external issue #%d: %v", *issue.ExternalID, err)
		}
	}

	v.auditAttempt(issue, result)
	return result, nil
}

// ProcessPending verifies every pending-closure issue, closing those that
// pass. Per-issue failures are logged and skipped.
func (v *Verifier) ProcessPending(ctx context.Context) (closed, examined int, err error) {
	status := types.StatusPendingClosure
	issues, err := v.store.ListIssues(ctx, types.IssueFilter{Status: &status})
	if err != nil {
		return 0, 0, fmt.Errorf("failed to list pending issues: %w", err)
	}

	for _, issue := range issues {
		examined++
		result, err := v.Verify(ctx, issue, TriggerCommitReference)
		if err != nil {
			log.Printf("Warning: verification failed for %s: %v", issue.ID, err)
			continue
		}
		if result.CanClose {
			closed++
		}
	}
	return closed, examined, nil
}

// runCheck executes one command-backed check. vetoed is true only for an
// enabled check that failed and carries veto power.
func (v *Verifier) runCheck(ctx context.Context, kind types.CheckKind, weight float64) (credit float64, check types.CheckResult, vetoed bool) {
	cfg := v.cfg.checkFor(kind)
	if !cfg.Enabled {
		credit, check = ScorePolicyDisabledCountsAsPass(kind, weight)
		return credit, check, false
	}

	passed, output := v.runner.Run(ctx, kind, cfg)
	check = types.CheckResult{Kind: kind, Enabled: true, Passed: passed}
	if !passed {
		check.Output = output
		veto := kind == types.CheckBuild || kind == types.CheckTests
		return 0, check, veto
	}
	return weight, check, false
}

// relatedFileCheck passes when the issue's file, or any of its related
// files, appears in the commits of the recent window.
func (v *Verifier) relatedFileCheck(ctx context.Context, issue *types.Issue) types.CheckResult {
	check := types.CheckResult{Kind: types.CheckRelatedFile, Enabled: true}

	watched := make(map[string]bool, 1+len(issue.RelatedFiles))
	if issue.File != "" {
		watched[issue.File] = true
	}
	for _, f := range issue.RelatedFiles {
		watched[f] = true
	}
	if len(watched) == 0 {
		check.Output = "no files associated with issue"
		return check
	}
	if v.git == nil {
		check.Output = "git history unavailable"
		return check
	}

	files, err := v.git.FilesTouched(ctx, v.cfg.WorkingDir, v.cfg.CommitWindow)
	if err != nil {
		check.Output = fmt.Sprintf("git history unavailable: %v", err)
		return check
	}
	for _, f := range files {
		if watched[f] {
			check.Passed = true
			return check
		}
	}
	check.Output = "no issue file touched in recent commits"
	return check
}

// gatherEvidence snapshots recent git history for the closure record.
// Evidence is best-effort: a failure here never blocks the closure.
func (v *Verifier) gatherEvidence(ctx context.Context) *types.Evidence {
	if v.git == nil {
		return nil
	}

	evidence := &types.Evidence{}
	commits, err := v.git.RecentCommits(ctx, v.cfg.WorkingDir, v.cfg.CommitWindow)
	if err != nil {
		log.Printf("Warning: failed to gather commit evidence: %v", err)
	} else {
		evidence.Commits = commits
	}

	files, err := v.git.FilesTouched(ctx, v.cfg.WorkingDir, v.cfg.CommitWindow)
	if err != nil {
		log.Printf("Warning: failed to gather file evidence: %v", err)
	} else {
		if len(files) > v.cfg.MaxEvidenceFiles {
			files = files[:v.cfg.MaxEvidenceFiles]
		}
		evidence.FilesTouched = files
	}

	if len(evidence.Commits) == 0 && len(evidence.FilesTouched) == 0 {
		return nil
	}
	return evidence
}

func (v *Verifier) auditAttempt(issue *types.Issue, result *types.VerificationResult) {
	if v.auditor == nil {
		return
	}
	v.auditor.Log(audit.EventClosureAttempt, map[string]interface{}{
		"issue_id":   issue.ID,
		"trigger":    result.Trigger,
		"confidence": result.Confidence,
		"can_close":  result.CanClose,
		"reason":     result.Reason,
	})
}
