package types

import (
	"fmt"
	"time"
)

// CheckKind identifies one verification check category
type CheckKind string

const (
	CheckBuild       CheckKind = "build"
	CheckTests       CheckKind = "tests"
	CheckLint        CheckKind = "lint"
	CheckRelatedFile CheckKind = "related_file_touched"
)

// CheckResult records the outcome of a single verification check.
type CheckResult struct {
	Kind    CheckKind `json:"kind"`
	Enabled bool      `json:"enabled"`
	Passed  bool      `json:"passed"`
	// Output holds truncated runner output for failed checks
	Output string `json:"output,omitempty"`
}

// Commit is one entry of recent git history attached as closure evidence.
type Commit struct {
	Hash    string `json:"hash"`
	Message string `json:"message"`
}

// Evidence captures the git history snapshot gathered when an issue closes.
type Evidence struct {
	Commits      []Commit `json:"commits"`       // up to 10 most recent
	FilesTouched []string `json:"files_touched"` // union over the window, capped
}

// VerificationResult is the outcome of one auto-closure attempt.
// It is embedded in the Issue only when the attempt succeeds; failed
// attempts are recorded in the audit log instead.
type VerificationResult struct {
	Checks     []CheckResult `json:"checks"`
	Confidence float64       `json:"confidence"` // always within [0,1]
	CanClose   bool          `json:"can_close"`
	Reason     string        `json:"reason"`
	Trigger    string        `json:"trigger"` // "commit-reference" or "manual"
	Evidence   *Evidence     `json:"evidence,omitempty"`
	VerifiedAt time.Time     `json:"verified_at"`
}

// Validate checks if the verification result has valid values
func (v *VerificationResult) Validate() error {
	if v.Confidence < 0.0 || v.Confidence > 1.0 {
		return fmt.Errorf("confidence must be between 0.0 and 1.0 (got %.2f)", v.Confidence)
	}
	if v.Reason == "" {
		return fmt.Errorf("reason is required")
	}
	return nil
}

// Check returns the result for a given check kind, or nil if absent.
func (v *VerificationResult) Check(kind CheckKind) *CheckResult {
	for i := range v.Checks {
		if v.Checks[i].Kind == kind {
			return &v.Checks[i]
		}
	}
	return nil
}
