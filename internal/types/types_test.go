package types

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusTransitions(t *testing.T) {
	tests := []struct {
		name    string
		from    Status
		to      Status
		allowed bool
	}{
		{"open to in_progress", StatusOpen, StatusInProgress, true},
		{"open to pending_closure", StatusOpen, StatusPendingClosure, true},
		{"open to closed", StatusOpen, StatusClosed, true},
		{"in_progress to pending_closure", StatusInProgress, StatusPendingClosure, true},
		{"in_progress to closed", StatusInProgress, StatusClosed, true},
		{"in_progress back to open", StatusInProgress, StatusOpen, false},
		{"pending_closure to closed", StatusPendingClosure, StatusClosed, true},
		{"pending_closure back to open", StatusPendingClosure, StatusOpen, false},
		{"pending_closure back to in_progress", StatusPendingClosure, StatusInProgress, false},
		{"closed is terminal", StatusClosed, StatusOpen, false},
		{"closed to closed", StatusClosed, StatusClosed, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.allowed, tt.from.CanTransitionTo(tt.to))
		})
	}
}

func TestSeverityRank(t *testing.T) {
	assert.Greater(t, SeverityCritical.Rank(), SeverityHigh.Rank())
	assert.Greater(t, SeverityHigh.Rank(), SeverityMedium.Rank())
	assert.Greater(t, SeverityMedium.Rank(), SeverityLow.Rank())
	assert.Equal(t, 0, Severity("bogus").Rank())
}

func TestIssueValidate(t *testing.T) {
	valid := Issue{
		Title:    "error TS2345 in lib/validate.go",
		Status:   StatusOpen,
		Severity: SeverityHigh,
		Category: "type-error",
	}
	require.NoError(t, valid.Validate())

	tests := []struct {
		name   string
		mutate func(*Issue)
		errMsg string
	}{
		{"missing title", func(i *Issue) { i.Title = "" }, "title is required"},
		{"bad status", func(i *Issue) { i.Status = "verifying" }, "invalid status"},
		{"bad severity", func(i *Issue) { i.Severity = "urgent" }, "invalid severity"},
		{"missing category", func(i *Issue) { i.Category = "" }, "category is required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			issue := valid
			tt.mutate(&issue)
			err := issue.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestVerificationResultValidate(t *testing.T) {
	vr := VerificationResult{
		Confidence: 0.9,
		Reason:     "confidence 90.0% below threshold 95.0%",
		VerifiedAt: time.Now(),
	}
	require.NoError(t, vr.Validate())

	vr.Confidence = 1.2
	require.Error(t, vr.Validate())

	vr.Confidence = -0.1
	require.Error(t, vr.Validate())

	vr.Confidence = 0.5
	vr.Reason = ""
	require.Error(t, vr.Validate())
}

func TestVerificationResultCheckLookup(t *testing.T) {
	vr := VerificationResult{
		Checks: []CheckResult{
			{Kind: CheckBuild, Enabled: true, Passed: true},
			{Kind: CheckLint, Enabled: false, Passed: false},
		},
	}

	build := vr.Check(CheckBuild)
	require.NotNil(t, build)
	assert.True(t, build.Passed)

	assert.Nil(t, vr.Check(CheckTests))
}
