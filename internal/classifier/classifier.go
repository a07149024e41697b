// Package classifier turns raw error signals into structured issue contexts.
//
// Classification is deliberately forgiving: malformed or partial signals
// degrade to defaults (category "unknown", severity medium) and enrichment
// failures degrade to empty lists. The classifier never returns an error for
// bad input; the only nil result is a manual free-text report that does not
// look like a problem report at all.
package classifier

import (
	"context"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/wardenhq/warden/internal/types"
)

const (
	// maxErrorText caps stored error text, matching the upstream detector
	maxErrorText = 1000

	maxStackLines       = 5
	maxRelatedFiles     = 5
	maxRelatedDecisions = 3
)

// CodebaseLookup supplies related-artifact enrichment. Implementations are
// expected to be fallible; the classifier treats any error as "no results".
type CodebaseLookup interface {
	// RelatedFiles returns files known to be coupled to the given file.
	RelatedFiles(ctx context.Context, file string) ([]string, error)

	// RelatedDecisions returns design-decision references for a file or a
	// domain keyword (either may be empty).
	RelatedDecisions(ctx context.Context, file, domain string) ([]string, error)
}

// Classifier converts ErrorSignals into IssueContexts.
type Classifier struct {
	lookup CodebaseLookup // optional; nil disables enrichment
}

// New creates a classifier. lookup may be nil, in which case related-file
// and related-decision enrichment is skipped.
func New(lookup CodebaseLookup) *Classifier {
	return &Classifier{lookup: lookup}
}

// Classify builds an IssueContext from a raw signal.
// It returns nil when a manual free-text report does not match the problem
// vocabulary; every other signal yields a context, falling back to category
// "unknown" and severity medium when no pattern matches.
func (c *Classifier) Classify(ctx context.Context, sig types.ErrorSignal) *types.IssueContext {
	text := strings.TrimSpace(sig.Text)
	if text == "" {
		return nil
	}
	if sig.Source == types.SourceManual && !problemVocabulary.MatchString(text) {
		return nil
	}
	if len(text) > maxErrorText {
		text = text[:maxErrorText]
	}

	ic := &types.IssueContext{
		ErrorText: text,
		Source:    sig.Source,
		Timestamp: time.Now().UTC(),
		Severity:  types.SeverityMedium,
		Category:  CategoryUnknown,
	}

	// First matching rule wins; the table order is part of the contract.
	for _, r := range rules {
		if r.pattern.MatchString(text) {
			ic.Severity = r.severity
			ic.Category = r.category
			ic.Labels = append([]string(nil), r.labels...)
			break
		}
	}

	// Explicit severity from the signal wins over pattern-derived severity.
	if sig.Severity.IsValid() {
		ic.Severity = sig.Severity
	}

	// Boundary violations outrank everything, the explicit severity included.
	if boundaryMarker.MatchString(text) {
		ic.Severity = types.SeverityCritical
		ic.Category = CategoryArchitectureViolation
	}

	ic.File, ic.Line, ic.Column = extractLocation(text)
	if sig.File != "" {
		ic.File = sig.File
	}
	ic.StackExcerpt = extractStackExcerpt(text)

	c.enrich(ctx, ic)
	return ic
}

// locationPattern matches the first path-like substring, optionally followed
// by :line or :line:col.
var locationPattern = regexp.MustCompile(`([A-Za-z0-9_\-./\\]+\.[A-Za-z][A-Za-z0-9]{0,5})(?::(\d+))?(?::(\d+))?`)

func extractLocation(text string) (file string, line, col int) {
	m := locationPattern.FindStringSubmatch(text)
	if m == nil {
		return "", 0, 0
	}
	file = m[1]
	if m[2] != "" {
		line, _ = strconv.Atoi(m[2])
	}
	if m[3] != "" {
		col, _ = strconv.Atoi(m[3])
	}
	return file, line, col
}

// framePattern matches lines that look like call frames: JS "at fn (file)",
// Go "\tpkg/file.go:123", Python "File \"x.py\", line 7".
var framePattern = regexp.MustCompile(`^\s+at\s|^\s+[A-Za-z0-9_\-./\\]+\.[a-z]+:\d+|^\s*File "`)

func extractStackExcerpt(text string) []string {
	var frames []string
	for _, line := range strings.Split(text, "\n") {
		if framePattern.MatchString(line) {
			frames = append(frames, strings.TrimRight(line, " \t"))
			if len(frames) == maxStackLines {
				break
			}
		}
	}
	return frames
}

// enrich fills related files and decisions from the codebase lookup.
// Lookup failures degrade to empty lists; they never block classification.
func (c *Classifier) enrich(ctx context.Context, ic *types.IssueContext) {
	if c.lookup == nil {
		return
	}

	if ic.File != "" {
		if files, err := c.lookup.RelatedFiles(ctx, ic.File); err == nil {
			ic.RelatedFiles = capDedup(files, maxRelatedFiles)
		}
	}

	domain := detectDomain(ic.ErrorText)
	if ic.File != "" || domain != "" {
		if decisions, err := c.lookup.RelatedDecisions(ctx, ic.File, domain); err == nil {
			ic.RelatedDecisions = capDedup(decisions, maxRelatedDecisions)
		}
	}
}

// detectDomain returns the first domain keyword whose pattern matches.
// Iteration order over the map is not deterministic, so domains are checked
// in a fixed order to keep classification stable.
var domainOrder = []string{"auth", "database", "api", "ui", "build"}

func detectDomain(text string) string {
	for _, domain := range domainOrder {
		if domainPatterns[domain].MatchString(text) {
			return domain
		}
	}
	return ""
}

func capDedup(items []string, limit int) []string {
	seen := make(map[string]bool, len(items))
	var out []string
	for _, item := range items {
		if item == "" || seen[item] {
			continue
		}
		seen[item] = true
		out = append(out, item)
		if len(out) == limit {
			break
		}
	}
	return out
}
