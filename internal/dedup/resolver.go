// Package dedup decides whether a newly classified issue context duplicates
// an already-open issue.
//
// Three tiers run in strict order with short-circuiting: exact text+file
// match, semantic embedding similarity, then shared-component detection.
// Reordering the tiers changes observable confidence values and is a
// correctness violation, not an optimization.
package dedup

import (
	"context"
	"fmt"
	"log"
	"path"
	"strings"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/wardenhq/warden/internal/embedding"
	"github.com/wardenhq/warden/internal/types"
)

// Method identifies which tier produced a duplicate match
type Method string

const (
	MethodExact    Method = "exact"
	MethodSemantic Method = "semantic"
)

// Kind is the overall outcome of a resolution
type Kind string

const (
	// KindDuplicate means an open issue already tracks this problem;
	// no new issue may be created.
	KindDuplicate Kind = "duplicate"
	// KindRelated means the context shares a component with open issues but
	// is a distinct problem; creation proceeds with cross-references.
	KindRelated Kind = "related"
	// KindNovel means no open issue matches.
	KindNovel Kind = "novel"
)

// Decision is the result of resolving one issue context against the open set.
type Decision struct {
	Kind Kind `json:"kind"`

	// MatchedID is the open issue this context duplicates (duplicate only)
	MatchedID string `json:"matched_id,omitempty"`

	// Confidence is 1.0 for exact matches and the cosine similarity for
	// semantic matches; 0 otherwise.
	Confidence float64 `json:"confidence"`

	// Method is set for duplicates only
	Method Method `json:"method,omitempty"`

	// Component is the shared component token (related only)
	Component string `json:"component,omitempty"`

	// RelatedIDs lists open issues sharing the component (related only)
	RelatedIDs []string `json:"related_ids,omitempty"`

	// ComparedCount is how many open issues were considered
	ComparedCount int `json:"compared_count"`

	// SemanticSkipped records that the semantic tier was skipped because the
	// provider was unavailable. Surfaced only through the audit log.
	SemanticSkipped bool `json:"semantic_skipped,omitempty"`
}

// Validate checks if the decision has valid values
func (d *Decision) Validate() error {
	if d.Confidence < 0.0 || d.Confidence > 1.0 {
		return fmt.Errorf("confidence must be between 0.0 and 1.0 (got %.2f)", d.Confidence)
	}
	switch d.Kind {
	case KindDuplicate:
		if d.MatchedID == "" {
			return fmt.Errorf("matched_id must be set for duplicate decisions")
		}
		if d.Method == "" {
			return fmt.Errorf("method must be set for duplicate decisions")
		}
	case KindRelated:
		if len(d.RelatedIDs) == 0 {
			return fmt.Errorf("related_ids must be set for related decisions")
		}
	case KindNovel:
		if d.MatchedID != "" || len(d.RelatedIDs) > 0 {
			return fmt.Errorf("novel decisions must not reference other issues")
		}
	default:
		return fmt.Errorf("invalid kind: %s", d.Kind)
	}
	return nil
}

// Resolver evaluates the three dedup tiers.
type Resolver struct {
	embedder embedding.Generator // nil disables the semantic tier
	cfg      Config
}

// New creates a resolver. embedder may be nil, which disables the semantic
// tier (exact and component tiers still run).
func New(embedder embedding.Generator, cfg Config) (*Resolver, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid dedup config: %w", err)
	}
	return &Resolver{embedder: embedder, cfg: cfg}, nil
}

// Resolve decides whether ic duplicates, relates to, or is novel against
// the given open issues. It never returns an error: provider failures
// degrade by skipping the semantic tier for this call only.
func (r *Resolver) Resolve(ctx context.Context, ic *types.IssueContext, open []*types.Issue) *Decision {
	// Tier 1: exact — normalized error text and file path both equal.
	normText := embedding.Normalize(ic.ErrorText)
	for _, issue := range open {
		if embedding.Normalize(issue.ErrorText) == normText && issue.File == ic.File {
			return &Decision{
				Kind:          KindDuplicate,
				MatchedID:     issue.ID,
				Confidence:    1.0,
				Method:        MethodExact,
				ComparedCount: len(open),
			}
		}
	}

	// Tier 2: semantic — embedding cosine similarity against each candidate.
	semanticSkipped := false
	if r.embedder != nil && len(open) > 0 {
		decision, skipped := r.resolveSemantic(ctx, ic, open)
		if decision != nil {
			return decision
		}
		semanticSkipped = skipped
	}

	// Tier 3: component — shared component token means related, not duplicate.
	if component := componentOf(ic.File); component != "" {
		var related []string
		for _, issue := range open {
			if componentOf(issue.File) == component {
				related = append(related, issue.ID)
			}
		}
		if len(related) > 0 {
			return &Decision{
				Kind:            KindRelated,
				Component:       component,
				RelatedIDs:      related,
				ComparedCount:   len(open),
				SemanticSkipped: semanticSkipped,
			}
		}
	}

	return &Decision{
		Kind:            KindNovel,
		ComparedCount:   len(open),
		SemanticSkipped: semanticSkipped,
	}
}

// resolveSemantic runs tier 2. It returns (nil, true) when the provider is
// unavailable and the tier must be skipped, and (nil, false) when the tier
// ran but found no match above the threshold.
func (r *Resolver) resolveSemantic(ctx context.Context, ic *types.IssueContext, open []*types.Issue) (*Decision, bool) {
	embedCtx, cancel := context.WithTimeout(ctx, r.cfg.EmbedTimeout.Std())
	defer cancel()

	target, err := r.embedder.Embed(embedCtx, representative(ic.ErrorText, ic.File))
	if err != nil {
		log.Printf("dedup: semantic tier skipped: %v", err)
		return nil, true
	}

	candidates := open
	if len(candidates) > r.cfg.MaxCandidates {
		candidates = candidates[:r.cfg.MaxCandidates]
	}

	// Candidate embeddings are read-only lookups and may run in parallel
	// under a bounded semaphore. Similarities are then scanned in candidate
	// order so the first match above threshold is deterministic.
	sims := make([]float64, len(candidates))
	sem := semaphore.NewWeighted(int64(r.cfg.MaxConcurrentEmbeds))
	var wg sync.WaitGroup

	for i, issue := range candidates {
		if err := sem.Acquire(ctx, 1); err != nil {
			break // context cancelled: remaining candidates score 0
		}
		wg.Add(1)
		go func(i int, issue *types.Issue) {
			defer wg.Done()
			defer sem.Release(1)

			candCtx, candCancel := context.WithTimeout(ctx, r.cfg.EmbedTimeout.Std())
			defer candCancel()

			vec, err := r.embedder.Embed(candCtx, representative(issue.ErrorText, issue.File))
			if err != nil {
				return // candidate unavailable: similarity stays 0
			}
			sims[i] = CosineSimilarity(target, vec)
		}(i, issue)
	}
	wg.Wait()

	for i, sim := range sims {
		if sim >= r.cfg.SimilarityThreshold {
			return &Decision{
				Kind:          KindDuplicate,
				MatchedID:     candidates[i].ID,
				Confidence:    sim,
				Method:        MethodSemantic,
				ComparedCount: len(candidates),
			}, false
		}
	}
	return nil, false
}

// representative builds the string that stands in for an issue in the
// semantic tier: error text plus file path.
func representative(errorText, file string) string {
	if file == "" {
		return errorText
	}
	return errorText + " " + file
}

// structuralPrefixes are path segments that carry no component meaning.
var structuralPrefixes = map[string]bool{
	"src": true, "lib": true, "app": true, "pkg": true, "internal": true,
	"source": true, "packages": true, "cmd": true, "modules": true,
}

// componentOf derives the component token from a file path: structural
// prefix segments are dropped and the next segment is taken. A bare
// filename contributes its name without extension.
func componentOf(file string) string {
	if file == "" {
		return ""
	}
	segments := strings.Split(strings.ReplaceAll(file, "\\", "/"), "/")

	idx := 0
	for idx < len(segments)-1 && structuralPrefixes[segments[idx]] {
		idx++
	}
	seg := segments[idx]
	if seg == "" {
		return ""
	}
	if idx == len(segments)-1 {
		// Only a filename remains; use its base name.
		seg = strings.TrimSuffix(seg, path.Ext(seg))
	}
	return seg
}
