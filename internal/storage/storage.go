// Package storage defines the persistence interface for the issue store.
//
// The store is the engine's only shared mutable resource: every mutation
// (status change, history append, counters) goes through one of these
// methods, each of which reads-modifies-writes the whole record atomically
// per issue id.
package storage

import (
	"context"
	"errors"

	"github.com/wardenhq/warden/internal/types"
)

var (
	// ErrNotFound indicates the requested issue does not exist
	ErrNotFound = errors.New("issue not found")

	// ErrInvalidTransition indicates the state machine forbids the requested
	// status change
	ErrInvalidTransition = errors.New("invalid state transition")

	// ErrAlreadyClosed indicates a closure was attempted on a closed issue
	ErrAlreadyClosed = errors.New("issue already closed")
)

// Storage defines the interface for issue storage backends
type Storage interface {
	// Issues
	CreateIssue(ctx context.Context, issue *types.Issue, actor string) error
	GetIssue(ctx context.Context, id string) (*types.Issue, error)
	ListIssues(ctx context.Context, filter types.IssueFilter) ([]*types.Issue, error)

	// UpdateStatus appends a state transition and moves the issue to the new
	// status. The transition must be legal per types.Status.CanTransitionTo.
	UpdateStatus(ctx context.Context, id string, to types.Status, trigger string) error

	// SetExternalID records the external tracker's id once registration
	// succeeds. It is set at most once.
	SetExternalID(ctx context.Context, id string, externalID int64) error

	// MarkStaleReminderSent flips the stale flag true. It reports whether
	// this call performed the flip, so a reminder is emitted at most once
	// even under concurrent lifecycle passes.
	MarkStaleReminderSent(ctx context.Context, id string) (bool, error)

	// RecordClosure transitions the issue to closed, attaches the
	// verification result, and updates the closure counters. Closing an
	// already-closed issue returns ErrAlreadyClosed.
	RecordClosure(ctx context.Context, id string, result *types.VerificationResult, trigger string) error

	// Statistics
	GetStatistics(ctx context.Context) (*types.Statistics, error)

	// Embedding cache: persisted normalized-text -> vector entries.
	// Entries never expire; clearing the cache (e.g., after an embedding
	// model change) is a manual operation.
	GetEmbedding(ctx context.Context, key string) ([]float32, error)
	PutEmbedding(ctx context.Context, key string, vec []float32) error

	// Lifecycle
	Close() error
}
