package storage

import (
	"context"
	"errors"
	"time"

	"github.com/wardenhq/warden/internal/types"
)

// DefaultRetryDelay is the backoff before the single retry attempt.
const DefaultRetryDelay = 100 * time.Millisecond

// NewRetrying wraps a storage backend so each failed operation is retried
// once after a backoff. A persistence failure that survives the retry is
// surfaced to the caller: a lost state mutation would violate the
// append-only history invariant, so it must never be swallowed.
//
// Domain errors (not found, invalid transition, already closed) are not
// retried: they are definitive answers, not transient faults.
func NewRetrying(inner Storage, delay time.Duration) Storage {
	if delay <= 0 {
		delay = DefaultRetryDelay
	}
	return &retrying{inner: inner, delay: delay}
}

type retrying struct {
	inner Storage
	delay time.Duration
}

func (r *retrying) retry(ctx context.Context, op func() error) error {
	err := op()
	if err == nil || isDomainError(err) {
		return err
	}

	select {
	case <-time.After(r.delay):
	case <-ctx.Done():
		return err
	}
	return op()
}

func isDomainError(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrInvalidTransition) ||
		errors.Is(err, ErrAlreadyClosed)
}

func (r *retrying) CreateIssue(ctx context.Context, issue *types.Issue, actor string) error {
	return r.retry(ctx, func() error { return r.inner.CreateIssue(ctx, issue, actor) })
}

func (r *retrying) GetIssue(ctx context.Context, id string) (*types.Issue, error) {
	var issue *types.Issue
	err := r.retry(ctx, func() error {
		var opErr error
		issue, opErr = r.inner.GetIssue(ctx, id)
		return opErr
	})
	return issue, err
}

func (r *retrying) ListIssues(ctx context.Context, filter types.IssueFilter) ([]*types.Issue, error) {
	var issues []*types.Issue
	err := r.retry(ctx, func() error {
		var opErr error
		issues, opErr = r.inner.ListIssues(ctx, filter)
		return opErr
	})
	return issues, err
}

func (r *retrying) UpdateStatus(ctx context.Context, id string, to types.Status, trigger string) error {
	return r.retry(ctx, func() error { return r.inner.UpdateStatus(ctx, id, to, trigger) })
}

func (r *retrying) SetExternalID(ctx context.Context, id string, externalID int64) error {
	return r.retry(ctx, func() error { return r.inner.SetExternalID(ctx, id, externalID) })
}

func (r *retrying) MarkStaleReminderSent(ctx context.Context, id string) (bool, error) {
	var flipped bool
	err := r.retry(ctx, func() error {
		var opErr error
		flipped, opErr = r.inner.MarkStaleReminderSent(ctx, id)
		return opErr
	})
	return flipped, err
}

func (r *retrying) RecordClosure(ctx context.Context, id string, result *types.VerificationResult, trigger string) error {
	return r.retry(ctx, func() error { return r.inner.RecordClosure(ctx, id, result, trigger) })
}

func (r *retrying) GetStatistics(ctx context.Context) (*types.Statistics, error) {
	var stats *types.Statistics
	err := r.retry(ctx, func() error {
		var opErr error
		stats, opErr = r.inner.GetStatistics(ctx)
		return opErr
	})
	return stats, err
}

func (r *retrying) GetEmbedding(ctx context.Context, key string) ([]float32, error) {
	var vec []float32
	err := r.retry(ctx, func() error {
		var opErr error
		vec, opErr = r.inner.GetEmbedding(ctx, key)
		return opErr
	})
	return vec, err
}

func (r *retrying) PutEmbedding(ctx context.Context, key string, vec []float32) error {
	return r.retry(ctx, func() error { return r.inner.PutEmbedding(ctx, key, vec) })
}

func (r *retrying) Close() error {
	return r.inner.Close()
}
