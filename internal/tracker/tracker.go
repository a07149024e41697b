// Package tracker mirrors issues into an external issue tracker.
//
// Registration is best-effort: a tracker outage never blocks issue creation,
// the engine just retries registration on a later pass.
package tracker

import (
	"context"

	"github.com/wardenhq/warden/internal/types"
)

// Tracker is the interface to an external issue tracker.
type Tracker interface {
	// Create registers an issue externally and returns the tracker's number.
	Create(ctx context.Context, issue *types.Issue) (int64, error)

	// IsClosed reports whether the external issue has been closed.
	IsClosed(ctx context.Context, externalID int64) (bool, error)

	// Comments returns the comment bodies on the external issue, oldest first.
	Comments(ctx context.Context, externalID int64) ([]string, error)

	// Close closes the external issue with a closing comment.
	Close(ctx context.Context, externalID int64, comment string) error
}
