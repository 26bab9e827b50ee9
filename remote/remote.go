// Package remote defines the surface a remote document store exposes to
// the buffering layer: submitting mutation batches and streaming document
// snapshots back. Reconciliation never happens here; implementations only
// deliver events.
package remote

import (
	"context"
	"errors"
	"time"

	mutate "github.com/signadot/go-mutate"
)

var (
	// ErrRevisionMismatch rejects a submission whose PreviousRevision no
	// longer matches the stored document.
	ErrRevisionMismatch = errors.New("revision mismatch")

	// ErrClosed reports an operation on a closed store.
	ErrClosed = errors.New("store closed")
)

// SnapshotEvent is one document state observed at the store. A nil
// Snapshot means the document is absent (never existed, or deleted).
type SnapshotEvent struct {
	DocumentID string
	Snapshot   any
	Revision   string
}

// SubmitResult acknowledges an accepted batch.
type SubmitResult struct {
	Revision  string
	Timestamp time.Time
}

// Store is a remote document store.
//
// Submit applies a mutation batch atomically and returns the resulting
// revision; a batch that cannot apply is rejected as a whole. Watch
// returns a channel of snapshot events for the given document identities,
// starting with their current state; the channel closes when ctx is done
// or the store closes.
type Store interface {
	Submit(ctx context.Context, muts []*mutate.Mutation) (SubmitResult, error)
	Watch(ctx context.Context, documentIDs ...string) (<-chan SnapshotEvent, error)
}
