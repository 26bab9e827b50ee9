// Package bufdoc buffers local mutations against a stream of remote
// snapshots for one document identity. Callers read an optimistic merged
// view, edits apply synchronously, and Commit pushes the buffer to the
// remote store with at most one batch in flight per document.
package bufdoc

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	mutate "github.com/signadot/go-mutate"
	"github.com/signadot/go-mutate/debug"
	"github.com/signadot/go-mutate/remote"
)

// State of a BufferedDocument.
type State int

const (
	// StateUninitialized: no remote snapshot seen yet.
	StateUninitialized State = iota
	// StateSynced: merged view equals the acknowledged remote state.
	StateSynced
	// StateDirty: local mutations are buffered, none in flight.
	StateDirty
	// StateCommitting: a batch is in flight to the remote store.
	StateCommitting
	// StateConflicted: the last rebase dropped one or more string-delta
	// patches; their conflicts were surfaced. Cleared by the next edit or
	// commit.
	StateConflicted
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateSynced:
		return "synced"
	case StateDirty:
		return "dirty"
	case StateCommitting:
		return "committing"
	case StateConflicted:
		return "conflicted"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// SubmitFunc transmits one mutation batch to the remote store and blocks
// for its acknowledgement.
type SubmitFunc func(ctx context.Context, muts []*mutate.Mutation) (remote.SubmitResult, error)

// Option configures a BufferedDocument.
type Option func(*BufferedDocument)

// WithLogger sets the logger; the default discards nothing and writes to
// slog's default handler.
func WithLogger(log *slog.Logger) Option {
	return func(b *BufferedDocument) { b.log = log }
}

// WithConsistencyFunc registers a callback fired whenever the buffer
// flips between consistent (merged view equals acknowledged remote state)
// and not. Fired under the document lock; keep it short.
func WithConsistencyFunc(f func(consistent bool)) Option {
	return func(b *BufferedDocument) { b.onConsistency = f }
}

// WithConflictFunc registers a callback fired for each string-delta patch
// dropped during a rebase or a local stage. Fired under the document
// lock.
func WithConflictFunc(f func(mutate.Conflict)) Option {
	return func(b *BufferedDocument) { b.onConflict = f }
}

// BufferedDocument owns the reconciliation state machine for one document
// identity. All methods are safe for concurrent use; state transitions
// for one document never interleave.
type BufferedDocument struct {
	mu            sync.Mutex
	doc           *document
	state         State
	committing    bool
	wasConsistent bool

	submit        SubmitFunc
	log           *slog.Logger
	onConsistency func(bool)
	onConflict    func(mutate.Conflict)
}

// New returns a buffered document for the given identity. submit is used
// by Commit to transmit batches.
func New(documentID string, submit SubmitFunc, opts ...Option) *BufferedDocument {
	b := &BufferedDocument{
		doc:           newDocument(documentID),
		state:         StateUninitialized,
		wasConsistent: true,
		submit:        submit,
		log:           slog.Default(),
	}
	for _, opt := range opts {
		opt(b)
	}
	b.log = b.log.With("doc", documentID)
	return b
}

// ID returns the document identity.
func (b *BufferedDocument) ID() string { return b.doc.id }

// State returns the current reconciliation state.
func (b *BufferedDocument) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// View returns the merged view: the last remote snapshot with every
// buffered local mutation applied on top. Never blocks.
func (b *BufferedDocument) View() any {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.doc.EDGE()
}

// Remote returns the last acknowledged remote state and its revision.
func (b *BufferedDocument) Remote() (any, string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.doc.HEAD(), b.doc.Revision()
}

// Add buffers a local mutation and folds it into the merged view
// synchronously. The edit is visible to View before any network round
// trip.
func (b *BufferedDocument) Add(m *mutate.Mutation) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	conflicts, err := b.doc.Stage(m)
	if err != nil {
		return fmt.Errorf("stage on %q: %w", b.doc.id, err)
	}
	if debug.Buffer() {
		debug.Logf("bufdoc %s: staged %s, %d pending\n", b.doc.id, m.TransactionID, len(b.doc.pending))
	}
	b.emitConflicts(conflicts)
	if b.state != StateCommitting && b.state != StateUninitialized {
		b.state = StateDirty
	}
	b.signalConsistency()
	return nil
}

// Commit transmits the buffered mutations in the order they were added
// and blocks for acknowledgement. At most one batch is in flight per
// document; a Commit issued while another is outstanding returns
// immediately and its mutations ride along in a follow-up batch. Edits
// made during the round trip stay buffered and trigger that follow-up
// before Commit returns.
//
// On transport failure the batch returns to the buffer and the error is
// returned; retrying is the caller's choice.
func (b *BufferedDocument) Commit(ctx context.Context) error {
	b.mu.Lock()
	if b.committing {
		// Coalesce: the in-flight commit's follow-up loop picks these up.
		b.mu.Unlock()
		return nil
	}
	b.committing = true
	defer func() {
		b.committing = false
		b.signalConsistency()
		b.mu.Unlock()
	}()

	for len(b.doc.pending) > 0 {
		batch := b.doc.TakePending()
		b.state = StateCommitting
		b.mu.Unlock()

		b.log.Debug("committing", "mutations", len(batch))
		res, err := b.submit(ctx, batch)

		b.mu.Lock()
		if err != nil {
			conflicts, rerr := b.doc.Retract()
			if rerr != nil {
				return fmt.Errorf("retract on %q: %w", b.doc.id, rerr)
			}
			b.emitConflicts(conflicts)
			b.state = StateDirty
			return fmt.Errorf("commit on %q: %w", b.doc.id, err)
		}
		conflicts, err := b.doc.Acknowledge(res.Revision)
		if err != nil {
			b.state = StateDirty
			return fmt.Errorf("acknowledge on %q: %w", b.doc.id, err)
		}
		b.emitConflicts(conflicts)
		b.log.Debug("acknowledged", "rev", res.Revision)
	}
	if b.doc.Consistent() {
		b.state = StateSynced
	} else {
		b.state = StateDirty
	}
	return nil
}

// HandleSnapshot feeds one remote snapshot event into the state machine.
// The first snapshot seeds the baseline; later ones with a new revision
// rebase the local buffer on top of the incoming state. String-delta
// patches whose origin no longer holds are dropped and surfaced through
// the conflict callback; the rest of the buffer still applies. Never
// blocks the delivering goroutine on network activity.
func (b *BufferedDocument) HandleSnapshot(snapshot any, revision string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	conflicts, moved, err := b.doc.Arrive(snapshot, revision)
	if err != nil {
		return fmt.Errorf("snapshot on %q: %w", b.doc.id, err)
	}
	if !moved {
		return nil
	}
	if debug.Buffer() {
		debug.Logf("bufdoc %s: snapshot rev %s, %d conflicts\n", b.doc.id, revision, len(conflicts))
	}
	b.emitConflicts(conflicts)
	switch {
	case len(conflicts) > 0:
		b.state = StateConflicted
	case b.doc.Consistent() && !b.committing:
		b.state = StateSynced
	case b.committing:
		b.state = StateCommitting
	default:
		b.state = StateDirty
	}
	b.signalConsistency()
	return nil
}

// Close discards any buffered, uncommitted mutations. An in-flight batch
// is not retracted.
func (b *BufferedDocument) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.doc.pending = nil
	if err := b.doc.rebase(); err != nil {
		b.log.Warn("rebase after close", "err", err)
	}
	b.signalConsistency()
}

func (b *BufferedDocument) emitConflicts(conflicts []mutate.Conflict) {
	for _, c := range conflicts {
		b.log.Warn("string delta dropped", "path", c.Path.String(), "err", c.Err)
		if b.onConflict != nil {
			b.onConflict(c)
		}
	}
}

// signalConsistency fires the consistency callback on flips. Held lock.
func (b *BufferedDocument) signalConsistency() {
	consistent := b.doc.Consistent()
	if consistent == b.wasConsistent {
		return
	}
	b.wasConsistent = consistent
	if b.onConsistency != nil {
		b.onConsistency(consistent)
	}
}
