package remote

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	mutate "github.com/signadot/go-mutate"
	"github.com/signadot/go-mutate/debug"
)

// watchBuffer is the per-watcher event buffer; a watcher that falls this
// far behind loses events.
const watchBuffer = 128

type watcher struct {
	ids map[string]bool
	ch  chan SnapshotEvent
}

func (w *watcher) wants(id string) bool {
	return len(w.ids) == 0 || w.ids[id]
}

// InMemStore is an in-memory Store with revision bookkeeping. It is the
// reference semantics for Submit and the test double for the buffering
// layer.
type InMemStore struct {
	log *slog.Logger

	mu       sync.Mutex
	docs     map[string]any
	revs     map[string]string
	watchers map[int]*watcher
	nextID   int
	closed   bool
}

// NewInMemStore returns an empty in-memory store.
func NewInMemStore(log *slog.Logger) *InMemStore {
	if log == nil {
		log = slog.Default()
	}
	return &InMemStore{
		log:      log,
		docs:     make(map[string]any),
		revs:     make(map[string]string),
		watchers: make(map[int]*watcher),
	}
}

// Submit applies the batch atomically. Every mutation carrying a
// PreviousRevision must match the stored revision of its document, or the
// whole batch is rejected with ErrRevisionMismatch. All documents touched
// by the batch move to one fresh revision.
func (s *InMemStore) Submit(ctx context.Context, muts []*mutate.Mutation) (SubmitResult, error) {
	if err := ctx.Err(); err != nil {
		return SubmitResult{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return SubmitResult{}, ErrClosed
	}

	rev := uuid.NewString()
	now := time.Now().UTC()

	staged := make(map[string]any)
	touched := make(map[string]bool)
	current := func(id string) any {
		if d, ok := staged[id]; ok {
			return d
		}
		return s.docs[id]
	}
	for _, m := range muts {
		if m.PreviousRevision != "" && m.PreviousRevision != s.revs[m.DocumentID] {
			return SubmitResult{}, fmt.Errorf(
				"document %q at %q, submitted against %q: %w",
				m.DocumentID, s.revs[m.DocumentID], m.PreviousRevision, ErrRevisionMismatch)
		}
		stamped := *m
		stamped.ResultRevision = rev
		stamped.Timestamp = now
		next, err := stamped.Apply(current(m.DocumentID))
		if err != nil {
			return SubmitResult{}, err
		}
		staged[m.DocumentID] = next
		touched[m.DocumentID] = true
	}

	for id := range touched {
		doc := staged[id]
		if doc == nil {
			delete(s.docs, id)
			delete(s.revs, id)
		} else {
			s.docs[id] = doc
			s.revs[id] = rev
		}
		s.notifyLocked(SnapshotEvent{DocumentID: id, Snapshot: doc, Revision: rev})
	}
	if debug.Remote() {
		debug.Logf("inmem: %d mutations -> rev %s\n", len(muts), rev)
	}
	return SubmitResult{Revision: rev, Timestamp: now}, nil
}

// Watch streams snapshot events for the given documents, starting with
// their current state; no ids means every document. The channel closes
// when ctx is done or the store closes.
func (s *InMemStore) Watch(ctx context.Context, documentIDs ...string) (<-chan SnapshotEvent, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrClosed
	}
	w := &watcher{ch: make(chan SnapshotEvent, watchBuffer)}
	if len(documentIDs) > 0 {
		w.ids = make(map[string]bool, len(documentIDs))
		for _, id := range documentIDs {
			w.ids[id] = true
		}
	}
	id := s.nextID
	s.nextID++
	s.watchers[id] = w

	// Current state first, absent documents included.
	for _, docID := range documentIDs {
		w.ch <- SnapshotEvent{DocumentID: docID, Snapshot: s.docs[docID], Revision: s.revs[docID]}
	}
	s.mu.Unlock()

	out := make(chan SnapshotEvent)
	go func() {
		defer func() {
			s.mu.Lock()
			delete(s.watchers, id)
			s.mu.Unlock()
			close(out)
		}()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-w.ch:
				if !ok {
					return
				}
				select {
				case out <- ev:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

func (s *InMemStore) notifyLocked(ev SnapshotEvent) {
	for _, w := range s.watchers {
		if !w.wants(ev.DocumentID) {
			continue
		}
		select {
		case w.ch <- ev:
		default:
			s.log.Warn("watcher lagging, dropping snapshot", "doc", ev.DocumentID)
		}
	}
}

// Get returns the stored document and revision, if present.
func (s *InMemStore) Get(documentID string) (any, string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.docs[documentID]
	return doc, s.revs[documentID], ok
}

// Close rejects further operations and ends every watch stream.
func (s *InMemStore) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	for _, w := range s.watchers {
		close(w.ch)
	}
	s.watchers = map[int]*watcher{}
}
