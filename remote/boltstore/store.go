// Package boltstore is a durable remote.Store on a bbolt database file.
// Documents and their revisions live in two buckets; a Submit batch is one
// write transaction.
package boltstore

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	mutate "github.com/signadot/go-mutate"
	"github.com/signadot/go-mutate/remote"
	"go.etcd.io/bbolt"
)

var (
	bucketDocuments = []byte("documents")
	bucketRevisions = []byte("revisions")
)

const watchBuffer = 128

type watcher struct {
	ids map[string]bool
	ch  chan remote.SnapshotEvent
}

func (w *watcher) wants(id string) bool {
	return len(w.ids) == 0 || w.ids[id]
}

// Store implements remote.Store on bbolt.
type Store struct {
	db  *bbolt.DB
	log *slog.Logger

	// mu orders commits and watcher registration so that a watcher's
	// initial snapshot and the event stream line up.
	mu       sync.Mutex
	watchers map[int]*watcher
	nextID   int
	closed   bool
}

// Open opens or creates the database file at path.
func Open(path string, log *slog.Logger) (*Store, error) {
	if log == nil {
		log = slog.Default()
	}
	db, err := bbolt.Open(path, 0o600, nil)
	if err != nil {
		return nil, fmt.Errorf("open boltdb: %w", err)
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(bucketDocuments); err != nil {
			return err
		}
		_, err := tx.CreateBucketIfNotExists(bucketRevisions)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create buckets: %w", err)
	}
	return &Store{
		db:       db,
		log:      log,
		watchers: make(map[int]*watcher),
	}, nil
}

// Close ends every watch stream and closes the database.
func (s *Store) Close() error {
	s.mu.Lock()
	if !s.closed {
		s.closed = true
		for _, w := range s.watchers {
			close(w.ch)
		}
		s.watchers = map[int]*watcher{}
	}
	s.mu.Unlock()
	return s.db.Close()
}

// Submit applies the batch in one write transaction. Revision checks and
// application follow the same contract as the in-memory store; a rejected
// batch leaves the database untouched.
func (s *Store) Submit(ctx context.Context, muts []*mutate.Mutation) (remote.SubmitResult, error) {
	if err := ctx.Err(); err != nil {
		return remote.SubmitResult{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return remote.SubmitResult{}, remote.ErrClosed
	}

	rev := uuid.NewString()
	now := time.Now().UTC()
	var events []remote.SnapshotEvent

	err := s.db.Update(func(tx *bbolt.Tx) error {
		docs := tx.Bucket(bucketDocuments)
		revs := tx.Bucket(bucketRevisions)
		touched := make(map[string]bool)
		for _, m := range muts {
			key := []byte(m.DocumentID)
			storedRev := string(revs.Get(key))
			if m.PreviousRevision != "" && m.PreviousRevision != storedRev {
				return fmt.Errorf("document %q at %q, submitted against %q: %w",
					m.DocumentID, storedRev, m.PreviousRevision, remote.ErrRevisionMismatch)
			}
			var doc any
			if data := docs.Get(key); data != nil {
				if err := json.Unmarshal(data, &doc); err != nil {
					return fmt.Errorf("unmarshal document %q: %w", m.DocumentID, err)
				}
			}
			stamped := *m
			stamped.ResultRevision = rev
			stamped.Timestamp = now
			next, err := stamped.Apply(doc)
			if err != nil {
				return err
			}
			if next == nil {
				if err := docs.Delete(key); err != nil {
					return err
				}
				if err := revs.Delete(key); err != nil {
					return err
				}
			} else {
				data, err := json.Marshal(next)
				if err != nil {
					return fmt.Errorf("marshal document %q: %w", m.DocumentID, err)
				}
				if err := docs.Put(key, data); err != nil {
					return err
				}
				if err := revs.Put(key, []byte(rev)); err != nil {
					return err
				}
			}
			if !touched[m.DocumentID] {
				touched[m.DocumentID] = true
				events = append(events, remote.SnapshotEvent{DocumentID: m.DocumentID})
			}
		}
		// Final state per touched document, read back after all mutations.
		for i := range events {
			key := []byte(events[i].DocumentID)
			if data := docs.Get(key); data != nil {
				var doc any
				if err := json.Unmarshal(data, &doc); err != nil {
					return err
				}
				events[i].Snapshot = doc
				events[i].Revision = rev
			}
		}
		return nil
	})
	if err != nil {
		return remote.SubmitResult{}, err
	}
	for _, ev := range events {
		if ev.Snapshot == nil {
			// Deleted documents stream an absent snapshot at the new
			// revision so watchers can drop their copy.
			ev.Revision = rev
		}
		s.notifyLocked(ev)
	}
	return remote.SubmitResult{Revision: rev, Timestamp: now}, nil
}

// Watch streams snapshot events for the given documents, starting with
// their stored state. The channel closes when ctx is done or the store
// closes.
func (s *Store) Watch(ctx context.Context, documentIDs ...string) (<-chan remote.SnapshotEvent, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, remote.ErrClosed
	}
	w := &watcher{ch: make(chan remote.SnapshotEvent, watchBuffer)}
	if len(documentIDs) > 0 {
		w.ids = make(map[string]bool, len(documentIDs))
		for _, id := range documentIDs {
			w.ids[id] = true
		}
	}
	err := s.db.View(func(tx *bbolt.Tx) error {
		docs := tx.Bucket(bucketDocuments)
		revs := tx.Bucket(bucketRevisions)
		for _, id := range documentIDs {
			ev := remote.SnapshotEvent{DocumentID: id}
			if data := docs.Get([]byte(id)); data != nil {
				var doc any
				if err := json.Unmarshal(data, &doc); err != nil {
					return err
				}
				ev.Snapshot = doc
				ev.Revision = string(revs.Get([]byte(id)))
			}
			w.ch <- ev
		}
		return nil
	})
	if err != nil {
		s.mu.Unlock()
		return nil, err
	}
	id := s.nextID
	s.nextID++
	s.watchers[id] = w
	s.mu.Unlock()

	out := make(chan remote.SnapshotEvent)
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

func (s *Store) notifyLocked(ev remote.SnapshotEvent) {
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

// Get reads the stored document and revision.
func (s *Store) Get(documentID string) (any, string, bool) {
	var doc any
	var rev string
	found := false
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketDocuments).Get([]byte(documentID))
		if data == nil {
			return nil
		}
		if err := json.Unmarshal(data, &doc); err != nil {
			return err
		}
		rev = string(tx.Bucket(bucketRevisions).Get([]byte(documentID)))
		found = true
		return nil
	})
	if err != nil {
		s.log.Error("read document", "doc", documentID, "err", err)
		return nil, "", false
	}
	return doc, rev, found
}
