package bufdoc

import (
	"context"
	"log/slog"
	"sync"

	"github.com/signadot/go-mutate/remote"
)

// Registry opens and tears down edit sessions, one BufferedDocument per
// document identity, wiring each to a remote store: submissions go out
// through Store.Submit, snapshot events stream back into HandleSnapshot.
type Registry struct {
	store remote.Store
	log   *slog.Logger

	mu   sync.Mutex
	docs map[string]*session
}

type session struct {
	doc    *BufferedDocument
	cancel context.CancelFunc
	done   chan struct{}
}

// NewRegistry returns a registry backed by store.
func NewRegistry(store remote.Store, log *slog.Logger) *Registry {
	if log == nil {
		log = slog.Default()
	}
	return &Registry{
		store: store,
		log:   log,
		docs:  make(map[string]*session),
	}
}

// Open returns the edit session for documentID, creating it on first use.
// The session's snapshot stream runs until Close or ctx cancellation.
func (r *Registry) Open(ctx context.Context, documentID string, opts ...Option) (*BufferedDocument, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.docs[documentID]; ok {
		return s.doc, nil
	}

	doc := New(documentID, r.store.Submit, append([]Option{WithLogger(r.log)}, opts...)...)

	watchCtx, cancel := context.WithCancel(ctx)
	events, err := r.store.Watch(watchCtx, documentID)
	if err != nil {
		cancel()
		return nil, err
	}
	s := &session{doc: doc, cancel: cancel, done: make(chan struct{})}
	r.docs[documentID] = s

	go func() {
		defer close(s.done)
		for ev := range events {
			if err := doc.HandleSnapshot(ev.Snapshot, ev.Revision); err != nil {
				r.log.Error("snapshot dispatch", "doc", documentID, "err", err)
			}
		}
		// The stream ended (ctx canceled or store closed); evict the
		// session so the next Open starts a live one instead of handing
		// out a document nothing feeds anymore.
		r.mu.Lock()
		if r.docs[documentID] == s {
			delete(r.docs, documentID)
		}
		r.mu.Unlock()
	}()
	return doc, nil
}

// Close tears down the session for documentID: the snapshot stream stops
// and buffered, uncommitted mutations are discarded. An in-flight commit
// is not retracted.
func (r *Registry) Close(documentID string) {
	r.mu.Lock()
	s, ok := r.docs[documentID]
	if ok {
		delete(r.docs, documentID)
	}
	r.mu.Unlock()
	if !ok {
		return
	}
	s.cancel()
	<-s.done
	s.doc.Close()
}

// CloseAll tears down every open session.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	docs := r.docs
	r.docs = make(map[string]*session)
	r.mu.Unlock()
	for _, s := range docs {
		s.cancel()
		<-s.done
		s.doc.Close()
	}
}
