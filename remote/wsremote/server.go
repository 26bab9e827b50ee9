package wsremote

import (
	"context"
	"log/slog"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/signadot/go-mutate/remote"
)

// Server serves a remote.Store over websockets, one session per
// connection. Reconciliation stays on the client; the server only relays
// submissions and snapshot events.
type Server struct {
	store    remote.Store
	log      *slog.Logger
	upgrader websocket.Upgrader
}

// NewServer returns an http.Handler upgrading requests to store sessions.
func NewServer(store remote.Store, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	return &Server{store: store, log: log}
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Error("upgrade", "err", err)
		return
	}
	sess := &session{
		conn:     conn,
		store:    s.store,
		log:      s.log.With("remote", conn.RemoteAddr().String()),
		outgoing: make(chan frame, 64),
		done:     make(chan struct{}),
	}
	sess.run(r.Context())
}

type session struct {
	conn     *websocket.Conn
	store    remote.Store
	log      *slog.Logger
	outgoing chan frame
	done     chan struct{}
	stopOnce sync.Once
}

func (s *session) stop() {
	s.stopOnce.Do(func() {
		close(s.done)
		s.conn.Close()
	})
}

func (s *session) run(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	defer s.stop()

	go s.writeLoop()

	for {
		var f frame
		if err := s.conn.ReadJSON(&f); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.log.Warn("read", "err", err)
			}
			return
		}
		switch f.Type {
		case frameSubmit:
			go s.handleSubmit(ctx, f)
		case frameWatch:
			go s.handleWatch(ctx, f)
		default:
			s.log.Warn("unknown frame", "type", f.Type)
		}
	}
}

func (s *session) writeLoop() {
	for {
		select {
		case <-s.done:
			return
		case f := <-s.outgoing:
			if err := s.conn.WriteJSON(f); err != nil {
				s.log.Warn("write", "err", err)
				s.stop()
				return
			}
		}
	}
}

func (s *session) send(f frame) {
	select {
	case s.outgoing <- f:
	case <-s.done:
	}
}

func (s *session) handleSubmit(ctx context.Context, f frame) {
	res, err := s.store.Submit(ctx, f.Mutations)
	if err != nil {
		s.send(frame{Type: frameError, Seq: f.Seq, Error: err.Error()})
		return
	}
	ts := res.Timestamp
	s.send(frame{Type: frameAck, Seq: f.Seq, Revision: res.Revision, Timestamp: &ts})
}

func (s *session) handleWatch(ctx context.Context, f frame) {
	events, err := s.store.Watch(ctx, f.Documents...)
	if err != nil {
		s.send(frame{Type: frameError, Seq: f.Seq, Error: err.Error()})
		return
	}
	for ev := range events {
		s.send(frame{
			Type:       frameSnapshot,
			DocumentID: ev.DocumentID,
			Snapshot:   ev.Snapshot,
			Revision:   ev.Revision,
		})
	}
}
