package wsremote

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/gorilla/websocket"
	mutate "github.com/signadot/go-mutate"
	"github.com/signadot/go-mutate/debug"
	"github.com/signadot/go-mutate/remote"
)

const watchBuffer = 128

// Client is a remote.Store backed by a websocket session to a Server.
type Client struct {
	conn *websocket.Conn
	log  *slog.Logger

	writeMu sync.Mutex

	mu       sync.Mutex
	seq      int64
	pending  map[int64]chan frame
	watchers map[int]*clientWatcher
	nextID   int

	closed    chan struct{}
	closeOnce sync.Once
}

type clientWatcher struct {
	ids map[string]bool
	ch  chan remote.SnapshotEvent
}

func (w *clientWatcher) wants(id string) bool {
	return len(w.ids) == 0 || w.ids[id]
}

// Dial connects to a Server at url (ws:// or wss://; http schemes are
// rewritten).
func Dial(ctx context.Context, url string, log *slog.Logger) (*Client, error) {
	if log == nil {
		log = slog.Default()
	}
	url = strings.Replace(url, "http://", "ws://", 1)
	url = strings.Replace(url, "https://", "wss://", 1)
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	c := &Client{
		conn:     conn,
		log:      log,
		pending:  make(map[int64]chan frame),
		watchers: make(map[int]*clientWatcher),
		closed:   make(chan struct{}),
	}
	go c.readLoop()
	return c, nil
}

// Close ends the session; outstanding submissions fail with ErrClosed.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		close(c.closed)
		c.conn.Close()
	})
	return nil
}

func (c *Client) readLoop() {
	defer c.Close()
	defer func() {
		c.mu.Lock()
		for _, w := range c.watchers {
			close(w.ch)
		}
		c.watchers = map[int]*clientWatcher{}
		c.mu.Unlock()
	}()
	for {
		var f frame
		if err := c.conn.ReadJSON(&f); err != nil {
			select {
			case <-c.closed:
			default:
				c.log.Warn("read", "err", err)
			}
			return
		}
		if debug.Remote() {
			debug.Logf("wsremote client: %s frame\n", f.Type)
		}
		switch f.Type {
		case frameAck, frameError:
			c.mu.Lock()
			ch, ok := c.pending[f.Seq]
			delete(c.pending, f.Seq)
			c.mu.Unlock()
			if ok {
				ch <- f
			}
		case frameSnapshot:
			c.dispatchSnapshot(remote.SnapshotEvent{
				DocumentID: f.DocumentID,
				Snapshot:   f.Snapshot,
				Revision:   f.Revision,
			})
		default:
			c.log.Warn("unknown frame", "type", f.Type)
		}
	}
}

func (c *Client) dispatchSnapshot(ev remote.SnapshotEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, w := range c.watchers {
		if !w.wants(ev.DocumentID) {
			continue
		}
		select {
		case w.ch <- ev:
		default:
			c.log.Warn("watcher lagging, dropping snapshot", "doc", ev.DocumentID)
		}
	}
}

func (c *Client) writeFrame(f frame) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	select {
	case <-c.closed:
		return remote.ErrClosed
	default:
	}
	return c.conn.WriteJSON(f)
}

// Submit sends the batch and blocks for the server's acknowledgement.
func (c *Client) Submit(ctx context.Context, muts []*mutate.Mutation) (remote.SubmitResult, error) {
	c.mu.Lock()
	c.seq++
	seq := c.seq
	ch := make(chan frame, 1)
	c.pending[seq] = ch
	c.mu.Unlock()

	if err := c.writeFrame(frame{Type: frameSubmit, Seq: seq, Mutations: muts}); err != nil {
		c.mu.Lock()
		delete(c.pending, seq)
		c.mu.Unlock()
		return remote.SubmitResult{}, err
	}

	select {
	case f := <-ch:
		if f.Type == frameError {
			err := remoteError(f.Error)
			return remote.SubmitResult{}, fmt.Errorf("submit rejected: %w", err)
		}
		res := remote.SubmitResult{Revision: f.Revision}
		if f.Timestamp != nil {
			res.Timestamp = *f.Timestamp
		}
		return res, nil
	case <-ctx.Done():
		c.mu.Lock()
		delete(c.pending, seq)
		c.mu.Unlock()
		return remote.SubmitResult{}, ctx.Err()
	case <-c.closed:
		return remote.SubmitResult{}, remote.ErrClosed
	}
}

// remoteError maps the server's error string back onto the store's
// sentinels where it can, so errors.Is keeps working across the wire.
func remoteError(msg string) error {
	if strings.Contains(msg, remote.ErrRevisionMismatch.Error()) {
		return fmt.Errorf("%w: %s", remote.ErrRevisionMismatch, msg)
	}
	return fmt.Errorf("%s", msg)
}

// Watch subscribes to snapshot events for the given documents. The
// server opens the stream and replays current state first; the channel
// closes when ctx is done or the session ends.
func (c *Client) Watch(ctx context.Context, documentIDs ...string) (<-chan remote.SnapshotEvent, error) {
	w := &clientWatcher{ch: make(chan remote.SnapshotEvent, watchBuffer)}
	if len(documentIDs) > 0 {
		w.ids = make(map[string]bool, len(documentIDs))
		for _, id := range documentIDs {
			w.ids[id] = true
		}
	}
	c.mu.Lock()
	id := c.nextID
	c.nextID++
	c.watchers[id] = w
	c.mu.Unlock()

	unregister := func() {
		c.mu.Lock()
		if _, ok := c.watchers[id]; ok {
			delete(c.watchers, id)
		}
		c.mu.Unlock()
	}
	if err := c.writeFrame(frame{Type: frameWatch, Documents: documentIDs}); err != nil {
		unregister()
		return nil, err
	}

	out := make(chan remote.SnapshotEvent)
	go func() {
		defer func() {
			unregister()
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
