package wsremote

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	mutate "github.com/signadot/go-mutate"
	"github.com/signadot/go-mutate/bufdoc"
	"github.com/signadot/go-mutate/remote"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startGateway(t *testing.T) (*remote.InMemStore, *Client) {
	t.Helper()
	store := remote.NewInMemStore(nil)
	t.Cleanup(store.Close)

	srv := httptest.NewServer(NewServer(store, nil))
	t.Cleanup(srv.Close)

	client, err := Dial(context.Background(), srv.URL, nil)
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })
	return store, client
}

func TestSubmitOverSocket(t *testing.T) {
	store, client := startGateway(t)
	ctx := context.Background()

	res, err := client.Submit(ctx, []*mutate.Mutation{
		mutate.NewCreate(map[string]any{"_id": "doc1", "n": float64(1)}),
		mutate.NewPatchMutation("doc1", mutate.MustAt("n", mutate.Inc(1))),
	})
	require.NoError(t, err)
	require.NotEmpty(t, res.Revision)

	doc, rev, ok := store.Get("doc1")
	require.True(t, ok)
	assert.Equal(t, res.Revision, rev)
	assert.Equal(t, float64(2), doc.(map[string]any)["n"])
}

func TestRejectionCrossesWire(t *testing.T) {
	_, client := startGateway(t)
	ctx := context.Background()

	_, err := client.Submit(ctx, []*mutate.Mutation{
		mutate.NewCreate(map[string]any{"_id": "doc1"}),
	})
	require.NoError(t, err)

	stale := mutate.NewPatchMutation("doc1", mutate.MustAt("n", mutate.Inc(1)))
	stale.PreviousRevision = "stale"
	_, err = client.Submit(ctx, []*mutate.Mutation{stale})
	require.ErrorIs(t, err, remote.ErrRevisionMismatch)
}

func TestWatchOverSocket(t *testing.T) {
	_, client := startGateway(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events, err := client.Watch(ctx, "doc1")
	require.NoError(t, err)

	// Current (absent) state replays first.
	ev := recvEvent(t, events)
	assert.Nil(t, ev.Snapshot)

	res, err := client.Submit(ctx, []*mutate.Mutation{
		mutate.NewCreate(map[string]any{"_id": "doc1", "title": "x"}),
	})
	require.NoError(t, err)

	ev = recvEvent(t, events)
	assert.Equal(t, res.Revision, ev.Revision)
	assert.Equal(t, "x", ev.Snapshot.(map[string]any)["title"])
}

// Full stack: two buffering sessions, one socket each, converge through
// the gateway.
func TestBufferedDocumentsOverGateway(t *testing.T) {
	store := remote.NewInMemStore(nil)
	defer store.Close()
	srv := httptest.NewServer(NewServer(store, nil))
	defer srv.Close()

	ctx := context.Background()
	dial := func() *Client {
		c, err := Dial(ctx, srv.URL, nil)
		require.NoError(t, err)
		t.Cleanup(func() { c.Close() })
		return c
	}

	regA := bufdoc.NewRegistry(dial(), nil)
	defer regA.CloseAll()
	regB := bufdoc.NewRegistry(dial(), nil)
	defer regB.CloseAll()

	a, err := regA.Open(ctx, "doc1")
	require.NoError(t, err)
	b, err := regB.Open(ctx, "doc1")
	require.NoError(t, err)

	require.Eventually(t, func() bool { return a.State() == bufdoc.StateSynced },
		time.Second, time.Millisecond)

	require.NoError(t, a.Add(mutate.NewCreateIfNotExists(map[string]any{"_id": "doc1", "title": "x"})))
	require.NoError(t, a.Commit(ctx))

	require.Eventually(t, func() bool {
		v, _ := b.View().(map[string]any)
		return v != nil && v["title"] == "x"
	}, time.Second, time.Millisecond)
}

func recvEvent(t *testing.T, ch <-chan remote.SnapshotEvent) remote.SnapshotEvent {
	t.Helper()
	select {
	case ev, ok := <-ch:
		require.True(t, ok, "event stream closed")
		return ev
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for snapshot event")
		return remote.SnapshotEvent{}
	}
}
