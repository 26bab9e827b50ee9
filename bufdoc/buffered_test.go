package bufdoc

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	mutate "github.com/signadot/go-mutate"
	"github.com/signadot/go-mutate/remote"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeStore records submitted batches and acknowledges them with
// sequential revisions.
type fakeStore struct {
	mu      sync.Mutex
	batches [][]*mutate.Mutation
	fail    error
	block   chan struct{}
}

func (f *fakeStore) submit(ctx context.Context, muts []*mutate.Mutation) (remote.SubmitResult, error) {
	if f.block != nil {
		<-f.block
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail != nil {
		return remote.SubmitResult{}, f.fail
	}
	f.batches = append(f.batches, muts)
	return remote.SubmitResult{
		Revision:  fmt.Sprintf("r%d", len(f.batches)),
		Timestamp: time.Now(),
	}, nil
}

func (f *fakeStore) batchCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.batches)
}

func TestLifecycle(t *testing.T) {
	store := &fakeStore{}
	var flips []bool
	b := New("doc1", store.submit,
		WithConsistencyFunc(func(c bool) { flips = append(flips, c) }))

	require.Equal(t, StateUninitialized, b.State())
	require.NoError(t, b.HandleSnapshot(map[string]any{"_id": "doc1", "title": "x"}, "r0"))
	require.Equal(t, StateSynced, b.State())

	require.NoError(t, b.Add(mutate.NewPatchMutation("doc1", mutate.MustAt("title", mutate.Set("A")))))
	require.Equal(t, StateDirty, b.State())
	assert.Equal(t, "A", b.View().(map[string]any)["title"], "edit visible before commit")

	require.NoError(t, b.Commit(context.Background()))
	require.Equal(t, StateSynced, b.State())
	require.Equal(t, 1, store.batchCount())
	assert.Equal(t, []bool{false, true}, flips)

	head, rev := b.Remote()
	assert.Equal(t, "r1", rev)
	assert.Equal(t, "A", head.(map[string]any)["title"])
}

// A remote baseline move with a compatible buffered edit replays cleanly:
// the local edit wins its path, the remote wins everything else, and the
// document stays pending commit.
func TestRebaseKeepsLocalEdits(t *testing.T) {
	b := New("doc1", (&fakeStore{}).submit)
	require.NoError(t, b.HandleSnapshot(map[string]any{"title": "x", "subtitle": "s1"}, "r1"))
	require.NoError(t, b.Add(mutate.NewPatchMutation("doc1", mutate.MustAt("title", mutate.Set("A")))))

	require.NoError(t, b.HandleSnapshot(map[string]any{"title": "x", "subtitle": "s2"}, "r2"))

	view := b.View().(map[string]any)
	assert.Equal(t, "A", view["title"])
	assert.Equal(t, "s2", view["subtitle"])
	assert.Equal(t, StateDirty, b.State())
}

func TestRebaseDropsStaleStringDelta(t *testing.T) {
	var conflicts []mutate.Conflict
	b := New("doc1", (&fakeStore{}).submit,
		WithConflictFunc(func(c mutate.Conflict) { conflicts = append(conflicts, c) }))
	require.NoError(t, b.HandleSnapshot(map[string]any{"body": "the original paragraph"}, "r1"))

	delta := mutate.MakeStringDelta("the original paragraph", "the edited paragraph")
	require.NoError(t, b.Add(mutate.NewPatchMutation("doc1", mutate.MustAt("body", mutate.DiffString(delta)))))

	require.NoError(t, b.HandleSnapshot(map[string]any{"body": "somebody rewrote all of this meanwhile"}, "r2"))

	require.Len(t, conflicts, 1)
	assert.ErrorIs(t, conflicts[0], mutate.ErrStringDiffConflict)
	assert.Equal(t, StateConflicted, b.State())
	assert.Equal(t, "somebody rewrote all of this meanwhile", b.View().(map[string]any)["body"],
		"dropped delta leaves the remote text")
}

func TestCommitFailureKeepsBuffer(t *testing.T) {
	store := &fakeStore{fail: errors.New("gateway down")}
	b := New("doc1", store.submit)
	require.NoError(t, b.HandleSnapshot(map[string]any{"n": float64(1)}, "r1"))
	require.NoError(t, b.Add(mutate.NewPatchMutation("doc1", mutate.MustAt("n", mutate.Inc(1)))))

	err := b.Commit(context.Background())
	require.Error(t, err)
	assert.Equal(t, StateDirty, b.State())
	assert.Equal(t, float64(2), b.View().(map[string]any)["n"], "edit survives the failure")

	store.mu.Lock()
	store.fail = nil
	store.mu.Unlock()
	require.NoError(t, b.Commit(context.Background()))
	assert.Equal(t, StateSynced, b.State())
}

// A batch the store accepts but that cannot replay onto head must not
// leave the document stuck in the committing state.
func TestCommitAcknowledgeFailureState(t *testing.T) {
	b := New("doc1", (&fakeStore{}).submit)
	require.NoError(t, b.HandleSnapshot(map[string]any{"_id": "doc1"}, "r1"))

	// Queue a create directly; staging would reject it against a present
	// document, so the acknowledge path is the first to see the mismatch.
	b.mu.Lock()
	b.doc.pending = append(b.doc.pending, &mutate.Mutation{
		DocumentID:    "doc1",
		TransactionID: "txn-bad",
		DocOp:         mutate.Create{Document: map[string]any{"_id": "doc1"}},
	})
	b.mu.Unlock()

	err := b.Commit(context.Background())
	require.ErrorIs(t, err, mutate.ErrAlreadyExists)
	assert.Equal(t, StateDirty, b.State())
}

// A second Commit while one is in flight coalesces; edits made during the
// round trip ride along in a follow-up batch before the first Commit
// returns.
func TestCommitCoalescing(t *testing.T) {
	store := &fakeStore{block: make(chan struct{})}
	b := New("doc1", store.submit)
	require.NoError(t, b.HandleSnapshot(map[string]any{"n": float64(0)}, "r0"))
	require.NoError(t, b.Add(mutate.NewPatchMutation("doc1", mutate.MustAt("n", mutate.Inc(1)))))

	done := make(chan error, 1)
	go func() { done <- b.Commit(context.Background()) }()

	require.Eventually(t, func() bool { return b.State() == StateCommitting },
		time.Second, time.Millisecond)

	require.NoError(t, b.Add(mutate.NewPatchMutation("doc1", mutate.MustAt("n", mutate.Inc(10)))))
	require.NoError(t, b.Commit(context.Background()), "coalesced commit returns immediately")

	close(store.block)
	require.NoError(t, <-done)

	assert.Equal(t, 2, store.batchCount())
	assert.Equal(t, StateSynced, b.State())
	assert.Equal(t, float64(11), b.View().(map[string]any)["n"])
}

func TestSnapshotEchoIgnored(t *testing.T) {
	b := New("doc1", (&fakeStore{}).submit)
	require.NoError(t, b.HandleSnapshot(map[string]any{"title": "x"}, "r1"))
	require.NoError(t, b.Add(mutate.NewPatchMutation("doc1", mutate.MustAt("title", mutate.Set("A")))))
	require.NoError(t, b.Commit(context.Background()))

	_, rev := b.Remote()
	// The store's own notification for our write must not disturb state.
	require.NoError(t, b.HandleSnapshot(map[string]any{"title": "A"}, rev))
	assert.Equal(t, StateSynced, b.State())
	assert.Equal(t, "A", b.View().(map[string]any)["title"])
}

func TestCloseDiscardsBuffer(t *testing.T) {
	b := New("doc1", (&fakeStore{}).submit)
	require.NoError(t, b.HandleSnapshot(map[string]any{"title": "x"}, "r1"))
	require.NoError(t, b.Add(mutate.NewPatchMutation("doc1", mutate.MustAt("title", mutate.Set("A")))))
	b.Close()
	assert.Equal(t, "x", b.View().(map[string]any)["title"])
}

// A session whose watch context is canceled gets evicted once its stream
// ends; a later Open starts a live session instead of returning the dead
// one.
func TestRegistryReopenAfterCancel(t *testing.T) {
	store := remote.NewInMemStore(nil)
	defer store.Close()
	reg := NewRegistry(store, nil)
	defer reg.CloseAll()

	ctx, cancel := context.WithCancel(context.Background())
	first, err := reg.Open(ctx, "doc1")
	require.NoError(t, err)
	cancel()

	require.Eventually(t, func() bool {
		doc, err := reg.Open(context.Background(), "doc1")
		require.NoError(t, err)
		return doc != first
	}, time.Second, time.Millisecond)

	second, err := reg.Open(context.Background(), "doc1")
	require.NoError(t, err)
	require.Eventually(t, func() bool { return second.State() == StateSynced },
		time.Second, time.Millisecond, "replacement session has a live stream")
}

func TestRegistryRoundTrip(t *testing.T) {
	store := remote.NewInMemStore(nil)
	defer store.Close()
	reg := NewRegistry(store, nil)
	defer reg.CloseAll()

	ctx := context.Background()
	writer, err := reg.Open(ctx, "doc1")
	require.NoError(t, err)

	require.Eventually(t, func() bool { return writer.State() == StateSynced },
		time.Second, time.Millisecond, "seeded by the initial absent snapshot")

	require.NoError(t, writer.Add(mutate.NewCreateIfNotExists(map[string]any{"_id": "doc1", "n": float64(1)})))
	require.NoError(t, writer.Add(mutate.NewPatchMutation("doc1", mutate.MustAt("n", mutate.Inc(1)))))
	require.NoError(t, writer.Commit(ctx))

	doc, rev, ok := store.Get("doc1")
	require.True(t, ok)
	require.NotEmpty(t, rev)
	assert.Equal(t, float64(2), doc.(map[string]any)["n"])

	// A second session over the same store converges on the written state.
	reg2 := NewRegistry(store, nil)
	defer reg2.CloseAll()
	reader, err := reg2.Open(ctx, "doc1")
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		v, _ := reader.View().(map[string]any)
		return v != nil && v["n"] == float64(2)
	}, time.Second, time.Millisecond)
}
