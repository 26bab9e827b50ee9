package bufdoc

import (
	mutate "github.com/signadot/go-mutate"
)

// document is the two-version model under BufferedDocument: head is the
// last state acknowledged by the remote store, edge is head with every
// buffered local mutation replayed on top. edge is a cache; it is always
// rederivable from head, submitted and pending.
type document struct {
	id      string
	seeded  bool
	head    any
	headRev string

	// submitted is in flight to the store, pending is staged behind it.
	// Transmission order is submitted then pending, the order Stage saw.
	submitted []*mutate.Mutation
	pending   []*mutate.Mutation

	// deferred holds the newest snapshot that arrived while a batch was in
	// flight. Adopting it right away would replay the in-flight mutations
	// on top of a state that may already contain them, so adoption waits
	// for the acknowledgement, which tells the two cases apart by
	// revision.
	deferred *snapshot

	edge any
}

type snapshot struct {
	value    any
	revision string
}

func newDocument(id string) *document {
	return &document{id: id}
}

// HEAD is the last acknowledged remote state; nil while absent.
func (d *document) HEAD() any { return d.head }

// EDGE is the optimistic merged view callers read.
func (d *document) EDGE() any { return d.edge }

func (d *document) Revision() string { return d.headRev }

// Consistent reports whether the merged view equals the acknowledged
// remote state, i.e. nothing local is buffered or in flight.
func (d *document) Consistent() bool {
	return len(d.submitted) == 0 && len(d.pending) == 0
}

// Stage buffers a local mutation and folds it into the merged view
// immediately. Application is lenient so that a stale string delta cannot
// wedge the buffer; its conflict is returned instead.
func (d *document) Stage(m *mutate.Mutation) ([]mutate.Conflict, error) {
	next, conflicts, err := m.ApplyLenient(d.edge)
	if err != nil {
		return nil, err
	}
	d.pending = append(d.pending, m)
	d.edge = next
	return conflicts, nil
}

// TakePending moves the staged mutations into the in-flight queue and
// returns the batch to transmit.
func (d *document) TakePending() []*mutate.Mutation {
	batch := d.pending
	d.submitted = append(d.submitted, batch...)
	d.pending = nil
	return batch
}

// Acknowledge clears the in-flight queue after the store accepted it,
// advancing head to include the acknowledged batch. A snapshot deferred
// during the flight supersedes that result unless it was the store's own
// echo of it.
func (d *document) Acknowledge(revision string) ([]mutate.Conflict, error) {
	head, err := mutate.ApplyAll(d.head, d.submitted)
	if err != nil {
		return nil, err
	}
	d.head = head
	d.headRev = revision
	d.submitted = nil
	d.seeded = true
	if md, ok := d.head.(map[string]any); ok && revision != "" {
		d.head = copyWith(md, mutate.RevisionField, revision)
	}
	if dd := d.takeDeferred(); dd != nil && dd.revision != revision {
		d.head = dd.value
		d.headRev = dd.revision
	}
	return d.rebaseConflicts()
}

// Retract puts the in-flight queue back in front of pending after a
// failed submission; nothing is lost, the caller may retry. A snapshot
// deferred during the flight is adopted now.
func (d *document) Retract() ([]mutate.Conflict, error) {
	d.pending = append(d.submitted, d.pending...)
	d.submitted = nil
	if dd := d.takeDeferred(); dd != nil {
		d.head = dd.value
		d.headRev = dd.revision
		d.seeded = true
	}
	return d.rebaseConflicts()
}

func (d *document) takeDeferred() *snapshot {
	dd := d.deferred
	d.deferred = nil
	return dd
}

// Arrive adopts a remote snapshot as the new baseline and replays the
// local buffer on top of it. Returns the surfaced string-delta conflicts
// and whether the baseline actually moved. While a batch is in flight the
// snapshot is parked instead; Acknowledge or Retract adopts it.
func (d *document) Arrive(value any, revision string) ([]mutate.Conflict, bool, error) {
	if d.seeded && revision == d.headRev {
		return nil, false, nil
	}
	if len(d.submitted) > 0 {
		d.deferred = &snapshot{value: value, revision: revision}
		return nil, false, nil
	}
	d.head = value
	d.headRev = revision
	d.seeded = true
	conflicts, err := d.rebaseConflicts()
	if err != nil {
		return nil, false, err
	}
	return conflicts, true, nil
}

func (d *document) rebase() error {
	_, err := d.rebaseConflicts()
	return err
}

// rebaseConflicts recomputes edge from head and the local buffer.
func (d *document) rebaseConflicts() ([]mutate.Conflict, error) {
	edge := d.head
	var all []mutate.Conflict
	for _, q := range [][]*mutate.Mutation{d.submitted, d.pending} {
		next, conflicts, err := mutate.ApplyAllLenient(edge, q)
		if err != nil {
			return nil, err
		}
		all = append(all, conflicts...)
		edge = next
	}
	d.edge = edge
	return all, nil
}

func copyWith(m map[string]any, key string, val any) map[string]any {
	out := make(map[string]any, len(m)+1)
	for k, v := range m {
		out[k] = v
	}
	out[key] = val
	return out
}
