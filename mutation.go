package mutate

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Field names the engine maintains on documents.
const (
	IDField        = "_id"
	TypeField      = "_type"
	RevisionField  = "_rev"
	UpdatedAtField = "_updatedAt"
)

// DocOp is a whole-document operation. Like Op, the variant set is closed
// and Mutation.Apply switches over it exhaustively.
type DocOp interface {
	isDocOp()
	docOpName() string
}

// Create materializes a new document; the document must be absent.
type Create struct {
	Document map[string]any
}

// CreateIfNotExists materializes the document unless one is already
// present, in which case it is a no-op.
type CreateIfNotExists struct {
	Document map[string]any
}

// CreateOrReplace materializes the document, replacing any present one.
type CreateOrReplace struct {
	Document map[string]any
}

// Delete removes the document. Patches later in the same mutation become
// no-ops, since there is nothing left to patch.
type Delete struct{}

func (Create) isDocOp()            {}
func (CreateIfNotExists) isDocOp() {}
func (CreateOrReplace) isDocOp()   {}
func (Delete) isDocOp()            {}

func (Create) docOpName() string            { return "create" }
func (CreateIfNotExists) docOpName() string { return "createIfNotExists" }
func (CreateOrReplace) docOpName() string   { return "createOrReplace" }
func (Delete) docOpName() string            { return "delete" }

// Mutation is an ordered, atomic batch of patches plus an optional
// whole-document operation, scoped to one document identity. Mutations are
// plain structured data and serialize to JSON, so they can cross the
// process boundary to the remote store unchanged.
//
// PreviousRevision and ResultRevision are populated on mutations that have
// been through the remote store: a mutation applies on top of
// PreviousRevision and produces ResultRevision. Locally authored, not yet
// acknowledged mutations carry neither.
type Mutation struct {
	DocumentID       string
	TransactionID    string
	PreviousRevision string
	ResultRevision   string
	Timestamp        time.Time
	DocOp            DocOp
	Patches          []Patch
}

// NewPatchMutation returns a patch-only mutation with a fresh transaction
// id.
func NewPatchMutation(documentID string, patches ...Patch) *Mutation {
	return &Mutation{
		DocumentID:    documentID,
		TransactionID: uuid.NewString(),
		Patches:       patches,
	}
}

func newDocMutation(doc map[string]any, mk func(map[string]any) DocOp) *Mutation {
	doc = EnsureKeysDeep(doc).(map[string]any)
	id, _ := doc[IDField].(string)
	if id == "" {
		id = uuid.NewString()
		doc = copyMap(doc)
		doc[IDField] = id
	}
	return &Mutation{
		DocumentID:    id,
		TransactionID: uuid.NewString(),
		DocOp:         mk(doc),
	}
}

// NewCreate returns a create mutation. The document's _id names the
// identity; a fresh one is assigned when absent.
func NewCreate(doc map[string]any) *Mutation {
	return newDocMutation(doc, func(d map[string]any) DocOp { return Create{Document: d} })
}

// NewCreateIfNotExists returns a create-if-not-exists mutation.
func NewCreateIfNotExists(doc map[string]any) *Mutation {
	return newDocMutation(doc, func(d map[string]any) DocOp { return CreateIfNotExists{Document: d} })
}

// NewCreateOrReplace returns a create-or-replace mutation.
func NewCreateOrReplace(doc map[string]any) *Mutation {
	return newDocMutation(doc, func(d map[string]any) DocOp { return CreateOrReplace{Document: d} })
}

// NewDelete returns a delete mutation for the given document identity.
func NewDelete(documentID string) *Mutation {
	return &Mutation{
		DocumentID:    documentID,
		TransactionID: uuid.NewString(),
		DocOp:         Delete{},
	}
}

// AppliesToMissingDocument reports whether the mutation can be applied when
// the document is currently absent.
func (m *Mutation) AppliesToMissingDocument() bool {
	return m.DocOp != nil
}

// Apply applies the mutation to a document value; nil stands for an absent
// document, both as input and output. Strict mode: DiffString conflicts
// fail the application.
func (m *Mutation) Apply(doc any) (any, error) {
	next, conflicts, err := m.apply(doc, ApplyOptions{Strict: true})
	if err != nil {
		return nil, err
	}
	if len(conflicts) != 0 {
		// unreachable in strict mode
		return nil, conflicts[0]
	}
	return next, nil
}

// ApplyLenient applies the mutation, skipping DiffString targets whose
// origin no longer matches and reporting them as conflicts. The rest of
// the batch still applies.
func (m *Mutation) ApplyLenient(doc any) (any, []Conflict, error) {
	return m.apply(doc, ApplyOptions{})
}

func (m *Mutation) apply(doc any, opts ApplyOptions) (any, []Conflict, error) {
	if m.DocOp != nil {
		switch op := m.DocOp.(type) {
		case Create:
			if doc != nil {
				return nil, nil, fmt.Errorf("create %q: %w", m.DocumentID, ErrAlreadyExists)
			}
			doc = op.Document
		case CreateIfNotExists:
			if doc == nil {
				doc = op.Document
			}
		case CreateOrReplace:
			doc = op.Document
		case Delete:
			doc = nil
		}
	}
	if doc == nil {
		return nil, nil, nil
	}
	next, conflicts, err := ApplyPatches(doc, m.Patches, opts)
	if err != nil {
		return nil, nil, fmt.Errorf("mutation %s on %q: %w", m.TransactionID, m.DocumentID, err)
	}
	return m.stamp(next), conflicts, nil
}

// stamp records the revision and timestamp the remote store attached to
// the mutation on the resulting document.
func (m *Mutation) stamp(doc any) any {
	if m.ResultRevision == "" && m.Timestamp.IsZero() {
		return doc
	}
	md, ok := doc.(map[string]any)
	if !ok {
		return doc
	}
	out := copyMap(md)
	if m.ResultRevision != "" {
		out[RevisionField] = m.ResultRevision
	}
	if !m.Timestamp.IsZero() {
		out[UpdatedAtField] = m.Timestamp.UTC().Format(time.RFC3339Nano)
	}
	return out
}

// ApplyAll folds an ordered list of mutations over one document value.
func ApplyAll(doc any, muts []*Mutation) (any, error) {
	for _, m := range muts {
		next, err := m.Apply(doc)
		if err != nil {
			return nil, err
		}
		doc = next
	}
	return doc, nil
}

// ApplyAllLenient is ApplyAll with lenient DiffString handling, collecting
// conflicts across the whole list.
func ApplyAllLenient(doc any, muts []*Mutation) (any, []Conflict, error) {
	var all []Conflict
	for _, m := range muts {
		next, conflicts, err := m.ApplyLenient(doc)
		if err != nil {
			return nil, nil, err
		}
		all = append(all, conflicts...)
		doc = next
	}
	return doc, all, nil
}
