package mutate

import (
	"github.com/signadot/go-mutate/debug"
)

// Collection maps document identity to document value. Values are treated
// as immutable: applying mutations produces a new Collection whose
// untouched documents are shared with the input.
type Collection map[string]any

// ApplyToCollection applies an ordered list of mutations, possibly
// spanning many documents, to a collection. Mutations addressing an
// absent document are skipped unless they can materialize it
// (AppliesToMissingDocument). Application is atomic: on error the input
// collection is returned unchanged alongside the error.
func ApplyToCollection(coll Collection, muts []*Mutation) (Collection, error) {
	out := make(Collection, len(coll))
	for id, doc := range coll {
		out[id] = doc
	}
	for _, m := range muts {
		doc, ok := out[m.DocumentID]
		if !ok && !m.AppliesToMissingDocument() {
			if debug.Collection() {
				debug.Logf("collection: skipping mutation %s, document %q absent\n",
					m.TransactionID, m.DocumentID)
			}
			continue
		}
		next, err := m.Apply(doc)
		if err != nil {
			return coll, err
		}
		if next == nil {
			delete(out, m.DocumentID)
			continue
		}
		out[m.DocumentID] = next
	}
	return out, nil
}
