package mutate

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/signadot/go-mutate/jsonpath"
)

// Wire form. A patch marshals as a single object carrying the path and
// exactly one operation field, keyed by the operation name:
//
//	{"path": "title", "set": "Hello"}
//	{"path": "tags[-1]", "insert": {"position": "after", "items": ["go"]}}
//
// A mutation marries the envelope fields with at most one document
// operation field and the patch list. Both directions go through the
// wire structs below so the in-memory types stay free of JSON tags.

type wireValue struct {
	V any
}

func (w wireValue) MarshalJSON() ([]byte, error) {
	return json.Marshal(w.V)
}

func (w *wireValue) UnmarshalJSON(data []byte) error {
	return json.Unmarshal(data, &w.V)
}

type wireInsert struct {
	Position Position `json:"position"`
	Items    []any    `json:"items"`
}

type wirePatch struct {
	Path         jsonpath.Path  `json:"path"`
	Set          *wireValue     `json:"set,omitempty"`
	SetIfMissing *wireValue     `json:"setIfMissing,omitempty"`
	Unset        bool           `json:"unset,omitempty"`
	Inc          *float64       `json:"inc,omitempty"`
	Insert       *wireInsert    `json:"insert,omitempty"`
	Upsert       *wireInsert    `json:"upsert,omitempty"`
	Assign       map[string]any `json:"assign,omitempty"`
	DiffString   *string        `json:"diffString,omitempty"`
}

func (p Patch) MarshalJSON() ([]byte, error) {
	w := wirePatch{Path: p.Path}
	switch op := p.Op.(type) {
	case SetOp:
		w.Set = &wireValue{V: op.Value}
	case SetIfMissingOp:
		w.SetIfMissing = &wireValue{V: op.Value}
	case UnsetOp:
		w.Unset = true
	case IncOp:
		w.Inc = &op.Delta
	case InsertOp:
		w.Insert = &wireInsert{Position: op.Position, Items: op.Items}
	case UpsertOp:
		w.Upsert = &wireInsert{Position: op.Position, Items: op.Items}
	case AssignOp:
		w.Assign = op.Value
	case DiffStringOp:
		w.DiffString = &op.Delta
	case nil:
		return nil, fmt.Errorf("patch at %s has no operation", p.Path)
	}
	return json.Marshal(w)
}

func (p *Patch) UnmarshalJSON(data []byte) error {
	var w wirePatch
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	p.Path = w.Path
	p.Op = nil
	set := func(op Op) error {
		if p.Op != nil {
			return fmt.Errorf("patch at %s carries more than one operation", w.Path)
		}
		p.Op = op
		return nil
	}
	if w.Set != nil {
		if err := set(SetOp{Value: w.Set.V}); err != nil {
			return err
		}
	}
	if w.SetIfMissing != nil {
		if err := set(SetIfMissingOp{Value: w.SetIfMissing.V}); err != nil {
			return err
		}
	}
	if w.Unset {
		if err := set(UnsetOp{}); err != nil {
			return err
		}
	}
	if w.Inc != nil {
		if err := set(IncOp{Delta: *w.Inc}); err != nil {
			return err
		}
	}
	if w.Insert != nil {
		if err := set(InsertOp{Position: w.Insert.Position, Items: w.Insert.Items}); err != nil {
			return err
		}
	}
	if w.Upsert != nil {
		if err := set(UpsertOp{Position: w.Upsert.Position, Items: w.Upsert.Items}); err != nil {
			return err
		}
	}
	if w.Assign != nil {
		if err := set(AssignOp{Value: w.Assign}); err != nil {
			return err
		}
	}
	if w.DiffString != nil {
		if err := set(DiffStringOp{Delta: *w.DiffString}); err != nil {
			return err
		}
	}
	if p.Op == nil {
		return fmt.Errorf("patch at %s has no operation", w.Path)
	}
	return nil
}

type wireMutation struct {
	DocumentID        string         `json:"documentID"`
	TransactionID     string         `json:"transactionID,omitempty"`
	PreviousRevision  string         `json:"previousRev,omitempty"`
	ResultRevision    string         `json:"resultRev,omitempty"`
	Timestamp         *time.Time     `json:"timestamp,omitempty"`
	Create            map[string]any `json:"create,omitempty"`
	CreateIfNotExists map[string]any `json:"createIfNotExists,omitempty"`
	CreateOrReplace   map[string]any `json:"createOrReplace,omitempty"`
	Delete            bool           `json:"delete,omitempty"`
	Patches           []Patch        `json:"patches,omitempty"`
}

func (m *Mutation) MarshalJSON() ([]byte, error) {
	w := wireMutation{
		DocumentID:       m.DocumentID,
		TransactionID:    m.TransactionID,
		PreviousRevision: m.PreviousRevision,
		ResultRevision:   m.ResultRevision,
		Patches:          m.Patches,
	}
	if !m.Timestamp.IsZero() {
		ts := m.Timestamp
		w.Timestamp = &ts
	}
	switch op := m.DocOp.(type) {
	case Create:
		w.Create = op.Document
	case CreateIfNotExists:
		w.CreateIfNotExists = op.Document
	case CreateOrReplace:
		w.CreateOrReplace = op.Document
	case Delete:
		w.Delete = true
	}
	return json.Marshal(w)
}

func (m *Mutation) UnmarshalJSON(data []byte) error {
	var w wireMutation
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	*m = Mutation{
		DocumentID:       w.DocumentID,
		TransactionID:    w.TransactionID,
		PreviousRevision: w.PreviousRevision,
		ResultRevision:   w.ResultRevision,
		Patches:          w.Patches,
	}
	if w.Timestamp != nil {
		m.Timestamp = *w.Timestamp
	}
	n := 0
	if w.Create != nil {
		m.DocOp = Create{Document: w.Create}
		n++
	}
	if w.CreateIfNotExists != nil {
		m.DocOp = CreateIfNotExists{Document: w.CreateIfNotExists}
		n++
	}
	if w.CreateOrReplace != nil {
		m.DocOp = CreateOrReplace{Document: w.CreateOrReplace}
		n++
	}
	if w.Delete {
		m.DocOp = Delete{}
		n++
	}
	if n > 1 {
		return fmt.Errorf("mutation on %q carries more than one document operation", w.DocumentID)
	}
	return nil
}
