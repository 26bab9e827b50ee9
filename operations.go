package mutate

import (
	"github.com/signadot/go-mutate/jsonpath"
)

// Position says on which side of the reference anchor insert/upsert splice
// their items.
type Position string

const (
	Before Position = "before"
	After  Position = "after"
)

// Op is a patch operation. The set of operations is closed: applyPatch
// switches exhaustively over the variants below, so adding an operation
// kind forces the applier to handle it.
type Op interface {
	isOp()
	opName() string
}

// SetOp replaces the value at each target, creating the final attribute on
// an existing mapping when absent.
type SetOp struct {
	Value any
}

// SetIfMissingOp is SetOp restricted to attribute targets whose key is
// currently absent. Index targets are always skipped.
type SetIfMissingOp struct {
	Value any
}

// UnsetOp removes the attribute key or the addressed index range from its
// sequence.
type UnsetOp struct{}

// IncOp adds Delta to the numeric value at each target; non-numeric targets
// are skipped.
type IncOp struct {
	Delta float64
}

// InsertOp splices Items immediately before or after the anchor the patch
// path resolves to. The path's final segment is the anchor: an index,
// negative index, or key predicate into the enclosing sequence.
type InsertOp struct {
	Position Position
	Items    []any
}

// UpsertOp is InsertOp with per-item stable-key matching: items whose key
// already exists in the sequence replace the existing item in place, the
// rest are spliced at the anchor. Applying the same upsert twice yields the
// same sequence.
type UpsertOp struct {
	Position Position
	Items    []any
}

// AssignOp shallow-merges Value into the mapping at each target, leaving
// untouched keys alone.
type AssignOp struct {
	Value map[string]any
}

// DiffStringOp applies a compact string delta (diff-match-patch text form).
// The delta only applies when the live string still matches the origin it
// was computed from; otherwise the target conflicts.
type DiffStringOp struct {
	Delta string
}

func (SetOp) isOp()          {}
func (SetIfMissingOp) isOp() {}
func (UnsetOp) isOp()        {}
func (IncOp) isOp()          {}
func (InsertOp) isOp()       {}
func (UpsertOp) isOp()       {}
func (AssignOp) isOp()       {}
func (DiffStringOp) isOp()   {}

func (SetOp) opName() string          { return "set" }
func (SetIfMissingOp) opName() string { return "setIfMissing" }
func (UnsetOp) opName() string        { return "unset" }
func (IncOp) opName() string          { return "inc" }
func (InsertOp) opName() string       { return "insert" }
func (UpsertOp) opName() string       { return "upsert" }
func (AssignOp) opName() string       { return "assign" }
func (DiffStringOp) opName() string   { return "diffString" }

// Patch is one (path, operation) pair.
type Patch struct {
	Path jsonpath.Path
	Op   Op
}

// At pairs a parsed path with an operation.
func At(path jsonpath.Path, op Op) Patch {
	return Patch{Path: path, Op: op}
}

// AtExpr pairs a textual path with an operation.
func AtExpr(expr string, op Op) (Patch, error) {
	p, err := jsonpath.Parse(expr)
	if err != nil {
		return Patch{}, err
	}
	return Patch{Path: p, Op: op}, nil
}

// MustAt is AtExpr for paths known valid at compile time.
func MustAt(expr string, op Op) Patch {
	return Patch{Path: jsonpath.MustParse(expr), Op: op}
}

// Set returns a set operation. Arrays of mappings inside value get stable
// keys here, at construction time, so the operation stays pure data.
func Set(value any) Op { return SetOp{Value: EnsureKeysDeep(value)} }

// SetIfMissing returns a set-if-missing operation.
func SetIfMissing(value any) Op { return SetIfMissingOp{Value: EnsureKeysDeep(value)} }

// Unset returns an unset operation.
func Unset() Op { return UnsetOp{} }

// Inc returns an increment operation.
func Inc(delta float64) Op { return IncOp{Delta: delta} }

// Insert returns an insert operation. Mapping items are given generated
// stable keys at construction time, so that the operation value is pure
// data and repeated application is deterministic.
func Insert(position Position, items ...any) Op {
	return InsertOp{Position: position, Items: ensureItemKeys(items)}
}

// Upsert returns an upsert operation; see Insert about stable keys.
func Upsert(position Position, items ...any) Op {
	return UpsertOp{Position: position, Items: ensureItemKeys(items)}
}

// Assign returns a shallow-merge operation.
func Assign(partial map[string]any) Op { return AssignOp{Value: partial} }

// DiffString returns a string-delta patch operation; see MakeStringDelta.
func DiffString(delta string) Op { return DiffStringOp{Delta: delta} }

// Conflict reports a patch that could not apply to a specific target during
// lenient application, while the rest of its batch did apply.
type Conflict struct {
	Path jsonpath.Path
	Op   string
	Err  error
}

func (c Conflict) Error() string {
	return c.Op + " at " + c.Path.String() + ": " + c.Err.Error()
}

func (c Conflict) Unwrap() error { return c.Err }
