package jsonpath

import (
	"github.com/signadot/go-mutate/debug"
)

// TargetKind discriminates resolved target variants.
type TargetKind int

const (
	// AttrTarget addresses an attribute on a mapping.
	AttrTarget TargetKind = iota
	// IndexTarget addresses a resolved index range of a sequence.
	IndexTarget
)

// Target is a concrete, resolved location inside a document value.
//
// Attribute targets carry the enclosing mapping in Parent and the attribute
// name in Field; the attribute itself may not exist yet (Exists reports
// that). Index targets carry the enclosing sequence in Parent and the
// resolved half-open interval [Start, End); indices are already normalized
// (non-negative, clamped to the sequence length).
//
// ParentPath is the concrete path of Parent from the document root; it
// contains only field and non-negative index segments, so appliers can
// rebuild the spine of the tree while sharing untouched branches.
type Target struct {
	Kind       TargetKind
	Parent     any
	ParentPath Path
	Field      string
	Start, End int
	Value      any
	Exists     bool
}

// Width returns the number of sequence slots an index target covers.
func (t Target) Width() int {
	if t.Kind != IndexTarget {
		return 0
	}
	return t.End - t.Start
}

// Resolve resolves a path against a document value and returns all targets
// it addresses. Resolution never fails: unmatched paths yield an empty
// target list. The empty path yields no targets; whole-document operations
// are expressed elsewhere.
func Resolve(doc any, p Path) []Target {
	if len(p) == 0 {
		return nil
	}
	targets := resolveFrom(doc, nil, p)
	if debug.Resolve() {
		debug.Logf("resolve %q: %d targets\n", p.String(), len(targets))
	}
	return targets
}

// resolveFrom walks rest against value, whose concrete path from the root is
// at. Fan-out points (ranges, predicates) recurse per match.
func resolveFrom(value any, at Path, rest Path) []Target {
	seg := rest[0]
	last := len(rest) == 1
	switch {
	case seg.Field != nil:
		m, ok := value.(map[string]any)
		if !ok {
			return nil
		}
		child, present := m[*seg.Field]
		if last {
			return []Target{{
				Kind:       AttrTarget,
				Parent:     m,
				ParentPath: at,
				Field:      *seg.Field,
				Value:      child,
				Exists:     present,
			}}
		}
		if !present {
			// Deeper absent structure is not auto-vivified.
			return nil
		}
		return resolveFrom(child, append(at, seg), rest[1:])

	case seg.Index != nil:
		arr, ok := value.([]any)
		if !ok {
			return nil
		}
		i := NormalizeIndex(*seg.Index, len(arr))
		if i < 0 || i >= len(arr) {
			return nil
		}
		if last {
			return []Target{{
				Kind:       IndexTarget,
				Parent:     arr,
				ParentPath: at,
				Start:      i,
				End:        i + 1,
				Value:      arr[i],
				Exists:     true,
			}}
		}
		return resolveFrom(arr[i], append(at, IndexSegment(i)), rest[1:])

	case seg.Range != nil:
		arr, ok := value.([]any)
		if !ok {
			return nil
		}
		start, end := resolveRange(seg.Range, len(arr))
		if start >= end {
			return nil
		}
		if last {
			return []Target{{
				Kind:       IndexTarget,
				Parent:     arr,
				ParentPath: at,
				Start:      start,
				End:        end,
			}}
		}
		var out []Target
		for i := start; i < end; i++ {
			out = append(out, resolveFrom(arr[i], append(at[:len(at):len(at)], IndexSegment(i)), rest[1:])...)
		}
		return out

	case seg.Key != nil:
		arr, ok := value.([]any)
		if !ok {
			return nil
		}
		var out []Target
		for i, item := range arr {
			if !keyMatches(item, seg.Key) {
				continue
			}
			if last {
				out = append(out, Target{
					Kind:       IndexTarget,
					Parent:     arr,
					ParentPath: at,
					Start:      i,
					End:        i + 1,
					Value:      item,
					Exists:     true,
				})
				continue
			}
			out = append(out, resolveFrom(item, append(at[:len(at):len(at)], IndexSegment(i)), rest[1:])...)
		}
		return out
	}
	return nil
}

func keyMatches(item any, km *KeyMatch) bool {
	m, ok := item.(map[string]any)
	if !ok {
		return false
	}
	v, ok := m[km.Field].(string)
	return ok && v == km.Value
}

// NormalizeIndex maps a possibly negative index onto [0, n); -1 is the last
// item. The result may still be out of bounds, callers check.
func NormalizeIndex(i, n int) int {
	if i < 0 {
		return n + i
	}
	return i
}

func resolveRange(r *Range, n int) (start, end int) {
	start, end = 0, n
	if r.Start != nil {
		start = NormalizeIndex(*r.Start, n)
	}
	if r.End != nil {
		end = NormalizeIndex(*r.End, n)
	}
	start = max(0, min(start, n))
	end = max(start, min(end, n))
	return start, end
}

// Get returns the value at the first location p addresses in doc, or nil
// and false when p addresses nothing. Width-many index targets yield their
// first item.
func Get(doc any, p Path) (any, bool) {
	if len(p) == 0 {
		return doc, true
	}
	for _, t := range Resolve(doc, p) {
		switch t.Kind {
		case AttrTarget:
			if t.Exists {
				return t.Value, true
			}
		case IndexTarget:
			arr := t.Parent.([]any)
			if t.Start < len(arr) && t.Width() > 0 {
				return arr[t.Start], true
			}
		}
	}
	return nil, false
}
