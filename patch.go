package mutate

import (
	"errors"
	"fmt"

	"github.com/signadot/go-mutate/debug"
	"github.com/signadot/go-mutate/jsonpath"
)

func isConflict(err error) bool {
	return errors.Is(err, ErrStringDiffConflict)
}

// ApplyOptions controls patch application.
//
// In strict mode a DiffStringOp whose origin no longer matches fails the
// whole application. In lenient mode the conflicting target is skipped and
// reported as a Conflict while the rest of the batch applies; the
// BufferedDocument replay path relies on this.
type ApplyOptions struct {
	Strict bool
}

// ApplyPatches applies patches to doc in list order, each patch seeing the
// result of the previous one. The input document is never modified;
// untouched subtrees are shared between input and output.
func ApplyPatches(doc any, patches []Patch, opts ApplyOptions) (any, []Conflict, error) {
	var conflicts []Conflict
	for _, p := range patches {
		next, cs, err := applyPatch(doc, p, opts.Strict)
		if err != nil {
			return nil, nil, err
		}
		conflicts = append(conflicts, cs...)
		doc = next
	}
	return doc, conflicts, nil
}

func applyPatch(doc any, p Patch, strict bool) (any, []Conflict, error) {
	if debug.Patch() {
		debug.Logf("patch %s at %q\n", p.Op.opName(), p.Path.String())
	}
	switch op := p.Op.(type) {
	case SetOp:
		return applySet(doc, p.Path, op.Value), nil, nil
	case SetIfMissingOp:
		return applySetIfMissing(doc, p.Path, op.Value), nil, nil
	case UnsetOp:
		return applyUnset(doc, p.Path), nil, nil
	case IncOp:
		return applyInc(doc, p.Path, op.Delta), nil, nil
	case InsertOp:
		next, err := applyInsert(doc, p.Path, op.Position, op.Items)
		return next, nil, err
	case UpsertOp:
		next, err := applyUpsert(doc, p.Path, op)
		return next, nil, err
	case AssignOp:
		return applyAssign(doc, p.Path, op.Value), nil, nil
	case DiffStringOp:
		return applyDiffString(doc, p, op, strict)
	}
	return nil, nil, fmt.Errorf("unknown patch operation %T", p.Op)
}

// rebuild returns doc with the container addressed by path replaced by
// f(container). The path must be concrete (fields and resolved indices
// only, as produced by resolution); every container along the spine is
// copied, everything off the spine is shared.
func rebuild(doc any, path jsonpath.Path, f func(container any) any) any {
	if len(path) == 0 {
		return f(doc)
	}
	seg := path[0]
	if seg.Field != nil {
		m := doc.(map[string]any)
		out := copyMap(m)
		out[*seg.Field] = rebuild(m[*seg.Field], path[1:], f)
		return out
	}
	arr := doc.([]any)
	out := copySlice(arr)
	i := *seg.Index
	out[i] = rebuild(arr[i], path[1:], f)
	return out
}

func applySet(doc any, path jsonpath.Path, value any) any {
	for _, t := range jsonpath.Resolve(doc, path) {
		t := t
		switch t.Kind {
		case jsonpath.AttrTarget:
			doc = rebuild(doc, t.ParentPath, func(c any) any {
				m := copyMap(c.(map[string]any))
				m[t.Field] = value
				return m
			})
		case jsonpath.IndexTarget:
			doc = rebuild(doc, t.ParentPath, func(c any) any {
				arr := copySlice(c.([]any))
				for i := t.Start; i < t.End; i++ {
					arr[i] = value
				}
				return arr
			})
		}
	}
	return doc
}

func applySetIfMissing(doc any, path jsonpath.Path, value any) any {
	for _, t := range jsonpath.Resolve(doc, path) {
		t := t
		if t.Kind != jsonpath.AttrTarget || t.Exists {
			continue
		}
		doc = rebuild(doc, t.ParentPath, func(c any) any {
			m := copyMap(c.(map[string]any))
			m[t.Field] = value
			return m
		})
	}
	return doc
}

func applyUnset(doc any, path jsonpath.Path) any {
	targets := jsonpath.Resolve(doc, path)
	// Remove back to front so earlier index targets stay valid while later
	// ones shift the sequence.
	for i := len(targets) - 1; i >= 0; i-- {
		t := targets[i]
		switch t.Kind {
		case jsonpath.AttrTarget:
			if !t.Exists {
				continue
			}
			doc = rebuild(doc, t.ParentPath, func(c any) any {
				m := copyMap(c.(map[string]any))
				delete(m, t.Field)
				return m
			})
		case jsonpath.IndexTarget:
			doc = rebuild(doc, t.ParentPath, func(c any) any {
				arr := c.([]any)
				out := make([]any, 0, len(arr)-t.Width())
				out = append(out, arr[:t.Start]...)
				out = append(out, arr[t.End:]...)
				return out
			})
		}
	}
	return doc
}

func applyInc(doc any, path jsonpath.Path, delta float64) any {
	for _, t := range jsonpath.Resolve(doc, path) {
		t := t
		switch t.Kind {
		case jsonpath.AttrTarget:
			n, ok := num(t.Value)
			if !t.Exists || !ok {
				continue
			}
			doc = rebuild(doc, t.ParentPath, func(c any) any {
				m := copyMap(c.(map[string]any))
				m[t.Field] = n + delta
				return m
			})
		case jsonpath.IndexTarget:
			doc = rebuild(doc, t.ParentPath, func(c any) any {
				arr := copySlice(c.([]any))
				for i := t.Start; i < t.End; i++ {
					if n, ok := num(arr[i]); ok {
						arr[i] = n + delta
					}
				}
				return arr
			})
		}
	}
	return doc
}

// anchorPosition resolves the final path segment of an insert/upsert as the
// splice position within arr.
func anchorPosition(arr []any, anchor jsonpath.Segment, position Position) (int, error) {
	switch {
	case anchor.Index != nil:
		i := *anchor.Index
		if position == Before {
			if i < 0 {
				// Negative anchors with "before" address the slot past the
				// item, so -1 appends.
				i = len(arr) + i + 1
			}
		} else {
			if i < 0 {
				i = len(arr) + i
			}
			i++
		}
		return max(0, min(i, len(arr))), nil
	case anchor.Key != nil:
		first, last := -1, -1
		for i, item := range arr {
			m, ok := item.(map[string]any)
			if !ok {
				continue
			}
			if v, ok := m[anchor.Key.Field].(string); ok && v == anchor.Key.Value {
				if first == -1 {
					first = i
				}
				last = i
			}
		}
		if first == -1 {
			return 0, fmt.Errorf("%w: no item with %s == %q",
				ErrReferenceNotFound, anchor.Key.Field, anchor.Key.Value)
		}
		if position == Before {
			return first, nil
		}
		return last + 1, nil
	}
	return 0, fmt.Errorf("%w: anchor %q is not an index or key predicate",
		ErrReferenceNotFound, anchor.String())
}

// applyInsert splices items around the anchor the path's final segment
// resolves to.
func applyInsert(doc any, path jsonpath.Path, position Position, items []any) (any, error) {
	if len(path) == 0 {
		return nil, fmt.Errorf("%w: empty insert path", ErrReferenceNotFound)
	}
	arrayPath, anchor := path[:len(path)-1], path[len(path)-1]
	applied := false
	var firstErr error
	for _, t := range resolveArrays(doc, arrayPath) {
		t := t
		arr, ok := arrayAt(t)
		if !ok {
			continue
		}
		pos, err := anchorPosition(arr, anchor, position)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		out := make([]any, 0, len(arr)+len(items))
		out = append(out, arr[:pos]...)
		out = append(out, items...)
		out = append(out, arr[pos:]...)
		doc = writeArray(doc, t, out)
		applied = true
	}
	if !applied {
		if firstErr != nil {
			return nil, firstErr
		}
		return nil, fmt.Errorf("%w: path %q addresses no sequence",
			ErrReferenceNotFound, path.String())
	}
	return doc, nil
}

func applyUpsert(doc any, path jsonpath.Path, op UpsertOp) (any, error) {
	if len(path) == 0 {
		return nil, fmt.Errorf("%w: empty upsert path", ErrReferenceNotFound)
	}
	arrayPath, anchor := path[:len(path)-1], path[len(path)-1]
	found := false
	var firstErr error
	for _, t := range resolveArrays(doc, arrayPath) {
		t := t
		arr, ok := arrayAt(t)
		if !ok {
			continue
		}
		found = true
		keyAt := make(map[string]int, len(arr))
		for i, item := range arr {
			if k, ok := itemKey(item); ok {
				keyAt[k] = i
			}
		}
		replaced := copySlice(arr)
		var toInsert []any
		for _, item := range op.Items {
			k, keyed := itemKey(item)
			if keyed {
				if i, present := keyAt[k]; present {
					replaced[i] = item
					continue
				}
			}
			toInsert = append(toInsert, item)
		}
		if len(toInsert) == 0 {
			doc = writeArray(doc, t, replaced)
			continue
		}
		pos, err := anchorPosition(replaced, anchor, op.Position)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		out := make([]any, 0, len(replaced)+len(toInsert))
		out = append(out, replaced[:pos]...)
		out = append(out, toInsert...)
		out = append(out, replaced[pos:]...)
		doc = writeArray(doc, t, out)
	}
	if !found {
		return nil, fmt.Errorf("%w: path %q addresses no sequence",
			ErrReferenceNotFound, path.String())
	}
	if firstErr != nil {
		return nil, firstErr
	}
	return doc, nil
}

// resolveArrays resolves the path of the sequence enclosing an insert
// anchor. The empty path addresses the document root.
func resolveArrays(doc any, arrayPath jsonpath.Path) []jsonpath.Target {
	if len(arrayPath) == 0 {
		if _, ok := doc.([]any); ok {
			return []jsonpath.Target{{Kind: jsonpath.IndexTarget, Value: doc, Exists: true}}
		}
		return nil
	}
	return jsonpath.Resolve(doc, arrayPath)
}

func arrayAt(t jsonpath.Target) ([]any, bool) {
	switch t.Kind {
	case jsonpath.AttrTarget:
		arr, ok := t.Value.([]any)
		return arr, ok && t.Exists
	case jsonpath.IndexTarget:
		if t.Parent == nil {
			arr, ok := t.Value.([]any)
			return arr, ok
		}
		if t.Width() != 1 {
			return nil, false
		}
		arr, ok := t.Value.([]any)
		return arr, ok
	}
	return nil, false
}

// writeArray writes a rebuilt sequence back to the location t addressed.
func writeArray(doc any, t jsonpath.Target, arr []any) any {
	if t.Parent == nil && t.Kind == jsonpath.IndexTarget {
		// Root document is the sequence itself.
		return arr
	}
	switch t.Kind {
	case jsonpath.AttrTarget:
		return rebuild(doc, t.ParentPath, func(c any) any {
			m := copyMap(c.(map[string]any))
			m[t.Field] = arr
			return m
		})
	default:
		return rebuild(doc, t.ParentPath, func(c any) any {
			out := copySlice(c.([]any))
			out[t.Start] = arr
			return out
		})
	}
}

func applyAssign(doc any, path jsonpath.Path, partial map[string]any) any {
	merge := func(cur any, exists bool) (any, bool) {
		if !exists || cur == nil {
			return copyMap(partial), true
		}
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		out := copyMap(m)
		for k, v := range partial {
			out[k] = v
		}
		return out, true
	}
	for _, t := range jsonpath.Resolve(doc, path) {
		t := t
		switch t.Kind {
		case jsonpath.AttrTarget:
			merged, ok := merge(t.Value, t.Exists)
			if !ok {
				continue
			}
			doc = rebuild(doc, t.ParentPath, func(c any) any {
				m := copyMap(c.(map[string]any))
				m[t.Field] = merged
				return m
			})
		case jsonpath.IndexTarget:
			doc = rebuild(doc, t.ParentPath, func(c any) any {
				arr := copySlice(c.([]any))
				for i := t.Start; i < t.End; i++ {
					if merged, ok := merge(arr[i], true); ok {
						arr[i] = merged
					}
				}
				return arr
			})
		}
	}
	return doc
}

func applyDiffString(doc any, p Patch, op DiffStringOp, strict bool) (any, []Conflict, error) {
	var conflicts []Conflict
	fail := func(err error) ([]Conflict, error) {
		if strict {
			return nil, fmt.Errorf("diffString at %q: %w", p.Path.String(), err)
		}
		conflicts = append(conflicts, Conflict{Path: p.Path, Op: "diffString", Err: err})
		return conflicts, nil
	}
	for _, t := range jsonpath.Resolve(doc, p.Path) {
		t := t
		if t.Kind == jsonpath.AttrTarget && !t.Exists {
			continue
		}
		if t.Kind == jsonpath.IndexTarget && t.Width() != 1 {
			continue
		}
		cur, ok := t.Value.(string)
		if !ok {
			cs, err := fail(fmt.Errorf("%w: value is not a string", ErrStringDiffConflict))
			if err != nil {
				return nil, nil, err
			}
			conflicts = cs
			continue
		}
		next, err := applyStringDelta(op.Delta, cur)
		if err != nil {
			if !isConflict(err) {
				// Malformed deltas are fatal in either mode.
				return nil, nil, fmt.Errorf("diffString at %q: %w", p.Path.String(), err)
			}
			cs, ferr := fail(err)
			if ferr != nil {
				return nil, nil, ferr
			}
			conflicts = cs
			continue
		}
		switch t.Kind {
		case jsonpath.AttrTarget:
			doc = rebuild(doc, t.ParentPath, func(c any) any {
				m := copyMap(c.(map[string]any))
				m[t.Field] = next
				return m
			})
		case jsonpath.IndexTarget:
			doc = rebuild(doc, t.ParentPath, func(c any) any {
				arr := copySlice(c.([]any))
				arr[t.Start] = next
				return arr
			})
		}
	}
	return doc, conflicts, nil
}
