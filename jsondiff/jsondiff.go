// Package jsondiff computes structural differences between two document
// values, keyed by the same path grammar patches address, and renders
// RFC 7386 merge patches.
package jsondiff

import (
	"encoding/json"
	"fmt"
	"sort"

	jsonpatch "github.com/evanphx/json-patch"
	mutate "github.com/signadot/go-mutate"
	"github.com/signadot/go-mutate/jsonpath"
)

// Kind of a difference entry.
type Kind int

const (
	// Added: the path exists only in the after document.
	Added Kind = iota
	// Removed: the path exists only in the before document.
	Removed
	// Changed: the path exists in both with different values.
	Changed
)

func (k Kind) String() string {
	switch k {
	case Added:
		return "added"
	case Removed:
		return "removed"
	case Changed:
		return "changed"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Entry is one leaf-level difference.
type Entry struct {
	Path   jsonpath.Path
	Kind   Kind
	Before any
	After  any
}

// Entries walks both documents and returns the leaf differences in
// deterministic order (map keys sorted, array indices ascending).
// Subtrees present on only one side yield a single entry for the subtree
// root, not one per leaf.
func Entries(before, after any) []Entry {
	var out []Entry
	walk(nil, before, after, &out)
	return out
}

func walk(path jsonpath.Path, before, after any, out *[]Entry) {
	if mutate.Equal(before, after) {
		return
	}
	switch b := before.(type) {
	case map[string]any:
		a, ok := after.(map[string]any)
		if !ok {
			*out = append(*out, Entry{Path: path, Kind: Changed, Before: before, After: after})
			return
		}
		keys := make([]string, 0, len(b)+len(a))
		seen := make(map[string]bool, len(b)+len(a))
		for k := range b {
			keys = append(keys, k)
			seen[k] = true
		}
		for k := range a {
			if !seen[k] {
				keys = append(keys, k)
			}
		}
		sort.Strings(keys)
		for _, k := range keys {
			k := k
			sub := append(path[:len(path):len(path)], jsonpath.FieldSegment(k))
			bv, inB := b[k]
			av, inA := a[k]
			switch {
			case !inA:
				*out = append(*out, Entry{Path: sub, Kind: Removed, Before: bv})
			case !inB:
				*out = append(*out, Entry{Path: sub, Kind: Added, After: av})
			default:
				walk(sub, bv, av, out)
			}
		}
	case []any:
		a, ok := after.([]any)
		if !ok {
			*out = append(*out, Entry{Path: path, Kind: Changed, Before: before, After: after})
			return
		}
		n := min(len(b), len(a))
		for i := 0; i < n; i++ {
			sub := append(path[:len(path):len(path)], indexSegmentFor(b[i], i))
			walk(sub, b[i], a[i], out)
		}
		for i := n; i < len(b); i++ {
			sub := append(path[:len(path):len(path)], indexSegmentFor(b[i], i))
			*out = append(*out, Entry{Path: sub, Kind: Removed, Before: b[i]})
		}
		for i := n; i < len(a); i++ {
			sub := append(path[:len(path):len(path)], indexSegmentFor(a[i], i))
			*out = append(*out, Entry{Path: sub, Kind: Added, After: a[i]})
		}
	default:
		*out = append(*out, Entry{Path: path, Kind: Changed, Before: before, After: after})
	}
}

// indexSegmentFor prefers the item's stable key over its position, so
// entries stay meaningful across reorders.
func indexSegmentFor(item any, i int) jsonpath.Segment {
	if m, ok := item.(map[string]any); ok {
		if k, ok := m[jsonpath.StableKeyField].(string); ok && k != "" {
			return jsonpath.KeySegment(k)
		}
	}
	return jsonpath.IndexSegment(i)
}

// ToPatches renders difference entries as patches that transform the
// before document into the after document when applied in order.
func ToPatches(entries []Entry) []mutate.Patch {
	// Removals run back to front so earlier index paths stay valid.
	patches := make([]mutate.Patch, 0, len(entries))
	var removals []mutate.Patch
	for _, e := range entries {
		switch e.Kind {
		case Removed:
			removals = append(removals, mutate.At(e.Path, mutate.Unset()))
		default:
			patches = append(patches, mutate.At(e.Path, mutate.Set(e.After)))
		}
	}
	for i := len(removals) - 1; i >= 0; i-- {
		patches = append(patches, removals[i])
	}
	return patches
}

// MergePatch renders the RFC 7386 merge patch turning before into after.
func MergePatch(before, after any) ([]byte, error) {
	b, err := json.Marshal(before)
	if err != nil {
		return nil, err
	}
	a, err := json.Marshal(after)
	if err != nil {
		return nil, err
	}
	return jsonpatch.CreateMergePatch(b, a)
}

// ApplyMergePatch applies an RFC 7386 merge patch to a document value.
func ApplyMergePatch(doc any, patch []byte) (any, error) {
	d, err := json.Marshal(doc)
	if err != nil {
		return nil, err
	}
	merged, err := jsonpatch.MergePatch(d, patch)
	if err != nil {
		return nil, err
	}
	var out any
	if err := json.Unmarshal(merged, &out); err != nil {
		return nil, err
	}
	return out, nil
}
