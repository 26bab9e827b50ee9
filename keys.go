package mutate

import (
	"strings"

	"github.com/google/uuid"

	"github.com/signadot/go-mutate/jsonpath"
)

// NewKey returns a fresh stable key for an array item: 12 hex characters,
// unique enough within any one array.
func NewKey() string {
	id := uuid.New()
	return strings.ReplaceAll(id.String(), "-", "")[:12]
}

func itemKey(item any) (string, bool) {
	m, ok := item.(map[string]any)
	if !ok {
		return "", false
	}
	k, ok := m[jsonpath.StableKeyField].(string)
	return k, ok && k != ""
}

// ensureItemKeys returns items with every mapping item carrying a stable
// key, assigning fresh keys where missing. Items already keyed are shared
// unchanged.
func ensureItemKeys(items []any) []any {
	changed := false
	out := make([]any, len(items))
	for i, item := range items {
		m, ok := item.(map[string]any)
		if !ok {
			out[i] = item
			continue
		}
		if _, keyed := itemKey(m); keyed {
			out[i] = m
			continue
		}
		cp := make(map[string]any, len(m)+1)
		for k, v := range m {
			cp[k] = v
		}
		cp[jsonpath.StableKeyField] = NewKey()
		out[i] = cp
		changed = true
	}
	if !changed {
		return items
	}
	return out
}

// EnsureKeysDeep walks a document and gives every mapping item of every
// array a stable key. Subtrees that already satisfy the invariant are
// returned unchanged (same reference).
func EnsureKeysDeep(doc any) any {
	switch v := doc.(type) {
	case map[string]any:
		var cp map[string]any
		for k, item := range v {
			next := EnsureKeysDeep(item)
			if sameValue(next, item) {
				continue
			}
			if cp == nil {
				cp = make(map[string]any, len(v))
				for kk, vv := range v {
					cp[kk] = vv
				}
			}
			cp[k] = next
		}
		if cp == nil {
			return v
		}
		return cp
	case []any:
		var cp []any
		for i, item := range v {
			next := EnsureKeysDeep(item)
			if m, ok := next.(map[string]any); ok {
				if _, keyed := itemKey(m); !keyed {
					withKey := make(map[string]any, len(m)+1)
					for k, vv := range m {
						withKey[k] = vv
					}
					withKey[jsonpath.StableKeyField] = NewKey()
					next = withKey
				}
			}
			if cp == nil && !sameValue(next, item) {
				cp = make([]any, len(v))
				copy(cp, v)
			}
			if cp != nil {
				cp[i] = next
			}
		}
		if cp == nil {
			return v
		}
		return cp
	default:
		return doc
	}
}
