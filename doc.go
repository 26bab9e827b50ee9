// Package mutate implements a structured patch algebra for JSON-like
// content documents: tagged patch operations addressed by jsonpath paths,
// ordered atomic Mutations scoped to one document identity, and a
// collection-level batch applier with structural sharing.
//
// Documents are plain JSON values (map[string]any, []any, string, float64,
// bool, nil). Patch application never mutates its input; every operation
// returns a new document sharing every untouched subtree with the old one.
package mutate
