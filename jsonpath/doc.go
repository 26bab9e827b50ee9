// Package jsonpath implements the path grammar used to address locations
// inside JSON-like document trees, and resolution of paths against concrete
// values.
//
// A path is a sequence of segments:
//
//   - "title"            object attribute
//   - "[2]", "[-1]"      array index (negative counts from the end)
//   - "[2:5]", "[2:]"    array range, half-open, either end may be omitted
//   - "[_key==\"abc\"]"  key predicate, matches array items by stable key
//
// Segments compose left to right: "objects[_key==\"second\"].title". A range
// or predicate segment may match more than one item, in which case the rest
// of the path resolves independently against each match.
//
// Paths round-trip losslessly between the textual form and the structured
// Segment list.
package jsonpath
