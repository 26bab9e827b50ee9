package jsonpath

import (
	"fmt"
	"strconv"
	"strings"
)

// Range is a half-open index interval [Start, End). A nil endpoint leaves
// that end of the interval open: Range{Start: &n} means "from n through the
// end of the sequence", re-evaluated against the sequence length at
// resolution time.
type Range struct {
	Start *int
	End   *int
}

// KeyMatch matches array items whose stable key field equals Value.
// Field is almost always "_key".
type KeyMatch struct {
	Field string
	Value string
}

// Segment is one step of a path. Exactly one of Field, Index, Range and Key
// is set.
type Segment struct {
	Field *string
	Index *int
	Range *Range
	Key   *KeyMatch
}

// Path addresses zero or more locations inside a document tree.
type Path []Segment

// FieldSegment returns an attribute segment.
func FieldSegment(name string) Segment {
	return Segment{Field: &name}
}

// IndexSegment returns a numeric index segment. Negative indices count from
// the end of the sequence.
func IndexSegment(i int) Segment {
	return Segment{Index: &i}
}

// RangeSegment returns a range segment over [start, end). Pass nil to leave
// an endpoint open.
func RangeSegment(start, end *int) Segment {
	return Segment{Range: &Range{Start: start, End: end}}
}

// KeySegment returns a stable-key predicate segment on the "_key" field.
func KeySegment(value string) Segment {
	return Segment{Key: &KeyMatch{Field: StableKeyField, Value: value}}
}

// StableKeyField is the attribute carrying the stable key on array items.
const StableKeyField = "_key"

func (s Segment) String() string {
	switch {
	case s.Field != nil:
		return *s.Field
	case s.Index != nil:
		return fmt.Sprintf("[%d]", *s.Index)
	case s.Range != nil:
		var b strings.Builder
		b.WriteByte('[')
		if s.Range.Start != nil {
			b.WriteString(strconv.Itoa(*s.Range.Start))
		}
		b.WriteByte(':')
		if s.Range.End != nil {
			b.WriteString(strconv.Itoa(*s.Range.End))
		}
		b.WriteByte(']')
		return b.String()
	case s.Key != nil:
		return fmt.Sprintf("[%s==%s]", s.Key.Field, strconv.Quote(s.Key.Value))
	}
	return ""
}

// String returns the canonical textual form of the path. Parse(p.String())
// yields a path equal to p.
func (p Path) String() string {
	var b strings.Builder
	for i, seg := range p {
		if seg.Field != nil && i > 0 {
			b.WriteByte('.')
		}
		b.WriteString(seg.String())
	}
	return b.String()
}

// Equal reports whether two paths have identical segment lists.
func (p Path) Equal(o Path) bool {
	if len(p) != len(o) {
		return false
	}
	for i := range p {
		if !segmentsEqual(p[i], o[i]) {
			return false
		}
	}
	return true
}

func segmentsEqual(a, b Segment) bool {
	switch {
	case a.Field != nil && b.Field != nil:
		return *a.Field == *b.Field
	case a.Index != nil && b.Index != nil:
		return *a.Index == *b.Index
	case a.Range != nil && b.Range != nil:
		return intPtrEq(a.Range.Start, b.Range.Start) && intPtrEq(a.Range.End, b.Range.End)
	case a.Key != nil && b.Key != nil:
		return *a.Key == *b.Key
	}
	return false
}

func intPtrEq(a, b *int) bool {
	if (a == nil) != (b == nil) {
		return false
	}
	return a == nil || *a == *b
}

func (p Path) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

func (p *Path) UnmarshalText(d []byte) error {
	pp, err := Parse(string(d))
	if err != nil {
		return err
	}
	*p = pp
	return nil
}
