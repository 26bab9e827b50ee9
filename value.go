package mutate

import (
	"reflect"
)

// sameValue reports whether a and b are the same value: identical storage
// for mappings and sequences, == for scalars.
func sameValue(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	ra, rb := reflect.ValueOf(a), reflect.ValueOf(b)
	if ra.Kind() != rb.Kind() {
		return false
	}
	switch ra.Kind() {
	case reflect.Map, reflect.Slice:
		return ra.UnsafePointer() == rb.UnsafePointer() && ra.Len() == rb.Len()
	default:
		return a == b
	}
}

// Equal reports deep equality of two document values.
func Equal(a, b any) bool {
	return reflect.DeepEqual(a, b)
}

// num converts the numeric scalar representations a JSON-like document can
// hold. The bool result is false for everything non-numeric.
func num(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}

func copyMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m)+1)
	for k, v := range m {
		out[k] = v
	}
	return out
}

func copySlice(s []any) []any {
	out := make([]any, len(s))
	copy(out, s)
	return out
}
