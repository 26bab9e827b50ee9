package mutate

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/signadot/go-mutate/jsonpath"
)

func sampleDoc() map[string]any {
	return map[string]any{
		"title": "hello",
		"count": float64(3),
		"tags":  []any{"a", "b", "c"},
		"meta": map[string]any{
			"author": "lin",
			"stats":  map[string]any{"views": float64(10)},
		},
		"items": []any{
			map[string]any{"_key": "one", "n": float64(1)},
			map[string]any{"_key": "two", "n": float64(2)},
		},
	}
}

func mustApply(t *testing.T, doc any, patches ...Patch) any {
	t.Helper()
	next, conflicts, err := ApplyPatches(doc, patches, ApplyOptions{Strict: true})
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if len(conflicts) != 0 {
		t.Fatalf("apply: unexpected conflicts %v", conflicts)
	}
	return next
}

func TestSet(t *testing.T) {
	tcs := []struct {
		name string
		path string
		val  any
		get  string
		want any
	}{
		{"replace attr", "title", "bye", "title", "bye"},
		{"create final attr", "subtitle", "x", "subtitle", "x"},
		{"nested", "meta.stats.views", float64(11), "meta.stats.views", float64(11)},
		{"index", "tags[1]", "B", "tags[1]", "B"},
		{"negative index", "tags[-1]", "Z", "tags[2]", "Z"},
		{"key predicate", `items[_key=="two"].n`, float64(20), "items[1].n", float64(20)},
	}
	for _, tc := range tcs {
		t.Run(tc.name, func(t *testing.T) {
			doc := mustApply(t, sampleDoc(), MustAt(tc.path, Set(tc.val)))
			got, ok := jsonpath.Get(doc, jsonpath.MustParse(tc.get))
			if !ok {
				t.Fatalf("%s missing after set", tc.get)
			}
			if diff := cmp.Diff(tc.want, got); diff != "" {
				t.Errorf("value (-want +got):\n%s", diff)
			}
		})
	}
}

func TestSetRange(t *testing.T) {
	doc := mustApply(t, sampleDoc(), MustAt("tags[1:]", Set("x")))
	want := []any{"a", "x", "x"}
	if diff := cmp.Diff(want, doc.(map[string]any)["tags"]); diff != "" {
		t.Errorf("tags (-want +got):\n%s", diff)
	}
}

func TestSetDeepAbsentIsNoop(t *testing.T) {
	in := sampleDoc()
	doc := mustApply(t, in, MustAt("no.such.path", Set("x")))
	if diff := cmp.Diff(in, doc); diff != "" {
		t.Errorf("doc changed (-want +got):\n%s", diff)
	}
}

func TestSetIfMissing(t *testing.T) {
	doc := mustApply(t, sampleDoc(),
		MustAt("title", SetIfMissing("ignored")),
		MustAt("subtitle", SetIfMissing("fresh")),
	)
	m := doc.(map[string]any)
	if m["title"] != "hello" {
		t.Errorf("title = %v, want hello untouched", m["title"])
	}
	if m["subtitle"] != "fresh" {
		t.Errorf("subtitle = %v, want fresh", m["subtitle"])
	}
}

func TestUnset(t *testing.T) {
	doc := mustApply(t, sampleDoc(),
		MustAt("meta.author", Unset()),
		MustAt("tags[0]", Unset()),
	)
	m := doc.(map[string]any)
	if _, ok := m["meta"].(map[string]any)["author"]; ok {
		t.Error("meta.author still present")
	}
	if diff := cmp.Diff([]any{"b", "c"}, m["tags"]); diff != "" {
		t.Errorf("tags (-want +got):\n%s", diff)
	}
}

func TestUnsetRange(t *testing.T) {
	doc := map[string]any{"arr": []any{float64(0), float64(1), float64(2), float64(3), float64(4)}}
	next := mustApply(t, doc, MustAt("arr[1:3]", Unset()))
	want := []any{float64(0), float64(3), float64(4)}
	if diff := cmp.Diff(want, next.(map[string]any)["arr"]); diff != "" {
		t.Errorf("arr (-want +got):\n%s", diff)
	}
}

// Ranges resolve against the sequence as it stands when the patch runs,
// not when the batch was authored.
func TestRangeReevaluation(t *testing.T) {
	doc := map[string]any{"arr": []any{"a", "b", "c", "d"}}
	next := mustApply(t, doc,
		MustAt("arr[0]", Unset()),
		MustAt("arr[2:]", Unset()),
	)
	want := []any{"b", "c"}
	if diff := cmp.Diff(want, next.(map[string]any)["arr"]); diff != "" {
		t.Errorf("arr (-want +got):\n%s", diff)
	}
}

func TestInc(t *testing.T) {
	doc := mustApply(t, sampleDoc(),
		MustAt("count", Inc(2)),
		MustAt("title", Inc(1)), // non-numeric, skipped
	)
	m := doc.(map[string]any)
	if m["count"] != float64(5) {
		t.Errorf("count = %v, want 5", m["count"])
	}
	if m["title"] != "hello" {
		t.Errorf("title = %v, want hello untouched", m["title"])
	}
}

func TestInsert(t *testing.T) {
	tcs := []struct {
		name string
		path string
		pos  Position
		want []any
	}{
		{"before index", "tags[1]", Before, []any{"a", "x", "b", "c"}},
		{"after index", "tags[1]", After, []any{"a", "b", "x", "c"}},
		{"before zero prepends", "tags[0]", Before, []any{"x", "a", "b", "c"}},
		{"after minus one appends", "tags[-1]", After, []any{"a", "b", "c", "x"}},
		{"before minus one appends", "tags[-1]", Before, []any{"a", "b", "c", "x"}},
	}
	for _, tc := range tcs {
		t.Run(tc.name, func(t *testing.T) {
			doc := mustApply(t, sampleDoc(), MustAt(tc.path, Insert(tc.pos, "x")))
			if diff := cmp.Diff(tc.want, doc.(map[string]any)["tags"]); diff != "" {
				t.Errorf("tags (-want +got):\n%s", diff)
			}
		})
	}
}

func TestInsertKeyAnchor(t *testing.T) {
	doc := mustApply(t, sampleDoc(),
		MustAt(`items[_key=="two"]`, Insert(Before, map[string]any{"_key": "mid", "n": float64(1.5)})))
	items := doc.(map[string]any)["items"].([]any)
	if len(items) != 3 {
		t.Fatalf("len(items) = %d, want 3", len(items))
	}
	if items[1].(map[string]any)["_key"] != "mid" {
		t.Errorf("items[1]._key = %v, want mid", items[1].(map[string]any)["_key"])
	}
}

func TestInsertMissingAnchor(t *testing.T) {
	_, _, err := ApplyPatches(sampleDoc(), []Patch{
		MustAt(`items[_key=="nope"]`, Insert(Before, "x")),
	}, ApplyOptions{Strict: true})
	if !errors.Is(err, ErrReferenceNotFound) {
		t.Fatalf("err = %v, want ErrReferenceNotFound", err)
	}
}

// Build up [1,2,3,4,5] from [1,3,4] the way an editor would.
func TestInsertScenario(t *testing.T) {
	doc := map[string]any{"arr": []any{float64(1), float64(3), float64(4)}}
	next := mustApply(t, doc,
		MustAt("arr[1]", Insert(Before, float64(2))),
		MustAt("arr[-1]", Insert(After, float64(5))),
	)
	want := []any{float64(1), float64(2), float64(3), float64(4), float64(5)}
	if diff := cmp.Diff(want, next.(map[string]any)["arr"]); diff != "" {
		t.Errorf("arr (-want +got):\n%s", diff)
	}
}

func TestUpsertReplacesAndInserts(t *testing.T) {
	doc := mustApply(t, sampleDoc(),
		MustAt("items[-1]", Upsert(After,
			map[string]any{"_key": "two", "n": float64(22)},
			map[string]any{"_key": "three", "n": float64(3)},
		)))
	items := doc.(map[string]any)["items"].([]any)
	if len(items) != 3 {
		t.Fatalf("len(items) = %d, want 3", len(items))
	}
	if items[1].(map[string]any)["n"] != float64(22) {
		t.Errorf("items[1].n = %v, want replaced in place", items[1].(map[string]any)["n"])
	}
	if items[2].(map[string]any)["_key"] != "three" {
		t.Errorf("items[2]._key = %v, want three appended", items[2].(map[string]any)["_key"])
	}
}

func TestUpsertIdempotent(t *testing.T) {
	op := Upsert(After,
		map[string]any{"_key": "two", "n": float64(22)},
		map[string]any{"n": float64(9)}, // keyless, keyed at construction
	)
	once := mustApply(t, sampleDoc(), At(jsonpath.MustParse("items[-1]"), op))
	twice := mustApply(t, once, At(jsonpath.MustParse("items[-1]"), op))
	if diff := cmp.Diff(once, twice); diff != "" {
		t.Errorf("second application changed the document (-once +twice):\n%s", diff)
	}
}

func TestAssign(t *testing.T) {
	doc := mustApply(t, sampleDoc(),
		MustAt("meta", Assign(map[string]any{"editor": "kim"})))
	meta := doc.(map[string]any)["meta"].(map[string]any)
	if meta["editor"] != "kim" {
		t.Errorf("meta.editor = %v, want kim", meta["editor"])
	}
	if meta["author"] != "lin" {
		t.Errorf("meta.author = %v, want lin untouched", meta["author"])
	}
}

func TestDiffString(t *testing.T) {
	delta := MakeStringDelta("hello", "hello world")
	doc := mustApply(t, sampleDoc(), MustAt("title", DiffString(delta)))
	if got := doc.(map[string]any)["title"]; got != "hello world" {
		t.Errorf("title = %v, want hello world", got)
	}
}

func TestDiffStringConflictStrict(t *testing.T) {
	delta := MakeStringDelta("something else entirely", "replacement")
	_, _, err := ApplyPatches(sampleDoc(), []Patch{MustAt("title", DiffString(delta))},
		ApplyOptions{Strict: true})
	if !errors.Is(err, ErrStringDiffConflict) {
		t.Fatalf("err = %v, want ErrStringDiffConflict", err)
	}
}

func TestDiffStringConflictLenient(t *testing.T) {
	delta := MakeStringDelta("something else entirely", "replacement")
	next, conflicts, err := ApplyPatches(sampleDoc(), []Patch{
		MustAt("title", DiffString(delta)),
		MustAt("count", Inc(1)),
	}, ApplyOptions{})
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if len(conflicts) != 1 {
		t.Fatalf("len(conflicts) = %d, want 1", len(conflicts))
	}
	if !errors.Is(conflicts[0], ErrStringDiffConflict) {
		t.Errorf("conflict err = %v, want ErrStringDiffConflict", conflicts[0].Err)
	}
	m := next.(map[string]any)
	if m["title"] != "hello" {
		t.Errorf("title = %v, want hello untouched", m["title"])
	}
	if m["count"] != float64(4) {
		t.Errorf("count = %v, want 4; rest of batch must still apply", m["count"])
	}
}

func TestStructuralSharing(t *testing.T) {
	in := sampleDoc()
	next := mustApply(t, in, MustAt("title", Set("bye"))).(map[string]any)
	if !sameValue(in["meta"], next["meta"]) {
		t.Error("meta was copied though nothing under it changed")
	}
	if !sameValue(in["tags"], next["tags"]) {
		t.Error("tags was copied though nothing under it changed")
	}
	if in["title"] != "hello" {
		t.Errorf("input mutated: title = %v", in["title"])
	}
}

// Patches in one batch see each other's results in order.
func TestOrderSensitivity(t *testing.T) {
	doc := map[string]any{"n": float64(1)}
	a := mustApply(t, doc, MustAt("n", Inc(1)), MustAt("n", Set(float64(10)))).(map[string]any)
	b := mustApply(t, doc, MustAt("n", Set(float64(10))), MustAt("n", Inc(1))).(map[string]any)
	if a["n"] != float64(10) {
		t.Errorf("inc then set: n = %v, want 10", a["n"])
	}
	if b["n"] != float64(11) {
		t.Errorf("set then inc: n = %v, want 11", b["n"])
	}
}

func TestFanOut(t *testing.T) {
	doc := mustApply(t, sampleDoc(), MustAt("items[:].n", Inc(100)))
	items := doc.(map[string]any)["items"].([]any)
	if items[0].(map[string]any)["n"] != float64(101) {
		t.Errorf("items[0].n = %v, want 101", items[0].(map[string]any)["n"])
	}
	if items[1].(map[string]any)["n"] != float64(102) {
		t.Errorf("items[1].n = %v, want 102", items[1].(map[string]any)["n"])
	}
}
