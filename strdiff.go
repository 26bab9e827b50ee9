package mutate

import (
	"fmt"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// MakeStringDelta computes the compact delta transforming from into to, in
// the diff-match-patch patch text form carried by DiffStringOp.
func MakeStringDelta(from, to string) string {
	dmp := diffmatchpatch.New()
	return dmp.PatchToText(dmp.PatchMake(from, to))
}

// applyStringDelta applies a delta to the live string. When any hunk of the
// delta no longer finds its expected origin in live, the whole delta is
// rejected with ErrStringDiffConflict; a partially applied string never
// escapes.
func applyStringDelta(delta, live string) (string, error) {
	dmp := diffmatchpatch.New()
	patches, err := dmp.PatchFromText(delta)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrBadDelta, err)
	}
	next, applied := dmp.PatchApply(patches, live)
	for _, ok := range applied {
		if !ok {
			return "", ErrStringDiffConflict
		}
	}
	return next, nil
}
