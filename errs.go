package mutate

import "errors"

var (
	// ErrAlreadyExists is returned by a create mutation when the document
	// is already present.
	ErrAlreadyExists = errors.New("document already exists")

	// ErrReferenceNotFound is returned by insert/upsert when the reference
	// anchor resolves to no position.
	ErrReferenceNotFound = errors.New("insert reference not found")

	// ErrStringDiffConflict is returned in strict mode when a string delta's
	// expected origin no longer matches the live value.
	ErrStringDiffConflict = errors.New("string diff origin mismatch")

	// ErrBadDelta is returned when a string delta cannot be parsed.
	ErrBadDelta = errors.New("malformed string delta")
)
