package flatfile

import "errors"

// Sentinel errors reported by the parser and the reconstructor. Callers
// match them with errors.Is after unwrapping.
var (
	// ErrMalformedRecord marks a structural violation in tag ordering,
	// e.g. sequence data appearing before any ID line. The affected record
	// is dropped; sibling records in the same text keep parsing.
	ErrMalformedRecord = errors.New("malformed record")

	// ErrMalformedVariation marks a VAR_SEQ block that cannot be decoded:
	// no isoform annotation parenthetical, no Missing marker or transition,
	// or an original span that does not match its declared positions. The
	// single edit is rejected; the record is otherwise usable.
	ErrMalformedVariation = errors.New("malformed sequence variation")

	// ErrUnknownIsoform is returned when reconstruction is requested for an
	// isoform id the record never declared. Distinct from an isoform with no
	// edits, which reconstructs to the primary sequence.
	ErrUnknownIsoform = errors.New("unknown isoform")
)
