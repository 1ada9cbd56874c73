package flatfile

import (
	"fmt"
	"regexp"
	"strings"
)

// The applicable isoforms are listed in a trailing parenthetical of the form
// "(in isoform 2 and isoform 3)". Greedy match, so nested parentheses in the
// free text stay inside the annotation segment.
var isoformAnnotation = regexp.MustCompile(`\(.*\)`)

// decodeVarSeq turns one accumulated VAR_SEQ block into a structured edit.
// The block either begins with the literal word "Missing" (a deletion of
// [start, end]) or contains a transition "ORIGINAL -> REPLACEMENT". For a
// substitution the original span must cover exactly end-start+1 residues;
// a mismatch means the record text is corrupt and the edit is rejected
// outright rather than truncated to fit.
func decodeVarSeq(start, end int, block string) (VariationEdit, error) {
	if start < 1 || end < start {
		return VariationEdit{}, fmt.Errorf("position range %d..%d: %w", start, end, ErrMalformedVariation)
	}

	annot := isoformAnnotation.FindString(block)
	if annot == "" {
		return VariationEdit{}, fmt.Errorf("no isoform annotation parenthetical: %w", ErrMalformedVariation)
	}
	var isoforms []string
	toks := strings.Fields(annot[1 : len(annot)-1])
	for i, tok := range toks {
		if strings.Contains(tok, "isoform") && i+1 < len(toks) {
			isoforms = append(isoforms, strings.Trim(toks[i+1], ",;.)"))
		}
	}
	if len(isoforms) == 0 {
		return VariationEdit{}, fmt.Errorf("annotation names no isoforms: %w", ErrMalformedVariation)
	}

	edit := VariationEdit{Start: start, End: end, AppliesTo: isoforms}
	if strings.HasPrefix(block, "Missing") {
		edit.Kind = Deletion
		return edit, nil
	}

	transition, _, _ := strings.Cut(block, "(")
	orig, repl, found := strings.Cut(transition, "->")
	if !found {
		return VariationEdit{}, fmt.Errorf("neither Missing nor a -> transition: %w", ErrMalformedVariation)
	}
	// Continuation lines join with a separator, so the sequence text may
	// carry whitespace from the original line breaks.
	origSeq := stripSpace(orig)
	if want := end - start + 1; len(origSeq) != want {
		return VariationEdit{}, fmt.Errorf("original span has %d residues, positions %d..%d require %d: %w",
			len(origSeq), start, end, want, ErrMalformedVariation)
	}
	edit.Kind = Substitution
	edit.Replacement = stripSpace(repl)
	return edit, nil
}

func stripSpace(s string) string {
	return strings.Join(strings.Fields(s), "")
}
