package flatfile

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

// ftLine builds an old-format feature line: key at column 6, positions in
// the two numeric columns, description starting at column 35.
func ftLine(key string, start, end int, desc string) string {
	return fmt.Sprintf("FT   %-8s%6d %6d        %s", key, start, end, desc)
}

// ftCont builds a feature continuation line with free text at column 35.
func ftCont(text string) string {
	return "FT" + strings.Repeat(" ", 32) + text
}

func sampleRecord() string {
	lines := []string{
		"ID   TEST_HUMAN              Reviewed;          10 AA.",
		"AC   P12345; Q99999;",
		"DE   RecName: Full=Test protein;",
		"GN   Name=TST1; Synonyms=TSTA;",
		"OS   Homo sapiens (Human).",
		"CC   -!- FUNCTION: Exercises the parser.",
		"CC   -!- ALTERNATIVE PRODUCTS:",
		"CC       Event=Alternative splicing; Named isoforms=2;",
		"CC       Name=1;",
		"CC         IsoId=P12345-1; Sequence=Displayed;",
		"CC       Name=2;",
		"CC         IsoId=P12345-2; Sequence=VSP_001, VSP_002;",
		"CC   -!- MISCELLANEOUS: Not part of the isoform block.",
		ftLine("VAR_SEQ", 3, 5, "CDE -> XYZ (in isoform 2)."),
		ftCont("/FTId=VSP_001."),
		ftLine("VAR_SEQ", 8, 9, "Missing (in isoform 2)."),
		ftCont("/FTId=VSP_002."),
		"SQ   SEQUENCE   10 AA;  1070 MW;  0123456789ABCDEF CRC64;",
		"     ABCDEFGHIJ",
	}
	return strings.Join(lines, "\n") + "\n"
}

func TestTokenizerTagCarryOver(t *testing.T) {
	input := "ID   ABC_DEF\nSQ   SEQUENCE 3 AA;\n     AAA\n     BBB\n"
	tok := NewTokenizer(strings.NewReader(input))
	var tags []string
	for {
		ln, ok := tok.Next()
		if !ok {
			break
		}
		tags = append(tags, ln.Tag)
	}
	want := []string{"ID", "SQ", "SQ", "SQ"}
	if len(tags) != len(want) {
		t.Fatalf("expected %d lines, got %d", len(want), len(tags))
	}
	for i := range want {
		if tags[i] != want[i] {
			t.Fatalf("line %d: expected tag %q, got %q", i, want[i], tags[i])
		}
	}
	if err := tok.Err(); err != nil {
		t.Fatalf("unexpected tokenizer error: %v", err)
	}
}

func TestParseRecords(t *testing.T) {
	records, err := ParseRecords(strings.NewReader(sampleRecord()))
	if err != nil {
		t.Fatalf("unexpected parse error: %v", err)
	}
	rec, ok := records["TEST_HUMAN"]
	if !ok {
		t.Fatalf("record TEST_HUMAN not found, got %v", records)
	}
	if rec.Sequence != "ABCDEFGHIJ" {
		t.Fatalf("unexpected primary sequence %q", rec.Sequence)
	}
	if !rec.Reviewed || rec.Length != 10 {
		t.Fatalf("unexpected ID line fields: reviewed=%v length=%d", rec.Reviewed, rec.Length)
	}
	if len(rec.Accessions) != 2 || rec.Accessions[0] != "P12345" || rec.Accessions[1] != "Q99999" {
		t.Fatalf("unexpected accessions %v", rec.Accessions)
	}
	if rec.Description != "Test protein" {
		t.Fatalf("unexpected description %q", rec.Description)
	}
	if rec.Gene != "TST1" {
		t.Fatalf("unexpected gene %q", rec.Gene)
	}
	if len(rec.Isoforms) != 2 {
		t.Fatalf("expected 2 isoforms, got %v", rec.Isoforms)
	}
	if rec.Isoforms["1"].ID != "P12345-1" || rec.Isoforms["2"].ID != "P12345-2" {
		t.Fatalf("unexpected isoform ids: %v", rec.Isoforms)
	}
	if len(rec.Variations) != 2 {
		t.Fatalf("expected 2 decoded variations, got %d (bad: %v)", len(rec.Variations), rec.BadVariations)
	}
	sub := rec.Variations[0]
	if sub.Kind != Substitution || sub.Start != 3 || sub.End != 5 || sub.Replacement != "XYZ" {
		t.Fatalf("unexpected substitution edit %+v", sub)
	}
	del := rec.Variations[1]
	if del.Kind != Deletion || del.Start != 8 || del.End != 9 {
		t.Fatalf("unexpected deletion edit %+v", del)
	}
	if len(sub.AppliesTo) != 1 || sub.AppliesTo[0] != "2" {
		t.Fatalf("unexpected applies-to %v", sub.AppliesTo)
	}
}

func TestReconstructIsoform(t *testing.T) {
	records, err := ParseRecords(strings.NewReader(sampleRecord()))
	if err != nil {
		t.Fatalf("unexpected parse error: %v", err)
	}
	rec := records["TEST_HUMAN"]

	// Descending-start application: deletion of 8..9 first, then the
	// substitution at 3..5.
	got, err := rec.ReconstructIsoform("2")
	if err != nil {
		t.Fatalf("reconstruct isoform 2: %v", err)
	}
	if got != "ABXYZFGJ" {
		t.Fatalf("expected ABXYZFGJ, got %q", got)
	}

	// Isoform 1 has no edits and must be the primary sequence verbatim.
	got, err = rec.ReconstructIsoform("1")
	if err != nil {
		t.Fatalf("reconstruct isoform 1: %v", err)
	}
	if got != rec.Sequence {
		t.Fatalf("isoform 1 should equal primary sequence, got %q", got)
	}

	// Length arithmetic: -3 substituted +3 replacement, -2 deleted.
	want := len(rec.Sequence) - 2
	if iso2, _ := rec.ReconstructIsoform("2"); len(iso2) != want {
		t.Fatalf("expected isoform 2 length %d, got %d", want, len(iso2))
	}
}

func TestReconstructUnknownIsoform(t *testing.T) {
	records, _ := ParseRecords(strings.NewReader(sampleRecord()))
	rec := records["TEST_HUMAN"]
	if _, err := rec.ReconstructIsoform("9"); !errors.Is(err, ErrUnknownIsoform) {
		t.Fatalf("expected ErrUnknownIsoform, got %v", err)
	}
}

func newScenarioRecord(edits []VariationEdit) *Record {
	return &Record{
		ID:         "SCEN_TEST",
		Sequence:   "ABCDEFGHIJ",
		Variations: edits,
		Isoforms:   map[string]*Isoform{"1": {ID: "S00001-1"}},
	}
}

func TestReconstructOrderIndependence(t *testing.T) {
	sub := VariationEdit{Start: 3, End: 5, Kind: Substitution, Replacement: "XYZ", AppliesTo: []string{"1"}}
	del := VariationEdit{Start: 8, End: 9, Kind: Deletion, AppliesTo: []string{"1"}}

	// Declaration order must not matter; only the applied order does.
	forward := newScenarioRecord([]VariationEdit{sub, del})
	backward := newScenarioRecord([]VariationEdit{del, sub})

	a, err := forward.ReconstructIsoform("1")
	if err != nil {
		t.Fatalf("forward: %v", err)
	}
	b, err := backward.ReconstructIsoform("1")
	if err != nil {
		t.Fatalf("backward: %v", err)
	}
	if a != b || a != "ABXYZFGJ" {
		t.Fatalf("expected ABXYZFGJ from both orders, got %q and %q", a, b)
	}
}

func TestReconstructSingleResidueSubstitution(t *testing.T) {
	rec := newScenarioRecord([]VariationEdit{
		{Start: 4, End: 4, Kind: Substitution, Replacement: "Z", AppliesTo: []string{"1"}},
	})
	got, err := rec.ReconstructIsoform("1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "ABCZEFGHIJ" {
		t.Fatalf("expected ABCZEFGHIJ, got %q", got)
	}
}

func TestDecodeVarSeqMissingAnnotation(t *testing.T) {
	if _, err := decodeVarSeq(1, 3, "ABC -> DEF in isoform 2."); !errors.Is(err, ErrMalformedVariation) {
		t.Fatalf("expected ErrMalformedVariation for missing parenthetical, got %v", err)
	}
}

func TestDecodeVarSeqLengthMismatch(t *testing.T) {
	// Span 1..5 needs five residues; ABC has three. Must be rejected, not
	// silently truncated.
	if _, err := decodeVarSeq(1, 5, "ABC -> DEF (in isoform 2)."); !errors.Is(err, ErrMalformedVariation) {
		t.Fatalf("expected ErrMalformedVariation for length mismatch, got %v", err)
	}
}

func TestDecodeVarSeqWrappedBlock(t *testing.T) {
	// Line wrapping leaves whitespace inside the sequence text.
	edit, err := decodeVarSeq(1, 6, "ABC DEF -> GH (in isoform 3 and isoform 4).")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if edit.Replacement != "GH" {
		t.Fatalf("unexpected replacement %q", edit.Replacement)
	}
	if len(edit.AppliesTo) != 2 || edit.AppliesTo[0] != "3" || edit.AppliesTo[1] != "4" {
		t.Fatalf("unexpected applies-to %v", edit.AppliesTo)
	}
}

func TestParseRecordsWrappedIsoformList(t *testing.T) {
	// The annotation wraps between "isoform" and its ordinal. The ordinal
	// must survive onto the continuation line; an edit applied to only a
	// subset of its isoforms would corrupt reconstructions silently.
	text := strings.Join([]string{
		"ID   WRAP_TEST               Reviewed;          10 AA.",
		"AC   P00002;",
		"CC   -!- ALTERNATIVE PRODUCTS:",
		"CC       Event=Alternative splicing; Named isoforms=3;",
		"CC       Name=2;",
		"CC         IsoId=P00002-2; Sequence=VSP_010;",
		"CC       Name=3;",
		"CC         IsoId=P00002-3; Sequence=VSP_010;",
		ftLine("VAR_SEQ", 8, 9, "Missing (in isoform 2 and isoform"),
		ftCont("3)."),
		"SQ   SEQUENCE   10 AA;  1070 MW;  0123456789ABCDEF CRC64;",
		"     ABCDEFGHIJ",
	}, "\n") + "\n"

	records, err := ParseRecords(strings.NewReader(text))
	if err != nil {
		t.Fatalf("unexpected parse error: %v", err)
	}
	rec := records["WRAP_TEST"]
	if len(rec.BadVariations) != 0 {
		t.Fatalf("unexpected rejected edits: %v", rec.BadVariations)
	}
	if len(rec.Variations) != 1 {
		t.Fatalf("expected 1 decoded variation, got %v", rec.Variations)
	}
	got := rec.Variations[0].AppliesTo
	if len(got) != 2 || got[0] != "2" || got[1] != "3" {
		t.Fatalf("wrapped ordinal lost, applies-to %v", got)
	}

	// Both isoforms get the deletion.
	for _, ordinal := range []string{"2", "3"} {
		seq, err := rec.ReconstructIsoform(ordinal)
		if err != nil {
			t.Fatalf("reconstruct isoform %s: %v", ordinal, err)
		}
		if seq != "ABCDEFGJ" {
			t.Fatalf("isoform %s: expected ABCDEFGJ, got %q", ordinal, seq)
		}
	}
}

func TestParseRecordsRejectsBadVariation(t *testing.T) {
	bad := strings.Join([]string{
		"ID   BADVAR_TEST             Reviewed;          10 AA.",
		"AC   P00001;",
		ftLine("VAR_SEQ", 3, 5, "CD -> XY (in isoform 2)."),
		"SQ   SEQUENCE   10 AA;  1070 MW;  0123456789ABCDEF CRC64;",
		"     ABCDEFGHIJ",
	}, "\n") + "\n"

	records, err := ParseRecords(strings.NewReader(bad))
	if err != nil {
		t.Fatalf("bad variation must not fail the parse: %v", err)
	}
	rec := records["BADVAR_TEST"]
	if len(rec.Variations) != 0 {
		t.Fatalf("expected rejected edit to be excluded, got %v", rec.Variations)
	}
	if len(rec.BadVariations) != 1 || !errors.Is(rec.BadVariations[0], ErrMalformedVariation) {
		t.Fatalf("expected one retained MalformedVariation, got %v", rec.BadVariations)
	}
}

func TestParseRecordsSequenceBeforeID(t *testing.T) {
	text := "SQ   SEQUENCE   3 AA;  1 MW;  0 CRC64;\n     AAA\n" + sampleRecord()
	records, err := ParseRecords(strings.NewReader(text))
	if !errors.Is(err, ErrMalformedRecord) {
		t.Fatalf("expected ErrMalformedRecord, got %v", err)
	}
	// The sibling record still parses.
	if rec, ok := records["TEST_HUMAN"]; !ok || rec.Sequence != "ABCDEFGHIJ" {
		t.Fatalf("sibling record lost after malformed prefix: %v", records)
	}
}

func TestIndexResolve(t *testing.T) {
	records, err := ParseRecords(strings.NewReader(sampleRecord()))
	if err != nil {
		t.Fatalf("unexpected parse error: %v", err)
	}
	ix := NewIndex(records)
	rec := records["TEST_HUMAN"]

	// Primary accession resolves to the record itself.
	got, seq, err := ix.Resolve("P12345")
	if err != nil || got != rec || seq != "" {
		t.Fatalf("resolve P12345: rec=%v seq=%q err=%v", got, seq, err)
	}

	// Round-trip: BASE-N must equal the reconstruction for ordinal N.
	want, err := rec.ReconstructIsoform("2")
	if err != nil {
		t.Fatalf("reconstruct: %v", err)
	}
	if _, seq, err = ix.Resolve("P12345-2"); err != nil || seq != want {
		t.Fatalf("resolve P12345-2: seq=%q want=%q err=%v", seq, want, err)
	}

	// Truncated prefix fallback for decorated identifiers.
	if got, _, err = ix.Resolve("P12345.1"); err != nil || got != rec {
		t.Fatalf("prefix fallback failed: rec=%v err=%v", got, err)
	}

	if _, _, err = ix.Resolve("ZZZZZZ"); err == nil {
		t.Fatalf("expected error for unknown seqid")
	}
}
