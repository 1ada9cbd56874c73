package fasta

import (
	"strings"
	"testing"
)

func TestParseFastaSimple(t *testing.T) {
	input := ">seq1\nATGC\n>seq2 desc\nGGTT\n"
	recs := ParseFasta(strings.NewReader(input))
	if len(recs) != 2 {
		t.Fatalf("expected 2 records, got %d", len(recs))
	}
	if recs[0].Header != "seq1" || recs[0].Sequence != "ATGC" {
		t.Fatalf("unexpected first record: %+v", recs[0])
	}
	if recs[1].Header != "seq2 desc" || recs[1].Sequence != "GGTT" {
		t.Fatalf("unexpected second record: %+v", recs[1])
	}
}

func TestParseHeader(t *testing.T) {
	seqid, name := ParseHeader(">gi|123456|gb|AAA12345.1| test protein")
	if seqid != "gi|123456" {
		t.Fatalf("expected gi|123456, got %q", seqid)
	}
	if !strings.Contains(name, "test protein") {
		t.Fatalf("expected description in name, got %q", name)
	}

	seqid, name = ParseHeader("P12345 some protein")
	if seqid != "P12345" || name != "P12345 some protein" {
		t.Fatalf("unexpected plain header parse: %q %q", seqid, name)
	}
}

func TestWriteWraps(t *testing.T) {
	var b strings.Builder
	recs := []FastaRecord{{Header: "P12345-2", Sequence: strings.Repeat("A", 120)}}
	if err := Write(&b, recs, 50); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	lines := strings.Split(strings.TrimRight(b.String(), "\n"), "\n")
	if len(lines) != 4 {
		t.Fatalf("expected header plus 3 wrapped lines, got %d: %q", len(lines), b.String())
	}
	if lines[0] != ">P12345-2" || len(lines[1]) != 50 || len(lines[3]) != 20 {
		t.Fatalf("unexpected wrapping: %q", lines)
	}

	// Round trip.
	back := ParseFasta(strings.NewReader(b.String()))
	if len(back) != 1 || back[0].Sequence != recs[0].Sequence {
		t.Fatalf("round trip failed: %+v", back)
	}
}
