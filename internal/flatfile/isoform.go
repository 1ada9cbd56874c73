package flatfile

import (
	"fmt"
	"sort"
	"strings"
)

// ReconstructIsoform returns the full sequence of the isoform with the given
// ordinal, applying every variation edit that names it to a fresh copy of the
// primary sequence. An isoform with no matching edits reconstructs to the
// primary sequence unchanged; an undeclared ordinal is an error.
//
// Edits are applied in descending start order. Deletions and substitutions
// change the sequence length, so resolving the highest positions first keeps
// every remaining edit's recorded coordinates valid against the sequence as
// it stands when that edit is applied. Ascending order would silently
// corrupt every position downstream of the first length-changing edit.
func (r *Record) ReconstructIsoform(iso string) (string, error) {
	entry, ok := r.Isoforms[iso]
	if !ok {
		return "", fmt.Errorf("isoform %q of %s: %w", iso, r.ID, ErrUnknownIsoform)
	}
	if entry.Sequence != "" {
		return entry.Sequence, nil
	}

	edits := make([]VariationEdit, 0, len(r.Variations))
	for _, e := range r.Variations {
		if e.applies(iso) {
			edits = append(edits, e)
		}
	}
	sort.SliceStable(edits, func(i, j int) bool { return edits[i].Start > edits[j].Start })

	seq := r.Sequence
	for _, e := range edits {
		i, j := e.Start-1, e.End
		if j > len(seq) {
			return "", fmt.Errorf("%s isoform %q: edit %d..%d outside %d-residue sequence: %w",
				r.ID, iso, e.Start, e.End, len(seq), ErrMalformedVariation)
		}
		switch e.Kind {
		case Deletion:
			seq = seq[:i] + seq[j:]
		case Substitution:
			seq = seq[:i] + e.Replacement + seq[j:]
		}
	}
	entry.Sequence = seq
	return seq, nil
}

// isoRef locates one declared isoform inside its record.
type isoRef struct {
	rec     *Record
	ordinal string
}

// Index resolves externally supplied identifiers against a parsed record
// set: entry names, accessions, IsoId accessions, isoform-suffixed
// accessions such as P12345-2, and finally a 6-character truncated prefix
// match against the primary accessions.
type Index struct {
	byAcc map[string]*Record
	byIso map[string]isoRef
}

func NewIndex(records map[string]*Record) *Index {
	ix := &Index{
		byAcc: make(map[string]*Record),
		byIso: make(map[string]isoRef),
	}
	for _, rec := range records {
		ix.byAcc[rec.ID] = rec
		for _, acc := range rec.Accessions {
			if _, dup := ix.byAcc[acc]; !dup {
				ix.byAcc[acc] = rec
			}
		}
		for ordinal, iso := range rec.Isoforms {
			if iso.ID != "" {
				ix.byIso[iso.ID] = isoRef{rec: rec, ordinal: ordinal}
			}
		}
	}
	return ix
}

// Resolve maps seqid to its record. When seqid names an isoform, seq holds
// the reconstructed isoform sequence; for a primary record seq is empty.
func (ix *Index) Resolve(seqid string) (rec *Record, seq string, err error) {
	if rec, ok := ix.byAcc[seqid]; ok {
		return rec, "", nil
	}
	if ref, ok := ix.byIso[seqid]; ok {
		s, err := ref.rec.ReconstructIsoform(ref.ordinal)
		if err != nil {
			return ref.rec, "", err
		}
		return ref.rec, s, nil
	}
	if base, ordinal, found := strings.Cut(seqid, "-"); found {
		if rec, ok := ix.byAcc[base]; ok {
			s, err := rec.ReconstructIsoform(ordinal)
			if err != nil {
				return rec, "", err
			}
			return rec, s, nil
		}
	}
	if len(seqid) > 6 {
		if rec, ok := ix.byAcc[seqid[:6]]; ok {
			return rec, "", nil
		}
	}
	return nil, "", fmt.Errorf("no record for seqid %q", seqid)
}
