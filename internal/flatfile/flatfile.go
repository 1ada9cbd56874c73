// Package flatfile parses the fixed-column, tag-prefixed flat-text format
// used by uniprot.org metadata exports, and reconstructs alternative isoform
// sequences from the VAR_SEQ features embedded in each record.
//
// Parsing is two-phase: ParseRecords makes a single forward pass that
// assembles the primary sequence, the decoded variation edits and the
// declared isoforms; ReconstructIsoform then applies the edits for one
// isoform to a fresh copy of the primary sequence.
package flatfile

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Line is one physical line of a flat-text record. Tag is the effective tag
// after continuation handling, Content the trimmed remainder after the tag
// column, Raw the untouched line for column-addressed lookups.
type Line struct {
	Tag     string
	Content string
	Raw     string
}

// Tokenizer splits raw record text into tagged lines. The tag column is the
// first 5 bytes; a blank tag column continues the previous tag. A short or
// garbled line yields empty content rather than an error, since structural
// validation happens downstream.
type Tokenizer struct {
	scn *bufio.Scanner
	tag string
}

func NewTokenizer(r io.Reader) *Tokenizer {
	scn := bufio.NewScanner(r)
	scn.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	return &Tokenizer{scn: scn}
}

// Next returns the next line; ok is false once the input is exhausted.
func (t *Tokenizer) Next() (line Line, ok bool) {
	if !t.scn.Scan() {
		return Line{}, false
	}
	raw := t.scn.Text()
	tagCol := raw
	if len(raw) > 5 {
		tagCol = raw[:5]
	}
	if tag := strings.TrimSpace(tagCol); tag != "" && tag != t.tag {
		t.tag = tag
	}
	content := ""
	if len(raw) > 5 {
		content = strings.TrimSpace(raw[5:])
	}
	return Line{Tag: t.tag, Content: content, Raw: raw}, true
}

// Err reports any read error from the underlying reader.
func (t *Tokenizer) Err() error { return t.scn.Err() }

// EditKind discriminates the two VAR_SEQ edit forms.
type EditKind int

const (
	Substitution EditKind = iota
	Deletion
)

// VariationEdit is one decoded VAR_SEQ feature: an edit over the 1-indexed
// inclusive range [Start, End] of the primary sequence, applying to one or
// more declared isoforms.
type VariationEdit struct {
	Start       int
	End         int
	Kind        EditKind
	Replacement string   // substitution text; empty for deletions
	AppliesTo   []string // isoform ordinals named by the annotation
}

func (e VariationEdit) applies(iso string) bool {
	for _, id := range e.AppliesTo {
		if id == iso {
			return true
		}
	}
	return false
}

// Isoform is one alternative product declared in the comment section.
// Sequence stays empty until the isoform is first reconstructed.
type Isoform struct {
	ID       string // IsoId accession, e.g. Q91ZU6-2
	Sequence string
}

// Record is one parsed primary entry. Variations holds the decoded edits in
// declaration order, which is not the order they are applied in. Isoforms is
// keyed by the ordinal from the Name= line, kept as an opaque string.
type Record struct {
	ID          string
	Reviewed    bool
	Length      int // residue count declared on the ID line
	Accessions  []string
	Description string
	Organism    string
	Gene        string
	Sequence    string
	Variations  []VariationEdit
	Isoforms    map[string]*Isoform

	// BadVariations retains the decode failure for every VAR_SEQ block that
	// was rejected, so callers can log what reconstruction will ignore.
	BadVariations []error
}

// rawVarSeq accumulates the free-text block of one VAR_SEQ feature before
// decoding. Continuation text starts at byte 34 of each line.
type rawVarSeq struct {
	start, end int
	block      string
}

const varSeqTextCol = 34

// ParseRecords parses one or more concatenated flat-text records and returns
// them keyed by entry name. A structural failure in one record does not
// abort its siblings; such failures are joined into the returned error
// alongside a possibly non-empty map.
func ParseRecords(r io.Reader) (map[string]*Record, error) {
	tok := NewTokenizer(r)
	records := make(map[string]*Record)

	var (
		errs          []error
		cur           *Record
		raws          []*rawVarSeq
		open          *rawVarSeq
		descriptions  []string
		inAltProducts bool
		isoName       string
	)

	flush := func() {
		if cur == nil {
			return
		}
		cur.Description = joinDescriptions(descriptions)
		for _, rv := range raws {
			edit, err := decodeVarSeq(rv.start, rv.end, rv.block)
			if err != nil {
				cur.BadVariations = append(cur.BadVariations,
					fmt.Errorf("%s VAR_SEQ %d..%d: %w", cur.ID, rv.start, rv.end, err))
				continue
			}
			cur.Variations = append(cur.Variations, edit)
		}
		cur = nil
		raws, open = nil, nil
		descriptions = nil
		inAltProducts, isoName = false, ""
	}

	for {
		ln, ok := tok.Next()
		if !ok {
			break
		}
		words := strings.Fields(ln.Content)

		switch ln.Tag {
		case "ID":
			flush()
			if len(words) == 0 {
				errs = append(errs, fmt.Errorf("empty ID line: %w", ErrMalformedRecord))
				continue
			}
			cur = &Record{ID: words[0], Isoforms: make(map[string]*Isoform)}
			if len(words) > 1 {
				cur.Reviewed = strings.HasPrefix(words[1], "Reviewed")
			}
			if len(words) > 2 {
				cur.Length, _ = strconv.Atoi(words[2])
			}
			records[cur.ID] = cur

		case "AC":
			if cur == nil {
				continue
			}
			for _, w := range words {
				cur.Accessions = append(cur.Accessions, strings.TrimSuffix(w, ";"))
			}

		case "DE":
			if cur != nil {
				descriptions = append(descriptions, ln.Content)
			}

		case "OS":
			if cur != nil {
				cur.Organism += ln.Content
			}

		case "GN":
			if cur == nil || cur.Gene != "" || len(words) == 0 {
				continue
			}
			if name, val, found := strings.Cut(words[0], "="); found && strings.Contains(strings.ToLower(name), "name") {
				cur.Gene = strings.TrimRight(val, ";,")
			}

		case "SQ":
			if cur == nil {
				errs = append(errs, fmt.Errorf("sequence block before any ID line: %w", ErrMalformedRecord))
				continue
			}
			if len(words) > 0 && words[0] != "SEQUENCE" {
				cur.Sequence += strings.Join(words, "")
			}

		case "FT":
			if cur == nil {
				continue
			}
			// A line with the feature column occupied ends any open block.
			if open != nil && len(ln.Raw) > 5 && ln.Raw[5] != ' ' {
				open = nil
			}
			if strings.HasPrefix(ln.Content, "VAR_SEQ") {
				if len(words) < 3 {
					cur.BadVariations = append(cur.BadVariations,
						fmt.Errorf("%s VAR_SEQ without positions: %w", cur.ID, ErrMalformedVariation))
					continue
				}
				start, err1 := strconv.Atoi(words[1])
				end, err2 := strconv.Atoi(words[2])
				if err1 != nil || err2 != nil {
					cur.BadVariations = append(cur.BadVariations,
						fmt.Errorf("%s VAR_SEQ positions %q %q: %w", cur.ID, words[1], words[2], ErrMalformedVariation))
					continue
				}
				rv := &rawVarSeq{start: start, end: end}
				raws = append(raws, rv)
				open = rv
			}
			if open != nil && len(ln.Raw) > varSeqTextCol {
				// Join wrapped chunks with a space so a line break between
				// two words never fuses them into one token.
				if open.block != "" {
					open.block += " "
				}
				open.block += ln.Raw[varSeqTextCol:]
			}

		case "CC":
			if cur == nil || len(words) == 0 {
				continue
			}
			if words[0] == "-!-" {
				inAltProducts = len(words) > 2 &&
					strings.Contains(words[1], "ALTERNATIVE") &&
					strings.Contains(words[2], "PRODUCTS")
			}
			if !inAltProducts {
				continue
			}
			if strings.HasPrefix(words[0], "Name") {
				if _, val, found := strings.Cut(strings.TrimRight(words[0], ";:,"), "="); found {
					isoName = val
				}
			}
			for _, w := range words {
				if id, found := strings.CutPrefix(w, "IsoId="); found {
					if isoName != "" {
						cur.Isoforms[isoName] = &Isoform{ID: strings.TrimRight(id, ";,")}
					}
					break
				}
			}
		}
	}
	flush()

	if err := tok.Err(); err != nil {
		errs = append(errs, err)
	}
	return records, errors.Join(errs...)
}

// joinDescriptions keeps the Full= and Short= name values from the DE lines
// and joins them into a single display description.
func joinDescriptions(lines []string) string {
	var kept []string
	for _, l := range lines {
		if !strings.Contains(l, "Full") && !strings.Contains(l, "Short") {
			continue
		}
		if i := strings.Index(l, "="); i >= 0 {
			kept = append(kept, strings.ReplaceAll(l[i+1:], ";", ""))
		}
	}
	return strings.Join(kept, "; ")
}
