// Package seqid recognizes the accession schemes of external sequence
// identifiers and maps them to the uniprot.org mapping-service type names,
// so callers can convert foreign ids to UniProt accessions before fetching.
package seqid

import (
	"regexp"
	"strings"
)

var (
	textRe     = regexp.MustCompile(`^[A-Za-z_]+$`)
	uniprotRe1 = regexp.MustCompile(`^[A-NR-Z][0-9][A-Z][A-Z0-9][A-Z0-9][0-9]$`)
	uniprotRe2 = regexp.MustCompile(`^[OPQ][0-9][A-Z0-9][A-Z0-9][A-Z0-9][0-9]$`)
	variantRe  = regexp.MustCompile(`^-\d+`)
	sgdRe      = regexp.MustCompile(`^Y[A-Z][LR]\d\d\d[WC]$`)
	refseqRe   = regexp.MustCompile(`^[NXYZ][PM]_\d+(\.\d+)?$`)
)

// IsText reports whether seqid is purely alphabetic (a database-style name
// rather than an accession).
func IsText(seqid string) bool { return textRe.MatchString(seqid) }

// IsUniProt reports whether seqid matches the 6-character UniProt accession
// format.
func IsUniProt(seqid string) bool {
	return uniprotRe1.MatchString(seqid) || uniprotRe2.MatchString(seqid)
}

// IsUniProtVariant reports whether seqid is a UniProt accession with an
// optional isoform suffix, e.g. A2AAA3-34.
func IsUniProtVariant(seqid string) bool {
	if len(seqid) < 6 || !IsUniProt(seqid[:6]) {
		return false
	}
	if len(seqid) == 6 {
		return true
	}
	return variantRe.MatchString(seqid[6:])
}

// IsSGD reports whether seqid is a Saccharomyces Genome Database locus tag.
func IsSGD(seqid string) bool { return sgdRe.MatchString(seqid) }

// IsRefSeq reports whether seqid is an NCBI RefSeq accession.
func IsRefSeq(seqid string) bool { return refseqRe.MatchString(seqid) }

// IsEnsembl reports whether seqid is an Ensembl identifier.
func IsEnsembl(seqid string) bool { return strings.HasPrefix(seqid, "ENS") }

// MaybeUniProtID reports whether seqid looks like a UniProt entry name
// (mnemonic id such as EFG_MYCA1).
func MaybeUniProtID(seqid string) bool { return strings.Contains(seqid, "_") }

// Naked strips NCBI-style decorated identifiers of the form db|id|... down
// to the bare accession. Undecorated ids pass through unchanged.
func Naked(seqid string) string {
	if !strings.Contains(seqid, "|") {
		return seqid
	}
	pieces := strings.Split(seqid, "|")
	if len(pieces) > 1 && IsText(pieces[0]) {
		return pieces[1]
	}
	return seqid
}

// Mapping-service type names for the schemes this package recognizes.
// The full table lives at uniprot.org; only the types the pipeline converts
// are listed here.
const (
	TypeACC        = "ACC"
	TypeACCID      = "ACC+ID"
	TypeID         = "ID"
	TypeRefSeqProt = "P_REFSEQ_AC"
	TypeRefSeqNT   = "REFSEQ_NT_ID"
	TypeEnsembl    = "ENSEMBL_ID"
	TypeLocusTag   = "ENSEMBLGENOME_PRO_ID"
)

// MappingType classifies seqid and returns the uniprot.org mapping type to
// convert it from, or empty when the scheme is not recognized. UniProt
// accessions themselves return ACC+ID (they still go through the mapping
// service to pick up merged entries).
func MappingType(seqid string) string {
	switch {
	case IsSGD(seqid):
		return TypeLocusTag
	case IsRefSeq(seqid):
		return TypeRefSeqProt
	case IsEnsembl(seqid):
		return TypeEnsembl
	case IsUniProt(seqid):
		return TypeACCID
	case MaybeUniProtID(seqid):
		return TypeID
	}
	return ""
}
