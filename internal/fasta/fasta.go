package fasta

// Package fasta contains minimal helpers to read and write FASTA formatted
// data used by the project. It intentionally keeps parsing simple and
// conservative.

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// FastaRecord represents a single FASTA record (header and sequence).
type FastaRecord struct {
	Header   string
	Sequence string
}

// ParseFasta reads FASTA records from r and returns a slice of FastaRecord.
// Lines beginning with '>' denote headers; sequence lines are concatenated.
func ParseFasta(r io.Reader) []FastaRecord {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	var records []FastaRecord
	var current FastaRecord
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, ">") {
			if current.Header != "" {
				records = append(records, current)
			}
			current = FastaRecord{Header: line[1:], Sequence: ""}
		} else {
			current.Sequence += strings.TrimSpace(line)
		}
	}
	if current.Header != "" {
		records = append(records, current)
	}
	return records
}

// ParseHeader splits a FASTA header (with or without the leading '>') into a
// sequence id and a display name. NCBI-style headers of the form
// "gi|ginumber|gb|accession description" keep "gi|ginumber" as the id.
func ParseHeader(header string) (seqid, name string) {
	header = strings.TrimPrefix(header, ">")
	first := header
	if fields := strings.Fields(header); len(fields) > 0 {
		first = fields[0]
	}
	if strings.Contains(first, "|") {
		tokens := strings.Split(header, "|")
		if second := strings.Fields(tokens[1]); len(tokens) >= 2 && len(second) > 0 {
			seqid = tokens[0] + "|" + second[0]
			name = seqid + " " + strings.TrimSpace(tokens[len(tokens)-1])
			return seqid, name
		}
	}
	return first, strings.TrimSpace(header)
}

// Write writes records to w, wrapping sequence lines at width columns.
// A width of zero or less defaults to 50, matching the upstream exports.
func Write(w io.Writer, records []FastaRecord, width int) error {
	if width <= 0 {
		width = 50
	}
	for _, rec := range records {
		if _, err := fmt.Fprintf(w, ">%s\n", rec.Header); err != nil {
			return err
		}
		seq := rec.Sequence
		for i := 0; i < len(seq); i += width {
			end := i + width
			if end > len(seq) {
				end = len(seq)
			}
			if _, err := fmt.Fprintln(w, seq[i:end]); err != nil {
				return err
			}
		}
	}
	return nil
}
