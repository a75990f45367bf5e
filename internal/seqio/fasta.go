// Package seqio reads and writes the FASTA files exchanged with external
// tools: genome proteomes, per-marker sequence sets and multiple sequence
// alignments.
package seqio

import (
	"bytes"
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/biogo/biogo/alphabet"
	bioseqio "github.com/biogo/biogo/io/seqio"
	"github.com/biogo/biogo/io/seqio/fasta"
	"github.com/biogo/biogo/seq/linear"

	"github.com/Iron-Ham/phyling/internal/cache"
	"github.com/Iron-Ham/phyling/internal/errors"
)

// LineWidth is the residue line width used when writing FASTA.
const LineWidth = 60

// Record is one FASTA entry. ID is the first word of the header line.
type Record struct {
	ID  string
	Seq []byte
}

// Read parses every record from r.
func Read(r io.Reader) ([]Record, error) {
	sc := bioseqio.NewScanner(fasta.NewReader(r, linear.NewSeq("", nil, alphabet.Protein)))

	var records []Record
	for sc.Next() {
		s, ok := sc.Seq().(*linear.Seq)
		if !ok {
			return nil, fmt.Errorf("unexpected sequence type %T", sc.Seq())
		}
		id := strings.TrimSpace(s.Name())
		if id == "" {
			return nil, errors.NewValidationError("FASTA record without identifier").
				WithValue(len(records) + 1)
		}
		records = append(records, Record{
			ID:  id,
			Seq: compact(alphabet.LettersToBytes(s.Seq)),
		})
	}
	if err := sc.Error(); err != nil {
		return nil, fmt.Errorf("parse FASTA: %w", err)
	}
	return records, nil
}

// ReadFile parses a FASTA file, transparently decompressing ".gz" files.
func ReadFile(path string) ([]Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	var r io.Reader = f
	if strings.HasSuffix(path, ".gz") {
		gz, err := gzip.NewReader(f)
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", path, err)
		}
		defer func() { _ = gz.Close() }()
		r = gz
	}

	records, err := Read(r)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return records, nil
}

// Write writes records in the given order.
func Write(w io.Writer, records []Record) error {
	fw := fasta.NewWriter(w, LineWidth)
	for _, rec := range records {
		s := linear.NewSeq(rec.ID, alphabet.BytesToLetters(rec.Seq), alphabet.Protein)
		if _, err := fw.Write(s); err != nil {
			return fmt.Errorf("write record %s: %w", rec.ID, err)
		}
	}
	return nil
}

// Encode renders records to bytes.
func Encode(records []Record) ([]byte, error) {
	var buf bytes.Buffer
	if err := Write(&buf, records); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// WriteFile writes records to path atomically. When path already holds the
// identical bytes it is left untouched.
func WriteFile(path string, records []Record) error {
	data, err := Encode(records)
	if err != nil {
		return err
	}
	if cache.Unchanged(path, data) {
		return nil
	}
	return cache.WriteFile(path, data)
}

// compact drops whitespace that some writers leave inside sequence lines.
func compact(b []byte) []byte {
	out := make([]byte, 0, len(b))
	for _, c := range b {
		switch c {
		case ' ', '\t', '\r', '\n':
			continue
		}
		out = append(out, c)
	}
	return out
}
