package seqio

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"

	"github.com/Iron-Ham/phyling/internal/errors"
)

// Gap is the alignment gap character.
const Gap = '-'

// Alignment is a multiple sequence alignment whose rows all have Width
// columns. Rows are ordered by ID.
type Alignment struct {
	Rows  []Record
	Width int
}

// NormalizeResidues uppercases residues and replaces ambiguity codes,
// stop symbols and insert-state dots with gaps.
func NormalizeResidues(seq []byte) []byte {
	out := bytes.ToUpper(seq)
	for i, c := range out {
		switch c {
		case 'Z', 'B', 'X', '*', '.':
			out[i] = Gap
		}
	}
	return out
}

// NewAlignment validates that rows are non-empty, uniquely named and of
// equal width, and returns them sorted by ID.
func NewAlignment(rows []Record) (*Alignment, error) {
	if len(rows) == 0 {
		return nil, errors.NewValidationError("alignment has no rows")
	}

	sorted := slices.Clone(rows)
	slices.SortFunc(sorted, func(a, b Record) int { return strings.Compare(a.ID, b.ID) })

	width := len(sorted[0].Seq)
	for i, row := range sorted {
		if i > 0 && row.ID == sorted[i-1].ID {
			return nil, errors.NewValidationError("duplicate alignment row").WithField(row.ID)
		}
		if len(row.Seq) != width {
			return nil, errors.NewValidationError(
				fmt.Sprintf("row width differs from %d", width)).
				WithField(row.ID).
				WithValue(len(row.Seq))
		}
	}
	if width == 0 {
		return nil, errors.NewValidationError("alignment has zero columns")
	}

	return &Alignment{Rows: sorted, Width: width}, nil
}

// ReadAlignment parses an aligned FASTA stream, normalizes residues and
// validates the result.
func ReadAlignment(r io.Reader) (*Alignment, error) {
	records, err := Read(r)
	if err != nil {
		return nil, err
	}
	for i := range records {
		records[i].Seq = NormalizeResidues(records[i].Seq)
	}
	return NewAlignment(records)
}

// ReadAlignmentFile is ReadAlignment on a file.
func ReadAlignmentFile(path string) (*Alignment, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	aln, err := ReadAlignment(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return aln, nil
}

// IDs returns the row identifiers in row order.
func (a *Alignment) IDs() []string {
	ids := make([]string, len(a.Rows))
	for i, row := range a.Rows {
		ids[i] = row.ID
	}
	return ids
}

// Row returns the row with the given ID.
func (a *Alignment) Row(id string) ([]byte, bool) {
	i, found := slices.BinarySearchFunc(a.Rows, id, func(r Record, id string) int {
		return strings.Compare(r.ID, id)
	})
	if !found {
		return nil, false
	}
	return a.Rows[i].Seq, true
}

// GapRow returns a row of width gaps.
func GapRow(width int) []byte {
	return bytes.Repeat([]byte{Gap}, width)
}
