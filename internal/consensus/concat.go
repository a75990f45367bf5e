package consensus

import (
	"fmt"
	"slices"
	"strings"

	"github.com/Iron-Ham/phyling/internal/catalog"
	"github.com/Iron-Ham/phyling/internal/errors"
	"github.com/Iron-Ham/phyling/internal/seqio"
)

// Block is one marker's alignment in a concatenation.
type Block struct {
	Marker    catalog.MarkerID
	Alignment *seqio.Alignment
}

// Partition is the column range of one marker in the super-alignment,
// 1-based and inclusive.
type Partition struct {
	Marker catalog.MarkerID
	Start  int
	End    int
}

// SuperAlignment is the concatenation of marker alignments.
type SuperAlignment struct {
	Alignment  *seqio.Alignment
	Partitions []Partition
}

// Concatenate joins blocks, in marker order, into one alignment with a row
// per genome. Rows follow the sorted genome order; a genome missing from a
// block contributes that block's width in gaps. Genomes absent from every
// block are left out.
func Concatenate(blocks []Block, genomes []string) (*SuperAlignment, error) {
	if len(blocks) == 0 {
		return nil, errors.NewValidationError("nothing to concatenate")
	}

	sorted := slices.Clone(blocks)
	slices.SortFunc(sorted, func(a, b Block) int { return strings.Compare(string(a.Marker), string(b.Marker)) })

	order := slices.Clone(genomes)
	slices.Sort(order)
	order = slices.Compact(order)

	rows := make(map[string][]byte, len(order))
	present := make(map[string]bool, len(order))
	partitions := make([]Partition, 0, len(sorted))
	col := 0
	for i, b := range sorted {
		if i > 0 && b.Marker == sorted[i-1].Marker {
			return nil, errors.NewValidationError("marker concatenated twice").WithField(string(b.Marker))
		}
		if b.Alignment == nil || b.Alignment.Width == 0 {
			return nil, errors.NewValidationError("empty marker alignment").WithField(string(b.Marker))
		}
		for _, id := range b.Alignment.IDs() {
			if _, found := slices.BinarySearch(order, id); !found {
				return nil, errors.NewValidationError(fmt.Sprintf("alignment row %q is not an input genome", id)).
					WithField(string(b.Marker))
			}
		}

		width := b.Alignment.Width
		for _, g := range order {
			seq, ok := b.Alignment.Row(g)
			if ok {
				present[g] = true
			} else {
				seq = seqio.GapRow(width)
			}
			rows[g] = append(rows[g], seq...)
		}
		partitions = append(partitions, Partition{Marker: b.Marker, Start: col + 1, End: col + width})
		col += width
	}

	records := make([]seqio.Record, 0, len(order))
	for _, g := range order {
		if present[g] {
			records = append(records, seqio.Record{ID: g, Seq: rows[g]})
		}
	}
	aln, err := seqio.NewAlignment(records)
	if err != nil {
		return nil, err
	}
	return &SuperAlignment{Alignment: aln, Partitions: partitions}, nil
}

// PartitionText renders the partitions in RAxML style, one "LG, <marker> =
// <start>-<end>" line per marker.
func (s *SuperAlignment) PartitionText() string {
	var sb strings.Builder
	for _, p := range s.Partitions {
		fmt.Fprintf(&sb, "LG, %s = %d-%d\n", p.Marker, p.Start, p.End)
	}
	return sb.String()
}
