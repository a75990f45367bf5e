package aggregate

import (
	"fmt"
	"slices"

	"github.com/Iron-Ham/phyling/internal/catalog"
	"github.com/Iron-Ham/phyling/internal/errors"
	"github.com/Iron-Ham/phyling/internal/search"
)

// Matrix maps marker → genome → best hit. It knows the full genome list,
// so a missing cell is a gap for that genome, not an absent marker.
type Matrix struct {
	genomes []string
	markers []catalog.MarkerID
	rows    map[catalog.MarkerID]*Row
}

// Row is one marker across all genomes.
type Row struct {
	Marker  catalog.MarkerID
	genomes []string
	hits    map[string]search.Hit
}

// NewMatrix creates an empty matrix. Markers and genomes are sorted and
// deduplicated.
func NewMatrix(markers []catalog.MarkerID, genomes []string) *Matrix {
	m := &Matrix{
		genomes: sortedUnique(genomes),
		markers: sortedUnique(markers),
		rows:    make(map[catalog.MarkerID]*Row, len(markers)),
	}
	for _, id := range m.markers {
		m.rows[id] = &Row{Marker: id, genomes: m.genomes, hits: make(map[string]search.Hit)}
	}
	return m
}

// Add places h in its cell. When the cell is already filled, the better
// hit by search.Compare stays. It returns an error when h names a marker
// or genome outside the matrix.
func (m *Matrix) Add(h search.Hit) error {
	row, ok := m.rows[h.Marker]
	if !ok {
		return errors.Wrapf(errors.ErrUnknownMarker, "marker %s", h.Marker)
	}
	if _, found := slices.BinarySearch(m.genomes, h.Genome); !found {
		return errors.NewValidationError(fmt.Sprintf("hit for unknown genome %q", h.Genome)).
			WithField("genome").WithValue(h.Genome)
	}
	if cur, ok := row.hits[h.Genome]; ok && !search.Better(h, cur) {
		return nil
	}
	row.hits[h.Genome] = h
	return nil
}

// Genomes returns every genome of the run, sorted.
func (m *Matrix) Genomes() []string {
	return slices.Clone(m.genomes)
}

// Markers returns every marker of the matrix, sorted.
func (m *Matrix) Markers() []catalog.MarkerID {
	return slices.Clone(m.markers)
}

// Row returns the row of marker id.
func (m *Matrix) Row(id catalog.MarkerID) (*Row, bool) {
	row, ok := m.rows[id]
	return row, ok
}

// Count returns how many genomes have a hit.
func (r *Row) Count() int {
	return len(r.hits)
}

// Coverage returns the fraction of genomes with a hit.
func (r *Row) Coverage() float64 {
	if len(r.genomes) == 0 {
		return 0
	}
	return float64(len(r.hits)) / float64(len(r.genomes))
}

// Hit returns the hit of genome, if any.
func (r *Row) Hit(genome string) (search.Hit, bool) {
	h, ok := r.hits[genome]
	return h, ok
}

// Hits returns the row's hits sorted by genome.
func (r *Row) Hits() []search.Hit {
	out := make([]search.Hit, 0, len(r.hits))
	for _, g := range r.genomes {
		if h, ok := r.hits[g]; ok {
			out = append(out, h)
		}
	}
	return out
}

// Present returns the genomes with a hit, sorted.
func (r *Row) Present() []string {
	out := make([]string, 0, len(r.hits))
	for _, g := range r.genomes {
		if _, ok := r.hits[g]; ok {
			out = append(out, g)
		}
	}
	return out
}

// Missing returns the genomes without a hit, sorted.
func (r *Row) Missing() []string {
	var out []string
	for _, g := range r.genomes {
		if _, ok := r.hits[g]; !ok {
			out = append(out, g)
		}
	}
	return out
}

func sortedUnique[S ~[]E, E ~string](s S) S {
	out := slices.Clone(s)
	slices.Sort(out)
	return slices.Compact(out)
}
