// Package search runs the profile search tool once per genome and turns its
// hit table into at most one best hit per marker.
package search

import (
	"cmp"
	"slices"
	"strings"

	"github.com/Iron-Ham/phyling/internal/catalog"
)

// Hit is one candidate sequence for a marker in a genome.
type Hit struct {
	Genome     string           `json:"genome"`
	Marker     catalog.MarkerID `json:"marker"`
	SequenceID string           `json:"sequence_id"`
	Score      float64          `json:"score"`
	EValue     float64          `json:"evalue"`
	Start      int              `json:"start"`
	End        int              `json:"end"`
}

// Span returns the length of the matched region.
func (h Hit) Span() int {
	return h.End - h.Start
}

// Compare orders hits from best to worst: higher score first, then lower
// E-value, then longer span, then the lexicographically smaller sequence
// ID. Two hits compare equal only when all four keys are equal, so picking
// the first hit of a sorted slice does not depend on input order.
func Compare(a, b Hit) int {
	if c := cmp.Compare(b.Score, a.Score); c != 0 {
		return c
	}
	if c := cmp.Compare(a.EValue, b.EValue); c != 0 {
		return c
	}
	if c := cmp.Compare(b.Span(), a.Span()); c != 0 {
		return c
	}
	return strings.Compare(a.SequenceID, b.SequenceID)
}

// Better reports whether a ranks strictly before b.
func Better(a, b Hit) bool {
	return Compare(a, b) < 0
}

// BestPerMarker keeps the best hit of every (genome, marker) pair and
// returns them sorted by genome then marker. Lower-ranked duplicates are
// dropped, never merged.
func BestPerMarker(hits []Hit) []Hit {
	type key struct {
		genome string
		marker catalog.MarkerID
	}
	best := make(map[key]Hit, len(hits))
	for _, h := range hits {
		k := key{h.Genome, h.Marker}
		if cur, ok := best[k]; !ok || Better(h, cur) {
			best[k] = h
		}
	}

	out := make([]Hit, 0, len(best))
	for _, h := range best {
		out = append(out, h)
	}
	slices.SortFunc(out, func(a, b Hit) int {
		if c := strings.Compare(a.Genome, b.Genome); c != 0 {
			return c
		}
		return strings.Compare(string(a.Marker), string(b.Marker))
	})
	return out
}
