// Package aggregate turns per-genome best hits into the marker matrix and
// decides which markers have enough coverage to build trees from.
package aggregate

import (
	"fmt"
	"math/big"
	"slices"
	"strconv"

	"github.com/Iron-Ham/phyling/internal/catalog"
	"github.com/Iron-Ham/phyling/internal/errors"
	"github.com/Iron-Ham/phyling/internal/search"
)

// Rejection reasons.
const (
	ReasonCoverage   = "coverage"
	ReasonMinGenomes = "min_genomes"
)

// Policy is the retention threshold for markers.
type Policy struct {
	// MinFraction is the fraction of genomes that must carry a hit.
	// A marker exactly at the threshold is retained.
	MinFraction float64
	// MinGenomes is an absolute floor on the number of genomes with a hit.
	MinGenomes int
}

// Validate checks that the policy can be applied.
func (p Policy) Validate() error {
	if p.MinFraction <= 0 || p.MinFraction > 1 {
		return errors.NewValidationError("coverage fraction must be in (0, 1]").
			WithField("min_fraction").WithValue(p.MinFraction)
	}
	if p.MinGenomes < 0 {
		return errors.NewValidationError("genome floor must be non-negative").
			WithField("min_genomes").WithValue(p.MinGenomes)
	}
	return nil
}

// Meets reports whether hits out of total genomes satisfies the policy.
// The fraction is compared exactly: the decimal form of MinFraction is
// read as a rational num/den and the test is hits*den >= num*total, so
// 4 of 5 genomes meets 0.8.
func (p Policy) Meets(hits, total int) bool {
	return p.reason(hits, total) == ""
}

func (p Policy) reason(hits, total int) string {
	if total == 0 || hits < p.MinGenomes {
		return ReasonMinGenomes
	}
	frac, ok := new(big.Rat).SetString(strconv.FormatFloat(p.MinFraction, 'g', -1, 64))
	if !ok {
		return ReasonCoverage
	}
	lhs := new(big.Int).Mul(big.NewInt(int64(hits)), frac.Denom())
	rhs := new(big.Int).Mul(frac.Num(), big.NewInt(int64(total)))
	if lhs.Cmp(rhs) < 0 {
		return ReasonCoverage
	}
	return ""
}

// Rejection records a marker that did not reach the threshold.
type Rejection struct {
	Marker   catalog.MarkerID `json:"marker" yaml:"marker"`
	Hits     int              `json:"hits" yaml:"hits"`
	Total    int              `json:"total" yaml:"total"`
	Coverage float64          `json:"coverage" yaml:"coverage"`
	Reason   string           `json:"reason" yaml:"reason"`
}

// Outcome is the result of aggregation.
type Outcome struct {
	Matrix   *Matrix
	Retained []catalog.MarkerID // sorted
	Rejected []Rejection        // sorted by marker
}

// Aggregate builds the matrix over every catalog marker and every genome in
// genomes from the hits in results (keyed by genome ID), then splits the
// markers into retained and rejected by policy. Markers without any hit
// are rejected with zero coverage. A hit for a marker outside the catalog
// or a genome outside genomes is an error.
func Aggregate(cat *catalog.Catalog, genomes []string, results map[string][]search.Hit, policy Policy) (*Outcome, error) {
	if err := policy.Validate(); err != nil {
		return nil, err
	}

	m := NewMatrix(cat.IDs(), genomes)

	ids := make([]string, 0, len(results))
	for id := range results {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	for _, id := range ids {
		for _, h := range results[id] {
			if h.Genome != id {
				return nil, errors.NewValidationError(
					fmt.Sprintf("hit for genome %q listed under %q", h.Genome, id)).WithField("genome")
			}
			if err := m.Add(h); err != nil {
				return nil, err
			}
		}
	}

	out := &Outcome{Matrix: m}
	total := len(m.genomes)
	for _, id := range m.markers {
		row := m.rows[id]
		if reason := policy.reason(row.Count(), total); reason != "" {
			out.Rejected = append(out.Rejected, Rejection{
				Marker:   id,
				Hits:     row.Count(),
				Total:    total,
				Coverage: row.Coverage(),
				Reason:   reason,
			})
			continue
		}
		out.Retained = append(out.Retained, id)
	}
	return out, nil
}
