package search

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/Iron-Ham/phyling/internal/cache"
	"github.com/Iron-Ham/phyling/internal/catalog"
	"github.com/Iron-Ham/phyling/internal/errors"
	"github.com/Iron-Ham/phyling/internal/genome"
	"github.com/Iron-Ham/phyling/internal/logging"
	"github.com/Iron-Ham/phyling/internal/tool"
)

// Config configures a Searcher.
type Config struct {
	Catalog  *catalog.Catalog
	Database string     // Combined profile file searched against every genome
	Stage    tool.Stage // The search tool
	Format   string     // Hit table format the tool writes
	EValue   float64    // Hits with a larger E-value are dropped
	WorkDir  string
	Store    *cache.Store
}

// Result is the outcome of searching one genome.
type Result struct {
	Genome      string
	Hits        []Hit // Best hit per marker, sorted by marker
	Cached      bool  // The hit table was reused
	Candidates  int   // Rows in the hit table
	Unknown     int   // Candidates for markers outside the catalog
	BelowCutoff int   // Candidates failing the E-value or score cutoff
}

// Searcher runs the search tool against the whole catalog, once per genome.
type Searcher struct {
	cfg    Config
	parse  Parser
	logger *logging.Logger
}

// New creates a Searcher.
func New(cfg Config, logger *logging.Logger) (*Searcher, error) {
	if cfg.Catalog == nil || cfg.Stage == nil {
		return nil, fmt.Errorf("search: catalog and stage are required")
	}
	if cfg.Database == "" {
		return nil, fmt.Errorf("search: profile database is required")
	}
	parse, err := ParserFor(cfg.Format)
	if err != nil {
		return nil, err
	}
	if cfg.Store == nil {
		cfg.Store = cache.NewStore(false, logger)
	}
	if logger == nil {
		logger = logging.NopLogger()
	}
	return &Searcher{cfg: cfg, parse: parse, logger: logger}, nil
}

// TablePath returns where the hit table of genomeID is written.
func (s *Searcher) TablePath(genomeID string) string {
	ext := s.cfg.Format
	if ext == "" {
		ext = FormatDomtblout
	}
	return filepath.Join(s.cfg.WorkDir, "search", genomeID+"."+ext)
}

// Search runs the search tool for g, or reuses a valid hit table from a
// previous run, and returns the best hit per catalog marker. Every failure
// is a *errors.SearchError for g.
func (s *Searcher) Search(ctx context.Context, g *genome.Genome) (Result, error) {
	log := s.logger.WithGenome(g.ID).WithStage(string(tool.KindSearch))
	res := Result{Genome: g.ID}

	input, err := g.SearchInput(s.cfg.WorkDir)
	if err != nil {
		return res, errors.NewSearchError("cannot prepare genome", err).WithGenome(g.ID)
	}

	table := s.TablePath(g.ID)
	inputs := []string{input, s.cfg.Database}
	params := s.cfg.Stage.Signature()

	if s.cfg.Store.Valid(table, inputs, params) {
		res.Cached = true
		log.Debug("reusing hit table", "path", table)
	} else {
		if err := os.MkdirAll(filepath.Dir(table), 0755); err != nil {
			return res, errors.NewSearchError("cannot create search directory", err).WithGenome(g.ID)
		}
		_ = s.cfg.Store.Invalidate(table)

		err := s.cfg.Stage.Run(ctx, tool.Invocation{
			Input:   input,
			Output:  table,
			Profile: s.cfg.Database,
			Threads: 1,
		})
		if err != nil {
			return res, toSearchError(g.ID, err)
		}
		if err := s.cfg.Store.Commit(table, inputs, params); err != nil {
			log.Warn("cannot record hit table validity", "error", err)
		}
	}

	f, err := os.Open(table)
	if err != nil {
		return res, errors.NewSearchError("cannot read hit table", err).WithGenome(g.ID)
	}
	defer func() { _ = f.Close() }()

	candidates, err := s.parse(f, g.ID)
	if err != nil {
		_ = s.cfg.Store.Invalidate(table)
		return res, errors.NewSearchError("cannot parse hit table", err).WithGenome(g.ID)
	}

	res.Candidates = len(candidates)
	res.Hits, res.Unknown, res.BelowCutoff = s.Filter(candidates)

	for _, h := range res.Hits {
		if _, err := g.Sequence(h.SequenceID); err != nil {
			_ = s.cfg.Store.Invalidate(table)
			return res, errors.NewSearchError(
				fmt.Sprintf("hit for %s names sequence %q absent from the genome", h.Marker, h.SequenceID),
				errors.ErrMalformedOutput).WithGenome(g.ID)
		}
	}

	log.Info("genome searched",
		"candidates", res.Candidates,
		"hits", len(res.Hits),
		"unknown_markers", res.Unknown,
		"below_cutoff", res.BelowCutoff,
		"cached", res.Cached,
	)
	return res, nil
}

// Filter drops candidates for markers outside the catalog and candidates
// failing the E-value or the marker's score cutoff, then keeps the best
// hit per (genome, marker).
func (s *Searcher) Filter(candidates []Hit) (hits []Hit, unknown, below int) {
	kept := make([]Hit, 0, len(candidates))
	for _, h := range candidates {
		if !s.cfg.Catalog.Contains(h.Marker) {
			unknown++
			continue
		}
		if s.cfg.EValue > 0 && h.EValue > s.cfg.EValue {
			below++
			continue
		}
		if cutoff, ok := s.cfg.Catalog.Cutoff(h.Marker); ok && h.Score < cutoff {
			below++
			continue
		}
		kept = append(kept, h)
	}
	return BestPerMarker(kept), unknown, below
}

func toSearchError(genomeID string, err error) error {
	searchErr := errors.NewSearchError("search tool failed", err).WithGenome(genomeID)
	var stageErr *errors.StageError
	if errors.As(err, &stageErr) {
		searchErr.WithExitCode(stageErr.ExitCode).WithStderr(stageErr.Stderr).WithTimedOut(stageErr.TimedOut)
	}
	return searchErr
}
