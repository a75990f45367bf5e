// Package genome discovers the input proteomes of a run and gives random
// access to their protein records.
package genome

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/gobwas/glob"

	"github.com/Iron-Ham/phyling/internal/errors"
	"github.com/Iron-Ham/phyling/internal/seqio"
)

// DefaultIncludePatterns select proteome files inside an input directory.
var DefaultIncludePatterns = []string{"*.faa", "*.fa", "*.fasta", "*.pep", "*.faa.gz", "*.fa.gz", "*.fasta.gz", "*.pep.gz"}

// extensions stripped from file names to form genome IDs, longest first.
var extensions = []string{".faa.gz", ".fasta.gz", ".pep.gz", ".fa.gz", ".fasta", ".faa", ".pep", ".fa", ".gz"}

// Genome is one input proteome. Its records are read on first access and
// never change during a run.
type Genome struct {
	ID   string
	Path string

	once    sync.Once
	records map[string][]byte
	order   []string
	err     error
}

// New creates a Genome for the file at path.
func New(path string) *Genome {
	return &Genome{ID: IDFromPath(path), Path: path}
}

// IDFromPath derives a genome ID from a file name by dropping FASTA and
// gzip extensions.
func IDFromPath(path string) string {
	base := filepath.Base(path)
	lower := strings.ToLower(base)
	for _, ext := range extensions {
		if strings.HasSuffix(lower, ext) && len(base) > len(ext) {
			return base[:len(base)-len(ext)]
		}
	}
	return base
}

func (g *Genome) load() error {
	g.once.Do(func() {
		recs, err := seqio.ReadFile(g.Path)
		if err != nil {
			g.err = errors.NewConfigError("cannot read genome", errors.Wrap(err, g.ID)).WithPath(g.Path)
			return
		}
		g.records = make(map[string][]byte, len(recs))
		for _, r := range recs {
			if _, dup := g.records[r.ID]; dup {
				g.err = errors.NewConfigError(fmt.Sprintf("duplicate sequence ID %q", r.ID), errors.ErrInvalidInput).
					WithPath(g.Path)
				return
			}
			g.records[r.ID] = r.Seq
			g.order = append(g.order, r.ID)
		}
	})
	return g.err
}

// Sequence returns the residues of the record with the given ID.
func (g *Genome) Sequence(id string) ([]byte, error) {
	if err := g.load(); err != nil {
		return nil, err
	}
	seq, ok := g.records[id]
	if !ok {
		return nil, errors.NewNotFoundError("sequence", id)
	}
	return seq, nil
}

// Len returns the number of protein records.
func (g *Genome) Len() (int, error) {
	if err := g.load(); err != nil {
		return 0, err
	}
	return len(g.order), nil
}

// SearchInput returns a plain FASTA path the search tool can read. Gzipped
// inputs are decompressed once into workDir/genomes.
func (g *Genome) SearchInput(workDir string) (string, error) {
	if !strings.HasSuffix(strings.ToLower(g.Path), ".gz") {
		return g.Path, nil
	}

	out := filepath.Join(workDir, "genomes", g.ID+".faa")
	if err := g.load(); err != nil {
		return "", err
	}
	records := make([]seqio.Record, len(g.order))
	for i, id := range g.order {
		records[i] = seqio.Record{ID: id, Seq: g.records[id]}
	}
	if err := seqio.WriteFile(out, records); err != nil {
		return "", fmt.Errorf("decompress genome %s: %w", g.ID, err)
	}
	return out, nil
}

// Discover collects genomes from explicit file paths and from files in dir
// whose base name matches one of the include patterns. Genomes are returned
// sorted by ID. Two inputs with the same ID are a configuration error.
func Discover(paths []string, dir string, include []string) ([]*Genome, error) {
	files := slices.Clone(paths)

	if dir != "" {
		found, err := scanDir(dir, include)
		if err != nil {
			return nil, err
		}
		files = append(files, found...)
	}

	seen := make(map[string]string, len(files))
	genomes := make([]*Genome, 0, len(files))
	for _, f := range files {
		info, err := os.Stat(f)
		if err != nil {
			return nil, errors.NewConfigError("cannot read genome", errors.ErrInvalidInput).WithPath(f)
		}
		if info.IsDir() {
			return nil, errors.NewConfigError("genome input is a directory", errors.ErrInvalidInput).WithPath(f)
		}

		g := New(f)
		if prev, dup := seen[g.ID]; dup {
			if sameFile(prev, f) {
				continue
			}
			return nil, errors.NewConfigError(
				fmt.Sprintf("genome ID %q used by %s and %s", g.ID, prev, f),
				errors.ErrDuplicateGenome).WithPath(f)
		}
		seen[g.ID] = f
		genomes = append(genomes, g)
	}

	slices.SortFunc(genomes, func(a, b *Genome) int { return strings.Compare(a.ID, b.ID) })
	return genomes, nil
}

// Require checks that at least minimum genomes were given.
func Require(genomes []*Genome, minimum int) error {
	if len(genomes) == 0 {
		return errors.NewConfigError("no input genomes", errors.ErrNoGenomes)
	}
	if len(genomes) < minimum {
		return errors.NewConfigError(
			fmt.Sprintf("%d genomes given, at least %d required", len(genomes), minimum),
			errors.ErrTooFewGenomes).WithKey("run.min_genomes")
	}
	return nil
}

// IDs returns the genome IDs in order.
func IDs(genomes []*Genome) []string {
	ids := make([]string, len(genomes))
	for i, g := range genomes {
		ids[i] = g.ID
	}
	return ids
}

func scanDir(dir string, include []string) ([]string, error) {
	if len(include) == 0 {
		include = DefaultIncludePatterns
	}
	matchers := make([]glob.Glob, 0, len(include))
	for _, pattern := range include {
		g, err := glob.Compile(pattern)
		if err != nil {
			return nil, errors.NewConfigError(fmt.Sprintf("invalid include pattern %q", pattern), errors.ErrInvalidInput).
				WithKey("include")
		}
		matchers = append(matchers, g)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.NewConfigError("cannot read input directory", errors.ErrInvalidInput).WithPath(dir)
	}

	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		for _, m := range matchers {
			if m.Match(e.Name()) {
				files = append(files, filepath.Join(dir, e.Name()))
				break
			}
		}
	}
	slices.Sort(files)
	return files, nil
}

func sameFile(a, b string) bool {
	ia, errA := os.Stat(a)
	ib, errB := os.Stat(b)
	return errA == nil && errB == nil && os.SameFile(ia, ib)
}
