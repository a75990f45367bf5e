// Package consensus turns the surviving per-marker results into one species
// tree, either by summarizing gene trees with a consensus tool or by
// inferring a single tree from the concatenated alignments.
package consensus

import (
	"bytes"
	"context"
	"fmt"
	"path/filepath"
	"slices"
	"strings"

	"github.com/Iron-Ham/phyling/internal/cache"
	"github.com/Iron-Ham/phyling/internal/catalog"
	"github.com/Iron-Ham/phyling/internal/errors"
	"github.com/Iron-Ham/phyling/internal/logging"
	"github.com/Iron-Ham/phyling/internal/newick"
	"github.com/Iron-Ham/phyling/internal/seqio"
	"github.com/Iron-Ham/phyling/internal/tool"
)

// Files written under <workdir>/consensus.
const (
	GeneTreesFile   = "gene_trees.nwk"
	ConcatFile      = "concat_alignments.faa"
	PartitionsFile  = "concat.partitions"
	SpeciesTreeFile = "species_tree.nwk"
)

// GeneTree is a successful per-marker tree.
type GeneTree struct {
	Marker catalog.MarkerID
	Path   string
}

// MarkerAlignment is a successful per-marker alignment.
type MarkerAlignment struct {
	Marker catalog.MarkerID
	Path   string
}

// Config holds the dependencies of a Builder.
type Config struct {
	WorkDir     string
	Summarizer  tool.Stage   // Consensus tool; required by Summarize
	TreeBuilder tool.Stage   // Tree tool; required by BuildConcatenated
	Store       *cache.Store // Optional; nil disables reuse
	MinTrees    int          // Minimum gene trees for Summarize (default 1)
}

// Result describes a species tree.
type Result struct {
	Path    string             // Species tree file
	Markers []catalog.MarkerID // Markers that contributed, sorted
	Leaves  []string           // Leaves of the species tree, sorted
	Cached  bool
}

// Builder builds species trees.
type Builder struct {
	cfg     Config
	logger  *logging.Logger
	threads int
}

// Option configures a Builder.
type Option func(*Builder)

// WithLogger sets the logger.
func WithLogger(logger *logging.Logger) Option {
	return func(b *Builder) {
		b.logger = logger
	}
}

// WithThreads sets the thread count of the final tool call.
func WithThreads(n int) Option {
	return func(b *Builder) {
		b.threads = n
	}
}

// New creates a Builder.
func New(cfg Config, opts ...Option) (*Builder, error) {
	if cfg.WorkDir == "" {
		return nil, errors.New("consensus: WorkDir is required")
	}
	if cfg.Summarizer == nil && cfg.TreeBuilder == nil {
		return nil, errors.New("consensus: a summarizer or a tree builder is required")
	}
	if cfg.Store == nil {
		cfg.Store = cache.NewStore(false, nil)
	}
	if cfg.MinTrees < 1 {
		cfg.MinTrees = 1
	}

	b := &Builder{cfg: cfg, threads: 1}
	for _, opt := range opts {
		opt(b)
	}
	if b.logger == nil {
		b.logger = logging.NopLogger()
	}
	if b.threads < 1 {
		b.threads = 1
	}
	return b, nil
}

// Dir returns the consensus working directory.
func (b *Builder) Dir() string {
	return filepath.Join(b.cfg.WorkDir, "consensus")
}

// Summarize writes every gene tree, sorted by marker, into one file and
// runs the consensus tool on it.
func (b *Builder) Summarize(ctx context.Context, trees []GeneTree) (Result, error) {
	if b.cfg.Summarizer == nil {
		return Result{}, errors.New("consensus: no summarizer configured")
	}
	if len(trees) < b.cfg.MinTrees {
		return Result{}, errors.NewValidationError(
			fmt.Sprintf("%d gene trees, need at least %d", len(trees), b.cfg.MinTrees)).
			WithField("min_trees")
	}

	sorted := slices.Clone(trees)
	slices.SortFunc(sorted, func(a, b GeneTree) int { return strings.Compare(string(a.Marker), string(b.Marker)) })

	var buf bytes.Buffer
	leaves := make(map[string]bool)
	markers := make([]catalog.MarkerID, 0, len(sorted))
	for _, gt := range sorted {
		tree, err := newick.ParseFile(gt.Path)
		if err != nil {
			return Result{}, fmt.Errorf("gene tree of %s: %w", gt.Marker, err)
		}
		for _, leaf := range tree.Leaves() {
			leaves[leaf] = true
		}
		buf.WriteString(tree.String())
		buf.WriteByte('\n')
		markers = append(markers, gt.Marker)
	}

	input := filepath.Join(b.Dir(), GeneTreesFile)
	if err := writeIfChanged(input, buf.Bytes()); err != nil {
		return Result{}, err
	}

	res, err := b.infer(ctx, b.cfg.Summarizer, input, setOf(leaves))
	if err != nil {
		return Result{}, err
	}
	res.Markers = markers
	b.logger.Info("gene trees summarized",
		"trees", len(sorted),
		"tool", b.cfg.Summarizer.Tool(),
		"cached", res.Cached,
	)
	return res, nil
}

// BuildConcatenated concatenates the alignments, writes the super-alignment
// and its partition file, and infers one tree from it.
func (b *Builder) BuildConcatenated(ctx context.Context, alignments []MarkerAlignment, genomes []string) (Result, error) {
	if b.cfg.TreeBuilder == nil {
		return Result{}, errors.New("consensus: no tree builder configured")
	}

	blocks := make([]Block, 0, len(alignments))
	for _, a := range alignments {
		aln, err := seqio.ReadAlignmentFile(a.Path)
		if err != nil {
			return Result{}, fmt.Errorf("alignment of %s: %w", a.Marker, err)
		}
		blocks = append(blocks, Block{Marker: a.Marker, Alignment: aln})
	}

	super, err := Concatenate(blocks, genomes)
	if err != nil {
		return Result{}, err
	}

	input := filepath.Join(b.Dir(), ConcatFile)
	if err := seqio.WriteFile(input, super.Alignment.Rows); err != nil {
		return Result{}, err
	}
	if err := writeIfChanged(filepath.Join(b.Dir(), PartitionsFile), []byte(super.PartitionText())); err != nil {
		return Result{}, err
	}

	res, err := b.infer(ctx, b.cfg.TreeBuilder, input, super.Alignment.IDs())
	if err != nil {
		return Result{}, err
	}
	for _, p := range super.Partitions {
		res.Markers = append(res.Markers, p.Marker)
	}
	b.logger.Info("concatenated tree built",
		"markers", len(super.Partitions),
		"columns", super.Alignment.Width,
		"tool", b.cfg.TreeBuilder.Tool(),
		"cached", res.Cached,
	)
	return res, nil
}

// infer runs st on input, or reuses its previous output, and validates
// that the species tree's leaves are a subset of allowed.
func (b *Builder) infer(ctx context.Context, st tool.Stage, input string, allowed []string) (Result, error) {
	out := filepath.Join(b.Dir(), SpeciesTreeFile)
	inputs := []string{input}
	params := st.Signature()
	res := Result{Path: out}

	if b.cfg.Store.Valid(out, inputs, params) {
		res.Cached = true
	} else {
		_ = b.cfg.Store.Invalidate(out)
		err := st.Run(ctx, tool.Invocation{Input: input, Output: out, Threads: b.threads})
		if err != nil {
			return Result{}, err
		}
	}

	tree, err := newick.ParseFile(out)
	if err != nil {
		_ = b.cfg.Store.Invalidate(out)
		return Result{}, errors.NewStageError(string(st.Kind()),
			fmt.Errorf("%w: %w", errors.ErrMalformedOutput, err)).WithTool(st.Tool())
	}
	res.Leaves = tree.Leaves()
	for _, leaf := range res.Leaves {
		if _, found := slices.BinarySearch(allowed, leaf); !found {
			_ = b.cfg.Store.Invalidate(out)
			return Result{}, errors.NewStageError(string(st.Kind()),
				errors.Wrapf(errors.ErrMalformedOutput, "species tree leaf %q is not an input genome", leaf)).
				WithTool(st.Tool())
		}
	}

	if !res.Cached {
		if err := b.cfg.Store.Commit(out, inputs, params); err != nil {
			b.logger.Warn("cannot record species tree validity", "error", err)
		}
	}
	return res, nil
}

func writeIfChanged(path string, data []byte) error {
	if cache.Unchanged(path, data) {
		return nil
	}
	return cache.WriteFile(path, data)
}

func setOf(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	slices.Sort(out)
	return out
}
