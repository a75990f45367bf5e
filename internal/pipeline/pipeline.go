package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/Iron-Ham/phyling/internal/cache"
	"github.com/Iron-Ham/phyling/internal/catalog"
	"github.com/Iron-Ham/phyling/internal/errors"
	"github.com/Iron-Ham/phyling/internal/logging"
	"github.com/Iron-Ham/phyling/internal/newick"
	"github.com/Iron-Ham/phyling/internal/seqio"
	"github.com/Iron-Ham/phyling/internal/tool"
)

// Pipeline runs per-marker units. It holds no per-unit state, so Process
// may be called concurrently for different markers.
type Pipeline struct {
	cfg  Config
	pcfg pipelineConfig
}

// New creates a Pipeline with the given configuration and options.
func New(cfg Config, opts ...Option) (*Pipeline, error) {
	if cfg.WorkDir == "" {
		return nil, errors.New("pipeline: WorkDir is required")
	}
	if cfg.Catalog == nil {
		return nil, errors.New("pipeline: Catalog is required")
	}
	if cfg.Align == nil {
		return nil, errors.New("pipeline: Align stage is required")
	}
	if cfg.Store == nil {
		cfg.Store = cache.NewStore(false, nil)
	}

	pc := pipelineConfig{threads: 1}
	for _, opt := range opts {
		opt(&pc)
	}
	if pc.logger == nil {
		pc.logger = logging.NopLogger()
	}
	if pc.threads < 1 {
		pc.threads = 1
	}

	return &Pipeline{cfg: cfg, pcfg: pc}, nil
}

// Dir returns the directory holding the files of marker.
func (p *Pipeline) Dir(marker catalog.MarkerID) string {
	return filepath.Join(p.cfg.WorkDir, "markers", marker.FileName())
}

// Path returns the file of marker with the given suffix.
func (p *Pipeline) Path(marker catalog.MarkerID, suffix string) string {
	return filepath.Join(p.Dir(marker), marker.FileName()+suffix)
}

// Process runs every configured stage for marker over records, one record
// per genome with the genome ID as record ID. Failures are reported in
// the Result.
func (p *Pipeline) Process(ctx context.Context, marker catalog.MarkerID, records []seqio.Record) Result {
	start := time.Now()
	res := Result{Marker: marker}
	log := p.pcfg.logger.WithMarker(string(marker))

	finish := func(err *errors.StageError) Result {
		res.Duration = time.Since(start)
		if err != nil {
			res.Err = err.WithMarker(string(marker))
			res.Cached = false
			log.WithStage(err.Stage).Warn("marker failed",
				"error", err.Error(),
				"exit_code", err.ExitCode,
				"timed_out", err.TimedOut,
			)
			return res
		}
		log.Info("marker finished",
			"genomes", len(res.Genomes),
			"width", res.Width,
			"cached", res.Cached,
			"duration_ms", res.Duration.Milliseconds(),
		)
		return res
	}

	input, genomes, err := p.writeInput(marker, records)
	if err != nil {
		return finish(asStageError(StageWrite, "", err))
	}
	res.Genomes = genomes
	res.Cached = true

	// Align.
	aligned := p.Path(marker, AlignedSuffix)
	profile, err := p.cfg.Catalog.WriteProfile(p.cfg.WorkDir, marker)
	if err != nil {
		return finish(asStageError(StageAlign, p.cfg.Align.Tool(), err))
	}
	cached, width, err := p.alignment(ctx, log, p.cfg.Align, tool.Invocation{
		Input:   input,
		Output:  aligned,
		Profile: profile,
		Threads: p.pcfg.threads,
	}, []string{input, profile}, genomes)
	if err != nil {
		return finish(asStageError(StageAlign, p.cfg.Align.Tool(), err))
	}
	res.Cached = res.Cached && cached
	res.Alignment, res.Width = aligned, width

	// Trim.
	if p.cfg.Trim != nil {
		trimmed := p.Path(marker, TrimmedSuffix)
		cached, width, err := p.alignment(ctx, log, p.cfg.Trim, tool.Invocation{
			Input:   aligned,
			Output:  trimmed,
			Threads: p.pcfg.threads,
		}, []string{aligned}, genomes)
		if err != nil {
			return finish(asStageError(StageTrim, p.cfg.Trim.Tool(), err))
		}
		res.Cached = res.Cached && cached
		res.Alignment, res.Width = trimmed, width
	}

	// Tree.
	if p.cfg.Tree != nil {
		treePath := p.Path(marker, TreeSuffix)
		cached, err := p.step(ctx, log, p.cfg.Tree, tool.Invocation{
			Input:   res.Alignment,
			Output:  treePath,
			Threads: p.pcfg.threads,
		}, []string{res.Alignment}, func(path string) error {
			return checkTree(path, genomes)
		})
		if err != nil {
			return finish(asStageError(StageTree, p.cfg.Tree.Tool(), err))
		}
		res.Cached = res.Cached && cached
		res.Tree = treePath
	}

	return finish(nil)
}

// writeInput writes the unaligned sequences sorted by genome ID.
func (p *Pipeline) writeInput(marker catalog.MarkerID, records []seqio.Record) (string, []string, error) {
	if len(records) == 0 {
		return "", nil, errors.NewValidationError("marker has no sequences").WithField(string(marker))
	}

	sorted := slices.Clone(records)
	slices.SortFunc(sorted, func(a, b seqio.Record) int { return strings.Compare(a.ID, b.ID) })
	genomes := make([]string, len(sorted))
	for i, rec := range sorted {
		if i > 0 && rec.ID == sorted[i-1].ID {
			return "", nil, errors.NewValidationError("genome contributes two sequences").
				WithField(string(marker)).WithValue(rec.ID)
		}
		if len(rec.Seq) == 0 {
			return "", nil, errors.NewValidationError("empty sequence").
				WithField(string(marker)).WithValue(rec.ID)
		}
		genomes[i] = rec.ID
	}

	path := p.Path(marker, InputSuffix)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return "", nil, fmt.Errorf("create marker directory: %w", err)
	}
	if err := seqio.WriteFile(path, sorted); err != nil {
		return "", nil, err
	}
	return path, genomes, nil
}

// alignment runs a stage that produces an alignment of exactly genomes and
// rewrites its output in normalized, sorted form.
func (p *Pipeline) alignment(ctx context.Context, log *logging.Logger, st tool.Stage, inv tool.Invocation, inputs, genomes []string) (bool, int, error) {
	width := 0
	cached, err := p.step(ctx, log, st, inv, inputs, func(path string) error {
		aln, err := checkAlignment(path, genomes)
		if err != nil {
			return err
		}
		width = aln.Width
		return seqio.WriteFile(path, aln.Rows)
	})
	if err != nil {
		return false, 0, err
	}
	if cached {
		aln, err := seqio.ReadAlignmentFile(inv.Output)
		if err != nil {
			return false, 0, err
		}
		width = aln.Width
	}
	return cached, width, nil
}

// step reuses inv.Output when its sidecar matches and otherwise runs st,
// validates the output with check and commits the sidecar.
func (p *Pipeline) step(ctx context.Context, log *logging.Logger, st tool.Stage, inv tool.Invocation, inputs []string, check func(path string) error) (bool, error) {
	log = log.WithStage(string(st.Kind()))
	params := st.Signature()

	if p.cfg.Store.Valid(inv.Output, inputs, params) {
		log.Debug("reusing stage output", "path", inv.Output)
		return true, nil
	}
	_ = p.cfg.Store.Invalidate(inv.Output)

	started := time.Now()
	if err := st.Run(ctx, inv); err != nil {
		return false, err
	}
	if check != nil {
		if err := check(inv.Output); err != nil {
			_ = os.Remove(inv.Output)
			return false, err
		}
	}
	if err := p.cfg.Store.Commit(inv.Output, inputs, params); err != nil {
		log.Warn("cannot record stage output validity", "error", err)
	}
	log.Debug("stage finished", "tool", st.Tool(), "duration_ms", time.Since(started).Milliseconds())
	return false, nil
}

// checkAlignment reads an aligner or trimmer output and requires exactly
// one row per genome and at least one column.
func checkAlignment(path string, genomes []string) (*seqio.Alignment, error) {
	records, err := seqio.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errors.ErrMalformedOutput, err)
	}
	if len(records) > 0 && !slices.ContainsFunc(records, func(r seqio.Record) bool { return len(r.Seq) > 0 }) {
		return nil, errors.Wrap(errors.ErrEmptyOutput, "every alignment column was removed")
	}
	for i := range records {
		records[i].Seq = seqio.NormalizeResidues(records[i].Seq)
	}

	aln, err := seqio.NewAlignment(records)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errors.ErrMalformedOutput, err)
	}
	if ids := aln.IDs(); !slices.Equal(ids, genomes) {
		return nil, errors.Wrapf(errors.ErrMalformedOutput,
			"alignment rows %v do not match genomes %v", ids, genomes)
	}
	return aln, nil
}

// checkTree requires a parsable newick tree whose leaves are a non-empty
// subset of genomes.
func checkTree(path string, genomes []string) error {
	tree, err := newick.ParseFile(path)
	if err != nil {
		return fmt.Errorf("%w: %w", errors.ErrMalformedOutput, err)
	}
	leaves := tree.Leaves()
	if len(leaves) == 0 {
		return errors.Wrap(errors.ErrMalformedOutput, "gene tree has no leaves")
	}
	for _, leaf := range leaves {
		if _, found := slices.BinarySearch(genomes, leaf); !found {
			return errors.Wrapf(errors.ErrMalformedOutput, "gene tree leaf %q is not an input genome", leaf)
		}
	}
	return nil
}

// asStageError returns err as a *errors.StageError for stage.
func asStageError(stage Stage, toolName string, err error) *errors.StageError {
	var stageErr *errors.StageError
	if errors.As(err, &stageErr) {
		return stageErr
	}
	se := errors.NewStageError(string(stage), err)
	if toolName != "" {
		se = se.WithTool(toolName)
	}
	if errors.Is(err, errors.ErrTimeout) {
		se = se.WithTimedOut(true)
	}
	return se
}
