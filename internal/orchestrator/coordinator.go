// Package orchestrator drives a run through its lifecycle: search every
// genome, aggregate the hits into retained markers, run the per-marker
// pipelines, build the species tree and write the report.
//
// Both parallel phases use a bounded worker pool and end in a barrier.
// Units never share mutable state; their results are collected and sorted
// by ID before the next phase, so the outcome does not depend on
// scheduling.
package orchestrator

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sourcegraph/conc/pool"

	"github.com/Iron-Ham/phyling/internal/aggregate"
	"github.com/Iron-Ham/phyling/internal/cache"
	"github.com/Iron-Ham/phyling/internal/catalog"
	"github.com/Iron-Ham/phyling/internal/config"
	"github.com/Iron-Ham/phyling/internal/consensus"
	"github.com/Iron-Ham/phyling/internal/errors"
	"github.com/Iron-Ham/phyling/internal/event"
	"github.com/Iron-Ham/phyling/internal/genome"
	"github.com/Iron-Ham/phyling/internal/logging"
	"github.com/Iron-Ham/phyling/internal/pipeline"
	"github.com/Iron-Ham/phyling/internal/report"
	"github.com/Iron-Ham/phyling/internal/search"
	"github.com/Iron-Ham/phyling/internal/seqio"
	"github.com/Iron-Ham/phyling/internal/tool"
)

// SpeciesTreeFile is the species tree inside the output directory.
const SpeciesTreeFile = "species_tree.nwk"

// Config holds required dependencies for creating a Coordinator.
type Config struct {
	Catalog *catalog.Catalog
	Genomes []*genome.Genome
	Stages  *tool.Set
	Options Options
}

// Coordinator runs one phylogenomic run. A Coordinator is used for a
// single Run.
type Coordinator struct {
	cfg     Config
	opts    Options
	logger  *logging.Logger
	bus     *event.Bus
	runID   string
	store   *cache.Store
	machine *machine
	byID    map[string]*genome.Genome
}

// New validates cfg and creates a Coordinator in state LOADED.
// Configuration problems are reported as *errors.ConfigError before any
// tool is run.
func New(cfg Config, opts ...Option) (*Coordinator, error) {
	if cfg.Catalog == nil {
		return nil, errors.NewConfigError("no marker catalog", errors.ErrCatalogNotFound)
	}
	if cfg.Stages == nil || cfg.Stages.Search == nil || cfg.Stages.Align == nil || cfg.Stages.Tree == nil {
		return nil, errors.NewConfigError("search, align and tree tools are required", errors.ErrUnknownTool)
	}

	o := cfg.Options
	switch o.Strategy {
	case "":
		o.Strategy = config.StrategyConsensus
	case config.StrategyConsensus, config.StrategyConcatenation:
	default:
		return nil, errors.NewConfigError(fmt.Sprintf("unknown strategy %q", o.Strategy), errors.ErrInvalidInput).
			WithKey("consensus.strategy")
	}
	if o.Strategy == config.StrategyConsensus && cfg.Stages.Consensus == nil {
		return nil, errors.NewConfigError("consensus strategy needs a consensus tool", errors.ErrUnknownTool).
			WithKey("consensus.method")
	}
	if err := o.Policy.Validate(); err != nil {
		return nil, errors.NewConfigError(err.Error(), errors.ErrInvalidInput).WithKey("coverage")
	}
	if o.WorkDir == "" || o.OutputDir == "" {
		return nil, errors.NewConfigError("work and output directories are required", errors.ErrInvalidInput).
			WithKey("run.output_dir")
	}
	if o.Workers < 1 {
		o.Workers = runtime.NumCPU()
	}
	if err := genome.Require(cfg.Genomes, o.MinGenomes); err != nil {
		return nil, err
	}

	byID := make(map[string]*genome.Genome, len(cfg.Genomes))
	for _, g := range cfg.Genomes {
		if _, dup := byID[g.ID]; dup {
			return nil, errors.NewConfigError(fmt.Sprintf("genome %q given twice", g.ID), errors.ErrDuplicateGenome).
				WithPath(g.Path)
		}
		byID[g.ID] = g
	}

	c := &Coordinator{cfg: cfg, opts: o, byID: byID}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = logging.NopLogger()
	}
	if c.runID == "" {
		c.runID = uuid.NewString()
	}
	c.logger = c.logger.WithRun(c.runID)
	c.store = cache.NewStore(o.Cache, c.logger)
	c.machine = newMachine(c.runID, c.bus)
	return c, nil
}

// RunID returns the run identifier.
func (c *Coordinator) RunID() string {
	return c.runID
}

// State returns the current run state.
func (c *Coordinator) State() State {
	return c.machine.current()
}

// Transitions returns the state history of the run.
func (c *Coordinator) Transitions() []Transition {
	return c.machine.transitions()
}

// Run executes the run and writes the report, also when the run fails.
// The species tree is written only when every phase succeeds. The
// returned error is a *errors.TerminalError for the terminal conditions.
func (c *Coordinator) Run(ctx context.Context) (*report.Report, error) {
	rep := c.newReport()
	c.logger.Info("run started",
		"genomes", len(c.cfg.Genomes),
		"markers", c.cfg.Catalog.Len(),
		"strategy", c.opts.Strategy,
		"workers", c.opts.Workers,
	)

	err := c.run(ctx, rep)
	rep.FinishedAt = time.Now().UTC()

	if err == nil {
		rep.State = string(StateReported)
		rep.Transitions = reportTransitions(append(c.machine.transitions(),
			Transition{From: c.machine.current(), To: StateReported, At: rep.FinishedAt}))
		if err = report.Write(c.opts.OutputDir, rep); err == nil {
			if err = c.machine.to(StateReported); err == nil {
				c.logger.Info("run finished", "duration_ms", rep.Duration().Milliseconds())
				return rep, nil
			}
		}
	}

	c.fail(rep, err)
	if writeErr := report.Write(c.opts.OutputDir, rep); writeErr != nil {
		c.logger.Error("cannot write report", "error", writeErr)
		err = errors.Join(err, writeErr)
	}
	return rep, err
}

func (c *Coordinator) run(ctx context.Context, rep *report.Report) error {
	results, searched, err := c.searchPhase(ctx, rep)
	if err != nil {
		return err
	}
	if err := c.machine.to(StateSearched); err != nil {
		return err
	}

	// A genome whose search failed stays in the denominator as a gap in
	// every row.
	all := genome.IDs(c.cfg.Genomes)
	outcome, err := aggregate.Aggregate(c.cfg.Catalog, all, results, c.opts.Policy)
	if err != nil {
		return err
	}
	for _, id := range outcome.Retained {
		rep.Retained = append(rep.Retained, string(id))
	}
	for _, r := range outcome.Rejected {
		rep.Rejected = append(rep.Rejected, report.Rejection{
			Marker: string(r.Marker), Hits: r.Hits, Total: r.Total, Coverage: r.Coverage, Reason: r.Reason,
		})
	}
	c.logger.Info("markers aggregated", "retained", len(outcome.Retained), "rejected", len(outcome.Rejected))
	if len(outcome.Retained) == 0 {
		return c.terminal(errors.ConditionZeroRetained,
			fmt.Sprintf("no marker reached %g coverage of %d genomes", c.opts.Policy.MinFraction, len(all)))
	}
	if err := c.machine.to(StateAggregated); err != nil {
		return err
	}

	units, err := c.markerPhase(ctx, outcome, rep)
	if err != nil {
		return err
	}
	if err := c.machine.to(StatePerMarkerDone); err != nil {
		return err
	}

	if err := c.consensusPhase(ctx, units, searched, rep); err != nil {
		return err
	}
	return c.machine.to(StateConsensusBuilt)
}

// searchOutcome is the result of one search unit.
type searchOutcome struct {
	genome *genome.Genome
	result search.Result
	err    error
}

// searchPhase searches every genome in parallel and returns the best hits
// of each successfully searched genome and their sorted IDs.
func (c *Coordinator) searchPhase(ctx context.Context, rep *report.Report) (map[string][]search.Hit, []string, error) {
	db, err := c.cfg.Catalog.WriteDatabase(c.opts.WorkDir)
	if err != nil {
		return nil, nil, err
	}
	searcher, err := search.New(search.Config{
		Catalog:  c.cfg.Catalog,
		Database: db,
		Stage:    c.cfg.Stages.Search,
		Format:   c.opts.SearchFormat,
		EValue:   c.opts.EValue,
		WorkDir:  c.opts.WorkDir,
		Store:    c.store,
	}, c.logger)
	if err != nil {
		return nil, nil, err
	}

	p := pool.NewWithResults[searchOutcome]().WithMaxGoroutines(c.opts.Workers)
	for _, g := range c.cfg.Genomes {
		p.Go(func() searchOutcome {
			res, err := searcher.Search(ctx, g)
			reason := ""
			if err != nil {
				reason = err.Error()
			}
			c.bus.Publish(event.NewGenomeSearchedEvent(g.ID, err == nil, len(res.Hits), res.Cached, reason))
			return searchOutcome{genome: g, result: res, err: err}
		})
	}
	outcomes := p.Wait()
	slices.SortFunc(outcomes, func(a, b searchOutcome) int { return strings.Compare(a.genome.ID, b.genome.ID) })

	if err := ctx.Err(); err != nil {
		return nil, nil, errors.Wrap(errors.ErrCanceled, "search phase")
	}

	results := make(map[string][]search.Hit)
	var searched []string
	for _, o := range outcomes {
		if o.err != nil && !errors.IsRecoverable(o.err) {
			return nil, nil, o.err
		}
		entry := report.Genome{ID: o.genome.ID, Path: o.genome.Path, Status: report.StatusSucceeded}
		if o.err != nil {
			entry.Status = report.StatusFailed
			entry.Error = o.err.Error()
			entry.Retryable = errors.IsRetryable(o.err)
			var searchErr *errors.SearchError
			if errors.As(o.err, &searchErr) {
				entry.ExitCode = exitCode(searchErr.ExitCode)
				entry.Stderr = searchErr.Stderr
			}
			c.logger.WithGenome(o.genome.ID).Warn("genome excluded", "error", o.err.Error())
		} else {
			entry.Hits = len(o.result.Hits)
			entry.Cached = o.result.Cached
			results[o.genome.ID] = o.result.Hits
			searched = append(searched, o.genome.ID)
		}
		rep.Genomes = append(rep.Genomes, entry)
	}

	if len(searched) == 0 {
		return nil, nil, c.terminal(errors.ConditionZeroGenomes, "no genome could be searched")
	}
	return results, searched, nil
}

// markerPhase runs the per-marker pipeline of every retained marker in
// parallel and returns the results sorted by marker.
func (c *Coordinator) markerPhase(ctx context.Context, outcome *aggregate.Outcome, rep *report.Report) ([]pipeline.Result, error) {
	pcfg := pipeline.Config{
		WorkDir: c.opts.WorkDir,
		Catalog: c.cfg.Catalog,
		Align:   c.cfg.Stages.Align,
		Trim:    c.cfg.Stages.Trim,
		Store:   c.store,
	}
	if c.opts.Strategy == config.StrategyConsensus {
		pcfg.Tree = c.cfg.Stages.Tree
	}
	pl, err := pipeline.New(pcfg, pipeline.WithLogger(c.logger))
	if err != nil {
		return nil, err
	}

	p := pool.NewWithResults[pipeline.Result]().WithMaxGoroutines(c.opts.Workers)
	for _, id := range outcome.Retained {
		row, _ := outcome.Matrix.Row(id)
		p.Go(func() pipeline.Result {
			var res pipeline.Result
			records, err := c.sequences(row)
			if err != nil {
				res = pipeline.Result{Marker: id, Err: errors.NewStageError(string(pipeline.StageWrite), err).WithMarker(string(id))}
			} else {
				res = pl.Process(ctx, id, records)
			}
			c.bus.Publish(event.NewMarkerFinishedEvent(string(id), res.Success(), res.FailedStage(), res.Duration))
			return res
		})
	}
	units := p.Wait()
	slices.SortFunc(units, func(a, b pipeline.Result) int { return strings.Compare(string(a.Marker), string(b.Marker)) })

	if err := ctx.Err(); err != nil {
		return nil, errors.Wrap(errors.ErrCanceled, "per-marker phase")
	}

	succeeded := 0
	for _, u := range units {
		row, _ := outcome.Matrix.Row(u.Marker)
		entry := report.Marker{
			ID:         string(u.Marker),
			Status:     report.StatusSucceeded,
			Genomes:    row.Count(),
			Missing:    row.Missing(),
			Width:      u.Width,
			Cached:     u.Cached,
			DurationMS: u.Duration.Milliseconds(),
		}
		if u.Err != nil {
			entry.Status = report.StatusFailed
			entry.Width = 0
			entry.Stage = u.Err.Stage
			entry.Tool = u.Err.Tool
			entry.ExitCode = exitCode(u.Err.ExitCode)
			entry.TimedOut = u.Err.TimedOut
			entry.Retryable = errors.IsRetryable(u.Err)
			entry.Stderr = u.Err.Stderr
			entry.Error = u.Err.Error()
		} else {
			succeeded++
		}
		rep.Markers = append(rep.Markers, entry)
	}
	c.logger.Info("per-marker pipelines finished", "succeeded", succeeded, "failed", len(units)-succeeded)

	if succeeded == 0 {
		return nil, c.terminal(errors.ConditionZeroSucceeded,
			fmt.Sprintf("all %d retained markers failed their pipeline", len(units)))
	}
	return units, nil
}

// sequences collects the hit sequence of every genome in row, keyed by
// genome ID.
func (c *Coordinator) sequences(row *aggregate.Row) ([]seqio.Record, error) {
	hits := row.Hits()
	records := make([]seqio.Record, 0, len(hits))
	for _, h := range hits {
		g, ok := c.byID[h.Genome]
		if !ok {
			return nil, errors.NewNotFoundError("genome", h.Genome)
		}
		seq, err := g.Sequence(h.SequenceID)
		if err != nil {
			return nil, err
		}
		records = append(records, seqio.Record{ID: h.Genome, Seq: seq})
	}
	return records, nil
}

// consensusPhase builds the species tree from the successful units and
// copies it into the output directory.
func (c *Coordinator) consensusPhase(ctx context.Context, units []pipeline.Result, genomes []string, rep *report.Report) error {
	builder, err := consensus.New(consensus.Config{
		WorkDir:     c.opts.WorkDir,
		Summarizer:  c.cfg.Stages.Consensus,
		TreeBuilder: c.cfg.Stages.Tree,
		Store:       c.store,
		MinTrees:    c.opts.MinTrees,
	}, consensus.WithLogger(c.logger), consensus.WithThreads(c.opts.Workers))
	if err != nil {
		return err
	}

	var res consensus.Result
	if c.opts.Strategy == config.StrategyConcatenation {
		var alignments []consensus.MarkerAlignment
		for _, u := range units {
			if u.Success() {
				alignments = append(alignments, consensus.MarkerAlignment{Marker: u.Marker, Path: u.Alignment})
			}
		}
		res, err = builder.BuildConcatenated(ctx, alignments, genomes)
	} else {
		var trees []consensus.GeneTree
		for _, u := range units {
			if u.Success() {
				trees = append(trees, consensus.GeneTree{Marker: u.Marker, Path: u.Tree})
			}
		}
		res, err = builder.Summarize(ctx, trees)
	}
	if err != nil {
		if ctx.Err() != nil {
			return errors.Wrap(errors.ErrCanceled, "species tree")
		}
		return c.terminal(errors.ConditionConsensus, "species tree construction failed").WithCause(err)
	}

	out, err := c.publish(res.Path, builder)
	if err != nil {
		return err
	}

	tree, err := os.ReadFile(out)
	if err != nil {
		return err
	}
	markers := make([]string, len(res.Markers))
	for i, m := range res.Markers {
		markers[i] = string(m)
	}
	rep.SpeciesTree = &report.SpeciesTree{
		Path:    out,
		Newick:  firstLine(string(tree)),
		Leaves:  res.Leaves,
		Markers: markers,
		Cached:  res.Cached,
	}
	c.bus.Publish(event.NewConsensusBuiltEvent(c.opts.Strategy, len(res.Markers), out))
	return nil
}

// publish copies the species tree, and for concatenation the
// super-alignment and its partitions, into the output directory.
func (c *Coordinator) publish(speciesTree string, builder *consensus.Builder) (string, error) {
	files := map[string]string{speciesTree: filepath.Join(c.opts.OutputDir, SpeciesTreeFile)}
	if c.opts.Strategy == config.StrategyConcatenation {
		for _, name := range []string{consensus.ConcatFile, consensus.PartitionsFile} {
			files[filepath.Join(builder.Dir(), name)] = filepath.Join(c.opts.OutputDir, name)
		}
	}
	for src, dst := range files {
		data, err := os.ReadFile(src)
		if err != nil {
			return "", fmt.Errorf("publish %s: %w", filepath.Base(dst), err)
		}
		if cache.Unchanged(dst, data) {
			continue
		}
		if err := cache.WriteFile(dst, data); err != nil {
			return "", err
		}
	}
	return files[speciesTree], nil
}

// terminal builds the terminal error for cond in the current state.
func (c *Coordinator) terminal(cond errors.Condition, msg string) *errors.TerminalError {
	return errors.NewTerminalError(cond, msg).WithState(string(c.machine.current()))
}

// fail moves the run to FAILED and records why.
func (c *Coordinator) fail(rep *report.Report, err error) {
	from := c.machine.current()
	failure := &report.Failure{State: string(from), Message: err.Error()}
	var term *errors.TerminalError
	if errors.As(err, &term) {
		failure.Condition = string(term.Condition)
	}

	if !from.IsTerminal() {
		_ = c.machine.to(StateFailed)
	}
	rep.State = string(StateFailed)
	rep.Failure = failure
	rep.SpeciesTree = nil
	if err := os.Remove(filepath.Join(c.opts.OutputDir, SpeciesTreeFile)); err == nil {
		c.logger.Debug("removed species tree of an earlier run")
	}
	rep.Transitions = reportTransitions(c.machine.transitions())
	c.logger.Error("run failed", "state", string(from), "condition", failure.Condition, "error", err.Error())
}

func (c *Coordinator) newReport() *report.Report {
	st := c.cfg.Stages
	settings := report.Settings{
		MinCoverage:         c.opts.Policy.MinFraction,
		MinGenomesPerMarker: c.opts.Policy.MinGenomes,
		EValue:              c.opts.EValue,
		Workers:             c.opts.Workers,
		Search:              st.Search.Tool(),
		Align:               st.Align.Tool(),
		Tree:                st.Tree.Tool(),
		Cache:               c.opts.Cache,
	}
	if st.Trim != nil {
		settings.Trim = st.Trim.Tool()
	}
	if st.Consensus != nil && c.opts.Strategy == config.StrategyConsensus {
		settings.Consensus = st.Consensus.Tool()
	}

	return &report.Report{
		RunID:     c.runID,
		State:     string(c.machine.current()),
		Strategy:  c.opts.Strategy,
		StartedAt: time.Now().UTC(),
		Catalog: report.Catalog{
			Name:    c.cfg.Catalog.Name,
			Version: c.cfg.Catalog.Version,
			Path:    c.cfg.Catalog.Path,
			Markers: c.cfg.Catalog.Len(),
		},
		Settings: settings,
	}
}

func reportTransitions(history []Transition) []report.Transition {
	out := make([]report.Transition, len(history))
	for i, t := range history {
		out[i] = report.Transition{From: string(t.From), To: string(t.To), At: t.At}
	}
	return out
}

// exitCode returns nil for the "not set" code -1.
func exitCode(code int) *int {
	if code < 0 {
		return nil
	}
	return &code
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return strings.TrimSpace(s[:i])
	}
	return s
}
