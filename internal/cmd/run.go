package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/Iron-Ham/phyling/internal/catalog"
	"github.com/Iron-Ham/phyling/internal/config"
	"github.com/Iron-Ham/phyling/internal/errors"
	"github.com/Iron-Ham/phyling/internal/event"
	"github.com/Iron-Ham/phyling/internal/filelock"
	"github.com/Iron-Ham/phyling/internal/genome"
	"github.com/Iron-Ham/phyling/internal/logging"
	"github.com/Iron-Ham/phyling/internal/orchestrator"
	"github.com/Iron-Ham/phyling/internal/report"
	"github.com/Iron-Ham/phyling/internal/tool"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/term"
)

// maxDrawnLeaves bounds the tree drawing in the terminal summary.
const maxDrawnLeaves = 60

var runCmd = &cobra.Command{
	Use:   "run [genome.faa ...]",
	Short: "Build a species tree from genome proteomes",
	Long: `Search every genome against the marker catalog, keep the markers found
in enough genomes, run their per-marker pipelines and build the species tree.

Genomes are given as files, as a directory (--input-dir) filtered by
--include patterns, or both. Intermediate files are kept in the work
directory and reused by later runs whose inputs and settings match.

Examples:
  # All proteomes in a directory with the default catalog settings
  phyling run -d proteomes/ -m markers/

  # Concatenation strategy with 16 workers
  phyling run -d proteomes/ -m markers/ --strategy concatenation -t 16

  # Only gzipped proteomes, printing progress
  phyling run -d proteomes/ --include '*.faa.gz' -m markers/ -v`,
	RunE: runRun,
}

var (
	runInputDir string
	runInclude  []string
	runNoCache  bool
	runVerbose  bool
)

func init() {
	rootCmd.AddCommand(runCmd)

	flags := runCmd.Flags()
	flags.StringVarP(&runInputDir, "input-dir", "d", "", "Directory of genome proteomes")
	flags.StringSliceVar(&runInclude, "include", nil, "Glob patterns selecting files in --input-dir (default: *.faa, *.fasta, *.fa and their .gz)")
	flags.BoolVar(&runNoCache, "no-cache", false, "Recompute every intermediate file")
	flags.BoolVarP(&runVerbose, "verbose", "v", false, "Print one line per finished genome and marker")

	flags.StringP("catalog", "m", "", "Marker catalog: directory of .hmm profiles or a combined .hmm file")
	flags.StringP("output", "o", "", "Output directory (default: phyling_out)")
	flags.String("work-dir", "", "Work directory for intermediates (default: <output>/work)")
	flags.IntP("threads", "t", 0, "Worker pool size (default: number of CPUs)")
	flags.String("strategy", "", "Species tree strategy: consensus or concatenation")
	flags.String("align", "", "Alignment method: hmmalign, muscle or mafft")
	flags.String("tree", "", "Gene tree method: veryfasttree, fasttree or iqtree")
	flags.Bool("trim", true, "Trim alignments before tree inference")
	flags.Float64("min-coverage", 0, "Fraction of genomes a marker must be found in")
	flags.Float64("evalue", 0, "E-value cutoff for marker hits")

	for key, flag := range map[string]string{
		"catalog.path":          "catalog",
		"run.output_dir":        "output",
		"run.work_dir":          "work-dir",
		"run.workers":           "threads",
		"consensus.strategy":    "strategy",
		"align.method":          "align",
		"tree.method":           "tree",
		"trim.enabled":          "trim",
		"coverage.min_fraction": "min-coverage",
		"search.evalue":         "evalue",
	} {
		_ = viper.BindPFlag(key, flags.Lookup(flag))
	}
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if runNoCache {
		cfg.Cache.Enabled = false
	}

	// Everything that can be checked without running a tool is checked first.
	genomes, err := genome.Discover(args, runInputDir, runInclude)
	if err != nil {
		return err
	}
	cat, err := catalog.Load(cfg.Catalog.Path)
	if err != nil {
		return err
	}
	opts := orchestrator.OptionsFromConfig(cfg)

	logger, err := newRunLogger(cfg, opts.WorkDir)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Close() }()

	stages, err := tool.NewFromConfig(cfg, tool.NewExecutor(cfg.Tools.Timeout(), logger))
	if err != nil {
		return err
	}
	if err := stages.Preflight(); err != nil {
		return err
	}

	bus := event.NewBus(logger)
	if runVerbose {
		bus.SubscribeAll(progressPrinter(cmd.ErrOrStderr()))
	}

	coord, err := orchestrator.New(orchestrator.Config{
		Catalog: cat,
		Genomes: genomes,
		Stages:  stages,
		Options: opts,
	}, orchestrator.WithLogger(logger), orchestrator.WithBus(bus))
	if err != nil {
		return err
	}

	lock, err := filelock.Acquire(opts.WorkDir, coord.RunID())
	if err != nil {
		return errors.NewConfigError("work directory is in use", err).WithPath(opts.WorkDir)
	}
	defer func() {
		if err := lock.Release(); err != nil {
			logger.Warn("cannot release work directory", "error", err)
		}
	}()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fmt.Fprintf(cmd.ErrOrStderr(), "Run %s: %d genomes, %d markers, %s strategy\n",
		coord.RunID(), len(genomes), cat.Len(), opts.Strategy)

	rep, runErr := coord.Run(ctx)
	if rep != nil {
		summary := report.SummaryOptions{MaxTreeLeaves: maxDrawnLeaves}
		if f, ok := cmd.OutOrStdout().(*os.File); ok && term.IsTerminal(int(f.Fd())) {
			if width, _, err := term.GetSize(int(f.Fd())); err == nil {
				summary.Width = width
			}
		}
		if err := report.WriteSummary(cmd.OutOrStdout(), rep, summary); err != nil {
			logger.Warn("cannot print summary", "error", err)
		}
	}
	if runErr != nil && !errors.IsUserFacing(runErr) && !errors.Is(runErr, errors.ErrCanceled) {
		fmt.Fprintf(cmd.ErrOrStderr(), "Unexpected failure, details in the run log: phyling logs --work-dir %s --run %s --level error\n",
			opts.WorkDir, coord.RunID())
	}
	return runErr
}

// newRunLogger opens the run log in workDir, or a discarding logger when
// file logging is disabled.
func newRunLogger(cfg *config.Config, workDir string) (*logging.Logger, error) {
	if !cfg.Logging.Enabled {
		return logging.NopLogger(), nil
	}
	return logging.NewLoggerWithRotation(workDir, logging.ParseLevel(cfg.Logging.Level), logging.RotationConfig{
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		Compress:   true,
	})
}
