package orchestrator

import (
	"github.com/Iron-Ham/phyling/internal/aggregate"
	"github.com/Iron-Ham/phyling/internal/config"
	"github.com/Iron-Ham/phyling/internal/event"
	"github.com/Iron-Ham/phyling/internal/logging"
)

// Options are the run parameters. They are threaded explicitly through the
// coordinator into every phase.
type Options struct {
	Strategy     string           // config.StrategyConsensus or config.StrategyConcatenation
	Policy       aggregate.Policy // Marker retention threshold
	SearchFormat string           // Hit table format of the search tool
	EValue       float64          // Global E-value cutoff
	Workers      int              // Worker pool size for both parallel phases
	MinGenomes   int              // Minimum number of input genomes
	MinTrees     int              // Minimum gene trees for the consensus strategy
	WorkDir      string
	OutputDir    string
	Cache        bool // Reuse intermediates with a matching validity record
}

// OptionsFromConfig derives run options from configuration.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		Strategy: cfg.Consensus.Strategy,
		Policy: aggregate.Policy{
			MinFraction: cfg.Coverage.MinFraction,
			MinGenomes:  cfg.Coverage.MinGenomesPerMarker,
		},
		SearchFormat: cfg.Search.Format,
		EValue:       cfg.Search.EValue,
		Workers:      cfg.Run.WorkerCount(),
		MinGenomes:   cfg.Run.MinGenomes,
		MinTrees:     cfg.Consensus.MinTrees,
		WorkDir:      cfg.Run.ResolveWorkDir(),
		OutputDir:    cfg.Run.ResolveOutputDir(),
		Cache:        cfg.Cache.Enabled,
	}
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithLogger sets the logger.
func WithLogger(logger *logging.Logger) Option {
	return func(c *Coordinator) {
		c.logger = logger
	}
}

// WithBus sets the bus that receives progress events.
func WithBus(bus *event.Bus) Option {
	return func(c *Coordinator) {
		c.bus = bus
	}
}

// WithRunID sets the run identifier instead of a generated one.
func WithRunID(id string) Option {
	return func(c *Coordinator) {
		c.runID = id
	}
}
