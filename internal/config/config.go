package config

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config represents the complete phyling configuration
type Config struct {
	Catalog   CatalogConfig   `mapstructure:"catalog"`
	Search    SearchConfig    `mapstructure:"search"`
	Coverage  CoverageConfig  `mapstructure:"coverage"`
	Align     AlignConfig     `mapstructure:"align"`
	Trim      TrimConfig      `mapstructure:"trim"`
	Tree      TreeConfig      `mapstructure:"tree"`
	Consensus ConsensusConfig `mapstructure:"consensus"`
	Tools     ToolsConfig     `mapstructure:"tools"`
	Run       RunConfig       `mapstructure:"run"`
	Cache     CacheConfig     `mapstructure:"cache"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// CatalogConfig locates the marker catalog
type CatalogConfig struct {
	// Path is a directory of per-marker .hmm profiles (optionally with
	// catalog.yaml and scores_cutoff) or a single combined .hmm file.
	Path string `mapstructure:"path"`
}

// SearchConfig controls the per-genome profile search
type SearchConfig struct {
	// Tool is the search tool name (default: "hmmsearch")
	Tool string `mapstructure:"tool"`
	// Format is the hit table format the tool writes: "domtblout" or "tsv"
	Format string `mapstructure:"format"`
	// EValue is the inclusion threshold passed to the tool and re-applied when parsing
	EValue float64 `mapstructure:"evalue"`
}

// CoverageConfig controls marker retention
type CoverageConfig struct {
	// MinFraction is the fraction of genomes that must carry a hit for a
	// marker to be retained. A marker exactly at the threshold is retained.
	MinFraction float64 `mapstructure:"min_fraction"`
	// MinGenomesPerMarker is an absolute floor on hits per retained marker (default: 3)
	MinGenomesPerMarker int `mapstructure:"min_genomes_per_marker"`
}

// AlignConfig selects the alignment tool
type AlignConfig struct {
	// Method is one of "hmmalign", "muscle", "mafft" (default: "hmmalign")
	Method string `mapstructure:"method"`
}

// TrimConfig controls optional column filtering of alignments
type TrimConfig struct {
	// Enabled runs the trimming stage; when false alignments pass through unchanged
	Enabled bool `mapstructure:"enabled"`
	// Method is one of "clipkit", "trimal" (default: "clipkit")
	Method string `mapstructure:"method"`
	// GapThreshold is the gappyness cutoff passed to clipkit (default: 0.9)
	GapThreshold float64 `mapstructure:"gap_threshold"`
}

// TreeConfig selects the gene-tree inference tool
type TreeConfig struct {
	// Method is one of "veryfasttree", "fasttree", "iqtree" (default: "veryfasttree")
	Method string `mapstructure:"method"`
}

// ConsensusConfig controls how per-marker results become a species tree
type ConsensusConfig struct {
	// Strategy is "consensus" (gene trees summarized by Method) or
	// "concatenation" (one tree on the super-alignment)
	Strategy string `mapstructure:"strategy"`
	// Method is the summarization tool for the consensus strategy (default: "astral")
	Method string `mapstructure:"method"`
	// MinTrees is the minimum number of successful gene trees (default: 1)
	MinTrees int `mapstructure:"min_trees"`
}

// ToolsConfig controls external tool invocation
type ToolsConfig struct {
	// Paths overrides the executable for a tool name, e.g. {"astral": "/opt/aster/bin/astral"}
	Paths map[string]string `mapstructure:"paths"`
	// TimeoutMinutes bounds every single tool invocation (0 = no timeout, default: 30)
	TimeoutMinutes int `mapstructure:"timeout_minutes"`
}

// RunConfig controls run-wide behavior
type RunConfig struct {
	// Workers is the worker pool size; 0 means the number of CPUs
	Workers int `mapstructure:"workers"`
	// OutputDir receives the species tree and the run report (default: "phyling_out")
	OutputDir string `mapstructure:"output_dir"`
	// WorkDir holds intermediate files and the cache.
	// If empty, defaults to "<output_dir>/work".
	WorkDir string `mapstructure:"work_dir"`
	// MinGenomes is the minimum number of input genomes (default: 3)
	MinGenomes int `mapstructure:"min_genomes"`
}

// CacheConfig controls reuse of intermediate files across runs
type CacheConfig struct {
	// Enabled reuses intermediates whose validity record still matches (default: true)
	Enabled bool `mapstructure:"enabled"`
}

// LoggingConfig controls debug logging behavior
type LoggingConfig struct {
	// Enabled controls whether file logging is enabled (default: true)
	Enabled bool `mapstructure:"enabled"`
	// Level is the log level: "debug", "info", "warn", "error" (default: "info")
	Level string `mapstructure:"level"`
	// MaxSizeMB is the maximum log file size in megabytes before rotation (default: 10)
	MaxSizeMB int `mapstructure:"max_size_mb"`
	// MaxBackups is the number of backup log files to keep (default: 3)
	MaxBackups int `mapstructure:"max_backups"`
}

// Strategy names
const (
	StrategyConsensus     = "consensus"
	StrategyConcatenation = "concatenation"
)

// Default returns a Config with sensible default values
func Default() *Config {
	return &Config{
		Catalog: CatalogConfig{
			Path: "",
		},
		Search: SearchConfig{
			Tool:   "hmmsearch",
			Format: "domtblout",
			EValue: 1e-10,
		},
		Coverage: CoverageConfig{
			MinFraction:         0.5,
			MinGenomesPerMarker: 3,
		},
		Align: AlignConfig{
			Method: "hmmalign",
		},
		Trim: TrimConfig{
			Enabled:      true,
			Method:       "clipkit",
			GapThreshold: 0.9,
		},
		Tree: TreeConfig{
			Method: "veryfasttree",
		},
		Consensus: ConsensusConfig{
			Strategy: StrategyConsensus,
			Method:   "astral",
			MinTrees: 1,
		},
		Tools: ToolsConfig{
			Paths:          map[string]string{},
			TimeoutMinutes: 30,
		},
		Run: RunConfig{
			Workers:    0, // 0 means runtime.NumCPU()
			OutputDir:  "phyling_out",
			WorkDir:    "",
			MinGenomes: 3,
		},
		Cache: CacheConfig{
			Enabled: true,
		},
		Logging: LoggingConfig{
			Enabled:    true,
			Level:      "info",
			MaxSizeMB:  10,
			MaxBackups: 3,
		},
	}
}

// Timeout returns the per-invocation tool timeout (0 means disabled)
func (c *ToolsConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutMinutes) * time.Minute
}

// WorkerCount returns the effective worker pool size
func (c *RunConfig) WorkerCount() int {
	if c.Workers > 0 {
		return c.Workers
	}
	return runtime.NumCPU()
}

// ResolveWorkDir returns the resolved work directory path.
// If WorkDir is empty, it returns "work" inside the output directory.
// A leading ~ expands to the user's home directory.
func (c *RunConfig) ResolveWorkDir() string {
	if c.WorkDir == "" {
		return filepath.Join(expandHome(c.OutputDir), "work")
	}
	return expandHome(c.WorkDir)
}

// ResolveOutputDir returns the output directory with ~ expanded.
func (c *RunConfig) ResolveOutputDir() string {
	return expandHome(c.OutputDir)
}

func expandHome(path string) string {
	if strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, path[2:])
		}
	} else if path == "~" {
		if home, err := os.UserHomeDir(); err == nil {
			return home
		}
	}
	return path
}

// SetDefaults registers default values with viper
func SetDefaults() {
	defaults := Default()

	// Catalog defaults
	viper.SetDefault("catalog.path", defaults.Catalog.Path)

	// Search defaults
	viper.SetDefault("search.tool", defaults.Search.Tool)
	viper.SetDefault("search.format", defaults.Search.Format)
	viper.SetDefault("search.evalue", defaults.Search.EValue)

	// Coverage defaults
	viper.SetDefault("coverage.min_fraction", defaults.Coverage.MinFraction)
	viper.SetDefault("coverage.min_genomes_per_marker", defaults.Coverage.MinGenomesPerMarker)

	// Stage defaults
	viper.SetDefault("align.method", defaults.Align.Method)
	viper.SetDefault("trim.enabled", defaults.Trim.Enabled)
	viper.SetDefault("trim.method", defaults.Trim.Method)
	viper.SetDefault("trim.gap_threshold", defaults.Trim.GapThreshold)
	viper.SetDefault("tree.method", defaults.Tree.Method)

	// Consensus defaults
	viper.SetDefault("consensus.strategy", defaults.Consensus.Strategy)
	viper.SetDefault("consensus.method", defaults.Consensus.Method)
	viper.SetDefault("consensus.min_trees", defaults.Consensus.MinTrees)

	// Tools defaults
	viper.SetDefault("tools.paths", defaults.Tools.Paths)
	viper.SetDefault("tools.timeout_minutes", defaults.Tools.TimeoutMinutes)

	// Run defaults
	viper.SetDefault("run.workers", defaults.Run.Workers)
	viper.SetDefault("run.output_dir", defaults.Run.OutputDir)
	viper.SetDefault("run.work_dir", defaults.Run.WorkDir)
	viper.SetDefault("run.min_genomes", defaults.Run.MinGenomes)

	// Cache defaults
	viper.SetDefault("cache.enabled", defaults.Cache.Enabled)

	// Logging defaults
	viper.SetDefault("logging.enabled", defaults.Logging.Enabled)
	viper.SetDefault("logging.level", defaults.Logging.Level)
	viper.SetDefault("logging.max_size_mb", defaults.Logging.MaxSizeMB)
	viper.SetDefault("logging.max_backups", defaults.Logging.MaxBackups)
}

// Load reads the configuration from viper into a Config struct and validates it
func Load() (*Config, error) {
	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, ValidationErrors(errs)
	}

	return &cfg, nil
}

// Get returns the current configuration (convenience function)
func Get() *Config {
	cfg, err := Load()
	if err != nil {
		// Fall back to defaults if unmarshaling fails
		return Default()
	}
	return cfg
}

// ConfigDir returns the path to the user's config directory
func ConfigDir() string {
	// Check XDG_CONFIG_HOME first
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "phyling")
	}
	// Fall back to ~/.config/phyling
	home, err := os.UserHomeDir()
	if err != nil {
		return ".phyling"
	}
	return filepath.Join(home, ".config", "phyling")
}

// ConfigFile returns the path to the config file
func ConfigFile() string {
	return filepath.Join(ConfigDir(), "config.yaml")
}
