package config

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg == nil {
		t.Fatal("Default() returned nil")
	}

	if cfg.Search.Tool != "hmmsearch" {
		t.Errorf("Search.Tool = %q, want %q", cfg.Search.Tool, "hmmsearch")
	}
	if cfg.Search.Format != "domtblout" {
		t.Errorf("Search.Format = %q, want %q", cfg.Search.Format, "domtblout")
	}
	if cfg.Search.EValue != 1e-10 {
		t.Errorf("Search.EValue = %g, want 1e-10", cfg.Search.EValue)
	}

	if cfg.Coverage.MinFraction != 0.5 {
		t.Errorf("Coverage.MinFraction = %v, want 0.5", cfg.Coverage.MinFraction)
	}
	if cfg.Coverage.MinGenomesPerMarker != 3 {
		t.Errorf("Coverage.MinGenomesPerMarker = %d, want 3", cfg.Coverage.MinGenomesPerMarker)
	}

	if cfg.Align.Method != "hmmalign" {
		t.Errorf("Align.Method = %q, want %q", cfg.Align.Method, "hmmalign")
	}
	if !cfg.Trim.Enabled {
		t.Error("Trim.Enabled should be true by default")
	}
	if cfg.Trim.GapThreshold != 0.9 {
		t.Errorf("Trim.GapThreshold = %v, want 0.9", cfg.Trim.GapThreshold)
	}
	if cfg.Consensus.Strategy != StrategyConsensus {
		t.Errorf("Consensus.Strategy = %q, want %q", cfg.Consensus.Strategy, StrategyConsensus)
	}
	if !cfg.Cache.Enabled {
		t.Error("Cache.Enabled should be true by default")
	}
	if cfg.Run.MinGenomes != 3 {
		t.Errorf("Run.MinGenomes = %d, want 3", cfg.Run.MinGenomes)
	}

	if errs := cfg.Validate(); len(errs) != 0 {
		t.Errorf("Default() should validate cleanly, got %v", ValidationErrors(errs))
	}
}

func TestToolsConfig_Timeout(t *testing.T) {
	tests := []struct {
		minutes  int
		expected time.Duration
	}{
		{30, 30 * time.Minute},
		{1, time.Minute},
		{0, 0},
	}

	for _, tt := range tests {
		cfg := ToolsConfig{TimeoutMinutes: tt.minutes}
		if got := cfg.Timeout(); got != tt.expected {
			t.Errorf("Timeout() with %d minutes = %v, want %v", tt.minutes, got, tt.expected)
		}
	}
}

func TestRunConfig_WorkerCount(t *testing.T) {
	if got := (&RunConfig{Workers: 4}).WorkerCount(); got != 4 {
		t.Errorf("WorkerCount() = %d, want 4", got)
	}
	if got := (&RunConfig{}).WorkerCount(); got != runtime.NumCPU() {
		t.Errorf("WorkerCount() = %d, want NumCPU %d", got, runtime.NumCPU())
	}
}

func TestRunConfig_ResolveWorkDir(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home directory")
	}

	tests := []struct {
		name string
		cfg  RunConfig
		want string
	}{
		{"default under output", RunConfig{OutputDir: "out"}, filepath.Join("out", "work")},
		{"explicit", RunConfig{OutputDir: "out", WorkDir: "/scratch/w"}, "/scratch/w"},
		{"home expansion", RunConfig{OutputDir: "out", WorkDir: "~/w"}, filepath.Join(home, "w")},
		{"home output", RunConfig{OutputDir: "~"}, filepath.Join(home, "work")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.cfg.ResolveWorkDir(); got != tt.want {
				t.Errorf("ResolveWorkDir() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"zero fraction", func(c *Config) { c.Coverage.MinFraction = 0 }, "coverage.min_fraction"},
		{"fraction above one", func(c *Config) { c.Coverage.MinFraction = 1.01 }, "coverage.min_fraction"},
		{"negative floor", func(c *Config) { c.Coverage.MinGenomesPerMarker = -1 }, "coverage.min_genomes_per_marker"},
		{"bad format", func(c *Config) { c.Search.Format = "xml" }, "search.format"},
		{"empty search tool", func(c *Config) { c.Search.Tool = " " }, "search.tool"},
		{"non-positive evalue", func(c *Config) { c.Search.EValue = 0 }, "search.evalue"},
		{"bad align method", func(c *Config) { c.Align.Method = "clustal" }, "align.method"},
		{"bad trim method", func(c *Config) { c.Trim.Method = "gblocks" }, "trim.method"},
		{"bad gap threshold", func(c *Config) { c.Trim.GapThreshold = 1.5 }, "trim.gap_threshold"},
		{"bad tree method", func(c *Config) { c.Tree.Method = "raxml" }, "tree.method"},
		{"bad strategy", func(c *Config) { c.Consensus.Strategy = "supermatrix" }, "consensus.strategy"},
		{"zero min trees", func(c *Config) { c.Consensus.MinTrees = 0 }, "consensus.min_trees"},
		{"negative timeout", func(c *Config) { c.Tools.TimeoutMinutes = -1 }, "tools.timeout_minutes"},
		{"empty tool path", func(c *Config) { c.Tools.Paths = map[string]string{"astral": ""} }, "tools.paths.astral"},
		{"negative workers", func(c *Config) { c.Run.Workers = -2 }, "run.workers"},
		{"too many workers", func(c *Config) { c.Run.Workers = 5000 }, "run.workers"},
		{"empty output", func(c *Config) { c.Run.OutputDir = "" }, "run.output_dir"},
		{"zero min genomes", func(c *Config) { c.Run.MinGenomes = 0 }, "run.min_genomes"},
		{"bad log level", func(c *Config) { c.Logging.Level = "trace" }, "logging.level"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)

			errs := cfg.Validate()
			if len(errs) != 1 {
				t.Fatalf("expected 1 validation error, got %d: %v", len(errs), ValidationErrors(errs))
			}
			if errs[0].Field != tt.field {
				t.Errorf("Field = %q, want %q", errs[0].Field, tt.field)
			}
		})
	}
}

func TestValidate_ThresholdBoundaryIsValid(t *testing.T) {
	cfg := Default()
	cfg.Coverage.MinFraction = 1
	if errs := cfg.Validate(); len(errs) != 0 {
		t.Errorf("min_fraction = 1 should be valid, got %v", ValidationErrors(errs))
	}
}

func TestValidationErrors_Error(t *testing.T) {
	if got := ValidationErrors(nil).Error(); got != "" {
		t.Errorf("empty Error() = %q", got)
	}

	one := ValidationErrors{{Field: "run.workers", Value: -1, Message: "must be non-negative"}}
	if got := one.Error(); got != "run.workers: must be non-negative (got: -1)" {
		t.Errorf("single Error() = %q", got)
	}

	two := append(one, ValidationError{Field: "logging.level", Value: "x", Message: "bad"})
	want := "2 validation errors:\n  1. run.workers: must be non-negative (got: -1)\n  2. logging.level: bad (got: x)\n"
	if got := two.Error(); got != want {
		t.Errorf("multi Error() = %q, want %q", got, want)
	}
}

func TestConfigDir(t *testing.T) {
	t.Run("with XDG_CONFIG_HOME", func(t *testing.T) {
		t.Setenv("XDG_CONFIG_HOME", "/custom/config")
		if got := ConfigDir(); got != "/custom/config/phyling" {
			t.Errorf("ConfigDir() = %q, want %q", got, "/custom/config/phyling")
		}
	})

	t.Run("without XDG_CONFIG_HOME", func(t *testing.T) {
		t.Setenv("XDG_CONFIG_HOME", "")
		home, _ := os.UserHomeDir()
		want := filepath.Join(home, ".config", "phyling")
		if got := ConfigDir(); got != want {
			t.Errorf("ConfigDir() = %q, want %q", got, want)
		}
	})
}

func TestConfigFile(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/custom/config")
	if got := ConfigFile(); got != "/custom/config/phyling/config.yaml" {
		t.Errorf("ConfigFile() = %q", got)
	}
}

func TestGet(t *testing.T) {
	SetDefaults()

	cfg := Get()
	if cfg == nil {
		t.Fatal("Get() returned nil")
	}
	if cfg.Consensus.Method != "astral" {
		t.Errorf("Get().Consensus.Method = %q, want %q", cfg.Consensus.Method, "astral")
	}
	if cfg.Tools.TimeoutMinutes != 30 {
		t.Errorf("Get().Tools.TimeoutMinutes = %d, want 30", cfg.Tools.TimeoutMinutes)
	}
}
