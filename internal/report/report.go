// Package report records the outcome of a run: which genomes were searched,
// which markers were retained or rejected, which per-marker units failed
// and why, and where the species tree was written.
package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Iron-Ham/phyling/internal/cache"
)

// Report file names inside the output directory.
const (
	JSONFile = "report.json"
	YAMLFile = "report.yaml"
)

// Unit statuses.
const (
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
)

// Report is the complete record of one run.
type Report struct {
	RunID       string       `json:"run_id" yaml:"run_id"`
	State       string       `json:"state" yaml:"state"`
	Strategy    string       `json:"strategy" yaml:"strategy"`
	StartedAt   time.Time    `json:"started_at" yaml:"started_at"`
	FinishedAt  time.Time    `json:"finished_at" yaml:"finished_at"`
	Catalog     Catalog      `json:"catalog" yaml:"catalog"`
	Settings    Settings     `json:"settings" yaml:"settings"`
	Genomes     []Genome     `json:"genomes" yaml:"genomes"`
	Retained    []string     `json:"retained_markers" yaml:"retained_markers"`
	Rejected    []Rejection  `json:"rejected_markers" yaml:"rejected_markers"`
	Markers     []Marker     `json:"markers" yaml:"markers"`
	SpeciesTree *SpeciesTree `json:"species_tree,omitempty" yaml:"species_tree,omitempty"`
	Failure     *Failure     `json:"failure,omitempty" yaml:"failure,omitempty"`
	Transitions []Transition `json:"transitions" yaml:"transitions"`
}

// Catalog identifies the marker catalog used.
type Catalog struct {
	Name    string `json:"name" yaml:"name"`
	Version string `json:"version,omitempty" yaml:"version,omitempty"`
	Path    string `json:"path" yaml:"path"`
	Markers int    `json:"markers" yaml:"markers"`
}

// Settings are the thresholds and tools of the run.
type Settings struct {
	MinCoverage         float64 `json:"min_coverage" yaml:"min_coverage"`
	MinGenomesPerMarker int     `json:"min_genomes_per_marker" yaml:"min_genomes_per_marker"`
	EValue              float64 `json:"evalue" yaml:"evalue"`
	Workers             int     `json:"workers" yaml:"workers"`
	Search              string  `json:"search" yaml:"search"`
	Align               string  `json:"align" yaml:"align"`
	Trim                string  `json:"trim,omitempty" yaml:"trim,omitempty"`
	Tree                string  `json:"tree" yaml:"tree"`
	Consensus           string  `json:"consensus,omitempty" yaml:"consensus,omitempty"`
	Cache               bool    `json:"cache" yaml:"cache"`
}

// Genome is the search outcome of one input genome.
type Genome struct {
	ID        string `json:"id" yaml:"id"`
	Path      string `json:"path" yaml:"path"`
	Status    string `json:"status" yaml:"status"`
	Hits      int    `json:"hits" yaml:"hits"`
	Cached    bool   `json:"cached,omitempty" yaml:"cached,omitempty"`
	Error     string `json:"error,omitempty" yaml:"error,omitempty"`
	ExitCode  *int   `json:"exit_code,omitempty" yaml:"exit_code,omitempty"`
	Stderr    string `json:"stderr,omitempty" yaml:"stderr,omitempty"`
	Retryable bool   `json:"retryable,omitempty" yaml:"retryable,omitempty"`
}

// Rejection is a marker that did not reach the coverage threshold.
type Rejection struct {
	Marker   string  `json:"marker" yaml:"marker"`
	Hits     int     `json:"hits" yaml:"hits"`
	Total    int     `json:"total" yaml:"total"`
	Coverage float64 `json:"coverage" yaml:"coverage"`
	Reason   string  `json:"reason" yaml:"reason"`
}

// Marker is the per-marker pipeline outcome of a retained marker.
type Marker struct {
	ID         string   `json:"id" yaml:"id"`
	Status     string   `json:"status" yaml:"status"`
	Genomes    int      `json:"genomes" yaml:"genomes"`
	Missing    []string `json:"missing,omitempty" yaml:"missing,omitempty"`
	Width      int      `json:"width,omitempty" yaml:"width,omitempty"`
	Cached     bool     `json:"cached,omitempty" yaml:"cached,omitempty"`
	DurationMS int64    `json:"duration_ms" yaml:"duration_ms"`
	Stage      string   `json:"stage,omitempty" yaml:"stage,omitempty"`
	Tool       string   `json:"tool,omitempty" yaml:"tool,omitempty"`
	ExitCode   *int     `json:"exit_code,omitempty" yaml:"exit_code,omitempty"`
	TimedOut   bool     `json:"timed_out,omitempty" yaml:"timed_out,omitempty"`
	Retryable  bool     `json:"retryable,omitempty" yaml:"retryable,omitempty"`
	Stderr     string   `json:"stderr,omitempty" yaml:"stderr,omitempty"`
	Error      string   `json:"error,omitempty" yaml:"error,omitempty"`
}

// SpeciesTree describes the final tree.
type SpeciesTree struct {
	Path    string   `json:"path" yaml:"path"`
	Newick  string   `json:"newick" yaml:"newick"`
	Leaves  []string `json:"leaves" yaml:"leaves"`
	Markers []string `json:"markers" yaml:"markers"`
	Cached  bool     `json:"cached,omitempty" yaml:"cached,omitempty"`
}

// Failure describes why a run stopped.
type Failure struct {
	Condition string `json:"condition,omitempty" yaml:"condition,omitempty"`
	State     string `json:"state" yaml:"state"`
	Message   string `json:"message" yaml:"message"`
}

// Transition is one step of the run state machine.
type Transition struct {
	From string    `json:"from,omitempty" yaml:"from,omitempty"`
	To   string    `json:"to" yaml:"to"`
	At   time.Time `json:"at" yaml:"at"`
}

// Duration returns the wall time of the run.
func (r *Report) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// SearchedGenomes counts genomes whose search succeeded.
func (r *Report) SearchedGenomes() int {
	n := 0
	for _, g := range r.Genomes {
		if g.Status == StatusSucceeded {
			n++
		}
	}
	return n
}

// FailedMarkers returns the markers whose pipeline failed.
func (r *Report) FailedMarkers() []Marker {
	var out []Marker
	for _, m := range r.Markers {
		if m.Status == StatusFailed {
			out = append(out, m)
		}
	}
	return out
}

// SucceededMarkers counts markers whose pipeline succeeded.
func (r *Report) SucceededMarkers() int {
	return len(r.Markers) - len(r.FailedMarkers())
}

// Write writes report.json and report.yaml into dir.
func Write(dir string, r *Report) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create report directory: %w", err)
	}

	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	if err := cache.WriteFile(filepath.Join(dir, JSONFile), append(data, '\n')); err != nil {
		return err
	}

	data, err = yaml.Marshal(r)
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	return cache.WriteFile(filepath.Join(dir, YAMLFile), data)
}

// Read loads a report.json file.
func Read(path string) (*Report, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read report: %w", err)
	}
	var r Report
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("parse report %s: %w", path, err)
	}
	return &r, nil
}
