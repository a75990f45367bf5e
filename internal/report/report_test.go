package report

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/lipgloss"
	"gopkg.in/yaml.v3"
)

func exit(code int) *int { return &code }

func sample() *Report {
	start := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	return &Report{
		RunID:      "run-1",
		State:      "REPORTED",
		Strategy:   "consensus",
		StartedAt:  start,
		FinishedAt: start.Add(90 * time.Second),
		Catalog:    Catalog{Name: "bacteria_odb10", Path: "/db/markers", Markers: 4},
		Genomes: []Genome{
			{ID: "a", Status: StatusSucceeded, Hits: 3},
			{ID: "b", Status: StatusSucceeded, Hits: 3},
			{ID: "c", Status: StatusSucceeded, Hits: 2},
			{ID: "d", Status: StatusFailed, Error: "search tool failed", ExitCode: exit(1)},
		},
		Retained: []string{"M1", "M2", "M3"},
		Rejected: []Rejection{{Marker: "M4", Hits: 0, Total: 3, Reason: "min_genomes"}},
		Markers: []Marker{
			{ID: "M1", Status: StatusSucceeded, Genomes: 3, Width: 120},
			{ID: "M2", Status: StatusSucceeded, Genomes: 3, Width: 80},
			{ID: "M3", Status: StatusFailed, Genomes: 2, Stage: "align", Tool: "muscle", ExitCode: exit(1), Stderr: "reading input\nout of memory"},
		},
		SpeciesTree: &SpeciesTree{
			Path:    "out/species_tree.nwk",
			Newick:  "((a,b),c);",
			Leaves:  []string{"a", "b", "c"},
			Markers: []string{"M1", "M2"},
		},
	}
}

func TestCounts(t *testing.T) {
	r := sample()
	if r.SearchedGenomes() != 3 {
		t.Errorf("SearchedGenomes() = %d", r.SearchedGenomes())
	}
	if got := r.FailedMarkers(); len(got) != 1 || got[0].ID != "M3" {
		t.Errorf("FailedMarkers() = %+v", got)
	}
	if r.SucceededMarkers() != 2 {
		t.Errorf("SucceededMarkers() = %d", r.SucceededMarkers())
	}
	if r.Duration() != 90*time.Second {
		t.Errorf("Duration() = %v", r.Duration())
	}
}

func TestWriteRead(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "out")
	want := sample()

	if err := Write(dir, want); err != nil {
		t.Fatalf("Write: %v", err)
	}

	got, err := Read(filepath.Join(dir, JSONFile))
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if got.RunID != want.RunID || len(got.Markers) != 3 || *got.Markers[2].ExitCode != 1 {
		t.Errorf("round trip lost data: %+v", got)
	}

	data, err := os.ReadFile(filepath.Join(dir, YAMLFile))
	if err != nil {
		t.Fatal(err)
	}
	var doc map[string]any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		t.Fatalf("report.yaml is not valid YAML: %v", err)
	}
	if doc["state"] != "REPORTED" || doc["run_id"] != "run-1" {
		t.Errorf("yaml doc = %v", doc)
	}
}

func TestWrite_FailedRunOmitsTree(t *testing.T) {
	dir := t.TempDir()
	r := sample()
	r.State = "FAILED"
	r.SpeciesTree = nil
	r.Failure = &Failure{Condition: "zero_markers_retained", State: "AGGREGATED", Message: "no marker reached the threshold"}

	if err := Write(dir, r); err != nil {
		t.Fatal(err)
	}
	data, _ := os.ReadFile(filepath.Join(dir, JSONFile))
	if strings.Contains(string(data), "species_tree") {
		t.Error("failed run should not record a species tree")
	}
	if !strings.Contains(string(data), `"condition": "zero_markers_retained"`) {
		t.Errorf("failure condition missing:\n%s", data)
	}
}

func TestSummary(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteSummary(&buf, sample(), SummaryOptions{}); err != nil {
		t.Fatal(err)
	}
	out := buf.String()

	for _, want := range []string{
		"phyling run run-1",
		"3 searched, 1 failed",
		"4 in catalog, 3 retained, 1 rejected",
		"2 succeeded, 1 failed",
		"M3  align  muscle, exit 1, out of memory",
		"d  search tool failed",
		"1m30s",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("summary missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "\x1b[") {
		t.Error("summary to a buffer should not contain escape sequences")
	}
}

func TestSummary_TreeLimit(t *testing.T) {
	r := lipgloss.NewRenderer(&bytes.Buffer{})

	drawn := Summary(r, sample(), SummaryOptions{})
	skipped := Summary(r, sample(), SummaryOptions{MaxTreeLeaves: 2})

	if !strings.Contains(drawn, "└─c") {
		t.Errorf("tree not drawn:\n%s", drawn)
	}
	if strings.Contains(skipped, "└─") {
		t.Errorf("tree drawn despite limit:\n%s", skipped)
	}
}

func TestSummary_Width(t *testing.T) {
	r := lipgloss.NewRenderer(&bytes.Buffer{})
	out := Summary(r, sample(), SummaryOptions{Width: 30})

	for _, line := range strings.Split(out, "\n") {
		if w := lipgloss.Width(line); w > 30 {
			t.Errorf("line %q is %d columns wide", line, w)
		}
	}
	if !strings.Contains(out, "…") {
		t.Errorf("long lines should be cut with an ellipsis:\n%s", out)
	}
}
