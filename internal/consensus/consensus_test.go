package consensus

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"github.com/Iron-Ham/phyling/internal/cache"
	"github.com/Iron-Ham/phyling/internal/catalog"
	"github.com/Iron-Ham/phyling/internal/errors"
	"github.com/Iron-Ham/phyling/internal/seqio"
	"github.com/Iron-Ham/phyling/internal/testutil"
	"github.com/Iron-Ham/phyling/internal/tool"
)

func alignment(t *testing.T, width int, ids ...string) *seqio.Alignment {
	t.Helper()
	rows := make([]seqio.Record, len(ids))
	for i, id := range ids {
		rows[i] = seqio.Record{ID: id, Seq: bytes.Repeat([]byte("A"), width)}
	}
	aln, err := seqio.NewAlignment(rows)
	if err != nil {
		t.Fatal(err)
	}
	return aln
}

func TestConcatenate_PadsMissingGenomes(t *testing.T) {
	blocks := []Block{
		{Marker: "M2", Alignment: alignment(t, 80, "a", "b")},
		{Marker: "M1", Alignment: alignment(t, 120, "a", "b", "c")},
	}

	super, err := Concatenate(blocks, []string{"c", "b", "a"})
	if err != nil {
		t.Fatalf("Concatenate: %v", err)
	}

	if super.Alignment.Width != 200 {
		t.Fatalf("Width = %d, want 200", super.Alignment.Width)
	}
	if !slices.Equal(super.Alignment.IDs(), []string{"a", "b", "c"}) {
		t.Errorf("rows = %v", super.Alignment.IDs())
	}
	row, _ := super.Alignment.Row("c")
	if !bytes.Equal(row[120:], seqio.GapRow(80)) {
		t.Error("last 80 columns of the missing genome should be gaps")
	}
	if bytes.IndexByte(row[:120], seqio.Gap) >= 0 {
		t.Error("first 120 columns should hold the M1 residues")
	}

	want := []Partition{{Marker: "M1", Start: 1, End: 120}, {Marker: "M2", Start: 121, End: 200}}
	if !slices.Equal(super.Partitions, want) {
		t.Errorf("Partitions = %+v, want %+v", super.Partitions, want)
	}
	if got := super.PartitionText(); got != "LG, M1 = 1-120\nLG, M2 = 121-200\n" {
		t.Errorf("PartitionText() = %q", got)
	}
}

func TestConcatenate_DropsGenomesAbsentEverywhere(t *testing.T) {
	super, err := Concatenate([]Block{{Marker: "M1", Alignment: alignment(t, 5, "a", "b")}}, []string{"a", "b", "z"})
	if err != nil {
		t.Fatal(err)
	}
	if !slices.Equal(super.Alignment.IDs(), []string{"a", "b"}) {
		t.Errorf("rows = %v", super.Alignment.IDs())
	}
}

func TestConcatenate_Errors(t *testing.T) {
	tests := []struct {
		name    string
		blocks  []Block
		genomes []string
	}{
		{"no blocks", nil, []string{"a"}},
		{"foreign row", []Block{{Marker: "M1", Alignment: alignment(t, 3, "a", "x")}}, []string{"a"}},
		{"duplicate marker", []Block{
			{Marker: "M1", Alignment: alignment(t, 3, "a")},
			{Marker: "M1", Alignment: alignment(t, 3, "a")},
		}, []string{"a"}},
		{"nil alignment", []Block{{Marker: "M1"}}, []string{"a"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Concatenate(tt.blocks, tt.genomes); !errors.Is(err, errors.ErrInvalidInput) {
				t.Errorf("err = %v, want ErrInvalidInput", err)
			}
		})
	}
}

func writeTree(t *testing.T, dir string, marker, newick string) GeneTree {
	t.Helper()
	path := filepath.Join(dir, marker+".nwk")
	if err := os.WriteFile(path, []byte(newick+"\n"), 0644); err != nil {
		t.Fatal(err)
	}
	return GeneTree{Marker: catalog.MarkerID(marker), Path: path}
}

func TestNew_Validation(t *testing.T) {
	if _, err := New(Config{Summarizer: testutil.FakeSummarizer()}); err == nil {
		t.Error("missing WorkDir should fail")
	}
	if _, err := New(Config{WorkDir: t.TempDir()}); err == nil {
		t.Error("missing tools should fail")
	}
}

func TestSummarize(t *testing.T) {
	dir := t.TempDir()
	summarizer := testutil.FakeSummarizer()
	b, err := New(Config{WorkDir: dir, Summarizer: summarizer, Store: cache.NewStore(true, nil)})
	if err != nil {
		t.Fatal(err)
	}
	trees := []GeneTree{
		writeTree(t, dir, "M3", "((a,b),c);"),
		writeTree(t, dir, "M1", "((a,c),d);"),
		writeTree(t, dir, "M2", "(a,b);"),
	}

	res, err := b.Summarize(context.Background(), trees)
	if err != nil {
		t.Fatalf("Summarize: %v", err)
	}

	if !slices.Equal(res.Markers, []catalog.MarkerID{"M1", "M2", "M3"}) {
		t.Errorf("Markers = %v", res.Markers)
	}
	if !slices.Equal(res.Leaves, []string{"a", "b", "c", "d"}) {
		t.Errorf("Leaves = %v", res.Leaves)
	}
	if res.Path != filepath.Join(b.Dir(), SpeciesTreeFile) {
		t.Errorf("Path = %q", res.Path)
	}

	combined, err := os.ReadFile(filepath.Join(b.Dir(), GeneTreesFile))
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(string(combined)), "\n")
	if len(lines) != 3 || lines[0] != "((a,c),d);" || lines[2] != "((a,b),c);" {
		t.Errorf("gene trees not in marker order: %q", lines)
	}

	again, err := b.Summarize(context.Background(), trees)
	if err != nil {
		t.Fatal(err)
	}
	if !again.Cached || summarizer.Calls() != 1 {
		t.Errorf("second summarize: cached=%v calls=%d", again.Cached, summarizer.Calls())
	}
}

func TestSummarize_MinTrees(t *testing.T) {
	dir := t.TempDir()
	summarizer := testutil.FakeSummarizer()
	b, _ := New(Config{WorkDir: dir, Summarizer: summarizer, MinTrees: 2})

	_, err := b.Summarize(context.Background(), []GeneTree{writeTree(t, dir, "M1", "(a,b);")})
	if !errors.Is(err, errors.ErrInvalidInput) {
		t.Errorf("err = %v, want ErrInvalidInput", err)
	}
	if summarizer.Calls() != 0 {
		t.Error("summarizer must not run below the minimum")
	}
}

func TestSummarize_ToolFailure(t *testing.T) {
	dir := t.TempDir()
	summarizer := testutil.FakeSummarizer()
	summarizer.Fn = func(ctx context.Context, inv tool.Invocation) error {
		return testutil.StageFailure(tool.KindConsensus, "astral", 2, "java: heap")
	}
	b, _ := New(Config{WorkDir: dir, Summarizer: summarizer})

	_, err := b.Summarize(context.Background(), []GeneTree{writeTree(t, dir, "M1", "(a,b);")})

	var stageErr *errors.StageError
	if !errors.As(err, &stageErr) || stageErr.ExitCode != 2 {
		t.Errorf("err = %v, want StageError with exit 2", err)
	}
}

func TestSummarize_ForeignLeaf(t *testing.T) {
	dir := t.TempDir()
	summarizer := testutil.FakeSummarizer()
	summarizer.Fn = func(ctx context.Context, inv tool.Invocation) error {
		return os.WriteFile(inv.Output, []byte("(a,ghost);\n"), 0644)
	}
	b, _ := New(Config{WorkDir: dir, Summarizer: summarizer, Store: cache.NewStore(true, nil)})

	_, err := b.Summarize(context.Background(), []GeneTree{writeTree(t, dir, "M1", "(a,b);")})
	if !errors.Is(err, errors.ErrMalformedOutput) {
		t.Errorf("err = %v, want ErrMalformedOutput", err)
	}
	if _, statErr := os.Stat(cache.SidecarPath(filepath.Join(b.Dir(), SpeciesTreeFile))); !os.IsNotExist(statErr) {
		t.Error("invalid species tree must not be recorded as valid")
	}
}

func TestBuildConcatenated(t *testing.T) {
	dir := t.TempDir()
	treeBuilder := testutil.FakeTreeBuilder()
	b, err := New(Config{WorkDir: dir, TreeBuilder: treeBuilder}, WithThreads(8))
	if err != nil {
		t.Fatal(err)
	}

	write := func(name, content string) MarkerAlignment {
		path := filepath.Join(dir, name+".aln.faa")
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			t.Fatal(err)
		}
		return MarkerAlignment{Marker: catalog.MarkerID(name), Path: path}
	}
	alignments := []MarkerAlignment{
		write("M1", ">a\nMKV\n>b\nMK-\n>c\nM-V\n"),
		write("M2", ">a\nWW\n>c\nW-\n"),
	}

	res, err := b.BuildConcatenated(context.Background(), alignments, []string{"a", "b", "c"})
	if err != nil {
		t.Fatalf("BuildConcatenated: %v", err)
	}

	super, err := seqio.ReadAlignmentFile(filepath.Join(b.Dir(), ConcatFile))
	if err != nil {
		t.Fatal(err)
	}
	if row, _ := super.Row("b"); string(row) != "MK---" {
		t.Errorf("row b = %q, want MK---", row)
	}
	partitions, err := os.ReadFile(filepath.Join(b.Dir(), PartitionsFile))
	if err != nil {
		t.Fatal(err)
	}
	if string(partitions) != "LG, M1 = 1-3\nLG, M2 = 4-5\n" {
		t.Errorf("partitions = %q", partitions)
	}
	if !slices.Equal(res.Markers, []catalog.MarkerID{"M1", "M2"}) {
		t.Errorf("Markers = %v", res.Markers)
	}
	if inv := treeBuilder.Invocations(); len(inv) != 1 || inv[0].Threads != 8 {
		t.Errorf("invocations = %+v, want one call with 8 threads", inv)
	}
}
