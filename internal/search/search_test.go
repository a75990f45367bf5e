package search

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/Iron-Ham/phyling/internal/cache"
	"github.com/Iron-Ham/phyling/internal/catalog"
	"github.com/Iron-Ham/phyling/internal/errors"
	"github.com/Iron-Ham/phyling/internal/genome"
	"github.com/Iron-Ham/phyling/internal/testutil"
	"github.com/Iron-Ham/phyling/internal/tool"
)

type fixture struct {
	searcher *Searcher
	stage    *testutil.FakeStage
	genome   *genome.Genome
	workDir  string
}

func newFixture(t *testing.T, table string) *fixture {
	t.Helper()

	catDir := testutil.WriteCatalog(t, "M1", "M2", "M3")
	if err := os.WriteFile(filepath.Join(catDir, catalog.ScoresCutoffFile), []byte("M3\t50\n"), 0644); err != nil {
		t.Fatal(err)
	}
	cat, err := catalog.Load(catDir)
	if err != nil {
		t.Fatal(err)
	}

	workDir := t.TempDir()
	db, err := cat.WriteDatabase(workDir)
	if err != nil {
		t.Fatal(err)
	}

	g := genome.New(testutil.WriteGenome(t, t.TempDir(), "ecoli", map[string]string{
		"WP_1": "MKV", "WP_2": "MKL", "WP_3": "MAA", "WP_4": "MCC",
	}))

	stage := testutil.FakeSearch(map[string]string{"ecoli": table})
	s, err := New(Config{
		Catalog:  cat,
		Database: db,
		Stage:    stage,
		Format:   FormatDomtblout,
		EValue:   1e-10,
		WorkDir:  workDir,
		Store:    cache.NewStore(true, nil),
	}, nil)
	if err != nil {
		t.Fatal(err)
	}
	return &fixture{searcher: s, stage: stage, genome: g, workDir: workDir}
}

func TestSearch_FiltersAndSelects(t *testing.T) {
	f := newFixture(t, testutil.Domtbl(
		testutil.DomtblRow("WP_1", "M1", 1e-50, 200, 1, 100),
		testutil.DomtblRow("WP_2", "M1", 1e-60, 150, 1, 100),  // lower score
		testutil.DomtblRow("WP_3", "M2", 1e-5, 300, 1, 100),   // fails E-value
		testutil.DomtblRow("WP_4", "M3", 1e-20, 40, 1, 100),   // below score cutoff
		testutil.DomtblRow("WP_4", "OTHER", 1e-90, 900, 1, 9), // not in catalog
	))

	res, err := f.searcher.Search(context.Background(), f.genome)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}

	if len(res.Hits) != 1 || res.Hits[0].SequenceID != "WP_1" || res.Hits[0].Marker != "M1" {
		t.Errorf("Hits = %+v, want only WP_1 for M1", res.Hits)
	}
	if res.Candidates != 5 || res.Unknown != 1 || res.BelowCutoff != 2 {
		t.Errorf("counts = %d/%d/%d", res.Candidates, res.Unknown, res.BelowCutoff)
	}
	if res.Cached {
		t.Error("first search should not be cached")
	}
	inv := f.stage.Invocations()[0]
	if inv.Profile != f.searcher.cfg.Database {
		t.Errorf("search must run against the whole catalog database, got %q", inv.Profile)
	}
}

func TestSearch_ReusesValidTable(t *testing.T) {
	f := newFixture(t, testutil.Domtbl(testutil.DomtblRow("WP_1", "M1", 1e-50, 200, 1, 100)))

	first, err := f.searcher.Search(context.Background(), f.genome)
	if err != nil {
		t.Fatal(err)
	}
	second, err := f.searcher.Search(context.Background(), f.genome)
	if err != nil {
		t.Fatal(err)
	}

	if f.stage.Calls() != 1 {
		t.Errorf("search tool ran %d times, want 1", f.stage.Calls())
	}
	if !second.Cached || len(second.Hits) != len(first.Hits) {
		t.Errorf("second = %+v", second)
	}
}

func TestSearch_EmptyTableMeansNoHits(t *testing.T) {
	f := newFixture(t, "")

	res, err := f.searcher.Search(context.Background(), f.genome)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(res.Hits) != 0 || res.Candidates != 0 {
		t.Errorf("res = %+v, want a searched genome without hits", res)
	}

	again, err := f.searcher.Search(context.Background(), f.genome)
	if err != nil {
		t.Fatal(err)
	}
	if !again.Cached || f.stage.Calls() != 1 {
		t.Errorf("empty table should be reused, cached = %v, calls = %d", again.Cached, f.stage.Calls())
	}
}

func TestSearch_ToolFailure(t *testing.T) {
	f := newFixture(t, "")
	f.stage.Fn = func(ctx context.Context, inv tool.Invocation) error {
		return testutil.StageFailure(tool.KindSearch, "hmmsearch", 1, "Error: parse failed")
	}

	_, err := f.searcher.Search(context.Background(), f.genome)

	var searchErr *errors.SearchError
	if !errors.As(err, &searchErr) {
		t.Fatalf("err = %v, want SearchError", err)
	}
	if searchErr.Genome != "ecoli" || searchErr.ExitCode != 1 || searchErr.Stderr != "Error: parse failed" {
		t.Errorf("searchErr = %+v", searchErr)
	}
	if !errors.IsRecoverable(err) {
		t.Error("search failures should be recoverable")
	}
	if _, statErr := os.Stat(cache.SidecarPath(f.searcher.TablePath("ecoli"))); !os.IsNotExist(statErr) {
		t.Error("failed search must not leave a validity record")
	}
}

func TestSearch_TimeoutIsRetryable(t *testing.T) {
	f := newFixture(t, "")
	f.stage.Fn = func(ctx context.Context, inv tool.Invocation) error {
		return testutil.StageTimeout(tool.KindSearch, "hmmsearch", time.Minute)
	}

	_, err := f.searcher.Search(context.Background(), f.genome)

	var searchErr *errors.SearchError
	if !errors.As(err, &searchErr) || !searchErr.TimedOut {
		t.Fatalf("err = %v, want a timed out SearchError", err)
	}
	if !errors.IsRetryable(err) || !errors.Is(err, errors.ErrTimeout) {
		t.Errorf("timed out search should be retryable and match ErrTimeout: %v", err)
	}
}

func TestSearch_MalformedTable(t *testing.T) {
	f := newFixture(t, "WP_1 garbage\n")

	_, err := f.searcher.Search(context.Background(), f.genome)
	if !errors.Is(err, errors.ErrMalformedOutput) {
		t.Fatalf("err = %v, want ErrMalformedOutput", err)
	}

	if f.searcher.cfg.Store.Valid(f.searcher.TablePath("ecoli"), nil, nil) {
		t.Error("unparsable table should be invalidated")
	}
}

func TestSearch_UnknownSequence(t *testing.T) {
	f := newFixture(t, testutil.Domtbl(testutil.DomtblRow("WP_404", "M1", 1e-50, 200, 1, 100)))

	_, err := f.searcher.Search(context.Background(), f.genome)
	if !errors.Is(err, errors.ErrMalformedOutput) {
		t.Fatalf("err = %v, want ErrMalformedOutput", err)
	}
}

func TestNew_Validation(t *testing.T) {
	if _, err := New(Config{}, nil); err == nil {
		t.Error("empty config should fail")
	}
}
