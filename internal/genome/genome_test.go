package genome

import (
	"compress/gzip"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/Iron-Ham/phyling/internal/errors"
	"github.com/Iron-Ham/phyling/internal/seqio"
)

func writeGenome(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestIDFromPath(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"/data/ecoli.faa", "ecoli"},
		{"bsub.fasta", "bsub"},
		{"paer.faa.gz", "paer"},
		{"Strain.1.PEP", "Strain.1"},
		{"plain", "plain"},
		{".faa", ".faa"},
	}
	for _, tt := range tests {
		if got := IDFromPath(tt.path); got != tt.want {
			t.Errorf("IDFromPath(%q) = %q, want %q", tt.path, got, tt.want)
		}
	}
}

func TestDiscover(t *testing.T) {
	dir := t.TempDir()
	writeGenome(t, dir, "b.faa", ">p\nM\n")
	writeGenome(t, dir, "a.fasta", ">p\nM\n")
	writeGenome(t, dir, "readme.txt", "x")
	extra := writeGenome(t, t.TempDir(), "c.pep", ">p\nM\n")

	genomes, err := Discover([]string{extra}, dir, nil)
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	if got := strings.Join(IDs(genomes), ","); got != "a,b,c" {
		t.Errorf("IDs = %q, want a,b,c", got)
	}
}

func TestDiscover_IncludePatterns(t *testing.T) {
	dir := t.TempDir()
	writeGenome(t, dir, "GCF_1.faa", ">p\nM\n")
	writeGenome(t, dir, "GCA_2.faa", ">p\nM\n")

	genomes, err := Discover(nil, dir, []string{"GCF_*"})
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	if len(genomes) != 1 || genomes[0].ID != "GCF_1" {
		t.Errorf("genomes = %v", IDs(genomes))
	}

	if _, err := Discover(nil, dir, []string{"[unclosed"}); !errors.Is(err, errors.ErrInvalidInput) {
		t.Errorf("bad pattern error = %v", err)
	}
}

func TestDiscover_DuplicateID(t *testing.T) {
	a := writeGenome(t, t.TempDir(), "ecoli.faa", ">p\nM\n")
	b := writeGenome(t, t.TempDir(), "ecoli.fasta", ">p\nM\n")

	_, err := Discover([]string{a, b}, "", nil)
	if !errors.Is(err, errors.ErrDuplicateGenome) {
		t.Fatalf("error = %v, want ErrDuplicateGenome", err)
	}

	genomes, err := Discover([]string{a, a}, "", nil)
	if err != nil || len(genomes) != 1 {
		t.Errorf("same file twice should be collapsed: %v, %v", IDs(genomes), err)
	}
}

func TestDiscover_MissingFile(t *testing.T) {
	_, err := Discover([]string{filepath.Join(t.TempDir(), "missing.faa")}, "", nil)
	if !errors.Is(err, errors.ErrInvalidInput) {
		t.Errorf("error = %v, want ErrInvalidInput", err)
	}
}

func TestRequire(t *testing.T) {
	three := []*Genome{New("a.faa"), New("b.faa"), New("c.faa")}

	if err := Require(nil, 3); !errors.Is(err, errors.ErrNoGenomes) {
		t.Errorf("Require(nil) = %v", err)
	}
	if err := Require(three[:2], 3); !errors.Is(err, errors.ErrTooFewGenomes) {
		t.Errorf("Require(2) = %v", err)
	}
	if err := Require(three, 3); err != nil {
		t.Errorf("Require(3) = %v", err)
	}
}

func TestSequence(t *testing.T) {
	path := writeGenome(t, t.TempDir(), "ecoli.faa", ">WP_1 desc\nMKV\n>WP_2\nMAL\n")
	g := New(path)

	seq, err := g.Sequence("WP_2")
	if err != nil || string(seq) != "MAL" {
		t.Errorf("Sequence(WP_2) = %q, %v", seq, err)
	}
	var nf *errors.NotFoundError
	if _, err := g.Sequence("WP_9"); !errors.As(err, &nf) {
		t.Errorf("missing sequence error = %v", err)
	}
	if n, err := g.Len(); err != nil || n != 2 {
		t.Errorf("Len() = %d, %v", n, err)
	}
}

func TestSequence_DuplicateRecord(t *testing.T) {
	path := writeGenome(t, t.TempDir(), "g.faa", ">WP_1\nMKV\n>WP_1\nMAL\n")
	if _, err := New(path).Sequence("WP_1"); !errors.Is(err, errors.ErrInvalidInput) {
		t.Errorf("error = %v, want ErrInvalidInput", err)
	}
}

func TestSearchInput(t *testing.T) {
	plain := writeGenome(t, t.TempDir(), "a.faa", ">p\nM\n")
	if got, err := New(plain).SearchInput(t.TempDir()); err != nil || got != plain {
		t.Errorf("plain SearchInput = %q, %v", got, err)
	}

	dir := t.TempDir()
	gz := filepath.Join(dir, "b.faa.gz")
	writeGzip(t, gz, ">p1\nMKV\n")

	work := t.TempDir()
	got, err := New(gz).SearchInput(work)
	if err != nil {
		t.Fatalf("SearchInput: %v", err)
	}
	if got != filepath.Join(work, "genomes", "b.faa") {
		t.Errorf("SearchInput = %q", got)
	}
	recs, err := seqio.ReadFile(got)
	if err != nil || len(recs) != 1 || string(recs[0].Seq) != "MKV" {
		t.Errorf("decompressed records = %+v, %v", recs, err)
	}
}

func writeGzip(t *testing.T, path, content string) {
	t.Helper()
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	gz := gzip.NewWriter(f)
	if _, err := gz.Write([]byte(content)); err != nil {
		t.Fatal(err)
	}
	if err := gz.Close(); err != nil {
		t.Fatal(err)
	}
}
