package search

import (
	"strings"
	"testing"

	"github.com/Iron-Ham/phyling/internal/errors"
	"github.com/Iron-Ham/phyling/internal/testutil"
)

func TestParseDomtblout(t *testing.T) {
	table := testutil.Domtbl(
		testutil.DomtblRow("WP_1", "M1", 1e-50, 180.5, 10, 120),
		testutil.DomtblRow("WP_1", "M1", 1e-50, 180.5, 150, 240),
		testutil.DomtblRow("WP_2", "M1", 1e-20, 60, 5, 90),
		testutil.DomtblRow("WP_3", "M2", 1e-5, 20, 1, 50),
	)

	hits, err := ParseDomtblout(strings.NewReader(table), "ecoli")
	if err != nil {
		t.Fatalf("ParseDomtblout: %v", err)
	}
	if len(hits) != 3 {
		t.Fatalf("got %d hits, want 3 (domains folded)", len(hits))
	}

	first := hits[0]
	if first.Genome != "ecoli" || first.Marker != "M1" || first.SequenceID != "WP_1" {
		t.Errorf("first = %+v", first)
	}
	if first.Start != 10 || first.End != 240 {
		t.Errorf("region = %d..%d, want 10..240", first.Start, first.End)
	}
	if first.Score != 180.5 || first.EValue != 1e-50 {
		t.Errorf("score/evalue = %v/%v", first.Score, first.EValue)
	}
}

func TestParseDomtblout_Malformed(t *testing.T) {
	tests := []string{
		"WP_1 - 300 M1 - 250 1e-5\n",
		strings.Replace(testutil.DomtblRow("WP_1", "M1", 1e-5, 10, 1, 2), "10.0", "ten", 1) + "\n",
	}
	for _, in := range tests {
		if _, err := ParseDomtblout(strings.NewReader(in), "g"); !errors.Is(err, errors.ErrMalformedOutput) {
			t.Errorf("ParseDomtblout(%q) err = %v, want ErrMalformedOutput", in, err)
		}
	}
}

func TestParseTSV(t *testing.T) {
	in := "# marker\tseq\tscore\tevalue\tstart\tend\nM1\tWP_1\t99.5\t1e-40\t3\t210\n\nM2\tWP_9\t12\t0.001\t1\t80\n"

	hits, err := ParseTSV(strings.NewReader(in), "bsub")
	if err != nil {
		t.Fatalf("ParseTSV: %v", err)
	}
	if len(hits) != 2 {
		t.Fatalf("got %d hits", len(hits))
	}
	want := Hit{Genome: "bsub", Marker: "M1", SequenceID: "WP_1", Score: 99.5, EValue: 1e-40, Start: 3, End: 210}
	if hits[0] != want {
		t.Errorf("hits[0] = %+v, want %+v", hits[0], want)
	}

	if _, err := ParseTSV(strings.NewReader("M1\tWP_1\t99\n"), "g"); !errors.Is(err, errors.ErrMalformedOutput) {
		t.Errorf("short row err = %v", err)
	}
}

func TestParserFor(t *testing.T) {
	if _, err := ParserFor("domtblout"); err != nil {
		t.Error(err)
	}
	if _, err := ParserFor("TSV"); err != nil {
		t.Error(err)
	}
	if _, err := ParserFor("xml"); !errors.Is(err, errors.ErrInvalidInput) {
		t.Errorf("err = %v", err)
	}
}

func TestParsers_EmptyTable(t *testing.T) {
	tests := []struct {
		name  string
		parse Parser
		in    string
	}{
		{"domtblout empty", ParseDomtblout, ""},
		{"domtblout header only", ParseDomtblout, testutil.Domtbl()},
		{"tsv empty", ParseTSV, ""},
		{"tsv comment only", ParseTSV, "# marker\tseq\tscore\tevalue\tstart\tend\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hits, err := tt.parse(strings.NewReader(tt.in), "g")
			if err != nil || len(hits) != 0 {
				t.Errorf("hits = %v, err = %v, want none", hits, err)
			}
		})
	}
}
