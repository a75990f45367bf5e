// Package testutil provides fixtures for phyling tests: marker catalogs,
// genome files, hit tables and in-process fakes for external tools.
package testutil

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"testing"
)

// Profile returns a minimal HMMER3 text profile named name.
func Profile(name string) string {
	return "HMMER3/f [3.3.2 | Nov 2020]\n" +
		"NAME  " + name + "\n" +
		"LENG  100\n" +
		"ALPH  amino\n" +
		"HMM          A        C\n" +
		"  COMPO   2.5 2.7\n" +
		"//\n"
}

// WriteCatalog creates a catalog directory holding one profile per marker
// and returns its path.
func WriteCatalog(t *testing.T, markers ...string) string {
	t.Helper()

	dir := filepath.Join(t.TempDir(), "markers")
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatalf("failed to create catalog dir: %v", err)
	}
	for _, m := range markers {
		if err := os.WriteFile(filepath.Join(dir, m+".hmm"), []byte(Profile(m)), 0644); err != nil {
			t.Fatalf("failed to write profile %s: %v", m, err)
		}
	}
	return dir
}

// WriteGenome writes a proteome FASTA named "<id>.faa" into dir. records
// maps sequence IDs to residues and is written in sorted ID order.
func WriteGenome(t *testing.T, dir, id string, records map[string]string) string {
	t.Helper()

	ids := make([]string, 0, len(records))
	for seqID := range records {
		ids = append(ids, seqID)
	}
	slices.Sort(ids)

	var sb strings.Builder
	for _, seqID := range ids {
		fmt.Fprintf(&sb, ">%s\n%s\n", seqID, records[seqID])
	}

	path := filepath.Join(dir, id+".faa")
	if err := os.WriteFile(path, []byte(sb.String()), 0644); err != nil {
		t.Fatalf("failed to write genome %s: %v", id, err)
	}
	return path
}

// DomtblRow renders one HMMER domtblout row for sequence target matching
// marker with the given full-sequence E-value and score and envelope.
func DomtblRow(target, marker string, evalue, score float64, from, to int) string {
	e := strconv.FormatFloat(evalue, 'g', -1, 64)
	s := strconv.FormatFloat(score, 'f', 1, 64)
	return strings.Join([]string{
		target, "-", "300", marker, "-", "250", e, s, "0.1", "1", "1",
		e, e, s, "0.1", "1", "250",
		strconv.Itoa(from), strconv.Itoa(to), strconv.Itoa(from), strconv.Itoa(to),
		"0.98", "hypothetical protein",
	}, " ")
}

// Domtbl renders a complete domtblout file from rows.
func Domtbl(rows ...string) string {
	var sb strings.Builder
	sb.WriteString("# target name  accession  tlen query name ...\n")
	sb.WriteString("#------------------- ----------\n")
	for _, r := range rows {
		sb.WriteString(r)
		sb.WriteByte('\n')
	}
	sb.WriteString("# [ok]\n")
	return sb.String()
}
