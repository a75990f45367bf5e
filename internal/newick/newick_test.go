package newick

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		leaves []string
	}{
		{"simple", "(a,b,c);", []string{"a", "b", "c"}},
		{"lengths and support", "((a:0.1,b:0.2)0.95:0.3,c:1e-3);", []string{"a", "b", "c"}},
		{"whitespace", "( a ,\n b,c ) ;", []string{"a", "b", "c"}},
		{"trailing newline", "((x,y),z);\n", []string{"x", "y", "z"}},
		{"named root", "(a,b)root;", []string{"a", "b"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tree, err := Parse(tt.input)
			if err != nil {
				t.Fatalf("Parse(%q): %v", tt.input, err)
			}
			if got := strings.Join(tree.Leaves(), "|"); got != strings.Join(tt.leaves, "|") {
				t.Errorf("Leaves() = %q, want %q", got, tt.leaves)
			}
		})
	}
}

func TestParse_Errors(t *testing.T) {
	inputs := []string{
		"",
		"(a,b)",
		"(a,b;",
		"(a,,b);",
		"(a:x,b);",
		"(a,b); extra",
	}
	for _, in := range inputs {
		if _, err := Parse(in); err == nil {
			t.Errorf("Parse(%q) should fail", in)
		}
	}
}

func TestString_RoundTrip(t *testing.T) {
	in := "((a:0.1,b:0.2)90:0.3,c:1);"
	tree, err := Parse(in)
	if err != nil {
		t.Fatal(err)
	}
	again, err := Parse(tree.String())
	if err != nil {
		t.Fatalf("re-parse %q: %v", tree.String(), err)
	}
	if tree.String() != again.String() {
		t.Errorf("String() not stable: %q vs %q", tree.String(), again.String())
	}
	if again.Topology() != tree.Topology() || again.Topology() != "((a,b),c);" {
		t.Errorf("topology changed: %q vs %q", tree.Topology(), again.Topology())
	}
}

func TestTopology(t *testing.T) {
	a, _ := Parse("((b:1,a:2):0.5,(d,c));")
	b, _ := Parse("((c,d)0.9,(a,b));")
	c, _ := Parse("((a,c),(b,d));")

	if a.Topology() != b.Topology() {
		t.Errorf("same topology rendered differently: %q vs %q", a.Topology(), b.Topology())
	}
	if a.Topology() == c.Topology() {
		t.Error("different topologies should differ")
	}
	if a.Topology() != "((a,b),(c,d));" {
		t.Errorf("Topology() = %q", a.Topology())
	}
}

func TestParseFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "species_tree.nwk")
	if err := os.WriteFile(path, []byte("(a,(b,c));\n(x,y);\n"), 0644); err != nil {
		t.Fatal(err)
	}
	tree, err := ParseFile(path)
	if err != nil {
		t.Fatalf("ParseFile: %v", err)
	}
	if len(tree.Leaves()) != 3 {
		t.Errorf("expected first tree only, got leaves %v", tree.Leaves())
	}
}

func TestRender(t *testing.T) {
	tree, _ := Parse("(ecoli,(paer,bsub));")
	want := []string{
		"┐",
		"├─┐",
		"│ ├─bsub",
		"│ └─paer",
		"└─ecoli",
	}
	got := tree.Render()
	if strings.Join(got, "\n") != strings.Join(want, "\n") {
		t.Errorf("Render() =\n%s\nwant\n%s", strings.Join(got, "\n"), strings.Join(want, "\n"))
	}
}
