// Package newick reads phylogenetic trees in Newick format and derives the
// views phyling needs from them: leaf sets, a canonical topology string
// and a text rendering. Parsing is done by gotree.
package newick

import (
	"fmt"
	"os"
	"slices"
	"strings"

	gonewick "github.com/evolbioinfo/gotree/io/newick"
	"github.com/evolbioinfo/gotree/tree"

	"github.com/Iron-Ham/phyling/internal/errors"
)

// Tree is a parsed Newick tree.
type Tree struct {
	t *tree.Tree
}

// Parse parses a single Newick tree terminated by ';'.
func Parse(s string) (*Tree, error) {
	text := strings.TrimSpace(s)
	if text == "" {
		return nil, errors.NewValidationError("empty newick input")
	}
	end := strings.IndexByte(text, ';')
	if end < 0 {
		return nil, malformed("expected ';'")
	}
	if rest := strings.TrimSpace(text[end+1:]); rest != "" {
		return nil, malformed("unexpected trailing input %q", rest)
	}

	parsed, err := gonewick.NewParser(strings.NewReader(text)).Parse()
	if err != nil {
		return nil, errors.NewValidationError("malformed newick").WithCause(err)
	}
	t := &Tree{t: parsed}
	for _, name := range t.Leaves() {
		if name == "" {
			return nil, malformed("unnamed leaf")
		}
	}
	return t, nil
}

// ParseFile parses the first tree in a file.
func ParseFile(path string) (*Tree, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read tree: %w", err)
	}
	text := strings.TrimSpace(string(data))
	if i := strings.IndexByte(text, ';'); i >= 0 {
		text = text[:i+1]
	}
	t, err := Parse(text)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return t, nil
}

// Leaves returns the sorted leaf names.
func (t *Tree) Leaves() []string {
	var names []string
	walk(t.t.Root(), nil, func(n, parent *tree.Node) {
		if len(children(n, parent)) == 0 {
			names = append(names, n.Name())
		}
	})
	slices.Sort(names)
	return names
}

// String renders the tree back to Newick, keeping names, supports and
// branch lengths.
func (t *Tree) String() string {
	return t.t.Newick()
}

// Topology renders the tree with children in canonical order and without
// branch lengths or internal labels. Two trees with the same rooted
// topology have the same Topology string.
func (t *Tree) Topology() string {
	return canonical(t.t.Root(), nil) + ";"
}

func canonical(n, parent *tree.Node) string {
	kids := children(n, parent)
	if len(kids) == 0 {
		return n.Name()
	}
	parts := make([]string, len(kids))
	for i, c := range kids {
		parts[i] = canonical(c, n)
	}
	slices.Sort(parts)
	return "(" + strings.Join(parts, ",") + ")"
}

// children returns the neighbours of n away from parent. gotree stores
// trees as undirected graphs, so the root is the only node without one.
func children(n, parent *tree.Node) []*tree.Node {
	var out []*tree.Node
	for _, c := range n.Neigh() {
		if c != parent {
			out = append(out, c)
		}
	}
	return out
}

func walk(n, parent *tree.Node, fn func(n, parent *tree.Node)) {
	fn(n, parent)
	for _, c := range children(n, parent) {
		walk(c, n, fn)
	}
}

func malformed(format string, args ...any) error {
	return errors.NewValidationError("malformed newick: " + fmt.Sprintf(format, args...))
}
