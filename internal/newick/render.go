package newick

import (
	"slices"
	"strings"

	"github.com/evolbioinfo/gotree/tree"
)

// Render draws the tree as indented ASCII art, one line per node, with
// children in canonical order.
//
//	┐
//	├─┐
//	│ ├─bsub
//	│ └─paer
//	└─ecoli
func (t *Tree) Render() []string {
	var lines []string
	render(t.t.Root(), nil, "", true, true, &lines)
	return lines
}

func render(n, parent *tree.Node, prefix string, last, root bool, lines *[]string) {
	connector := "├─"
	childPrefix := prefix + "│ "
	if last {
		connector = "└─"
		childPrefix = prefix + "  "
	}
	if root {
		connector = ""
		childPrefix = ""
	}

	kids := sortedChildren(n, parent)
	label := n.Name()
	if len(kids) > 0 {
		label = "┐"
		if n.Name() != "" {
			label = "┐ " + n.Name()
		}
	}
	*lines = append(*lines, strings.TrimRight(prefix+connector+label, " "))

	for i, c := range kids {
		render(c, n, childPrefix, i == len(kids)-1, false, lines)
	}
}

func sortedChildren(n, parent *tree.Node) []*tree.Node {
	kids := children(n, parent)
	slices.SortStableFunc(kids, func(a, b *tree.Node) int {
		return strings.Compare(canonical(a, n), canonical(b, n))
	})
	return kids
}
