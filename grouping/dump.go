package grouping

import (
	"fmt"

	"github.com/xlab/treeprint"

	"github.com/fulldump/rowmodel/rownode"
)

// Dump renders the tree under root, children in display order with footers
// last. Meant for logs and test failures.
func Dump(root *rownode.RowNode) string {
	tree := treeprint.New()
	tree.SetValue(root.ID)
	dump(tree, root)
	return tree.String()
}

func dump(tree treeprint.Tree, n *rownode.RowNode) {
	children := n.DisplayedChildren()
	for _, c := range children {
		label := describe(c)
		if len(c.Children) > 0 {
			dump(tree.AddBranch(label), c)
			continue
		}
		tree.AddNode(label)
	}
	if n.Footer != nil {
		tree.AddNode(describe(n.Footer))
	}
}

func describe(n *rownode.RowNode) string {
	switch {
	case n.IsFooter:
		return fmt.Sprintf("footer %s %v", n.Key, n.AggData)
	case n.Group && n.Data == nil:
		return fmt.Sprintf("%s=%s (%d) %v", n.Field, n.Key, len(n.AllLeafChildren), n.AggData)
	}
	return fmt.Sprintf("%s %v", n.ID, n.Data)
}
