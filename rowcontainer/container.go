// Package rowcontainer flattens a row tree into the displayed sequence and
// answers index lookups on it.
package rowcontainer

import (
	"github.com/fulldump/rowmodel/rownode"
)

type Options struct {
	// Skip groups with a single child and display the child in their place.
	GroupRemoveSingleChildren bool
	// Same, only for groups whose children are leaves.
	GroupRemoveLowestSingleChildren bool
}

// Container is one flattened view. It is rebuilt on structural change;
// lookups are O(1).
type Container struct {
	rows []*rownode.RowNode
	byID map[string]int
	// display indexes of the rows directly under the root
	top []int
}

func (c *Container) Len() int {
	if c == nil {
		return 0
	}
	return len(c.rows)
}

// At returns the row at display index i, or nil.
func (c *Container) At(i int) *rownode.RowNode {
	if c == nil || i < 0 || i >= len(c.rows) {
		return nil
	}
	return c.rows[i]
}

// IndexOf returns the display index of node, or -1 when it is not displayed
// in this view.
func (c *Container) IndexOf(node *rownode.RowNode) int {
	if c == nil || node == nil {
		return rownode.NotDisplayedIndex
	}
	i, ok := c.byID[node.ID]
	if !ok || c.rows[i] != node {
		return rownode.NotDisplayedIndex
	}
	return i
}

func (c *Container) Get(id string) *rownode.RowNode {
	if c == nil {
		return nil
	}
	i, ok := c.byID[id]
	if !ok {
		return nil
	}
	return c.rows[i]
}

func (c *Container) Rows() []*rownode.RowNode {
	if c == nil {
		return nil
	}
	return c.rows
}

// Flatten walks root in display order. A group is followed by its children
// and its footer when expanded; the grand total footer goes last. RowIndex is
// set on every emitted node and cleared on the nodes of previous that are no
// longer displayed.
func Flatten(root *rownode.RowNode, options Options, previous *Container) *Container {

	c := &Container{
		byID: map[string]int{},
	}

	var walk func(parent *rownode.RowNode, top bool)
	walk = func(parent *rownode.RowNode, top bool) {
		for _, child := range parent.DisplayedChildren() {
			if options.skip(child) {
				walk(child, top)
				continue
			}
			c.add(child, top)
			if !isGroup(child) || !child.Expanded {
				continue
			}
			walk(child, false)
			if child.Footer != nil {
				c.add(child.Footer, false)
			}
		}
	}
	walk(root, true)

	if root.Footer != nil {
		c.add(root.Footer, true)
	}

	if previous != nil {
		for _, n := range previous.rows {
			if c.IndexOf(n) == rownode.NotDisplayedIndex {
				n.RowIndex = rownode.NotDisplayedIndex
			}
		}
	}

	return c
}

func (c *Container) add(n *rownode.RowNode, top bool) {
	i := len(c.rows)
	n.RowIndex = i
	c.rows = append(c.rows, n)
	c.byID[n.ID] = i
	if top {
		c.top = append(c.top, i)
	}
}

func isGroup(n *rownode.RowNode) bool {
	return n.Group && !n.IsFooter && len(n.Children) > 0
}

func (o Options) skip(n *rownode.RowNode) bool {
	if !isGroup(n) || len(n.Children) != 1 {
		return false
	}
	if o.GroupRemoveSingleChildren {
		return true
	}
	return o.GroupRemoveLowestSingleChildren && !isGroup(n.Children[0])
}
