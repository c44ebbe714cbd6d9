package selection

import (
	"sort"

	"github.com/fulldump/rowmodel/errs"
	"github.com/fulldump/rowmodel/rownode"
)

type ClientSideOptions struct {
	Mode Mode
	// Selecting a group selects its leaves; a group reads as selected when
	// all of them are.
	GroupSelectsChildren bool
	// Select all also selects the rows the filter hides, when the rows
	// implement UnfilteredRows.
	SelectAllIncludesFiltered bool
}

// ClientSide is the explicit strategy: the selected ids, every one of them
// an existing selectable node.
type ClientSide struct {
	rows    Rows
	options ClientSideOptions
	anchor  anchor

	selected map[string]int
	seq      int
}

func NewClientSide(rows Rows, options ClientSideOptions) *ClientSide {
	return &ClientSide{
		rows:     rows,
		options:  options,
		selected: map[string]int{},
	}
}

func (c *ClientSide) Mode() Mode {
	return c.options.Mode
}

func (c *ClientSide) SetNodesSelected(params SetSelectedParams) ([]string, error) {

	nodes, err := c.anchor.expand(c.rows, c.options.Mode, params)
	if err != nil {
		return nil, err
	}
	if c.options.GroupSelectsChildren {
		nodes = leavesOf(nodes)
	}

	changed := []string{}

	if params.NewValue && (params.ClearOthers || c.options.Mode == Single) {
		keep := map[string]bool{}
		for _, n := range nodes {
			keep[n.ID] = true
		}
		for id := range c.selected {
			if !keep[id] {
				delete(c.selected, id)
				changed = append(changed, id)
			}
		}
		sort.Strings(changed)
	}

	for _, n := range nodes {
		_, was := c.selected[n.ID]
		if was == params.NewValue {
			continue
		}
		if params.NewValue {
			c.seq++
			c.selected[n.ID] = c.seq
		} else {
			delete(c.selected, n.ID)
		}
		changed = append(changed, n.ID)
	}

	return changed, nil
}

func leavesOf(nodes []*rownode.RowNode) []*rownode.RowNode {
	result := make([]*rownode.RowNode, 0, len(nodes))
	seen := map[string]bool{}
	add := func(n *rownode.RowNode) {
		if seen[n.ID] || !n.Selectable {
			return
		}
		seen[n.ID] = true
		result = append(result, n)
	}
	for _, n := range nodes {
		if n.Group && len(n.AllLeafChildren) > 0 {
			if n.Data != nil && !n.Filler {
				// tree data node with its own record
				add(n)
			}
			for _, leaf := range n.AllLeafChildren {
				add(leaf)
			}
			continue
		}
		add(n)
	}
	return result
}

func (c *ClientSide) IsNodeSelected(node *rownode.RowNode) (bool, bool) {
	if c.selected == nil || node == nil {
		return false, false
	}
	if c.options.GroupSelectsChildren && node.Group && !node.IsFooter && len(node.AllLeafChildren) > 0 {
		count := 0
		for _, leaf := range node.AllLeafChildren {
			if _, ok := c.selected[leaf.ID]; ok {
				count++
			}
		}
		switch count {
		case 0:
			return false, true
		case len(node.AllLeafChildren):
			return true, true
		}
		return false, false
	}
	_, ok := c.selected[node.ID]
	return ok, true
}

// GetSelectedNodes returns the selected nodes in selection order.
func (c *ClientSide) GetSelectedNodes() []*rownode.RowNode {
	ids := c.orderedIDs()
	result := make([]*rownode.RowNode, 0, len(ids))
	for _, id := range ids {
		if n := c.rows.GetRowNode(id); n != nil {
			result = append(result, n)
		}
	}
	return result
}

func (c *ClientSide) orderedIDs() []string {
	ids := make([]string, 0, len(c.selected))
	for id := range c.selected {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		return c.selected[ids[i]] < c.selected[ids[j]]
	})
	return ids
}

func (c *ClientSide) GetSelectedRows() []any {
	nodes := c.GetSelectedNodes()
	rows := make([]any, 0, len(nodes))
	for _, n := range nodes {
		rows = append(rows, n.Data)
	}
	return rows
}

func (c *ClientSide) GetSelectionCount() int {
	return len(c.selected)
}

func (c *ClientSide) IsEmpty() bool {
	return len(c.selected) == 0
}

// SelectAllRowNodes selects every node the row model offers for select all,
// the filtered leaves by default.
func (c *ClientSide) SelectAllRowNodes() error {
	if c.options.Mode == Single {
		return errs.NewInvalidOperation("selectAllRowNodes", "not available in single selection mode")
	}
	each := c.rows.ForEachNode
	if all, ok := c.rows.(UnfilteredRows); ok && c.options.SelectAllIncludesFiltered {
		each = all.ForEachUnfilteredNode
	}
	each(func(n *rownode.RowNode) {
		if !n.Selectable || n.IsFooter {
			return
		}
		if _, ok := c.selected[n.ID]; ok {
			return
		}
		c.seq++
		c.selected[n.ID] = c.seq
	})
	return nil
}

func (c *ClientSide) DeselectAllRowNodes() {
	c.selected = map[string]int{}
	c.anchor.reset()
}

// GetSelectionState returns the explicit ids as a ServerSideState with
// SelectAll unset, so both strategies persist the same shape.
func (c *ClientSide) GetSelectionState() any {
	ids := c.orderedIDs()
	return ServerSideState{ToggledNodes: ids}
}

// SetSelectionState selects the toggled ids, or everything but them when
// selectAll is set. Unknown and unselectable ids are ignored.
func (c *ClientSide) SetSelectionState(state any) error {
	parsed, err := ParseServerSideState(state)
	if err != nil {
		return err
	}

	c.selected = map[string]int{}
	c.anchor.reset()

	if parsed.SelectAll {
		if err := c.SelectAllRowNodes(); err != nil {
			return err
		}
		for _, id := range parsed.ToggledNodes {
			delete(c.selected, id)
		}
		return nil
	}

	for _, id := range parsed.ToggledNodes {
		n := c.rows.GetRowNode(id)
		if n == nil || !n.Selectable {
			continue
		}
		c.seq++
		c.selected[id] = c.seq
	}
	return nil
}

func (c *ClientSide) ProcessRemovedNodes(ids []string) bool {
	changed := false
	for _, id := range ids {
		if _, ok := c.selected[id]; ok {
			delete(c.selected, id)
			changed = true
		}
		if c.anchor.last != nil && c.anchor.last.ID == id {
			c.anchor.reset()
		}
	}
	return changed
}

func (c *ClientSide) SetRowSelectionMode(mode Mode) {
	if mode == c.options.Mode {
		return
	}
	c.options.Mode = mode
	c.selected = map[string]int{}
	c.anchor.reset()
}
