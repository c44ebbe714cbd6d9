package grouping

import (
	"sort"

	"github.com/fulldump/rowmodel/query"
	"github.com/fulldump/rowmodel/rownode"
)

// AutoGroupColumn sorts group nodes by their key.
const AutoGroupColumn = "ag-Grid-AutoColumn"

// Filter sets ChildrenAfterFilter on every group under root. A group stays
// when any descendant leaf passes; a tree data node with children also stays
// when it passes itself.
func Filter(root *rownode.RowNode, filter query.FilterModel) error {

	var walk func(n *rownode.RowNode) (bool, error)
	walk = func(n *rownode.RowNode) (bool, error) {
		kept := make([]*rownode.RowNode, 0, len(n.Children))
		for _, c := range n.Children {
			if len(c.Children) > 0 {
				childKept, err := walk(c)
				if err != nil {
					return false, err
				}
				if childKept {
					kept = append(kept, c)
					continue
				}
				if c.Data == nil || c.Filler {
					continue
				}
			}
			if c.Group && c.Data == nil {
				continue
			}
			ok, err := query.Match(filter, c.Data)
			if err != nil {
				return false, err
			}
			if ok {
				kept = append(kept, c)
			}
		}
		n.ChildrenAfterFilter = kept
		return len(kept) > 0, nil
	}

	_, err := walk(root)
	return err
}

// Sort sets ChildrenAfterSort from ChildrenAfterFilter on every group.
// Column groups sort by key when the sort column is their field or the auto
// group column, by aggregate otherwise.
func Sort(root *rownode.RowNode, model query.SortModel, get query.ValueGetter) {
	if get == nil {
		get = query.Value
	}

	value := func(n *rownode.RowNode, col string) any {
		if n.Group && (n.Data == nil || n.Filler) {
			if col == n.Field || col == AutoGroupColumn {
				return n.Key
			}
			return n.AggData[col]
		}
		if col == AutoGroupColumn {
			return n.Key
		}
		v := get(n.Data, col)
		if v == nil && n.AggData != nil {
			return n.AggData[col]
		}
		return v
	}

	var walk func(n *rownode.RowNode)
	walk = func(n *rownode.RowNode) {
		children := n.ChildrenAfterFilter
		if children == nil {
			children = n.Children
		}
		sorted := make([]*rownode.RowNode, len(children))
		copy(sorted, children)
		if !model.Empty() {
			sort.SliceStable(sorted, func(i, j int) bool {
				for _, item := range model {
					c := query.Compare(value(sorted[i], item.ColID), value(sorted[j], item.ColID))
					if c == 0 {
						continue
					}
					if item.Sort == query.Desc {
						return c > 0
					}
					return c < 0
				}
				return false
			})
		}
		n.ChildrenAfterSort = sorted
		for _, c := range sorted {
			if len(c.Children) > 0 {
				walk(c)
			}
		}
	}
	walk(root)
}
