// Package selection tracks which rows are selected.
//
// ClientSide keeps an explicit set of ids and gives exact answers. ServerSide
// keeps a selectAll polarity plus the ids toggled against it, which stays
// correct when the total row count is unknown.
package selection

import (
	"github.com/fulldump/rowmodel/errs"
	"github.com/fulldump/rowmodel/rownode"
)

type Mode int

const (
	Multiple Mode = iota
	Single
)

func (m Mode) String() string {
	if m == Single {
		return "single"
	}
	return "multiple"
}

// CountUnknown is returned by GetSelectionCount while selectAll is set.
const CountUnknown = -1

type SetSelectedParams struct {
	Nodes    []*rownode.RowNode
	NewValue bool
	// Extend the selection to every displayed row between the anchor (the
	// last node selected) and Nodes[0].
	RangeSelect bool
	ClearOthers bool
}

// Rows is the view of the row model the strategies need. Strategies only
// hold ids and look nodes up through it.
type Rows interface {
	GetRowNode(id string) *rownode.RowNode
	GetRowIndex(node *rownode.RowNode) int
	GetDisplayedRowAtIndex(index int) *rownode.RowNode
	// ForEachNode visits the nodes select-all applies to, in display order
	// when they are displayed.
	ForEachNode(fn func(node *rownode.RowNode))
}

type Strategy interface {
	// SetNodesSelected returns the ids whose selection changed.
	SetNodesSelected(params SetSelectedParams) ([]string, error)
	// IsNodeSelected reports known=false when the answer is undefined: an
	// uninitialised strategy or a partially selected group.
	IsNodeSelected(node *rownode.RowNode) (selected, known bool)
	GetSelectedNodes() []*rownode.RowNode
	GetSelectedRows() []any
	GetSelectionCount() int
	IsEmpty() bool
	SelectAllRowNodes() error
	DeselectAllRowNodes()
	GetSelectionState() any
	SetSelectionState(state any) error
	// ProcessRemovedNodes forgets deleted ids. It returns true when the
	// selection changed.
	ProcessRemovedNodes(ids []string) bool
	SetRowSelectionMode(mode Mode)
	Mode() Mode
}

// UnfilteredRows is implemented by rows where a filter hides some nodes.
type UnfilteredRows interface {
	// ForEachUnfilteredNode is ForEachNode with the hidden nodes included.
	ForEachUnfilteredNode(fn func(node *rownode.RowNode))
}

// anchor holds the last node selected, the start of a range selection.
type anchor struct {
	last *rownode.RowNode
}

// expand resolves the nodes a call applies to and validates the mode.
func (a *anchor) expand(rows Rows, mode Mode, params SetSelectedParams) ([]*rownode.RowNode, error) {

	nodes := params.Nodes
	if mode == Single && len(nodes) > 1 {
		return nil, errs.NewInvalidOperation("setNodesSelected", "%d nodes passed in single selection mode", len(nodes))
	}

	if len(nodes) == 1 && params.RangeSelect && mode == Multiple && a.last != nil && rows != nil {
		from := rows.GetRowIndex(a.last)
		to := rows.GetRowIndex(nodes[0])
		if from >= 0 && to >= 0 {
			if from > to {
				from, to = to, from
			}
			ranged := make([]*rownode.RowNode, 0, to-from+1)
			for i := from; i <= to; i++ {
				n := rows.GetDisplayedRowAtIndex(i)
				if n == nil || n.IsFooter || n.IsStub() {
					continue
				}
				ranged = append(ranged, n)
			}
			nodes = ranged
		}
	}

	if len(params.Nodes) == 1 && params.NewValue && params.Nodes[0] != nil && !params.Nodes[0].IsStub() {
		a.last = params.Nodes[0]
	}

	// a stub id names a position until its row arrives
	selectable := nodes[:0:0]
	for _, n := range nodes {
		if n == nil || !n.Selectable || n.IsFooter || n.IsStub() {
			continue
		}
		selectable = append(selectable, n)
	}
	return selectable, nil
}

func (a *anchor) reset() {
	a.last = nil
}
