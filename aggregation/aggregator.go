package aggregation

import (
	"fmt"

	"github.com/fulldump/rowmodel/errs"
	"github.com/fulldump/rowmodel/logger"
	"github.com/fulldump/rowmodel/query"
	"github.com/fulldump/rowmodel/rownode"
)

type ValueColumn struct {
	Field string `json:"field"`
	// AggFunc names a built-in or registered function. Empty falls back to
	// the aggregator default.
	AggFunc string `json:"aggFunc,omitempty"`
	Custom  Func   `json:"-"`
}

type Aggregator struct {
	Columns        []ValueColumn
	DefaultAggFunc string
	// Functions registered by name, looked up before the built-ins.
	Functions map[string]Func
	// Aggregate over every child, not only those passing the filter.
	SuppressAggFilteredOnly bool
	Getter                  query.ValueGetter

	Once *logger.Once
	// Called for every failed node, after the do-once report.
	OnError func(err *errs.AggregationFunctionError)
}

func (a *Aggregator) resolve(col ValueColumn) (Func, error) {
	if col.Custom != nil {
		return col.Custom, nil
	}
	name := col.AggFunc
	if name == "" {
		name = a.DefaultAggFunc
	}
	if name == "" {
		name = Sum
	}
	if f, ok := a.Functions[name]; ok {
		return f, nil
	}
	if f, ok := Builtin(name); ok {
		return f, nil
	}
	return nil, errs.NewConfigurationError("aggregation function '%s' of column '%s' not found", name, col.Field)
}

func (a *Aggregator) getter() query.ValueGetter {
	if a.Getter != nil {
		return a.Getter
	}
	return query.Value
}

func (a *Aggregator) children(node *rownode.RowNode) []*rownode.RowNode {
	if a.SuppressAggFilteredOnly || node.ChildrenAfterFilter == nil {
		return node.Children
	}
	return node.ChildrenAfterFilter
}

// AggregateTree recomputes every group bottom up.
func (a *Aggregator) AggregateTree(root *rownode.RowNode) {
	if len(a.Columns) == 0 {
		return
	}
	var walk func(n *rownode.RowNode)
	walk = func(n *rownode.RowNode) {
		for _, child := range n.Children {
			if child.Group {
				walk(child)
			}
		}
		a.AggregateNode(n)
	}
	walk(root)
}

// AggregatePaths recomputes only what the given nodes affect: each group
// among them and every ancestor, deepest first, each group once.
func (a *Aggregator) AggregatePaths(nodes []*rownode.RowNode) {
	if len(a.Columns) == 0 {
		return
	}
	byDepth := map[int][]*rownode.RowNode{}
	seen := map[*rownode.RowNode]bool{}
	maxDepth := 0
	for _, n := range nodes {
		depth := 0
		for p := n.Parent; p != nil; p = p.Parent {
			depth++
		}
		start, d := n.Parent, depth-1
		if n.Group && !n.IsFooter {
			start, d = n, depth
		}
		for p := start; p != nil; p, d = p.Parent, d-1 {
			if seen[p] {
				break
			}
			seen[p] = true
			byDepth[d] = append(byDepth[d], p)
			if d > maxDepth {
				maxDepth = d
			}
		}
	}
	for d := maxDepth; d >= 0; d-- {
		for _, group := range byDepth[d] {
			a.AggregateNode(group)
		}
	}
}

// AggregateNode computes node.AggData from its direct children. A failing
// function leaves that column absent and does not affect other columns or
// nodes.
func (a *Aggregator) AggregateNode(node *rownode.RowNode) {
	get := a.getter()
	children := a.children(node)
	result := make(map[string]any, len(a.Columns))

	for _, col := range a.Columns {
		f, err := a.resolve(col)
		if err != nil {
			a.report(col.Field, node, err)
			continue
		}
		values := make([]any, 0, len(children))
		for _, child := range children {
			if child.Group {
				values = append(values, child.AggData[col.Field])
				continue
			}
			values = append(values, get(child.Data, col.Field))
		}
		value, err := call(f, Params{Values: values, Column: col.Field, Node: node})
		if err != nil {
			a.report(col.Field, node, err)
			continue
		}
		result[col.Field] = value
	}

	node.AggData = result
	if node.Footer != nil {
		node.Footer.AggData = result
	}
}

func call(f Func, p Params) (value any, err error) {
	defer func() {
		if r := recover(); r != nil {
			value = nil
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return f(p)
}

func (a *Aggregator) report(column string, node *rownode.RowNode, cause error) {
	err := &errs.AggregationFunctionError{
		Column: column,
		NodeID: node.ID,
		Err:    cause,
	}
	if a.Once != nil {
		a.Once.Warn("aggregation:"+column, err)
	}
	if a.OnError != nil {
		a.OnError(err)
	}
}
