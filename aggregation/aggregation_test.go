package aggregation

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/fulldump/biff"
	"github.com/rs/zerolog"

	"github.com/fulldump/rowmodel/errs"
	"github.com/fulldump/rowmodel/logger"
	"github.com/fulldump/rowmodel/rownode"
)

func leaf(id string, data map[string]any) *rownode.RowNode {
	return rownode.New(id, data)
}

func group(id string, children ...*rownode.RowNode) *rownode.RowNode {
	g := rownode.New(id, nil)
	g.Group = true
	for _, c := range children {
		c.Parent = g
	}
	g.Children = children
	return g
}

func TestBuiltins(t *testing.T) {

	p := Params{Values: []any{3, nil, 1.5, 10}}

	v, _ := sumValues(p)
	biff.AssertEqual(v, 14.5)

	v, _ = minValue(p)
	biff.AssertEqual(v, 1.5)

	v, _ = maxValue(p)
	biff.AssertEqual(v, 10)

	v, _ = countValues(p)
	biff.AssertEqual(v, CountValue{Value: 4})

	v, _ = avgValues(Params{Values: []any{2, 4}})
	biff.AssertEqual(v, AvgValue{Count: 2, Value: 3})

	v, _ = firstValue(p)
	biff.AssertEqual(v, 3)
	v, _ = lastValue(p)
	biff.AssertEqual(v, 10)

	v, _ = sumValues(Params{Values: []any{nil, "x"}})
	biff.AssertNil(v)
}

func TestAggregateTree_NestedAverageKeepsWeight(t *testing.T) {

	a := group("a",
		leaf("1", map[string]any{"price": 10}),
		leaf("2", map[string]any{"price": 20}),
		leaf("3", map[string]any{"price": 30}),
	)
	b := group("b",
		leaf("4", map[string]any{"price": 100}),
	)
	root := group("root", a, b)

	agg := &Aggregator{
		Columns: []ValueColumn{
			{Field: "price", AggFunc: Avg},
		},
	}
	agg.AggregateTree(root)

	biff.AssertEqual(a.AggData["price"], AvgValue{Count: 3, Value: 20})
	biff.AssertEqual(root.AggData["price"], AvgValue{Count: 4, Value: 40})
}

func TestAggregateNode_DefaultAndFilteredChildren(t *testing.T) {

	l1 := leaf("1", map[string]any{"qty": 1})
	l2 := leaf("2", map[string]any{"qty": 2})
	g := group("g", l1, l2)
	g.ChildrenAfterFilter = []*rownode.RowNode{l2}

	agg := &Aggregator{
		Columns:        []ValueColumn{{Field: "qty"}},
		DefaultAggFunc: Max,
	}
	agg.AggregateNode(g)
	biff.AssertEqual(g.AggData["qty"], 2)

	agg.SuppressAggFilteredOnly = true
	agg.DefaultAggFunc = ""
	agg.AggregateNode(g)
	biff.AssertEqual(g.AggData["qty"], 3.0)
}

func TestAggregateNode_FailingCustomFunction(t *testing.T) {

	b := &bytes.Buffer{}
	once := logger.NewOnce(zerolog.New(b))
	failures := []*errs.AggregationFunctionError{}

	g1 := group("g1", leaf("1", map[string]any{"x": 1, "y": 1}))
	g2 := group("g2", leaf("2", map[string]any{"x": 2, "y": 2}))
	root := group("root", g1, g2)

	agg := &Aggregator{
		Columns: []ValueColumn{
			{Field: "x", Custom: func(p Params) (any, error) {
				panic("bad callback")
			}},
			{Field: "y", AggFunc: Sum},
		},
		Once: once,
		OnError: func(err *errs.AggregationFunctionError) {
			failures = append(failures, err)
		},
	}
	agg.AggregateTree(root)

	_, hasX := g1.AggData["x"]
	biff.AssertFalse(hasX)
	biff.AssertEqual(g1.AggData["y"], 1.0)
	biff.AssertEqual(g2.AggData["y"], 2.0)
	biff.AssertEqual(root.AggData["y"], 3.0)

	// one per group, reported once
	biff.AssertEqual(len(failures), 3)
	biff.AssertEqual(strings.Count(b.String(), "bad callback"), 1)
}

func TestAggregateNode_ErrorReturned(t *testing.T) {

	g := group("g", leaf("1", map[string]any{"x": 1}))
	var got error
	agg := &Aggregator{
		Columns: []ValueColumn{{Field: "x", Custom: func(p Params) (any, error) {
			return nil, errors.New("nope")
		}}},
		OnError: func(err *errs.AggregationFunctionError) { got = err },
	}
	agg.AggregateNode(g)

	var ae *errs.AggregationFunctionError
	biff.AssertTrue(errors.As(got, &ae))
	biff.AssertEqual(ae.NodeID, "g")
}

func TestAggregateNode_UnknownFunction(t *testing.T) {

	g := group("g", leaf("1", map[string]any{"x": 1}))
	var got error
	agg := &Aggregator{
		Columns: []ValueColumn{{Field: "x", AggFunc: "median"}},
		OnError: func(err *errs.AggregationFunctionError) { got = err },
	}
	agg.AggregateNode(g)

	var ce *errs.ConfigurationError
	biff.AssertTrue(errors.As(got, &ce))
}

func TestAggregatePaths(t *testing.T) {

	l1 := leaf("1", map[string]any{"x": 1})
	l2 := leaf("2", map[string]any{"x": 2})
	g1 := group("g1", l1)
	g2 := group("g2", l2)
	root := group("root", g1, g2)

	agg := &Aggregator{Columns: []ValueColumn{{Field: "x"}}}
	agg.AggregateTree(root)
	biff.AssertEqual(root.AggData["x"], 3.0)

	l1.Data = map[string]any{"x": 10}
	g2.AggData["marker"] = true
	agg.AggregatePaths([]*rownode.RowNode{l1})

	biff.AssertEqual(g1.AggData["x"], 10.0)
	biff.AssertEqual(root.AggData["x"], 12.0)
	// untouched branch is not recomputed
	biff.AssertEqual(g2.AggData["marker"], true)
}
