package selection

import (
	"bytes"
	"errors"
	"math/rand"
	"strconv"
	"strings"
	"testing"

	"github.com/fulldump/biff"
	"github.com/rs/zerolog"

	"github.com/fulldump/rowmodel/errs"
	"github.com/fulldump/rowmodel/logger"
	"github.com/fulldump/rowmodel/rownode"
)

type fakeRows struct {
	nodes []*rownode.RowNode
}

func newFakeRows(n int) *fakeRows {
	f := &fakeRows{}
	for i := 0; i < n; i++ {
		node := rownode.New(strconv.Itoa(i), map[string]any{"id": i})
		node.RowIndex = i
		f.nodes = append(f.nodes, node)
	}
	return f
}

func (f *fakeRows) GetRowNode(id string) *rownode.RowNode {
	for _, n := range f.nodes {
		if n.ID == id {
			return n
		}
	}
	return nil
}

func (f *fakeRows) GetRowIndex(node *rownode.RowNode) int {
	return node.RowIndex
}

func (f *fakeRows) GetDisplayedRowAtIndex(index int) *rownode.RowNode {
	if index < 0 || index >= len(f.nodes) {
		return nil
	}
	return f.nodes[index]
}

func (f *fakeRows) ForEachNode(fn func(node *rownode.RowNode)) {
	for _, n := range f.nodes {
		fn(n)
	}
}

func selectNodes(t *testing.T, s Strategy, value bool, nodes ...*rownode.RowNode) []string {
	changed, err := s.SetNodesSelected(SetSelectedParams{Nodes: nodes, NewValue: value})
	biff.AssertNil(err)
	return changed
}

func TestServerSide_SelectAllThenExcludeOne(t *testing.T) {

	rows := newFakeRows(5)
	s := NewServerSide(rows, Multiple, nil)

	biff.AssertNil(s.SelectAllRowNodes())
	nodeX := rows.nodes[2]
	changed := selectNodes(t, s, false, nodeX)
	biff.AssertEqual(changed, []string{"2"})

	for _, n := range rows.nodes {
		selected, known := s.IsNodeSelected(n)
		biff.AssertTrue(known)
		biff.AssertEqual(selected, n != nodeX)
	}
	biff.AssertEqual(s.GetSelectionCount(), -1)
	biff.AssertEqual(s.State(), ServerSideState{SelectAll: true, ToggledNodes: []string{"2"}})
}

func TestServerSide_CountSentinel(t *testing.T) {

	s := NewServerSide(&fakeRows{}, Multiple, nil)
	biff.AssertEqual(s.GetSelectionCount(), 0)
	biff.AssertTrue(s.IsEmpty())

	biff.AssertNil(s.SelectAllRowNodes())
	biff.AssertEqual(s.GetSelectionCount(), CountUnknown)
	biff.AssertFalse(s.IsEmpty())

	s.DeselectAllRowNodes()
	biff.AssertEqual(s.GetSelectionCount(), 0)
}

func TestServerSide_PolarityInvariant(t *testing.T) {

	rows := newFakeRows(20)
	s := NewServerSide(rows, Multiple, nil)
	r := rand.New(rand.NewSource(7))

	for step := 0; step < 500; step++ {
		switch r.Intn(6) {
		case 0:
			biff.AssertNil(s.SelectAllRowNodes())
		case 1:
			s.DeselectAllRowNodes()
		default:
			n := rows.nodes[r.Intn(len(rows.nodes))]
			selectNodes(t, s, r.Intn(2) == 0, n)
		}

		state := s.State()
		toggled := map[string]bool{}
		for _, id := range state.ToggledNodes {
			toggled[id] = true
		}
		for _, n := range rows.nodes {
			selected, _ := s.IsNodeSelected(n)
			biff.AssertEqual(selected, state.SelectAll != toggled[n.ID])
		}
	}
}

func TestServerSide_SingleMode(t *testing.T) {

	biff.Alternative("Single mode", func(a *biff.A) {

		rows := newFakeRows(3)
		s := NewServerSide(rows, Single, nil)

		a.Alternative("More than one node", func(a *biff.A) {
			_, err := s.SetNodesSelected(SetSelectedParams{Nodes: rows.nodes[:2], NewValue: true})
			invalid := &errs.InvalidOperationError{}
			biff.AssertTrue(errors.As(err, &invalid))
			biff.AssertTrue(s.IsEmpty())
		})

		a.Alternative("Selecting replaces", func(a *biff.A) {
			selectNodes(t, s, true, rows.nodes[0])
			changed := selectNodes(t, s, true, rows.nodes[1])
			biff.AssertEqual(changed, []string{"0", "1"})
			biff.AssertEqual(s.State().ToggledNodes, []string{"1"})
		})

		a.Alternative("Select all", func(a *biff.A) {
			err := s.SelectAllRowNodes()
			biff.AssertNotNil(err)
		})
	})
}

func TestServerSide_ClearOthers(t *testing.T) {

	rows := newFakeRows(4)
	s := NewServerSide(rows, Multiple, nil)
	biff.AssertNil(s.SelectAllRowNodes())
	selectNodes(t, s, false, rows.nodes[0])

	changed, err := s.SetNodesSelected(SetSelectedParams{
		Nodes:       rows.nodes[3:],
		NewValue:    true,
		ClearOthers: true,
	})
	biff.AssertNil(err)
	biff.AssertEqual(changed, []string{"1", "2"})
	biff.AssertEqual(s.State(), ServerSideState{ToggledNodes: []string{"3"}})
}

func TestServerSide_RangeSelect(t *testing.T) {

	rows := newFakeRows(10)
	s := NewServerSide(rows, Multiple, nil)

	selectNodes(t, s, true, rows.nodes[2])
	changed, err := s.SetNodesSelected(SetSelectedParams{
		Nodes:       rows.nodes[5:6],
		NewValue:    true,
		RangeSelect: true,
	})
	biff.AssertNil(err)
	biff.AssertEqual(changed, []string{"3", "4", "5"})

	// anchor moved to 5
	changed, err = s.SetNodesSelected(SetSelectedParams{
		Nodes:       rows.nodes[7:8],
		NewValue:    true,
		RangeSelect: true,
	})
	biff.AssertNil(err)
	biff.AssertEqual(changed, []string{"6", "7"})
	biff.AssertEqual(s.GetSelectionCount(), 6)
}

func TestServerSide_RemovedNodesKeepPolarity(t *testing.T) {

	rows := newFakeRows(3)
	s := NewServerSide(rows, Multiple, nil)
	biff.AssertNil(s.SelectAllRowNodes())
	selectNodes(t, s, false, rows.nodes[1])

	biff.AssertTrue(s.ProcessRemovedNodes([]string{"1"}))
	biff.AssertFalse(s.ProcessRemovedNodes([]string{"1"}))

	// the reused id does not inherit the old exclusion
	reused := rownode.New("1", nil)
	selected, _ := s.IsNodeSelected(reused)
	biff.AssertTrue(selected)
	biff.AssertTrue(s.State().SelectAll)
}

func TestServerSide_SetSelectionState(t *testing.T) {

	biff.Alternative("Set selection state", func(a *biff.A) {

		s := NewServerSide(newFakeRows(3), Multiple, nil)

		a.Alternative("Decoded json", func(a *biff.A) {
			err := s.SetSelectionState(map[string]any{
				"selectAll":    true,
				"toggledNodes": []any{"a", "b"},
			})
			biff.AssertNil(err)
			biff.AssertEqual(s.State(), ServerSideState{SelectAll: true, ToggledNodes: []string{"a", "b"}})
		})

		a.Alternative("Typed", func(a *biff.A) {
			err := s.SetSelectionState(&ServerSideState{ToggledNodes: []string{"x"}})
			biff.AssertNil(err)
			biff.AssertEqual(s.GetSelectionCount(), 1)
		})

		a.Alternative("Malformed", func(a *biff.A) {
			for _, state := range []any{
				[]string{"a"},
				map[string]any{"toggledNodes": []any{}},
				map[string]any{"selectAll": false, "toggledNodes": []any{1}},
				map[string]any{"selectAll": false, "extra": 1},
			} {
				err := s.SetSelectionState(state)
				invalid := &errs.InvalidOperationError{}
				biff.AssertTrue(errors.As(err, &invalid))
			}
		})
	})
}

func TestServerSide_GetSelectedNodesWarnsAfterSelectAll(t *testing.T) {

	buffer := &bytes.Buffer{}
	once := logger.NewOnce(zerolog.New(buffer))
	rows := newFakeRows(3)
	s := NewServerSide(rows, Multiple, once)

	selectNodes(t, s, true, rows.nodes[1])
	biff.AssertEqual(len(s.GetSelectedNodes()), 1)
	biff.AssertEqual(buffer.Len(), 0)

	biff.AssertNil(s.SelectAllRowNodes())
	selectNodes(t, s, false, rows.nodes[0])
	s.GetSelectedNodes()
	nodes := s.GetSelectedNodes()

	biff.AssertEqual(len(nodes), 2)
	biff.AssertEqual(strings.Count(buffer.String(), "\n"), 1)
	biff.AssertEqual(s.GetSelectedRows(), []any{rows.nodes[1].Data, rows.nodes[2].Data})
}

func TestServerSide_ModeChangeClears(t *testing.T) {

	rows := newFakeRows(3)
	s := NewServerSide(rows, Multiple, nil)
	biff.AssertNil(s.SelectAllRowNodes())

	s.SetRowSelectionMode(Multiple)
	biff.AssertEqual(s.GetSelectionCount(), -1)

	s.SetRowSelectionMode(Single)
	biff.AssertTrue(s.IsEmpty())
	biff.AssertEqual(s.Mode(), Single)
}

func TestServerSide_Uninitialised(t *testing.T) {
	s := &ServerSide{}
	_, known := s.IsNodeSelected(rownode.New("a", nil))
	biff.AssertFalse(known)
}

func TestServerSide_StubsNotSelectable(t *testing.T) {

	rows := newFakeRows(3)
	stub := rownode.NewStub("1", 0, 1)
	stub.RowIndex = 1
	stub.Selectable = true
	rows.nodes[1] = stub
	s := NewServerSide(rows, Multiple, nil)

	changed := selectNodes(t, s, true, stub)
	biff.AssertEqual(changed, []string{})
	biff.AssertEqual(s.State().ToggledNodes, []string{})

	// a stub is not an anchor either
	selectNodes(t, s, true, rows.nodes[0])
	selectNodes(t, s, true, stub)
	changed, err := s.SetNodesSelected(SetSelectedParams{
		Nodes:       rows.nodes[2:3],
		NewValue:    true,
		RangeSelect: true,
	})
	biff.AssertNil(err)
	biff.AssertEqual(changed, []string{"2"})
	biff.AssertEqual(s.State().ToggledNodes, []string{"0", "2"})
}
