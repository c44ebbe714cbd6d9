package rowmodel

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/fulldump/biff"
	"github.com/rs/zerolog"

	"github.com/fulldump/rowmodel/errs"
	"github.com/fulldump/rowmodel/events"
	"github.com/fulldump/rowmodel/overlay"
	"github.com/fulldump/rowmodel/query"
	"github.com/fulldump/rowmodel/rownode"
	"github.com/fulldump/rowmodel/selection"
	"github.com/fulldump/rowmodel/transaction"
)

type recorder struct {
	events []events.Event
}

func (r *recorder) count(t events.Type) int {
	n := 0
	for _, e := range r.events {
		if e.Type == t {
			n++
		}
	}
	return n
}

func (r *recorder) last(t events.Type) events.Event {
	for i := len(r.events) - 1; i >= 0; i-- {
		if r.events[i].Type == t {
			return r.events[i]
		}
	}
	return events.Event{}
}

func record(id, country string, price float64) map[string]any {
	return map[string]any{"id": id, "country": country, "price": price}
}

func rowID(data any) string {
	return data.(map[string]any)["id"].(string)
}

func newClient(options Options) (*ClientSide, *recorder) {
	r := &recorder{}
	options.Type = ClientSideType
	options.Bus = events.NewBus()
	options.Bus.OnAny(func(e events.Event) {
		r.events = append(r.events, e)
	})
	m, err := New(options)
	biff.AssertNil(err)
	return m.(*ClientSide), r
}

func displayed(m RowModel) []string {
	ids := []string{}
	for i := 0; i < m.GetDisplayedRowCount(); i++ {
		ids = append(ids, m.GetDisplayedRowAtIndex(i).ID)
	}
	return ids
}

func groupedOptions() Options {
	options := DefaultOptions()
	options.Columns = []Column{
		{ID: "country", RowGroup: true},
		{ID: "price", AggFunc: "sum"},
	}
	options.GroupDefaultExpanded = -1
	options.GroupIncludeTotalFooter = true
	options.GetRowID = rowID
	return options
}

func TestNew_UnknownType(t *testing.T) {
	_, err := New(Options{Type: "infinite"})
	configuration := &errs.ConfigurationError{}
	biff.AssertTrue(errors.As(err, &configuration))
}

func TestClientSide_GroupsAndAggregates(t *testing.T) {

	biff.Alternative("Grouped rows", func(a *biff.A) {

		m, r := newClient(groupedOptions())
		biff.AssertEqual(m.Overlay(), overlay.Loading)

		biff.AssertNil(m.SetRowData([]any{
			record("1", "Spain", 10),
			record("2", "France", 5),
			record("3", "Spain", 2),
		}))

		biff.AssertEqual(displayed(m), []string{
			"row-group-country-Spain", "1", "3",
			"row-group-country-France", "2",
			"rowGroupFooter_ROOT_NODE_ID",
		})
		biff.AssertEqual(m.GetRowNode("row-group-country-Spain").AggData["price"], float64(12))
		biff.AssertEqual(m.GetDisplayedRowAtIndex(5).AggData["price"], float64(17))
		biff.AssertEqual(m.GetRowIndex(m.GetRowNode("2")), 4)
		biff.AssertEqual(m.Overlay(), overlay.Hidden)
		biff.AssertEqual(r.count(events.RowDataUpdated), 1)
		biff.AssertEqual(r.last(events.OverlayChanged).Data, overlay.Hidden)

		a.Alternative("Transaction", func(a *biff.A) {

			result, err := m.ApplyTransaction(&transaction.Transaction{
				Add:    []any{record("4", "France", 1)},
				Update: []any{record("1", "France", 10)},
				Remove: []any{record("3", "Spain", 2)},
			})
			biff.AssertNil(err)
			biff.AssertEqual(result.IDs(), []string{"4", "1", "3"})

			biff.AssertNil(m.GetRowNode("row-group-country-Spain"))
			biff.AssertNil(m.GetRowNode("3"))
			biff.AssertEqual(m.GetRowNode("row-group-country-France").AggData["price"], float64(16))
			biff.AssertEqual(m.GetDisplayedRowCount(), 5)
			biff.AssertEqual(r.last(events.RowDataUpdated).IDs, []string{"4", "1", "3"})
		})

		a.Alternative("Collapse", func(a *biff.A) {

			m.SetExpanded(m.GetRowNode("row-group-country-Spain"), false)
			biff.AssertEqual(displayed(m), []string{
				"row-group-country-Spain",
				"row-group-country-France", "2",
				"rowGroupFooter_ROOT_NODE_ID",
			})
			biff.AssertEqual(m.GetRowIndex(m.GetRowNode("1")), rownode.NotDisplayedIndex)
			biff.AssertEqual(m.ExpandedIDs(), []string{"row-group-country-France"})

			a.Alternative("Survives regrouping", func(a *biff.A) {
				biff.AssertNil(m.SetRowGroupColumns(nil))
				biff.AssertNil(m.SetRowGroupColumns([]string{"country"}))
				biff.AssertEqual(m.GetDisplayedRowCount(), 4)
			})

			a.Alternative("Restore", func(a *biff.A) {
				m.SetExpandedIDs([]string{"row-group-country-Spain"})
				biff.AssertEqual(m.ExpandedIDs(), []string{"row-group-country-Spain"})
				biff.AssertEqual(m.GetDisplayedRowCount(), 5)
			})
		})

		a.Alternative("Unknown group column", func(a *biff.A) {
			err := m.SetRowGroupColumns([]string{"nope"})
			invalid := &errs.InvalidOperationError{}
			biff.AssertTrue(errors.As(err, &invalid))
			biff.AssertEqual(m.RowGroupColumns(), []string{"country"})
		})
	})
}

func TestClientSide_RemovedRowsLeaveSelection(t *testing.T) {

	options := DefaultOptions()
	options.GetRowID = rowID
	m, r := newClient(options)

	m.SetRowData([]any{
		record("1", "Spain", 1),
		record("2", "Spain", 2),
		record("3", "Spain", 3),
	})

	biff.AssertNil(m.SetNodesSelected(selection.SetSelectedParams{
		Nodes:    []*rownode.RowNode{m.GetRowNode("1"), m.GetRowNode("3")},
		NewValue: true,
	}))
	biff.AssertEqual(m.GetSelectionCount(), 2)
	biff.AssertEqual(r.last(events.SelectionChanged).IDs, []string{"1", "3"})

	_, err := m.ApplyTransaction(&transaction.Transaction{Remove: []any{record("3", "", 0)}})
	biff.AssertNil(err)

	biff.AssertEqual(m.GetSelectionCount(), 1)
	biff.AssertEqual(r.last(events.SelectionChanged).Source, "rowDataChanged")
	biff.AssertEqual(m.GetServerSideSelectionState(), selection.ServerSideState{ToggledNodes: []string{"1"}})
}

func TestClientSide_ImmutableData(t *testing.T) {

	options := DefaultOptions()
	options.GetRowID = rowID
	options.ImmutableData = true
	m, r := newClient(options)

	a := record("a", "Spain", 1)
	b := record("b", "Spain", 2)
	c := record("c", "Spain", 3)
	m.SetRowData([]any{a, b, c})
	nodeB := m.GetRowNode("b")

	c2 := record("c", "France", 3)
	d := record("d", "Italy", 4)
	m.SetRowData([]any{c2, b, d})

	biff.AssertEqual(displayed(m), []string{"c", "b", "d"})
	biff.AssertTrue(m.GetRowNode("b") == nodeB)
	biff.AssertEqual(m.GetRowNode("c").Data, c2)
	biff.AssertNil(m.GetRowNode("a"))

	ids := r.last(events.RowDataUpdated).IDs
	biff.AssertEqual(ids, []string{"d", "c", "a"})
}

func TestClientSide_RowIDKeepsNodes(t *testing.T) {

	options := DefaultOptions()
	options.GetRowID = rowID
	m, r := newClient(options)

	france := record("2", "France", 2)
	m.SetRowData([]any{record("1", "Spain", 1), france})
	node := m.GetRowNode("1")

	updated := record("1", "Spain", 5)
	m.SetRowData([]any{updated, france})

	biff.AssertTrue(m.GetRowNode("1") == node)
	biff.AssertEqual(node.Data, updated)
	biff.AssertEqual(displayed(m), []string{"1", "2"})
	biff.AssertEqual(r.last(events.RowDataUpdated).IDs, []string{"1"})
}

func TestClientSide_ImmutableWithoutIDReplaces(t *testing.T) {

	buffer := &bytes.Buffer{}
	options := DefaultOptions()
	options.ImmutableData = true
	options.Logger = zerolog.New(buffer)
	m, _ := newClient(options)

	m.SetRowData([]any{record("a", "Spain", 1), record("b", "Spain", 2)})
	m.SetRowData([]any{record("c", "Spain", 3)})

	biff.AssertEqual(displayed(m), []string{"0"})
	biff.AssertEqual(strings.Count(buffer.String(), "setRowData:immutable"), 1)
}

func TestClientSide_FilterAndSort(t *testing.T) {

	m, _ := newClient(DefaultOptions())
	m.SetRowData([]any{
		record("a", "Spain", 10),
		record("b", "France", 5),
		record("c", "Italy", 1),
	})
	biff.AssertEqual(displayed(m), []string{"0", "1", "2"})

	biff.AssertNil(m.SetFilterModel(query.FilterModel{"price": map[string]any{"$gt": 3.0}}))
	biff.AssertEqual(displayed(m), []string{"0", "1"})

	m.SetSortModel(query.SortModel{{ColID: "price", Sort: query.Asc}})
	biff.AssertEqual(displayed(m), []string{"1", "0"})

	biff.AssertNil(m.SelectAllRowNodes())
	biff.AssertEqual(m.GetSelectionCount(), 2)

	biff.AssertNil(m.SetFilterModel(query.FilterModel{"price": map[string]any{"$gt": 100.0}}))
	biff.AssertEqual(m.GetDisplayedRowCount(), 0)
	biff.AssertEqual(m.Overlay(), overlay.NoRows)
}

func TestClientSide_SelectAllIncludesFiltered(t *testing.T) {

	biff.Alternative("Filtered rows", func(a *biff.A) {

		options := DefaultOptions()
		options.GetRowID = rowID
		m, _ := newClient(options)
		m.SetRowData([]any{
			record("a", "Spain", 10),
			record("b", "France", 5),
			record("c", "Italy", 1),
		})
		biff.AssertNil(m.SetFilterModel(query.FilterModel{"price": map[string]any{"$gt": 3.0}}))

		a.Alternative("Only the visible ones", func(a *biff.A) {
			biff.AssertNil(m.SelectAllRowNodes())
			biff.AssertEqual(m.GetServerSideSelectionState().ToggledNodes, []string{"a", "b"})
		})

		a.Alternative("Hidden ones too", func(a *biff.A) {
			options.SelectAllIncludesFiltered = true
			m, _ := newClient(options)
			m.SetRowData([]any{
				record("a", "Spain", 10),
				record("b", "France", 5),
				record("c", "Italy", 1),
			})
			biff.AssertNil(m.SetFilterModel(query.FilterModel{"price": map[string]any{"$gt": 3.0}}))

			biff.AssertNil(m.SelectAllRowNodes())
			biff.AssertEqual(m.GetSelectionCount(), 3)
			selected, _ := m.IsNodeSelected(m.GetRowNode("c"))
			biff.AssertTrue(selected)
		})
	})
}

func TestClientSide_RejectedFilterKeepsPrevious(t *testing.T) {

	m, _ := newClient(DefaultOptions())
	m.SetRowData([]any{record("a", "Spain", 10), 42})

	err := m.SetFilterModel(query.FilterModel{"price": 10.0})
	biff.AssertNotNil(err)
	biff.AssertTrue(m.FilterModel() == nil)
	biff.AssertEqual(m.GetDisplayedRowCount(), 2)
}

func TestClientSide_AddIndex(t *testing.T) {

	options := DefaultOptions()
	options.GetRowID = rowID
	m, _ := newClient(options)
	m.SetRowData([]any{record("a", "", 0), record("b", "", 0)})

	index := 1
	result, err := m.ApplyTransaction(&transaction.Transaction{
		Add:      []any{record("x", "", 0)},
		AddIndex: &index,
	})
	biff.AssertNil(err)
	biff.AssertEqual(len(result.Add), 1)
	biff.AssertEqual(displayed(m), []string{"a", "x", "b"})

	_, err = m.ApplyTransaction(nil)
	biff.AssertNotNil(err)
}

func TestClientSide_Pagination(t *testing.T) {

	options := DefaultOptions()
	options.Pagination = true
	options.PaginationPageSize = 2
	m, r := newClient(options)
	m.SetRowData([]any{record("a", "", 0), record("b", "", 0), record("c", "", 0)})

	biff.AssertEqual(m.PaginationTotalPages(), 2)
	first, last := m.PaginationBounds()
	biff.AssertEqual([]int{first, last}, []int{0, 1})

	before := r.count(events.ModelUpdated)
	m.PaginationGoToPage(1)
	biff.AssertEqual(m.PaginationCurrentPage(), 1)
	first, last = m.PaginationBounds()
	biff.AssertEqual([]int{first, last}, []int{2, 2})
	biff.AssertEqual(r.count(events.ModelUpdated), before+1)
}

func TestClientSide_HandlersReenter(t *testing.T) {

	m, _ := newClient(DefaultOptions())

	counts := []int{}
	m.On(events.RowDataUpdated, func(e events.Event) {
		counts = append(counts, m.GetDisplayedRowCount())
	})

	m.SetRowData([]any{record("a", "", 0), record("b", "", 0)})
	biff.AssertEqual(counts, []int{2})
}

func TestClientSide_ManualOverlay(t *testing.T) {

	m, r := newClient(DefaultOptions())
	m.SetRowData([]any{})
	biff.AssertEqual(m.Overlay(), overlay.NoRows)

	m.HideOverlay()
	biff.AssertEqual(m.Overlay(), overlay.Hidden)
	biff.AssertEqual(r.last(events.OverlayChanged).Data, overlay.Hidden)

	m.ShowLoadingOverlay()
	biff.AssertEqual(m.Overlay(), overlay.Loading)

	m.SetRowData([]any{record("a", "", 0)})
	biff.AssertEqual(m.Overlay(), overlay.Hidden)
}
