package rowmodel

import (
	"fmt"
	"sort"

	"github.com/fulldump/rowmodel/aggregation"
	"github.com/fulldump/rowmodel/errs"
	"github.com/fulldump/rowmodel/events"
	"github.com/fulldump/rowmodel/grouping"
	"github.com/fulldump/rowmodel/immutable"
	"github.com/fulldump/rowmodel/query"
	"github.com/fulldump/rowmodel/rowcontainer"
	"github.com/fulldump/rowmodel/rownode"
	"github.com/fulldump/rowmodel/selection"
	"github.com/fulldump/rowmodel/transaction"
)

type stage int

const (
	stageGroup stage = iota
	stageFilter
	stageAggregate
	stageSort
	stageFlatten
)

// ClientSide keeps every record in memory. Each change re-runs the pipeline
// group, filter, aggregate, sort, flatten from the first stage it affects.
type ClientSide struct {
	*base

	root   *rownode.RowNode
	leaves []*rownode.RowNode
	byID   map[string]*rownode.RowNode
	seq    rownode.Sequence

	builder    *grouping.Builder
	aggregator *aggregation.Aggregator
	differ     *immutable.Differencer

	filter query.FilterModel
	sort   query.SortModel

	container *rowcontainer.Container
	paginator *rowcontainer.Paginator

	// rows were given at least once
	loaded bool
}

func newClientSide(b *base) *ClientSide {
	m := &ClientSide{
		base: b,
		root: rownode.NewRoot(),
		byID: map[string]*rownode.RowNode{},
		differ: &immutable.Differencer{
			ID: immutable.IDFunc(b.options.GetRowID),
		},
	}
	m.builder = grouping.NewBuilder(m.groupingOptions())

	valueCols := []aggregation.ValueColumn{}
	for _, c := range b.valueColumns() {
		valueCols = append(valueCols, aggregation.ValueColumn{Field: c.field(), AggFunc: c.AggFunc})
	}
	m.aggregator = &aggregation.Aggregator{
		Columns:                 valueCols,
		DefaultAggFunc:          b.options.DefaultAggFunc,
		Functions:               b.options.AggFuncs,
		SuppressAggFilteredOnly: b.options.SuppressAggFilteredOnly,
		Getter:                  b.options.Getter,
		Once:                    b.once,
	}

	if b.options.Pagination {
		m.paginator = &rowcontainer.Paginator{
			PageSize:          b.options.PaginationPageSize,
			PaginateChildRows: b.options.PaginateChildRows,
		}
	}

	b.strategy = selection.NewClientSide(clientRows{m}, selection.ClientSideOptions{
		Mode:                 b.options.RowSelection,
		GroupSelectsChildren: b.options.GroupSelectsChildren,

		SelectAllIncludesFiltered: b.options.SelectAllIncludesFiltered,
	})
	b.overlay.SetColumnsReady(true)

	m.builder.Build(m.root, m.leaves)
	m.container = rowcontainer.Flatten(m.root, m.containerOptions(), nil)
	return m
}

func (m *ClientSide) Type() Type {
	return ClientSideType
}

func (m *ClientSide) groupingOptions() grouping.Options {
	return grouping.Options{
		GroupFields:             m.groupFields(),
		GetDataPath:             m.options.GetDataPath,
		GroupAllowUnbalanced:    m.options.GroupAllowUnbalanced,
		GroupIncludeFooter:      m.options.GroupIncludeFooter,
		GroupIncludeTotalFooter: m.options.GroupIncludeTotalFooter,
		GroupDefaultExpanded:    m.options.GroupDefaultExpanded,
		Getter:                  m.options.Getter,
	}
}

func (m *ClientSide) containerOptions() rowcontainer.Options {
	return rowcontainer.Options{
		GroupRemoveSingleChildren:       m.options.GroupRemoveSingleChildren,
		GroupRemoveLowestSingleChildren: m.options.GroupRemoveLowestSingleChildren,
	}
}

func (m *ClientSide) nodeID(data any) string {
	if m.options.GetRowID != nil {
		return m.options.GetRowID(data)
	}
	return m.seq.Next()
}

// refresh runs the pipeline from stage from to the end.
func (m *ClientSide) refresh(from stage, source string) error {
	if from <= stageGroup {
		m.builder.Build(m.root, m.leaves)
	}
	if from <= stageFilter {
		if err := grouping.Filter(m.root, m.filter); err != nil {
			return err
		}
	}
	if from <= stageAggregate {
		m.aggregator.AggregateTree(m.root)
	}
	if from <= stageSort {
		grouping.Sort(m.root, m.sort, m.options.Getter)
	}
	m.flatten(source)
	return nil
}

// refreshPaths is the incremental pipeline after a transaction: only the
// groups above touched nodes are aggregated again.
func (m *ClientSide) refreshPaths(touched []*rownode.RowNode, rebuilt bool, source string) {
	if err := grouping.Filter(m.root, m.filter); err != nil {
		m.once.Warn("filter:"+source, err)
	}
	if rebuilt {
		m.aggregator.AggregateTree(m.root)
	} else {
		m.aggregator.AggregatePaths(touched)
	}
	grouping.Sort(m.root, m.sort, m.options.Getter)
	m.flatten(source)
}

func (m *ClientSide) flatten(source string) {
	m.container = rowcontainer.Flatten(m.root, m.containerOptions(), m.container)
	if m.paginator != nil {
		m.paginator.SetPage(m.paginator.CurrentPage, m.container)
	}
	if m.loaded {
		m.pushOverlay(m.overlay.RowDataUpdated(m.container.Len()))
	}
	m.loop.Push(events.Event{Type: events.ModelUpdated, Source: source})
}

// lookup finds displayed or grouped nodes as well as leaves.
func (m *ClientSide) lookup(id string) *rownode.RowNode {
	if n, ok := m.byID[id]; ok {
		return n
	}
	if n := m.builder.Group(id); n != nil {
		return n
	}
	return m.container.Get(id)
}

// find resolves the record of an update or remove to its node, by id when
// there is an id function and by reference otherwise.
func (m *ClientSide) find(record any) *rownode.RowNode {
	if m.options.GetRowID != nil {
		return m.byID[m.options.GetRowID(record)]
	}
	for _, n := range m.leaves {
		if immutable.SameReference(n.Data, record) {
			return n
		}
	}
	return nil
}

func (m *ClientSide) passes(n *rownode.RowNode) bool {
	ok, err := query.Match(m.filter, n.Data)
	return err == nil && ok
}

func (m *ClientSide) GetDisplayedRowAtIndex(index int) *rownode.RowNode {
	var n *rownode.RowNode
	m.loop.Do(func() {
		n = m.container.At(index)
	})
	return n
}

func (m *ClientSide) GetRowIndex(node *rownode.RowNode) int {
	index := rownode.NotDisplayedIndex
	m.loop.Do(func() {
		index = m.container.IndexOf(node)
	})
	return index
}

func (m *ClientSide) GetDisplayedRowCount() int {
	var count int
	m.loop.Do(func() {
		count = m.container.Len()
	})
	return count
}

func (m *ClientSide) GetRowNode(id string) *rownode.RowNode {
	var n *rownode.RowNode
	m.loop.Do(func() {
		n = m.lookup(id)
	})
	return n
}

// ForEachNode visits groups and leaves depth first in group order. fn runs
// outside the lock.
func (m *ClientSide) ForEachNode(fn func(node *rownode.RowNode)) {
	nodes := []*rownode.RowNode{}
	m.loop.Do(func() {
		var walk func(n *rownode.RowNode)
		walk = func(n *rownode.RowNode) {
			for _, c := range n.Children {
				nodes = append(nodes, c)
				walk(c)
			}
		}
		walk(m.root)
	})
	for _, n := range nodes {
		fn(n)
	}
}

// SetRowData replaces every row. With GetRowID the new array is turned into
// a transaction so rows keep their nodes and only the record is swapped.
// ImmutableData without GetRowID falls back to a plain replace, reported
// once.
func (m *ClientSide) SetRowData(records []any) error {
	m.loop.Do(func() {
		if m.options.GetRowID != nil || m.options.ImmutableData {
			diff, err := m.differ.Diff(records, immutable.NewSnapshot(m.leaves), m.options.SuppressMaintainUnsortedOrder)
			if err == nil {
				m.setDelta(diff)
				return
			}
			m.once.Warn("setRowData:immutable", err)
		}
		m.replace(records)
	})
	return nil
}

func (m *ClientSide) setDelta(diff *immutable.Result) {
	if len(diff.Duplicates) > 0 {
		m.once.Warn("setRowData:duplicates", fmt.Errorf("duplicated row ids %v, first occurrence kept", diff.Duplicates))
	}

	result, removed := m.applyBuckets(diff.Transaction)
	m.loaded = true

	if diff.Order != nil && m.reorder(diff.Order) {
		m.refresh(stageGroup, "setRowData")
	} else {
		touched, rebuilt := m.builder.Apply(m.root, m.leaves, result.Add, result.Update, result.Remove)
		m.refreshPaths(touched, rebuilt, "setRowData")
	}

	m.afterRowData("setRowData", result, removed)
}

// reorder sorts leaves by their position in the incoming array and tells
// whether anything moved.
func (m *ClientSide) reorder(order map[string]int) bool {
	moved := false
	for i := 1; i < len(m.leaves); i++ {
		if order[m.leaves[i-1].ID] > order[m.leaves[i].ID] {
			moved = true
			break
		}
	}
	if !moved {
		return false
	}
	sort.SliceStable(m.leaves, func(i, j int) bool {
		return order[m.leaves[i].ID] < order[m.leaves[j].ID]
	})
	return true
}

func (m *ClientSide) replace(records []any) {
	previous := m.byID
	m.leaves = make([]*rownode.RowNode, 0, len(records))
	m.byID = make(map[string]*rownode.RowNode, len(records))
	if m.options.GetRowID == nil {
		m.seq.Reset()
	}

	for _, record := range records {
		id := m.nodeID(record)
		if _, exists := m.byID[id]; exists {
			m.once.Warn("setRowData:duplicates", fmt.Errorf("duplicated row id '%s', first occurrence kept", id))
			continue
		}
		n := rownode.New(id, record)
		m.leaves = append(m.leaves, n)
		m.byID[id] = n
	}
	m.loaded = true
	m.refresh(stageGroup, "setRowData")

	if m.options.GetRowID == nil {
		// sequential ids are reused by the new rows, so nothing selected
		// before can be trusted
		if !m.strategy.IsEmpty() {
			m.strategy.DeselectAllRowNodes()
			m.pushSelection("rowDataChanged", nil)
		}
	} else {
		removed := []string{}
		for id := range previous {
			if _, kept := m.byID[id]; !kept {
				removed = append(removed, id)
			}
		}
		sort.Strings(removed)
		if m.strategy.ProcessRemovedNodes(removed) {
			m.pushSelection("rowDataChanged", removed)
		}
	}

	m.loop.Push(events.Event{Type: events.RowDataUpdated, Source: "setRowData"})
}

// applyBuckets resolves a transaction against the leaves without touching
// the tree. Records that cannot be matched are skipped.
func (m *ClientSide) applyBuckets(tx *transaction.Transaction) (result *transaction.Result, removed []string) {
	result = &transaction.Result{}

	gone := map[*rownode.RowNode]bool{}
	for _, record := range tx.Remove {
		n := m.find(record)
		if n == nil || gone[n] {
			m.once.Warn("transaction:remove", errs.NewInvalidOperation("applyTransaction", "row to remove not found"))
			continue
		}
		gone[n] = true
		delete(m.byID, n.ID)
		result.Remove = append(result.Remove, n)
		removed = append(removed, n.ID)
	}
	if len(gone) > 0 {
		kept := make([]*rownode.RowNode, 0, len(m.leaves))
		for _, n := range m.leaves {
			if !gone[n] {
				kept = append(kept, n)
			}
		}
		m.leaves = kept
	}

	for _, record := range tx.Update {
		n := m.find(record)
		if n == nil {
			m.once.Warn("transaction:update", errs.NewInvalidOperation("applyTransaction", "row to update not found"))
			continue
		}
		n.Data = record
		result.Update = append(result.Update, n)
	}

	added := []*rownode.RowNode{}
	for _, record := range tx.Add {
		id := m.nodeID(record)
		if _, exists := m.byID[id]; exists {
			m.once.Warn("transaction:add", errs.NewInvalidOperation("applyTransaction", "duplicated row id '%s'", id))
			continue
		}
		n := rownode.New(id, record)
		m.byID[id] = n
		added = append(added, n)
	}
	result.Add = added

	at := len(m.leaves)
	if tx.AddIndex != nil {
		at = min(max(*tx.AddIndex, 0), len(m.leaves))
	}
	leaves := make([]*rownode.RowNode, 0, len(m.leaves)+len(added))
	leaves = append(leaves, m.leaves[:at]...)
	leaves = append(leaves, added...)
	leaves = append(leaves, m.leaves[at:]...)
	m.leaves = leaves

	return result, removed
}

func (m *ClientSide) afterRowData(source string, result *transaction.Result, removed []string) {
	if len(removed) > 0 && m.strategy.ProcessRemovedNodes(removed) {
		m.pushSelection("rowDataChanged", removed)
	}
	m.loop.Push(events.Event{Type: events.RowDataUpdated, Source: source, IDs: result.IDs()})
}

// ApplyTransaction adds, updates and removes rows in one step. Only the
// groups on the paths of the changed rows are recomputed.
func (m *ClientSide) ApplyTransaction(tx *transaction.Transaction) (*transaction.Result, error) {
	if tx == nil {
		return nil, errs.NewInvalidOperation("applyTransaction", "transaction is nil")
	}
	var result *transaction.Result
	m.loop.Do(func() {
		var removed []string
		result, removed = m.applyBuckets(tx)
		if result.Empty() {
			return
		}
		m.loaded = true
		if tx.AddIndex != nil && len(result.Add) > 0 {
			m.refresh(stageGroup, "transaction")
		} else {
			touched, rebuilt := m.builder.Apply(m.root, m.leaves, result.Add, result.Update, result.Remove)
			m.refreshPaths(touched, rebuilt, "transaction")
		}
		m.afterRowData("transaction", result, removed)
	})
	return result, nil
}

// SetViewport is recorded by the server-side model only; every client-side
// row is already loaded.
func (m *ClientSide) SetViewport(first, last int) {}

// RefreshStore runs the whole pipeline again. The route is ignored: there is
// a single store on the client side.
func (m *ClientSide) RefreshStore(route []string, purge bool) error {
	var err error
	m.loop.Do(func() {
		err = m.refresh(stageGroup, "refresh")
	})
	return err
}

func (m *ClientSide) RetryServerSideLoads() {}

func (m *ClientSide) FilterModel() query.FilterModel {
	var f query.FilterModel
	m.loop.Do(func() {
		f = m.filter
	})
	return f
}

// SetFilterModel filters the rows. A model connor rejects is returned as an
// error and the previous one stays in place.
func (m *ClientSide) SetFilterModel(model query.FilterModel) error {
	var err error
	m.loop.Do(func() {
		previous := m.filter
		m.filter = model
		if err = m.refresh(stageFilter, "filterChanged"); err == nil {
			return
		}
		m.filter = previous
		m.refresh(stageFilter, "filterChanged")
		err = fmt.Errorf("set filter model: %w", err)
	})
	return err
}

func (m *ClientSide) SortModel() query.SortModel {
	var s query.SortModel
	m.loop.Do(func() {
		s = m.sort
	})
	return s
}

func (m *ClientSide) SetSortModel(model query.SortModel) {
	m.loop.Do(func() {
		m.sort = model
		m.refresh(stageSort, "sortChanged")
	})
}

func (m *ClientSide) SetRowGroupColumns(ids []string) error {
	if err := m.checkColumns(ids); err != nil {
		return err
	}
	var err error
	m.loop.Do(func() {
		m.groupCols = append([]string{}, ids...)
		m.builder.SetOptions(m.groupingOptions())
		err = m.refresh(stageGroup, "rowGroupChanged")
	})
	return err
}

func (m *ClientSide) SetExpanded(node *rownode.RowNode, expanded bool) {
	if node == nil {
		return
	}
	m.loop.Do(func() {
		if !node.Group || node.IsFooter || node.Expanded == expanded {
			return
		}
		m.builder.SetExpanded(node, expanded)
		m.flatten("expanded")
	})
}

// ExpandedIDs lists the open groups, sorted.
func (m *ClientSide) ExpandedIDs() []string {
	ids := []string{}
	m.loop.Do(func() {
		var walk func(n *rownode.RowNode)
		walk = func(n *rownode.RowNode) {
			for _, c := range n.Children {
				if c.Group && c.Expanded && len(c.Children) > 0 {
					ids = append(ids, c.ID)
				}
				walk(c)
			}
		}
		walk(m.root)
	})
	sort.Strings(ids)
	return ids
}

// SetExpandedIDs opens exactly the given groups. Groups created later follow
// GroupDefaultExpanded.
func (m *ClientSide) SetExpandedIDs(ids []string) {
	m.loop.Do(func() {
		open := map[string]bool{}
		var walk func(n *rownode.RowNode)
		walk = func(n *rownode.RowNode) {
			for _, c := range n.Children {
				if c.Group {
					open[c.ID] = false
				}
				walk(c)
			}
		}
		walk(m.root)
		for _, id := range ids {
			open[id] = true
		}
		m.builder.RestoreExpanded(open)
		m.refresh(stageGroup, "expanded")
	})
}

func (m *ClientSide) PaginationGoToPage(page int) {
	if m.paginator == nil {
		return
	}
	m.loop.Do(func() {
		previous := m.paginator.CurrentPage
		m.paginator.SetPage(page, m.container)
		if m.paginator.CurrentPage != previous {
			m.loop.Push(events.Event{Type: events.ModelUpdated, Source: "pagination"})
		}
	})
}

func (m *ClientSide) PaginationCurrentPage() int {
	if m.paginator == nil {
		return 0
	}
	var page int
	m.loop.Do(func() {
		page = m.paginator.CurrentPage
	})
	return page
}

func (m *ClientSide) PaginationTotalPages() int {
	if m.paginator == nil {
		return 1
	}
	var total int
	m.loop.Do(func() {
		total = m.paginator.TotalPages(m.container)
	})
	return total
}

// PaginationBounds returns the inclusive display indexes of the current
// page, every row when pagination is off.
func (m *ClientSide) PaginationBounds() (first, last int) {
	m.loop.Do(func() {
		if m.paginator == nil {
			first, last = 0, m.container.Len()-1
			return
		}
		first, last = m.paginator.Bounds(m.container)
	})
	return
}

// Dump renders the group tree for debugging.
func (m *ClientSide) Dump() string {
	var s string
	m.loop.Do(func() {
		s = grouping.Dump(m.root)
	})
	return s
}

func (m *ClientSide) Destroy() {
	m.loop.Do(func() {
		m.destroyed = true
	})
}

// clientRows is the view the selection strategy reads, called with the lock
// already held.
type clientRows struct {
	m *ClientSide
}

func (r clientRows) GetRowNode(id string) *rownode.RowNode {
	return r.m.lookup(id)
}

func (r clientRows) GetRowIndex(node *rownode.RowNode) int {
	return r.m.container.IndexOf(node)
}

func (r clientRows) GetDisplayedRowAtIndex(index int) *rownode.RowNode {
	return r.m.container.At(index)
}

// ForEachNode visits the leaves passing the filter, which is what select all
// applies to.
func (r clientRows) ForEachNode(fn func(node *rownode.RowNode)) {
	for _, n := range r.m.leaves {
		if r.m.passes(n) {
			fn(n)
		}
	}
}

func (r clientRows) ForEachUnfilteredNode(fn func(node *rownode.RowNode)) {
	for _, n := range r.m.leaves {
		fn(n)
	}
}
