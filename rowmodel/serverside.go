package rowmodel

import (
	"github.com/fulldump/rowmodel/blockcache"
	"github.com/fulldump/rowmodel/datasource"
	"github.com/fulldump/rowmodel/errs"
	"github.com/fulldump/rowmodel/events"
	"github.com/fulldump/rowmodel/query"
	"github.com/fulldump/rowmodel/rownode"
	"github.com/fulldump/rowmodel/selection"
	"github.com/fulldump/rowmodel/transaction"
)

// ServerSide loads rows in blocks from a Datasource as the viewport needs
// them. Rows not loaded yet are stubs; selection is kept as a select-all flag
// plus exceptions so it works while the row count is unknown.
type ServerSide struct {
	*base

	cache  *blockcache.Cache
	filter query.FilterModel
	sort   query.SortModel

	offStore func()
}

func newServerSide(b *base) (*ServerSide, error) {
	m := &ServerSide{base: b}

	loader := b.options.Loader
	if loader == nil {
		loader = blockcache.NewLoader(b.options.MaxConcurrentDatasourceRequests)
	}
	var getRowID func(data any, parentKeys []string) string
	if b.options.GetRowID != nil {
		getRowID = func(data any, _ []string) string {
			return b.options.GetRowID(data)
		}
	}

	cache, err := blockcache.New(blockcache.Config{
		BlockSize:            b.options.CacheBlockSize,
		MaxBlocksInCache:     b.options.MaxBlocksInCache,
		BlockLoadDebounce:    b.options.BlockLoadDebounce,
		GroupDefaultExpanded: b.options.GroupDefaultExpanded,
		GetRowID:             getRowID,
		Datasource:           b.options.Datasource,
		Loader:               loader,
		Clock:                b.options.Clock,
		Executor:             b.options.Executor,
		Loop:                 b.loop,
		Logger:               b.options.Logger,
	}, m.params())
	if err != nil {
		return nil, err
	}
	m.cache = cache

	b.strategy = selection.NewServerSide(cache, b.options.RowSelection, b.once)
	b.overlay.SetColumnsReady(true)

	m.offStore = b.loop.Bus().On(events.StoreUpdated, func(e events.Event) {
		m.loop.Do(func() {
			if m.destroyed {
				return
			}
			m.pushOverlay(m.overlay.RowDataUpdated(m.cache.DisplayedRowCount()))
		})
	})

	b.loop.Do(cache.Start)
	return m, nil
}

func (m *ServerSide) Type() Type {
	return ServerSideType
}

func (m *ServerSide) params() blockcache.Params {
	params := blockcache.Params{
		FilterModel:  m.filter,
		SortModel:    m.sort,
		RowGroupCols: []datasource.ColumnVO{},
		ValueCols:    []datasource.ColumnVO{},
		PivotCols:    []datasource.ColumnVO{},
	}
	for _, id := range m.groupCols {
		c, _ := m.column(id)
		params.RowGroupCols = append(params.RowGroupCols, c.vo())
	}
	for _, c := range m.valueColumns() {
		params.ValueCols = append(params.ValueCols, c.vo())
	}
	return params
}

// Cache exposes the block cache for inspection. Calls on it must go through
// the model's loop.
func (m *ServerSide) Cache() *blockcache.Cache {
	return m.cache
}

func (m *ServerSide) GetDisplayedRowAtIndex(index int) *rownode.RowNode {
	var n *rownode.RowNode
	m.loop.Do(func() {
		n = m.cache.GetDisplayedRowAtIndex(index)
	})
	return n
}

func (m *ServerSide) GetRowIndex(node *rownode.RowNode) int {
	index := rownode.NotDisplayedIndex
	m.loop.Do(func() {
		index = m.cache.GetRowIndex(node)
	})
	return index
}

func (m *ServerSide) GetDisplayedRowCount() int {
	var count int
	m.loop.Do(func() {
		count = m.cache.DisplayedRowCount()
	})
	return count
}

func (m *ServerSide) GetRowNode(id string) *rownode.RowNode {
	var n *rownode.RowNode
	m.loop.Do(func() {
		n = m.cache.GetRowNode(id)
	})
	return n
}

// ForEachNode visits the loaded rows. fn runs outside the lock.
func (m *ServerSide) ForEachNode(fn func(node *rownode.RowNode)) {
	nodes := []*rownode.RowNode{}
	m.loop.Do(func() {
		m.cache.ForEachNode(func(n *rownode.RowNode) {
			nodes = append(nodes, n)
		})
	})
	for _, n := range nodes {
		fn(n)
	}
}

func (m *ServerSide) SetRowData(records []any) error {
	return errs.NewInvalidOperation("setRowData", "rows of the server-side row model come from its datasource")
}

func (m *ServerSide) ApplyTransaction(tx *transaction.Transaction) (*transaction.Result, error) {
	return nil, errs.NewInvalidOperation("applyTransaction", "the server-side row model is refreshed through RefreshStore")
}

func (m *ServerSide) SetViewport(first, last int) {
	m.loop.Do(func() {
		m.cache.SetViewport(first, last)
	})
}

// RefreshStore reloads the store under route, the root when route is empty.
// With purge the store is dropped and shows stubs until reloaded.
func (m *ServerSide) RefreshStore(route []string, purge bool) error {
	var err error
	m.loop.Do(func() {
		ids := m.cache.PositionalIDs(route)
		err = m.cache.Refresh(route, purge)
		if err == nil {
			m.forgetPositional(ids)
		}
	})
	return err
}

func (m *ServerSide) RetryServerSideLoads() {
	m.loop.Do(m.cache.RetryFailed)
}

func (m *ServerSide) FilterModel() query.FilterModel {
	var f query.FilterModel
	m.loop.Do(func() {
		f = m.filter
	})
	return f
}

// SetFilterModel drops every store; the datasource applies the filter.
func (m *ServerSide) SetFilterModel(model query.FilterModel) error {
	m.loop.Do(func() {
		m.filter = model
		ids := m.cache.PositionalIDs(nil)
		m.cache.SetParams(m.params())
		m.forgetPositional(ids)
	})
	return nil
}

func (m *ServerSide) SortModel() query.SortModel {
	var s query.SortModel
	m.loop.Do(func() {
		s = m.sort
	})
	return s
}

// SetSortModel keeps the loaded rows on screen and reloads them, the visible
// ones first.
func (m *ServerSide) SetSortModel(model query.SortModel) {
	m.loop.Do(func() {
		m.sort = model
		ids := m.cache.PositionalIDs(nil)
		m.cache.SetSortModel(model)
		m.forgetPositional(ids)
	})
}

func (m *ServerSide) SetRowGroupColumns(ids []string) error {
	if err := m.checkColumns(ids); err != nil {
		return err
	}
	m.loop.Do(func() {
		m.groupCols = append([]string{}, ids...)
		positional := m.cache.PositionalIDs(nil)
		m.cache.SetParams(m.params())
		m.forgetPositional(positional)
	})
	return nil
}

// forgetPositional drops the selection exceptions held on positional ids.
// Reloaded rows reuse those ids for other records. The select-all flag stays.
func (m *ServerSide) forgetPositional(ids []string) {
	if len(ids) == 0 {
		return
	}
	if m.strategy.ProcessRemovedNodes(ids) {
		m.pushSelection("rowDataChanged", nil)
	}
}

func (m *ServerSide) SetExpanded(node *rownode.RowNode, expanded bool) {
	if node == nil {
		return
	}
	m.loop.Do(func() {
		if !node.Group || node.IsStub() || node.Expanded == expanded {
			return
		}
		m.cache.SetExpanded(node, expanded)
	})
}

func (m *ServerSide) ExpandedIDs() []string {
	var ids []string
	m.loop.Do(func() {
		ids = m.cache.ExpandedIDs()
	})
	return ids
}

func (m *ServerSide) SetExpandedIDs(ids []string) {
	m.loop.Do(func() {
		m.cache.RestoreExpanded(ids)
	})
}

// Destroy discards the cache. Requests in flight are ignored when they
// answer.
func (m *ServerSide) Destroy() {
	m.loop.Do(func() {
		if m.destroyed {
			return
		}
		m.destroyed = true
		m.cache.Destroy()
	})
	if m.offStore != nil {
		m.offStore()
	}
}
