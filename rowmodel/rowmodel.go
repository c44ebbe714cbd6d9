// Package rowmodel is the entry point of the library: a RowModel owns the row
// tree, its selection and overlay, and serialises every mutation through one
// event loop so listeners only ever observe complete states.
//
// Two implementations exist, chosen at construction. ClientSide holds every
// record in memory and groups, filters, aggregates, sorts and paginates them
// itself. ServerSide loads blocks lazily from a Datasource.
package rowmodel

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/fulldump/rowmodel/aggregation"
	"github.com/fulldump/rowmodel/blockcache"
	"github.com/fulldump/rowmodel/datasource"
	"github.com/fulldump/rowmodel/errs"
	"github.com/fulldump/rowmodel/events"
	"github.com/fulldump/rowmodel/logger"
	"github.com/fulldump/rowmodel/overlay"
	"github.com/fulldump/rowmodel/query"
	"github.com/fulldump/rowmodel/rownode"
	"github.com/fulldump/rowmodel/selection"
	"github.com/fulldump/rowmodel/transaction"
)

type Type string

const (
	ClientSideType Type = "clientSide"
	ServerSideType Type = "serverSide"
)

type Column struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
	Field       string `json:"field"`
	AggFunc     string `json:"aggFunc,omitempty"`
	// Grouped by this column, in the order columns are declared.
	RowGroup bool `json:"rowGroup,omitempty"`
}

func (c Column) field() string {
	if c.Field != "" {
		return c.Field
	}
	return c.ID
}

func (c Column) vo() datasource.ColumnVO {
	return datasource.ColumnVO{
		ID:          c.ID,
		DisplayName: c.DisplayName,
		Field:       c.field(),
		AggFunc:     c.AggFunc,
	}
}

type Options struct {
	Type    Type
	Columns []Column

	// Stable id of a record. Without it rows get sequential ids. With it
	// SetRowData computes a transaction against the current rows instead of
	// replacing them.
	GetRowID func(data any) string
	// Requires GetRowID. Missing it is reported once and SetRowData replaces
	// every row.
	ImmutableData bool
	// Keep the current row order on immutable updates instead of following
	// the new array.
	SuppressMaintainUnsortedOrder bool

	RowSelection         selection.Mode
	GroupSelectsChildren bool
	// Client side: select all also selects the rows the filter hides.
	SelectAllIncludesFiltered bool

	GetDataPath                     func(data any) []string
	GroupAllowUnbalanced            bool
	GroupIncludeFooter              bool
	GroupIncludeTotalFooter         bool
	GroupDefaultExpanded            int
	GroupRemoveSingleChildren       bool
	GroupRemoveLowestSingleChildren bool

	DefaultAggFunc          string
	AggFuncs                map[string]aggregation.Func
	SuppressAggFilteredOnly bool
	Getter                  query.ValueGetter

	Pagination         bool
	PaginationPageSize int
	PaginateChildRows  bool

	SuppressLoadingOverlay bool
	SuppressNoRowsOverlay  bool

	Datasource                      datasource.Datasource
	CacheBlockSize                  int
	MaxBlocksInCache                int
	MaxConcurrentDatasourceRequests int
	BlockLoadDebounce               time.Duration
	// Shared between models to cap their requests together.
	Loader   *blockcache.Loader
	Clock    blockcache.Clock
	Executor blockcache.Executor

	Logger zerolog.Logger
	// Shared bus, a private one when nil.
	Bus *events.Bus
}

func DefaultOptions() Options {
	return Options{
		Type:                            ClientSideType,
		CacheBlockSize:                  100,
		PaginationPageSize:              100,
		MaxConcurrentDatasourceRequests: 2,
		Logger:                          zerolog.Nop(),
	}
}

// RowModel is what a grid reads rows from and mutates them through. Every
// method is safe for concurrent use; events are emitted after the call has
// completed its mutation, so handlers may call back into the model.
type RowModel interface {
	Type() Type

	GetDisplayedRowAtIndex(index int) *rownode.RowNode
	GetRowIndex(node *rownode.RowNode) int
	GetDisplayedRowCount() int
	GetRowNode(id string) *rownode.RowNode
	ForEachNode(fn func(node *rownode.RowNode))

	SetRowData(records []any) error
	ApplyTransaction(tx *transaction.Transaction) (*transaction.Result, error)

	SetNodesSelected(params selection.SetSelectedParams) error
	IsNodeSelected(node *rownode.RowNode) (selected, known bool)
	SelectAllRowNodes() error
	DeselectAllRowNodes()
	GetSelectedNodes() []*rownode.RowNode
	GetSelectedRows() []any
	GetSelectionCount() int
	GetServerSideSelectionState() selection.ServerSideState
	SetServerSideSelectionState(state any) error
	SetRowSelectionMode(mode selection.Mode)

	SetViewport(first, last int)
	RefreshStore(route []string, purge bool) error
	RetryServerSideLoads()

	FilterModel() query.FilterModel
	SetFilterModel(model query.FilterModel) error
	SortModel() query.SortModel
	SetSortModel(model query.SortModel)
	RowGroupColumns() []string
	SetRowGroupColumns(ids []string) error
	SetExpanded(node *rownode.RowNode, expanded bool)
	ExpandedIDs() []string
	SetExpandedIDs(ids []string)

	Overlay() overlay.State
	ShowLoadingOverlay()
	ShowNoRowsOverlay()
	HideOverlay()

	On(t events.Type, handler events.Handler) (off func())
	Destroy()
}

// New builds the implementation options.Type names.
func New(options Options) (RowModel, error) {
	b := newBase(options)
	switch options.Type {
	case ClientSideType, "":
		return newClientSide(b), nil
	case ServerSideType:
		return newServerSide(b)
	}
	return nil, errs.NewConfigurationError("unknown row model type '%s'", options.Type)
}

// base holds what both implementations share: the loop, logging, the
// selection strategy and the overlay.
type base struct {
	options Options
	loop    *events.Loop
	log     zerolog.Logger
	once    *logger.Once

	strategy  selection.Strategy
	overlay   *overlay.Coordinator
	groupCols []string

	destroyed bool
}

func newBase(options Options) *base {
	log := options.Logger.With().Str("component", "rowmodel").Logger()
	b := &base{
		options: options,
		loop:    events.NewLoop(options.Bus),
		log:     log,
		once:    logger.NewOnce(log),
		overlay: overlay.NewCoordinator(overlay.Options{
			SuppressLoadingOverlay: options.SuppressLoadingOverlay,
			SuppressNoRowsOverlay:  options.SuppressNoRowsOverlay,
		}),
	}
	for _, c := range options.Columns {
		if c.RowGroup {
			b.groupCols = append(b.groupCols, c.ID)
		}
	}
	return b
}

func (b *base) column(id string) (Column, bool) {
	for _, c := range b.options.Columns {
		if c.ID == id {
			return c, true
		}
	}
	return Column{}, false
}

func (b *base) checkColumns(ids []string) error {
	for _, id := range ids {
		if _, ok := b.column(id); !ok {
			return errs.NewInvalidOperation("setRowGroupColumns", "column '%s' not found", id)
		}
	}
	return nil
}

func (b *base) groupFields() []string {
	fields := make([]string, 0, len(b.groupCols))
	for _, id := range b.groupCols {
		c, _ := b.column(id)
		fields = append(fields, c.field())
	}
	return fields
}

func (b *base) valueColumns() []Column {
	result := []Column{}
	for _, c := range b.options.Columns {
		if c.AggFunc != "" {
			result = append(result, c)
		}
	}
	return result
}

func (b *base) On(t events.Type, handler events.Handler) (off func()) {
	return b.loop.Bus().On(t, handler)
}

func (b *base) RowGroupColumns() []string {
	var ids []string
	b.loop.Do(func() {
		ids = append([]string{}, b.groupCols...)
	})
	return ids
}

func (b *base) pushSelection(source string, ids []string) {
	b.loop.Push(events.Event{Type: events.SelectionChanged, Source: source, IDs: ids})
}

func (b *base) pushOverlay(changed bool) {
	if !changed {
		return
	}
	state := b.overlay.State()
	b.log.Debug().Str("overlay", state.String()).Msg("overlay changed")
	b.loop.Push(events.Event{Type: events.OverlayChanged, Source: "overlay", Data: state})
}

func (b *base) SetNodesSelected(params selection.SetSelectedParams) error {
	var err error
	b.loop.Do(func() {
		var changed []string
		changed, err = b.strategy.SetNodesSelected(params)
		if err != nil || len(changed) == 0 {
			return
		}
		b.pushSelection("api", changed)
	})
	return err
}

func (b *base) IsNodeSelected(node *rownode.RowNode) (selected, known bool) {
	b.loop.Do(func() {
		selected, known = b.strategy.IsNodeSelected(node)
	})
	return
}

func (b *base) SelectAllRowNodes() error {
	var err error
	b.loop.Do(func() {
		if err = b.strategy.SelectAllRowNodes(); err != nil {
			return
		}
		b.pushSelection("selectAll", nil)
	})
	return err
}

func (b *base) DeselectAllRowNodes() {
	b.loop.Do(func() {
		if b.strategy.IsEmpty() {
			return
		}
		b.strategy.DeselectAllRowNodes()
		b.pushSelection("deselectAll", nil)
	})
}

func (b *base) GetSelectedNodes() []*rownode.RowNode {
	var nodes []*rownode.RowNode
	b.loop.Do(func() {
		nodes = b.strategy.GetSelectedNodes()
	})
	return nodes
}

func (b *base) GetSelectedRows() []any {
	var rows []any
	b.loop.Do(func() {
		rows = b.strategy.GetSelectedRows()
	})
	return rows
}

func (b *base) GetSelectionCount() int {
	var count int
	b.loop.Do(func() {
		count = b.strategy.GetSelectionCount()
	})
	return count
}

// GetServerSideSelectionState returns the compact selection form. The client
// side model reports its explicit ids in the same shape.
func (b *base) GetServerSideSelectionState() selection.ServerSideState {
	var state selection.ServerSideState
	b.loop.Do(func() {
		state, _ = b.strategy.GetSelectionState().(selection.ServerSideState)
	})
	return state
}

func (b *base) SetServerSideSelectionState(state any) error {
	var err error
	b.loop.Do(func() {
		if err = b.strategy.SetSelectionState(state); err != nil {
			return
		}
		b.pushSelection("api", nil)
	})
	return err
}

func (b *base) SetRowSelectionMode(mode selection.Mode) {
	b.loop.Do(func() {
		if b.strategy.Mode() == mode {
			return
		}
		wasEmpty := b.strategy.IsEmpty()
		b.strategy.SetRowSelectionMode(mode)
		if !wasEmpty {
			b.pushSelection("selectionModeChanged", nil)
		}
	})
}

func (b *base) Overlay() overlay.State {
	var state overlay.State
	b.loop.Do(func() {
		state = b.overlay.State()
	})
	return state
}

func (b *base) ShowLoadingOverlay() {
	b.loop.Do(func() {
		b.pushOverlay(b.overlay.ShowLoading())
	})
}

func (b *base) ShowNoRowsOverlay() {
	b.loop.Do(func() {
		b.pushOverlay(b.overlay.ShowNoRows())
	})
}

func (b *base) HideOverlay() {
	b.loop.Do(func() {
		b.pushOverlay(b.overlay.Hide())
	})
}
