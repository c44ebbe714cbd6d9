// Package blockcache is the lazy, server-backed store of the row model.
//
// Every level of the tree (the root, then each expanded group) is a Store
// partitioned into fixed size blocks. Stores decide which block to request
// next from the viewport, debounce the dispatch, and share a Loader that caps
// the requests in flight.
//
// Cache methods must run inside a turn of Config.Loop. Datasource callbacks,
// timers and scheduling checks start their own turns.
package blockcache

import (
	"context"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/fulldump/rowmodel/datasource"
	"github.com/fulldump/rowmodel/errs"
	"github.com/fulldump/rowmodel/events"
	"github.com/fulldump/rowmodel/query"
	"github.com/fulldump/rowmodel/rownode"
)

// Params are the upstream parameters every block request carries.
type Params struct {
	FilterModel  query.FilterModel
	SortModel    query.SortModel
	RowGroupCols []datasource.ColumnVO
	ValueCols    []datasource.ColumnVO
	PivotCols    []datasource.ColumnVO
	PivotMode    bool
}

type Config struct {
	BlockSize int
	// Loaded blocks kept per store before the least recently displayed are
	// evicted. <= 0 keeps all of them.
	MaxBlocksInCache int
	// Rows assumed past the last loaded one while the count is unknown.
	CacheOverflowSize int
	// Rows of a new store before its first block answers.
	InitialRowCount   int
	BlockLoadDebounce time.Duration
	// -1 expands every group level, n the first n.
	GroupDefaultExpanded int
	// Optional stable row ids. Positional ids are used otherwise.
	GetRowID func(data any, parentKeys []string) string

	Datasource datasource.Datasource
	Loader     *Loader
	Clock      Clock
	Executor   Executor
	Loop       *events.Loop
	Logger     zerolog.Logger
	Context    context.Context
}

func (c *Config) setDefaults() {
	if c.BlockSize <= 0 {
		c.BlockSize = 100
	}
	if c.CacheOverflowSize <= 0 {
		c.CacheOverflowSize = 1
	}
	if c.InitialRowCount <= 0 {
		c.InitialRowCount = 1
	}
	if c.Loader == nil {
		c.Loader = NewLoader(0)
	}
	if c.Clock == nil {
		c.Clock = RealClock()
	}
	if c.Executor == nil {
		c.Executor = GoExecutor()
	}
	if c.Context == nil {
		c.Context = context.Background()
	}
}

type Cache struct {
	config Config
	params Params
	log    zerolog.Logger

	root      *rownode.RowNode
	rootStore *Store

	byID     map[string]*rownode.RowNode
	expanded map[string]bool

	first, last int
	tick        int64

	offLoader func()
	destroyed bool
}

func New(config Config, params Params) (*Cache, error) {

	if config.Datasource == nil {
		return nil, errs.NewConfigurationError("server-side row model needs a datasource")
	}
	if config.Loop == nil {
		return nil, errs.NewConfigurationError("block cache needs an event loop")
	}
	config.setDefaults()

	c := &Cache{
		config:   config,
		params:   params,
		log:      config.Logger.With().Str("component", "blockcache").Logger(),
		root:     rownode.NewRoot(),
		byID:     map[string]*rownode.RowNode{},
		expanded: map[string]bool{},
	}
	c.rootStore = c.newStore(c.root, 0)
	c.layout()

	c.offLoader = config.Loader.OnCompletion(func() {
		config.Loop.Do(func() {
			c.forEachStore(func(s *Store) {
				s.queueLoadCheck()
			})
		})
	})

	return c, nil
}

func (c *Cache) Config() Config {
	return c.config
}

func (c *Cache) Params() Params {
	return c.params
}

func (c *Cache) Root() *rownode.RowNode {
	return c.root
}

func (c *Cache) RootStore() *Store {
	return c.rootStore
}

// Start queues the first scheduling check.
func (c *Cache) Start() {
	c.rootStore.queueLoadCheck()
}

func (c *Cache) Viewport() (first, last int) {
	return c.first, c.last
}

// SetViewport records the displayed range, inclusive, and lets every store
// reconsider what to load.
func (c *Cache) SetViewport(first, last int) {
	if last < first {
		last = first
	}
	c.first, c.last = first, last
	c.tick++
	c.forEachStore(func(s *Store) {
		s.queueLoadCheck()
	})
}

// SetParams changes the request parameters. Grouping and filtering change
// which rows exist, so every store is discarded.
func (c *Cache) SetParams(params Params) {
	c.params = params
	c.purge(c.root)
}

// SetSortModel keeps the rows but flags them for refresh, loaded first where
// the viewport is.
func (c *Cache) SetSortModel(model query.SortModel) {
	c.params.SortModel = model
	c.rootStore.refresh()
}

// Refresh reloads the store under the group at route, the root when route is
// empty. purge discards the store; otherwise rows stay displayed until their
// new data arrives.
func (c *Cache) Refresh(route []string, purge bool) error {
	s := c.StoreAt(route)
	if s == nil {
		return errs.NewInvalidOperation("refreshStore", "no store at route %v", route)
	}
	if purge {
		c.purge(s.parent)
		return nil
	}
	s.refresh()
	return nil
}

// RetryFailed puts failed blocks back in the scheduling.
func (c *Cache) RetryFailed() {
	c.forEachStore(func(s *Store) {
		s.retryFailed()
	})
}

func (c *Cache) purge(parent *rownode.RowNode) {
	if old, _ := parent.ChildStore.(*Store); old != nil {
		old.destroy()
	}
	level := 0
	if parent != c.root {
		level = parent.Level + 1
	}
	s := c.newStore(parent, level)
	if parent == c.root {
		c.rootStore = s
	}
	c.layout()
	c.config.Loop.Push(events.Event{Type: events.StoreUpdated, Source: "purge", Data: s.id})
	c.config.Loop.Push(events.Event{Type: events.ModelUpdated, Source: "purge"})
	s.queueLoadCheck()
}

// PositionalIDs lists the positional ids given to loaded leaves in the store
// at route and below it. Those ids name a position, not a record, so they
// point at other records once the rows are reloaded.
func (c *Cache) PositionalIDs(route []string) []string {
	s := c.StoreAt(route)
	if s == nil {
		return nil
	}
	ids := []string{}
	var collect func(s *Store)
	collect = func(s *Store) {
		for id := range s.positional {
			ids = append(ids, id)
		}
		s.forEachChild(collect)
	}
	collect(s)
	sort.Strings(ids)
	return ids
}

// StoreAt walks group keys from the root.
func (c *Cache) StoreAt(route []string) *Store {
	s := c.rootStore
	for _, key := range route {
		var found *rownode.RowNode
		s.nodes.Ascend(func(n *rownode.RowNode) bool {
			if n.Group && n.Key == key {
				found = n
				return false
			}
			return true
		})
		if found == nil {
			return nil
		}
		child, _ := found.ChildStore.(*Store)
		if child == nil {
			return nil
		}
		s = child
	}
	return s
}

func (c *Cache) isExpanded(n *rownode.RowNode) bool {
	if expanded, ok := c.expanded[n.ID]; ok {
		return expanded
	}
	d := c.config.GroupDefaultExpanded
	return d == -1 || n.Level < d
}

// SetExpanded opens or closes a server-side group. Opening creates its store
// the first time; closing keeps the store cached.
func (c *Cache) SetExpanded(n *rownode.RowNode, expanded bool) {
	c.expanded[n.ID] = expanded
	n.Expanded = expanded
	var child *Store
	if expanded && n.Group {
		child, _ = n.ChildStore.(*Store)
		if child == nil {
			child = c.newStore(n, n.Level+1)
		}
	}
	c.layout()
	c.config.Loop.Push(events.Event{Type: events.ModelUpdated, Source: "expanded", IDs: []string{n.ID}})
	if child != nil {
		child.queueLoadCheck()
	}
}

// ExpandedIDs lists the open groups: the loaded ones plus those opened
// explicitly that are not loaded right now.
func (c *Cache) ExpandedIDs() []string {
	seen := map[string]bool{}
	c.ForEachNode(func(n *rownode.RowNode) {
		if n.Group && n.Expanded {
			seen[n.ID] = true
		}
	})
	for id, open := range c.expanded {
		if open {
			seen[id] = true
		}
	}
	ids := make([]string, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// RestoreExpanded opens exactly the groups in ids. Groups not loaded yet open
// when they arrive.
func (c *Cache) RestoreExpanded(ids []string) {
	open := map[string]bool{}
	for _, id := range ids {
		open[id] = true
	}

	groups := []*rownode.RowNode{}
	c.ForEachNode(func(n *rownode.RowNode) {
		if n.Group {
			groups = append(groups, n)
		}
	})

	c.expanded = open
	opened := []*Store{}
	for _, n := range groups {
		c.expanded[n.ID] = open[n.ID]
		n.Expanded = open[n.ID]
		if !n.Expanded {
			continue
		}
		child, _ := n.ChildStore.(*Store)
		if child == nil {
			child = c.newStore(n, n.Level+1)
		}
		opened = append(opened, child)
	}
	c.layout()
	c.config.Loop.Push(events.Event{Type: events.ModelUpdated, Source: "expanded"})
	for _, s := range opened {
		s.queueLoadCheck()
	}
}

func (c *Cache) layout() {
	c.rootStore.layout(0)
}

func (c *Cache) DisplayedRowCount() int {
	return c.rootStore.displayEnd - c.rootStore.displayStart
}

// GetDisplayedRowAtIndex returns the row at display index i, materialising a
// stub when the slot was never loaded.
func (c *Cache) GetDisplayedRowAtIndex(i int) *rownode.RowNode {
	if i < 0 || i >= c.rootStore.displayEnd {
		return nil
	}
	return c.rootStore.rowAt(i)
}

func (c *Cache) GetRowIndex(n *rownode.RowNode) int {
	if n == nil || c.byID[n.ID] != n {
		return rownode.NotDisplayedIndex
	}
	return n.RowIndex
}

func (c *Cache) GetRowNode(id string) *rownode.RowNode {
	return c.byID[id]
}

// ForEachNode visits loaded nodes depth first in store order, including the
// rows of collapsed groups that are still cached.
func (c *Cache) ForEachNode(fn func(n *rownode.RowNode)) {
	var walk func(s *Store)
	walk = func(s *Store) {
		s.nodes.Ascend(func(n *rownode.RowNode) bool {
			if n.LoadState == rownode.Loaded || n.Data != nil {
				fn(n)
			}
			if child, _ := n.ChildStore.(*Store); child != nil {
				walk(child)
			}
			return true
		})
	}
	walk(c.rootStore)
}

func (c *Cache) forEachStore(fn func(s *Store)) {
	var walk func(s *Store)
	walk = func(s *Store) {
		if !s.live {
			return
		}
		fn(s)
		s.nodes.Ascend(func(n *rownode.RowNode) bool {
			if child, _ := n.ChildStore.(*Store); child != nil {
				walk(child)
			}
			return true
		})
	}
	walk(c.rootStore)
}

// Destroy discards every store. Requests in flight are dropped on arrival.
func (c *Cache) Destroy() {
	if c.destroyed {
		return
	}
	c.destroyed = true
	c.rootStore.destroy()
	if c.offLoader != nil {
		c.offLoader()
	}
}
