package blockcache

import (
	"sort"
	"strconv"

	"github.com/google/btree"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/fulldump/rowmodel/datasource"
	"github.com/fulldump/rowmodel/errs"
	"github.com/fulldump/rowmodel/events"
	"github.com/fulldump/rowmodel/query"
	"github.com/fulldump/rowmodel/rownode"
)

// Store is one level of the server-side tree: the children of parent.
// Only materialised rows have a node; the others are gaps that become stubs
// the first time they are looked up.
type Store struct {
	cache  *Cache
	id     string
	log    zerolog.Logger
	parent *rownode.RowNode
	level  int

	groupKeys []string

	// by StoreIndex
	nodes *btree.BTreeG[*rownode.RowNode]
	// displayed nodes by RowIndex, rebuilt by layout
	display *btree.BTreeG[*rownode.RowNode]

	blocks map[int]*Block
	// positional ids handed to loaded leaves, kept after eviction
	positional map[string]struct{}

	rowCount     int
	lastRowKnown bool
	live         bool

	visible      bool
	displayStart int
	displayEnd   int

	checkQueued bool
	timer       Timer
	target      int
}

func byStoreIndex(a, b *rownode.RowNode) bool {
	return a.StoreIndex < b.StoreIndex
}

func byRowIndex(a, b *rownode.RowNode) bool {
	return a.RowIndex < b.RowIndex
}

func storePivot(i int) *rownode.RowNode {
	return &rownode.RowNode{StoreIndex: i}
}

func rowPivot(i int) *rownode.RowNode {
	return &rownode.RowNode{RowIndex: i}
}

func (c *Cache) newStore(parent *rownode.RowNode, level int) *Store {
	s := &Store{
		cache:     c,
		id:        uuid.NewString(),
		parent:    parent,
		level:     level,
		groupKeys: parent.GroupKeys(),
		nodes:     btree.NewG(32, byStoreIndex),
		display:   btree.NewG(32, byRowIndex),
		blocks:     map[int]*Block{},
		positional: map[string]struct{}{},
		rowCount:   c.config.InitialRowCount,
		live:      true,
	}
	s.log = c.log.With().Str("store", s.id).Int("level", level).Logger()
	parent.ChildStore = s
	return s
}

func (s *Store) ID() string {
	return s.id
}

func (s *Store) Parent() *rownode.RowNode {
	return s.parent
}

func (s *Store) RowCount() int {
	return s.rowCount
}

func (s *Store) LastRowKnown() bool {
	return s.lastRowKnown
}

func (s *Store) Live() bool {
	return s.live
}

func (s *Store) Block(start int) *Block {
	return s.blocks[start]
}

// LoadingBlocks returns the starts of the blocks in flight, sorted.
func (s *Store) LoadingBlocks() []int {
	result := []int{}
	for start, b := range s.blocks {
		if b.State == BlockLoading {
			result = append(result, start)
		}
	}
	sort.Ints(result)
	return result
}

// Node returns the materialised node at storeIndex.
func (s *Store) Node(storeIndex int) *rownode.RowNode {
	n, _ := s.nodes.Get(storePivot(storeIndex))
	return n
}

func (s *Store) blockSize() int {
	return s.cache.config.BlockSize
}

func (s *Store) block(start int) *Block {
	b, ok := s.blocks[start]
	if !ok {
		b = &Block{Start: start, Size: s.blockSize()}
		s.blocks[start] = b
	}
	return b
}

func (s *Store) isLoading(start int) bool {
	b := s.blocks[start]
	return b != nil && b.State == BlockLoading
}

func (s *Store) idFor(storeIndex int) string {
	if s.parent.IsRoot() {
		return strconv.Itoa(storeIndex)
	}
	return s.parent.ID + "-" + strconv.Itoa(storeIndex)
}

func (s *Store) materialize(storeIndex, rowIndex int) *rownode.RowNode {
	n := rownode.NewStub(s.idFor(storeIndex), s.level, storeIndex)
	n.Parent = s.parent
	n.RowIndex = rowIndex
	if b := s.blocks[BlockStart(storeIndex, s.blockSize())]; b != nil {
		switch b.State {
		case BlockLoading:
			n.LoadState = rownode.Loading
		case BlockFailed:
			n.LoadState = rownode.Failed
		}
	}
	s.nodes.ReplaceOrInsert(n)
	if rowIndex >= 0 {
		s.display.ReplaceOrInsert(n)
	}
	s.cache.byID[n.ID] = n
	return n
}

func (s *Store) forget(n *rownode.RowNode) {
	s.nodes.Delete(n)
	if n.RowIndex >= 0 {
		s.display.Delete(n)
	}
	if s.cache.byID[n.ID] == n {
		delete(s.cache.byID, n.ID)
	}
	if child, _ := n.ChildStore.(*Store); child != nil {
		child.destroy()
		n.ChildStore = nil
	}
	n.RowIndex = rownode.NotDisplayedIndex
}

// layout assigns display indexes from start and returns the first index
// after this store.
func (s *Store) layout(start int) int {
	s.visible = true
	s.displayStart = start
	s.display.Clear(false)

	cursor := start
	prev := -1
	s.nodes.Ascend(func(n *rownode.RowNode) bool {
		cursor += n.StoreIndex - prev - 1
		n.RowIndex = cursor
		s.display.ReplaceOrInsert(n)
		cursor++
		if child, _ := n.ChildStore.(*Store); child != nil {
			if n.Expanded {
				cursor = child.layout(cursor)
			} else {
				child.hide()
			}
		}
		prev = n.StoreIndex
		return true
	})
	if rest := s.rowCount - prev - 1; rest > 0 {
		cursor += rest
	}

	s.displayEnd = cursor
	return cursor
}

func (s *Store) hide() {
	s.visible = false
	s.display.Clear(false)
	s.displayStart, s.displayEnd = 0, 0
	s.nodes.Ascend(func(n *rownode.RowNode) bool {
		n.RowIndex = rownode.NotDisplayedIndex
		if child, _ := n.ChildStore.(*Store); child != nil {
			child.hide()
		}
		return true
	})
}

// rowAt resolves display index di, which lies inside this store's range.
func (s *Store) rowAt(di int) *rownode.RowNode {
	var before *rownode.RowNode
	s.display.DescendLessOrEqual(rowPivot(di), func(n *rownode.RowNode) bool {
		before = n
		return false
	})

	storeIndex := di - s.displayStart
	if before != nil {
		if before.RowIndex == di {
			return before
		}
		after := before.RowIndex + 1
		if child, _ := before.ChildStore.(*Store); child != nil && before.Expanded && child.visible {
			if di < child.displayEnd {
				return child.rowAt(di)
			}
			after = child.displayEnd
		}
		storeIndex = before.StoreIndex + 1 + (di - after)
	}

	if storeIndex < 0 || storeIndex >= s.rowCount {
		return nil
	}
	return s.materialize(storeIndex, di)
}

func distance(index, first, last int) int {
	switch {
	case index < first:
		return first - index
	case index > last:
		return index - last
	}
	return 0
}

// nextBlock picks the block to request: the first viewport row that is a
// stub or needs refresh, else the flagged row closest to the viewport.
func (s *Store) nextBlock() (int, bool) {
	size := s.blockSize()
	first, last := s.cache.first, s.cache.last

	if s.visible {
		from, to := first, last
		if from < s.displayStart {
			from = s.displayStart
		}
		if to > s.displayEnd-1 {
			to = s.displayEnd - 1
		}
		for di := from; di <= to; di++ {
			n := s.rowAt(di)
			if n == nil || n.Parent != s.parent {
				continue
			}
			start := BlockStart(n.StoreIndex, size)
			if b := s.blocks[start]; b != nil {
				b.LastAccessed = s.cache.tick
			}
			if s.isLoading(start) {
				continue
			}
			if n.LoadState == rownode.Stub || n.NeedsRefreshWhenVisible {
				return start, true
			}
		}
	}

	best, bestDistance := -1, 0
	s.nodes.Ascend(func(n *rownode.RowNode) bool {
		if !n.NeedsRefreshWhenVisible || n.RowIndex < 0 {
			return true
		}
		start := BlockStart(n.StoreIndex, size)
		if s.isLoading(start) {
			return true
		}
		d := distance(n.RowIndex, first, last)
		if best < 0 || d < bestDistance {
			best, bestDistance = start, d
		}
		return true
	})

	return best, best >= 0
}

// queueLoadCheck coalesces scheduling requests into one check per executor
// run.
func (s *Store) queueLoadCheck() {
	if s.checkQueued || !s.live {
		return
	}
	s.checkQueued = true
	loop := s.cache.config.Loop
	s.cache.config.Executor.Post(func() {
		loop.Do(func() {
			s.checkQueued = false
			s.loadCheck()
		})
	})
}

func (s *Store) cancelTimer() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

func (s *Store) loadCheck() {
	if !s.live || s.cache.destroyed {
		return
	}
	loader := s.cache.config.Loader
	if loader.Saturated() {
		// the next completion anywhere runs this again
		return
	}

	start, ok := s.nextBlock()
	if !ok {
		s.cancelTimer()
		return
	}

	debounce := s.cache.config.BlockLoadDebounce
	if debounce <= 0 {
		if loader.TryAcquire() {
			s.dispatch(start)
		}
		return
	}

	if s.timer != nil && s.target == start {
		return
	}
	s.cancelTimer()
	s.target = start

	var timer Timer
	timer = s.cache.config.Clock.AfterFunc(debounce, func() {
		s.cache.config.Loop.Do(func() {
			if s.timer != timer {
				return
			}
			s.timer = nil
			if !s.live || s.isLoading(start) {
				return
			}
			if !loader.TryAcquire() {
				return
			}
			s.dispatch(start)
		})
	})
	s.timer = timer
}

func (s *Store) request(start int) datasource.Request {
	p := s.cache.params
	return datasource.Request{
		StartRow:     start,
		EndRow:       start + s.blockSize(),
		GroupKeys:    append([]string{}, s.groupKeys...),
		FilterModel:  p.FilterModel,
		SortModel:    p.SortModel,
		RowGroupCols: p.RowGroupCols,
		ValueCols:    p.ValueCols,
		PivotCols:    p.PivotCols,
		PivotMode:    p.PivotMode,
	}
}

// dispatch sends the request for block start. The caller holds a loader
// slot. The datasource is called once the turn is over.
func (s *Store) dispatch(start int) {
	b := s.block(start)
	b.State = BlockLoading
	b.Dirty = false
	s.nodes.AscendRange(storePivot(start), storePivot(b.End()), func(n *rownode.RowNode) bool {
		if n.LoadState == rownode.Stub || n.LoadState == rownode.Failed {
			n.LoadState = rownode.Loading
		}
		return true
	})

	loop := s.cache.config.Loop
	loader := s.cache.config.Loader
	completed := false
	complete := func(apply func()) {
		first := false
		loop.Do(func() {
			if completed {
				return
			}
			completed = true
			first = true
			if !s.live || s.cache.destroyed {
				s.log.Debug().Int("block", start).Msg("dropped result of discarded store")
				return
			}
			apply()
		})
		if first {
			// released after the turn, so the listeners can start theirs
			loader.Release()
		}
	}

	params := datasource.Params{
		Context:    s.cache.config.Context,
		Request:    s.request(start),
		ParentNode: s.parent,
		Success: func(result datasource.Result) {
			complete(func() {
				s.applySuccess(start, result)
			})
		},
		Fail: func(err error) {
			complete(func() {
				s.applyFailure(start, err)
			})
		},
	}

	s.log.Debug().Int("block", start).Strs("group_keys", s.groupKeys).Msg("load block")

	ds := s.cache.config.Datasource
	loop.After(func() {
		ds.GetRows(params)
	})

	s.queueLoadCheck()
}

func (s *Store) applySuccess(start int, result datasource.Result) {
	size := s.blockSize()
	b := s.block(start)
	dirty := b.Dirty
	b.State = BlockLoaded
	b.Dirty = false
	b.LastAccessed = s.cache.tick

	rows := result.RowData
	if len(rows) > size {
		s.log.Warn().Int("block", start).Int("rows", len(rows)).Msg("datasource returned more rows than the block size")
		rows = rows[:size]
	}

	wasKnown := s.lastRowKnown
	switch {
	case result.RowCount != nil:
		s.rowCount = *result.RowCount
		s.lastRowKnown = true
	case len(rows) < size:
		s.rowCount = start + len(rows)
		s.lastRowKnown = true
	case !s.lastRowKnown:
		if n := start + len(rows) + s.cache.config.CacheOverflowSize; n > s.rowCount {
			s.rowCount = n
		}
	}

	ids := make([]string, 0, len(rows))
	for i, data := range rows {
		index := start + i
		if index >= s.rowCount {
			break
		}
		n := s.Node(index)
		if n == nil {
			n = s.materialize(index, rownode.NotDisplayedIndex)
		}
		s.setData(n, data, dirty)
		ids = append(ids, n.ID)
	}
	s.nodes.AscendRange(storePivot(start+len(rows)), storePivot(b.End()), func(n *rownode.RowNode) bool {
		if n.LoadState == rownode.Loading {
			n.LoadState = rownode.Stub
		}
		return true
	})

	s.trim()
	s.evict()
	s.cache.layout()

	loop := s.cache.config.Loop
	loop.Push(events.Event{Type: events.StoreUpdated, Source: "blockLoaded", IDs: ids, Data: s.id})
	loop.Push(events.Event{Type: events.ModelUpdated, Source: "blockLoaded"})
	if s.parent.IsRoot() && s.lastRowKnown && !wasKnown {
		loop.Push(events.Event{Type: events.RowCountReady, Source: "blockLoaded", Data: s.rowCount})
	}

	s.queueLoadCheck()
	s.forEachChild(func(child *Store) {
		child.queueLoadCheck()
	})
}

func (s *Store) setData(n *rownode.RowNode, data any, dirty bool) {
	p := s.cache.params

	n.Data = data
	n.LoadState = rownode.Loaded
	n.NeedsRefreshWhenVisible = dirty
	n.Level = s.level
	n.Group = s.level < len(p.RowGroupCols)

	id := s.idFor(n.StoreIndex)
	if n.Group {
		field := p.RowGroupCols[s.level].Field
		key := query.KeyString(query.Value(data, field))
		if n.Key != key {
			if child, _ := n.ChildStore.(*Store); child != nil {
				child.destroy()
				n.ChildStore = nil
			}
		}
		n.Field = field
		n.Key = key
		id = rownode.GroupID(s.parent, field, key)
	}
	if get := s.cache.config.GetRowID; get != nil {
		id = get(data, s.groupKeys)
	} else if !n.Group {
		s.positional[id] = struct{}{}
	}
	if id != n.ID {
		if s.cache.byID[n.ID] == n {
			delete(s.cache.byID, n.ID)
		}
		n.ID = id
	}
	s.cache.byID[id] = n

	if n.Group {
		n.Expanded = s.cache.isExpanded(n)
		if n.Expanded && n.ChildStore == nil {
			s.cache.newStore(n, s.level+1)
		}
	}
}

func (s *Store) applyFailure(start int, err error) {
	b := s.block(start)
	b.State = BlockFailed
	b.Dirty = false

	end := b.End()
	if end > s.rowCount {
		end = s.rowCount
	}
	for i := start; i < end; i++ {
		n := s.Node(i)
		if n == nil {
			n = s.materialize(i, rownode.NotDisplayedIndex)
		}
		n.LoadState = rownode.Failed
		n.NeedsRefreshWhenVisible = false
	}
	s.cache.layout()

	failure := &errs.LoadFailure{StoreID: s.id, BlockStart: start, BlockEnd: b.End(), Err: err}
	s.log.Warn().Err(failure).Msg("block load failed")
	s.cache.config.Loop.Push(events.Event{Type: events.LoadFailed, Source: "blockFailed", Data: failure})

	s.queueLoadCheck()
}

func (s *Store) retryFailed() {
	retry := false
	for _, b := range s.blocks {
		if b.State != BlockFailed {
			continue
		}
		b.State = BlockNotRequested
		retry = true
		s.nodes.AscendRange(storePivot(b.Start), storePivot(b.End()), func(n *rownode.RowNode) bool {
			if n.LoadState == rownode.Failed {
				if n.Data == nil {
					n.LoadState = rownode.Stub
				} else {
					n.LoadState = rownode.Loaded
					n.NeedsRefreshWhenVisible = true
				}
			}
			return true
		})
	}
	if retry {
		s.queueLoadCheck()
	}
}

// refresh flags every row for reload, this store and below.
func (s *Store) refresh() {
	for _, b := range s.blocks {
		if b.State == BlockLoading {
			b.Dirty = true
		}
	}
	s.nodes.Ascend(func(n *rownode.RowNode) bool {
		if n.LoadState == rownode.Loaded {
			n.NeedsRefreshWhenVisible = true
		}
		return true
	})
	s.forEachChild(func(child *Store) {
		child.refresh()
	})
	s.queueLoadCheck()
}

func (s *Store) forEachChild(fn func(child *Store)) {
	s.nodes.Ascend(func(n *rownode.RowNode) bool {
		if child, _ := n.ChildStore.(*Store); child != nil && child.live {
			fn(child)
		}
		return true
	})
}

// trim drops rows past the row count.
func (s *Store) trim() {
	stale := []*rownode.RowNode{}
	s.nodes.AscendGreaterOrEqual(storePivot(s.rowCount), func(n *rownode.RowNode) bool {
		stale = append(stale, n)
		return true
	})
	for _, n := range stale {
		s.forget(n)
	}
	for start := range s.blocks {
		if start >= s.rowCount && start > 0 {
			delete(s.blocks, start)
		}
	}
}

// evict drops the least recently displayed loaded blocks over the limit.
// Blocks in flight, in the viewport or holding an open group stay.
func (s *Store) evict() {
	max := s.cache.config.MaxBlocksInCache
	if max <= 0 {
		return
	}

	loaded := []*Block{}
	for _, b := range s.blocks {
		if b.State == BlockLoaded {
			loaded = append(loaded, b)
		}
	}
	if len(loaded) <= max {
		return
	}
	sort.Slice(loaded, func(i, j int) bool {
		if loaded[i].LastAccessed != loaded[j].LastAccessed {
			return loaded[i].LastAccessed < loaded[j].LastAccessed
		}
		return loaded[i].Start < loaded[j].Start
	})

	first, last := s.cache.first, s.cache.last
	excess := len(loaded) - max
	for _, b := range loaded {
		if excess == 0 {
			break
		}
		nodes := []*rownode.RowNode{}
		keep := false
		s.nodes.AscendRange(storePivot(b.Start), storePivot(b.End()), func(n *rownode.RowNode) bool {
			if n.RowIndex >= first && n.RowIndex <= last {
				keep = true
			}
			if n.Expanded && n.ChildStore != nil {
				keep = true
			}
			nodes = append(nodes, n)
			return !keep
		})
		if keep {
			continue
		}
		for _, n := range nodes {
			s.forget(n)
		}
		delete(s.blocks, b.Start)
		excess--
		s.log.Debug().Int("block", b.Start).Msg("evicted block")
	}
}

func (s *Store) destroy() {
	if !s.live {
		return
	}
	s.live = false
	s.cancelTimer()
	nodes := []*rownode.RowNode{}
	s.nodes.Ascend(func(n *rownode.RowNode) bool {
		nodes = append(nodes, n)
		return true
	})
	for _, n := range nodes {
		s.forget(n)
	}
	s.blocks = map[int]*Block{}
	s.display.Clear(false)
	s.visible = false
}
