package blockcache

import (
	"errors"
	"math/rand"
	"testing"
	"time"

	"github.com/fulldump/biff"

	"github.com/fulldump/rowmodel/datasource"
	"github.com/fulldump/rowmodel/errs"
	"github.com/fulldump/rowmodel/events"
	"github.com/fulldump/rowmodel/query"
	"github.com/fulldump/rowmodel/rownode"
)

func TestBlockStart(t *testing.T) {
	for _, size := range []int{1, 7, 100} {
		for i := 0; i < 1000; i++ {
			start := BlockStart(i, size)
			b := &Block{Start: start, Size: size}
			biff.AssertEqual(start, i-i%size)
			biff.AssertEqual(start%size, 0)
			biff.AssertTrue(i >= start && i < b.End())
			biff.AssertEqual(b.End(), start+size)
		}
	}
}

func TestNew_RequiresDatasource(t *testing.T) {
	_, err := New(Config{Loop: events.NewLoop(nil)}, Params{})
	configuration := &errs.ConfigurationError{}
	biff.AssertTrue(errors.As(err, &configuration))
}

func TestCache_LoadsFirstBlock(t *testing.T) {

	h := newHarness(t, Config{BlockSize: 10}, Params{
		FilterModel: query.FilterModel{"country": "Ireland"},
	})

	requests := h.settle()
	biff.AssertEqual(len(requests), 1)
	request := requests[0].Request
	biff.AssertEqual(request.StartRow, 0)
	biff.AssertEqual(request.EndRow, 10)
	biff.AssertEqual(request.GroupKeys, []string{})
	biff.AssertEqual(request.FilterModel, query.FilterModel{"country": "Ireland"})

	h.do(func() {
		stub := h.cache.GetDisplayedRowAtIndex(0)
		biff.AssertEqual(stub.LoadState, rownode.Loading)
		biff.AssertTrue(stub.IsStub())
	})

	// a full block with no count: the end is not known yet
	succeed(requests[0], rows(0, 10))
	biff.AssertEqual(len(h.settle()), 0)

	h.do(func() {
		biff.AssertEqual(h.cache.DisplayedRowCount(), 11)
		biff.AssertFalse(h.cache.RootStore().LastRowKnown())
		n := h.cache.GetDisplayedRowAtIndex(3)
		biff.AssertEqual(n.Data, map[string]any{"id": 3})
		biff.AssertEqual(n.ID, "3")
		biff.AssertEqual(h.cache.GetRowIndex(n), 3)
		biff.AssertEqual(h.cache.GetRowNode("3"), n)

		h.cache.SetViewport(5, 10)
	})

	requests = h.settle()
	biff.AssertEqual(starts(requests), []int{10})

	succeed(requests[0], rows(10, 3))
	h.settle()

	h.do(func() {
		biff.AssertEqual(h.cache.DisplayedRowCount(), 13)
		biff.AssertTrue(h.cache.RootStore().LastRowKnown())
		biff.AssertNil(h.cache.GetDisplayedRowAtIndex(13))
	})
	biff.AssertEqual(h.count(events.RowCountReady), 1)
	biff.AssertEqual(h.count(events.StoreUpdated), 2)
}

func TestCache_ViewportBeforeNeedsRefresh(t *testing.T) {

	h := newHarness(t, Config{BlockSize: 10}, Params{})
	requests := h.settle()
	succeed(requests[0], rows(0, 10), 100)
	h.settle()

	h.do(func() {
		// rows 0-9 are flagged for refresh but outside the viewport, rows
		// 50-55 are stubs inside it
		h.cache.SetSortModel(query.SortModel{{ColID: "id", Sort: query.Desc}})
		h.cache.SetViewport(50, 55)

		biff.AssertTrue(h.cache.RootStore().Node(3).NeedsRefreshWhenVisible)
		start, ok := h.cache.RootStore().nextBlock()
		biff.AssertTrue(ok)
		biff.AssertEqual(start, 50)
	})

	requests = h.settle()
	biff.AssertEqual(starts(requests), []int{50, 0})
	biff.AssertEqual(requests[0].Request.SortModel, query.SortModel{{ColID: "id", Sort: query.Desc}})

	// refreshed rows keep their data until the new one arrives
	h.do(func() {
		biff.AssertEqual(h.cache.RootStore().Node(3).LoadState, rownode.Loaded)
	})

	succeed(requests[1], rows(100, 10), 100)
	h.settle()
	h.do(func() {
		n := h.cache.RootStore().Node(3)
		biff.AssertFalse(n.NeedsRefreshWhenVisible)
		biff.AssertEqual(n.Data, map[string]any{"id": 103})
	})
}

func TestCache_NeedsRefreshClosestFirst(t *testing.T) {

	h := newHarness(t, Config{BlockSize: 10, InitialRowCount: 100}, Params{})
	h.do(func() {
		h.cache.SetViewport(0, 45)
	})
	// the loader is unlimited, every visible block goes out
	requests := h.settle()
	biff.AssertEqual(starts(requests), []int{0, 10, 20, 30, 40})
	for _, p := range requests {
		succeed(p, rows(p.Request.StartRow, 10), 100)
	}
	h.settle()

	h.do(func() {
		h.cache.Refresh(nil, false)
		h.cache.SetViewport(60, 70)
	})

	requests = h.settle()
	biff.AssertEqual(starts(requests), []int{60, 70, 40, 30, 20, 10, 0})
}

func TestCache_DebounceResetsOnlyOnNewTarget(t *testing.T) {

	h := newHarness(t, Config{BlockSize: 10, InitialRowCount: 100, BlockLoadDebounce: 100 * time.Millisecond}, Params{})

	biff.AssertEqual(len(h.settle()), 0)
	h.clock.Advance(100 * time.Millisecond)
	requests := h.ds.take()
	biff.AssertEqual(starts(requests), []int{0})
	succeed(requests[0], rows(0, 10), 100)
	h.settle()

	h.do(func() { h.cache.SetViewport(30, 30) })
	h.settle()
	h.clock.Advance(60 * time.Millisecond)

	// same block: the timer keeps running
	h.do(func() { h.cache.SetViewport(31, 31) })
	biff.AssertEqual(len(h.settle()), 0)
	h.clock.Advance(40 * time.Millisecond)
	biff.AssertEqual(starts(h.settle()), []int{30})

	h.do(func() { h.cache.SetViewport(70, 70) })
	h.settle()
	h.clock.Advance(60 * time.Millisecond)

	// different block: the timer starts again
	h.do(func() { h.cache.SetViewport(50, 50) })
	h.settle()
	h.clock.Advance(60 * time.Millisecond)
	biff.AssertEqual(len(h.settle()), 0)
	h.clock.Advance(40 * time.Millisecond)
	biff.AssertEqual(starts(h.settle()), []int{50})
	biff.AssertEqual(h.clock.Pending(), 0)
}

func TestCache_ConcurrencyCeiling(t *testing.T) {

	loader := NewLoader(1)
	h := newHarness(t, Config{BlockSize: 10, InitialRowCount: 30, Loader: loader}, Params{})
	other := newHarness(t, Config{BlockSize: 10, Loader: loader}, Params{})

	h.do(func() { h.cache.SetViewport(0, 29) })

	requests := h.settle()
	biff.AssertEqual(starts(requests), []int{0})
	biff.AssertEqual(len(other.settle()), 0)
	biff.AssertEqual(loader.Active(), 1)

	// a completion re-triggers every cache sharing the loader
	succeed(requests[0], rows(0, 10), 30)
	otherRequests := other.settle()
	biff.AssertEqual(len(h.settle()), 0)
	biff.AssertEqual(starts(otherRequests), []int{0})
	biff.AssertEqual(loader.Active(), 1)

	succeed(otherRequests[0], rows(0, 3))
	other.settle()
	requests = h.settle()
	biff.AssertEqual(starts(requests), []int{10})

	requests[0].Fail(errors.New("boom"))
	requests = h.settle()
	biff.AssertEqual(starts(requests), []int{20})
	biff.AssertEqual(loader.Active(), 1)

	succeed(requests[0], rows(20, 10), 30)
	biff.AssertEqual(len(h.settle()), 0)
	biff.AssertEqual(loader.Active(), 0)

	// failed rows are not picked again until retried
	h.do(func() {
		n := h.cache.GetDisplayedRowAtIndex(15)
		biff.AssertEqual(n.LoadState, rownode.Failed)
		biff.AssertEqual(n.Kind(), rownode.KindStub)
		biff.AssertEqual(h.cache.RootStore().Block(10).State, BlockFailed)
	})

	failures := []*errs.LoadFailure{}
	for _, e := range h.events {
		if e.Type == events.LoadFailed {
			failures = append(failures, e.Data.(*errs.LoadFailure))
		}
	}
	biff.AssertEqual(len(failures), 1)
	biff.AssertEqual(failures[0].BlockStart, 10)
	biff.AssertEqual(failures[0].BlockEnd, 20)
	biff.AssertEqual(failures[0].Err.Error(), "boom")

	h.do(h.cache.RetryFailed)
	biff.AssertEqual(starts(h.settle()), []int{10})
}

func TestCache_StaleCompletionDropped(t *testing.T) {

	h := newHarness(t, Config{BlockSize: 10}, Params{})
	old := h.settle()
	biff.AssertEqual(len(old), 1)
	oldStore := h.cache.RootStore()

	h.do(func() {
		h.cache.SetParams(Params{FilterModel: query.FilterModel{"id": 1}})
	})
	fresh := h.settle()
	biff.AssertEqual(len(fresh), 1)
	biff.AssertFalse(oldStore.Live())

	succeed(old[0], rows(0, 10), 10)
	h.settle()

	h.do(func() {
		biff.AssertEqual(h.cache.DisplayedRowCount(), 1)
		biff.AssertTrue(h.cache.GetDisplayedRowAtIndex(0).IsStub())
		biff.AssertNil(h.cache.GetRowNode("5"))
	})
	for _, e := range h.events {
		biff.AssertFalse(e.Type == events.StoreUpdated && e.Data == oldStore.ID())
	}

	// calling back twice is ignored
	succeed(fresh[0], rows(0, 1), 1)
	succeed(fresh[0], rows(0, 5), 5)
	h.settle()
	h.do(func() {
		biff.AssertEqual(h.cache.DisplayedRowCount(), 1)
	})
	biff.AssertEqual(h.cache.Config().Loader.Active(), 0)
}

func TestCache_SingleRequestPerBlock(t *testing.T) {

	h := newHarness(t, Config{BlockSize: 10, InitialRowCount: 1000}, Params{})
	r := rand.New(rand.NewSource(42))
	outstanding := map[int]datasource.Params{}

	for step := 0; step < 300; step++ {
		first := r.Intn(990)
		h.do(func() {
			h.cache.SetViewport(first, first+r.Intn(30))
		})
		for _, p := range h.settle() {
			_, exists := outstanding[p.Request.StartRow]
			biff.AssertFalse(exists)
			outstanding[p.Request.StartRow] = p
		}
		for start, p := range outstanding {
			if r.Intn(3) != 0 {
				continue
			}
			delete(outstanding, start)
			if r.Intn(5) == 0 {
				p.Fail(errors.New("flaky"))
				continue
			}
			succeed(p, rows(start, 10), 1000)
		}
	}
}

func TestCache_GroupStores(t *testing.T) {

	h := newHarness(t, Config{BlockSize: 10}, Params{
		RowGroupCols: []datasource.ColumnVO{{ID: "country", Field: "country"}},
	})
	requests := h.settle()
	succeed(requests[0], []any{
		map[string]any{"country": "Ireland", "price": 30},
		map[string]any{"country": "Spain", "price": 10},
	}, 2)
	h.settle()

	var ireland *rownode.RowNode
	h.do(func() {
		ireland = h.cache.GetDisplayedRowAtIndex(0)
		biff.AssertTrue(ireland.Group)
		biff.AssertEqual(ireland.ID, "row-group-country-Ireland")
		biff.AssertEqual(ireland.Key, "Ireland")
		biff.AssertFalse(ireland.Expanded)

		h.cache.SetExpanded(ireland, true)
		biff.AssertEqual(h.cache.DisplayedRowCount(), 3)
		biff.AssertTrue(h.cache.GetDisplayedRowAtIndex(1).IsStub())
		biff.AssertEqual(h.cache.GetDisplayedRowAtIndex(2).Key, "Spain")
		h.cache.SetViewport(0, 2)
	})

	requests = h.settle()
	biff.AssertEqual(len(requests), 1)
	biff.AssertEqual(requests[0].Request.GroupKeys, []string{"Ireland"})
	biff.AssertEqual(requests[0].ParentNode, ireland)

	succeed(requests[0], rows(0, 3), 3)
	h.settle()

	h.do(func() {
		biff.AssertEqual(h.cache.DisplayedRowCount(), 5)
		child := h.cache.GetDisplayedRowAtIndex(1)
		biff.AssertEqual(child.ID, "row-group-country-Ireland-0")
		biff.AssertEqual(child.Parent, ireland)
		biff.AssertEqual(child.Level, 1)
		biff.AssertEqual(h.cache.GetDisplayedRowAtIndex(4).Key, "Spain")
		biff.AssertEqual(h.cache.StoreAt([]string{"Ireland"}).RowCount(), 3)

		h.cache.SetExpanded(ireland, false)
		biff.AssertEqual(h.cache.DisplayedRowCount(), 2)
		biff.AssertEqual(child.RowIndex, rownode.NotDisplayedIndex)

		// the closed group keeps its rows
		h.cache.SetExpanded(ireland, true)
		biff.AssertEqual(h.cache.DisplayedRowCount(), 5)
	})
	biff.AssertEqual(len(h.settle()), 0)

	loaded := []string{}
	h.do(func() {
		h.cache.ForEachNode(func(n *rownode.RowNode) {
			loaded = append(loaded, n.ID)
		})
	})
	biff.AssertEqual(loaded, []string{
		"row-group-country-Ireland",
		"row-group-country-Ireland-0", "row-group-country-Ireland-1", "row-group-country-Ireland-2",
		"row-group-country-Spain",
	})

	h.do(func() {
		err := h.cache.Refresh([]string{"Spain"}, true)
		biff.AssertNotNil(err)
		biff.AssertNil(h.cache.Refresh([]string{"Ireland"}, true))
	})
	requests = h.settle()
	biff.AssertEqual(len(requests), 1)
	biff.AssertEqual(requests[0].Request.GroupKeys, []string{"Ireland"})
}

func TestCache_Eviction(t *testing.T) {

	h := newHarness(t, Config{BlockSize: 10, MaxBlocksInCache: 2}, Params{})
	requests := h.settle()
	succeed(requests[0], rows(0, 10), 100)
	h.settle()

	for _, first := range []int{20, 40} {
		h.do(func() { h.cache.SetViewport(first, first+5) })
		requests = h.settle()
		biff.AssertEqual(starts(requests), []int{first})
		succeed(requests[0], rows(first, 10), 100)
		h.settle()
	}

	h.do(func() {
		store := h.cache.RootStore()
		biff.AssertNil(store.Block(0))
		biff.AssertNil(store.Node(5))
		biff.AssertNil(h.cache.GetRowNode("5"))
		biff.AssertNotNil(store.Block(20))
		biff.AssertNotNil(store.Block(40))
		biff.AssertEqual(h.cache.DisplayedRowCount(), 100)
		biff.AssertTrue(h.cache.GetDisplayedRowAtIndex(5).IsStub())
	})
}

func TestCache_Destroy(t *testing.T) {

	h := newHarness(t, Config{BlockSize: 10}, Params{})
	requests := h.settle()
	h.do(h.cache.Destroy)

	succeed(requests[0], rows(0, 10), 10)
	biff.AssertEqual(len(h.settle()), 0)
	biff.AssertEqual(h.count(events.StoreUpdated), 0)
}
