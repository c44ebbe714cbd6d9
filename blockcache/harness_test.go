package blockcache

import (
	"sync"
	"testing"

	"github.com/fulldump/biff"

	"github.com/fulldump/rowmodel/datasource"
	"github.com/fulldump/rowmodel/events"
)

type fakeDatasource struct {
	mutex    sync.Mutex
	requests []datasource.Params
}

func (f *fakeDatasource) GetRows(params datasource.Params) {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	f.requests = append(f.requests, params)
}

// take returns and forgets the requests received so far.
func (f *fakeDatasource) take() []datasource.Params {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	result := f.requests
	f.requests = nil
	return result
}

type harness struct {
	loop     *events.Loop
	clock    *ManualClock
	executor *ManualExecutor
	ds       *fakeDatasource
	cache    *Cache
	events   []events.Event
}

func newHarness(t *testing.T, config Config, params Params) *harness {
	h := &harness{
		loop:     events.NewLoop(nil),
		clock:    NewManualClock(),
		executor: NewManualExecutor(),
		ds:       &fakeDatasource{},
	}
	h.loop.Bus().OnAny(func(e events.Event) {
		h.events = append(h.events, e)
	})

	config.Datasource = h.ds
	config.Clock = h.clock
	config.Executor = h.executor
	config.Loop = h.loop

	cache, err := New(config, params)
	biff.AssertNil(err)
	h.cache = cache
	h.do(cache.Start)
	return h
}

func (h *harness) do(f func()) {
	h.loop.Do(f)
}

// settle runs the queued scheduling checks and returns the requests they
// sent.
func (h *harness) settle() []datasource.Params {
	h.executor.Run()
	return h.ds.take()
}

func rows(from, n int) []any {
	result := make([]any, n)
	for i := range result {
		result[i] = map[string]any{"id": from + i}
	}
	return result
}

func succeed(p datasource.Params, data []any, count ...int) {
	result := datasource.Result{RowData: data}
	if len(count) > 0 {
		result.RowCount = datasource.Count(count[0])
	}
	p.Success(result)
}

func starts(requests []datasource.Params) []int {
	result := []int{}
	for _, p := range requests {
		result = append(result, p.Request.StartRow)
	}
	return result
}

func (h *harness) count(t events.Type) int {
	n := 0
	for _, e := range h.events {
		if e.Type == t {
			n++
		}
	}
	return n
}
