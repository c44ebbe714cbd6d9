package main

import (
	"sync/atomic"
	"time"

	"github.com/fulldump/rowmodel/datasource"
	"github.com/fulldump/rowmodel/events"
	"github.com/fulldump/rowmodel/rowmodel"
)

// TestScroll drives a server-side row model over the datastore, moving the
// viewport from top to bottom and waiting for every page to load.
func TestScroll(c *Config, name string) {

	options := rowmodel.DefaultOptions()
	options.Type = rowmodel.ServerSideType
	options.Datasource = datasource.NewClient(c.Base, name)
	options.CacheBlockSize = c.BlockSize
	options.MaxBlocksInCache = 10
	options.Logger = c.verbose()

	m, err := rowmodel.New(options)
	if err != nil {
		log.Error().Err(err).Msg("new row model")
		return
	}
	defer m.Destroy()

	var loads, failures int64
	m.On(events.StoreUpdated, func(e events.Event) {
		atomic.AddInt64(&loads, 1)
	})
	m.On(events.LoadFailed, func(e events.Event) {
		atomic.AddInt64(&failures, 1)
	})

	t0 := time.Now()
	pages := 0
	for first := 0; first < int(c.N); first += c.Viewport {
		last := first + c.Viewport - 1
		m.SetViewport(first, last)
		for {
			if atomic.LoadInt64(&failures) > 0 {
				log.Error().Int("first", first).Msg("block load failed")
				return
			}
			if n := m.GetDisplayedRowAtIndex(first); n != nil && !n.IsStub() {
				break
			}
			time.Sleep(100 * time.Microsecond)
		}
		pages++
	}

	took := time.Since(t0)
	log.Info().
		Str("datastore", name).
		Int("pages", pages).
		Int64("store_updates", atomic.LoadInt64(&loads)).
		Int("displayed_rows", m.GetDisplayedRowCount()).
		Dur("took", took).
		Float64("pages_per_sec", float64(pages)/took.Seconds()).
		Msg("scroll")
}
