package events

import (
	"testing"

	"github.com/fulldump/biff"
)

func TestLoop_EmitsAfterTurn(t *testing.T) {

	loop := NewLoop(nil)
	trace := []string{}

	loop.Bus().On(RowDataUpdated, func(e Event) {
		trace = append(trace, "event")
		// handlers can start a new turn
		loop.Do(func() {
			trace = append(trace, "nested turn")
		})
	})

	loop.Do(func() {
		loop.Push(Event{Type: RowDataUpdated})
		loop.After(func() {
			trace = append(trace, "after")
		})
		trace = append(trace, "turn")
	})

	biff.AssertEqual(trace, []string{"turn", "event", "nested turn", "after"})
}

func TestLoop_PanicReleasesLock(t *testing.T) {

	loop := NewLoop(nil)
	emitted := 0
	loop.Bus().On(RowDataUpdated, func(e Event) {
		emitted++
	})

	func() {
		defer func() {
			biff.AssertNotNil(recover())
		}()
		loop.Do(func() {
			loop.Push(Event{Type: RowDataUpdated})
			panic("row id callback failed")
		})
	}()

	done := false
	loop.Do(func() {
		done = true
	})
	biff.AssertTrue(done)
	biff.AssertEqual(emitted, 0)
}
