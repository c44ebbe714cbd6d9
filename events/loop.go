package events

import (
	"sync"
)

// Loop serialises the mutations of one row model. A turn runs under the
// lock; the events it pushed and the calls it deferred run after the lock is
// released, so handlers and datasources can re-enter the model.
type Loop struct {
	mutex sync.Mutex
	bus   *Bus
	queue Queue
	after []func()
}

func NewLoop(bus *Bus) *Loop {
	if bus == nil {
		bus = NewBus()
	}
	return &Loop{bus: bus}
}

func (l *Loop) Bus() *Bus {
	return l.bus
}

// Do runs one turn. f must not call Do.
func (l *Loop) Do(f func()) {
	pending, after := l.turn(f)
	pending.Flush(l.bus)
	for _, call := range after {
		call()
	}
}

// turn runs f under the lock and takes what it queued. When f panics the
// lock is released and the queued work dropped.
func (l *Loop) turn(f func()) (pending Queue, after []func()) {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	defer func() {
		pending, l.queue = l.queue, Queue{}
		after, l.after = l.after, nil
	}()
	f()
	return
}

// Push queues an event for the end of the current turn. Only valid inside Do.
func (l *Loop) Push(e Event) {
	l.queue.Push(e)
}

// After defers call to the end of the current turn, once events are emitted.
// Only valid inside Do.
func (l *Loop) After(call func()) {
	l.after = append(l.after, call)
}
