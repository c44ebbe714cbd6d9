package events

import (
	"sync"
)

type Handler func(e Event)

type subscription struct {
	id      int
	handler Handler
}

// Bus is the typed event emitter shared by reference between the row model
// components. Handlers run synchronously on the emitting goroutine.
type Bus struct {
	mutex    sync.RWMutex
	nextID   int
	handlers map[Type][]subscription
	all      []subscription
}

func NewBus() *Bus {
	return &Bus{
		handlers: map[Type][]subscription{},
	}
}

// On registers handler for events of type t. The returned function
// unsubscribes it.
func (b *Bus) On(t Type, handler Handler) (off func()) {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	b.nextID++
	id := b.nextID
	b.handlers[t] = append(b.handlers[t], subscription{id: id, handler: handler})

	return func() {
		b.mutex.Lock()
		defer b.mutex.Unlock()
		b.handlers[t] = remove(b.handlers[t], id)
	}
}

// OnAny registers handler for every event.
func (b *Bus) OnAny(handler Handler) (off func()) {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	b.nextID++
	id := b.nextID
	b.all = append(b.all, subscription{id: id, handler: handler})

	return func() {
		b.mutex.Lock()
		defer b.mutex.Unlock()
		b.all = remove(b.all, id)
	}
}

func (b *Bus) Emit(e Event) {
	b.mutex.RLock()
	typed := append([]subscription{}, b.handlers[e.Type]...)
	all := append([]subscription{}, b.all...)
	b.mutex.RUnlock()

	for _, s := range typed {
		s.handler(e)
	}
	for _, s := range all {
		s.handler(e)
	}
}

func remove(subs []subscription, id int) []subscription {
	for i, s := range subs {
		if s.id == id {
			return append(subs[:i:i], subs[i+1:]...)
		}
	}
	return subs
}

// Queue collects events while a mutation is in progress so they are emitted
// only once the mutation is complete.
type Queue struct {
	events []Event
}

func (q *Queue) Push(e Event) {
	q.events = append(q.events, e)
}

func (q *Queue) Len() int {
	return len(q.events)
}

// Flush emits the queued events in order and empties the queue.
func (q *Queue) Flush(b *Bus) {
	pending := q.events
	q.events = nil
	for _, e := range pending {
		b.Emit(e)
	}
}
