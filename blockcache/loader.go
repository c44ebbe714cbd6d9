package blockcache

import (
	"sync"
)

// Loader enforces the concurrency ceiling shared by every store of one or
// more caches. Requests over the ceiling are not queued: each completion
// notifies the listeners, which run their scheduling again.
type Loader struct {
	mutex     sync.Mutex
	max       int
	active    int
	nextID    int
	listeners map[int]func()
}

// NewLoader returns a loader allowing max concurrent requests, unlimited
// when max <= 0.
func NewLoader(max int) *Loader {
	return &Loader{
		max:       max,
		listeners: map[int]func(){},
	}
}

func (l *Loader) TryAcquire() bool {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	if l.max > 0 && l.active >= l.max {
		return false
	}
	l.active++
	return true
}

// Release frees a slot and notifies the listeners. Call it outside any
// row model turn.
func (l *Loader) Release() {
	l.mutex.Lock()
	if l.active > 0 {
		l.active--
	}
	listeners := make([]func(), 0, len(l.listeners))
	for id := 1; id <= l.nextID; id++ {
		if f, ok := l.listeners[id]; ok {
			listeners = append(listeners, f)
		}
	}
	l.mutex.Unlock()

	for _, f := range listeners {
		f()
	}
}

func (l *Loader) Saturated() bool {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	return l.max > 0 && l.active >= l.max
}

func (l *Loader) Active() int {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	return l.active
}

// OnCompletion registers f to run after every completion.
func (l *Loader) OnCompletion(f func()) (off func()) {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	l.nextID++
	id := l.nextID
	l.listeners[id] = f
	return func() {
		l.mutex.Lock()
		defer l.mutex.Unlock()
		delete(l.listeners, id)
	}
}
