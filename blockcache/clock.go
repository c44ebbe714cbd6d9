package blockcache

import (
	"sort"
	"sync"
	"time"
)

type Timer interface {
	// Stop prevents the timer from firing. It returns false when the timer
	// already fired or was stopped.
	Stop() bool
}

type Clock interface {
	AfterFunc(d time.Duration, f func()) Timer
}

// Executor runs the coalesced scheduling checks.
type Executor interface {
	Post(f func())
}

type realClock struct{}

func (realClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

func RealClock() Clock {
	return realClock{}
}

type goExecutor struct{}

func (goExecutor) Post(f func()) {
	go f()
}

func GoExecutor() Executor {
	return goExecutor{}
}

// ManualClock only moves when told to. Timers fire from Advance, on the
// caller goroutine.
type ManualClock struct {
	mutex  sync.Mutex
	now    time.Duration
	seq    int
	timers []*manualTimer
}

type manualTimer struct {
	clock   *ManualClock
	at      time.Duration
	seq     int
	f       func()
	pending bool
}

func (t *manualTimer) Stop() bool {
	t.clock.mutex.Lock()
	defer t.clock.mutex.Unlock()
	was := t.pending
	t.pending = false
	return was
}

func NewManualClock() *ManualClock {
	return &ManualClock{}
}

func (c *ManualClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.seq++
	t := &manualTimer{clock: c, at: c.now + d, seq: c.seq, f: f, pending: true}
	c.timers = append(c.timers, t)
	return t
}

// Pending counts the timers not yet fired nor stopped.
func (c *ManualClock) Pending() int {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	n := 0
	for _, t := range c.timers {
		if t.pending {
			n++
		}
	}
	return n
}

// Advance moves the clock by d and fires every timer due, in due order.
func (c *ManualClock) Advance(d time.Duration) {
	c.mutex.Lock()
	target := c.now + d
	c.mutex.Unlock()

	for {
		c.mutex.Lock()
		var next *manualTimer
		due := c.timers[:0]
		for _, t := range c.timers {
			if !t.pending {
				continue
			}
			due = append(due, t)
		}
		c.timers = due
		sort.SliceStable(due, func(i, j int) bool {
			if due[i].at != due[j].at {
				return due[i].at < due[j].at
			}
			return due[i].seq < due[j].seq
		})
		if len(due) > 0 && due[0].at <= target {
			next = due[0]
			next.pending = false
			c.now = next.at
		}
		if next == nil {
			c.now = target
			c.mutex.Unlock()
			return
		}
		c.mutex.Unlock()
		next.f()
	}
}

// ManualExecutor queues posted functions until Run.
type ManualExecutor struct {
	mutex  sync.Mutex
	queued []func()
}

func NewManualExecutor() *ManualExecutor {
	return &ManualExecutor{}
}

func (e *ManualExecutor) Post(f func()) {
	e.mutex.Lock()
	defer e.mutex.Unlock()
	e.queued = append(e.queued, f)
}

func (e *ManualExecutor) Len() int {
	e.mutex.Lock()
	defer e.mutex.Unlock()
	return len(e.queued)
}

// Run executes queued functions, including the ones they post, until the
// queue is empty. It returns how many ran.
func (e *ManualExecutor) Run() int {
	ran := 0
	for {
		e.mutex.Lock()
		if len(e.queued) == 0 {
			e.mutex.Unlock()
			return ran
		}
		f := e.queued[0]
		e.queued = e.queued[1:]
		e.mutex.Unlock()
		f()
		ran++
	}
}
