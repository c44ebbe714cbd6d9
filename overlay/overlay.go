// Package overlay decides whether the loading or no-rows overlay shows.
package overlay

type State int

const (
	Hidden State = iota
	Loading
	NoRows
)

func (s State) String() string {
	switch s {
	case Loading:
		return "loading"
	case NoRows:
		return "no-rows"
	}
	return "hidden"
}

type Options struct {
	SuppressLoadingOverlay bool
	SuppressNoRowsOverlay  bool
}

// Coordinator is not safe for concurrent use; the row model calls it under
// its own lock. Every method returns true when the state changed.
type Coordinator struct {
	options Options
	state   State
	manual  bool

	columnsReady bool
	dataReady    bool
	count        int
}

func NewCoordinator(options Options) *Coordinator {
	c := &Coordinator{options: options}
	c.state = c.automatic()
	return c
}

func (c *Coordinator) State() State {
	return c.state
}

// Manual tells whether the current state was forced through the API.
func (c *Coordinator) Manual() bool {
	return c.manual
}

func (c *Coordinator) automatic() State {
	if !c.columnsReady || !c.dataReady {
		if c.options.SuppressLoadingOverlay {
			return Hidden
		}
		return Loading
	}
	if c.count == 0 && !c.options.SuppressNoRowsOverlay {
		return NoRows
	}
	return Hidden
}

func (c *Coordinator) set(state State, manual bool) bool {
	changed := c.state != state
	c.state = state
	c.manual = manual
	return changed
}

func (c *Coordinator) SetColumnsReady(ready bool) bool {
	c.columnsReady = ready
	return c.set(c.automatic(), false)
}

func (c *Coordinator) SetDataReady(ready bool) bool {
	c.dataReady = ready
	return c.set(c.automatic(), false)
}

// RowDataUpdated takes the displayed row count after new data arrived.
func (c *Coordinator) RowDataUpdated(displayedCount int) bool {
	c.dataReady = true
	c.count = displayedCount
	return c.set(c.automatic(), false)
}

func (c *Coordinator) ShowLoading() bool {
	return c.set(Loading, true)
}

func (c *Coordinator) ShowNoRows() bool {
	return c.set(NoRows, true)
}

// Hide forces the overlay away whatever the row count, until the next
// automatic transition.
func (c *Coordinator) Hide() bool {
	return c.set(Hidden, true)
}
