package events

type Type string

const (
	RowDataUpdated   Type = "rowDataUpdated"
	SelectionChanged Type = "selectionChanged"
	RowCountReady    Type = "rowCountReady"
	ModelUpdated     Type = "modelUpdated"
	StoreUpdated     Type = "storeUpdated"
	LoadFailed       Type = "loadFailed"
	OverlayChanged   Type = "overlayChanged"
)

// Event carries enough context for a listener to decide whether to
// re-render: where it came from and which rows it touches.
type Event struct {
	Type   Type
	Source string
	IDs    []string
	// Extra payload: the overlay state, the load failure, the store id...
	Data any
}
