package blockcache

type BlockState int

const (
	BlockNotRequested BlockState = iota
	BlockLoading
	BlockLoaded
	BlockFailed
)

func (s BlockState) String() string {
	switch s {
	case BlockLoading:
		return "loading"
	case BlockLoaded:
		return "loaded"
	case BlockFailed:
		return "failed"
	}
	return "not-requested"
}

// Block is one fixed size load unit of a store.
type Block struct {
	Start int
	Size  int
	State BlockState

	// Last viewport tick that displayed a row of this block.
	LastAccessed int64
	// Invalidated while its request was in flight; the result is applied
	// but the rows stay flagged for refresh.
	Dirty bool
}

func (b *Block) End() int {
	return b.Start + b.Size
}

// BlockStart returns the start of the block containing index.
func BlockStart(index, size int) int {
	return index - index%size
}
