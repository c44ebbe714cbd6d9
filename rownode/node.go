package rownode

import (
	"strconv"
	"strings"
	"sync/atomic"
)

type LoadState int

const (
	Loaded LoadState = iota
	Stub
	Loading
	Failed
)

func (s LoadState) String() string {
	switch s {
	case Loaded:
		return "loaded"
	case Stub:
		return "stub"
	case Loading:
		return "loading"
	case Failed:
		return "failed"
	}
	return "unknown"
}

type Kind int

const (
	KindLeaf Kind = iota
	KindGroup
	KindStub
)

const (
	RootID            = "ROOT_NODE_ID"
	FooterPrefix      = "rowGroupFooter_"
	GrandTotalLevel   = -1
	NotDisplayedIndex = -1
)

// RowNode wraps one record plus the grouping, selection and position
// metadata the row model needs. Parent is a back-reference only; a node owns
// Children and Footer.
type RowNode struct {
	ID   string
	Data any

	Parent   *RowNode
	Children []*RowNode

	// Derived by filtering and sorting, subsets of Children.
	ChildrenAfterFilter []*RowNode
	ChildrenAfterSort   []*RowNode

	// Leaves under a group, recursively.
	AllLeafChildren []*RowNode

	Footer *RowNode
	// For a footer, the group it summarises.
	Sibling *RowNode

	Group    bool
	IsFooter bool
	Filler   bool
	Level    int
	Key      string
	Field    string

	RowIndex   int
	StoreIndex int

	Selectable bool
	Expanded   bool

	AggData map[string]any

	LoadState               LoadState
	NeedsRefreshWhenVisible bool

	// Server-side child store, opaque here.
	ChildStore any
}

func New(id string, data any) *RowNode {
	return &RowNode{
		ID:         id,
		Data:       data,
		RowIndex:   NotDisplayedIndex,
		StoreIndex: NotDisplayedIndex,
		Selectable: true,
	}
}

func NewRoot() *RowNode {
	return &RowNode{
		ID:         RootID,
		Group:      true,
		Level:      -1,
		Expanded:   true,
		RowIndex:   NotDisplayedIndex,
		StoreIndex: NotDisplayedIndex,
	}
}

func NewStub(id string, level, storeIndex int) *RowNode {
	n := New(id, nil)
	n.Level = level
	n.StoreIndex = storeIndex
	n.LoadState = Stub
	return n
}

func NewFooter(group *RowNode) *RowNode {
	id := FooterPrefix + group.ID
	f := New(id, group.Data)
	f.IsFooter = true
	f.Group = true
	f.Level = group.Level
	f.Key = group.Key
	f.Field = group.Field
	f.Sibling = group
	f.Parent = group
	f.Selectable = false
	f.AggData = group.AggData
	return f
}

// Kind tells which of leaf, group or stub the node currently is. Exactly one
// holds at any time.
func (n *RowNode) Kind() Kind {
	if n.LoadState == Stub || n.LoadState == Loading || (n.LoadState == Failed && n.Data == nil) {
		return KindStub
	}
	if n.Group {
		return KindGroup
	}
	return KindLeaf
}

func (n *RowNode) IsStub() bool {
	return n.Kind() == KindStub
}

func (n *RowNode) IsRoot() bool {
	return n.ID == RootID
}

// AllChildren returns the data children with the footer, when present, last.
func (n *RowNode) AllChildren() []*RowNode {
	if n.Footer == nil {
		return n.Children
	}
	result := make([]*RowNode, 0, len(n.Children)+1)
	result = append(result, n.Children...)
	return append(result, n.Footer)
}

// DisplayedChildren is what flattening walks: sorted, filtered children.
func (n *RowNode) DisplayedChildren() []*RowNode {
	if n.ChildrenAfterSort != nil {
		return n.ChildrenAfterSort
	}
	if n.ChildrenAfterFilter != nil {
		return n.ChildrenAfterFilter
	}
	return n.Children
}

// GroupKeys returns the keys from the top level down to n, excluding the root.
func (n *RowNode) GroupKeys() []string {
	keys := []string{}
	for p := n; p != nil && !p.IsRoot(); p = p.Parent {
		if p.IsFooter {
			continue
		}
		keys = append([]string{p.Key}, keys...)
	}
	return keys
}

func (n *RowNode) RemoveChild(child *RowNode) bool {
	for i, c := range n.Children {
		if c == child {
			n.Children = append(n.Children[:i], n.Children[i+1:]...)
			return true
		}
	}
	return false
}

func (n *RowNode) String() string {
	if n.Group {
		return n.ID + " (" + n.Key + ")"
	}
	return n.ID + " #" + strconv.Itoa(n.RowIndex)
}

var idEscaper = strings.NewReplacer(`\`, `\\`, "-", `\-`)

// GroupID is the id of the group with key under parent, chained from the
// parent id so equal keys at different paths do not collide. Dashes inside
// field and key are escaped, so distinct paths never share an id.
func GroupID(parent *RowNode, field, key string) string {
	prefix := "row-group"
	if parent != nil && !parent.IsRoot() {
		prefix = parent.ID
	}
	return prefix + "-" + idEscaper.Replace(field) + "-" + idEscaper.Replace(key)
}

// PathID is the id of the tree data group at path.
func PathID(path []string) string {
	parts := make([]string, len(path))
	for i, p := range path {
		parts[i] = idEscaper.Replace(p)
	}
	return "row-group-" + strconv.Itoa(len(path)-1) + "-" + strings.Join(parts, "-")
}

// Sequence generates ids for rows without a configured id function.
type Sequence struct {
	next int64
}

func (s *Sequence) Next() string {
	return strconv.FormatInt(atomic.AddInt64(&s.next, 1)-1, 10)
}

func (s *Sequence) Reset() {
	atomic.StoreInt64(&s.next, 0)
}
