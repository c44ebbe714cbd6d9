package grouping

import (
	"github.com/fulldump/rowmodel/query"
	"github.com/fulldump/rowmodel/rownode"
)

type Options struct {
	// Row group fields, one tree level per field.
	GroupFields []string
	// Tree data mode: the path of each record, from the top level down.
	// Takes precedence over GroupFields.
	GetDataPath func(data any) []string

	// Prune nil and empty path segments instead of grouping them under "".
	GroupAllowUnbalanced bool

	GroupIncludeFooter      bool
	GroupIncludeTotalFooter bool

	// -1 expands every level, n expands the first n levels.
	GroupDefaultExpanded int

	Getter query.ValueGetter
}

func (o *Options) TreeData() bool {
	return o.GetDataPath != nil
}

func (o *Options) Grouping() bool {
	return o.TreeData() || len(o.GroupFields) > 0
}

type segment struct {
	field string
	key   string
}

type childKey struct {
	parent *rownode.RowNode
	field  string
	key    string
}

// Builder maintains the group tree under a root node. It keeps group nodes
// by parent and key so incremental transactions find them, and remembers
// expansion across rebuilds.
type Builder struct {
	options  Options
	children map[childKey]*rownode.RowNode
	groups   map[string]*rownode.RowNode
	expanded map[string]bool
}

func NewBuilder(options Options) *Builder {
	return &Builder{
		options:  options,
		children: map[childKey]*rownode.RowNode{},
		groups:   map[string]*rownode.RowNode{},
		expanded: map[string]bool{},
	}
}

func (b *Builder) Options() Options {
	return b.options
}

// SetOptions changes grouping. The caller rebuilds afterwards.
func (b *Builder) SetOptions(options Options) {
	b.options = options
}

func (b *Builder) getter() query.ValueGetter {
	if b.options.Getter != nil {
		return b.options.Getter
	}
	return query.Value
}

// SetExpanded records the expansion of a group so it survives rebuilds.
func (b *Builder) SetExpanded(node *rownode.RowNode, expanded bool) {
	node.Expanded = expanded
	b.expanded[node.ID] = expanded
}

// RestoreExpanded replaces the remembered expansion. Groups missing from it
// fall back to GroupDefaultExpanded on the next build.
func (b *Builder) RestoreExpanded(expanded map[string]bool) {
	b.expanded = make(map[string]bool, len(expanded))
	for id, open := range expanded {
		b.expanded[id] = open
	}
}

func (b *Builder) Group(id string) *rownode.RowNode {
	return b.groups[id]
}

// Build discards the previous tree under root and builds it again from
// leaves, in leaf order.
func (b *Builder) Build(root *rownode.RowNode, leaves []*rownode.RowNode) {

	b.children = map[childKey]*rownode.RowNode{}
	b.groups = map[string]*rownode.RowNode{}
	for _, leaf := range leaves {
		leaf.Parent = nil
		leaf.Children = nil
		leaf.Footer = nil
	}
	root.Children = nil
	root.AllLeafChildren = leaves
	root.Footer = nil

	if b.options.TreeData() {
		b.buildTreeData(root, leaves)
	} else {
		for _, leaf := range leaves {
			b.insert(root, leaf)
		}
	}

	b.refreshLeafChildren(root)
	b.refreshFooters(root)
}

// Apply updates the tree for a transaction. It returns the nodes whose
// ancestors need their aggregates recomputed, or rebuilt when the whole tree
// was built again.
func (b *Builder) Apply(root *rownode.RowNode, all, added, updated, removed []*rownode.RowNode) (touched []*rownode.RowNode, rebuilt bool) {

	if b.options.TreeData() {
		// a removed tree node may orphan children that need a filler in its
		// place; rebuilding keeps that simple
		b.Build(root, all)
		return nil, true
	}

	for _, leaf := range removed {
		parent := leaf.Parent
		if parent == nil {
			continue
		}
		parent.RemoveChild(leaf)
		leaf.Parent = nil
		touched = append(touched, b.prune(parent))
	}

	for _, leaf := range updated {
		if b.pathMatches(leaf) {
			touched = append(touched, leaf)
			continue
		}
		parent := leaf.Parent
		if parent != nil {
			parent.RemoveChild(leaf)
			touched = append(touched, b.prune(parent))
		}
		b.insert(root, leaf)
		touched = append(touched, leaf)
	}

	for _, leaf := range added {
		b.insert(root, leaf)
		touched = append(touched, leaf)
	}

	root.AllLeafChildren = all
	b.refreshLeafChildren(root)
	b.refreshFooters(root)

	return touched, false
}

func (b *Builder) path(data any) []segment {
	get := b.getter()
	path := make([]segment, 0, len(b.options.GroupFields))
	for _, field := range b.options.GroupFields {
		value := get(data, field)
		key := query.KeyString(value)
		if b.options.GroupAllowUnbalanced && (value == nil || key == "") {
			continue
		}
		path = append(path, segment{field: field, key: key})
	}
	return path
}

func (b *Builder) pathMatches(leaf *rownode.RowNode) bool {
	path := b.path(leaf.Data)
	current := leaf.Parent
	for i := len(path) - 1; i >= 0; i-- {
		if current == nil || current.IsRoot() {
			return false
		}
		if current.Field != path[i].field || current.Key != path[i].key {
			return false
		}
		current = current.Parent
	}
	return current != nil && current.IsRoot()
}

func (b *Builder) insert(root, leaf *rownode.RowNode) {
	parent := root
	for _, s := range b.path(leaf.Data) {
		parent = b.getOrCreateGroup(parent, s.field, s.key)
	}
	leaf.Parent = parent
	leaf.Level = parent.Level + 1
	parent.Children = append(parent.Children, leaf)
}

func (b *Builder) getOrCreateGroup(parent *rownode.RowNode, field, key string) *rownode.RowNode {
	k := childKey{parent: parent, field: field, key: key}
	if g, exists := b.children[k]; exists {
		return g
	}
	id := rownode.GroupID(parent, field, key)
	g := rownode.New(id, nil)
	g.Group = true
	g.Field = field
	g.Key = key
	g.Level = parent.Level + 1
	g.Parent = parent
	g.Selectable = true
	g.Expanded = b.initialExpanded(id, g.Level)
	parent.Children = append(parent.Children, g)
	b.children[k] = g
	b.groups[id] = g
	return g
}

func (b *Builder) initialExpanded(id string, level int) bool {
	if expanded, ok := b.expanded[id]; ok {
		return expanded
	}
	return b.options.GroupDefaultExpanded == -1 || level < b.options.GroupDefaultExpanded
}

// prune detaches empty groups upwards and returns the closest surviving
// ancestor.
func (b *Builder) prune(group *rownode.RowNode) *rownode.RowNode {
	for !group.IsRoot() && len(group.Children) == 0 && (group.Data == nil || group.Filler) {
		parent := group.Parent
		parent.RemoveChild(group)
		delete(b.children, childKey{parent: parent, field: group.Field, key: group.Key})
		delete(b.groups, group.ID)
		group.Parent = nil
		group = parent
	}
	return group
}

func (b *Builder) buildTreeData(root *rownode.RowNode, leaves []*rownode.RowNode) {

	byPath := map[string]*rownode.RowNode{}

	for _, leaf := range leaves {
		path := b.options.GetDataPath(leaf.Data)
		if b.options.GroupAllowUnbalanced {
			path = compact(path)
		}
		if len(path) == 0 {
			leaf.Parent = root
			leaf.Level = 0
			root.Children = append(root.Children, leaf)
			continue
		}

		parent := root
		for i := 0; i < len(path)-1; i++ {
			pathKey := rownode.PathID(path[:i+1])
			next, exists := byPath[pathKey]
			if !exists {
				next = rownode.New(pathKey, nil)
				next.Group = true
				next.Filler = true
				next.Key = path[i]
				next.Level = i
				next.Parent = parent
				next.Expanded = b.initialExpanded(next.ID, i)
				parent.Children = append(parent.Children, next)
				byPath[pathKey] = next
				b.groups[next.ID] = next
			}
			parent = next
		}

		pathKey := rownode.PathID(path)
		leaf.Key = path[len(path)-1]
		leaf.Level = len(path) - 1
		leaf.Group = false

		filler, exists := byPath[pathKey]
		if exists && filler.Filler {
			// the record is itself the group that earlier paths implied
			b.replaceFiller(filler, leaf)
			byPath[pathKey] = leaf
			continue
		}

		leaf.Parent = parent
		parent.Children = append(parent.Children, leaf)
		if !exists {
			byPath[pathKey] = leaf
		}
	}

	var markGroups func(n *rownode.RowNode)
	markGroups = func(n *rownode.RowNode) {
		for _, c := range n.Children {
			if len(c.Children) > 0 {
				c.Group = true
				if !c.Filler {
					c.Expanded = b.initialExpanded(c.ID, c.Level)
				}
			}
			markGroups(c)
		}
	}
	markGroups(root)
}

func (b *Builder) replaceFiller(filler, node *rownode.RowNode) {
	parent := filler.Parent
	for i, c := range parent.Children {
		if c == filler {
			parent.Children[i] = node
			break
		}
	}
	node.Parent = parent
	node.Children = filler.Children
	for _, c := range node.Children {
		c.Parent = node
	}
	delete(b.groups, filler.ID)
}

func compact(path []string) []string {
	result := make([]string, 0, len(path))
	for _, p := range path {
		if p != "" {
			result = append(result, p)
		}
	}
	return result
}

func (b *Builder) refreshLeafChildren(root *rownode.RowNode) {
	var walk func(n *rownode.RowNode) []*rownode.RowNode
	walk = func(n *rownode.RowNode) []*rownode.RowNode {
		leaves := []*rownode.RowNode{}
		for _, c := range n.Children {
			if len(c.Children) > 0 {
				if c.Data != nil && !c.Filler {
					leaves = append(leaves, c)
				}
				leaves = append(leaves, walk(c)...)
				continue
			}
			if c.Group && c.Data == nil {
				continue
			}
			leaves = append(leaves, c)
		}
		if !n.IsRoot() {
			n.AllLeafChildren = leaves
		}
		return leaves
	}
	walk(root)
}

func (b *Builder) refreshFooters(root *rownode.RowNode) {
	grouping := b.options.Grouping()
	if b.options.GroupIncludeTotalFooter && grouping {
		if root.Footer == nil {
			root.Footer = rownode.NewFooter(root)
			root.Footer.Level = rownode.GrandTotalLevel
		}
		root.Footer.AggData = root.AggData
	} else {
		root.Footer = nil
	}

	var walk func(n *rownode.RowNode)
	walk = func(n *rownode.RowNode) {
		for _, c := range n.Children {
			if !c.Group {
				continue
			}
			if b.options.GroupIncludeFooter && len(c.Children) > 0 {
				if c.Footer == nil {
					c.Footer = rownode.NewFooter(c)
				}
				c.Footer.AggData = c.AggData
			} else {
				c.Footer = nil
			}
			walk(c)
		}
	}
	walk(root)
}
