package selection

import (
	"errors"
	"sort"

	"github.com/fulldump/rowmodel/errs"
	"github.com/fulldump/rowmodel/logger"
	"github.com/fulldump/rowmodel/rownode"
)

// ServerSideState is the compact form of a ServerSide selection, the only
// exact one once selectAll has been used.
type ServerSideState struct {
	SelectAll    bool     `json:"selectAll"`
	ToggledNodes []string `json:"toggledNodes"`
}

// ServerSide is the select-all-with-exceptions strategy: a node is selected
// when selectAll XOR toggled[id].
type ServerSide struct {
	rows    Rows
	once    *logger.Once
	mode    Mode
	anchor  anchor
	toggled map[string]struct{}

	selectAll     bool
	selectAllUsed bool
}

func NewServerSide(rows Rows, mode Mode, once *logger.Once) *ServerSide {
	return &ServerSide{
		rows:    rows,
		once:    once,
		mode:    mode,
		toggled: map[string]struct{}{},
	}
}

func (s *ServerSide) Mode() Mode {
	return s.mode
}

func (s *ServerSide) SetNodesSelected(params SetSelectedParams) ([]string, error) {

	nodes, err := s.anchor.expand(s.rows, s.mode, params)
	if err != nil {
		return nil, err
	}

	if params.NewValue && (params.ClearOthers || s.mode == Single) {
		// replace the whole state in one step
		before := s.snapshot(nodes)
		s.selectAll = false
		s.toggled = map[string]struct{}{}
		for _, n := range nodes {
			s.toggled[n.ID] = struct{}{}
		}
		return s.diff(before), nil
	}

	changed := []string{}
	for _, n := range nodes {
		was := s.selected(n.ID)
		if params.NewValue == s.selectAll {
			delete(s.toggled, n.ID)
		} else {
			s.toggled[n.ID] = struct{}{}
		}
		if was != s.selected(n.ID) {
			changed = append(changed, n.ID)
		}
	}
	return changed, nil
}

// snapshot records the effective state of every id a replacement can touch.
func (s *ServerSide) snapshot(nodes []*rownode.RowNode) map[string]bool {
	before := map[string]bool{}
	for id := range s.toggled {
		before[id] = s.selected(id)
	}
	for _, n := range nodes {
		before[n.ID] = s.selected(n.ID)
	}
	if s.selectAll && s.rows != nil {
		s.rows.ForEachNode(func(n *rownode.RowNode) {
			before[n.ID] = s.selected(n.ID)
		})
	}
	return before
}

func (s *ServerSide) diff(before map[string]bool) []string {
	changed := []string{}
	for id, was := range before {
		if was != s.selected(id) {
			changed = append(changed, id)
		}
	}
	sort.Strings(changed)
	return changed
}

func (s *ServerSide) selected(id string) bool {
	_, toggled := s.toggled[id]
	return s.selectAll != toggled
}

func (s *ServerSide) IsNodeSelected(node *rownode.RowNode) (bool, bool) {
	if s.toggled == nil || node == nil {
		return false, false
	}
	return s.selected(node.ID), true
}

// GetSelectedNodes returns the selected nodes among the loaded ones. Once
// selectAll has been used the answer is partial and a warning is logged;
// use GetSelectionState for exact membership.
func (s *ServerSide) GetSelectedNodes() []*rownode.RowNode {
	if s.selectAllUsed && s.once != nil {
		s.once.Warn("selection:getSelectedNodes", errors.New("selected nodes requested after select all, only loaded rows are returned; use the selection state instead"))
	}
	result := []*rownode.RowNode{}
	if s.rows == nil {
		return result
	}
	if !s.selectAll {
		s.rows.ForEachNode(func(n *rownode.RowNode) {
			if _, ok := s.toggled[n.ID]; ok {
				result = append(result, n)
			}
		})
		return result
	}
	s.rows.ForEachNode(func(n *rownode.RowNode) {
		if !n.IsStub() && s.selected(n.ID) {
			result = append(result, n)
		}
	})
	return result
}

func (s *ServerSide) GetSelectedRows() []any {
	nodes := s.GetSelectedNodes()
	rows := make([]any, 0, len(nodes))
	for _, n := range nodes {
		if n.Data != nil {
			rows = append(rows, n.Data)
		}
	}
	return rows
}

func (s *ServerSide) GetSelectionCount() int {
	if s.selectAll {
		return CountUnknown
	}
	return len(s.toggled)
}

func (s *ServerSide) IsEmpty() bool {
	return !s.selectAll && len(s.toggled) == 0
}

func (s *ServerSide) SelectAllRowNodes() error {
	if s.mode == Single {
		return errs.NewInvalidOperation("selectAllRowNodes", "not available in single selection mode")
	}
	s.selectAll = true
	s.selectAllUsed = true
	s.toggled = map[string]struct{}{}
	return nil
}

func (s *ServerSide) DeselectAllRowNodes() {
	s.selectAll = false
	s.toggled = map[string]struct{}{}
	s.anchor.reset()
}

func (s *ServerSide) GetSelectionState() any {
	return s.State()
}

func (s *ServerSide) State() ServerSideState {
	ids := make([]string, 0, len(s.toggled))
	for id := range s.toggled {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ServerSideState{
		SelectAll:    s.selectAll,
		ToggledNodes: ids,
	}
}

// SetSelectionState accepts a ServerSideState or its decoded JSON form
// (map with selectAll and toggledNodes).
func (s *ServerSide) SetSelectionState(state any) error {
	parsed, err := ParseServerSideState(state)
	if err != nil {
		return err
	}
	s.selectAll = parsed.SelectAll
	if parsed.SelectAll {
		s.selectAllUsed = true
	}
	s.toggled = make(map[string]struct{}, len(parsed.ToggledNodes))
	for _, id := range parsed.ToggledNodes {
		s.toggled[id] = struct{}{}
	}
	s.anchor.reset()
	return nil
}

func ParseServerSideState(state any) (ServerSideState, error) {

	invalid := func(format string, a ...any) (ServerSideState, error) {
		return ServerSideState{}, errs.NewInvalidOperation("setSelectionState", format, a...)
	}

	switch st := state.(type) {
	case ServerSideState:
		return st, nil
	case *ServerSideState:
		if st == nil {
			return invalid("nil state")
		}
		return *st, nil
	case map[string]any:
		result := ServerSideState{}
		for key := range st {
			if key != "selectAll" && key != "toggledNodes" {
				return invalid("unexpected field '%s'", key)
			}
		}
		selectAll, ok := st["selectAll"].(bool)
		if !ok {
			return invalid("selectAll must be a boolean")
		}
		result.SelectAll = selectAll
		switch toggled := st["toggledNodes"].(type) {
		case nil:
		case []string:
			result.ToggledNodes = toggled
		case []any:
			for _, item := range toggled {
				id, ok := item.(string)
				if !ok {
					return invalid("toggledNodes must contain strings, found %T", item)
				}
				result.ToggledNodes = append(result.ToggledNodes, id)
			}
		default:
			return invalid("toggledNodes must be a list of ids")
		}
		return result, nil
	}

	return invalid("unsupported state type %T", state)
}

func (s *ServerSide) ProcessRemovedNodes(ids []string) bool {
	changed := false
	for _, id := range ids {
		if _, ok := s.toggled[id]; ok {
			delete(s.toggled, id)
			changed = true
		}
		if s.anchor.last != nil && s.anchor.last.ID == id {
			s.anchor.reset()
		}
	}
	return changed
}

func (s *ServerSide) SetRowSelectionMode(mode Mode) {
	if mode == s.mode {
		return
	}
	s.mode = mode
	s.selectAll = false
	s.toggled = map[string]struct{}{}
	s.anchor.reset()
}
