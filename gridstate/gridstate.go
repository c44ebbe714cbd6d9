// Package gridstate persists what a user arranged on a row model (grouping,
// open groups, filter, sort and selection) so it can be restored later.
package gridstate

import (
	"fmt"
	"io"
	"os"

	json2 "github.com/go-json-experiment/json"
	"github.com/go-json-experiment/json/jsontext"

	"github.com/fulldump/rowmodel/query"
	"github.com/fulldump/rowmodel/rowmodel"
	"github.com/fulldump/rowmodel/selection"
)

type State struct {
	Selection    selection.ServerSideState `json:"selection"`
	RowGroupCols []string                  `json:"rowGroupCols"`
	Expanded     []string                  `json:"expanded"`
	FilterModel  query.FilterModel         `json:"filterModel,omitempty"`
	SortModel    query.SortModel           `json:"sortModel,omitempty"`
}

func Capture(m rowmodel.RowModel) State {
	return State{
		Selection:    m.GetServerSideSelectionState(),
		RowGroupCols: m.RowGroupColumns(),
		Expanded:     m.ExpandedIDs(),
		FilterModel:  m.FilterModel(),
		SortModel:    m.SortModel(),
	}
}

// Apply restores s on m. Grouping goes first since it decides which groups
// exist to be expanded.
func Apply(m rowmodel.RowModel, s State) error {
	if err := m.SetRowGroupColumns(s.RowGroupCols); err != nil {
		return fmt.Errorf("restore row groups: %w", err)
	}
	if err := m.SetFilterModel(s.FilterModel); err != nil {
		return fmt.Errorf("restore filter: %w", err)
	}
	m.SetSortModel(s.SortModel)
	m.SetExpandedIDs(s.Expanded)
	if err := m.SetServerSideSelectionState(s.Selection); err != nil {
		return fmt.Errorf("restore selection: %w", err)
	}
	return nil
}

func Encode(w io.Writer, s State) error {
	return json2.MarshalWrite(w, s, jsontext.WithIndent("  "))
}

func Decode(r io.Reader) (State, error) {
	s := State{}
	err := json2.UnmarshalRead(r, &s)
	return s, err
}

// Save writes s to filename through a temporary file, so a crash never
// leaves half a state behind.
func Save(filename string, s State) error {
	tmp := filename + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("create state file: %w", err)
	}
	if err := Encode(f, s); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("encode state: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("close state file: %w", err)
	}
	return os.Rename(tmp, filename)
}

func Load(filename string) (State, error) {
	f, err := os.Open(filename)
	if err != nil {
		return State{}, fmt.Errorf("open state file: %w", err)
	}
	defer f.Close()

	s, err := Decode(f)
	if err != nil {
		return State{}, fmt.Errorf("decode state file: %w", err)
	}
	return s, nil
}
