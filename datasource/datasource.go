// Package datasource is the contract between the server-side row model and
// whoever fetches its rows.
package datasource

import (
	"context"

	"github.com/fulldump/rowmodel/query"
	"github.com/fulldump/rowmodel/rownode"
)

type ColumnVO struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
	Field       string `json:"field"`
	AggFunc     string `json:"aggFunc,omitempty"`
}

// Request describes one block. Field names are the wire contract.
type Request struct {
	StartRow     int               `json:"startRow"`
	EndRow       int               `json:"endRow"`
	GroupKeys    []string          `json:"groupKeys"`
	FilterModel  query.FilterModel `json:"filterModel"`
	SortModel    query.SortModel   `json:"sortModel"`
	RowGroupCols []ColumnVO        `json:"rowGroupCols"`
	ValueCols    []ColumnVO        `json:"valueCols"`
	PivotCols    []ColumnVO        `json:"pivotCols"`
	PivotMode    bool              `json:"pivotMode"`
}

// Result is a successful block. RowCount is the total at this level when the
// datasource knows it.
type Result struct {
	RowData  []any `json:"rowData"`
	RowCount *int  `json:"rowCount,omitempty"`
}

func Count(n int) *int {
	return &n
}

type Params struct {
	Context context.Context
	Request Request
	// The group whose children are requested, the root at the top level.
	ParentNode *rownode.RowNode
	// Exactly one of Success or Fail must be called, possibly synchronously
	// and from any goroutine.
	Success func(result Result)
	Fail    func(err error)
}

type Datasource interface {
	GetRows(params Params)
}

// Func adapts a function to Datasource.
type Func func(params Params)

func (f Func) GetRows(params Params) {
	f(params)
}
