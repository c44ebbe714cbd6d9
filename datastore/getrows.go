package datastore

import (
	"fmt"
	"sort"

	"github.com/fulldump/rowmodel/aggregation"
	"github.com/fulldump/rowmodel/datasource"
	"github.com/fulldump/rowmodel/query"
	"github.com/fulldump/rowmodel/utils"
)

// GetRows answers a block request. Rows are filtered, narrowed to the group
// named by GroupKeys and sorted. Above the deepest grouping level the block
// holds one record per group with the value columns aggregated.
func (d *Datastore) GetRows(request datasource.Request) (*datasource.Result, error) {

	if len(request.GroupKeys) > len(request.RowGroupCols) {
		return nil, fmt.Errorf("%d group keys for %d row group columns", len(request.GroupKeys), len(request.RowGroupCols))
	}

	d.mutex.RLock()
	defer d.mutex.RUnlock()

	matched := []*Row{}
	var matchErr error
	d.scan(request.SortModel, func(row *Row) bool {
		if !inGroup(row, request) {
			return true
		}
		ok, err := query.Match(request.FilterModel, row.Data)
		if err != nil {
			matchErr = err
			return false
		}
		if ok {
			matched = append(matched, row)
		}
		return true
	})
	if matchErr != nil {
		return nil, fmt.Errorf("filter: %w", matchErr)
	}

	var records []any
	level := len(request.GroupKeys)
	if level < len(request.RowGroupCols) {
		var err error
		records, err = groupRecords(matched, request.RowGroupCols[level], request.ValueCols)
		if err != nil {
			return nil, err
		}
		query.SortRecords(records, request.SortModel, query.Value)
	} else {
		records = make([]any, len(matched))
		for i, row := range matched {
			records[i] = row.Data
		}
	}

	total := len(records)
	start := min(max(request.StartRow, 0), total)
	end := total
	if request.EndRow > 0 {
		end = min(max(request.EndRow, start), total)
	}

	return &datasource.Result{
		RowData:  records[start:end],
		RowCount: datasource.Count(total),
	}, nil
}

func columnField(c datasource.ColumnVO) string {
	if c.Field != "" {
		return c.Field
	}
	return c.ID
}

func inGroup(row *Row, request datasource.Request) bool {
	for i, key := range request.GroupKeys {
		value := query.Value(row.Data, columnField(request.RowGroupCols[i]))
		if query.KeyString(value) != key {
			return false
		}
	}
	return true
}

// scan visits rows in the order of model, through an index when one fits.
func (d *Datastore) scan(model query.SortModel, f func(row *Row) bool) {

	if model.Empty() {
		d.rows.Ascend(f)
		return
	}

	for _, name := range utils.GetKeys(d.indexes) {
		index := d.indexes[name]
		if reverse, ok := index.serves(model); ok {
			d.log.Debug().Str("index", name).Bool("reverse", reverse).Msg("sort from index")
			index.traverse(reverse, f)
			return
		}
	}

	rows := make([]*Row, 0, d.rows.Len())
	d.rows.Ascend(func(row *Row) bool {
		rows = append(rows, row)
		return true
	})
	sort.SliceStable(rows, func(i, j int) bool {
		return query.CompareBy(model, query.Value, rows[i].Data, rows[j].Data) < 0
	})
	for _, row := range rows {
		if !f(row) {
			return
		}
	}
}

// groupRecords makes one record per distinct value of groupCol, in order of
// first appearance.
func groupRecords(rows []*Row, groupCol datasource.ColumnVO, valueCols []datasource.ColumnVO) ([]any, error) {

	field := columnField(groupCol)
	order := []string{}
	values := map[string]any{}
	members := map[string][]*Row{}
	for _, row := range rows {
		value := query.Value(row.Data, field)
		key := query.KeyString(value)
		if _, seen := members[key]; !seen {
			order = append(order, key)
			values[key] = value
		}
		members[key] = append(members[key], row)
	}

	records := make([]any, 0, len(order))
	for _, key := range order {
		record := map[string]any{field: values[key]}
		for _, c := range valueCols {
			if c.AggFunc == "" {
				continue
			}
			f, ok := aggregation.Builtin(c.AggFunc)
			if !ok {
				return nil, fmt.Errorf("unknown aggregation function '%s' for column '%s'", c.AggFunc, c.ID)
			}
			params := aggregation.Params{Column: c.ID}
			for _, row := range members[key] {
				params.Values = append(params.Values, query.Value(row.Data, columnField(c)))
			}
			result, err := f(params)
			if err != nil {
				return nil, fmt.Errorf("aggregate '%s': %w", c.ID, err)
			}
			if raw, ok := result.(query.Raw); ok {
				result = raw.Raw()
			}
			record[columnField(c)] = result
		}
		records = append(records, record)
	}

	return records, nil
}
