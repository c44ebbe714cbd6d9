package datastore

import (
	"testing"

	"github.com/fulldump/biff"

	"github.com/fulldump/rowmodel/datasource"
	"github.com/fulldump/rowmodel/query"
)

func ids(r *datasource.Result) []string {
	result := []string{}
	for _, record := range r.RowData {
		result = append(result, record.(map[string]any)["id"].(string))
	}
	return result
}

var medals = []map[string]any{
	{"id": "1", "country": "Spain", "sport": "Sailing", "gold": 2.0},
	{"id": "2", "country": "France", "sport": "Fencing", "gold": 4.0},
	{"id": "3", "country": "Spain", "sport": "Tennis", "gold": 1.0},
	{"id": "4", "country": "Italy", "sport": "Fencing", "gold": 3.0},
}

var byCountry = []datasource.ColumnVO{{ID: "country", Field: "country"}}

func TestGetRows(t *testing.T) {

	biff.Alternative("Medals", func(a *biff.A) {

		d := open(t.TempDir() + "/medals")
		defer d.Close()
		for _, medal := range medals {
			_, err := d.Insert(medal)
			biff.AssertNil(err)
		}

		a.Alternative("Block", func(a *biff.A) {
			result, err := d.GetRows(datasource.Request{StartRow: 1, EndRow: 3})
			biff.AssertNil(err)
			biff.AssertEqual(ids(result), []string{"2", "3"})
			biff.AssertEqual(*result.RowCount, 4)
		})

		a.Alternative("Past the end", func(a *biff.A) {
			result, err := d.GetRows(datasource.Request{StartRow: 10, EndRow: 20})
			biff.AssertNil(err)
			biff.AssertEqual(len(result.RowData), 0)
			biff.AssertEqual(*result.RowCount, 4)
		})

		a.Alternative("Filter", func(a *biff.A) {
			result, err := d.GetRows(datasource.Request{
				EndRow:      10,
				FilterModel: query.FilterModel{"gold": map[string]any{"$gt": 1.5}},
			})
			biff.AssertNil(err)
			biff.AssertEqual(ids(result), []string{"1", "2", "4"})
			biff.AssertEqual(*result.RowCount, 3)
		})

		a.Alternative("Sort", func(a *biff.A) {
			request := datasource.Request{
				EndRow:    10,
				SortModel: query.SortModel{{ColID: "gold", Sort: query.Desc}},
			}
			result, err := d.GetRows(request)
			biff.AssertNil(err)
			biff.AssertEqual(ids(result), []string{"2", "4", "1", "3"})

			a.Alternative("From a unique index", func(a *biff.A) {
				biff.AssertNil(d.CreateIndex(&IndexOptions{Fields: []string{"gold"}, Unique: true}))

				result, err := d.GetRows(request)
				biff.AssertNil(err)
				biff.AssertEqual(ids(result), []string{"2", "4", "1", "3"})

				request.SortModel = query.SortModel{{ColID: "gold", Sort: query.Asc}}
				result, err = d.GetRows(request)
				biff.AssertNil(err)
				biff.AssertEqual(ids(result), []string{"3", "1", "4", "2"})
			})

			a.Alternative("Ties keep insertion order", func(a *biff.A) {
				biff.AssertNil(d.CreateIndex(&IndexOptions{Fields: []string{"sport"}}))

				request.SortModel = query.SortModel{{ColID: "sport", Sort: query.Desc}}
				result, err := d.GetRows(request)
				biff.AssertNil(err)
				biff.AssertEqual(ids(result), []string{"3", "1", "2", "4"})
			})
		})

		a.Alternative("Top level groups", func(a *biff.A) {
			request := datasource.Request{
				EndRow:       10,
				RowGroupCols: byCountry,
				ValueCols: []datasource.ColumnVO{
					{ID: "gold", Field: "gold", AggFunc: "sum"},
					{ID: "sport", Field: "sport", AggFunc: "count"},
				},
			}
			result, err := d.GetRows(request)
			biff.AssertNil(err)
			biff.AssertEqual(*result.RowCount, 3)
			biff.AssertEqual(result.RowData, []any{
				map[string]any{"country": "Spain", "gold": 3.0, "sport": int64(2)},
				map[string]any{"country": "France", "gold": 4.0, "sport": int64(1)},
				map[string]any{"country": "Italy", "gold": 3.0, "sport": int64(1)},
			})

			a.Alternative("Sorted by aggregate", func(a *biff.A) {
				request.SortModel = query.SortModel{{ColID: "gold", Sort: query.Desc}}
				result, err := d.GetRows(request)
				biff.AssertNil(err)
				countries := []any{}
				for _, record := range result.RowData {
					countries = append(countries, record.(map[string]any)["country"])
				}
				biff.AssertEqual(countries, []any{"France", "Spain", "Italy"})
			})

			a.Alternative("Average", func(a *biff.A) {
				request.ValueCols = []datasource.ColumnVO{{ID: "gold", Field: "gold", AggFunc: "avg"}}
				result, err := d.GetRows(request)
				biff.AssertNil(err)
				biff.AssertEqual(result.RowData[0], map[string]any{"country": "Spain", "gold": 1.5})
			})

			a.Alternative("Unknown function", func(a *biff.A) {
				request.ValueCols = []datasource.ColumnVO{{ID: "gold", AggFunc: "median"}}
				_, err := d.GetRows(request)
				biff.AssertNotNil(err)
			})
		})

		a.Alternative("Group children", func(a *biff.A) {
			result, err := d.GetRows(datasource.Request{
				EndRow:       10,
				GroupKeys:    []string{"Spain"},
				RowGroupCols: byCountry,
			})
			biff.AssertNil(err)
			biff.AssertEqual(ids(result), []string{"1", "3"})
			biff.AssertEqual(*result.RowCount, 2)
		})

		a.Alternative("Too many group keys", func(a *biff.A) {
			_, err := d.GetRows(datasource.Request{GroupKeys: []string{"Spain"}})
			biff.AssertNotNil(err)
		})
	})
}
