package query

import (
	"fmt"

	"github.com/SierraSoftworks/connor"
)

// FilterModel holds connor conditions, for example
// {"country": "Spain", "year": {"$gt": 2000}}.
type FilterModel map[string]any

func (f FilterModel) Empty() bool {
	return len(f) == 0
}

// Match tells whether data passes the filter. An empty filter passes
// everything.
func Match(filter FilterModel, data any) (bool, error) {
	if filter.Empty() {
		return true, nil
	}
	if data == nil {
		return false, nil
	}
	rowData, err := ToMap(data)
	if err != nil {
		return false, err
	}
	match, err := connor.Match(filter, rowData)
	if err != nil {
		return false, fmt.Errorf("match: %w", err)
	}
	return match, nil
}
