package query

import (
	"fmt"
	"reflect"
	"sort"
	"time"
)

const (
	Asc  = "asc"
	Desc = "desc"
)

// Raw is implemented by wrapped values, such as combinable aggregates, that
// compare by an inner value.
type Raw interface {
	Raw() any
}

type SortModelItem struct {
	ColID string `json:"colId"`
	Sort  string `json:"sort"`
}

type SortModel []SortModelItem

func (s SortModel) Empty() bool {
	return len(s) == 0
}

func (s SortModel) Has(colID string) bool {
	for _, item := range s {
		if item.ColID == colID {
			return true
		}
	}
	return false
}

// Compare orders two field values: nil first, then numbers, strings,
// booleans and times by their natural order. Mixed types fall back to their
// printed form.
func Compare(a, b any) int {
	if r, ok := a.(Raw); ok {
		a = r.Raw()
	}
	if r, ok := b.(Raw); ok {
		b = r.Raw()
	}
	if a == nil && b == nil {
		return 0
	}
	if a == nil {
		return -1
	}
	if b == nil {
		return 1
	}

	if fa, ok := toFloat(a); ok {
		if fb, ok := toFloat(b); ok {
			return cmpOrdered(fa, fb)
		}
	}

	switch va := a.(type) {
	case string:
		if vb, ok := b.(string); ok {
			return cmpOrdered(va, vb)
		}
	case bool:
		if vb, ok := b.(bool); ok {
			if va == vb {
				return 0
			}
			if !va {
				return -1
			}
			return 1
		}
	case time.Time:
		if vb, ok := b.(time.Time); ok {
			return va.Compare(vb)
		}
	}

	return cmpOrdered(fmt.Sprint(a), fmt.Sprint(b))
}

func cmpOrdered[T float64 | string](a, b T) int {
	if a < b {
		return -1
	}
	if a > b {
		return 1
	}
	return 0
}

func toFloat(v any) (float64, bool) {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(rv.Int()), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return float64(rv.Uint()), true
	case reflect.Float32, reflect.Float64:
		return rv.Float(), true
	}
	return 0, false
}

// ToFloat converts numeric values, used by aggregation.
func ToFloat(v any) (float64, bool) {
	return toFloat(v)
}

// CompareBy compares two records under a sort model using get to read
// values.
func CompareBy(model SortModel, get ValueGetter, a, b any) int {
	for _, item := range model {
		c := Compare(get(a, item.ColID), get(b, item.ColID))
		if c == 0 {
			continue
		}
		if item.Sort == Desc {
			return -c
		}
		return c
	}
	return 0
}

// SortRecords sorts records in place, stable.
func SortRecords(records []any, model SortModel, get ValueGetter) {
	if model.Empty() {
		return
	}
	if get == nil {
		get = Value
	}
	sort.SliceStable(records, func(i, j int) bool {
		return CompareBy(model, get, records[i], records[j]) < 0
	})
}
