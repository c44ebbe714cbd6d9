package datastore

import (
	"fmt"
	"math"
	"strings"

	"github.com/google/btree"

	"github.com/fulldump/rowmodel/query"
)

// IndexOptions describes a sorted index. A field prefixed with "-" is kept in
// descending order.
type IndexOptions struct {
	Name   string   `json:"name"`
	Fields []string `json:"fields"`
	Unique bool     `json:"unique"`
	Sparse bool     `json:"sparse"`
}

type Index struct {
	Options *IndexOptions
	btree   *btree.BTreeG[*indexEntry]
}

type indexEntry struct {
	row    *Row
	seq    int64
	values []any
}

func newIndex(options *IndexOptions) *Index {
	fields := options.Fields
	less := func(a, b *indexEntry) bool {
		for i, field := range fields {
			c := query.Compare(a.values[i], b.values[i])
			if c == 0 {
				continue
			}
			if strings.HasPrefix(field, "-") {
				return c > 0
			}
			return c < 0
		}
		return a.seq < b.seq
	}
	return &Index{
		Options: options,
		btree:   btree.NewG(32, less),
	}
}

func fieldName(field string) string {
	return strings.TrimPrefix(field, "-")
}

// entry returns nil when the row is left out of a sparse index.
func (i *Index) entry(row *Row) (*indexEntry, error) {
	e := &indexEntry{row: row, seq: row.Seq}
	for _, field := range i.Options.Fields {
		field = fieldName(field)
		value := query.Value(row.Data, field)
		if value == nil {
			if i.Options.Sparse {
				return nil, nil
			}
			return nil, fmt.Errorf("field '%s' not defined", field)
		}
		e.values = append(e.values, value)
	}
	return e, nil
}

func (i *Index) conflict(e *indexEntry) bool {
	pivot := &indexEntry{seq: math.MinInt64, values: e.values}
	found := false
	i.btree.AscendGreaterOrEqual(pivot, func(item *indexEntry) bool {
		found = true
		for n := range e.values {
			if query.Compare(item.values[n], e.values[n]) != 0 {
				found = false
				break
			}
		}
		return false
	})
	return found
}

func (i *Index) addRow(row *Row) error {
	e, err := i.entry(row)
	if err != nil {
		return err
	}
	if e == nil {
		return nil
	}
	if i.Options.Unique && i.conflict(e) {
		pairs := []string{}
		for n, field := range i.Options.Fields {
			pairs = append(pairs, fmt.Sprint(fieldName(field), ":", e.values[n]))
		}
		return fmt.Errorf("key (%s) already exists", strings.Join(pairs, ","))
	}
	i.btree.ReplaceOrInsert(e)
	return nil
}

func (i *Index) removeRow(row *Row) {
	e, err := i.entry(row)
	if err != nil || e == nil {
		return
	}
	i.btree.Delete(e)
}

// serves tells whether a scan of the index yields rows in the order of
// model. Reverse scans only qualify on unique indexes, where there are no ties
// to come out backwards.
func (i *Index) serves(model query.SortModel) (reverse, ok bool) {
	if i.Options.Sparse || len(model) != len(i.Options.Fields) {
		return false, false
	}
	same, inverted := true, true
	for n, field := range i.Options.Fields {
		item := model[n]
		if item.ColID != fieldName(field) {
			return false, false
		}
		desc := strings.HasPrefix(field, "-")
		if (item.Sort == query.Desc) == desc {
			inverted = false
		} else {
			same = false
		}
	}
	if same {
		return false, true
	}
	if inverted && i.Options.Unique {
		return true, true
	}
	return false, false
}

func (i *Index) traverse(reverse bool, f func(row *Row) bool) {
	iterator := func(e *indexEntry) bool {
		return f(e.row)
	}
	if reverse {
		i.btree.Descend(iterator)
		return
	}
	i.btree.Ascend(iterator)
}
