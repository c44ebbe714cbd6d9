// Package immutable converts a full replacement dataset into a transaction
// against the previous keyed snapshot.
package immutable

import (
	"reflect"

	"github.com/fulldump/rowmodel/errs"
	"github.com/fulldump/rowmodel/rownode"
	"github.com/fulldump/rowmodel/transaction"
)

type IDFunc func(data any) string

// Snapshot is the previous keyed state, in insertion order.
type Snapshot struct {
	IDs   []string
	Nodes map[string]*rownode.RowNode
}

func NewSnapshot(nodes []*rownode.RowNode) *Snapshot {
	s := &Snapshot{
		IDs:   make([]string, 0, len(nodes)),
		Nodes: make(map[string]*rownode.RowNode, len(nodes)),
	}
	for _, n := range nodes {
		if _, exists := s.Nodes[n.ID]; exists {
			continue
		}
		s.IDs = append(s.IDs, n.ID)
		s.Nodes[n.ID] = n
	}
	return s
}

type Result struct {
	Transaction *transaction.Transaction
	// Order maps id to its position in the incoming array, nil when ordering
	// was suppressed.
	Order map[string]int
	// Ids repeated in the incoming array; only the first occurrence counts.
	Duplicates []string
}

type Differencer struct {
	ID IDFunc
}

// Diff scans records once in input order. Unknown ids are added, known ids
// whose record is not the very same reference are updated, and previous ids
// not seen are removed in snapshot order. Unchanged references produce
// nothing.
func (d *Differencer) Diff(records []any, previous *Snapshot, suppressOrder bool) (*Result, error) {

	if d == nil || d.ID == nil {
		return nil, errs.NewConfigurationError("an id function is required to compute row data deltas")
	}
	if previous == nil {
		previous = NewSnapshot(nil)
	}

	working := make(map[string]*rownode.RowNode, len(previous.Nodes))
	for id, node := range previous.Nodes {
		working[id] = node
	}
	seen := make(map[string]struct{}, len(records))

	result := &Result{
		Transaction: &transaction.Transaction{
			Add:    []any{},
			Update: []any{},
			Remove: []any{},
		},
	}
	if !suppressOrder {
		result.Order = make(map[string]int, len(records))
	}

	tx := result.Transaction
	for i, record := range records {
		id := d.ID(record)
		if _, dup := seen[id]; dup {
			result.Duplicates = append(result.Duplicates, id)
			continue
		}
		seen[id] = struct{}{}

		if result.Order != nil {
			result.Order[id] = i
		}

		existing, found := working[id]
		if !found {
			tx.Add = append(tx.Add, record)
			continue
		}
		// matched, so it will not be removed
		working[id] = nil

		if SameReference(existing.Data, record) {
			continue
		}
		tx.Update = append(tx.Update, record)
	}

	for _, id := range previous.IDs {
		node := working[id]
		if node == nil {
			continue
		}
		tx.Remove = append(tx.Remove, node.Data)
	}

	return result, nil
}

// SameReference is the identity test used to skip unchanged records.
// Pointer-like values compare by address and type, other comparable values
// with ==. Non comparable values are never identical.
func SameReference(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	va := reflect.ValueOf(a)
	vb := reflect.ValueOf(b)
	if va.Type() != vb.Type() {
		return false
	}
	switch va.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Chan, reflect.Func, reflect.UnsafePointer:
		return va.Pointer() == vb.Pointer()
	case reflect.Slice:
		return va.Pointer() == vb.Pointer() && va.Len() == vb.Len()
	}
	if !va.Type().Comparable() {
		return false
	}
	defer func() {
		// interface fields holding non comparable values panic on ==
		recover()
	}()
	return a == b
}
