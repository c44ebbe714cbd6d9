package transaction

import (
	"github.com/fulldump/rowmodel/rownode"
)

// Transaction is an add/update/remove delta applied atomically to the row
// model. Records are matched to existing rows by the configured id function.
type Transaction struct {
	Add    []any `json:"add"`
	Update []any `json:"update"`
	Remove []any `json:"remove"`

	// AddIndex inserts Add at this position among top-level rows, nil to
	// append.
	AddIndex *int `json:"addIndex,omitempty"`
}

func (t *Transaction) Empty() bool {
	return t == nil || (len(t.Add) == 0 && len(t.Update) == 0 && len(t.Remove) == 0)
}

// Result holds the nodes each bucket resolved to. Records that could not be
// matched for update or remove are skipped and do not appear here.
type Result struct {
	Add    []*rownode.RowNode
	Update []*rownode.RowNode
	Remove []*rownode.RowNode
}

func (r *Result) IDs() []string {
	ids := []string{}
	for _, bucket := range [][]*rownode.RowNode{r.Add, r.Update, r.Remove} {
		for _, n := range bucket {
			ids = append(ids, n.ID)
		}
	}
	return ids
}

func (r *Result) Empty() bool {
	return len(r.Add) == 0 && len(r.Update) == 0 && len(r.Remove) == 0
}
