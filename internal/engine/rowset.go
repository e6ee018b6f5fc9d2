package engine

import (
	"iter"

	"github.com/roach88/fedq/internal/value"
)

// RowSet is the materialized result of one node.
//
// Rows are positional and aligned with Schema. Columns holds the display
// labels: plain names, or "qualifier.name" for join outputs where plain
// names may repeat.
type RowSet struct {
	Schema  value.Schema
	Columns []string
	Rows    [][]value.Value
}

// Len returns the number of rows.
func (rs *RowSet) Len() int {
	return len(rs.Rows)
}

// All iterates rows in order with their index.
func (rs *RowSet) All() iter.Seq2[int, []value.Value] {
	return func(yield func(int, []value.Value) bool) {
		for i, row := range rs.Rows {
			if !yield(i, row) {
				return
			}
		}
	}
}

// Object returns row i as an Object keyed by column label.
func (rs *RowSet) Object(i int) value.Object {
	obj := make(value.Object, len(rs.Columns))
	for j, v := range rs.Rows[i] {
		obj[rs.Columns[j]] = v
	}
	return obj
}
