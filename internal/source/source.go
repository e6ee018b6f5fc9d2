package source

import (
	"context"

	"github.com/roach88/fedq/internal/expr"
	"github.com/roach88/fedq/internal/value"
)

// Adapter is the capability every source kind implements.
//
// The engine depends on this interface only. Relational tables,
// spreadsheets, JSON documents and object collections each provide one.
//
// Contract:
//   - Schema reports the columns available under base. It is called once,
//     when the source is registered.
//   - Fetch returns a finite row sequence. Row order is unspecified and the
//     filter is a hint: the engine re-applies it locally.
//   - Fetch fails with a SOURCE_UNAVAILABLE *Error when the underlying
//     system cannot be reached and a SCHEMA_MISMATCH *Error when a
//     requested column does not exist.
//   - Both methods honor ctx cancellation.
type Adapter interface {
	Schema(ctx context.Context, base string) (value.Schema, error)
	Fetch(ctx context.Context, req Request) ([]Row, error)
}

// Request describes the row shape the engine needs from a source.
type Request struct {
	// Base is the registry's base query, sheet or collection identifier.
	Base string

	// Columns lists the requested column names. Empty means all columns.
	Columns []string

	// Filter is an optional pushdown hint. Column references in it are
	// unqualified ([Column]) and name source columns.
	Filter expr.Predicate
}

// Field is one named value in a Row.
type Field struct {
	Name  string
	Value value.Value
}

// Row is an ordered mapping from column name to value.
type Row []Field

// Get returns the value of the named field.
func (r Row) Get(name string) (value.Value, bool) {
	for _, f := range r {
		if f.Name == name {
			return f.Value, true
		}
	}
	return nil, false
}

// Names returns the field names in order.
func (r Row) Names() []string {
	names := make([]string, len(r))
	for i, f := range r {
		names[i] = f.Name
	}
	return names
}

// RowFromObject converts an object into a row, taking fields in order of
// names. Fields absent from obj are omitted.
func RowFromObject(obj value.Object, names []string) Row {
	row := make(Row, 0, len(names))
	for _, n := range names {
		if v, ok := obj[n]; ok {
			row = append(row, Field{Name: n, Value: v})
		}
	}
	return row
}

// Project keeps the requested columns of rows, in request order.
// An empty request keeps every column. Adapters that materialize whole
// records use this to honor Request.Columns.
func Project(rows []Row, columns []string) []Row {
	if len(columns) == 0 {
		return rows
	}
	out := make([]Row, len(rows))
	for i, r := range rows {
		proj := make(Row, 0, len(columns))
		for _, c := range columns {
			if v, ok := r.Get(c); ok {
				proj = append(proj, Field{Name: c, Value: v})
			}
		}
		out[i] = proj
	}
	return out
}

// CheckColumns verifies that every requested column exists in schema.
func CheckColumns(name string, schema value.Schema, columns []string) error {
	for _, c := range columns {
		if _, err := schema.Index("", c); err != nil {
			return NewSchemaMismatch(name, "unknown column %q", c)
		}
	}
	return nil
}
