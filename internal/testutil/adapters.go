// Package testutil provides deterministic source adapters and request IDs
// for tests.
package testutil

import (
	"context"
	"sync"

	"github.com/roach88/fedq/internal/source"
	"github.com/roach88/fedq/internal/value"
)

// StaticAdapter serves a fixed table and records every request it sees.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type StaticAdapter struct {
	schema value.Schema
	rows   []source.Row

	mu       sync.Mutex
	requests []source.Request
}

// NewStaticAdapter creates an adapter over cols with positional rows.
// Row values are converted with value.FromGo and must convert cleanly;
// a bad value panics since fixtures are static.
//
//	testutil.NewStaticAdapter(
//	    []value.Column{{Name: "OrderID", Type: value.TypeInt}},
//	    []any{1}, []any{2})
func NewStaticAdapter(cols []value.Column, rows ...[]any) *StaticAdapter {
	a := &StaticAdapter{schema: value.NewSchema(cols...)}
	for _, r := range rows {
		row := make(source.Row, 0, len(cols))
		for i, raw := range r {
			v, err := value.FromGo(raw)
			if err != nil {
				panic(err)
			}
			row = append(row, source.Field{Name: cols[i].Name, Value: v})
		}
		a.rows = append(a.rows, row)
	}
	return a
}

// NewStaticRows creates an adapter over prebuilt rows. Rows may omit or
// reorder fields.
func NewStaticRows(schema value.Schema, rows []source.Row) *StaticAdapter {
	return &StaticAdapter{schema: schema, rows: rows}
}

// Schema returns the fixed schema.
func (a *StaticAdapter) Schema(ctx context.Context, base string) (value.Schema, error) {
	return a.schema, nil
}

// Fetch records req and returns the rows projected to req.Columns. The
// filter is recorded but not applied.
func (a *StaticAdapter) Fetch(ctx context.Context, req source.Request) ([]source.Row, error) {
	a.mu.Lock()
	a.requests = append(a.requests, req)
	a.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := source.CheckColumns("static", a.schema, req.Columns); err != nil {
		return nil, err
	}
	return source.Project(a.rows, req.Columns), nil
}

// Calls returns how many times Fetch ran.
func (a *StaticAdapter) Calls() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.requests)
}

// Requests returns a copy of the recorded requests in arrival order.
func (a *StaticAdapter) Requests() []source.Request {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]source.Request, len(a.requests))
	copy(out, a.requests)
	return out
}

// BlockingAdapter blocks every Fetch until its context is done.
type BlockingAdapter struct {
	schema value.Schema

	// Started receives once per Fetch call, after the call begins waiting.
	Started chan struct{}
}

// NewBlockingAdapter creates a blocking adapter reporting cols.
func NewBlockingAdapter(cols ...value.Column) *BlockingAdapter {
	return &BlockingAdapter{schema: value.NewSchema(cols...), Started: make(chan struct{}, 16)}
}

// Schema returns the configured schema.
func (a *BlockingAdapter) Schema(ctx context.Context, base string) (value.Schema, error) {
	return a.schema, nil
}

// Fetch waits for ctx and returns its error.
func (a *BlockingAdapter) Fetch(ctx context.Context, req source.Request) ([]source.Row, error) {
	select {
	case a.Started <- struct{}{}:
	default:
	}
	<-ctx.Done()
	return nil, ctx.Err()
}

// FailingAdapter fails every Fetch with a fixed error.
type FailingAdapter struct {
	schema value.Schema
	err    error
}

// NewFailingAdapter creates an adapter whose Fetch returns err.
func NewFailingAdapter(err error, cols ...value.Column) *FailingAdapter {
	return &FailingAdapter{schema: value.NewSchema(cols...), err: err}
}

// Schema returns the configured schema.
func (a *FailingAdapter) Schema(ctx context.Context, base string) (value.Schema, error) {
	return a.schema, nil
}

// Fetch returns the configured error.
func (a *FailingAdapter) Fetch(ctx context.Context, req source.Request) ([]source.Row, error) {
	return nil, a.err
}

// MustRegister registers adapter under name and panics on failure.
func MustRegister(r *source.Registry, name string, adapter source.Adapter) {
	if err := r.Register(context.Background(), name, adapter, ""); err != nil {
		panic(err)
	}
}

// OrdersRegistry returns a registry with the two order sources used
// across tests:
//
//	sqlSource:   (OrderID int, OrderDate date) rows 1/2024-01-01, 2/2024-01-02
//	excelSource: (OrderID int, OrderDate date) row  1/2024-01-01
func OrdersRegistry() (*source.Registry, *StaticAdapter, *StaticAdapter) {
	cols := []value.Column{
		{Name: "OrderID", Type: value.TypeInt},
		{Name: "OrderDate", Type: value.TypeDate},
	}
	sql := NewStaticAdapter(cols,
		[]any{1, "2024-01-01"},
		[]any{2, "2024-01-02"},
	)
	excel := NewStaticAdapter(cols,
		[]any{1, "2024-01-01"},
	)
	r := source.NewRegistry()
	MustRegister(r, "sqlSource", sql)
	MustRegister(r, "excelSource", excel)
	return r, sql, excel
}
